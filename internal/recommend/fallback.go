package recommend

import (
	"context"

	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/common/metrics"
	"recommendation-backend/internal/models"
)

// fallbackFetchCap bounds how many popular products one fallback pass pulls
// from the catalog.
const fallbackFetchCap = 200

// ProductProvider is the slice of the catalog cache the fallback engine
// needs.
type ProductProvider interface {
	TopProducts(ctx context.Context, limit int) ([]models.Product, error)
}

// FallbackEngine produces best-effort, explicitly labeled results when the
// primary sources cannot. It never returns an error: an unreachable catalog
// yields an empty list, and an empty list is returned only when the catalog
// itself has nothing to offer.
type FallbackEngine struct {
	catalog ProductProvider
	quota   int
	logger  logger.Logger
}

func NewFallbackEngine(catalog ProductProvider, quota int, log logger.Logger) *FallbackEngine {
	if quota <= 0 {
		quota = 2
	}
	return &FallbackEngine{
		catalog: catalog,
		quota:   quota,
		logger:  log.WithFields(map[string]interface{}{"component": "fallback"}),
	}
}

// Recommend returns up to n popularity-ranked products, none of them in
// exclusions, with at most quota per category while more popular items are
// still being skipped for diversity. Reasons record how each entry earned
// its slot: straight popularity ranking is popular_fallback, entries
// admitted because the quota skipped a more popular item are
// diverse_fallback, and entries admitted through a category restriction are
// category_fallback.
func (e *FallbackEngine) Recommend(ctx context.Context, n int, exclusions map[string]struct{}, category string) []models.CombinedRecommendation {
	if n <= 0 {
		return nil
	}

	limit := n*3 + len(exclusions)
	if limit > fallbackFetchCap {
		limit = fallbackFetchCap
	}

	products, err := e.catalog.TopProducts(ctx, limit)
	if err != nil {
		e.logger.Warn("fallback catalog fetch failed", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	eligible := make([]models.Product, 0, len(products))
	for _, p := range products {
		if _, excluded := exclusions[p.ID]; excluded {
			continue
		}
		if !p.Available {
			continue
		}
		eligible = append(eligible, p)
	}

	var out []models.CombinedRecommendation

	// Category restriction first, when an anchor category is known.
	if category != "" {
		for _, p := range eligible {
			if len(out) == n {
				break
			}
			if p.Category != category {
				continue
			}
			out = append(out, fallbackRec(p, models.ReasonCategoryFallback))
		}
	}

	taken := make(map[string]struct{}, len(out))
	for _, rec := range out {
		taken[rec.ProductID] = struct{}{}
	}

	perCategory := make(map[string]int)
	var deferred []models.Product
	skipped := false

	for _, p := range eligible {
		if len(out) == n {
			break
		}
		if _, dup := taken[p.ID]; dup {
			continue
		}
		if perCategory[p.Category] >= e.quota {
			deferred = append(deferred, p)
			skipped = true
			continue
		}
		perCategory[p.Category]++
		reason := models.ReasonPopularFallback
		if skipped {
			reason = models.ReasonDiverseFallback
		}
		out = append(out, fallbackRec(p, reason))
		taken[p.ID] = struct{}{}
	}

	// Quota starved the list: relax it and backfill by raw popularity.
	for _, p := range deferred {
		if len(out) == n {
			break
		}
		out = append(out, fallbackRec(p, models.ReasonPopularFallback))
	}

	for i := range out {
		out[i].Rank = i + 1
		metrics.FallbackResults.WithLabelValues(out[i].Reason).Inc()
	}
	return out
}

func fallbackRec(p models.Product, reason string) models.CombinedRecommendation {
	return models.CombinedRecommendation{
		ProductID:  p.ID,
		FinalScore: p.Popularity,
		Reason:     reason,
	}
}
