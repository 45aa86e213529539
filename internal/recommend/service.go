package recommend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"recommendation-backend/internal/common/config"
	apperrors "recommendation-backend/internal/common/errors"
	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/common/metrics"
	"recommendation-backend/internal/models"
	"recommendation-backend/internal/resultcache"
	"recommendation-backend/internal/sources"
)

// ProductEnricher is the slice of the catalog cache the service needs to
// turn ranked ids into presentable products.
type ProductEnricher interface {
	GetProducts(ctx context.Context, ids []string, marketID string) []models.Product
}

// Service runs the full recommendation pipeline: validation, exclusion
// lookup, result-cache check, hybrid combination, filtering, fallback, and
// catalog enrichment. Every degradation is absorbed and reported in the
// response metadata; INVALID_REQUEST is the only error a caller ever sees.
type Service struct {
	combiner      *Combiner
	filter        *Filter
	fallback      *FallbackEngine
	results       *resultcache.Cache
	catalog       ProductEnricher
	markets       config.MarketsConfig
	defaultWeight float64
	maxN          int
	logger        logger.Logger
}

func NewService(combiner *Combiner, filter *Filter, fallback *FallbackEngine, results *resultcache.Cache, catalog ProductEnricher, markets config.MarketsConfig, defaultWeight float64, maxN int, log logger.Logger) *Service {
	if maxN <= 0 {
		maxN = 100
	}
	if defaultWeight <= 0 || defaultWeight > 1 {
		defaultWeight = 0.5
	}
	return &Service{
		combiner:      combiner,
		filter:        filter,
		fallback:      fallback,
		results:       results,
		catalog:       catalog,
		markets:       markets,
		defaultWeight: defaultWeight,
		maxN:          maxN,
		logger:        log.WithFields(map[string]interface{}{"component": "recommend-service"}),
	}
}

// weightFor resolves the content weight for a request: the explicit value
// when given, the configured default otherwise.
func (s *Service) weightFor(req models.Request) float64 {
	if req.ContentWeight != nil {
		return *req.ContentWeight
	}
	return s.defaultWeight
}

// Recommend serves one recommendation request.
func (s *Service) Recommend(ctx context.Context, req models.Request) (*models.Response, error) {
	start := time.Now()
	requestID := uuid.New().String()
	log := s.logger.WithFields(map[string]interface{}{"request_id": requestID})

	if err := s.validate(&req); err != nil {
		metrics.RecommendationRequests.WithLabelValues("invalid").Inc()
		return nil, err
	}

	var degraded []string

	exclusions, exclErr := s.filter.ExclusionSet(ctx, req.UserID)
	if exclErr != nil {
		degraded = append(degraded, "event_store")
	}

	key, intent := s.results.Key(ctx, req.Query, exclusions)

	if entry, err := s.results.Get(ctx, key); err != nil {
		degraded = append(degraded, "result_cache")
	} else if entry != nil {
		log.Debug("served from result cache", map[string]interface{}{"intent": intent})
		metrics.RecommendationRequests.WithLabelValues("cache_hit").Inc()
		metrics.RecommendationDuration.Observe(time.Since(start).Seconds())
		return s.respond(ctx, entry.Items, req, models.ResponseMetadata{
			RequestID:     requestID,
			TookMS:        time.Since(start).Milliseconds(),
			Requested:     req.N,
			ExcludedCount: len(exclusions),
			CacheHit:      true,
			Degraded:      degraded,
		}), nil
	}

	recs, fallbackUsed, pipelineDegraded := s.compute(ctx, req, intent, exclusions, log)
	degraded = append(degraded, pipelineDegraded...)

	items := toItems(ctx, recs, s.catalog, req.MarketID)
	if !fallbackUsed && len(items) > 0 {
		s.results.Put(ctx, key, resultcache.NewEntry(items))
	}

	status := "ok"
	if fallbackUsed {
		status = "fallback"
	}
	metrics.RecommendationRequests.WithLabelValues(status).Inc()
	metrics.RecommendationDuration.Observe(time.Since(start).Seconds())

	return s.respond(ctx, items, req, models.ResponseMetadata{
		RequestID:     requestID,
		TookMS:        time.Since(start).Milliseconds(),
		Requested:     req.N,
		ExcludedCount: len(exclusions),
		FallbackUsed:  fallbackUsed,
		Degraded:      degraded,
	}), nil
}

// compute runs the primary pipeline and falls back when it cannot deliver.
func (s *Service) compute(ctx context.Context, req models.Request, intent string, exclusions map[string]struct{}, log logger.Logger) (recs []models.CombinedRecommendation, fallbackUsed bool, degraded []string) {
	// The effective exclusion set adds the anchor product (never recommend
	// what the user is already looking at) and, for follow-ups, everything
	// the base bucket already served.
	var baseEntry *resultcache.Entry
	if qualifier, ok := resultcache.FollowUpQualifier(intent); ok {
		baseEntry = s.baseEntry(ctx, qualifier, exclusions)
	}

	effective := make(map[string]struct{}, len(exclusions)+1)
	for id := range exclusions {
		effective[id] = struct{}{}
	}
	if req.ProductID != "" {
		effective[req.ProductID] = struct{}{}
	}
	if baseEntry != nil {
		for _, it := range baseEntry.Items {
			effective[it.ID] = struct{}{}
		}
	}

	limit := s.filter.FetchLimit(req.N, effective)
	combined, failedSources, err := s.combiner.Combine(ctx, sources.Query{
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Limit:     limit,
	}, s.weightFor(req))
	for _, name := range failedSources {
		degraded = append(degraded, "source:"+name)
	}

	if err != nil {
		log.Warn("all candidate sources failed", map[string]interface{}{
			"error": err.Error(),
		})
		if baseEntry != nil {
			// Re-serve a diverse slice of the base bucket instead of
			// generic popular items.
			subset := resultcache.DiverseSubset(baseEntry, exclusions, req.N)
			if len(subset) > 0 {
				for _, it := range subset {
					recs = append(recs, models.CombinedRecommendation{
						ProductID:  it.ID,
						FinalScore: it.Score,
						Reason:     models.ReasonDiverseFallback,
					})
				}
				for i := range recs {
					recs[i].Rank = i + 1
				}
				return recs, true, degraded
			}
		}
		return s.fallback.Recommend(ctx, req.N, effective, s.intentCategory(ctx, intent)), true, degraded
	}

	recs = s.filter.Apply(combined, effective, req.N)

	// Pad a starved result with labeled fallback entries rather than
	// returning fewer than requested.
	if len(recs) < req.N {
		taken := make(map[string]struct{}, len(effective)+len(recs))
		for id := range effective {
			taken[id] = struct{}{}
		}
		for _, rec := range recs {
			taken[rec.ProductID] = struct{}{}
		}
		pad := s.fallback.Recommend(ctx, req.N-len(recs), taken, s.intentCategory(ctx, intent))
		if len(pad) > 0 {
			fallbackUsed = true
			recs = append(recs, pad...)
			for i := range recs {
				recs[i].Rank = i + 1
			}
		}
	}

	return recs, fallbackUsed, degraded
}

// baseEntry resolves the bucket a follow-up refers back to: the category
// bucket when the qualifier names a known category, otherwise the generic
// recommendation bucket.
func (s *Service) baseEntry(ctx context.Context, qualifier string, exclusions map[string]struct{}) *resultcache.Entry {
	intent := resultcache.IntentRecommendationRequest
	if s.results.Extractor().KnownCategory(ctx, qualifier) {
		intent = resultcache.CategoryIntent(qualifier)
	}
	entry, err := s.results.Get(ctx, s.results.KeyFor(intent, exclusions))
	if err != nil {
		return nil
	}
	return entry
}

// intentCategory extracts a category restriction for the fallback engine
// from the derived intent, when it carries one.
func (s *Service) intentCategory(ctx context.Context, intent string) string {
	if cat, ok := resultcache.IntentCategory(intent); ok {
		return cat
	}
	if qualifier, ok := resultcache.FollowUpQualifier(intent); ok && s.results.Extractor().KnownCategory(ctx, qualifier) {
		return qualifier
	}
	return ""
}

func (s *Service) validate(req *models.Request) error {
	if req.N <= 0 {
		return apperrors.NewInvalidRequestError("n must be a positive integer")
	}
	if req.N > s.maxN {
		req.N = s.maxN
	}
	if req.MarketID == "" {
		return apperrors.NewInvalidRequestError("market_id is required")
	}
	if !s.markets.IsKnown(req.MarketID) {
		return apperrors.NewInvalidRequestError(fmt.Sprintf("unknown market_id '%s'", req.MarketID))
	}
	if req.ContentWeight != nil {
		if w := *req.ContentWeight; w < 0 || w > 1 {
			return apperrors.NewInvalidRequestError("content_weight must be between 0 and 1")
		}
	}
	return nil
}

// respond enriches cached items into the final response shape.
func (s *Service) respond(ctx context.Context, items []resultcache.Item, req models.Request, meta models.ResponseMetadata) *models.Response {
	if len(items) > req.N {
		items = items[:req.N]
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	products := s.catalog.GetProducts(ctx, ids, req.MarketID)

	out := make([]models.RecommendedProduct, len(items))
	for i, it := range items {
		rec := models.RecommendedProduct{
			ID:      it.ID,
			Score:   it.Score,
			Sources: it.Sources,
			Reason:  it.Reason,
		}
		if i < len(products) {
			p := products[i]
			rec.Title = p.Title
			rec.Price = p.Price.Amount
			rec.Currency = p.Price.Currency
			rec.Category = p.Category
			rec.Incomplete = p.Incomplete
		}
		out[i] = rec
	}

	meta.Returned = len(out)
	return &models.Response{Recommendations: out, Metadata: meta}
}

// toItems converts ranked recommendations into cacheable items, resolving
// each product's category for the diversity histogram.
func toItems(ctx context.Context, recs []models.CombinedRecommendation, catalog ProductEnricher, marketID string) []resultcache.Item {
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ProductID
	}
	products := catalog.GetProducts(ctx, ids, marketID)

	items := make([]resultcache.Item, len(recs))
	for i, rec := range recs {
		item := resultcache.Item{
			ID:      rec.ProductID,
			Score:   rec.FinalScore,
			Sources: rec.Sources,
			Reason:  rec.Reason,
		}
		if i < len(products) {
			item.Category = products[i].Category
		}
		items[i] = item
	}
	return items
}
