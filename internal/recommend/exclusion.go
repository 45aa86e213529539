package recommend

import (
	"context"

	"recommendation-backend/internal/common/breaker"
	apperrors "recommendation-backend/internal/common/errors"
	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/events"
	"recommendation-backend/internal/models"
)

// Filter removes already-interacted products from a combined ranking. It
// over-fetches from the combiner so exclusions do not starve the result, then
// trims to the requested size.
type Filter struct {
	store    events.Store
	breaker  *breaker.Breaker
	maxExtra int
	logger   logger.Logger
}

func NewFilter(store events.Store, brk *breaker.Breaker, maxExtra int, log logger.Logger) *Filter {
	if maxExtra <= 0 {
		maxExtra = 50
	}
	return &Filter{
		store:    store,
		breaker:  brk,
		maxExtra: maxExtra,
		logger:   log.WithFields(map[string]interface{}{"component": "exclusion-filter"}),
	}
}

// ExclusionSet fetches the user's recent interaction set. An unreachable
// event store degrades to an empty set; the returned error carries
// EVENT_STORE_UNAVAILABLE so the caller can record the degradation, but the
// set is always usable.
func (f *Filter) ExclusionSet(ctx context.Context, userID string) (map[string]struct{}, error) {
	if userID == "" {
		return map[string]struct{}{}, nil
	}

	set, err := breaker.Do(f.breaker, func() (map[string]struct{}, error) {
		return f.store.GetInteractions(ctx, userID)
	})
	if err != nil {
		f.logger.Warn("event store unavailable, proceeding without exclusions", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return map[string]struct{}{}, apperrors.NewEventStoreUnavailableError(err)
	}
	return set, nil
}

// FetchLimit returns how many candidates to request upstream so that n
// survive filtering: n plus one extra per excluded product, capped.
func (f *Filter) FetchLimit(n int, exclusions map[string]struct{}) int {
	extra := len(exclusions)
	if extra > f.maxExtra {
		extra = f.maxExtra
	}
	return n + extra
}

// Apply filters the exclusion set out of recs, preserving order, and trims
// to n. Ranks are reassigned so the output is a contiguous 1..len ranking.
func (f *Filter) Apply(recs []models.CombinedRecommendation, exclusions map[string]struct{}, n int) []models.CombinedRecommendation {
	out := make([]models.CombinedRecommendation, 0, n)
	for _, rec := range recs {
		if _, excluded := exclusions[rec.ProductID]; excluded {
			continue
		}
		out = append(out, rec)
		if len(out) == n {
			break
		}
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
