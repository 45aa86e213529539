// Package recommend implements the hybrid recommendation pipeline: weighted
// combination of candidate sources, interaction-history exclusion, fallback
// ranking, and the request-facing service that ties them to the caches.
package recommend

import (
	"context"
	"sort"
	"time"

	"recommendation-backend/internal/common/breaker"
	apperrors "recommendation-backend/internal/common/errors"
	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/common/metrics"
	"recommendation-backend/internal/models"
	"recommendation-backend/internal/sources"
)

// wrappedSource pairs a candidate source with its own breaker so one
// provider's outage never trips the other's circuit.
type wrappedSource struct {
	source  sources.CandidateSource
	breaker *breaker.Breaker
}

// Combiner fans out to the candidate sources concurrently and merges their
// results into a single weighted ranking.
type Combiner struct {
	sources           []wrappedSource
	timeout           time.Duration
	preferMultiSource bool
	logger            logger.Logger
}

type CombinerOptions struct {
	SourceTimeout     time.Duration
	PreferMultiSource bool
}

func NewCombiner(content, collaborative sources.CandidateSource, contentBrk, collabBrk *breaker.Breaker, opts CombinerOptions, log logger.Logger) *Combiner {
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 2 * time.Second
	}
	return &Combiner{
		sources: []wrappedSource{
			{source: content, breaker: contentBrk},
			{source: collaborative, breaker: collabBrk},
		},
		timeout:           opts.SourceTimeout,
		preferMultiSource: opts.PreferMultiSource,
		logger:            log.WithFields(map[string]interface{}{"component": "combiner"}),
	}
}

type sourceResult struct {
	name       string
	candidates []models.Candidate
	err        error
}

// Combine queries every source in parallel and merges the candidates with
// the given content weight. A source that errors, times out, or is behind
// an open circuit contributes nothing; its absence is reported in failed.
// Only when every source fails does Combine return an error.
func (c *Combiner) Combine(ctx context.Context, query sources.Query, weight float64) (combined []models.CombinedRecommendation, failed []string, err error) {
	results := make(chan sourceResult, len(c.sources))

	for _, ws := range c.sources {
		go func(ws wrappedSource) {
			results <- c.fetch(ctx, ws, query)
		}(ws)
	}

	bySource := make(map[string][]models.Candidate, len(c.sources))
	for range c.sources {
		res := <-results
		if res.err != nil {
			failed = append(failed, res.name)
			metrics.SourceErrors.WithLabelValues(res.name).Inc()
			c.logger.Warn("candidate source unavailable", map[string]interface{}{
				"source": res.name,
				"error":  res.err.Error(),
			})
			continue
		}
		bySource[res.name] = res.candidates
	}
	sort.Strings(failed)

	if len(bySource) == 0 {
		return nil, failed, apperrors.NewAllSourcesFailedError()
	}

	return c.merge(bySource, weight), failed, nil
}

func (c *Combiner) fetch(ctx context.Context, ws wrappedSource, query sources.Query) sourceResult {
	name := ws.source.Name()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	candidates, err := breaker.Do(ws.breaker, func() ([]models.Candidate, error) {
		return ws.source.Fetch(ctx, query)
	})
	metrics.SourceDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return sourceResult{name: name, err: err}
	}
	return sourceResult{name: name, candidates: candidates}
}

// merge computes weighted scores per product. The content source carries
// weight w, the collaborative source 1-w; a product absent from a source
// contributes 0 from that source. Within the merged list the order of first
// appearance follows source order (content first), which breaks remaining
// ties deterministically.
func (c *Combiner) merge(bySource map[string][]models.Candidate, weight float64) []models.CombinedRecommendation {
	type accum struct {
		score     float64
		sources   []string
		insertion int
	}

	ordered := []string{models.SourceContent, models.SourceCollaborative}
	acc := make(map[string]*accum)
	var order []string

	for _, name := range ordered {
		candidates, ok := bySource[name]
		if !ok {
			continue
		}
		w := weight
		if name == models.SourceCollaborative {
			w = 1 - weight
		}
		// A source may repeat a product id; only the highest-scored
		// occurrence counts, and the source tag is recorded once.
		best := make(map[string]float64, len(candidates))
		var ids []string
		for _, cand := range candidates {
			prev, dup := best[cand.ProductID]
			if dup {
				if cand.Score > prev {
					best[cand.ProductID] = cand.Score
				}
				continue
			}
			best[cand.ProductID] = cand.Score
			ids = append(ids, cand.ProductID)
		}

		for _, id := range ids {
			a, seen := acc[id]
			if !seen {
				a = &accum{insertion: len(order)}
				acc[id] = a
				order = append(order, id)
			}
			a.score += w * best[id]
			a.sources = append(a.sources, name)
		}
	}

	out := make([]models.CombinedRecommendation, 0, len(order))
	for _, id := range order {
		a := acc[id]
		out = append(out, models.CombinedRecommendation{
			ProductID:  id,
			FinalScore: a.score,
			Sources:    a.sources,
			Reason:     reasonFor(a.sources),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		if c.preferMultiSource && len(out[i].Sources) != len(out[j].Sources) {
			return len(out[i].Sources) > len(out[j].Sources)
		}
		return acc[out[i].ProductID].insertion < acc[out[j].ProductID].insertion
	})

	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func reasonFor(srcs []string) string {
	if len(srcs) > 1 {
		return models.ReasonHybrid
	}
	if len(srcs) == 1 && srcs[0] == models.SourceCollaborative {
		return models.ReasonCollaborativeOnly
	}
	return models.ReasonContentOnly
}
