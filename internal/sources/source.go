// Package sources defines the uniform candidate source contract and its two
// adapters: the content similarity index (Elasticsearch) and the vendor
// collaborative-filtering service. The combiner and filter depend only on
// the CandidateSource interface.
package sources

import (
	"context"

	"recommendation-backend/internal/models"
)

// Query describes one candidate fetch. Either UserID or ProductID (or both)
// may be set.
type Query struct {
	UserID    string
	ProductID string
	Limit     int
}

// CandidateSource returns scored product suggestions for a query. Scores are
// normalized to [0,1]; ties preserve the source's insertion order. A source
// must never block beyond its configured timeout: on timeout or upstream
// error it returns an explicit error, never a partial list.
type CandidateSource interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]models.Candidate, error)
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
