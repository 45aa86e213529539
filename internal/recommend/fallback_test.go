package recommend

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/models"
)

type stubCatalog struct {
	top []models.Product
	err error
}

func (s *stubCatalog) TopProducts(ctx context.Context, limit int) ([]models.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit > len(s.top) {
		limit = len(s.top)
	}
	return s.top[:limit], nil
}

func popular(id, category string, pop float64) models.Product {
	return models.Product{ID: id, Category: category, Popularity: pop, Available: true}
}

func TestFallback_PopularityOrder(t *testing.T) {
	cat := &stubCatalog{top: []models.Product{
		popular("p-1", "shoes", 0.9),
		popular("p-2", "bags", 0.8),
		popular("p-3", "shoes", 0.7),
	}}
	e := NewFallbackEngine(cat, 2, logger.NewTestLogger(t))

	got := e.Recommend(context.Background(), 3, nil, "")
	require.Len(t, got, 3)
	assert.Equal(t, "p-1", got[0].ProductID)
	assert.Equal(t, models.ReasonPopularFallback, got[0].Reason)
	assert.Equal(t, 0.9, got[0].FinalScore)
	for i, rec := range got {
		assert.Equal(t, i+1, rec.Rank)
	}
}

func TestFallback_CategoryQuotaPromotesDiversity(t *testing.T) {
	cat := &stubCatalog{top: []models.Product{
		popular("s-1", "shoes", 0.9),
		popular("s-2", "shoes", 0.8),
		popular("s-3", "shoes", 0.7),
		popular("b-1", "bags", 0.6),
	}}
	e := NewFallbackEngine(cat, 2, logger.NewTestLogger(t))

	got := e.Recommend(context.Background(), 3, nil, "")
	require.Len(t, got, 3)
	assert.Equal(t, "s-1", got[0].ProductID)
	assert.Equal(t, "s-2", got[1].ProductID)
	// s-3 is over quota; b-1 takes its slot and is labeled accordingly.
	assert.Equal(t, "b-1", got[2].ProductID)
	assert.Equal(t, models.ReasonDiverseFallback, got[2].Reason)
}

func TestFallback_QuotaRelaxedWhenCatalogIsNarrow(t *testing.T) {
	cat := &stubCatalog{top: []models.Product{
		popular("s-1", "shoes", 0.9),
		popular("s-2", "shoes", 0.8),
		popular("s-3", "shoes", 0.7),
	}}
	e := NewFallbackEngine(cat, 2, logger.NewTestLogger(t))

	got := e.Recommend(context.Background(), 3, nil, "")
	require.Len(t, got, 3)
	assert.Equal(t, "s-3", got[2].ProductID)
	assert.Equal(t, models.ReasonPopularFallback, got[2].Reason)
}

func TestFallback_CategoryRestriction(t *testing.T) {
	cat := &stubCatalog{top: []models.Product{
		popular("s-1", "shoes", 0.9),
		popular("b-1", "bags", 0.8),
		popular("b-2", "bags", 0.7),
	}}
	e := NewFallbackEngine(cat, 2, logger.NewTestLogger(t))

	got := e.Recommend(context.Background(), 2, nil, "bags")
	require.Len(t, got, 2)
	assert.Equal(t, "b-1", got[0].ProductID)
	assert.Equal(t, models.ReasonCategoryFallback, got[0].Reason)
	assert.Equal(t, "b-2", got[1].ProductID)
}

func TestFallback_ExclusionsAndAvailability(t *testing.T) {
	cat := &stubCatalog{top: []models.Product{
		popular("p-1", "shoes", 0.9),
		{ID: "p-2", Category: "shoes", Popularity: 0.8, Available: false},
		popular("p-3", "bags", 0.7),
	}}
	e := NewFallbackEngine(cat, 2, logger.NewTestLogger(t))

	got := e.Recommend(context.Background(), 5, map[string]struct{}{"p-1": {}}, "")
	require.Len(t, got, 1)
	assert.Equal(t, "p-3", got[0].ProductID)
}

func TestFallback_NeverErrors(t *testing.T) {
	t.Run("catalog unreachable", func(t *testing.T) {
		e := NewFallbackEngine(&stubCatalog{err: fmt.Errorf("pg down")}, 2, logger.NewTestLogger(t))
		assert.Empty(t, e.Recommend(context.Background(), 3, nil, ""))
	})

	t.Run("catalog empty", func(t *testing.T) {
		e := NewFallbackEngine(&stubCatalog{}, 2, logger.NewTestLogger(t))
		assert.Empty(t, e.Recommend(context.Background(), 3, nil, ""))
	})

	t.Run("n zero", func(t *testing.T) {
		e := NewFallbackEngine(&stubCatalog{top: []models.Product{popular("p", "c", 1)}}, 2, logger.NewTestLogger(t))
		assert.Empty(t, e.Recommend(context.Background(), 0, nil, ""))
	})
}
