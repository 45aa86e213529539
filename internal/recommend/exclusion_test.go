package recommend

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "recommendation-backend/internal/common/errors"
	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/models"
)

type stubEvents struct {
	set   map[string]struct{}
	err   error
	calls int
}

func (s *stubEvents) GetInteractions(ctx context.Context, userID string) (map[string]struct{}, error) {
	s.calls++
	return s.set, s.err
}

func newFilter(t *testing.T, store *stubEvents) *Filter {
	t.Helper()
	return NewFilter(store, newBreaker(t, "events"), 50, logger.NewTestLogger(t))
}

func TestExclusionSet(t *testing.T) {
	t.Run("returns store set", func(t *testing.T) {
		f := newFilter(t, &stubEvents{set: map[string]struct{}{"A": {}}})
		set, err := f.ExclusionSet(context.Background(), "u-1")
		require.NoError(t, err)
		assert.Contains(t, set, "A")
	})

	t.Run("anonymous user skips the store", func(t *testing.T) {
		store := &stubEvents{}
		f := newFilter(t, store)
		set, err := f.ExclusionSet(context.Background(), "")
		require.NoError(t, err)
		assert.Empty(t, set)
		assert.Zero(t, store.calls)
	})

	t.Run("store failure degrades to empty set", func(t *testing.T) {
		f := newFilter(t, &stubEvents{err: fmt.Errorf("pg down")})
		set, err := f.ExclusionSet(context.Background(), "u-1")
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeEventStoreUnavailable, apperrors.CodeOf(err))
		assert.NotNil(t, set)
		assert.Empty(t, set)
	})
}

func TestFetchLimit(t *testing.T) {
	f := newFilter(t, &stubEvents{})

	assert.Equal(t, 10, f.FetchLimit(10, nil))
	assert.Equal(t, 12, f.FetchLimit(10, map[string]struct{}{"A": {}, "B": {}}))

	big := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		big[fmt.Sprintf("p-%d", i)] = struct{}{}
	}
	assert.Equal(t, 60, f.FetchLimit(10, big), "extra is capped")
}

func TestApply(t *testing.T) {
	f := newFilter(t, &stubEvents{})
	recs := []models.CombinedRecommendation{
		{ProductID: "B", FinalScore: 0.75, Rank: 1},
		{ProductID: "A", FinalScore: 0.45, Rank: 2},
		{ProductID: "C", FinalScore: 0.30, Rank: 3},
	}

	t.Run("excluded product removed and next promoted", func(t *testing.T) {
		got := f.Apply(recs, map[string]struct{}{"A": {}}, 2)
		require.Len(t, got, 2)
		assert.Equal(t, "B", got[0].ProductID)
		assert.Equal(t, "C", got[1].ProductID)
		assert.Equal(t, 1, got[0].Rank)
		assert.Equal(t, 2, got[1].Rank)
	})

	t.Run("trims to n", func(t *testing.T) {
		got := f.Apply(recs, nil, 2)
		require.Len(t, got, 2)
		assert.Equal(t, "B", got[0].ProductID)
		assert.Equal(t, "A", got[1].ProductID)
	})

	t.Run("all excluded yields empty", func(t *testing.T) {
		got := f.Apply(recs, map[string]struct{}{"A": {}, "B": {}, "C": {}}, 3)
		assert.Empty(t, got)
	})
}
