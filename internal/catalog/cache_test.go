package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recommendation-backend/internal/common/breaker"
	"recommendation-backend/internal/common/config"
	"recommendation-backend/internal/common/database"
	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/models"
)

type fakeSource struct {
	products map[string]models.Product
	top      []models.Product
	err      error
	calls    atomic.Int64
}

func (f *fakeSource) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (f *fakeSource) TopProducts(ctx context.Context, limit int) ([]models.Product, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if limit > len(f.top) {
		limit = len(f.top)
	}
	return f.top[:limit], nil
}

func testMarkets() config.MarketsConfig {
	return config.MarketsConfig{
		Default: "US",
		Supported: map[string]config.MarketConfig{
			"US": {Currency: "USD", Rate: 1.0},
			"DE": {Currency: "EUR", Rate: 0.9},
		},
	}
}

func newTestCache(t *testing.T, src Source) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rdb.Close() })

	brk := breaker.New(breaker.Settings{
		Name:             fmt.Sprintf("catalog-%s", t.Name()),
		FailureThreshold: 3,
		Cooldown:         time.Minute,
	}, logger.NewTestLogger(t))

	cache := NewCache(rdb, src, brk, testMarkets(), Options{
		ProductTTL:   time.Minute,
		RedisTimeout: time.Second,
		LocalSize:    16,
		LocalTTL:     time.Minute,
		KeyPrefix:    "rec",
	}, logger.NewTestLogger(t))
	return cache, mr
}

func TestGetProduct_SourceHitWritesBackToFastTier(t *testing.T) {
	src := &fakeSource{products: map[string]models.Product{
		"p-1": {ID: "p-1", Title: "Shoes", Price: models.Price{Amount: 100, Currency: "USD"}, Category: "shoes", Available: true},
	}}
	cache, mr := newTestCache(t, src)

	got := cache.GetProduct(context.Background(), "p-1", "US")
	assert.Equal(t, "Shoes", got.Title)
	assert.False(t, got.Incomplete)

	raw, err := mr.Get("rec:product:p-1")
	require.NoError(t, err)
	var stored models.Product
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "p-1", stored.ID)

	// Second lookup is served from cache, not the source.
	before := src.calls.Load()
	_ = cache.GetProduct(context.Background(), "p-1", "US")
	assert.Equal(t, before, src.calls.Load())
}

func TestGetProduct_SharedTierHit(t *testing.T) {
	src := &fakeSource{}
	cache, mr := newTestCache(t, src)

	raw, _ := json.Marshal(models.Product{ID: "p-9", Title: "Cached", Price: models.Price{Amount: 10, Currency: "USD"}})
	require.NoError(t, mr.Set("rec:product:p-9", string(raw)))

	got := cache.GetProduct(context.Background(), "p-9", "US")
	assert.Equal(t, "Cached", got.Title)
	assert.Zero(t, src.calls.Load())
}

func TestGetProduct_MarketOverrideApplied(t *testing.T) {
	src := &fakeSource{products: map[string]models.Product{
		"p-1": {
			ID: "p-1", Title: "Shoes",
			Price: models.Price{Amount: 100, Currency: "USD"}, Available: true,
			Overrides: map[string]models.MarketOverride{
				"DE": {MarketID: "DE", Amount: 95, Currency: "EUR", Available: true},
			},
		},
	}}
	cache, _ := newTestCache(t, src)

	got := cache.GetProduct(context.Background(), "p-1", "DE")
	assert.True(t, got.MarketAdapted)
	assert.Equal(t, 95.0, got.Price.Amount)
	assert.Equal(t, "EUR", got.Price.Currency)
}

func TestGetProduct_NoOverrideFallsBackToBaseWithConversion(t *testing.T) {
	src := &fakeSource{products: map[string]models.Product{
		"p-1": {ID: "p-1", Title: "Shoes", Price: models.Price{Amount: 100, Currency: "USD"}, Available: true},
	}}
	cache, _ := newTestCache(t, src)

	got := cache.GetProduct(context.Background(), "p-1", "DE")
	assert.False(t, got.MarketAdapted)
	assert.Equal(t, "EUR", got.Price.Currency)
	assert.Equal(t, 90.0, got.Price.Amount)
}

func TestGetProduct_AllTiersFailReturnsIncomplete(t *testing.T) {
	src := &fakeSource{err: fmt.Errorf("catalog down")}
	cache, mr := newTestCache(t, src)
	mr.Close() // fast tier unreachable too

	got := cache.GetProduct(context.Background(), "p-1", "US")
	assert.True(t, got.Incomplete)
	assert.Equal(t, "p-1", got.ID)
}

func TestGetProducts_PreservesOrder(t *testing.T) {
	src := &fakeSource{products: map[string]models.Product{
		"p-1": {ID: "p-1", Title: "A", Price: models.Price{Amount: 1, Currency: "USD"}},
		"p-2": {ID: "p-2", Title: "B", Price: models.Price{Amount: 2, Currency: "USD"}},
	}}
	cache, _ := newTestCache(t, src)

	got := cache.GetProducts(context.Background(), []string{"p-2", "missing", "p-1"}, "US")
	require.Len(t, got, 3)
	assert.Equal(t, "p-2", got[0].ID)
	assert.True(t, got[1].Incomplete)
	assert.Equal(t, "p-1", got[2].ID)
}

func TestCategoryKeywords_DerivedFromCatalog(t *testing.T) {
	src := &fakeSource{top: []models.Product{
		{ID: "p-1", Title: "Trail Running Shoes", Category: "shoes"},
		{ID: "p-2", Title: "Leather Hiking Boots", Category: "shoes"},
		{ID: "p-3", Title: "Canvas Tote Bag", Category: "bags"},
	}}
	cache, _ := newTestCache(t, src)

	kw, err := cache.CategoryKeywords(context.Background())
	require.NoError(t, err)
	require.Contains(t, kw, "shoes")
	require.Contains(t, kw, "bags")
	assert.Contains(t, kw["shoes"], "running")
	assert.Contains(t, kw["shoes"], "hiking")
	assert.Contains(t, kw["bags"], "canvas")
	assert.Contains(t, kw["bags"], "bags")
}

func TestInvalidateProduct_DropsBothTiers(t *testing.T) {
	src := &fakeSource{products: map[string]models.Product{
		"p-1": {ID: "p-1", Title: "Old Title", Price: models.Price{Amount: 10, Currency: "USD"}, Available: true},
	}}
	cache, mr := newTestCache(t, src)

	_ = cache.GetProduct(context.Background(), "p-1", "US")
	require.True(t, mr.Exists("rec:product:p-1"))

	cache.InvalidateProduct(context.Background(), "p-1")
	assert.False(t, mr.Exists("rec:product:p-1"))

	// Next lookup goes back to the source.
	src.products["p-1"] = models.Product{ID: "p-1", Title: "New Title", Price: models.Price{Amount: 12, Currency: "USD"}, Available: true}
	got := cache.GetProduct(context.Background(), "p-1", "US")
	assert.Equal(t, "New Title", got.Title)
}

func TestCategoryKeywords_EmptyCatalogIsError(t *testing.T) {
	cache, _ := newTestCache(t, &fakeSource{})
	_, err := cache.CategoryKeywords(context.Background())
	require.Error(t, err)
}
