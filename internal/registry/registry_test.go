package registry

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recommendation-backend/internal/common/config"
	"recommendation-backend/internal/common/database"
	"recommendation-backend/internal/common/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{
			Elasticsearch: config.ElasticsearchConfig{Index: "products"},
		},
		Recommendation: config.RecommendationConfig{
			DefaultWeight:        0.5,
			MaxN:                 100,
			MaxExtra:             50,
			SourceTimeout:        2000,
			ExclusionRecencyDays: 90,
			DiversityQuota:       2,
			Collaborative:        config.CollaborativeConfig{BaseURL: "http://collab.local", Timeout: 2000},
		},
		Cache: config.CacheConfig{
			ResultTTL:  300,
			ProductTTL: 600,
			LocalSize:  64,
			LocalTTL:   300,
			KeyPrefix:  "rec",
			Timeout:    500,
		},
		Breakers: config.BreakersConfig{
			Content:       config.BreakerConfig{FailureThreshold: 5, Cooldown: 30000},
			Collaborative: config.BreakerConfig{FailureThreshold: 5, Cooldown: 30000},
			Catalog:       config.BreakerConfig{FailureThreshold: 5, Cooldown: 30000},
			Cache:         config.BreakerConfig{FailureThreshold: 5, Cooldown: 30000},
			Events:        config.BreakerConfig{FailureThreshold: 5, Cooldown: 30000},
		},
		Markets: config.MarketsConfig{
			Default:   "US",
			Supported: map[string]config.MarketConfig{"US": {Currency: "USD", Rate: 1.0}},
		},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{"http://127.0.0.1:9"}})
	require.NoError(t, err)

	r := New(testConfig(), logger.NewTestLogger(t))
	r.SetClients(&database.PostgresClient{DB: db}, rdb, &database.ElasticsearchClient{Client: es})
	return r
}

func TestRegistry_ComponentsAreSingletons(t *testing.T) {
	r := newTestRegistry(t)

	svc1, err := r.Service()
	require.NoError(t, err)
	svc2, err := r.Service()
	require.NoError(t, err)
	assert.Same(t, svc1, svc2)

	cat1, err := r.Catalog()
	require.NoError(t, err)
	cat2, err := r.Catalog()
	require.NoError(t, err)
	assert.Same(t, cat1, cat2)

	res1, err := r.Results()
	require.NoError(t, err)
	res2, err := r.Results()
	require.NoError(t, err)
	assert.Same(t, res1, res2)
}

func TestRegistry_BreakersAreIndependentPerName(t *testing.T) {
	r := newTestRegistry(t)

	content := r.Breaker("content")
	collab := r.Breaker("collaborative")
	assert.NotSame(t, content, collab)
	assert.Same(t, content, r.Breaker("content"))
}

func TestRegistry_ResetRebuildsOnSameClients(t *testing.T) {
	r := newTestRegistry(t)

	svc1, err := r.Service()
	require.NoError(t, err)

	r.Reset()

	svc2, err := r.Service()
	require.NoError(t, err)
	assert.NotSame(t, svc1, svc2)
}

func TestRegistry_ShutdownResetsComponents(t *testing.T) {
	r := newTestRegistry(t)

	svc1, err := r.Service()
	require.NoError(t, err)

	r.Shutdown()

	// After shutdown a fresh set of clients can back a new pipeline.
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mr := miniredis.RunT(t)
	rdb := database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{"http://127.0.0.1:9"}})
	require.NoError(t, err)
	r.SetClients(&database.PostgresClient{DB: db}, rdb, &database.ElasticsearchClient{Client: es})

	svc2, err := r.Service()
	require.NoError(t, err)
	assert.NotSame(t, svc1, svc2)
}
