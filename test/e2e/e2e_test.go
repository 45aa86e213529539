// test/e2e/e2e_test.go
//
// End-to-end test of the recommendation server: a real HTTP round trip
// through the api handler, the registry-wired pipeline and the caches, with
// the external collaborators (Elasticsearch, collaborative filtering
// service, redis, postgres) replaced by in-process fakes.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recommendation-backend/internal/api"
	"recommendation-backend/internal/common/config"
	"recommendation-backend/internal/common/database"
	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/common/validation"
	"recommendation-backend/internal/models"
	"recommendation-backend/internal/registry"
)

type fixture struct {
	server      *httptest.Server
	redis       *miniredis.Miniredis
	esCalls     *atomic.Int64
	collabCalls *atomic.Int64
	contentDown *atomic.Bool
	collabDown  *atomic.Bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	esCalls := &atomic.Int64{}
	collabCalls := &atomic.Int64{}
	contentDown := &atomic.Bool{}
	collabDown := &atomic.Bool{}

	esSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		esCalls.Add(1)
		if contentDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{
			"hits": {
				"max_score": 2.0,
				"hits": [
					{"_id": "A", "_score": 1.8},
					{"_id": "B", "_score": 1.4}
				]
			}
		}`)
	}))
	t.Cleanup(esSrv.Close)

	collabSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		collabCalls.Add(1)
		if collabDown.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"recommendations": [{"id": "B", "score": 0.8}, {"id": "C", "score": 0.6}]}`)
	}))
	t.Cleanup(collabSrv.Close)

	mr := miniredis.RunT(t)
	seedProducts(t, mr)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	t.Cleanup(func() { db.Close() })

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{esSrv.URL}})
	require.NoError(t, err)

	cfg := serverConfig(collabSrv.URL)
	log := logger.NewTestLogger(t)

	reg := registry.New(cfg, log)
	reg.SetClients(
		&database.PostgresClient{DB: db},
		database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})),
		&database.ElasticsearchClient{Client: esClient},
	)
	t.Cleanup(reg.Shutdown)

	service, err := reg.Service()
	require.NoError(t, err)

	validator, err := validation.NewRequestValidator()
	require.NoError(t, err)

	mux := http.NewServeMux()
	api.NewHandler(service, validator, 5*time.Second, log).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &fixture{
		server:      srv,
		redis:       mr,
		esCalls:     esCalls,
		collabCalls: collabCalls,
		contentDown: contentDown,
		collabDown:  collabDown,
	}
}

// seedProducts primes the fast catalog tier so lookups never reach postgres.
func seedProducts(t *testing.T, mr *miniredis.Miniredis) {
	t.Helper()
	products := []models.Product{
		{ID: "A", Title: "Alpha Sneakers", Price: models.Price{Amount: 80, Currency: "USD"}, Category: "shoes", Available: true},
		{ID: "B", Title: "Beta Boots", Price: models.Price{Amount: 120, Currency: "USD"}, Category: "shoes", Available: true},
		{ID: "C", Title: "Gamma Tote", Price: models.Price{Amount: 60, Currency: "USD"}, Category: "bags", Available: true},
	}
	for _, p := range products {
		raw, err := json.Marshal(p)
		require.NoError(t, err)
		require.NoError(t, mr.Set("rec:product:"+p.ID, string(raw)))
	}
}

func serverConfig(collabURL string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "recommendation-backend", Environment: "test"},
		Database: config.DatabaseConfig{
			Elasticsearch: config.ElasticsearchConfig{Index: "products"},
		},
		Recommendation: config.RecommendationConfig{
			DefaultWeight:        0.5,
			MaxN:                 100,
			MaxExtra:             50,
			PreferMultiSource:    true,
			SourceTimeout:        2000,
			ExclusionRecencyDays: 90,
			DiversityQuota:       2,
			Collaborative:        config.CollaborativeConfig{BaseURL: collabURL, Timeout: 2000},
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
			Cache:         config.BreakerConfig{FailureThreshold: 3, Cooldown: 15000},
			Events:        config.BreakerConfig{FailureThreshold: 5, Cooldown: 30000},
		},
		Markets: config.MarketsConfig{
			Default:   "US",
			Supported: map[string]config.MarketConfig{"US": {Currency: "USD", Rate: 1.0}},
		},
	}
}

func recommend(t *testing.T, f *fixture, body string) (int, models.Response) {
	t.Helper()
	resp, err := http.Post(f.server.URL+"/v1/recommendations", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out models.Response
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestE2E_HybridRecommendations(t *testing.T) {
	f := newFixture(t)

	status, resp := recommend(t, f, `{"product_id":"X","n":3,"market_id":"US","query":"sneakers"}`)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, resp.Recommendations, 3)

	// content: A=0.9, B=0.7 (normalized by max_score); collab: B=0.8,
	// C=0.6. w=0.5 -> B=0.75, A=0.45, C=0.30.
	assert.Equal(t, "B", resp.Recommendations[0].ID)
	assert.Equal(t, "Beta Boots", resp.Recommendations[0].Title)
	assert.Equal(t, "hybrid", resp.Recommendations[0].Reason)
	assert.Equal(t, "USD", resp.Recommendations[0].Currency)

	assert.False(t, resp.Metadata.CacheHit)
	assert.False(t, resp.Metadata.FallbackUsed)
	assert.Equal(t, 3, resp.Metadata.Returned)
}

func TestE2E_RepeatRequestServedFromCache(t *testing.T) {
	f := newFixture(t)
	body := `{"product_id":"B","n":2,"market_id":"US","query":"sneakers"}`

	status, first := recommend(t, f, body)
	require.Equal(t, http.StatusOK, status)
	require.False(t, first.Metadata.CacheHit)

	es, collab := f.esCalls.Load(), f.collabCalls.Load()

	status, second := recommend(t, f, body)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, second.Metadata.CacheHit)
	assert.Equal(t, es, f.esCalls.Load(), "cache hit must not reach elasticsearch")
	assert.Equal(t, collab, f.collabCalls.Load(), "cache hit must not reach the collaborative service")
}

func TestE2E_CollaborativeOutageDegradesGracefully(t *testing.T) {
	f := newFixture(t)
	f.collabDown.Store(true)

	status, resp := recommend(t, f, `{"product_id":"B","n":2,"market_id":"US","query":"sneakers"}`)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, resp.Recommendations)
	assert.Equal(t, "content_similarity", resp.Recommendations[0].Reason)
	assert.Contains(t, resp.Metadata.Degraded, "source:collaborative")
}

func TestE2E_InvalidRequestRejected(t *testing.T) {
	f := newFixture(t)

	status, _ := recommend(t, f, `{"n":0,"market_id":"US"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = recommend(t, f, `{"market_id":"US"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = recommend(t, f, `{"n":2,"market_id":"XX"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}
