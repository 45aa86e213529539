// Package registry is the composition root. It replaces ambient singletons
// with one explicitly constructed container: every client and pipeline
// component is built exactly once, under a lock, and injected into its
// dependents by reference.
package registry

import (
	"context"
	"sync"

	"recommendation-backend/internal/catalog"
	"recommendation-backend/internal/common/breaker"
	"recommendation-backend/internal/common/config"
	"recommendation-backend/internal/common/database"
	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/events"
	"recommendation-backend/internal/recommend"
	"recommendation-backend/internal/resultcache"
	"recommendation-backend/internal/sources"
)

// Registry owns the shared clients and the recommendation pipeline. Build
// it once at startup; accessors construct each component lazily under the
// registry lock so tests can swap clients before first use.
type Registry struct {
	cfg *config.Config
	log logger.Logger

	mu sync.Mutex

	postgres *database.PostgresClient
	redis    *database.RedisClient
	es       *database.ElasticsearchClient

	breakers map[string]*breaker.Breaker

	catalogCache *catalog.Cache
	results      *resultcache.Cache
	service      *recommend.Service
}

func New(cfg *config.Config, log logger.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		log:      log,
		breakers: make(map[string]*breaker.Breaker),
	}
}

// Connect opens the shared clients eagerly so startup fails fast on
// misconfiguration rather than on the first request.
func (r *Registry) Connect(ctx context.Context) error {
	pg, err := r.Postgres()
	if err != nil {
		return err
	}
	if err := pg.Ping(ctx); err != nil {
		return err
	}

	rdb, err := r.Redis()
	if err != nil {
		return err
	}
	if err := rdb.Ping(ctx); err != nil {
		return err
	}

	es, err := r.Elasticsearch()
	if err != nil {
		return err
	}
	return es.Ping()
}

func (r *Registry) Postgres() (*database.PostgresClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.postgres == nil {
		pg, err := database.NewPostgres(r.cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		r.postgres = pg
	}
	return r.postgres, nil
}

func (r *Registry) Redis() (*database.RedisClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.redis == nil {
		rdb, err := database.NewRedis(r.cfg.Database.Redis)
		if err != nil {
			return nil, err
		}
		r.redis = rdb
	}
	return r.redis, nil
}

func (r *Registry) Elasticsearch() (*database.ElasticsearchClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.es == nil {
		es, err := database.NewElasticsearch(r.cfg.Database.Elasticsearch)
		if err != nil {
			return nil, err
		}
		r.es = es
	}
	return r.es, nil
}

// SetClients overrides the shared clients, for tests and embedded setups.
// Must be called before the pipeline components are first built.
func (r *Registry) SetClients(pg *database.PostgresClient, rdb *database.RedisClient, es *database.ElasticsearchClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.postgres = pg
	r.redis = rdb
	r.es = es
}

// Breaker returns the named circuit breaker, one independent instance per
// protected dependency.
func (r *Registry) Breaker(name string) *breaker.Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.breakerLocked(name)
}

func (r *Registry) breakerLocked(name string) *breaker.Breaker {
	if b, ok := r.breakers[name]; ok {
		return b
	}

	var bc config.BreakerConfig
	switch name {
	case "content":
		bc = r.cfg.Breakers.Content
	case "collaborative":
		bc = r.cfg.Breakers.Collaborative
	case "catalog":
		bc = r.cfg.Breakers.Catalog
	case "cache":
		bc = r.cfg.Breakers.Cache
	default:
		bc = r.cfg.Breakers.Events
	}

	b := breaker.New(breaker.Settings{
		Name:             name,
		FailureThreshold: uint32(bc.FailureThreshold),
		Cooldown:         config.GetDuration(bc.Cooldown),
	}, r.log)
	r.breakers[name] = b
	return b
}

// Catalog returns the multi-tier product catalog cache.
func (r *Registry) Catalog() (*catalog.Cache, error) {
	pg, err := r.Postgres()
	if err != nil {
		return nil, err
	}
	rdb, err := r.Redis()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.catalogCache == nil {
		source := catalog.NewPostgresSource(pg.DB, config.GetDuration(r.cfg.Cache.Timeout), r.log)
		r.catalogCache = catalog.NewCache(rdb, source, r.breakerLocked("catalog"), r.cfg.Markets, catalog.Options{
			ProductTTL:   config.GetSeconds(r.cfg.Cache.ProductTTL),
			RedisTimeout: config.GetDuration(r.cfg.Cache.Timeout),
			LocalSize:    r.cfg.Cache.LocalSize,
			LocalTTL:     config.GetSeconds(r.cfg.Cache.LocalTTL),
			KeyPrefix:    r.cfg.Cache.KeyPrefix,
		}, r.log)
	}
	return r.catalogCache, nil
}

// Results returns the diversity-aware result cache, wired to the catalog
// cache for category keyword derivation.
func (r *Registry) Results() (*resultcache.Cache, error) {
	cat, err := r.Catalog()
	if err != nil {
		return nil, err
	}
	rdb, err := r.Redis()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		extractor := resultcache.NewIntentExtractor(cat, r.log)
		r.results = resultcache.NewCache(
			resultcache.NewRedisStore(rdb),
			r.breakerLocked("cache"),
			extractor,
			config.GetSeconds(r.cfg.Cache.ResultTTL),
			r.cfg.Cache.KeyPrefix,
			config.GetDuration(r.cfg.Cache.Timeout),
			r.log,
		)
	}
	return r.results, nil
}

// Service returns the fully wired recommendation service.
func (r *Registry) Service() (*recommend.Service, error) {
	cat, err := r.Catalog()
	if err != nil {
		return nil, err
	}
	results, err := r.Results()
	if err != nil {
		return nil, err
	}
	pg, err := r.Postgres()
	if err != nil {
		return nil, err
	}
	es, err := r.Elasticsearch()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.service == nil {
		rec := r.cfg.Recommendation

		content := sources.NewContentSimilaritySource(
			es.Client,
			r.cfg.Database.Elasticsearch.Index,
			config.GetDuration(rec.SourceTimeout),
			r.log,
		)
		collaborative := sources.NewCollaborativeSource(
			rec.Collaborative.BaseURL,
			rec.Collaborative.APIKey,
			config.GetDuration(rec.Collaborative.Timeout),
			r.log,
		)

		combiner := recommend.NewCombiner(
			content, collaborative,
			r.breakerLocked("content"), r.breakerLocked("collaborative"),
			recommend.CombinerOptions{
				SourceTimeout:     config.GetDuration(rec.SourceTimeout),
				PreferMultiSource: rec.PreferMultiSource,
			}, r.log,
		)

		eventStore := events.NewPostgresStore(pg.DB, rec.ExclusionRecencyDays, config.GetDuration(rec.SourceTimeout), r.log)
		filter := recommend.NewFilter(eventStore, r.breakerLocked("events"), rec.MaxExtra, r.log)
		fallback := recommend.NewFallbackEngine(cat, rec.DiversityQuota, r.log)

		r.service = recommend.NewService(combiner, filter, fallback, results, cat, r.cfg.Markets, rec.DefaultWeight, rec.MaxN, r.log)
	}
	return r.service, nil
}

// Reset discards the built pipeline components while keeping the clients
// open, so tests can rebuild against the same backing stores.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalogCache = nil
	r.results = nil
	r.service = nil
	r.breakers = make(map[string]*breaker.Breaker)
}

// Shutdown closes every client the registry opened.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			r.log.Warn("redis close failed", map[string]interface{}{"error": err.Error()})
		}
		r.redis = nil
	}
	if r.postgres != nil {
		if err := r.postgres.Close(); err != nil {
			r.log.Warn("postgres close failed", map[string]interface{}{"error": err.Error()})
		}
		r.postgres = nil
	}
	r.es = nil

	r.catalogCache = nil
	r.results = nil
	r.service = nil
	r.breakers = make(map[string]*breaker.Breaker)
}
