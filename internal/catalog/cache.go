// internal/catalog/cache.go
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"recommendation-backend/internal/common/breaker"
	"recommendation-backend/internal/common/config"
	"recommendation-backend/internal/common/database"
	apperrors "recommendation-backend/internal/common/errors"
	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/common/metrics"
	"recommendation-backend/internal/models"
)

// keywordSampleSize is how many popular products feed the category keyword
// derivation.
const keywordSampleSize = 200

// Cache is the multi-tier product lookup: fast shared tier (redis) -> local
// in-process tier -> catalog source of truth. Lookups never fail: when every
// tier is down a partial {id, incomplete} record is returned so the caller
// can render a placeholder.
type Cache struct {
	redis      *database.RedisClient
	local      *localCache
	source     Source
	breaker    *breaker.Breaker
	productTTL time.Duration
	redisTO    time.Duration
	keyPrefix  string
	markets    config.MarketsConfig
	logger     logger.Logger
}

type Options struct {
	ProductTTL   time.Duration
	RedisTimeout time.Duration
	LocalSize    int
	LocalTTL     time.Duration
	KeyPrefix    string
}

func NewCache(rdb *database.RedisClient, source Source, brk *breaker.Breaker, markets config.MarketsConfig, opts Options, log logger.Logger) *Cache {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "rec"
	}
	if opts.ProductTTL <= 0 {
		opts.ProductTTL = 10 * time.Minute
	}
	if opts.RedisTimeout <= 0 {
		opts.RedisTimeout = 500 * time.Millisecond
	}
	return &Cache{
		redis:      rdb,
		local:      newLocalCache(opts.LocalSize, opts.LocalTTL),
		source:     source,
		breaker:    brk,
		productTTL: opts.ProductTTL,
		redisTO:    opts.RedisTimeout,
		keyPrefix:  opts.KeyPrefix,
		markets:    markets,
		logger:     log.WithFields(map[string]interface{}{"component": "catalog-cache"}),
	}
}

func (c *Cache) productKey(id string) string {
	return fmt.Sprintf("%s:product:%s", c.keyPrefix, id)
}

func (c *Cache) topKey(limit int) string {
	return fmt.Sprintf("%s:top:%d", c.keyPrefix, limit)
}

// GetProduct resolves one product, market-adapted. Degrades tier by tier and
// never returns an error.
func (c *Cache) GetProduct(ctx context.Context, id, marketID string) models.Product {
	if base, ok := c.lookupBase(ctx, id); ok {
		return c.adapt(base, marketID)
	}
	return models.Product{ID: id, Incomplete: true}
}

// GetProducts enriches an ordered id list, preserving order. Missing
// products come back as incomplete placeholders rather than being dropped.
func (c *Cache) GetProducts(ctx context.Context, ids []string, marketID string) []models.Product {
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.GetProduct(ctx, id, marketID))
	}
	return out
}

func (c *Cache) lookupBase(ctx context.Context, id string) (models.Product, bool) {
	key := c.productKey(id)

	// Tier 1: fast shared cache.
	if c.redis != nil {
		rctx, cancel := context.WithTimeout(ctx, c.redisTO)
		raw, err := c.redis.Get(rctx, key)
		cancel()
		if err == nil {
			var p models.Product
			if jsonErr := json.Unmarshal([]byte(raw), &p); jsonErr == nil {
				metrics.CacheHits.WithLabelValues("product_shared").Inc()
				c.local.Set(id, p)
				return p, true
			}
		}
		metrics.CacheMisses.WithLabelValues("product_shared").Inc()
	}

	// Tier 2: local in-process cache.
	if p, ok := c.local.Get(id); ok {
		metrics.CacheHits.WithLabelValues("product_local").Inc()
		return p, true
	}
	metrics.CacheMisses.WithLabelValues("product_local").Inc()

	// Tier 3: catalog source of truth, behind its breaker. A missing
	// product is a successful call; only source failures may trip the
	// circuit.
	p, err := breaker.Do(c.breaker, func() (*models.Product, error) {
		p, err := c.source.GetProduct(ctx, id)
		if apperrors.IsCode(err, apperrors.ErrCodeCatalogMiss) {
			return nil, nil
		}
		return p, err
	})
	if err != nil {
		c.logger.Warn("catalog lookup degraded", map[string]interface{}{
			"productId": id,
			"error":     err.Error(),
		})
		return models.Product{}, false
	}
	if p == nil {
		return models.Product{}, false
	}

	c.local.Set(id, *p)
	c.writeBack(ctx, key, *p)
	return *p, true
}

// writeBack populates the fast tier after a source-of-truth hit. Best
// effort: a failed write only logs.
func (c *Cache) writeBack(ctx context.Context, key string, p models.Product) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, c.redisTO)
	defer cancel()
	if err := c.redis.Set(rctx, key, string(raw), c.productTTL); err != nil {
		c.logger.Warn("product cache write-back failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

func (c *Cache) adapt(p models.Product, marketID string) models.Product {
	market, ok := c.markets.Supported[marketID]
	if !ok {
		market = c.markets.Supported[c.markets.Default]
	}
	return p.AdaptToMarket(marketID, market.Currency, market.Rate)
}

// TopProducts returns the most popular products, cached in the fast tier.
// Used by the fallback strategy engine, category derivation and warm-up.
func (c *Cache) TopProducts(ctx context.Context, limit int) ([]models.Product, error) {
	key := c.topKey(limit)

	if c.redis != nil {
		rctx, cancel := context.WithTimeout(ctx, c.redisTO)
		raw, err := c.redis.Get(rctx, key)
		cancel()
		if err == nil {
			var products []models.Product
			if jsonErr := json.Unmarshal([]byte(raw), &products); jsonErr == nil {
				metrics.CacheHits.WithLabelValues("top_products").Inc()
				return products, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("top_products").Inc()
	}

	products, err := breaker.Do(c.breaker, func() ([]models.Product, error) {
		return c.source.TopProducts(ctx, limit)
	})
	if err != nil {
		return nil, err
	}

	if raw, jsonErr := json.Marshal(products); jsonErr == nil && c.redis != nil {
		rctx, cancel := context.WithTimeout(ctx, c.redisTO)
		_ = c.redis.Set(rctx, key, string(raw), c.productTTL)
		cancel()
	}

	return products, nil
}

// CategoryKeywords derives the category -> keyword map from the live
// catalog: each category maps to its name plus significant tokens from
// popular product titles. Callers fall back to a static table when this
// returns an error.
func (c *Cache) CategoryKeywords(ctx context.Context) (map[string][]string, error) {
	products, err := c.TopProducts(ctx, keywordSampleSize)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}

	keywords := make(map[string]map[string]struct{})
	for _, p := range products {
		cat := strings.ToLower(strings.TrimSpace(p.Category))
		if cat == "" {
			continue
		}
		set, ok := keywords[cat]
		if !ok {
			set = make(map[string]struct{})
			keywords[cat] = set
		}
		set[cat] = struct{}{}
		for _, tok := range significantTokens(p.Title) {
			set[tok] = struct{}{}
		}
	}

	out := make(map[string][]string, len(keywords))
	for cat, set := range keywords {
		words := make([]string, 0, len(set))
		for w := range set {
			words = append(words, w)
		}
		sort.Strings(words)
		out[cat] = words
	}
	return out, nil
}

var titleStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {},
	"pro": {}, "new": {}, "set": {}, "pack": {},
}

func significantTokens(title string) []string {
	fields := strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, stop := titleStopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// InvalidateProduct drops a product from both cache tiers.
func (c *Cache) InvalidateProduct(ctx context.Context, id string) {
	c.local.Remove(id)
	if c.redis != nil {
		rctx, cancel := context.WithTimeout(ctx, c.redisTO)
		defer cancel()
		_ = c.redis.Del(rctx, c.productKey(id))
	}
}
