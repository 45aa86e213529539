// internal/resultcache/cache.go
package resultcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"recommendation-backend/internal/common/breaker"
	apperrors "recommendation-backend/internal/common/errors"
	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/common/metrics"
)

// Item is one cached recommendation with enough context to rebuild the
// response without re-invoking the candidate sources.
type Item struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Sources  []string `json:"sources"`
	Reason   string   `json:"reason"`
	Category string   `json:"category,omitempty"`
}

// Entry is a cached result list plus its diversity metadata. Entries are
// immutable once written; key collisions are last-writer-wins under TTL.
type Entry struct {
	Items     []Item         `json:"items"`
	Histogram map[string]int `json:"histogram"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEntry builds an entry and its category histogram from items.
func NewEntry(items []Item) Entry {
	hist := make(map[string]int)
	for _, it := range items {
		if it.Category != "" {
			hist[it.Category]++
		}
	}
	return Entry{Items: items, Histogram: hist, CreatedAt: time.Now().UTC()}
}

// ProductIDs returns the ordered id list of the entry.
func (e Entry) ProductIDs() []string {
	ids := make([]string, len(e.Items))
	for i, it := range e.Items {
		ids[i] = it.ID
	}
	return ids
}

// Cache is the diversity-aware result cache. All backing store calls run
// behind the cache breaker with their own timeout; a failing store means
// cache bypass, never a request failure.
type Cache struct {
	store     BackingStore
	breaker   *breaker.Breaker
	extractor *IntentExtractor
	ttl       time.Duration
	prefix    string
	timeout   time.Duration
	logger    logger.Logger
}

func NewCache(store BackingStore, brk *breaker.Breaker, extractor *IntentExtractor, ttl time.Duration, prefix string, timeout time.Duration, log logger.Logger) *Cache {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	if prefix == "" {
		prefix = "rec"
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Cache{
		store:     store,
		breaker:   brk,
		extractor: extractor,
		ttl:       ttl,
		prefix:    prefix,
		timeout:   timeout,
		logger:    log.WithFields(map[string]interface{}{"component": "result-cache"}),
	}
}

// Extractor exposes the intent extractor for callers that need intent
// introspection (follow-up handling).
func (c *Cache) Extractor() *IntentExtractor {
	return c.extractor
}

// Key derives the semantic intent cache key for a query and exclusion set.
func (c *Cache) Key(ctx context.Context, query string, exclusions map[string]struct{}) (string, string) {
	intent := c.extractor.Intent(ctx, query)
	return c.KeyFor(intent, exclusions), intent
}

// KeyFor builds the cache key for an already-derived intent.
func (c *Cache) KeyFor(intent string, exclusions map[string]struct{}) string {
	return fmt.Sprintf("%s:result:%s:%s", c.prefix, intent, Fingerprint(exclusions))
}

// Get returns the cached entry for key. A miss returns (nil, nil); a store
// failure returns a CACHE_UNAVAILABLE error the caller treats as a miss.
func (c *Cache) Get(ctx context.Context, key string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// A miss is a successful call as far as the breaker is concerned; only
	// store failures may trip the circuit.
	type getResult struct {
		raw  string
		miss bool
	}
	res, err := breaker.Do(c.breaker, func() (getResult, error) {
		raw, err := c.store.Get(ctx, key)
		if err == ErrMiss {
			return getResult{miss: true}, nil
		}
		return getResult{raw: raw}, err
	})
	if err != nil {
		metrics.CacheMisses.WithLabelValues("result").Inc()
		c.logger.Warn("result cache read degraded", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return nil, apperrors.NewCacheUnavailableError(err)
	}
	if res.miss {
		metrics.CacheMisses.WithLabelValues("result").Inc()
		return nil, nil
	}

	var entry Entry
	if err := json.Unmarshal([]byte(res.raw), &entry); err != nil {
		// Corrupt entry: drop it and treat as a miss.
		_ = c.store.Delete(ctx, key)
		metrics.CacheMisses.WithLabelValues("result").Inc()
		return nil, nil
	}

	metrics.CacheHits.WithLabelValues("result").Inc()
	return &entry, nil
}

// Put stores an entry under key, best effort.
func (c *Cache) Put(ctx context.Context, key string, entry Entry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.store.Set(ctx, key, string(raw), c.ttl)
	})
	if err != nil {
		c.logger.Warn("result cache write degraded", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// InvalidatePattern removes every entry matching a glob pattern, used when
// the catalog category taxonomy changes. Stores with native pattern
// deletion handle it directly; otherwise the cache enumerates keys and
// deletes them one batch at a time.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) error {
	if pd, ok := c.store.(PatternDeleter); ok {
		return pd.DeleteMatching(ctx, pattern)
	}

	keys, err := c.store.Keys(ctx, pattern)
	if err != nil {
		return fmt.Errorf("enumerate keys for %q: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.Delete(ctx, keys...)
}

// InvalidateCategoryIntents drops every category-derived result bucket.
func (c *Cache) InvalidateCategoryIntents(ctx context.Context) error {
	return c.InvalidatePattern(ctx, fmt.Sprintf("%s:result:%s*", c.prefix, categoryPrefix))
}

// DiverseSubset picks up to n items from entry that are disjoint from
// previous, balanced across categories. Deterministic: categories are
// visited in sorted order, round-robin, items in their stored order.
func DiverseSubset(entry *Entry, previous map[string]struct{}, n int) []Item {
	if entry == nil || n <= 0 {
		return nil
	}

	byCategory := make(map[string][]Item)
	var categories []string
	for _, it := range entry.Items {
		if _, seen := previous[it.ID]; seen {
			continue
		}
		cat := it.Category
		if cat == "" {
			cat = "~uncategorized"
		}
		if _, ok := byCategory[cat]; !ok {
			categories = append(categories, cat)
		}
		byCategory[cat] = append(byCategory[cat], it)
	}
	sort.Strings(categories)

	var out []Item
	for len(out) < n {
		progressed := false
		for _, cat := range categories {
			if len(byCategory[cat]) == 0 {
				continue
			}
			out = append(out, byCategory[cat][0])
			byCategory[cat] = byCategory[cat][1:]
			progressed = true
			if len(out) == n {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return out
}
