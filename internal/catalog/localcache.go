// internal/catalog/localcache.go
package catalog

import (
	"container/list"
	"sync"
	"time"

	"recommendation-backend/internal/models"
)

// localCache is the in-process tier: a thread-safe LRU with lazy TTL
// expiration. Entries are immutable once written; a Set on an existing key
// replaces the value (last-writer-wins).
type localCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List // front = most recently used
}

type localEntry struct {
	key       string
	product   models.Product
	expiresAt time.Time
}

func newLocalCache(capacity int, ttl time.Duration) *localCache {
	if capacity <= 0 {
		capacity = 1024
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &localCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *localCache) Get(key string) (models.Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return models.Product{}, false
	}

	entry := el.Value.(*localEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		return models.Product{}, false
	}

	c.order.MoveToFront(el)
	return entry.product, true
}

func (c *localCache) Set(key string, p models.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		entry := el.Value.(*localEntry)
		entry.product = p
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&localEntry{
		key:       key,
		product:   p,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.items[key] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*localEntry).key)
		}
	}
}

func (c *localCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

func (c *localCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *localCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}
