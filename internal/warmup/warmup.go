// Package warmup primes the product caches at startup so the first requests
// after a deploy do not all fall through to the catalog source.
package warmup

import (
	"context"
	"sync"
	"time"

	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/models"
)

// Catalog is the slice of the catalog cache the warmer drives.
type Catalog interface {
	TopProducts(ctx context.Context, limit int) ([]models.Product, error)
	GetProduct(ctx context.Context, id, marketID string) models.Product
	CategoryKeywords(ctx context.Context) (map[string][]string, error)
}

// Warmer pre-populates the product cache tiers and the category keyword map
// using a fixed-size worker pool.
type Warmer struct {
	catalog     Catalog
	marketID    string
	concurrency int
	topN        int
	logger      logger.Logger
}

func New(catalog Catalog, marketID string, concurrency, topN int, log logger.Logger) *Warmer {
	if concurrency <= 0 {
		concurrency = 8
	}
	if topN <= 0 {
		topN = 100
	}
	return &Warmer{
		catalog:     catalog,
		marketID:    marketID,
		concurrency: concurrency,
		topN:        topN,
		logger:      log.WithFields(map[string]interface{}{"component": "warmup"}),
	}
}

// Run warms the caches. Failures are logged, not returned: a cold cache is
// a degraded start, never a failed one.
func (w *Warmer) Run(ctx context.Context) {
	start := time.Now()

	products, err := w.catalog.TopProducts(ctx, w.topN)
	if err != nil {
		w.logger.Warn("warmup skipped, catalog unreachable", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	ids := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				w.catalog.GetProduct(ctx, id, w.marketID)
			}
		}()
	}

	for _, p := range products {
		select {
		case ids <- p.ID:
		case <-ctx.Done():
			close(ids)
			wg.Wait()
			return
		}
	}
	close(ids)
	wg.Wait()

	// Category keyword derivation reads the same popular set; priming it
	// here keeps the first intent extraction off the static table.
	if _, err := w.catalog.CategoryKeywords(ctx); err != nil {
		w.logger.Warn("category keyword warmup failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	w.logger.Info("cache warmup complete", map[string]interface{}{
		"products":    len(products),
		"concurrency": w.concurrency,
		"took_ms":     time.Since(start).Milliseconds(),
	})
}
