// Package catalog provides multi-tier product lookup and enrichment:
// fast shared tier (redis) -> local in-process tier -> catalog source of
// truth (postgres), with market-aware pricing and availability.
package catalog

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	apperrors "recommendation-backend/internal/common/errors"
	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/models"
)

// ErrNotFound marks a product id that does not exist. Source
// implementations may return it directly or any error carrying the
// CATALOG_MISS code; the cache treats both as a successful miss.
var ErrNotFound = apperrors.NewCatalogMissError("")

// Source is the catalog source of truth, implemented by an excluded
// collaborator. TopProducts feeds the fallback strategy engine, the
// category keyword derivation and the warm-up preloader.
type Source interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	TopProducts(ctx context.Context, limit int) ([]models.Product, error)
}

// PostgresSource reads products and market overrides from the catalog
// database.
type PostgresSource struct {
	db      *sql.DB
	timeout time.Duration
	logger  logger.Logger
}

func NewPostgresSource(db *sql.DB, timeout time.Duration, log logger.Logger) *PostgresSource {
	return &PostgresSource{db: db, timeout: timeout, logger: log}
}

const productQuery = `
SELECT id, title, description, price, currency, category, available, popularity
FROM products
WHERE id = $1`

const overridesQuery = `
SELECT market_id, price, currency, available
FROM product_markets
WHERE product_id = $1`

const topProductsQuery = `
SELECT id, title, description, price, currency, category, available, popularity
FROM products
WHERE available = TRUE
ORDER BY popularity DESC, id ASC
LIMIT $1`

// GetProduct returns one product with its market overrides attached, or a
// CATALOG_MISS error when the id does not exist.
func (s *PostgresSource) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var p models.Product
	err := s.db.QueryRowContext(ctx, productQuery, id).Scan(
		&p.ID, &p.Title, &p.Description, &p.Price.Amount, &p.Price.Currency,
		&p.Category, &p.Available, &p.Popularity,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewCatalogMissError(id)
		}
		return nil, fmt.Errorf("query product %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, overridesQuery, id)
	if err != nil {
		return nil, fmt.Errorf("query market overrides for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var ov models.MarketOverride
		if err := rows.Scan(&ov.MarketID, &ov.Amount, &ov.Currency, &ov.Available); err != nil {
			return nil, fmt.Errorf("scan market override: %w", err)
		}
		if p.Overrides == nil {
			p.Overrides = make(map[string]models.MarketOverride)
		}
		p.Overrides[ov.MarketID] = ov
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market overrides: %w", err)
	}

	return &p, nil
}

// TopProducts returns the most popular available products in descending
// popularity order.
func (s *PostgresSource) TopProducts(ctx context.Context, limit int) ([]models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, topProductsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("query top products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Description, &p.Price.Amount, &p.Price.Currency,
			&p.Category, &p.Available, &p.Popularity,
		); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, nil
}
