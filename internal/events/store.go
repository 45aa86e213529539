// Package events reads aggregated user interaction sets from the external
// event store. Interaction events (view/cart/purchase) are owned entirely by
// that store; this subsystem only derives per-request exclusion sets from
// them and never persists them locally.
package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"recommendation-backend/internal/common/logger"
)

// Store returns the set of product ids a user has interacted with recently.
type Store interface {
	GetInteractions(ctx context.Context, userID string) (map[string]struct{}, error)
}

// PostgresStore aggregates interaction rows from the shared events database.
type PostgresStore struct {
	db          *sql.DB
	recencyDays int
	timeout     time.Duration
	logger      logger.Logger
}

func NewPostgresStore(db *sql.DB, recencyDays int, timeout time.Duration, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:          db,
		recencyDays: recencyDays,
		timeout:     timeout,
		logger:      log,
	}
}

const interactionsQuery = `
SELECT DISTINCT product_id
FROM user_interactions
WHERE user_id = $1
  AND event_type IN ('view', 'cart', 'purchase')
  AND occurred_at > NOW() - ($2 * INTERVAL '1 day')`

// GetInteractions returns the recency-bounded exclusion set for a user. An
// empty user id or an empty result is not an error; it means no exclusions.
func (s *PostgresStore) GetInteractions(ctx context.Context, userID string) (map[string]struct{}, error) {
	if userID == "" {
		return map[string]struct{}{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, interactionsQuery, userID, s.recencyDays)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	interactions := make(map[string]struct{})
	for rows.Next() {
		var productID string
		if err := rows.Scan(&productID); err != nil {
			return nil, fmt.Errorf("scan interaction row: %w", err)
		}
		interactions[productID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interaction rows: %w", err)
	}

	return interactions, nil
}
