// Package resultcache caches final recommendation lists keyed by semantic
// intent plus exclusion fingerprint, with diversity metadata so follow-up
// requests can be served a disjoint, category-balanced subset.
package resultcache

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"recommendation-backend/internal/common/database"
)

// ErrMiss is returned by a BackingStore when a key is absent.
var ErrMiss = stderrors.New("cache miss")

// BackingStore is the distributed cache contract. Connection management is
// owned by the excluded collaborator; this subsystem only issues commands.
type BackingStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// PatternDeleter is the optional native pattern-deletion capability. Stores
// without it are handled by enumerate-then-delete over Keys and Delete.
type PatternDeleter interface {
	DeleteMatching(ctx context.Context, pattern string) error
}

// RedisStore backs the result cache with redis.
type RedisStore struct {
	client *database.RedisClient
}

func NewRedisStore(client *database.RedisClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		return "", err
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl)
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...)
}

func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.client.ScanKeys(ctx, pattern)
}

// DeleteMatching implements native pattern deletion via SCAN + DEL.
func (s *RedisStore) DeleteMatching(ctx context.Context, pattern string) error {
	keys, err := s.client.ScanKeys(ctx, pattern)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...)
}
