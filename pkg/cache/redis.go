package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the Redis-backed Store used in deployment. TTL expiry is
// delegated to Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{client: client}
}

// Get retrieves the raw entry bytes for key.
func (s *RedisStore) Get(ctx context.Context, key Key) ([]byte, error) {
	data, err := s.client.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues("redis").Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("redis", "get").Inc()
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	CacheHits.WithLabelValues("redis").Inc()
	return data, nil
}

// Set stores data under key with the floored TTL.
func (s *RedisStore) Set(ctx context.Context, key Key, data []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key.String(), data, normalizeTTL(ttl)).Err(); err != nil {
		CacheErrors.WithLabelValues("redis", "set").Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
