// Package cache provides the key/value store behind the read-through quote
// cache, with a Redis backend for deployment and an in-memory backend for
// tests and Redis-less operation.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// MinTTL is the floor applied to all writes. Sub-minimum TTLs would make
// writes effectively uncached.
const MinTTL = 60 * time.Second

// Store is the abstract get/put-with-TTL contract. Implementations are safe
// for concurrent use.
type Store interface {
	// Get returns the raw entry bytes for key, or ErrCacheMiss.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores data under key for ttl (floored to MinTTL).
	Set(ctx context.Context, key Key, data []byte, ttl time.Duration) error
}

// normalizeTTL applies the MinTTL floor.
func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl < MinTTL {
		return MinTTL
	}
	return ttl
}
