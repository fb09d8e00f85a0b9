package cache

import (
	"context"
	"sync"
	"time"
)

// memoryItem holds one stored value with its expiry.
type memoryItem struct {
	expiresAt time.Time
	data      []byte
}

// MemoryStore is a mutex-guarded in-process Store. It backs tests and
// Redis-less deployments. Expired items are dropped lazily on read and
// swept on write.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem)}
}

// Get retrieves the raw entry bytes for key.
func (s *MemoryStore) Get(_ context.Context, key Key) ([]byte, error) {
	s.mu.RLock()
	item, ok := s.items[key.String()]
	s.mu.RUnlock()

	if !ok || time.Now().After(item.expiresAt) {
		if ok {
			s.mu.Lock()
			delete(s.items, key.String())
			s.mu.Unlock()
		}
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("memory").Inc()
	return item.data, nil
}

// Set stores data under key with the floored TTL.
func (s *MemoryStore) Set(_ context.Context, key Key, data []byte, ttl time.Duration) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key.String()] = memoryItem{
		expiresAt: now.Add(normalizeTTL(ttl)),
		data:      data,
	}

	// Opportunistic sweep of expired neighbors.
	for k, item := range s.items {
		if now.After(item.expiresAt) {
			delete(s.items, k)
		}
	}

	return nil
}

// Len returns the number of live items (for tests).
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
