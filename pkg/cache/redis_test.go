package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client, skipping when unavailable.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestRedisStoreGetSet(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()
	key := Key{Category: "quote-full", Symbol: "SZ000001"}

	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get on empty store = %v, want ErrCacheMiss", err)
	}

	if err := store.Set(ctx, key, []byte(`{"price":10.5}`), 2*time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	data, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != `{"price":10.5}` {
		t.Errorf("data = %s, want stored payload", data)
	}
}

func TestRedisStoreTTLFloor(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()
	key := Key{Category: "quote-basic", Symbol: "SH600519"}

	if err := store.Set(ctx, key, []byte("x"), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	ttl, err := client.TTL(ctx, key.String()).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl < 50*time.Second {
		t.Errorf("stored TTL = %v, want floored to ~%v", ttl, MinTTL)
	}
}
