package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestKeyString(t *testing.T) {
	key := Key{Category: "quote-basic", Symbol: "SH600000"}
	if got, want := key.String(), "quote:quote-basic:SH600000"; got != want {
		t.Errorf("Key.String() = %q, want %q", got, want)
	}
}

func TestNormalizeTTL(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{time.Second, MinTTL},
		{0, MinTTL},
		{MinTTL, MinTTL},
		{2 * time.Minute, 2 * time.Minute},
		{17 * time.Hour, 17 * time.Hour},
	}

	for _, tt := range tests {
		if got := normalizeTTL(tt.in); got != tt.want {
			t.Errorf("normalizeTTL(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEntryRoundTrip(t *testing.T) {
	entry := &Entry{
		FetchedAt: time.Now().Truncate(time.Second),
		Data:      json.RawMessage(`{"price":12.34}`),
	}

	raw, err := entry.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	decoded, err := DecodeEntry(raw)
	if err != nil {
		t.Fatalf("DecodeEntry failed: %v", err)
	}
	if string(decoded.Data) != string(entry.Data) {
		t.Errorf("Data = %s, want %s", decoded.Data, entry.Data)
	}
}

func TestDecodeEntryInvalid(t *testing.T) {
	_, err := DecodeEntry([]byte("not json"))
	if !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("error = %v, want ErrInvalidEntry", err)
	}
}

func TestMemoryStoreGetSet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := Key{Category: "quote-basic", Symbol: "SH600000"}

	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get on empty store = %v, want ErrCacheMiss", err)
	}

	if err := store.Set(ctx, key, []byte("payload"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	data, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("data = %q, want %q", data, "payload")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	key := Key{Category: "quote-basic", Symbol: "SH600000"}

	if err := store.Set(ctx, key, []byte("stale"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Force the item into the past; the clock is not injectable.
	store.mu.Lock()
	item := store.items[key.String()]
	item.expiresAt = time.Now().Add(-time.Second)
	store.items[key.String()] = item
	store.mu.Unlock()

	if _, err := store.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get on expired entry = %v, want ErrCacheMiss", err)
	}
	if store.Len() != 0 {
		t.Error("expired entry should have been dropped on read")
	}
}
