package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Entry is the stored envelope for one cached record. Entries are written
// whole on fetch and overwritten on refresh, never partially updated.
type Entry struct {
	// FetchedAt is when the record was obtained from upstream.
	FetchedAt time.Time `json:"fetched_at"`

	// Data is the normalized record, opaque to the cache.
	Data json.RawMessage `json:"data"`
}

// Marshal serializes the entry for storage.
func (e *Entry) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

// DecodeEntry parses stored bytes back into an Entry.
func DecodeEntry(data []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &entry, nil
}

// Key identifies one cached record: a data category plus a symbol.
type Key struct {
	// Category is the record family, e.g. "quote-basic", "kline-daily".
	Category string

	// Symbol is the exchange-qualified instrument code, e.g. "SH600000".
	Symbol string
}

// String generates a deterministic cache key string.
// Format: quote:category:symbol, e.g. quote:quote-basic:SH600000
func (k Key) String() string {
	return strings.Join([]string{"quote", k.Category, k.Symbol}, ":")
}
