package source

import (
	"context"

	"quotecache/pkg/batch"
)

// IndexCategory is the cache category for market index snapshots.
const IndexCategory = "index"

// Indexes fetches snapshots for market indexes (e.g. SH000001, SZ399001).
// Indexes share the provider's diff-list shape with equities, so the basic
// quote table applies unchanged.
func (c *Client) Indexes(ctx context.Context, symbols []string) ([]batch.Record, error) {
	return c.Quotes(ctx, symbols, LevelBasic)
}

// IndexFetchFunc adapts Indexes to the orchestrator's fetch contract.
func (c *Client) IndexFetchFunc() batch.FetchFunc {
	return func(ctx context.Context, symbols []string) ([]batch.Record, error) {
		return c.Indexes(ctx, symbols)
	}
}
