package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"quotecache/pkg/batch"
	"quotecache/pkg/fetch"
)

// RankDimension selects the provider field a rank board is sorted by.
type RankDimension string

const (
	RankByChangePct RankDimension = "change_pct"
	RankByTurnover  RankDimension = "turnover"
	RankByVolume    RankDimension = "volume"
)

// RankCategory is the cache category for rank boards.
const RankCategory = "rank"

// BoardCategory is the cache category for concept-board leaders.
const BoardCategory = "board"

// fid maps a dimension onto the provider's sort-field code.
func (d RankDimension) fid() (string, error) {
	switch d {
	case RankByChangePct:
		return "f3", nil
	case RankByTurnover:
		return "f6", nil
	case RankByVolume:
		return "f5", nil
	}
	return "", fmt.Errorf("unknown rank dimension %q", d)
}

// allEquities is the provider's market filter covering SH and SZ equities.
const allEquities = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23"

// Rank fetches the top count instruments sorted descending by the
// dimension. The record is keyed by the dimension name and carries an array
// of full-level rows.
func (c *Client) Rank(ctx context.Context, dimension RankDimension, count int) (batch.Record, error) {
	fid, err := dimension.fid()
	if err != nil {
		return batch.Record{Symbol: string(dimension), Err: err.Error()}, nil
	}
	return c.board(ctx, string(dimension), fid, allEquities, count)
}

// BoardLeaders fetches the leading instruments of one concept/tag board
// (e.g. "BK0493"), sorted by percent change. The record is keyed by tag.
func (c *Client) BoardLeaders(ctx context.Context, tag string, count int) (batch.Record, error) {
	if tag == "" {
		return batch.Record{Symbol: tag, Err: "empty board tag"}, nil
	}
	return c.board(ctx, tag, "f3", "b:"+tag, count)
}

// RankFetchFunc adapts Rank to the orchestrator's fetch contract: each
// "symbol" is a dimension name.
func (c *Client) RankFetchFunc(count int) batch.FetchFunc {
	return func(ctx context.Context, dimensions []string) ([]batch.Record, error) {
		records := make([]batch.Record, 0, len(dimensions))
		for _, dim := range dimensions {
			rec, err := c.Rank(ctx, RankDimension(dim), count)
			if err != nil {
				records = append(records, batch.Record{Symbol: dim, Err: err.Error()})
				continue
			}
			records = append(records, rec)
		}
		return records, nil
	}
}

// BoardFetchFunc adapts BoardLeaders to the orchestrator's fetch contract:
// each "symbol" is a board tag.
func (c *Client) BoardFetchFunc(count int) batch.FetchFunc {
	return func(ctx context.Context, tags []string) ([]batch.Record, error) {
		records := make([]batch.Record, 0, len(tags))
		for _, tag := range tags {
			rec, err := c.BoardLeaders(ctx, tag, count)
			if err != nil {
				records = append(records, batch.Record{Symbol: tag, Err: err.Error()})
				continue
			}
			records = append(records, rec)
		}
		return records, nil
	}
}

// board runs one clist query and normalizes the rows with the full quote
// table.
func (c *Client) board(ctx context.Context, key, fid, fs string, count int) (batch.Record, error) {
	if count <= 0 {
		count = 10
	}

	params := url.Values{}
	params.Set("pn", "1")
	params.Set("pz", strconv.Itoa(count))
	params.Set("po", "1") // descending
	params.Set("fid", fid)
	params.Set("fs", fs)
	params.Set("fltt", "1")
	params.Set("invt", "2")
	params.Set("fields", fieldCodes(fullFields))

	body, err := c.fetcher.Do(ctx, fetch.Request{
		Source: QuoteSource,
		URL:    c.baseURL + "/api/qt/clist/get?" + params.Encode(),
		Header: browserHeader(),
	})
	if err != nil {
		return batch.Record{}, err
	}

	var payload listPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return batch.Record{}, fmt.Errorf("parse board payload: %w", err)
	}
	if payload.Data == nil {
		return batch.Record{Symbol: key, Err: "board payload has no data section"}, nil
	}

	rows := make([]map[string]interface{}, 0, len(payload.Data.Diff))
	for _, diff := range payload.Data.Diff {
		symbol, record := c.normalizeDiff(diff, fullFields)
		record["symbol"] = symbol
		rows = append(rows, record)
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return batch.Record{}, fmt.Errorf("encode board rows: %w", err)
	}
	return batch.Record{Symbol: key, Data: data}, nil
}
