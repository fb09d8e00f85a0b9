package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"quotecache/pkg/batch"
	"quotecache/pkg/fetch"
)

// Period selects the kline aggregation.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Category returns the cache category for this period.
func (p Period) Category() string { return "kline-" + string(p) }

// klt maps a period onto the provider's aggregation code.
func (p Period) klt() string {
	switch p {
	case PeriodWeekly:
		return "102"
	case PeriodMonthly:
		return "103"
	default:
		return "101"
	}
}

// Bar is one normalized kline bar. Volume is in shares, not lots.
type Bar struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	Close    float64 `json:"close"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Volume   int64   `json:"volume"`
	Turnover float64 `json:"turnover"`
}

// klinePayload mirrors the provider's kline response envelope. Each kline
// row is a comma-joined string: date,open,close,high,low,volume,turnover.
type klinePayload struct {
	Data *struct {
		Code   string   `json:"code"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// Kline fetches the historical series for one symbol and normalizes it into
// bars. The record's symbol is the requested symbol.
func (c *Client) Kline(ctx context.Context, symbol string, period Period, limit int) (batch.Record, error) {
	id, err := secID(symbol)
	if err != nil {
		return batch.Record{Symbol: symbol, Err: err.Error()}, nil
	}
	if limit <= 0 {
		limit = 120
	}

	params := url.Values{}
	params.Set("secid", id)
	params.Set("klt", period.klt())
	params.Set("fqt", "1") // forward-adjusted prices
	params.Set("lmt", strconv.Itoa(limit))
	params.Set("fields1", "f1,f2,f3")
	params.Set("fields2", "f51,f52,f53,f54,f55,f56,f57")

	body, err := c.fetcher.Do(ctx, fetch.Request{
		Source: QuoteSource,
		URL:    c.baseURL + "/api/qt/stock/kline/get?" + params.Encode(),
		Header: browserHeader(),
	})
	if err != nil {
		return batch.Record{}, err
	}

	var payload klinePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return batch.Record{}, fmt.Errorf("parse kline payload: %w", err)
	}
	if payload.Data == nil {
		return batch.Record{Symbol: symbol, Err: "kline payload has no data section"}, nil
	}

	bars := make([]Bar, 0, len(payload.Data.Klines))
	for _, line := range payload.Data.Klines {
		bar, err := parseKlineRow(line)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("symbol", symbol).
				Msg("Skipping malformed kline row")
			continue
		}
		bars = append(bars, bar)
	}

	data, err := json.Marshal(bars)
	if err != nil {
		return batch.Record{}, fmt.Errorf("encode kline bars: %w", err)
	}
	return batch.Record{Symbol: symbol, Data: data}, nil
}

// KlineFetchFunc adapts Kline to the orchestrator's fetch contract. The
// orchestrator batches by symbol; klines are fetched per symbol upstream,
// so the fetch walks the miss list.
func (c *Client) KlineFetchFunc(period Period, limit int) batch.FetchFunc {
	return func(ctx context.Context, symbols []string) ([]batch.Record, error) {
		records := make([]batch.Record, 0, len(symbols))
		for _, symbol := range symbols {
			rec, err := c.Kline(ctx, symbol, period, limit)
			if err != nil {
				// Per-item isolation: one failed series must not sink the
				// rest of the batch.
				records = append(records, batch.Record{Symbol: symbol, Err: err.Error()})
				continue
			}
			records = append(records, rec)
		}
		return records, nil
	}
}

// parseKlineRow splits one comma-joined kline row into a Bar.
func parseKlineRow(line string) (Bar, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 7 {
		return Bar{}, fmt.Errorf("kline row has %d fields, want >= 7", len(parts))
	}

	nums := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(parts[i+1], 64)
		if err != nil {
			return Bar{}, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		nums[i] = v
	}

	return Bar{
		Date:     parts[0],
		Open:     nums[0],
		Close:    nums[1],
		High:     nums[2],
		Low:      nums[3],
		Volume:   int64(nums[4]) * sharesPerLot,
		Turnover: nums[5],
	}, nil
}
