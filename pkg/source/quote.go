package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"quotecache/pkg/batch"
	"quotecache/pkg/fetch"
)

// Level selects the quote field set.
type Level string

const (
	// LevelBasic covers price, change, and volume.
	LevelBasic Level = "basic"

	// LevelFull adds session extremes, valuation, and the quote timestamp.
	LevelFull Level = "full"
)

// Category returns the cache category for this level.
func (l Level) Category() string { return "quote-" + string(l) }

// fieldKind drives the boundary conversion for one provider field.
type fieldKind int

const (
	kindString  fieldKind = iota
	kindPrice             // fixed-point, divide by priceScale
	kindPercent           // fixed-point, divide by priceScale
	kindLots              // lot-denominated volume, multiply by sharesPerLot
	kindRaw               // passed through unchanged
	kindEpoch             // epoch seconds, rendered in the civil timezone
)

// fieldSpec is one entry of the fixed code-to-label table. The mapping must
// be preserved exactly for output compatibility.
type fieldSpec struct {
	code  string
	label string
	kind  fieldKind
}

// basicFields is the code→label table for LevelBasic.
var basicFields = []fieldSpec{
	{"f12", "code", kindString},
	{"f14", "name", kindString},
	{"f2", "price", kindPrice},
	{"f3", "change_pct", kindPercent},
	{"f4", "change", kindPrice},
	{"f5", "volume", kindLots},
	{"f6", "turnover", kindRaw},
	{"f18", "prev_close", kindPrice},
}

// fullFields extends basicFields for LevelFull.
var fullFields = append(append([]fieldSpec{}, basicFields...),
	fieldSpec{"f17", "open", kindPrice},
	fieldSpec{"f15", "high", kindPrice},
	fieldSpec{"f16", "low", kindPrice},
	fieldSpec{"f8", "turnover_rate", kindPercent},
	fieldSpec{"f9", "pe_ratio", kindPercent},
	fieldSpec{"f20", "market_cap", kindRaw},
	fieldSpec{"f21", "float_cap", kindRaw},
	fieldSpec{"f124", "time", kindEpoch},
)

func fieldsForLevel(level Level) []fieldSpec {
	if level == LevelFull {
		return fullFields
	}
	return basicFields
}

// listPayload mirrors the provider's diff-list response envelope.
type listPayload struct {
	Data *struct {
		Total int                      `json:"total"`
		Diff  []map[string]interface{} `json:"diff"`
	} `json:"data"`
}

// Quotes fetches realtime quotes for the given exchange-qualified symbols
// in one provider call and normalizes each diff item into a named-field
// record. Symbols the provider does not return are simply absent from the
// result; malformed symbols yield inline error records.
func (c *Client) Quotes(ctx context.Context, symbols []string, level Level) ([]batch.Record, error) {
	specs := fieldsForLevel(level)

	var records []batch.Record
	var secIDs []string
	for _, symbol := range symbols {
		id, err := secID(symbol)
		if err != nil {
			records = append(records, batch.Record{Symbol: symbol, Err: err.Error()})
			continue
		}
		secIDs = append(secIDs, id)
	}
	if len(secIDs) == 0 {
		return records, nil
	}

	params := url.Values{}
	params.Set("fltt", "1") // raw fixed-point integers
	params.Set("invt", "2")
	params.Set("fields", fieldCodes(specs))
	params.Set("secids", strings.Join(secIDs, ","))

	body, err := c.fetcher.Do(ctx, fetch.Request{
		Source: QuoteSource,
		URL:    c.baseURL + "/api/qt/ulist.np/get?" + params.Encode(),
		Header: browserHeader(),
	})
	if err != nil {
		return nil, err
	}

	var payload listPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse quote payload: %w", err)
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("quote payload has no data section")
	}

	for _, diff := range payload.Data.Diff {
		symbol, record := c.normalizeDiff(diff, specs)
		data, err := json.Marshal(record)
		if err != nil {
			records = append(records, batch.Record{Symbol: symbol, Err: fmt.Sprintf("encode record: %v", err)})
			continue
		}
		records = append(records, batch.Record{Symbol: symbol, Data: data})
	}

	return records, nil
}

// QuoteFetchFunc adapts Quotes to the orchestrator's fetch contract.
func (c *Client) QuoteFetchFunc(level Level) batch.FetchFunc {
	return func(ctx context.Context, symbols []string) ([]batch.Record, error) {
		return c.Quotes(ctx, symbols, level)
	}
}

// normalizeDiff converts one terse diff item into a named-field record and
// recovers its exchange-qualified symbol.
func (c *Client) normalizeDiff(diff map[string]interface{}, specs []fieldSpec) (string, map[string]interface{}) {
	record := make(map[string]interface{}, len(specs))

	for _, spec := range specs {
		raw, ok := diff[spec.code]
		if !ok {
			continue
		}

		switch spec.kind {
		case kindString:
			if s, ok := raw.(string); ok {
				record[spec.label] = s
			}
		case kindPrice, kindPercent:
			if v, ok := toFloat(raw); ok {
				record[spec.label] = v / priceScale
			} else {
				record[spec.label] = nil // suspended instruments report "-"
			}
		case kindLots:
			if v, ok := toFloat(raw); ok {
				record[spec.label] = int64(v) * sharesPerLot
			} else {
				record[spec.label] = nil
			}
		case kindEpoch:
			if v, ok := toFloat(raw); ok {
				record[spec.label] = c.civilTimestamp(int64(v))
			}
		default:
			record[spec.label] = raw
		}
	}

	market := 0
	if v, ok := toFloat(diff["f13"]); ok {
		market = int(v)
	}
	code, _ := diff["f12"].(string)

	return symbolFromDiff(market, code), record
}

// fieldCodes joins the table's codes plus the market flag needed to rebuild
// symbols.
func fieldCodes(specs []fieldSpec) string {
	codes := make([]string, 0, len(specs)+1)
	for _, spec := range specs {
		codes = append(codes, spec.code)
	}
	codes = append(codes, "f13")
	return strings.Join(codes, ",")
}

// toFloat extracts a numeric value; providers report suspended fields as
// the string "-".
func toFloat(raw interface{}) (float64, bool) {
	v, ok := raw.(float64)
	return v, ok
}
