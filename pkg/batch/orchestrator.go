// Package batch implements the read-through, batch-aware caching core: per
// key cache lookup, partial-miss fetch, adaptive TTL selection, and
// best-effort write-back, preserving input order and per-item failure
// isolation.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"quotecache/pkg/cache"
)

// Prometheus metrics for batch orchestration.
var (
	batchSymbolsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_batch_symbols_total",
		Help: "Per-symbol outcomes across batch lookups (hit, fetched, failed)",
	}, []string{"outcome"})

	batchAllCachedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quote_batch_all_cached_total",
		Help: "Batches served entirely from cache",
	})

	batchWriteBackErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quote_batch_writeback_errors_total",
		Help: "Best-effort cache write-backs that failed",
	})
)

// defaultWriteWorkers bounds write-back concurrency.
const defaultWriteWorkers = 8

// Record is one per-symbol outcome from an upstream fetch. Err carries an
// upstream error marker; a record with Err set is never cached.
type Record struct {
	Symbol string
	Data   json.RawMessage
	Err    string
}

// FetchFunc fetches records for the given missing symbols in one upstream
// call. It may return fewer records than symbols; absent symbols become
// per-item failures, never a batch failure.
type FetchFunc func(ctx context.Context, symbols []string) ([]Record, error)

// Result is one per-symbol outcome in a batch response, either data or an
// inline error message.
type Result struct {
	Symbol string          `json:"symbol"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// OK reports whether the result carries data.
func (r Result) OK() bool { return r.Error == "" }

// Response is an ordered batch response: exactly one result per requested
// symbol, in request order.
type Response struct {
	Results []Result `json:"results"`

	// AllFromCache is true when every symbol was served from cache.
	AllFromCache bool `json:"all_from_cache"`
}

// TTLSource computes the cache validity window for records fetched at a
// given instant. *calendar.Calendar satisfies it.
type TTLSource interface {
	AdaptiveTTL(ctx context.Context, t time.Time) time.Duration
}

// Orchestrator is the read-through batch cache.
type Orchestrator struct {
	store        cache.Store
	ttl          TTLSource
	logger       zerolog.Logger
	writeWorkers int
}

// NewOrchestrator creates an orchestrator over the given store and TTL
// source.
func NewOrchestrator(store cache.Store, ttl TTLSource, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:        store,
		ttl:          ttl,
		logger:       logger,
		writeWorkers: defaultWriteWorkers,
	}
}

// Get serves the requested symbols read-through: cached symbols come from
// the store, the misses are fetched in a single call, cacheable fetches are
// written back with one shared TTL, and results are merged back into request
// order. Per-symbol failures surface as inline error results; Get itself
// fails only on context cancellation.
func (o *Orchestrator) Get(ctx context.Context, category string, symbols []string, fetchMissing FetchFunc) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return &Response{Results: []Result{}, AllFromCache: true}, nil
	}

	unique := dedupe(symbols)
	hits := o.readAll(ctx, category, unique)

	var misses []string
	for _, sym := range unique {
		if _, ok := hits[sym]; !ok {
			misses = append(misses, sym)
		}
	}

	fetched := make(map[string]Record, len(misses))
	if len(misses) > 0 {
		// One upstream call for the whole miss list; never one per symbol.
		records, err := fetchMissing(ctx, misses)
		if err != nil {
			o.logger.Warn().
				Err(err).
				Str("category", category).
				Int("misses", len(misses)).
				Msg("Miss fetch failed, returning per-symbol errors")
			for _, sym := range misses {
				fetched[sym] = Record{Symbol: sym, Err: err.Error()}
			}
		} else {
			for _, rec := range records {
				fetched[rec.Symbol] = rec
			}
			o.writeBack(ctx, category, records)
		}
	}

	results := make([]Result, 0, len(symbols))
	for _, sym := range symbols {
		results = append(results, o.resolve(sym, hits, fetched))
	}

	allFromCache := len(misses) == 0
	if allFromCache {
		batchAllCachedTotal.Inc()
	}

	o.logger.Debug().
		Str("category", category).
		Int("symbols", len(symbols)).
		Int("misses", len(misses)).
		Bool("all_from_cache", allFromCache).
		Msg("Batch lookup complete")

	return &Response{Results: results, AllFromCache: allFromCache}, nil
}

// readAll issues store reads for all keys concurrently. Store errors degrade
// to misses so the batch can proceed on fetch alone.
func (o *Orchestrator) readAll(ctx context.Context, category string, symbols []string) map[string]json.RawMessage {
	type readResult struct {
		symbol string
		data   json.RawMessage
	}

	resultChan := make(chan readResult, len(symbols))
	var wg sync.WaitGroup

	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()

			raw, err := o.store.Get(ctx, cache.Key{Category: category, Symbol: sym})
			if err != nil {
				if !errors.Is(err, cache.ErrCacheMiss) {
					o.logger.Warn().
						Err(err).
						Str("symbol", sym).
						Msg("Cache read failed, treating as miss")
				}
				resultChan <- readResult{symbol: sym}
				return
			}

			entry, err := cache.DecodeEntry(raw)
			if err != nil || len(entry.Data) == 0 {
				o.logger.Warn().
					Str("symbol", sym).
					Msg("Cache entry malformed, treating as miss")
				resultChan <- readResult{symbol: sym}
				return
			}

			resultChan <- readResult{symbol: sym, data: entry.Data}
		}(sym)
	}

	wg.Wait()
	close(resultChan)

	hits := make(map[string]json.RawMessage, len(symbols))
	for r := range resultChan {
		if r.data != nil {
			hits[r.symbol] = r.data
		}
	}
	return hits
}

// writeBack stores cacheable records concurrently, best effort, with one
// shared TTL for the whole batch. Failures are logged, never surfaced.
func (o *Orchestrator) writeBack(ctx context.Context, category string, records []Record) {
	cacheable := records[:0:0]
	for _, rec := range records {
		if Cacheable(rec) {
			cacheable = append(cacheable, rec)
		}
	}
	if len(cacheable) == 0 {
		return
	}

	now := time.Now()
	ttl := o.ttl.AdaptiveTTL(ctx, now)

	queue := make(chan Record, len(cacheable))
	for _, rec := range cacheable {
		queue <- rec
	}
	close(queue)

	workers := o.writeWorkers
	if workers > len(cacheable) {
		workers = len(cacheable)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range queue {
				entry := &cache.Entry{FetchedAt: now, Data: rec.Data}
				raw, err := entry.Marshal()
				if err != nil {
					batchWriteBackErrors.Inc()
					o.logger.Warn().Err(err).Str("symbol", rec.Symbol).Msg("Cache write-back skipped")
					continue
				}
				key := cache.Key{Category: category, Symbol: rec.Symbol}
				if err := o.store.Set(ctx, key, raw, ttl); err != nil {
					batchWriteBackErrors.Inc()
					o.logger.Warn().Err(err).Str("symbol", rec.Symbol).Msg("Cache write-back failed")
				}
			}
		}()
	}
	wg.Wait()

	o.logger.Debug().
		Str("category", category).
		Int("written", len(cacheable)).
		Dur("ttl", ttl).
		Msg("Cacheable results written back")
}

// resolve picks the outcome for one requested symbol.
func (o *Orchestrator) resolve(sym string, hits map[string]json.RawMessage, fetched map[string]Record) Result {
	if data, ok := hits[sym]; ok {
		batchSymbolsTotal.WithLabelValues("hit").Inc()
		return Result{Symbol: sym, Data: data}
	}

	rec, ok := fetched[sym]
	if !ok {
		batchSymbolsTotal.WithLabelValues("failed").Inc()
		return Result{Symbol: sym, Error: "fetch failed: no data returned for symbol"}
	}
	if rec.Err != "" {
		batchSymbolsTotal.WithLabelValues("failed").Inc()
		return Result{Symbol: sym, Error: rec.Err}
	}
	if len(rec.Data) == 0 {
		batchSymbolsTotal.WithLabelValues("failed").Inc()
		return Result{Symbol: sym, Error: "fetch failed: empty record"}
	}

	batchSymbolsTotal.WithLabelValues("fetched").Inc()
	return Result{Symbol: sym, Data: rec.Data}
}

// Cacheable reports whether a fetched record may be written back: a
// well-formed, non-empty JSON record without an error marker. Negative
// results are never cached so a transient upstream failure cannot poison
// the cache or suppress the next retry.
func Cacheable(rec Record) bool {
	if rec.Err != "" || len(rec.Data) == 0 {
		return false
	}
	if !json.Valid(rec.Data) {
		return false
	}

	trimmed := bytes.TrimSpace(rec.Data)
	switch string(trimmed) {
	case "null", "{}", "[]", `""`:
		return false
	}
	return true
}

// dedupe returns the unique symbols preserving first-seen order.
func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}
