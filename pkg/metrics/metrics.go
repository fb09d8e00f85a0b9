// Package metrics provides the centralized Prometheus registry reference for
// the quote cache. All metrics are defined in their respective packages
// (fetch, throttle, cache, calendar, batch) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the quote cache.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Throttle Metrics (pkg/throttle):
//   - quote_throttle_wait_seconds{source} (Histogram): Time spent waiting for a pacing slot
//   - quote_throttle_waits_total{source} (Counter): Pacing waits by source
//
// Fetch Metrics (pkg/fetch):
//   - quote_fetch_requests_total{source, status} (Counter): Upstream requests by source and HTTP status
//   - quote_fetch_duration_seconds{source} (Histogram): Request duration by source
//   - quote_fetch_retries_total{source} (Counter): Retry attempts by source
//   - quote_fetch_retry_exhausted_total{source} (Counter): Requests that exhausted all attempts
//
// Calendar Metrics (pkg/calendar):
//   - quote_holiday_oracle_lookups_total{outcome} (Counter): Holiday lookups by outcome (memo, fetched, fail_closed)
//   - quote_holiday_memo_entries (Gauge): Memoized holiday verdicts currently held
//
// Cache Metrics (pkg/cache):
//   - quote_cache_hits_total{backend} (Counter): Cache hits by backend (redis, memory)
//   - quote_cache_misses_total{backend} (Counter): Cache misses by backend
//   - quote_cache_errors_total{backend, operation} (Counter): Cache operation errors
//
// Batch Metrics (pkg/batch):
//   - quote_batch_symbols_total{outcome} (Counter): Batch symbols by outcome (hit, fetched, failed)
//   - quote_batch_all_cached_total (Counter): Batches answered entirely from cache
//   - quote_batch_writeback_errors_total (Counter): Failed best-effort cache write-backs
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(quote_batch_symbols_total{outcome="hit"}[5m])) /
//   sum(rate(quote_batch_symbols_total[5m]))
//
//   # Upstream Error Rate
//   sum(rate(quote_fetch_requests_total{status!~"2.."}[5m]))
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(quote_fetch_duration_seconds_bucket[5m]))
//
//   # Throttle Pressure
//   histogram_quantile(0.95, rate(quote_throttle_wait_seconds_bucket[5m]))
