package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"quotecache/pkg/fetch"
)

// Prometheus metrics for holiday oracle lookups.
var (
	oracleLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_holiday_oracle_lookups_total",
		Help: "Holiday oracle lookups by outcome (memo, fetched, fail_closed)",
	}, []string{"outcome"})

	oracleMemoSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quote_holiday_memo_entries",
		Help: "Number of dates currently memoized by the holiday oracle",
	})
)

// OracleSource is the throttle source id for holiday oracle calls.
const OracleSource = "holiday-oracle"

// memoRetentionDays bounds memo growth: entries older than this many civil
// days are evicted on insert.
const memoRetentionDays = 2

// Doer is the fetch capability the oracle needs. *fetch.Fetcher satisfies it.
type Doer interface {
	Do(ctx context.Context, req fetch.Request) ([]byte, error)
}

// oraclePayload mirrors the holiday service response:
// {"code": 0, "holiday": {"holiday": true}} with holiday null on workdays.
type oraclePayload struct {
	Code    int `json:"code"`
	Holiday *struct {
		Holiday bool `json:"holiday"`
	} `json:"holiday"`
}

// Oracle answers "is this civil date a market holiday", memoizing per date.
// Any failure to get a confirmed answer is fail-closed: the date is treated
// as a holiday so downstream TTLs err toward longer.
type Oracle struct {
	fetcher Doer
	baseURL string
	logger  zerolog.Logger

	mu   sync.Mutex
	memo map[string]bool // civil date "2006-01-02" -> is holiday
}

// NewOracle creates a holiday oracle against baseURL.
func NewOracle(fetcher Doer, baseURL string, logger zerolog.Logger) *Oracle {
	return &Oracle{
		fetcher: fetcher,
		baseURL: baseURL,
		logger:  logger,
		memo:    make(map[string]bool),
	}
}

// IsHoliday reports whether day (interpreted as a civil date) is a market
// holiday. Results are memoized for the retention window.
func (o *Oracle) IsHoliday(ctx context.Context, day time.Time) bool {
	date := day.Format("2006-01-02")

	o.mu.Lock()
	if holiday, ok := o.memo[date]; ok {
		o.mu.Unlock()
		oracleLookupsTotal.WithLabelValues("memo").Inc()
		return holiday
	}
	o.mu.Unlock()

	holiday := o.lookup(ctx, date)

	o.mu.Lock()
	o.memo[date] = holiday
	o.evictLocked()
	oracleMemoSize.Set(float64(len(o.memo)))
	o.mu.Unlock()

	return holiday
}

// lookup queries the oracle for one date. Fail-closed on any failure.
func (o *Oracle) lookup(ctx context.Context, date string) bool {
	body, err := o.fetcher.Do(ctx, fetch.Request{
		Source: OracleSource,
		URL:    fmt.Sprintf("%s/%s", o.baseURL, date),
	})
	if err != nil {
		o.logger.Warn().
			Err(err).
			Str("date", date).
			Msg("Holiday oracle unreachable, treating date as holiday")
		oracleLookupsTotal.WithLabelValues("fail_closed").Inc()
		return true
	}

	var payload oraclePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		o.logger.Warn().
			Err(err).
			Str("date", date).
			Msg("Holiday oracle payload malformed, treating date as holiday")
		oracleLookupsTotal.WithLabelValues("fail_closed").Inc()
		return true
	}

	if payload.Code != 0 {
		o.logger.Warn().
			Int("code", payload.Code).
			Str("date", date).
			Msg("Holiday oracle returned error code, treating date as holiday")
		oracleLookupsTotal.WithLabelValues("fail_closed").Inc()
		return true
	}

	oracleLookupsTotal.WithLabelValues("fetched").Inc()
	// A null holiday object means an ordinary workday.
	return payload.Holiday != nil && payload.Holiday.Holiday
}

// evictLocked drops memo entries more than the retention window in the
// past. Future dates (seen during next-open searches) are kept; they are
// bounded by the search horizon. Date strings sort chronologically.
func (o *Oracle) evictLocked() {
	cutoff := time.Now().AddDate(0, 0, -memoRetentionDays).Format("2006-01-02")

	for date := range o.memo {
		if date < cutoff {
			delete(o.memo, date)
		}
	}
}

// MemoLen returns the number of memoized dates (for tests and diagnostics).
func (o *Oracle) MemoLen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.memo)
}
