// Package fetch provides bounded-retry HTTP invocation for upstream
// financial-data sources, paced by the throttle registry.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"quotecache/pkg/throttle"
)

// Prometheus metrics for fetch operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_fetch_requests_total",
		Help: "Total upstream requests by source and outcome",
	}, []string{"source", "status"})

	fetchRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quote_fetch_duration_seconds",
		Help:    "Upstream request duration in seconds by source",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"source"})

	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_fetch_retries_total",
		Help: "Total retry attempts by source",
	}, []string{"source"})

	fetchRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_fetch_retry_exhausted_total",
		Help: "Total requests that exhausted all retry attempts by source",
	}, []string{"source"})
)

// snippetLen bounds the response body prefix carried in error messages.
const snippetLen = 200

// Config holds the fetcher configuration.
type Config struct {
	// MaxAttempts is the total number of attempts (initial request included).
	MaxAttempts int

	// BackoffBase scales the linear backoff: attempt n sleeps BackoffBase*n.
	BackoffBase time.Duration

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BackoffBase: 300 * time.Millisecond,
		Timeout:     10 * time.Second,
	}
}

// Request describes a single upstream call.
type Request struct {
	// Source identifies the upstream provider for throttling and metrics.
	Source string

	// Method defaults to GET when empty.
	Method string

	URL    string
	Header http.Header
	Body   []byte
}

// Fetcher performs upstream HTTP calls with per-source pacing and bounded
// retries. Parsing the response body is the caller's responsibility.
type Fetcher struct {
	httpClient *http.Client
	throttle   *throttle.Registry
	config     Config
	logger     zerolog.Logger
}

// New creates a fetcher on top of the given throttle registry.
func New(reg *throttle.Registry, cfg Config, logger zerolog.Logger) *Fetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	return &Fetcher{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		throttle:   reg,
		config:     cfg,
		logger:     logger,
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (f *Fetcher) SetHTTPClient(client *http.Client) {
	f.httpClient = client
}

// Do performs the request, retrying transient failures with linear backoff.
// Every attempt, retries included, first waits for the source's throttle
// slot. Non-retryable statuses fail immediately. The final error embeds the
// last diagnostic and the request URL.
func (f *Fetcher) Do(ctx context.Context, req Request) ([]byte, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()
	defer func() {
		fetchRequestDuration.WithLabelValues(req.Source).Observe(time.Since(start).Seconds())
	}()

	var lastErr error

	for attempt := 1; attempt <= f.config.MaxAttempts; attempt++ {
		if err := f.throttle.Wait(ctx, req.Source); err != nil {
			return nil, fmt.Errorf("throttle wait for %s: %w", req.Source, err)
		}

		body, err := f.attempt(ctx, method, req)
		if err == nil {
			if attempt > 1 {
				f.logger.Info().
					Str("source", req.Source).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return body, nil
		}

		if uerr, ok := err.(*UpstreamError); ok && !uerr.Retryable() {
			fetchRequestsTotal.WithLabelValues(req.Source, fmt.Sprintf("%d", uerr.Status)).Inc()
			return nil, uerr
		}

		lastErr = err

		if attempt >= f.config.MaxAttempts {
			break
		}

		fetchRetriesTotal.WithLabelValues(req.Source).Inc()
		backoff := f.config.BackoffBase * time.Duration(attempt)

		f.logger.Warn().
			Err(err).
			Str("source", req.Source).
			Str("url", req.URL).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying upstream request after backoff")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("backoff interrupted: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	fetchRetryExhaustedTotal.WithLabelValues(req.Source).Inc()
	f.logger.Error().
		Err(lastErr).
		Str("source", req.Source).
		Str("url", req.URL).
		Int("max_attempts", f.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return nil, fmt.Errorf("%w after %d attempts for %s: %v",
		ErrRetryExhausted, f.config.MaxAttempts, req.URL, lastErr)
}

// attempt issues one HTTP call and classifies the outcome.
func (f *Fetcher) attempt(ctx context.Context, method string, req Request) ([]byte, error) {
	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", req.URL, err)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		fetchRequestsTotal.WithLabelValues(req.Source, "transport_error").Inc()
		return nil, fmt.Errorf("request %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fetchRequestsTotal.WithLabelValues(req.Source, "read_error").Inc()
		return nil, fmt.Errorf("read response from %s: %w", req.URL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			Source:  req.Source,
			Status:  resp.StatusCode,
			URL:     req.URL,
			Snippet: truncate(body, snippetLen),
		}
	}

	fetchRequestsTotal.WithLabelValues(req.Source, fmt.Sprintf("%d", resp.StatusCode)).Inc()
	return body, nil
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
