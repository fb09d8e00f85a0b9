// Package source builds provider-specific requests and normalizes the
// providers' terse field-coded responses into canonical named-field
// records. Adapters never retry or throttle themselves; pacing and retry
// policy live in the fetch layer.
package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"quotecache/pkg/fetch"
)

// Source ids used for throttling and metrics.
const (
	// QuoteSource identifies the realtime quote/kline provider.
	QuoteSource = "eastmoney"
)

// DefaultBaseURL is the quote provider endpoint.
const DefaultBaseURL = "https://push2.eastmoney.com"

// Unit conversions applied at the adapter boundary.
const (
	// sharesPerLot converts lot-denominated volumes to share counts.
	sharesPerLot = 100

	// priceScale divides raw fixed-point price fields into decimals.
	priceScale = 100
)

// Browser-mimicking request headers expected by the provider.
const (
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	quoteReferer     = "https://quote.eastmoney.com/"
)

// Doer is the fetch capability adapters need. *fetch.Fetcher satisfies it.
type Doer interface {
	Do(ctx context.Context, req fetch.Request) ([]byte, error)
}

// Client is the shared adapter client for the quote provider.
type Client struct {
	fetcher Doer
	baseURL string
	loc     *time.Location
	logger  zerolog.Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL overrides the provider endpoint (for testing).
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// NewClient creates an adapter client over the given fetcher.
func NewClient(fetcher Doer, logger zerolog.Logger, opts ...ClientOption) (*Client, error) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return nil, fmt.Errorf("load civil timezone: %w", err)
	}

	c := &Client{
		fetcher: fetcher,
		baseURL: DefaultBaseURL,
		loc:     loc,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// browserHeader returns the standard header set for provider calls.
func browserHeader() http.Header {
	header := http.Header{}
	header.Set("User-Agent", browserUserAgent)
	header.Set("Referer", quoteReferer)
	header.Set("Accept", "application/json")
	return header
}

// secID maps an exchange-qualified symbol (SH600000, SZ000001) to the
// provider's market-prefixed id (1.600000, 0.000001).
func secID(symbol string) (string, error) {
	if len(symbol) < 3 {
		return "", fmt.Errorf("malformed symbol %q", symbol)
	}

	code := symbol[2:]
	switch strings.ToUpper(symbol[:2]) {
	case "SH":
		return "1." + code, nil
	case "SZ":
		return "0." + code, nil
	}
	return "", fmt.Errorf("unknown exchange prefix in symbol %q", symbol)
}

// symbolFromDiff rebuilds the exchange-qualified symbol from the provider's
// market flag (f13) and instrument code (f12).
func symbolFromDiff(market int, code string) string {
	if market == 1 {
		return "SH" + code
	}
	return "SZ" + code
}

// civilTimestamp renders an epoch-seconds value in the civil timezone.
func (c *Client) civilTimestamp(epoch int64) string {
	return time.Unix(epoch, 0).In(c.loc).Format("2006-01-02 15:04:05")
}
