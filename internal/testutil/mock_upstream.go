// Package testutil provides testing utilities for the quote cache.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock upstream endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable mock quote/holiday provider for testing.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	LastQuery         string
}

// NewMockUpstream creates a new mock provider server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastQuery = r.URL.RawQuery
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		// Prefix handlers cover date-parameterized paths like /2024-05-01.
		mock.mu.RLock()
		for prefix, h := range mock.handlers {
			if strings.HasSuffix(prefix, "/") && strings.HasPrefix(r.URL.Path, prefix) {
				mock.mu.RUnlock()
				h(w, r)
				return
			}
		}
		mock.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "no handler configured"}`))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.LastQuery = ""
}

// SetHandler sets a custom handler for a specific path. A path ending in "/"
// matches as a prefix.
func (m *MockUpstream) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockUpstream) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastQuery returns the raw query string of the most recent request.
func (m *MockUpstream) GetLastQuery() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

// NewQuoteListResponse builds a diff-list quote payload from raw fixed-point
// items, the shape the realtime quote endpoint returns.
func NewQuoteListResponse(items ...string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"data": {"total": %d, "diff": [%s]}}`, len(items), strings.Join(items, ",")),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// QuoteItem builds one raw diff item. Prices are fixed-point (12.34 → 1234),
// volume is in lots.
func QuoteItem(market int, code, name string, price, changePct, volumeLots int64) string {
	return fmt.Sprintf(`{"f12": %q, "f13": %d, "f14": %q, "f2": %d, "f3": %d, "f5": %d}`,
		code, market, name, price, changePct, volumeLots)
}

// NewKlineResponse builds a kline payload from comma-joined rows.
func NewKlineResponse(code string, rows ...string) MockResponse {
	quoted := make([]string, len(rows))
	for i, row := range rows {
		quoted[i] = fmt.Sprintf("%q", row)
	}
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"data": {"code": %q, "klines": [%s]}}`, code, strings.Join(quoted, ",")),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewHolidayResponse builds a holiday oracle verdict for one date.
func NewHolidayResponse(isHoliday bool) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"code": 0, "holiday": {"holiday": %t}}`, isHoliday),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewWorkdayResponse builds the oracle's null-holiday verdict for a regular
// workday.
func NewWorkdayResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"code": 0, "holiday": null}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewFlakyHandler fails the first failures requests with the given status,
// then serves the healthy response.
func NewFlakyHandler(failures int, status int, healthy MockResponse) func(w http.ResponseWriter, r *http.Request) {
	var mu sync.Mutex
	count := 0
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		n := count
		mu.Unlock()

		if n <= failures {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(status)
			w.Write([]byte(`{"error": "transient failure"}`))
			return
		}

		for key, value := range healthy.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(healthy.StatusCode)
		w.Write([]byte(healthy.Body))
	}
}
