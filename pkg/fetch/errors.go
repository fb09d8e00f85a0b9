package fetch

import (
	"errors"
	"fmt"
)

// Common errors returned by the fetcher.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// UpstreamError represents a non-2xx response from an upstream source.
// Snippet holds a truncated prefix of the response body for observability.
type UpstreamError struct {
	Source  string
	Status  int
	URL     string
	Snippet string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("upstream %s error (status %d): %s: %s",
			e.Source, e.Status, e.URL, e.Snippet)
	}
	return fmt.Sprintf("upstream %s error (status %d): %s", e.Source, e.Status, e.URL)
}

// Retryable reports whether the status represents a transient upstream
// failure worth retrying.
func (e *UpstreamError) Retryable() bool {
	return retryableStatus(e.Status)
}

// retryableStatus classifies transient upstream statuses: throttling (429),
// common 5xx, and the CDN edge failure range 520-524.
func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return code >= 520 && code <= 524
}
