// Package throttle enforces minimum spacing between consecutive outbound
// calls to each upstream source. Distinct sources pace independently.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for throttling.
var (
	throttleWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quote_throttle_wait_seconds",
		Help:    "Time spent waiting for a throttle slot by source",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"source"})

	throttleWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_throttle_waits_total",
		Help: "Total throttle waits by source",
	}, []string{"source"})
)

// DefaultInterval is the pacing interval applied to sources that were not
// explicitly registered.
const DefaultInterval = 200 * time.Millisecond

// Registry owns one pacer per upstream source. A pacer guarantees that two
// consecutive calls released for the same source are at least the source's
// minimum interval apart. It is not a queue: concurrent callers serialize
// on the wait in whichever order they reach the clock.
type Registry struct {
	mu       sync.Mutex
	pacers   map[string]*rate.Limiter
	fallback time.Duration
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry using DefaultInterval for unknown
// sources.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		pacers:   make(map[string]*rate.Limiter),
		fallback: DefaultInterval,
		logger:   logger,
	}
}

// Register sets the minimum interval between calls to source. Re-registering
// replaces the pacer, resetting its state.
func (r *Registry) Register(source string, minInterval time.Duration) {
	if minInterval <= 0 {
		minInterval = r.fallback
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pacers[source] = rate.NewLimiter(rate.Every(minInterval), 1)
}

// Wait blocks until a call to source may be issued, then consumes the slot.
// It returns early with the context error if ctx is cancelled while waiting.
func (r *Registry) Wait(ctx context.Context, source string) error {
	r.mu.Lock()
	pacer, ok := r.pacers[source]
	if !ok {
		pacer = rate.NewLimiter(rate.Every(r.fallback), 1)
		r.pacers[source] = pacer
	}
	r.mu.Unlock()

	start := time.Now()
	if err := pacer.Wait(ctx); err != nil {
		return err
	}

	waited := time.Since(start)
	throttleWaitsTotal.WithLabelValues(source).Inc()
	throttleWaitSeconds.WithLabelValues(source).Observe(waited.Seconds())

	if waited > time.Millisecond {
		r.logger.Debug().
			Str("source", source).
			Dur("waited", waited).
			Msg("Throttled outbound call")
	}

	return nil
}
