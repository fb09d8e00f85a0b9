package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend (redis, memory).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_cache_hits_total",
			Help: "Total number of quote cache hits",
		},
		[]string{"backend"},
	)

	// CacheMisses tracks cache misses by backend.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_cache_misses_total",
			Help: "Total number of quote cache misses",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"backend", "operation"}, // "get", "set"
	)
)
