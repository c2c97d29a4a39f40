package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	tierMemory = "memory"
	tierRedis  = "redis"
)

var (
	// CacheHits tracks cache hits by tier
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_cache_hits_total",
			Help: "Total number of reference cache hits",
		},
		[]string{"tier"}, // "memory", "redis"
	)

	// CacheMisses tracks cache misses by tier
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_cache_misses_total",
			Help: "Total number of reference cache misses",
		},
		[]string{"tier"},
	)

	// CacheEvictions tracks expired entries removed on read
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_cache_evictions_total",
			Help: "Total number of expired cache entries evicted on read",
		},
		[]string{"tier"},
	)

	// CachePreloads tracks collection preloads
	CachePreloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_cache_preloads_total",
			Help: "Total number of reference collection preloads by outcome",
		},
		[]string{"kind", "outcome"}, // "upstream", "snapshot", "skipped", "failed"
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
