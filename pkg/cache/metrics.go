package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swcache_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"backend"}, // "memory", "redis"
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swcache_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"backend"},
	)

	// CacheWrites tracks successful puts by backend
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swcache_cache_writes_total",
			Help: "Total number of entries written to the cache",
		},
		[]string{"backend"},
	)

	// CacheWrittenBytes tracks body bytes written by backend
	CacheWrittenBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swcache_cache_written_bytes_total",
			Help: "Total number of response body bytes written to the cache",
		},
		[]string{"backend"},
	)

	// GenerationsDeleted tracks removed generations
	GenerationsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swcache_generations_deleted_total",
			Help: "Total number of cache generations deleted",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swcache_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"backend", "operation"}, // "open", "get", "put", "list", "delete"
	)
)
