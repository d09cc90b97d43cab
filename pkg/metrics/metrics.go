// Package metrics exposes the Prometheus registry of the proxy.
// All metrics are defined in their respective packages (cache, fetch,
// prewarm, strategy, generation, lifecycle) via promauto, so this package
// only serves them and documents what exists.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package's promauto metrics land in.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - swcache_cache_hits_total{backend} (Counter): Lookups answered from a generation
//   - swcache_cache_misses_total{backend} (Counter): Lookups with no entry
//   - swcache_cache_writes_total{backend} (Counter): Entries stored
//   - swcache_cache_written_bytes_total{backend} (Counter): Body bytes stored
//   - swcache_cache_errors_total{backend, operation} (Counter): Storage failures
//   - swcache_generations_deleted_total{backend} (Counter): Generations removed
//
// Fetch Metrics (pkg/fetch):
//   - swcache_fetch_requests_total{method, status} (Counter): Origin fetches
//   - swcache_fetch_duration_seconds{method} (Histogram): Fetch duration incl. retries
//   - swcache_fetch_errors_total{class} (Counter): Failures and error statuses by class
//   - swcache_fetch_retries_total{error_class} (Counter): Retry attempts
//   - swcache_fetch_retry_backoff_seconds{error_class} (Histogram): Backoff durations
//   - swcache_fetch_retry_exhausted_total{error_class} (Counter): Fetches out of attempts
//
// Prewarm Metrics (pkg/prewarm):
//   - swcache_prewarm_assets_total{result} (Counter): Manifest assets by ok/failed
//   - swcache_prewarm_duration_seconds (Histogram): Whole prewarm runs
//
// Strategy Metrics (pkg/strategy):
//   - swcache_strategy_resolutions_total{strategy, source} (Counter): Responses by
//     cache, network, fallback or network_error
//   - swcache_writeback_total{result} (Counter): Write-backs by ok/failed/skipped
//   - swcache_writeback_pending (Gauge): Write-backs in flight
//
// Lifecycle Metrics (pkg/generation, pkg/lifecycle):
//   - swcache_generation_deletions_total{result} (Counter): Reconciliation deletions
//   - swcache_lifecycle_state (Gauge): Current state, 4 means serving
//   - swcache_installs_total{result} (Counter): Install attempts
//   - swcache_dispatch_total{class} (Counter): Requests by prefer_cache/prefer_network
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(swcache_cache_hits_total[5m])) /
//   (sum(rate(swcache_cache_hits_total[5m])) + sum(rate(swcache_cache_misses_total[5m])))
//
//   # Offline Answers
//   rate(swcache_strategy_resolutions_total{source=~"fallback|network_error"}[5m])
//
//   # Lost Write-Backs
//   rate(swcache_writeback_total{result="failed"}[5m])
//
//   # P95 Origin Latency
//   histogram_quantile(0.95, rate(swcache_fetch_duration_seconds_bucket[5m]))
