// Package metrics exposes the Prometheus registry shared by the orchestrator.
// Metrics are defined in their own packages (client, ratelimit, cache,
// orchestrator, resolve, executor) and registered via promauto; this package
// only serves them and documents what exists.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package registers with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Transport (pkg/client):
//   - pm_upstream_requests_total{endpoint, status} (Counter): Attempts by endpoint and HTTP status
//   - pm_upstream_request_duration_seconds{endpoint} (Histogram): Attempt duration
//   - pm_upstream_errors_total{class} (Counter): Failed attempts by error class
//   - pm_upstream_retries_total{error_class} (Counter): Retries scheduled
//   - pm_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff before each retry
//   - pm_upstream_retry_exhausted_total{error_class} (Counter): Calls that spent every attempt
//
// Pacing and fan-out (pkg/ratelimit):
//   - pm_pacing_delay_seconds (Histogram): Pre-request pacing delay
//   - pm_limiter_wait_seconds (Histogram): Wait for a fan-out slot
//   - pm_limiter_in_flight (Gauge): Calls holding a fan-out slot
//
// Reference cache (pkg/cache):
//   - pm_cache_hits_total{tier} (Counter): Hits by tier (memory, redis)
//   - pm_cache_misses_total{tier} (Counter): Misses by tier
//   - pm_cache_evictions_total{tier} (Counter): Expired entries removed
//   - pm_cache_preloads_total{kind, outcome} (Counter): Collection preloads
//   - pm_cache_errors_total{operation} (Counter): Snapshot tier failures
//
// Request context (pkg/orchestrator):
//   - pm_query_api_calls (Histogram): Upstream calls made per request context
//   - pm_query_api_calls_prevented_total (Counter): Calls answered from a cache
//
// Resolver (pkg/resolve):
//   - pm_resolver_resolutions_total{stage, outcome} (Counter): Name resolutions
//
// Executors (pkg/executor):
//   - pm_executor_runs_total{pattern, outcome} (Counter): Pattern invocations
//   - pm_executor_duration_seconds{pattern} (Histogram): Pattern duration
//   - pm_executor_fallbacks_total{pattern} (Counter): Answers served by a fallback
//
// Example Prometheus Queries:
//
//   # Calls avoided per call made
//   rate(pm_query_api_calls_prevented_total[5m]) / rate(pm_query_api_calls_sum[5m])
//
//   # Reference cache hit rate
//   sum(rate(pm_cache_hits_total{tier="memory"}[5m])) /
//   (sum(rate(pm_cache_hits_total{tier="memory"}[5m])) + sum(rate(pm_cache_misses_total{tier="memory"}[5m])))
//
//   # Throttling
//   rate(pm_upstream_retries_total{error_class="rate_limit"}[5m])
//
//   # P95 executor latency
//   histogram_quantile(0.95, sum by (le, pattern) (rate(pm_executor_duration_seconds_bucket[5m])))
