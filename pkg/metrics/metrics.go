// Package metrics exposes the Prometheus registry used by the crawler.
// All metrics are defined in their respective packages (client, ratelimit,
// pagination, crawler, quarantine, export, state) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the crawler.
var Registry = prometheus.DefaultRegisterer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Upstream Metrics (pkg/client):
//   - crawler_upstream_requests_total{method, status} (Counter): Requests by API method and status
//   - crawler_upstream_request_duration_seconds{method} (Histogram): Request duration
//   - crawler_upstream_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, api, protocol)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - crawler_rate_limit_waits_total (Counter): Requests that waited for a token
//   - crawler_rate_limit_wait_seconds (Histogram): Time spent waiting
//   - crawler_rate_limit_cancelled_total (Counter): Waits abandoned on context end
//
// Fetch Metrics (pkg/pagination):
//   - crawler_fetch_batches_total{outcome} (Counter): Batches by outcome
//   - crawler_fetch_pages_total{outcome} (Counter): Pages by outcome (success, failed, skipped)
//   - crawler_fetch_batch_duration_seconds (Histogram): Batch duration
//   - crawler_fetch_pages_in_flight (Gauge): Page requests in flight
//
// Run Metrics (pkg/crawler):
//   - crawler_runs_total{mode, outcome} (Counter): Runs by mode (full, incremental, request)
//   - crawler_posts_total{outcome} (Counter): Posts parsed or quarantined
//   - crawler_segmentation_failures_total{reason} (Counter): Segmentation failures by reason
//   - crawler_probed_total (Gauge): Result count from the last probe
//
// Quarantine Metrics (pkg/quarantine):
//   - crawler_quarantine_size (Gauge): Posts waiting for repair
//   - crawler_quarantine_repairs_total{outcome} (Counter): Repair attempts
//
// Export Metrics (pkg/export):
//   - crawler_export_files_total{kind} (Counter): Files written (post, metadata, artifact)
//
// State Metrics (pkg/state):
//   - crawler_state_reads_total{result} (Counter): Baseline lookups (hit, miss)
//   - crawler_state_errors_total{operation} (Counter): Baseline store errors
//   - crawler_state_baseline_total (Gauge): Last stored baseline
//
// Example Prometheus Queries:
//
//   # Quarantine ratio
//   sum(rate(crawler_posts_total{outcome="quarantined"}[1h])) /
//   sum(rate(crawler_posts_total[1h]))
//
//   # Upstream error rate by class
//   rate(crawler_upstream_errors_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(crawler_upstream_request_duration_seconds_bucket[5m]))
//
//   # New posts since the stored baseline
//   crawler_probed_total - crawler_state_baseline_total
