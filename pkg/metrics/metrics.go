// Package metrics provides the centralized Prometheus metrics registry for
// the harvester. All metrics are defined in their respective packages
// (graphql, harvest, checkpoint, enrich, runner) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the harvester.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Query Metrics (pkg/graphql):
//   - harvester_queries_total{operation, outcome} (Counter): GraphQL executions by operation and outcome
//   - harvester_query_duration_seconds{operation} (Histogram): Query duration by operation
//   - harvester_query_retries_total{operation} (Counter): Retry attempts by operation
//   - harvester_query_retry_exhausted_total{operation} (Counter): Queries that exhausted all attempts
//
// Fetch Metrics (pkg/harvest):
//   - harvester_pages_fetched_total (Counter): List pages fetched across all regions
//   - harvester_records_fetched_total (Counter): Records fetched across all regions
//   - harvester_short_pages_total (Counter): Short pages without pagination metadata
//   - harvester_region_splits_total{strategy} (Counter): Region decompositions by strategy
//     (bisect, province, township, hour6, hour1)
//   - harvester_leaf_regions_total (Counter): Leaf regions handed to the fetcher
//
// Checkpoint Metrics (pkg/checkpoint):
//   - harvester_records_persisted_total (Counter): Records durably saved
//   - harvester_duplicate_records_total (Counter): Records dropped as already seen
//
// Enrichment Metrics (pkg/enrich):
//   - harvester_details_fetched_total{source} (Counter): Details persisted by path (graphql, html)
//   - harvester_detail_errors_total (Counter): Records failing on both detail paths
//
// Job Metrics (pkg/runner):
//   - harvester_jobs_total{outcome} (Counter): Jobs finished by outcome (completed, failed, cancelled)
//
// Example Prometheus Queries:
//
//   # Duplicate suppression rate
//   rate(harvester_duplicate_records_total[5m]) /
//   rate(harvester_records_fetched_total[5m])
//
//   # Split pressure by strategy
//   sum by (strategy) (rate(harvester_region_splits_total[1h]))
//
//   # Detail fallback share
//   rate(harvester_details_fetched_total{source="html"}[5m]) /
//   sum(rate(harvester_details_fetched_total[5m]))
//
//   # P95 query latency
//   histogram_quantile(0.95, rate(harvester_query_duration_seconds_bucket[5m]))
//
//   # Retry exhaustion
//   rate(harvester_query_retry_exhausted_total[5m])
