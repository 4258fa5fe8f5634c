// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package implements comprehensive application instrumentation using the Prometheus
client library, exposing metrics for monitoring pipeline throughput, appender health,
compliance activity, and API performance.

# Overview

The package provides metrics for:
  - Log entry throughput and dispatch latency
  - Appender delivery, batching, retries, and drops
  - Compliance suppression and audit trail persistence
  - Filter rejections and sanitization activity
  - Circuit breaker state transitions
  - Live tail WebSocket connections
  - API request latency and throughput

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8187/metrics

# Available Metrics

Pipeline Metrics:
  - pipeline_entries_logged_total: Entries accepted by the pipeline (counter)
    Labels: level
  - pipeline_dispatch_duration_seconds: Dispatch latency across appenders (histogram)
    Labels: level
    Buckets: .0001, .0005, .001, .005, .01, .05, .1, .5, 1
  - pipeline_entries_below_threshold_total: Entries rejected by the level gate (counter)
  - filter_rejections_total: Entries rejected by a filter (counter)
    Labels: filter
  - sanitize_fields_masked_total: Field values masked during sanitization (counter)
    Labels: rule (builtin, custom)

Appender Metrics:
  - appender_state: Lifecycle state per appender (gauge)
    Labels: appender
    Values: 0=uninitialized, 1=ready, 2=stopped
  - appender_delivery_duration_seconds: Sink delivery latency (histogram)
    Labels: appender
  - appender_delivery_errors_total: Failed deliveries (counter)
    Labels: appender, error_type (timeout, connection, circuit_open, encode, other)
  - appender_entries_dropped_total: Entries dropped before delivery (counter)
    Labels: appender, reason (buffer_full, rate_limited, stopped)
  - appender_queue_depth: Buffered entries per appender (gauge)
  - appender_batch_flush_duration_seconds: Batch flush latency (histogram)
  - appender_batch_size: Entries per flushed batch (histogram)
    Buckets: 1, 5, 10, 25, 50, 100, 250, 500
  - appender_retry_attempts_total, appender_retry_successes_total,
    appender_retry_failures_total: Retry behavior (counters)
    Labels: appender
  - file_rotations_total, file_rotation_errors_total: File rotation (counters)
    Labels: appender
  - messaging_publishes_total, messaging_publish_errors_total,
    messaging_reconnects_total: Broker appender activity (counters)
    Labels: broker (nats, mqtt)

Compliance Metrics:
  - compliance_suppressions_total: Entries suppressed by compliance checks (counter)
    Labels: reason (consent, region)
  - compliance_entries_anonymized_total: Entries with IPs anonymized (counter)
  - compliance_consent_decisions_total: Consent decisions (counter)
    Labels: decision (granted, revoked)
  - audit_trail_entries_written_total: Persisted trail entries (counter)
  - audit_trail_entries_dropped_total: Trail entries dropped on a full buffer (counter)
  - audit_trail_write_errors_total: Failed trail writes (counter)
  - audit_trail_write_duration_seconds: Trail store write latency (histogram)

Circuit Breaker Metrics:
  - circuit_breaker_state: Current state (gauge)
    Labels: name
    Values: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total: Requests through the breaker (counter)
    Labels: name, result (success, failure, rejected)
  - circuit_breaker_state_transitions_total: State transitions (counter)
    Labels: name, from_state, to_state

Registry and Config Metrics:
  - registry_active_loggers: Loggers held by the registry (gauge)
  - registry_active_appenders: Running appender instances (gauge)
  - cache_hits_total, cache_misses_total, cache_entries: Factory caches
    Labels: cache (logger, layout)
  - config_reloads_total: Configuration updates (counter)
    Labels: result (applied, rejected, reverted)
  - config_watchers: Registered configuration watchers (gauge)

API Metrics:
  - api_requests_total: Total API requests (counter)
    Labels: method, endpoint, status_code
  - api_request_duration_seconds: Request latency (histogram)
    Labels: method, endpoint
    Buckets: .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
  - api_active_requests: Active requests (gauge)
  - api_rate_limit_hits_total: Rate limit rejections (counter)
    Labels: endpoint

Live Tail Metrics:
  - tail_connections_active: Active WebSocket connections (gauge)
  - tail_messages_sent_total: Entries streamed to clients (counter)
  - tail_messages_dropped_total: Entries dropped for slow clients (counter)
  - tail_errors_total: Live tail errors (counter)
    Labels: error_type

# Usage Example

Basic setup in main.go:

	import (
	    "net/http"
	    "runtime"

	    "github.com/prometheus/client_golang/prometheus/promhttp"
	    "github.com/tomtom215/tabularium/internal/metrics"
	)

	func main() {
	    metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	    http.Handle("/metrics", promhttp.Handler())
	}

Recording appender delivery metrics:

	start := time.Now()
	err := sink.Write(ctx, batch)
	metrics.RecordAppenderDelivery(a.name, time.Since(start), err)

Recording API metrics from middleware:

	duration := time.Since(start)
	metrics.RecordAPIRequest(r.Method, pattern, strconv.Itoa(ww.Status()), duration)

# Prometheus Configuration

Example prometheus.yml configuration:

	scrape_configs:
	  - job_name: 'tabularium'
	    static_configs:
	      - targets: ['localhost:8187']
	    metrics_path: '/metrics'
	    scrape_interval: 15s

Example PromQL queries:

	# Entry throughput by level
	rate(pipeline_entries_logged_total[5m])

	# p95 appender delivery latency
	histogram_quantile(0.95, rate(appender_delivery_duration_seconds_bucket[5m]))

	# Drop ratio per appender
	sum by (appender) (rate(appender_entries_dropped_total[5m]))
	/
	sum by (appender) (rate(pipeline_entries_logged_total[5m]))

	# Compliance suppression rate
	rate(compliance_suppressions_total[5m])

# Thread Safety

All metric recording functions are thread-safe and designed for concurrent use
from multiple goroutines. The Prometheus client library handles synchronization
internally.

# Cardinality Management

To prevent high cardinality issues:

  - The level label is bounded by the nine defined log levels
  - Appender labels use configured instance names, not per-entry values
  - Delivery errors are categorized into five fixed error types
  - Logger categories never appear as label values
  - API endpoint labels use route patterns, not raw paths

# See Also

  - internal/api: Request metrics middleware and the /metrics endpoint
  - internal/appender: Delivery, batching, and retry metrics recording
  - internal/compliance: Suppression and audit trail metrics recording
  - https://prometheus.io/docs/practices/naming/: Metric naming conventions
  - https://prometheus.io/docs/practices/instrumentation/: Instrumentation guide
*/
package metrics
