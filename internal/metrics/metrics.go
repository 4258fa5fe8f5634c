// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides comprehensive instrumentation for:
// - Logging pipeline throughput and dispatch latency
// - Appender delivery, batching, retries, and drops
// - Compliance suppression and audit trail persistence
// - API endpoint latency and throughput
// - Live tail WebSocket connections

var (
	// Pipeline Metrics
	PipelineEntriesLogged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_entries_logged_total",
			Help: "Total number of log entries accepted by the pipeline",
		},
		[]string{"level"},
	)

	PipelineDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_dispatch_duration_seconds",
			Help:    "Time spent dispatching an entry to all appenders",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}, // Dispatch is sub-millisecond in the common case
		},
		[]string{"level"},
	)

	PipelineEntriesBelowThreshold = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_entries_below_threshold_total",
			Help: "Total number of entries rejected by the logger level gate",
		},
	)

	// Filter Metrics
	FilterRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_rejections_total",
			Help: "Total number of entries rejected by a filter",
		},
		[]string{"filter"}, // "level", "category", "rate", "custom"
	)

	// Sanitization Metrics
	SanitizeFieldsMasked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sanitize_fields_masked_total",
			Help: "Total number of field values masked during sanitization",
		},
		[]string{"rule"}, // "builtin", "custom"
	)

	// Compliance Metrics
	ComplianceSuppressions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_suppressions_total",
			Help: "Total number of entries suppressed by compliance checks",
		},
		[]string{"reason"}, // "consent", "region"
	)

	ComplianceEntriesAnonymized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "compliance_entries_anonymized_total",
			Help: "Total number of entries with IP addresses anonymized",
		},
	)

	ComplianceConsentDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_consent_decisions_total",
			Help: "Total number of recorded consent decisions",
		},
		[]string{"decision"}, // "granted", "revoked"
	)

	// Audit Trail Metrics
	TrailEntriesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_trail_entries_written_total",
			Help: "Total number of audit trail entries persisted",
		},
	)

	TrailEntriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_trail_entries_dropped_total",
			Help: "Total number of audit trail entries dropped due to a full buffer",
		},
	)

	TrailWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_trail_write_errors_total",
			Help: "Total number of failed audit trail writes",
		},
	)

	TrailWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_trail_write_duration_seconds",
			Help:    "Duration of audit trail store writes in seconds",
			Buckets: prometheus.DefBuckets, // 0.005s, 0.01s, 0.025s, 0.05s, 0.1s, 0.25s, 0.5s, 1s, 2.5s, 5s, 10s
		},
	)

	// Appender Metrics
	AppenderState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "appender_state",
			Help: "Appender lifecycle state (0=uninitialized, 1=ready, 2=stopped)",
		},
		[]string{"appender"},
	)

	AppenderDeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appender_delivery_duration_seconds",
			Help:    "Time spent delivering entries to an appender sink",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}, // Network sinks dominate the upper buckets
		},
		[]string{"appender"},
	)

	AppenderDeliveryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appender_delivery_errors_total",
			Help: "Total number of failed appender deliveries",
		},
		[]string{"appender", "error_type"},
	)

	AppenderEntriesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appender_entries_dropped_total",
			Help: "Total number of entries dropped before delivery",
		},
		[]string{"appender", "reason"}, // "buffer_full", "rate_limited", "stopped"
	)

	AppenderQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "appender_queue_depth",
			Help: "Current number of entries buffered by an appender",
		},
		[]string{"appender"},
	)

	AppenderBatchFlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appender_batch_flush_duration_seconds",
			Help:    "Duration of appender batch flushes in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"appender"},
	)

	AppenderBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appender_batch_size",
			Help:    "Number of entries per flushed batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"appender"},
	)

	AppenderRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appender_retry_attempts_total",
			Help: "Total number of delivery retry attempts",
		},
		[]string{"appender"},
	)

	AppenderRetrySuccesses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appender_retry_successes_total",
			Help: "Total number of deliveries that succeeded after retrying",
		},
		[]string{"appender"},
	)

	AppenderRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appender_retry_failures_total",
			Help: "Total number of deliveries abandoned after exhausting retries",
		},
		[]string{"appender"},
	)

	// File Rotation Metrics
	FileRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "file_rotations_total",
			Help: "Total number of log file rotations",
		},
		[]string{"appender"},
	)

	FileRotationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "file_rotation_errors_total",
			Help: "Total number of failed log file rotations",
		},
		[]string{"appender"},
	)

	// Messaging Metrics
	MessagingPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_publishes_total",
			Help: "Total number of entries published to a message broker",
		},
		[]string{"broker"}, // "nats", "mqtt"
	)

	MessagingPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_publish_errors_total",
			Help: "Total number of failed broker publishes",
		},
		[]string{"broker"},
	)

	MessagingReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_reconnects_total",
			Help: "Total number of broker reconnections",
		},
		[]string{"broker"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"}, // "logger", "layout"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached instances",
		},
		[]string{"cache"},
	)

	// Registry and Config Metrics
	RegistryActiveLoggers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_active_loggers",
			Help: "Current number of loggers held by the registry",
		},
	)

	RegistryActiveAppenders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "registry_active_appenders",
			Help: "Current number of running appender instances",
		},
	)

	ConfigReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "config_reloads_total",
			Help: "Total number of configuration updates",
		},
		[]string{"result"}, // "applied", "rejected", "reverted"
	)

	ConfigWatchers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "config_watchers",
			Help: "Current number of registered configuration watchers",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}, // Optimized for API latency
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Live Tail Metrics
	TailConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tail_connections_active",
			Help: "Current number of live tail WebSocket connections",
		},
	)

	TailMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tail_messages_sent_total",
			Help: "Total number of entries streamed to tail clients",
		},
	)

	TailMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tail_messages_dropped_total",
			Help: "Total number of entries dropped for slow tail clients",
		},
	)

	TailErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tail_errors_total",
			Help: "Total number of live tail errors",
		},
		[]string{"error_type"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordEntryLogged records an accepted entry and its dispatch latency
func RecordEntryLogged(level string, duration time.Duration) {
	PipelineEntriesLogged.WithLabelValues(level).Inc()
	PipelineDispatchDuration.WithLabelValues(level).Observe(duration.Seconds())
}

// RecordFilterRejection records an entry rejected by the filter chain
func RecordFilterRejection(filter string) {
	FilterRejections.WithLabelValues(filter).Inc()
}

// RecordFieldsMasked records field values masked by a sanitization pass
func RecordFieldsMasked(rule string, count int) {
	if count <= 0 {
		return
	}
	SanitizeFieldsMasked.WithLabelValues(rule).Add(float64(count))
}

// RecordComplianceSuppression records an entry suppressed by a compliance check
func RecordComplianceSuppression(reason string) {
	ComplianceSuppressions.WithLabelValues(reason).Inc()
}

// RecordConsentDecision records a consent grant or revocation
func RecordConsentDecision(granted bool) {
	decision := "revoked"
	if granted {
		decision = "granted"
	}
	ComplianceConsentDecisions.WithLabelValues(decision).Inc()
}

// RecordTrailWrite records an audit trail store write and its outcome
func RecordTrailWrite(duration time.Duration, err error) {
	TrailWriteDuration.Observe(duration.Seconds())
	if err != nil {
		TrailWriteErrors.Inc()
	} else {
		TrailEntriesWritten.Inc()
	}
}

// RecordAppenderDelivery records a sink delivery and categorizes any error
func RecordAppenderDelivery(appender string, duration time.Duration, err error) {
	AppenderDeliveryDuration.WithLabelValues(appender).Observe(duration.Seconds())
	if err != nil {
		AppenderDeliveryErrors.WithLabelValues(appender, categorizeDeliveryError(err)).Inc()
	}
}

// RecordAppenderDrop records an entry dropped before delivery
func RecordAppenderDrop(appender, reason string) {
	AppenderEntriesDropped.WithLabelValues(appender, reason).Inc()
}

// RecordAppenderRetry records a retry attempt and its outcome
func RecordAppenderRetry(appender string, success bool) {
	AppenderRetryAttempts.WithLabelValues(appender).Inc()
	if success {
		AppenderRetrySuccesses.WithLabelValues(appender).Inc()
	} else {
		AppenderRetryFailures.WithLabelValues(appender).Inc()
	}
}

// RecordBatchFlush records a flushed batch and its size
func RecordBatchFlush(appender string, batchSize int, duration time.Duration) {
	AppenderBatchFlushDuration.WithLabelValues(appender).Observe(duration.Seconds())
	AppenderBatchSize.WithLabelValues(appender).Observe(float64(batchSize))
}

// UpdateAppenderQueueDepth updates the buffered entry count for an appender
func UpdateAppenderQueueDepth(appender string, depth int) {
	AppenderQueueDepth.WithLabelValues(appender).Set(float64(depth))
}

// SetAppenderState publishes an appender lifecycle state
func SetAppenderState(appender string, state int) {
	AppenderState.WithLabelValues(appender).Set(float64(state))
}

// RecordFileRotation records a log file rotation and its outcome
func RecordFileRotation(appender string, err error) {
	if err != nil {
		FileRotationErrors.WithLabelValues(appender).Inc()
		return
	}
	FileRotations.WithLabelValues(appender).Inc()
}

// RecordMessagingPublish records a broker publish and its outcome
func RecordMessagingPublish(broker string, err error) {
	if err != nil {
		MessagingPublishErrors.WithLabelValues(broker).Inc()
		return
	}
	MessagingPublishes.WithLabelValues(broker).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// TrackTailConnection tracks active live tail connections
func TrackTailConnection(inc bool) {
	if inc {
		TailConnections.Inc()
	} else {
		TailConnections.Dec()
	}
}

// categorizeDeliveryError maps a delivery error to a bounded label value
func categorizeDeliveryError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "connection") || strings.Contains(msg, "dial") || strings.Contains(msg, "broken pipe"):
		return "connection"
	case strings.Contains(msg, "circuit breaker"):
		return "circuit_open"
	case strings.Contains(msg, "marshal") || strings.Contains(msg, "encode"):
		return "encode"
	default:
		return "other"
	}
}
