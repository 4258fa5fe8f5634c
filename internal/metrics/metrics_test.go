// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package metrics

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestRecordEntryLogged tests pipeline entry metric recording
func TestRecordEntryLogged(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		duration time.Duration
	}{
		{
			name:     "info entry with fast dispatch",
			level:    "INFO",
			duration: 50 * time.Microsecond,
		},
		{
			name:     "error entry",
			level:    "ERROR",
			duration: 200 * time.Microsecond,
		},
		{
			name:     "audit entry",
			level:    "AUDIT",
			duration: time.Millisecond,
		},
		{
			name:     "security entry with slow network appender",
			level:    "SECURITY",
			duration: 750 * time.Millisecond,
		},
		{
			name:     "trace entry",
			level:    "TRACE",
			duration: 10 * time.Microsecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordEntryLogged(tt.level, tt.duration)
		})
	}
}

// TestRecordEntryLoggedCounts verifies the per-level counter increments
func TestRecordEntryLoggedCounts(t *testing.T) {
	before := testutil.ToFloat64(PipelineEntriesLogged.WithLabelValues("METRICS"))

	RecordEntryLogged("METRICS", time.Microsecond)
	RecordEntryLogged("METRICS", time.Microsecond)
	RecordEntryLogged("METRICS", time.Microsecond)

	after := testutil.ToFloat64(PipelineEntriesLogged.WithLabelValues("METRICS"))
	if got := after - before; got != 3 {
		t.Errorf("PipelineEntriesLogged delta = %v, want 3", got)
	}
}

// TestRecordFilterRejection tests filter rejection recording
func TestRecordFilterRejection(t *testing.T) {
	filters := []string{"level", "category", "rate", "custom"}

	for _, filter := range filters {
		t.Run("filter_"+filter, func(t *testing.T) {
			RecordFilterRejection(filter)
		})
	}

	if got := testutil.ToFloat64(FilterRejections.WithLabelValues("level")); got < 1 {
		t.Errorf("FilterRejections[level] = %v, want >= 1", got)
	}
}

// TestRecordFieldsMasked tests sanitization metric recording
func TestRecordFieldsMasked(t *testing.T) {
	tests := []struct {
		name  string
		rule  string
		count int
		want  float64
	}{
		{"builtin rules masked three fields", "masked_builtin_a", 3, 3},
		{"custom rule masked one field", "masked_custom_a", 1, 1},
		{"zero count is not recorded", "masked_zero", 0, 0},
		{"negative count is not recorded", "masked_negative", -5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordFieldsMasked(tt.rule, tt.count)

			if got := testutil.ToFloat64(SanitizeFieldsMasked.WithLabelValues(tt.rule)); got != tt.want {
				t.Errorf("SanitizeFieldsMasked[%s] = %v, want %v", tt.rule, got, tt.want)
			}
		})
	}
}

// TestRecordComplianceSuppression tests suppression metric recording
func TestRecordComplianceSuppression(t *testing.T) {
	RecordComplianceSuppression("consent")
	RecordComplianceSuppression("region")
	RecordComplianceSuppression("consent")

	if got := testutil.ToFloat64(ComplianceSuppressions.WithLabelValues("consent")); got < 2 {
		t.Errorf("ComplianceSuppressions[consent] = %v, want >= 2", got)
	}
}

// TestRecordConsentDecision tests consent decision recording
func TestRecordConsentDecision(t *testing.T) {
	grantedBefore := testutil.ToFloat64(ComplianceConsentDecisions.WithLabelValues("granted"))
	revokedBefore := testutil.ToFloat64(ComplianceConsentDecisions.WithLabelValues("revoked"))

	RecordConsentDecision(true)
	RecordConsentDecision(true)
	RecordConsentDecision(false)

	if got := testutil.ToFloat64(ComplianceConsentDecisions.WithLabelValues("granted")) - grantedBefore; got != 2 {
		t.Errorf("granted delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(ComplianceConsentDecisions.WithLabelValues("revoked")) - revokedBefore; got != 1 {
		t.Errorf("revoked delta = %v, want 1", got)
	}
}

// TestRecordTrailWrite tests audit trail write recording
func TestRecordTrailWrite(t *testing.T) {
	writtenBefore := testutil.ToFloat64(TrailEntriesWritten)
	errorsBefore := testutil.ToFloat64(TrailWriteErrors)

	RecordTrailWrite(5*time.Millisecond, nil)
	RecordTrailWrite(10*time.Millisecond, errors.New("badger write failed"))
	RecordTrailWrite(2*time.Millisecond, nil)

	if got := testutil.ToFloat64(TrailEntriesWritten) - writtenBefore; got != 2 {
		t.Errorf("TrailEntriesWritten delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(TrailWriteErrors) - errorsBefore; got != 1 {
		t.Errorf("TrailWriteErrors delta = %v, want 1", got)
	}
}

// TestRecordAppenderDelivery tests sink delivery metric recording
func TestRecordAppenderDelivery(t *testing.T) {
	tests := []struct {
		name     string
		appender string
		duration time.Duration
		err      error
	}{
		{
			name:     "successful console delivery",
			appender: "console",
			duration: 100 * time.Microsecond,
			err:      nil,
		},
		{
			name:     "successful file delivery",
			appender: "audit-file",
			duration: 2 * time.Millisecond,
			err:      nil,
		},
		{
			name:     "http delivery timeout",
			appender: "webhook",
			duration: 5 * time.Second,
			err:      errors.New("context deadline exceeded"),
		},
		{
			name:     "nats delivery connection failure",
			appender: "events",
			duration: 50 * time.Millisecond,
			err:      errors.New("dial tcp 127.0.0.1:4222: connection refused"),
		},
		{
			name:     "rejected by open circuit breaker",
			appender: "webhook",
			duration: 10 * time.Microsecond,
			err:      errors.New("circuit breaker is open"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordAppenderDelivery(tt.appender, tt.duration, tt.err)
		})
	}
}

// TestCategorizeDeliveryError verifies error messages map to bounded label values
func TestCategorizeDeliveryError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"deadline exceeded", errors.New("context deadline exceeded"), "timeout"},
		{"explicit timeout", errors.New("i/o timeout"), "timeout"},
		{"wrapped timeout", errors.New("append entry: request Timeout after 5s"), "timeout"},
		{"connection refused", errors.New("dial tcp: connection refused"), "connection"},
		{"broken pipe", errors.New("write: broken pipe"), "connection"},
		{"circuit open", errors.New("circuit breaker is open"), "circuit_open"},
		{"marshal failure", errors.New("marshal entry: unsupported type"), "encode"},
		{"encode failure", errors.New("encode batch payload"), "encode"},
		{"unrecognized", errors.New("disk quota exceeded"), "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := categorizeDeliveryError(tt.err); got != tt.want {
				t.Errorf("categorizeDeliveryError(%q) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

// TestRecordAppenderDrop tests drop metric recording
func TestRecordAppenderDrop(t *testing.T) {
	reasons := []string{"buffer_full", "rate_limited", "stopped"}

	for _, reason := range reasons {
		t.Run("reason_"+reason, func(t *testing.T) {
			RecordAppenderDrop("drop-test", reason)

			if got := testutil.ToFloat64(AppenderEntriesDropped.WithLabelValues("drop-test", reason)); got != 1 {
				t.Errorf("AppenderEntriesDropped[drop-test,%s] = %v, want 1", reason, got)
			}
		})
	}
}

// TestRecordAppenderRetry tests retry metric recording
func TestRecordAppenderRetry(t *testing.T) {
	RecordAppenderRetry("retry-test", false)
	RecordAppenderRetry("retry-test", false)
	RecordAppenderRetry("retry-test", true)

	if got := testutil.ToFloat64(AppenderRetryAttempts.WithLabelValues("retry-test")); got != 3 {
		t.Errorf("AppenderRetryAttempts = %v, want 3", got)
	}
	if got := testutil.ToFloat64(AppenderRetrySuccesses.WithLabelValues("retry-test")); got != 1 {
		t.Errorf("AppenderRetrySuccesses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(AppenderRetryFailures.WithLabelValues("retry-test")); got != 2 {
		t.Errorf("AppenderRetryFailures = %v, want 2", got)
	}
}

// TestRecordBatchFlush tests batch flush metric recording
func TestRecordBatchFlush(t *testing.T) {
	tests := []struct {
		name      string
		appender  string
		batchSize int
		duration  time.Duration
	}{
		{"single entry flush", "file", 1, time.Millisecond},
		{"full batch flush", "webhook", 100, 50 * time.Millisecond},
		{"timer driven partial flush", "events", 7, 5 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordBatchFlush(tt.appender, tt.batchSize, tt.duration)
		})
	}
}

// TestUpdateAppenderQueueDepth tests queue depth gauge updates
func TestUpdateAppenderQueueDepth(t *testing.T) {
	UpdateAppenderQueueDepth("depth-test", 42)

	if got := testutil.ToFloat64(AppenderQueueDepth.WithLabelValues("depth-test")); got != 42 {
		t.Errorf("AppenderQueueDepth = %v, want 42", got)
	}

	UpdateAppenderQueueDepth("depth-test", 0)

	if got := testutil.ToFloat64(AppenderQueueDepth.WithLabelValues("depth-test")); got != 0 {
		t.Errorf("AppenderQueueDepth after drain = %v, want 0", got)
	}
}

// TestSetAppenderState tests lifecycle state gauge updates
func TestSetAppenderState(t *testing.T) {
	states := []int{0, 1, 2}

	for _, state := range states {
		SetAppenderState("state-test", state)

		if got := testutil.ToFloat64(AppenderState.WithLabelValues("state-test")); got != float64(state) {
			t.Errorf("AppenderState = %v, want %d", got, state)
		}
	}
}

// TestRecordFileRotation tests rotation metric recording
func TestRecordFileRotation(t *testing.T) {
	RecordFileRotation("rotate-test", nil)
	RecordFileRotation("rotate-test", nil)
	RecordFileRotation("rotate-test", errors.New("rename: no space left on device"))

	if got := testutil.ToFloat64(FileRotations.WithLabelValues("rotate-test")); got != 2 {
		t.Errorf("FileRotations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(FileRotationErrors.WithLabelValues("rotate-test")); got != 1 {
		t.Errorf("FileRotationErrors = %v, want 1", got)
	}
}

// TestRecordMessagingPublish tests broker publish metric recording
func TestRecordMessagingPublish(t *testing.T) {
	RecordMessagingPublish("nats", nil)
	RecordMessagingPublish("nats", errors.New("nats: connection closed"))
	RecordMessagingPublish("mqtt", nil)

	if got := testutil.ToFloat64(MessagingPublishes.WithLabelValues("nats")); got < 1 {
		t.Errorf("MessagingPublishes[nats] = %v, want >= 1", got)
	}
	if got := testutil.ToFloat64(MessagingPublishErrors.WithLabelValues("nats")); got < 1 {
		t.Errorf("MessagingPublishErrors[nats] = %v, want >= 1", got)
	}
}

// TestRecordAPIRequest tests API request metric recording
func TestRecordAPIRequest(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		endpoint   string
		statusCode string
		duration   time.Duration
	}{
		{
			name:       "successful log ingest",
			method:     "POST",
			endpoint:   "/api/v1/logs",
			statusCode: "202",
			duration:   5 * time.Millisecond,
		},
		{
			name:       "successful config fetch",
			method:     "GET",
			endpoint:   "/api/v1/config",
			statusCode: "200",
			duration:   2 * time.Millisecond,
		},
		{
			name:       "consent grant",
			method:     "POST",
			endpoint:   "/api/v1/compliance/consent",
			statusCode: "200",
			duration:   15 * time.Millisecond,
		},
		{
			name:       "rejected config update",
			method:     "PUT",
			endpoint:   "/api/v1/config",
			statusCode: "422",
			duration:   3 * time.Millisecond,
		},
		{
			name:       "internal server error",
			method:     "GET",
			endpoint:   "/api/v1/compliance/trail",
			statusCode: "500",
			duration:   100 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordAPIRequest(tt.method, tt.endpoint, tt.statusCode, tt.duration)
		})
	}
}

// TestTrackActiveRequest tests active request gauge tracking
func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)

	TrackActiveRequest(true)
	TrackActiveRequest(true)

	if got := testutil.ToFloat64(APIActiveRequests) - before; got != 2 {
		t.Errorf("APIActiveRequests delta = %v, want 2", got)
	}

	TrackActiveRequest(false)
	TrackActiveRequest(false)

	if got := testutil.ToFloat64(APIActiveRequests) - before; got != 0 {
		t.Errorf("APIActiveRequests delta after release = %v, want 0", got)
	}
}

// TestTrackTailConnection tests live tail connection gauge tracking
func TestTrackTailConnection(t *testing.T) {
	before := testutil.ToFloat64(TailConnections)

	TrackTailConnection(true)
	TrackTailConnection(true)
	TrackTailConnection(false)

	if got := testutil.ToFloat64(TailConnections) - before; got != 1 {
		t.Errorf("TailConnections delta = %v, want 1", got)
	}

	TrackTailConnection(false)
}

// TestMetricsRegistration verifies all metrics are properly registered
func TestMetricsRegistration(t *testing.T) {
	metrics := []prometheus.Collector{
		PipelineEntriesLogged,
		PipelineDispatchDuration,
		PipelineEntriesBelowThreshold,
		FilterRejections,
		SanitizeFieldsMasked,
		ComplianceSuppressions,
		ComplianceEntriesAnonymized,
		ComplianceConsentDecisions,
		TrailEntriesWritten,
		TrailEntriesDropped,
		TrailWriteErrors,
		TrailWriteDuration,
		AppenderState,
		AppenderDeliveryDuration,
		AppenderDeliveryErrors,
		AppenderEntriesDropped,
		AppenderQueueDepth,
		AppenderBatchFlushDuration,
		AppenderBatchSize,
		AppenderRetryAttempts,
		AppenderRetrySuccesses,
		AppenderRetryFailures,
		FileRotations,
		FileRotationErrors,
		MessagingPublishes,
		MessagingPublishErrors,
		MessagingReconnects,
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerTransitions,
		CacheHits,
		CacheMisses,
		CacheSize,
		RegistryActiveLoggers,
		RegistryActiveAppenders,
		ConfigReloads,
		ConfigWatchers,
		APIRequestsTotal,
		APIRequestDuration,
		APIActiveRequests,
		APIRateLimitHits,
		TailConnections,
		TailMessagesSent,
		TailMessagesDropped,
		TailErrors,
		AppInfo,
		AppUptime,
	}

	// Verify each metric can be described
	for _, m := range metrics {
		ch := make(chan *prometheus.Desc, 10)
		m.Describe(ch)
		close(ch)

		// Should have at least one descriptor
		count := 0
		for range ch {
			count++
		}
		if count == 0 {
			t.Errorf("Metric has no descriptors")
		}
	}
}

// TestMetricGathering tests that metrics can be gathered using testutil
func TestMetricGathering(t *testing.T) {
	// Record some metrics
	RecordEntryLogged("INFO", time.Microsecond)
	RecordAPIRequest("GET", "/test", "200", time.Millisecond)

	// Verify we can lint the metrics (checks for consistency issues)
	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Logf("Lint errors (may be expected): %v", err)
	}
	for _, p := range problems {
		t.Logf("Metric lint problem: %s", p.Text)
	}
}

// TestConcurrentRecording verifies helpers are safe under concurrent use
func TestConcurrentRecording(t *testing.T) {
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			appender := "concurrent-" + strconv.Itoa(id%3)
			for j := 0; j < 100; j++ {
				RecordEntryLogged("INFO", time.Microsecond)
				RecordAppenderDelivery(appender, time.Millisecond, nil)
				UpdateAppenderQueueDepth(appender, j)
				RecordAppenderDrop(appender, "buffer_full")
				TrackActiveRequest(j%2 == 0)
			}
		}(i)
	}

	wg.Wait()
}

// Benchmark tests for metrics performance

func BenchmarkRecordEntryLogged(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordEntryLogged("INFO", 100*time.Microsecond)
	}
}

func BenchmarkRecordAppenderDelivery(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordAppenderDelivery("console", time.Millisecond, nil)
	}
}

func BenchmarkRecordAppenderDeliveryWithError(b *testing.B) {
	err := errors.New("dial tcp: connection refused")
	for i := 0; i < b.N; i++ {
		RecordAppenderDelivery("webhook", time.Millisecond, err)
	}
}

func BenchmarkRecordAPIRequest(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordAPIRequest("GET", "/api/v1/logs", "200", 25*time.Millisecond)
	}
}

func BenchmarkCategorizeDeliveryError(b *testing.B) {
	err := errors.New("context deadline exceeded")
	for i := 0; i < b.N; i++ {
		categorizeDeliveryError(err)
	}
}
