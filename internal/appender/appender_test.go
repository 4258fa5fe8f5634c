// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package appender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/entry"
	"github.com/tomtom215/tabularium/internal/layout"
	"github.com/tomtom215/tabularium/internal/level"
	"github.com/tomtom215/tabularium/internal/metrics"
	"github.com/tomtom215/tabularium/internal/selflog"
)

func testEntry(msg string) *entry.Entry {
	return entry.New(level.Info, "app.test", msg)
}

func memConfig(name string, mut func(*config.AppenderConfig)) config.AppenderConfig {
	cfg := config.AppenderConfig{
		Name:   name,
		Type:   "memory",
		Active: true,
	}
	if mut != nil {
		mut(&cfg)
	}
	return cfg
}

func startedMemory(t *testing.T, name string, mut func(*config.AppenderConfig)) *Memory {
	t.Helper()

	m, err := NewMemory(memConfig(name, mut), layout.NewJSON(layout.Options{}))
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Stop(ctx)
	})
	return m
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func stopAppender(t *testing.T, a Appender) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestLifecycle(t *testing.T) {
	m, err := NewMemory(memConfig("t-lifecycle", nil), layout.NewJSON(layout.Options{}))
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}

	if m.IsReady() {
		t.Error("IsReady() = true before Start")
	}
	if got := testutil.ToFloat64(metrics.AppenderState.WithLabelValues("t-lifecycle")); got != 0 {
		t.Errorf("state gauge before Start = %v, want 0", got)
	}

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !m.IsReady() {
		t.Error("IsReady() = false after Start")
	}
	if err := m.Start(); err != nil {
		t.Errorf("second Start() error = %v, want nil", err)
	}
	if got := testutil.ToFloat64(metrics.AppenderState.WithLabelValues("t-lifecycle")); got != 1 {
		t.Errorf("state gauge after Start = %v, want 1", got)
	}

	stopAppender(t, m)
	if m.IsReady() {
		t.Error("IsReady() = true after Stop")
	}
	stopAppender(t, m) // idempotent
	if got := testutil.ToFloat64(metrics.AppenderState.WithLabelValues("t-lifecycle")); got != 2 {
		t.Errorf("state gauge after Stop = %v, want 2", got)
	}

	if err := m.Start(); !errors.Is(err, ErrStopped) {
		t.Errorf("Start() after Stop error = %v, want ErrStopped", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	m, err := NewMemory(memConfig("t-stop-fresh", nil), layout.NewJSON(layout.Options{}))
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	stopAppender(t, m)
	if m.IsReady() {
		t.Error("IsReady() = true after Stop on uninitialized appender")
	}
}

func TestAppendDelivers(t *testing.T) {
	m := startedMemory(t, "t-deliver", nil)

	m.Append(testEntry("first"))
	m.Append(testEntry("second"))
	m.Append(testEntry("third"))

	waitFor(t, 2*time.Second, func() bool { return m.Len() == 3 })

	payloads := m.Payloads()
	for i, want := range []string{"first", "second", "third"} {
		if !strings.Contains(payloads[i], want) {
			t.Errorf("payload[%d] = %s, missing %q", i, payloads[i], want)
		}
	}
	for _, p := range payloads {
		if !strings.HasPrefix(p, "{") || !strings.HasSuffix(p, "}") {
			t.Errorf("payload %q is not a JSON object", p)
		}
	}
}

func TestAppendBeforeStartDrops(t *testing.T) {
	m, err := NewMemory(memConfig("t-early", nil), layout.NewJSON(layout.Options{}))
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}

	m.Append(testEntry("too early"))

	if got := testutil.ToFloat64(metrics.AppenderEntriesDropped.WithLabelValues("t-early", "stopped")); got != 1 {
		t.Errorf("dropped(stopped) = %v, want 1", got)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	stopAppender(t, m)
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestAppendNil(t *testing.T) {
	m := startedMemory(t, "t-nil", nil)
	m.Append(nil)
	stopAppender(t, m)
	if m.Len() != 0 {
		t.Errorf("Len() = %d after nil Append, want 0", m.Len())
	}
}

func TestBatchBySize(t *testing.T) {
	m := startedMemory(t, "t-batch-size", func(cfg *config.AppenderConfig) {
		cfg.Throttling = &config.ThrottlingConfig{
			MaxBatchSize: 2,
			MaxInterval:  time.Hour, // only size triggers flushes
		}
	})

	for i := 0; i < 5; i++ {
		m.Append(testEntry(fmt.Sprintf("msg-%d", i)))
	}

	waitFor(t, 2*time.Second, func() bool { return m.Len() >= 4 })
	stopAppender(t, m) // drains the odd entry

	if m.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", m.Len())
	}
	sizes := m.BatchSizes()
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Errorf("BatchSizes() = %v, want [2 2 1]", sizes)
	}
}

func TestBatchByInterval(t *testing.T) {
	m := startedMemory(t, "t-batch-tick", func(cfg *config.AppenderConfig) {
		cfg.Throttling = &config.ThrottlingConfig{
			MaxBatchSize: 100,
			MaxInterval:  30 * time.Millisecond,
		}
	})

	m.Append(testEntry("a"))
	m.Append(testEntry("b"))

	// The ticker must flush the partial batch without Stop.
	waitFor(t, 2*time.Second, func() bool { return m.Len() == 2 })

	sizes := m.BatchSizes()
	if len(sizes) == 0 {
		t.Fatal("no batches delivered")
	}
}

func TestRetryEventuallyDelivers(t *testing.T) {
	m := startedMemory(t, "t-retry-ok", func(cfg *config.AppenderConfig) {
		cfg.Retry = &config.RetryConfig{
			MaxAttempts: 3,
			Backoff:     time.Millisecond,
		}
	})
	m.FailNext(2)

	m.Append(testEntry("survives"))

	waitFor(t, 2*time.Second, func() bool { return m.Len() == 1 })

	if got := testutil.ToFloat64(metrics.AppenderRetryAttempts.WithLabelValues("t-retry-ok")); got != 2 {
		t.Errorf("retry attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.AppenderRetrySuccesses.WithLabelValues("t-retry-ok")); got != 1 {
		t.Errorf("retry successes = %v, want 1", got)
	}
}

func TestRetryExhaustedDropsBatch(t *testing.T) {
	var diag bytes.Buffer
	prev := selflog.Logger()
	selflog.SetLogger(selflog.NewTestLogger(&diag))
	defer selflog.SetLogger(prev)

	m := startedMemory(t, "t-retry-dead", func(cfg *config.AppenderConfig) {
		cfg.Retry = &config.RetryConfig{
			MaxAttempts: 2,
			Backoff:     time.Millisecond,
		}
	})
	m.FailNext(10)

	m.Append(testEntry("doomed"))

	// Both retries fail, so the failure counter lands on two.
	waitFor(t, 2*time.Second, func() bool {
		return testutil.ToFloat64(metrics.AppenderRetryFailures.WithLabelValues("t-retry-dead")) == 2
	})
	stopAppender(t, m)

	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after exhausted retries", m.Len())
	}
	if !strings.Contains(diag.String(), "delivery failed") {
		t.Errorf("diagnostics missing delivery failure, got: %s", diag.String())
	}
}

func TestRateLimitDropMode(t *testing.T) {
	m := startedMemory(t, "t-rate-drop", func(cfg *config.AppenderConfig) {
		cfg.Throttling = &config.ThrottlingConfig{
			MaxPerSecond: 1,
			OnLimit:      "drop",
		}
	})

	// One token in the bucket: the first entry passes, the burst drops.
	m.Append(testEntry("kept"))
	m.Append(testEntry("shed-1"))
	m.Append(testEntry("shed-2"))

	waitFor(t, 2*time.Second, func() bool { return m.Len() == 1 })

	if got := testutil.ToFloat64(metrics.AppenderEntriesDropped.WithLabelValues("t-rate-drop", "rate_limited")); got != 2 {
		t.Errorf("dropped(rate_limited) = %v, want 2", got)
	}
	if !strings.Contains(m.Payloads()[0], "kept") {
		t.Errorf("delivered payload = %s, want the first entry", m.Payloads()[0])
	}
}

func TestRateLimitQueueMode(t *testing.T) {
	m := startedMemory(t, "t-rate-queue", func(cfg *config.AppenderConfig) {
		cfg.Throttling = &config.ThrottlingConfig{
			MaxPerSecond: 1000,
			OnLimit:      "queue",
		}
	})

	for i := 0; i < 5; i++ {
		m.Append(testEntry(fmt.Sprintf("q-%d", i)))
	}
	waitFor(t, 2*time.Second, func() bool { return m.Len() == 5 })

	if got := testutil.ToFloat64(metrics.AppenderEntriesDropped.WithLabelValues("t-rate-queue", "rate_limited")); got != 0 {
		t.Errorf("dropped(rate_limited) = %v, want 0 in queue mode", got)
	}
}

// blockSink parks every write until its gate closes, so tests can hold
// the delivery goroutine mid-flight.
type blockSink struct {
	started   chan struct{}
	gate      chan struct{}
	startOnce sync.Once
}

func newBlockSink() *blockSink {
	return &blockSink{
		started: make(chan struct{}),
		gate:    make(chan struct{}),
	}
}

func (s *blockSink) configure(map[string]any) error { return nil }
func (s *blockSink) open() error                    { return nil }
func (s *blockSink) close(context.Context) error    { return nil }

func (s *blockSink) write(ctx context.Context, _ []Record, _ string) error {
	s.startOnce.Do(func() { close(s.started) })
	select {
	case <-s.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestBufferFullDrops(t *testing.T) {
	s := newBlockSink()
	e := newEngine("t-buffer-full", s)
	e.SetLayout(layout.NewJSON(layout.Options{}))
	if err := e.Configure(memConfig("t-buffer-full", func(cfg *config.AppenderConfig) {
		cfg.Properties = map[string]any{"bufferSize": 2}
	})); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	e.Append(testEntry("in-flight"))
	<-s.started // delivery goroutine is parked inside write

	e.Append(testEntry("buffered-1"))
	e.Append(testEntry("buffered-2"))
	e.Append(testEntry("overflow"))

	if got := testutil.ToFloat64(metrics.AppenderEntriesDropped.WithLabelValues("t-buffer-full", "buffer_full")); got != 1 {
		t.Errorf("dropped(buffer_full) = %v, want 1", got)
	}

	close(s.gate)
	stopAppender(t, e)
}

func TestStopTimeoutBounded(t *testing.T) {
	s := newBlockSink()
	e := newEngine("t-stop-timeout", s)
	e.SetLayout(layout.NewJSON(layout.Options{}))
	if err := e.Configure(memConfig("t-stop-timeout", func(cfg *config.AppenderConfig) {
		cfg.StopTimeout = 50 * time.Millisecond
	})); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	e.Append(testEntry("stuck"))
	<-s.started

	begin := time.Now()
	if err := e.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if elapsed := time.Since(begin); elapsed > 2*time.Second {
		t.Errorf("Stop() took %s, want bounded by the stop timeout", elapsed)
	}
	if e.IsReady() {
		t.Error("IsReady() = true after timed-out Stop")
	}
}

// panicSink blows up on the first write and succeeds afterwards.
type panicSink struct {
	mem   memorySink
	fired bool
}

func (s *panicSink) configure(props map[string]any) error { return s.mem.configure(props) }
func (s *panicSink) open() error                          { return s.mem.open() }
func (s *panicSink) close(ctx context.Context) error      { return s.mem.close(ctx) }

func (s *panicSink) write(ctx context.Context, recs []Record, ct string) error {
	if !s.fired {
		s.fired = true
		panic("sink exploded")
	}
	return s.mem.write(ctx, recs, ct)
}

func TestSinkPanicRecovered(t *testing.T) {
	s := &panicSink{mem: memorySink{max: defaultMemoryCapacity}}
	e := newEngine("t-panic", s)
	e.SetLayout(layout.NewJSON(layout.Options{}))
	if err := e.Configure(memConfig("t-panic", func(cfg *config.AppenderConfig) {
		cfg.Retry = &config.RetryConfig{MaxAttempts: 1, Backoff: time.Millisecond}
	})); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	e.Append(testEntry("boom then fine"))

	waitFor(t, 2*time.Second, func() bool {
		s.mem.mu.RLock()
		defer s.mem.mu.RUnlock()
		return len(s.mem.entries) == 1
	})

	// The delivery goroutine survived the panic.
	e.Append(testEntry("second"))
	waitFor(t, 2*time.Second, func() bool {
		s.mem.mu.RLock()
		defer s.mem.mu.RUnlock()
		return len(s.mem.entries) == 2
	})
	stopAppender(t, e)
}

func TestConfigureRules(t *testing.T) {
	m := startedMemory(t, "t-reconf", nil)

	// Delivery tunables may change while running.
	if err := m.Configure(memConfig("t-reconf", func(cfg *config.AppenderConfig) {
		cfg.Throttling = &config.ThrottlingConfig{MaxPerSecond: 100}
		cfg.Retry = &config.RetryConfig{MaxAttempts: 1}
	})); err != nil {
		t.Errorf("Configure() while running error = %v", err)
	}

	// Structural settings may not.
	err := m.Configure(memConfig("t-reconf", func(cfg *config.AppenderConfig) {
		cfg.Properties = map[string]any{"bufferSize": 7}
	}))
	if err == nil {
		t.Error("Configure() with bufferSize change while running, want error")
	}

	stopAppender(t, m)
	if err := m.Configure(memConfig("t-reconf", nil)); !errors.Is(err, ErrStopped) {
		t.Errorf("Configure() after Stop error = %v, want ErrStopped", err)
	}
}

func TestStopDrainsBuffered(t *testing.T) {
	m := startedMemory(t, "t-drain", func(cfg *config.AppenderConfig) {
		cfg.Throttling = &config.ThrottlingConfig{
			MaxBatchSize: 50,
			MaxInterval:  time.Hour,
		}
	})

	for i := 0; i < 10; i++ {
		m.Append(testEntry(fmt.Sprintf("pending-%d", i)))
	}
	stopAppender(t, m)

	if m.Len() != 10 {
		t.Errorf("Len() = %d after Stop, want 10 drained entries", m.Len())
	}
}

func TestMemoryCapacity(t *testing.T) {
	m := startedMemory(t, "t-mem-cap", func(cfg *config.AppenderConfig) {
		cfg.Properties = map[string]any{"maxEntries": 3}
	})

	for i := 0; i < 5; i++ {
		m.Append(testEntry(fmt.Sprintf("n-%d", i)))
	}
	waitFor(t, 2*time.Second, func() bool { return len(m.BatchSizes()) == 5 })
	stopAppender(t, m)

	payloads := m.Payloads()
	if len(payloads) != 3 {
		t.Fatalf("len(payloads) = %d, want 3", len(payloads))
	}
	if !strings.Contains(payloads[0], "n-2") || !strings.Contains(payloads[2], "n-4") {
		t.Errorf("oldest entries not evicted: %v", payloads)
	}
}

func TestConsoleWritesLines(t *testing.T) {
	c, err := NewConsole(config.AppenderConfig{Name: "t-console", Type: "console"}, layout.NewJSON(layout.Options{}))
	if err != nil {
		t.Fatalf("NewConsole() error = %v", err)
	}
	var buf bytes.Buffer
	c.s.setWriter(&buf)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	c.Append(testEntry("line one"))
	c.Append(testEntry("line two"))
	stopAppender(t, c)

	out := buf.String()
	if got := strings.Count(out, "\n"); got != 2 {
		t.Errorf("line count = %d, want 2; output: %q", got, out)
	}
	if !strings.Contains(out, "line one") || !strings.Contains(out, "line two") {
		t.Errorf("output missing payloads: %q", out)
	}
}

func TestConsoleTargetValidation(t *testing.T) {
	_, err := NewConsole(config.AppenderConfig{
		Name:       "t-console-bad",
		Type:       "console",
		Properties: map[string]any{"target": "printer"},
	}, layout.NewJSON(layout.Options{}))
	if err == nil {
		t.Error("NewConsole() with bogus target, want error")
	}
}

type collectBroadcaster struct {
	mu       sync.Mutex
	payloads []string
}

func (b *collectBroadcaster) Broadcast(p []byte) {
	b.mu.Lock()
	b.payloads = append(b.payloads, string(p))
	b.mu.Unlock()
}

func (b *collectBroadcaster) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.payloads)
}

func TestLiveTailBroadcasts(t *testing.T) {
	b := &collectBroadcaster{}
	lt, err := NewLiveTail(config.AppenderConfig{Name: "t-tail", Type: "livetail"}, layout.NewJSON(layout.Options{}), b)
	if err != nil {
		t.Fatalf("NewLiveTail() error = %v", err)
	}
	if err := lt.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	lt.Append(testEntry("streamed"))
	waitFor(t, 2*time.Second, func() bool { return b.len() == 1 })
	stopAppender(t, lt)

	if !strings.Contains(b.payloads[0], "streamed") {
		t.Errorf("broadcast payload = %q, missing entry message", b.payloads[0])
	}
}

func TestLiveTailNilBroadcaster(t *testing.T) {
	lt, err := NewLiveTail(config.AppenderConfig{Name: "t-tail-nil", Type: "livetail"}, layout.NewJSON(layout.Options{}), nil)
	if err != nil {
		t.Fatalf("NewLiveTail() error = %v", err)
	}
	if err := lt.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	lt.Append(testEntry("nowhere"))
	stopAppender(t, lt)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUninitialized, "uninitialized"},
		{StateReady, "ready"},
		{StateStopped, "stopped"},
		{State(9), "state(9)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestResolveThrottling(t *testing.T) {
	got := resolveThrottling(nil)
	if got.MaxBatchSize != 1 {
		t.Errorf("nil throttling MaxBatchSize = %d, want 1", got.MaxBatchSize)
	}

	got = resolveThrottling(&config.ThrottlingConfig{MaxBatchSize: 10})
	if got.MaxInterval != time.Second {
		t.Errorf("batched with no interval MaxInterval = %s, want 1s", got.MaxInterval)
	}

	got = resolveThrottling(&config.ThrottlingConfig{MaxBatchSize: 10, MaxInterval: 5 * time.Second})
	if got.MaxInterval != 5*time.Second {
		t.Errorf("MaxInterval = %s, want 5s preserved", got.MaxInterval)
	}
}

func TestBuildLimiter(t *testing.T) {
	lim, queue := buildLimiter(config.ThrottlingConfig{})
	if lim != nil || queue {
		t.Error("no MaxPerSecond should produce no limiter")
	}

	lim, queue = buildLimiter(config.ThrottlingConfig{MaxPerSecond: 10, MaxBatchSize: 50, OnLimit: "queue"})
	if lim == nil || !queue {
		t.Fatal("expected queueing limiter")
	}
	if lim.Burst() != 50 {
		t.Errorf("Burst() = %d, want 50 (covers one full batch)", lim.Burst())
	}
}

func TestConcurrentAppend(t *testing.T) {
	m := startedMemory(t, "t-concurrent", func(cfg *config.AppenderConfig) {
		cfg.Throttling = &config.ThrottlingConfig{MaxBatchSize: 16, MaxInterval: 10 * time.Millisecond}
	})

	const goroutines = 8
	const perG = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				m.Append(testEntry(fmt.Sprintf("g%d-%d", g, i)))
			}
		}(g)
	}
	wg.Wait()

	waitFor(t, 5*time.Second, func() bool { return m.Len() == goroutines*perG })
}

func BenchmarkAppend(b *testing.B) {
	m, err := NewMemory(memConfig("b-append", func(cfg *config.AppenderConfig) {
		cfg.Throttling = &config.ThrottlingConfig{MaxBatchSize: 64, MaxInterval: time.Millisecond}
	}), layout.NewJSON(layout.Options{}))
	if err != nil {
		b.Fatalf("NewMemory() error = %v", err)
	}
	if err := m.Start(); err != nil {
		b.Fatalf("Start() error = %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Stop(ctx)
	}()

	ent := testEntry("benchmark")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Append(ent)
	}
}
