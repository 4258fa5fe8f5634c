// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package appender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/entry"
	"github.com/tomtom215/tabularium/internal/layout"
	"github.com/tomtom215/tabularium/internal/metrics"
	"github.com/tomtom215/tabularium/internal/selflog"
)

// State is an appender's lifecycle position. The lifecycle is one-way:
// uninitialized appenders become ready on Start and stopped on Stop, and
// a stopped appender cannot be restarted.
type State int

const (
	// StateUninitialized means the appender is configured but Start has
	// not been called. Append drops entries in this state.
	StateUninitialized State = iota

	// StateReady means the delivery goroutine is running and Append
	// enqueues entries.
	StateReady

	// StateStopped means the appender has shut down and released its
	// sink. Append drops entries in this state.
	StateStopped
)

// String returns the lifecycle state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrStopped is returned when an operation requires an appender that
	// has not been stopped.
	ErrStopped = errors.New("appender is stopped")

	// ErrNotReady is returned when an operation requires a started
	// appender.
	ErrNotReady = errors.New("appender is not ready")
)

// Drop reasons reported through the appender_entries_dropped_total metric.
const (
	dropBufferFull  = "buffer_full"
	dropRateLimited = "rate_limited"
	dropStopped     = "stopped"
)

const (
	// DefaultStopTimeout bounds the drain during Stop when the
	// configuration does not set a per-appender timeout.
	DefaultStopTimeout = 5 * time.Second

	// defaultBufferSize is the entry channel capacity between Append and
	// the delivery goroutine.
	defaultBufferSize = 1024
)

// Appender delivers formatted log entries to one destination.
//
// Append never blocks and never returns an error: delivery failures are
// retried per the retry policy, then reported through selflog and the
// delivery metrics. IsReady tells dispatchers whether Append is worth
// calling at all.
type Appender interface {
	// Name returns the configured appender name.
	Name() string

	// Append enqueues an entry for delivery. Entries appended while the
	// appender is not ready are dropped and counted.
	Append(e *entry.Entry)

	// Start opens the sink and launches the delivery goroutine.
	// Idempotent while ready; a stopped appender cannot be restarted.
	Start() error

	// Stop drains buffered entries, flushes the sink, and releases it.
	// The drain is bounded by the context deadline, or by the configured
	// stop timeout when the context has none. Idempotent.
	Stop(ctx context.Context) error

	// IsReady reports whether Append currently enqueues entries.
	IsReady() bool

	// Configure applies delivery settings from the given configuration.
	// Throttling, retry, and stop timeout changes take effect on the
	// next flush; structural settings such as the buffer size or a
	// sink's connection target cannot change while the appender is
	// running.
	Configure(cfg config.AppenderConfig) error

	// SetLayout swaps the formatter used for subsequent flushes.
	SetLayout(l layout.Layout)
}

// Record pairs an entry with the payload its layout produced for it.
// Sinks receive records so text-oriented destinations can write payloads
// while message-oriented ones also read entry metadata.
type Record struct {
	Entry   *entry.Entry
	Payload []byte
}

// sink is the destination half of an appender. The engine serializes all
// write and close calls onto the delivery goroutine; open and configure
// may be called from other goroutines and sinks guard their own state.
type sink interface {
	// configure applies type-specific properties. Called at construction
	// and again on reconfiguration, possibly while open.
	configure(props map[string]any) error

	// open acquires the destination (file handle, connection, server).
	open() error

	// write delivers one formatted batch. contentType is the active
	// layout's MIME type for sinks that transmit it.
	write(ctx context.Context, recs []Record, contentType string) error

	// close flushes and releases the destination.
	close(ctx context.Context) error
}

// engine is the shared delivery core embedded by every appender type. It
// owns the lifecycle state machine, the entry buffer, batching, rate
// limiting, and retries, and hands formatted batches to the sink.
type engine struct {
	name string
	s    sink

	mu          sync.RWMutex
	state       State
	lay         layout.Layout
	throttle    config.ThrottlingConfig
	retry       retryPolicy
	stopTimeout time.Duration
	bufSize     int

	// limiter is nil when no rate limit is configured. queueOnLimit
	// selects backpressure at flush time instead of dropping at Append.
	limiter      *rate.Limiter
	queueOnLimit bool

	ch        chan *entry.Entry
	stopCh    chan struct{}
	done      chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
}

func newEngine(name string, s sink) *engine {
	e := &engine{
		name:        name,
		s:           s,
		state:       StateUninitialized,
		stopTimeout: DefaultStopTimeout,
		bufSize:     defaultBufferSize,
		throttle:    config.ThrottlingConfig{MaxBatchSize: 1},
	}
	metrics.SetAppenderState(name, int(StateUninitialized))
	return e
}

// Name implements Appender.
func (e *engine) Name() string { return e.name }

// IsReady implements Appender.
func (e *engine) IsReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == StateReady
}

// SetLayout implements Appender. Layouts lock internally, so swapping the
// reference under the engine lock is the only synchronization needed.
func (e *engine) SetLayout(l layout.Layout) {
	if l == nil {
		return
	}
	e.mu.Lock()
	e.lay = l
	e.mu.Unlock()
}

// Configure implements Appender.
func (e *engine) Configure(cfg config.AppenderConfig) error {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return ErrStopped
	}
	running := e.state == StateReady

	bufSize := propInt(cfg.Properties, "bufferSize", defaultBufferSize)
	if bufSize <= 0 {
		bufSize = defaultBufferSize
	}
	if running && bufSize != e.bufSize {
		e.mu.Unlock()
		return fmt.Errorf("appender %q: bufferSize cannot change while running", e.name)
	}
	e.bufSize = bufSize

	e.throttle = resolveThrottling(cfg.Throttling)
	e.retry = resolveRetry(cfg.Retry)
	e.limiter, e.queueOnLimit = buildLimiter(e.throttle)

	if cfg.StopTimeout > 0 {
		e.stopTimeout = cfg.StopTimeout
	} else {
		e.stopTimeout = DefaultStopTimeout
	}
	e.mu.Unlock()

	return e.s.configure(cfg.Properties)
}

// Start implements Appender.
func (e *engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateReady:
		return nil
	case StateStopped:
		return ErrStopped
	}

	if e.lay == nil {
		e.lay = layout.NewJSON(layout.Options{})
	}
	if err := e.s.open(); err != nil {
		return fmt.Errorf("start appender %q: %w", e.name, err)
	}

	e.ch = make(chan *entry.Entry, e.bufSize)
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	e.runCtx, e.runCancel = context.WithCancel(context.Background())
	e.state = StateReady
	metrics.SetAppenderState(e.name, int(StateReady))

	go e.run()
	return nil
}

// Append implements Appender.
func (e *engine) Append(ent *entry.Entry) {
	if ent == nil {
		return
	}

	e.mu.RLock()
	st := e.state
	lim := e.limiter
	queue := e.queueOnLimit
	ch := e.ch
	e.mu.RUnlock()

	if st != StateReady {
		metrics.RecordAppenderDrop(e.name, dropStopped)
		return
	}

	// Drop-mode rate limiting rejects at the producer so the buffer only
	// holds entries that will actually be delivered. Queue mode meters at
	// flush time instead and lets the buffer absorb the burst.
	if lim != nil && !queue && !lim.Allow() {
		metrics.RecordAppenderDrop(e.name, dropRateLimited)
		return
	}

	select {
	case ch <- ent:
		metrics.UpdateAppenderQueueDepth(e.name, len(ch))
	default:
		metrics.RecordAppenderDrop(e.name, dropBufferFull)
		selflog.Warn().
			Str("appender", e.name).
			Int("capacity", cap(ch)).
			Msg("buffer full, entry dropped")
	}
}

// Stop implements Appender.
func (e *engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	switch e.state {
	case StateStopped:
		e.mu.Unlock()
		return nil
	case StateUninitialized:
		e.state = StateStopped
		metrics.SetAppenderState(e.name, int(StateStopped))
		e.mu.Unlock()
		return nil
	}
	e.state = StateStopped
	metrics.SetAppenderState(e.name, int(StateStopped))
	stopTimeout := e.stopTimeout
	e.mu.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stopTimeout)
		defer cancel()
	}

	close(e.stopCh)

	select {
	case <-e.done:
	case <-ctx.Done():
		// Abort in-flight retries and waits so the drain can finish.
		e.runCancel()
		<-e.done
		selflog.Warn().
			Str("appender", e.name).
			Dur("timeout", stopTimeout).
			Msg("stop deadline reached before drain completed")
	}
	e.runCancel()

	if err := e.s.close(ctx); err != nil {
		selflog.Error().Err(err).Str("appender", e.name).Msg("sink close failed")
		return fmt.Errorf("stop appender %q: %w", e.name, err)
	}
	return nil
}

// run is the delivery loop. It accumulates entries into batches, flushes
// on size or interval, and drains the buffer on stop.
func (e *engine) run() {
	defer close(e.done)

	e.mu.RLock()
	interval := e.throttle.MaxInterval
	batching := e.throttle.MaxBatchSize > 1
	e.mu.RUnlock()

	var tickCh <-chan time.Time
	if batching && interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tickCh = t.C
	}

	pending := make([]*entry.Entry, 0, e.maxBatch())

	for {
		select {
		case ent := <-e.ch:
			pending = append(pending, ent)
			if len(pending) >= e.maxBatch() {
				e.flush(e.runCtx, pending)
				pending = pending[:0]
			}

		case <-tickCh:
			if len(pending) > 0 {
				e.flush(e.runCtx, pending)
				pending = pending[:0]
			}

		case <-e.stopCh:
			e.drain(pending)
			return
		}
	}
}

// drain empties the buffer after stop has been requested, delivering in
// batches until the channel is exhausted or the run context is canceled.
func (e *engine) drain(pending []*entry.Entry) {
	for {
		select {
		case ent := <-e.ch:
			pending = append(pending, ent)
			if len(pending) >= e.maxBatch() {
				e.flush(e.runCtx, pending)
				pending = pending[:0]
			}
		case <-e.runCtx.Done():
			e.dropPending(pending)
			return
		default:
			e.flush(e.runCtx, pending)
			return
		}
	}
}

func (e *engine) dropPending(pending []*entry.Entry) {
	n := len(pending) + len(e.ch)
	for i := 0; i < n; i++ {
		metrics.RecordAppenderDrop(e.name, dropStopped)
	}
	if n > 0 {
		selflog.Warn().
			Str("appender", e.name).
			Int("entries", n).
			Msg("undelivered entries discarded at stop")
	}
}

func (e *engine) maxBatch() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.throttle.MaxBatchSize < 1 {
		return 1
	}
	return e.throttle.MaxBatchSize
}

// flush formats a batch and hands it to the sink, retrying per the
// configured policy. Failures never propagate: the batch is reported and
// dropped after the final attempt.
func (e *engine) flush(ctx context.Context, pending []*entry.Entry) {
	if len(pending) == 0 {
		return
	}

	e.mu.RLock()
	lay := e.lay
	pol := e.retry
	lim := e.limiter
	queue := e.queueOnLimit
	e.mu.RUnlock()

	if lim != nil && queue {
		if err := lim.WaitN(ctx, len(pending)); err != nil && ctx.Err() == nil {
			selflog.Debug().
				Err(err).
				Str("appender", e.name).
				Msg("rate wait failed, delivering without tokens")
		}
	}

	recs := make([]Record, len(pending))
	for i, ent := range pending {
		recs[i] = Record{Entry: ent, Payload: []byte(lay.Format(ent))}
	}
	contentType := lay.ContentType()

	start := time.Now()
	err := e.deliver(ctx, recs, contentType, pol)
	metrics.RecordBatchFlush(e.name, len(recs), time.Since(start))
	metrics.UpdateAppenderQueueDepth(e.name, len(e.ch))

	if err != nil {
		selflog.Error().
			Err(err).
			Str("appender", e.name).
			Int("batch", len(recs)).
			Msg("delivery failed, batch dropped")
	}
}

// deliver runs the write-retry loop for one batch.
func (e *engine) deliver(ctx context.Context, recs []Record, contentType string, pol retryPolicy) error {
	var err error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if !sleepCtx(ctx, pol.delay(attempt-1)) {
				return err
			}
		}

		start := time.Now()
		err = e.writeOnce(ctx, recs, contentType)
		metrics.RecordAppenderDelivery(e.name, time.Since(start), err)
		if attempt > 0 {
			metrics.RecordAppenderRetry(e.name, err == nil)
		}

		if err == nil {
			return nil
		}
		if attempt >= pol.maxAttempts {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
}

// writeOnce invokes the sink with panic recovery so a broken sink can
// never take down the delivery goroutine.
func (e *engine) writeOnce(ctx context.Context, recs []Record, contentType string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return e.s.write(ctx, recs, contentType)
}

// resolveThrottling fills unset batching fields with usable values. A
// batch size above one with no interval gets a one-second flush tick so
// a quiet stream cannot strand a partial batch.
func resolveThrottling(t *config.ThrottlingConfig) config.ThrottlingConfig {
	out := config.ThrottlingConfig{MaxBatchSize: 1}
	if t == nil {
		return out
	}
	out = *t
	if out.MaxBatchSize < 1 {
		out.MaxBatchSize = 1
	}
	if out.MaxBatchSize > 1 && out.MaxInterval <= 0 {
		out.MaxInterval = time.Second
	}
	return out
}

// buildLimiter converts throttling settings into a token bucket. The
// burst covers at least one full batch so queue-mode WaitN stays legal.
func buildLimiter(t config.ThrottlingConfig) (*rate.Limiter, bool) {
	if t.MaxPerSecond <= 0 {
		return nil, false
	}
	burst := t.MaxPerSecond
	if t.MaxBatchSize > burst {
		burst = t.MaxBatchSize
	}
	return rate.NewLimiter(rate.Limit(t.MaxPerSecond), burst), t.OnLimit == "queue"
}
