// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package logger

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tomtom215/tabularium/internal/appender"
	"github.com/tomtom215/tabularium/internal/entry"
	"github.com/tomtom215/tabularium/internal/level"
	"github.com/tomtom215/tabularium/internal/metrics"
	"github.com/tomtom215/tabularium/internal/selflog"
)

// Sanitizer masks sensitive values on an entry before dispatch.
type Sanitizer interface {
	SanitizeEntry(e *entry.Entry) *entry.Entry
}

// FilterChain transforms entries before dispatch and may drop them by
// returning nil.
type FilterChain interface {
	Apply(e *entry.Entry) *entry.Entry
}

// ComplianceGate vetoes entries a process may not log and stamps retention
// metadata on the ones it may.
type ComplianceGate interface {
	IsLoggingAllowed(c *entry.Context) bool
	ApplyComplianceRules(e *entry.Entry) *entry.Entry
}

// Pipeline bundles the processing stages every accepted entry passes
// through between construction and fan-out, in field order. Nil stages are
// skipped.
type Pipeline struct {
	Sanitizer  Sanitizer
	Filters    FilterChain
	Compliance ComplianceGate
}

// callerSkip reaches the frame that invoked the public log method. The
// runtime.Caller call sits in log, one level below Log or a per-level
// wrapper.
const callerSkip = 2

// Logger emits entries for one category.
//
// The category is immutable; everything else (level, appender set,
// processing stages, static properties) can change at runtime, which is
// how configuration reloads reach handles callers already hold. All
// methods are safe for concurrent use. Entries from a single logger reach
// a given appender in call order.
type Logger struct {
	category string

	mu            sync.RWMutex
	threshold     level.Level
	appenders     []appender.Appender
	props         map[string]any
	pipeline      Pipeline
	includeCaller bool
	maxMessageLen int
}

// New creates a logger for the given category with the given threshold.
//
// The threshold is taken as-is: an unknown or empty level fails closed and
// the logger emits nothing until SetLevel installs a known one. Loggers
// obtained from a Registry always carry a validated level.
func New(category string, threshold level.Level) *Logger {
	return &Logger{category: category, threshold: threshold}
}

// Category returns the immutable category name.
func (l *Logger) Category() string { return l.category }

// Level returns the current threshold.
func (l *Logger) Level() level.Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.threshold
}

// SetLevel replaces the threshold for subsequent calls.
func (l *Logger) SetLevel(lvl level.Level) {
	l.mu.Lock()
	l.threshold = lvl
	l.mu.Unlock()
}

// IsEnabledFor reports whether a call at lvl would pass the level gate.
func (l *Logger) IsEnabledFor(lvl level.Level) bool {
	return level.IsEnabledFor(lvl, l.Level())
}

// AddAppender attaches an appender. Adding one whose name is already
// attached is a no-op, so the set stays duplicate-free and ordered by
// first attachment.
func (l *Logger) AddAppender(a appender.Appender) {
	if a == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.appenders {
		if existing.Name() == a.Name() {
			return
		}
	}
	l.appenders = append(l.appenders, a)
}

// RemoveAppender detaches the named appender. Removing an unknown name is
// a no-op. The appender keeps running; stopping it is its owner's call.
func (l *Logger) RemoveAppender(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, a := range l.appenders {
		if a.Name() != name {
			continue
		}
		next := make([]appender.Appender, 0, len(l.appenders)-1)
		next = append(next, l.appenders[:i]...)
		next = append(next, l.appenders[i+1:]...)
		l.appenders = next
		return
	}
}

// SetAppenders replaces the whole appender set, dropping nils and
// duplicate names while preserving order.
func (l *Logger) SetAppenders(apps []appender.Appender) {
	next := make([]appender.Appender, 0, len(apps))
	seen := make(map[string]bool, len(apps))
	for _, a := range apps {
		if a == nil || seen[a.Name()] {
			continue
		}
		seen[a.Name()] = true
		next = append(next, a)
	}
	l.mu.Lock()
	l.appenders = next
	l.mu.Unlock()
}

// Appenders returns a snapshot of the attached appenders in dispatch
// order.
func (l *Logger) Appenders() []appender.Appender {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]appender.Appender, len(l.appenders))
	copy(out, l.appenders)
	return out
}

// SetPipeline replaces the processing stages for subsequent calls.
func (l *Logger) SetPipeline(p Pipeline) {
	l.mu.Lock()
	l.pipeline = p
	l.mu.Unlock()
}

// SetProperties replaces the static fields stamped into every entry's
// metadata. The map is copied.
func (l *Logger) SetProperties(props map[string]any) {
	var next map[string]any
	if len(props) > 0 {
		next = make(map[string]any, len(props))
		for k, v := range props {
			next[k] = v
		}
	}
	l.mu.Lock()
	l.props = next
	l.mu.Unlock()
}

// SetMessageLimit bounds rendered message length in bytes. Zero or
// negative disables truncation.
func (l *Logger) SetMessageLimit(n int) {
	l.mu.Lock()
	l.maxMessageLen = n
	l.mu.Unlock()
}

// SetIncludeCaller toggles call-site capture into metadata.
func (l *Logger) SetIncludeCaller(include bool) {
	l.mu.Lock()
	l.includeCaller = include
	l.mu.Unlock()
}

// Log records an entry at the given level with optional context. Template
// placeholders ({}) substitute args left-to-right; unmatched placeholders
// stay literal. Below-threshold calls return without building an entry.
//
// Log never blocks on delivery and never panics: appender failures are the
// appender's problem, and a panicking appender is recovered and reported
// through selflog while dispatch continues to the rest.
func (l *Logger) Log(lvl level.Level, c *entry.Context, template string, args ...any) {
	l.log(lvl, c, template, args)
}

// Trace logs at trace level.
func (l *Logger) Trace(template string, args ...any) {
	l.log(level.Trace, nil, template, args)
}

// Debug logs at debug level.
func (l *Logger) Debug(template string, args ...any) {
	l.log(level.Debug, nil, template, args)
}

// Info logs at info level.
func (l *Logger) Info(template string, args ...any) {
	l.log(level.Info, nil, template, args)
}

// Audit logs at audit level.
func (l *Logger) Audit(template string, args ...any) {
	l.log(level.Audit, nil, template, args)
}

// Warn logs at warn level.
func (l *Logger) Warn(template string, args ...any) {
	l.log(level.Warn, nil, template, args)
}

// Metrics logs at metrics level.
func (l *Logger) Metrics(template string, args ...any) {
	l.log(level.Metrics, nil, template, args)
}

// Error logs at error level.
func (l *Logger) Error(template string, args ...any) {
	l.log(level.Error, nil, template, args)
}

// Security logs at security level.
func (l *Logger) Security(template string, args ...any) {
	l.log(level.Security, nil, template, args)
}

// Fatal logs at fatal level. It records the entry and returns; it does
// not terminate the process.
func (l *Logger) Fatal(template string, args ...any) {
	l.log(level.Fatal, nil, template, args)
}

// log is the single funnel behind Log and the per-level methods. Keeping
// every public entry point exactly one frame above it makes callerSkip a
// constant.
func (l *Logger) log(lvl level.Level, c *entry.Context, template string, args []any) {
	l.mu.RLock()
	threshold := l.threshold
	apps := l.appenders
	props := l.props
	pipe := l.pipeline
	includeCaller := l.includeCaller
	limit := l.maxMessageLen
	l.mu.RUnlock()

	if !level.IsEnabledFor(lvl, threshold) {
		metrics.PipelineEntriesBelowThreshold.Inc()
		return
	}

	start := time.Now()

	ent := entry.New(lvl, l.category, truncate(entry.FormatMessage(template, args...), limit))
	if len(args) > 0 {
		ent.Template = template
		ent.Args = append([]any(nil), args...)
	}
	if c != nil {
		ent.Context = c.Clone()
	}
	if len(props) > 0 || includeCaller {
		ent.Metadata = make(map[string]any, len(props)+1)
		for k, v := range props {
			ent.Metadata[k] = v
		}
	}
	if includeCaller {
		if _, file, line, ok := runtime.Caller(callerSkip); ok {
			ent.Metadata["caller"] = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}

	if pipe.Sanitizer != nil {
		ent = pipe.Sanitizer.SanitizeEntry(ent)
	}
	if pipe.Filters != nil {
		if ent = pipe.Filters.Apply(ent); ent == nil {
			return
		}
	}
	if pipe.Compliance != nil {
		if !pipe.Compliance.IsLoggingAllowed(ent.Context) {
			return
		}
		if ent = pipe.Compliance.ApplyComplianceRules(ent); ent == nil {
			return
		}
	}

	for _, app := range apps {
		l.dispatch(app, ent)
	}

	metrics.RecordEntryLogged(string(lvl), time.Since(start))
}

// dispatch hands the entry to one appender. Append absorbs delivery
// failures itself; the recover here isolates the caller from programmer
// errors in appender implementations reached through the interface.
func (l *Logger) dispatch(app appender.Appender, ent *entry.Entry) {
	defer func() {
		if r := recover(); r != nil {
			selflog.Error().
				Str("category", l.category).
				Str("appender", app.Name()).
				Interface("panic", r).
				Msg("appender panicked during dispatch")
		}
	}()
	app.Append(ent)
}

// truncate cuts s to at most limit bytes, backing up to a rune boundary so
// the result stays valid UTF-8. Non-positive limits disable truncation.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
