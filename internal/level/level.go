// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

// Package level defines the severity model for the pipeline.
//
// Levels form a fixed total order from most verbose to most severe:
//
//	trace < debug < info < audit < warn < metrics < error < security < fatal
//
// Comparison is by numeric priority only, never by name. Unknown level
// names fail closed: parsing returns an error, an unrecognized level's
// priority sorts below trace, and threshold checks involving an invalid
// level never enable emission.
package level

import (
	"errors"
	"fmt"
	"strings"
)

// Level is a named severity in the pipeline's total order.
type Level string

// Known levels, declared in ascending priority order.
const (
	Trace    Level = "trace"
	Debug    Level = "debug"
	Info     Level = "info"
	Audit    Level = "audit"
	Warn     Level = "warn"
	Metrics  Level = "metrics"
	Error    Level = "error"
	Security Level = "security"
	Fatal    Level = "fatal"
)

// PriorityUnknown is the priority of an unrecognized level name.
// It sorts below every known level so unknown levels are never enabled.
const PriorityUnknown = -1

// ErrUnknown is returned by Parse for an unrecognized level name.
var ErrUnknown = errors.New("unknown log level")

// priorities assigns each known level its rank in the total order.
var priorities = map[Level]int{
	Trace:    0,
	Debug:    1,
	Info:     2,
	Audit:    3,
	Warn:     4,
	Metrics:  5,
	Error:    6,
	Security: 7,
	Fatal:    8,
}

// All returns the known levels in ascending priority order.
func All() []Level {
	return []Level{Trace, Debug, Info, Audit, Warn, Metrics, Error, Security, Fatal}
}

// Parse converts a case-insensitive level name to a Level.
// Unknown names return ErrUnknown wrapped with the offending name; the
// returned Level is the lowercased input and carries PriorityUnknown.
func Parse(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := priorities[l]; !ok {
		return l, fmt.Errorf("%w: %q", ErrUnknown, s)
	}
	return l, nil
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	_, ok := priorities[l]
	return ok
}

// Priority returns l's rank in the total order, or PriorityUnknown for an
// unrecognized level.
func (l Level) Priority() int {
	p, ok := priorities[l]
	if !ok {
		return PriorityUnknown
	}
	return p
}

// String returns the level's name.
func (l Level) String() string {
	return string(l)
}

// Compare orders a against b by priority: -1 if a is lower, 0 if equal,
// 1 if higher. Unknown levels compare at PriorityUnknown, below trace.
func Compare(a, b Level) int {
	pa, pb := a.Priority(), b.Priority()
	switch {
	case pa < pb:
		return -1
	case pa > pb:
		return 1
	default:
		return 0
	}
}

// IsEnabledFor reports whether an entry at candidate passes a logger
// threshold. True exactly when both levels are known and
// candidate's priority is at least the threshold's. Either side being
// unknown fails closed.
func IsEnabledFor(candidate, threshold Level) bool {
	if !candidate.Valid() || !threshold.Valid() {
		return false
	}
	return candidate.Priority() >= threshold.Priority()
}
