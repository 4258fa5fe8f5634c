// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

// Package entry defines the record produced by every log call and the
// contextual metadata attached to it.
//
// An Entry is treated as immutable once it leaves the logger core: pipeline
// stages that need to change one (sanitization, filtering, compliance
// stamping) work on a Clone and hand the copy downstream. Layouts receive
// the final copy and must tolerate structurally invalid entries.
package entry

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/tabularium/internal/level"
)

// Entry is a single log record.
//
// ID, Timestamp, Level, Category, and Message are always present on a
// well-formed entry; the rest are optional. Template and Args preserve the
// original call for structured sinks that want the unrendered form.
type Entry struct {
	// ID is a unique identifier for this record.
	ID string `json:"id"`

	// Timestamp when the record was created.
	Timestamp time.Time `json:"timestamp"`

	// Level of the record.
	Level level.Level `json:"level"`

	// Category is the dot-delimited logger name (e.g. "app.auth").
	Category string `json:"category"`

	// Message is the rendered message text.
	Message string `json:"message"`

	// Template is the unrendered message template, if the call used one.
	Template string `json:"template,omitempty"`

	// Args are the positional arguments supplied with the template.
	Args []any `json:"args,omitempty"`

	// Context carries per-request/per-unit-of-work fields.
	Context *Context `json:"context,omitempty"`

	// StackTrace captured at the call site, if requested.
	StackTrace string `json:"stackTrace,omitempty"`

	// Thread labels the goroutine or execution context.
	Thread string `json:"thread,omitempty"`

	// Metadata contains free-form fields attached by the pipeline.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// New creates a well-formed entry with a fresh ID and UTC timestamp.
func New(lvl level.Level, category, message string) *Entry {
	return &Entry{
		ID:        NewID(),
		Timestamp: time.Now().UTC(),
		Level:     lvl,
		Category:  category,
		Message:   message,
	}
}

// NewID returns a unique record identifier.
func NewID() string {
	return uuid.NewString()
}

// Valid reports whether the entry carries every required field.
// Layouts format invalid entries with a fallback payload instead of
// trusting their contents.
func (e *Entry) Valid() bool {
	if e == nil {
		return false
	}
	return e.ID != "" &&
		!e.Timestamp.IsZero() &&
		e.Level.Valid() &&
		e.Category != "" &&
		e.Message != ""
}

// Clone returns a deep copy the caller may mutate without affecting the
// original. Args values and metadata values are copied one level deep;
// nested maps inside metadata are copied recursively.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	if e.Args != nil {
		out.Args = make([]any, len(e.Args))
		copy(out.Args, e.Args)
	}
	if e.Context != nil {
		out.Context = e.Context.Clone()
	}
	if e.Metadata != nil {
		out.Metadata = cloneMap(e.Metadata)
	}
	return &out
}

// cloneMap copies a string-keyed map, recursing into nested maps.
func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
