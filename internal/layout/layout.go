// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

// Package layout turns log entries into output payloads.
//
// A layout must never fail for a structurally valid entry: when the encoder
// cannot represent a value (circular metadata, say) the layout emits a
// deterministic fallback payload carrying timestamp, level, category,
// message, and an error marker instead of surfacing the problem to the
// logging caller.
package layout

import (
	"errors"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/tabularium/internal/entry"
)

// DefaultDateFormat is the timestamp layout used when none is configured.
const DefaultDateFormat = "2006-01-02T15:04:05.000Z07:00"

var errNilEntry = errors.New("nil entry")

// Layout formats entries for delivery by an appender.
type Layout interface {
	// Format renders the entry. It never panics and never returns an
	// unparseable payload; encoder failures yield the fallback form.
	Format(e *entry.Entry) string

	// ContentType reports the media type of formatted payloads.
	ContentType() string

	// Configure merges the non-zero fields of opts into the current
	// settings.
	Configure(opts Options)
}

// Options carries layout settings. Zero-valued fields are "leave
// unchanged" when passed to Configure, so optional booleans are pointers.
type Options struct {
	// Pattern is the token pattern for pattern layouts.
	Pattern string

	// DateFormat is a Go time layout for timestamps.
	DateFormat string

	// IncludeColors enables ANSI level coloring in pattern layouts.
	IncludeColors *bool

	// Fields restricts and orders the keys emitted by JSON layouts.
	Fields []string

	// StaticFields are appended to every formatted entry.
	StaticFields map[string]any
}

// sortedKeys returns m's keys in lexical order for deterministic output.
func sortedKeys(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// jsonString encodes s as a JSON string. Encoding a plain string cannot
// fail, which keeps the fallback path total.
func jsonString(s string) []byte {
	b, err := json.Marshal(s)
	if err != nil {
		return []byte(`""`)
	}
	return b
}

// fallbackPayload is the deterministic output used when entry encoding
// fails. It carries only plain strings so it cannot fail itself.
func fallbackPayload(e *entry.Entry, dateFormat string, cause error) string {
	ts := time.Now().UTC()
	lvl, category, message := "", "", ""
	if e != nil {
		ts = e.Timestamp
		lvl = string(e.Level)
		category = e.Category
		message = e.Message
	}

	buf := make([]byte, 0, 160)
	buf = append(buf, `{"timestamp":`...)
	buf = append(buf, jsonString(ts.Format(dateFormat))...)
	buf = append(buf, `,"level":`...)
	buf = append(buf, jsonString(lvl)...)
	buf = append(buf, `,"category":`...)
	buf = append(buf, jsonString(category)...)
	buf = append(buf, `,"message":`...)
	buf = append(buf, jsonString(message)...)
	buf = append(buf, `,"layoutError":`...)
	buf = append(buf, jsonString(cause.Error())...)
	buf = append(buf, '}')
	return string(buf)
}
