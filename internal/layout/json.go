// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package layout

import (
	"bytes"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/tabularium/internal/entry"
)

// DefaultJSONFields is the default key order of the JSON layout.
func DefaultJSONFields() []string {
	return []string{
		"timestamp",
		"level",
		"category",
		"message",
		"context",
		"metadata",
		"stackTrace",
		"thread",
		"id",
	}
}

// JSON renders entries as single-line JSON objects with a stable,
// configurable key order. Absent optional fields are omitted, never null.
type JSON struct {
	mu         sync.RWMutex
	dateFormat string
	fields     []string
	static     map[string]any
}

// NewJSON creates a JSON layout from the given options.
func NewJSON(opts Options) *JSON {
	l := &JSON{
		dateFormat: DefaultDateFormat,
		fields:     DefaultJSONFields(),
	}
	l.Configure(opts)
	return l
}

// ContentType implements Layout.
func (l *JSON) ContentType() string {
	return "application/json"
}

// Configure implements Layout. Zero-valued fields are left unchanged.
func (l *JSON) Configure(opts Options) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if opts.DateFormat != "" {
		l.dateFormat = opts.DateFormat
	}
	if opts.Fields != nil {
		l.fields = append([]string(nil), opts.Fields...)
	}
	if opts.StaticFields != nil {
		if l.static == nil {
			l.static = make(map[string]any, len(opts.StaticFields))
		}
		for k, v := range opts.StaticFields {
			l.static[k] = v
		}
	}
}

// Format implements Layout.
func (l *JSON) Format(e *entry.Entry) string {
	l.mu.RLock()
	dateFormat := l.dateFormat
	fields := l.fields
	static := l.static
	l.mu.RUnlock()

	if e == nil {
		return fallbackPayload(nil, dateFormat, errNilEntry)
	}

	var buf bytes.Buffer
	buf.Grow(256)
	buf.WriteByte('{')

	emitted := make(map[string]bool, len(fields)+len(static))
	first := true

	write := func(key string, value any) error {
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.Write(jsonString(key))
		buf.WriteByte(':')
		buf.Write(raw)
		emitted[key] = true
		return nil
	}

	for _, key := range fields {
		value, ok := l.fieldValue(e, key, dateFormat)
		if !ok || emitted[key] {
			continue
		}
		if err := write(key, value); err != nil {
			return fallbackPayload(e, dateFormat, err)
		}
	}

	for _, key := range sortedKeys(static) {
		if emitted[key] {
			continue
		}
		if err := write(key, static[key]); err != nil {
			return fallbackPayload(e, dateFormat, err)
		}
	}

	buf.WriteByte('}')
	return buf.String()
}

// fieldValue resolves a configured key against the entry. The second
// return is false when the field is absent and must be omitted.
func (l *JSON) fieldValue(e *entry.Entry, key, dateFormat string) (any, bool) {
	switch key {
	case "timestamp":
		return e.Timestamp.Format(dateFormat), true
	case "level":
		return string(e.Level), true
	case "category":
		return e.Category, true
	case "message":
		return e.Message, true
	case "context":
		if e.Context == nil {
			return nil, false
		}
		return e.Context, true
	case "metadata":
		if len(e.Metadata) == 0 {
			return nil, false
		}
		return e.Metadata, true
	case "stackTrace":
		if e.StackTrace == "" {
			return nil, false
		}
		return e.StackTrace, true
	case "thread":
		if e.Thread == "" {
			return nil, false
		}
		return e.Thread, true
	case "id":
		return e.ID, true
	case "template":
		if e.Template == "" {
			return nil, false
		}
		return e.Template, true
	case "args":
		if len(e.Args) == 0 {
			return nil, false
		}
		return e.Args, true
	default:
		return nil, false
	}
}
