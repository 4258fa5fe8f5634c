// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package layout

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tomtom215/tabularium/internal/entry"
	"github.com/tomtom215/tabularium/internal/level"
)

// DefaultPattern is used when no pattern is configured.
const DefaultPattern = "%d [%level] %category: %message"

const colorReset = "\x1b[0m"

// levelColors maps levels to ANSI sequences for colored console output.
var levelColors = map[level.Level]string{
	level.Trace:    "\x1b[90m",
	level.Debug:    "\x1b[36m",
	level.Info:     "\x1b[32m",
	level.Audit:    "\x1b[34m",
	level.Warn:     "\x1b[33m",
	level.Metrics:  "\x1b[35m",
	level.Error:    "\x1b[31m",
	level.Security: "\x1b[91m",
	level.Fatal:    "\x1b[31;1m",
}

// Pattern renders entries through a token pattern. Supported tokens are
// %d{FORMAT} and %d (timestamp), %level, %category, %message, %thread,
// and %id. Tokens substitute independently; everything else, including a
// bare or unrecognized %, passes through literally.
type Pattern struct {
	mu         sync.RWMutex
	pattern    string
	dateFormat string
	colors     bool
	static     map[string]any
}

// NewPattern creates a pattern layout from the given options.
func NewPattern(opts Options) *Pattern {
	l := &Pattern{
		pattern:    DefaultPattern,
		dateFormat: DefaultDateFormat,
	}
	l.Configure(opts)
	return l
}

// ContentType implements Layout.
func (l *Pattern) ContentType() string {
	return "text/plain"
}

// Configure implements Layout. Zero-valued fields are left unchanged.
func (l *Pattern) Configure(opts Options) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if opts.Pattern != "" {
		l.pattern = opts.Pattern
	}
	if opts.DateFormat != "" {
		l.dateFormat = opts.DateFormat
	}
	if opts.IncludeColors != nil {
		l.colors = *opts.IncludeColors
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
func (l *Pattern) Format(e *entry.Entry) string {
	l.mu.RLock()
	pattern := l.pattern
	dateFormat := l.dateFormat
	colors := l.colors
	static := l.static
	l.mu.RUnlock()

	if e == nil {
		return fallbackPayload(nil, dateFormat, errNilEntry)
	}

	var b strings.Builder
	b.Grow(len(pattern) + len(e.Message) + 48)

	for i := 0; i < len(pattern); {
		if pattern[i] != '%' {
			b.WriteByte(pattern[i])
			i++
			continue
		}

		rest := pattern[i+1:]
		switch {
		case strings.HasPrefix(rest, "d{"):
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				b.WriteByte('%')
				i++
				continue
			}
			b.WriteString(e.Timestamp.Format(rest[2:end]))
			i += end + 2
		case strings.HasPrefix(rest, "d"):
			b.WriteString(e.Timestamp.Format(dateFormat))
			i += 2
		case strings.HasPrefix(rest, "level"):
			b.WriteString(l.renderLevel(e.Level, colors))
			i += len("%level")
		case strings.HasPrefix(rest, "category"):
			b.WriteString(e.Category)
			i += len("%category")
		case strings.HasPrefix(rest, "message"):
			b.WriteString(e.Message)
			i += len("%message")
		case strings.HasPrefix(rest, "thread"):
			b.WriteString(e.Thread)
			i += len("%thread")
		case strings.HasPrefix(rest, "id"):
			b.WriteString(e.ID)
			i += len("%id")
		default:
			b.WriteByte('%')
			i++
		}
	}

	for _, k := range sortedKeys(static) {
		fmt.Fprintf(&b, " %s=%v", k, static[k])
	}
	return b.String()
}

// renderLevel upper-cases the level name and wraps it in ANSI color codes
// when coloring is on.
func (l *Pattern) renderLevel(lvl level.Level, colors bool) string {
	name := strings.ToUpper(string(lvl))
	if !colors {
		return name
	}
	code, ok := levelColors[lvl]
	if !ok {
		return name
	}
	return code + name + colorReset
}
