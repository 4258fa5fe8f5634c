// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package appender

import (
	"fmt"
	"strconv"
	"time"
)

// Property accessors for the free-form map carried by appender
// configurations. YAML and JSON decoding produce different numeric types
// for the same document, so every accessor normalizes across the
// possibilities instead of asserting one.

func propString(props map[string]any, key, def string) string {
	v, ok := props[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func propInt(props map[string]any, key string, def int) int {
	v, ok := props[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

func propInt64(props map[string]any, key string, def int64) int64 {
	v, ok := props[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func propBool(props map[string]any, key string, def bool) bool {
	v, ok := props[key]
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	return def
}

// propDuration accepts Go duration strings ("250ms", "5s") and bare
// numbers, which are read as seconds.
func propDuration(props map[string]any, key string, def time.Duration) time.Duration {
	v, ok := props[key]
	if !ok {
		return def
	}
	switch d := v.(type) {
	case string:
		if parsed, err := time.ParseDuration(d); err == nil {
			return parsed
		}
	case int:
		return time.Duration(d) * time.Second
	case int64:
		return time.Duration(d) * time.Second
	case float64:
		return time.Duration(d * float64(time.Second))
	case time.Duration:
		return d
	}
	return def
}

// propStringMap flattens a nested map property into string keys and
// values, for header and static-tag style settings.
func propStringMap(props map[string]any, key string) map[string]string {
	v, ok := props[key]
	if !ok {
		return nil
	}
	out := make(map[string]string)
	switch m := v.(type) {
	case map[string]string:
		for k, val := range m {
			out[k] = val
		}
	case map[string]any:
		for k, val := range m {
			out[k] = fmt.Sprintf("%v", val)
		}
	default:
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
