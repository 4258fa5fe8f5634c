// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package appender

import (
	"testing"
	"time"
)

// YAML decoding hands over int, JSON decoding hands over float64, and
// environment overrides arrive as strings. The accessors must read all
// of them.

func TestPropString(t *testing.T) {
	props := map[string]any{"s": "value", "n": 42}
	if got := propString(props, "s", "d"); got != "value" {
		t.Errorf("propString(s) = %q, want value", got)
	}
	if got := propString(props, "missing", "d"); got != "d" {
		t.Errorf("propString(missing) = %q, want default", got)
	}
	if got := propString(props, "n", "d"); got != "d" {
		t.Errorf("propString(non-string) = %q, want default", got)
	}
	if got := propString(nil, "s", "d"); got != "d" {
		t.Errorf("propString(nil map) = %q, want default", got)
	}
}

func TestPropInt(t *testing.T) {
	props := map[string]any{
		"int":     7,
		"int64":   int64(8),
		"float":   9.0,
		"string":  "10",
		"garbage": "not a number",
	}
	tests := []struct {
		key  string
		want int
	}{
		{"int", 7},
		{"int64", 8},
		{"float", 9},
		{"string", 10},
		{"garbage", -1},
		{"missing", -1},
	}
	for _, tt := range tests {
		if got := propInt(props, tt.key, -1); got != tt.want {
			t.Errorf("propInt(%s) = %d, want %d", tt.key, got, tt.want)
		}
	}
}

func TestPropInt64(t *testing.T) {
	props := map[string]any{
		"big":   int64(1 << 40),
		"float": float64(1 << 30),
		"str":   "123456789012",
	}
	if got := propInt64(props, "big", 0); got != 1<<40 {
		t.Errorf("propInt64(big) = %d", got)
	}
	if got := propInt64(props, "float", 0); got != 1<<30 {
		t.Errorf("propInt64(float) = %d", got)
	}
	if got := propInt64(props, "str", 0); got != 123456789012 {
		t.Errorf("propInt64(str) = %d", got)
	}
}

func TestPropBool(t *testing.T) {
	props := map[string]any{
		"b":       true,
		"str":     "true",
		"strOff":  "false",
		"garbage": "maybe",
	}
	if !propBool(props, "b", false) {
		t.Error("propBool(b) = false")
	}
	if !propBool(props, "str", false) {
		t.Error("propBool(str) = false")
	}
	if propBool(props, "strOff", true) {
		t.Error("propBool(strOff) = true")
	}
	if !propBool(props, "garbage", true) {
		t.Error("propBool(garbage) did not fall back to default")
	}
	if propBool(props, "missing", false) {
		t.Error("propBool(missing) = true")
	}
}

func TestPropDuration(t *testing.T) {
	props := map[string]any{
		"str":     "250ms",
		"seconds": 5,
		"float":   1.5,
		"native":  2 * time.Second,
		"garbage": "soon",
	}
	tests := []struct {
		key  string
		want time.Duration
	}{
		{"str", 250 * time.Millisecond},
		{"seconds", 5 * time.Second},
		{"float", 1500 * time.Millisecond},
		{"native", 2 * time.Second},
		{"garbage", time.Minute},
		{"missing", time.Minute},
	}
	for _, tt := range tests {
		if got := propDuration(props, tt.key, time.Minute); got != tt.want {
			t.Errorf("propDuration(%s) = %s, want %s", tt.key, got, tt.want)
		}
	}
}

func TestPropStringMap(t *testing.T) {
	props := map[string]any{
		"headers": map[string]any{
			"Authorization": "Bearer token",
			"X-Retries":     3,
		},
		"typed": map[string]string{"a": "b"},
		"wrong": "not a map",
	}

	got := propStringMap(props, "headers")
	if got["Authorization"] != "Bearer token" {
		t.Errorf("headers[Authorization] = %q", got["Authorization"])
	}
	if got["X-Retries"] != "3" {
		t.Errorf("headers[X-Retries] = %q, want stringified 3", got["X-Retries"])
	}

	if got := propStringMap(props, "typed"); got["a"] != "b" {
		t.Errorf("typed map = %v", got)
	}
	if got := propStringMap(props, "wrong"); got != nil {
		t.Errorf("propStringMap(wrong) = %v, want nil", got)
	}
	if got := propStringMap(props, "missing"); got != nil {
		t.Errorf("propStringMap(missing) = %v, want nil", got)
	}
}
