// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

// Package sanitize masks sensitive values before entries leave the process.
//
// The engine walks arbitrarily nested maps and slices. Map values are masked
// when their key matches the configured sensitive-field list or a custom
// rule's pattern; scalar values are masked only when a custom rule's pattern
// matches the value itself. Custom rules run in descending priority and the
// first match wins, so a value is never masked twice. The built-in masks are
// idempotent: sanitizing already-sanitized data is a no-op.
package sanitize

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/tomtom215/tabularium/internal/entry"
	"github.com/tomtom215/tabularium/internal/metrics"
)

// Partial mask geometry: keep this many leading and trailing characters.
// Values too short to hide anything between them get the full mask.
const (
	partialPrefixLen = 2
	partialSuffixLen = 2
	maskRunLen       = 3
)

// DefaultSensitiveFields are the field names masked out of the box.
func DefaultSensitiveFields() []string {
	return []string{
		"password",
		"passwd",
		"secret",
		"token",
		"accessToken",
		"refreshToken",
		"apiKey",
		"api_key",
		"authorization",
		"cookie",
		"sessionId",
		"session_id",
		"credential",
		"privateKey",
	}
}

// Rule is a custom sanitization rule. In maps the pattern is tested against
// keys; for scalars it is tested against the value itself. Higher priority
// runs first. A nil Mask uses the engine's configured mask.
type Rule struct {
	Name     string
	Pattern  *regexp.Regexp
	Priority int
	Mask     func(string) string
}

// Options configures an Engine.
type Options struct {
	// Enabled short-circuits the engine when false: values pass through.
	Enabled bool

	// SensitiveFields are the masked field names (case-insensitive).
	// Nil means DefaultSensitiveFields; an explicit empty slice disables
	// the built-in list.
	SensitiveFields []string

	// MaskChar is the masking character. Default "*".
	MaskChar string

	// PartialMask keeps a short prefix and suffix visible, e.g. "se***23".
	PartialMask bool

	// Rules are custom prioritized rules.
	Rules []Rule
}

// Engine applies masking rules to values and entries.
type Engine struct {
	mu          sync.RWMutex
	enabled     bool
	fields      map[string]bool
	maskChar    string
	partialMask bool
	rules       []Rule
}

// NewEngine creates an engine from the given options.
func NewEngine(opts Options) *Engine {
	fields := opts.SensitiveFields
	if fields == nil {
		fields = DefaultSensitiveFields()
	}
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[strings.ToLower(f)] = true
	}

	maskChar := opts.MaskChar
	if maskChar == "" {
		maskChar = "*"
	}

	e := &Engine{
		enabled:     opts.Enabled,
		fields:      set,
		maskChar:    maskChar,
		partialMask: opts.PartialMask,
	}
	for _, r := range opts.Rules {
		e.addRuleLocked(r)
	}
	return e
}

// AddRule registers a custom rule, replacing any rule with the same name.
func (e *Engine) AddRule(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.addRuleLocked(r)
}

// addRuleLocked inserts r keeping rules sorted by descending priority.
func (e *Engine) addRuleLocked(r Rule) {
	for i := range e.rules {
		if e.rules[i].Name == r.Name {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			break
		}
	}
	e.rules = append(e.rules, r)
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority > e.rules[j].Priority
	})
}

// RemoveRule unregisters the named rule. Removing an unknown name is a no-op.
func (e *Engine) RemoveRule(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.rules {
		if e.rules[i].Name == name {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return
		}
	}
}

// Sanitize walks v recursively and returns a masked copy. The input is
// never mutated. Nil passes through unchanged, as does everything when the
// engine is disabled.
func (e *Engine) Sanitize(v any) any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.enabled || v == nil {
		return v
	}
	return e.sanitizeValue(v)
}

// SanitizeEntry returns a copy of the given entry with its message, args,
// context additional data, and metadata sanitized. The original entry is
// untouched. Invalid or nil entries pass through unchanged.
func (e *Engine) SanitizeEntry(ent *entry.Entry) *entry.Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.enabled || ent == nil {
		return ent
	}

	out := ent.Clone()
	out.Message = e.sanitizeScalar(out.Message)
	if out.Args != nil {
		out.Args = e.sanitizeSlice(out.Args)
	}
	if out.Context != nil && out.Context.AdditionalData != nil {
		out.Context.AdditionalData = e.sanitizeMap(out.Context.AdditionalData)
	}
	if out.Metadata != nil {
		out.Metadata = e.sanitizeMap(out.Metadata)
	}
	return out
}

// sanitizeValue dispatches on the value's shape.
func (e *Engine) sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return e.sanitizeMap(val)
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			if masked, ok := e.maskForKey(k, s); ok {
				out[k] = masked
				continue
			}
			out[k] = e.sanitizeScalar(s)
		}
		return out
	case []any:
		return e.sanitizeSlice(val)
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = e.sanitizeScalar(s)
		}
		return out
	case string:
		return e.sanitizeScalar(val)
	default:
		return v
	}
}

// sanitizeMap masks values under matching keys and recurses into the rest.
func (e *Engine) sanitizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			if masked, matched := e.maskForKey(k, s); matched {
				out[k] = masked
				continue
			}
			out[k] = e.sanitizeScalar(s)
			continue
		}
		if r := e.keyMatches(k); r != nil {
			// Sensitive key with a non-string value: hide the shape too.
			metrics.RecordFieldsMasked("custom", 1)
			out[k] = e.fullMask()
			continue
		}
		if e.fields[strings.ToLower(k)] {
			metrics.RecordFieldsMasked("builtin", 1)
			out[k] = e.fullMask()
			continue
		}
		out[k] = e.sanitizeValue(v)
	}
	return out
}

// sanitizeSlice recurses element-wise.
func (e *Engine) sanitizeSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = e.sanitizeValue(v)
	}
	return out
}

// maskForKey masks value when the key matches a rule or the sensitive-field
// list. Custom rules take precedence in descending priority; the built-in
// list sits at priority zero among them. Returns (masked, true) on a match.
func (e *Engine) maskForKey(key, value string) (string, bool) {
	fieldHit := e.fields[strings.ToLower(key)]
	for i := range e.rules {
		r := &e.rules[i]
		if fieldHit && r.Priority <= 0 {
			break
		}
		if r.Pattern != nil && r.Pattern.MatchString(key) {
			metrics.RecordFieldsMasked("custom", 1)
			return e.applyRule(r, value), true
		}
	}
	if fieldHit {
		metrics.RecordFieldsMasked("builtin", 1)
		return e.mask(value), true
	}
	return value, false
}

// keyMatches returns the first rule whose pattern matches the key.
func (e *Engine) keyMatches(key string) *Rule {
	for i := range e.rules {
		if e.rules[i].Pattern != nil && e.rules[i].Pattern.MatchString(key) {
			return &e.rules[i]
		}
	}
	return nil
}

// sanitizeScalar applies value-matching custom rules to a standalone string.
// The first matching rule by priority wins.
func (e *Engine) sanitizeScalar(s string) string {
	for i := range e.rules {
		r := &e.rules[i]
		if r.Pattern != nil && r.Pattern.MatchString(s) {
			metrics.RecordFieldsMasked("custom", 1)
			return e.applyRule(r, s)
		}
	}
	return s
}

// applyRule runs the rule's mask, falling back to the engine mask.
func (e *Engine) applyRule(r *Rule, value string) string {
	if r.Mask != nil {
		return r.Mask(value)
	}
	return e.mask(value)
}

// mask applies the configured masking mode.
func (e *Engine) mask(value string) string {
	if e.partialMask {
		return e.partial(value)
	}
	return e.fullMask()
}

// fullMask is the complete replacement value.
func (e *Engine) fullMask() string {
	return strings.Repeat(e.maskChar, maskRunLen)
}

// partial keeps a fixed prefix and suffix: "secret123" -> "se***23".
// Values too short to hide anything get the full mask. Re-masking a
// partially masked value reproduces it, keeping sanitization idempotent.
func (e *Engine) partial(value string) string {
	if len(value) <= partialPrefixLen+partialSuffixLen {
		return e.fullMask()
	}
	return value[:partialPrefixLen] + e.fullMask() + value[len(value)-partialSuffixLen:]
}
