// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package compliance

import (
	"regexp"
	"strings"

	"github.com/tomtom215/tabularium/internal/entry"
)

// ipv4Pattern matches dotted-quad addresses on word boundaries, so
// addresses embedded in larger strings ("client 192.168.1.100
// connected", "192.168.1.100:8080") are caught while version-like
// tokens ("v1.2.3.4") are not. Matching is lexical: over-masking a
// non-address that looks like one is the safe direction here.
var ipv4Pattern = regexp.MustCompile(`\b(\d{1,3}\.\d{1,3}\.\d{1,3})\.\d{1,3}\b`)

// anonymizeIPv4 zeroes the last octet of every IPv4 address in s:
// "192.168.1.100" becomes "192.168.1.0". Already-anonymized
// addresses are reproduced unchanged, so the rewrite is idempotent.
// IPv6 addresses pass through untouched.
func anonymizeIPv4(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	return ipv4Pattern.ReplaceAllString(s, "${1}.0")
}

// anonymizeContext returns a copy of the context with every string
// field and all additional data anonymized. Identifier fields are
// rewritten too: a user keyed by raw IP address is exactly the case
// anonymization exists for.
func anonymizeContext(c *entry.Context) *entry.Context {
	if c == nil {
		return nil
	}
	out := c.Clone()
	out.UserID = anonymizeIPv4(out.UserID)
	out.SessionID = anonymizeIPv4(out.SessionID)
	out.RequestID = anonymizeIPv4(out.RequestID)
	out.Component = anonymizeIPv4(out.Component)
	out.Action = anonymizeIPv4(out.Action)
	out.Route = anonymizeIPv4(out.Route)
	out.UserAgent = anonymizeIPv4(out.UserAgent)
	out.Environment = anonymizeIPv4(out.Environment)
	if out.AdditionalData != nil {
		out.AdditionalData = anonymizeMap(out.AdditionalData)
	}
	return out
}

// anonymizeValue dispatches on the value's shape, returning a rewritten
// copy. Inputs are never mutated.
func anonymizeValue(v any) any {
	switch val := v.(type) {
	case string:
		return anonymizeIPv4(val)
	case map[string]any:
		return anonymizeMap(val)
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = anonymizeIPv4(s)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = anonymizeValue(elem)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = anonymizeIPv4(s)
		}
		return out
	default:
		return v
	}
}

// anonymizeMap rewrites string values and recurses into nested
// structures, returning a new map.
func anonymizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = anonymizeValue(v)
	}
	return out
}
