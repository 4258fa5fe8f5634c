// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package entry

import (
	"fmt"
	"strings"
)

// placeholder is the positional substitution token in message templates.
const placeholder = "{}"

// FormatMessage substitutes {} placeholders in template left-to-right with
// the given args. An unmatched placeholder stays literal, so an arity
// mismatch never fails:
//
//	FormatMessage("User {} did {}", "alice", "login")  // "User alice did login"
//	FormatMessage("A {} B {}", "x")                    // "A x B {}"
//
// Surplus args are ignored. Args render via fmt.Sprint.
func FormatMessage(template string, args ...any) string {
	if len(args) == 0 || !strings.Contains(template, placeholder) {
		return template
	}

	var b strings.Builder
	b.Grow(len(template) + len(args)*8)

	rest := template
	for _, arg := range args {
		idx := strings.Index(rest, placeholder)
		if idx < 0 {
			break
		}
		b.WriteString(rest[:idx])
		b.WriteString(fmt.Sprint(arg))
		rest = rest[idx+len(placeholder):]
	}
	b.WriteString(rest)
	return b.String()
}
