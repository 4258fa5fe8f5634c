// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package entry

// Context is the mergeable bag of contextual fields attached to a log call,
// typically scoped to a request or another logical unit of work.
//
// Callers hand a Context to a log call and must not mutate it afterwards;
// the logger clones during merge so later calls see no aliasing.
type Context struct {
	// UserID identifies the acting user.
	UserID string `json:"userId,omitempty"`

	// SessionID identifies the user's session.
	SessionID string `json:"sessionId,omitempty"`

	// RequestID identifies the originating request.
	RequestID string `json:"requestId,omitempty"`

	// Component names the emitting subsystem.
	Component string `json:"component,omitempty"`

	// Action names the operation in progress.
	Action string `json:"action,omitempty"`

	// Route is the request route, if any.
	Route string `json:"route,omitempty"`

	// UserAgent of the originating client.
	UserAgent string `json:"userAgent,omitempty"`

	// Environment the process runs in (also used for regional gating).
	Environment string `json:"environment,omitempty"`

	// AdditionalData holds free-form contextual fields.
	AdditionalData map[string]any `json:"additionalData,omitempty"`
}

// Clone returns a copy the caller may mutate independently.
// AdditionalData is copied recursively for nested maps.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	if c.AdditionalData != nil {
		out.AdditionalData = cloneMap(c.AdditionalData)
	}
	return &out
}

// Merge combines c with other into a new Context. The merge is
// right-biased: a non-empty field on other wins. AdditionalData merges
// key-wise, with other's keys overwriting on collision. Neither input is
// mutated. A nil receiver or argument yields a clone of the other side.
func (c *Context) Merge(other *Context) *Context {
	if c == nil {
		return other.Clone()
	}
	if other == nil {
		return c.Clone()
	}

	out := c.Clone()
	if other.UserID != "" {
		out.UserID = other.UserID
	}
	if other.SessionID != "" {
		out.SessionID = other.SessionID
	}
	if other.RequestID != "" {
		out.RequestID = other.RequestID
	}
	if other.Component != "" {
		out.Component = other.Component
	}
	if other.Action != "" {
		out.Action = other.Action
	}
	if other.Route != "" {
		out.Route = other.Route
	}
	if other.UserAgent != "" {
		out.UserAgent = other.UserAgent
	}
	if other.Environment != "" {
		out.Environment = other.Environment
	}
	if len(other.AdditionalData) > 0 {
		if out.AdditionalData == nil {
			out.AdditionalData = make(map[string]any, len(other.AdditionalData))
		}
		for k, v := range other.AdditionalData {
			if nested, ok := v.(map[string]any); ok {
				out.AdditionalData[k] = cloneMap(nested)
				continue
			}
			out.AdditionalData[k] = v
		}
	}
	return out
}
