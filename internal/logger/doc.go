// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

// Package logger holds the pipeline's front half: the Logger handles
// callers log through, the Factory that turns configuration records into
// runtime instances, and the Registry that owns both for a process.
//
// # Architecture
//
//	caller
//	  │ Info / Warn / Log(level, ctx, template, args...)
//	  ▼
//	Logger ── level gate ── entry build ── sanitize ── filter ── compliance
//	  │                                                              │
//	  │ fan-out (panic isolated per appender)                        ▼
//	  ├──────────────► appender A                            veto: entry gone
//	  └──────────────► appender B
//
// A Logger is cheap and safe for concurrent use. Its category is fixed at
// construction; the level, appender set, and processing stages can change
// at any time, which is how the Registry pushes configuration reloads into
// handles callers already hold.
//
// # Factory
//
// Appender and layout construction is a registry of constructors keyed by
// type string. The built-in types (console, file, http, nats, mqtt,
// memory, livetail, and the json/pattern layouts) are registered by
// NewFactory; embedders add their own with RegisterAppenderType and
// RegisterLayoutType. Requesting an unregistered type fails with
// ErrUnknownType.
//
// CreateLogger caches by (category, config) value, so two calls with
// value-equal arguments return the identical *Logger. ClearCache severs
// that identity without touching loggers already handed out.
//
// # Registry
//
// The Registry is an explicitly constructed object, not package state: the
// composition root builds one, hands it to whatever needs loggers, and
// shuts it down on exit. GetLogger resolves a category against the active
// configuration (nearest configured ancestor wins the level; appender
// references accumulate up the hierarchy until a non-additive logger, then
// fall back to the "root" set), creates the logger lazily, and shares
// appender instances across loggers that reference the same name.
//
// Configure swaps the active configuration and reconciles the live wiring:
// unchanged appenders are kept, dynamic changes apply in place, structural
// changes build a replacement before the old instance is retired, and a
// failure reverts the whole update. Shutdown stops every appender in
// parallel, clears the registry, and makes later GetLogger calls fail.
package logger
