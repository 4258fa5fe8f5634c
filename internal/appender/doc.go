// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

// Package appender delivers formatted log entries to their
// destinations: process streams, rotated files, HTTP collectors, NATS
// and MQTT brokers, in-memory capture, and live tail subscribers.
//
// # Architecture
//
// Every appender shares one delivery engine. Append enqueues onto a
// bounded channel and returns immediately; a per-appender goroutine
// accumulates batches and hands them to the type-specific sink:
//
//	Append --> [bounded buffer] --> delivery goroutine --> sink
//	                                 |  batch by size/interval
//	                                 |  rate limit (drop or queue)
//	                                 |  retry with backoff
//	                                 |  panic recovery
//
// Failures never reach the caller of a log statement. A batch that
// still fails after the retry policy is exhausted is dropped, reported
// through selflog, and counted in the appender metrics.
//
// # Lifecycle
//
// Appenders move one way through uninitialized, ready, and stopped.
// Start opens the sink and launches the delivery goroutine; Stop drains
// the buffer within the configured stop timeout, flushes the sink, and
// releases it. Both are idempotent, and a stopped appender stays
// stopped: reconfiguration that changes connection targets builds a
// replacement instance instead.
//
// # Throttling and Retry
//
// The throttling block bounds batching and rate:
//
//	throttling:
//	  maxBatchSize: 50        # flush when this many entries are pending
//	  maxInterval: 2s         # or when this much time has passed
//	  maxPerSecond: 1000      # token bucket over delivered entries
//	  onLimit: drop           # drop at Append, or queue for backpressure
//
// The retry block bounds re-delivery of failed batches:
//
//	retry:
//	  maxAttempts: 3
//	  backoff: 100ms
//	  exponential: true       # backoff * 2^n, capped at maxDelay
//	  maxDelay: 30s
//
// # Configuration Example
//
//	appenders:
//	  - name: audit-file
//	    type: file
//	    active: true
//	    layout: json
//	    properties:
//	      path: /var/log/tabularium/audit.log
//	      maxSizeMB: 100
//	      maxBackups: 14
//	      compress: true
//	  - name: events
//	    type: nats
//	    active: true
//	    properties:
//	      embedded: true
//	      jetStream: true
//	      subject: tabularium.logs
//	      appendCategory: true
//
// # See Also
//
//   - internal/logger for appender construction and dispatch
//   - internal/layout for payload formatting
//   - internal/metrics for the delivery metric families
package appender
