// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

// Package api exposes the daemon's HTTP surface: entry ingestion,
// live tail streaming, consent management, compliance export, and
// operational endpoints (health probes, Prometheus metrics, config
// inspection).
//
// # Router
//
// NewRouter builds a chi router with the full middleware stack
// (request IDs, real IP resolution, panic recovery, CORS, security
// headers, per-group rate limits, request metrics) and mounts:
//
//	GET  /health/live               liveness probe
//	GET  /health/ready              readiness probe
//	GET  /metrics                   Prometheus exposition
//	POST /api/v1/ingest             accept external log entries
//	GET  /api/v1/tail               WebSocket live tail
//	GET  /api/v1/config             redacted running configuration
//	GET  /api/v1/levels             recognized severity levels
//	POST /api/v1/consent/{userId}/grant
//	POST /api/v1/consent/{userId}/revoke
//	GET  /api/v1/consent/{userId}   consent status lookup
//	GET  /api/v1/compliance/trail   filtered activity trail
//	GET  /api/v1/compliance/export  full compliance snapshot download
//
// # Responses
//
// Every JSON endpoint wraps its payload in the APIResponse envelope
// so clients can branch on Success and surface Error.Code without
// inspecting HTTP status text. The request ID from the middleware
// stack is echoed in Meta for correlation with server logs.
//
// # Ingestion
//
// POST /api/v1/ingest feeds remote entries through the same pipeline
// as in-process logging: level gate, sanitization, filters, and
// compliance checks all apply. A vetoed entry returns 200 with
// accepted=false rather than an error so shippers do not retry
// entries that regional policy will never admit.
package api
