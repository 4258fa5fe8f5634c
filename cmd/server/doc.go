// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

/*
Package main is the entry point for the Tabularium daemon.

Tabularium is a structured logging pipeline with compliance controls.
Category loggers accept entries from application code and from the HTTP
ingest endpoint; every accepted entry passes through sanitization,
compliance enforcement, and filtering before dispatch to its configured
appenders. The daemon adds a live tail over WebSocket, Prometheus
metrics, and hot configuration reload on top of the pipeline.

# Application Architecture

The daemon implements a layered architecture with Suture v4 process
supervision:

	SupervisorTree ("tabularium")
	├── PipelineSupervisor ("pipeline-layer")
	│   └── Config reload loop (when a config file is present)
	├── TailSupervisor ("tail-layer")
	│   ├── WebSocket hub (live tail fan-out)
	│   └── NATS tail relay (when nats.tailRelay is set)
	└── APISupervisor ("api-layer")
	    └── HTTP server (REST API, tail WebSocket, metrics)

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config files
 2. Self logging: zerolog with JSON/console output modes
 3. Compliance: consent store (BadgerDB or memory) and enforcement engine
 4. Tail hub: WebSocket fan-out for live streaming
 5. Registry: category loggers, appenders, and the processing pipeline
 6. Supervisor tree: Suture v4 process supervision
 7. HTTP server: Chi router with middleware stack

The registry's dispatch queue and the compliance trail writer run
outside the tree. A supervised restart of either could drop queued
entries, so the composition root drains them after the tree has fully
stopped.

# Configuration

Configuration is loaded via Koanf v2 with layered sources (highest
priority wins):

	Priority: Environment variables > Config file > Defaults

Core environment variables:

	# Pipeline
	DEFAULT_LEVEL=INFO                # TRACE, DEBUG, INFO, WARN, ERROR, FATAL
	SELFLOG_LEVEL=info                # Daemon's own diagnostic verbosity
	SELFLOG_FORMAT=json               # json or console

	# Server
	HTTP_HOST=0.0.0.0
	HTTP_PORT=8187

	# Sanitization
	SECURITY_ENABLE_SANITIZATION=true
	SECURITY_SENSITIVE_FIELDS=password,token,apikey

	# Compliance
	COMPLIANCE_ENABLED=true
	COMPLIANCE_REQUIRE_CONSENT=true
	COMPLIANCE_STORE=badger           # badger or memory
	COMPLIANCE_STORE_PATH=/data/compliance
	COMPLIANCE_RETENTION_DAYS=90

	# Live tail over NATS
	NATS_TAIL_RELAY=true
	NATS_TAIL_URL=nats://broker:4222
	NATS_TAIL_SUBJECT=tabularium.logs

The config file is found at config.yaml, config.yml, or under
/etc/tabularium/, or wherever CONFIG_PATH points. Logger categories,
appenders, and layouts can only be defined in the file; the environment
covers scalar settings.

# Hot Reload

When a config file is present the daemon watches it for changes. Edits
are debounced, re-validated by a full Load, and applied atomically to
the running registry: logger levels, appender definitions, sanitization
rules, and compliance settings all take effect without a restart. A
file revision that fails validation is logged and ignored, leaving the
previous configuration active.

# Live Tail

Clients stream formatted entries over WebSocket at /api/v1/tail. Local
entries reach the tail through the livetail appender. With
nats.tailRelay enabled the daemon additionally subscribes to the tail
subject on a NATS broker and feeds received payloads into the same hub,
so one node can tail a fleet whose appenders publish to NATS. A nats
appender with the "embedded: true" property starts an in-process
JetStream server, which removes the external broker for single-node
setups.

# Signal Handling

The daemon handles graceful shutdown on SIGINT and SIGTERM:

 1. Stops accepting new HTTP connections
 2. Waits for in-flight requests (10s timeout)
 3. Stops the tail hub and broker relay
 4. Drains queued entries through the pipeline to their appenders
 5. Flushes the compliance audit trail and closes the consent store
 6. Reports any services that failed to stop

# Usage Examples

Development (console self logging, memory consent store):

	export SELFLOG_FORMAT=console
	export COMPLIANCE_STORE=memory
	go run ./cmd/server

Production (persistent compliance, fleet tail):

	export COMPLIANCE_ENABLED=true
	export COMPLIANCE_STORE=badger COMPLIANCE_STORE_PATH=/data/compliance
	export NATS_TAIL_RELAY=true NATS_TAIL_URL=nats://broker:4222
	./tabularium

Docker:

	docker run -d \
	  -e COMPLIANCE_ENABLED=true \
	  -e COMPLIANCE_STORE=badger \
	  -v tabularium-data:/data \
	  -p 8187:8187 \
	  ghcr.io/tomtom215/tabularium

# API Endpoints

The HTTP API is organized under /api/v1:

  - POST /api/v1/ingest: Submit entries to a category logger
  - GET /api/v1/tail: Live tail WebSocket
  - GET /api/v1/config: Active configuration (sanitized view)
  - GET /api/v1/levels: Category levels and appender targets
  - GET/POST /api/v1/consent/{userId}: Consent status, grant, revoke
  - GET /api/v1/compliance/trail: Audit trail query
  - GET /api/v1/compliance/export: Subject data export
  - GET /health/live, /health/ready: Orchestrator probes
  - GET /metrics: Prometheus exposition

# See Also

  - internal/config: Configuration loading, validation, and watching
  - internal/logger: Registry, category loggers, and the pipeline
  - internal/compliance: Consent enforcement and audit trail
  - internal/supervisor: Process supervision
  - internal/api: HTTP handlers and routing
*/
package main
