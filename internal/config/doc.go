// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

/*
Package config provides centralized configuration management for Tabularium.

This package defines the aggregate logging system configuration, loads it
from layered sources, validates it into a structured error/warning report,
and manages runtime updates with change notification.

# Configuration Sources

Precedence from lowest to highest:
  - Built-in defaults (Default)
  - Optional YAML config file (config.yaml, or CONFIG_PATH)
  - Environment variables

# Configuration Structure

The aggregate groups settings by concern:

  - DefaultLevel: threshold for categories without a logger config
  - Loggers: per-category level, additivity, appender references
  - Appenders: named sinks with type, layout ref, throttling, retry
  - Layouts: named formatters (json, pattern)
  - Security: sanitization engine settings and custom masking rules
  - Performance: lazy evaluation, message length cap, batching gate
  - Compliance: consent gating, anonymization, retention, audit trail
  - Server / NATS / SelfLog: daemon listener, embedded JetStream,
    self-diagnostic logger

# Environment Variables

Selected variables (see envTransformFunc for the full mapping):

Core:
  - DEFAULT_LEVEL: default logger level (default: info)
  - SELFLOG_LEVEL: diagnostic logger level (default: warn)
  - SELFLOG_FORMAT: diagnostic logger format, json or console

HTTP Server:
  - HTTP_HOST: bind address (default: 0.0.0.0)
  - HTTP_PORT: listen port (default: 8187)
  - HTTP_TIMEOUT: request timeout (default: 30s)
  - ENVIRONMENT: development or production
  - CORS_ORIGINS: comma-separated allowed origins
  - RATE_LIMIT_REQUESTS / RATE_LIMIT_WINDOW: ingest API rate limit

Security:
  - SECURITY_ENABLE_SANITIZATION: mask sensitive fields (default: true)
  - SECURITY_SENSITIVE_FIELDS: comma-separated masked field names
  - SECURITY_MASK_CHAR: masking character (default: *)
  - SECURITY_PARTIAL_MASK: keep value prefix/suffix visible

Compliance:
  - COMPLIANCE_ENABLED: enable the compliance engine
  - COMPLIANCE_RETENTION_DAYS: retention stamp horizon (default: 365)
  - COMPLIANCE_REQUIRE_CONSENT: suppress entries without user consent
  - COMPLIANCE_ANONYMIZE_IPS: zero the last IPv4 octet
  - COMPLIANCE_RESTRICTED_REGIONS: comma-separated blocked environments
  - COMPLIANCE_STORE: memory or badger
  - COMPLIANCE_STORE_PATH: badger directory (default: /data/compliance)

NATS:
  - NATS_EMBEDDED: run an embedded JetStream server
  - NATS_STORE_DIR: JetStream storage directory

# Validation

Validate returns a structured result instead of failing on the first
problem: missing required fields (default level, logger category/level,
appender name/type, remote appender URL) are errors; under-configuration
such as a logger with no appenders is a warning. The Manager refuses to
apply a config whose validation reports errors.

# Runtime Updates

Manager owns the active config. Update merges a partial document over the
current config, validates the result, and either applies-and-notifies or
reverts and returns the validation report as an error. Watch registers a
callback for applied changes and returns an unsubscribe function.
*/
package config
