// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tabularium/config.yaml",
	"/etc/tabularium/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
//
// The loaded config is validated; a result with errors fails the load.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if result := cfg.Validate(); !result.Valid() {
		return nil, result.Err()
	}

	return cfg, nil
}

// FindConfigFile reports the file Load would read: the ConfigPathEnvVar
// override when it points at an existing file, else the first default
// path present. Empty means Load runs on defaults and environment only.
// The daemon uses this to pick the file to watch for reloads.
func FindConfigFile() string {
	return findConfigFile()
}

// findConfigFile searches for a config file in the default paths.
// Returns the first file found, or empty string when none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when they arrive from environment variables.
var sliceConfigPaths = []string{
	"security.sensitiveFields",
	"compliance.restrictedRegions",
	"compliance.auditFields",
	"server.corsOrigins",
}

// processSliceFields converts comma-separated strings to slices for the
// known slice fields. Environment variables always arrive as strings.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - DEFAULT_LEVEL -> defaultLevel
//   - HTTP_PORT -> server.port
//   - COMPLIANCE_RETENTION_DAYS -> compliance.dataRetentionDays
//
// Unmapped variables return empty string and are skipped, so unrelated
// process environment never pollutes the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Core mappings
		"default_level": "defaultLevel",

		// Self-diagnostic logger mappings
		"selflog_level":  "selflog.level",
		"selflog_format": "selflog.format",
		"selflog_caller": "selflog.caller",

		// Server mappings
		"http_host":           "server.host",
		"http_port":           "server.port",
		"http_timeout":        "server.timeout",
		"environment":         "server.environment",
		"cors_origins":        "server.corsOrigins",
		"rate_limit_requests": "server.rateLimitRequests",
		"rate_limit_window":   "server.rateLimitWindow",

		// Security mappings
		"security_enable_sanitization": "security.enableSanitization",
		"security_sensitive_fields":    "security.sensitiveFields",
		"security_mask_char":           "security.maskChar",
		"security_partial_mask":        "security.partialMask",

		// Performance mappings
		"performance_lazy_evaluation":    "performance.enableLazyEvaluation",
		"performance_max_message_length": "performance.maxMessageLength",
		"performance_batching":           "performance.enableBatching",
		"performance_monitoring":         "performance.monitoring.enabled",

		// Compliance mappings
		"compliance_enabled":            "compliance.enabled",
		"compliance_retention_days":     "compliance.dataRetentionDays",
		"compliance_require_consent":    "compliance.requireConsent",
		"compliance_anonymize_ips":      "compliance.anonymizeIPs",
		"compliance_audit_trail":        "compliance.enableAuditTrail",
		"compliance_restricted_regions": "compliance.restrictedRegions",
		"compliance_consent_key":        "compliance.consentStorageKey",
		"compliance_store":              "compliance.store",
		"compliance_store_path":         "compliance.storePath",
		"compliance_audit_max_age_days": "compliance.auditMaxAgeDays",
		"compliance_cleanup_interval":   "compliance.cleanupInterval",

		// NATS mappings
		"nats_embedded":     "nats.embedded",
		"nats_store_dir":    "nats.storeDir",
		"nats_max_memory":   "nats.maxMemory",
		"nats_max_store":    "nats.maxStore",
		"nats_tail_relay":   "nats.tailRelay",
		"nats_tail_url":     "nats.tailUrl",
		"nats_tail_subject": "nats.tailSubject",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped.
	return ""
}

// WatchConfigFile watches path for changes and invokes callback on each
// one. The callback should reload through Load and hand the result to the
// Manager, which keeps reload failures from clobbering the active config.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
