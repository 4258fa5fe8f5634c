// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tomtom215/tabularium/internal/level"
	"github.com/tomtom215/tabularium/internal/validation"
)

// remoteAppenderTypes name the appender types that deliver over a network
// and therefore require a url property.
var remoteAppenderTypes = map[string]bool{
	"http": true,
	"nats": true,
	"mqtt": true,
}

// ValidationIssue is a single finding from a validation pass.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult aggregates all findings of one validation pass.
// Errors make the config unusable; warnings flag under-configuration
// but never block it.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid reports whether the config may be applied.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns nil for a valid result and a *ValidationError otherwise.
func (r *ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return &ValidationError{Result: r}
}

// errorf records an error finding.
func (r *ValidationResult) errorf(field, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationIssue{Field: field, Message: fmt.Sprintf(format, args...)})
}

// warnf records a warning finding.
func (r *ValidationResult) warnf(field, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationIssue{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidationError carries a failed validation result across an error
// boundary.
type ValidationError struct {
	Result *ValidationResult
}

// Error implements error.
func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Result.Errors))
	for _, issue := range e.Result.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
	}
	return fmt.Sprintf("configuration validation failed: %s", strings.Join(msgs, "; "))
}

// Validate checks the whole aggregate and returns every finding instead
// of stopping at the first. Map iteration is sorted so findings come out
// in a stable order.
func (c *Config) Validate() *ValidationResult {
	r := &ValidationResult{}

	c.validateDefaultLevel(r)
	c.validateLoggers(r)
	c.validateAppenders(r)
	c.validateLayouts(r)
	c.validateSecurity(r)
	c.validateCompliance(r)
	c.validateServer(r)
	c.validateStructTags(r)

	return r
}

// validateDefaultLevel checks the root level threshold.
func (c *Config) validateDefaultLevel(r *ValidationResult) {
	if c.DefaultLevel == "" {
		r.errorf("defaultLevel", "defaultLevel is required")
		return
	}
	if _, err := level.Parse(c.DefaultLevel); err != nil {
		r.errorf("defaultLevel", "unknown level %q, must be one of: %s", c.DefaultLevel, levelNames())
	}
}

// validateLoggers checks per-category logger configs.
func (c *Config) validateLoggers(r *ValidationResult) {
	for _, key := range sortedLoggerKeys(c.Loggers) {
		lc := c.Loggers[key]
		field := fmt.Sprintf("loggers[%s]", key)

		if lc.Category == "" {
			r.errorf(field+".category", "category is required")
		} else if lc.Category != key {
			r.warnf(field+".category", "category %q does not match its key %q", lc.Category, key)
		}

		if lc.Level == "" {
			r.errorf(field+".level", "level is required")
		} else if _, err := level.Parse(lc.Level); err != nil {
			r.errorf(field+".level", "unknown level %q, must be one of: %s", lc.Level, levelNames())
		}

		for _, ref := range lc.Appenders {
			if _, ok := c.Appenders[ref]; !ok {
				r.errorf(field+".appenders", "references unknown appender %q", ref)
			}
		}
		if len(lc.Appenders) == 0 {
			r.warnf(field+".appenders", "logger has no appenders configured")
		}
	}
}

// validateAppenders checks per-sink configs, including remote URL
// requirements and throttling/retry bounds.
func (c *Config) validateAppenders(r *ValidationResult) {
	for _, key := range sortedAppenderKeys(c.Appenders) {
		ac := c.Appenders[key]
		field := fmt.Sprintf("appenders[%s]", key)

		if ac.Name == "" {
			r.errorf(field+".name", "name is required")
		} else if ac.Name != key {
			r.warnf(field+".name", "name %q does not match its key %q", ac.Name, key)
		}

		if ac.Type == "" {
			r.errorf(field+".type", "type is required")
		}

		if ac.Layout != "" {
			if _, ok := c.Layouts[ac.Layout]; !ok {
				r.errorf(field+".layout", "references unknown layout %q", ac.Layout)
			}
		}

		c.validateRemoteURL(r, field, &ac)
		validateThrottling(r, field, ac.Throttling)
		validateRetry(r, field, ac.Retry)

		if ac.StopTimeout < 0 {
			r.errorf(field+".stopTimeout", "stopTimeout must not be negative")
		}
	}
}

// validateRemoteURL requires a url property on network appender types.
// A nats appender may omit it when an embedded server is configured.
func (c *Config) validateRemoteURL(r *ValidationResult, field string, ac *AppenderConfig) {
	if !remoteAppenderTypes[ac.Type] {
		return
	}

	url, _ := ac.Properties["url"].(string)
	if url != "" {
		return
	}

	if ac.Type == "nats" {
		if embedded, _ := ac.Properties["embedded"].(bool); embedded || c.NATS.Embedded {
			return
		}
	}

	r.errorf(field+".properties.url", "type %q requires a url property", ac.Type)
}

// validateThrottling checks rate and batch bounds.
func validateThrottling(r *ValidationResult, field string, t *ThrottlingConfig) {
	if t == nil {
		return
	}
	if t.MaxBatchSize < 0 {
		r.errorf(field+".throttling.maxBatchSize", "maxBatchSize must not be negative")
	}
	if t.MaxInterval < 0 {
		r.errorf(field+".throttling.maxInterval", "maxInterval must not be negative")
	}
	if t.MaxPerSecond < 0 {
		r.errorf(field+".throttling.maxPerSecond", "maxPerSecond must not be negative")
	}
}

// validateRetry checks retry bounds.
func validateRetry(r *ValidationResult, field string, rc *RetryConfig) {
	if rc == nil {
		return
	}
	if rc.MaxAttempts < 0 {
		r.errorf(field+".retry.maxAttempts", "maxAttempts must not be negative")
	}
	if rc.Backoff < 0 {
		r.errorf(field+".retry.backoff", "backoff must not be negative")
	}
	if rc.MaxDelay < 0 {
		r.errorf(field+".retry.maxDelay", "maxDelay must not be negative")
	}
}

// validateLayouts checks per-formatter configs.
func (c *Config) validateLayouts(r *ValidationResult) {
	for _, key := range sortedLayoutKeys(c.Layouts) {
		lc := c.Layouts[key]
		field := fmt.Sprintf("layouts[%s]", key)

		if lc.Name == "" {
			r.errorf(field+".name", "name is required")
		} else if lc.Name != key {
			r.warnf(field+".name", "name %q does not match its key %q", lc.Name, key)
		}

		if lc.Type == "" {
			r.errorf(field+".type", "type is required")
		}
	}
}

// validateSecurity checks sanitization rules compile.
func (c *Config) validateSecurity(r *ValidationResult) {
	for i, rule := range c.Security.CustomRules {
		field := fmt.Sprintf("security.customRules[%d]", i)
		if rule.Name == "" {
			r.errorf(field+".name", "name is required")
		}
		if rule.Pattern == "" {
			r.errorf(field+".pattern", "pattern is required")
			continue
		}
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			r.errorf(field+".pattern", "invalid pattern: %v", err)
		}
	}
}

// validateCompliance checks retention and store settings.
func (c *Config) validateCompliance(r *ValidationResult) {
	if c.Compliance.Enabled && c.Compliance.DataRetentionDays < 1 {
		r.errorf("compliance.dataRetentionDays", "dataRetentionDays must be at least 1 when compliance is enabled")
	}
	if c.Compliance.AuditMaxAgeDays < 0 {
		r.errorf("compliance.auditMaxAgeDays", "auditMaxAgeDays must not be negative")
	}
	if c.Compliance.Enabled && c.Compliance.Store == "badger" && c.Compliance.StorePath == "" {
		r.errorf("compliance.storePath", "storePath is required for the badger store")
	}
	if c.Compliance.CleanupInterval < 0 {
		r.errorf("compliance.cleanupInterval", "cleanupInterval must not be negative")
	}
}

// validateServer checks the daemon listener settings.
func (c *Config) validateServer(r *ValidationResult) {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		r.errorf("server.port", "port must be between 1 and 65535")
	}
	if c.Server.Timeout < 0 {
		r.errorf("server.timeout", "timeout must not be negative")
	}
	if c.Server.RateLimitReqs < 0 {
		r.errorf("server.rateLimitRequests", "rateLimitRequests must not be negative")
	}
}

// validateStructTags folds the tag-driven validator pass into the result.
// It covers the enum constraints (onLimit, compliance store, selflog
// format) declared on the config structs.
func (c *Config) validateStructTags(r *ValidationResult) {
	verr := validation.ValidateStruct(c)
	if verr == nil {
		return
	}
	for _, fe := range verr.Errors() {
		r.errorf(fe.Namespace(), "%s", fe.Error())
	}
}

// levelNames renders the level order for error messages.
func levelNames() string {
	names := level.All()
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}

func sortedLoggerKeys(m map[string]LoggerConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedAppenderKeys(m map[string]AppenderConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedLayoutKeys(m map[string]LayoutConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
