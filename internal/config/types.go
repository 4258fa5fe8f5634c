// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package config

import (
	"time"
)

// Config is the aggregate logging system configuration. It is pure data:
// loggers, appenders, and layouts stay inert records until a factory turns
// them into runtime instances. Mutate it only through the Manager so every
// change passes validation.
type Config struct {
	// DefaultLevel is the threshold for categories without an explicit
	// logger config.
	DefaultLevel string `koanf:"defaultLevel" json:"defaultLevel"`

	// Loggers maps a category to its logger configuration.
	Loggers map[string]LoggerConfig `koanf:"loggers" json:"loggers,omitempty" validate:"omitempty,dive"`

	// Appenders maps an appender name to its configuration.
	Appenders map[string]AppenderConfig `koanf:"appenders" json:"appenders,omitempty" validate:"omitempty,dive"`

	// Layouts maps a layout name to its configuration.
	Layouts map[string]LayoutConfig `koanf:"layouts" json:"layouts,omitempty" validate:"omitempty,dive"`

	// Properties are free-form static fields stamped into every entry's
	// metadata.
	Properties map[string]any `koanf:"properties" json:"properties,omitempty"`

	Security    SecurityConfig    `koanf:"security" json:"security"`
	Performance PerformanceConfig `koanf:"performance" json:"performance"`
	Compliance  ComplianceConfig  `koanf:"compliance" json:"compliance"`

	// Server configures the daemon's HTTP surface. Library embedders can
	// ignore it.
	Server ServerConfig `koanf:"server" json:"server"`

	// NATS configures the optional embedded JetStream server backing
	// nats appenders.
	NATS NATSConfig `koanf:"nats" json:"nats"`

	// SelfLog configures the pipeline's own diagnostic logger.
	SelfLog SelfLogConfig `koanf:"selflog" json:"selflog"`
}

// LoggerConfig configures one category.
type LoggerConfig struct {
	Category string `koanf:"category" json:"category"`
	Level    string `koanf:"level" json:"level"`

	// Additive loggers also dispatch to the appenders of their ancestor
	// categories and the root set.
	Additive bool `koanf:"additive" json:"additive"`

	// Appenders names the appender configs this logger dispatches to.
	Appenders []string `koanf:"appenders" json:"appenders,omitempty"`

	IncludeCaller bool `koanf:"includeCaller" json:"includeCaller"`
}

// AppenderConfig configures one output sink.
type AppenderConfig struct {
	Name   string `koanf:"name" json:"name"`
	Type   string `koanf:"type" json:"type"`
	Active bool   `koanf:"active" json:"active"`

	// Layout names the layout config to format with. Empty selects the
	// type's default layout.
	Layout string `koanf:"layout" json:"layout,omitempty"`

	// Properties carries type-specific settings (url, path, topic, ...).
	Properties map[string]any `koanf:"properties" json:"properties,omitempty"`

	Throttling *ThrottlingConfig `koanf:"throttling" json:"throttling,omitempty"`
	Retry      *RetryConfig      `koanf:"retry" json:"retry,omitempty"`

	// StopTimeout bounds this appender's stop during shutdown. Zero
	// means the default.
	StopTimeout time.Duration `koanf:"stopTimeout" json:"stopTimeout,omitempty"`
}

// ThrottlingConfig bounds an appender's delivery rate and batching.
type ThrottlingConfig struct {
	MaxBatchSize int           `koanf:"maxBatchSize" json:"maxBatchSize,omitempty"`
	MaxInterval  time.Duration `koanf:"maxInterval" json:"maxInterval,omitempty"`
	MaxPerSecond int           `koanf:"maxPerSecond" json:"maxPerSecond,omitempty"`

	// OnLimit selects what happens to entries over the rate: "drop"
	// discards them, "queue" applies backpressure to the buffer.
	OnLimit string `koanf:"onLimit" json:"onLimit,omitempty" validate:"omitempty,oneof=drop queue"`
}

// RetryConfig bounds re-delivery of failed batches.
type RetryConfig struct {
	MaxAttempts int           `koanf:"maxAttempts" json:"maxAttempts,omitempty"`
	Backoff     time.Duration `koanf:"backoff" json:"backoff,omitempty"`
	Exponential bool          `koanf:"exponential" json:"exponential"`
	MaxDelay    time.Duration `koanf:"maxDelay" json:"maxDelay,omitempty"`
}

// LayoutConfig configures one formatter.
type LayoutConfig struct {
	Name          string         `koanf:"name" json:"name"`
	Type          string         `koanf:"type" json:"type"`
	Pattern       string         `koanf:"pattern" json:"pattern,omitempty"`
	IncludeColors *bool          `koanf:"includeColors" json:"includeColors,omitempty"`
	DateFormat    string         `koanf:"dateFormat" json:"dateFormat,omitempty"`
	Fields        []string       `koanf:"fields" json:"fields,omitempty"`
	StaticFields  map[string]any `koanf:"staticFields" json:"staticFields,omitempty"`
}

// SecurityConfig configures the sanitization engine.
type SecurityConfig struct {
	EnableSanitization bool `koanf:"enableSanitization" json:"enableSanitization"`

	// SensitiveFields overrides the built-in masked field names. Nil
	// keeps the built-in list; an explicit empty list disables it.
	SensitiveFields []string `koanf:"sensitiveFields" json:"sensitiveFields,omitempty"`

	MaskChar    string             `koanf:"maskChar" json:"maskChar,omitempty"`
	PartialMask bool               `koanf:"partialMask" json:"partialMask"`
	CustomRules []SanitizationRule `koanf:"customRules" json:"customRules,omitempty"`
}

// SanitizationRule is a configured masking rule. The pattern matches map
// keys and scalar values; higher priority runs first.
type SanitizationRule struct {
	Name     string `koanf:"name" json:"name"`
	Pattern  string `koanf:"pattern" json:"pattern"`
	Priority int    `koanf:"priority" json:"priority"`

	// Mask is a literal replacement. Empty uses the engine's mask mode.
	Mask string `koanf:"mask" json:"mask,omitempty"`
}

// PerformanceConfig tunes the pipeline's hot path.
type PerformanceConfig struct {
	EnableLazyEvaluation bool             `koanf:"enableLazyEvaluation" json:"enableLazyEvaluation"`
	MaxMessageLength     int              `koanf:"maxMessageLength" json:"maxMessageLength,omitempty"`
	EnableBatching       bool             `koanf:"enableBatching" json:"enableBatching"`
	Monitoring           MonitoringConfig `koanf:"monitoring" json:"monitoring"`
}

// MonitoringConfig controls the pipeline's own Prometheus surface.
type MonitoringConfig struct {
	Enabled        bool          `koanf:"enabled" json:"enabled"`
	SampleInterval time.Duration `koanf:"sampleInterval" json:"sampleInterval,omitempty"`
}

// ComplianceConfig configures consent gating, anonymization, retention,
// and the audit trail.
type ComplianceConfig struct {
	Enabled           bool     `koanf:"enabled" json:"enabled"`
	DataRetentionDays int      `koanf:"dataRetentionDays" json:"dataRetentionDays"`
	RequireConsent    bool     `koanf:"requireConsent" json:"requireConsent"`
	AnonymizeIPs      bool     `koanf:"anonymizeIPs" json:"anonymizeIPs"`
	EnableAuditTrail  bool     `koanf:"enableAuditTrail" json:"enableAuditTrail"`
	RestrictedRegions []string `koanf:"restrictedRegions" json:"restrictedRegions,omitempty"`
	ConsentStorageKey string   `koanf:"consentStorageKey" json:"consentStorageKey,omitempty"`
	AuditFields       []string `koanf:"auditFields" json:"auditFields,omitempty"`

	// Store selects the consent/audit backend: "memory" or "badger".
	Store     string `koanf:"store" json:"store,omitempty" validate:"omitempty,oneof=memory badger"`
	StorePath string `koanf:"storePath" json:"storePath,omitempty"`

	// AuditMaxAgeDays bounds audit trail age for the background cleanup.
	AuditMaxAgeDays int           `koanf:"auditMaxAgeDays" json:"auditMaxAgeDays,omitempty"`
	CleanupInterval time.Duration `koanf:"cleanupInterval" json:"cleanupInterval,omitempty"`
}

// ServerConfig configures the daemon's HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host" json:"host"`
	Port            int           `koanf:"port" json:"port"`
	Timeout         time.Duration `koanf:"timeout" json:"timeout"`
	Environment     string        `koanf:"environment" json:"environment"`
	CORSOrigins     []string      `koanf:"corsOrigins" json:"corsOrigins,omitempty"`
	RateLimitReqs   int           `koanf:"rateLimitRequests" json:"rateLimitRequests"`
	RateLimitWindow time.Duration `koanf:"rateLimitWindow" json:"rateLimitWindow"`
}

// NATSConfig configures the optional embedded JetStream server and the
// live tail relay.
type NATSConfig struct {
	Embedded  bool   `koanf:"embedded" json:"embedded"`
	StoreDir  string `koanf:"storeDir" json:"storeDir,omitempty"`
	MaxMemory int64  `koanf:"maxMemory" json:"maxMemory,omitempty"`
	MaxStore  int64  `koanf:"maxStore" json:"maxStore,omitempty"`

	// TailRelay subscribes to TailSubject and feeds received payloads
	// into the live tail hub, so one node can tail a fleet whose
	// appenders publish to NATS. TailURL and TailSubject fall back to
	// the nats appender defaults when empty.
	TailRelay   bool   `koanf:"tailRelay" json:"tailRelay"`
	TailURL     string `koanf:"tailUrl" json:"tailUrl,omitempty"`
	TailSubject string `koanf:"tailSubject" json:"tailSubject,omitempty"`
}

// SelfLogConfig configures the pipeline's own diagnostic logger.
type SelfLogConfig struct {
	Level  string `koanf:"level" json:"level" validate:"omitempty,loglevel"`
	Format string `koanf:"format" json:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller" json:"caller"`
}

// Default returns the built-in configuration: info level, a single active
// console appender, and sanitization on with full masking.
func Default() *Config {
	return &Config{
		DefaultLevel: "info",
		Loggers:      map[string]LoggerConfig{},
		Appenders: map[string]AppenderConfig{
			"console": {
				Name:   "console",
				Type:   "console",
				Active: true,
				Layout: "console",
			},
		},
		Layouts: map[string]LayoutConfig{
			"console": {
				Name: "console",
				Type: "pattern",
			},
			"json": {
				Name: "json",
				Type: "json",
			},
		},
		Properties: map[string]any{},
		Security: SecurityConfig{
			EnableSanitization: true,
			MaskChar:           "*",
			PartialMask:        false,
		},
		Performance: PerformanceConfig{
			EnableLazyEvaluation: true,
			MaxMessageLength:     10000,
			EnableBatching:       false,
			Monitoring: MonitoringConfig{
				Enabled:        false,
				SampleInterval: 30 * time.Second,
			},
		},
		Compliance: ComplianceConfig{
			Enabled:           false,
			DataRetentionDays: 365,
			RequireConsent:    false,
			AnonymizeIPs:      false,
			EnableAuditTrail:  false,
			ConsentStorageKey: "tabularium-consent",
			Store:             "memory",
			StorePath:         "/data/compliance",
			AuditMaxAgeDays:   90,
			CleanupInterval:   time.Hour,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8187,
			Timeout:         30 * time.Second,
			Environment:     "development",
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		NATS: NATSConfig{
			Embedded:  false,
			StoreDir:  "/data/nats/jetstream",
			MaxMemory: 1 << 30,
			MaxStore:  10 << 30,
		},
		SelfLog: SelfLogConfig{
			Level:  "warn",
			Format: "json",
			Caller: false,
		},
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	out := *c

	if c.Loggers != nil {
		out.Loggers = make(map[string]LoggerConfig, len(c.Loggers))
		for k, v := range c.Loggers {
			v.Appenders = append([]string(nil), v.Appenders...)
			out.Loggers[k] = v
		}
	}
	if c.Appenders != nil {
		out.Appenders = make(map[string]AppenderConfig, len(c.Appenders))
		for k, v := range c.Appenders {
			out.Appenders[k] = *v.clone()
		}
	}
	if c.Layouts != nil {
		out.Layouts = make(map[string]LayoutConfig, len(c.Layouts))
		for k, v := range c.Layouts {
			out.Layouts[k] = *v.clone()
		}
	}
	out.Properties = cloneAnyMap(c.Properties)
	out.Security.SensitiveFields = append([]string(nil), c.Security.SensitiveFields...)
	out.Security.CustomRules = append([]SanitizationRule(nil), c.Security.CustomRules...)
	out.Compliance.RestrictedRegions = append([]string(nil), c.Compliance.RestrictedRegions...)
	out.Compliance.AuditFields = append([]string(nil), c.Compliance.AuditFields...)
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)

	return &out
}

// clone deep-copies an appender config.
func (a *AppenderConfig) clone() *AppenderConfig {
	out := *a
	out.Properties = cloneAnyMap(a.Properties)
	if a.Throttling != nil {
		t := *a.Throttling
		out.Throttling = &t
	}
	if a.Retry != nil {
		r := *a.Retry
		out.Retry = &r
	}
	return &out
}

// clone deep-copies a layout config.
func (l *LayoutConfig) clone() *LayoutConfig {
	out := *l
	if l.IncludeColors != nil {
		b := *l.IncludeColors
		out.IncludeColors = &b
	}
	out.Fields = append([]string(nil), l.Fields...)
	out.StaticFields = cloneAnyMap(l.StaticFields)
	return &out
}

// cloneAnyMap deep-copies a free-form map, recursing into nested maps.
func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneAnyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
