// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

// Package main is the entry point for the Tabularium daemon.
//
// Tabularium is a structured logging pipeline with compliance controls.
// Applications hand it log entries through category loggers; the daemon
// runs the delivery side: sanitization, compliance enforcement, appender
// dispatch, a live tail over WebSocket, and a REST API for inspecting
// and reconfiguring the pipeline at runtime.
//
// # Application Architecture
//
// The daemon initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Diagnostics: Zerolog-based self logging for the pipeline's own events
//  3. Compliance: Consent store (BadgerDB or memory) and enforcement engine
//  4. Tail Hub: WebSocket fan-out for live log streaming
//  5. Registry: Category loggers, appenders, and the processing pipeline
//  6. Supervision: Suture v4 tree running the reload loop, tail services, and HTTP API
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (DEFAULT_LEVEL, HTTP_PORT, COMPLIANCE_ENABLED, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// When a config file is present it is watched for changes; edits are
// validated and applied to the running pipeline without a restart.
//
// # Signal Handling
//
// The daemon handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new HTTP connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Drains queued log entries through the pipeline to their appenders
//   - Flushes the compliance audit trail and closes the consent store
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"syscall"
	"time"

	"github.com/tomtom215/tabularium/internal/api"
	"github.com/tomtom215/tabularium/internal/compliance"
	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/logger"
	"github.com/tomtom215/tabularium/internal/metrics"
	"github.com/tomtom215/tabularium/internal/sanitize"
	"github.com/tomtom215/tabularium/internal/selflog"
	"github.com/tomtom215/tabularium/internal/supervisor"
	"github.com/tomtom215/tabularium/internal/supervisor/services"
	ws "github.com/tomtom215/tabularium/internal/websocket"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=v1.2.3" ./cmd/server
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		selflog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	slCfg := selflog.DefaultConfig()
	slCfg.Level = cfg.SelfLog.Level
	slCfg.Format = cfg.SelfLog.Format
	slCfg.Caller = cfg.SelfLog.Caller
	selflog.Init(slCfg)

	selflog.Info().
		Str("version", version).
		Str("go_version", runtime.Version()).
		Msg("Starting Tabularium daemon")

	selflog.Info().
		Str("default_level", cfg.DefaultLevel).
		Int("loggers", len(cfg.Loggers)).
		Int("appenders", len(cfg.Appenders)).
		Bool("sanitization", cfg.Security.EnableSanitization).
		Bool("compliance", cfg.Compliance.Enabled).
		Msg("Configuration loaded")

	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	// The manager owns the live configuration. Reloads go through
	// Set, which validates before any watcher sees the new config.
	mgr, err := config.NewManager(cfg)
	if err != nil {
		selflog.Fatal().Err(err).Msg("Failed to initialize configuration manager")
	}

	engine, storeFactory, err := initCompliance(cfg)
	if err != nil {
		selflog.Fatal().Err(err).Msg("Failed to initialize compliance engine")
	}
	if storeFactory != nil {
		defer func() {
			if err := storeFactory.Close(); err != nil {
				selflog.Error().Err(err).Msg("Error closing compliance store")
			}
		}()
	}
	if engine != nil {
		// Registered after the store factory defer, so the trail
		// writer flushes into a store that is still open.
		defer func() {
			if err := engine.Close(); err != nil {
				selflog.Error().Err(err).Msg("Error closing compliance engine")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if engine != nil {
		engine.StartCleanupRoutine(ctx)
	}

	// Tail hub exists before the registry so livetail appenders
	// broadcast from their first write.
	hub := ws.NewHub()

	reg := logger.NewRegistry(cfg, logger.WithPipeline(buildPipeline(cfg, engine)))
	reg.Factory().SetBroadcaster(hub)

	mgr.Watch(func(newCfg *config.Config) {
		if err := reg.Configure(newCfg); err != nil {
			selflog.Error().Err(err).Msg("Failed to apply configuration to registry")
			return
		}
		reg.SetPipeline(buildPipeline(newCfg, engine))
		if engine != nil {
			engine.UpdateConfig(complianceEngineConfig(&newCfg.Compliance))
		}
		selflog.SetLevelString(newCfg.SelfLog.Level)
		selflog.Info().Msg("Configuration reloaded")
	})

	tree, err := supervisor.NewSupervisorTree(selflog.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		selflog.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Pipeline layer: debounced config reload fed by file watch events.
	if path := config.FindConfigFile(); path != "" {
		trigger := make(chan struct{}, 1)
		err := config.WatchConfigFile(path, func() {
			select {
			case trigger <- struct{}{}:
			default:
			}
		})
		if err != nil {
			selflog.Warn().Err(err).Str("path", path).Msg("Config file watch failed, hot reload disabled")
		} else {
			tree.AddPipelineService(services.NewReloadService(trigger, func(context.Context) error {
				newCfg, err := config.Load()
				if err != nil {
					return err
				}
				_, err = mgr.Set(newCfg)
				return err
			}, 0))
			selflog.Info().Str("path", path).Msg("Config hot reload enabled")
		}
	} else {
		selflog.Info().Msg("No config file found, hot reload disabled")
	}

	// Tail layer: hub plus the optional broker-fed relay.
	tree.AddTailService(services.NewTailHubService(hub))

	relay, tailSub, err := initTailRelay(&cfg.NATS, hub)
	if err != nil {
		selflog.Fatal().Err(err).Msg("Failed to initialize tail relay")
	}
	if relay != nil {
		tree.AddTailService(services.NewTailRelayService(relay))
		defer func() {
			if err := tailSub.Close(); err != nil {
				selflog.Error().Err(err).Msg("Error closing tail subscriber")
			}
		}()
	}

	// API layer: REST, live tail WebSocket, and Prometheus metrics.
	handler := api.NewHandler(reg, engine, hub, &cfg.Server, version)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	selflog.Info().Str("addr", server.Addr).Msg("HTTP server configured")

	start := time.Now()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.AppUptime.Set(time.Since(start).Seconds())
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		selflog.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	selflog.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		selflog.Info().Msg("Shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			selflog.Error().Err(err).Msg("Supervisor tree failed")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			selflog.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, err := tree.UnstoppedServiceReport()
	if err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			selflog.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	// Drain queued entries only after every producer in the tree has
	// stopped, so nothing writes into a closing pipeline.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := reg.Shutdown(shutdownCtx); err != nil {
		selflog.Error().Err(err).Msg("Pipeline shutdown incomplete")
	}

	selflog.Info().Msg("Tabularium stopped gracefully")
}

// initCompliance builds the consent store and enforcement engine. With
// compliance disabled both return values are nil: the pipeline runs
// without a gate and the consent API reports the feature unavailable.
func initCompliance(cfg *config.Config) (*compliance.Engine, *compliance.StoreFactory, error) {
	if !cfg.Compliance.Enabled {
		selflog.Info().Msg("Compliance enforcement disabled")
		return nil, nil, nil
	}

	factory, err := compliance.NewStoreFactory(compliance.StoreType(cfg.Compliance.Store), cfg.Compliance.StorePath)
	if err != nil {
		return nil, nil, err
	}

	engine := compliance.NewEngine(factory.CreateStore(), complianceEngineConfig(&cfg.Compliance))

	selflog.Info().
		Str("store", cfg.Compliance.Store).
		Bool("require_consent", cfg.Compliance.RequireConsent).
		Bool("audit_trail", cfg.Compliance.EnableAuditTrail).
		Int("retention_days", cfg.Compliance.DataRetentionDays).
		Msg("Compliance engine initialized")

	return engine, factory, nil
}

func complianceEngineConfig(c *config.ComplianceConfig) *compliance.Config {
	return &compliance.Config{
		Enabled:           c.Enabled,
		DataRetentionDays: c.DataRetentionDays,
		RequireConsent:    c.RequireConsent,
		AnonymizeIPs:      c.AnonymizeIPs,
		EnableAuditTrail:  c.EnableAuditTrail,
		RestrictedRegions: c.RestrictedRegions,
		ConsentStorageKey: c.ConsentStorageKey,
		AuditFields:       c.AuditFields,
		AuditMaxAgeDays:   c.AuditMaxAgeDays,
		CleanupInterval:   c.CleanupInterval,
	}
}

// buildPipeline assembles the stages every accepted entry passes
// through before dispatch. A nil compliance engine is left out of the
// pipeline entirely rather than stored as a typed nil in the interface
// field.
func buildPipeline(cfg *config.Config, engine *compliance.Engine) logger.Pipeline {
	p := logger.Pipeline{Sanitizer: newSanitizer(&cfg.Security)}
	if engine != nil {
		p.Compliance = engine
	}
	return p
}

// newSanitizer compiles the configured masking rules. Load validates
// these patterns, so a compile failure here only happens for configs
// built in code; the rule is skipped rather than failing the pipeline.
func newSanitizer(sec *config.SecurityConfig) *sanitize.Engine {
	opts := sanitize.Options{
		Enabled:         sec.EnableSanitization,
		SensitiveFields: sec.SensitiveFields,
		MaskChar:        sec.MaskChar,
		PartialMask:     sec.PartialMask,
	}
	for _, rule := range sec.CustomRules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			selflog.Warn().Err(err).Str("rule", rule.Name).Msg("Skipping sanitization rule with invalid pattern")
			continue
		}
		r := sanitize.Rule{Name: rule.Name, Pattern: re, Priority: rule.Priority}
		if rule.Mask != "" {
			mask := rule.Mask
			r.Mask = func(string) string { return mask }
		}
		opts.Rules = append(opts.Rules, r)
	}
	return sanitize.NewEngine(opts)
}
