// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/tabularium/internal/compliance"
	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/level"
	"github.com/tomtom215/tabularium/internal/logger"
	ws "github.com/tomtom215/tabularium/internal/websocket"
)

// Handler serves the daemon's HTTP endpoints. All dependencies are
// optional except the registry; endpoints answer 503 when the
// dependency they need is absent.
type Handler struct {
	registry   *logger.Registry
	compliance *compliance.Engine
	hub        *ws.Hub
	serverCfg  *config.ServerConfig
	version    string
	startTime  time.Time
}

// NewHandler wires the handler to its dependencies. version appears
// in health payloads; empty means "dev".
func NewHandler(registry *logger.Registry, eng *compliance.Engine, hub *ws.Hub, serverCfg *config.ServerConfig, version string) *Handler {
	if version == "" {
		version = "dev"
	}
	return &Handler{
		registry:   registry,
		compliance: eng,
		hub:        hub,
		serverCfg:  serverCfg,
		version:    version,
		startTime:  time.Now(),
	}
}

// HealthLive answers the liveness probe. It reports 200 whenever the
// process can serve HTTP, regardless of pipeline state.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.WriteSuccess(map[string]any{
		"alive":   true,
		"version": h.version,
		"uptime":  time.Since(h.startTime).Seconds(),
	})
}

// HealthReady answers the readiness probe. Ready means the registry
// accepts loggers; the optional compliance engine and tail hub are
// reported but only gate readiness when configured.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	registryReady := h.registry != nil && h.registry.Ready()
	complianceUp := h.compliance != nil
	tailUp := h.hub != nil

	ready := registryReady

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	data := map[string]any{
		"registry_ready":    registryReady,
		"compliance_loaded": complianceUp,
		"tail_available":    tailUp,
		"ready_to_serve":    ready,
		"uptime":            time.Since(h.startTime).Seconds(),
	}

	if ready {
		rw.WriteSuccess(data)
		return
	}
	rw.writeJSON(status, &APIResponse{
		Success: false,
		Data:    data,
		Error: &APIError{
			Code:    CodeServiceUnavailable,
			Message: "Service is not ready",
		},
		Meta: rw.meta(),
	})
}

// ConfigView returns the running configuration with secret-bearing
// appender properties masked. The payload reflects hot reloads, not
// the file on disk.
func (h *Handler) ConfigView(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.registry == nil {
		rw.WriteServiceUnavailable("Registry unavailable")
		return
	}

	cfg := h.registry.Config()
	redactAppenderSecrets(cfg)
	rw.WriteSuccess(map[string]any{
		"config":     cfg,
		"categories": h.registry.Categories(),
	})
}

// sensitivePropertyKeys are appender property names whose values are
// masked in the config view. Matched case-insensitively against the
// lowercased key.
var sensitivePropertyKeys = []string{
	"password", "token", "apikey", "api_key", "secret", "credential",
}

// redactAppenderSecrets masks credential-bearing values in place.
// Appender URLs may embed userinfo, so they are masked wholesale.
func redactAppenderSecrets(cfg *config.Config) {
	for name, acfg := range cfg.Appenders {
		for key, val := range acfg.Properties {
			lower := strings.ToLower(key)
			if lower == "url" {
				if s, ok := val.(string); ok && strings.Contains(s, "@") {
					acfg.Properties[key] = "***"
				}
				continue
			}
			for _, sensitive := range sensitivePropertyKeys {
				if strings.Contains(lower, sensitive) {
					acfg.Properties[key] = "***"
					break
				}
			}
		}
		cfg.Appenders[name] = acfg
	}
}

// Levels lists the recognized severities in ascending priority, for
// clients that build filter dropdowns.
func (h *Handler) Levels(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	all := level.All()
	out := make([]map[string]any, 0, len(all))
	for _, lvl := range all {
		out = append(out, map[string]any{
			"name":     lvl.String(),
			"priority": lvl.Priority(),
		})
	}
	rw.WriteSuccess(map[string]any{"levels": out})
}
