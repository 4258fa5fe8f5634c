// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the full HTTP surface around the handler.
func NewRouter(h *Handler) http.Handler {
	m := NewMiddleware(h.serverCfg)

	r := chi.NewRouter()

	// Global stack, applied to all routes in order. CORS is global so
	// OPTIONS preflight works on every endpoint.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(m.CORS())

	// Health probes get a permissive limit so orchestrator checks are
	// never starved by an aggressive default budget.
	r.Route("/health", func(r chi.Router) {
		r.Use(m.RateLimitHealth())
		r.Use(SecurityHeaders())
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	// Prometheus exposition, unlimited: scrapers poll on their own
	// schedule and carry no request body.
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(m.RateLimit())
		r.Use(SecurityHeaders())
		r.Use(RequestMetrics())

		r.Post("/ingest", h.Ingest)
		r.Get("/tail", h.Tail)

		r.Get("/config", h.ConfigView)
		r.Get("/levels", h.Levels)

		r.Route("/consent/{userId}", func(r chi.Router) {
			r.Get("/", h.ConsentStatus)
			r.Post("/grant", h.ConsentGrant)
			r.Post("/revoke", h.ConsentRevoke)
		})

		r.Route("/compliance", func(r chi.Router) {
			r.Get("/trail", h.ComplianceTrail)
			r.Get("/export", h.ComplianceExport)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).WriteNotFound("Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).WriteError(http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
	})

	return r
}
