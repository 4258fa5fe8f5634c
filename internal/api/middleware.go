// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package api

import (
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/metrics"
)

// Rate limit profiles for endpoint groups. Health probes get a
// permissive limit so orchestrator checks never starve; ingest gets
// the configured limit since it is the write-heavy surface.
var rateLimitHealth = rateLimitProfile{requests: 1000, window: time.Minute}

type rateLimitProfile struct {
	requests int
	window   time.Duration
}

// Middleware builds the router's middleware from server config.
type Middleware struct {
	cfg  *config.ServerConfig
	cors func(http.Handler) http.Handler
}

// NewMiddleware prepares middleware factories for the given server
// config. A nil config gets the package defaults, which allow all
// origins and limit to 100 requests per minute per IP.
func NewMiddleware(cfg *config.ServerConfig) *Middleware {
	if cfg == nil {
		def := config.Default().Server
		cfg = &def
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           86400,
	})

	return &Middleware{
		cfg:  cfg,
		cors: corsHandler,
	}
}

// CORS returns the preconfigured go-chi/cors handler.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns an IP-keyed limiter using the configured request
// budget. RateLimitReqs <= 0 disables limiting entirely.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	if m.cfg.RateLimitReqs <= 0 {
		return passthrough
	}

	window := m.cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}

	return httprate.Limit(
		m.cfg.RateLimitReqs,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimitExceeded),
	)
}

// RateLimitHealth returns the permissive limiter for health probes.
func (m *Middleware) RateLimitHealth() func(http.Handler) http.Handler {
	return m.rateLimitProfile(rateLimitHealth)
}

func (m *Middleware) rateLimitProfile(p rateLimitProfile) func(http.Handler) http.Handler {
	if m.cfg.RateLimitReqs <= 0 {
		return passthrough
	}

	return httprate.Limit(
		p.requests,
		p.window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimitExceeded),
	)
}

func passthrough(next http.Handler) http.Handler {
	return next
}

// rateLimitExceeded records the rejection and answers with the
// standard envelope so limited clients still get a parseable body.
func rateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	metrics.APIRateLimitHits.WithLabelValues(r.URL.Path).Inc()
	NewResponseWriter(w, r).WriteError(
		http.StatusTooManyRequests,
		CodeTooManyRequests,
		"Rate limit exceeded, retry later",
	)
}

// SecurityHeaders sets the baseline security headers on every
// response. HSTS is added only when the request arrived over TLS or
// through a TLS-terminating proxy.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestMetrics instruments every request with the Prometheus
// counters: active request gauge, per-endpoint totals, and a latency
// histogram keyed by method and path. chi's WrapResponseWriter keeps
// Hijacker support intact for the WebSocket tail endpoint.
func RequestMetrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics.TrackActiveRequest(true)
			defer metrics.TrackActiveRequest(false)

			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			// Hijacked connections never call WriteHeader.
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			metrics.RecordAPIRequest(
				r.Method,
				r.URL.Path,
				strconv.Itoa(status),
				time.Since(start),
			)
		})
	}
}
