// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

/*
Package services provides suture.Service wrappers for Tabularium components.

This package adapts existing application components to the suture v4 supervision
model, translating various lifecycle patterns (Start/Stop, RunWithContext,
ListenAndServe) into suture's context-aware Serve pattern.

# Overview

Each wrapper implements the suture.Service interface:

	type Service interface {
	    Serve(ctx context.Context) error
	}

The wrappers handle:
  - Lifecycle translation (Start/Stop to Serve pattern)
  - Graceful shutdown via context cancellation
  - Error propagation for supervisor restart decisions
  - Service identification via fmt.Stringer

Wrappers depend on small local interfaces rather than concrete types, so
this package imports neither the api nor the websocket package.

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Converts ListenAndServe pattern to Serve
  - Configurable shutdown timeout for draining in-flight requests

Tail Hub (TailHubService):
  - Wraps websocket.Hub via its RunWithContext method
  - A restart closes all live-tail clients; they reconnect through
    the tail endpoint

Tail Relay (TailRelayService):
  - Wraps websocket.Relay with Start/Stop lifecycle
  - Forwards broker-delivered log lines into the hub
  - A failed subscribe is retried under the supervisor's backoff

Config Reload (ReloadService):
  - Debounces file-watch events and applies configuration reloads
  - A failed apply keeps the previous configuration active

# Usage Example

Creating and registering services:

	import (
	    "net/http"
	    "time"

	    "github.com/tomtom215/tabularium/internal/supervisor"
	    "github.com/tomtom215/tabularium/internal/supervisor/services"
	)

	func setupSupervisor(server *http.Server, hub *websocket.Hub, trigger <-chan struct{}) {
	    tree, _ := supervisor.NewSupervisorTree(logger, config)

	    // HTTP server with 30s shutdown timeout
	    httpSvc := services.NewHTTPServerService(server, 30*time.Second)
	    tree.AddAPIService(httpSvc)

	    // Live-tail hub
	    hubSvc := services.NewTailHubService(hub)
	    tree.AddTailService(hubSvc)

	    // Config reload loop with the default debounce
	    reloadSvc := services.NewReloadService(trigger, applyReload, 0)
	    tree.AddPipelineService(reloadSvc)

	    // Start supervision
	    tree.Serve(ctx)
	}

# Lifecycle Patterns

The package handles three common lifecycle patterns:

Start/Stop Pattern:

	type StartStopper interface {
	    Start(ctx context.Context) error
	    Stop()
	}

	// Wrapped as:
	func (s *Service) Serve(ctx context.Context) error {
	    if err := s.component.Start(ctx); err != nil {
	        return err
	    }
	    <-ctx.Done()
	    s.component.Stop()
	    return ctx.Err()
	}

Context Runner Pattern:

	type ContextHub interface {
	    RunWithContext(ctx context.Context) error // Blocks until ctx is done
	}

	// Wrapped as:
	func (s *Service) Serve(ctx context.Context) error {
	    return s.hub.RunWithContext(ctx)
	}

ListenAndServe Pattern:

	type HTTPServer interface {
	    ListenAndServe() error
	    Shutdown(ctx context.Context) error
	}

	// Wrapped as:
	func (s *Service) Serve(ctx context.Context) error {
	    go s.server.ListenAndServe()
	    <-ctx.Done()
	    return s.server.Shutdown(shutdownCtx)
	}

# Error Handling

Return values determine supervisor behavior:

	nil         -> Service stopped cleanly, will not restart
	error       -> Service crashed, supervisor will restart
	ctx.Err()   -> Shutdown requested, normal termination

Example error handling:

	func (s *TailRelayService) Serve(ctx context.Context) error {
	    if err := s.relay.Start(ctx); err != nil {
	        // Transient error - supervisor should restart
	        return fmt.Errorf("tail relay start failed: %w", err)
	    }

	    <-ctx.Done()

	    s.relay.Stop()

	    return ctx.Err() // Shutdown requested, normal termination
	}

# Service Identification

All services implement fmt.Stringer for logging:

	func (s *HTTPServerService) String() string {
	    return "http-server"
	}

Suture uses this for log messages:

	INFO http-server: starting
	INFO http-server: stopped
	ERROR http-server: restarting after failure

# Testing

Services can be tested with mock components:

	type MockServer struct {
	    started  bool
	    shutdown bool
	}

	func (m *MockServer) ListenAndServe() error {
	    m.started = true
	    <-time.After(time.Hour) // Block until shutdown
	    return nil
	}

	func (m *MockServer) Shutdown(ctx context.Context) error {
	    m.shutdown = true
	    return nil
	}

	func TestHTTPService(t *testing.T) {
	    mock := &MockServer{}
	    svc := services.NewHTTPServerService(mock, time.Second)

	    ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	    defer cancel()

	    _ = svc.Serve(ctx)
	}
*/
package services
