// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

/*
Package supervisor provides process supervision for the Tabularium daemon
using suture v4.

The package implements a hierarchical supervisor tree that manages the
lifecycle of the daemon's long-running routines. It provides
Erlang/OTP-style supervision with automatic restart, failure isolation,
and graceful shutdown.

# Overview

The tree organizes services into three layers:

	RootSupervisor ("tabularium")
	├── PipelineSupervisor ("pipeline-layer")
	│   └── ReloadService (config hot reload loop)
	├── TailSupervisor ("tail-layer")
	│   ├── TailHubService (WebSocket fan-out)
	│   └── TailRelayService (broker relay, if enabled)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

The layering keeps failure domains apart:
  - A crashing tail relay restarts without touching the HTTP surface
  - A wedged reload loop cannot take down connected tail clients
  - Each layer backs off independently when its services keep failing

# What Is NOT Supervised

The logging pipeline itself is not in the tree. Appender engines, queue
workers, and flush tickers are owned by the registry, which starts them
on demand and stops them in Registry.Shutdown; the compliance engine
likewise manages its trail writer and cleanup routine internally.
Supervision covers the daemon's serving surfaces around the pipeline,
not the pipeline's own goroutines, so a supervised restart can never
drop queued log entries.

# Supervision Behavior

Crashed services restart automatically. The failure counter decays
exponentially (FailureDecay seconds); when it exceeds FailureThreshold
the layer enters backoff and restarts are delayed by FailureBackoff.
Defaults match suture's documented production values: threshold 5,
decay 30s, backoff 15s, shutdown timeout 10s.

Return behavior for services:
  - Return nil or suture.ErrDoNotRestart: not restarted
  - Return any other error: restarted per the backoff policy
  - Context canceled: shutdown requested, return promptly

Supervision events (starts, failures, backoff transitions) are logged
through a sutureslog handler; the daemon passes selflog.NewSlogLogger()
so they land on the same diagnostics channel as the pipeline's own
internal reporting.

# Usage

	tree, err := supervisor.NewSupervisorTree(selflog.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}

	tree.AddPipelineService(services.NewReloadService(reloadCh, applyReload, 0))
	tree.AddTailService(services.NewTailHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.Timeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return tree.Serve(ctx)

Concrete service wrappers live in the services subpackage; each adapts
one component's lifecycle to suture's Serve(ctx) contract.

# Debugging Shutdown Issues

If services do not stop within the timeout:

	report, _ := tree.UnstoppedServiceReport()
	for _, svc := range report {
		selflog.Warn().Str("service", svc.Name).Msg("service did not stop")
	}

Common causes are goroutines ignoring context cancellation and blocked
network I/O without deadlines.
*/
package supervisor
