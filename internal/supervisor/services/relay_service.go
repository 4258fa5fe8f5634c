// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package services

import (
	"context"
	"fmt"
)

// StartStopper matches *websocket.Relay's lifecycle: Start subscribes
// and spawns the forward loop, Stop blocks until the loop has exited.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
}

// TailRelayService runs the broker-to-hub tail relay under
// supervision.
//
// It adapts the relay's Start/Stop lifecycle to suture's Serve shape:
// Start, block on the context, Stop. A failed subscribe (broker down,
// bad subject) is returned so suture retries the relay under its
// backoff policy without touching the hub or its clients.
//
//	relay := websocket.NewRelay(hub, subscriber, subject)
//	token := tree.AddTailService(services.NewTailRelayService(relay))
type TailRelayService struct {
	relay StartStopper
	name  string
}

// NewTailRelayService creates a tail relay service wrapper.
func NewTailRelayService(relay StartStopper) *TailRelayService {
	return &TailRelayService{
		relay: relay,
		name:  "tail-relay",
	}
}

// Serve implements suture.Service. Stop waits for the forward loop to
// drain before returning, so a restarted relay never has two loops
// feeding the hub.
func (s *TailRelayService) Serve(ctx context.Context) error {
	if err := s.relay.Start(ctx); err != nil {
		return fmt.Errorf("tail relay start failed: %w", err)
	}

	<-ctx.Done()

	s.relay.Stop()

	return ctx.Err()
}

// String identifies the service in supervision logs.
func (s *TailRelayService) String() string {
	return s.name
}
