// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package websocket

import (
	"context"
	"sync"

	"github.com/tomtom215/tabularium/internal/selflog"
)

// Subscriber is the message source a Relay drains. Implementations wrap
// a broker subscription (the server wires a NATS one) and deliver each
// message payload on the returned channel.
type Subscriber interface {
	// Subscribe subscribes to a subject and returns a channel of payloads.
	// The channel closes when the subscription ends.
	Subscribe(ctx context.Context, subject string) (<-chan []byte, error)
	// Close releases the subscription and its connection.
	Close() error
}

// Relay bridges broker messages into the tail hub, so a single node can
// tail a fleet whose appenders publish formatted entries to a shared
// subject. Payloads pass through untouched: whatever the publishing
// node's layout produced is what tail clients see.
type Relay struct {
	hub     *Hub
	sub     Subscriber
	subject string

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRelay creates a relay that forwards messages on subject into hub.
func NewRelay(hub *Hub, sub Subscriber, subject string) *Relay {
	return &Relay{
		hub:     hub,
		sub:     sub,
		subject: subject,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start subscribes and begins forwarding. Calling Start on a running
// relay is a no-op.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.mu.Unlock()

	messages, err := r.sub.Subscribe(ctx, r.subject)
	if err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return err
	}

	go r.forward(ctx, messages)

	selflog.Info().Str("subject", r.subject).Msg("tail relay started")
	return nil
}

// Stop stops forwarding and waits for the forward loop to exit. The
// underlying subscriber is not closed here; the caller owns it.
func (r *Relay) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
	selflog.Info().Msg("tail relay stopped")
}

func (r *Relay) forward(ctx context.Context, messages <-chan []byte) {
	defer close(r.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case payload, ok := <-messages:
			if !ok {
				selflog.Warn().Str("subject", r.subject).Msg("tail relay subscription closed")
				return
			}
			r.hub.Broadcast(payload)
		}
	}
}
