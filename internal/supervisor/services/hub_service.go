// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package services

import (
	"context"
)

// ContextHub matches *websocket.Hub's RunWithContext method, keeping
// this package free of a dependency on the websocket package.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// TailHubService runs the live tail hub under supervision.
//
// The hub's RunWithContext already has suture's Serve shape, so the
// wrapper only delegates and names the service. A hub restart closes
// all tail clients; they reconnect through the tail endpoint, and the
// log pipeline keeps delivering to its other appenders throughout.
//
//	hub := websocket.NewHub()
//	tree.AddTailService(services.NewTailHubService(hub))
type TailHubService struct {
	hub  ContextHub
	name string
}

// NewTailHubService creates a tail hub service wrapper.
func NewTailHubService(hub ContextHub) *TailHubService {
	return &TailHubService{
		hub:  hub,
		name: "tail-hub",
	}
}

// Serve implements suture.Service. It returns ctx.Err() on normal
// shutdown, after the hub has closed every client.
func (s *TailHubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String identifies the service in supervision logs.
func (s *TailHubService) String() string {
	return s.name
}
