// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/tabularium/internal/metrics"
	"github.com/tomtom215/tabularium/internal/selflog"
)

// ShutdownReason identifies why the hub stopped, for the shutdown log.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Hub fans formatted log payloads out to connected tail clients. It
// satisfies the livetail appender's broadcaster contract, so the delivery
// path stays free of any transport dependency.
//
// Payloads are opaque bytes: whatever layout the livetail appender
// carries is what clients receive, one payload per WebSocket message.
type Hub struct {
	clients   map[*Client]bool
	broadcast chan []byte

	// Register and Unregister are serviced by Run. The tail HTTP
	// handler registers upgraded connections here.
	Register   chan *Client
	Unregister chan *Client

	mu sync.RWMutex
}

// NewHub creates a hub. Call Run to start servicing it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Broadcast hands a payload to the hub for fan-out. It never blocks:
// when the hub is backed up the payload is dropped and counted, keeping
// slow tail consumers from exerting backpressure on the log pipeline.
func (h *Hub) Broadcast(payload []byte) {
	if len(payload) == 0 {
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		metrics.TailMessagesDropped.Inc()
		selflog.Warn().Msg("tail broadcast queue full, payload dropped")
	}
}

// RunWithContext services registrations and broadcasts until the context
// is canceled, then closes every client and returns ctx.Err(). The method
// matches the supervisor's service contract so the hub can be restarted
// without orphaned connections.
//
// Selection is priority-ordered rather than left to select's random
// choice: shutdown first, then client lifecycle, then payload fan-out,
// so client state is settled before messages are delivered.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case payload := <-h.broadcast:
			h.broadcastToClients(payload)
		}
	}
}

// ClientCount returns the number of connected tail clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.TrackTailConnection(true)
	selflog.Info().Int("total_clients", total).Msg("tail client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.TrackTailConnection(false)
		selflog.Info().Int("total_clients", total).Msg("tail client disconnected")
	}
}

// broadcastToClients delivers one payload to every client in ID order.
// Iterating sorted instead of over the map keeps delivery order
// reproducible across runs. A client whose send buffer is full is
// dropped and disconnected; a tail stream has no replay, so a stuck
// consumer only gets more stuck.
func (h *Hub) broadcastToClients(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- payload:
		default:
			metrics.TailMessagesDropped.Inc()
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.TrackTailConnection(false)
		selflog.Warn().Uint64("client", client.id).Msg("slow tail client dropped")
	}
}

// shutdown closes every client in ID order and logs the outcome. ctx.Err
// is reported as the reason rather than as an error: cancellation is the
// expected way for the hub to stop.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
		metrics.TrackTailConnection(false)
	}
	h.mu.Unlock()

	reason := ShutdownReasonContextCanceled
	if ctx.Err() == context.DeadlineExceeded {
		reason = ShutdownReasonContextDeadline
	}
	selflog.Info().
		Str("component", "tail-hub").
		Str("reason", string(reason)).
		Int("clients_closed", len(clients)).
		Msg("tail hub stopped")
}
