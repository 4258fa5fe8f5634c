// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package appender

import (
	"context"
	"sync"

	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/layout"
)

// Broadcaster fans a formatted payload out to live subscribers. The
// websocket hub implements this; the indirection keeps the delivery
// path free of any transport dependency.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// LiveTail streams entries to connected tail clients through a
// Broadcaster. With no broadcaster attached entries are discarded, so a
// tail appender can sit in the configuration before the hub is up.
type LiveTail struct {
	*engine
	s *tailSink
}

// NewLiveTail creates a live tail appender. The broadcaster may be nil
// and attached later with SetBroadcaster.
func NewLiveTail(cfg config.AppenderConfig, lay layout.Layout, b Broadcaster) (*LiveTail, error) {
	s := &tailSink{b: b}
	t := &LiveTail{s: s, engine: newEngine(cfg.Name, s)}
	if err := t.Configure(cfg); err != nil {
		return nil, err
	}
	t.SetLayout(lay)
	return t, nil
}

// SetBroadcaster attaches the fan-out target.
func (t *LiveTail) SetBroadcaster(b Broadcaster) {
	t.s.mu.Lock()
	t.s.b = b
	t.s.mu.Unlock()
}

type tailSink struct {
	mu sync.RWMutex
	b  Broadcaster
}

func (s *tailSink) configure(map[string]any) error { return nil }

func (s *tailSink) open() error { return nil }

func (s *tailSink) write(_ context.Context, recs []Record, _ string) error {
	s.mu.RLock()
	b := s.b
	s.mu.RUnlock()

	if b == nil {
		return nil
	}
	for _, rec := range recs {
		b.Broadcast(rec.Payload)
	}
	return nil
}

func (s *tailSink) close(context.Context) error { return nil }
