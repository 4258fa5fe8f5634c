// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package appender

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/entry"
	"github.com/tomtom215/tabularium/internal/layout"
)

// Memory retains delivered entries in process memory. It backs tests and
// short-lived diagnostic captures; the buffer is bounded and discards
// the oldest entries once full.
//
// Properties:
//
//	maxEntries: buffer capacity (default 10000)
type Memory struct {
	*engine
	s *memorySink
}

// NewMemory creates a memory appender from the given configuration.
func NewMemory(cfg config.AppenderConfig, lay layout.Layout) (*Memory, error) {
	s := &memorySink{max: defaultMemoryCapacity}
	m := &Memory{s: s, engine: newEngine(cfg.Name, s)}
	if err := m.Configure(cfg); err != nil {
		return nil, err
	}
	m.SetLayout(lay)
	return m, nil
}

// Entries returns a snapshot of the captured entries, oldest first.
func (m *Memory) Entries() []*entry.Entry {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]*entry.Entry, len(m.s.entries))
	copy(out, m.s.entries)
	return out
}

// Payloads returns a snapshot of the formatted payloads, oldest first.
func (m *Memory) Payloads() []string {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]string, len(m.s.payloads))
	copy(out, m.s.payloads)
	return out
}

// Len returns the number of captured entries.
func (m *Memory) Len() int {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return len(m.s.entries)
}

// Clear discards all captured entries.
func (m *Memory) Clear() {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.entries = nil
	m.s.payloads = nil
	m.s.batchSizes = nil
}

// FailNext makes the following n writes fail, for exercising retry and
// drop behavior in tests.
func (m *Memory) FailNext(n int) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.failNext = n
}

// BatchSizes returns the entry count of each successful write, in
// delivery order.
func (m *Memory) BatchSizes() []int {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	out := make([]int, len(m.s.batchSizes))
	copy(out, m.s.batchSizes)
	return out
}

const defaultMemoryCapacity = 10000

type memorySink struct {
	mu         sync.RWMutex
	max        int
	entries    []*entry.Entry
	payloads   []string
	batchSizes []int
	failNext   int
}

func (s *memorySink) configure(props map[string]any) error {
	max := propInt(props, "maxEntries", defaultMemoryCapacity)
	if max < 1 {
		return fmt.Errorf("memory appender maxEntries must be positive, got %d", max)
	}
	s.mu.Lock()
	s.max = max
	s.mu.Unlock()
	return nil
}

func (s *memorySink) open() error { return nil }

func (s *memorySink) write(_ context.Context, recs []Record, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext > 0 {
		s.failNext--
		return fmt.Errorf("memory sink failing on request (%d more)", s.failNext)
	}

	s.batchSizes = append(s.batchSizes, len(recs))
	for _, rec := range recs {
		s.entries = append(s.entries, rec.Entry)
		s.payloads = append(s.payloads, string(rec.Payload))
	}
	if over := len(s.entries) - s.max; over > 0 {
		s.entries = append([]*entry.Entry(nil), s.entries[over:]...)
		s.payloads = append([]string(nil), s.payloads[over:]...)
	}
	return nil
}

func (s *memorySink) close(context.Context) error { return nil }
