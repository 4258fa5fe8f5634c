// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

// Package filter runs entries through an ordered chain of named security
// filters. Each filter may rewrite the entry or drop it outright; a dropped
// entry short-circuits the rest of the chain and never reaches an appender.
package filter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tomtom215/tabularium/internal/entry"
	"github.com/tomtom215/tabularium/internal/metrics"
)

// Func transforms an entry. Returning nil drops the entry; every other
// return value feeds the next filter in the chain. Implementations must
// not mutate the input entry: clone it and modify the clone.
type Func func(*entry.Entry) *entry.Entry

// Filter is a named, prioritized entry transformation. Higher priority
// runs earlier.
type Filter struct {
	Name     string
	Priority int
	Apply    Func
}

// Info describes a registered filter for inspection.
type Info struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
}

// registration pairs a filter with its enabled flag.
type registration struct {
	Filter
	enabled bool
}

// Chain applies registered filters in descending priority order.
// A disabled filter is skipped but stays registered.
type Chain struct {
	mu      sync.RWMutex
	filters []*registration
}

// NewChain creates a chain with the given filters, all enabled.
func NewChain(filters ...Filter) *Chain {
	c := &Chain{}
	for _, f := range filters {
		c.AddFilter(f)
	}
	return c
}

// AddFilter registers a filter, enabled. Re-adding a name replaces the
// previous registration, so adding the same filter twice is a no-op.
func (c *Chain) AddFilter(f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, reg := range c.filters {
		if reg.Name == f.Name {
			c.filters[i] = &registration{Filter: f, enabled: true}
			c.sortByPriority()
			return
		}
	}

	c.filters = append(c.filters, &registration{Filter: f, enabled: true})
	c.sortByPriority()
}

// RemoveFilter unregisters the named filter. Removing an unknown name is
// a no-op.
func (c *Chain) RemoveFilter(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, reg := range c.filters {
		if reg.Name == name {
			c.filters = append(c.filters[:i], c.filters[i+1:]...)
			return
		}
	}
}

// SetFilterEnabled toggles the named filter. Unknown names are an error.
func (c *Chain) SetFilterEnabled(name string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, reg := range c.filters {
		if reg.Name == name {
			reg.enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("unknown filter: %s", name)
}

// Filters returns the registered filters in evaluation order.
func (c *Chain) Filters() []Info {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Info, len(c.filters))
	for i, reg := range c.filters {
		out[i] = Info{Name: reg.Name, Priority: reg.Priority, Enabled: reg.enabled}
	}
	return out
}

// Apply runs the entry through every enabled filter in descending priority
// order, feeding each filter the previous filter's output. A nil return
// from any filter drops the entry and short-circuits the remainder.
func (c *Chain) Apply(e *entry.Entry) *entry.Entry {
	if e == nil {
		return nil
	}

	c.mu.RLock()
	filters := make([]*registration, len(c.filters))
	copy(filters, c.filters)
	c.mu.RUnlock()

	for _, reg := range filters {
		if !reg.enabled || reg.Apply == nil {
			continue
		}
		e = reg.Apply(e)
		if e == nil {
			metrics.RecordFilterRejection(reg.Name)
			return nil
		}
	}
	return e
}

// sortByPriority orders filters so higher priority runs first. Ties keep
// registration order. The caller must hold the write lock.
func (c *Chain) sortByPriority() {
	sort.SliceStable(c.filters, func(i, j int) bool {
		return c.filters[i].Priority > c.filters[j].Priority
	})
}
