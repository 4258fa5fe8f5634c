// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/tabularium/internal/metrics"
)

// Manager owns the live configuration. All reads return deep copies and
// all writes pass validation before they apply, so a failed update can
// never leave a half-applied config behind.
type Manager struct {
	mu            sync.RWMutex
	current       *Config
	watchers      map[int]func(*Config)
	nextWatcherID int
}

// UpdateResult reports an applied configuration change. Warnings flag
// under-configuration that did not block the change.
type UpdateResult struct {
	Config   *Config           `json:"config"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// NewManager validates cfg and returns a manager seeded with a deep copy
// of it. A nil cfg seeds the built-in defaults.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = Default()
	}
	if result := cfg.Validate(); !result.Valid() {
		return nil, result.Err()
	}
	return &Manager{
		current:  cfg.Clone(),
		watchers: make(map[int]func(*Config)),
	}, nil
}

// Current returns a deep copy of the live configuration.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// Update merges partial over the live configuration, validates the merged
// result, and applies it only when valid. On validation failure the live
// configuration is untouched and the returned error is a *ValidationError
// carrying every finding.
//
// The merge is recursive and last-writer-wins: keys present in partial
// overwrite, absent keys keep their current values. Dotted keys like
// "security.maskChar" address nested fields. Merging never removes map
// entries; use Set with a full config to drop a logger or appender.
func (m *Manager) Update(partial map[string]any) (*UpdateResult, error) {
	if len(partial) == 0 {
		return nil, errors.New("update must not be empty")
	}

	m.mu.Lock()
	merged, err := mergePartial(m.current, partial)
	if err != nil {
		m.mu.Unlock()
		metrics.ConfigReloads.WithLabelValues("rejected").Inc()
		return nil, err
	}

	result := merged.Validate()
	if !result.Valid() {
		m.mu.Unlock()
		metrics.ConfigReloads.WithLabelValues("rejected").Inc()
		return nil, result.Err()
	}

	m.current = merged
	watchers := m.watcherSnapshotLocked()
	m.mu.Unlock()

	metrics.ConfigReloads.WithLabelValues("applied").Inc()
	notifyWatchers(watchers, merged)

	return &UpdateResult{Config: merged.Clone(), Warnings: result.Warnings}, nil
}

// Set replaces the live configuration wholesale after validating cfg.
// On validation failure the live configuration is untouched.
func (m *Manager) Set(cfg *Config) (*UpdateResult, error) {
	if cfg == nil {
		return nil, errors.New("configuration must not be nil")
	}

	result := cfg.Validate()
	if !result.Valid() {
		metrics.ConfigReloads.WithLabelValues("rejected").Inc()
		return nil, result.Err()
	}

	applied := cfg.Clone()

	m.mu.Lock()
	m.current = applied
	watchers := m.watcherSnapshotLocked()
	m.mu.Unlock()

	metrics.ConfigReloads.WithLabelValues("applied").Inc()
	notifyWatchers(watchers, applied)

	return &UpdateResult{Config: applied.Clone(), Warnings: result.Warnings}, nil
}

// ResetToDefaults replaces the live configuration with the built-in
// defaults and returns a copy of them.
func (m *Manager) ResetToDefaults() *Config {
	def := Default()

	m.mu.Lock()
	m.current = def
	watchers := m.watcherSnapshotLocked()
	m.mu.Unlock()

	notifyWatchers(watchers, def)

	return def.Clone()
}

// Watch registers fn for configuration change notifications and returns
// an idempotent unsubscribe function. Each notification passes the
// callback its own deep copy of the applied config. Callbacks run
// synchronously on the updating goroutine, outside the manager's lock,
// so a callback may call back into the manager. An unsubscribe racing a
// notification already being dispatched may still see that one delivery.
func (m *Manager) Watch(fn func(*Config)) func() {
	m.mu.Lock()
	id := m.nextWatcherID
	m.nextWatcherID++
	m.watchers[id] = fn
	m.mu.Unlock()

	metrics.ConfigWatchers.Inc()

	return func() {
		m.mu.Lock()
		_, present := m.watchers[id]
		delete(m.watchers, id)
		m.mu.Unlock()

		if present {
			metrics.ConfigWatchers.Dec()
		}
	}
}

// watcherSnapshotLocked returns the registered callbacks in registration
// order. Caller must hold the lock.
func (m *Manager) watcherSnapshotLocked() []func(*Config) {
	if len(m.watchers) == 0 {
		return nil
	}
	ids := make([]int, 0, len(m.watchers))
	for id := range m.watchers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]func(*Config), 0, len(ids))
	for _, id := range ids {
		out = append(out, m.watchers[id])
	}
	return out
}

// notifyWatchers invokes each callback with its own copy of cfg.
func notifyWatchers(watchers []func(*Config), cfg *Config) {
	for _, fn := range watchers {
		fn(cfg.Clone())
	}
}

// mergePartial layers partial over current and unmarshals the result into
// a fresh Config. Maps merge recursively with partial's keys winning.
func mergePartial(current *Config, partial map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(current, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load current configuration: %w", err)
	}
	if err := k.Load(confmap.Provider(partial, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to merge update: %w", err)
	}

	merged := &Config{}
	if err := k.Unmarshal("", merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal merged configuration: %w", err)
	}
	return merged, nil
}
