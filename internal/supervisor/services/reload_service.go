// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package services

import (
	"context"
	"time"

	"github.com/tomtom215/tabularium/internal/selflog"
)

// defaultReloadDebounce collapses bursts of file-watch events into a
// single reload. Editors commonly write a config file as truncate plus
// write plus rename, which fires several events for one save.
const defaultReloadDebounce = 500 * time.Millisecond

// ReloadService applies configuration reloads triggered by a watch
// channel.
//
// The composition root feeds the trigger channel from a config file
// watcher and supplies an apply function that reloads, validates, and
// pushes the new configuration into the registry. A failed apply is
// logged and dropped rather than returned: a typo in the config file
// must not restart the reload loop, and certainly must not take the
// pipeline down with it. The previous configuration simply stays
// active until the next valid save.
//
//	trigger := make(chan struct{}, 1)
//	tree.AddPipelineService(services.NewReloadService(trigger, applyReload, 0))
type ReloadService struct {
	trigger  <-chan struct{}
	apply    func(context.Context) error
	debounce time.Duration
	name     string
}

// NewReloadService creates a reload service. A non-positive debounce
// selects the default.
func NewReloadService(trigger <-chan struct{}, apply func(context.Context) error, debounce time.Duration) *ReloadService {
	if debounce <= 0 {
		debounce = defaultReloadDebounce
	}

	return &ReloadService{
		trigger:  trigger,
		apply:    apply,
		debounce: debounce,
		name:     "config-reload",
	}
}

// Serve implements suture.Service. It debounces trigger events and
// runs the apply function once per quiet period.
func (s *ReloadService) Serve(ctx context.Context) error {
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)

	trigger := s.trigger

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}

			return ctx.Err()

		case _, ok := <-trigger:
			if !ok {
				// The watcher is gone. Park until shutdown instead of
				// spinning on the closed channel.
				trigger = nil

				continue
			}

			if timer == nil {
				timer = time.NewTimer(s.debounce)
				pending = timer.C
			} else {
				if !timer.Stop() {
					<-pending
				}
				timer.Reset(s.debounce)
			}

		case <-pending:
			pending = nil
			timer = nil

			if err := s.apply(ctx); err != nil {
				selflog.Warn().Err(err).Msg("config reload failed, keeping previous configuration")
			}
		}
	}
}

// String identifies the service in supervision logs.
func (s *ReloadService) String() string {
	return s.name
}
