// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package logger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/tabularium/internal/appender"
	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/layout"
	"github.com/tomtom215/tabularium/internal/level"
	"github.com/tomtom215/tabularium/internal/metrics"
	"github.com/tomtom215/tabularium/internal/selflog"
)

// ErrRegistryShutdown is returned by registry operations after Shutdown.
var ErrRegistryShutdown = errors.New("registry is shutdown")

// rootCategory is the logger configuration key that anchors the category
// hierarchy. Additive loggers inherit its appender set; when no "root"
// logger is configured, the root set is every active appender.
const rootCategory = "root"

// Registry owns the live loggers and running appender instances for one
// logging system. It is an explicitly constructed object handed around by
// the composition root, not package state; two registries never share
// appenders.
type Registry struct {
	factory *Factory

	mu        sync.RWMutex
	cfg       *config.Config
	loggers   map[string]*Logger
	appenders map[string]*appenderHandle
	pipeline  Pipeline
	shutdown  bool
}

// appenderHandle pairs a running appender with the fingerprint of the
// configuration that produced it, so Configure can tell changed configs
// from identical ones.
type appenderHandle struct {
	inst appender.Appender
	fp   string
}

// Option customizes a Registry.
type Option func(*Registry)

// WithFactory supplies a custom factory, typically one extended with
// additional appender or layout types. Nil keeps the default.
func WithFactory(f *Factory) Option {
	return func(r *Registry) {
		if f != nil {
			r.factory = f
		}
	}
}

// WithPipeline installs the processing stages shared by every logger the
// registry creates.
func WithPipeline(p Pipeline) Option {
	return func(r *Registry) {
		r.pipeline = p
	}
}

// NewRegistry creates a registry over the given configuration. A nil
// config uses the built-in defaults. The configuration is copied; later
// mutations by the caller are invisible until Configure.
func NewRegistry(cfg *config.Config, opts ...Option) *Registry {
	r := &Registry{
		loggers:   make(map[string]*Logger),
		appenders: make(map[string]*appenderHandle),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.factory == nil {
		r.factory = NewFactory()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	r.cfg = cfg.Clone()
	if lvl, err := level.Parse(r.cfg.DefaultLevel); err == nil {
		r.factory.SetDefaultLevel(lvl)
	}
	return r
}

// Factory returns the registry's factory for type registration.
func (r *Registry) Factory() *Factory { return r.factory }

// Config returns a copy of the active configuration.
func (r *Registry) Config() *config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Clone()
}

// Ready reports whether the registry still accepts loggers. False
// after Shutdown, which readiness probes use to drain traffic.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.shutdown
}

// Appender returns the running instance registered under name.
func (r *Registry) Appender(name string) (appender.Appender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.appenders[name]
	if !ok {
		return nil, false
	}
	return h.inst, true
}

// Categories returns the categories with live loggers, sorted.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.loggers))
	for category := range r.loggers {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

// SetPipeline replaces the processing stages and pushes them to every
// live logger. The composition root calls this after rebuilding a stage
// from changed configuration.
func (r *Registry) SetPipeline(p Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return
	}
	r.pipeline = p
	for _, lg := range r.loggers {
		lg.SetPipeline(p)
	}
}

// GetLogger returns the logger for a category, creating it from the
// active configuration on first use. The empty category resolves to the
// root logger. After Shutdown it fails with ErrRegistryShutdown.
func (r *Registry) GetLogger(category string) (*Logger, error) {
	if category == "" {
		category = rootCategory
	}

	r.mu.RLock()
	if r.shutdown {
		r.mu.RUnlock()
		return nil, ErrRegistryShutdown
	}
	if lg, ok := r.loggers[category]; ok {
		r.mu.RUnlock()
		return lg, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return nil, ErrRegistryShutdown
	}
	if lg, ok := r.loggers[category]; ok {
		return lg, nil
	}
	return r.createLoggerLocked(category)
}

// Configure swaps the active configuration and pushes the changes into
// live loggers and appenders. Appenders whose configuration is unchanged
// keep running untouched; dynamic changes apply in place; structural
// changes run through a replacement instance. On failure the previous
// configuration stays in force and the live wiring is untouched.
// Concurrent calls are last-writer-wins.
func (r *Registry) Configure(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return ErrRegistryShutdown
	}

	prev := r.cfg
	r.cfg = cfg.Clone()
	if lvl, err := level.Parse(r.cfg.DefaultLevel); err == nil {
		r.factory.SetDefaultLevel(lvl)
	}

	if err := r.reconcileLocked(prev); err != nil {
		r.cfg = prev
		if lvl, perr := level.Parse(prev.DefaultLevel); perr == nil {
			r.factory.SetDefaultLevel(lvl)
		}
		metrics.ConfigReloads.WithLabelValues("reverted").Inc()
		return fmt.Errorf("configure registry: %w", err)
	}

	metrics.ConfigReloads.WithLabelValues("applied").Inc()
	return nil
}

// Shutdown stops every running appender in parallel, clears the registry,
// and makes later GetLogger calls fail. A context without a deadline
// bounds each stop by that appender's own stop timeout, so one slow sink
// delays only itself. Idempotent.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return nil
	}
	r.shutdown = true

	handles := make([]*appenderHandle, 0, len(r.appenders))
	for _, h := range r.appenders {
		handles = append(handles, h)
	}
	loggers := make([]*Logger, 0, len(r.loggers))
	for _, lg := range r.loggers {
		loggers = append(loggers, lg)
	}
	r.loggers = make(map[string]*Logger)
	r.appenders = make(map[string]*appenderHandle)
	r.mu.Unlock()

	// Callers may still hold logger handles; detach their appenders so
	// post-shutdown calls stop at the fan-out instead of a stopped sink.
	for _, lg := range loggers {
		lg.SetAppenders(nil)
	}

	errs := make([]error, len(handles))
	var wg sync.WaitGroup
	for i, h := range handles {
		wg.Add(1)
		go func(i int, inst appender.Appender) {
			defer wg.Done()
			errs[i] = inst.Stop(ctx)
		}(i, h.inst)
	}
	wg.Wait()

	r.factory.ClearCache()
	metrics.RegistryActiveLoggers.Set(0)
	metrics.RegistryActiveAppenders.Set(0)

	return errors.Join(errs...)
}

// createLoggerLocked builds a logger from the resolved configuration and
// registers it.
func (r *Registry) createLoggerLocked(category string) (*Logger, error) {
	resolved := r.resolveLocked(category)

	lg, err := r.factory.CreateLogger(category, &resolved)
	if err != nil {
		return nil, err
	}

	lg.SetAppenders(r.appendersForLocked(resolved.Appenders))
	lg.SetPipeline(r.pipeline)
	lg.SetProperties(r.cfg.Properties)
	lg.SetMessageLimit(r.cfg.Performance.MaxMessageLength)

	r.loggers[category] = lg
	metrics.RegistryActiveLoggers.Set(float64(len(r.loggers)))
	return lg, nil
}

// resolveLocked flattens the logger hierarchy for one category into a
// single configuration: the nearest configured ancestor supplies level
// and caller capture, and appender references accumulate up the hierarchy
// until a non-additive logger ends the walk. Loggers that never hit one
// inherit the root set.
func (r *Registry) resolveLocked(category string) config.LoggerConfig {
	idx := r.loggerIndexLocked()
	chain := hierarchy(category)
	resolved := config.LoggerConfig{Category: category}

	// Level and caller capture inherit from the nearest configured
	// ancestor regardless of additivity.
	levelSet, callerSet := false, false
	for _, cat := range chain {
		lc, ok := idx[cat]
		if !ok {
			continue
		}
		if !levelSet && lc.Level != "" {
			resolved.Level = lc.Level
			levelSet = true
		}
		if !callerSet {
			resolved.IncludeCaller = lc.IncludeCaller
			callerSet = true
		}
	}

	useRoot := true
	for _, cat := range chain {
		lc, ok := idx[cat]
		if !ok {
			continue
		}
		resolved.Appenders = append(resolved.Appenders, lc.Appenders...)
		if !lc.Additive {
			useRoot = false
			break
		}
	}

	if useRoot {
		if root, ok := idx[rootCategory]; ok {
			if !levelSet && root.Level != "" {
				resolved.Level = root.Level
				levelSet = true
			}
			if !callerSet {
				resolved.IncludeCaller = root.IncludeCaller
			}
			resolved.Appenders = append(resolved.Appenders, root.Appenders...)
		} else {
			resolved.Appenders = append(resolved.Appenders, r.activeAppenderNamesLocked()...)
		}
	}

	if !levelSet {
		resolved.Level = r.cfg.DefaultLevel
	}
	resolved.Appenders = dedupeNames(resolved.Appenders)
	return resolved
}

// loggerIndexLocked keys logger configs by the category they configure.
// An explicit Category field wins over the map key, so a logger entry can
// be named independently of its category.
func (r *Registry) loggerIndexLocked() map[string]config.LoggerConfig {
	idx := make(map[string]config.LoggerConfig, len(r.cfg.Loggers))
	for name, lc := range r.cfg.Loggers {
		key := lc.Category
		if key == "" {
			key = name
		}
		idx[key] = lc
	}
	return idx
}

// activeAppenderNamesLocked lists the active appender names sorted for
// deterministic root resolution.
func (r *Registry) activeAppenderNamesLocked() []string {
	names := make([]string, 0, len(r.cfg.Appenders))
	for name, ac := range r.cfg.Appenders {
		if ac.Active {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// appendersForLocked materializes the named appenders, skipping ones that
// cannot be built so a single bad reference does not cost the logger its
// healthy outputs.
func (r *Registry) appendersForLocked(names []string) []appender.Appender {
	out := make([]appender.Appender, 0, len(names))
	for _, name := range names {
		inst, err := r.ensureAppenderLocked(name)
		if err != nil {
			selflog.Error().
				Err(err).
				Str("appender", name).
				Msg("appender unavailable, skipped")
			continue
		}
		if inst != nil {
			out = append(out, inst)
		}
	}
	return out
}

// ensureAppenderLocked returns the running instance for a configured
// appender name, creating and starting it on first use. Inactive
// appenders resolve to nil without error.
func (r *Registry) ensureAppenderLocked(name string) (appender.Appender, error) {
	if h, ok := r.appenders[name]; ok {
		return h.inst, nil
	}

	acfg, ok := r.cfg.Appenders[name]
	if !ok {
		return nil, fmt.Errorf("appender %q is not configured", name)
	}
	if !acfg.Active {
		return nil, nil
	}
	if acfg.Name == "" {
		acfg.Name = name
	}

	inst, err := r.buildAppenderLocked(acfg)
	if err != nil {
		return nil, err
	}
	r.appenders[name] = &appenderHandle{inst: inst, fp: r.appenderFingerprintLocked(acfg)}
	metrics.RegistryActiveAppenders.Set(float64(len(r.appenders)))
	return inst, nil
}

// buildAppenderLocked constructs and starts one appender instance.
func (r *Registry) buildAppenderLocked(acfg config.AppenderConfig) (appender.Appender, error) {
	lay, err := r.layoutForLocked(acfg.Layout)
	if err != nil {
		return nil, err
	}
	inst, err := r.factory.CreateAppender(acfg, lay)
	if err != nil {
		return nil, err
	}
	if err := inst.Start(); err != nil {
		return nil, err
	}
	return inst, nil
}

// layoutForLocked resolves a named layout config. An empty name selects
// the appender type's default layout.
func (r *Registry) layoutForLocked(name string) (layout.Layout, error) {
	if name == "" {
		return nil, nil
	}
	lcfg, ok := r.cfg.Layouts[name]
	if !ok {
		return nil, fmt.Errorf("layout %q is not configured", name)
	}
	return r.factory.CreateLayout(lcfg)
}

// reconcileLocked rebuilds the live wiring under the already-swapped
// configuration. New and replacement appender instances are built and
// started before any logger is touched, so a failure leaves the previous
// wiring fully intact for Configure to restore. An appender that was
// already broken under prev and is unchanged stays skipped instead of
// failing the whole update.
func (r *Registry) reconcileLocked(prev *config.Config) error {
	resolutions := make(map[string]config.LoggerConfig, len(r.loggers))
	needed := make(map[string]bool)
	for category := range r.loggers {
		res := r.resolveLocked(category)
		resolutions[category] = res
		for _, name := range res.Appenders {
			needed[name] = true
		}
	}

	next := make(map[string]*appenderHandle, len(needed))
	var built []appender.Appender
	fail := func(err error) error {
		for _, inst := range built {
			retireAppender(inst)
		}
		return err
	}

	for name := range needed {
		acfg, ok := r.cfg.Appenders[name]
		if !ok || !acfg.Active {
			continue
		}
		if acfg.Name == "" {
			acfg.Name = name
		}
		fp := r.appenderFingerprintLocked(acfg)

		if h, ok := r.appenders[name]; ok {
			if h.fp == fp {
				next[name] = h
				continue
			}
			// Dynamic settings apply in place; a rejected structural
			// change falls through to a replacement instance.
			if err := h.inst.Configure(acfg); err == nil {
				if lay, lerr := r.layoutForLocked(acfg.Layout); lerr == nil && lay != nil {
					h.inst.SetLayout(lay)
				}
				h.fp = fp
				next[name] = h
				continue
			}
		}

		inst, err := r.buildAppenderLocked(acfg)
		if err != nil {
			if !configChanged(prev, name, fp) {
				selflog.Error().
					Err(err).
					Str("appender", name).
					Msg("appender unavailable, skipped")
				continue
			}
			return fail(fmt.Errorf("appender %q: %w", name, err))
		}
		built = append(built, inst)
		next[name] = &appenderHandle{inst: inst, fp: fp}
	}

	for category, lg := range r.loggers {
		res := resolutions[category]
		if lvl, err := level.Parse(res.Level); err == nil {
			lg.SetLevel(lvl)
		}
		lg.SetIncludeCaller(res.IncludeCaller)

		apps := make([]appender.Appender, 0, len(res.Appenders))
		for _, name := range res.Appenders {
			if h, ok := next[name]; ok {
				apps = append(apps, h.inst)
			}
		}
		lg.SetAppenders(apps)
		lg.SetProperties(r.cfg.Properties)
		lg.SetMessageLimit(r.cfg.Performance.MaxMessageLength)
	}

	// Retire instances nothing references anymore, replaced ones
	// included.
	for name, h := range r.appenders {
		if nh, ok := next[name]; ok && nh == h {
			continue
		}
		retireAppender(h.inst)
	}
	r.appenders = next
	metrics.RegistryActiveAppenders.Set(float64(len(r.appenders)))
	return nil
}

// appenderFingerprintLocked identifies an appender configuration by value
// under the active config.
func (r *Registry) appenderFingerprintLocked(acfg config.AppenderConfig) string {
	return fingerprintAppender(r.cfg, acfg)
}

// fingerprintAppender identifies an appender configuration by value,
// folding in its layout configuration so a layout edit reaches appenders
// that reference it by name.
func fingerprintAppender(cfg *config.Config, acfg config.AppenderConfig) string {
	b, err := json.Marshal(acfg)
	if err != nil {
		b = []byte(fmt.Sprintf("%+v", acfg))
	}
	if acfg.Layout == "" {
		return string(b)
	}
	lcfg, ok := cfg.Layouts[acfg.Layout]
	if !ok {
		return string(b)
	}
	lb, err := json.Marshal(lcfg)
	if err != nil {
		lb = []byte(fmt.Sprintf("%+v", lcfg))
	}
	return string(b) + "|" + string(lb)
}

// configChanged reports whether an appender's effective configuration
// under prev differs from the given fingerprint. Unknown names count as
// changed.
func configChanged(prev *config.Config, name, fp string) bool {
	acfg, ok := prev.Appenders[name]
	if !ok {
		return true
	}
	if acfg.Name == "" {
		acfg.Name = name
	}
	return fingerprintAppender(prev, acfg) != fp
}

// retireAppender stops an instance in the background, bounded by its own
// stop timeout.
func retireAppender(inst appender.Appender) {
	go func() {
		if err := inst.Stop(context.Background()); err != nil {
			selflog.Warn().
				Err(err).
				Str("appender", inst.Name()).
				Msg("retired appender stop failed")
		}
	}()
}

// hierarchy lists a category and its dot-trimmed ancestors, nearest
// first: "app.db.query" yields ["app.db.query", "app.db", "app"].
func hierarchy(category string) []string {
	out := []string{category}
	for cat := category; ; {
		i := strings.LastIndex(cat, ".")
		if i < 0 {
			break
		}
		cat = cat[:i]
		out = append(out, cat)
	}
	return out
}

// dedupeNames keeps the first occurrence of each name in order.
func dedupeNames(names []string) []string {
	if len(names) < 2 {
		return names
	}
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
