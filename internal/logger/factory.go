// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package logger

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/tabularium/internal/appender"
	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/layout"
	"github.com/tomtom215/tabularium/internal/level"
	"github.com/tomtom215/tabularium/internal/metrics"
)

// ErrUnknownType is returned when no constructor is registered for a
// requested appender or layout type. Callers match it with errors.Is.
var ErrUnknownType = errors.New("unknown type")

// AppenderConstructor builds an appender from its configuration and an
// optional pre-built layout. A nil layout selects the type's default.
type AppenderConstructor func(cfg config.AppenderConfig, lay layout.Layout) (appender.Appender, error)

// LayoutConstructor builds a layout from its configuration.
type LayoutConstructor func(cfg config.LayoutConfig) (layout.Layout, error)

// Factory turns configuration records into runtime instances through
// registries of constructors keyed by type string. NewFactory registers
// the built-in types; embedders extend or override them with the Register
// methods. All methods are safe for concurrent use.
type Factory struct {
	mu          sync.RWMutex
	appenders   map[string]AppenderConstructor
	layouts     map[string]LayoutConstructor
	defaultLvl  level.Level
	broadcaster appender.Broadcaster

	cacheMu sync.Mutex
	cache   map[string]*Logger
}

// NewFactory creates a factory with the built-in appender types (console,
// file, http, nats, mqtt, memory, livetail) and layout types (json,
// pattern) registered.
func NewFactory() *Factory {
	f := &Factory{
		appenders:  make(map[string]AppenderConstructor),
		layouts:    make(map[string]LayoutConstructor),
		cache:      make(map[string]*Logger),
		defaultLvl: level.Info,
	}

	f.RegisterAppenderType("console", func(cfg config.AppenderConfig, lay layout.Layout) (appender.Appender, error) {
		return appender.NewConsole(cfg, lay)
	})
	f.RegisterAppenderType("file", func(cfg config.AppenderConfig, lay layout.Layout) (appender.Appender, error) {
		return appender.NewFile(cfg, lay)
	})
	f.RegisterAppenderType("http", func(cfg config.AppenderConfig, lay layout.Layout) (appender.Appender, error) {
		return appender.NewHTTP(cfg, lay)
	})
	f.RegisterAppenderType("nats", func(cfg config.AppenderConfig, lay layout.Layout) (appender.Appender, error) {
		return appender.NewNATS(cfg, lay)
	})
	f.RegisterAppenderType("mqtt", func(cfg config.AppenderConfig, lay layout.Layout) (appender.Appender, error) {
		return appender.NewMQTT(cfg, lay)
	})
	f.RegisterAppenderType("memory", func(cfg config.AppenderConfig, lay layout.Layout) (appender.Appender, error) {
		return appender.NewMemory(cfg, lay)
	})
	f.RegisterAppenderType("livetail", func(cfg config.AppenderConfig, lay layout.Layout) (appender.Appender, error) {
		return appender.NewLiveTail(cfg, lay, f.Broadcaster())
	})

	f.RegisterLayoutType("json", func(cfg config.LayoutConfig) (layout.Layout, error) {
		return layout.NewJSON(layoutOptions(cfg)), nil
	})
	f.RegisterLayoutType("pattern", func(cfg config.LayoutConfig) (layout.Layout, error) {
		return layout.NewPattern(layoutOptions(cfg)), nil
	})

	return f
}

// RegisterAppenderType installs a constructor for the given type string,
// replacing any previous registration. Type matching is case-insensitive.
func (f *Factory) RegisterAppenderType(name string, ctor AppenderConstructor) {
	if name == "" || ctor == nil {
		return
	}
	f.mu.Lock()
	f.appenders[strings.ToLower(name)] = ctor
	f.mu.Unlock()
}

// RegisterLayoutType installs a constructor for the given type string,
// replacing any previous registration. Type matching is case-insensitive.
func (f *Factory) RegisterLayoutType(name string, ctor LayoutConstructor) {
	if name == "" || ctor == nil {
		return
	}
	f.mu.Lock()
	f.layouts[strings.ToLower(name)] = ctor
	f.mu.Unlock()
}

// CreateAppender builds an appender from its configuration. The layout is
// pre-resolved by the caller; nil selects the type's default. An
// unregistered type fails with ErrUnknownType.
func (f *Factory) CreateAppender(cfg config.AppenderConfig, lay layout.Layout) (appender.Appender, error) {
	f.mu.RLock()
	ctor, ok := f.appenders[strings.ToLower(cfg.Type)]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.Type)
	}
	return ctor(cfg, lay)
}

// CreateLayout builds a layout from its configuration. An unregistered
// type fails with ErrUnknownType.
func (f *Factory) CreateLayout(cfg config.LayoutConfig) (layout.Layout, error) {
	f.mu.RLock()
	ctor, ok := f.layouts[strings.ToLower(cfg.Type)]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, cfg.Type)
	}
	return ctor(cfg)
}

// CreateLogger returns the logger for the given category and optional
// per-logger configuration. Results are cached by (category, config)
// value: identical arguments return the identical pointer until
// ClearCache. The config supplies the threshold and caller capture; a nil
// config or empty level uses the factory default level.
func (f *Factory) CreateLogger(category string, cfg *config.LoggerConfig) (*Logger, error) {
	if category == "" {
		return nil, errors.New("logger category is required")
	}

	lvl := f.DefaultLevel()
	includeCaller := false
	if cfg != nil {
		if cfg.Level != "" {
			parsed, err := level.Parse(cfg.Level)
			if err != nil {
				return nil, fmt.Errorf("logger %q: %w", category, err)
			}
			lvl = parsed
		}
		includeCaller = cfg.IncludeCaller
	}

	key := loggerCacheKey(category, cfg)

	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	if lg, ok := f.cache[key]; ok {
		metrics.CacheHits.WithLabelValues("logger").Inc()
		return lg, nil
	}
	metrics.CacheMisses.WithLabelValues("logger").Inc()

	lg := New(category, lvl)
	lg.SetIncludeCaller(includeCaller)
	f.cache[key] = lg
	metrics.CacheSize.WithLabelValues("logger").Set(float64(len(f.cache)))
	return lg, nil
}

// ClearCache drops every cached logger. Subsequent CreateLogger calls
// build fresh instances; loggers already handed out keep working.
func (f *Factory) ClearCache() {
	f.cacheMu.Lock()
	f.cache = make(map[string]*Logger)
	f.cacheMu.Unlock()
	metrics.CacheSize.WithLabelValues("logger").Set(0)
}

// SetDefaultLevel replaces the threshold applied when a logger's
// configuration does not name one. Unknown levels are ignored.
func (f *Factory) SetDefaultLevel(lvl level.Level) {
	if !lvl.Valid() {
		return
	}
	f.mu.Lock()
	f.defaultLvl = lvl
	f.mu.Unlock()
}

// DefaultLevel returns the threshold for loggers without a configured
// level.
func (f *Factory) DefaultLevel() level.Level {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.defaultLvl
}

// SetBroadcaster installs the hub livetail appenders publish to. Set it
// before the first livetail appender is created; instances built earlier
// can be rewired with their own SetBroadcaster.
func (f *Factory) SetBroadcaster(b appender.Broadcaster) {
	f.mu.Lock()
	f.broadcaster = b
	f.mu.Unlock()
}

// Broadcaster returns the installed livetail hub, or nil.
func (f *Factory) Broadcaster() appender.Broadcaster {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.broadcaster
}

// loggerCacheKey fingerprints a (category, config) pair. Configs marshal
// through their JSON tags, so value-equal configs produce identical keys
// no matter how they were built.
func loggerCacheKey(category string, cfg *config.LoggerConfig) string {
	if cfg == nil {
		return category
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return category + "\x00" + fmt.Sprintf("%+v", *cfg)
	}
	return category + "\x00" + string(b)
}

// layoutOptions maps a layout configuration onto runtime options.
func layoutOptions(cfg config.LayoutConfig) layout.Options {
	return layout.Options{
		Pattern:       cfg.Pattern,
		DateFormat:    cfg.DateFormat,
		IncludeColors: cfg.IncludeColors,
		Fields:        cfg.Fields,
		StaticFields:  cfg.StaticFields,
	}
}
