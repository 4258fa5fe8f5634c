// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

// Package selflog is the pipeline's own zerolog-based diagnostics channel.
//
// The logging pipeline must never let a sink failure, a formatting failure,
// or a recovered panic reach the caller of a log statement. All of those
// land here instead: appender delivery errors, layout fallbacks, dropped
// entries, and lifecycle problems are reported through this package so the
// pipeline stays observable even when parts of it are broken.
//
// selflog writes directly to its configured writer and never re-enters the
// pipeline, so a failing appender cannot cause a reporting loop.
//
// # Quick Start
//
//	import "github.com/tomtom215/tabularium/internal/selflog"
//
//	// Initialize at application startup
//	selflog.Init(selflog.Config{
//	    Level:  "warn",
//	    Format: "json",
//	})
//
//	selflog.Error().Err(err).Str("appender", name).Msg("delivery failed")
//
// # Configuration
//
// Environment Variables (read by the daemon, not by this package):
//   - SELFLOG_LEVEL: trace, debug, info, warn, error (default: warn)
//   - SELFLOG_FORMAT: json, console (default: json)
package selflog

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds diagnostics channel configuration.
type Config struct {
	// Level is the minimum level reported: trace, debug, info, warn, error.
	// Default: warn, so a healthy pipeline is silent.
	Level string

	// Format is the output format: json or console.
	// Default: json
	Format string

	// Caller includes caller file and line number.
	// Default: false
	Caller bool

	// Timestamp enables timestamps in output.
	// Default: true
	Timestamp bool

	// Output is the writer for diagnostics output.
	// Default: os.Stderr
	Output io.Writer
}

// DefaultConfig returns the default diagnostics configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "warn",
		Format:    "json",
		Caller:    false,
		Timestamp: true,
		Output:    os.Stderr,
	}
}

var (
	// log is the package logger instance.
	log zerolog.Logger

	// mu protects concurrent initialization.
	mu sync.RWMutex
)

//nolint:gochecknoinits // init ensures diagnostics work before explicit Init() call
func init() {
	cfg := DefaultConfig()

	// Suppress output while fuzzing; layout fuzz targets intentionally
	// trigger fallback reporting on every input.
	if os.Getenv("FUZZ_MODE") == "1" {
		cfg.Level = "fatal"
	}

	initLogger(cfg)
}

// Init initializes the diagnostics channel with the given configuration.
// Safe to call multiple times; subsequent calls reconfigure the channel.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	initLogger(cfg)
}

// initLogger configures the package logger (must be called with mu held).
func initLogger(cfg Config) {
	if cfg.Level == "" {
		cfg.Level = "warn"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339

	output := cfg.Output
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        cfg.Output,
			TimeFormat: "15:04:05",
			NoColor:    false,
		}
	}

	ctx := zerolog.New(output).Level(parseLevel(cfg.Level))

	if cfg.Timestamp {
		ctx = ctx.With().Timestamp().Logger()
	}
	if cfg.Caller {
		ctx = ctx.With().Caller().Logger()
	}

	log = ctx
}

// parseLevel converts a string level to zerolog.Level.
// Unknown strings fall back to warn rather than silencing the channel.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.WarnLevel
	}
}

// Logger returns the current diagnostics logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// SetLogger replaces the diagnostics logger instance.
// Tests use this with NewTestLogger to capture reports.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// With creates a child logger context with additional default fields.
//
//	apLog := selflog.With().Str("appender", name).Logger()
func With() zerolog.Context {
	mu.RLock()
	defer mu.RUnlock()
	return log.With()
}

// Trace starts a new report with trace level.
func Trace() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Trace()
}

// Debug starts a new report with debug level.
func Debug() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Debug()
}

// Info starts a new report with info level.
func Info() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Info()
}

// Warn starts a new report with warning level.
//
//	selflog.Warn().Str("appender", name).Msg("buffer full, entry dropped")
func Warn() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Warn()
}

// Error starts a new report with error level.
//
//	selflog.Error().Err(err).Str("appender", name).Msg("delivery failed")
func Error() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Error()
}

// Fatal starts a new report with fatal level.
// os.Exit(1) is called after the report is written.
func Fatal() *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Fatal()
}

// Err starts an error-level report and attaches the error.
// Equivalent to Error().Err(err).
func Err(err error) *zerolog.Event {
	mu.RLock()
	defer mu.RUnlock()
	return log.Err(err)
}

// SetLevelString updates the channel level from a string.
func SetLevelString(level string) {
	mu.Lock()
	defer mu.Unlock()
	log = log.Level(parseLevel(level))
}

// NewTestLogger creates a logger that writes to the provided writer.
// Tests pair this with SetLogger to assert on diagnostics output.
//
//	var buf bytes.Buffer
//	selflog.SetLogger(selflog.NewTestLogger(&buf))
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// NewConsoleTestLogger creates a console-formatted logger for testing.
// Useful for visual inspection during test development.
func NewConsoleTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
		NoColor:    true,
	}).With().Timestamp().Logger()
}
