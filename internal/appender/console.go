// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package appender

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/layout"
)

// Console writes entries to standard output or standard error, one
// payload per line.
//
// Properties:
//
//	target: "stdout" or "stderr" (default "stdout")
type Console struct {
	*engine
	s *consoleSink
}

// NewConsole creates a console appender from the given configuration.
func NewConsole(cfg config.AppenderConfig, lay layout.Layout) (*Console, error) {
	s := &consoleSink{target: "stdout"}
	c := &Console{s: s, engine: newEngine(cfg.Name, s)}
	if err := c.Configure(cfg); err != nil {
		return nil, err
	}
	c.SetLayout(lay)
	return c, nil
}

type consoleSink struct {
	mu     sync.Mutex
	target string
	w      io.Writer
}

func (s *consoleSink) configure(props map[string]any) error {
	target := propString(props, "target", "stdout")
	switch target {
	case "stdout", "stderr":
	default:
		return fmt.Errorf("console target must be stdout or stderr, got %q", target)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = target
	if s.w != nil {
		s.w = s.resolve()
	}
	return nil
}

func (s *consoleSink) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		s.w = s.resolve()
	}
	return nil
}

// resolve must be called with mu held.
func (s *consoleSink) resolve() io.Writer {
	if s.target == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

// setWriter redirects output, for capture in tests.
func (s *consoleSink) setWriter(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

func (s *consoleSink) write(_ context.Context, recs []Record, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if _, err := s.w.Write(rec.Payload); err != nil {
			return err
		}
		if _, err := s.w.Write([]byte{'\n'}); err != nil {
			return err
		}
	}
	return nil
}

// close leaves the process streams alone; the appender does not own them.
func (s *consoleSink) close(context.Context) error {
	return nil
}
