// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package appender

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/layout"
	"github.com/tomtom215/tabularium/internal/metrics"
	"github.com/tomtom215/tabularium/internal/selflog"
)

// File writes entries to a log file and rotates it by size. Rotated
// files are renamed with a UTC timestamp, optionally gzip-compressed,
// and pruned by count and age.
//
// Properties:
//
//	path:       log file path (required)
//	maxSizeMB:  rotation threshold in megabytes (default 100)
//	maxBackups: rotated files to keep, 0 keeps all (default 7)
//	maxAgeDays: rotated files older than this are removed, 0 keeps all
//	compress:   gzip rotated files (default false)
type File struct {
	*engine
	s *fileSink
}

// NewFile creates a file appender from the given configuration.
func NewFile(cfg config.AppenderConfig, lay layout.Layout) (*File, error) {
	s := &fileSink{appenderName: cfg.Name}
	f := &File{s: s, engine: newEngine(cfg.Name, s)}
	if err := f.Configure(cfg); err != nil {
		return nil, err
	}
	f.SetLayout(lay)
	return f, nil
}

// Path returns the active log file path.
func (f *File) Path() string {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.path
}

const (
	defaultMaxSizeMB  = 100
	defaultMaxBackups = 7
	fileWriteBufSize  = 32 * 1024

	// archiveStamp orders rotated files lexically by rotation time.
	archiveStamp = "20060102T150405.000"
)

type fileSink struct {
	appenderName string

	mu         sync.Mutex
	path       string
	maxSize    int64
	maxBackups int
	maxAgeDays int
	compress   bool

	f    *os.File
	w    *bufio.Writer
	size int64
}

func (s *fileSink) configure(props map[string]any) error {
	path := propString(props, "path", "")
	if path == "" {
		return fmt.Errorf("file appender requires a path property")
	}

	maxSizeMB := propInt(props, "maxSizeMB", defaultMaxSizeMB)
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.maxSize = int64(maxSizeMB) * 1024 * 1024
	s.maxBackups = propInt(props, "maxBackups", defaultMaxBackups)
	s.maxAgeDays = propInt(props, "maxAgeDays", 0)
	s.compress = propBool(props, "compress", false)

	// A path change on a live appender moves output to the new file.
	if s.f != nil && path != s.path {
		if err := s.closeLocked(); err != nil {
			return fmt.Errorf("close %s: %w", s.path, err)
		}
		s.path = path
		return s.openLocked()
	}
	s.path = path
	return nil
}

func (s *fileSink) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f != nil {
		return nil
	}
	return s.openLocked()
}

// openLocked must be called with mu held.
func (s *fileSink) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	s.f = f
	s.w = bufio.NewWriterSize(f, fileWriteBufSize)
	s.size = info.Size()
	return nil
}

func (s *fileSink) write(_ context.Context, recs []Record, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return fmt.Errorf("log file %s is not open", s.path)
	}

	for _, rec := range recs {
		n, err := s.w.Write(rec.Payload)
		s.size += int64(n)
		if err != nil {
			return err
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return err
		}
		s.size++
	}
	if err := s.w.Flush(); err != nil {
		return err
	}

	if s.size >= s.maxSize {
		if err := s.rotateLocked(); err != nil {
			metrics.RecordFileRotation(s.appenderName, err)
			selflog.Error().
				Err(err).
				Str("appender", s.appenderName).
				Str("path", s.path).
				Msg("rotation failed, continuing on current file")
			return nil
		}
		metrics.RecordFileRotation(s.appenderName, nil)
	}
	return nil
}

// rotateLocked renames the active file to a timestamped archive and
// reopens a fresh one. Must be called with mu held.
func (s *fileSink) rotateLocked() error {
	if err := s.closeLocked(); err != nil {
		return fmt.Errorf("close before rotate: %w", err)
	}

	archived := archiveName(s.path, time.Now().UTC())
	if err := os.Rename(s.path, archived); err != nil {
		// Reopen regardless so logging continues.
		if openErr := s.openLocked(); openErr != nil {
			return fmt.Errorf("rename failed (%v) and reopen failed: %w", err, openErr)
		}
		return fmt.Errorf("rename to %s: %w", archived, err)
	}

	if s.compress {
		if err := compressFile(archived); err != nil {
			selflog.Warn().
				Err(err).
				Str("appender", s.appenderName).
				Str("archive", archived).
				Msg("archive compression failed, keeping uncompressed")
		}
	}

	s.pruneLocked()
	return s.openLocked()
}

// pruneLocked removes rotated files beyond maxBackups and older than
// maxAgeDays. Must be called with mu held.
func (s *fileSink) pruneLocked() {
	archives, err := listArchives(s.path)
	if err != nil {
		selflog.Warn().
			Err(err).
			Str("appender", s.appenderName).
			Msg("cannot list archives for pruning")
		return
	}

	remove := func(path string) {
		if err := os.Remove(path); err != nil {
			selflog.Warn().
				Err(err).
				Str("appender", s.appenderName).
				Str("archive", path).
				Msg("cannot remove expired archive")
		}
	}

	if s.maxBackups > 0 && len(archives) > s.maxBackups {
		for _, old := range archives[:len(archives)-s.maxBackups] {
			remove(old)
		}
		archives = archives[len(archives)-s.maxBackups:]
	}

	if s.maxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.maxAgeDays)
		for _, a := range archives {
			info, err := os.Stat(a)
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				remove(a)
			}
		}
	}
}

func (s *fileSink) close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

// closeLocked must be called with mu held.
func (s *fileSink) closeLocked() error {
	if s.f == nil {
		return nil
	}
	flushErr := s.w.Flush()
	closeErr := s.f.Close()
	s.f = nil
	s.w = nil
	s.size = 0
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// archiveName places the rotation timestamp between the file's base name
// and its extension: app.log becomes app-20260102T150405.000.log.
func archiveName(path string, now time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + "-" + now.Format(archiveStamp) + ext
}

// listArchives returns rotated siblings of the given log file, oldest
// first. The fixed-width UTC stamp makes lexical order chronological.
func listArchives(path string) ([]string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	matches, err := filepath.Glob(base + "-*" + ext + "*")
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// compressFile gzips src to src.gz and removes the original.
func compressFile(src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(src + ".gz")
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		os.Remove(src + ".gz")
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		os.Remove(src + ".gz")
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(src + ".gz")
		return err
	}

	return os.Remove(src)
}
