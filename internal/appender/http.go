// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package appender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/tabularium/internal/config"
	"github.com/tomtom215/tabularium/internal/layout"
	"github.com/tomtom215/tabularium/internal/metrics"
	"github.com/tomtom215/tabularium/internal/selflog"
)

// HTTP posts batches to a collector endpoint, one payload per line in
// the request body. A circuit breaker sheds load while the endpoint is
// failing so retries cannot pile up behind a dead collector.
//
// Properties:
//
//	url:              endpoint URL (required)
//	method:           request method (default "POST")
//	headers:          extra request headers (map of string to string)
//	timeout:          per-request timeout (default "10s")
//	failureThreshold: consecutive failures that open the breaker (default 5)
//	breakerTimeout:   open-state duration before a probe (default "30s")
//	breakerInterval:  closed-state counter reset interval (default "60s")
type HTTP struct {
	*engine
	s *httpSink
}

// NewHTTP creates an HTTP appender from the given configuration.
func NewHTTP(cfg config.AppenderConfig, lay layout.Layout) (*HTTP, error) {
	s := &httpSink{appenderName: cfg.Name}
	h := &HTTP{s: s, engine: newEngine(cfg.Name, s)}
	if err := h.Configure(cfg); err != nil {
		return nil, err
	}
	h.SetLayout(lay)
	return h, nil
}

const (
	defaultHTTPTimeout      = 10 * time.Second
	defaultFailureThreshold = 5
	defaultBreakerTimeout   = 30 * time.Second
	defaultBreakerInterval  = 60 * time.Second
)

type httpSink struct {
	appenderName string

	mu      sync.RWMutex
	url     string
	method  string
	headers map[string]string
	timeout time.Duration

	failureThreshold uint32
	breakerTimeout   time.Duration
	breakerInterval  time.Duration

	client  *http.Client
	breaker *gobreaker.CircuitBreaker[interface{}]
}

func (s *httpSink) configure(props map[string]any) error {
	endpoint := propString(props, "url", "")
	if endpoint == "" {
		return fmt.Errorf("http appender requires a url property")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("http appender url %q is not absolute", endpoint)
	}

	threshold := propInt(props, "failureThreshold", defaultFailureThreshold)
	if threshold < 1 {
		threshold = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil && endpoint != s.url {
		return fmt.Errorf("http appender url cannot change while running")
	}

	s.url = endpoint
	s.method = propString(props, "method", http.MethodPost)
	s.headers = propStringMap(props, "headers")
	s.timeout = propDuration(props, "timeout", defaultHTTPTimeout)
	s.failureThreshold = uint32(threshold)
	s.breakerTimeout = propDuration(props, "breakerTimeout", defaultBreakerTimeout)
	s.breakerInterval = propDuration(props, "breakerInterval", defaultBreakerInterval)
	return nil
}

func (s *httpSink) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}

	s.client = &http.Client{Timeout: s.timeout}

	name := s.appenderName
	threshold := s.failureThreshold
	s.breaker = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    s.breakerInterval,
		Timeout:     s.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(cbName string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(cbName).Set(float64(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(cbName, from.String(), to.String()).Inc()
			selflog.Warn().
				Str("appender", cbName).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("delivery circuit breaker state changed")
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	return nil
}

func (s *httpSink) write(ctx context.Context, recs []Record, contentType string) error {
	s.mu.RLock()
	endpoint := s.url
	method := s.method
	headers := s.headers
	client := s.client
	breaker := s.breaker
	s.mu.RUnlock()

	if client == nil {
		return fmt.Errorf("http appender is not open")
	}

	var body bytes.Buffer
	for _, rec := range recs {
		body.Write(rec.Payload)
		body.WriteByte('\n')
	}

	_, err := breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body.Bytes()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("collector returned status %d", resp.StatusCode)
		}
		return nil, nil
	})

	metrics.CircuitBreakerRequests.WithLabelValues(s.appenderName, breakerResult(err)).Inc()
	return err
}

func (s *httpSink) close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.CloseIdleConnections()
		s.client = nil
	}
	return nil
}

// breakerResult folds an execution outcome into the bounded result label.
func breakerResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "rejected"
	default:
		return "failure"
	}
}
