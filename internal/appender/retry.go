// Tabularium - Structured Logging Pipeline with Compliance Controls
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tabularium

package appender

import (
	"context"
	"math"
	"time"

	"github.com/tomtom215/tabularium/internal/config"
)

const (
	defaultRetryBackoff  = 100 * time.Millisecond
	defaultRetryMaxDelay = 30 * time.Second

	// maxBackoffShift bounds the exponent so the doubling math cannot
	// overflow time.Duration for absurd retry counts.
	maxBackoffShift = 50
)

// retryPolicy is the resolved re-delivery policy for failed batches.
// maxAttempts counts retries after the initial write, so zero disables
// retrying entirely.
type retryPolicy struct {
	maxAttempts int
	backoff     time.Duration
	exponential bool
	maxDelay    time.Duration
}

// resolveRetry fills unset retry fields with usable defaults. A nil
// configuration disables retries.
func resolveRetry(r *config.RetryConfig) retryPolicy {
	if r == nil {
		return retryPolicy{}
	}
	pol := retryPolicy{
		maxAttempts: r.MaxAttempts,
		backoff:     r.Backoff,
		exponential: r.Exponential,
		maxDelay:    r.MaxDelay,
	}
	if pol.maxAttempts < 0 {
		pol.maxAttempts = 0
	}
	if pol.backoff <= 0 {
		pol.backoff = defaultRetryBackoff
	}
	if pol.maxDelay <= 0 {
		pol.maxDelay = defaultRetryMaxDelay
	}
	return pol
}

// delay returns how long to wait before the retry following the given
// number of completed retries. Exponential backoff: backoff * 2^retries,
// capped at maxDelay.
func (p retryPolicy) delay(retries int) time.Duration {
	if p.backoff <= 0 {
		return 0
	}
	if !p.exponential {
		if p.backoff > p.maxDelay && p.maxDelay > 0 {
			return p.maxDelay
		}
		return p.backoff
	}

	if retries > maxBackoffShift {
		return p.maxDelay
	}

	d := time.Duration(float64(p.backoff) * math.Pow(2, float64(retries)))

	// Overflow shows up as a negative duration.
	if d < 0 || d > p.maxDelay {
		return p.maxDelay
	}
	return d
}

// sleepCtx waits for the duration or the context, reporting false when
// the context won.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
