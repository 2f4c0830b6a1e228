// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resilience wraps outbound store calls in retry, circuit breaking,
// and graceful degradation so that partial backend failure degrades result
// quality instead of failing the whole request.
//
// The pieces compose explicitly rather than through interception: call
// sites invoke Executor.Call(ctx, backend, op, fallback), which routes the
// operation through the backend's circuit breaker and the retry executor,
// and falls back (marking the backend degraded) when both are exhausted.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/ecp-platform/ecp/services/resolution/ecperr"
)

// -----------------------------------------------------------------------------
// Failure Classification
// -----------------------------------------------------------------------------

// transientIndicators are message fragments that mark a failure as
// transient regardless of its concrete type.
var transientIndicators = []string{
	"timeout",
	"connection",
	"temporary",
	"unavailable",
	"overloaded",
	"too many requests",
	"rate limit",
}

// IsRetryable classifies a failure as transient (worth retrying) or not.
//
// Classification policy:
//   - Authorization, validation, and resolution errors are never retried:
//     they are caller bugs, not backend health signals.
//   - Store connection and timeout errors are always retried; store query
//     errors are not (the same query fails again).
//   - Context cancellation is never retried; deadline expiry is.
//   - HTTP-style failures: 5xx retryable, 4xx not.
//   - Any failure whose message contains a transient indicator
//     (case-insensitive) is retried.
//   - Unclassified failures default to not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var typed *ecperr.Error
	if errors.As(err, &typed) {
		switch typed.Class {
		case ecperr.ClassAuthorization, ecperr.ClassValidation, ecperr.ClassResolution:
			return false
		case ecperr.ClassStore:
			switch typed.Code {
			case ecperr.CodeStoreConnection, ecperr.CodeStoreTimeout:
				return true
			default:
				return false
			}
		}
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var coder ecperr.StatusCoder
	if errors.As(err, &coder) {
		status := coder.StatusCode()
		if status >= 500 && status < 600 {
			return true
		}
		if status >= 400 && status < 500 {
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	for _, indicator := range transientIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}

	return false
}

// -----------------------------------------------------------------------------
// Retry Executor
// -----------------------------------------------------------------------------

// RetryConfig configures the retry executor.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first
	// (default: 3).
	MaxAttempts int

	// MinWait is the base backoff before the first retry (default: 1s).
	MinWait time.Duration

	// MaxWait caps the exponential backoff (default: 10s).
	MaxWait time.Duration
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		MinWait:     time.Second,
		MaxWait:     10 * time.Second,
	}
}

// Operation is a single outbound call wrapped by the retry executor.
type Operation func(ctx context.Context) error

// Retrier retries an operation on classified-transient failures with
// bounded, jittered exponential backoff.
//
// Thread Safety: Safe for concurrent use.
type Retrier struct {
	config  RetryConfig
	logger  *slog.Logger
	metrics Metrics
}

// NewRetrier creates a retry executor.
//
// Inputs:
//   - config: Retry configuration; zero values are filled with defaults.
//   - logger: Logger instance. Uses slog.Default() if nil.
//   - metrics: Metrics sink. Uses a no-op sink if nil.
func NewRetrier(config RetryConfig, logger *slog.Logger, metrics Metrics) *Retrier {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if config.MinWait <= 0 {
		config.MinWait = DefaultRetryConfig().MinWait
	}
	if config.MaxWait <= 0 {
		config.MaxWait = DefaultRetryConfig().MaxWait
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Retrier{config: config, logger: logger, metrics: metrics}
}

// Do runs op, retrying on transient failures up to MaxAttempts total
// attempts. Non-transient failures propagate immediately; after exhausting
// attempts the last observed failure propagates unchanged, never wrapped.
//
// Inputs:
//   - ctx: Bounds the whole retry loop including backoff sleeps.
//   - backend: Backend name for logging and metrics.
//   - op: The operation to attempt.
//
// Outputs:
//   - error: nil on success, otherwise the last failure as op returned it.
func (r *Retrier) Do(ctx context.Context, backend string, op Operation) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("retry succeeded",
					slog.String("backend", backend),
					slog.Int("attempt", attempt))
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			r.logger.Debug("non-retryable failure",
				slog.String("backend", backend),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return err
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		wait := r.backoff(attempt)
		r.logger.Warn("retry attempt failed",
			slog.String("backend", backend),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.config.MaxAttempts),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()))
		r.metrics.RecordRetry(backend)

		select {
		case <-ctx.Done():
			// Abandon the loop; the failure already observed stands.
			return lastErr
		case <-time.After(wait):
		}
	}

	r.logger.Error("retries exhausted",
		slog.String("backend", backend),
		slog.Int("attempts", r.config.MaxAttempts),
		slog.String("error", lastErr.Error()))
	return lastErr
}

// backoff computes the wait before the next attempt: exponential growth
// from MinWait capped at MaxWait, plus jitter of up to half of MinWait.
func (r *Retrier) backoff(attempt int) time.Duration {
	wait := r.config.MinWait
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= r.config.MaxWait {
			wait = r.config.MaxWait
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(r.config.MinWait)/2 + 1))
	return wait + jitter
}
