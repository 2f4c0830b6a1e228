// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ecp-platform/ecp/services/resolution/ecperr"
)

// -----------------------------------------------------------------------------
// Executor
// -----------------------------------------------------------------------------

// ExecutorConfig bundles the tunables for resilience-wrapped calls.
type ExecutorConfig struct {
	// Retry configures the retry executor shared by all backends.
	Retry RetryConfig

	// Breaker configures the per-backend circuit breakers.
	Breaker BreakerConfig

	// CallTimeout bounds each individual attempt against a backend
	// (default: 10s). A timed-out attempt takes the transient-failure path.
	CallTimeout time.Duration
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Retry:       DefaultRetryConfig(),
		Breaker:     DefaultBreakerConfig(),
		CallTimeout: 10 * time.Second,
	}
}

// Executor routes every outbound store call through its backend's circuit
// breaker and the retry executor, and hands exhausted failures to the call
// site's fallback. It owns the process-wide breaker and degradation
// registries.
//
// The composition is explicit by design: each orchestrator call site
// invokes Call with its backend name, operation, and fallback, keeping
// control flow visible and testable.
//
// Thread Safety: Safe for concurrent use.
type Executor struct {
	retrier     *Retrier
	breakers    *BreakerRegistry
	degradation *DegradationRegistry
	callTimeout time.Duration
	logger      *slog.Logger
	metrics     Metrics
}

// NewExecutor creates a resilience executor with fresh breaker and
// degradation registries.
func NewExecutor(config ExecutorConfig, logger *slog.Logger, metrics Metrics) *Executor {
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultExecutorConfig().CallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Executor{
		retrier:     NewRetrier(config.Retry, logger, metrics),
		breakers:    NewBreakerRegistry(config.Breaker, logger, metrics),
		degradation: NewDegradationRegistry(logger, metrics),
		callTimeout: config.CallTimeout,
		logger:      logger,
		metrics:     metrics,
	}
}

// Degradation exposes the degradation registry for the API boundary.
func (ex *Executor) Degradation() *DegradationRegistry { return ex.degradation }

// Breakers exposes the breaker registry for stats and tests.
func (ex *Executor) Breakers() *BreakerRegistry { return ex.breakers }

// Fallback produces a substitute result after resilience is exhausted.
// The error passed in is the final failure (ErrCircuitOpen when the
// breaker rejected the call without attempting it).
type Fallback[T any] func(ctx context.Context, cause error) (T, error)

// Call runs op against a backend with full resilience protection:
//
//  1. The backend's breaker is consulted; an open circuit rejects the call
//     near-instantly with no retry delay.
//  2. Otherwise op runs under the retry executor, each attempt bounded by
//     CallTimeout.
//  3. Success records breaker success and clears the backend's degraded
//     mark (the first direct success after degradation recovers it).
//  4. A caller-bug failure (validation, resolution, authorization class)
//     propagates directly: it is not a backend health signal and must not
//     trigger the fallback.
//  5. Any other exhausted failure marks the backend degraded and invokes
//     the fallback; with no fallback the failure propagates unchanged.
func Call[T any](ctx context.Context, ex *Executor, backend string, op func(ctx context.Context) (T, error), fallback Fallback[T]) (T, error) {
	var zero T

	cb := ex.breakers.Get(backend)
	if !cb.Allow() {
		ex.degradation.MarkDegraded(backend, "circuit breaker open")
		if fallback != nil {
			ex.metrics.RecordFallback(backend)
			return fallback(ctx, ErrCircuitOpen)
		}
		return zero, ErrCircuitOpen
	}

	var result T
	err := ex.retrier.Do(ctx, backend, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, ex.callTimeout)
		defer cancel()

		r, opErr := op(attemptCtx)
		if opErr != nil {
			// Normalize a plain attempt timeout into the typed taxonomy so
			// classification and logging see the backend name.
			if errors.Is(opErr, context.DeadlineExceeded) && ctx.Err() == nil {
				opErr = ecperr.NewStoreTimeout(backend, "call", ex.callTimeout)
			}
			return opErr
		}
		result = r
		return nil
	})

	if err == nil {
		cb.RecordSuccess()
		ex.degradation.MarkRecovered(backend)
		return result, nil
	}

	cb.RecordFailure(err)

	if isCallerBug(err) {
		return zero, err
	}

	ex.degradation.MarkDegraded(backend, err.Error())
	if fallback != nil {
		ex.metrics.RecordFallback(backend)
		return fallback(ctx, err)
	}
	return zero, err
}

// isCallerBug reports whether a failure originated from the caller's input
// rather than backend health.
func isCallerBug(err error) bool {
	var typed *ecperr.Error
	if errors.As(err, &typed) {
		switch typed.Class {
		case ecperr.ClassValidation, ecperr.ClassResolution, ecperr.ClassAuthorization:
			return true
		}
	}
	return false
}
