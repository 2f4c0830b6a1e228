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
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ecp-platform/ecp/services/resolution/ecperr"
)

// ErrCircuitOpen is returned when a call is rejected because the backend's
// circuit breaker is open. It deliberately replaces the underlying backend
// error so callers can distinguish a short-circuit from a fresh failure.
var ErrCircuitOpen = errors.New("circuit breaker is open, backend requests blocked")

// -----------------------------------------------------------------------------
// Circuit State
// -----------------------------------------------------------------------------

// CircuitState represents the circuit breaker state.
type CircuitState int

const (
	// CircuitClosed is normal operation - requests pass through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means too many failures - requests are rejected.
	CircuitOpen
	// CircuitHalfOpen is testing recovery - a single trial call is allowed.
	CircuitHalfOpen
)

// String returns a human-readable state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens (default: 5).
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before allowing
	// a trial call (default: 60s).
	RecoveryTimeout time.Duration
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
	}
}

// BreakerStats is a point-in-time snapshot for observability.
type BreakerStats struct {
	Backend         string    `json:"backend"`
	State           string    `json:"state"`
	Failures        int       `json:"failures"`
	TotalCalls      int64     `json:"total_calls"`
	TotalFailures   int64     `json:"total_failures"`
	TotalRejections int64     `json:"total_rejections"`
	LastTransition  time.Time `json:"last_transition"`
}

// -----------------------------------------------------------------------------
// Circuit Breaker
// -----------------------------------------------------------------------------

// CircuitBreaker protects one backend with the standard three-state breaker:
//
//   - Closed: calls pass through, consecutive failures are counted.
//   - Open: after FailureThreshold failures, calls are rejected immediately
//     with ErrCircuitOpen instead of waiting on the backend's own timeout.
//   - Half-open: after RecoveryTimeout, one trial call is allowed; success
//     closes the circuit, failure reopens it and restarts the timeout.
//
// Failures classified as caller bugs (validation and resolution errors) do
// not count toward the failure threshold.
//
// Thread Safety: Safe for concurrent use.
type CircuitBreaker struct {
	backend string
	config  BreakerConfig
	logger  *slog.Logger
	metrics Metrics

	mu             sync.Mutex
	state          CircuitState
	failures       int
	halfOpenActive bool
	lastTransition time.Time

	totalCalls      int64
	totalFailures   int64
	totalRejections int64
}

// NewCircuitBreaker creates a breaker for one backend.
func NewCircuitBreaker(backend string, config BreakerConfig, logger *slog.Logger, metrics Metrics) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = DefaultBreakerConfig().RecoveryTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &CircuitBreaker{
		backend:        backend,
		config:         config,
		logger:         logger.With(slog.String("breaker", backend)),
		metrics:        metrics,
		state:          CircuitClosed,
		lastTransition: time.Now(),
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow checks whether a call should proceed. A rejection is near-instant:
// no retry delay is incurred while the circuit is open.
//
// Outputs:
//   - bool: True if the call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++

	switch cb.state {
	case CircuitClosed:
		return true

	case CircuitOpen:
		if time.Since(cb.lastTransition) >= cb.config.RecoveryTimeout {
			cb.transitionTo(CircuitHalfOpen)
			cb.halfOpenActive = true
			return true
		}
		cb.totalRejections++
		return false

	case CircuitHalfOpen:
		if cb.halfOpenActive {
			cb.totalRejections++
			return false
		}
		cb.halfOpenActive = true
		return true
	}

	return false
}

// RecordSuccess records a successful call and resets the failure count.
// In half-open state the circuit closes.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == CircuitHalfOpen {
		cb.halfOpenActive = false
		cb.transitionTo(CircuitClosed)
	}
}

// RecordFailure records a failed call. Validation-class failures are caller
// bugs, not backend health signals, and are not counted.
func (cb *CircuitBreaker) RecordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !countsTowardBreaker(err) {
		// The trial slot was still consumed; release it so the next call
		// can probe the backend instead of being rejected forever.
		cb.halfOpenActive = false
		return
	}

	cb.totalFailures++
	cb.failures++

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.halfOpenActive = false
		cb.transitionTo(CircuitOpen)
	}
}

// Stats returns a snapshot of the breaker's counters and state.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return BreakerStats{
		Backend:         cb.backend,
		State:           cb.state.String(),
		Failures:        cb.failures,
		TotalCalls:      cb.totalCalls,
		TotalFailures:   cb.totalFailures,
		TotalRejections: cb.totalRejections,
		LastTransition:  cb.lastTransition,
	}
}

// Reset forces the breaker back to closed. Intended for tests.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
	cb.halfOpenActive = false
	cb.lastTransition = time.Now()
}

// transitionTo changes state. Must be called with lock held. The state
// change is logged and counted but never blocks the calling operation.
func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	old := cb.state
	cb.state = newState
	cb.lastTransition = time.Now()
	cb.failures = 0

	cb.logger.Warn("circuit breaker state changed",
		slog.String("from", old.String()),
		slog.String("to", newState.String()))
	cb.metrics.RecordBreakerTransition(cb.backend, old.String(), newState.String())
}

// countsTowardBreaker reports whether a failure is a backend health signal.
func countsTowardBreaker(err error) bool {
	var typed *ecperr.Error
	if errors.As(err, &typed) {
		switch typed.Class {
		case ecperr.ClassValidation, ecperr.ClassResolution:
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Breaker Registry
// -----------------------------------------------------------------------------

// BreakerRegistry holds exactly one circuit breaker per backend name,
// created lazily on first use and kept for the process lifetime.
//
// Thread Safety: Safe for concurrent use.
type BreakerRegistry struct {
	config  BreakerConfig
	logger  *slog.Logger
	metrics Metrics

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerRegistry creates a registry with shared breaker configuration.
func NewBreakerRegistry(config BreakerConfig, logger *slog.Logger, metrics Metrics) *BreakerRegistry {
	return &BreakerRegistry{
		config:   config,
		logger:   logger,
		metrics:  metrics,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for a backend, creating it on first use.
func (r *BreakerRegistry) Get(backend string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[backend]
	if !ok {
		cb = NewCircuitBreaker(backend, r.config, r.logger, r.metrics)
		r.breakers[backend] = cb
	}
	return cb
}

// Stats returns snapshots for all known breakers.
func (r *BreakerRegistry) Stats() []BreakerStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make([]BreakerStats, 0, len(r.breakers))
	for _, cb := range r.breakers {
		stats = append(stats, cb.Stats())
	}
	return stats
}

// ResetAll resets every breaker to closed. Intended for tests.
func (r *BreakerRegistry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, cb := range r.breakers {
		cb.Reset()
	}
}
