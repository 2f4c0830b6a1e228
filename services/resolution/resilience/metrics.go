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

// Metrics receives resilience events for observability. The production
// implementation lives in the observability package; components accept the
// interface so tests can run without a Prometheus registry.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Metrics interface {
	// RecordRetry counts one retry attempt against a backend.
	RecordRetry(backend string)

	// RecordBreakerTransition counts a circuit breaker state change.
	RecordBreakerTransition(backend, from, to string)

	// RecordFallback counts one fallback invocation for a backend.
	RecordFallback(backend string)

	// SetDegraded reflects a backend entering or leaving degraded mode.
	SetDegraded(backend string, degraded bool)
}

// NopMetrics discards all events. Used when no metrics sink is wired.
type NopMetrics struct{}

func (NopMetrics) RecordRetry(string)                      {}
func (NopMetrics) RecordBreakerTransition(_, _, _ string)  {}
func (NopMetrics) RecordFallback(string)                   {}
func (NopMetrics) SetDegraded(string, bool)                {}

var _ Metrics = NopMetrics{}
