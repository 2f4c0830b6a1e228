// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the resolution
// service.
//
// # Description
//
// Metrics cover the resolution pipeline (resolve/execute outcomes and
// latencies) and the resilience subsystem (retries, breaker transitions,
// fallbacks, degraded backends). Exposed via the /metrics endpoint; use
// with Prometheus + Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "ecp"

// Subsystem for resolution metrics
const resolutionSubsystem = "resolution"

// Metrics holds all Prometheus metrics for the resolution service.
// Initialize once at startup via InitMetrics; registering twice panics
// on duplicate registration.
//
// Implements both the resilience metrics sink and the orchestrator
// recorder.
type Metrics struct {
	// ResolutionsTotal counts resolve calls by outcome status.
	// Labels: status (complete, access_denied)
	ResolutionsTotal *prometheus.CounterVec

	// ResolutionDurationSeconds measures end-to-end resolve latency.
	// Labels: status
	ResolutionDurationSeconds *prometheus.HistogramVec

	// ExecutionsTotal counts execute calls.
	ExecutionsTotal prometheus.Counter

	// ExecutionDurationSeconds measures end-to-end execute latency.
	ExecutionDurationSeconds prometheus.Histogram

	// RetriesTotal counts retry attempts by backend.
	// Labels: backend
	RetriesTotal *prometheus.CounterVec

	// BreakerTransitionsTotal counts circuit state changes.
	// Labels: backend, from, to
	BreakerTransitionsTotal *prometheus.CounterVec

	// FallbacksTotal counts degradation fallback invocations by backend.
	// Labels: backend
	FallbacksTotal *prometheus.CounterVec

	// DegradedBackends is 1 while a backend is marked degraded.
	// Labels: backend
	DegradedBackends *prometheus.GaugeVec
}

// DefaultMetrics is the singleton instance. Initialized by InitMetrics.
var DefaultMetrics *Metrics

// InitMetrics creates and registers all metrics on the default registry.
// Call once at startup.
func InitMetrics() *Metrics {
	DefaultMetrics = &Metrics{
		ResolutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: resolutionSubsystem,
				Name:      "resolutions_total",
				Help:      "Total resolve calls by outcome status",
			},
			[]string{"status"},
		),

		ResolutionDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: resolutionSubsystem,
				Name:      "resolution_duration_seconds",
				Help:      "End-to-end resolve latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"status"},
		),

		ExecutionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: resolutionSubsystem,
				Name:      "executions_total",
				Help:      "Total execute calls",
			},
		),

		ExecutionDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: resolutionSubsystem,
				Name:      "execution_duration_seconds",
				Help:      "End-to-end execute latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
		),

		RetriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: resolutionSubsystem,
				Name:      "retries_total",
				Help:      "Total retry attempts by backend",
			},
			[]string{"backend"},
		),

		BreakerTransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: resolutionSubsystem,
				Name:      "breaker_transitions_total",
				Help:      "Total circuit breaker state transitions",
			},
			[]string{"backend", "from", "to"},
		),

		FallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: resolutionSubsystem,
				Name:      "fallbacks_total",
				Help:      "Total degradation fallback invocations by backend",
			},
			[]string{"backend"},
		),

		DegradedBackends: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: resolutionSubsystem,
				Name:      "degraded_backends",
				Help:      "1 while the backend is marked degraded",
			},
			[]string{"backend"},
		),
	}

	return DefaultMetrics
}

// -----------------------------------------------------------------------------
// resilience.Metrics implementation
// -----------------------------------------------------------------------------

// RecordRetry counts one retry attempt against a backend.
func (m *Metrics) RecordRetry(backend string) {
	m.RetriesTotal.WithLabelValues(backend).Inc()
}

// RecordBreakerTransition counts one circuit state change.
func (m *Metrics) RecordBreakerTransition(backend, from, to string) {
	m.BreakerTransitionsTotal.WithLabelValues(backend, from, to).Inc()
}

// RecordFallback counts one fallback invocation.
func (m *Metrics) RecordFallback(backend string) {
	m.FallbacksTotal.WithLabelValues(backend).Inc()
}

// SetDegraded flips the degraded gauge for a backend.
func (m *Metrics) SetDegraded(backend string, degraded bool) {
	v := 0.0
	if degraded {
		v = 1.0
	}
	m.DegradedBackends.WithLabelValues(backend).Set(v)
}

// -----------------------------------------------------------------------------
// orchestrator.Recorder implementation
// -----------------------------------------------------------------------------

// RecordResolution records one resolve outcome and its latency.
func (m *Metrics) RecordResolution(status string, duration time.Duration) {
	m.ResolutionsTotal.WithLabelValues(status).Inc()
	m.ResolutionDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordExecution records one execute call and its latency.
func (m *Metrics) RecordExecution(queries int, duration time.Duration) {
	m.ExecutionsTotal.Inc()
	m.ExecutionDurationSeconds.Observe(duration.Seconds())
}
