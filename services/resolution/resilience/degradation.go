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
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DegradationRecord describes one backend currently in degraded mode.
type DegradationRecord struct {
	Backend string    `json:"backend"`
	Reason  string    `json:"reason"`
	Since   time.Time `json:"since"`
}

// DegradationRegistry is the process-wide record of which backends are
// currently degraded. Entries are added when a fallback path is taken and
// removed on the first subsequent successful direct call to that backend.
// The API boundary reads this registry to annotate responses.
//
// Thread Safety: Safe for concurrent use.
type DegradationRegistry struct {
	logger  *slog.Logger
	metrics Metrics

	mu       sync.RWMutex
	degraded map[string]DegradationRecord
}

// NewDegradationRegistry creates an empty registry.
func NewDegradationRegistry(logger *slog.Logger, metrics Metrics) *DegradationRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &DegradationRegistry{
		logger:   logger,
		metrics:  metrics,
		degraded: make(map[string]DegradationRecord),
	}
}

// MarkDegraded records a backend as degraded. Idempotent: re-marking an
// already-degraded backend is a no-op and emits no second event.
func (r *DegradationRegistry) MarkDegraded(backend, reason string) {
	r.mu.Lock()
	if _, ok := r.degraded[backend]; ok {
		r.mu.Unlock()
		return
	}
	r.degraded[backend] = DegradationRecord{
		Backend: backend,
		Reason:  reason,
		Since:   time.Now(),
	}
	r.mu.Unlock()

	r.logger.Warn("backend entering degraded mode",
		slog.String("backend", backend),
		slog.String("reason", reason))
	r.metrics.SetDegraded(backend, true)
}

// MarkRecovered clears a backend's degraded state. Idempotent.
func (r *DegradationRegistry) MarkRecovered(backend string) {
	r.mu.Lock()
	if _, ok := r.degraded[backend]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.degraded, backend)
	r.mu.Unlock()

	r.logger.Info("backend recovered from degraded mode",
		slog.String("backend", backend))
	r.metrics.SetDegraded(backend, false)
}

// IsDegraded reports whether a backend is currently degraded.
func (r *DegradationRegistry) IsDegraded(backend string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.degraded[backend]
	return ok
}

// Degraded returns the currently degraded backend names, sorted for
// deterministic response annotation.
func (r *DegradationRegistry) Degraded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.degraded))
	for name := range r.degraded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Records returns full degradation records, sorted by backend name.
func (r *DegradationRegistry) Records() []DegradationRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]DegradationRecord, 0, len(r.degraded))
	for _, rec := range r.degraded {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Backend < records[j].Backend })
	return records
}

// Reset clears all degradation state. Intended for tests.
func (r *DegradationRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degraded = make(map[string]DegradationRecord)
}
