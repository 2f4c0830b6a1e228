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
	"sync"
	"testing"
	"time"

	"github.com/ecp-platform/ecp/services/resolution/ecperr"
)

func TestCircuitState_String(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half_open"},
		{CircuitState(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("String() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("graph", BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute}, nil, nil)

	for i := 0; i < 3; i++ {
		if !cb.Allow() {
			t.Fatalf("call %d rejected while closed", i)
		}
		cb.RecordFailure(ecperr.NewStoreConnection("graph", "refused", nil))
	}

	if cb.State() != CircuitOpen {
		t.Errorf("state = %v, want open after threshold", cb.State())
	}

	// Rejection must be near-instant.
	start := time.Now()
	if cb.Allow() {
		t.Error("open circuit allowed a call before recovery timeout")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("rejection took %v, want near-instant", elapsed)
	}
}

func TestCircuitBreaker_HalfOpenSingleTrial(t *testing.T) {
	cb := NewCircuitBreaker("graph", BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 20 * time.Millisecond}, nil, nil)

	cb.Allow()
	cb.RecordFailure(ecperr.NewStoreConnection("graph", "refused", nil))
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	time.Sleep(30 * time.Millisecond)

	// Exactly one trial passes through.
	if !cb.Allow() {
		t.Fatal("trial call rejected after recovery timeout")
	}
	if cb.State() != CircuitHalfOpen {
		t.Errorf("state = %v, want half_open", cb.State())
	}
	if cb.Allow() {
		t.Error("second concurrent call allowed during half_open trial")
	}

	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("state = %v, want closed after trial success", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("vector", BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond}, nil, nil)

	cb.Allow()
	cb.RecordFailure(ecperr.NewStoreTimeout("vector", "search", time.Second))
	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("trial call rejected")
	}
	cb.RecordFailure(ecperr.NewStoreTimeout("vector", "search", time.Second))

	if cb.State() != CircuitOpen {
		t.Errorf("state = %v, want open after failed trial", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenCallerBugReleasesTrialSlot(t *testing.T) {
	cb := NewCircuitBreaker("policy", BreakerConfig{FailureThreshold: 2, RecoveryTimeout: 10 * time.Millisecond}, nil, nil)

	for i := 0; i < 2; i++ {
		cb.Allow()
		cb.RecordFailure(ecperr.NewStoreConnection("policy", "refused", nil))
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("trial call rejected after recovery timeout")
	}
	cb.RecordFailure(ecperr.NewInvalidQuery("q", "bad"))

	// A caller bug says nothing about backend health: the circuit stays
	// half_open, but the trial slot must be free for the next call.
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %v, want half_open after non-counted trial failure", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("trial slot not released after non-counted failure")
	}

	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("state = %v, want closed after trial success", cb.State())
	}
}

func TestCircuitBreaker_ValidationFailuresDoNotCount(t *testing.T) {
	cb := NewCircuitBreaker("semantic", BreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute}, nil, nil)

	for i := 0; i < 10; i++ {
		cb.Allow()
		cb.RecordFailure(ecperr.NewInvalidQuery("q", "bad"))
		cb.RecordFailure(ecperr.NewBusinessRuleViolation("rule", "broken"))
		cb.RecordFailure(ecperr.NewConceptNotFound("foo"))
	}

	if cb.State() != CircuitClosed {
		t.Errorf("state = %v, want closed: caller bugs are not health signals", cb.State())
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("registry", BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Minute}, nil, nil)

	cb.Allow()
	cb.RecordFailure(ecperr.NewStoreConnection("registry", "refused", nil))
	cb.Allow()
	cb.RecordFailure(ecperr.NewStoreConnection("registry", "refused", nil))
	cb.Allow()
	cb.RecordSuccess()

	stats := cb.Stats()
	if stats.Failures != 0 {
		t.Errorf("Failures = %d, want 0 after success", stats.Failures)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker("graph", BreakerConfig{FailureThreshold: 5, RecoveryTimeout: time.Minute}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if cb.Allow() {
				if n%2 == 0 {
					cb.RecordSuccess()
				} else {
					cb.RecordFailure(ecperr.NewStoreConnection("graph", "refused", nil))
				}
			}
		}(i)
	}
	wg.Wait()

	stats := cb.Stats()
	if stats.TotalCalls != 50 {
		t.Errorf("TotalCalls = %d, want 50", stats.TotalCalls)
	}
}

func TestBreakerRegistry_OneBreakerPerBackend(t *testing.T) {
	reg := NewBreakerRegistry(DefaultBreakerConfig(), nil, nil)

	a := reg.Get("graph")
	b := reg.Get("graph")
	c := reg.Get("vector")

	if a != b {
		t.Error("same backend returned distinct breakers")
	}
	if a == c {
		t.Error("distinct backends share a breaker")
	}
	if got := len(reg.Stats()); got != 2 {
		t.Errorf("Stats() length = %d, want 2", got)
	}
}

func TestBreakerRegistry_ResetAll(t *testing.T) {
	reg := NewBreakerRegistry(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute}, nil, nil)

	cb := reg.Get("graph")
	cb.Allow()
	cb.RecordFailure(ecperr.NewStoreConnection("graph", "refused", nil))
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	reg.ResetAll()
	if cb.State() != CircuitClosed {
		t.Errorf("state = %v, want closed after ResetAll", cb.State())
	}
}
