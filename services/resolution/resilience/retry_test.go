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
	"testing"
	"time"

	"github.com/ecp-platform/ecp/services/resolution/ecperr"
)

func TestIsRetryable_Classification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"store connection", ecperr.NewStoreConnection("graph", "refused", nil), true},
		{"store timeout", ecperr.NewStoreTimeout("graph", "query", time.Second), true},
		{"store query", ecperr.NewStoreQuery("graph", "MATCH", "syntax"), false},
		{"concept not found", ecperr.NewConceptNotFound("foo"), false},
		{"ambiguous concept", ecperr.NewAmbiguousConcept("rev", []string{"a", "b"}), false},
		{"invalid query", ecperr.NewInvalidQuery("q", "bad"), false},
		{"data quality", ecperr.NewDataQuality("null_rate", 0.4, 0.1), false},
		{"business rule", ecperr.NewBusinessRuleViolation("r1", "broken"), false},
		{"insufficient permissions", ecperr.NewInsufficientPermissions("admin", "analyst"), false},
		{"policy denied", ecperr.NewPolicyDenied("authz", "tier"), false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"timeout substring", errors.New("dial tcp: i/o timeout"), true},
		{"connection substring", errors.New("connection reset by peer"), true},
		{"temporary substring", errors.New("temporary failure in name resolution"), true},
		{"unavailable substring", errors.New("service unavailable"), true},
		{"overloaded substring", errors.New("backend overloaded"), true},
		{"rate limit substring", errors.New("rate limit exceeded"), true},
		{"too many requests substring", errors.New("too many requests"), true},
		{"unclassified", errors.New("something odd happened"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type statusErr int

func (s statusErr) Error() string   { return "http failure" }
func (s statusErr) StatusCode() int { return int(s) }

func TestIsRetryable_StatusCodes(t *testing.T) {
	if !IsRetryable(statusErr(503)) {
		t.Error("503 should be retryable")
	}
	if IsRetryable(statusErr(404)) {
		t.Error("404 should not be retryable")
	}
}

func TestRetrier_NonRetryableSingleAttempt(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxAttempts: 5, MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond}, nil, nil)

	calls := 0
	err := r.Do(context.Background(), "graph", func(ctx context.Context) error {
		calls++
		return ecperr.NewInvalidQuery("q", "bad")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want exactly 1 for validation-class failure", calls)
	}
}

func TestRetrier_RetriesUpToMaxAttempts(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxAttempts: 3, MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond}, nil, nil)

	calls := 0
	cause := ecperr.NewStoreConnection("graph", "refused", nil)
	err := r.Do(context.Background(), "graph", func(ctx context.Context) error {
		calls++
		return cause
	})

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	// The last failure propagates unchanged.
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want the original failure", err)
	}
}

func TestRetrier_SucceedsMidway(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxAttempts: 4, MinWait: time.Millisecond, MaxWait: 5 * time.Millisecond}, nil, nil)

	calls := 0
	err := r.Do(context.Background(), "vector", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return ecperr.NewStoreTimeout("vector", "search", time.Second)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetrier_BackoffNonDecreasingAndBounded(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxAttempts: 6, MinWait: 10 * time.Millisecond, MaxWait: 40 * time.Millisecond}, nil, nil)

	prev := time.Duration(0)
	for attempt := 1; attempt <= 5; attempt++ {
		wait := r.backoff(attempt)
		if wait < prev-5*time.Millisecond { // allow for jitter variance
			t.Errorf("backoff(%d) = %v, decreased below previous %v", attempt, wait, prev)
		}
		if wait > r.config.MaxWait+r.config.MinWait {
			t.Errorf("backoff(%d) = %v, exceeds cap %v plus jitter", attempt, wait, r.config.MaxWait)
		}
		prev = wait
	}
}

func TestRetrier_ContextCancelAbandonsLoop(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxAttempts: 10, MinWait: 50 * time.Millisecond, MaxWait: 100 * time.Millisecond}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, "graph", func(ctx context.Context) error {
			calls++
			if calls == 1 {
				cancel()
			}
			return ecperr.NewStoreConnection("graph", "refused", nil)
		})
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected the observed failure, got nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not abandon after cancellation")
	}
}
