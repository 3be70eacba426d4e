// internal/errors/errors_test.go
package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestClassifyStatusCodes(t *testing.T) {
	tests := []struct {
		status   int
		expected Type
	}{
		{http.StatusTooManyRequests, TypeRateLimited},
		{http.StatusForbidden, TypeBlocked},
		{http.StatusUnauthorized, TypeBlocked},
		{http.StatusBadGateway, TypeNetwork},
		{http.StatusInternalServerError, TypeNetwork},
		{http.StatusNotFound, TypeParse},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := Classify(nil, tt.status)
			if err.Type != tt.expected {
				t.Errorf("Classify(nil, %d).Type = %s, want %s", tt.status, err.Type, tt.expected)
			}
		})
	}
}

func TestClassifyTimeout(t *testing.T) {
	err := Classify(context.DeadlineExceeded, 0)
	if err.Type != TypeNetwork {
		t.Errorf("timeout classified as %s, want %s", err.Type, TypeNetwork)
	}
}

func TestPenalizesProxy(t *testing.T) {
	if !PenalizesProxy(New(TypeRateLimited, "throttled")) {
		t.Error("rate-limited errors must penalize the proxy")
	}
	if !PenalizesProxy(New(TypeBlocked, "denied")) {
		t.Error("blocked errors must penalize the proxy")
	}
	if PenalizesProxy(New(TypeParse, "bad shape")) {
		t.Error("parse errors must not penalize the proxy")
	}
	if PenalizesProxy(New(TypeNetwork, "timeout")) {
		t.Error("single network errors must not penalize the proxy")
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(New(TypeFatal, "storage gone")) {
		t.Error("fatal error not detected")
	}
	if IsFatal(New(TypeParse, "bad item")) {
		t.Error("parse error must not be fatal")
	}
	wrapped := fmt.Errorf("outer: %w", New(TypeFatal, "inner"))
	if !IsFatal(wrapped) {
		t.Error("fatal classification must survive wrapping")
	}
}

func TestBackoffPolicyDelay(t *testing.T) {
	policy := BackoffPolicy{
		MaxAttempts:   5,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      1 * time.Second,
		BackoffFactor: 2.0,
	}

	if d := policy.Delay(1); d != 0 {
		t.Errorf("first attempt delay = %v, want 0", d)
	}
	if d := policy.Delay(2); d != 100*time.Millisecond {
		t.Errorf("second attempt delay = %v, want 100ms", d)
	}
	if d := policy.Delay(3); d != 200*time.Millisecond {
		t.Errorf("third attempt delay = %v, want 200ms", d)
	}
	if d := policy.Delay(10); d != 1*time.Second {
		t.Errorf("capped delay = %v, want 1s", d)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultBackoffPolicy(), func() error {
		calls++
		return New(TypeParse, "shape mismatch")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("non-retryable error retried %d times", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	policy := BackoffPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, BackoffFactor: 1}
	calls := 0
	err := Retry(context.Background(), policy, func() error {
		calls++
		return New(TypeNetwork, "flaky")
	})
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryEventualSuccess(t *testing.T) {
	policy := BackoffPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, BackoffFactor: 1}
	calls := 0
	err := Retry(context.Background(), policy, func() error {
		calls++
		if calls < 3 {
			return New(TypeNetwork, "flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := BackoffPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, BackoffFactor: 1}
	calls := 0
	err := Retry(ctx, policy, func() error {
		calls++
		return New(TypeNetwork, "flaky")
	})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
