// internal/errors/retry.go
package errors

import (
	"context"
	"math/rand"
	"time"
)

// BackoffPolicy is a value object describing how an operation is retried.
// It is shared by the engine and the platform adapters so retry behavior is
// configured in one place rather than nested into each request loop.
type BackoffPolicy struct {
	MaxAttempts   int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay" json:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor" json:"backoff_factor"`
	Jitter        float64       `yaml:"jitter" json:"jitter"` // fraction of delay, 0..1
}

// DefaultBackoffPolicy returns the policy applied when configuration leaves
// retry settings unset.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts:   3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        0.2,
	}
}

// Delay computes the sleep before the given attempt (1-based; attempt 1 has
// no delay).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := float64(p.BaseDelay)
	for i := 2; i < attempt; i++ {
		delay *= p.BackoffFactor
	}
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && delay > max {
		delay = max
	}
	if p.Jitter > 0 {
		spread := delay * p.Jitter
		delay += (rand.Float64()*2 - 1) * spread
		if delay < 0 {
			delay = 0
		}
	}
	return time.Duration(delay)
}

// Retry runs op until it succeeds, returns a non-retryable error, the policy
// is exhausted, or ctx is cancelled. The last error is returned on failure.
func Retry(ctx context.Context, policy BackoffPolicy, op func() error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if delay := policy.Delay(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}
