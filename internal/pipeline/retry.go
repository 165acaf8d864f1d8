package pipeline

import (
	"context"
	"math"
	"time"
)

// RetryPolicy bounds how a worker retries one page
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns 3 attempts with 2s exponential backoff
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

// Attempts returns the number of attempts, never less than one
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the backoff before retry number attempt (1-based)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := time.Duration(float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt-1)))
	if p.MaxDelay > 0 && (delay > p.MaxDelay || delay < 0) {
		return p.MaxDelay
	}
	return delay
}

// Wait sleeps for the backoff of attempt or until ctx is done
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	delay := p.Delay(attempt)
	if delay == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
