package provider

import (
	"context"
	"time"
)

// Policy controls retry behavior for transient provider failures.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultPolicy retries three times with exponential backoff starting at
// one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		Multiplier:   2,
	}
}

// Retry runs fn once and then up to MaxRetries more times, backing off
// between attempts. Errors the retryable predicate rejects are returned
// immediately; so is the final attempt's error. A nil predicate retries
// everything.
func Retry[T any](ctx context.Context, policy Policy, retryable func(error) bool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := policy.InitialDelay
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * policy.Multiplier)
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}
