package counter

import (
	"context"
	"time"

	"erpcounter/internal/core/apperror"
)

// RetryPolicy configures the call-site retry boundary around GetNextCounter.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts (default 1: no retry).
	MaxAttempts int
	// Backoff is multiplied by the attempt number between attempts.
	Backoff time.Duration
}

// DefaultRetryPolicy returns the policy used by the HTTP and CLI callers.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     20 * time.Millisecond,
	}
}

// Retry runs fn until it succeeds, fails with a non-retryable error or the
// attempts are exhausted. Only serialization conflicts are retried: overflow,
// not-found and timeout errors are returned immediately.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = fn(ctx)
		if err == nil || !apperror.IsConcurrentModification(err) || attempt == attempts {
			return result, err
		}

		wait := time.Duration(attempt) * policy.Backoff
		select {
		case <-ctx.Done():
			return result, err
		case <-time.After(wait):
		}
	}
	return result, err
}
