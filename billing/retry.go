/*
retry.go - Named, parameterized retry policy for write-after-read operations

PURPOSE:
  Invoice creation collides with concurrent edits to the same record: the
  backing store's optimistic check rejects the stale write. Rather than an
  ad hoc loop string-matching error messages at the call site, the policy
  is a reusable value: max attempts, a backoff function, and a classifier
  deciding which errors are worth retrying.

BOUNDS:
  The backoff is the only intentional blocking delay in the engine and is
  bounded: at most MaxAttempts attempts, linear backoff between them. A
  non-retryable error aborts immediately. Exhausting all attempts surfaces
  RetriesExhaustedError - a terminal failure, distinct from validation.

USAGE:
  policy := billing.RetryPolicy{
      MaxAttempts: 3,
      Backoff:     billing.LinearBackoff(50 * time.Millisecond),
      Retryable:   billing.IsRetryable,
  }
  err := policy.Do(ctx, func(ctx context.Context) error { ... })
*/
package billing

import (
	"context"
	"time"
)

// BackoffFunc maps a 1-based attempt number to the delay before the next
// attempt.
type BackoffFunc func(attempt int) time.Duration

// LinearBackoff waits attempt x step: step, 2*step, 3*step, ...
func LinearBackoff(step time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// NoBackoff retries immediately. Useful in tests.
func NoBackoff() BackoffFunc {
	return func(int) time.Duration { return 0 }
}

// RetryPolicy retries an operation on a bounded schedule as long as the
// classifier approves the error.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Retryable   func(error) bool
}

// DefaultInvoiceRetry is the policy applied to invoice creation.
func DefaultInvoiceRetry() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(50 * time.Millisecond),
		Retryable:   IsRetryable,
	}
}

// Do runs op up to MaxAttempts times. A nil result or a non-retryable error
// returns immediately; a retryable error on the final attempt is wrapped in
// RetriesExhaustedError. The ctx cancels waiting between attempts.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		if p.Backoff != nil {
			if delay := p.Backoff(attempt); delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}
	}
	return &RetriesExhaustedError{Attempts: attempts, Last: lastErr}
}
