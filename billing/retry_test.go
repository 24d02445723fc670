package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
)

func conflictRetry(maxAttempts int) billing.RetryPolicy {
	return billing.RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     billing.NoBackoff(),
		Retryable:   billing.IsRetryable,
	}
}

func TestRetry_SucceedsWithoutRetrying(t *testing.T) {
	calls := 0
	err := conflictRetry(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RecoversFromTransientConflict(t *testing.T) {
	// GIVEN: the first two attempts hit a stale-version conflict
	// THEN: the third succeeds and no error escapes

	calls := 0
	err := conflictRetry(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return billing.ErrConcurrentModification
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAfterMaxAttempts(t *testing.T) {
	// Three attempts total, not three retries.
	calls := 0
	err := conflictRetry(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return billing.ErrConcurrentModification
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, billing.ErrRetriesExhausted)
	assert.ErrorIs(t, err, billing.ErrConcurrentModification, "the last conflict stays inspectable")

	var exhausted *billing.RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestRetry_NonRetryableAbortsImmediately(t *testing.T) {
	permanent := errors.New("invoice number already used")

	calls := 0
	err := conflictRetry(3).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls, "validation-class failures must not burn retries")
	assert.NotErrorIs(t, err, billing.ErrRetriesExhausted)
}

func TestRetry_ContextCancellationStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := billing.RetryPolicy{
		MaxAttempts: 3,
		Backoff:     billing.LinearBackoff(time.Hour), // would block without cancellation
		Retryable:   billing.IsRetryable,
	}

	calls := 0
	started := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func(ctx context.Context) error {
			calls++
			started <- struct{}{}
			return billing.ErrConcurrentModification
		})
	}()

	<-started
	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestLinearBackoff_GrowsWithAttempt(t *testing.T) {
	backoff := billing.LinearBackoff(50 * time.Millisecond)

	assert.Equal(t, 50*time.Millisecond, backoff(1))
	assert.Equal(t, 100*time.Millisecond, backoff(2))
	assert.Equal(t, 150*time.Millisecond, backoff(3))
}

func TestDefaultInvoiceRetry_ClassifiesConflictsOnly(t *testing.T) {
	policy := billing.DefaultInvoiceRetry()

	assert.Equal(t, 3, policy.MaxAttempts)
	assert.True(t, policy.Retryable(billing.ErrConcurrentModification))
	assert.False(t, policy.Retryable(billing.ErrValidation))
	assert.False(t, policy.Retryable(errors.New("network down")))
}
