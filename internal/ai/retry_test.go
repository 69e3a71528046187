package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetryPolicy_SucceedsFirstTry(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), zap.NewNop(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_TransientThenSuccess(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 20 * time.Millisecond}

	calls := 0
	start := time.Now()
	err := policy.Do(context.Background(), zap.NewNop(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return NewProviderError(FailureTransientNetwork, "gemini", "connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond, "backoff must wait at least the base delay")
}

func TestRetryPolicy_UnauthenticatedNotRetried(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), zap.NewNop(), func(ctx context.Context) error {
		calls++
		return NewProviderError(FailureUnauthenticated, "gemini", "bad key")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "bad credentials must not be retried")
	assert.Equal(t, FailureUnauthenticated, ClassOf(err))
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	err := policy.Do(context.Background(), zap.NewNop(), func(ctx context.Context) error {
		calls++
		return NewProviderError(FailureRateLimited, "gemini", "quota")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, FailureRateLimited, ClassOf(err))
}

func TestRetryPolicy_BackoffDoubles(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 20 * time.Millisecond}

	start := time.Now()
	err := policy.Do(context.Background(), zap.NewNop(), func(ctx context.Context) error {
		return NewProviderError(FailureTransientNetwork, "gemini", "flaky")
	})

	require.Error(t, err)
	// Two waits: base, then base doubled.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRetryPolicy_ContextCanceledDuringBackoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	start := time.Now()
	err := policy.Do(ctx, zap.NewNop(), func(ctx context.Context) error {
		calls++
		return NewProviderError(FailureTransientNetwork, "gemini", "flaky")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, FailureTransientNetwork, ClassOf(err), "abandonment counts as transient")
	assert.Less(t, time.Since(start), 500*time.Millisecond, "must give up without sitting out the full backoff")
}

func TestRetryPolicy_CanceledBeforeFirstAttempt(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := policy.Do(ctx, zap.NewNop(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, 0, calls)
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, time.Second, policy.BaseDelay)
}
