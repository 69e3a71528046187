package ai

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy retries a provider call with exponential backoff. Attempts
// that fail with a non-retryable class (bad credentials) stop immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy matches the pipeline defaults: three attempts, one
// second base delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Do runs fn until it succeeds, exhausts MaxAttempts, hits a non-retryable
// failure, or the context ends. The delay before retry i (counting from
// zero) is BaseDelay shifted left i times.
func (r RetryPolicy) Do(ctx context.Context, logger *zap.Logger, fn func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	base := r.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return classifyTransportError(err, "")
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		delay := base << (attempt - 1)
		logger.Debug("Retrying after failure",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay),
			zap.String("class", string(ClassOf(lastErr))),
			zap.Error(lastErr))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return classifyTransportError(ctx.Err(), "")
		case <-timer.C:
		}
	}
	return lastErr
}
