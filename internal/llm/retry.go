package llm

import (
	"context"
	"time"
)

// RetryConfig parameterizes WithRetry. Zero values fall back to three
// attempts with a one second base delay.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	return c
}

// WithRetry runs fn with exponential backoff (base, 2*base, 4*base, ...).
// Auth errors abort immediately: retrying bad credentials only burns time.
// The context cancels waiting between attempts.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.BaseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if IsAuthError(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}
