package provider

import (
	"context"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/remote/config"
)

// DoWithRetry calls fn until it succeeds, returns a non-retryable error, or
// cfg.MaxAttempts is reached. Delays double from InitialDelay up to MaxDelay.
func DoWithRetry[T any](ctx context.Context, cfg config.RetryConfig, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)
	delay := cfg.InitialDelay
	var lastErr error
	for i := range attempts {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsRetryable(err) || i == attempts-1 {
			break
		}
		log.WithFunc("provider.DoWithRetry").Debugf(ctx, "%s attempt %d/%d: %v, retrying in %s", op, i+1, attempts, err, delay)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return zero, lastErr
}

// Retry is DoWithRetry for calls without a result.
func Retry(ctx context.Context, cfg config.RetryConfig, op string, fn func(context.Context) error) error {
	_, err := DoWithRetry(ctx, cfg, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
