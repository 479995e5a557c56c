package resilience

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryConfig configures the exponential backoff with jitter §7 specifies
// for transient dependency failures (embedding provider timeouts, vector
// index connection resets, LLM provider 5xx).
type RetryConfig struct {
	MaxAttempts uint64
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig matches §7's documented default policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 60 * time.Second}
}

// Retryable marks an error as worth retrying; anything not wrapped with
// this is treated as permanent and fails fast.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retry.RetryableError(err)
}

// Do runs fn with exponential backoff (doubling from cfg.BaseDelay, capped
// at cfg.MaxDelay), each delay shifted by a random jitter of up to
// cfg.BaseDelay/2 either way, for at most cfg.MaxAttempts attempts. fn must wrap transient errors with Retryable; anything
// else stops the retry loop immediately.
func Do(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	backoff := retry.NewExponential(cfg.BaseDelay)
	backoff = retry.WithMaxRetries(cfg.MaxAttempts-1, backoff)
	backoff = retry.WithCappedDuration(cfg.MaxDelay, backoff)
	backoff = retry.WithJitter(cfg.BaseDelay/2, backoff)
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		return fn(ctx)
	})
}
