package ratelimit

import (
	"context"
	"math"
	"time"

	"mkettler/groceryworker/logger"
)

// RetryConfig bounds a retried operation
type RetryConfig struct {
	MaxAttempts int
	BackoffBase float64
	MaxBackoff  time.Duration

	// ShouldRetry decides whether an error is worth another attempt.
	// Nil retries everything.
	ShouldRetry func(error) bool

	// Sleep overrides the inter-attempt sleep; tests substitute it
	Sleep func(context.Context, time.Duration) error
}

func (c *RetryConfig) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 1 {
		c.BackoffBase = 2
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = maxAdaptiveDelay
	}
	if c.Sleep == nil {
		c.Sleep = sleepCtx
	}
}

// Retry runs op up to MaxAttempts times, sleeping backoffBase^attempt
// seconds between attempts, and returns the last error on exhaustion.
func Retry(ctx context.Context, cfg RetryConfig, name string, op func() error) error {
	cfg.applyDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := time.Duration(math.Pow(cfg.BackoffBase, float64(attempt)) * float64(time.Second))
		if delay > cfg.MaxBackoff {
			delay = cfg.MaxBackoff
		}

		logger.Warn("%s failed (attempt %d/%d), retrying in %v: %v",
			name, attempt, cfg.MaxAttempts, delay, lastErr)

		if err := cfg.Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// RetryVal is Retry for operations that produce a value
func RetryVal[T any](ctx context.Context, cfg RetryConfig, name string, op func() (T, error)) (T, error) {
	var result T
	err := Retry(ctx, cfg, name, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	return result, err
}
