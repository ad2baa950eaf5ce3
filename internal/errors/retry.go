package errors

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig parameterizes WithRetry per call site.
type RetryConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool

	// Recoverable overrides the default recoverability check. When it
	// returns false for an error, WithRetry stops immediately.
	Recoverable func(error) bool
}

// DefaultRetryConfig is the storage-layer default: 3 retries, 1s base,
// exponential doubling capped at 30s, jittered.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		BaseDelay:       time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// recoverable applies the configured check, defaulting to the error's own
// classification when it is a ProcessingError and to retryable otherwise.
func (c RetryConfig) recoverable(err error) bool {
	if c.Recoverable != nil {
		return c.Recoverable(err)
	}
	var pe *ProcessingError
	if As(err, &pe) {
		return pe.Recoverable
	}
	return true
}

// Delay computes the backoff before retry attempt n (0-based):
// min(base * exponentialBase^n, maxDelay), optionally jittered by a
// uniform factor in [0.5, 1.0).
func (c RetryConfig) Delay(attempt int) time.Duration {
	base := c.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	expBase := c.ExponentialBase
	if expBase <= 1 {
		expBase = 2.0
	}

	d := time.Duration(float64(base) * math.Pow(expBase, float64(attempt)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	if c.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
	}
	return d
}

// WithRetry runs fn up to MaxRetries+1 times with exponential backoff
// between attempts. It stops immediately when the error is classified as
// unrecoverable or the context is cancelled, and returns the last error
// once attempts are exhausted. The retry count is recorded on the error
// when it is a ProcessingError.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var pe *ProcessingError
		if As(lastErr, &pe) {
			pe.RetryCount = attempt
		}

		if !cfg.recoverable(lastErr) {
			return lastErr
		}

		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(cfg.Delay(attempt)):
		case <-ctx.Done():
			return lastErr
		}
	}

	return lastErr
}
