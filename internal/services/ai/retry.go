// File: internal/services/ai/retry.go
package ai

import (
	"context"
	"math/rand"
	"time"

	"github.com/trialforge/protocol-agent/internal/services"
)

type retryService struct {
	config *Config
	logger services.Logger
}

// retryWithTimeout runs call until it succeeds, retries are exhausted, or
// the overall timeout elapses. Context cancellation is never retried.
func (r *retryService) retryWithTimeout(parent context.Context, call func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, r.config.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Debug("retrying operation", "attempt", attempt, "max_retries", r.config.MaxRetries)
			select {
			case <-ctx.Done():
				return NewProviderError("retry", "operation timed out during retry", ctx.Err())
			case <-time.After(backoff(r.config.RetryDelay, attempt)):
			}
		}

		err := call(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("operation succeeded after retry", "attempts", attempt+1)
			}
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return NewProviderError("retry", "operation timed out", ctx.Err())
		}
		if attempt < r.config.MaxRetries {
			r.logger.Warn("operation failed, retrying", "attempt", attempt+1, "error", err)
		}
	}

	r.logger.Error("operation failed after all retries", "attempts", r.config.MaxRetries+1, "error", lastErr)
	return lastErr
}

// backoff doubles the base delay per attempt with up to ±25% jitter,
// capped at 30 seconds.
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2)) - d/4
	return d + jitter
}
