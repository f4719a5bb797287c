package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Default configuration values.
const (
	defaultMaxTokens   = 4096
	defaultTimeout     = 60 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 1 * time.Second
	maxBackoff         = 30 * time.Second
)

// Rate limiter defaults: 50 requests per minute.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// ErrExhausted marks a call whose retries ran out. Batch callers treat
// it as non-fatal: the failed chunk contributes no fields.
var ErrExhausted = errors.New("max retries exceeded")

// backoffDelay computes the delay before retry attempt n (1-based).
// The base delay doubles each attempt, is capped at maxBackoff, and
// carries +/-25% jitter to avoid thundering-herd retries.
func backoffDelay(attempt int) time.Duration {
	d := defaultBaseBackoff * time.Duration(1<<(attempt-1))
	if d > maxBackoff {
		d = maxBackoff
	}
	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * jitter)
}

// withRetries runs fn up to maxRetries+1 times, backing off between
// attempts. Non-retryable errors surface immediately.
func withRetries(ctx context.Context, maxRetries int, fn func() (Response, error)) (Response, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffDelay(attempt)):
			case <-ctx.Done():
				return Response{}, ctx.Err()
			}
		}

		resp, err := fn()
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return Response{}, err
		}
	}

	return Response{}, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}
