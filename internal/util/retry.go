package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry calls fn up to maxAttempts times with exponential backoff starting at
// baseDelay. It returns nil on the first successful call, or the last error
// if all attempts fail. Errors wrapped with Permanent stop retrying at once.
// The function respects context cancellation between retries.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var b backoff.BackOff
	if baseDelay <= 0 {
		b = &backoff.ZeroBackOff{}
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = baseDelay
		eb.Multiplier = 2
		eb.RandomizationFactor = 0.2
		eb.MaxElapsedTime = 0
		b = eb
	}
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts-1)), ctx)

	return backoff.Retry(fn, b)
}

// Permanent wraps err so that Retry returns it without further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
