package checker

import (
	"context"
	"time"
)

// withRetry runs fn up to maxAttempts times with a fixed delay between
// attempts, stopping early on success or context cancellation. The last
// error is returned after the final attempt.
func withRetry(ctx context.Context, maxAttempts int, delay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
	}
	return err
}
