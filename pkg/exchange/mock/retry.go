package mock

import (
	"context"
	"errors"
	"time"

	"lintas/pkg/core"
)

// Retry runs fn up to attempts times, sleeping delay between tries, and
// retries only connection and rate limit failures. It exists for tests that
// exercise failure injection; production callers own their retry policy.
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !core.IsConnectionError(err) && !core.IsRateLimitError(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		wait := delay
		var ve *core.VenueError
		if errors.As(err, &ve) && ve.RetryAfter > wait {
			wait = ve.RetryAfter
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
