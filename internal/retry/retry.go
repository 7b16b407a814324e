// Package retry holds the single bounded-retry policy applied to every
// remote interaction: a fixed number of attempts with a fixed delay between
// them.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Do runs fn up to attempts times, sleeping delay between tries. Attempt
// counts below one are treated as one. The last error is returned wrapped
// with the attempt count; cancellation is returned as-is.
func Do(ctx context.Context, attempts int, delay time.Duration, logger *slog.Logger, op string, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		logger.Warn("attempt failed",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.String("error", lastErr.Error()))

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}
