package helper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryOptions configures Retry.
type RetryOptions struct {
	// Attempts is the total number of tries, at least one.
	Attempts int
	// Timeout is the deadline applied to every single attempt. Zero disables it.
	Timeout time.Duration
	// IsTransient decides whether a failed attempt may be retried.
	// A nil IsTransient retries every error.
	IsTransient func(error) bool
	// Reconnect is called between two attempts.
	Reconnect func() error
	Logger    *slog.Logger
}

// Retry runs fn until it succeeds, fails with a non transient error or runs out
// of attempts. Between attempts the connection is reset through Reconnect.
// There is no backoff between attempts.
//
// Cancellation of ctx is never retried and is reported as ErrCanceled.
// Exhausted attempts are reported as ErrTransientStore wrapping the last error.
func Retry(ctx context.Context, operation string, opts RetryOptions, fn func(ctx context.Context) error) error {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return NewError(operation, fmt.Errorf("%w: %v", ErrCanceled, err))
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if opts.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		}
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return NewError(operation, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err()))
		}
		if errors.Is(err, ErrValidation) {
			return NewError(operation, err)
		}
		if opts.IsTransient != nil && !opts.IsTransient(err) {
			return NewError(operation, err)
		}

		lastErr = err
		logger.Warn(
			"Store call failed",
			slog.String("operation", operation),
			slog.Int("attempt", attempt),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)

		if attempt < attempts && opts.Reconnect != nil {
			if rErr := opts.Reconnect(); rErr != nil {
				logger.Warn("Reconnect failed", slog.String("operation", operation), slog.String("error", rErr.Error()))
			}
		}
	}

	return NewError(operation, fmt.Errorf("%w: %w", ErrTransientStore, lastErr))
}
