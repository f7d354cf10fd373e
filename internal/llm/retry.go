package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxAttempts = 3

type rateLimitError struct{}

func (e *rateLimitError) Error() string { return "rate limited" }

type authError struct {
	message string
}

func (e *authError) Error() string {
	return "authentication error: " + e.message
}

type serverError struct {
	statusCode int
	body       string
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error (status %d): %s", e.statusCode, e.body)
}

// IsAuthError checks if an error is an authentication error.
func IsAuthError(err error) bool {
	var ae *authError
	return errors.As(err, &ae)
}

func isRetryable(err error) bool {
	var rl *rateLimitError
	var se *serverError
	return errors.As(err, &rl) || errors.As(err, &se)
}

// retryWithBackoff runs fn with exponential backoff. Rate-limit and 5xx
// errors are retried up to maxAttempts total tries; auth and other
// errors fail immediately.
func retryWithBackoff(ctx context.Context, fn func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(time.Second),
			backoff.WithMaxInterval(30*time.Second),
		),
		maxAttempts-1,
	), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
