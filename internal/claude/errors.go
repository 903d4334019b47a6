package claude

import (
	"errors"
	"fmt"
	"time"
)

// AuthError indicates rejected credentials. Fatal: surfaced to the
// operator, never retried.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("claude: authentication failed (HTTP %d): %s", e.Status, e.Message)
}

// RateLimitedError indicates an upstream 429. Retryable after backoff.
type RateLimitedError struct {
	RetryAfter time.Duration // zero when the server sent no Retry-After
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("claude: rate limited, retry after %s", e.RetryAfter)
	}
	return "claude: rate limited"
}

// TimeoutError indicates the request exceeded its deadline. Retryable once.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("claude: request timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// InvalidResponseError indicates a malformed or empty completion.
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("claude: invalid response: %s", e.Reason)
}

// Retryable reports whether err is a transient generation failure that the
// caller may retry once.
func Retryable(err error) bool {
	var rl *RateLimitedError
	var to *TimeoutError
	var iv *InvalidResponseError
	return errors.As(err, &rl) || errors.As(err, &to) || errors.As(err, &iv)
}
