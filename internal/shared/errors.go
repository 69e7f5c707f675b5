package shared

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Configuration errors (pre-flight, fatal)
	ErrConfiguration = fmt.Errorf("invalid configuration")

	// Authentication errors (fatal unless the token refresh succeeds transparently)
	ErrAuth = fmt.Errorf("authentication failed")

	// Transient API errors (rate limiting, network failure; retryable)
	ErrTransient = fmt.Errorf("transient API error")

	// Provider contract violations (malformed payloads; fatal)
	ErrUnexpectedResponse = fmt.Errorf("unexpected API response")

	// Provider quota exhaustion (fatal, non-retryable)
	ErrQuotaExceeded = fmt.Errorf("quota exceeded")

	// Recipient rejected by the email service (fatal, non-retryable)
	ErrInvalidRecipient = fmt.Errorf("invalid recipient")

	// Invocation deadline exceeded (fatal, partial completion possible)
	ErrTimeout = fmt.Errorf("operation timed out")
)

// Retryable reports whether err may succeed on a later attempt.
//
// Only transient conditions qualify; every other kind propagates unmodified
// to the orchestrator.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// RetryAfterError wraps a transient error with a provider-supplied wait hint
// (e.g., the Retry-After header on an HTTP 429 response).
type RetryAfterError struct {
	After time.Duration
	Err   error
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.After)
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// RetryAfterHint returns the provider wait hint attached to err, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var rae *RetryAfterError
	if errors.As(err, &rae) && rae.After > 0 {
		return rae.After, true
	}
	return 0, false
}
