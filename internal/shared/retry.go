package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how transient API failures are retried.
//
// The policy is injected into every network-calling component rather than
// hidden inside wrapper calls, keeping retry behavior testable without real
// network traffic.
type RetryPolicy struct {
	MaxAttempts     int           // Total attempts including the first; values <= 0 mean a single attempt
	InitialInterval time.Duration // First backoff interval (default 500ms)
	MaxInterval     time.Duration // Backoff ceiling (default 10s)
}

// DefaultRetryPolicy returns the policy applied to provider calls when the
// caller does not supply one: three attempts with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Do runs op, retrying while it fails with a transient error.
//
// Non-retryable errors and the final attempt's error are returned unmodified.
// Provider Retry-After hints stretch the computed backoff interval but never
// shrink it. Context cancellation during a wait surfaces as [ErrTimeout].
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	bo.MaxElapsedTime = 0 // bounded by attempts, not wall time
	bo.Reset()

	var err error
	for attempt := 1; ; attempt++ {
		if err = op(); err == nil || !Retryable(err) || attempt >= attempts {
			return err
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		if hint, ok := RetryAfterHint(err); ok && hint > wait {
			wait = hint
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		case <-time.After(wait):
		}
	}
}
