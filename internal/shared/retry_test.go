package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestRetryPolicy(t *testing.T) {
	t.Run("TransientThenSuccess", func(t *testing.T) {
		calls := 0
		err := fastPolicy(3).Do(context.Background(), func() error {
			calls++
			if calls < 3 {
				return fmt.Errorf("%w: simulated rate limit", ErrTransient)
			}
			return nil
		})

		if err != nil {
			t.Fatalf("expected success after retries, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected 3 attempts, got %d", calls)
		}
	})

	t.Run("NonRetryableFailsImmediately", func(t *testing.T) {
		calls := 0
		err := fastPolicy(5).Do(context.Background(), func() error {
			calls++
			return fmt.Errorf("%w: contract change", ErrUnexpectedResponse)
		})

		if !errors.Is(err, ErrUnexpectedResponse) {
			t.Fatalf("expected unwrapped non-retryable error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("non-retryable error should not be retried, got %d attempts", calls)
		}
	})

	t.Run("AttemptsExhausted", func(t *testing.T) {
		calls := 0
		err := fastPolicy(3).Do(context.Background(), func() error {
			calls++
			return fmt.Errorf("%w: still down", ErrTransient)
		})

		if !errors.Is(err, ErrTransient) {
			t.Fatalf("expected final transient error, got %v", err)
		}
		if calls != 3 {
			t.Errorf("expected exactly 3 attempts, got %d", calls)
		}
	})

	t.Run("ZeroAttemptsMeansSingleTry", func(t *testing.T) {
		calls := 0
		_ = RetryPolicy{}.Do(context.Background(), func() error {
			calls++
			return fmt.Errorf("%w: nope", ErrTransient)
		})
		if calls != 1 {
			t.Errorf("expected a single attempt, got %d", calls)
		}
	})

	t.Run("RetryAfterHintStretchesWait", func(t *testing.T) {
		hint := 30 * time.Millisecond
		calls := 0
		start := time.Now()
		err := fastPolicy(2).Do(context.Background(), func() error {
			calls++
			if calls == 1 {
				return &RetryAfterError{
					After: hint,
					Err:   fmt.Errorf("%w: 429", ErrTransient),
				}
			}
			return nil
		})

		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if elapsed := time.Since(start); elapsed < hint {
			t.Errorf("expected wait of at least %v, waited %v", hint, elapsed)
		}
	})

	t.Run("ContextCancelledDuringWait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		policy := RetryPolicy{MaxAttempts: 2, InitialInterval: time.Minute}

		errCh := make(chan error, 1)
		go func() {
			errCh <- policy.Do(ctx, func() error {
				return fmt.Errorf("%w: down", ErrTransient)
			})
		}()

		cancel()
		select {
		case err := <-errCh:
			if !errors.Is(err, ErrTimeout) {
				t.Errorf("expected ErrTimeout on cancellation, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("retry did not observe cancellation")
		}
	})
}

func TestRetryAfterHint(t *testing.T) {
	base := fmt.Errorf("%w: 429", ErrTransient)
	wrapped := fmt.Errorf("history fetch: %w", &RetryAfterError{After: 5 * time.Second, Err: base})

	if !Retryable(wrapped) {
		t.Error("hint-carrying error should remain retryable")
	}

	after, ok := RetryAfterHint(wrapped)
	if !ok || after != 5*time.Second {
		t.Errorf("expected 5s hint, got %v (ok=%v)", after, ok)
	}

	if _, ok := RetryAfterHint(base); ok {
		t.Error("plain transient error should carry no hint")
	}
}
