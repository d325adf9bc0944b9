package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTimeout_SucceedsWithinDeadline(t *testing.T) {
	to, err := NewTimeout(TimeoutConfig{Duration: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewTimeout() error = %v", err)
	}

	err = to.Execute(context.Background(), func(context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
}

func TestTimeout_ExpiresWhenOpExceedsDuration(t *testing.T) {
	var firedDur time.Duration
	to, _ := NewTimeout(TimeoutConfig{
		Duration:  20 * time.Millisecond,
		OnTimeout: func(d time.Duration) { firedDur = d },
	})

	err := to.Execute(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Execute() error = %v, want *TimeoutError", err)
	}
	if firedDur != 20*time.Millisecond {
		t.Errorf("OnTimeout fired with %v, want 20ms", firedDur)
	}
}

func TestTimeout_PropagatesOperationError(t *testing.T) {
	to, _ := NewTimeout(TimeoutConfig{Duration: time.Second})
	err := to.Execute(context.Background(), func(context.Context) error {
		return errBoom
	})
	if err != errBoom {
		t.Errorf("Execute() error = %v, want errBoom", err)
	}
}

func TestTimeout_AlreadyCancelledContextShortCircuits(t *testing.T) {
	to, _ := NewTimeout(TimeoutConfig{Duration: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := to.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if called {
		t.Error("op was invoked despite already-cancelled context")
	}
	if !IsCancellation(err) {
		t.Errorf("Execute() error = %v, want cancellation", err)
	}
}

func TestTimeout_CallerCancellationDistinctFromTimeout(t *testing.T) {
	to, _ := NewTimeout(TimeoutConfig{Duration: time.Second})
	ctx, cancel := context.WithCancel(context.Background())

	err := to.Execute(ctx, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		t.Error("Execute() returned *TimeoutError for caller cancellation, want cancellation error")
	}
	if !IsCancellation(err) {
		t.Errorf("Execute() error = %v, want cancellation", err)
	}
}

func TestExecuteWithTimeout(t *testing.T) {
	err := ExecuteWithTimeout(context.Background(), 50*time.Millisecond, func(context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("ExecuteWithTimeout() error = %v, want nil", err)
	}
}
