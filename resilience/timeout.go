package resilience

import (
	"context"
	"fmt"
	"time"
)

// TimeoutConfig configures a [Timeout] deadline guard.
type TimeoutConfig struct {
	// Duration is the maximum time allotted to the operation. Default:
	// 30 seconds. Must be > 0.
	Duration time.Duration

	// OnTimeout is called when the deadline wins the race, before
	// *TimeoutError is returned. Panics/errors are swallowed.
	OnTimeout func(d time.Duration)
}

// Timeout races an operation against a deadline.
type Timeout struct {
	cfg TimeoutConfig
}

// NewTimeout constructs a Timeout, applying defaults and validating
// bounds.
func NewTimeout(cfg TimeoutConfig) (*Timeout, error) {
	if cfg.Duration < 0 {
		return nil, fmt.Errorf("resilience: TimeoutConfig.Duration must be > 0, got %v", cfg.Duration)
	}
	if cfg.Duration == 0 {
		cfg.Duration = 30 * time.Second
	}
	return &Timeout{cfg: cfg}, nil
}

// Execute runs op with the configured deadline. If ctx is already
// cancelled, Execute fails immediately with a cancellation error without
// invoking op. On deadline expiry it returns a *TimeoutError and the
// context handed to op is cancelled so the operation can observe it and
// unwind. The internal deadline timer is released on every exit path.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := checkCancelled(ctx); err != nil {
		return err
	}

	deadlineCtx, cancel := context.WithTimeoutCause(ctx, t.cfg.Duration, fmt.Errorf("resilience: timeout after %s", t.cfg.Duration))
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(deadlineCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-deadlineCtx.Done():
		if ctx.Err() != nil {
			// The caller's own context was what actually fired, not our
			// deadline — propagate cancellation, not a timeout.
			return cancelledErr(ctx)
		}
		t.fireOnTimeout()
		return NewTimeoutError(t.cfg.Duration)
	}
}

func (t *Timeout) fireOnTimeout() {
	if t.cfg.OnTimeout == nil {
		return
	}
	defer func() { _ = recover() }()
	t.cfg.OnTimeout(t.cfg.Duration)
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.cfg
}

// ExecuteWithTimeout is a convenience one-shot wrapper equivalent to
// constructing a Timeout and calling Execute once.
func ExecuteWithTimeout(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	t, err := NewTimeout(TimeoutConfig{Duration: d})
	if err != nil {
		return err
	}
	return t.Execute(ctx, op)
}
