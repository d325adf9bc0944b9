package resilience

import "context"

// FallbackConfig configures a [Fallback] wrapper.
type FallbackConfig struct {
	// ShouldFallback decides whether a primary failure should trigger the
	// fallback. If nil, every non-cancellation primary error triggers it.
	// Returning false re-raises the primary error without invoking the
	// fallback at all.
	ShouldFallback func(err error) bool

	// OnFallback is called with the primary error just before the
	// fallback operation runs. Panics/errors are swallowed.
	OnFallback func(primaryErr error)

	// OnSuccess is called when the primary operation itself succeeds
	// (the fallback never runs). Panics/errors are swallowed.
	OnSuccess func()
}

// Fallback runs a secondary operation when a primary one fails (spec
// §4.9, C10).
type Fallback struct {
	cfg FallbackConfig
}

// NewFallback constructs a Fallback.
func NewFallback(cfg FallbackConfig) *Fallback {
	return &Fallback{cfg: cfg}
}

// Execute runs primary; on success it fires OnSuccess and returns. On a
// non-cancellation failure, if ShouldFallback (when set) returns false,
// the primary error is re-raised unchanged. Otherwise OnFallback fires
// and fallback runs; its success is returned, but if it also fails, the
// *primary's* error is re-raised — never the fallback's.
func (f *Fallback) Execute(ctx context.Context, primary func(context.Context) error, fallback func(context.Context, error) error) error {
	if err := checkCancelled(ctx); err != nil {
		return err
	}

	primaryErr := primary(ctx)
	if primaryErr == nil {
		f.fireOnSuccess()
		return nil
	}
	if IsCancellation(primaryErr) {
		return primaryErr
	}

	if f.cfg.ShouldFallback != nil && !f.cfg.ShouldFallback(primaryErr) {
		return primaryErr
	}

	f.fireOnFallback(primaryErr)

	if err := fallback(ctx, primaryErr); err != nil {
		return primaryErr
	}
	return nil
}

func (f *Fallback) fireOnSuccess() {
	if f.cfg.OnSuccess == nil {
		return
	}
	defer func() { _ = recover() }()
	f.cfg.OnSuccess()
}

func (f *Fallback) fireOnFallback(primaryErr error) {
	if f.cfg.OnFallback == nil {
		return
	}
	defer func() { _ = recover() }()
	f.cfg.OnFallback(primaryErr)
}
