package resilience

import (
	"context"
	"errors"
)

// errContextCancelled is the context-package error we treat as equivalent
// to an aborted CancellationToken when it carries no more specific cause.
var errContextCancelled = context.Canceled

// cancelledErr converts a context error observed at a blocking wait site
// into the library's ErrCancelled, preserving the original cause (the
// "reason" in spec terms) via errors.Join so errors.Is(err, ErrCancelled)
// and errors.Is(err, context.Cause(ctx)) both succeed; the cause is
// ctx.Err() unless the context was cancelled with a cause of its own.
func cancelledErr(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ctx.Err()
	}
	if cause == nil {
		return ErrCancelled
	}
	return errors.Join(ErrCancelled, cause)
}

// checkCancelled returns a non-nil error built from ctx's cancellation
// state if ctx is already done, else nil. Every blocking primitive entry
// point calls this before doing any other work: if the context is
// already done, fail with a cancellation error before touching any
// primitive-specific state.
func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return cancelledErr(ctx)
	default:
		return nil
	}
}

// waitContext races ctx.Done() against a channel close/send, returning a
// cancellation error if ctx wins. It is the shared "suspend, but stay
// cancellation-aware" primitive used by the rate limiter's WaitN and the
// retry backoff sleep.
func waitContext(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return cancelledErr(ctx)
	}
}
