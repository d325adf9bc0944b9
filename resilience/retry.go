package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy selects how Retry's delay grows between attempts.
type BackoffStrategy int

const (
	// BackoffExponential multiplies InitialDelay by Multiplier^(attempt-1).
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear multiplies InitialDelay by attempt.
	BackoffLinear
	// BackoffConstant always uses InitialDelay.
	BackoffConstant
)

// maxRetryDelay is the absolute ceiling on any computed delay, regardless
// of MaxDelay.
const maxRetryDelay = time.Hour

// RetryConfig configures the [Retry] attempt loop.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Default: 3. Must be >= 1.
	MaxAttempts int

	// InitialDelay is the base delay used by every strategy. Default:
	// 100ms. Must be > 0.
	InitialDelay time.Duration

	// MaxDelay caps the computed delay before jitter. Default: unset
	// (only the absolute 1-hour ceiling applies).
	MaxDelay time.Duration

	// Multiplier is the exponential-backoff growth factor. Default: 2.0.
	Multiplier float64

	// Strategy selects the backoff shape. Default: BackoffExponential.
	Strategy BackoffStrategy

	// Jitter, when true, scales each computed delay by a uniform factor
	// in [0.5, 1.0] so it never increases past the clamped value.
	// Default: false.
	Jitter bool

	// IsRetryable decides whether an error should trigger another
	// attempt. Precedence: this field, if set, wins over an error
	// implementing the Retryable() bool marker, which in turn wins
	// over the default of retrying every non-nil error.
	IsRetryable func(err error) bool

	// OnRetry is called before each sleep, with the 1-indexed attempt
	// that just failed, its error, and the delay about to be taken.
	// Panics/errors from OnRetry are swallowed and never propagate.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry runs an operation with configurable backoff.
type Retry struct {
	cfg RetryConfig
}

// NewRetry constructs a Retry, applying defaults and validating bounds.
func NewRetry(cfg RetryConfig) (*Retry, error) {
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("resilience: RetryConfig.MaxAttempts must be >= 1, got %d", cfg.MaxAttempts)
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay < 0 {
		return nil, fmt.Errorf("resilience: RetryConfig.InitialDelay must be > 0, got %v", cfg.InitialDelay)
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.Multiplier < 0 {
		return nil, fmt.Errorf("resilience: RetryConfig.Multiplier must be > 0, got %v", cfg.Multiplier)
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}
	return &Retry{cfg: cfg}, nil
}

// Execute runs op, retrying on failure per the configured strategy. It
// returns nil on the first success, the operation's error unmodified if
// classified non-retryable before the last attempt, a cancellation error
// if ctx aborts, or a *MaxAttemptsError wrapping the last failure once
// MaxAttempts is exhausted (the last attempt's error is wrapped whether
// or not it is retryable).
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := checkCancelled(ctx); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if IsCancellation(err) {
			return err
		}
		lastErr = err

		if attempt == r.cfg.MaxAttempts {
			break
		}
		if !r.isRetryable(err) {
			return err
		}

		delay := r.delay(attempt)
		r.fireOnRetry(attempt, err, delay)

		timer := time.NewTimer(delay)
		werr := waitContext(ctx, timer.C)
		timer.Stop()
		if werr != nil {
			return werr
		}
	}

	return NewMaxAttemptsError(r.cfg.MaxAttempts, lastErr)
}

// isRetryable applies the precedence order documented on
// RetryConfig.IsRetryable.
func (r *Retry) isRetryable(err error) bool {
	if r.cfg.IsRetryable != nil {
		return r.cfg.IsRetryable(err)
	}
	var marker retryableMarker
	if errors.As(err, &marker) {
		return marker.Retryable()
	}
	return true
}

// delay computes the backoff for the given 1-indexed attempt, applying
// MaxDelay / the absolute ceiling, then jitter.
func (r *Retry) delay(attempt int) time.Duration {
	var d time.Duration

	switch r.cfg.Strategy {
	case BackoffConstant:
		d = r.cfg.InitialDelay
	case BackoffLinear:
		d = r.cfg.InitialDelay * time.Duration(attempt)
	default: // BackoffExponential
		mult := math.Pow(r.cfg.Multiplier, float64(attempt-1))
		d = time.Duration(float64(r.cfg.InitialDelay) * mult)
	}

	ceiling := maxRetryDelay
	if r.cfg.MaxDelay > 0 && r.cfg.MaxDelay < ceiling {
		ceiling = r.cfg.MaxDelay
	}
	if d > ceiling {
		d = ceiling
	}
	if d < 0 {
		d = ceiling
	}

	if r.cfg.Jitter && d > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		factor := 0.5 + rand.Float64()*0.5 // uniform in [0.5, 1.0]
		d = time.Duration(float64(d) * factor)
	}

	return d
}

func (r *Retry) fireOnRetry(attempt int, err error, delay time.Duration) {
	if r.cfg.OnRetry == nil {
		return
	}
	defer func() { _ = recover() }()
	r.cfg.OnRetry(attempt, err, delay)
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.cfg
}
