package observe

import (
	"context"
	"errors"
	"time"

	"github.com/latchwork/resilience/resilience"
)

// ExecuteFunc is the signature for operations wrapped with observability.
type ExecuteFunc func(ctx context.Context, op OperationMeta, input any) (any, error)

// Outcome classifies the result of an operation wrapped by Middleware,
// attributing a non-nil error to the resilience primitive that produced
// it (if any) so logs can break rejections down by cause
// instead of lumping every failure into one bucket.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeCircuitOpen  Outcome = "circuit_open"
	OutcomeRateLimited  Outcome = "rate_limited"
	OutcomeBulkheadFull Outcome = "bulkhead_full"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeError        Outcome = "error"
)

// classifyOutcome maps err to the resilience primitive responsible for it.
func classifyOutcome(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, resilience.ErrCircuitOpen):
		return OutcomeCircuitOpen
	case errors.Is(err, resilience.ErrRateLimitExceeded):
		return OutcomeRateLimited
	case errors.Is(err, resilience.ErrBulkheadFull), errors.Is(err, resilience.ErrBulkheadClosed):
		return OutcomeBulkheadFull
	case errors.Is(err, &resilience.TimeoutError{}):
		return OutcomeTimeout
	case resilience.IsCancellation(err):
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}

// Middleware wraps operation execution with observability (tracing,
// metrics, logging), tagging each completion's log entry with the Outcome classifying
// the operation's error against the resilience package's sentinel and
// typed errors.
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe ExecuteFunc.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from wrapped function are recorded and propagated unchanged.
//   - Ownership: Input/output values are passed through without modification.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// Wrap wraps an ExecuteFunc with tracing, metrics, and logging.
func (m *Middleware) Wrap(fn ExecuteFunc) ExecuteFunc {
	return func(ctx context.Context, op OperationMeta, input any) (any, error) {
		ctx, span := m.tracer.StartSpan(ctx, op)

		start := time.Now()
		result, err := fn(ctx, op, input)
		duration := time.Since(start)

		m.tracer.EndSpan(span, err)
		m.metrics.RecordExecution(ctx, op, duration, err)

		outcome := classifyOutcome(err)
		opLogger := m.logger.WithOperation(op)
		fields := []Field{
			{Key: "duration_ms", Value: float64(duration.Milliseconds())},
			{Key: "outcome", Value: string(outcome)},
		}

		if err != nil {
			fields = append(fields, Field{Key: "error", Value: err.Error()})
			if outcome == OutcomeCircuitOpen || outcome == OutcomeRateLimited || outcome == OutcomeBulkheadFull {
				// Expected backpressure from a resilience primitive, not an
				// operation failure — keep it out of error-rate alerting.
				opLogger.Warn(ctx, "operation rejected", fields...)
			} else {
				opLogger.Error(ctx, "operation failed", fields...)
			}
		} else {
			opLogger.Info(ctx, "operation completed", fields...)
		}

		return result, err
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
// This is a convenience function for common use cases.
// It returns ErrNilObserver if obs is nil.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	tracer := newTracer(obs.Tracer())

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(tracer, metrics, obs.Logger()), nil
}
