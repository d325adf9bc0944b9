package observe

import (
	"context"
	"time"

	"github.com/latchwork/resilience/resilience"
)

// Hooks adapts an Observer's Logger into the plain
// func(...) callbacks the resilience package's config structs expect
// (CircuitBreakerConfig.OnStateChange, RetryConfig.OnRetry,
// TimeoutConfig.OnTimeout, RateLimiterConfig.OnAllow/OnDeny/OnError, ...).
//
// resilience itself never imports this package or otel; Hooks lives here,
// on the observability side, so composing the two is opt-in at the call
// site:
//
//	cb, _ := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    OnStateChange: observe.NewHooks(obs, observe.OperationMeta{Name: "billing"}).CircuitBreakerStateChange,
//	})
type Hooks struct {
	logger Logger
	meta   OperationMeta
}

// NewHooks builds a Hooks bound to an Observer's Logger and an
// OperationMeta describing the resilience-wrapped call site the hooks
// will report against.
func NewHooks(obs Observer, meta OperationMeta) *Hooks {
	return &Hooks{logger: obs.Logger().WithOperation(meta), meta: meta}
}

// CircuitBreakerStateChange logs a circuit breaker transition at warn
// level (opening) or info level (any other transition).
func (h *Hooks) CircuitBreakerStateChange(from, to resilience.State) {
	ctx := context.Background()
	fields := []Field{
		{Key: "from", Value: from.String()},
		{Key: "to", Value: to.String()},
		{Key: "operation", Value: h.meta.OperationID()},
	}
	if to.String() == "open" {
		h.logger.Warn(ctx, "circuit breaker opened", fields...)
		return
	}
	h.logger.Info(ctx, "circuit breaker transitioned", fields...)
}

// Retry logs a retry attempt at debug level with the delay about to be
// taken and the error that triggered it.
func (h *Hooks) Retry(attempt int, err error, delay time.Duration) {
	h.logger.Debug(context.Background(), "retrying operation",
		Field{Key: "attempt", Value: attempt},
		Field{Key: "delay_ms", Value: float64(delay.Milliseconds())},
		Field{Key: "error", Value: err.Error()},
		Field{Key: "operation", Value: h.meta.OperationID()},
	)
}

// Timeout logs a deadline expiry at warn level.
func (h *Hooks) Timeout(d time.Duration) {
	h.logger.Warn(context.Background(), "operation timed out",
		Field{Key: "timeout_ms", Value: float64(d.Milliseconds())},
		Field{Key: "operation", Value: h.meta.OperationID()},
	)
}

// RateLimitAllow logs an allowed request at debug level.
func (h *Hooks) RateLimitAllow(key string) {
	h.logger.Debug(context.Background(), "rate limit allowed",
		Field{Key: "key", Value: key},
		Field{Key: "operation", Value: h.meta.OperationID()},
	)
}

// RateLimitDeny logs a denied request at info level.
func (h *Hooks) RateLimitDeny(key string) {
	h.logger.Info(context.Background(), "rate limit denied",
		Field{Key: "key", Value: key},
		Field{Key: "operation", Value: h.meta.OperationID()},
	)
}

// RateLimitError logs a storage error at error level.
func (h *Hooks) RateLimitError(key string, err error) {
	h.logger.Error(context.Background(), "rate limit storage error",
		Field{Key: "key", Value: key},
		Field{Key: "error", Value: err.Error()},
		Field{Key: "operation", Value: h.meta.OperationID()},
	)
}

// Fallback logs a fallback invocation at warn level with the primary
// error that triggered it.
func (h *Hooks) Fallback(primaryErr error) {
	h.logger.Warn(context.Background(), "falling back after primary failure",
		Field{Key: "error", Value: primaryErr.Error()},
		Field{Key: "operation", Value: h.meta.OperationID()},
	)
}
