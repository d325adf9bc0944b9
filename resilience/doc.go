// Package resilience provides composable resilience primitives for guarding
// asynchronous operations against partial failure.
//
// It implements the reliability patterns a tool or service call needs to
// degrade gracefully under load or partial outage: a circuit breaker, a
// retry engine, a token-bucket rate limiter with pluggable storage, a
// bulkhead with a bounded wait queue, a timeout guard, and a fallback
// wrapper. Patterns compose through [Chain] to build a single guarded
// operation out of several independently-configured primitives.
//
// # Ecosystem Position
//
// resilience sits between a caller and the operation it protects:
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                      Guarded Call Flow                        │
//	├───────────────────────────────────────────────────────────────┤
//	│                                                                │
//	│   caller            resilience.Chain            operation     │
//	│   ┌──────┐        ┌───────────────────┐        ┌──────────┐   │
//	│   │ code │───────▶│ RateLimit         │───────▶│ external │   │
//	│   └──────┘        │  └─Bulkhead       │        │  call    │   │
//	│                    │    └─Circuit      │        └──────────┘   │
//	│                    │      └─Retry      │                      │
//	│                    │        └─Fallback │                      │
//	│                    └───────────────────┘                      │
//	│                                                                │
//	└───────────────────────────────────────────────────────────────┘
//
// # Patterns
//
//   - [CircuitBreaker]: trips OPEN after a configurable run of failures,
//     probes recovery through a bounded number of HALF-OPEN requests, and
//     closes again on a successful probe.
//   - [Retry]: re-invokes a failing operation with exponential, linear or
//     constant backoff and optional jitter, bounded by MaxAttempts.
//   - [RateLimiter]: a keyed token bucket over a pluggable [Storage], so the
//     same limiter can run in-process or, with a different Storage, against
//     a shared backend.
//   - [Bulkhead]: bounds concurrency with a counting semaphore and an
//     optional FIFO wait queue, so callers past the limit either queue,
//     time out, or shed immediately.
//   - [Timeout]: races an operation against a deadline and cancels it on
//     expiry.
//   - [Fallback]: runs a secondary operation when the primary fails,
//     re-raising the primary's error if the fallback also fails.
//
// # Quick Start
//
//	cb, _ := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    MaxFailures: 5,
//	    Timeout:     time.Minute,
//	})
//
//	err := cb.Execute(ctx, func(ctx context.Context) error {
//	    return callExternalService(ctx)
//	})
//
//	chain := resilience.NewChain(
//	    resilience.WithBulkhead(bulkhead),
//	    resilience.WithTimeout(timeoutGuard),
//	    resilience.WithCircuitBreaker(cb),
//	    resilience.WithRetry(retry),
//	)
//
//	err = chain.Execute(ctx, func(ctx context.Context) error {
//	    return callExternalService(ctx)
//	})
//
// # Composition Order
//
// [Chain] applies adapters in the order they are registered with the
// first-registered adapter outermost, so
//
//	resilience.NewChain(WithBulkhead(b), WithTimeout(t), WithCircuitBreaker(cb), WithRetry(r))
//
// executes Bulkhead(Timeout(CircuitBreaker(Retry(op)))) — a common recipe,
// but any order is valid; [Chain] does not impose one.
//
// # Cancellation
//
// Every blocking call takes a context.Context and is expected to observe
// its cancellation promptly. Cancellation is never counted as an operation
// failure: the circuit breaker does not trip on it, retry does not retry
// it, and the rate limiter does not debit a token for it — it simply
// propagates as ctx.Err() wrapped in [ErrCancelled] where the caller's
// reason is preserved.
//
// # Thread Safety
//
// All exported types are safe for concurrent use after construction. Each
// primitive's mutable state (counts, bucket levels, semaphore permits,
// queue contents) is protected by a single mutex; the user's operation
// itself always runs outside that lock.
//
// # Error Handling
//
// Each pattern returns specific sentinel or typed errors (use errors.Is /
// errors.As):
//
//   - [ErrCircuitOpen]: the circuit breaker is rejecting requests.
//   - [ErrRateLimitExceeded], [ErrTokensExceeded], [ErrKeyTooLong]: rate
//     limiter admission and storage failures.
//   - [ErrBulkheadFull], [ErrBulkheadClosed]: bulkhead admission failures.
//   - [TimeoutError]: an operation exceeded its deadline.
//   - [MaxAttemptsError]: retry exhausted its attempt budget.
//   - [ErrCancelled]: the caller's context was cancelled.
//
// # Observability
//
// Each primitive's config carries optional callback fields (OnStateChange,
// OnRetry, OnTimeout, OnFallback, ...). Callback panics and errors are
// always isolated — caught and never propagated to the caller — so a
// broken logging integration cannot break the guarded call. The sibling
// observe package adapts these callbacks onto a structured logger and an
// OpenTelemetry-backed metrics/tracing collaborator; resilience itself
// imports neither.
package resilience
