package resilience

import "context"

// Operation is the uniform callable every primitive wraps: it accepts a
// cancellation-aware context and produces a typed error.
type Operation func(ctx context.Context) error

// Adapter wraps an Operation with one resilience primitive, producing a
// new Operation. Each of the WithXxx constructors below returns an
// Adapter bound to an already-configured primitive.
type Adapter func(next Operation) Operation

// Chain composes primitives around a single operation. Adapters are
// applied in registration order, first-registered outermost:
// NewChain(a, b, c).Execute folds right-to-left into a(b(c(op))).
type Chain struct {
	adapters []Adapter
}

// NewChain builds a Chain from the given adapters, in outermost-first
// order.
func NewChain(adapters ...Adapter) *Chain {
	return &Chain{adapters: adapters}
}

// Execute folds the chain's adapters around op and runs the result.
func (c *Chain) Execute(ctx context.Context, op Operation) error {
	wrapped := op
	for i := len(c.adapters) - 1; i >= 0; i-- {
		wrapped = c.adapters[i](wrapped)
	}
	return wrapped(ctx)
}

// WithCircuitBreaker adapts a CircuitBreaker into the chain.
func WithCircuitBreaker(cb *CircuitBreaker) Adapter {
	return func(next Operation) Operation {
		return func(ctx context.Context) error {
			return cb.Execute(ctx, next)
		}
	}
}

// WithRetry adapts a Retry into the chain.
func WithRetry(r *Retry) Adapter {
	return func(next Operation) Operation {
		return func(ctx context.Context) error {
			return r.Execute(ctx, next)
		}
	}
}

// WithTimeout adapts a Timeout into the chain.
func WithTimeout(t *Timeout) Adapter {
	return func(next Operation) Operation {
		return func(ctx context.Context) error {
			return t.Execute(ctx, next)
		}
	}
}

// WithBulkhead adapts a Bulkhead into the chain.
func WithBulkhead(b *Bulkhead) Adapter {
	return func(next Operation) Operation {
		return func(ctx context.Context) error {
			return b.Execute(ctx, next)
		}
	}
}

// WithRateLimiter adapts a RateLimiter into the chain, keyed by a
// function of the call's context (e.g. a tenant or client ID extracted
// from ctx). If key is nil, "default" is used for every call.
func WithRateLimiter(rl *RateLimiter, key func(ctx context.Context) string) Adapter {
	return func(next Operation) Operation {
		return func(ctx context.Context) error {
			k := "default"
			if key != nil {
				k = key(ctx)
			}
			allowed, err := rl.Allow(ctx, k)
			if err != nil {
				return err
			}
			if !allowed {
				return ErrRateLimitExceeded
			}
			return next(ctx)
		}
	}
}

// WithFallback adapts a Fallback into the chain. fallback receives the
// primary operation's error.
func WithFallback(f *Fallback, fallback func(context.Context, error) error) Adapter {
	return func(next Operation) Operation {
		return func(ctx context.Context) error {
			return f.Execute(ctx, next, fallback)
		}
	}
}
