package health

import (
	"context"
	"fmt"
	"time"

	"github.com/latchwork/resilience/resilience"
)

// CircuitBreakerChecker reports a resilience.CircuitBreaker's state as a
// health Result: CLOSED is healthy, HALF-OPEN is degraded (the breaker is
// probing a recovering dependency), and OPEN is unhealthy.
//
// It reads the breaker's State() and Counts(), wired into the Checker
// interface so a breaker can be registered directly with an Aggregator
// alongside other dependency checks.
type CircuitBreakerChecker struct {
	name string
	cb   *resilience.CircuitBreaker
}

// NewCircuitBreakerChecker builds a Checker named name that reports the
// health of cb.
func NewCircuitBreakerChecker(name string, cb *resilience.CircuitBreaker) *CircuitBreakerChecker {
	return &CircuitBreakerChecker{name: name, cb: cb}
}

// Name returns the checker's name.
func (c *CircuitBreakerChecker) Name() string {
	return c.name
}

// Check reports the breaker's current state and counters.
func (c *CircuitBreakerChecker) Check(ctx context.Context) Result {
	start := time.Now()
	state := c.cb.State()
	counts := c.cb.Counts()

	details := map[string]any{
		"state":                 state.String(),
		"requests":              counts.Requests,
		"total_successes":       counts.TotalSuccesses,
		"total_failures":        counts.TotalFailures,
		"consecutive_failures":  counts.ConsecutiveFailures,
		"consecutive_successes": counts.ConsecutiveSuccesses,
	}

	var result Result
	switch state {
	case resilience.StateClosed:
		result = Healthy(fmt.Sprintf("%s: circuit closed", c.name))
	case resilience.StateHalfOpen:
		result = Degraded(fmt.Sprintf("%s: circuit half-open, probing recovery", c.name))
	default: // StateOpen
		result = Unhealthy(fmt.Sprintf("%s: circuit open", c.name), resilience.ErrCircuitOpen)
	}

	return result.WithDetails(details).WithDuration(time.Since(start))
}

var _ Checker = (*CircuitBreakerChecker)(nil)
