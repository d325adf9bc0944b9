package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State is a circuit breaker state.
type State int

const (
	// StateClosed lets requests through and counts failures.
	StateClosed State = iota
	// StateOpen rejects every request until the reset timeout elapses.
	StateOpen
	// StateHalfOpen admits a bounded number of probe requests.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Counts are the circuit breaker's request counters. The invariant
// Requests == TotalSuccesses + TotalFailures holds after every recorded
// outcome.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) onRequest() { c.Requests++ }

func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

func (c *Counts) reset() { *c = Counts{} }

// CircuitBreakerConfig configures a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// MaxFailures is the consecutive-failure threshold used by the
	// default ReadyToTrip. Default: 5. Must be >= 1.
	MaxFailures int

	// Timeout is how long OPEN waits before admitting a HALF-OPEN probe.
	// Default: 60 seconds.
	Timeout time.Duration

	// HalfOpenMaxRequests bounds concurrent probes in HALF-OPEN. Default: 1.
	HalfOpenMaxRequests int

	// Interval, if > 0, periodically resets Counts while CLOSED so old
	// failures don't accumulate across an unrelated time window. Default:
	// 0 (never reset automatically).
	Interval time.Duration

	// TimeoutJitter perturbs the effective reset timeout by up to this
	// fraction, recomputed each time the breaker enters OPEN. Must be in
	// [0, 1]. Default: 0.
	TimeoutJitter float64

	// ReadyToTrip overrides the trip decision; if nil, trips when
	// Counts.ConsecutiveFailures >= MaxFailures.
	ReadyToTrip func(Counts) bool

	// IsSuccessful overrides success/failure classification of a
	// completed call, invoked once per completion with the call's error
	// (nil on success). Returning true counts as success even for a
	// non-nil error; returning false counts as failure even for a nil
	// error.
	IsSuccessful func(err error) bool

	// OnStateChange is invoked after a transition becomes visible. Calls
	// are delivered one at a time, in the order transitions occurred, from
	// a single dedicated goroutine — never re-entrantly from inside
	// Execute/Reset, and never concurrently with another OnStateChange
	// call. A panicking callback is recovered and does not stop further
	// deliveries.
	OnStateChange func(from, to State)
}

// stateTransition is one entry in the ordered OnStateChange delivery queue.
type stateTransition struct {
	from, to State
}

// CircuitBreaker implements the CLOSED/OPEN/HALF-OPEN state machine.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu               sync.Mutex
	state            State
	counts           Counts
	lastStateChange  time.Time
	halfOpenInFlight int
	effectiveTimeout time.Duration

	probeGroup singleflight.Group

	transitions chan stateTransition
	workerDone  chan struct{}

	resetTimer *time.Timer
	stopReset  chan struct{}
	closeOnce  sync.Once
}

// NewCircuitBreaker constructs a CircuitBreaker, applying defaults and
// validating bounds.
func NewCircuitBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, error) {
	if cfg.MaxFailures < 0 {
		return nil, fmt.Errorf("resilience: CircuitBreakerConfig.MaxFailures must be >= 1, got %d", cfg.MaxFailures)
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("resilience: CircuitBreakerConfig.Timeout must be > 0, got %v", cfg.Timeout)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.HalfOpenMaxRequests < 0 {
		return nil, fmt.Errorf("resilience: CircuitBreakerConfig.HalfOpenMaxRequests must be >= 1, got %d", cfg.HalfOpenMaxRequests)
	}
	if cfg.HalfOpenMaxRequests == 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("resilience: CircuitBreakerConfig.Interval must be >= 0, got %v", cfg.Interval)
	}
	if cfg.TimeoutJitter < 0 || cfg.TimeoutJitter > 1 {
		return nil, fmt.Errorf("resilience: CircuitBreakerConfig.TimeoutJitter must be in [0,1], got %v", cfg.TimeoutJitter)
	}
	if cfg.ReadyToTrip == nil {
		maxFailures := uint32(cfg.MaxFailures)
		cfg.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures >= maxFailures }
	}
	if cfg.IsSuccessful == nil {
		cfg.IsSuccessful = func(err error) bool { return err == nil }
	}

	cb := &CircuitBreaker{
		cfg:             cfg,
		state:           StateClosed,
		lastStateChange: time.Now(),
		transitions:     make(chan stateTransition, 64),
		workerDone:      make(chan struct{}),
		stopReset:       make(chan struct{}),
	}
	go cb.runStateChangeWorker()
	if cfg.Interval > 0 {
		cb.armResetTimer()
	}
	return cb, nil
}

// Execute runs op through the circuit breaker's admission check and
// records its outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	if err := cb.beforeExecute(); err != nil {
		return err
	}

	err := op(ctx)

	if IsCancellation(err) {
		// A cancelled call never counts against the breaker.
		return err
	}

	cb.afterExecute(err)
	return err
}

// State returns the current state, first resolving an OPEN->HALF-OPEN
// transition if the reset timeout has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

// Counts returns a snapshot of the current counters.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Reset forces the breaker to CLOSED and zeroes its counters and in-flight
// probe count, firing OnStateChange if the state actually changed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	old := cb.state
	cb.state = StateClosed
	cb.counts.reset()
	cb.halfOpenInFlight = 0
	cb.lastStateChange = time.Now()
	cb.mu.Unlock()

	if old != StateClosed {
		cb.fireStateChange(old, StateClosed)
	}
}

// Destroy releases the periodic counts-reset timer and the OnStateChange
// delivery worker. Safe to call more than once.
func (cb *CircuitBreaker) Destroy() {
	cb.closeOnce.Do(func() {
		close(cb.stopReset)
		cb.mu.Lock()
		if cb.resetTimer != nil {
			cb.resetTimer.Stop()
		}
		cb.mu.Unlock()
		close(cb.transitions)
		<-cb.workerDone
	})
}

// beforeExecute implements the admission rule: CLOSED always admits, OPEN
// rejects unless the timeout has elapsed (in which case a single
// goroutine performs the OPEN->HALF-OPEN transition via singleflight and
// every racer observes the new state), and HALF-OPEN admits up to
// HalfOpenMaxRequests concurrent probes.
func (cb *CircuitBreaker) beforeExecute() error {
	cb.mu.Lock()
	state := cb.currentStateLocked()

	switch state {
	case StateOpen:
		cb.mu.Unlock()
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.cfg.HalfOpenMaxRequests {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.halfOpenInFlight++
		cb.counts.onRequest()
		cb.mu.Unlock()
		return nil
	default: // StateClosed
		cb.counts.onRequest()
		cb.mu.Unlock()
		return nil
	}
}

// currentStateLocked resolves a pending OPEN->HALF-OPEN transition. It
// must be called with cb.mu held. The actual transition work is
// serialized through singleflight so concurrent callers don't each fire
// OnStateChange.
func (cb *CircuitBreaker) currentStateLocked() State {
	if cb.state != StateOpen {
		return cb.state
	}
	if time.Since(cb.lastStateChange) < cb.effectiveTimeout {
		return cb.state
	}

	cb.mu.Unlock()
	cb.probeGroup.Do("transition", func() (any, error) {
		cb.mu.Lock()
		changed := false
		if cb.state == StateOpen && time.Since(cb.lastStateChange) >= cb.effectiveTimeout {
			cb.transitionLocked(StateHalfOpen)
			cb.halfOpenInFlight = 0
			changed = true
		}
		cb.mu.Unlock()
		if changed {
			cb.fireStateChange(StateOpen, StateHalfOpen)
		}
		return nil, nil
	})
	cb.mu.Lock()
	return cb.state
}

// afterExecute records the outcome and drives CLOSED/HALF-OPEN
// transitions. IsSuccessful is evaluated exactly once per completion.
func (cb *CircuitBreaker) afterExecute(err error) {
	successful := cb.cfg.IsSuccessful(err)

	cb.mu.Lock()
	old := cb.state
	var newState State
	changed := false

	switch cb.state {
	case StateClosed:
		if successful {
			cb.counts.onSuccess()
		} else {
			cb.counts.onFailure()
			if cb.cfg.ReadyToTrip(cb.counts) {
				cb.transitionLocked(StateOpen)
				newState = StateOpen
				changed = true
			}
		}
	case StateHalfOpen:
		if cb.halfOpenInFlight > 0 {
			cb.halfOpenInFlight--
		}
		if successful {
			cb.counts.onSuccess()
			cb.transitionLocked(StateClosed)
			cb.counts.reset()
			newState = StateClosed
			changed = true
		} else {
			cb.counts.onFailure()
			cb.transitionLocked(StateOpen)
			newState = StateOpen
			changed = true
		}
	case StateOpen:
		// A racing admission already flipped us to HALF-OPEN/CLOSED by
		// the time this call's result lands; nothing further to record
		// against the OPEN bucket itself.
	}
	cb.mu.Unlock()

	if changed {
		cb.fireStateChange(old, newState)
	}
}

// transitionLocked must be called with cb.mu held. It updates state,
// lastStateChange, and (entering OPEN) recomputes effectiveTimeout with
// jitter.
func (cb *CircuitBreaker) transitionLocked(to State) {
	cb.state = to
	cb.lastStateChange = time.Now()
	if to == StateOpen {
		cb.effectiveTimeout = cb.jitteredTimeout()
	}
}

// jitteredTimeout computes effectiveTimeout = Timeout * (1 + U*Jitter),
// U uniform in [0,1).
func (cb *CircuitBreaker) jitteredTimeout() time.Duration {
	if cb.cfg.TimeoutJitter <= 0 {
		return cb.cfg.Timeout
	}
	u := rand.Float64() // #nosec G404 -- timing jitter, not security-sensitive
	factor := 1 + u*cb.cfg.TimeoutJitter
	return time.Duration(float64(cb.cfg.Timeout) * factor)
}

// fireStateChange enqueues a transition for delivery by the single
// OnStateChange worker goroutine, so deliveries are ordered and never
// re-entrant from inside beforeExecute/afterExecute. The channel is
// buffered generously enough that a slow or absent OnStateChange never
// blocks the breaker's own state transitions in practice; Destroy must be
// called to drain and stop the worker.
func (cb *CircuitBreaker) fireStateChange(from, to State) {
	if cb.cfg.OnStateChange == nil {
		return
	}
	cb.transitions <- stateTransition{from: from, to: to}
}

// runStateChangeWorker delivers queued transitions to OnStateChange one
// at a time, in the order fireStateChange enqueued them, until the
// transitions channel is closed by Destroy. A panicking callback is
// recovered so it can't take down the worker or skip later deliveries.
func (cb *CircuitBreaker) runStateChangeWorker() {
	defer close(cb.workerDone)
	for t := range cb.transitions {
		cb.deliverStateChange(t)
	}
}

func (cb *CircuitBreaker) deliverStateChange(t stateTransition) {
	defer func() { _ = recover() }()
	cb.cfg.OnStateChange(t.from, t.to)
}

// armResetTimer starts the periodic CLOSED-state counts reset.
func (cb *CircuitBreaker) armResetTimer() {
	cb.resetTimer = time.AfterFunc(cb.cfg.Interval, cb.onResetTick)
}

func (cb *CircuitBreaker) onResetTick() {
	select {
	case <-cb.stopReset:
		return
	default:
	}

	cb.mu.Lock()
	if cb.state == StateClosed {
		cb.counts.reset()
	}
	closed := false
	select {
	case <-cb.stopReset:
		closed = true
	default:
	}
	if !closed {
		cb.resetTimer = time.AfterFunc(cb.cfg.Interval, cb.onResetTick)
	}
	cb.mu.Unlock()
}
