package resilience

import (
	"context"
	"sync"
)

// semWaiter is a queued acquirer. grant carries the outcome: nil means a
// permit was handed over, a non-nil error means the waiter was rejected
// (Close/rejectAll) without ever holding a permit.
type semWaiter struct {
	grant chan error
}

// semaphore is a counting permit with FIFO waiter fairness. permits is
// always 0 while waiters is non-empty.
type semaphore struct {
	mu      sync.Mutex
	permits int
	max     int
	waiters *ringBuffer[*semWaiter]
}

// newSemaphore creates a semaphore with maxPermits available permits and a
// waiter queue bounded by queueCapacity.
func newSemaphore(maxPermits int, queueCapacity int) *semaphore {
	if maxPermits < 1 {
		maxPermits = 1
	}
	if queueCapacity < 1 {
		queueCapacity = 1
	}
	return &semaphore{
		permits: maxPermits,
		max:     maxPermits,
		waiters: newRingBuffer[*semWaiter](queueCapacity),
	}
}

// tryAcquire takes a permit without blocking. Returns false if none free.
func (s *semaphore) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permits > 0 {
		s.permits--
		return true
	}
	return false
}

// acquire blocks until a permit is available, ctx is cancelled, or the
// waiter queue is already at capacity (queueFull=true, err=nil — the
// caller, e.g. Bulkhead, applies its own shedding policy in that case
// instead of blocking in an unbounded queue).
func (s *semaphore) acquire(ctx context.Context) (queueFull bool, err error) {
	if err := checkCancelled(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	if s.permits > 0 {
		s.permits--
		s.mu.Unlock()
		return false, nil
	}
	w := &semWaiter{grant: make(chan error, 1)}
	if !s.waiters.push(w) {
		s.mu.Unlock()
		return true, nil
	}
	s.mu.Unlock()

	select {
	case rejectErr := <-w.grant:
		if rejectErr != nil {
			return false, rejectErr
		}
		return false, nil
	case <-ctx.Done():
		s.mu.Lock()
		removed := s.waiters.removeFunc(func(c *semWaiter) bool { return c == w })
		s.mu.Unlock()
		if !removed {
			// Lost the race: release() (or rejectAll) already dequeued
			// this waiter and is sending/sent on grant concurrently. Take
			// that outcome instead of double-counting a cancellation.
			if outcome := <-w.grant; outcome == nil {
				// We were granted a permit we're about to abandon:
				// give it back so it isn't leaked.
				s.release()
			}
		}
		return false, cancelledErr(ctx)
	}
}

// release hands the permit directly to the head waiter if one exists,
// else increments the available permit count (capped at max).
func (s *semaphore) release() {
	s.mu.Lock()
	w, ok := s.waiters.shift()
	if !ok {
		if s.permits < s.max {
			s.permits++
		}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	w.grant <- nil
}

// rejectAll drains the waiter queue, failing every waiter with err. Used
// by Bulkhead.Close().
func (s *semaphore) rejectAll(err error) {
	s.mu.Lock()
	waiting := s.waiters.drain()
	s.mu.Unlock()
	for _, w := range waiting {
		w.grant <- err
	}
}

// available reports the current free-permit count (0 while waiters queue).
func (s *semaphore) available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permits
}

// queued reports the current waiter queue depth.
func (s *semaphore) queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.len()
}
