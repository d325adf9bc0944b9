package resilience

import "time"

// maxRefillElapsed caps the elapsed-time term in the refill computation so
// a clock jump or a long-sleeping process doesn't manufacture a burst of
// tokens.
const maxRefillElapsed = time.Hour

// maxWaitTime is the ceiling waitTime ever returns, including the
// defensive case of a misconfigured rate/interval.
const maxWaitTime = 24 * time.Hour

// bucketState is the serializable token-bucket state shared between the
// in-process rate limiter and any Storage implementation.
type bucketState struct {
	Tokens       float64
	LastRefillAt time.Time
}

// tokenBucket is the lazy-refill token bucket law. It is a pure
// value-in/value-out computation with no locking of its own — the rate
// limiter owns the mutex (for the in-memory case) or the compare-and-set
// loop (for a remote Storage).
type tokenBucket struct {
	rate       float64       // tokens added per interval
	interval   time.Duration // fill period
	burst      float64       // capacity
}

func newTokenBucket(rate float64, interval time.Duration, burst int) tokenBucket {
	return tokenBucket{rate: rate, interval: interval, burst: float64(burst)}
}

// refill advances state to now, adding tokens for elapsed time and
// clamping to [0, burst]. Returns the refilled state; does not mutate its
// argument.
func (b tokenBucket) refill(state bucketState, now time.Time) bucketState {
	elapsed := now.Sub(state.LastRefillAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > maxRefillElapsed {
		elapsed = maxRefillElapsed
	}

	if b.interval > 0 && b.rate > 0 {
		added := elapsed.Seconds() / b.interval.Seconds() * b.rate
		state.Tokens += added
	}
	if state.Tokens > b.burst {
		state.Tokens = b.burst
	}
	if state.Tokens < 0 {
		state.Tokens = 0
	}
	state.LastRefillAt = now
	return state
}

// consume attempts to subtract n tokens from an already-refilled state.
// Returns the updated state and whether the consumption succeeded; on
// failure the state is returned unchanged.
func (b tokenBucket) consume(state bucketState, n float64) (bucketState, bool) {
	if state.Tokens < n {
		return state, false
	}
	state.Tokens -= n
	return state, true
}

// waitTime computes how long to wait (from an already-refilled state)
// until one token is available, clamped to maxWaitTime.
func (b tokenBucket) waitTime(state bucketState) time.Duration {
	if state.Tokens >= 1 {
		return 0
	}
	if b.rate <= 0 || b.interval <= 0 {
		return maxWaitTime
	}
	deficit := 1 - state.Tokens
	wait := time.Duration(deficit / b.rate * float64(b.interval))
	if wait < 0 {
		wait = 0
	}
	if wait > maxWaitTime {
		wait = maxWaitTime
	}
	return wait
}

// newBucketState creates a full bucket as of now.
func newBucketState(burst int, now time.Time) bucketState {
	return bucketState{Tokens: float64(burst), LastRefillAt: now}
}
