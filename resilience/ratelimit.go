package resilience

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// RateLimiterConfig configures a keyed token-bucket [RateLimiter].
type RateLimiterConfig struct {
	// Rate is the number of tokens added per Interval. Default: 100.
	Rate float64

	// Burst is the bucket capacity. Default: equal to Rate.
	Burst int

	// Interval is the fill period. Default: 1 second.
	Interval time.Duration

	// Storage is the pluggable backend for bucket state. Default:
	// an in-memory Storage private to this limiter.
	Storage Storage

	// FailureMode controls behavior when Storage errors. Default: FailOpen.
	FailureMode StorageFailureMode

	// MaxCASRetries bounds the compare-and-set retry loop on contention
	// before falling through to FailureMode. Default: 5.
	MaxCASRetries int

	// OnAllow, OnDeny, OnError, OnStorageLatency are the limiter's metrics
	// hooks. Each is optional and, when Allow/Wait/Take run to completion,
	// is called exactly once per decision — OnStorageLatency reports the
	// accumulated Storage round-trip time across every compare-and-set
	// retry the decision needed, not once per retry.
	OnAllow          func(key string)
	OnDeny           func(key string)
	OnError          func(key string, err error)
	OnStorageLatency func(key string, d time.Duration)
}

// RateLimiter is a keyed token-bucket rate limiter over a pluggable
// [Storage].
type RateLimiter struct {
	cfg    RateLimiterConfig
	bucket tokenBucket
	stale  *staleCache
	sf     singleflight.Group
}

// NewRateLimiter constructs a RateLimiter, applying defaults and
// validating bounds.
func NewRateLimiter(cfg RateLimiterConfig) (*RateLimiter, error) {
	if cfg.Rate < 0 {
		return nil, fmt.Errorf("resilience: RateLimiterConfig.Rate must be non-negative, got %v", cfg.Rate)
	}
	if cfg.Rate == 0 {
		cfg.Rate = 100
	}
	if cfg.Burst < 0 {
		return nil, fmt.Errorf("resilience: RateLimiterConfig.Burst must be non-negative, got %d", cfg.Burst)
	}
	if cfg.Burst == 0 {
		cfg.Burst = int(cfg.Rate)
		if cfg.Burst == 0 {
			cfg.Burst = 1
		}
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("resilience: RateLimiterConfig.Interval must be positive, got %v", cfg.Interval)
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	if cfg.Storage == nil {
		cfg.Storage = NewMemoryStorage()
	}
	if cfg.MaxCASRetries <= 0 {
		cfg.MaxCASRetries = 5
	}

	return &RateLimiter{
		cfg:    cfg,
		bucket: newTokenBucket(cfg.Rate, cfg.Interval, cfg.Burst),
		stale:  newStaleCache(),
	}, nil
}

// Allow reports whether a single operation under key is permitted right
// now, consuming a token on success.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return rl.Take(ctx, key, 1)
}

// Take reports whether n tokens under key are available right now,
// consuming them atomically on success. Fails with ErrTokensExceeded if n
// exceeds the configured burst.
func (rl *RateLimiter) Take(ctx context.Context, key string, n int) (bool, error) {
	if n <= 0 {
		return false, fmt.Errorf("resilience: Take requires n > 0, got %d", n)
	}
	if float64(n) > rl.bucket.burst {
		return false, ErrTokensExceeded
	}
	if err := checkCancelled(ctx); err != nil {
		return false, err
	}

	allowed, latency, err := rl.tryConsume(ctx, key, float64(n))
	rl.fireStorageLatency(key, latency)
	if err != nil {
		rl.fireError(key, err)
		switch rl.cfg.FailureMode {
		case FailOpen:
			rl.fireAllow(key)
			return true, nil
		case LastKnown:
			return rl.decideFromStale(key, float64(n)), nil
		default: // FailClosed
			return false, err
		}
	}

	if allowed {
		rl.fireAllow(key)
	} else {
		rl.fireDeny(key)
	}
	return allowed, nil
}

// Wait blocks until n tokens under key are available (sleeping for the
// token-bucket's computed wait time, retrying up to MaxCASRetries times)
// or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	return rl.WaitN(ctx, key, 1)
}

// WaitN is Wait for n tokens.
func (rl *RateLimiter) WaitN(ctx context.Context, key string, n int) error {
	if float64(n) > rl.bucket.burst {
		return ErrTokensExceeded
	}
	for attempt := 0; attempt < rl.cfg.MaxCASRetries+1; attempt++ {
		if err := checkCancelled(ctx); err != nil {
			return err
		}

		ok, err := rl.Take(ctx, key, n)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		wait := rl.currentWaitTime(ctx, key)
		timer := time.NewTimer(wait)
		werr := waitContext(ctx, timer.C)
		timer.Stop()
		if werr != nil {
			return werr
		}
	}
	return ErrRateLimitExceeded
}

// Snapshot returns the current refilled bucket state for key, for
// introspection/metrics. It does not consume tokens.
func (rl *RateLimiter) Snapshot(ctx context.Context, key string) (tokens float64, burst int, err error) {
	key, err = sanitizeKey(key)
	if err != nil {
		return 0, rl.cfg.Burst, err
	}
	state, ok, err := rl.cfg.Storage.Get(ctx, key)
	if err != nil {
		return 0, rl.cfg.Burst, err
	}
	if !ok {
		state = newBucketState(rl.cfg.Burst, time.Now())
	}
	state = rl.bucket.refill(state, time.Now())
	return state.Tokens, rl.cfg.Burst, nil
}

// tryConsume runs the refill+compare-and-set loop: load or initialize the
// bucket, refill it, attempt to subtract n tokens via CAS, retry on
// contention up to MaxCASRetries, then surface the last storage error to
// the caller's FailureMode handling. It returns the total time spent in
// Storage calls across every attempt, so the caller can report it as a
// single OnStorageLatency observation regardless of how many retries the
// decision took.
//
// Concurrent callers for the *same* key are additionally collapsed
// through singleflight so a thundering herd against a slow remote
// Storage performs one round trip instead of N parallel ones; each
// waiting goroutine still gets its own fair shot at the resulting token
// count via the CAS loop below (singleflight only dedupes the refill
// fetch, never the debit).
func (rl *RateLimiter) tryConsume(ctx context.Context, key string, n float64) (bool, time.Duration, error) {
	key, err := sanitizeKey(key)
	if err != nil {
		return false, 0, err
	}

	var lastErr error
	var latency time.Duration
	for attempt := 0; attempt <= rl.cfg.MaxCASRetries; attempt++ {
		start := time.Now()
		state, ok, err := rl.loadOrInit(ctx, key)
		latency += time.Since(start)
		if err != nil {
			lastErr = err
			continue
		}

		refilled := rl.bucket.refill(state, time.Now())
		newState, consumed := rl.bucket.consume(refilled, n)

		casOK, current, err := rl.cfg.Storage.CompareAndSet(ctx, key, ok, state, newState)
		if err != nil {
			lastErr = err
			continue
		}
		if !casOK {
			// Someone else updated the bucket between our load and CAS;
			// retry against the fresher value they left behind.
			continue
		}
		rl.stale.set(key, newState)
		if !consumed {
			// CAS succeeded trivially (we wrote the refilled-but-not-
			// consumed state back, since consume only mutates on
			// success); report denial without a retry — there just
			// aren't enough tokens right now.
			_ = current
			return false, latency, nil
		}
		return true, latency, nil
	}
	return false, latency, lastErr
}

// loadOrInit fetches bucket state for key, collapsing concurrent misses
// on the same key into a single Storage.Get via singleflight.
func (rl *RateLimiter) loadOrInit(ctx context.Context, key string) (bucketState, bool, error) {
	v, err, _ := rl.sf.Do(key, func() (any, error) {
		state, ok, err := rl.cfg.Storage.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			state = newBucketState(rl.cfg.Burst, time.Now())
		}
		return loadResult{state: state, ok: ok}, nil
	})
	if err != nil {
		return bucketState{}, false, err
	}
	lr := v.(loadResult)
	return lr.state, lr.ok, nil
}

type loadResult struct {
	state bucketState
	ok    bool
}

// currentWaitTime computes how long WaitN should sleep before retrying,
// falling back to the bucket's Interval on any storage error so a
// transient backend hiccup doesn't spin-loop.
func (rl *RateLimiter) currentWaitTime(ctx context.Context, key string) time.Duration {
	state, ok, err := rl.cfg.Storage.Get(ctx, key)
	if err != nil || !ok {
		return rl.cfg.Interval
	}
	refilled := rl.bucket.refill(state, time.Now())
	return rl.bucket.waitTime(refilled)
}

// decideFromStale implements the LastKnown failure mode: refill the last
// locally-observed state (not the shared Storage) and decide from that,
// without persisting the result back to Storage.
func (rl *RateLimiter) decideFromStale(key string, n float64) bool {
	state, ok := rl.stale.get(key)
	if !ok {
		state = newBucketState(rl.cfg.Burst, time.Now())
	}
	refilled := rl.bucket.refill(state, time.Now())
	_, consumed := rl.bucket.consume(refilled, n)
	return consumed
}

func (rl *RateLimiter) fireAllow(key string) {
	defer func() { _ = recover() }()
	if rl.cfg.OnAllow != nil {
		rl.cfg.OnAllow(key)
	}
}

func (rl *RateLimiter) fireDeny(key string) {
	defer func() { _ = recover() }()
	if rl.cfg.OnDeny != nil {
		rl.cfg.OnDeny(key)
	}
}

func (rl *RateLimiter) fireError(key string, err error) {
	defer func() { _ = recover() }()
	if rl.cfg.OnError != nil {
		rl.cfg.OnError(key, err)
	}
}

func (rl *RateLimiter) fireStorageLatency(key string, d time.Duration) {
	defer func() { _ = recover() }()
	if rl.cfg.OnStorageLatency != nil {
		rl.cfg.OnStorageLatency(key, d)
	}
}
