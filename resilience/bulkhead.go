package resilience

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// BulkheadConfig configures a [Bulkhead] concurrency gate.
type BulkheadConfig struct {
	// MaxConcurrent is the number of permits. Default: 10. Must be >= 1.
	MaxConcurrent int

	// MaxQueue is the number of callers allowed to wait for a permit once
	// none are free. 0 means no queueing — callers are shed immediately.
	// Default: 0.
	MaxQueue int

	// QueueTimeout, if set, bounds how long a queued caller waits before
	// failing with a *TimeoutError. Default: unset (wait indefinitely,
	// subject to ctx cancellation).
	QueueTimeout time.Duration
}

// Bulkhead bounds concurrency with a counting permit and an optional
// bounded FIFO wait queue.
type Bulkhead struct {
	cfg BulkheadConfig
	sem *semaphore

	mu        sync.Mutex
	closed    bool
	active    int
	maxActive int
	rejected  int64
	closeWG   sync.WaitGroup
}

// NewBulkhead constructs a Bulkhead, applying defaults and validating
// bounds.
func NewBulkhead(cfg BulkheadConfig) (*Bulkhead, error) {
	if cfg.MaxConcurrent < 0 {
		return nil, fmt.Errorf("resilience: BulkheadConfig.MaxConcurrent must be >= 1, got %d", cfg.MaxConcurrent)
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.MaxQueue < 0 {
		return nil, fmt.Errorf("resilience: BulkheadConfig.MaxQueue must be >= 0, got %d", cfg.MaxQueue)
	}
	if cfg.QueueTimeout < 0 {
		return nil, fmt.Errorf("resilience: BulkheadConfig.QueueTimeout must be > 0, got %v", cfg.QueueTimeout)
	}

	queueCap := cfg.MaxQueue
	if queueCap == 0 {
		queueCap = 1 // ringBuffer requires capacity >= 1; unused when MaxQueue==0.
	}

	return &Bulkhead{
		cfg: cfg,
		sem: newSemaphore(cfg.MaxConcurrent, queueCap),
	}, nil
}

// Execute runs op under a permit, queueing the caller if no permit is
// immediately free and a queue is configured, or shedding it otherwise.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.releasePermit()

	return op(ctx)
}

// acquire runs the admission sequence: reject if closed or already
// cancelled, take a free permit immediately if one exists, else shed the
// caller when no queue is configured or the queue is full, else wait for
// a permit (subject to QueueTimeout and ctx cancellation).
func (b *Bulkhead) acquire(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBulkheadClosed
	}
	b.closeWG.Add(1)
	b.mu.Unlock()

	if err := checkCancelled(ctx); err != nil {
		b.closeWG.Done()
		return err
	}

	if b.sem.tryAcquire() {
		b.onAcquired()
		return nil
	}

	if b.cfg.MaxQueue == 0 {
		b.closeWG.Done()
		b.markRejected()
		return ErrBulkheadFull
	}
	if b.sem.queued() >= b.cfg.MaxQueue {
		b.closeWG.Done()
		b.markRejected()
		return ErrBulkheadFull
	}

	waitCtx := ctx
	var cancel context.CancelFunc
	if b.cfg.QueueTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, b.cfg.QueueTimeout)
		defer cancel()
	}

	queueFull, err := b.sem.acquire(waitCtx)
	if err != nil {
		b.closeWG.Done()
		if b.cfg.QueueTimeout > 0 && ctx.Err() == nil && waitCtx.Err() != nil {
			return NewTimeoutError(b.cfg.QueueTimeout)
		}
		return err
	}
	if queueFull {
		b.closeWG.Done()
		b.markRejected()
		return ErrBulkheadFull
	}

	b.onAcquired()
	return nil
}

func (b *Bulkhead) onAcquired() {
	b.mu.Lock()
	b.active++
	if b.active > b.maxActive {
		b.maxActive = b.active
	}
	b.mu.Unlock()
}

// releasePermit returns the permit and marks the admission as finished for
// Close()'s drain wait.
func (b *Bulkhead) releasePermit() {
	b.sem.release()
	b.mu.Lock()
	b.active--
	b.mu.Unlock()
	b.closeWG.Done()
}

func (b *Bulkhead) markRejected() {
	atomic.AddInt64(&b.rejected, 1)
}

// Close stops admitting new callers, rejects every queued waiter with
// ErrBulkheadClosed, and blocks until all currently-running permits are
// released.
func (b *Bulkhead) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.sem.rejectAll(ErrBulkheadClosed)
	b.closeWG.Wait()
}

// Metrics returns current bulkhead statistics.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BulkheadMetrics{
		Active:        b.active,
		MaxActive:     b.maxActive,
		Available:     b.cfg.MaxConcurrent - b.active,
		MaxConcurrent: b.cfg.MaxConcurrent,
		QueueDepth:    b.sem.queued(),
		MaxQueue:      b.cfg.MaxQueue,
		Rejected:      atomic.LoadInt64(&b.rejected),
	}
}

// BulkheadMetrics contains bulkhead statistics.
type BulkheadMetrics struct {
	Active        int
	MaxActive     int
	Available     int
	MaxConcurrent int
	QueueDepth    int
	MaxQueue      int
	Rejected      int64
}
