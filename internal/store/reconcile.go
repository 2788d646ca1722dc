package store

import (
	"context"
	"sync"
	"time"

	"fintrack/internal/clock"
)

// DefaultReconcileDelay gives the backend time to finish post-upload
// processing before the collection is refetched.
const DefaultReconcileDelay = 2 * time.Second

// Reconciler decides how the local collection catches up after a mutation
// whose response does not carry the updated collection.
type Reconciler interface {
	// Schedule arranges for refetch to run. ctx carries values only: its
	// cancellation does not reach refetch.
	Schedule(ctx context.Context, refetch func(context.Context))
	// Stop cancels everything still pending. Later Schedule calls are ignored.
	Stop()
}

// DeferredRefetch runs exactly one refetch per Schedule call after Delay.
type DeferredRefetch struct {
	delay time.Duration
	clock clock.Clock

	mu      sync.Mutex
	pending map[uint64]clock.Timer
	nextID  uint64
	stopped bool
}

func NewDeferredRefetch(delay time.Duration, clk clock.Clock) *DeferredRefetch {
	if delay < 0 {
		delay = 0
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &DeferredRefetch{
		delay:   delay,
		clock:   clk,
		pending: make(map[uint64]clock.Timer),
	}
}

func (d *DeferredRefetch) Schedule(ctx context.Context, refetch func(context.Context)) {
	detached := context.WithoutCancel(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	id := d.nextID
	d.nextID++
	d.pending[id] = d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		_, live := d.pending[id]
		delete(d.pending, id)
		d.mu.Unlock()
		if live {
			refetch(detached)
		}
	})
}

// Pending returns the number of scheduled refetches that have not run.
func (d *DeferredRefetch) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *DeferredRefetch) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for id, t := range d.pending {
		t.Stop()
		delete(d.pending, id)
	}
}

// Immediate refetches synchronously inside Schedule. Useful for one-shot
// CLI commands that exit right after the mutation.
type Immediate struct{}

func (Immediate) Schedule(ctx context.Context, refetch func(context.Context)) {
	refetch(context.WithoutCancel(ctx))
}

func (Immediate) Stop() {}
