package limiter

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of concurrent passes through a shared backend.
type Gate struct {
	sem      *semaphore.Weighted
	width    int64
	inflight atomic.Int64
}

// New creates a Gate admitting at most width callers at once. Non-positive widths become 1.
func New(width int) *Gate {
	if width <= 0 {
		width = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(width)), width: int64(width)}
}

// Acquire blocks until a slot is free or ctx is done.
// The returned release func must be called exactly once.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	g.inflight.Add(1)
	return g.releaser(), nil
}

func (g *Gate) releaser() func() {
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.inflight.Add(-1)
			g.sem.Release(1)
		}
	}
}

// InFlight reports how many slots are currently held.
func (g *Gate) InFlight() int { return int(g.inflight.Load()) }

func (g *Gate) Width() int { return int(g.width) }
