// Package gate bounds the number of concurrently running request executions.
package gate

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate is a counting admission primitive. The zero value is not usable; call New.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
}

// New returns a gate admitting at most capacity holders. Capacities below one
// are raised to one.
func New(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("gate: acquire: %w", err)
	}
	g.inFlight.Add(1)
	return nil
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

// Do runs fn while holding a slot. The slot is released even if fn panics.
func (g *Gate) Do(ctx context.Context, fn func()) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	fn()
	return nil
}

// Capacity returns the configured number of slots.
func (g *Gate) Capacity() int {
	return g.capacity
}

// InFlight returns the number of slots currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}
