// Package parallel provides the execution-unit context of a distributed
// run: each unit knows its rank and can synchronize with the others.
//
// Launch runs the units as goroutines inside one process. Every unit
// executes the same stage sequence on its own model; the only shared state
// is the barrier used for lock-step and reductions.
package parallel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidSize is returned by Launch for a non-positive unit count.
var ErrInvalidSize = errors.New("parallel: size must be positive")

// Communicator is the per-unit view of a distributed run.
type Communicator interface {
	Rank() int
	Size() int
	// Barrier blocks until every unit reached it.
	Barrier() error
	// AllReduceMin returns the minimum of v over all units.
	AllReduceMin(v float64) (float64, error)
}

type serial struct{}

// Serial returns the communicator of a single-unit run: rank 0 of 1.
func Serial() Communicator { return serial{} }

func (serial) Rank() int                               { return 0 }
func (serial) Size() int                               { return 1 }
func (serial) Barrier() error                          { return nil }
func (serial) AllReduceMin(v float64) (float64, error) { return v, nil }

// Launch runs fn once per unit, concurrently, and waits for all of them.
// The first unit to fail cancels ctx for the others; units blocked in a
// barrier then return the context error. The first error is returned.
func Launch(ctx context.Context, size int, fn func(ctx context.Context, comm Communicator) error) error {
	if size <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	eg, ctx := errgroup.WithContext(ctx)
	shared := newGroup(ctx, size)

	for rank := 0; rank < size; rank++ {
		comm := &local{rank: rank, group: shared}
		eg.Go(func() error {
			return fn(ctx, comm)
		})
	}

	return eg.Wait()
}

type local struct {
	rank  int
	group *group
}

func (c *local) Rank() int      { return c.rank }
func (c *local) Size() int      { return c.group.size }
func (c *local) Barrier() error { return c.group.wait() }

func (c *local) AllReduceMin(v float64) (float64, error) {
	g := c.group
	g.slots[c.rank] = v
	if err := g.wait(); err != nil {
		return 0, err
	}
	lowest := math.Inf(1)
	for _, s := range g.slots {
		lowest = math.Min(lowest, s)
	}
	// slots may be rewritten only after every unit has read them
	if err := g.wait(); err != nil {
		return 0, err
	}
	return lowest, nil
}

type group struct {
	ctx     context.Context
	size    int
	mu      sync.Mutex
	count   int
	release chan struct{}
	slots   []float64
}

func newGroup(ctx context.Context, size int) *group {
	return &group{
		ctx:     ctx,
		size:    size,
		release: make(chan struct{}),
		slots:   make([]float64, size),
	}
}

func (g *group) wait() error {
	g.mu.Lock()
	ch := g.release
	g.count++
	if g.count == g.size {
		g.count = 0
		g.release = make(chan struct{})
		g.mu.Unlock()
		close(ch)
		return nil
	}
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-g.ctx.Done():
		return g.ctx.Err()
	}
}
