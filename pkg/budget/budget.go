// Package budget implements the concurrency budget: a counting permit pool
// that bounds simultaneous outstanding HTTP requests across a whole run.
package budget

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is the number of permits used when none is configured.
const DefaultSize = 100

// Budget is a counting permit pool. Permits are only ever acquired and
// released; the pool is not inspectable.
type Budget struct {
	sem *semaphore.Weighted
}

// New creates a budget with size permits.
func New(size int) (*Budget, error) {
	if size <= 0 {
		return nil, fmt.Errorf("budget size must be > 0 (got %d)", size)
	}
	return &Budget{sem: semaphore.NewWeighted(int64(size))}, nil
}

// Acquire blocks until a permit is free or ctx is done.
func (b *Budget) Acquire(ctx context.Context) error {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire budget permit: %w", err)
	}
	return nil
}

// Release returns a permit to the pool.
func (b *Budget) Release() {
	b.sem.Release(1)
}

// Do runs fn while holding one permit. The permit is released when fn
// returns, whatever its outcome.
func (b *Budget) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return fn(ctx)
}
