package budget

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNew_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := New(size)
		assert.Error(t, err, "size %d", size)
	}
}

func TestBudget_BoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	const size = 3
	b, err := New(size)
	require.NoError(t, err)

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Do(context.Background(), func(ctx context.Context) error {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(size))
	assert.Equal(t, int32(0), inFlight.Load())
}

func TestBudget_ReleasesOnError(t *testing.T) {
	b, err := New(1)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = b.Do(context.Background(), func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	// The single permit must be free again.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, b.Acquire(ctx))
	b.Release()
}

func TestBudget_AcquireHonoursContext(t *testing.T) {
	b, err := New(1)
	require.NoError(t, err)
	require.NoError(t, b.Acquire(context.Background()))
	defer b.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err = b.Do(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}
