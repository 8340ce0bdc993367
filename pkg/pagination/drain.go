package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/mpapi-go/mpapi/pkg/logging"
)

// ChunkFunc processes a single chunk.
type ChunkFunc func(ctx context.Context, chunk int) error

// Drain runs fn for every chunk, parallel chunks at a time. Batches are
// processed in order and a batch starts only once the previous one has
// fully finished. The first error cancels the running batch and is
// returned; remaining batches are not started.
func Drain(ctx context.Context, chunks []int, parallel int, fn ChunkFunc) error {
	start := time.Now()
	logger := logging.NewLogger("pagination")
	batches := Batches(chunks, parallel)

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("drain stopped before batch %d: %w", i+1, err)
		}

		p := pool.New().
			WithContext(ctx).
			WithCancelOnError().
			WithFirstError().
			WithMaxGoroutines(len(batch))
		for _, chunk := range batch {
			p.Go(func(ctx context.Context) error {
				return fn(ctx, chunk)
			})
		}
		if err := p.Wait(); err != nil {
			logger.Debug().
				Int("batch", i+1).
				Ints("chunks", batch).
				Err(err).
				Msg("Batch failed")
			return err
		}

		logger.Debug().
			Int("batch", i+1).
			Int("batches", len(batches)).
			Ints("chunks", batch).
			Msg("Batch complete")
	}

	logger.Debug().
		Int("chunks", len(chunks)).
		Dur("duration", time.Since(start)).
		Msg("Drain complete")
	return nil
}
