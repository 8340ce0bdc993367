// Package pagination splits a counted result set into fixed-size chunks and
// drains them in ordered batches.
//
// A result set of Total records cut into chunks of ChunkSize yields
// Total/ChunkSize+1 chunks, numbered from 1. Chunk n starts at offset
// (n-1)*ChunkSize. When Total is an exact multiple of ChunkSize the last
// chunk is empty; callers fetch it and skip persisting it.
//
// Example usage:
//
//	plan, err := pagination.NewPlan(total, 1000)
//	if err != nil { ... }
//	err = pagination.Drain(ctx, plan.Chunks(), 4, func(ctx context.Context, n int) error {
//		return process(ctx, plan.Offset(n))
//	})
//
// Drain works batch by batch: the chunks of one batch run concurrently,
// and the next batch starts only after every chunk of the previous batch
// has finished. With parallelism 1 chunks run strictly in order. The first
// failing chunk cancels its batch siblings and no later batch is started.
package pagination
