// Package chunky downloads a seed population of records in fixed-size
// chunks and writes each chunk, together with every record it references,
// as one zipped document.
//
// A run proceeds as follows:
//
//  1. Count: a limit=1 search learns the total result size and with it the
//     number of chunks, total/ChunkSize+1.
//  2. Per chunk, in ordered batches of ParallelChunks: skip the chunk if
//     its output file already exists; otherwise fetch the chunk page,
//     resolve its related records and save the merged document.
//  3. The first failing chunk cancels its siblings, closes the API and is
//     returned as a *ChunkError. Chunks written so far stay on disk and are
//     skipped when the job is run again.
//
// Related records are resolved per chunk. Every distinct referenced record
// type not in ExcludeModules is fetched with one unlimited search selecting
// the referenced ids. The fetches run concurrently; the shared request
// budget lives in the API implementation. A chunk is only merged and saved
// when every related fetch succeeded.
//
// Example:
//
//	c, err := chunky.New(apiClient, sink.New("out"), chunky.DefaultConfig())
//	if err != nil { ... }
//	res, err := c.Run(ctx, chunky.NewSeedQuery(chunky.KindGroup, 182397), "nightly")
package chunky
