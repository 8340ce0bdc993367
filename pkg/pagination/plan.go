package pagination

import "fmt"

// Plan describes how a result set is cut into chunks.
type Plan struct {
	Total     int
	ChunkSize int
}

// NewPlan validates and returns a chunk plan.
func NewPlan(total, chunkSize int) (Plan, error) {
	if total < 0 {
		return Plan{}, fmt.Errorf("total must not be negative (got %d)", total)
	}
	if chunkSize <= 0 {
		return Plan{}, fmt.Errorf("chunk size must be > 0 (got %d)", chunkSize)
	}
	return Plan{Total: total, ChunkSize: chunkSize}, nil
}

// ChunkCount is Total/ChunkSize+1, so a result set whose size is an exact
// multiple of ChunkSize gets one trailing empty chunk.
func (p Plan) ChunkCount() int {
	return p.Total/p.ChunkSize + 1
}

// Offset returns the record offset at which chunk n (1-based) starts.
func (p Plan) Offset(n int) int {
	return (n - 1) * p.ChunkSize
}

// Chunks returns the chunk numbers 1..ChunkCount.
func (p Plan) Chunks() []int {
	out := make([]int, p.ChunkCount())
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// Batches cuts chunks into consecutive groups of at most size elements,
// preserving order. A size below 1 is treated as 1.
func Batches(chunks []int, size int) [][]int {
	if size < 1 {
		size = 1
	}
	var out [][]int
	for start := 0; start < len(chunks); start += size {
		end := min(start+size, len(chunks))
		out = append(out, chunks[start:end])
	}
	return out
}
