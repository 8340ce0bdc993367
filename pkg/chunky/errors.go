package chunky

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownQueryKind is the reason of a QueryError for a kind outside
	// approval, exhibit, group, loc and query.
	ErrUnknownQueryKind = errors.New("unknown query kind")

	// ErrUnknownTargetType is the reason of a QueryError for a target type
	// the field tables do not cover.
	ErrUnknownTargetType = errors.New("unknown target type")

	// ErrSavedQuery is returned when a field-table search is requested for
	// a saved query seed.
	ErrSavedQuery = errors.New("saved queries are not built from field tables")
)

// QueryError reports a seed query that cannot be turned into a search.
// It is a configuration error and never retried.
type QueryError struct {
	Kind   QueryKind
	Target string
	Reason error
}

func (e *QueryError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("query construction: kind %q: %v", e.Kind, e.Reason)
	}
	return fmt.Sprintf("query construction: kind %q target %q: %v", e.Kind, e.Target, e.Reason)
}

func (e *QueryError) Unwrap() error {
	return e.Reason
}

// RelatedError reports a failed fetch of one related record type.
type RelatedError struct {
	Module string
	Err    error
}

func (e *RelatedError) Error() string {
	return fmt.Sprintf("fetch related %s: %v", e.Module, e.Err)
}

func (e *RelatedError) Unwrap() error {
	return e.Err
}

// ChunkError is returned by a failed run. It names the chunk and, when the
// failure happened while resolving related records, the related type that
// was being fetched.
type ChunkError struct {
	Seed    SeedQuery
	Chunk   int
	Related string
	Err     error
}

func (e *ChunkError) Error() string {
	if e.Related != "" {
		return fmt.Sprintf("%s chunk %d (related %s): %v", e.Seed, e.Chunk, e.Related, e.Err)
	}
	return fmt.Sprintf("%s chunk %d: %v", e.Seed, e.Chunk, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

func newChunkError(seed SeedQuery, chunk int, err error) *ChunkError {
	ce := &ChunkError{Seed: seed, Chunk: chunk, Err: err}
	var rerr *RelatedError
	if errors.As(err, &rerr) {
		ce.Related = rerr.Module
	}
	return ce
}
