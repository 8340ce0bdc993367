package chunky

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapi-go/mpapi/pkg/logging"
	"github.com/mpapi-go/mpapi/pkg/pagination"
)

// State is the terminal state of a run.
type State string

const (
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped" // nothing to fetch
)

// Result summarizes a run.
type Result struct {
	RunID    string
	Seed     SeedQuery
	Job      string
	State    State
	Total    int // records selected by the seed
	Chunks   int // planned chunks
	Written  int // chunks saved by this run
	Resumed  int // chunks skipped because output existed
	Empty    int // chunks that came back without seed records
	Duration time.Duration
	Err      error
}

// Run downloads every chunk of seed into job. It returns a Result in every
// case; the error is non-nil exactly when the state is StateFailed.
//
// A failed request closes the API, so the client passed to New is unusable
// afterwards. An invalid seed is reported as a *QueryError and leaves the
// client open.
func (c *Chunky) Run(ctx context.Context, seed SeedQuery, job string) (*Result, error) {
	start := time.Now()
	res := &Result{
		RunID: ulid.Make().String(),
		Seed:  seed,
		Job:   job,
	}
	logger := logging.ForRun(c.logger, res.RunID, job, seed.String())

	ctx, span := tracer.Start(ctx, "chunky.Run", trace.WithAttributes(
		attribute.String("run_id", res.RunID),
		attribute.String("job", job),
		attribute.String("seed", seed.String()),
	))
	defer span.End()

	finish := func(state State, err error) (*Result, error) {
		res.State = state
		res.Err = err
		res.Duration = time.Since(start)
		runsTotal.WithLabelValues(string(state)).Inc()
		runDuration.Observe(res.Duration.Seconds())
		span.SetAttributes(attribute.String("state", string(state)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return res, err
	}

	// Reject a missing job name before talking to the server.
	if _, err := c.sink.Path(job, string(seed.Kind), seed.ID, 1); err != nil {
		return finish(StateFailed, err)
	}

	logger.Info().Msg("Run started")

	total, chunks, err := c.Count(ctx, seed)
	if err != nil {
		// A seed that never became a request leaves the API open.
		var qe *QueryError
		if !errors.As(err, &qe) {
			c.abort(logger)
		}
		logger.Error().Err(err).Msg("Count failed")
		return finish(StateFailed, err)
	}
	res.Total, res.Chunks = total, chunks

	if total == 0 {
		logger.Info().Msg("Nothing to download")
		return finish(StateSkipped, nil)
	}

	plan, err := pagination.NewPlan(total, c.config.ChunkSize)
	if err != nil {
		return finish(StateFailed, err)
	}
	logger.Info().
		Int("total", total).
		Int("chunks", chunks).
		Int("parallel", c.config.ParallelChunks).
		Msg("Chunk plan")

	var mu sync.Mutex
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}

	err = pagination.Drain(ctx, plan.Chunks(), c.config.ParallelChunks, func(ctx context.Context, n int) error {
		outcome, err := c.runChunk(ctx, seed, job, plan, n)
		switch outcome {
		case outcomeWritten:
			count(&res.Written)
		case outcomeResumed:
			count(&res.Resumed)
		case outcomeEmpty:
			count(&res.Empty)
		}
		chunksTotal.WithLabelValues(string(outcome)).Inc()
		if err != nil {
			return newChunkError(seed, n, err)
		}
		return nil
	})
	if err != nil {
		c.abort(logger)
		var ce *ChunkError
		if errors.As(err, &ce) {
			logger.Error().
				Err(ce.Err).
				Int("chunk", ce.Chunk).
				Str("related", ce.Related).
				Msg("Run aborted")
		} else {
			logger.Error().Err(err).Msg("Run aborted")
		}
		return finish(StateFailed, err)
	}

	logger.Info().
		Int("written", res.Written).
		Int("resumed", res.Resumed).
		Int("empty", res.Empty).
		Dur("duration", time.Since(start)).
		Msg("Run complete")
	return finish(StateCompleted, nil)
}

type chunkOutcome string

const (
	outcomeWritten chunkOutcome = "written"
	outcomeResumed chunkOutcome = "resumed"
	outcomeEmpty   chunkOutcome = "empty"
	outcomeFailed  chunkOutcome = "failed"
)

// runChunk processes chunk n: skip if done, else fetch, resolve, save.
func (c *Chunky) runChunk(ctx context.Context, seed SeedQuery, job string, plan pagination.Plan, n int) (chunkOutcome, error) {
	logger := logging.ForChunk(c.logger, n).With().Str("job", job).Str("seed", seed.String()).Logger()

	path, err := c.sink.Path(job, string(seed.Kind), seed.ID, n)
	if err != nil {
		return outcomeFailed, err
	}
	if c.sink.Exists(path) {
		logger.Info().Str("path", path).Msg("Chunk exists, skipping")
		return outcomeResumed, nil
	}

	ctx, span := tracer.Start(ctx, "chunky.chunk", trace.WithAttributes(
		attribute.Int("chunk", n),
		attribute.Int("offset", plan.Offset(n)),
	))
	defer span.End()

	doc, err := c.FetchChunk(ctx, seed, plan.Offset(n))
	if err != nil {
		return outcomeFailed, err
	}
	if doc.CountItems(seed.Target) == 0 {
		// An empty chunk is still saved so a later run finds it on disk.
		if err := c.sink.Save(doc, path); err != nil {
			return outcomeFailed, err
		}
		logger.Warn().Int("offset", plan.Offset(n)).Str("path", path).Msg("Chunk is empty, saved without records")
		return outcomeEmpty, nil
	}

	if _, err := c.ResolveRelated(ctx, doc); err != nil {
		return outcomeFailed, err
	}
	if err := c.sink.Save(doc, path); err != nil {
		return outcomeFailed, err
	}

	logger.Info().
		Str("path", path).
		Int("items", doc.Len()).
		Msg("Chunk written")
	return outcomeWritten, nil
}

// abort closes the API so in-flight and queued requests stop.
func (c *Chunky) abort(logger zerolog.Logger) {
	if err := c.api.Close(); err != nil {
		logger.Warn().Err(err).Msg("Closing API after failure")
	}
}
