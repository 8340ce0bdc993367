package chunky

import (
	"context"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapi-go/mpapi/pkg/record"
	"github.com/mpapi-go/mpapi/pkg/search"
)

// RelatedQueries returns the searches that fetch the records chunk refers
// to, one per referenced type, in lexicographic type order. Excluded types
// are left out.
func (c *Chunky) RelatedQueries(chunk *record.Document) ([]*search.Query, error) {
	var out []*search.Query
	for _, module := range chunk.RelatedTypes() {
		if _, skip := c.excluded[module]; skip {
			c.logger.Debug().Str("related", module).Msg("Related type excluded")
			continue
		}
		ids, err := chunk.ReferencedIDs(module)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			continue
		}
		out = append(out, buildRelatedQuery(module, ids, c.config.FieldSelections[module]))
	}
	return out, nil
}

// ResolveRelated fetches the records chunk refers to and merges them into
// chunk, which is returned. The fetches run concurrently. If any of them
// fails the others are cancelled, chunk is left unchanged and the first
// failure is returned as a *RelatedError.
func (c *Chunky) ResolveRelated(ctx context.Context, chunk *record.Document) (*record.Document, error) {
	queries, err := c.RelatedQueries(chunk)
	if err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return chunk, nil
	}

	results := make([]*record.Document, len(queries))
	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for i, q := range queries {
		p.Go(func(ctx context.Context) error {
			ctx, span := tracer.Start(ctx, "chunky.related", trace.WithAttributes(
				attribute.String("module", q.Module),
				attribute.Int("ids", len(q.Criteria)),
			))
			defer span.End()

			c.logger.Debug().
				Str("related", q.Module).
				Int("ids", len(q.Criteria)).
				Msg("Fetching related records")

			relatedFetchesTotal.WithLabelValues(q.Module).Inc()
			doc, err := c.api.Search(ctx, q)
			if err != nil {
				span.RecordError(err)
				return &RelatedError{Module: q.Module, Err: err}
			}
			results[i] = doc
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	for i, doc := range results {
		module := queries[i].Module
		n := doc.CountItems(module)
		relatedItemsTotal.WithLabelValues(module).Add(float64(n))
		c.logger.Debug().
			Str("related", module).
			Int("items", n).
			Msg("Merging related records")
		chunk.Merge(doc)
	}
	return chunk, nil
}
