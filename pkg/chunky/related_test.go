package chunky

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mpapi-go/mpapi/pkg/search"
)

func newTestChunky(t *testing.T, api API, cfg Config) *Chunky {
	t.Helper()
	c, err := New(api, nopSink{}, cfg)
	require.NoError(t, err)
	return c
}

func TestRelatedQueries_DefaultExclusions(t *testing.T) {
	c := newTestChunky(t, newFakeAPI(), DefaultConfig())

	queries, err := c.RelatedQueries(loadChunk(t))
	require.NoError(t, err)

	// Address is referenced but excluded by default.
	require.Len(t, queries, 2)
	assert.Equal(t, "Multimedia", queries[0].Module)
	assert.Equal(t, "Person", queries[1].Module)
}

func TestRelatedQueries_DeduplicatesIDs(t *testing.T) {
	c := newTestChunky(t, newFakeAPI(), DefaultConfig())

	queries, err := c.RelatedQueries(loadChunk(t))
	require.NoError(t, err)
	person := queries[1]

	// Person 12 is referenced twice in the chunk.
	assert.Equal(t, search.JoinOr, person.Join)
	values := map[string]int{}
	for _, crit := range person.Criteria {
		values[crit.Value]++
	}
	assert.Equal(t, map[string]int{"12": 1, "34": 1}, values)

	// A single Multimedia id is a bare criterion.
	assert.Equal(t, search.JoinNone, queries[0].Join)
	assert.Len(t, queries[0].Criteria, 1)
}

func TestRelatedQueries_FieldSelection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExcludeModules = nil
	c := newTestChunky(t, newFakeAPI(), cfg)

	queries, err := c.RelatedQueries(loadChunk(t))
	require.NoError(t, err)
	require.Len(t, queries, 3)

	assert.Equal(t, "Address", queries[0].Module)
	assert.Equal(t, DefaultAddressFields(), queries[0].Fields)
	assert.Empty(t, queries[1].Fields)
	assert.Empty(t, queries[2].Fields)
}

func TestResolveRelated_MergesEverything(t *testing.T) {
	defer goleak.VerifyNone(t)

	api := newFakeAPI()
	c := newTestChunky(t, api, DefaultConfig())
	chunk := loadChunk(t)

	merged, err := c.ResolveRelated(context.Background(), chunk)
	require.NoError(t, err)
	assert.Same(t, chunk, merged)

	assert.Equal(t, 2, merged.CountItems("Object"))
	assert.Equal(t, 2, merged.CountItems("Person"))
	assert.Equal(t, 1, merged.CountItems("Multimedia"))
	assert.Zero(t, merged.CountItems("Address"))
	assert.NotContains(t, api.modules(), "Address")
}

func TestResolveRelated_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExcludeModules = nil

	var first []string
	for i := 0; i < 5; i++ {
		api := newFakeAPI()
		c := newTestChunky(t, api, cfg)
		_, err := c.ResolveRelated(context.Background(), loadChunk(t))
		require.NoError(t, err)

		fetched := api.modules()
		sort.Strings(fetched)
		if first == nil {
			first = fetched
			continue
		}
		assert.Equal(t, first, fetched)
	}
	assert.Equal(t, []string{"Address", "Multimedia", "Person"}, first)
}

func TestResolveRelated_PartialFailureDiscardsAll(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("server exploded")
	api := newFakeAPI()
	api.fail["Multimedia"] = boom
	api.block["Person"] = true // only returns once cancelled

	cfg := DefaultConfig()
	cfg.ExcludeModules = nil
	c := newTestChunky(t, api, cfg)
	chunk := loadChunk(t)
	before := chunk.Len()

	_, err := c.ResolveRelated(context.Background(), chunk)
	require.ErrorIs(t, err, boom)

	var rerr *RelatedError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "Multimedia", rerr.Module)

	// Nothing was merged, not even the Address result that succeeded.
	assert.Equal(t, before, chunk.Len())
	assert.Zero(t, chunk.CountItems("Address"))
}

func TestResolveRelated_NoReferences(t *testing.T) {
	api := newFakeAPI()
	c := newTestChunky(t, api, DefaultConfig())
	chunk := loadChunk(t)

	c.excluded = map[string]struct{}{"Address": {}, "Multimedia": {}, "Person": {}}
	_, err := c.ResolveRelated(context.Background(), chunk)
	require.NoError(t, err)
	assert.Empty(t, api.modules())
}
