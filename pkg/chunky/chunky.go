package chunky

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/mpapi-go/mpapi/pkg/budget"
	"github.com/mpapi-go/mpapi/pkg/logging"
	"github.com/mpapi-go/mpapi/pkg/pagination"
	"github.com/mpapi-go/mpapi/pkg/record"
	"github.com/mpapi-go/mpapi/pkg/search"
)

var tracer = otel.Tracer("github.com/mpapi-go/mpapi/pkg/chunky")

// API is the remote service a run talks to. Implementations bound their
// own request concurrency; client.Client does so with a budget.Budget.
type API interface {
	Search(ctx context.Context, q *search.Query) (*record.Document, error)
	RunSavedQuery(ctx context.Context, id int64, module string, limit, offset int) (*record.Document, error)
	Close() error
}

// Sink stores finished chunks. sink.Sink implements it.
type Sink interface {
	Path(job, kind string, id int64, chunk int) (string, error)
	Exists(path string) bool
	Save(doc *record.Document, path string) error
}

// Config holds the run parameters.
type Config struct {
	// ChunkSize is the number of seed records per chunk.
	ChunkSize int

	// ExcludeModules are related types that are never fetched.
	ExcludeModules []string

	// ParallelChunks is how many chunks are processed at once.
	ParallelChunks int

	// ConcurrencyBudget is the request permit count handed to the API
	// client. Chunky itself does not use it.
	ConcurrencyBudget int

	// FieldSelections restricts the fields requested for a related type.
	// Types without an entry are fetched with all fields.
	FieldSelections map[string][]string
}

// DefaultConfig returns the standard run parameters.
func DefaultConfig() Config {
	return Config{
		ChunkSize:         1000,
		ExcludeModules:    []string{"Address", "CollectionActivity", "Ownership", "Registrar"},
		ParallelChunks:    1,
		ConcurrencyBudget: budget.DefaultSize,
		FieldSelections: map[string][]string{
			"Address": DefaultAddressFields(),
		},
	}
}

// DefaultAddressFields is the reduced field list requested for Address
// records. Fetching all Address fields makes the server fail.
func DefaultAddressFields() []string {
	return []string{
		search.IDField,
		"AdrSurNameTxt",
		"AdrForeNameTxt",
		"AdrStreetTxt",
		"AdrPostcodeTxt",
		"AdrCityTxt",
		"AdrCountryTxt",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be > 0 (got %d)", c.ChunkSize)
	}
	if c.ParallelChunks <= 0 {
		return fmt.Errorf("parallel_chunks must be > 0 (got %d)", c.ParallelChunks)
	}
	if c.ConcurrencyBudget < 0 {
		return fmt.Errorf("concurrency_budget must not be negative (got %d)", c.ConcurrencyBudget)
	}
	return nil
}

// Chunky runs seed queries against an API and stores chunks in a Sink.
// The configuration is read-only once New returns.
type Chunky struct {
	api      API
	sink     Sink
	config   Config
	excluded map[string]struct{}
	logger   zerolog.Logger
}

// New creates a Chunky.
func New(api API, sink Sink, cfg Config) (*Chunky, error) {
	if api == nil {
		return nil, fmt.Errorf("api is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	excluded := make(map[string]struct{}, len(cfg.ExcludeModules))
	for _, m := range cfg.ExcludeModules {
		excluded[m] = struct{}{}
	}

	return &Chunky{
		api:      api,
		sink:     sink,
		config:   cfg,
		excluded: excluded,
		logger:   logging.NewLogger("chunky"),
	}, nil
}

// Count returns the total number of records seed selects and the number of
// chunks needed for them.
func (c *Chunky) Count(ctx context.Context, seed SeedQuery) (total, chunks int, err error) {
	doc, err := c.page(ctx, seed, 1, 0, true)
	if err != nil {
		return 0, 0, err
	}
	total, err = doc.TotalSize(seed.Target)
	if err != nil {
		return 0, 0, err
	}
	plan, err := pagination.NewPlan(total, c.config.ChunkSize)
	if err != nil {
		return 0, 0, err
	}
	return total, plan.ChunkCount(), nil
}

// FetchChunk fetches ChunkSize seed records starting at offset.
func (c *Chunky) FetchChunk(ctx context.Context, seed SeedQuery, offset int) (*record.Document, error) {
	return c.page(ctx, seed, c.config.ChunkSize, offset, false)
}

// page runs the seed search with the given paging. idOnly restricts the
// response to the id field.
func (c *Chunky) page(ctx context.Context, seed SeedQuery, limit, offset int, idOnly bool) (*record.Document, error) {
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	if seed.Kind == KindSavedQuery {
		return c.api.RunSavedQuery(ctx, seed.ID, seed.Target, limit, offset)
	}

	q, err := BuildSeedQuery(seed, limit, offset)
	if err != nil {
		return nil, err
	}
	if idOnly {
		q.AddField(search.IDField)
	}
	if err := q.Validate(search.ModeSearch); err != nil {
		// BuildSeedQuery only produces valid queries.
		panic(fmt.Sprintf("chunky: invalid seed query for %s: %v", seed, err))
	}
	return c.api.Search(ctx, q)
}
