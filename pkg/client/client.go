// Package client provides the RIA calls the chunk pipeline depends on:
// module search, saved queries and module definitions.
//
// Every request holds one permit of the shared concurrency budget for the
// duration of the network call. Responses are parsed into record documents
// after the permit is released.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mpapi-go/mpapi/pkg/budget"
	"github.com/mpapi-go/mpapi/pkg/cache"
	"github.com/mpapi-go/mpapi/pkg/logging"
	"github.com/mpapi-go/mpapi/pkg/record"
	"github.com/mpapi-go/mpapi/pkg/search"
)

// Transport is the subset of session.Session the client uses.
type Transport interface {
	Get(ctx context.Context, operation, path string) ([]byte, error)
	Post(ctx context.Context, operation, path string, body []byte) ([]byte, error)
	Close() error
}

// Config holds the client configuration.
type Config struct {
	// Budget bounds simultaneous requests. Nil means a private budget of
	// budget.DefaultSize permits.
	Budget *budget.Budget

	// Cache stores module definitions. Nil disables caching.
	Cache *cache.Manager

	// DefinitionTTL is how long cached definitions stay valid.
	DefinitionTTL time.Duration

	// Instance and Language are part of the definition cache key.
	Instance string
	Language string
}

// DefaultConfig returns a configuration without cache.
func DefaultConfig() Config {
	return Config{
		DefinitionTTL: 24 * time.Hour,
		Language:      "de",
	}
}

// Client issues budget-gated RIA requests over a Transport.
type Client struct {
	transport Transport
	budget    *budget.Budget
	cache     *cache.Manager
	config    Config
	logger    zerolog.Logger
}

// New creates a client. The client does not own transport until Close is
// called on it.
func New(transport Transport, cfg Config) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.Budget == nil {
		b, err := budget.New(budget.DefaultSize)
		if err != nil {
			return nil, err
		}
		cfg.Budget = b
	}
	if cfg.Cache != nil && cfg.DefinitionTTL <= 0 {
		return nil, fmt.Errorf("definition_ttl must be > 0 when a cache is configured (got %s)", cfg.DefinitionTTL)
	}

	return &Client{
		transport: transport,
		budget:    cfg.Budget,
		cache:     cfg.Cache,
		config:    cfg,
		logger:    logging.NewLogger("client"),
	}, nil
}

// Search validates q, posts it to module/{module}/search and parses the
// result.
func (c *Client) Search(ctx context.Context, q *search.Query) (*record.Document, error) {
	if err := q.Validate(search.ModeSearch); err != nil {
		return nil, err
	}
	body, err := q.XML()
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("module", q.Module).
		Int("limit", q.Limit).
		Int("offset", q.Offset).
		Int("criteria", len(q.Criteria)).
		Msg("Search")

	path := fmt.Sprintf("module/%s/search", q.Module)
	data, err := c.post(ctx, "search", path, body)
	if err != nil {
		return nil, err
	}
	return record.Parse(data)
}

// RunSavedQuery runs the saved query id against module. The request body
// only controls paging.
func (c *Client) RunSavedQuery(ctx context.Context, id int64, module string, limit, offset int) (*record.Document, error) {
	q := search.New(module, limit, offset)
	if err := q.Validate(search.ModeSearch); err != nil {
		return nil, err
	}
	body, err := q.XML()
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("module/%s/search/savedQuery/%d", module, id)
	data, err := c.post(ctx, "saved_query", path, body)
	if err != nil {
		return nil, err
	}
	return record.Parse(data)
}

// GetDefinition returns the definition of module, or of all modules when
// module is empty. With a cache configured, a cached definition is returned
// without contacting the server; cache failures fall back to the server.
func (c *Client) GetDefinition(ctx context.Context, module string) ([]byte, error) {
	path := "module/definition"
	if module != "" {
		path = fmt.Sprintf("module/%s/definition", module)
	}
	key := cache.Key{Endpoint: path, Instance: c.config.Instance, Language: c.config.Language}

	if c.cache != nil {
		entry, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			c.logger.Debug().Str("endpoint", path).Bool("cache_hit", true).Msg("Definition from cache")
			return entry.Data, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", path).Msg("Definition cache read failed")
		}
	}

	var data []byte
	err := c.budget.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.transport.Get(ctx, "definition", path)
		return err
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, cache.NewEntry(data, c.config.DefinitionTTL)); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", path).Msg("Definition cache write failed")
		}
	}
	return data, nil
}

// Close closes the underlying transport. It may be called more than once
// if the transport allows it.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) post(ctx context.Context, operation, path string, body []byte) ([]byte, error) {
	var data []byte
	err := c.budget.Do(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.transport.Post(ctx, operation, path, body)
		return err
	})
	return data, err
}
