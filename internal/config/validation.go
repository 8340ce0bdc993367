package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

// Validate checks everything a run needs. It returns ValidationErrors
// listing every problem found.
func (c *Config) Validate() error {
	var errs ValidationErrors
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateChunky()...)
	errs = append(errs, c.validateRedis()...)

	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)})
	}
	if c.Output.Dir == "" {
		errs = append(errs, ValidationError{Field: "output.dir", Message: "is required"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateServer() ValidationErrors {
	var errs ValidationErrors
	s := c.Server
	if s.BaseURL == "" {
		errs = append(errs, ValidationError{Field: "server.base_url", Message: "is required"})
	} else if u, err := url.Parse(s.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{Field: "server.base_url", Message: fmt.Sprintf("not an absolute URL: %q", s.BaseURL)})
	}
	if s.User == "" {
		errs = append(errs, ValidationError{Field: "server.user", Message: "is required"})
	}
	if s.ConnectionLimit <= 0 {
		errs = append(errs, ValidationError{Field: "server.connection_limit", Message: fmt.Sprintf("must be > 0 (got %d)", s.ConnectionLimit)})
	}
	if s.Timeout < 0 {
		errs = append(errs, ValidationError{Field: "server.timeout", Message: "must not be negative"})
	}
	return errs
}

func (c *Config) validateChunky() ValidationErrors {
	var errs ValidationErrors
	ch := c.Chunky
	if ch.ChunkSize <= 0 {
		errs = append(errs, ValidationError{Field: "chunky.chunk_size", Message: fmt.Sprintf("must be > 0 (got %d)", ch.ChunkSize)})
	}
	if ch.ParallelChunks <= 0 {
		errs = append(errs, ValidationError{Field: "chunky.parallel_chunks", Message: fmt.Sprintf("must be > 0 (got %d)", ch.ParallelChunks)})
	}
	if ch.ConcurrencyBudget <= 0 {
		errs = append(errs, ValidationError{Field: "chunky.concurrency_budget", Message: fmt.Sprintf("must be > 0 (got %d)", ch.ConcurrencyBudget)})
	}
	for i, fs := range ch.FieldSelections {
		if fs.Module == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("chunky.field_selections[%d].module", i), Message: "is required"})
		}
		if len(fs.Fields) == 0 {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("chunky.field_selections[%d].fields", i), Message: "must not be empty"})
		}
	}
	return errs
}

func (c *Config) validateRedis() ValidationErrors {
	if !c.Redis.Enabled() {
		return nil
	}
	var errs ValidationErrors
	if c.Redis.DB < 0 {
		errs = append(errs, ValidationError{Field: "redis.db", Message: "must not be negative"})
	}
	if c.Redis.LockTTL <= 0 {
		errs = append(errs, ValidationError{Field: "redis.lock_ttl", Message: "must be > 0"})
	}
	if c.Redis.DefinitionTTL <= 0 {
		errs = append(errs, ValidationError{Field: "redis.definition_ttl", Message: "must be > 0"})
	}
	return errs
}
