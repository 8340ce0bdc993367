// Package config loads the monk configuration from YAML, environment
// variables and command line overrides.
package config

import (
	"time"

	"github.com/mpapi-go/mpapi/pkg/budget"
	"github.com/mpapi-go/mpapi/pkg/chunky"
	"github.com/mpapi-go/mpapi/pkg/client"
	"github.com/mpapi-go/mpapi/pkg/joblock"
	"github.com/mpapi-go/mpapi/pkg/session"
)

// Config is the complete monk configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Chunky  ChunkyConfig  `yaml:"chunky" mapstructure:"chunky"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Redis   RedisConfig   `yaml:"redis" mapstructure:"redis"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// ServerConfig describes the MuseumPlus installation.
type ServerConfig struct {
	BaseURL         string        `yaml:"base_url" mapstructure:"base_url"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	ConnectionLimit int           `yaml:"connection_limit" mapstructure:"connection_limit"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	AcceptLanguage  string        `yaml:"accept_language" mapstructure:"accept_language"`
}

// FieldSelection limits the fields fetched for one related module.
type FieldSelection struct {
	Module string   `yaml:"module" mapstructure:"module"`
	Fields []string `yaml:"fields" mapstructure:"fields"`
}

// ChunkyConfig holds the run parameters.
type ChunkyConfig struct {
	ChunkSize         int              `yaml:"chunk_size" mapstructure:"chunk_size"`
	ExcludeModules    []string         `yaml:"exclude_modules" mapstructure:"exclude_modules"`
	ParallelChunks    int              `yaml:"parallel_chunks" mapstructure:"parallel_chunks"`
	ConcurrencyBudget int              `yaml:"concurrency_budget" mapstructure:"concurrency_budget"`
	FieldSelections   []FieldSelection `yaml:"field_selections" mapstructure:"field_selections"`
}

// OutputConfig controls where chunks are written.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// RedisConfig enables the job lock and the definition cache when Addr is set.
type RedisConfig struct {
	Addr          string        `yaml:"addr" mapstructure:"addr"`
	Password      string        `yaml:"password" mapstructure:"password"`
	DB            int           `yaml:"db" mapstructure:"db"`
	LockTTL       time.Duration `yaml:"lock_ttl" mapstructure:"lock_ttl"`
	DefinitionTTL time.Duration `yaml:"definition_ttl" mapstructure:"definition_ttl"`
}

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Pretty bool   `yaml:"pretty" mapstructure:"pretty"`
}

// MetricsConfig enables the /metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	run := chunky.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			ConnectionLimit: 100,
			AcceptLanguage:  "de",
		},
		Chunky: ChunkyConfig{
			ChunkSize:         run.ChunkSize,
			ExcludeModules:    run.ExcludeModules,
			ParallelChunks:    run.ParallelChunks,
			ConcurrencyBudget: budget.DefaultSize,
			FieldSelections: []FieldSelection{
				{Module: "Address", Fields: chunky.DefaultAddressFields()},
			},
		},
		Output: OutputConfig{
			Dir: ".",
		},
		Redis: RedisConfig{
			LockTTL:       joblock.DefaultTTL,
			DefinitionTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SessionConfig returns the transport configuration.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		BaseURL:         c.Server.BaseURL,
		User:            c.Server.User,
		Password:        c.Server.Password,
		ConnectionLimit: c.Server.ConnectionLimit,
		Timeout:         c.Server.Timeout,
		AcceptLanguage:  c.Server.AcceptLanguage,
	}
}

// ChunkyConfig returns the run parameters.
func (c *Config) ChunkyConfig() chunky.Config {
	selections := make(map[string][]string, len(c.Chunky.FieldSelections))
	for _, fs := range c.Chunky.FieldSelections {
		selections[fs.Module] = fs.Fields
	}
	return chunky.Config{
		ChunkSize:         c.Chunky.ChunkSize,
		ExcludeModules:    c.Chunky.ExcludeModules,
		ParallelChunks:    c.Chunky.ParallelChunks,
		ConcurrencyBudget: c.Chunky.ConcurrencyBudget,
		FieldSelections:   selections,
	}
}

// ClientConfig returns the API client configuration without budget and
// cache; the caller creates those.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.DefinitionTTL = c.Redis.DefinitionTTL
	cfg.Instance = c.Server.BaseURL
	cfg.Language = c.Server.AcceptLanguage
	return cfg
}
