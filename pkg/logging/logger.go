// Package logging configures the zerolog logger shared by all packages and
// provides helpers that attach run and chunk context to it.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger. Loggers created with
// NewLogger afterwards inherit its output and level.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForRun adds the fields identifying one orchestrator run.
func ForRun(l zerolog.Logger, runID, job, seed string) zerolog.Logger {
	return l.With().
		Str("run_id", runID).
		Str("job", job).
		Str("seed", seed).
		Logger()
}

// ForChunk adds the chunk number.
func ForChunk(l zerolog.Logger, chunk int) zerolog.Logger {
	return l.With().Int("chunk", chunk).Logger()
}

// Log Level Guidelines:
//
// Debug: request flow and internals
//   - Individual RIA requests (endpoint, status, duration)
//   - Related types discovered per chunk and their ID counts
//   - Batch boundaries while draining chunks
//   - Definition cache hit/miss
//
// Info: normal run events
//   - Run start and finish
//   - Chunk written, chunk skipped because output exists
//   - Job lock acquired/released
//
// Warn: conditions that do not stop the run
//   - Trailing empty chunk
//   - Definition cache errors (fallback to direct request)
//
// Error: conditions that abort a run
//   - Failed chunk (with the related type in flight)
//   - Configuration and job file errors
//
// Context Fields:
//   - run_id: ULID of the orchestrator run
//   - job: job name from jobs.dsl
//   - seed: seed query, e.g. "group 182397 Object"
//   - chunk: 1-based chunk number
//   - related: related record type being fetched
//   - module: RIA module of a request
//   - endpoint: request path below the application root
//   - status: HTTP status code
//   - duration: request or run duration
//   - error_class: client, server or network
//   - path: output file
//   - items: number of records in a document
