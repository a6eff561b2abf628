// Package logging provides structured logging configuration using zerolog.
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
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
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

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
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

// WithJob attaches a crawl job id as a correlation field. Components working
// on behalf of a job log through a WithJob-derived logger rather than the
// ambient global.
func WithJob(logger zerolog.Logger, jobID string) zerolog.Logger {
	return logger.With().Str("job_id", jobID).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Individual page fetches and their pagination metadata
//   - Directory cache operations (hit/miss, TTL)
//   - Region split decisions
//
// Info: Normal operation events
//   - Job lifecycle transitions (running, completed)
//   - Region counts and direct-fetch decisions
//   - Per-page save and progress updates
//
// Warn: Warning conditions that don't prevent operation
//   - Query retries after transport errors
//   - Short pages without pagination metadata
//   - Detail fallback to the track document
//   - Count oracle failures (degraded to zero)
//
// Error: Error conditions requiring attention
//   - Retry exhaustion on a single query
//   - Job-level failures
//   - Store write errors
//
// Context Fields:
//   - job_id: crawl job correlation id
//   - operation: GraphQL operation name
//   - region: time range and geography scope of a query
//   - page: page number within a region
//   - count: oracle count for a region
//   - fetched / total: durable progress counters
//   - source: detail provenance (graphql, html)
