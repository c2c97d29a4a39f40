// Package logging configures zerolog for the orchestrator and hands out
// component loggers.
//
// Levels: Debug for cache hits, pacing and single upstream calls; Info for
// preloads, query summaries and server lifecycle; Warn for retries, cold
// caches, snapshot errors and fallbacks; Error for exhausted retries and
// failed fallbacks.
//
// Common fields: component, query, request_id, endpoint, status_code,
// error_class, kind.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a level name as accepted in LOG_LEVEL.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written. Unknown names fall back to info.
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON output at info level on stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// ParseLevel validates a level name. "warning" is accepted for warn.
func ParseLevel(s string) (LogLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "warning" {
		name = string(LevelWarn)
	}
	switch LogLevel(name) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return LogLevel(name), nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

// Setup installs the global logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.level())

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

func (l LogLevel) level() zerolog.Level {
	level, err := ParseLevel(string(l))
	if err != nil {
		return zerolog.InfoLevel
	}
	parsed, err := zerolog.ParseLevel(string(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return parsed
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForQuery tags a logger with the query label and request id of one
// request context.
func ForQuery(logger zerolog.Logger, label, requestID string) zerolog.Logger {
	return logger.With().
		Str("query", label).
		Str("request_id", requestID).
		Logger()
}
