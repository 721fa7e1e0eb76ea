package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. It discards everything until Init runs.
var Logger = zerolog.Nop()

// Level is a log threshold name as it appears in configuration
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// zerologLevel maps l onto zerolog, falling back to info for unknown names
func (l Level) zerologLevel() zerolog.Level {
	switch Level(strings.ToLower(string(l))) {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	// Output defaults to stdout
	Output io.Writer
}

// Init replaces the global logger according to cfg
func Init(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level.zerologLevel())

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with the owning component
func WithComponent(component string) zerolog.Logger {
	return with("component", component)
}

// WithBoosterID returns a child logger tagged with a booster id
func WithBoosterID(boosterID string) zerolog.Logger {
	return with("booster_id", boosterID)
}

// WithBatchID returns a child logger tagged with a batch id
func WithBatchID(batchID string) zerolog.Logger {
	return with("batch_id", batchID)
}

func with(key, value string) zerolog.Logger {
	return Logger.With().Str(key, value).Logger()
}
