// Package log wraps zerolog behind a tiny facade so components carry a
// named, structured logger without depending on the backend directly.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logger handed to components.
type Logger = zerolog.Logger

// Config controls the process logger.
type Config struct {
	// Level is one of trace, debug, info, warn, error. Default info.
	Level string
	// Console switches to human-readable console output.
	Console bool
	// Out overrides the sink; default stderr.
	Out io.Writer
}

// New builds the process logger.
func New(cfg Config) Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level := zerolog.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "trace":
		level = zerolog.TraceLevel
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Component derives a child logger tagged with a component name.
func Component(l Logger, name string) Logger {
	return l.With().Str("component", name).Logger()
}

// Nop returns a disabled logger for tests.
func Nop() Logger {
	return zerolog.Nop()
}
