package app

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. format is "json" or "console".
// Unknown levels fall back to info.
func NewLogger(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "subtrack").Logger()
}
