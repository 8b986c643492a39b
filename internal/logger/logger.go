// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger. Logs go to stderr so the report on
// stdout stays clean.
func Setup(level, format string) {
	SetupWriter(os.Stderr, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) {
	zerolog.SetGlobalLevel(parseLevel(level))

	out := w
	if strings.ToLower(format) == "console" {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}

	log.Logger = zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger()
}

// parseLevel maps a config level to zerolog. Unknown or empty levels log
// at info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Get returns a child of the global logger tagged with component.
func Get(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
