package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger keeps the printf-style surface used across the client on top of
// a zerolog logger.
type Logger struct {
	zl    zerolog.Logger
	level string
}

// NewLogger writes JSON lines to out, or console output when pretty is set.
// A nil out means stderr.
func NewLogger(level string, pretty bool, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	lvl := parseLevel(level)
	zl := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return &Logger{zl: zl, level: lvl.String()}
}

// NopLogger discards everything.
func NopLogger() *Logger {
	return &Logger{zl: zerolog.Nop(), level: zerolog.Disabled.String()}
}

// Zerolog exposes the underlying logger for events with structured fields.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

func (l *Logger) Level() string {
	return l.level
}

func (l *Logger) Debugf(format string, args ...any) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.zl.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.zl.Error().Msgf(format, args...)
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
