// Package logging configures the process-wide slog logger. Components derive
// child loggers with logger.With("component", ...) so log lines can be
// filtered per subsystem.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a level name to a slog.Level, case-insensitively. Anything
// unrecognized, including the empty string, means info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds a text logger at the given level, installs it as the slog
// default, and returns it.
func Setup(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
