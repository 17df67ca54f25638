// Package logging provides structured logging for taskpilot components.
//
// Built on log/slog with JSON output to stderr. Request handlers derive a
// child logger carrying the request's correlation id so every downstream
// log line can be joined back to its request.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New creates a JSON logger writing to stderr at the given level.
// Unknown level strings fall back to info.
func New(level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With("service", "taskpilot")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
