package app

import (
	"fmt"
	"io"
	"log/slog"
)

// parseLevel maps a configured level name to a slog level.
func parseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LogLevel %q: must be 'debug', 'info', 'warn', or 'error'", name)
	}
}

// newLogger creates the application logger writing to outW. It does not set
// the global logger, so several App instances can coexist in one process.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	level, _ := parseLevel(levelStr)
	opts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts))
	}
	return slog.New(slog.NewTextHandler(outW, opts))
}
