package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace is below DEBUG and used for per-event detail.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel resolves a level name. An empty name falls back to the -v
// count: none is INFO, one is DEBUG, two or more is TRACE.
func ParseLevel(name string, verboseCount int) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "":
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}

	switch {
	case verboseCount >= 2:
		return LevelTrace, nil
	case verboseCount == 1:
		return slog.LevelDebug, nil
	}
	return slog.LevelInfo, nil
}
