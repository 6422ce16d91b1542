package app

import (
	"io"
	"log/slog"
)

// newLogger builds an isolated slog.Logger for one invocation; the global
// logger is never touched. Unknown levels fall back to info, anything but
// "json" renders as text.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts))
	}
	return slog.New(slog.NewTextHandler(outW, opts))
}
