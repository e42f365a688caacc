package logger

import (
	"log/slog"
	"os"
)

// New builds the process logger: readable text at debug level in dev,
// JSON at info level everywhere else.
func New(env string) *slog.Logger {
	if env == "dev" {
		h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
		return slog.New(h)
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h)
}
