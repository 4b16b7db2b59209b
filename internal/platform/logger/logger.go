package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON logger on stdout. Production logs at Info, every other
// environment at Debug.
func New(env string) *slog.Logger {
	level := slog.LevelDebug
	if env == "production" {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", "shareledger")
}
