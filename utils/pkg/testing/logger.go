package vaulttesting

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// NewLogger returns a logger for tests. Output is limited to errors unless DEBUG is
// set: DEBUG=1 shows info, DEBUG=2 shows debug.
func NewLogger() *slog.Logger {
	level := slog.LevelError
	switch os.Getenv("DEBUG") {
	case "2":
		level = slog.LevelDebug
	case "1":
		level = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		NoColor:    true,
		TimeFormat: "15:04:05.000",
	}))
}
