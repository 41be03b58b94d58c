// Package logging configures the process-wide slog default. The level is
// read from BABELMEET_LOG_LEVEL so a noisy TUI session can be debugged
// without touching flags.
package logging

import (
	"log/slog"
	"os"
)

// Init installs a text handler on stderr. Errors only by default: the CLI
// owns stdout and anything chattier would corrupt the bubbletea views.
func Init() {
	level := slog.LevelError

	if l, ok := os.LookupEnv("BABELMEET_LOG_LEVEL"); ok {
		switch l {
		case "dev", "development", "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error", "production", "prod":
			level = slog.LevelError
		}
	}

	slog.SetDefault(slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	))
}
