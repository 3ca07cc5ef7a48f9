package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the orchestrator logger: human-readable text on stderr
// at the configured level, plus a JSON file kept at debug so the full
// provisioning trail survives for postmortems. An empty path disables the
// file sink. The returned func closes the file.
func SetupLogger(path string, level slog.Level) (*slog.Logger, func() error) {
	stderr := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	noop := func() error { return nil }

	if path == "" {
		return slog.New(stderr), noop
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.Error("log file unavailable, stderr only", "error", err, "path", path)
		return slog.New(stderr), noop
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(slogmulti.Fanout(stderr, fileHandler)), file.Close
}

// SetupLoggerWithWriters builds the same fanout over custom writers, for tests.
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
	))
}
