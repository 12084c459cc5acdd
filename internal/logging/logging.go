package logging

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// New creates a *slog.Logger writing JSON to stderr and optionally to logFile.
// It also sets the logger as the slog default so package-level slog calls work.
// A log file larger than maxSizeMB is pruned to its newer half before it is
// opened. The returned cleanup func closes the log file if one was opened;
// callers must defer it.
func New(level, logFile string, maxSizeMB int) (*slog.Logger, func(), error) {
	lvl := parseLevel(level)

	writers := []io.Writer{os.Stderr}
	cleanup := func() {}

	var pruned int64
	if logFile != "" {
		var err error
		pruned, err = Prune(logFile, int64(maxSizeMB)*1024*1024)
		if err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, f)
		cleanup = func() { _ = f.Close() }
	}

	w := io.MultiWriter(writers...)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	if pruned > 0 {
		logger.Info("pruned log file", "path", logFile, "removed_bytes", pruned)
	}
	return logger, cleanup, nil
}

// Prune truncates path to the newer half of its content when it exceeds
// maxBytes. It returns the number of bytes removed. A missing file or a
// non-positive limit is not an error.
func Prune(path string, maxBytes int64) (int64, error) {
	if maxBytes <= 0 {
		return 0, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to stat log file: %w", err)
	}
	if info.Size() <= maxBytes {
		return 0, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read log file: %w", err)
	}
	// Cut at a line boundary so the kept half stays one JSON record per line.
	cut := len(data) / 2
	if cut > 0 && data[cut-1] != '\n' {
		if i := bytes.IndexByte(data[cut:], '\n'); i >= 0 {
			cut += i + 1
		}
	}
	keep := data[cut:]
	if err := os.WriteFile(path, keep, 0600); err != nil {
		return 0, fmt.Errorf("failed to rewrite log file: %w", err)
	}
	return int64(len(data) - len(keep)), nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
