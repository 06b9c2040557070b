package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log level mapping
var logLevelMap = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// newLogger builds the CLI logger. Logs go to stderr unless logFile is set,
// in which case they are appended to it as JSON.
func newLogger(stderr io.Writer, logLevel, logFormat, logFile string) (*slog.Logger, func() error, error) {
	level, ok := logLevelMap[strings.ToLower(logLevel)]
	if !ok {
		return nil, nil, fmt.Errorf("invalid log level %q (expected debug, info, warn or error)", logLevel)
	}

	closeFn := func() error { return nil }
	w := stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
		logFormat = "json"
		closeFn = f.Close
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		opts.AddSource = true
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("invalid log format %q (expected text or json)", logFormat)
	}

	logger := slog.New(handler)
	logger.Debug("logging initialized", "level", level.String(), "log_file", logFile)
	return logger, closeFn, nil
}
