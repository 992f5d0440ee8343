// Copyright 2026 The Loom Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"io"
	"log/slog"
	"os"
)

// LevelForVerbosity maps a verbosity count to a log level: 0 is warn,
// 1 is info, and 2 or more is debug.
func LevelForVerbosity(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return slog.LevelWarn
	case verbosity == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// NewLogger returns a JSON logger on stderr at the level for verbosity
// and installs it as the slog default.
func NewLogger(verbosity int) *slog.Logger {
	logger := NewLoggerTo(os.Stderr, verbosity)
	slog.SetDefault(logger)
	return logger
}

// NewLoggerTo is NewLogger writing to w, without touching the slog
// default.
func NewLoggerTo(w io.Writer, verbosity int) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: LevelForVerbosity(verbosity),
	}))
}
