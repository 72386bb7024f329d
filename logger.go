// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package ambient

import (
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/ambient/bitmap"
	"github.com/gogpu/ambient/config"
	"github.com/gogpu/ambient/internal/logx"
)

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(logx.Nop())
}

// SetLogger configures the default logger for engines created without
// WithLogger. By default ambient produces no log output. Pass nil to
// restore the silent default. The logger is also handed to the bitmap
// package for reference-count diagnostics.
//
// Log levels used by ambient:
//   - [slog.LevelDebug]: per-image diagnostics (uploads, evictions, publications)
//   - [slog.LevelInfo]: lifecycle events (backend selected, producer started)
//   - [slog.LevelWarn]: recovered failures (upscaler timeout, dropped frame, bad reload)
//
// Example:
//
//	ambient.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	l = logx.Or(l)
	loggerPtr.Store(l)
	bitmap.SetLogger(l)
}

// Logger returns the current default logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// NewLogger builds a logger writing to w as configured.
func NewLogger(c config.Log, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
