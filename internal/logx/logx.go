// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package logx holds the silent slog handler shared by ambient packages.
package logx

import (
	"context"
	"log/slog"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var nop = slog.New(nopHandler{})

// Nop returns a logger that discards all output.
func Nop() *slog.Logger { return nop }

// Or returns l, or the nop logger when l is nil.
func Or(l *slog.Logger) *slog.Logger {
	if l == nil {
		return nop
	}
	return l
}

// IsNop reports whether h is the silent handler.
func IsNop(h slog.Handler) bool {
	_, ok := h.(nopHandler)
	return ok
}
