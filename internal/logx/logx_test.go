// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package logx

import (
	"context"
	"log/slog"
	"testing"
)

func TestNopHandler(t *testing.T) {
	h := nopHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if h.Enabled(context.Background(), level) {
			t.Errorf("nopHandler.Enabled(%v) = true, want false", level)
		}
	}
	if err := h.Handle(context.Background(), slog.Record{}); err != nil {
		t.Errorf("nopHandler.Handle() = %v, want nil", err)
	}
	if !IsNop(h.WithAttrs([]slog.Attr{slog.String("k", "v")})) {
		t.Error("WithAttrs should return a nop handler")
	}
	if !IsNop(h.WithGroup("g")) {
		t.Error("WithGroup should return a nop handler")
	}
}

func TestOr(t *testing.T) {
	if Or(nil) != Nop() {
		t.Error("Or(nil) should return the nop logger")
	}
	l := slog.Default()
	if Or(l) != l {
		t.Error("Or(l) should return l")
	}
}
