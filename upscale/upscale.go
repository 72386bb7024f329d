// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package upscale enlarges generated images before they are published.
//
// Upscaling is best effort. Guard runs an Upscaler under a deadline and
// falls back to the original image on any error, so a failing or hung
// upscaler never stops images from reaching the screen.
package upscale

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/ambient/bitmap"
	"github.com/gogpu/ambient/internal/logx"
)

// DefaultTimeout bounds a single upscale.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is reported when an upscale does not finish in time.
var ErrTimeout = errors.New("upscale: timed out")

// Upscaler produces a larger version of an image. The returned handle is
// owned by the caller; h is not consumed.
type Upscaler interface {
	Upscale(ctx context.Context, h *bitmap.Handle) (*bitmap.Handle, error)
}

// Func adapts a function to the Upscaler interface.
type Func func(ctx context.Context, h *bitmap.Handle) (*bitmap.Handle, error)

// Upscale calls f.
func (f Func) Upscale(ctx context.Context, h *bitmap.Handle) (*bitmap.Handle, error) {
	return f(ctx, h)
}

// Guard applies an Upscaler with a timeout and an original-image fallback.
type Guard struct {
	Upscaler Upscaler
	Timeout  time.Duration // DefaultTimeout if zero
	Logger   *slog.Logger
}

type result struct {
	h   *bitmap.Handle
	err error
}

// Apply returns a new reference to the upscaled image, or a new reference
// to h if upscaling fails, times out or is not configured.
//
// The upscaler runs on its own goroutine. If it outlives the deadline its
// eventual result is released when it arrives.
func (g *Guard) Apply(ctx context.Context, h *bitmap.Handle) *bitmap.Handle {
	if g == nil || g.Upscaler == nil || h == nil {
		return h.Retain()
	}
	log := logx.Or(g.Logger)
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	src := h.Retain()
	done := make(chan result, 1)
	go func() {
		out, err := g.run(ctx, src)
		src.Release()
		done <- result{out, err}
	}()

	start := time.Now()
	select {
	case r := <-done:
		if r.err != nil || r.h == nil {
			if r.err == nil {
				r.err = errors.New("upscale: no image returned")
			}
			log.Warn("upscale: failed, using original", "id", h.ID(), "error", r.err)
			r.h.Release()
			return h.Retain()
		}
		log.Debug("upscale: done", "id", h.ID(), "width", r.h.Width(), "height", r.h.Height(),
			"elapsed", time.Since(start))
		return r.h
	case <-ctx.Done():
		go func() { (<-done).h.Release() }()
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}
		log.Warn("upscale: abandoned, using original", "id", h.ID(), "error", err)
		return h.Retain()
	}
}

// run calls the upscaler, turning a panic into an error.
func (g *Guard) run(ctx context.Context, h *bitmap.Handle) (out *bitmap.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("upscale: panic: %v", r)
		}
	}()
	return g.Upscaler.Upscale(ctx, h)
}
