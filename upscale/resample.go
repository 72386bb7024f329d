// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package upscale

import (
	"context"
	"errors"
	"math"

	"github.com/anthonynsimon/bild/transform"

	"github.com/gogpu/ambient/bitmap"
)

// Resampler defaults.
const (
	DefaultScale   = 2.0
	DefaultMaxSide = 4096
)

// ErrInvalidScale is returned for a scale that would not enlarge.
var ErrInvalidScale = errors.New("upscale: scale must be greater than 1")

// Resampler upscales by filtered resampling. The zero value doubles the
// image with a Lanczos filter, capped at DefaultMaxSide pixels per side.
type Resampler struct {
	Scale   float64
	MaxSide int
	Filter  *transform.ResampleFilter // Lanczos if nil
}

// Upscale resizes h. The aux map, if any, is carried over unchanged.
func (r Resampler) Upscale(ctx context.Context, h *bitmap.Handle) (*bitmap.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, ht, err := r.size(h.Width(), h.Height())
	if err != nil {
		return nil, err
	}
	filter := transform.Lanczos
	if r.Filter != nil {
		filter = *r.Filter
	}
	img := transform.Resize(h.RGBA(), w, ht, filter)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if aux := h.Aux(); aux != nil {
		return bitmap.New(img, bitmap.WithAux(aux)), nil
	}
	return bitmap.New(img), nil
}

// size returns the target dimensions for a w x h image.
func (r Resampler) size(w, h int) (int, int, error) {
	scale := r.Scale
	if scale == 0 {
		scale = DefaultScale
	}
	if scale <= 1 || math.IsNaN(scale) {
		return 0, 0, ErrInvalidScale
	}
	maxSide := r.MaxSide
	if maxSide <= 0 {
		maxSide = DefaultMaxSide
	}
	if longest := float64(max(w, h)); longest*scale > float64(maxSide) {
		scale = max(float64(maxSide)/longest, 1)
	}
	return max(int(math.Round(float64(w)*scale)), 1), max(int(math.Round(float64(h)*scale)), 1), nil
}
