// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package bitmap provides shared-ownership handles to immutable decoded images.
//
// A Handle is published by a background producer and read by the render
// loop. Pixels are never mutated after construction. Each holder (the image
// slot, the transition tracker, a resident GPU upload) owns one reference
// through Retain and gives it back through Release. The last Release
// releases any attached auxiliary map and runs the release hook.
package bitmap

import (
	"image"
	"log/slog"
	"sync/atomic"

	"golang.org/x/image/draw"

	"github.com/gogpu/ambient/internal/logx"
)

// loggerPtr receives reference-count misuse reports.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(logx.Nop())
}

// SetLogger sets the logger used for reference-count diagnostics. Nil
// restores the silent default.
func SetLogger(l *slog.Logger) {
	loggerPtr.Store(logx.Or(l))
}

// nextID hands out process-unique handle identities.
var nextID atomic.Uint64

// Handle is an opaque, reference-counted reference to an immutable bitmap.
//
// Handle is safe for concurrent use. A nil *Handle is valid and means
// "no image"; Retain and Release on nil are no-ops.
type Handle struct {
	id   uint64
	rgba *image.RGBA
	gray *image.Gray
	aux  *Handle

	refs      atomic.Int64
	onRelease func(*Handle)
	released  atomic.Bool
}

// Option configures a Handle at construction.
type Option func(*Handle)

// WithAux attaches an auxiliary grayscale map (for example a saliency map)
// addressed with the same normalized coordinates as the image. The handle
// takes its own reference to aux.
func WithAux(aux *Handle) Option {
	return func(h *Handle) {
		h.aux = aux.Retain()
	}
}

// WithReleaseFunc registers fn to run once, when the last reference is
// released. fn runs on the goroutine that drops the last reference and must
// not block.
func WithReleaseFunc(fn func(*Handle)) Option {
	return func(h *Handle) {
		h.onRelease = fn
	}
}

// New creates a handle holding img with one reference owned by the caller.
// Images that are not *image.RGBA are converted once.
func New(img image.Image, opts ...Option) *Handle {
	h := &Handle{id: nextID.Add(1), rgba: toRGBA(img)}
	h.refs.Store(1)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewGray creates a single-channel handle, used for auxiliary maps.
func NewGray(img image.Image, opts ...Option) *Handle {
	h := &Handle{id: nextID.Add(1), gray: toGray(img)}
	h.refs.Store(1)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ID returns the handle identity. Two handles are the same image exactly
// when their IDs are equal; ID 0 is never assigned.
func (h *Handle) ID() uint64 {
	if h == nil {
		return 0
	}
	return h.id
}

// Retain adds a reference and returns h for chaining. Retaining a handle
// whose last reference is gone does not revive it.
func (h *Handle) Retain() *Handle {
	if h == nil {
		return nil
	}
	for {
		n := h.refs.Load()
		if n <= 0 {
			loggerPtr.Load().Debug("bitmap: retain of released handle", "id", h.id)
			return h
		}
		if h.refs.CompareAndSwap(n, n+1) {
			return h
		}
	}
}

// Release drops a reference. The last Release releases the auxiliary map and
// runs the release hook exactly once. Releasing past zero is a no-op.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	for {
		n := h.refs.Load()
		if n <= 0 {
			loggerPtr.Load().Debug("bitmap: release of released handle", "id", h.id)
			return
		}
		if h.refs.CompareAndSwap(n, n-1) {
			if n > 1 {
				return
			}
			break
		}
	}
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	aux := h.aux
	h.aux = nil
	aux.Release()
	if h.onRelease != nil {
		h.onRelease(h)
	}
}

// Refs returns the current reference count.
func (h *Handle) Refs() int64 {
	if h == nil {
		return 0
	}
	return h.refs.Load()
}

// Released reports whether the last reference has been dropped.
func (h *Handle) Released() bool {
	return h != nil && h.released.Load()
}

// Image returns the bitmap as an image.Image. The result must be treated as
// read-only.
func (h *Handle) Image() image.Image {
	switch {
	case h == nil:
		return nil
	case h.gray != nil:
		return h.gray
	default:
		return h.rgba
	}
}

// RGBA returns the color pixels, or nil for grayscale handles.
func (h *Handle) RGBA() *image.RGBA {
	if h == nil {
		return nil
	}
	return h.rgba
}

// Gray returns the grayscale pixels, or nil for color handles.
func (h *Handle) Gray() *image.Gray {
	if h == nil {
		return nil
	}
	return h.gray
}

// IsGray reports whether the handle holds a single-channel map.
func (h *Handle) IsGray() bool {
	return h != nil && h.gray != nil
}

// Aux returns the attached auxiliary map without adding a reference.
// The map lives at least as long as h.
func (h *Handle) Aux() *Handle {
	if h == nil {
		return nil
	}
	return h.aux
}

// Bounds returns the image bounds.
func (h *Handle) Bounds() image.Rectangle {
	if img := h.Image(); img != nil {
		return img.Bounds()
	}
	return image.Rectangle{}
}

// Width returns the image width in pixels.
func (h *Handle) Width() int { return h.Bounds().Dx() }

// Height returns the image height in pixels.
func (h *Handle) Height() int { return h.Bounds().Dy() }

// Same reports whether a and b refer to the same image identity.
func Same(a, b *Handle) bool {
	return a.ID() == b.ID()
}

func toRGBA(img image.Image) *image.RGBA {
	if img == nil {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func toGray(img image.Image) *image.Gray {
	if img == nil {
		return image.NewGray(image.Rect(0, 0, 0, 0))
	}
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
