// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package software is the CPU compositor device.
//
// It runs the same composite math as the native shader on *image.RGBA
// textures, split into row bands on a worker pool. Work completes inside
// Submit, so every Submission is already done. The device registers itself
// with the backend package as "software".
package software

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/gogpu/ambient/backend"
	"github.com/gogpu/ambient/bitmap"
	"github.com/gogpu/ambient/compositor"
	"github.com/gogpu/ambient/internal/logx"
	"github.com/gogpu/ambient/internal/parallel"
)

// Errors returned by the device.
var (
	ErrSizeMismatch     = errors.New("software: image size does not match texture")
	ErrFormatMismatch   = errors.New("software: image format does not match texture")
	ErrInvalidSize      = errors.New("software: invalid texture size")
	ErrForeignTexture   = errors.New("software: texture belongs to another device")
	ErrTextureDestroyed = errors.New("software: texture destroyed")
)

func init() {
	backend.Register(backend.Software, func(o backend.Options) (compositor.Device, error) {
		return New(o.Width, o.Height,
			WithWorkers(o.Workers),
			WithPresenter(o.Present),
			WithLogger(o.Logger),
		), nil
	})
}

// Option configures a Device.
type Option func(*Device)

// WithWorkers sets the number of compositing goroutines.
func WithWorkers(n int) Option {
	return func(d *Device) { d.workers = n }
}

// WithPresenter sets the function receiving finished frames.
func WithPresenter(fn func(*image.RGBA) error) Option {
	return func(d *Device) { d.present = fn }
}

// WithLogger sets the device logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) { d.log = logx.Or(l) }
}

// Device composites on the CPU.
//
// Compositor methods are called from the loop goroutine. Resize and
// Snapshot may be called from any goroutine.
type Device struct {
	workers int
	pool    *parallel.WorkerPool
	present func(*image.RGBA) error
	log     *slog.Logger

	mu     sync.Mutex
	width  int
	height int
	last   *image.RGBA
}

// New creates a device with the given output size.
func New(width, height int, opts ...Option) *Device {
	d := &Device{
		width:  max(width, 0),
		height: max(height, 0),
		log:    logx.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.pool = parallel.NewWorkerPool(d.workers)
	d.log.Debug("software: device created", "width", d.width, "height", d.height, "workers", d.pool.Workers())
	return d
}

// NewTexture allocates a zeroed texture.
func (d *Device) NewTexture(desc compositor.TextureDesc) (compositor.Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, desc.Width, desc.Height)
	}
	r := image.Rect(0, 0, desc.Width, desc.Height)
	t := &Texture{dev: d, label: desc.Label, format: desc.Format}
	if desc.Format == compositor.FormatR8 {
		t.gray = image.NewGray(r)
	} else {
		t.rgba = image.NewRGBA(r)
	}
	return t, nil
}

// Upload copies h's pixels into tex.
func (d *Device) Upload(tex compositor.Texture, h *bitmap.Handle) error {
	t, err := d.own(tex)
	if err != nil {
		return err
	}
	if h.Width() != t.Width() || h.Height() != t.Height() {
		return fmt.Errorf("%w: %dx%d into %dx%d", ErrSizeMismatch, h.Width(), h.Height(), t.Width(), t.Height())
	}
	if compositor.FormatOf(h) != t.format {
		return ErrFormatMismatch
	}
	src := h.Image()
	if t.gray != nil {
		draw.Draw(t.gray, t.gray.Bounds(), src, src.Bounds().Min, draw.Src)
	} else {
		draw.Draw(t.rgba, t.rgba.Bounds(), src, src.Bounds().Min, draw.Src)
	}
	return nil
}

// Begin starts a frame.
func (d *Device) Begin() (compositor.Encoder, error) {
	return &encoder{dev: d}, nil
}

// Present stores a copy of tex as the latest frame and hands it to the
// presenter.
func (d *Device) Present(tex compositor.Texture) error {
	t, err := d.own(tex)
	if err != nil {
		return err
	}
	if t.rgba == nil {
		return ErrFormatMismatch
	}

	d.mu.Lock()
	if d.last == nil || d.last.Bounds() != t.rgba.Bounds() {
		d.last = image.NewRGBA(t.rgba.Bounds())
	}
	copy(d.last.Pix, t.rgba.Pix)
	frame := d.last
	d.mu.Unlock()

	if d.present == nil {
		return nil
	}
	if err := d.present(frame); err != nil {
		return fmt.Errorf("present: %w", err)
	}
	return nil
}

// SurfaceSize returns the output size.
func (d *Device) SurfaceSize() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

// Resize changes the output size; the loop picks it up on its next tick.
func (d *Device) Resize(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = max(width, 0), max(height, 0)
}

// Snapshot returns a copy of the last presented frame, or nil.
func (d *Device) Snapshot() *image.RGBA {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return nil
	}
	out := image.NewRGBA(d.last.Bounds())
	copy(out.Pix, d.last.Pix)
	return out
}

// Destroy stops the worker pool.
func (d *Device) Destroy() {
	d.pool.Close()
}

func (d *Device) own(tex compositor.Texture) (*Texture, error) {
	t, ok := tex.(*Texture)
	if !ok || t == nil || t.dev != d {
		return nil, ErrForeignTexture
	}
	if t.destroyed {
		return nil, ErrTextureDestroyed
	}
	return t, nil
}

// Texture is a CPU texture. Exactly one of its images is set.
type Texture struct {
	dev       *Device
	label     string
	format    compositor.Format
	rgba      *image.RGBA
	gray      *image.Gray
	destroyed bool
}

// Width returns the width in pixels.
func (t *Texture) Width() int { return t.bounds().Dx() }

// Height returns the height in pixels.
func (t *Texture) Height() int { return t.bounds().Dy() }

// Format returns the texel format.
func (t *Texture) Format() compositor.Format { return t.format }

// Destroy drops the pixels.
func (t *Texture) Destroy() {
	t.destroyed = true
	t.rgba, t.gray = nil, nil
}

// Label returns the debug label.
func (t *Texture) Label() string { return t.label }

func (t *Texture) bounds() image.Rectangle {
	switch {
	case t.rgba != nil:
		return t.rgba.Bounds()
	case t.gray != nil:
		return t.gray.Bounds()
	default:
		return image.Rectangle{}
	}
}

type encoder struct {
	dev  *Device
	cmds []func() error
	done bool
}

func (e *encoder) Composite(pass *compositor.CompositePass) {
	p := *pass
	e.cmds = append(e.cmds, func() error { return e.dev.composite(&p) })
}

func (e *encoder) Copy(src, dst compositor.Texture) {
	e.cmds = append(e.cmds, func() error {
		s, err := e.dev.own(src)
		if err != nil {
			return err
		}
		t, err := e.dev.own(dst)
		if err != nil {
			return err
		}
		if s.rgba == nil || t.rgba == nil {
			return ErrFormatMismatch
		}
		if s.rgba.Bounds() != t.rgba.Bounds() {
			return ErrSizeMismatch
		}
		copy(t.rgba.Pix, s.rgba.Pix)
		return nil
	})
}

func (e *encoder) Submit() (compositor.Submission, error) {
	if e.done {
		return nil, errors.New("software: encoder already submitted")
	}
	e.done = true
	for _, cmd := range e.cmds {
		if err := cmd(); err != nil {
			return nil, err
		}
	}
	return completed{}, nil
}

// completed is a submission that finished inside Submit.
type completed struct{}

func (completed) Wait(time.Duration) (bool, error) { return true, nil }
func (completed) Release()                         {}
