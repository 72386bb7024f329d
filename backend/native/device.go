// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package native is the GPU compositor device, built directly on the
// gogpu/wgpu HAL.
//
// The composite pass is a fullscreen triangle running shaders/composite.wgsl
// with the frame uniforms, the current, previous, feedback and aux textures
// bound in one bind group. Copies and presentation use a blit pipeline.
// Every submission carries its own fence, so the compositor's in-flight
// accounting maps directly onto GPU completion.
//
// The device either opens its own Vulkan device or shares the host's
// through a gpucontext provider exposing HalDevice and HalQueue. It
// registers itself with the backend package as "native".
package native

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/ambient/backend"
	"github.com/gogpu/ambient/bitmap"
	"github.com/gogpu/ambient/compositor"
	"github.com/gogpu/ambient/internal/logx"
)

// Errors returned by the device.
var (
	ErrNoAdapter        = errors.New("native: no GPU adapter found")
	ErrInvalidProvider  = errors.New("native: provider does not expose a HAL device")
	ErrInvalidSize      = errors.New("native: invalid texture size")
	ErrSizeMismatch     = errors.New("native: image size does not match texture")
	ErrFormatMismatch   = errors.New("native: image format does not match texture")
	ErrForeignTexture   = errors.New("native: texture belongs to another device")
	ErrTextureDestroyed = errors.New("native: texture destroyed")
	ErrGPUTimeout       = errors.New("native: GPU wait timed out")
)

// DefaultWaitTimeout bounds synchronous GPU waits in Present.
const DefaultWaitTimeout = 2 * time.Second

// rowAlignment is the required BytesPerRow alignment of buffer copies.
const rowAlignment = 256

func init() {
	backend.Register(backend.Native, func(o backend.Options) (compositor.Device, error) {
		opts := []Option{WithPresenter(o.Present), WithLogger(o.Logger)}
		if o.Provider != nil {
			return FromProvider(o.Provider, o.Width, o.Height, opts...)
		}
		return New(o.Width, o.Height, opts...)
	})
}

// halProvider is implemented by gpucontext providers that expose their
// underlying HAL objects.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// Option configures a Device.
type Option func(*Device)

// WithPresenter makes Present read every frame back to the CPU and pass it
// to fn. It is ignored while a surface target is set.
func WithPresenter(fn func(*image.RGBA) error) Option {
	return func(d *Device) { d.present = fn }
}

// WithLogger sets the device logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) { d.log = logx.Or(l) }
}

// WithWaitTimeout bounds synchronous waits in Present.
func WithWaitTimeout(t time.Duration) Option {
	return func(d *Device) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// Device composites on the GPU.
//
// Compositor methods are called from the loop goroutine. Resize and
// SetSurfaceTarget may be called from any goroutine.
type Device struct {
	instance hal.Instance // nil when the device is shared
	device   hal.Device
	queue    hal.Queue
	external bool

	pipes   *pipelines
	blank   *Texture // 1x1 transparent black, bound in place of absent inputs
	present func(*image.RGBA) error
	log     *slog.Logger
	timeout time.Duration

	mu            sync.Mutex
	width         int
	height        int
	surface       hal.TextureView
	surfaceFormat gputypes.TextureFormat

	frame *image.RGBA
}

// New opens a standalone Vulkan device.
func New(width, height int, opts ...Option) (*Device, error) {
	b, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", backend.ErrBackendNotAvailable)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}

	d, err := newDevice(openDev.Device, openDev.Queue, false, width, height, opts)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	d.log.Info("native: GPU initialized", "adapter", selected.Info.Name)
	return d, nil
}

// NewWithDevice creates a device on a HAL device owned by the caller.
// Destroy leaves the HAL device open.
func NewWithDevice(device hal.Device, queue hal.Queue, width, height int, opts ...Option) (*Device, error) {
	if device == nil || queue == nil {
		return nil, ErrInvalidProvider
	}
	return newDevice(device, queue, true, width, height, opts)
}

// FromProvider shares the GPU device of a gpucontext provider. If the
// provider is a gpucontext.DeviceProvider, its surface format is used for
// presentation.
func FromProvider(provider any, width, height int, opts ...Option) (*Device, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrInvalidProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrInvalidProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrInvalidProvider)
	}
	d, err := NewWithDevice(device, queue, width, height, opts...)
	if err != nil {
		return nil, err
	}
	if dp, ok := provider.(gpucontext.DeviceProvider); ok {
		d.surfaceFormat = dp.SurfaceFormat()
	}
	d.log.Info("native: using shared GPU device", "surface_format", d.surfaceFormat)
	return d, nil
}

func newDevice(device hal.Device, queue hal.Queue, external bool, width, height int, opts []Option) (*Device, error) {
	d := &Device{
		device:        device,
		queue:         queue,
		external:      external,
		log:           logx.Nop(),
		timeout:       DefaultWaitTimeout,
		width:         max(width, 0),
		height:        max(height, 0),
		surfaceFormat: gputypes.TextureFormatBGRA8Unorm,
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := validateShaders(); err != nil {
		return nil, err
	}
	pipes, err := newPipelines(device)
	if err != nil {
		return nil, err
	}
	d.pipes = pipes

	blank, err := d.newTexture(compositor.TextureDesc{
		Label:  "blank",
		Width:  1,
		Height: 1,
		Format: compositor.FormatRGBA8,
		Usage:  compositor.UsageSampled | compositor.UsageCopyDst,
	})
	if err != nil {
		pipes.destroy()
		return nil, err
	}
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: blank.tex, MipLevel: 0},
		make([]byte, 4),
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: 4, RowsPerImage: 1},
		&hal.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
	)
	d.blank = blank
	return d, nil
}

// Texture is a GPU texture with its default view.
type Texture struct {
	dev       *Device
	label     string
	width     int
	height    int
	format    compositor.Format
	tex       hal.Texture
	view      hal.TextureView
	destroyed bool
}

// Width returns the texture width.
func (t *Texture) Width() int { return t.width }

// Height returns the texture height.
func (t *Texture) Height() int { return t.height }

// Format returns the texel format.
func (t *Texture) Format() compositor.Format { return t.format }

// Destroy frees the GPU texture.
func (t *Texture) Destroy() {
	if t.destroyed {
		return
	}
	t.destroyed = true
	t.dev.device.DestroyTextureView(t.view)
	t.dev.device.DestroyTexture(t.tex)
	t.view, t.tex = nil, nil
}

func halFormat(f compositor.Format) gputypes.TextureFormat {
	if f == compositor.FormatR8 {
		return gputypes.TextureFormatR8Unorm
	}
	return gputypes.TextureFormatRGBA8Unorm
}

func halUsage(u compositor.Usage) gputypes.TextureUsage {
	var out gputypes.TextureUsage
	if u&compositor.UsageSampled != 0 {
		out |= gputypes.TextureUsageTextureBinding
	}
	if u&compositor.UsageRenderTarget != 0 {
		out |= gputypes.TextureUsageRenderAttachment
	}
	if u&compositor.UsageCopySrc != 0 {
		out |= gputypes.TextureUsageCopySrc
	}
	if u&compositor.UsageCopyDst != 0 {
		out |= gputypes.TextureUsageCopyDst
	}
	return out
}

// NewTexture allocates a texture and its view.
func (d *Device) NewTexture(desc compositor.TextureDesc) (compositor.Texture, error) {
	return d.newTexture(desc)
}

func (d *Device) newTexture(desc compositor.TextureDesc) (*Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, desc.Width, desc.Height)
	}
	format := halFormat(desc.Format)
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		// Any texture may be a blit source, an upload target or read back.
		Usage: halUsage(desc.Usage) | gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %s: %w", desc.Label, err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, fmt.Errorf("create texture view %s: %w", desc.Label, err)
	}
	return &Texture{
		dev:    d,
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		tex:    tex,
		view:   view,
	}, nil
}

// Upload writes h's pixels into tex through the queue.
func (d *Device) Upload(tex compositor.Texture, h *bitmap.Handle) error {
	t, err := d.own(tex)
	if err != nil {
		return err
	}
	if h.Width() != t.width || h.Height() != t.height {
		return fmt.Errorf("%w: %dx%d into %dx%d", ErrSizeMismatch, h.Width(), h.Height(), t.width, t.height)
	}
	if compositor.FormatOf(h) != t.format {
		return ErrFormatMismatch
	}

	var pix []byte
	var stride, bpp int
	if t.format == compositor.FormatR8 {
		g := h.Gray()
		pix, stride, bpp = g.Pix, g.Stride, 1
	} else {
		rgba := h.RGBA()
		pix, stride, bpp = rgba.Pix, rgba.Stride, 4
	}
	data := packRows(pix, stride, t.width*bpp, t.height)

	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		data,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: uint32(t.width * bpp), RowsPerImage: uint32(t.height)},
		&hal.Extent3D{Width: uint32(t.width), Height: uint32(t.height), DepthOrArrayLayers: 1},
	)
	return nil
}

// packRows returns pix with rows of rowBytes tightly packed.
func packRows(pix []byte, stride, rowBytes, rows int) []byte {
	if stride == rowBytes {
		return pix[:rowBytes*rows]
	}
	out := make([]byte, rowBytes*rows)
	for y := range rows {
		copy(out[y*rowBytes:(y+1)*rowBytes], pix[y*stride:])
	}
	return out
}

// Begin starts a command encoder for one frame.
func (d *Device) Begin() (compositor.Encoder, error) {
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "ambient_frame_encoder",
	})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("ambient_frame"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	return &encoder{dev: d, enc: enc}, nil
}

// SetSurfaceTarget directs Present to view, a render target of the given size in
// the provider's surface format. A nil view returns to offscreen mode.
func (d *Device) SetSurfaceTarget(view hal.TextureView, width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.surface = view
	if view != nil {
		d.width, d.height = max(width, 0), max(height, 0)
	}
}

// Resize changes the output size; the loop picks it up on its next tick.
func (d *Device) Resize(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = max(width, 0), max(height, 0)
}

// SurfaceSize returns the output size.
func (d *Device) SurfaceSize() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

// Present blits tex to the surface target. Offscreen, it reads the frame
// back for the presenter, or does nothing without one.
func (d *Device) Present(tex compositor.Texture) error {
	t, err := d.own(tex)
	if err != nil {
		return err
	}
	d.mu.Lock()
	surface, format := d.surface, d.surfaceFormat
	d.mu.Unlock()

	switch {
	case surface != nil:
		return d.blitToSurface(t, surface, format)
	case d.present != nil:
		frame, err := d.readback(t)
		if err != nil {
			return err
		}
		if err := d.present(frame); err != nil {
			return fmt.Errorf("present: %w", err)
		}
	}
	return nil
}

func (d *Device) blitToSurface(t *Texture, surface hal.TextureView, format gputypes.TextureFormat) error {
	e, err := d.Begin()
	if err != nil {
		return err
	}
	enc := e.(*encoder)
	enc.blit(t.view, surface, format)
	sub, err := enc.Submit()
	if err != nil {
		return err
	}
	defer sub.Release()
	return d.await(sub)
}

// readback copies t into a staging buffer and returns it as an image. The
// image is reused across calls.
func (d *Device) readback(t *Texture) (*image.RGBA, error) {
	w, h := t.width, t.height
	rowBytes := w * 4
	padded := (rowBytes + rowAlignment - 1) / rowAlignment * rowAlignment
	size := uint64(padded * h)

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "ambient_readback",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	e, err := d.Begin()
	if err != nil {
		return nil, err
	}
	enc := e.(*encoder)
	enc.enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	enc.enc.CopyTextureToBuffer(t.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: uint32(padded), RowsPerImage: uint32(h)},
		TextureBase:  hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	}})
	sub, err := enc.Submit()
	if err != nil {
		return nil, err
	}
	defer sub.Release()
	if err := d.await(sub); err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	if err := d.queue.ReadBuffer(staging, 0, buf); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	if d.frame == nil || d.frame.Bounds().Dx() != w || d.frame.Bounds().Dy() != h {
		d.frame = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	for y := range h {
		copy(d.frame.Pix[y*d.frame.Stride:y*d.frame.Stride+rowBytes], buf[y*padded:])
	}
	return d.frame, nil
}

func (d *Device) await(sub compositor.Submission) error {
	done, err := sub.Wait(d.timeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !done {
		return ErrGPUTimeout
	}
	return nil
}

// Destroy frees pipelines, and the HAL device if the Device opened it.
func (d *Device) Destroy() {
	if d.blank != nil {
		d.blank.Destroy()
		d.blank = nil
	}
	if d.pipes != nil {
		d.pipes.destroy()
		d.pipes = nil
	}
	if !d.external {
		if d.device != nil {
			d.device.Destroy()
		}
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device, d.queue, d.instance = nil, nil, nil
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

// viewOr returns tex's view, or the blank view for a nil texture.
func (d *Device) viewOr(tex compositor.Texture) (hal.TextureView, error) {
	if tex == nil {
		return d.blank.view, nil
	}
	t, err := d.own(tex)
	if err != nil {
		return nil, err
	}
	return t.view, nil
}
