// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compositor

import (
	"time"

	"github.com/gogpu/ambient/bitmap"
	"github.com/gogpu/ambient/uniforms"
)

// Format is a texel format.
type Format uint8

// Texel formats.
const (
	// FormatRGBA8 is 8-bit RGBA, used for images and render targets.
	FormatRGBA8 Format = iota
	// FormatR8 is a single 8-bit channel, used for aux maps.
	FormatR8
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatRGBA8:
		return "rgba8"
	case FormatR8:
		return "r8"
	default:
		return "unknown"
	}
}

// FormatOf returns the texture format matching h's pixels.
func FormatOf(h *bitmap.Handle) Format {
	if h.IsGray() {
		return FormatR8
	}
	return FormatRGBA8
}

// Usage is a set of texture usage flags.
type Usage uint8

// Texture usages.
const (
	UsageSampled Usage = 1 << iota
	UsageRenderTarget
	UsageCopySrc
	UsageCopyDst
)

// TextureDesc describes a texture to create.
type TextureDesc struct {
	Label  string
	Width  int
	Height int
	Format Format
	Usage  Usage
}

// Texture is a device-resident image.
type Texture interface {
	Width() int
	Height() int
	Format() Format

	// Destroy frees the texture. The loop only calls it once no in-flight
	// submission references the texture.
	Destroy()
}

// CompositePass is the input of one composite draw.
type CompositePass struct {
	Target   Texture
	Current  Texture
	Previous Texture // equal to Current when nothing is fading out
	Feedback Texture // last tick's output
	Aux      Texture // nil without an aux map; Uniforms.AuxWeight is then 0
	Uniforms uniforms.Block
}

// Device is the drawing backend of a Loop.
//
// All methods are called from the loop goroutine only.
type Device interface {
	// NewTexture allocates a texture.
	NewTexture(desc TextureDesc) (Texture, error)

	// Upload copies h's pixels into tex, which was created with h's size and
	// format. The device does not keep h.
	Upload(tex Texture, h *bitmap.Handle) error

	// Begin starts recording commands for one frame.
	Begin() (Encoder, error)

	// Present shows tex, which holds the finished frame.
	Present(tex Texture) error

	// SurfaceSize returns the current output size. Zero means nothing can
	// be presented yet.
	SurfaceSize() (width, height int)

	// Destroy frees device resources.
	Destroy()
}

// Encoder records the commands of one frame.
type Encoder interface {
	Composite(pass *CompositePass)
	Copy(src, dst Texture)

	// Submit hands the recorded commands to the device. The encoder must not
	// be used afterwards.
	Submit() (Submission, error)
}

// Submission tracks submitted work.
type Submission interface {
	// Wait blocks up to timeout for the work to finish. A zero timeout
	// polls.
	Wait(timeout time.Duration) (done bool, err error)

	// Release frees the tracking resources. Called once, after the
	// submission completed or was abandoned.
	Release()
}
