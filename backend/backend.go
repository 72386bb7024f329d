// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package backend

import (
	"errors"
	"image"
	"log/slog"

	"github.com/gogpu/ambient/compositor"
)

// Backend name constants.
const (
	// Software is the CPU reference compositor.
	Software = "software"
	// Native is the GPU compositor over gogpu/wgpu.
	Native = "native"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or none could be opened.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Options configures a device. Backends ignore fields that do not apply
// to them.
type Options struct {
	// Width and Height are the output size.
	Width  int
	Height int

	// Present receives every finished frame. The image is only valid for
	// the duration of the call. Nil discards frames.
	Present func(frame *image.RGBA) error

	// Workers bounds CPU parallelism (GOMAXPROCS if zero).
	Workers int

	// Provider shares an existing GPU device with the host application. It
	// is a gpucontext provider exposing HalDevice and HalQueue.
	Provider any

	Logger *slog.Logger
}

// Factory opens a device.
type Factory func(Options) (compositor.Device, error)
