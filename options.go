// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package ambient

import (
	"image"
	"log/slog"

	"github.com/gogpu/ambient/clock"
	"github.com/gogpu/ambient/compositor"
	"github.com/gogpu/ambient/producer"
	"github.com/gogpu/ambient/upscale"
)

// Option configures an Engine during creation.
//
// Example:
//
//	e, err := ambient.New(cfg,
//	    ambient.WithSource(mySource),
//	    ambient.WithFrameRate(60),
//	)
type Option func(*options)

type options struct {
	device    compositor.Device
	provider  any
	source    producer.Source
	upscaler  upscale.Upscaler
	presenter func(*image.RGBA) error
	clock     clock.Clock
	logger    *slog.Logger
	frameRate float64
}

// WithDevice draws on dev instead of opening the configured backend. The
// engine takes ownership and destroys it on Close.
func WithDevice(dev compositor.Device) Option {
	return func(o *options) { o.device = dev }
}

// WithProvider shares the host application's GPU device with the native
// backend. provider is a gpucontext provider exposing HalDevice and HalQueue.
func WithProvider(provider any) Option {
	return func(o *options) { o.provider = provider }
}

// WithSource sets the image source, replacing the configured directory.
func WithSource(src producer.Source) Option {
	return func(o *options) { o.source = src }
}

// WithUpscaler replaces the default resampler used when upscaling is
// enabled in the configuration.
func WithUpscaler(u upscale.Upscaler) Option {
	return func(o *options) { o.upscaler = u }
}

// WithPresenter receives every finished frame from offscreen backends.
func WithPresenter(fn func(*image.RGBA) error) Option {
	return func(o *options) { o.presenter = fn }
}

// WithClock sets the time source of the loop and the producer.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the engine logger. Without it the package logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithFrameRate overrides the configured frame rate.
func WithFrameRate(hz float64) Option {
	return func(o *options) { o.frameRate = hz }
}
