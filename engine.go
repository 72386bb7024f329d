// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package ambient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/ambient/backend"
	"github.com/gogpu/ambient/bitmap"
	"github.com/gogpu/ambient/cache"
	"github.com/gogpu/ambient/clock"
	"github.com/gogpu/ambient/compositor"
	"github.com/gogpu/ambient/config"
	"github.com/gogpu/ambient/ghost"
	"github.com/gogpu/ambient/producer"
	"github.com/gogpu/ambient/slot"
	"github.com/gogpu/ambient/uniforms"
	"github.com/gogpu/ambient/upscale"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("ambient: engine closed")

// Stats combines the loop and producer counters.
type Stats struct {
	Loop     compositor.StatsSnapshot
	Producer producer.Stats
}

// Engine owns one running installation: the compositor loop, the device it
// draws on, the producer feeding the slot and the optional image cache.
// Everything is created by New and torn down by Close; there is no global
// state besides the package logger.
type Engine struct {
	cfg     config.Config
	backend string
	log     *slog.Logger

	dev      compositor.Device
	loop     *compositor.Loop
	producer *producer.Pipeline // nil without a source
	cache    *cache.Dir         // nil without a cache directory

	mu     sync.Mutex
	closed bool
}

// New builds an engine from cfg. The device comes from WithDevice, or
// from the configured backend, or from the best available one.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.frameRate > 0 {
		cfg.FrameRate = o.frameRate
	}
	if err := cfg.Validate(); err != nil {
		if o.device != nil {
			o.device.Destroy()
		}
		return nil, err
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}
	if o.clock == nil {
		o.clock = clock.Real{}
	}

	e := &Engine{cfg: cfg, log: log}

	dev, name, err := openDevice(cfg, &o, log)
	if err != nil {
		return nil, err
	}
	e.dev, e.backend = dev, name

	if cfg.Cache.Dir != "" {
		dir, err := cache.Open(cfg.Cache.Dir, cache.WithMaxFiles(cfg.Cache.MaxFiles), cache.WithLogger(log))
		if err != nil {
			dev.Destroy()
			return nil, err
		}
		e.cache = dir
	}

	s := slot.New()
	e.loop, err = compositor.New(compositor.Config{
		Device:             dev,
		Slot:               s,
		Params:             compositor.NewParamStore(cfg.Params),
		Clock:              o.clock,
		Logger:             log,
		FrameRate:          cfg.FrameRate,
		TransitionDuration: cfg.Transition.D(),
		Ghost: ghost.Config{
			MinInterval: cfg.Ghost.MinInterval.D(),
			MaxInterval: cfg.Ghost.MaxInterval.D(),
			Lifetime:    cfg.Ghost.Lifetime.D(),
			Seed:        cfg.Ghost.Seed,
		},
		MaxInFlight:      cfg.MaxInFlight,
		ResidentTextures: cfg.ResidentTextures,
		Smoothing:        cfg.Smoothing,
	})
	if err != nil {
		dev.Destroy()
		return nil, err
	}

	src := o.source
	if src == nil && cfg.Producer.Source != "" {
		src = &producer.DirSource{Dir: cfg.Producer.Source, Delay: cfg.Producer.Delay.D(), Clock: o.clock}
	}
	if src != nil {
		pc := producer.Config{
			Source:          src,
			Slot:            s,
			Saliency:        cfg.Producer.Saliency,
			Workers:         cfg.Producer.Workers,
			Depth:           cfg.Producer.Depth,
			RefillThreshold: cfg.Producer.Refill,
			Hold:            cfg.Producer.Hold.D(),
			Clock:           o.clock,
			Logger:          log,
		}
		if cfg.Producer.Upscale {
			u := o.upscaler
			if u == nil {
				u = upscale.Resampler{Scale: cfg.Producer.UpscaleScale}
			}
			pc.Upscale = &upscale.Guard{Upscaler: u, Timeout: cfg.Producer.UpscaleTimeout.D(), Logger: log}
		}
		if e.cache != nil {
			pc.Store = e.cache
		}
		if e.producer, err = producer.New(pc); err != nil {
			e.loop.Close()
			return nil, err
		}
	}

	log.Info("ambient: engine ready", "backend", name, "frame_rate", cfg.FrameRate,
		"producer", src != nil, "cache", cfg.Cache.Dir)
	return e, nil
}

func openDevice(cfg config.Config, o *options, log *slog.Logger) (compositor.Device, string, error) {
	if o.device != nil {
		return o.device, "custom", nil
	}
	bo := backend.Options{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Present:  o.presenter,
		Provider: o.provider,
		Logger:   log,
	}
	if cfg.Backend != "" {
		dev, err := backend.Open(cfg.Backend, bo)
		return dev, cfg.Backend, err
	}
	return backend.OpenDefault(bo)
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() config.Config { return e.cfg }

// Backend returns the name of the backend in use.
func (e *Engine) Backend() string { return e.backend }

// Loop returns the compositor loop.
func (e *Engine) Loop() *compositor.Loop { return e.loop }

// Slot returns the slot shared by the producer and the loop.
func (e *Engine) Slot() *slot.Slot { return e.loop.Slot() }

// Params returns the current slider values.
func (e *Engine) Params() uniforms.Params { return e.loop.Params().Load() }

// SetParams replaces the slider values. The loop picks them up on its next
// tick.
func (e *Engine) SetParams(p uniforms.Params) { e.loop.Params().Store(p) }

// Apply takes the live-adjustable parts of a reloaded configuration. Only
// the sliders change at runtime; other fields need a new engine.
func (e *Engine) Apply(cfg config.Config) {
	e.SetParams(cfg.Params)
	e.log.Info("ambient: params updated", "echo", cfg.Params.Echo, "blend", cfg.Params.Blend,
		"trail", cfg.Params.Trail, "warp", cfg.Params.Warp, "color", cfg.Params.Color)
}

// Watch reloads the config file at path on every change and applies it,
// until ctx is done.
func (e *Engine) Watch(ctx context.Context, path string) error {
	return config.NewWatcher(path, e.log).Run(ctx, e.Apply)
}

// Resize changes the output size if the device supports it.
func (e *Engine) Resize(width, height int) bool {
	r, ok := e.dev.(interface{ Resize(w, h int) })
	if ok {
		r.Resize(width, height)
	}
	return ok
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	s := Stats{Loop: e.loop.Stats()}
	if e.producer != nil {
		s.Producer = e.producer.Stats()
	}
	return s
}

// Run seeds the slot from the cache, starts the producer and runs the
// render loop until ctx is done. The producer is stopped before Run
// returns.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}

	e.seed()
	if e.producer != nil {
		if err := e.producer.Start(ctx); err != nil {
			return err
		}
		defer e.producer.Stop()
	}
	if err := e.loop.Run(ctx); err != nil {
		return fmt.Errorf("ambient: %w", err)
	}
	return nil
}

// seed shows cached images before the producer delivers its first one.
func (e *Engine) seed() {
	if e.cache == nil || e.cfg.Cache.Preload == 0 {
		return
	}
	handles, err := e.cache.Load(e.cfg.Cache.Preload)
	if err != nil {
		e.log.Warn("ambient: cache load failed", "error", err)
		return
	}
	defer func() {
		for _, h := range handles {
			h.Release()
		}
	}()
	if len(handles) == 0 {
		return
	}
	e.log.Info("ambient: seeded from cache", "images", len(handles))
	if e.producer != nil {
		e.producer.Seed(handles)
		return
	}
	if cur, _ := e.Slot().Load(); cur != nil {
		cur.Release()
		return
	}
	var next *bitmap.Handle
	if len(handles) > 1 {
		next = handles[1]
	}
	e.Slot().StorePair(handles[0], next)
}

// Close stops the producer, waits for in-flight frames and destroys the
// device. Close must not be called while Run is active.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	if e.producer != nil {
		e.producer.Stop()
	}
	e.loop.Close()
	e.Slot().Clear()
}
