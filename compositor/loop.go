// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compositor

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gogpu/ambient/clock"
	"github.com/gogpu/ambient/ghost"
	"github.com/gogpu/ambient/internal/logx"
	"github.com/gogpu/ambient/slot"
	"github.com/gogpu/ambient/transition"
	"github.com/gogpu/ambient/uniforms"
)

// Errors returned by New and Run.
var (
	ErrNoDevice = errors.New("compositor: no device")
	ErrRunning  = errors.New("compositor: loop already running")
)

// Default limits.
const (
	DefaultResidentTextures = 8
	DefaultSubmitTimeout    = time.Second
)

// Config configures a Loop. Only Device is required.
type Config struct {
	Device Device

	// Slot is polled for new images. New creates one if nil.
	Slot *slot.Slot

	// Params supplies slider values. New creates one holding
	// uniforms.DefaultParams if nil.
	Params *ParamStore

	Clock  clock.Clock
	Logger *slog.Logger

	// FrameRate is the target rate in Hz (DefaultFrameRate if zero).
	FrameRate float64

	// TransitionDuration is the crossfade length
	// (transition.DefaultDuration if zero).
	TransitionDuration time.Duration

	Ghost ghost.Config

	// MaxInFlight bounds submitted but unfinished frames
	// (DefaultMaxInFlight if zero).
	MaxInFlight int

	// SubmitTimeout bounds each wait for the oldest submission
	// (DefaultSubmitTimeout if zero).
	SubmitTimeout time.Duration

	// ResidentTextures is the number of image textures kept on the device
	// (DefaultResidentTextures if zero).
	ResidentTextures int

	// Smoothing is the slider smoothing rate per second. Zero disables
	// smoothing.
	Smoothing float64
}

// Outcome describes what a tick did.
type Outcome int

// Tick outcomes.
const (
	Presented Outcome = iota
	SkippedNoImage
	SkippedNoSurface
	SkippedNoTexture
	SkippedBackpressure
	Failed
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Presented:
		return "presented"
	case SkippedNoImage:
		return "skipped: no image"
	case SkippedNoSurface:
		return "skipped: no surface"
	case SkippedNoTexture:
		return "skipped: no texture"
	case SkippedBackpressure:
		return "skipped: backpressure"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Loop is the render loop. Tick, Run and Reset must be called from one
// goroutine at a time; Stats, Slot and Params may be used from anywhere.
type Loop struct {
	dev    Device
	slot   *slot.Slot
	params *ParamStore
	clock  clock.Clock
	log    *slog.Logger

	submitTimeout time.Duration

	tracker  transition.Tracker
	ghosts   *ghost.Manager
	smoother *uniforms.Smoother
	res      *residency
	targets  targets
	inflight *inflight
	pacer    *pacer
	stats    Stats

	epoch      time.Time
	lastTick   time.Time
	lastGen    uint64
	activeTaps int

	running atomic.Bool
}

// New creates a loop drawing on cfg.Device.
func New(cfg Config) (*Loop, error) {
	if cfg.Device == nil {
		return nil, ErrNoDevice
	}
	if cfg.Slot == nil {
		cfg.Slot = slot.New()
	}
	if cfg.Params == nil {
		cfg.Params = NewParamStore(uniforms.DefaultParams())
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	if cfg.ResidentTextures <= 0 {
		cfg.ResidentTextures = DefaultResidentTextures
	}
	log := logx.Or(cfg.Logger)

	l := &Loop{
		dev:           cfg.Device,
		slot:          cfg.Slot,
		params:        cfg.Params,
		clock:         cfg.Clock,
		log:           log,
		submitTimeout: cfg.SubmitTimeout,
		tracker:       transition.NewTracker(cfg.TransitionDuration),
		ghosts:        ghost.NewManager(cfg.Ghost),
		inflight:      newInflight(cfg.MaxInFlight, log),
		pacer:         newPacer(cfg.Clock, cfg.FrameRate),
	}
	if cfg.Smoothing > 0 {
		l.smoother = uniforms.NewSmoother(cfg.Smoothing)
	}
	l.res = newResidency(cfg.Device, cfg.ResidentTextures, log, &l.stats, func() uint64 {
		return l.inflight.submitted
	})
	return l, nil
}

// Slot returns the slot the loop polls.
func (l *Loop) Slot() *slot.Slot { return l.slot }

// Params returns the slider store the loop reads.
func (l *Loop) Params() *ParamStore { return l.params }

// Stats returns a snapshot of the loop and texture residency counters.
func (l *Loop) Stats() StatsSnapshot {
	s := l.stats.Snapshot()
	cs := l.res.cacheStats()
	s.Resident = cs.Len
	s.ResidentCapacity = cs.Capacity
	s.ResidencyHits = cs.Hits
	s.ResidencyMisses = cs.Misses
	s.ResidencyEvictions = cs.Evictions
	return s
}

// FrameBudget returns the time allotted to one frame.
func (l *Loop) FrameBudget() time.Duration { return l.pacer.budget }

// Running reports whether Run is active.
func (l *Loop) Running() bool { return l.running.Load() }

// Run ticks until ctx is done, then waits for in-flight work and resets
// all per-session state. It returns ErrRunning if the loop is already
// running, and nil after a normal stop.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)
	defer l.Reset()

	l.log.Info("compositor: loop started", "budget", l.pacer.budget)
	defer l.log.Info("compositor: loop stopped")

	l.pacer.reset()
	for ctx.Err() == nil {
		l.Tick()
		runtime.Gosched()

		late, err := l.pacer.wait(ctx)
		if err != nil {
			break
		}
		if late {
			l.stats.lateFrames.Add(1)
		}
	}
	return nil
}

// Tick runs one frame.
func (l *Loop) Tick() Outcome {
	now := l.clock.Now()
	if l.epoch.IsZero() {
		l.epoch = now
		l.lastTick = now
	}
	t := now.Sub(l.epoch).Seconds()
	dt := now.Sub(l.lastTick).Seconds()
	l.lastTick = now
	l.stats.ticks.Add(1)

	// 1. New content.
	if gen := l.slot.Generation(); gen != l.lastGen {
		h, seen := l.slot.LoadWithGeneration()
		if h != nil {
			l.tracker.TransitionTo(h, now)
			l.stats.transitions.Add(1)
			l.log.Debug("compositor: transition started", "image", h.ID(), "generation", seen)
		}
		h.Release()
		l.lastGen = seen
	}
	l.tracker.Settle(now)

	cur := l.tracker.Current()
	if cur == nil {
		return l.skip(SkippedNoImage)
	}
	width, height := l.dev.SurfaceSize()
	if width <= 0 || height <= 0 {
		return l.skip(SkippedNoSurface)
	}

	// 2. Uniforms.
	params := l.params.Load()
	if l.smoother != nil {
		params = l.smoother.Step(params, dt)
	}
	aux := cur.Aux()
	in := uniforms.Inputs{
		Time:         t,
		Progress:     l.tracker.Progress(now),
		Params:       params,
		AuxAvailable: aux != nil,
		ActiveTaps:   l.activeTaps,
	}
	frame := uniforms.Compute(in)

	// 3. Ghost taps.
	taps, active := l.ghosts.Update(t, params.Echo)
	l.activeTaps = active

	// 4. Textures.
	curTex, ok := l.res.bind(roleCurrent, cur)
	if !ok {
		return l.skip(SkippedNoTexture)
	}
	prevTex := curTex
	if prev := l.tracker.Previous(); prev != nil {
		if tex, ok := l.res.bind(rolePrevious, prev); ok {
			prevTex = tex
		}
	} else {
		l.res.unbind(rolePrevious)
	}
	var auxTex Texture
	if aux != nil {
		if tex, ok := l.res.bind(roleAux, aux); ok {
			auxTex = tex
		}
	} else {
		l.res.unbind(roleAux)
	}
	if aux != nil && auxTex == nil {
		in.AuxAvailable = false
		frame = uniforms.Compute(in)
	}

	// Backpressure, then feedback targets at the current size.
	waited, ok := l.inflight.reserve(l.submitTimeout)
	if waited {
		l.stats.backpressureWaits.Add(1)
	}
	l.res.collect(l.inflight.completed)
	if !ok {
		return l.skip(SkippedBackpressure)
	}
	if !l.targets.matches(width, height) {
		l.inflight.drain(l.submitTimeout)
		if err := l.targets.ensure(l.dev, width, height); err != nil {
			return l.fail("allocate feedback textures", err)
		}
		l.log.Debug("compositor: feedback textures allocated", "width", width, "height", height)
	}

	// 5. Composite, 6. feedback copy.
	enc, err := l.dev.Begin()
	if err != nil {
		return l.fail("begin frame", err)
	}
	pass := CompositePass{
		Target:   l.targets.output,
		Current:  curTex,
		Previous: prevTex,
		Feedback: l.targets.readTexture(),
		Aux:      auxTex,
		Uniforms: uniforms.Block{
			Frame:  frame,
			Taps:   taps,
			Width:  float32(width),
			Height: float32(height),
		},
	}
	enc.Composite(&pass)
	enc.Copy(l.targets.output, l.targets.writeTexture())
	sub, err := enc.Submit()
	if err != nil {
		return l.fail("submit frame", err)
	}
	l.inflight.push(sub)
	l.targets.swap()

	// 7. Present.
	if err := l.dev.Present(l.targets.output); err != nil {
		return l.fail("present frame", err)
	}
	l.stats.presented.Add(1)
	return Presented
}

// Reset waits for in-flight work and drops all per-session state: ghost
// taps, feedback textures, resident textures, the transition and the
// last-seen generation. Images still in the slot are shown again by the
// next tick, without stale trails.
func (l *Loop) Reset() {
	l.inflight.drain(l.submitTimeout)
	l.targets.destroy()
	l.res.clear()
	l.ghosts.Reset()
	l.tracker.Reset()
	if l.smoother != nil {
		l.smoother.Reset()
	}
	l.lastGen = 0
	l.activeTaps = 0
	l.epoch = time.Time{}
	l.lastTick = time.Time{}
}

// Close resets the loop and destroys the device.
func (l *Loop) Close() {
	l.Reset()
	l.dev.Destroy()
}

func (l *Loop) skip(o Outcome) Outcome {
	l.stats.skipped.Add(1)
	return o
}

func (l *Loop) fail(op string, err error) Outcome {
	l.stats.errors.Add(1)
	l.log.Warn("compositor: "+op+" failed", "error", err)
	return Failed
}
