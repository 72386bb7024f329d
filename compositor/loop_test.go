// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compositor

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/gogpu/ambient/bitmap"
	"github.com/gogpu/ambient/clock"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

const frame = time.Second / 90

func newTestLoop(t *testing.T, dev *fakeDevice, mods ...func(*Config)) (*Loop, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(epoch)
	cfg := Config{Device: dev, Clock: clk}
	for _, m := range mods {
		m(&cfg)
	}
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, clk
}

func newImage(t *testing.T, opts ...bitmap.Option) *bitmap.Handle {
	t.Helper()
	h := bitmap.New(image.NewRGBA(image.Rect(0, 0, 8, 8)), opts...)
	t.Cleanup(h.Release)
	return h
}

func tick(l *Loop, clk *clock.Mock) Outcome {
	o := l.Tick()
	clk.Advance(frame)
	return o
}

func TestNewRequiresDevice(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("New without device: err = %v, want ErrNoDevice", err)
	}
}

func TestEmptySlotSkips(t *testing.T) {
	dev := newFakeDevice(64, 64)
	l, clk := newTestLoop(t, dev)
	for i := range 10 {
		if o := tick(l, clk); o != SkippedNoImage {
			t.Fatalf("tick %d: %v, want %v", i, o, SkippedNoImage)
		}
	}
	s := l.Stats()
	if s.Ticks != 10 || s.Skipped != 10 || s.Presented != 0 {
		t.Errorf("stats = %+v", s)
	}
	if len(dev.presents) != 0 || len(dev.textures) != 0 {
		t.Error("empty slot must not touch the device")
	}
}

func TestZeroSurfaceSkips(t *testing.T) {
	dev := newFakeDevice(0, 0)
	l, clk := newTestLoop(t, dev)
	l.Slot().Store(newImage(t))
	if o := tick(l, clk); o != SkippedNoSurface {
		t.Fatalf("outcome %v, want %v", o, SkippedNoSurface)
	}
	dev.width, dev.height = 32, 32
	if o := tick(l, clk); o != Presented {
		t.Fatalf("outcome %v after surface appeared, want %v", o, Presented)
	}
	l.Reset()
}

func TestUploadOnlyOnIdentityChange(t *testing.T) {
	dev := newFakeDevice(64, 64)
	l, clk := newTestLoop(t, dev)
	a, b := newImage(t), newImage(t)

	l.Slot().Store(a)
	for range 5 {
		if o := tick(l, clk); o != Presented {
			t.Fatalf("outcome %v", o)
		}
	}
	if len(dev.uploads) != 1 {
		t.Fatalf("uploads = %v, want one", dev.uploads)
	}
	p := dev.lastPass()
	if imageOf(p.Current) != a.ID() || p.Previous != p.Current {
		t.Error("without a transition previous must alias current")
	}

	l.Slot().Store(b)
	tick(l, clk)
	p = dev.lastPass()
	if imageOf(p.Current) != b.ID() || imageOf(p.Previous) != a.ID() {
		t.Errorf("pass current=%d previous=%d, want %d/%d",
			imageOf(p.Current), imageOf(p.Previous), b.ID(), a.ID())
	}
	if p.Uniforms.Progress != 0 {
		t.Errorf("progress = %v at transition start", p.Uniforms.Progress)
	}
	if len(dev.uploads) != 2 {
		t.Errorf("uploads = %v, want two", dev.uploads)
	}
	if s := l.Stats(); s.Transitions != 2 {
		t.Errorf("transitions = %d, want 2", s.Transitions)
	}
	l.Reset()
}

func TestReentrantTransitionReusesTextures(t *testing.T) {
	dev := newFakeDevice(64, 64)
	l, clk := newTestLoop(t, dev)
	a, b := newImage(t), newImage(t)

	l.Slot().Store(a)
	tick(l, clk)
	l.Slot().Store(b)
	tick(l, clk)
	// Same handle again: the generation advanced, so it is a new transition.
	l.Slot().Store(a)
	tick(l, clk)

	p := dev.lastPass()
	if imageOf(p.Current) != a.ID() || imageOf(p.Previous) != b.ID() {
		t.Error("re-entrant transition should fade from B back to A")
	}
	if len(dev.uploads) != 2 {
		t.Errorf("uploads = %v, want two", dev.uploads)
	}
	if s := l.Stats(); s.TextureReuses == 0 {
		t.Error("expected resident textures to be reused")
	}
	l.Reset()
}

func TestUploadFailureKeepsPreviousTexture(t *testing.T) {
	dev := newFakeDevice(64, 64)
	l, clk := newTestLoop(t, dev)
	a, b := newImage(t), newImage(t)
	dev.failUpload = func(h *bitmap.Handle) bool { return h.ID() == b.ID() }

	l.Slot().Store(a)
	tick(l, clk)
	l.Slot().Store(b)
	for range 3 {
		if o := tick(l, clk); o != Presented {
			t.Fatalf("outcome %v, want presented", o)
		}
	}
	if got := imageOf(dev.lastPass().Current); got != a.ID() {
		t.Errorf("current texture shows image %d, want %d", got, a.ID())
	}
	if s := l.Stats(); s.UploadFailures != 1 {
		t.Errorf("upload failures = %d, want 1 (no retry for the same image)", s.UploadFailures)
	}
	l.Reset()
}

func TestNothingUploadedSkips(t *testing.T) {
	dev := newFakeDevice(64, 64)
	dev.failUpload = func(*bitmap.Handle) bool { return true }
	l, clk := newTestLoop(t, dev)
	l.Slot().Store(newImage(t))
	if o := tick(l, clk); o != SkippedNoTexture {
		t.Errorf("outcome %v, want %v", o, SkippedNoTexture)
	}
	if dev.live != 0 {
		t.Errorf("%d textures leaked after failed upload", dev.live)
	}
	l.Reset()
}

func TestFailedUploadRetriesWithoutFallback(t *testing.T) {
	dev := newFakeDevice(64, 64)
	dev.failUpload = func(*bitmap.Handle) bool { return true }
	l, clk := newTestLoop(t, dev)
	l.Slot().Store(newImage(t))

	if o := tick(l, clk); o != SkippedNoTexture {
		t.Fatalf("outcome %v, want %v", o, SkippedNoTexture)
	}
	dev.failUpload = nil
	for i := 1; i < uploadRetryTicks; i++ {
		if o := tick(l, clk); o != SkippedNoTexture {
			t.Fatalf("tick %d: outcome %v, want a wait before retrying", i, o)
		}
	}
	if o := tick(l, clk); o != Presented {
		t.Fatalf("outcome %v after the retry delay, want presented", o)
	}
	if s := l.Stats(); s.UploadFailures != 1 || s.Uploads != 1 {
		t.Errorf("failures = %d uploads = %d, want 1 and 1", s.UploadFailures, s.Uploads)
	}
	l.Reset()
}

func TestFeedbackRolesSwap(t *testing.T) {
	dev := newFakeDevice(16, 16)
	l, clk := newTestLoop(t, dev)
	l.Slot().Store(newImage(t))
	for range 4 {
		tick(l, clk)
	}
	if len(dev.passes) != 4 || len(dev.copies) != 4 {
		t.Fatalf("passes=%d copies=%d", len(dev.passes), len(dev.copies))
	}
	for i, p := range dev.passes {
		src, dst := dev.copies[i][0], dev.copies[i][1]
		if src != p.Target {
			t.Errorf("tick %d: copy source is not the output", i)
		}
		if dst == p.Feedback {
			t.Errorf("tick %d: copied into the texture being read", i)
		}
		if i+1 < len(dev.passes) && dev.passes[i+1].Feedback != dst {
			t.Errorf("tick %d: next tick does not read this tick's feedback", i)
		}
		if dev.presents[i] != p.Target {
			t.Errorf("tick %d: presented texture is not the output", i)
		}
	}
	l.Reset()
}

func TestBackpressure(t *testing.T) {
	dev := newFakeDevice(16, 16)
	dev.holdWork = true
	l, clk := newTestLoop(t, dev, func(c *Config) { c.MaxInFlight = 3 })
	l.Slot().Store(newImage(t))

	for i := range 3 {
		if o := tick(l, clk); o != Presented {
			t.Fatalf("tick %d: %v", i, o)
		}
	}
	if o := tick(l, clk); o != SkippedBackpressure {
		t.Fatalf("fourth tick: %v, want %v", o, SkippedBackpressure)
	}
	if s := l.Stats(); s.BackpressureWaits != 1 {
		t.Errorf("backpressure waits = %d, want 1", s.BackpressureWaits)
	}

	dev.holdWork = false
	for _, s := range dev.subs {
		s.done = true
	}
	if o := tick(l, clk); o != Presented {
		t.Fatalf("after completion: %v", o)
	}
	for i, s := range dev.subs[:3] {
		if !s.released {
			t.Errorf("submission %d not released", i)
		}
	}
	l.Reset()
}

func TestEvictedTexturesOutliveInFlightWork(t *testing.T) {
	dev := newFakeDevice(16, 16)
	dev.holdWork = true
	l, clk := newTestLoop(t, dev, func(c *Config) {
		c.MaxInFlight = 16
		c.ResidentTextures = 4
	})

	for range 6 {
		l.Slot().Store(newImage(t))
		tick(l, clk)
	}
	for _, tex := range dev.textures {
		if tex.destroyed {
			t.Fatalf("texture %q destroyed while submissions are pending", tex.desc.Label)
		}
	}

	for _, s := range dev.subs {
		s.done = true
	}
	dev.holdWork = false
	tick(l, clk)

	destroyed := 0
	for _, tex := range dev.textures {
		if tex.destroyed {
			destroyed++
		}
	}
	if destroyed != 2 {
		t.Errorf("destroyed %d evicted textures, want 2", destroyed)
	}
	s := l.Stats()
	if s.Resident != 4 || s.ResidentCapacity != 4 {
		t.Errorf("resident textures = %d of %d, want 4 of 4", s.Resident, s.ResidentCapacity)
	}
	if s.ResidencyEvictions != 2 {
		t.Errorf("evictions = %d, want 2", s.ResidencyEvictions)
	}
	if s.ResidencyMisses != s.Uploads {
		t.Errorf("misses = %d, uploads = %d; every upload follows a miss", s.ResidencyMisses, s.Uploads)
	}
	l.Reset()
}

func TestResizeReallocatesFeedback(t *testing.T) {
	dev := newFakeDevice(64, 64)
	l, clk := newTestLoop(t, dev)
	l.Slot().Store(newImage(t))
	tick(l, clk)
	old := dev.lastPass()

	tick(l, clk)
	if dev.lastPass().Target != old.Target {
		t.Fatal("output reallocated without a size change")
	}

	dev.width, dev.height = 32, 24
	tick(l, clk)
	p := dev.lastPass()
	if p.Target.Width() != 32 || p.Target.Height() != 24 {
		t.Errorf("output is %dx%d, want 32x24", p.Target.Width(), p.Target.Height())
	}
	if !old.Target.(*fakeTexture).destroyed {
		t.Error("old output not destroyed")
	}
	if p.Uniforms.Width != 32 || p.Uniforms.Height != 24 {
		t.Errorf("uniform size = %vx%v", p.Uniforms.Width, p.Uniforms.Height)
	}
	l.Reset()
}

func TestAuxMap(t *testing.T) {
	dev := newFakeDevice(16, 16)
	l, clk := newTestLoop(t, dev)

	gray := bitmap.NewGray(image.NewGray(image.Rect(0, 0, 8, 8)))
	h := newImage(t, bitmap.WithAux(gray))
	gray.Release()

	l.Slot().Store(h)
	tick(l, clk)
	p := dev.lastPass()
	if p.Aux == nil || p.Aux.Format() != FormatR8 {
		t.Fatal("aux texture not bound")
	}
	if p.Uniforms.AuxWeight <= 0 {
		t.Errorf("AuxWeight = %v with aux map", p.Uniforms.AuxWeight)
	}
	l.Reset()

	dev.failUpload = func(h *bitmap.Handle) bool { return h.IsGray() }
	tick(l, clk)
	p = dev.lastPass()
	if p.Aux != nil || p.Uniforms.AuxWeight != 0 {
		t.Error("failed aux upload must degrade to uniform weighting")
	}
	l.Reset()
}

func TestFailuresAreCounted(t *testing.T) {
	dev := newFakeDevice(16, 16)
	dev.failBegin = true
	l, clk := newTestLoop(t, dev)
	l.Slot().Store(newImage(t))

	if o := tick(l, clk); o != Failed {
		t.Fatalf("outcome %v, want failed", o)
	}
	dev.failBegin = false
	dev.failPresent = true
	if o := tick(l, clk); o != Failed {
		t.Fatalf("outcome %v, want failed", o)
	}
	dev.failPresent = false
	if o := tick(l, clk); o != Presented {
		t.Fatalf("outcome %v, want presented", o)
	}
	if s := l.Stats(); s.Errors != 2 || s.Presented != 1 {
		t.Errorf("stats = %+v", s)
	}
	l.Reset()
}

func TestResetLeavesNoStaleState(t *testing.T) {
	dev := newFakeDevice(16, 16)
	l, clk := newTestLoop(t, dev)
	a := newImage(t)
	l.Slot().Store(a)
	for range 30 {
		tick(l, clk)
	}
	before := map[Texture]bool{}
	for _, tex := range dev.textures {
		before[tex] = true
	}

	l.Reset()
	if dev.live != 0 {
		t.Fatalf("%d textures alive after Reset", dev.live)
	}
	if l.ghosts.Len() != 0 {
		t.Error("ghost taps survived Reset")
	}

	if o := tick(l, clk); o != Presented {
		t.Fatalf("first tick after Reset: %v", o)
	}
	p := dev.lastPass()
	if before[p.Feedback] || before[p.Target] {
		t.Error("feedback textures reused across Reset")
	}
	if imageOf(p.Current) != a.ID() || p.Previous != p.Current {
		t.Error("slot content should be shown again without a crossfade")
	}
	if p.Uniforms.Time != 0 {
		t.Errorf("time restarted at %v, want 0", p.Uniforms.Time)
	}
	l.Reset()
}

func TestRunStopsAndResets(t *testing.T) {
	dev := newFakeDevice(16, 16)
	l, _ := newTestLoop(t, dev)
	l.Slot().Store(newImage(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dev.onPresent = func() {
		if len(dev.presents) == 5 {
			cancel()
		}
	}
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if l.Running() {
		t.Error("Running after Run returned")
	}
	if s := l.Stats(); s.Presented != 5 || s.LateFrames != 0 {
		t.Errorf("stats = %+v", s)
	}
	if dev.live != 0 {
		t.Errorf("%d textures alive after Run", dev.live)
	}
}

func TestRunRejectsSecondCaller(t *testing.T) {
	dev := newFakeDevice(16, 16)
	l, _ := newTestLoop(t, dev)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !l.Running() {
		if time.Now().After(deadline) {
			t.Fatal("loop did not start")
		}
		time.Sleep(time.Millisecond)
	}
	if err := l.Run(ctx); !errors.Is(err, ErrRunning) {
		t.Errorf("second Run: err = %v, want ErrRunning", err)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestTransitionProgressReachesOne(t *testing.T) {
	dev := newFakeDevice(16, 16)
	l, clk := newTestLoop(t, dev, func(c *Config) { c.TransitionDuration = 100 * time.Millisecond })
	l.Slot().Store(newImage(t))
	tick(l, clk)
	l.Slot().Store(newImage(t))
	var last float32
	for range 20 {
		tick(l, clk)
		p := dev.lastPass().Uniforms.Progress
		if p < last {
			t.Fatalf("progress decreased: %v < %v", p, last)
		}
		last = p
	}
	if last != 1 {
		t.Errorf("progress = %v after the duration, want 1", last)
	}
	if dev.lastPass().Previous != dev.lastPass().Current {
		t.Error("settled transition should release the previous binding")
	}
	l.Reset()
}

func TestFrameBudget(t *testing.T) {
	dev := newFakeDevice(1, 1)
	l, _ := newTestLoop(t, dev)
	if got := l.FrameBudget(); got != time.Second/90 {
		t.Errorf("default budget = %v", got)
	}
	l, _ = newTestLoop(t, dev, func(c *Config) { c.FrameRate = 60 })
	if got := l.FrameBudget(); got != time.Second/60 {
		t.Errorf("60 Hz budget = %v", got)
	}
}
