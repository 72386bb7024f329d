// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package ambient

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/ambient/backend/software"
	"github.com/gogpu/ambient/bitmap"
	"github.com/gogpu/ambient/cache"
	"github.com/gogpu/ambient/config"
	"github.com/gogpu/ambient/producer"
	"github.com/gogpu/ambient/uniforms"
	"github.com/gogpu/ambient/upscale"
)

func testConfig() config.Config {
	c := config.Default()
	c.Width, c.Height = 32, 16
	c.FrameRate = 240
	c.Transition = config.Duration(20 * time.Millisecond)
	c.Producer.Hold = config.Duration(15 * time.Millisecond)
	c.Producer.Saliency = false
	return c
}

func tinySource() producer.Source {
	var n atomic.Uint32
	return producer.SourceFunc(func(ctx context.Context) (image.Image, error) {
		img := image.NewRGBA(image.Rect(0, 0, 8, 8))
		v := uint8(n.Add(1) * 40)
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, 255-v, 128, 255
		}
		return img, ctx.Err()
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestEngineRunsProducerAndLoop(t *testing.T) {
	var frames atomic.Int64
	dev := software.New(32, 16, software.WithPresenter(func(*image.RGBA) error {
		frames.Add(1)
		return nil
	}))
	e, err := New(testConfig(), WithDevice(dev), WithSource(tinySource()))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if e.Backend() != "custom" {
		t.Errorf("Backend() = %q, want custom", e.Backend())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	waitFor(t, "transitions", func() bool {
		s := e.Stats()
		return s.Loop.Transitions >= 2 && s.Producer.Published >= 3
	})
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}
	if frames.Load() == 0 {
		t.Error("no frames presented")
	}
	if q := e.Stats().Producer.Queued; q != 0 {
		t.Errorf("queued after Run = %d, want 0", q)
	}
}

func TestEngineKeepsPresentingWhileUpscalerHangs(t *testing.T) {
	var frames atomic.Int64
	dev := software.New(32, 16, software.WithPresenter(func(*image.RGBA) error {
		frames.Add(1)
		return nil
	}))

	entered := make(chan struct{})
	var once sync.Once
	release := make(chan struct{})
	defer close(release)
	hung := upscale.Func(func(context.Context, *bitmap.Handle) (*bitmap.Handle, error) {
		once.Do(func() { close(entered) })
		<-release
		return nil, errors.New("released")
	})

	cfg := testConfig()
	cfg.Producer.Upscale = true
	cfg.Producer.UpscaleTimeout = config.Duration(250 * time.Millisecond)
	e, err := New(cfg, WithDevice(dev), WithSource(tinySource()), WithUpscaler(hung))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	seed := bitmap.New(image.NewRGBA(image.Rect(0, 0, 8, 8)))
	e.Slot().Store(seed)
	seed.Release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	select {
	case <-entered:
	case <-time.After(3 * time.Second):
		t.Fatal("upscaler never called")
	}
	p0 := e.Stats().Loop.Presented
	waitFor(t, "frames while the upscaler is stuck", func() bool {
		return e.Stats().Loop.Presented >= p0+10
	})
	waitFor(t, "original image published after the upscale timeout", func() bool {
		return e.Stats().Producer.Published >= 1
	})

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}
	if frames.Load() == 0 {
		t.Error("no frames presented")
	}
}

func TestEngineSeedsFromCache(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []color.RGBA{{R: 255, A: 255}, {G: 255, A: 255}} {
		img := image.NewRGBA(image.Rect(0, 0, 4, 4))
		img.SetRGBA(0, 0, c)
		h := bitmap.New(img)
		if err := store.Store(h); err != nil {
			t.Fatal(err)
		}
		h.Release()
		time.Sleep(2 * time.Millisecond)
	}

	cfg := testConfig()
	cfg.Cache.Dir = dir
	cfg.Cache.Preload = 2
	e, err := New(cfg, WithDevice(software.New(32, 16)))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatal(err)
	}
	cur, next := e.Slot().Load()
	defer cur.Release()
	defer next.Release()
	if cur == nil || next == nil {
		t.Fatalf("slot = %v, %v; want both seeded", cur, next)
	}
	if g := cur.RGBA().RGBAAt(0, 0).G; g != 255 {
		t.Errorf("current should be the newest cached image, got %v", cur.RGBA().RGBAAt(0, 0))
	}
}

func TestEngineParams(t *testing.T) {
	e, err := New(testConfig(), WithDevice(software.New(8, 8)))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if e.Params() != uniforms.DefaultParams() {
		t.Errorf("initial params = %+v", e.Params())
	}
	cfg := testConfig()
	cfg.Params.Warp = 0.9
	e.Apply(cfg)
	if e.Params().Warp != 0.9 {
		t.Errorf("warp after Apply = %v", e.Params().Warp)
	}
	if !e.Resize(16, 4) {
		t.Fatal("software device should be resizable")
	}
	if s := e.Stats(); s.Loop.Ticks != 0 || s.Producer != (producer.Stats{}) {
		t.Errorf("stats before Run = %+v", s)
	}
}

func TestEngineOptionsAndErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = "software"
	e, err := New(cfg, WithFrameRate(30))
	if err != nil {
		t.Fatal(err)
	}
	if e.Backend() != "software" {
		t.Errorf("Backend() = %q", e.Backend())
	}
	if e.Config().FrameRate != 30 {
		t.Errorf("frame rate = %v, want 30", e.Config().FrameRate)
	}
	if budget := e.Loop().FrameBudget(); budget < 33*time.Millisecond || budget > 34*time.Millisecond {
		t.Errorf("frame budget = %v", budget)
	}
	e.Close()
	e.Close()
	if err := e.Run(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Run after Close: err = %v, want ErrClosed", err)
	}

	bad := testConfig()
	bad.MaxInFlight = 0
	if _, err := New(bad, WithDevice(software.New(1, 1))); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("invalid config: err = %v", err)
	}
	if _, err := New(testConfig(), WithFrameRate(1000), WithDevice(software.New(1, 1))); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("frame rate override: err = %v", err)
	}
}
