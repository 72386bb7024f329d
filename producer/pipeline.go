// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package producer runs the background side of the image exchange.
//
// Generator goroutines pull images from a Source, optionally upscale them
// and attach a saliency map, and append them to a bounded queue. Once the
// queue holds Depth images the generators pause until the publisher has
// drained it to RefillThreshold. The publisher promotes the queue head to
// the slot every Hold interval, together with the following image as the
// preloaded next one.
//
// Nothing here touches GPU state; the slot is the only thing shared with
// the render loop, and the render loop never waits on a Pipeline.
package producer

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/ambient/bitmap"
	"github.com/gogpu/ambient/clock"
	"github.com/gogpu/ambient/internal/logx"
	"github.com/gogpu/ambient/saliency"
	"github.com/gogpu/ambient/slot"
	"github.com/gogpu/ambient/upscale"
)

// Defaults.
const (
	DefaultDepth           = 3
	DefaultRefillThreshold = 2
	DefaultHold            = 8 * time.Second
	DefaultRetryDelay      = time.Second
)

// Pipeline errors.
var (
	ErrNoSource = errors.New("producer: no source")
	ErrNoSlot   = errors.New("producer: no slot")
	ErrStarted  = errors.New("producer: already started")
)

// Store persists published images. cache.Dir implements it.
type Store interface {
	Store(h *bitmap.Handle) error
}

// Config configures a Pipeline.
type Config struct {
	Source Source
	Slot   *slot.Slot

	// Upscale, if set, is applied to every generated image.
	Upscale *upscale.Guard
	// Saliency attaches an attention map to every image.
	Saliency bool
	// Store, if set, receives every generated image.
	Store Store

	Workers         int           // generator goroutines, 1 if zero
	Depth           int           // DefaultDepth if zero
	RefillThreshold int           // DefaultRefillThreshold if zero
	Hold            time.Duration // DefaultHold if zero
	RetryDelay      time.Duration // pause after a failed generation

	Clock  clock.Clock
	Logger *slog.Logger
}

// Stats counts pipeline events.
type Stats struct {
	Generated uint64
	Failed    uint64
	Published uint64
	Stored    uint64
	Queued    int
}

// Pipeline feeds a slot from a Source.
type Pipeline struct {
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []*bitmap.Handle
	pending  int  // generations in progress
	paused   bool // queue reached Depth; waiting for RefillThreshold
	started  bool
	stopping bool
	run      uint64 // incremented by Start

	// lastPublish is when the image on display was promoted; the next
	// promotion waits until lastPublish + Hold.
	lastPublish time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	generated atomic.Uint64
	failed    atomic.Uint64
	published atomic.Uint64
	stored    atomic.Uint64
}

// New creates a stopped pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, ErrNoSource
	}
	if cfg.Slot == nil {
		return nil, ErrNoSlot
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Depth <= 0 {
		cfg.Depth = DefaultDepth
	}
	if cfg.RefillThreshold <= 0 {
		cfg.RefillThreshold = DefaultRefillThreshold
	}
	cfg.RefillThreshold = min(cfg.RefillThreshold, cfg.Depth-1)
	if cfg.Hold <= 0 {
		cfg.Hold = DefaultHold
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	p := &Pipeline{cfg: cfg, log: logx.Or(cfg.Logger)}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Seed queues previously stored images so something can be shown before
// the first generation finishes. The first one is published to the slot
// immediately if the slot is empty and stays there for Hold like any other
// image. Seed retains what it keeps.
func (p *Pipeline) Seed(handles []*bitmap.Handle) {
	if len(handles) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, _ := p.cfg.Slot.Load(); cur == nil {
		var next *bitmap.Handle
		if len(handles) > 1 {
			next = handles[1]
		}
		p.cfg.Slot.StorePair(handles[0], next)
		p.published.Add(1)
		p.lastPublish = p.cfg.Clock.Now()
		handles = handles[1:]
	} else {
		cur.Release()
	}
	for _, h := range handles {
		if len(p.queue) >= p.cfg.Depth {
			break
		}
		p.queue = append(p.queue, h.Retain())
	}
	p.updatePausedLocked()
	p.cond.Broadcast()
}

// Start launches the generator and publisher goroutines. They run until
// Stop is called or ctx is done.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrStarted
	}
	p.started, p.stopping = true, false
	p.run++
	run := p.run

	ctx, p.cancel = context.WithCancel(ctx)
	stopWake := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		if p.run == run {
			p.stopping = true
			p.cond.Broadcast()
		}
		p.mu.Unlock()
	})

	for i := range p.cfg.Workers {
		p.wg.Add(1)
		go p.generate(ctx, i)
	}
	p.wg.Add(1)
	go p.publish(ctx)

	p.log.Info("producer: started", "workers", p.cfg.Workers, "depth", p.cfg.Depth,
		"refill", p.cfg.RefillThreshold, "hold", p.cfg.Hold)
	go func() {
		p.wg.Wait()
		stopWake()
	}()
	return nil
}

// Stop cancels the workers, waits for them and discards queued images.
// The slot keeps whatever was last published. Stop is idempotent.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.stopping = true
	p.cond.Broadcast()
	p.mu.Unlock()

	cancel()
	p.wg.Wait()

	p.mu.Lock()
	for _, h := range p.queue {
		h.Release()
	}
	p.queue = nil
	p.pending = 0
	p.paused = false
	p.started = false
	p.mu.Unlock()
	p.log.Info("producer: stopped")
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	queued := len(p.queue)
	p.mu.Unlock()
	return Stats{
		Generated: p.generated.Load(),
		Failed:    p.failed.Load(),
		Published: p.published.Load(),
		Stored:    p.stored.Load(),
		Queued:    queued,
	}
}

// updatePausedLocked applies the depth / refill hysteresis.
func (p *Pipeline) updatePausedLocked() {
	switch n := len(p.queue); {
	case n+p.pending >= p.cfg.Depth:
		p.paused = true
	case n <= p.cfg.RefillThreshold:
		p.paused = false
	}
}

// acquire blocks until a generator may start another image. It reports
// false once the pipeline is stopping.
func (p *Pipeline) acquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.stopping {
			return false
		}
		p.updatePausedLocked()
		if !p.paused {
			p.pending++
			return true
		}
		p.cond.Wait()
	}
}

func (p *Pipeline) generate(ctx context.Context, worker int) {
	defer p.wg.Done()
	log := p.log.With("worker", worker)

	for p.acquire() {
		h, err := p.produce(ctx)

		p.mu.Lock()
		p.pending--
		if err == nil && !p.stopping {
			p.queue = append(p.queue, h)
			h = nil
		}
		p.updatePausedLocked()
		p.cond.Broadcast()
		p.mu.Unlock()
		h.Release()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.failed.Add(1)
			log.Warn("producer: generation failed", "error", err)
			if p.cfg.Clock.Sleep(ctx, p.cfg.RetryDelay) != nil {
				return
			}
		}
	}
}

// produce generates one image and runs the post-processing steps.
func (p *Pipeline) produce(ctx context.Context) (*bitmap.Handle, error) {
	img, err := p.cfg.Source.Generate(ctx)
	if err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("producer: source returned an empty image")
	}
	h := p.process(ctx, img)
	p.generated.Add(1)

	if p.cfg.Store != nil {
		if err := p.cfg.Store.Store(h); err != nil {
			p.log.Warn("producer: store failed", "id", h.ID(), "error", err)
		} else {
			p.stored.Add(1)
		}
	}
	return h, nil
}

func (p *Pipeline) process(ctx context.Context, img image.Image) *bitmap.Handle {
	h := bitmap.New(img)
	if p.cfg.Upscale != nil {
		up := p.cfg.Upscale.Apply(ctx, h)
		h.Release()
		h = up
	}
	if p.cfg.Saliency {
		withAux := saliency.Attach(h)
		h.Release()
		h = withAux
	}
	return h
}

func (p *Pipeline) publish(ctx context.Context) {
	defer p.wg.Done()

	p.mu.Lock()
	if p.lastPublish.IsZero() {
		// Something published outside the pipeline still gets its Hold.
		if cur, _ := p.cfg.Slot.Load(); cur != nil {
			cur.Release()
			p.lastPublish = p.cfg.Clock.Now()
		}
	}
	p.mu.Unlock()

	for {
		if wait := p.holdRemaining(); wait > 0 {
			if p.cfg.Clock.Sleep(ctx, wait) != nil {
				return
			}
		}

		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopping {
			p.cond.Wait()
		}
		if p.stopping {
			p.mu.Unlock()
			return
		}
		head := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		var next *bitmap.Handle
		if len(p.queue) > 0 {
			next = p.queue[0]
		}
		// The slot takes its own references.
		p.cfg.Slot.StorePair(head, next)
		p.lastPublish = p.cfg.Clock.Now()
		p.updatePausedLocked()
		p.cond.Broadcast()
		p.mu.Unlock()

		p.published.Add(1)
		p.log.Debug("producer: published", "id", head.ID(), "generation", p.cfg.Slot.Generation())
		head.Release()
	}
}

// holdRemaining returns how long the image on display must still be shown.
func (p *Pipeline) holdRemaining() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastPublish.IsZero() {
		return 0
	}
	return p.lastPublish.Add(p.cfg.Hold).Sub(p.cfg.Clock.Now())
}
