// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package ghost manages ghost taps: short-lived directional echoes that the
// compositor layers over the current image.
//
// A tap is spawned at a rate driven by an intensity in [0, 1], ages linearly
// over its lifetime and is removed from the pool once fully aged. Directions
// come from a slow sum of sines at incommensurate frequencies plus a little
// jitter, so consecutive taps drift organically instead of jumping randomly.
//
// A Manager is owned by the render loop and is not safe for concurrent use.
package ghost

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/chewxy/math32"
)

// MaxTaps is the capacity of the tap pool and the length of the record array
// handed to the shader.
const MaxTaps = 8

// SpawnThreshold is the intensity at or below which no taps are spawned.
const SpawnThreshold = 0.01

// Default timing parameters.
const (
	DefaultMinInterval = 250 * time.Millisecond
	DefaultMaxInterval = 2 * time.Second
	DefaultLifetime    = 1600 * time.Millisecond
)

// jitter is the maximum absolute random offset added to a tap direction, in
// radians.
const jitter = 0.35

// Tap is a single spawned echo. It never changes after creation.
type Tap struct {
	SpawnTime float64 // seconds, on the caller's clock
	Angle     float64 // radians
	Lifetime  float64 // seconds
}

// Progress returns the tap's age as a fraction of its lifetime, clamped to
// [0, 1].
func (t Tap) Progress(now float64) float64 {
	if t.Lifetime <= 0 {
		return 1
	}
	p := (now - t.SpawnTime) / t.Lifetime
	return min(max(p, 0), 1)
}

// Record is the per-frame view of a tap as the shader consumes it.
// Unused records are zero, which includes Active == 0.
type Record struct {
	Progress float32
	DirX     float32
	DirY     float32
	Active   float32
}

// Config holds the manager's timing parameters. Zero fields take defaults.
type Config struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	Lifetime    time.Duration

	// Seed makes tap jitter reproducible. Zero uses a fixed seed.
	Seed uint64
}

func (c Config) withDefaults() Config {
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	if c.MaxInterval < c.MinInterval {
		c.MaxInterval = c.MinInterval
	}
	if c.Lifetime <= 0 {
		c.Lifetime = DefaultLifetime
	}
	return c
}

// Manager owns the bounded tap pool.
type Manager struct {
	cfg  Config
	rng  *rand.Rand
	taps []Tap

	lastSpawn float64
	spawned   bool
}

// NewManager creates a manager with an empty pool.
func NewManager(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:  cfg,
		rng:  rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		taps: make([]Tap, 0, MaxTaps),
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Len returns the number of taps currently in the pool.
func (m *Manager) Len() int {
	return len(m.taps)
}

// Taps returns a copy of the live taps.
func (m *Manager) Taps() []Tap {
	return append([]Tap(nil), m.taps...)
}

// Interval returns the spawn interval for the given intensity, interpolated
// from MaxInterval at 0 down to MinInterval at 1.
func (m *Manager) Interval(intensity float64) float64 {
	intensity = min(max(intensity, 0), 1)
	lo := m.cfg.MinInterval.Seconds()
	hi := m.cfg.MaxInterval.Seconds()
	return hi + (lo-hi)*intensity
}

// Update ages the pool to now (seconds), possibly spawns one tap and returns
// the shader records together with the number of active ones. Active records
// are packed at the front of the array.
func (m *Manager) Update(now, intensity float64) (records [MaxTaps]Record, active int) {
	intensity = min(max(intensity, 0), 1)

	live := m.taps[:0]
	for _, t := range m.taps {
		if t.Progress(now) < 1 {
			live = append(live, t)
		}
	}
	clear(m.taps[len(live):])
	m.taps = live

	if intensity > SpawnThreshold && len(m.taps) < MaxTaps &&
		(!m.spawned || now-m.lastSpawn >= m.Interval(intensity)) {
		m.taps = append(m.taps, Tap{
			SpawnTime: now,
			Angle:     Direction(now) + (m.rng.Float64()*2-1)*jitter,
			Lifetime:  m.cfg.Lifetime.Seconds(),
		})
		m.lastSpawn = now
		m.spawned = true
	}

	for i, t := range m.taps {
		s, c := math32.Sincos(float32(t.Angle))
		records[i] = Record{
			Progress: float32(t.Progress(now)),
			DirX:     c,
			DirY:     s,
			Active:   1,
		}
	}
	return records, len(m.taps)
}

// Reset empties the pool and forgets the last spawn time.
func (m *Manager) Reset() {
	clear(m.taps)
	m.taps = m.taps[:0]
	m.lastSpawn = 0
	m.spawned = false
}

// Direction returns the base flow angle at time t (seconds): a sum of three
// low-frequency sines scaled to a full turn.
func Direction(t float64) float64 {
	v := 0.50*math.Sin(2*math.Pi*0.0131*t) +
		0.30*math.Sin(2*math.Pi*0.0071*t+1.3) +
		0.20*math.Sin(2*math.Pi*0.0029*t+2.1)
	return 2 * math.Pi * v
}
