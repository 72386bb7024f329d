// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package config reads the TOML configuration of the ambient runner and
// watches it for live slider changes.
//
// A minimal file:
//
//	backend = "native"
//	width = 1920
//	height = 1080
//	frame_rate = 90
//
//	[params]
//	echo = 0.4
//	trail = 0.7
//
//	[producer]
//	source = "./images"
//	hold = "8s"
//
// Missing keys keep their defaults. Durations are Go duration strings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/ambient/uniforms"
)

// Limits.
const (
	MinFrameRate = 1.0
	MaxFrameRate = 240.0
	MaxInFlight  = 8
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Duration is a time.Duration written as a string ("1.5s", "250ms").
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("config: duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Config is the runner configuration.
type Config struct {
	// Backend selects the compositor device by name; empty picks the best
	// available.
	Backend string `toml:"backend"`
	Width   int    `toml:"width"`
	Height  int    `toml:"height"`

	FrameRate        float64  `toml:"frame_rate"`
	Transition       Duration `toml:"transition"`
	MaxInFlight      int      `toml:"max_in_flight"`
	ResidentTextures int      `toml:"resident_textures"`
	Smoothing        float64  `toml:"smoothing"`

	Params   uniforms.Params `toml:"params"`
	Ghost    Ghost           `toml:"ghost"`
	Producer Producer        `toml:"producer"`
	Cache    Cache           `toml:"cache"`
	Log      Log             `toml:"log"`
}

// Ghost configures echo taps.
type Ghost struct {
	MinInterval Duration `toml:"min_interval"`
	MaxInterval Duration `toml:"max_interval"`
	Lifetime    Duration `toml:"lifetime"`
	Seed        uint64   `toml:"seed"`
}

// Producer configures the background image pipeline.
type Producer struct {
	// Source is a directory of images cycled as if generated.
	Source  string   `toml:"source"`
	Delay   Duration `toml:"delay"`
	Hold    Duration `toml:"hold"`
	Depth   int      `toml:"depth"`
	Refill  int      `toml:"refill"`
	Workers int      `toml:"workers"`

	Upscale        bool     `toml:"upscale"`
	UpscaleScale   float64  `toml:"upscale_scale"`
	UpscaleTimeout Duration `toml:"upscale_timeout"`
	Saliency       bool     `toml:"saliency"`
}

// Cache configures the persistent image cache.
type Cache struct {
	Dir      string `toml:"dir"` // empty disables the cache
	MaxFiles int    `toml:"max_files"`
	Preload  int    `toml:"preload"`
}

// Log configures logging.
type Log struct {
	Level  slog.Level `toml:"level"`
	Format string     `toml:"format"` // "text" or "json"
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Width:            1280,
		Height:           720,
		FrameRate:        90,
		Transition:       Duration(1500 * time.Millisecond),
		MaxInFlight:      3,
		ResidentTextures: 8,
		Smoothing:        4,
		Params:           uniforms.DefaultParams(),
		Ghost: Ghost{
			MinInterval: Duration(250 * time.Millisecond),
			MaxInterval: Duration(2 * time.Second),
			Lifetime:    Duration(1600 * time.Millisecond),
		},
		Producer: Producer{
			Delay:          Duration(4 * time.Second),
			Hold:           Duration(8 * time.Second),
			Depth:          3,
			Refill:         2,
			Workers:        1,
			UpscaleScale:   2,
			UpscaleTimeout: Duration(30 * time.Second),
			Saliency:       true,
		},
		Cache: Cache{MaxFiles: 64, Preload: 3},
		Log:   Log{Level: slog.LevelInfo, Format: "text"},
	}
}

// Parse decodes TOML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		var se *toml.StrictMissingError
		if errors.As(err, &se) {
			keys := make([]string, 0, len(se.Errors))
			for i := range se.Errors {
				keys = append(keys, strings.Join(se.Errors[i].Key(), "."))
			}
			return Config{}, fmt.Errorf("config: unknown keys %s", strings.Join(keys, ", "))
		}
		var de *toml.DecodeError
		if errors.As(err, &de) {
			row, col := de.Position()
			return Config{}, fmt.Errorf("config: line %d column %d: %w", row, col, err)
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Write encodes c as TOML.
func (c Config) Write(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Validate reports every invalid field. Slider values outside [0, 1] are
// not errors; the compositor clamps them.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Backend {
	case "", "software", "native":
	default:
		bad("backend %q (want software or native)", c.Backend)
	}
	if c.Width < 0 || c.Height < 0 {
		bad("size %dx%d", c.Width, c.Height)
	}
	if c.FrameRate < MinFrameRate || c.FrameRate > MaxFrameRate {
		bad("frame_rate %v (want %v to %v)", c.FrameRate, MinFrameRate, MaxFrameRate)
	}
	if c.Transition < 0 {
		bad("transition %v", c.Transition.D())
	}
	if c.MaxInFlight < 1 || c.MaxInFlight > MaxInFlight {
		bad("max_in_flight %d (want 1 to %d)", c.MaxInFlight, MaxInFlight)
	}
	if c.ResidentTextures < 0 {
		bad("resident_textures %d", c.ResidentTextures)
	}
	if c.Smoothing < 0 {
		bad("smoothing %v", c.Smoothing)
	}

	g := c.Ghost
	if g.MinInterval <= 0 || g.MaxInterval < g.MinInterval {
		bad("ghost intervals %v..%v", g.MinInterval.D(), g.MaxInterval.D())
	}
	if g.Lifetime <= 0 {
		bad("ghost lifetime %v", g.Lifetime.D())
	}

	p := c.Producer
	if p.Depth < 1 {
		bad("producer depth %d", p.Depth)
	}
	if p.Refill < 0 || p.Refill >= max(p.Depth, 1) {
		bad("producer refill %d (want below depth %d)", p.Refill, p.Depth)
	}
	if p.Workers < 1 {
		bad("producer workers %d", p.Workers)
	}
	if p.Hold <= 0 || p.Delay < 0 {
		bad("producer hold %v / delay %v", p.Hold.D(), p.Delay.D())
	}
	if p.Upscale && p.UpscaleScale <= 1 {
		bad("producer upscale_scale %v (want > 1)", p.UpscaleScale)
	}

	if c.Cache.MaxFiles < 0 || c.Cache.Preload < 0 {
		bad("cache max_files %d / preload %d", c.Cache.MaxFiles, c.Cache.Preload)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		bad("log format %q (want text or json)", c.Log.Format)
	}
	return errors.Join(errs...)
}
