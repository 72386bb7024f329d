// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package uniforms computes the per-frame shader parameter block.
//
// Compute is a pure function: identical inputs produce bit-identical frames
// on any goroutine, so two surfaces fed the same inputs render the same
// picture. Nothing in a Frame carries over from one tick to the next except
// through Inputs.
//
// Outputs fall in two groups. Organic animation (drift, zoom, rotation and
// friends) is a weighted sum of sines whose frequencies step by the golden
// ratio, which keeps any repetition far beyond practical session lengths.
// Transition boosts scale the parameters that hide a crossfade by
// sin(pi * progress), computed in a form that is exactly symmetric about the
// midpoint.
package uniforms

import (
	"math"

	"github.com/chewxy/math32"
)

// Phi is the golden ratio.
const Phi = 1.618033988749895

// organicOmega is the base angular frequency of the organic oscillators.
const organicOmega = 2 * math.Pi * 0.047

// Params holds the external sliders. Every field is expected in [0, 1].
type Params struct {
	Echo  float64 `toml:"echo"`
	Blend float64 `toml:"blend"`
	Trail float64 `toml:"trail"`
	Warp  float64 `toml:"warp"`
	Color float64 `toml:"color"`
}

// DefaultParams returns mid-range sliders.
func DefaultParams() Params {
	return Params{Echo: 0.5, Blend: 0.5, Trail: 0.5, Warp: 0.5, Color: 0.5}
}

// Clamp returns p with every slider clamped to [0, 1]. NaN becomes 0.
func (p Params) Clamp() Params {
	return Params{
		Echo:  unit(p.Echo),
		Blend: unit(p.Blend),
		Trail: unit(p.Trail),
		Warp:  unit(p.Warp),
		Color: unit(p.Color),
	}
}

// Inputs is everything a frame is derived from.
type Inputs struct {
	Time         float64 // seconds since the loop started
	Progress     float64 // linear transition progress in [0, 1]
	Params       Params
	AuxAvailable bool
	ActiveTaps   int
}

// Frame is the scalar part of the shader parameter block.
type Frame struct {
	Time     float32
	Progress float32 // linear; the shader applies its own easing
	Boost    float32

	DriftX   float32
	DriftY   float32
	Zoom     float32
	Rotation float32

	WarpAmount    float32
	WarpFrequency float32
	WarpSpeed     float32

	ChromaShift   float32
	ColorVariance float32
	HueShift      float32
	Saturation    float32
	Brightness    float32

	TrailDecay    float32
	TrailMix      float32
	EchoStrength  float32
	EchoCount     float32
	BlendStrength float32
	AuxWeight     float32
	Vignette      float32
}

// Compute derives the frame for in.
func Compute(in Inputs) Frame {
	t := in.Time
	p := unit(in.Progress)
	s := in.Params.Clamp()
	boost := Boost(p)

	warp := float32(s.Warp)
	color := float32(s.Color)
	trail := float32(s.Trail)

	f := Frame{
		Time:     float32(t),
		Progress: float32(p),
		Boost:    boost,

		DriftX:   0.020 * organic(t, 0.0),
		DriftY:   0.020 * organic(t, 1.7),
		Zoom:     1.015 + 0.015*organic(t, 2.9),
		Rotation: 0.040 * organic(t, 4.1),

		WarpAmount:    warp * (0.015 + 0.008*organic(t, 5.3)) * (1 + 1.5*boost),
		WarpFrequency: 2 + 1.5*warp + 0.5*organic(t, 6.2),
		WarpSpeed:     0.15 + 0.10*warp,

		ChromaShift:   color * 0.004 * (1 + 2*boost),
		ColorVariance: color * (0.10 + 0.05*organic(t, 7.3)) * (1 + boost),
		HueShift:      color * 0.08 * organic(t, 8.9),
		Saturation:    1 + 0.25*(color-0.5) + 0.05*organic(t, 9.4),
		Brightness:    1 + 0.03*organic(t, 10.6),

		TrailDecay:    0.80 + 0.18*trail,
		TrailMix:      0.35 * trail,
		EchoStrength:  0.6 * float32(s.Echo),
		EchoCount:     float32(max(in.ActiveTaps, 0)),
		BlendStrength: float32(s.Blend),
		Vignette:      0.25 + 0.05*organic(t, 11.2),
	}
	if in.AuxAvailable {
		f.AuxWeight = 0.5 + 0.4*trail
	}
	return f
}

// Boost returns the transition boost for linear progress p:
// 0 at both ends, 1 at the midpoint. Boost(p) == Boost(1-p) exactly
// whenever 1-p is exact.
func Boost(p float64) float32 {
	p = unit(p)
	return math32.Sin(math32.Pi * float32(min(p, 1-p)))
}

// Organic returns the normalised organic oscillator value in [-1, 1] at time
// t for the given phase.
func Organic(t, phase float64) float64 {
	v := math.Sin(organicOmega*t+phase) +
		0.5*math.Sin(organicOmega*Phi*t+2*phase) +
		0.25*math.Sin(organicOmega*Phi*Phi*t+3*phase)
	return v / 1.75
}

// organic evaluates the oscillator in float64, where long session times keep
// their precision, and hands the result to float32 math.
func organic(t, phase float64) float32 {
	return float32(Organic(t, phase))
}

func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 1)
}
