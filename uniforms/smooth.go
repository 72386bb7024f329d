// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package uniforms

import "math"

// DefaultSmoothingRate is the convergence rate, per second, of a Smoother
// created with rate 0.
const DefaultSmoothingRate = 4.0

// Smoother eases slider values toward their targets so abrupt config
// changes do not pop. It is stateful and therefore kept out of Compute.
//
// A Smoother is owned by the render loop and not safe for concurrent use.
type Smoother struct {
	rate    float64
	current Params
	primed  bool
}

// NewSmoother creates a smoother converging at rate per second.
func NewSmoother(rate float64) *Smoother {
	if rate <= 0 {
		rate = DefaultSmoothingRate
	}
	return &Smoother{rate: rate}
}

// Step advances the smoothed value by dt seconds toward target and returns
// it. The first call jumps straight to target.
func (s *Smoother) Step(target Params, dt float64) Params {
	target = target.Clamp()
	if !s.primed {
		s.current = target
		s.primed = true
		return s.current
	}
	if dt <= 0 {
		return s.current
	}
	a := 1 - math.Exp(-s.rate*dt)
	lerp := func(from, to float64) float64 { return from + (to-from)*a }
	s.current = Params{
		Echo:  lerp(s.current.Echo, target.Echo),
		Blend: lerp(s.current.Blend, target.Blend),
		Trail: lerp(s.current.Trail, target.Trail),
		Warp:  lerp(s.current.Warp, target.Warp),
		Color: lerp(s.current.Color, target.Color),
	}
	return s.current
}

// Current returns the last smoothed value.
func (s *Smoother) Current() Params {
	return s.current
}

// Reset forgets the smoothed state.
func (s *Smoother) Reset() {
	s.current = Params{}
	s.primed = false
}
