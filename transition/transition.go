// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package transition tracks crossfades between the previously displayed image
// and the current one.
//
// Progress is derived purely from elapsed time. Linear progress is meant for
// consumers that apply their own easing (the composite shader does); Eased
// applies ease-out-cubic for consumers that want a ready-made curve. A
// consumer must use one or the other, never both.
package transition

import (
	"time"

	"github.com/gogpu/ambient/bitmap"
)

// DefaultDuration is the crossfade length used when none is configured.
const DefaultDuration = 1500 * time.Millisecond

// Tracker is the crossfade state machine. The zero value has no images and
// uses DefaultDuration.
//
// A Tracker holds one reference to each image it tracks and releases images
// it lets go of. It is owned by the render loop and not safe for concurrent
// use.
type Tracker struct {
	current  *bitmap.Handle
	previous *bitmap.Handle
	start    time.Time
	running  bool
	duration time.Duration
}

// NewTracker returns a tracker with the given crossfade duration.
// A non-positive duration selects DefaultDuration.
func NewTracker(d time.Duration) Tracker {
	return Tracker{duration: d}
}

// Duration returns the crossfade length.
func (t *Tracker) Duration() time.Duration {
	if t.duration <= 0 {
		return DefaultDuration
	}
	return t.duration
}

// Current returns the image being faded in or displayed. The reference is
// borrowed.
func (t *Tracker) Current() *bitmap.Handle { return t.current }

// Previous returns the image being faded out, or nil. The reference is
// borrowed.
func (t *Tracker) Previous() *bitmap.Handle { return t.previous }

// StartTime returns when the latest transition began and whether one has
// begun at all.
func (t *Tracker) StartTime() (time.Time, bool) {
	return t.start, t.running
}

// SetInitial displays h immediately with no transition.
func (t *Tracker) SetInitial(h *bitmap.Handle) {
	h.Retain()
	oldCur, oldPrev := t.current, t.previous
	t.current, t.previous = h, nil
	t.running = false
	t.start = time.Time{}
	oldCur.Release()
	oldPrev.Release()
}

// TransitionTo starts a crossfade from whatever is current to h at now.
//
// Calling it again before the previous crossfade finished makes the
// not-yet-settled current image the new previous one, so the display never
// jumps. Without a current image it behaves like SetInitial.
func (t *Tracker) TransitionTo(h *bitmap.Handle, now time.Time) {
	if t.current == nil {
		t.SetInitial(h)
		return
	}
	h.Retain()
	oldPrev := t.previous
	t.previous = t.current
	t.current = h
	t.start = now
	t.running = true
	oldPrev.Release()
}

// Progress returns linear progress in [0, 1]: exactly 1 at or after the
// duration, and 1 when no transition has started.
func (t *Tracker) Progress(now time.Time) float64 {
	if !t.running {
		return 1
	}
	elapsed := now.Sub(t.start)
	d := t.Duration()
	if elapsed >= d {
		return 1
	}
	if elapsed <= 0 {
		return 0
	}
	return float64(elapsed) / float64(d)
}

// Eased returns ease-out-cubic progress, 1-(1-p)^3.
func (t *Tracker) Eased(now time.Time) float64 {
	return EaseOutCubic(t.Progress(now))
}

// IsTransitioning reports whether progress is below 1.
func (t *Tracker) IsTransitioning(now time.Time) bool {
	return t.Progress(now) < 1
}

// Settle drops the previous image once the crossfade has completed. It
// reports whether an image was released.
func (t *Tracker) Settle(now time.Time) bool {
	if t.previous == nil || t.IsTransitioning(now) {
		return false
	}
	t.previous.Release()
	t.previous = nil
	return true
}

// Reset releases both images and returns the tracker to its empty state.
// The duration is kept.
func (t *Tracker) Reset() {
	t.current.Release()
	t.previous.Release()
	t.current, t.previous = nil, nil
	t.running = false
	t.start = time.Time{}
}

// EaseOutCubic maps linear progress p in [0, 1] to 1-(1-p)^3.
func EaseOutCubic(p float64) float64 {
	q := 1 - p
	return 1 - q*q*q
}
