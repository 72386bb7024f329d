// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package transition

import (
	"image"
	"math"
	"testing"
	"time"

	"github.com/gogpu/ambient/bitmap"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func at(d time.Duration) time.Time { return epoch.Add(d) }

func newHandle() *bitmap.Handle {
	return bitmap.New(image.NewRGBA(image.Rect(0, 0, 2, 2)))
}

func TestHalfwayScenario(t *testing.T) {
	a, b := newHandle(), newHandle()
	defer a.Release()
	defer b.Release()

	tr := NewTracker(0)
	defer tr.Reset()
	tr.SetInitial(a)
	tr.TransitionTo(b, at(0))

	now := at(750 * time.Millisecond)
	if p := tr.Progress(now); math.Abs(p-0.5) > 1e-9 {
		t.Errorf("Progress = %v, want 0.5", p)
	}
	if e := tr.Eased(now); math.Abs(e-0.875) > 1e-9 {
		t.Errorf("Eased = %v, want 0.875", e)
	}
	if !bitmap.Same(tr.Current(), b) || !bitmap.Same(tr.Previous(), a) {
		t.Error("wrong current/previous")
	}
}

func TestProgressMonotoneAndExact(t *testing.T) {
	tr := NewTracker(time.Second)
	a, b := newHandle(), newHandle()
	defer a.Release()
	defer b.Release()
	tr.SetInitial(a)
	tr.TransitionTo(b, at(0))

	prev := -1.0
	for ms := -100; ms <= 1200; ms += 7 {
		now := at(time.Duration(ms) * time.Millisecond)
		p := tr.Progress(now)
		if p < prev {
			t.Fatalf("progress decreased at %dms: %v < %v", ms, p, prev)
		}
		prev = p
		if tr.IsTransitioning(now) != (p < 1) {
			t.Fatalf("IsTransitioning disagrees with progress %v", p)
		}
	}
	if p := tr.Progress(at(time.Second)); p != 1 {
		t.Errorf("Progress at duration = %v, want exactly 1", p)
	}
	if tr.IsTransitioning(at(time.Second)) {
		t.Error("still transitioning at duration")
	}
	tr.Reset()
}

func TestSetInitialNoTransition(t *testing.T) {
	var tr Tracker
	a := newHandle()
	defer a.Release()
	tr.SetInitial(a)
	if tr.IsTransitioning(epoch) {
		t.Error("SetInitial must not start a transition")
	}
	if tr.Previous() != nil {
		t.Error("SetInitial must leave no previous image")
	}
	if tr.Duration() != DefaultDuration {
		t.Errorf("zero Tracker duration = %v", tr.Duration())
	}
	tr.Reset()
}

func TestTransitionWithoutCurrentIsInitial(t *testing.T) {
	var tr Tracker
	a := newHandle()
	defer a.Release()
	tr.TransitionTo(a, epoch)
	if tr.IsTransitioning(epoch) {
		t.Error("first image should display immediately")
	}
	if !bitmap.Same(tr.Current(), a) {
		t.Error("first image not current")
	}
	tr.Reset()
}

func TestReentrantTransition(t *testing.T) {
	var tr Tracker
	a, b, c := newHandle(), newHandle(), newHandle()
	tr.SetInitial(a)
	tr.TransitionTo(b, at(0))
	tr.TransitionTo(c, at(500*time.Millisecond))

	if !bitmap.Same(tr.Previous(), b) {
		t.Error("in-flight current should become previous")
	}
	if !bitmap.Same(tr.Current(), c) {
		t.Error("new image should be current")
	}
	if p := tr.Progress(at(500 * time.Millisecond)); p != 0 {
		t.Errorf("restarted progress = %v, want 0", p)
	}

	a.Release()
	if !a.Released() {
		t.Error("displaced previous image should have been released by the tracker")
	}
	b.Release()
	c.Release()
	if b.Released() || c.Released() {
		t.Error("tracked images released early")
	}
	tr.Reset()
	if !b.Released() || !c.Released() {
		t.Error("Reset should release tracked images")
	}
}

func TestSettle(t *testing.T) {
	var tr Tracker
	a, b := newHandle(), newHandle()
	tr.SetInitial(a)
	tr.TransitionTo(b, at(0))
	a.Release()

	if tr.Settle(at(time.Second)) {
		t.Error("Settle released during transition")
	}
	if !tr.Settle(at(2 * time.Second)) {
		t.Error("Settle should release the finished previous image")
	}
	if !a.Released() || tr.Previous() != nil {
		t.Error("previous image not released")
	}
	b.Release()
	tr.Reset()
}

func TestEaseOutCubic(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{1, 1},
		{0.5, 0.875},
	}
	for _, tt := range tests {
		if got := EaseOutCubic(tt.in); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("EaseOutCubic(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
