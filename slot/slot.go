// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package slot implements the image exchange between background producers
// and the render loop.
//
// A Slot holds the latest "current" image, an optional preloaded "next"
// image and a generation counter. All three change together inside one short
// critical section that only swaps pointers and bumps a counter, so a reader
// never observes a partially written triple and neither side can starve the
// other. The render loop polls Generation to detect new content without
// comparing handles.
//
// Ownership: every store takes its own reference to the published handles,
// so callers keep (and must eventually release) their own. Handles replaced
// by a store are released after the critical section is left. Load methods
// return retained handles which the caller must release.
package slot

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/ambient/bitmap"
)

// Slot exchanges image handles between goroutines.
//
// Slot is safe for concurrent use. The zero value is an empty slot at
// generation 0.
type Slot struct {
	mu      sync.Mutex
	current *bitmap.Handle
	next    *bitmap.Handle

	// gen is written only under mu and read atomically by Generation.
	gen atomic.Uint64
}

// New creates an empty slot.
func New() *Slot {
	return &Slot{}
}

// Store publishes h as the current image and advances the generation.
// The preloaded next image is left untouched.
func (s *Slot) Store(h *bitmap.Handle) {
	h.Retain()
	s.mu.Lock()
	old := s.current
	s.current = h
	s.gen.Add(1)
	s.mu.Unlock()
	old.Release()
}

// StoreNext publishes h as the preloaded next image. The generation is not
// advanced: it tags current content only.
func (s *Slot) StoreNext(h *bitmap.Handle) {
	h.Retain()
	s.mu.Lock()
	old := s.next
	s.next = h
	s.mu.Unlock()
	old.Release()
}

// StorePair publishes current and next in one critical section and advances
// the generation.
func (s *Slot) StorePair(current, next *bitmap.Handle) {
	current.Retain()
	next.Retain()
	s.mu.Lock()
	oldCur, oldNext := s.current, s.next
	s.current, s.next = current, next
	s.gen.Add(1)
	s.mu.Unlock()
	oldCur.Release()
	oldNext.Release()
}

// Load returns retained references to the current and next images. Either
// may be nil.
func (s *Slot) Load() (current, next *bitmap.Handle) {
	s.mu.Lock()
	current = s.current.Retain()
	next = s.next.Retain()
	s.mu.Unlock()
	return current, next
}

// LoadWithGeneration returns a retained reference to the current image and
// the generation it was published under.
func (s *Slot) LoadWithGeneration() (*bitmap.Handle, uint64) {
	s.mu.Lock()
	current := s.current.Retain()
	gen := s.gen.Load()
	s.mu.Unlock()
	return current, gen
}

// Generation returns the generation counter without locking.
func (s *Slot) Generation() uint64 {
	return s.gen.Load()
}

// Clear drops both images and advances the generation.
func (s *Slot) Clear() {
	s.mu.Lock()
	oldCur, oldNext := s.current, s.next
	s.current, s.next = nil, nil
	s.gen.Add(1)
	s.mu.Unlock()
	oldCur.Release()
	oldNext.Release()
}
