// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package slot

import (
	"image"
	"sync"
	"testing"

	"github.com/gogpu/ambient/bitmap"
)

func newHandle() *bitmap.Handle {
	return bitmap.New(image.NewRGBA(image.Rect(0, 0, 1, 1)))
}

func TestStoreThenStoreLoadsLatest(t *testing.T) {
	s := New()
	a, b := newHandle(), newHandle()
	defer a.Release()
	defer b.Release()

	s.Store(a)
	s.Store(b)

	cur, gen := s.LoadWithGeneration()
	defer cur.Release()
	if !bitmap.Same(cur, b) {
		t.Errorf("loaded handle %d, want B (%d)", cur.ID(), b.ID())
	}
	if gen != 2 {
		t.Errorf("generation = %d, want 2", gen)
	}
}

func TestEmptySlot(t *testing.T) {
	s := New()
	cur, next := s.Load()
	if cur != nil || next != nil {
		t.Error("empty slot should load nil handles")
	}
	if s.Generation() != 0 {
		t.Errorf("Generation() = %d, want 0", s.Generation())
	}
}

func TestStoreNextKeepsGeneration(t *testing.T) {
	s := New()
	a, n := newHandle(), newHandle()
	defer a.Release()
	defer n.Release()

	s.Store(a)
	s.StoreNext(n)
	if s.Generation() != 1 {
		t.Errorf("StoreNext advanced generation to %d", s.Generation())
	}
	cur, next := s.Load()
	defer cur.Release()
	defer next.Release()
	if !bitmap.Same(cur, a) || !bitmap.Same(next, n) {
		t.Error("Load returned wrong pair")
	}
}

func TestStorePairAndClear(t *testing.T) {
	s := New()
	a, n := newHandle(), newHandle()

	s.StorePair(a, n)
	a.Release()
	n.Release()
	if a.Released() || n.Released() {
		t.Fatal("slot must hold its own references")
	}

	s.Clear()
	if !a.Released() || !n.Released() {
		t.Error("Clear should release the last references")
	}
	if s.Generation() != 2 {
		t.Errorf("Generation() = %d, want 2", s.Generation())
	}
	if cur, _ := s.Load(); cur != nil {
		t.Error("Load after Clear should return nil")
	}
}

func TestReplacedHandleReleased(t *testing.T) {
	s := New()
	a, b := newHandle(), newHandle()
	s.Store(a)
	a.Release()
	s.Store(b)
	b.Release()
	if !a.Released() {
		t.Error("replaced handle should be released by the slot")
	}
	if b.Released() {
		t.Error("current handle must stay alive")
	}
	s.Clear()
}

// TestConcurrentStoreLoad checks that no load ever observes a torn pair and
// the generation never goes backwards.
func TestConcurrentStoreLoad(t *testing.T) {
	s := New()
	const writers, stores = 4, 500

	// Each pair is published with next = the handle stored right after
	// current in the pairs table, so a consistent load satisfies pairOf.
	pairOf := make(map[uint64]uint64)
	var pairsMu sync.Mutex

	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range stores {
				cur, next := newHandle(), newHandle()
				pairsMu.Lock()
				pairOf[cur.ID()] = next.ID()
				pairsMu.Unlock()
				s.StorePair(cur, next)
				cur.Release()
				next.Release()
			}
		}()
	}

	done := make(chan struct{})
	errs := make(chan string, 1)
	go func() {
		defer close(done)
		var last uint64
		for range writers * stores {
			cur, next := s.Load()
			gen := s.Generation()
			if gen < last {
				select {
				case errs <- "generation decreased":
				default:
				}
			}
			last = gen
			if cur != nil {
				pairsMu.Lock()
				want := pairOf[cur.ID()]
				pairsMu.Unlock()
				if next.ID() != want {
					select {
					case errs <- "torn pair observed":
					default:
					}
				}
			}
			cur.Release()
			next.Release()
		}
	}()

	wg.Wait()
	<-done
	select {
	case msg := <-errs:
		t.Fatal(msg)
	default:
	}
	if got := s.Generation(); got != writers*stores {
		t.Errorf("Generation() = %d, want %d", got, writers*stores)
	}
	s.Clear()
}

// TestConcurrentLoadWithGeneration checks that the handle and generation
// returned together always belong to the same store.
func TestConcurrentLoadWithGeneration(t *testing.T) {
	s := New()
	const stores, readers = 2000, 4

	var genOf sync.Map // handle ID -> generation it was stored under
	done := make(chan struct{})

	var wg sync.WaitGroup
	errs := make(chan string, readers)
	for range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for {
				select {
				case <-done:
					return
				default:
				}
				cur, gen := s.LoadWithGeneration()
				if gen < last {
					errs <- "generation went backwards"
					cur.Release()
					return
				}
				last = gen
				if cur != nil {
					want, ok := genOf.Load(cur.ID())
					if !ok || want.(uint64) != gen {
						errs <- "handle returned with the generation of another store"
						cur.Release()
						return
					}
				} else if gen != 0 {
					errs <- "nil handle with a non-zero generation"
					return
				}
				cur.Release()
			}
		}()
	}

	for i := range stores {
		h := newHandle()
		genOf.Store(h.ID(), uint64(i+1))
		s.Store(h)
		h.Release()
	}
	close(done)
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
	if g := s.Generation(); g != stores {
		t.Errorf("Generation() = %d, want %d", g, stores)
	}
	s.Clear()
}
