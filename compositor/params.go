// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compositor

import (
	"sync/atomic"

	"github.com/gogpu/ambient/uniforms"
)

// ParamStore publishes slider values to the loop. Any goroutine may write;
// the loop reads once per tick, so a change takes effect on the next tick.
//
// The zero value holds uniforms.DefaultParams.
type ParamStore struct {
	p atomic.Pointer[uniforms.Params]
}

// NewParamStore creates a store holding p.
func NewParamStore(p uniforms.Params) *ParamStore {
	s := &ParamStore{}
	s.Store(p)
	return s
}

// Load returns the current values.
func (s *ParamStore) Load() uniforms.Params {
	if p := s.p.Load(); p != nil {
		return *p
	}
	return uniforms.DefaultParams()
}

// Store replaces all values. Out-of-range values are clamped.
func (s *ParamStore) Store(p uniforms.Params) {
	p = p.Clamp()
	s.p.Store(&p)
}

// Update applies fn atomically with respect to other Updates and Stores.
func (s *ParamStore) Update(fn func(uniforms.Params) uniforms.Params) uniforms.Params {
	for {
		old := s.p.Load()
		cur := uniforms.DefaultParams()
		if old != nil {
			cur = *old
		}
		next := fn(cur).Clamp()
		if s.p.CompareAndSwap(old, &next) {
			return next
		}
	}
}
