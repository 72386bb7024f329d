// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compositor

import "sync/atomic"

// Stats holds loop counters. They are updated by the loop and may be read
// from any goroutine.
type Stats struct {
	ticks             atomic.Uint64
	presented         atomic.Uint64
	skipped           atomic.Uint64
	transitions       atomic.Uint64
	uploads           atomic.Uint64
	uploadFailures    atomic.Uint64
	textureReuses     atomic.Uint64
	backpressureWaits atomic.Uint64
	lateFrames        atomic.Uint64
	errors            atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Ticks             uint64
	Presented         uint64
	Skipped           uint64
	Transitions       uint64
	Uploads           uint64
	UploadFailures    uint64
	TextureReuses     uint64
	BackpressureWaits uint64
	LateFrames        uint64
	Errors            uint64

	// Texture residency. Hits include the per-tick lookup of bound textures.
	Resident           int
	ResidentCapacity   int
	ResidencyHits      uint64
	ResidencyMisses    uint64
	ResidencyEvictions uint64
}

// Snapshot returns the current counter values. Counters are read one by one,
// so a snapshot taken while the loop runs may mix adjacent ticks.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Ticks:             s.ticks.Load(),
		Presented:         s.presented.Load(),
		Skipped:           s.skipped.Load(),
		Transitions:       s.transitions.Load(),
		Uploads:           s.uploads.Load(),
		UploadFailures:    s.uploadFailures.Load(),
		TextureReuses:     s.textureReuses.Load(),
		BackpressureWaits: s.backpressureWaits.Load(),
		LateFrames:        s.lateFrames.Load(),
		Errors:            s.errors.Load(),
	}
}
