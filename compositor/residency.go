// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compositor

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/ambient/bitmap"
	"github.com/gogpu/ambient/internal/cache"
)

// uploadRetryTicks is how many binds a role with no usable texture waits
// before retrying a failed upload.
const uploadRetryTicks = 30

// role is the purpose an image is sampled for in the composite pass.
type role int

const (
	roleCurrent role = iota
	rolePrevious
	roleAux
	numRoles
)

func (r role) String() string {
	switch r {
	case roleCurrent:
		return "current"
	case rolePrevious:
		return "previous"
	case roleAux:
		return "aux"
	default:
		return "unknown"
	}
}

// binding is the texture currently used for a role.
type binding struct {
	id  uint64
	tex Texture
}

// retired is an evicted texture that may still be referenced by submissions
// up to serial.
type retired struct {
	tex    Texture
	serial uint64
}

// residency keeps uploaded image textures keyed by handle identity. A role
// uploads only when its handle ID changes, and recently displayed images
// stay resident so a transition back to one of them costs nothing.
type residency struct {
	dev   Device
	log   *slog.Logger
	stats *Stats

	lru       *cache.LRU[uint64, Texture]
	bound     [numRoles]binding
	failed    [numRoles]uint64
	waited    [numRoles]int
	graveyard []retired

	// submitted returns the serial of the latest submission.
	submitted func() uint64
}

func newResidency(dev Device, capacity int, log *slog.Logger, stats *Stats, submitted func() uint64) *residency {
	r := &residency{
		dev:       dev,
		log:       log,
		stats:     stats,
		submitted: submitted,
	}
	// Every bound texture is touched each tick, so with room for one more
	// than the roles an eviction never hits a bound texture.
	r.lru = cache.New[uint64, Texture](max(capacity, int(numRoles)+1), r.retire)
	return r
}

// bind returns the texture for h in role ro, uploading it if needed. It
// returns false only when no texture has ever been usable for the role.
func (r *residency) bind(ro role, h *bitmap.Handle) (Texture, bool) {
	id := h.ID()
	b := r.bound[ro]
	if b.tex != nil && b.id == id {
		r.lru.Get(id)
		return b.tex, true
	}

	if tex, ok := r.lru.Get(id); ok {
		r.bound[ro] = binding{id: id, tex: tex}
		r.stats.textureReuses.Add(1)
		return tex, true
	}

	// A handle that failed once keeps the old texture until it is replaced.
	// With nothing to fall back on, the upload is retried every
	// uploadRetryTicks binds.
	if r.failed[ro] == id {
		if r.bound[ro].tex != nil {
			return r.fallback(ro)
		}
		if r.waited[ro]++; r.waited[ro] < uploadRetryTicks {
			return nil, false
		}
	}
	r.waited[ro] = 0

	tex, err := r.upload(h)
	if err != nil {
		r.failed[ro] = id
		r.stats.uploadFailures.Add(1)
		r.log.Warn("compositor: texture upload failed, keeping previous texture",
			"role", ro.String(), "image", id, "error", err)
		return r.fallback(ro)
	}

	r.stats.uploads.Add(1)
	r.lru.Put(id, tex)
	r.bound[ro] = binding{id: id, tex: tex}
	r.failed[ro] = 0
	return tex, true
}

func (r *residency) fallback(ro role) (Texture, bool) {
	b := r.bound[ro]
	if b.tex == nil {
		return nil, false
	}
	r.lru.Get(b.id)
	return b.tex, true
}

// unbind forgets the role's binding. The texture stays resident.
func (r *residency) unbind(ro role) {
	r.bound[ro] = binding{}
	r.failed[ro] = 0
	r.waited[ro] = 0
}

func (r *residency) upload(h *bitmap.Handle) (Texture, error) {
	tex, err := r.dev.NewTexture(TextureDesc{
		Label:  fmt.Sprintf("image_%d", h.ID()),
		Width:  h.Width(),
		Height: h.Height(),
		Format: FormatOf(h),
		Usage:  UsageSampled | UsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture: %w", err)
	}
	if err := r.dev.Upload(tex, h); err != nil {
		tex.Destroy()
		return nil, fmt.Errorf("upload: %w", err)
	}
	return tex, nil
}

// retire is the LRU eviction callback.
func (r *residency) retire(id uint64, tex Texture) {
	r.log.Debug("compositor: texture evicted", "image", id)
	r.graveyard = append(r.graveyard, retired{tex: tex, serial: r.submitted()})
}

// collect destroys retired textures no longer referenced by any submission
// up to completed.
func (r *residency) collect(completed uint64) {
	keep := r.graveyard[:0]
	for _, g := range r.graveyard {
		if g.serial <= completed {
			g.tex.Destroy()
			continue
		}
		keep = append(keep, g)
	}
	clear(r.graveyard[len(keep):])
	r.graveyard = keep
}

// cacheStats returns the texture cache counters. Safe from any goroutine.
func (r *residency) cacheStats() cache.Stats {
	return r.lru.Stats()
}

// clear drops and destroys every texture. The caller guarantees nothing is
// in flight.
func (r *residency) clear() {
	for ro := range r.bound {
		r.unbind(role(ro))
	}
	r.lru.Clear()
	for _, g := range r.graveyard {
		g.tex.Destroy()
	}
	clear(r.graveyard)
	r.graveyard = r.graveyard[:0]
}
