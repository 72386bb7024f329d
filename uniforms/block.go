// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package uniforms

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/ambient/ghost"
)

// Layout of the uniform buffer, shared with the composite shader:
//
//	offset   0: 22 x f32 frame scalars, in Frame field order
//	offset  88: width, height (f32)
//	offset  96: array<vec4<f32>, 8> taps (progress, dir.x, dir.y, active)
const (
	frameScalars = 22
	tapsOffset   = 96
	tapStride    = 16

	// BlockSize is the encoded size of a Block in bytes.
	BlockSize = tapsOffset + ghost.MaxTaps*tapStride
)

// Block is the full uniform block: frame scalars, output size and ghost
// tap records.
type Block struct {
	Frame
	Taps   [ghost.MaxTaps]ghost.Record
	Width  float32
	Height float32
}

// Encode writes b in little-endian std140-compatible layout into dst,
// growing it if needed, and returns the BlockSize-byte result.
func (b *Block) Encode(dst []byte) []byte {
	if cap(dst) < BlockSize {
		dst = make([]byte, BlockSize)
	}
	dst = dst[:BlockSize]

	off := 0
	put := func(v float32) {
		binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(v))
		off += 4
	}
	for _, v := range b.Frame.scalars() {
		put(v)
	}
	put(b.Width)
	put(b.Height)
	for _, r := range b.Taps {
		put(r.Progress)
		put(r.DirX)
		put(r.DirY)
		put(r.Active)
	}
	return dst
}

// Decode is the inverse of Encode. It reports false if src is too short.
func (b *Block) Decode(src []byte) bool {
	if len(src) < BlockSize {
		return false
	}
	off := 0
	get := func() float32 {
		v := math.Float32frombits(binary.LittleEndian.Uint32(src[off:]))
		off += 4
		return v
	}
	var s [frameScalars]float32
	for i := range s {
		s[i] = get()
	}
	b.Frame.setScalars(s)
	b.Width = get()
	b.Height = get()
	for i := range b.Taps {
		b.Taps[i] = ghost.Record{Progress: get(), DirX: get(), DirY: get(), Active: get()}
	}
	return true
}

func (f *Frame) scalars() [frameScalars]float32 {
	return [frameScalars]float32{
		f.Time, f.Progress, f.Boost,
		f.DriftX, f.DriftY, f.Zoom, f.Rotation,
		f.WarpAmount, f.WarpFrequency, f.WarpSpeed,
		f.ChromaShift, f.ColorVariance, f.HueShift, f.Saturation, f.Brightness,
		f.TrailDecay, f.TrailMix, f.EchoStrength, f.EchoCount, f.BlendStrength,
		f.AuxWeight, f.Vignette,
	}
}

func (f *Frame) setScalars(s [frameScalars]float32) {
	f.Time, f.Progress, f.Boost = s[0], s[1], s[2]
	f.DriftX, f.DriftY, f.Zoom, f.Rotation = s[3], s[4], s[5], s[6]
	f.WarpAmount, f.WarpFrequency, f.WarpSpeed = s[7], s[8], s[9]
	f.ChromaShift, f.ColorVariance, f.HueShift, f.Saturation, f.Brightness = s[10], s[11], s[12], s[13], s[14]
	f.TrailDecay, f.TrailMix, f.EchoStrength, f.EchoCount, f.BlendStrength = s[15], s[16], s[17], s[18], s[19]
	f.AuxWeight, f.Vignette = s[20], s[21]
}
