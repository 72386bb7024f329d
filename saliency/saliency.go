// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package saliency estimates where the eye is drawn in an image.
//
// The map is edge energy: Sobel gradient magnitude of the luminance,
// blurred and normalised to the full 0-255 range. It is computed on a
// reduced copy of the image; the compositor samples it in normalised
// coordinates, so its resolution does not need to match the image.
package saliency

import (
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/transform"

	"github.com/gogpu/ambient/bitmap"
)

// Defaults.
const (
	MaxSide    = 256 // longest side of the computed map
	BlurRadius = 4.0
)

// Estimate returns the saliency map of img, at most MaxSide pixels on its
// longest side. An empty image yields an empty map.
func Estimate(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return image.NewGray(image.Rect(0, 0, 0, 0))
	}
	if longest := max(w, h); longest > MaxSide {
		w = max(w*MaxSide/longest, 1)
		h = max(h*MaxSide/longest, 1)
		img = transform.Resize(img, w, h, transform.Linear)
	}

	var edges image.Image = effect.Sobel(effect.Grayscale(img))
	edges = blur.Gaussian(edges, BlurRadius)

	out := image.NewGray(image.Rect(0, 0, w, h))
	eb := edges.Bounds()
	var peak uint8
	for y := range h {
		for x := range w {
			r, _, _, _ := edges.At(eb.Min.X+x, eb.Min.Y+y).RGBA()
			v := uint8(r >> 8)
			out.Pix[y*out.Stride+x] = v
			peak = max(peak, v)
		}
	}
	normalize(out.Pix, peak)
	return out
}

// normalize stretches pix so its maximum becomes 255. A flat map stays zero.
func normalize(pix []uint8, peak uint8) {
	if peak == 0 || peak == 0xff {
		return
	}
	scale := 255 / float32(peak)
	for i, v := range pix {
		pix[i] = uint8(min(float32(v)*scale+0.5, 255))
	}
}

// Attach returns a new handle with h's pixels and its saliency map
// attached. The caller owns the result; h is not consumed. A handle that
// already has a map is returned retained.
func Attach(h *bitmap.Handle) *bitmap.Handle {
	if h == nil {
		return nil
	}
	if h.Aux() != nil {
		return h.Retain()
	}
	aux := bitmap.NewGray(Estimate(h.RGBA()))
	defer aux.Release()
	return bitmap.New(h.RGBA(), bitmap.WithAux(aux))
}
