// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package software

import (
	"image"

	"github.com/chewxy/math32"

	"github.com/gogpu/ambient/compositor"
	"github.com/gogpu/ambient/uniforms"
)

const twoPi = 2 * math32.Pi

// Constants shared with the native composite shader.
const (
	echoReach     = 0.08  // UV distance an echo travels over its lifetime
	feedbackScale = 0.995 // per-frame zoom of the trail toward the centre
)

type vec3 [3]float32

func (a vec3) add(b vec3) vec3      { return vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a vec3) sub(b vec3) vec3      { return vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a vec3) scale(s float32) vec3 { return vec3{a[0] * s, a[1] * s, a[2] * s} }
func (a vec3) max(b vec3) vec3 {
	return vec3{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2])}
}
func mix(a, b vec3, t float32) vec3 { return a.add(b.sub(a).scale(t)) }

// composite executes one CompositePass into its target.
func (d *Device) composite(p *compositor.CompositePass) error {
	out, err := d.own(p.Target)
	if err != nil {
		return err
	}
	cur, err := d.own(p.Current)
	if err != nil {
		return err
	}
	prev := cur
	if p.Previous != nil {
		if prev, err = d.own(p.Previous); err != nil {
			return err
		}
	}
	if out.rgba == nil || cur.rgba == nil || prev.rgba == nil {
		return ErrFormatMismatch
	}

	k := kernel{
		u:    &p.Uniforms,
		out:  out.rgba,
		cur:  cur.rgba,
		prev: prev.rgba,
		w:    float32(out.Width()),
		h:    float32(out.Height()),
	}
	if p.Feedback != nil {
		fb, err := d.own(p.Feedback)
		if err != nil {
			return err
		}
		k.fb = fb.rgba
	}
	if p.Aux != nil {
		aux, err := d.own(p.Aux)
		if err != nil {
			return err
		}
		k.aux = aux.gray
	}

	width := out.Width()
	d.pool.Rows(out.Height(), func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			row := k.out.Pix[y*k.out.Stride:]
			for x := range width {
				c := k.shade(x, y)
				i := x * 4
				row[i+0] = unorm8(c[0])
				row[i+1] = unorm8(c[1])
				row[i+2] = unorm8(c[2])
				row[i+3] = 0xff
			}
		}
	})
	return nil
}

// kernel holds the inputs of one composite pass.
type kernel struct {
	u    *uniforms.Block
	out  *image.RGBA
	cur  *image.RGBA
	prev *image.RGBA
	fb   *image.RGBA // may be nil
	aux  *image.Gray // may be nil
	w, h float32
}

// shade returns the linear color of output pixel (x, y).
func (k *kernel) shade(x, y int) vec3 {
	f := &k.u.Frame
	u := (float32(x) + 0.5) / k.w
	v := (float32(y) + 0.5) / k.h
	px, py := u-0.5, v-0.5

	// Organic camera: rotate and zoom about the centre, then warp and drift.
	s, c := math32.Sincos(f.Rotation)
	zoom := max(f.Zoom, 0.01)
	rx := (px*c - py*s) / zoom
	ry := (px*s + py*c) / zoom
	phase := twoPi * f.WarpSpeed * f.Time
	su := rx + 0.5 + f.DriftX + f.WarpAmount*math32.Sin(twoPi*f.WarpFrequency*ry+phase)
	sv := ry + 0.5 + f.DriftY + f.WarpAmount*math32.Cos(twoPi*f.WarpFrequency*rx+phase*0.7)

	// Crossfade, softened toward the average while the boost is high.
	curC := sampleShifted(k.cur, su, sv, f.ChromaShift)
	prevC := sampleShifted(k.prev, su, sv, f.ChromaShift)
	col := mix(prevC, curC, smoothstep(f.Progress))
	col = mix(col, curC.add(prevC).scale(0.5), f.BlendStrength*f.Boost*0.5)

	// Ghost taps: screen-blended echoes pushed along each tap direction.
	for i := range k.u.Taps {
		t := &k.u.Taps[i]
		if t.Active == 0 {
			continue
		}
		fade := 1 - t.Progress
		a := f.EchoStrength * fade * fade * 0.5
		off := t.Progress * echoReach
		e := sample(k.cur, su-t.DirX*off, sv-t.DirY*off).scale(a)
		col = col.add(e.sub(vec3{col[0] * e[0], col[1] * e[1], col[2] * e[2]}))
	}

	// Feedback trail, kept away from salient regions when an aux map is bound.
	if k.fb != nil && f.TrailMix > 0 {
		fu := px*feedbackScale + 0.5
		fv := py*feedbackScale + 0.5
		trail := sample(k.fb, fu, fv).scale(f.TrailDecay)
		w := f.TrailMix
		if k.aux != nil && f.AuxWeight > 0 {
			sal := sampleGray(k.aux, su, sv)
			w *= 1 - f.AuxWeight*sal
		}
		col = mix(col, col.max(trail), w)
	}

	// Grading.
	col = hueRotate(col, f.HueShift*twoPi)
	lum := col[0]*0.299 + col[1]*0.587 + col[2]*0.114
	sat := f.Saturation * (1 + f.ColorVariance*math32.Sin(twoPi*(u*0.7+v*0.3)+f.Time*0.25))
	gray := vec3{lum, lum, lum}
	col = gray.add(col.sub(gray).scale(sat)).scale(f.Brightness)

	vig := 1 - f.Vignette*(px*px+py*py)*2
	return col.scale(max(vig, 0))
}

// sample reads img bilinearly at normalised (u, v), clamping to the edges.
func sample(img *image.RGBA, u, v float32) vec3 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	x0, x1, tx := taps1D(u, w)
	y0, y1, ty := taps1D(v, h)
	c00 := texel(img, x0, y0)
	c10 := texel(img, x1, y0)
	c01 := texel(img, x0, y1)
	c11 := texel(img, x1, y1)
	return mix(mix(c00, c10, tx), mix(c01, c11, tx), ty)
}

// sampleShifted samples with the red and blue channels pulled apart
// horizontally by shift.
func sampleShifted(img *image.RGBA, u, v, shift float32) vec3 {
	c := sample(img, u, v)
	if shift == 0 {
		return c
	}
	c[0] = sample(img, u+shift, v)[0]
	c[2] = sample(img, u-shift, v)[2]
	return c
}

// sampleGray reads a single-channel image bilinearly, in [0, 1].
func sampleGray(img *image.Gray, u, v float32) float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	x0, x1, tx := taps1D(u, w)
	y0, y1, ty := taps1D(v, h)
	at := func(x, y int) float32 { return float32(img.Pix[y*img.Stride+x]) / 255 }
	top := at(x0, y0) + (at(x1, y0)-at(x0, y0))*tx
	bot := at(x0, y1) + (at(x1, y1)-at(x0, y1))*tx
	return top + (bot-top)*ty
}

// taps1D returns the two texel indices and the interpolation weight for
// normalised coordinate t over n texels.
func taps1D(t float32, n int) (i0, i1 int, frac float32) {
	f := t*float32(n) - 0.5
	if math32.IsNaN(f) {
		f = 0
	}
	fl := math32.Floor(f)
	frac = f - fl
	i0 = clampIndex(int(fl), n)
	i1 = clampIndex(int(fl)+1, n)
	return i0, i1, frac
}

func clampIndex(i, n int) int {
	return min(max(i, 0), n-1)
}

func texel(img *image.RGBA, x, y int) vec3 {
	i := y*img.Stride + x*4
	p := img.Pix[i : i+3 : i+3]
	return vec3{float32(p[0]) / 255, float32(p[1]) / 255, float32(p[2]) / 255}
}

// hueRotate rotates chroma in YIQ space by angle radians.
func hueRotate(c vec3, angle float32) vec3 {
	if angle == 0 {
		return c
	}
	y := 0.299*c[0] + 0.587*c[1] + 0.114*c[2]
	i := 0.596*c[0] - 0.274*c[1] - 0.322*c[2]
	q := 0.211*c[0] - 0.523*c[1] + 0.312*c[2]
	s, co := math32.Sincos(angle)
	i, q = i*co-q*s, i*s+q*co
	return vec3{
		y + 0.956*i + 0.621*q,
		y - 0.272*i - 0.647*q,
		y - 1.106*i + 1.703*q,
	}
}

func smoothstep(t float32) float32 {
	t = min(max(t, 0), 1)
	return t * t * (3 - 2*t)
}

func unorm8(v float32) uint8 {
	if math32.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xff
	}
	return uint8(v*255 + 0.5)
}
