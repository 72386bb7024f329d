// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compositor

import (
	"errors"
	"time"

	"github.com/gogpu/ambient/bitmap"
)

var errFake = errors.New("fake failure")

type fakeTexture struct {
	dev       *fakeDevice
	desc      TextureDesc
	image     uint64
	destroyed bool
}

func (t *fakeTexture) Width() int     { return t.desc.Width }
func (t *fakeTexture) Height() int    { return t.desc.Height }
func (t *fakeTexture) Format() Format { return t.desc.Format }

func (t *fakeTexture) Destroy() {
	if t.destroyed {
		panic("texture destroyed twice: " + t.desc.Label)
	}
	t.destroyed = true
	t.dev.live--
}

type fakeSubmission struct {
	done     bool
	released bool
}

func (s *fakeSubmission) Wait(time.Duration) (bool, error) { return s.done, nil }
func (s *fakeSubmission) Release()                         { s.released = true }

// fakeDevice records everything the loop asks of it.
type fakeDevice struct {
	width, height int

	textures []*fakeTexture
	live     int
	uploads  []uint64

	failUpload  func(h *bitmap.Handle) bool
	failBegin   bool
	failPresent bool
	holdWork    bool

	passes    []CompositePass
	copies    [][2]Texture
	presents  []Texture
	subs      []*fakeSubmission
	onPresent func()
	destroyed bool
}

func newFakeDevice(w, h int) *fakeDevice {
	return &fakeDevice{width: w, height: h}
}

func (d *fakeDevice) NewTexture(desc TextureDesc) (Texture, error) {
	t := &fakeTexture{dev: d, desc: desc}
	d.textures = append(d.textures, t)
	d.live++
	return t, nil
}

func (d *fakeDevice) Upload(tex Texture, h *bitmap.Handle) error {
	if d.failUpload != nil && d.failUpload(h) {
		return errFake
	}
	ft := tex.(*fakeTexture)
	if ft.destroyed {
		panic("upload into destroyed texture")
	}
	ft.image = h.ID()
	d.uploads = append(d.uploads, h.ID())
	return nil
}

func (d *fakeDevice) Begin() (Encoder, error) {
	if d.failBegin {
		return nil, errFake
	}
	return &fakeEncoder{dev: d}, nil
}

func (d *fakeDevice) Present(tex Texture) error {
	if d.failPresent {
		return errFake
	}
	d.presents = append(d.presents, tex)
	if d.onPresent != nil {
		d.onPresent()
	}
	return nil
}

func (d *fakeDevice) SurfaceSize() (int, int) { return d.width, d.height }
func (d *fakeDevice) Destroy()                { d.destroyed = true }

// imageOf returns the image ID uploaded into tex.
func imageOf(tex Texture) uint64 {
	if tex == nil {
		return 0
	}
	return tex.(*fakeTexture).image
}

func (d *fakeDevice) lastPass() CompositePass {
	return d.passes[len(d.passes)-1]
}

type fakeEncoder struct {
	dev    *fakeDevice
	passes []CompositePass
	copies [][2]Texture
}

func (e *fakeEncoder) Composite(p *CompositePass) {
	for _, tex := range []Texture{p.Target, p.Current, p.Previous, p.Feedback, p.Aux} {
		if tex != nil && tex.(*fakeTexture).destroyed {
			panic("composite samples destroyed texture")
		}
	}
	e.passes = append(e.passes, *p)
}

func (e *fakeEncoder) Copy(src, dst Texture) {
	e.copies = append(e.copies, [2]Texture{src, dst})
}

func (e *fakeEncoder) Submit() (Submission, error) {
	e.dev.passes = append(e.dev.passes, e.passes...)
	e.dev.copies = append(e.dev.copies, e.copies...)
	s := &fakeSubmission{done: !e.dev.holdWork}
	e.dev.subs = append(e.dev.subs, s)
	return s, nil
}
