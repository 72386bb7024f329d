// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compositor

import "fmt"

// targets holds the render output and the feedback pair. Each tick the
// composite pass samples pair[read] and renders into output; output is then
// copied into pair[1-read] and the roles swap, giving a one-frame-delayed
// trail.
type targets struct {
	output Texture
	pair   [2]Texture
	read   int
	width  int
	height int
}

// matches reports whether the targets exist at the given size.
func (t *targets) matches(w, h int) bool {
	return t.output != nil && t.width == w && t.height == h
}

// ensure (re)creates all three textures when the size differs. The caller
// guarantees no in-flight work references the old ones.
func (t *targets) ensure(dev Device, w, h int) error {
	if t.matches(w, h) {
		return nil
	}
	t.destroy()

	out, err := dev.NewTexture(TextureDesc{
		Label:  "frame_output",
		Width:  w,
		Height: h,
		Format: FormatRGBA8,
		Usage:  UsageRenderTarget | UsageSampled | UsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create output texture: %w", err)
	}
	t.output = out

	for i := range t.pair {
		tex, err := dev.NewTexture(TextureDesc{
			Label:  fmt.Sprintf("feedback_%c", 'a'+i),
			Width:  w,
			Height: h,
			Format: FormatRGBA8,
			Usage:  UsageRenderTarget | UsageSampled | UsageCopyDst,
		})
		if err != nil {
			t.destroy()
			return fmt.Errorf("create feedback texture: %w", err)
		}
		t.pair[i] = tex
	}

	t.read = 0
	t.width, t.height = w, h
	return nil
}

func (t *targets) readTexture() Texture  { return t.pair[t.read] }
func (t *targets) writeTexture() Texture { return t.pair[1-t.read] }

func (t *targets) swap() { t.read = 1 - t.read }

func (t *targets) destroy() {
	if t.output != nil {
		t.output.Destroy()
		t.output = nil
	}
	for i, tex := range t.pair {
		if tex != nil {
			tex.Destroy()
			t.pair[i] = nil
		}
	}
	t.read = 0
	t.width, t.height = 0, 0
}
