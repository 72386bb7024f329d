// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package native

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/ambient/compositor"
	"github.com/gogpu/ambient/uniforms"
)

// transient holds per-frame GPU objects freed with the submission.
type transient struct {
	buffers    []hal.Buffer
	bindGroups []hal.BindGroup
}

func (r *transient) destroy(device hal.Device) {
	for _, bg := range r.bindGroups {
		device.DestroyBindGroup(bg)
	}
	for _, b := range r.buffers {
		device.DestroyBuffer(b)
	}
	r.bindGroups, r.buffers = nil, nil
}

// encoder records one frame. The first recording error is kept and
// returned by Submit.
type encoder struct {
	dev   *Device
	enc   hal.CommandEncoder
	res   transient
	block []byte
	err   error
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// Composite records the composite pass into pass.Target.
func (e *encoder) Composite(pass *compositor.CompositePass) {
	if e.err != nil {
		return
	}
	d := e.dev
	target, err := d.own(pass.Target)
	if err != nil {
		e.fail(err)
		return
	}
	cur, err := d.viewOr(pass.Current)
	if err != nil {
		e.fail(err)
		return
	}
	prev := cur
	if pass.Previous != nil {
		if prev, err = d.viewOr(pass.Previous); err != nil {
			e.fail(err)
			return
		}
	}
	fb, err := d.viewOr(pass.Feedback)
	if err != nil {
		e.fail(err)
		return
	}
	aux, err := d.viewOr(pass.Aux)
	if err != nil {
		e.fail(err)
		return
	}

	e.block = pass.Uniforms.Encode(e.block)
	ub, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "composite_uniforms",
		Size:  uniforms.BlockSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		e.fail(fmt.Errorf("create uniform buffer: %w", err))
		return
	}
	e.res.buffers = append(e.res.buffers, ub)
	d.queue.WriteBuffer(ub, 0, e.block)

	bg, err := d.pipes.compositeBindGroup(ub, cur, prev, fb, aux)
	if err != nil {
		e.fail(fmt.Errorf("create composite bind group: %w", err))
		return
	}
	e.res.bindGroups = append(e.res.bindGroups, bg)

	rp := e.enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "composite_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	rp.SetPipeline(d.pipes.composite)
	rp.SetBindGroup(0, bg, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()
}

// Copy records a blit of src into dst.
func (e *encoder) Copy(src, dst compositor.Texture) {
	if e.err != nil {
		return
	}
	s, err := e.dev.own(src)
	if err != nil {
		e.fail(err)
		return
	}
	t, err := e.dev.own(dst)
	if err != nil {
		e.fail(err)
		return
	}
	e.blit(s.view, t.view, halFormat(t.format))
}

func (e *encoder) blit(src, dst hal.TextureView, format gputypes.TextureFormat) {
	if e.err != nil {
		return
	}
	pipe, err := e.dev.pipes.blitFor(format)
	if err != nil {
		e.fail(err)
		return
	}
	bg, err := e.dev.pipes.blitBindGroup(src)
	if err != nil {
		e.fail(fmt.Errorf("create blit bind group: %w", err))
		return
	}
	e.res.bindGroups = append(e.res.bindGroups, bg)

	rp := e.enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "blit_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       dst,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	rp.SetPipeline(pipe)
	rp.SetBindGroup(0, bg, nil)
	rp.Draw(3, 1, 0, 0)
	rp.End()
}

// Submit ends encoding and submits the frame with its own fence.
func (e *encoder) Submit() (compositor.Submission, error) {
	d := e.dev
	if e.err != nil {
		e.enc.DiscardEncoding()
		e.res.destroy(d.device)
		return nil, e.err
	}
	cmd, err := e.enc.EndEncoding()
	if err != nil {
		e.res.destroy(d.device)
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	fence, err := d.device.CreateFence()
	if err != nil {
		d.device.FreeCommandBuffer(cmd)
		e.res.destroy(d.device)
		return nil, fmt.Errorf("create fence: %w", err)
	}
	if err := d.queue.Submit([]hal.CommandBuffer{cmd}, fence, 1); err != nil {
		d.device.DestroyFence(fence)
		d.device.FreeCommandBuffer(cmd)
		e.res.destroy(d.device)
		return nil, fmt.Errorf("submit: %w", err)
	}
	return &submission{device: d.device, cmd: cmd, fence: fence, res: e.res}, nil
}

// submission is one fenced queue submission.
type submission struct {
	device hal.Device
	cmd    hal.CommandBuffer
	fence  hal.Fence
	res    transient
	done   bool
}

// Wait waits on the submission's fence.
func (s *submission) Wait(timeout time.Duration) (bool, error) {
	if s.done {
		return true, nil
	}
	ok, err := s.device.Wait(s.fence, 1, timeout)
	if err != nil {
		return false, err
	}
	s.done = ok
	return ok, nil
}

// Release frees the command buffer, fence and per-frame objects.
func (s *submission) Release() {
	if s.fence == nil {
		return
	}
	s.res.destroy(s.device)
	s.device.FreeCommandBuffer(s.cmd)
	s.device.DestroyFence(s.fence)
	s.cmd, s.fence = nil, nil
}
