// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package native

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/ambient/uniforms"
)

//go:embed shaders/composite.wgsl
var compositeShaderSource string

//go:embed shaders/blit.wgsl
var blitShaderSource string

// ErrShaderCompile is returned when a built-in shader fails validation.
var ErrShaderCompile = errors.New("native: shader compilation failed")

// Bindings of the composite bind group.
const (
	bindUniforms = iota
	bindCurrent
	bindPrevious
	bindFeedback
	bindAux
	bindSampler
)

// validateShaders compiles every built-in shader with naga so a broken
// shader fails at device creation rather than on the first frame.
func validateShaders() error {
	for _, s := range []struct{ name, src string }{
		{"composite", compositeShaderSource},
		{"blit", blitShaderSource},
	} {
		if _, err := naga.Compile(s.src); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrShaderCompile, s.name, err)
		}
	}
	return nil
}

// pipelines owns the render pipelines and their layouts.
type pipelines struct {
	device hal.Device

	compositeShader hal.ShaderModule
	compositeLayout hal.BindGroupLayout
	compositePipe   hal.PipelineLayout
	composite       hal.RenderPipeline

	blitShader hal.ShaderModule
	blitLayout hal.BindGroupLayout
	blitPipe   hal.PipelineLayout
	blit       map[gputypes.TextureFormat]hal.RenderPipeline

	sampler hal.Sampler
}

func newPipelines(device hal.Device) (*pipelines, error) {
	p := &pipelines{
		device: device,
		blit:   make(map[gputypes.TextureFormat]hal.RenderPipeline),
	}
	if err := p.init(); err != nil {
		p.destroy()
		return nil, err
	}
	return p, nil
}

func (p *pipelines) init() error {
	var err error
	p.sampler, err = p.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "ambient_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}

	p.compositeShader, err = p.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "composite_shader",
		Source: hal.ShaderSource{WGSL: compositeShaderSource},
	})
	if err != nil {
		return fmt.Errorf("create composite shader: %w", err)
	}

	// Binding 0: frame uniforms; 1-4: current, previous, feedback, aux;
	// 5: sampler.
	entries := []gputypes.BindGroupLayoutEntry{{
		Binding:    bindUniforms,
		Visibility: gputypes.ShaderStageFragment,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}}
	for b := bindCurrent; b <= bindAux; b++ {
		entries = append(entries, textureEntry(uint32(b)))
	}
	entries = append(entries, samplerEntry(bindSampler))

	p.compositeLayout, err = p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "composite_bind_layout",
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create composite bind group layout: %w", err)
	}
	p.compositePipe, err = p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "composite_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.compositeLayout},
	})
	if err != nil {
		return fmt.Errorf("create composite pipeline layout: %w", err)
	}
	p.composite, err = p.createPipeline("composite_pipeline", p.compositeShader, p.compositePipe,
		gputypes.TextureFormatRGBA8Unorm)
	if err != nil {
		return err
	}

	p.blitShader, err = p.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "blit_shader",
		Source: hal.ShaderSource{WGSL: blitShaderSource},
	})
	if err != nil {
		return fmt.Errorf("create blit shader: %w", err)
	}
	p.blitLayout, err = p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "blit_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{textureEntry(0), samplerEntry(1)},
	})
	if err != nil {
		return fmt.Errorf("create blit bind group layout: %w", err)
	}
	p.blitPipe, err = p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "blit_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.blitLayout},
	})
	if err != nil {
		return fmt.Errorf("create blit pipeline layout: %w", err)
	}
	_, err = p.blitFor(gputypes.TextureFormatRGBA8Unorm)
	return err
}

// blitFor returns the blit pipeline writing to format, creating it on
// first use.
func (p *pipelines) blitFor(format gputypes.TextureFormat) (hal.RenderPipeline, error) {
	if pipe, ok := p.blit[format]; ok {
		return pipe, nil
	}
	pipe, err := p.createPipeline("blit_pipeline", p.blitShader, p.blitPipe, format)
	if err != nil {
		return nil, err
	}
	p.blit[format] = pipe
	return pipe, nil
}

func (p *pipelines) createPipeline(label string, shader hal.ShaderModule, layout hal.PipelineLayout, format gputypes.TextureFormat) (hal.RenderPipeline, error) {
	pipe, err := p.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    format,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	return pipe, nil
}

// compositeBindGroup binds one pass's uniforms and textures.
func (p *pipelines) compositeBindGroup(ub hal.Buffer, cur, prev, fb, aux hal.TextureView) (hal.BindGroup, error) {
	return p.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "composite_bind_group",
		Layout: p.compositeLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: bindUniforms, Resource: gputypes.BufferBinding{
				Buffer: ub.NativeHandle(), Offset: 0, Size: uniforms.BlockSize,
			}},
			{Binding: bindCurrent, Resource: gputypes.TextureViewBinding{TextureView: cur.NativeHandle()}},
			{Binding: bindPrevious, Resource: gputypes.TextureViewBinding{TextureView: prev.NativeHandle()}},
			{Binding: bindFeedback, Resource: gputypes.TextureViewBinding{TextureView: fb.NativeHandle()}},
			{Binding: bindAux, Resource: gputypes.TextureViewBinding{TextureView: aux.NativeHandle()}},
			{Binding: bindSampler, Resource: gputypes.SamplerBinding{Sampler: p.sampler.NativeHandle()}},
		},
	})
}

func (p *pipelines) blitBindGroup(src hal.TextureView) (hal.BindGroup, error) {
	return p.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "blit_bind_group",
		Layout: p.blitLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: src.NativeHandle()}},
			{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: p.sampler.NativeHandle()}},
		},
	})
}

func (p *pipelines) destroy() {
	for f, pipe := range p.blit {
		p.device.DestroyRenderPipeline(pipe)
		delete(p.blit, f)
	}
	if p.composite != nil {
		p.device.DestroyRenderPipeline(p.composite)
		p.composite = nil
	}
	if p.blitPipe != nil {
		p.device.DestroyPipelineLayout(p.blitPipe)
		p.blitPipe = nil
	}
	if p.compositePipe != nil {
		p.device.DestroyPipelineLayout(p.compositePipe)
		p.compositePipe = nil
	}
	if p.blitLayout != nil {
		p.device.DestroyBindGroupLayout(p.blitLayout)
		p.blitLayout = nil
	}
	if p.compositeLayout != nil {
		p.device.DestroyBindGroupLayout(p.compositeLayout)
		p.compositeLayout = nil
	}
	if p.blitShader != nil {
		p.device.DestroyShaderModule(p.blitShader)
		p.blitShader = nil
	}
	if p.compositeShader != nil {
		p.device.DestroyShaderModule(p.compositeShader)
		p.compositeShader = nil
	}
	if p.sampler != nil {
		p.device.DestroySampler(p.sampler)
		p.sampler = nil
	}
}

func textureEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageFragment,
		Texture: &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		},
	}
}

func samplerEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageFragment,
		Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
	}
}
