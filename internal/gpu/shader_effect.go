package gpu

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// nextLayoutID hands out process-unique bind group layout ids. HAL handles
// carry no stable identity of their own (noop resources are zero-sized),
// so layouts are tagged at creation.
var nextLayoutID atomic.Uint64

// BindGroupLayout is a HAL bind group layout tagged with an opaque id.
// A pipeline and every bind group rebuilt for it must reference the same
// id for the pipeline's lifetime.
type BindGroupLayout struct {
	id      uint64
	raw     hal.BindGroupLayout
	entries []gputypes.BindGroupLayoutEntry
}

// NewBindGroupLayout creates a tagged bind group layout.
func NewBindGroupLayout(device hal.Device, label string, entries []gputypes.BindGroupLayoutEntry) (*BindGroupLayout, error) {
	raw, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group layout %q: %w", label, err)
	}
	return &BindGroupLayout{
		id:      nextLayoutID.Add(1),
		raw:     raw,
		entries: entries,
	}, nil
}

// ID returns the layout's opaque identity.
func (l *BindGroupLayout) ID() uint64 { return l.id }

// Raw returns the HAL layout.
func (l *BindGroupLayout) Raw() hal.BindGroupLayout { return l.raw }

// Entries returns the layout entries the layout was built from.
func (l *BindGroupLayout) Entries() []gputypes.BindGroupLayoutEntry { return l.entries }

// Destroy releases the HAL layout.
func (l *BindGroupLayout) Destroy(device hal.Device) {
	if l.raw != nil {
		device.DestroyBindGroupLayout(l.raw)
		l.raw = nil
	}
}

// ShaderEffectDescriptor describes a full-screen effect pipeline.
type ShaderEffectDescriptor struct {
	// Name identifies the effect in the chain and in GPU debug labels.
	Name string

	// Source is the WGSL source with vs_main and fs_main entry points.
	Source string

	// Layout is the bind group 0 layout. It is owned by the effect afterwards.
	Layout *BindGroupLayout

	// Uniforms is the effect's uniform store. It is owned by the effect.
	Uniforms *UniformStore

	// Format is the color target format.
	Format gputypes.TextureFormat
}

// ShaderEffect bundles a full-screen render pipeline with its bind group
// layout, sampler, uniform store, and the bind group built for the
// current frame.
//
// The layout is created once, before the pipeline; per-frame texture
// changes only rebuild the bind group against that same layout.
type ShaderEffect struct {
	name     string
	format   gputypes.TextureFormat
	shader   hal.ShaderModule
	layout   *BindGroupLayout
	builtID  uint64
	pipe     hal.PipelineLayout
	pipeline hal.RenderPipeline
	sampler  hal.Sampler
	uniforms *UniformStore

	bindGroup hal.BindGroup
}

// NewShaderEffect builds the effect's pipeline against desc.Layout.
// On error every resource created so far, including the layout and the
// uniform store, is released.
func NewShaderEffect(device hal.Device, desc ShaderEffectDescriptor) (*ShaderEffect, error) { //nolint:dupl // GPU pipeline descriptors share structure but differ in labels, shaders, and layouts
	if desc.Layout == nil {
		return nil, fmt.Errorf("effect %q: nil bind group layout", desc.Name)
	}
	e := &ShaderEffect{
		name:     desc.Name,
		format:   desc.Format,
		uniforms: desc.Uniforms,
		builtID:  desc.Layout.ID(),
	}

	shader, err := createShaderModule(device, desc.Name+"_shader", desc.Source)
	if err != nil {
		desc.Layout.Destroy(device)
		e.Destroy(device)
		return nil, err
	}
	e.shader = shader

	sampler, err := createEffectSampler(device, desc.Name+"_sampler")
	if err != nil {
		desc.Layout.Destroy(device)
		e.Destroy(device)
		return nil, err
	}
	e.sampler = sampler

	pipe, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Name + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{desc.Layout.Raw()},
	})
	if err != nil {
		desc.Layout.Destroy(device)
		e.Destroy(device)
		return nil, fmt.Errorf("create %s pipeline layout: %w", desc.Name, err)
	}
	e.pipe = pipe

	pipeline, err := createFullscreenPipeline(device, desc.Name, shader, pipe, desc.Format)
	if err != nil {
		desc.Layout.Destroy(device)
		e.Destroy(device)
		return nil, err
	}
	e.pipeline = pipeline
	e.layout = desc.Layout

	if !e.LayoutStable() {
		slogger().Warn("bind group layout changed while building effect",
			"effect", e.name, "built_with", e.builtID, "stored", e.layout.ID())
	}
	return e, nil
}

// createEffectSampler creates the shared effect sampler: clamp to edge,
// linear magnification and minification, nearest mip selection.
func createEffectSampler(device hal.Device, label string) (hal.Sampler, error) {
	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        label,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeNearest,
		LodMinClamp:  0,
		LodMaxClamp:  1,
		Anisotropy:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("create sampler %q: %w", label, err)
	}
	return sampler, nil
}

// createFullscreenPipeline creates a pipeline with no vertex buffers whose
// vertex stage synthesizes two triangles from vertex_index. Output is
// blended with premultiplied alpha; depth and stencil are off.
func createFullscreenPipeline(
	device hal.Device, label string, shader hal.ShaderModule,
	layout hal.PipelineLayout, format gputypes.TextureFormat,
) (hal.RenderPipeline, error) {
	premulBlend := gputypes.BlendStatePremultiplied()
	pipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label + "_pipeline",
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    format,
					Blend:     &premulBlend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
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
		return nil, fmt.Errorf("create %s render pipeline: %w", label, err)
	}
	return pipeline, nil
}

// Name returns the effect name.
func (e *ShaderEffect) Name() string { return e.name }

// Format returns the color target format.
func (e *ShaderEffect) Format() gputypes.TextureFormat { return e.format }

// Layout returns the layout the pipeline was built against.
func (e *ShaderEffect) Layout() *BindGroupLayout { return e.layout }

// BuiltLayoutID returns the layout id handed to the builder.
func (e *ShaderEffect) BuiltLayoutID() uint64 { return e.builtID }

// LayoutStable reports whether the stored layout is the one the pipeline
// was built against.
func (e *ShaderEffect) LayoutStable() bool {
	return e.layout != nil && e.layout.ID() == e.builtID
}

// Sampler returns the effect sampler.
func (e *ShaderEffect) Sampler() hal.Sampler { return e.sampler }

// Uniforms returns the effect's uniform store.
func (e *ShaderEffect) Uniforms() *UniformStore { return e.uniforms }

// BindGroup returns the most recently built bind group, or nil.
func (e *ShaderEffect) BindGroup() hal.BindGroup { return e.bindGroup }

// CreateBindGroup builds a bind group against the effect's stored layout
// and records it as the current one. The caller owns the returned bind
// group; one effect serves several videos, each with its own group.
func (e *ShaderEffect) CreateBindGroup(device hal.Device, entries []gputypes.BindGroupEntry) (hal.BindGroup, error) {
	if e.layout == nil {
		return nil, fmt.Errorf("effect %q has no layout", e.name)
	}
	if !e.LayoutStable() {
		slogger().Warn("rebuilding bind group against a changed layout",
			"effect", e.name, "built_with", e.builtID, "stored", e.layout.ID())
	}
	bg, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   e.name + "_bind_group",
		Layout:  e.layout.Raw(),
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s bind group: %w", e.name, err)
	}
	e.bindGroup = bg
	return bg, nil
}

// uniformBinding returns a bind group entry for the effect's uniform
// buffer at the given binding index.
func (e *ShaderEffect) uniformBinding(binding uint32) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding: binding,
		Resource: gputypes.BufferBinding{
			Buffer: e.uniforms.Buffer().NativeHandle(),
			Offset: 0,
			Size:   e.uniforms.BufferSize(),
		},
	}
}

// samplerBinding returns a bind group entry for the effect sampler.
func (e *ShaderEffect) samplerBinding(binding uint32) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.SamplerBinding{Sampler: e.sampler.NativeHandle()},
	}
}

// textureBinding returns a bind group entry for a texture view.
func textureBinding(binding uint32, view hal.TextureView) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()},
	}
}

// Record binds the pipeline and bg at slot 0 and draws the quad.
func (e *ShaderEffect) Record(rp hal.RenderPassEncoder, bg hal.BindGroup) {
	rp.SetPipeline(e.pipeline)
	rp.SetBindGroup(0, bg, nil)
	rp.Draw(6, 1, 0, 0)
}

// Destroy releases all effect resources in reverse creation order. Bind
// groups belong to their callers and are not destroyed here.
func (e *ShaderEffect) Destroy(device hal.Device) {
	e.bindGroup = nil
	if e.pipeline != nil {
		device.DestroyRenderPipeline(e.pipeline)
		e.pipeline = nil
	}
	if e.pipe != nil {
		device.DestroyPipelineLayout(e.pipe)
		e.pipe = nil
	}
	if e.sampler != nil {
		device.DestroySampler(e.sampler)
		e.sampler = nil
	}
	if e.shader != nil {
		device.DestroyShaderModule(e.shader)
		e.shader = nil
	}
	if e.layout != nil {
		e.layout.Destroy(device)
		e.layout = nil
	}
	if e.uniforms != nil {
		e.uniforms.Destroy(device)
	}
}

// textureLayoutEntry returns a fragment-visible 2D float texture entry.
func textureLayoutEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageFragment,
		Texture: &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		},
	}
}

// samplerLayoutEntry returns a fragment-visible filtering sampler entry.
func samplerLayoutEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageFragment,
		Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
	}
}

// uniformLayoutEntry returns a uniform buffer entry with the given minimum
// binding size.
func uniformLayoutEntry(binding uint32, minSize uint64, dynamic bool) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
		Buffer: &gputypes.BufferBindingLayout{
			Type:             gputypes.BufferBindingTypeUniform,
			HasDynamicOffset: dynamic,
			MinBindingSize:   minSize,
		},
	}
}
