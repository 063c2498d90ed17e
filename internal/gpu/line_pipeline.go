package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// lineUniformSize is the byte size of the LineUniforms record.
const lineUniformSize = 64

// DefaultLineWidth is the divider width in pixels.
const DefaultLineWidth = 2.0

// LineUniforms positions the comparison divider.
type LineUniforms struct {
	// Position is the divider x in -1..1 across Bounds.
	Position float32
	// Bounds is x, y, width, height in framebuffer pixels.
	Bounds [4]float32
	// LineWidth is the divider width in pixels.
	LineWidth float32
}

// Bytes encodes the record: position and 3 pad floats, bounds, line width
// and 7 pad floats.
func (u LineUniforms) Bytes() []byte {
	buf := make([]byte, lineUniformSize)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(u.Position))
	for i, v := range u.Bounds {
		binary.LittleEndian.PutUint32(buf[16+i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[32:], math.Float32bits(u.LineWidth))
	return buf
}

// LinePipeline draws the split-screen divider over the target.
type LinePipeline struct {
	layout     *BindGroupLayout
	shader     hal.ShaderModule
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline
	buffer     hal.Buffer
	bindGroup  hal.BindGroup

	uniforms LineUniforms
	prepared bool
}

// NewLinePipeline creates the divider pipeline for the target format.
func NewLinePipeline(device hal.Device, format gputypes.TextureFormat) (*LinePipeline, error) {
	p := &LinePipeline{uniforms: LineUniforms{LineWidth: DefaultLineWidth}}

	layout, err := NewBindGroupLayout(device, "line_layout", []gputypes.BindGroupLayoutEntry{
		uniformLayoutEntry(0, lineUniformSize, false),
	})
	if err != nil {
		return nil, err
	}
	p.layout = layout

	if p.shader, err = createShaderModule(device, "line_shader", lineShaderSource); err != nil {
		p.Destroy(device)
		return nil, err
	}
	p.buffer, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: "line_uniforms",
		Size:  lineUniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		p.Destroy(device)
		return nil, fmt.Errorf("create line uniform buffer: %w", err)
	}
	p.bindGroup, err = device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "line_bind_group",
		Layout: layout.Raw(),
		Entries: []gputypes.BindGroupEntry{{
			Binding: 0,
			Resource: gputypes.BufferBinding{
				Buffer: p.buffer.NativeHandle(),
				Offset: 0,
				Size:   lineUniformSize,
			},
		}},
	})
	if err != nil {
		p.Destroy(device)
		return nil, fmt.Errorf("create line bind group: %w", err)
	}
	p.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "line_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{layout.Raw()},
	})
	if err != nil {
		p.Destroy(device)
		return nil, fmt.Errorf("create line pipeline layout: %w", err)
	}
	if p.pipeline, err = createFullscreenPipeline(device, "line", p.shader, p.pipeLayout, format); err != nil {
		p.Destroy(device)
		return nil, err
	}
	return p, nil
}

// Prepare places the divider at position (0..1 across bounds) and uploads
// the record.
func (p *LinePipeline) Prepare(queue hal.Queue, position float32, bounds Bounds) error {
	p.uniforms.Position = clamp01(position)*2 - 1
	p.uniforms.Bounds = [4]float32{bounds.X, bounds.Y, bounds.Width, bounds.Height}
	if err := queue.WriteBuffer(p.buffer, 0, p.uniforms.Bytes()); err != nil {
		return fmt.Errorf("%w: write line uniforms: %v", ErrGPU, err)
	}
	p.prepared = true
	return nil
}

// Prepared reports whether Prepare ran since the last Reset.
func (p *LinePipeline) Prepared() bool { return p.prepared }

// Reset marks the divider as not prepared for this frame.
func (p *LinePipeline) Reset() { p.prepared = false }

// Uniforms returns the last prepared record.
func (p *LinePipeline) Uniforms() LineUniforms { return p.uniforms }

// Draw records a Load pass that paints the divider over target inside clip.
func (p *LinePipeline) Draw(encoder hal.CommandEncoder, target hal.TextureView, clip ClipRect) {
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "line_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    target,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		}},
	})
	setArea(rp, clip)
	rp.SetPipeline(p.pipeline)
	rp.SetBindGroup(0, p.bindGroup, nil)
	rp.Draw(6, 1, 0, 0)
	rp.End()
}

// Destroy releases the pipeline and its buffer.
func (p *LinePipeline) Destroy(device hal.Device) {
	if p.pipeline != nil {
		device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindGroup != nil {
		device.DestroyBindGroup(p.bindGroup)
		p.bindGroup = nil
	}
	if p.buffer != nil {
		device.DestroyBuffer(p.buffer)
		p.buffer = nil
	}
	if p.shader != nil {
		device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
	if p.layout != nil {
		p.layout.Destroy(device)
		p.layout = nil
	}
}
