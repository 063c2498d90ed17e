package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Ring and record sizes for the per-video uniform buffer.
const (
	// RingSlots is the number of uniform records per video. prepare and
	// render indices wrap modulo RingSlots.
	RingSlots = 256

	// videoUniformSize is the byte size of one video uniform record.
	videoUniformSize = 256
)

// transparent is the clear color of every Clear pass.
var transparent = gputypes.Color{R: 0, G: 0, B: 0, A: 0}

// Bounds is a rectangle in framebuffer pixels with float precision.
type Bounds struct {
	X, Y, Width, Height float32
}

// ClipRect is an integer rectangle in target pixels.
type ClipRect struct {
	X, Y, Width, Height uint32
}

// Empty reports whether the rectangle has no area.
func (r ClipRect) Empty() bool { return r.Width == 0 || r.Height == 0 }

// videoEntry is the GPU state of one video source.
type videoEntry struct {
	width  uint32
	height uint32

	yTex   hal.Texture
	uvTex  hal.Texture
	yView  hal.TextureView
	uvView hal.TextureView

	ring      hal.Buffer
	bindGroup hal.BindGroup

	prepareIndex uint32
	renderIndex  uint32
	lastWrite    uint64
	prepared     int
	rendered     int
	alive        bool
}

// VideoPipeline uploads YUV planes and draws them as RGB. Each video has a
// ring of RingSlots uniform records selected per draw by dynamic offset, so
// draw i reads the record written by prepare i.
type VideoPipeline struct {
	format      gputypes.TextureFormat
	alignedSize uint64

	layout     *BindGroupLayout
	shader     hal.ShaderModule
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline
	sampler    hal.Sampler

	entries map[uint64]*videoEntry
}

// NewVideoPipeline creates the video pipeline. The uniform record stride
// is rounded up to limits.MinUniformBufferOffsetAlignment.
func NewVideoPipeline(device hal.Device, format gputypes.TextureFormat, limits gputypes.Limits) (*VideoPipeline, error) {
	p := &VideoPipeline{
		format:      format,
		alignedSize: alignUp(videoUniformSize, uint64(limits.MinUniformBufferOffsetAlignment)),
		entries:     make(map[uint64]*videoEntry),
	}

	layout, err := NewBindGroupLayout(device, "video_layout", []gputypes.BindGroupLayoutEntry{
		textureLayoutEntry(0),
		textureLayoutEntry(1),
		samplerLayoutEntry(2),
		uniformLayoutEntry(3, videoUniformSize, true),
	})
	if err != nil {
		return nil, err
	}
	p.layout = layout

	if p.shader, err = createShaderModule(device, "video_shader", videoShaderSource); err != nil {
		p.Destroy(device)
		return nil, err
	}
	if p.sampler, err = createEffectSampler(device, "video_sampler"); err != nil {
		p.Destroy(device)
		return nil, err
	}
	p.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "video_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{layout.Raw()},
	})
	if err != nil {
		p.Destroy(device)
		return nil, fmt.Errorf("create video pipeline layout: %w", err)
	}
	if p.pipeline, err = createFullscreenPipeline(device, "video", p.shader, p.pipeLayout, format); err != nil {
		p.Destroy(device)
		return nil, err
	}
	return p, nil
}

// alignUp rounds n up to a multiple of align. A zero alignment leaves n
// unchanged.
func alignUp(n, align uint64) uint64 {
	if align == 0 {
		return n
	}
	return (n + align - 1) / align * align
}

// AlignedSize returns the stride of one uniform record in the ring.
func (p *VideoPipeline) AlignedSize() uint64 { return p.alignedSize }

// PayloadSize returns the NV12 payload length for a w x h frame.
func PayloadSize(w, h uint32) int {
	cw, ch := (w+1)/2, (h+1)/2
	return int(w)*int(h) + 2*int(cw)*int(ch)
}

// Upload writes an NV12 payload into the planes of video id, creating the
// entry on first use and recreating its textures when the size changes.
// alive is stored on the entry; a false value schedules it for cleanup.
func (p *VideoPipeline) Upload(device hal.Device, queue hal.Queue, id uint64, w, h uint32, payload []byte, alive bool) error {
	if w == 0 || h == 0 {
		return fmt.Errorf("%w: frame size %dx%d", ErrInvalidPayload, w, h)
	}
	if need := PayloadSize(w, h); len(payload) < need {
		return fmt.Errorf("%w: %d bytes for %dx%d, need %d", ErrInvalidPayload, len(payload), w, h, need)
	}

	e := p.entries[id]
	if e != nil && (e.width != w || e.height != h) {
		p.destroyEntry(device, e)
		delete(p.entries, id)
		e = nil
	}
	if e == nil {
		var err error
		if e, err = p.createEntry(device, id, w, h); err != nil {
			return err
		}
		p.entries[id] = e
	}
	e.alive = alive

	cw, ch := (w+1)/2, (h+1)/2
	ySize := int(w) * int(h)
	if err := queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: e.yTex, Aspect: gputypes.TextureAspectAll},
		payload[:ySize],
		&hal.ImageDataLayout{BytesPerRow: w, RowsPerImage: h},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	); err != nil {
		return fmt.Errorf("%w: write Y plane: %v", ErrGPU, err)
	}
	if err := queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: e.uvTex, Aspect: gputypes.TextureAspectAll},
		payload[ySize:ySize+2*int(cw)*int(ch)],
		&hal.ImageDataLayout{BytesPerRow: 2 * cw, RowsPerImage: ch},
		&hal.Extent3D{Width: cw, Height: ch, DepthOrArrayLayers: 1},
	); err != nil {
		return fmt.Errorf("%w: write UV plane: %v", ErrGPU, err)
	}
	return nil
}

// createEntry allocates the planes, the uniform ring and the bind group.
func (p *VideoPipeline) createEntry(device hal.Device, id uint64, w, h uint32) (*videoEntry, error) {
	e := &videoEntry{width: w, height: h}
	fail := func(err error) (*videoEntry, error) {
		p.destroyEntry(device, e)
		return nil, fmt.Errorf("%w: video %d: %v", ErrGPU, id, err)
	}

	var err error
	if e.yTex, e.yView, err = createPlane(device, fmt.Sprintf("video_%d_y", id),
		gputypes.TextureFormatR8Unorm, w, h); err != nil {
		return fail(err)
	}
	if e.uvTex, e.uvView, err = createPlane(device, fmt.Sprintf("video_%d_uv", id),
		gputypes.TextureFormatRG8Unorm, (w+1)/2, (h+1)/2); err != nil {
		return fail(err)
	}
	e.ring, err = device.CreateBuffer(&hal.BufferDescriptor{
		Label: fmt.Sprintf("video_%d_uniform_ring", id),
		Size:  RingSlots * p.alignedSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fail(err)
	}
	e.bindGroup, err = device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  fmt.Sprintf("video_%d_bind_group", id),
		Layout: p.layout.Raw(),
		Entries: []gputypes.BindGroupEntry{
			textureBinding(0, e.yView),
			textureBinding(1, e.uvView),
			{Binding: 2, Resource: gputypes.SamplerBinding{Sampler: p.sampler.NativeHandle()}},
			{Binding: 3, Resource: gputypes.BufferBinding{
				Buffer: e.ring.NativeHandle(),
				Offset: 0,
				Size:   videoUniformSize,
			}},
		},
	})
	if err != nil {
		return fail(err)
	}
	slogger().Debug("video entry created", "id", id, "width", w, "height", h,
		"ring_bytes", RingSlots*p.alignedSize)
	return e, nil
}

// createPlane creates a sampled, copy-destination plane texture.
func createPlane(device hal.Device, label string, format gputypes.TextureFormat, w, h uint32) (hal.Texture, hal.TextureView, error) {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", label, err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, nil, fmt.Errorf("create %s view: %w", label, err)
	}
	return tex, view, nil
}

// encodeVideoUniforms lays out one record to match the WGSL struct:
// rect at 0, color_space at 16, y_range at 24, uv_range at 32 and the
// matrix columns at 48, 64 and 80. Matrix rows are stored as columns.
func encodeVideoUniforms(bounds Bounds, cs ColorSpace, cfg ColorSpaceConfig) []byte {
	buf := make([]byte, videoUniformSize)
	putF := func(off int, v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
	}
	putF(0, bounds.X)
	putF(4, bounds.Y)
	putF(8, bounds.Width)
	putF(12, bounds.Height)
	binary.LittleEndian.PutUint32(buf[16:], uint32(cs))
	putF(24, cfg.YRange[0])
	putF(28, cfg.YRange[1])
	putF(32, cfg.UVRange[0])
	putF(36, cfg.UVRange[1])
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			putF(48+col*16+row*4, cfg.Matrix[col][row])
		}
	}
	return buf
}

// Prepare writes the uniform record for the next draw of video id into
// ring slot prepareIndex and advances the index modulo RingSlots.
func (p *VideoPipeline) Prepare(queue hal.Queue, id uint64, bounds Bounds, cs ColorSpace) error {
	e := p.entries[id]
	if e == nil {
		return fmt.Errorf("%w: %d", ErrUnknownVideo, id)
	}
	data := encodeVideoUniforms(bounds, cs, colorSpaceConfig(cs))
	offset := uint64(e.prepareIndex) * p.alignedSize
	if err := queue.WriteBuffer(e.ring, offset, data); err != nil {
		return fmt.Errorf("%w: write video uniforms: %v", ErrGPU, err)
	}
	e.lastWrite = offset
	e.prepareIndex = (e.prepareIndex + 1) % RingSlots
	e.prepared++
	return nil
}

// Draw records one pass drawing video id into target. A Clear pass
// targets the video's own source space, so viewport and scissor cover the
// full plane extent; a Load pass draws into the host target restricted to
// clip. The dynamic offset selects ring slot renderIndex.
func (p *VideoPipeline) Draw(encoder hal.CommandEncoder, target hal.TextureView, clip ClipRect, id uint64, load gputypes.LoadOp) error {
	e := p.entries[id]
	if e == nil {
		return fmt.Errorf("%w: %d", ErrUnknownVideo, id)
	}
	if e.rendered >= e.prepared {
		slogger().Debug("video draw without a matching prepare", "id", id,
			"render_index", e.renderIndex, "prepare_index", e.prepareIndex)
	}

	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "video_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: transparent,
		}},
	})
	area := clip
	if load == gputypes.LoadOpClear {
		area = ClipRect{Width: e.width, Height: e.height}
	}
	setArea(rp, area)
	rp.SetPipeline(p.pipeline)
	rp.SetBindGroup(0, e.bindGroup, []uint32{uint32(uint64(e.renderIndex) * p.alignedSize)})
	rp.Draw(6, 1, 0, 0)
	rp.End()

	e.renderIndex = (e.renderIndex + 1) % RingSlots
	e.rendered++
	return nil
}

// setArea sets viewport and scissor to the same rectangle.
func setArea(rp hal.RenderPassEncoder, r ClipRect) {
	rp.SetViewport(float32(r.X), float32(r.Y), float32(r.Width), float32(r.Height), 0, 1)
	rp.SetScissorRect(r.X, r.Y, r.Width, r.Height)
}

// BeginFrame resets the ring indices of every video for a new redraw.
func (p *VideoPipeline) BeginFrame() {
	for _, e := range p.entries {
		e.prepareIndex = 0
		e.renderIndex = 0
		e.prepared = 0
		e.rendered = 0
	}
}

// Has reports whether video id has GPU state.
func (p *VideoPipeline) Has(id uint64) bool { return p.entries[id] != nil }

// Len returns the number of live video entries.
func (p *VideoPipeline) Len() int { return len(p.entries) }

// SourceSize returns the plane dimensions of video id.
func (p *VideoPipeline) SourceSize(id uint64) (w, h uint32, ok bool) {
	e := p.entries[id]
	if e == nil {
		return 0, 0, false
	}
	return e.width, e.height, true
}

// Planes returns the Y and UV views of video id.
func (p *VideoPipeline) Planes(id uint64) (y, uv hal.TextureView) {
	e := p.entries[id]
	if e == nil {
		return nil, nil
	}
	return e.yView, e.uvView
}

// Indices returns the prepare and render ring indices of video id.
func (p *VideoPipeline) Indices(id uint64) (prepare, render uint32) {
	e := p.entries[id]
	if e == nil {
		return 0, 0
	}
	return e.prepareIndex, e.renderIndex
}

// LastWriteOffset returns the ring offset of the last Prepare for id.
func (p *VideoPipeline) LastWriteOffset(id uint64) (uint64, bool) {
	e := p.entries[id]
	if e == nil {
		return 0, false
	}
	return e.lastWrite, true
}

// SetAlive marks video id live or dead. Dead entries are released by the
// next Cleanup.
func (p *VideoPipeline) SetAlive(id uint64, alive bool) {
	if e := p.entries[id]; e != nil {
		e.alive = alive
	}
}

// Cleanup releases every entry whose alive flag is false and returns the
// number released.
func (p *VideoPipeline) Cleanup(device hal.Device) int {
	n := 0
	for id, e := range p.entries {
		if e.alive {
			continue
		}
		p.destroyEntry(device, e)
		delete(p.entries, id)
		slogger().Debug("video entry released", "id", id)
		n++
	}
	return n
}

func (p *VideoPipeline) destroyEntry(device hal.Device, e *videoEntry) {
	if e.bindGroup != nil {
		device.DestroyBindGroup(e.bindGroup)
		e.bindGroup = nil
	}
	if e.ring != nil {
		device.DestroyBuffer(e.ring)
		e.ring = nil
	}
	if e.uvView != nil {
		device.DestroyTextureView(e.uvView)
		e.uvView = nil
	}
	if e.uvTex != nil {
		device.DestroyTexture(e.uvTex)
		e.uvTex = nil
	}
	if e.yView != nil {
		device.DestroyTextureView(e.yView)
		e.yView = nil
	}
	if e.yTex != nil {
		device.DestroyTexture(e.yTex)
		e.yTex = nil
	}
}

// Destroy releases every video entry and the pipeline.
func (p *VideoPipeline) Destroy(device hal.Device) {
	for id, e := range p.entries {
		p.destroyEntry(device, e)
		delete(p.entries, id)
	}
	if p.pipeline != nil {
		device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.sampler != nil {
		device.DestroySampler(p.sampler)
		p.sampler = nil
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
