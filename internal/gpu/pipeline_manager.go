package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// PipelineManager composes the video pass, the effect chain and the
// divider overlay, and owns their draw order.
//
// With N effects the video is drawn into intermediate 0, effect i reads
// intermediate i and writes i+1, and the last effect writes the host
// target. Device and queue are passed in per call and never stored.
type PipelineManager struct {
	format   gputypes.TextureFormat
	video    *VideoPipeline
	line     *LinePipeline
	effects  *EffectManager
	textures *TextureManager

	// srcW and srcH are the source size intermediates are sized to.
	srcW, srcH uint32
}

// NewPipelineManager creates the video and line pipelines for format.
func NewPipelineManager(device hal.Device, format gputypes.TextureFormat, limits gputypes.Limits) (*PipelineManager, error) {
	video, err := NewVideoPipeline(device, format, limits)
	if err != nil {
		return nil, fmt.Errorf("%w: video pipeline: %v", ErrGPU, err)
	}
	line, err := NewLinePipeline(device, format)
	if err != nil {
		video.Destroy(device)
		return nil, fmt.Errorf("%w: line pipeline: %v", ErrGPU, err)
	}
	slogger().Debug("pipeline manager created", "format", format,
		"uniform_stride", video.AlignedSize())
	return &PipelineManager{
		format:   format,
		video:    video,
		line:     line,
		effects:  NewEffectManager(),
		textures: NewTextureManager(format),
	}, nil
}

// Format returns the target format shared by every pass.
func (m *PipelineManager) Format() gputypes.TextureFormat { return m.format }

// Video returns the video pipeline.
func (m *PipelineManager) Video() *VideoPipeline { return m.video }

// Line returns the divider pipeline.
func (m *PipelineManager) Line() *LinePipeline { return m.line }

// Effects returns the effect chain.
func (m *PipelineManager) Effects() *EffectManager { return m.effects }

// Textures returns the intermediate textures.
func (m *PipelineManager) Textures() *TextureManager { return m.textures }

// Upload forwards a frame payload to the video pipeline. The intermediates
// follow the size of the most recently uploaded source.
func (m *PipelineManager) Upload(device hal.Device, queue hal.Queue, id uint64, w, h uint32, payload []byte, alive bool) error {
	if err := m.video.Upload(device, queue, id, w, h, payload, alive); err != nil {
		return err
	}
	if w != m.srcW || h != m.srcH {
		return m.ResizeIntermediates(device, w, h)
	}
	return nil
}

// AddEffect appends e to the chain, resizes the intermediates to N+1
// targets and drops the per-frame bind groups.
func (m *PipelineManager) AddEffect(device hal.Device, queue hal.Queue, e Effect) error {
	if err := m.effects.Add(device, queue, m.format, e); err != nil {
		return err
	}
	return m.syncIntermediates(device)
}

// RemoveEffect removes the named effect and resizes the intermediates. It
// reports whether the effect was present.
func (m *PipelineManager) RemoveEffect(device hal.Device, name string) (bool, error) {
	if !m.effects.Remove(device, name) {
		return false, nil
	}
	return true, m.syncIntermediates(device)
}

// HasEffect reports whether the named effect is in the chain.
func (m *PipelineManager) HasEffect(name string) bool { return m.effects.Has(name) }

// Effect returns the configuration of the named effect.
func (m *PipelineManager) Effect(name string) (Effect, bool) { return m.effects.Effect(name) }

// UpdateComparison forwards the split-screen state to every effect.
func (m *PipelineManager) UpdateComparison(enabled bool, position float32) {
	m.effects.UpdateComparison(enabled, position)
}

// ResizeIntermediates sizes the chain's intermediates to w x h.
func (m *PipelineManager) ResizeIntermediates(device hal.Device, w, h uint32) error {
	if w == 0 || h == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidWindowSize, w, h)
	}
	m.srcW, m.srcH = w, h
	return m.syncIntermediates(device)
}

// syncIntermediates keeps exactly N+1 intermediates while a source size is
// known and the chain is non-empty, and none otherwise. Every video's bind
// groups reference the old intermediates and are dropped.
func (m *PipelineManager) syncIntermediates(device hal.Device) error {
	m.effects.ClearBindGroups(device)
	n := m.effects.Len()
	if n == 0 {
		m.textures.Destroy(device)
		return nil
	}
	if m.srcW == 0 || m.srcH == 0 {
		return nil
	}
	return m.textures.Resize(device, m.srcW, m.srcH, n+1)
}

// BeginFrame resets per-frame ring indices. Call it once per redraw,
// before the first Prepare.
func (m *PipelineManager) BeginFrame() {
	m.video.BeginFrame()
	m.line.Reset()
}

// Prepare writes the video uniforms, refreshes effect uniforms and bind
// groups, forwards comparison state to the divider and releases dead
// videos. Bind group failures are logged; the next Draw then falls back to
// a plain video pass.
func (m *PipelineManager) Prepare(device hal.Device, queue hal.Queue, id uint64, bounds Bounds, cs ColorSpace) error {
	if err := m.video.Prepare(queue, id, bounds, cs); err != nil {
		return err
	}
	defer m.Cleanup(device)

	if m.effects.Len() == 0 {
		return nil
	}
	if w, h, ok := m.video.SourceSize(id); ok && (w != m.srcW || h != m.srcH) {
		if err := m.ResizeIntermediates(device, w, h); err != nil {
			return err
		}
	}
	if err := m.effects.Prepare(queue); err != nil {
		return err
	}
	for i := 0; i < m.effects.Len(); i++ {
		u := m.effects.Shader(i).Uniforms()
		if enabled, ok := u.Uint(uniformComparisonEnabled); !ok || enabled != 1 {
			continue
		}
		pos, _ := u.Float(uniformComparisonPosition)
		if err := m.line.Prepare(queue, pos, bounds); err != nil {
			return err
		}
	}

	yView, uvView := m.video.Planes(id)
	err := m.effects.UpdateBindGroups(device, id, func(i int) FrameViews {
		views := FrameViews{Y: yView, UV: uvView, Input: m.textures.View(i)}
		if i > 0 {
			views.Original = m.textures.View(0)
		}
		return views
	})
	if err != nil {
		slogger().Warn("effect bind groups not rebuilt, drawing video only", "id", id, "err", err)
	}
	return nil
}

// Cleanup releases every video entry whose alive flag is false, together
// with its effect bind groups.
func (m *PipelineManager) Cleanup(device hal.Device) int {
	n := m.video.Cleanup(device)
	if n > 0 {
		m.effects.RetainBindGroups(device, m.video.Has)
	}
	return n
}

// Draw records the passes for video id into target, restricted to clip.
//
// With no effects, or when the chain is not ready (too few intermediates
// or a bind group per effect missing), a single Load pass draws the video
// straight to target. Otherwise the video pass clears into intermediate 0,
// each effect but the last clears into the next intermediate, and the last
// effect loads into target. If the last effect has comparison enabled the
// divider is drawn on top.
func (m *PipelineManager) Draw(encoder hal.CommandEncoder, target hal.TextureView, clip ClipRect, id uint64) error {
	if clip.Empty() {
		return fmt.Errorf("%w: clip %dx%d", ErrInvalidWindowSize, clip.Width, clip.Height)
	}
	n := m.effects.Len()
	if n == 0 {
		return m.video.Draw(encoder, target, clip, id, gputypes.LoadOpLoad)
	}
	groups := m.effects.BindGroups(id)
	if m.textures.Len() <= n || len(groups) != n {
		slogger().Debug("effect chain not ready, drawing video only",
			"id", id, "effects", n, "intermediates", m.textures.Len(), "bind_groups", len(groups))
		return m.video.Draw(encoder, target, clip, id, gputypes.LoadOpLoad)
	}

	if err := m.video.Draw(encoder, m.textures.View(0), clip, id, gputypes.LoadOpClear); err != nil {
		return err
	}
	for i := 0; i < n-1; i++ {
		m.applyEffect(encoder, i, groups[i], m.textures.View(i+1), gputypes.LoadOpClear, clip)
	}
	m.applyEffect(encoder, n-1, groups[n-1], target, gputypes.LoadOpLoad, clip)

	last := m.effects.Shader(n - 1).Uniforms()
	if enabled, ok := last.Uint(uniformComparisonEnabled); ok && enabled == 1 && m.line.Prepared() {
		m.line.Draw(encoder, target, clip)
	}
	return nil
}

// applyEffect records one effect pass. A Clear pass covers the whole
// intermediate; a Load pass is restricted to clip.
func (m *PipelineManager) applyEffect(
	encoder hal.CommandEncoder, i int, bg hal.BindGroup,
	target hal.TextureView, load gputypes.LoadOp, clip ClipRect,
) {
	shader := m.effects.Shader(i)
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: shader.Name() + "_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       target,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: transparent,
		}},
	})
	area := clip
	if load == gputypes.LoadOpClear {
		w, h := m.textures.Size()
		area = ClipRect{Width: w, Height: h}
	}
	setArea(rp, area)
	shader.Record(rp, bg)
	rp.End()
}

// Destroy releases everything the manager owns.
func (m *PipelineManager) Destroy(device hal.Device) {
	m.effects.Destroy(device)
	m.textures.Destroy(device)
	m.line.Destroy(device)
	m.video.Destroy(device)
}
