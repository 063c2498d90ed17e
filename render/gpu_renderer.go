// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidfx/internal/gpu"
)

// Errors returned by the renderer. ErrGPU and ErrInvalidWindowSize are the
// render pipeline's own sentinels, so errors.Is matches either name.
var (
	ErrGPU               = gpu.ErrGPU
	ErrInvalidWindowSize = gpu.ErrInvalidWindowSize
	ErrInvalidPayload    = gpu.ErrInvalidPayload
	ErrUnknownVideo      = gpu.ErrUnknownVideo

	// ErrUnknownEffect is returned when an effect name is not one of the
	// Effect constants.
	ErrUnknownEffect = errors.New("render: unknown effect")
)

// Bounds is the placement of a video in target pixels.
type Bounds = gpu.Bounds

// ClipRect is the visible region of the target in pixels.
type ClipRect = gpu.ClipRect

// ColorSpace selects the YUV to RGB constants of the video pass.
type ColorSpace = gpu.ColorSpace

// Color spaces. Only BT.709 has dedicated constants; the others fall back
// to it with a warning.
const (
	ColorSpaceBT709  = gpu.ColorSpaceBT709
	ColorSpaceBT601  = gpu.ColorSpaceBT601
	ColorSpaceBT2020 = gpu.ColorSpaceBT2020
)

// Effect names accepted by EnableEffect and DisableEffect.
const (
	EffectYUVToRGB    = gpu.EffectYUVToRGB
	EffectUpscale     = gpu.EffectUpscale
	EffectComparison  = gpu.EffectComparison
	DefaultFormat     = gputypes.TextureFormatBGRA8UnormSrgb
	DefaultLineWidth  = gpu.DefaultLineWidth
	DefaultThreshold  = gpu.DefaultColorThreshold
	DefaultBlendMode  = gpu.DefaultColorBlendMode
	defaultComparison = 0.5
)

// effectOrder is the position of each effect in the chain. Enabling an
// effect keeps this order regardless of call order, so the comparison
// always sees the fully processed image.
var effectOrder = []string{EffectYUVToRGB, EffectUpscale, EffectComparison}

// GPURenderer draws decoded NV12 frames through the effect chain.
//
// The renderer borrows the host's device and queue; it never creates or
// destroys them. It is not safe for concurrent use.
//
//	r, _ := render.NewGPURenderer(app.GPUContextProvider())
//	_ = r.EnableEffect(render.EffectUpscale)
//	_ = r.Upload(id, w, h, frame.Data, true)
//	r.BeginFrame()
//	_ = r.Prepare(id, bounds)
//	_ = r.Draw(encoder, view, clip, id)
type GPURenderer struct {
	device  hal.Device
	queue   hal.Queue
	manager *gpu.PipelineManager

	colorSpace ColorSpace

	threshold, blendMode float32
	compareOn            bool
	comparePos           float32
}

// NewGPURenderer creates a renderer on the device behind handle. The
// handle's surface format is used for every pass; an undefined format
// selects DefaultFormat. The uniform ring is laid out for DeviceLimits.
func NewGPURenderer(handle DeviceHandle) (*GPURenderer, error) {
	device, queue, err := HALObjects(handle)
	if err != nil {
		return nil, err
	}
	format := handle.SurfaceFormat()
	if format == gputypes.TextureFormatUndefined {
		format = DefaultFormat
	}
	return NewGPURendererHAL(device, queue, format, DeviceLimits(handle))
}

// NewGPURendererHAL creates a renderer from raw HAL objects. limits must be
// the limits the device was opened with; the uniform ring stride follows
// their MinUniformBufferOffsetAlignment.
func NewGPURendererHAL(device hal.Device, queue hal.Queue, format gputypes.TextureFormat, limits gputypes.Limits) (*GPURenderer, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("%w: nil device or queue", ErrGPU)
	}
	if limits.MinUniformBufferOffsetAlignment == 0 {
		limits.MinUniformBufferOffsetAlignment = gputypes.DefaultLimits().MinUniformBufferOffsetAlignment
	}
	m, err := gpu.NewPipelineManager(device, format, limits)
	if err != nil {
		return nil, err
	}
	return &GPURenderer{
		device:     device,
		queue:      queue,
		manager:    m,
		colorSpace: ColorSpaceBT709,
		threshold:  DefaultThreshold,
		blendMode:  DefaultBlendMode,
		comparePos: defaultComparison,
	}, nil
}

// Format returns the texture format every pass renders in.
func (r *GPURenderer) Format() gputypes.TextureFormat { return r.manager.Format() }

// SetColorSpace sets the color space used by subsequent Prepare calls.
func (r *GPURenderer) SetColorSpace(cs ColorSpace) { r.colorSpace = cs }

// Effects returns the enabled effect names in chain order.
func (r *GPURenderer) Effects() []string { return r.manager.Effects().Names() }

// HasEffect reports whether the named effect is enabled.
func (r *GPURenderer) HasEffect(name string) bool { return r.manager.HasEffect(name) }

// EnableEffect adds the named effect at its fixed chain position. Enabling
// an enabled effect is a no-op.
func (r *GPURenderer) EnableEffect(name string) error {
	pos := slices.Index(effectOrder, name)
	if pos < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownEffect, name)
	}
	if r.manager.HasEffect(name) {
		return nil
	}
	// Effects that belong after name are rebuilt behind it.
	var after []string
	for _, n := range effectOrder[pos+1:] {
		if !r.manager.HasEffect(n) {
			continue
		}
		removed, err := r.manager.RemoveEffect(r.device, n)
		if removed {
			after = append(after, n)
		}
		if err != nil {
			return r.restoreChain(name, after, err)
		}
	}
	for _, n := range append([]string{name}, after...) {
		if err := r.manager.AddEffect(r.device, r.queue, r.newEffect(n)); err != nil {
			return r.restoreChain(name, after, err)
		}
	}
	r.manager.UpdateComparison(r.compareOn, r.comparePos)
	slogger().Debug("render: effect enabled", "effect", name, "chain", r.Effects())
	return nil
}

// restoreChain undoes a failed EnableEffect: name is removed again and the
// effects taken out from behind it are re-added in order.
func (r *GPURenderer) restoreChain(name string, removed []string, cause error) error {
	errs := []error{cause}
	if r.manager.HasEffect(name) {
		if _, err := r.manager.RemoveEffect(r.device, name); err != nil {
			errs = append(errs, err)
		}
	}
	for _, n := range removed {
		if r.manager.HasEffect(n) {
			continue
		}
		if err := r.manager.AddEffect(r.device, r.queue, r.newEffect(n)); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", n, err))
		}
	}
	r.manager.UpdateComparison(r.compareOn, r.comparePos)
	slogger().Warn("render: enabling effect failed", "effect", name, "chain", r.Effects(), "err", cause)
	return errors.Join(errs...)
}

// DisableEffect removes the named effect. It reports whether the effect
// was enabled.
func (r *GPURenderer) DisableEffect(name string) (bool, error) {
	if !slices.Contains(effectOrder, name) {
		return false, fmt.Errorf("%w: %q", ErrUnknownEffect, name)
	}
	return r.manager.RemoveEffect(r.device, name)
}

// newEffect builds a configured effect value for name.
func (r *GPURenderer) newEffect(name string) gpu.Effect {
	switch name {
	case EffectUpscale:
		u := gpu.NewUpscaleEffect()
		u.SetParams(r.threshold, r.blendMode)
		return u
	case EffectComparison:
		return gpu.NewComparisonEffect()
	default:
		return gpu.NewYUVToRGBEffect()
	}
}

// SetComparison sets the split-screen state of every effect. position is
// clamped to [0, 1].
func (r *GPURenderer) SetComparison(enabled bool, position float32) {
	r.compareOn = enabled
	r.comparePos = min(max(position, 0), 1)
	r.manager.UpdateComparison(enabled, r.comparePos)
}

// Comparison returns the split-screen state.
func (r *GPURenderer) Comparison() (enabled bool, position float32) {
	return r.compareOn, r.comparePos
}

// SetUpscaleParams sets the upscale edge threshold and blend strength.
// They take effect at the next Prepare.
func (r *GPURenderer) SetUpscaleParams(threshold, blendMode float32) {
	r.threshold, r.blendMode = threshold, blendMode
	if e, ok := r.manager.Effect(EffectUpscale); ok {
		e.(*gpu.UpscaleEffect).SetParams(threshold, blendMode)
	}
}

// UpscaleParams returns the upscale edge threshold and blend strength.
func (r *GPURenderer) UpscaleParams() (threshold, blendMode float32) {
	return r.threshold, r.blendMode
}

// Upload stores an NV12 frame for video id. A false alive flag releases
// the entry at the next Prepare.
func (r *GPURenderer) Upload(id uint64, width, height int, payload []byte, alive bool) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: frame %dx%d", ErrInvalidPayload, width, height)
	}
	//nolint:gosec // G115: checked positive above
	return r.manager.Upload(r.device, r.queue, id, uint32(width), uint32(height), payload, alive)
}

// Release marks video id not alive. Its GPU resources are freed at the
// next Prepare.
func (r *GPURenderer) Release(id uint64) {
	r.manager.Video().SetAlive(id, false)
}

// BeginFrame starts a redraw. Call it once before the first Prepare.
func (r *GPURenderer) BeginFrame() { r.manager.BeginFrame() }

// Prepare writes the uniforms and bind groups of video id for this frame.
func (r *GPURenderer) Prepare(id uint64, bounds Bounds) error {
	return r.manager.Prepare(r.device, r.queue, id, bounds, r.colorSpace)
}

// Draw records the passes of video id into view, restricted to clip.
func (r *GPURenderer) Draw(encoder hal.CommandEncoder, view hal.TextureView, clip ClipRect, id uint64) error {
	return r.manager.Draw(encoder, view, clip, id)
}

// RenderToTexture clears target, draws the given videos into it, copies
// the result to its staging buffer, submits and waits for completion. The
// videos must have been prepared for this frame.
func (r *GPURenderer) RenderToTexture(target *TextureTarget, ids ...uint64) error {
	if target == nil {
		return fmt.Errorf("%w: nil target", ErrGPU)
	}
	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "vidfx_frame"})
	if err != nil {
		return fmt.Errorf("%w: create encoder: %v", ErrGPU, err)
	}
	defer encoder.Destroy()
	if err := encoder.BeginEncoding("vidfx_frame"); err != nil {
		return fmt.Errorf("%w: begin encoding: %v", ErrGPU, err)
	}

	target.encodeClear(encoder)
	for _, id := range ids {
		if err := r.Draw(encoder, target.View(), target.Clip(), id); err != nil {
			encoder.DiscardEncoding()
			return err
		}
	}
	target.encodeCopy(encoder)

	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("%w: end encoding: %v", ErrGPU, err)
	}
	defer r.device.FreeCommandBuffer(cmd)

	index, err := r.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		return fmt.Errorf("%w: submit: %v", ErrGPU, err)
	}
	if r.queue.PollCompleted() < index {
		if err := r.device.WaitIdle(); err != nil {
			return fmt.Errorf("%w: wait for GPU: %v", ErrGPU, err)
		}
	}
	slogger().Debug("render: frame submitted", "submission", index, "videos", len(ids))
	return nil
}

// Destroy releases every GPU resource the renderer created.
func (r *GPURenderer) Destroy() {
	if r.manager == nil {
		return
	}
	r.manager.Destroy(r.device)
	r.manager = nil
}

func slogger() *slog.Logger { return gpu.Logger() }
