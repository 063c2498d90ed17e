package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// EffectYUVToRGB is the chain name of the YUV to RGB effect.
const EffectYUVToRGB = "yuv_to_rgb"

// YUVToRGBEffect samples the source Y and UV planes directly and writes
// RGB. It ignores the previous stage's output.
type YUVToRGBEffect struct {
	colorSpace ColorSpace
}

// NewYUVToRGBEffect creates the effect for BT.709 sources.
func NewYUVToRGBEffect() *YUVToRGBEffect {
	return &YUVToRGBEffect{colorSpace: ColorSpaceBT709}
}

// Name returns EffectYUVToRGB.
func (y *YUVToRGBEffect) Name() string { return EffectYUVToRGB }

// SetColorSpace sets the tag written to the color_space uniform.
func (y *YUVToRGBEffect) SetColorSpace(c ColorSpace) { y.colorSpace = c }

// Add builds the effect. Bind group 0 holds the Y plane, the UV plane,
// the sampler and a 4-byte uniform.
func (y *YUVToRGBEffect) Add(device hal.Device, queue hal.Queue, format gputypes.TextureFormat) (*ShaderEffect, error) {
	layout, err := NewBindGroupLayout(device, "yuv_to_rgb_layout", []gputypes.BindGroupLayoutEntry{
		textureLayoutEntry(0),
		textureLayoutEntry(1),
		samplerLayoutEntry(2),
		uniformLayoutEntry(3, 4, false),
	})
	if err != nil {
		return nil, err
	}
	uniforms, err := NewUniformStore(device, "yuv_to_rgb_uniforms")
	if err != nil {
		layout.Destroy(device)
		return nil, err
	}
	if err := uniforms.SetUint(uniformColorSpace, uint32(y.colorSpace)); err != nil {
		uniforms.Destroy(device)
		layout.Destroy(device)
		return nil, err
	}

	effect, err := NewShaderEffect(device, ShaderEffectDescriptor{
		Name:     EffectYUVToRGB,
		Source:   yuvToRGBShaderSource,
		Layout:   layout,
		Uniforms: uniforms,
		Format:   format,
	})
	if err != nil {
		return nil, err
	}
	if err := y.Prepare(effect, queue); err != nil {
		effect.Destroy(device)
		return nil, err
	}
	return effect, nil
}

// Prepare writes the color space tag.
func (y *YUVToRGBEffect) Prepare(effect *ShaderEffect, queue hal.Queue) error {
	u := effect.Uniforms()
	if err := u.SetUint(uniformColorSpace, uint32(y.colorSpace)); err != nil {
		return err
	}
	return u.UpdateBuffer(queue)
}

// UpdateForFrame binds the frame's Y and UV planes. A missing UV plane is
// replaced by the Y plane so the frame still renders.
func (y *YUVToRGBEffect) UpdateForFrame(device hal.Device, effect *ShaderEffect, views FrameViews) (hal.BindGroup, error) {
	yView, uvView := views.Y, views.UV
	if yView == nil {
		return nil, fmt.Errorf("%s: no Y plane", EffectYUVToRGB)
	}
	if uvView == nil {
		slogger().Warn("yuv_to_rgb: UV plane missing, binding Y twice")
		uvView = yView
	}
	return effect.CreateBindGroup(device, []gputypes.BindGroupEntry{
		textureBinding(0, yView),
		textureBinding(1, uvView),
		effect.samplerBinding(2),
		effect.uniformBinding(3),
	})
}

// UpdateComparison is a no-op; the conversion has no split-screen mode.
func (y *YUVToRGBEffect) UpdateComparison(bool, float32) {}
