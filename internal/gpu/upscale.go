package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// EffectUpscale is the chain name of the upscale effect.
const EffectUpscale = "upscale"

// Upscale defaults.
const (
	DefaultColorThreshold = 0.05
	DefaultColorBlendMode = 2.0
)

// UpscaleEffect sharpens edges of the previous stage's output. Pixels left
// of the comparison position pass through unchanged when comparison is
// enabled.
type UpscaleEffect struct {
	threshold          float32
	blendMode          float32
	comparisonEnabled  bool
	comparisonPosition float32
}

// NewUpscaleEffect creates the effect with default parameters.
func NewUpscaleEffect() *UpscaleEffect {
	return &UpscaleEffect{
		threshold:          DefaultColorThreshold,
		blendMode:          DefaultColorBlendMode,
		comparisonPosition: 0.5,
	}
}

// Name returns EffectUpscale.
func (u *UpscaleEffect) Name() string { return EffectUpscale }

// SetParams sets the edge threshold and blend strength.
func (u *UpscaleEffect) SetParams(threshold, blendMode float32) {
	u.threshold = threshold
	u.blendMode = blendMode
}

// Params returns the edge threshold and blend strength.
func (u *UpscaleEffect) Params() (threshold, blendMode float32) {
	return u.threshold, u.blendMode
}

// Add builds the effect. Bind group 0 holds the input texture, the
// sampler and a 16-byte uniform.
func (u *UpscaleEffect) Add(device hal.Device, queue hal.Queue, format gputypes.TextureFormat) (*ShaderEffect, error) {
	layout, err := NewBindGroupLayout(device, "upscale_layout", []gputypes.BindGroupLayoutEntry{
		textureLayoutEntry(0),
		samplerLayoutEntry(1),
		uniformLayoutEntry(2, 16, false),
	})
	if err != nil {
		return nil, err
	}
	uniforms, err := NewUniformStore(device, "upscale_uniforms")
	if err != nil {
		layout.Destroy(device)
		return nil, err
	}
	if err := u.write(uniforms); err != nil {
		uniforms.Destroy(device)
		layout.Destroy(device)
		return nil, err
	}

	effect, err := NewShaderEffect(device, ShaderEffectDescriptor{
		Name:     EffectUpscale,
		Source:   upscaleShaderSource,
		Layout:   layout,
		Uniforms: uniforms,
		Format:   format,
	})
	if err != nil {
		return nil, err
	}
	if err := u.Prepare(effect, queue); err != nil {
		effect.Destroy(device)
		return nil, err
	}
	return effect, nil
}

// write stores the parameters in shader field order.
func (u *UpscaleEffect) write(s *UniformStore) error {
	if err := s.SetFloat(uniformColorThreshold, u.threshold); err != nil {
		return err
	}
	if err := s.SetFloat(uniformColorBlendMode, u.blendMode); err != nil {
		return err
	}
	if err := s.SetUint(uniformComparisonEnabled, boolUint(u.comparisonEnabled)); err != nil {
		return err
	}
	return s.SetFloat(uniformComparisonPosition, u.comparisonPosition)
}

// Prepare writes the current parameters.
func (u *UpscaleEffect) Prepare(effect *ShaderEffect, queue hal.Queue) error {
	if err := u.write(effect.Uniforms()); err != nil {
		return err
	}
	return effect.Uniforms().UpdateBuffer(queue)
}

// UpdateForFrame binds the previous stage's output.
func (u *UpscaleEffect) UpdateForFrame(device hal.Device, effect *ShaderEffect, views FrameViews) (hal.BindGroup, error) {
	input := views.Input
	if input == nil {
		input = views.Original
	}
	if input == nil {
		return nil, fmt.Errorf("%s: no input texture", EffectUpscale)
	}
	return effect.CreateBindGroup(device, []gputypes.BindGroupEntry{
		textureBinding(0, input),
		effect.samplerBinding(1),
		effect.uniformBinding(2),
	})
}

// UpdateComparison sets the split-screen state.
func (u *UpscaleEffect) UpdateComparison(enabled bool, position float32) {
	u.comparisonEnabled = enabled
	u.comparisonPosition = clamp01(position)
}
