package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// EffectComparison is the chain name of the comparison effect.
const EffectComparison = "comparison"

// ComparisonEffect shows the original frame left of a vertical line and
// the processed frame right of it. Both inputs are RGB in the target
// format: the original is intermediate 0, the processed image is the
// previous stage's output.
type ComparisonEffect struct {
	enabled    bool
	position   float32
	degenerate bool
}

// NewComparisonEffect creates an enabled comparison split at the middle.
func NewComparisonEffect() *ComparisonEffect {
	return &ComparisonEffect{enabled: true, position: 0.5}
}

// Name returns EffectComparison.
func (c *ComparisonEffect) Name() string { return EffectComparison }

// Position returns the split position in [0, 1].
func (c *ComparisonEffect) Position() float32 { return c.position }

// Degenerate reports whether the last bind group bound one texture to
// both slots.
func (c *ComparisonEffect) Degenerate() bool { return c.degenerate }

// Add builds the effect. Bind group 0 holds the original texture, the
// processed texture, the sampler and a 4-byte uniform.
func (c *ComparisonEffect) Add(device hal.Device, queue hal.Queue, format gputypes.TextureFormat) (*ShaderEffect, error) {
	layout, err := NewBindGroupLayout(device, "comparison_layout", []gputypes.BindGroupLayoutEntry{
		textureLayoutEntry(0),
		textureLayoutEntry(1),
		samplerLayoutEntry(2),
		uniformLayoutEntry(3, 4, false),
	})
	if err != nil {
		return nil, err
	}
	uniforms, err := NewUniformStore(device, "comparison_uniforms")
	if err != nil {
		layout.Destroy(device)
		return nil, err
	}
	if err := c.write(uniforms); err != nil {
		uniforms.Destroy(device)
		layout.Destroy(device)
		return nil, err
	}

	effect, err := NewShaderEffect(device, ShaderEffectDescriptor{
		Name:     EffectComparison,
		Source:   comparisonShaderSource,
		Layout:   layout,
		Uniforms: uniforms,
		Format:   format,
	})
	if err != nil {
		return nil, err
	}
	if err := c.Prepare(effect, queue); err != nil {
		effect.Destroy(device)
		return nil, err
	}
	return effect, nil
}

// write stores line_position first, where the shader reads it, followed by
// the values the pipeline manager forwards to the divider line.
func (c *ComparisonEffect) write(s *UniformStore) error {
	if err := s.SetFloat(uniformLinePosition, c.position); err != nil {
		return err
	}
	if err := s.SetUint(uniformComparisonEnabled, boolUint(c.enabled)); err != nil {
		return err
	}
	return s.SetFloat(uniformComparisonPosition, c.position)
}

// Prepare writes the current split state.
func (c *ComparisonEffect) Prepare(effect *ShaderEffect, queue hal.Queue) error {
	if err := c.write(effect.Uniforms()); err != nil {
		return err
	}
	return effect.Uniforms().UpdateBuffer(queue)
}

// UpdateForFrame binds the original and processed textures. When only one
// is available it is bound to both slots and a warning is logged; the real
// pairing is restored once both exist.
func (c *ComparisonEffect) UpdateForFrame(device hal.Device, effect *ShaderEffect, views FrameViews) (hal.BindGroup, error) {
	original, processed := views.Original, views.Input
	c.degenerate = false
	switch {
	case original == nil && processed == nil:
		return nil, fmt.Errorf("%s: no input textures", EffectComparison)
	case original == nil:
		original = processed
		c.degenerate = true
	case processed == nil:
		processed = original
		c.degenerate = true
	}
	if c.degenerate {
		slogger().Warn("comparison: one input missing, binding the same texture to both sides")
	}
	return effect.CreateBindGroup(device, []gputypes.BindGroupEntry{
		textureBinding(0, original),
		textureBinding(1, processed),
		effect.samplerBinding(2),
		effect.uniformBinding(3),
	})
}

// UpdateComparison sets the split-screen state.
func (c *ComparisonEffect) UpdateComparison(enabled bool, position float32) {
	c.enabled = enabled
	c.position = clamp01(position)
}
