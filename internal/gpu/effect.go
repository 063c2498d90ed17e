package gpu

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Uniform names shared between effects and the pipeline manager. Offsets
// follow insertion order, so every effect sets them in a fixed order.
const (
	uniformColorSpace         = "color_space"
	uniformColorThreshold     = "color_threshold"
	uniformColorBlendMode     = "color_blend_mode"
	uniformLinePosition       = "line_position"
	uniformComparisonEnabled  = "comparison_enabled"
	uniformComparisonPosition = "comparison_position"
)

// FrameViews are the texture views an effect may bind for one frame.
type FrameViews struct {
	// Y and UV are the source video planes.
	Y  hal.TextureView
	UV hal.TextureView

	// Input is the previous stage's output.
	Input hal.TextureView

	// Original is the unprocessed RGB frame (intermediate 0). It is nil for
	// the first effect, whose Input already is that frame.
	Original hal.TextureView
}

// Effect is one stage of the post-processing chain. An Effect holds only
// configuration; GPU resources live in the ShaderEffect it builds, and the
// device and queue are passed in on every call.
type Effect interface {
	// Name identifies the effect in the chain.
	Name() string

	// Add builds the effect's layout, uniform store and pipeline.
	Add(device hal.Device, queue hal.Queue, format gputypes.TextureFormat) (*ShaderEffect, error)

	// Prepare refreshes the effect's uniforms on the GPU.
	Prepare(effect *ShaderEffect, queue hal.Queue) error

	// UpdateForFrame rebuilds the bind group against the effect's fixed
	// layout for this frame's textures.
	UpdateForFrame(device hal.Device, effect *ShaderEffect, views FrameViews) (hal.BindGroup, error)

	// UpdateComparison sets the split-screen state.
	UpdateComparison(enabled bool, position float32)
}

// clamp01 clamps v into [0, 1].
func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// boolUint converts a flag to the u32 a shader expects.
func boolUint(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
