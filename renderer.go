package vidfx

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/vidfx/internal/gpu"
	"github.com/gogpu/vidfx/render"
)

// NewRenderer creates a render.GPURenderer on the device behind handle and
// applies the rendering options: format, SPIR-V shaders, color space and
// the upscale and comparison effects.
//
// The format comes from WithFormat when given, else from the handle's
// surface format, else render.DefaultFormat. WithSPIRV switches the shader
// path for every renderer in the process.
func NewRenderer(handle render.DeviceHandle, opts ...Option) (*render.GPURenderer, error) {
	o := collect(opts)
	device, queue, err := render.HALObjects(handle)
	if err != nil {
		return nil, err
	}
	format := o.format
	if !o.formatSet {
		if f := handle.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
			format = f
		}
	}
	gpu.SetSPIRVShaders(o.spirv)

	r, err := render.NewGPURendererHAL(device, queue, format, render.DeviceLimits(handle))
	if err != nil {
		return nil, err
	}
	if err := configure(r, o); err != nil {
		r.Destroy()
		return nil, err
	}
	Logger().Info("vidfx: renderer created",
		"format", format,
		"spirv", o.spirv,
		"effects", r.Effects(),
	)
	return r, nil
}

// configure applies the effect options to r.
func configure(r *render.GPURenderer, o options) error {
	r.SetColorSpace(o.colorSpace)
	r.SetUpscaleParams(o.threshold, o.blendMode)
	r.SetComparison(o.compare, o.comparePos)
	if o.upscale {
		if err := r.EnableEffect(render.EffectUpscale); err != nil {
			return err
		}
	}
	if o.compare {
		if err := r.EnableEffect(render.EffectComparison); err != nil {
			return err
		}
	}
	return nil
}
