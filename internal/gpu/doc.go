// Package gpu implements the video render pipeline on the gogpu/wgpu HAL.
//
// It uploads NV12 frames as an R8 luma plane and an RG8 chroma plane,
// converts them to RGB, and runs the result through a chain of full-screen
// shader effects before compositing into a host-supplied target view.
//
// # Architecture Overview
//
//	Upload -> VideoPipeline -> intermediate 0 -> effect 0 -> ... -> effect N-1 -> target -> divider line
//
// Key components:
//
//   - UniformStore: insertion-ordered typed uniforms packed into a 256-byte buffer
//   - TextureManager: the N+1 intermediate render targets of an N-effect chain
//   - ShaderEffect: pipeline, sampler, uniforms and a bind group built against
//     a layout whose id never changes
//   - YUVToRGBEffect, UpscaleEffect, ComparisonEffect: the concrete effects
//   - EffectManager: the ordered chain and its per-frame bind groups
//   - VideoPipeline: per-video planes and a 256-slot dynamic-offset uniform ring
//   - LinePipeline: the split-screen divider overlay
//   - PipelineManager: composition and draw ordering
//
// # Frame Cycle
//
// Each redraw calls BeginFrame, then Prepare for every visible video, then
// Draw into a command encoder. Prepare writes uniforms and rebuilds bind
// groups; Draw only records passes. Clear passes target intermediates over
// their full extent, Load passes target the host view restricted to the
// clip rectangle.
//
// # Shaders
//
// WGSL sources are embedded. SetSPIRVShaders(true) cross-compiles them with
// naga before handing them to the device.
package gpu
