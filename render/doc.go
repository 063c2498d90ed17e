// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render is the public GPU surface of vidfx.
//
// # Key Principle
//
// vidfx RECEIVES a GPU device from the host application, it does not
// create one. A host passes its gpucontext.DeviceProvider to
// NewGPURenderer; tools without a window use OpenHeadless and a
// TextureTarget instead.
//
// # Frame Cycle
//
//	r.Upload(id, w, h, nv12, true) // when a new frame was released
//	r.BeginFrame()
//	r.Prepare(id, bounds)          // for every visible video
//	r.Draw(encoder, view, clip, id)
//
// RenderToTexture runs the encoder part of that cycle for an offscreen
// target and waits for the GPU, after which TextureTarget.ReadPixels
// returns the image.
//
// # Effects
//
// EnableEffect(EffectUpscale) and EnableEffect(EffectComparison) extend
// the chain. The chain order is fixed (YUV to RGB, upscale, comparison)
// whatever order effects are enabled in. SetComparison moves the split
// line; pixels left of it show the unprocessed frame.
package render
