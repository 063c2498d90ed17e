// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"fmt"
	"image"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// TargetFormat is the format of every TextureTarget.
const TargetFormat = gputypes.TextureFormatBGRA8Unorm

// copyPitchAlignment is the row alignment texture-to-buffer copies require.
const copyPitchAlignment = 256

const targetUsage = gputypes.TextureUsageRenderAttachment |
	gputypes.TextureUsageTextureBinding |
	gputypes.TextureUsageCopySrc

// TextureTarget is an offscreen BGRA8Unorm render target with a staging
// buffer for CPU readback.
//
//	target, _ := render.NewTextureTarget(device, 1280, 720)
//	defer target.Destroy()
//	_ = renderer.RenderToTexture(target, id)
//	img, _ := target.ReadPixels()
type TextureTarget struct {
	device  hal.Device
	tex     hal.Texture
	view    hal.TextureView
	staging hal.Buffer

	width, height uint32
	pitch         uint32
}

// NewTextureTarget creates a width x height target on device.
func NewTextureTarget(device hal.Device, width, height int) (*TextureTarget, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: target %dx%d", ErrInvalidWindowSize, width, height)
	}
	w, h := uint32(width), uint32(height) //nolint:gosec // G115: checked positive above
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "vidfx_target",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        TargetFormat,
		Usage:         targetUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create target texture: %v", ErrGPU, err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "vidfx_target_view",
		Format:        TargetFormat,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, fmt.Errorf("%w: create target view: %v", ErrGPU, err)
	}
	pitch := (w*4 + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	staging, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "vidfx_target_staging",
		Size:  uint64(pitch) * uint64(h),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		device.DestroyTextureView(view)
		device.DestroyTexture(tex)
		return nil, fmt.Errorf("%w: create staging buffer: %v", ErrGPU, err)
	}
	return &TextureTarget{
		device:  device,
		tex:     tex,
		view:    view,
		staging: staging,
		width:   w,
		height:  h,
		pitch:   pitch,
	}, nil
}

// Width returns the target width in pixels.
func (t *TextureTarget) Width() int { return int(t.width) }

// Height returns the target height in pixels.
func (t *TextureTarget) Height() int { return int(t.height) }

// Format returns TargetFormat.
func (t *TextureTarget) Format() gputypes.TextureFormat { return TargetFormat }

// View returns the view passes render into.
func (t *TextureTarget) View() hal.TextureView { return t.view }

// Clip returns the full target rectangle.
func (t *TextureTarget) Clip() ClipRect {
	return ClipRect{Width: t.width, Height: t.height}
}

// Bounds returns the full target rectangle in floating point.
func (t *TextureTarget) Bounds() Bounds {
	return Bounds{Width: float32(t.width), Height: float32(t.height)}
}

// Pitch returns the padded row stride of the staging buffer.
func (t *TextureTarget) Pitch() int { return int(t.pitch) }

// encodeClear records a pass that clears the target to opaque black.
func (t *TextureTarget) encodeClear(encoder hal.CommandEncoder) {
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "target_clear",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       t.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{A: 1},
		}},
	})
	rp.End()
}

// encodeCopy records the copy of the target into the staging buffer.
func (t *TextureTarget) encodeCopy(encoder hal.CommandEncoder) {
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(t.tex, t.staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{BytesPerRow: t.pitch, RowsPerImage: t.height},
		TextureBase:  hal.ImageCopyTexture{Texture: t.tex, Aspect: gputypes.TextureAspectAll},
		Size:         hal.Extent3D{Width: t.width, Height: t.height, DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
}

// ReadPixels maps the staging buffer filled by the last RenderToTexture
// and returns its contents as RGBA.
func (t *TextureTarget) ReadPixels() (*image.RGBA, error) {
	if t.staging == nil {
		return nil, fmt.Errorf("%w: target destroyed", ErrGPU)
	}
	size := uint64(t.pitch) * uint64(t.height)
	m, err := t.device.MapBuffer(t.staging, 0, size)
	if err != nil {
		return nil, fmt.Errorf("%w: map staging buffer: %v", ErrGPU, err)
	}
	defer func() { _ = t.device.UnmapBuffer(t.staging) }()

	raw := unsafe.Slice((*byte)(m.Ptr), size)
	img := image.NewRGBA(image.Rect(0, 0, int(t.width), int(t.height)))
	row := int(t.width) * 4
	for y := 0; y < int(t.height); y++ {
		bgraToRGBA(img.Pix[y*img.Stride:y*img.Stride+row], raw[y*int(t.pitch):y*int(t.pitch)+row])
	}
	return img, nil
}

// bgraToRGBA swaps the red and blue channels of src into dst.
func bgraToRGBA(dst, src []byte) {
	for i := 0; i+3 < len(src); i += 4 {
		dst[i+0] = src[i+2]
		dst[i+1] = src[i+1]
		dst[i+2] = src[i+0]
		dst[i+3] = src[i+3]
	}
}

// Destroy releases the texture, its view and the staging buffer.
func (t *TextureTarget) Destroy() {
	if t.staging != nil {
		t.device.DestroyBuffer(t.staging)
		t.staging = nil
	}
	if t.view != nil {
		t.device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.tex != nil {
		t.device.DestroyTexture(t.tex)
		t.tex = nil
	}
}
