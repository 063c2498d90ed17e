package gpu

import (
	"testing"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// readBuffer returns a copy of size bytes at offset of a noop buffer.
func readBuffer(t *testing.T, device hal.Device, buf hal.Buffer, offset, size uint64) []byte {
	t.Helper()
	m, err := device.MapBuffer(buf, offset, size)
	if err != nil {
		t.Fatalf("MapBuffer failed: %v", err)
	}
	defer func() { _ = device.UnmapBuffer(buf) }()
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(m.Ptr), size))
	return out
}

// namedView is a texture view with an identity tests can compare. Noop
// views are zero-sized, so their pointers are not distinct.
type namedView struct {
	name string
}

func (v *namedView) Destroy()              {}
func (v *namedView) NativeHandle() uintptr { return 0 }

// passRecord is what one recorded render pass did.
type passRecord struct {
	label    string
	target   hal.TextureView
	load     gputypes.LoadOp
	viewport [4]float32
	scissor  [4]uint32
	offsets  []uint32
	draws    int
}

// recordingEncoder wraps a noop encoder and records every render pass.
type recordingEncoder struct {
	hal.CommandEncoder
	passes []*passRecord
}

func newRecordingEncoder(t *testing.T, device hal.Device) *recordingEncoder {
	t.Helper()
	enc, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "test"})
	if err != nil {
		t.Fatalf("CreateCommandEncoder failed: %v", err)
	}
	return &recordingEncoder{CommandEncoder: enc}
}

func (e *recordingEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	rec := &passRecord{label: desc.Label}
	if len(desc.ColorAttachments) > 0 {
		rec.target = desc.ColorAttachments[0].View
		rec.load = desc.ColorAttachments[0].LoadOp
	}
	e.passes = append(e.passes, rec)
	return &recordingPass{RenderPassEncoder: e.CommandEncoder.BeginRenderPass(desc), rec: rec}
}

// recordingPass records viewport, scissor, dynamic offsets and draws.
type recordingPass struct {
	hal.RenderPassEncoder
	rec *passRecord
}

func (p *recordingPass) SetViewport(x, y, w, h, minDepth, maxDepth float32) {
	p.rec.viewport = [4]float32{x, y, w, h}
	p.RenderPassEncoder.SetViewport(x, y, w, h, minDepth, maxDepth)
}

func (p *recordingPass) SetScissorRect(x, y, w, h uint32) {
	p.rec.scissor = [4]uint32{x, y, w, h}
	p.RenderPassEncoder.SetScissorRect(x, y, w, h)
}

func (p *recordingPass) SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32) {
	p.rec.offsets = append([]uint32(nil), offsets...)
	p.RenderPassEncoder.SetBindGroup(index, group, offsets)
}

func (p *recordingPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.rec.draws++
	p.RenderPassEncoder.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

// nv12Frame returns a mid-grey NV12 payload for a w x h frame.
func nv12Frame(w, h uint32) []byte {
	buf := make([]byte, PayloadSize(w, h))
	for i := range buf {
		buf[i] = 128
	}
	return buf
}
