// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DeviceHandle provides GPU device access from the host application.
//
// The host owns the device; vidfx borrows it. A handle is usable by
// NewGPURenderer when it also exposes the HAL objects, either through
// HalDevice() any and HalQueue() any or by returning hal.Device and
// hal.Queue from Device and Queue directly.
type DeviceHandle = gpucontext.DeviceProvider

// halProvider is implemented by hosts that expose their HAL objects.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// limitsProvider is implemented by hosts that report the limits their
// device was opened with.
type limitsProvider interface {
	Limits() gputypes.Limits
}

// DeviceLimits returns the limits of the device behind h. Handles that do
// not report them are assumed to run at gputypes.DefaultLimits.
func DeviceLimits(h DeviceHandle) gputypes.Limits {
	if lp, ok := h.(limitsProvider); ok {
		return lp.Limits()
	}
	return gputypes.DefaultLimits()
}

// deviceLimits returns the limits to request from an adapter: the defaults,
// with the uniform offset alignment raised to what the adapter requires.
func deviceLimits(adapter gputypes.Limits) gputypes.Limits {
	limits := gputypes.DefaultLimits()
	if a := adapter.MinUniformBufferOffsetAlignment; a > limits.MinUniformBufferOffsetAlignment {
		limits.MinUniformBufferOffsetAlignment = a
	}
	return limits
}

// HALObjects extracts the HAL device and queue behind h. It fails with
// ErrGPU when h exposes neither.
func HALObjects(h DeviceHandle) (hal.Device, hal.Queue, error) {
	if h == nil {
		return nil, nil, fmt.Errorf("%w: nil device handle", ErrGPU)
	}
	var dev, q any
	if hp, ok := h.(halProvider); ok {
		dev, q = hp.HalDevice(), hp.HalQueue()
	} else {
		dev, q = h.Device(), h.Queue()
	}
	device, ok := dev.(hal.Device)
	if !ok || device == nil {
		return nil, nil, fmt.Errorf("%w: handle does not expose a hal.Device", ErrGPU)
	}
	queue, ok := q.(hal.Queue)
	if !ok || queue == nil {
		return nil, nil, fmt.Errorf("%w: handle does not expose a hal.Queue", ErrGPU)
	}
	return device, queue, nil
}

// NullDeviceHandle is a DeviceHandle with no device behind it.
type NullDeviceHandle struct{}

// Device returns nil.
func (NullDeviceHandle) Device() gpucontext.Device { return nil }

// Queue returns nil.
func (NullDeviceHandle) Queue() gpucontext.Queue { return nil }

// Adapter returns nil.
func (NullDeviceHandle) Adapter() gpucontext.Adapter { return nil }

// SurfaceFormat returns TextureFormatUndefined.
func (NullDeviceHandle) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

// AdapterInfo reports an unknown adapter.
func (NullDeviceHandle) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Type: gpucontext.AdapterTypeUnknown}
}

// HeadlessDevice is a device vidfx opened itself, for hosts without a
// window such as the command-line renderer. It implements DeviceHandle.
type HeadlessDevice struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	info     gputypes.AdapterInfo
	limits   gputypes.Limits
}

// OpenHeadless opens the first usable adapter of a registered HAL backend,
// preferring discrete and integrated GPUs. The backend package must be
// linked in, for example with a blank import of hal/vulkan.
func OpenHeadless(variant gputypes.Backend) (*HeadlessDevice, error) {
	b, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("%w: %s backend not available", ErrGPU, variant)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("%w: create instance: %v", ErrGPU, err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no GPU adapters found", ErrGPU)
	}
	selected := &adapters[0]
	for i := range adapters {
		t := adapters[i].Info.DeviceType
		if t == gputypes.DeviceTypeDiscreteGPU || t == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	limits := deviceLimits(selected.Capabilities.Limits)
	open, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: open device: %v", ErrGPU, err)
	}
	slogger().Info("render: headless device opened",
		"backend", variant,
		"adapter", selected.Info.Name,
		"uniform_alignment", limits.MinUniformBufferOffsetAlignment)
	return &HeadlessDevice{
		instance: instance,
		device:   open.Device,
		queue:    open.Queue,
		info:     selected.Info,
		limits:   limits,
	}, nil
}

// Device returns the hal.Device.
func (d *HeadlessDevice) Device() gpucontext.Device { return d.device }

// Queue returns the hal.Queue.
func (d *HeadlessDevice) Queue() gpucontext.Queue { return d.queue }

// Adapter returns nil; the adapter is not retained.
func (d *HeadlessDevice) Adapter() gpucontext.Adapter { return nil }

// SurfaceFormat returns the offscreen target format.
func (d *HeadlessDevice) SurfaceFormat() gputypes.TextureFormat {
	return TargetFormat
}

// AdapterInfo describes the opened adapter.
func (d *HeadlessDevice) AdapterInfo() gpucontext.AdapterInfo {
	info := gpucontext.AdapterInfo{Name: d.info.Name, Type: gpucontext.AdapterTypeUnknown}
	switch d.info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		info.Type = gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		info.Type = gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		info.Type = gpucontext.AdapterTypeSoftware
	}
	return info
}

// Limits returns the limits the device was opened with.
func (d *HeadlessDevice) Limits() gputypes.Limits { return d.limits }

// HalDevice returns the hal.Device.
func (d *HeadlessDevice) HalDevice() any { return d.device }

// HalQueue returns the hal.Queue.
func (d *HeadlessDevice) HalQueue() any { return d.queue }

// Close waits for the device to go idle and releases it.
func (d *HeadlessDevice) Close() error {
	if d.device == nil {
		return nil
	}
	err := d.device.WaitIdle()
	d.device.Destroy()
	d.instance.Destroy()
	d.device, d.queue, d.instance = nil, nil, nil
	return err
}

var (
	_ DeviceHandle = NullDeviceHandle{}
	_ DeviceHandle = (*HeadlessDevice)(nil)
)
