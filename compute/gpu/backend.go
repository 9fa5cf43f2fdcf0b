// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package gpu registers the Vulkan compute backend with package compute.
//
// Import it for its side effect:
//
//	import _ "github.com/gogpu/wavefront/compute/gpu"
//
// Kernels are compiled from WGSL to SPIR-V with naga and dispatched through
// the wgpu HAL. Build with the nogpu tag to leave only the host backend.
package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wavefront/compute"

	// Register the Vulkan HAL backend.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// BackendName is the name the Vulkan backend registers under.
const BackendName = "vulkan"

// Conservative limits guaranteed by every WebGPU-class adapter.
const (
	maxWorkgroupInvocations = 256
	maxBufferSize           = 256 << 20
)

func init() {
	compute.RegisterBackend(&vulkanBackend{}, 100)
}

// halProvider is implemented by device providers that expose their HAL
// device and queue, such as the gogpu window.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

type vulkanBackend struct {
	once     sync.Once
	instance hal.Instance
	adapters []hal.ExposedAdapter
	err      error
}

func (b *vulkanBackend) Name() string { return BackendName }

// init creates the instance on first use so that importing the package
// never touches the driver.
func (b *vulkanBackend) init() error {
	b.once.Do(func() {
		backend, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			b.err = fmt.Errorf("gpu: vulkan backend not available")
			return
		}
		instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
		if err != nil {
			b.err = fmt.Errorf("gpu: create instance: %w", err)
			return
		}
		b.instance = instance
		b.adapters = instance.EnumerateAdapters(nil)
	})
	return b.err
}

func (b *vulkanBackend) Devices() []compute.DeviceInfo {
	if err := b.init(); err != nil {
		compute.Logger().Debug("gpu: no devices", "error", err)
		return nil
	}
	infos := make([]compute.DeviceInfo, len(b.adapters))
	for i := range b.adapters {
		infos[i] = adapterInfo(i, &b.adapters[i])
	}
	return infos
}

func adapterInfo(index int, a *hal.ExposedAdapter) compute.DeviceInfo {
	return compute.DeviceInfo{
		Backend:          BackendName,
		Name:             a.Info.Name,
		Type:             deviceType(a.Info.DeviceType),
		Index:            index,
		ComputeUnits:     1,
		MaxWorkgroupSize: maxWorkgroupInvocations,
		MaxBufferSize:    maxBufferSize,
		ImageSupport:     true,
	}
}

func deviceType(t gputypes.DeviceType) compute.DeviceType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return compute.DeviceTypeDiscreteGPU
	case gputypes.DeviceTypeIntegratedGPU:
		return compute.DeviceTypeIntegratedGPU
	default:
		return compute.DeviceTypeOther
	}
}

// Open opens the adapter described by info. When interop exposes its HAL
// device, that device is shared instead so buffers can feed the provider's
// display pipeline directly.
func (b *vulkanBackend) Open(info compute.DeviceInfo, interop gpucontext.DeviceProvider) (compute.Device, error) {
	if interop != nil {
		if hp, ok := interop.(halProvider); ok {
			device, okDev := hp.HalDevice().(hal.Device)
			queue, okQueue := hp.HalQueue().(hal.Queue)
			if okDev && okQueue {
				compute.Logger().Info("gpu: sharing device with display provider", "device", info.Name)
				return newDevice(info, device, queue, false), nil
			}
		}
		return nil, fmt.Errorf("%w: provider does not expose a HAL device", compute.ErrNoInterop)
	}

	if err := b.init(); err != nil {
		return nil, err
	}
	if info.Index < 0 || info.Index >= len(b.adapters) {
		return nil, fmt.Errorf("gpu: adapter index %d out of range", info.Index)
	}
	openDev, err := b.adapters[info.Index].Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, fmt.Errorf("gpu: open device: %w", err)
	}
	return newDevice(info, openDev.Device, openDev.Queue, true), nil
}
