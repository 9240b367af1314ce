// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpuhal implements a gpu.Backend on real hardware through
// gogpu/wgpu.
//
// WebGPU has no cross-adapter heaps and exposes a single hardware
// queue per device, so this backend reports SharedHeaps() false and
// serves the single-adapter configuration only: the simulation and the
// presentation run on the same device and synchronize through ordinary
// fences. Requests for shared resources fail with
// gpu.ErrSharedUnsupported and the coordinator falls back accordingly.
package wgpuhal

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/core"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/particles/gpu"
	"github.com/gogpu/particles/gpu/backend"
)

func init() {
	backend.Register(backend.BackendWGPU, func() gpu.Backend { return New() })
}

// Backend errors.
var (
	// ErrNoGPU is returned when no hardware adapter can be acquired.
	ErrNoGPU = errors.New("wgpuhal: no GPU adapter available")

	// ErrNoHALDevice is returned when OpenDevice runs without a HAL
	// device. The core layer bootstraps the adapter; command recording
	// needs a hal.Device, injected via NewWithDevice or FromProvider.
	ErrNoHALDevice = errors.New("wgpuhal: no hal device attached")

	// ErrPresentUnsupported is returned for presenter creation; the
	// backend is headless compute only.
	ErrPresentUnsupported = errors.New("wgpuhal: presentation not supported")

	// ErrDrawUnsupported is returned when a draw is recorded.
	ErrDrawUnsupported = errors.New("wgpuhal: point draws not supported")

	// ErrReadbackUnsupported is returned by ReadBuffer until the HAL
	// exposes buffer mapping.
	ErrReadbackUnsupported = errors.New("wgpuhal: buffer readback not supported")

	// ErrInvalidProvider is returned when a device provider does not
	// carry hal handles.
	ErrInvalidProvider = errors.New("wgpuhal: provider does not expose hal device and queue")
)

// Backend drives hardware through the wgpu core and HAL layers. The
// core layer owns adapter discovery and device lifetime; all command
// work goes through the HAL device.
type Backend struct {
	mu sync.Mutex

	instance *core.Instance
	adapter  core.AdapterID
	device   core.DeviceID
	queue    core.QueueID

	halDevice hal.Device
	halQueue  hal.Queue

	info        gpu.AdapterInfo
	adapterList []gpu.Adapter

	initialized bool
}

// New returns an uninitialized hardware backend.
func New() *Backend {
	return &Backend{}
}

// NewWithDevice returns a backend operating on an externally owned
// HAL device and queue. The caller keeps ownership; Close releases
// nothing.
func NewWithDevice(device hal.Device, queue hal.Queue, info gpu.AdapterInfo) *Backend {
	return &Backend{
		halDevice: device,
		halQueue:  queue,
		info:      info,
	}
}

// FromProvider builds a backend from a gpucontext device provider, the
// handoff used when another component already owns the GPU context.
func FromProvider(p gpucontext.DeviceProvider) (*Backend, error) {
	if p == nil {
		return nil, ErrInvalidProvider
	}
	device, okD := p.Device().(hal.Device)
	queue, okQ := p.Queue().(hal.Queue)
	if !okD || !okQ {
		return nil, ErrInvalidProvider
	}
	return NewWithDevice(device, queue, gpu.AdapterInfo{Name: "provided", Vendor: "unknown"}), nil
}

// Name implements gpu.Backend.
func (b *Backend) Name() string { return backend.BackendWGPU }

// Init implements gpu.Backend. With an injected HAL device it is a
// no-op; otherwise it bootstraps instance, adapter, device, and queue
// through the core layer.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}
	if b.halDevice != nil {
		b.adapterList = []gpu.Adapter{&adapter{info: b.info}}
		b.initialized = true
		return nil
	}

	desc := &gputypes.InstanceDescriptor{
		Backends: gputypes.BackendsPrimary,
	}
	b.instance = core.NewInstance(desc)

	adapterID, err := b.instance.RequestAdapter(&gputypes.RequestAdapterOptions{
		PowerPreference: gputypes.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoGPU, err)
	}
	b.adapter = adapterID
	b.info = adapterInfoFor(adapterID)

	deviceID, err := core.RequestDevice(adapterID, &gputypes.DeviceDescriptor{
		Label:          "particles-device",
		RequiredLimits: gputypes.DefaultLimits(),
	})
	if err != nil {
		return fmt.Errorf("wgpuhal: device creation failed: %w", err)
	}
	b.device = deviceID

	queueID, err := core.GetDeviceQueue(deviceID)
	if err != nil {
		_ = core.DeviceDrop(deviceID)
		return fmt.Errorf("wgpuhal: queue retrieval failed: %w", err)
	}
	b.queue = queueID

	b.adapterList = []gpu.Adapter{&adapter{info: b.info}}
	b.initialized = true
	return nil
}

// adapterInfoFor maps a core adapter description onto gpu.AdapterInfo.
// Integrated adapters are treated as UMA.
func adapterInfoFor(id core.AdapterID) gpu.AdapterInfo {
	info, err := core.GetAdapterInfo(id)
	if err != nil {
		return gpu.AdapterInfo{Name: "unknown", Vendor: "unknown"}
	}
	return gpu.AdapterInfo{
		Name:   info.Name,
		Vendor: info.Vendor,
		UMA:    info.DeviceType == gputypes.DeviceTypeIntegratedGPU,
	}
}

// Close implements gpu.Backend.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return
	}
	if !b.device.IsZero() {
		_ = core.DeviceDrop(b.device)
	}
	if !b.adapter.IsZero() {
		_ = core.AdapterDrop(b.adapter)
	}
	b.initialized = false
}

// Adapters implements gpu.Backend.
func (b *Backend) Adapters() ([]gpu.Adapter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.adapterList) == 0 {
		return nil, gpu.ErrNoAdapters
	}
	return b.adapterList, nil
}

// OpenDevice implements gpu.Backend. The HAL device must be available,
// either injected or obtained during Init.
//
// TODO: open the HAL device from the core DeviceID once the core
// layer exposes it; until then core-bootstrapped backends need
// NewWithDevice or FromProvider for command work.
func (b *Backend) OpenDevice(a gpu.Adapter) (gpu.Device, error) {
	wa, ok := a.(*adapter)
	if !ok {
		return nil, gpu.ErrInvalidHandle
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.halDevice == nil {
		return nil, ErrNoHALDevice
	}
	return newDevice(wa, b.halDevice, b.halQueue), nil
}

// SharedHeaps implements gpu.Backend.
func (b *Backend) SharedHeaps() bool { return false }

type adapter struct {
	info gpu.AdapterInfo
}

func (a *adapter) Info() gpu.AdapterInfo { return a.info }
