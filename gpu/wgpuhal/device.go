// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpuhal

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/particles/gpu"
)

// fenceTimeout bounds host waits on submitted work.
const fenceTimeout = 5 * time.Second

// heapAlignment matches the placement alignment used by heap-capable
// backends so stride math stays identical across backends.
const heapAlignment = 64 * 1024

// device wraps a hal.Device and its single hardware queue. The three
// queue roles of the pipeline map onto role-tagged views of that one
// queue; ordering across roles is inherent because all submissions
// funnel into the same hardware queue.
type device struct {
	adapter *adapter
	hal     hal.Device
	queue   hal.Queue

	mu        sync.Mutex
	destroyed bool
}

func newDevice(a *adapter, d hal.Device, q hal.Queue) *device {
	return &device{adapter: a, hal: d, queue: q}
}

// Adapter implements gpu.Device.
func (d *device) Adapter() gpu.Adapter { return d.adapter }

// CreateQueue implements gpu.Device. Every role shares the hardware
// queue; throttling has no WebGPU equivalent.
func (d *device) CreateQueue(t gpu.QueueType, throttle bool) (gpu.Queue, error) {
	if throttle {
		return nil, gpu.ErrThrottleUnsupported
	}
	return &queue{dev: d, typ: t}, nil
}

// CreateFence implements gpu.Device.
func (d *device) CreateFence(initial uint64, flags gpu.FenceFlags) (gpu.Fence, error) {
	if flags&gpu.FenceShared != 0 {
		return nil, gpu.ErrSharedUnsupported
	}
	hf, err := d.hal.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("wgpuhal: create fence: %w", err)
	}
	f := &fence{dev: d, hal: hf}
	f.known.Store(initial)
	if initial > 0 {
		// Reach the initial value through the queue so the fence is
		// valid to wait on immediately.
		if err := d.queue.Submit(nil, hf, initial); err != nil {
			d.hal.DestroyFence(hf)
			return nil, fmt.Errorf("wgpuhal: seed fence: %w", err)
		}
	}
	return f, nil
}

// OpenSharedFence implements gpu.Device.
func (d *device) OpenSharedFence(h gpu.FenceHandle) (gpu.FenceView, error) {
	return nil, gpu.ErrSharedUnsupported
}

// CreateBuffer implements gpu.Device.
func (d *device) CreateBuffer(desc *gpu.BufferDescriptor) (gpu.Buffer, error) {
	if desc == nil {
		return nil, gpu.ErrNilDescriptor
	}
	hb, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpuhal: create buffer %q: %w", desc.Label, err)
	}
	return &buffer{dev: d, hal: hb, label: desc.Label, size: desc.Size}, nil
}

// CreateSharedHeap implements gpu.Device.
func (d *device) CreateSharedHeap(desc *gpu.HeapDescriptor) (gpu.SharedHeap, error) {
	return nil, gpu.ErrSharedUnsupported
}

// OpenSharedHeap implements gpu.Device.
func (d *device) OpenSharedHeap(h gpu.HeapHandle) (gpu.SharedHeap, error) {
	return nil, gpu.ErrSharedUnsupported
}

// CreatePlacedBuffer implements gpu.Device.
func (d *device) CreatePlacedBuffer(heap gpu.SharedHeap, offset uint64, desc *gpu.BufferDescriptor) (gpu.Buffer, error) {
	return nil, gpu.ErrSharedUnsupported
}

// CreatePresenter implements gpu.Device.
func (d *device) CreatePresenter(desc *gpu.PresenterDescriptor) (gpu.Presenter, error) {
	return nil, ErrPresentUnsupported
}

// CreateEncoder implements gpu.Device.
func (d *device) CreateEncoder(t gpu.QueueType) (gpu.CommandEncoder, error) {
	he, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "particles-" + t.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("wgpuhal: create command encoder: %w", err)
	}
	if err := he.BeginEncoding("particles-" + t.String()); err != nil {
		return nil, fmt.Errorf("wgpuhal: begin encoding: %w", err)
	}
	return &encoder{dev: d, typ: t, hal: he}, nil
}

// HeapAlignment implements gpu.Device.
func (d *device) HeapAlignment() uint64 { return heapAlignment }

// Drain implements gpu.Device. An empty submission with a fresh fence
// serializes behind all pending work.
func (d *device) Drain() error {
	hf, err := d.hal.CreateFence()
	if err != nil {
		return fmt.Errorf("wgpuhal: drain: %w", err)
	}
	defer d.hal.DestroyFence(hf)

	if err := d.queue.Submit(nil, hf, 1); err != nil {
		return fmt.Errorf("wgpuhal: drain submit: %w", err)
	}
	ok, err := d.hal.Wait(hf, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wgpuhal: drain wait: %w", err)
	}
	if !ok {
		return gpu.ErrWaitTimeout
	}
	return nil
}

// Destroy implements gpu.Device. The HAL device is externally owned
// and stays alive.
func (d *device) Destroy() {
	d.mu.Lock()
	d.destroyed = true
	d.mu.Unlock()
}

// CreateComputePipeline implements gpu.Device. The WGSL source is
// compiled through naga and the binding layout is baked from the
// descriptor's Layout declaration: binding 0 is the params uniform,
// declared buffers follow at 1..N.
func (d *device) CreateComputePipeline(desc *gpu.ComputePipelineDescriptor) (gpu.ComputePipeline, error) {
	if desc == nil {
		return nil, gpu.ErrNilDescriptor
	}
	return newPipeline(d, desc)
}

// buffer wraps a hal.Buffer.
type buffer struct {
	dev   *device
	hal   hal.Buffer
	label string
	size  uint64
}

// Size implements gpu.Buffer.
func (b *buffer) Size() uint64 { return b.size }

// Label implements gpu.Buffer.
func (b *buffer) Label() string { return b.label }

// Destroy implements gpu.Buffer.
func (b *buffer) Destroy() {
	b.dev.hal.DestroyBuffer(b.hal)
}

// bindingLayoutEntries builds the bind group layout entries for a
// pipeline: a uniform at binding 0 for dispatch params, then one
// storage entry per declared buffer.
func bindingLayoutEntries(layout []gpu.AccessMode) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(layout)+1)
	entries = append(entries, gputypes.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	})
	for i, access := range layout {
		t := gputypes.BufferBindingTypeReadOnlyStorage
		if access == gpu.BindReadWrite {
			t = gputypes.BufferBindingTypeStorage
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i + 1),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: t},
		})
	}
	return entries
}
