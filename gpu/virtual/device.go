// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package virtual

import (
	"errors"
	"sync"

	"github.com/gogpu/particles/gpu"
)

// heapAlignment mirrors the 64 KiB placement alignment of real heaps,
// so stride math exercised here carries over to hardware unchanged.
const heapAlignment = 64 * 1024

// ErrNoKernel is returned when a compute pipeline descriptor carries
// no Native kernel; the virtual backend cannot execute WGSL.
var ErrNoKernel = errors.New("virtual: compute pipeline has no native kernel")

type device struct {
	adapter *adapter

	mu        sync.Mutex
	queues    []*queue
	destroyed bool
}

func newDevice(a *adapter) *device {
	return &device{adapter: a}
}

// Adapter implements gpu.Device.
func (d *device) Adapter() gpu.Adapter { return d.adapter }

// CreateQueue implements gpu.Device.
func (d *device) CreateQueue(t gpu.QueueType, throttle bool) (gpu.Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return nil, gpu.ErrDeviceDestroyed
	}
	if throttle && !d.adapter.info.Throttle {
		return nil, gpu.ErrThrottleUnsupported
	}
	q := newQueue(d, t, throttle)
	d.queues = append(d.queues, q)
	return q, nil
}

// CreateFence implements gpu.Device.
func (d *device) CreateFence(initial uint64, flags gpu.FenceFlags) (gpu.Fence, error) {
	if d.isDestroyed() {
		return nil, gpu.ErrDeviceDestroyed
	}
	return newFence(initial, flags), nil
}

// OpenSharedFence implements gpu.Device.
func (d *device) OpenSharedFence(h gpu.FenceHandle) (gpu.FenceView, error) {
	if d.isDestroyed() {
		return nil, gpu.ErrDeviceDestroyed
	}
	if !h.Valid() {
		return nil, gpu.ErrInvalidHandle
	}
	f, ok := resolveFence(h)
	if !ok {
		return nil, gpu.ErrInvalidHandle
	}
	return &fenceView{f: f}, nil
}

// CreateBuffer implements gpu.Device.
func (d *device) CreateBuffer(desc *gpu.BufferDescriptor) (gpu.Buffer, error) {
	if desc == nil {
		return nil, gpu.ErrNilDescriptor
	}
	if d.isDestroyed() {
		return nil, gpu.ErrDeviceDestroyed
	}
	return &buffer{label: desc.Label, data: make([]byte, desc.Size)}, nil
}

// CreateSharedHeap implements gpu.Device.
func (d *device) CreateSharedHeap(desc *gpu.HeapDescriptor) (gpu.SharedHeap, error) {
	if desc == nil {
		return nil, gpu.ErrNilDescriptor
	}
	if d.isDestroyed() {
		return nil, gpu.ErrDeviceDestroyed
	}
	return &sharedHeap{label: desc.Label, mem: make([]byte, desc.Size), owner: true}, nil
}

// OpenSharedHeap implements gpu.Device.
func (d *device) OpenSharedHeap(h gpu.HeapHandle) (gpu.SharedHeap, error) {
	if d.isDestroyed() {
		return nil, gpu.ErrDeviceDestroyed
	}
	if !h.Valid() {
		return nil, gpu.ErrInvalidHandle
	}
	owner, ok := resolveHeap(h)
	if !ok {
		return nil, gpu.ErrInvalidHandle
	}
	return &sharedHeap{label: owner.label, mem: owner.mem, owner: false}, nil
}

// CreatePlacedBuffer implements gpu.Device.
func (d *device) CreatePlacedBuffer(heap gpu.SharedHeap, offset uint64, desc *gpu.BufferDescriptor) (gpu.Buffer, error) {
	if desc == nil {
		return nil, gpu.ErrNilDescriptor
	}
	if d.isDestroyed() {
		return nil, gpu.ErrDeviceDestroyed
	}
	h, ok := heap.(*sharedHeap)
	if !ok {
		return nil, gpu.ErrInvalidHandle
	}
	if offset+desc.Size > uint64(len(h.mem)) {
		return nil, gpu.ErrOutOfRange
	}
	data := h.mem[offset : offset+desc.Size : offset+desc.Size]
	return &buffer{label: desc.Label, data: data, placed: true}, nil
}

// CreateComputePipeline implements gpu.Device.
func (d *device) CreateComputePipeline(desc *gpu.ComputePipelineDescriptor) (gpu.ComputePipeline, error) {
	if desc == nil {
		return nil, gpu.ErrNilDescriptor
	}
	if desc.Native == nil {
		return nil, ErrNoKernel
	}
	return &pipeline{label: desc.Label, native: desc.Native, blockSize: desc.BlockSize}, nil
}

// CreatePresenter implements gpu.Device.
func (d *device) CreatePresenter(desc *gpu.PresenterDescriptor) (gpu.Presenter, error) {
	if desc == nil {
		return nil, gpu.ErrNilDescriptor
	}
	if d.isDestroyed() {
		return nil, gpu.ErrDeviceDestroyed
	}
	return newPresenter(desc), nil
}

// CreateEncoder implements gpu.Device.
func (d *device) CreateEncoder(t gpu.QueueType) (gpu.CommandEncoder, error) {
	if d.isDestroyed() {
		return nil, gpu.ErrDeviceDestroyed
	}
	return &encoder{typ: t}, nil
}

// HeapAlignment implements gpu.Device.
func (d *device) HeapAlignment() uint64 { return heapAlignment }

// Drain implements gpu.Device.
func (d *device) Drain() error {
	d.mu.Lock()
	queues := make([]*queue, len(d.queues))
	copy(queues, d.queues)
	d.mu.Unlock()

	for _, q := range queues {
		if err := q.flush(); err != nil {
			return err
		}
	}
	return nil
}

// Destroy implements gpu.Device.
func (d *device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	queues := d.queues
	d.queues = nil
	d.mu.Unlock()

	for _, q := range queues {
		q.Destroy()
	}
}

func (d *device) isDestroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

func (d *device) dropQueue(q *queue) {
	d.mu.Lock()
	for i, have := range d.queues {
		if have == q {
			d.queues = append(d.queues[:i], d.queues[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
}

type pipeline struct {
	label     string
	native    gpu.NativeKernel
	blockSize uint32
}

// Destroy implements gpu.ComputePipeline.
func (p *pipeline) Destroy() {}
