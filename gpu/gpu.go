// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

// Backend enumerates adapters and opens devices. Backends are
// registered in the backend subpackage and selected by name or
// priority.
type Backend interface {
	// Name returns the backend identifier (e.g., "virtual", "wgpu").
	Name() string

	// Init initializes the backend. It must be called before any
	// other method.
	Init() error

	// Close releases all backend resources. Devices opened from the
	// backend must be destroyed first.
	Close()

	// Adapters returns the usable adapters, in enumeration order.
	// Returns ErrNoAdapters when none exist.
	Adapters() ([]Adapter, error)

	// OpenDevice creates a device on the given adapter.
	OpenDevice(a Adapter) (Device, error)

	// SharedHeaps reports whether devices from this backend can
	// share heaps and fences across adapters. Backends without this
	// capability only serve single-adapter configurations.
	SharedHeaps() bool
}

// Adapter is one physical or virtual GPU exposed by a backend.
// Adapter values are comparable: the same enumeration slot yields the
// same value, which is how the pipeline detects that compute and
// render target one physical device.
type Adapter interface {
	// Info describes the adapter.
	Info() AdapterInfo
}

// Device is one GPU context. It owns queues, fences, buffers, and
// heaps. A device is destroyed and fully recreated, never mutated,
// when its adapter assignment changes.
type Device interface {
	// Adapter returns the adapter this device was opened on.
	Adapter() Adapter

	// CreateQueue creates a command queue of the given role.
	// When throttle is set and the adapter supports the vendor
	// command-queue extension, the queue is created through the
	// extension path; the choice is invisible to all queue users.
	// Requesting throttle on an unsupported adapter returns
	// ErrThrottleUnsupported; callers negotiate via the extension
	// package, which falls back silently.
	CreateQueue(t QueueType, throttle bool) (Queue, error)

	// CreateFence creates a fence starting at the given value.
	CreateFence(initial uint64, flags FenceFlags) (Fence, error)

	// OpenSharedFence resolves an exported fence handle to a
	// wait-only view on this device.
	OpenSharedFence(h FenceHandle) (FenceView, error)

	// CreateBuffer creates a device-local buffer.
	CreateBuffer(desc *BufferDescriptor) (Buffer, error)

	// CreateSharedHeap allocates a heap flagged for cross-adapter
	// sharing. Returns ErrSharedUnsupported on backends without the
	// capability.
	CreateSharedHeap(desc *HeapDescriptor) (SharedHeap, error)

	// OpenSharedHeap resolves an exported heap handle to a view
	// backed by the exporter's physical memory. Fails with
	// ErrInvalidHandle if the exporting heap has been destroyed.
	OpenSharedHeap(h HeapHandle) (SharedHeap, error)

	// CreatePlacedBuffer creates a buffer aliasing heap memory at the
	// given offset. Placed buffers on an imported heap read and write
	// the exporter's memory.
	CreatePlacedBuffer(heap SharedHeap, offset uint64, desc *BufferDescriptor) (Buffer, error)

	// CreateComputePipeline compiles a compute pipeline.
	CreateComputePipeline(desc *ComputePipelineDescriptor) (ComputePipeline, error)

	// CreatePresenter creates a presentation surface bound to the
	// descriptor's queue.
	CreatePresenter(desc *PresenterDescriptor) (Presenter, error)

	// CreateEncoder begins recording a command buffer for queues of
	// the given role.
	CreateEncoder(t QueueType) (CommandEncoder, error)

	// HeapAlignment returns the placement alignment for buffers in
	// shared heaps.
	HeapAlignment() uint64

	// Drain blocks the calling goroutine until all work previously
	// enqueued on every queue of this device has retired. It must be
	// called before destroying resources that may be in flight and
	// before any adapter or extension reconfiguration.
	Drain() error

	// Destroy releases the device and everything it owns. The device
	// must be drained first.
	Destroy()
}

// Queue is one hardware command queue. Submissions execute in order;
// Wait entries gate all subsequently submitted work without involving
// the host.
type Queue interface {
	// Type returns the queue role.
	Type() QueueType

	// Throttled reports whether the queue was created through the
	// vendor throttling extension.
	Throttled() bool

	// Submit enqueues recorded command buffers for execution.
	Submit(bufs ...CommandBuffer) error

	// Signal enqueues a fence signal: the fence reaches value once
	// all prior work on this queue has retired.
	Signal(f Fence, value uint64) error

	// Wait enqueues a GPU-side wait: work submitted after this call
	// does not begin executing until w has completed value. The host
	// does not block.
	Wait(w Waitable, value uint64) error

	// WriteBuffer schedules a host-to-device write ordered before
	// subsequent submissions on this queue.
	WriteBuffer(b Buffer, offset uint64, data []byte) error

	// ReadBuffer blocks until previously submitted work on this queue
	// has retired, then reads buffer contents into dst.
	ReadBuffer(b Buffer, offset uint64, dst []byte) error

	// TimestampNanos returns the resolved value of a timestamp slot
	// written via CommandEncoder.WriteTimestamp, and whether the
	// backend records timestamps at all.
	TimestampNanos(slot uint32) (int64, bool)

	// Destroy releases the queue. Pending work must be drained first.
	Destroy()
}

// CommandEncoder records commands for one submission.
//
// Encoders are not safe for concurrent use. Finish completes the
// recording; the encoder must not be reused afterwards.
type CommandEncoder interface {
	// Dispatch records a compute dispatch.
	Dispatch(desc *DispatchDescriptor)

	// CopyBuffer records a byte copy between buffers.
	CopyBuffer(dst Buffer, dstOffset uint64, src Buffer, srcOffset, size uint64)

	// Barrier records a write-visibility barrier on a buffer,
	// informing the driver that writers are done so caches can be
	// synchronized across queues and adapters.
	Barrier(b Buffer)

	// WriteTimestamp records the GPU clock into a timestamp slot.
	WriteTimestamp(slot uint32)

	// DrawPoints records a point-list draw.
	DrawPoints(desc *DrawDescriptor)

	// Finish ends recording and returns the command buffer.
	Finish() (CommandBuffer, error)
}

// CommandBuffer is a finished recording, opaque to everything but the
// queue it is submitted to.
type CommandBuffer interface {
	// QueueType returns the queue role the buffer was recorded for.
	QueueType() QueueType
}

// Buffer is a GPU buffer resource.
type Buffer interface {
	// Size returns the buffer size in bytes.
	Size() uint64

	// Label returns the debug label.
	Label() string

	// Destroy releases the buffer.
	Destroy()
}

// SharedHeap is a cross-adapter shareable memory region. The creating
// device owns it; importers hold borrowed views.
type SharedHeap interface {
	// Size returns the heap size in bytes.
	Size() uint64

	// Handle exports the heap for another device to open. Only the
	// owning side may export.
	Handle() (HeapHandle, error)

	// Destroy releases the heap (owner) or the view (importer).
	// Destroying the owner's heap invalidates importer views and the
	// exported handle.
	Destroy()
}

// Presenter is a presentation surface: a ring of back buffers. Frame
// pacing is the caller's job; the render stage blocks on its own fence
// before reusing a back buffer.
type Presenter interface {
	// FrameIndex returns the index of the current back buffer.
	FrameIndex() uint32

	// BufferCount returns the number of back buffers.
	BufferCount() uint32

	// TearingSupported reports whether tearing presents are allowed
	// when vsync is off.
	TearingSupported() bool

	// Present flips to the next back buffer.
	Present(vsync, allowTearing bool) error

	// Destroy releases the surface.
	Destroy()
}
