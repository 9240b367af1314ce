// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// QueueType identifies one of the three hardware queue roles.
type QueueType int

const (
	// QueueDirect executes graphics, compute, and copy work.
	QueueDirect QueueType = iota

	// QueueCompute executes compute and copy work.
	QueueCompute

	// QueueCopy executes copy work only. A dedicated copy queue
	// overlaps transfers with compute and graphics work.
	QueueCopy
)

// String returns the string representation of QueueType.
func (t QueueType) String() string {
	switch t {
	case QueueDirect:
		return "Direct"
	case QueueCompute:
		return "Compute"
	case QueueCopy:
		return "Copy"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// AdapterInfo describes one enumerated adapter.
type AdapterInfo struct {
	// Name is the adapter's human-readable description.
	Name string

	// Vendor is the adapter vendor identifier.
	Vendor string

	// UMA reports whether the adapter uses unified memory (system
	// memory is local adapter memory). UMA adapters are preferred for
	// the compute role: their output is already in system memory,
	// which is where cross-adapter heaps live.
	UMA bool

	// Throttle reports whether the adapter supports the vendor
	// command-queue throttling extension.
	Throttle bool
}

// String implements fmt.Stringer.
func (i AdapterInfo) String() string {
	s := i.Name
	if i.Vendor != "" {
		s += " (" + i.Vendor + ")"
	}
	if i.UMA {
		s += " [uma]"
	}
	return s
}

// HeapHandle is an exported reference to a cross-adapter shared heap.
// It stands in for an OS handle: a small value that a second device
// can resolve to the same physical memory. The zero value is invalid.
type HeapHandle struct {
	token string
}

// Valid reports whether the handle refers to an export.
func (h HeapHandle) Valid() bool { return h.token != "" }

// String returns the handle token for logging.
func (h HeapHandle) String() string { return h.token }

// NewHeapHandle wraps a backend token. Backends call this; pipeline
// code only passes handles around.
func NewHeapHandle(token string) HeapHandle { return HeapHandle{token: token} }

// Token returns the backend token.
func (h HeapHandle) Token() string { return h.token }

// FenceHandle is an exported reference to a shareable fence.
// The zero value is invalid.
type FenceHandle struct {
	token string
}

// Valid reports whether the handle refers to an export.
func (h FenceHandle) Valid() bool { return h.token != "" }

// String returns the handle token for logging.
func (h FenceHandle) String() string { return h.token }

// NewFenceHandle wraps a backend token.
func NewFenceHandle(token string) FenceHandle { return FenceHandle{token: token} }

// Token returns the backend token.
func (h FenceHandle) Token() string { return h.token }

// SharedHandles is the complete cross-device contract passed from the
// producing (compute) side to the consuming (render) side at share
// time. Ownership: the exporter owns the heap and fence; the importer
// borrows, and must release its views before the exporter is
// destroyed.
type SharedHandles struct {
	// Heap resolves to the cross-adapter heap on the importing device.
	Heap HeapHandle

	// Fence resolves to the producer's shared fence. The importer may
	// only wait on it, never signal it.
	Fence FenceHandle

	// AlignedStride is the placement-aligned size of one buffer slot
	// within the heap. Slot i begins at offset i*AlignedStride.
	AlignedStride uint64

	// BufferIndex is the producer's buffer index at share time, so the
	// consumer's view of the ping-pong phase starts in step.
	BufferIndex uint32
}

// BufferDescriptor describes parameters for creating a buffer.
type BufferDescriptor struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage specifies how the buffer will be used.
	Usage gputypes.BufferUsage
}

// HeapDescriptor describes a cross-adapter shared heap.
type HeapDescriptor struct {
	// Label is an optional debug label.
	Label string

	// Size is the total heap size in bytes. Callers size heaps as
	// slots*alignedStride where alignedStride respects the device's
	// HeapAlignment.
	Size uint64
}

// AccessMode describes how a dispatch binding accesses its buffer.
type AccessMode int

const (
	// BindReadOnly binds a buffer for reading.
	BindReadOnly AccessMode = iota

	// BindReadWrite binds a buffer for reading and writing.
	BindReadWrite
)

// Binding attaches one buffer to a dispatch.
type Binding struct {
	Buffer Buffer
	Access AccessMode
}

// NativeBinding is the executable-backend view of a Binding: the
// buffer's backing bytes with the declared access mode.
type NativeBinding struct {
	Data   []byte
	Access AccessMode
}

// NativeKernel is a CPU implementation of a compute kernel, executed
// by backends without shader hardware. Bindings appear in the order
// they were declared on the dispatch.
type NativeKernel func(groups [3]uint32, params []uint32, paramsF []float32, bindings []NativeBinding)

// ComputePipelineDescriptor describes a compute pipeline. Backends use
// whichever representation of the kernel they can execute: WGSL for
// shader hardware, Native for software execution. The pipeline is
// opaque to the rest of the system.
type ComputePipelineDescriptor struct {
	// Label is an optional debug label.
	Label string

	// WGSL is the kernel source for shader-capable backends.
	WGSL string

	// EntryPoint is the WGSL entry function name.
	EntryPoint string

	// Native is the CPU implementation for software backends.
	Native NativeKernel

	// Layout declares the kernel's buffer bindings in dispatch order.
	// Shader backends bake it into the pipeline; dispatch Bindings
	// must match it.
	Layout []AccessMode

	// BlockSize is the kernel's thread-group width. Dispatch group
	// counts are computed as ceil(activeCount/BlockSize).
	BlockSize uint32
}

// ComputePipeline is a compiled compute pipeline.
type ComputePipeline interface {
	// Destroy releases pipeline resources.
	Destroy()
}

// DispatchDescriptor describes one compute dispatch.
type DispatchDescriptor struct {
	Pipeline ComputePipeline

	// Groups is the thread-group grid.
	Groups [3]uint32

	// Bindings are the buffers visible to the kernel, in declaration
	// order.
	Bindings []Binding

	// Params and ParamsF are small root constants passed to the
	// kernel (active count, frame constants).
	Params  []uint32
	ParamsF []float32
}

// DrawDescriptor describes one point-list draw sourcing particle
// positions from a buffer.
type DrawDescriptor struct {
	// Positions is the buffer sampled by the draw.
	Positions Buffer

	// Count is the number of particles drawn.
	Count uint32

	// Stride is the per-particle byte stride in Positions.
	Stride uint32

	// Target receives the frame.
	Target Presenter

	// ViewProj is the row-major view-projection matrix applied to
	// positions. The zero matrix selects the target's default view.
	ViewProj [16]float32

	// Size is the point size in pixels. Zero draws single pixels.
	Size float32

	// Intensity scales the additive brightness contributed by each
	// particle. Zero selects the target's default.
	Intensity float32
}

// PresenterDescriptor describes a presentation surface. The surface is
// bound to the identity of the queue that presents to it: replacing
// the queue requires recreating the presenter.
type PresenterDescriptor struct {
	// Label is an optional debug label.
	Label string

	// Queue is the direct queue the presenter is bound to.
	Queue Queue

	// BufferCount is the number of back buffers.
	BufferCount uint32

	// Width and Height are the surface dimensions.
	Width, Height uint32
}
