// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package virtual

import (
	"sync"

	"github.com/gogpu/particles/gpu"
)

// buffer is backed by a plain byte slice. Placed buffers alias a
// slice of their heap's memory, so an importing device's placed
// buffer and the exporting device's placed buffer literally share
// bytes, the same way placed resources on a cross-adapter heap share
// physical pages.
type buffer struct {
	label  string
	data   []byte
	placed bool

	mu        sync.Mutex
	touched   bool
	touchedLo uint64
	touchedHi uint64
}

// Size implements gpu.Buffer.
func (b *buffer) Size() uint64 { return uint64(len(b.data)) }

// Label implements gpu.Buffer.
func (b *buffer) Label() string { return b.label }

// Destroy implements gpu.Buffer. Placed buffers leave heap memory
// alone.
func (b *buffer) Destroy() {
	if !b.placed {
		b.data = nil
	}
}

func (b *buffer) markTouched(lo, hi uint64) {
	b.mu.Lock()
	if !b.touched || lo < b.touchedLo {
		b.touchedLo = lo
	}
	if !b.touched || hi > b.touchedHi {
		b.touchedHi = hi
	}
	b.touched = true
	b.mu.Unlock()
}

// TouchedRange reports the byte range written to the buffer by
// dispatches, copies, and queue writes since creation or the last
// ResetTouched. Debug hook for tests; returns ok=false for buffers of
// other backends.
func TouchedRange(gb gpu.Buffer) (lo, hi uint64, ok bool) {
	b, isVirtual := gb.(*buffer)
	if !isVirtual {
		return 0, 0, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.touched {
		return 0, 0, true
	}
	return b.touchedLo, b.touchedHi, true
}

// ResetTouched clears the buffer's touched range.
func ResetTouched(gb gpu.Buffer) {
	if b, isVirtual := gb.(*buffer); isVirtual {
		b.mu.Lock()
		b.touched = false
		b.touchedLo, b.touchedHi = 0, 0
		b.mu.Unlock()
	}
}

// sharedHeap is a cross-adapter heap: a flat allocation placed
// buffers carve slices out of. The owner allocates; importers alias.
type sharedHeap struct {
	label string
	mem   []byte
	owner bool

	mu        sync.Mutex
	handle    gpu.HeapHandle
	destroyed bool
}

// Size implements gpu.SharedHeap.
func (h *sharedHeap) Size() uint64 { return uint64(len(h.mem)) }

// Handle implements gpu.SharedHeap.
func (h *sharedHeap) Handle() (gpu.HeapHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.owner {
		return gpu.HeapHandle{}, gpu.ErrInvalidHandle
	}
	if h.destroyed {
		return gpu.HeapHandle{}, gpu.ErrInvalidHandle
	}
	if !h.handle.Valid() {
		h.handle = exportHeap(h)
	}
	return h.handle, nil
}

// Destroy implements gpu.SharedHeap.
func (h *sharedHeap) Destroy() {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.destroyed = true
	handle := h.handle
	h.mu.Unlock()

	if h.owner && handle.Valid() {
		revokeHeap(handle)
	}
}
