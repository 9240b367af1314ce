// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package virtual

import (
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/particles/gpu"
)

// exports is the process-wide handle table. Exported heap and fence
// handles behave like OS handles: any device, on any virtual backend
// instance, can resolve them until the exporter destroys the resource.
var exports = struct {
	mu     sync.Mutex
	heaps  map[string]*sharedHeap
	fences map[string]*fence
}{
	heaps:  make(map[string]*sharedHeap),
	fences: make(map[string]*fence),
}

func exportHeap(h *sharedHeap) gpu.HeapHandle {
	token := "vheap-" + uuid.NewString()
	exports.mu.Lock()
	exports.heaps[token] = h
	exports.mu.Unlock()
	return gpu.NewHeapHandle(token)
}

func resolveHeap(handle gpu.HeapHandle) (*sharedHeap, bool) {
	exports.mu.Lock()
	defer exports.mu.Unlock()
	h, ok := exports.heaps[handle.Token()]
	return h, ok
}

func revokeHeap(handle gpu.HeapHandle) {
	exports.mu.Lock()
	delete(exports.heaps, handle.Token())
	exports.mu.Unlock()
}

func exportFence(f *fence) gpu.FenceHandle {
	token := "vfence-" + uuid.NewString()
	exports.mu.Lock()
	exports.fences[token] = f
	exports.mu.Unlock()
	return gpu.NewFenceHandle(token)
}

func resolveFence(handle gpu.FenceHandle) (*fence, bool) {
	exports.mu.Lock()
	defer exports.mu.Unlock()
	f, ok := exports.fences[handle.Token()]
	return f, ok
}

func revokeFence(handle gpu.FenceHandle) {
	exports.mu.Lock()
	delete(exports.fences, handle.Token())
	exports.mu.Unlock()
}
