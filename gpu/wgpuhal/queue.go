// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpuhal

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/particles/gpu"
)

// fence wraps a hal.Fence. The HAL exposes no completed-value query,
// so the fence tracks the highest value a successful wait has
// observed; Completed is that lower bound.
type fence struct {
	dev   *device
	hal   hal.Fence
	known atomic.Uint64
}

// Completed implements gpu.Waitable.
func (f *fence) Completed() uint64 { return f.known.Load() }

// Wait implements gpu.Fence.
func (f *fence) Wait(value uint64, timeout time.Duration) error {
	if f.known.Load() >= value {
		return nil
	}
	ok, err := f.dev.hal.Wait(f.hal, value, timeout)
	if err != nil {
		return fmt.Errorf("wgpuhal: fence wait: %w", err)
	}
	if !ok {
		return gpu.ErrWaitTimeout
	}
	f.observe(value)
	return nil
}

// observe raises the known completed value.
func (f *fence) observe(value uint64) {
	for {
		cur := f.known.Load()
		if cur >= value || f.known.CompareAndSwap(cur, value) {
			return
		}
	}
}

// Handle implements gpu.Fence.
func (f *fence) Handle() (gpu.FenceHandle, error) {
	return gpu.FenceHandle{}, gpu.ErrFenceNotShared
}

// Destroy implements gpu.Fence.
func (f *fence) Destroy() {
	f.dev.hal.DestroyFence(f.hal)
}

// queue is a role-tagged view of the device's single hardware queue.
// GPU-side waits are deferred and resolved just before the next
// submission so Wait itself never blocks the caller.
type queue struct {
	dev *device
	typ gpu.QueueType

	mu      sync.Mutex
	pending []pendingWait
}

type pendingWait struct {
	f     *fence
	value uint64
}

// Type implements gpu.Queue.
func (q *queue) Type() gpu.QueueType { return q.typ }

// Throttled implements gpu.Queue.
func (q *queue) Throttled() bool { return false }

// Wait implements gpu.Queue. The wait is staged and enforced before
// the next submission on this role.
func (q *queue) Wait(w gpu.Waitable, value uint64) error {
	f, ok := w.(*fence)
	if !ok {
		return gpu.ErrInvalidHandle
	}
	q.mu.Lock()
	q.pending = append(q.pending, pendingWait{f: f, value: value})
	q.mu.Unlock()
	return nil
}

// resolveWaits blocks until all staged waits are satisfied. With a
// single hardware queue the signaling submissions are already ahead of
// us, so this only ever stalls on genuinely in-flight work.
func (q *queue) resolveWaits() error {
	q.mu.Lock()
	waits := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, w := range waits {
		if err := w.f.Wait(w.value, fenceTimeout); err != nil {
			return err
		}
	}
	return nil
}

// Submit implements gpu.Queue.
func (q *queue) Submit(bufs ...gpu.CommandBuffer) error {
	if err := q.resolveWaits(); err != nil {
		return err
	}
	halBufs := make([]hal.CommandBuffer, 0, len(bufs))
	for _, b := range bufs {
		cb, ok := b.(*commandBuffer)
		if !ok {
			return gpu.ErrInvalidHandle
		}
		halBufs = append(halBufs, cb.hal)
	}
	if err := q.dev.queue.Submit(halBufs, nil, 0); err != nil {
		return fmt.Errorf("wgpuhal: submit: %w", err)
	}
	return nil
}

// Signal implements gpu.Queue. An empty submission carries the fence
// signal so it lands behind all previously submitted work.
func (q *queue) Signal(f gpu.Fence, value uint64) error {
	wf, ok := f.(*fence)
	if !ok {
		return gpu.ErrInvalidHandle
	}
	if err := q.resolveWaits(); err != nil {
		return err
	}
	if err := q.dev.queue.Submit(nil, wf.hal, value); err != nil {
		return fmt.Errorf("wgpuhal: signal: %w", err)
	}
	return nil
}

// WriteBuffer implements gpu.Queue.
func (q *queue) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) error {
	wb, ok := b.(*buffer)
	if !ok {
		return gpu.ErrInvalidHandle
	}
	q.dev.queue.WriteBuffer(wb.hal, offset, data)
	return nil
}

// ReadBuffer implements gpu.Queue.
//
// TODO: implement via a MappedAtCreation staging buffer once the HAL
// exposes buffer mapping; until then readback is virtual-backend only.
func (q *queue) ReadBuffer(b gpu.Buffer, offset uint64, dst []byte) error {
	return ErrReadbackUnsupported
}

// TimestampNanos implements gpu.Queue. The HAL has no timestamp
// queries; callers fall back to host timing.
func (q *queue) TimestampNanos(slot uint32) (int64, bool) {
	return 0, false
}

// Destroy implements gpu.Queue. The hardware queue belongs to the
// device.
func (q *queue) Destroy() {}
