// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package virtual

import (
	"sync"
	"time"

	"github.com/gogpu/particles/gpu"
)

// fence is a monotonic timeline value guarded by a condition
// variable. Queue workers signal it; hosts and other queue workers
// wait on it.
type fence struct {
	mu        sync.Mutex
	cond      *sync.Cond
	value     uint64
	shared    bool
	handle    gpu.FenceHandle
	destroyed bool
}

func newFence(initial uint64, flags gpu.FenceFlags) *fence {
	f := &fence{
		value:  initial,
		shared: flags&gpu.FenceShared != 0,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// signalTo advances the fence. Values never move backwards.
func (f *fence) signalTo(value uint64) {
	f.mu.Lock()
	if value > f.value {
		f.value = value
		f.cond.Broadcast()
	}
	f.mu.Unlock()
}

// Completed implements gpu.Waitable.
func (f *fence) Completed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Wait implements gpu.Fence.
func (f *fence) Wait(value uint64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	// The timer takes the lock before broadcasting so a waiter can
	// never miss the wakeup between its deadline check and cond.Wait.
	timer := time.AfterFunc(timeout, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer timer.Stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for f.value < value {
		if f.destroyed {
			return gpu.ErrInvalidHandle
		}
		if !time.Now().Before(deadline) {
			return gpu.ErrWaitTimeout
		}
		f.cond.Wait()
	}
	return nil
}

// Handle implements gpu.Fence.
func (f *fence) Handle() (gpu.FenceHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.shared {
		return gpu.FenceHandle{}, gpu.ErrFenceNotShared
	}
	if f.destroyed {
		return gpu.FenceHandle{}, gpu.ErrInvalidHandle
	}
	if !f.handle.Valid() {
		f.handle = exportFence(f)
	}
	return f.handle, nil
}

// Destroy implements gpu.Fence. Any exported handle stops resolving
// and blocked waiters are released with an error.
func (f *fence) Destroy() {
	f.mu.Lock()
	if f.destroyed {
		f.mu.Unlock()
		return
	}
	f.destroyed = true
	handle := f.handle
	f.cond.Broadcast()
	f.mu.Unlock()

	if handle.Valid() {
		revokeFence(handle)
	}
}

// fenceView is a wait-only alias of a fence owned by another device.
type fenceView struct {
	f *fence
}

// Completed implements gpu.Waitable.
func (v *fenceView) Completed() uint64 { return v.f.Completed() }

// Wait implements gpu.FenceView.
func (v *fenceView) Wait(value uint64, timeout time.Duration) error {
	return v.f.Wait(value, timeout)
}

// Release implements gpu.FenceView.
func (v *fenceView) Release() {}
