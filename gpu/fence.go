// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import "time"

// FenceFlags select fence creation options.
type FenceFlags uint32

const (
	// FenceShared marks a fence exportable to other devices. Only
	// shared fences can be opened via Device.OpenSharedFence.
	FenceShared FenceFlags = 1 << iota
)

// Waitable is anything a queue can insert a GPU-side wait on, and
// anything whose completed value the host can poll. Fences and fence
// views implement it.
type Waitable interface {
	// Completed returns the highest value the underlying fence has
	// reached. Monotonic.
	Completed() uint64
}

// Fence is a monotonic synchronization timeline owned by one device.
// Values only ever increase; a value, once reached, stays reached.
// Signals come from queues, never from the host.
type Fence interface {
	Waitable

	// Wait blocks the host until the fence reaches value or the
	// timeout expires, in which case it returns ErrWaitTimeout.
	Wait(value uint64, timeout time.Duration) error

	// Handle exports the fence for another device to open. Returns
	// ErrFenceNotShared unless the fence was created with
	// FenceShared.
	Handle() (FenceHandle, error)

	// Destroy releases the fence and invalidates any exported handle.
	Destroy()
}

// FenceView is a wait-only view of another device's shared fence. A
// view can gate queues and block the host but cannot be signaled.
type FenceView interface {
	Waitable

	// Wait blocks the host until the fence reaches value or the
	// timeout expires.
	Wait(value uint64, timeout time.Duration) error

	// Release drops the view. The owning fence is unaffected.
	Release()
}

// HostWait is a deferred host-side block on a fence value. The render
// stage returns one per frame so the caller decides where in the loop
// the single CPU stall lands.
type HostWait struct {
	fence Waitable
	wait  func(value uint64, timeout time.Duration) error
	value uint64
}

// NewHostWait builds a HostWait on the given fence value. The fence
// may be a Fence or FenceView; both expose the same Wait shape, passed
// here explicitly because Waitable does not carry it.
func NewHostWait(w Waitable, wait func(value uint64, timeout time.Duration) error, value uint64) *HostWait {
	return &HostWait{fence: w, wait: wait, value: value}
}

// Value returns the fence value the wait targets.
func (h *HostWait) Value() uint64 { return h.value }

// Done reports whether the target value has already been reached,
// without blocking.
func (h *HostWait) Done() bool { return h.fence.Completed() >= h.value }

// Wait blocks until the fence reaches the target value or the timeout
// expires.
func (h *HostWait) Wait(timeout time.Duration) error {
	if h.Done() {
		return nil
	}
	return h.wait(h.value, timeout)
}
