// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import "time"

// Timeline pairs a queue with a fence and tracks the last value this
// side enqueued a signal for. It captures the per-stage bookkeeping
// the pipeline repeats three times: compute, copy, and render each own
// one timeline, and each peeks at the others' through fence views.
//
// Timeline is not safe for concurrent use; each stage drives its own
// from a single goroutine.
type Timeline struct {
	queue Queue
	fence Fence
	value uint64
}

// NewTimeline builds a timeline over the queue and fence, seeded with
// the fence's initial value as the last signaled value.
func NewTimeline(q Queue, f Fence, initial uint64) *Timeline {
	return &Timeline{queue: q, fence: f, value: initial}
}

// Queue returns the underlying queue.
func (t *Timeline) Queue() Queue { return t.queue }

// Fence returns the underlying fence.
func (t *Timeline) Fence() Fence { return t.fence }

// Value returns the last value a signal was enqueued for. The fence
// itself may lag behind while work is in flight.
func (t *Timeline) Value() uint64 { return t.value }

// Completed returns the highest value the fence has reached.
func (t *Timeline) Completed() uint64 { return t.fence.Completed() }

// Signal enqueues the next signal on the queue and returns the value
// it will reach.
func (t *Timeline) Signal() (uint64, error) {
	next := t.value + 1
	if err := t.queue.Signal(t.fence, next); err != nil {
		return 0, err
	}
	t.value = next
	return next, nil
}

// WaitFor enqueues a GPU-side wait on the timeline's queue: work
// submitted afterwards does not start until w reaches value.
func (t *Timeline) WaitFor(w Waitable, value uint64) error {
	return t.queue.Wait(w, value)
}

// HostWait blocks the host until the fence reaches value.
func (t *Timeline) HostWait(value uint64, timeout time.Duration) error {
	return t.fence.Wait(value, timeout)
}

// Drain enqueues one more signal and blocks until it retires, leaving
// the queue provably idle.
func (t *Timeline) Drain(timeout time.Duration) error {
	v, err := t.Signal()
	if err != nil {
		return err
	}
	return t.fence.Wait(v, timeout)
}

// Destroy releases the fence and queue.
func (t *Timeline) Destroy() {
	t.fence.Destroy()
	t.queue.Destroy()
}
