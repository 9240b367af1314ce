// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gputimer

import (
	"math"
	"testing"
	"time"

	"github.com/gogpu/particles/gpu"
)

// stampQueue is a gpu.Queue stub with settable timestamp slots.
type stampQueue struct {
	stamps map[uint32]int64
	ok     bool
}

func newStampQueue(ok bool) *stampQueue {
	return &stampQueue{stamps: make(map[uint32]int64), ok: ok}
}

func (q *stampQueue) Type() gpu.QueueType                          { return gpu.QueueCompute }
func (q *stampQueue) Throttled() bool                              { return false }
func (q *stampQueue) Submit(...gpu.CommandBuffer) error            { return nil }
func (q *stampQueue) Signal(gpu.Fence, uint64) error               { return nil }
func (q *stampQueue) Wait(gpu.Waitable, uint64) error              { return nil }
func (q *stampQueue) WriteBuffer(gpu.Buffer, uint64, []byte) error { return nil }
func (q *stampQueue) ReadBuffer(gpu.Buffer, uint64, []byte) error  { return nil }
func (q *stampQueue) Destroy()                                     {}
func (q *stampQueue) TimestampNanos(slot uint32) (int64, bool) {
	if !q.ok {
		return 0, false
	}
	return q.stamps[slot], true
}

// nopEncoder records nothing; the stub queue resolves stamps directly.
type nopEncoder struct{}

func (nopEncoder) Dispatch(*gpu.DispatchDescriptor)                          {}
func (nopEncoder) CopyBuffer(gpu.Buffer, uint64, gpu.Buffer, uint64, uint64) {}
func (nopEncoder) Barrier(gpu.Buffer)                                        {}
func (nopEncoder) WriteTimestamp(uint32)                                     {}
func (nopEncoder) DrawPoints(*gpu.DrawDescriptor)                            {}
func (nopEncoder) Finish() (gpu.CommandBuffer, error)                        { return nil, nil }

func TestUpdateResolvesStampPair(t *testing.T) {
	q := newStampQueue(true)
	timer := New(q, 1)
	timer.SetName(0, "stage")

	q.stamps[0] = 0
	q.stamps[1] = int64(3 * time.Millisecond)
	timer.Update(0)

	if got := timer.Milliseconds(0); math.Abs(got-3) > 1e-9 {
		t.Errorf("Milliseconds(0) = %v, want 3", got)
	}
}

func TestTrailingWindow(t *testing.T) {
	q := newStampQueue(true)
	timer := New(q, 1)
	timer.SetName(0, "stage")

	// 40 samples of 1ms, then 20 samples of 5ms: the window must
	// forget the 1ms era completely.
	for i := 0; i < 40; i++ {
		q.stamps[0] = 0
		q.stamps[1] = int64(time.Millisecond)
		timer.Update(0)
	}
	for i := 0; i < 20; i++ {
		q.stamps[0] = 0
		q.stamps[1] = int64(5 * time.Millisecond)
		timer.Update(0)
	}

	if got := timer.Milliseconds(0); math.Abs(got-5) > 1e-9 {
		t.Errorf("Milliseconds(0) = %v, want 5 after window rollover", got)
	}
}

func TestWindowMixesRecentSamples(t *testing.T) {
	q := newStampQueue(true)
	timer := New(q, 1)
	timer.SetName(0, "stage")

	// Half the window at 2ms, half at 4ms.
	for i := 0; i < 10; i++ {
		q.stamps[0] = 0
		q.stamps[1] = int64(2 * time.Millisecond)
		timer.Update(0)
	}
	for i := 0; i < 10; i++ {
		q.stamps[0] = 0
		q.stamps[1] = int64(4 * time.Millisecond)
		timer.Update(0)
	}

	if got := timer.Milliseconds(0); math.Abs(got-3) > 1e-9 {
		t.Errorf("Milliseconds(0) = %v, want 3", got)
	}
}

func TestInvalidStampPairIgnored(t *testing.T) {
	q := newStampQueue(true)
	timer := New(q, 1)
	timer.SetName(0, "stage")

	q.stamps[0] = 100
	q.stamps[1] = 100
	timer.Update(0)
	if got := timer.Milliseconds(0); got != 0 {
		t.Errorf("Milliseconds(0) = %v after degenerate pair, want 0", got)
	}
}

func TestHostFallback(t *testing.T) {
	q := newStampQueue(false)
	timer := New(q, 1)
	timer.SetName(0, "stage")

	// Update before any Begin must not record a sample.
	timer.Update(0)
	if got := timer.Milliseconds(0); got != 0 {
		t.Errorf("Milliseconds(0) = %v before Begin, want 0", got)
	}

	timer.Begin(nopEncoder{}, 0)
	time.Sleep(2 * time.Millisecond)
	timer.End(nopEncoder{}, 0)
	timer.Update(0)

	if got := timer.Milliseconds(0); got < 1 {
		t.Errorf("Milliseconds(0) = %v, want >= 1 from host clock", got)
	}
}

func TestTimesSkipsUnnamedRegions(t *testing.T) {
	q := newStampQueue(true)
	timer := New(q, 2)
	timer.SetName(0, "named")

	q.stamps[0] = 0
	q.stamps[1] = int64(time.Millisecond)
	timer.Update(0)

	times := timer.Times()
	if len(times) != 1 {
		t.Fatalf("len(Times()) = %d, want 1", len(times))
	}
	if _, ok := times["named"]; !ok {
		t.Errorf("Times() = %v, want key %q", times, "named")
	}
	if timer.Name(0) != "named" {
		t.Errorf("Name(0) = %q, want %q", timer.Name(0), "named")
	}
}
