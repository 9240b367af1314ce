// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package virtual

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/particles/gpu"
)

// queueWaitTimeout bounds GPU-side waits executed by queue workers. A
// correct frame protocol never gets near it; hitting it means a fence
// value was skipped and the queue reports the error instead of
// hanging forever.
const queueWaitTimeout = 10 * time.Second

// ErrQueueRole is returned when a command buffer is submitted to a
// queue that cannot execute its commands.
var ErrQueueRole = errors.New("virtual: command buffer not executable on this queue")

type op interface{}

type opSubmit struct {
	cb *commandBuffer
}

type opSignal struct {
	f     *fence
	value uint64
}

type opWait struct {
	w     gpu.Waitable
	value uint64
}

type opWrite struct {
	b      *buffer
	offset uint64
	data   []byte
}

type opRead struct {
	b      *buffer
	offset uint64
	dst    []byte
	done   chan struct{}
}

type opFlush struct {
	done chan struct{}
}

// queue executes ops on a dedicated goroutine, strictly in submission
// order. An opWait blocks the worker, not the host, which is exactly
// the hardware contract: later submissions on the same queue are
// gated, other queues keep running.
type queue struct {
	dev       *device
	typ       gpu.QueueType
	throttled bool

	mu     sync.Mutex
	cond   *sync.Cond
	ops    []op
	closed bool
	err    error

	tsMu       sync.Mutex
	timestamps map[uint32]int64

	done chan struct{}
}

func newQueue(d *device, t gpu.QueueType, throttled bool) *queue {
	q := &queue{
		dev:        d,
		typ:        t,
		throttled:  throttled,
		timestamps: make(map[uint32]int64),
		done:       make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Type implements gpu.Queue.
func (q *queue) Type() gpu.QueueType { return q.typ }

// Throttled implements gpu.Queue.
func (q *queue) Throttled() bool { return q.throttled }

func (q *queue) enqueue(o op) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return gpu.ErrQueueDestroyed
	}
	if q.err != nil {
		return q.err
	}
	q.ops = append(q.ops, o)
	q.cond.Signal()
	return nil
}

// Submit implements gpu.Queue.
func (q *queue) Submit(bufs ...gpu.CommandBuffer) error {
	for _, b := range bufs {
		cb, ok := b.(*commandBuffer)
		if !ok {
			return fmt.Errorf("virtual: %w", ErrQueueRole)
		}
		if !q.accepts(cb.typ) {
			return fmt.Errorf("virtual: %s buffer on %s queue: %w", cb.typ, q.typ, ErrQueueRole)
		}
		if err := q.enqueue(opSubmit{cb: cb}); err != nil {
			return err
		}
	}
	return nil
}

// accepts reports whether this queue's role can execute work recorded
// for role t. Direct subsumes compute subsumes copy.
func (q *queue) accepts(t gpu.QueueType) bool {
	switch q.typ {
	case gpu.QueueDirect:
		return true
	case gpu.QueueCompute:
		return t == gpu.QueueCompute || t == gpu.QueueCopy
	case gpu.QueueCopy:
		return t == gpu.QueueCopy
	}
	return false
}

// Signal implements gpu.Queue.
func (q *queue) Signal(f gpu.Fence, value uint64) error {
	vf, ok := f.(*fence)
	if !ok {
		return gpu.ErrInvalidHandle
	}
	return q.enqueue(opSignal{f: vf, value: value})
}

// Wait implements gpu.Queue.
func (q *queue) Wait(w gpu.Waitable, value uint64) error {
	return q.enqueue(opWait{w: w, value: value})
}

// WriteBuffer implements gpu.Queue.
func (q *queue) WriteBuffer(b gpu.Buffer, offset uint64, data []byte) error {
	vb, ok := b.(*buffer)
	if !ok {
		return gpu.ErrInvalidHandle
	}
	if offset+uint64(len(data)) > vb.Size() {
		return gpu.ErrOutOfRange
	}
	staged := make([]byte, len(data))
	copy(staged, data)
	return q.enqueue(opWrite{b: vb, offset: offset, data: staged})
}

// ReadBuffer implements gpu.Queue.
func (q *queue) ReadBuffer(b gpu.Buffer, offset uint64, dst []byte) error {
	vb, ok := b.(*buffer)
	if !ok {
		return gpu.ErrInvalidHandle
	}
	if offset+uint64(len(dst)) > vb.Size() {
		return gpu.ErrOutOfRange
	}
	done := make(chan struct{})
	if err := q.enqueue(opRead{b: vb, offset: offset, dst: dst, done: done}); err != nil {
		return err
	}
	<-done
	return q.lastErr()
}

// TimestampNanos implements gpu.Queue.
func (q *queue) TimestampNanos(slot uint32) (int64, bool) {
	q.tsMu.Lock()
	defer q.tsMu.Unlock()
	ns, ok := q.timestamps[slot]
	if !ok {
		return 0, true
	}
	return ns, true
}

// flush blocks until every op enqueued so far has executed.
func (q *queue) flush() error {
	done := make(chan struct{})
	if err := q.enqueue(opFlush{done: done}); err != nil {
		return err
	}
	<-done
	return q.lastErr()
}

func (q *queue) lastErr() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Destroy implements gpu.Queue. Pending ops run to completion before
// the worker exits.
func (q *queue) Destroy() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()

	<-q.done
	q.dev.dropQueue(q)
}

func (q *queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.ops) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.ops) == 0 {
			q.mu.Unlock()
			return
		}
		o := q.ops[0]
		q.ops = q.ops[1:]
		q.mu.Unlock()

		if err := q.execute(o); err != nil {
			q.mu.Lock()
			if q.err == nil {
				q.err = err
			}
			q.mu.Unlock()
		}
	}
}

func (q *queue) execute(o op) error {
	switch o := o.(type) {
	case opWait:
		return waitValue(o.w, o.value)
	case opSignal:
		o.f.signalTo(o.value)
		return nil
	case opWrite:
		copy(o.b.data[o.offset:], o.data)
		o.b.markTouched(o.offset, o.offset+uint64(len(o.data)))
		return nil
	case opRead:
		copy(o.dst, o.b.data[o.offset:])
		close(o.done)
		return nil
	case opFlush:
		close(o.done)
		return nil
	case opSubmit:
		return q.runCommands(o.cb)
	}
	return nil
}

// waitValue blocks until w reaches value. Virtual fences and views
// expose a timed wait; anything else is polled.
func waitValue(w gpu.Waitable, value uint64) error {
	type timedWaiter interface {
		Wait(value uint64, timeout time.Duration) error
	}
	if tw, ok := w.(timedWaiter); ok {
		return tw.Wait(value, queueWaitTimeout)
	}
	deadline := time.Now().Add(queueWaitTimeout)
	for w.Completed() < value {
		if !time.Now().Before(deadline) {
			return gpu.ErrWaitTimeout
		}
		time.Sleep(50 * time.Microsecond)
	}
	return nil
}

func (q *queue) runCommands(cb *commandBuffer) error {
	for _, c := range cb.cmds {
		switch c := c.(type) {
		case cmdDispatch:
			if err := q.runDispatch(&c); err != nil {
				return err
			}
		case cmdCopy:
			copy(c.dst.data[c.dstOff:c.dstOff+c.size], c.src.data[c.srcOff:c.srcOff+c.size])
			c.dst.markTouched(c.dstOff, c.dstOff+c.size)
		case cmdBarrier:
			// Visibility is immediate for slice-backed memory; the
			// barrier survives as a scheduling point only.
		case cmdTimestamp:
			q.tsMu.Lock()
			q.timestamps[c.slot] = time.Now().UnixNano()
			q.tsMu.Unlock()
		case cmdDraw:
			p, ok := c.desc.Target.(*presenter)
			if !ok {
				return gpu.ErrInvalidHandle
			}
			if err := p.draw(&c.desc, c.frame); err != nil {
				return err
			}
		}
	}
	return nil
}

func (q *queue) runDispatch(c *cmdDispatch) error {
	pl, ok := c.desc.Pipeline.(*pipeline)
	if !ok || pl.native == nil {
		return ErrNoKernel
	}
	bindings := make([]gpu.NativeBinding, len(c.desc.Bindings))
	for i, bd := range c.desc.Bindings {
		vb, ok := bd.Buffer.(*buffer)
		if !ok {
			return gpu.ErrInvalidHandle
		}
		bindings[i] = gpu.NativeBinding{Data: vb.data, Access: bd.Access}
		if bd.Access == gpu.BindReadWrite {
			vb.markTouched(0, vb.Size())
		}
	}
	pl.native(c.desc.Groups, c.desc.Params, c.desc.ParamsF, bindings)
	return nil
}
