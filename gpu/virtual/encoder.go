// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package virtual

import (
	"errors"

	"github.com/gogpu/particles/gpu"
)

// ErrEncoderRole is returned by Finish when a recorded command is not
// executable on the encoder's queue role.
var ErrEncoderRole = errors.New("virtual: command not allowed for encoder queue role")

// ErrEncoderFinished is returned when a finished encoder is reused.
var ErrEncoderFinished = errors.New("virtual: encoder already finished")

type command interface{}

type cmdDispatch struct {
	desc gpu.DispatchDescriptor
}

type cmdCopy struct {
	dst    *buffer
	dstOff uint64
	src    *buffer
	srcOff uint64
	size   uint64
}

type cmdBarrier struct {
	b *buffer
}

type cmdTimestamp struct {
	slot uint32
}

type cmdDraw struct {
	desc gpu.DrawDescriptor
	// frame is the presenter back buffer the draw targets, captured
	// at record time. The presenter flips its index on Present, which
	// may happen before the queue worker reaches this command.
	frame uint32
}

type encoder struct {
	typ      gpu.QueueType
	cmds     []command
	finished bool

	needsCompute bool
	needsDraw    bool
}

// Dispatch implements gpu.CommandEncoder. Descriptor slices are
// copied so callers can reuse scratch between recordings.
func (e *encoder) Dispatch(desc *gpu.DispatchDescriptor) {
	d := *desc
	d.Bindings = append([]gpu.Binding(nil), desc.Bindings...)
	d.Params = append([]uint32(nil), desc.Params...)
	d.ParamsF = append([]float32(nil), desc.ParamsF...)
	e.cmds = append(e.cmds, cmdDispatch{desc: d})
	e.needsCompute = true
}

// CopyBuffer implements gpu.CommandEncoder.
func (e *encoder) CopyBuffer(dst gpu.Buffer, dstOffset uint64, src gpu.Buffer, srcOffset, size uint64) {
	vd, okD := dst.(*buffer)
	vs, okS := src.(*buffer)
	if !okD || !okS {
		return
	}
	e.cmds = append(e.cmds, cmdCopy{dst: vd, dstOff: dstOffset, src: vs, srcOff: srcOffset, size: size})
}

// Barrier implements gpu.CommandEncoder.
func (e *encoder) Barrier(b gpu.Buffer) {
	if vb, ok := b.(*buffer); ok {
		e.cmds = append(e.cmds, cmdBarrier{b: vb})
	}
}

// WriteTimestamp implements gpu.CommandEncoder.
func (e *encoder) WriteTimestamp(slot uint32) {
	e.cmds = append(e.cmds, cmdTimestamp{slot: slot})
}

// DrawPoints implements gpu.CommandEncoder.
func (e *encoder) DrawPoints(desc *gpu.DrawDescriptor) {
	c := cmdDraw{desc: *desc}
	if p, ok := desc.Target.(*presenter); ok {
		c.frame = p.frameIndex
	}
	e.cmds = append(e.cmds, c)
	e.needsDraw = true
}

// Finish implements gpu.CommandEncoder.
func (e *encoder) Finish() (gpu.CommandBuffer, error) {
	if e.finished {
		return nil, ErrEncoderFinished
	}
	e.finished = true
	if e.needsDraw && e.typ != gpu.QueueDirect {
		return nil, ErrEncoderRole
	}
	if e.needsCompute && e.typ == gpu.QueueCopy {
		return nil, ErrEncoderRole
	}
	return &commandBuffer{typ: e.typ, cmds: e.cmds}, nil
}

type commandBuffer struct {
	typ  gpu.QueueType
	cmds []command
}

// QueueType implements gpu.CommandBuffer.
func (cb *commandBuffer) QueueType() gpu.QueueType { return cb.typ }
