// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpuhal

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/particles/gpu"
)

// encoder records directly into a hal.CommandEncoder. Dispatch params
// go to the pipeline's uniform buffer through a queue write, which the
// hardware orders ahead of the submission that consumes them.
type encoder struct {
	dev *device
	typ gpu.QueueType
	hal hal.CommandEncoder

	bindGroups []hal.BindGroup
	err        error
}

// Dispatch implements gpu.CommandEncoder.
func (e *encoder) Dispatch(desc *gpu.DispatchDescriptor) {
	if e.err != nil {
		return
	}
	p, ok := desc.Pipeline.(*pipeline)
	if !ok {
		e.err = gpu.ErrInvalidHandle
		return
	}

	e.dev.queue.WriteBuffer(p.params, 0, packParams(desc.Params, desc.ParamsF))

	entries := make([]gputypes.BindGroupEntry, 0, len(desc.Bindings)+1)
	entries = append(entries, gputypes.BindGroupEntry{
		Binding:  0,
		Resource: gputypes.BufferBinding{Buffer: p.params.NativeHandle()},
	})
	for i, b := range desc.Bindings {
		wb, ok := b.Buffer.(*buffer)
		if !ok {
			e.err = gpu.ErrInvalidHandle
			return
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(i + 1),
			Resource: gputypes.BufferBinding{Buffer: wb.hal.NativeHandle()},
		})
	}

	bg, err := e.dev.hal.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.label + "_bg",
		Layout:  p.bindLayout,
		Entries: entries,
	})
	if err != nil {
		e.err = fmt.Errorf("wgpuhal: create bind group: %w", err)
		return
	}
	e.bindGroups = append(e.bindGroups, bg)

	pass := e.hal.BeginComputePass(&hal.ComputePassDescriptor{Label: p.label})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(desc.Groups[0], desc.Groups[1], desc.Groups[2])
	pass.End()
}

// CopyBuffer implements gpu.CommandEncoder.
func (e *encoder) CopyBuffer(dst gpu.Buffer, dstOffset uint64, src gpu.Buffer, srcOffset, size uint64) {
	if e.err != nil {
		return
	}
	wd, okD := dst.(*buffer)
	ws, okS := src.(*buffer)
	if !okD || !okS {
		e.err = gpu.ErrInvalidHandle
		return
	}
	e.hal.CopyBufferToBuffer(ws.hal, wd.hal, []hal.BufferCopy{
		{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size},
	})
}

// Barrier implements gpu.CommandEncoder. WebGPU tracks hazards per
// pass, so an explicit barrier has nothing to record.
func (e *encoder) Barrier(b gpu.Buffer) {}

// WriteTimestamp implements gpu.CommandEncoder. No timestamp queries
// in the HAL.
func (e *encoder) WriteTimestamp(slot uint32) {}

// DrawPoints implements gpu.CommandEncoder.
func (e *encoder) DrawPoints(desc *gpu.DrawDescriptor) {
	if e.err == nil {
		e.err = ErrDrawUnsupported
	}
}

// Finish implements gpu.CommandEncoder.
func (e *encoder) Finish() (gpu.CommandBuffer, error) {
	if e.err != nil {
		e.hal.DiscardEncoding()
		return nil, e.err
	}
	cb, err := e.hal.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("wgpuhal: end encoding: %w", err)
	}
	return &commandBuffer{typ: e.typ, hal: cb}, nil
}

type commandBuffer struct {
	typ gpu.QueueType
	hal hal.CommandBuffer
}

// QueueType implements gpu.CommandBuffer.
func (cb *commandBuffer) QueueType() gpu.QueueType { return cb.typ }
