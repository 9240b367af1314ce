// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpuhal

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/particles/gpu"
)

// paramsBufferSize holds the dispatch root constants, padded to the
// minimum uniform alignment.
const paramsBufferSize = 256

// pipeline is a compiled compute pipeline plus its baked binding
// layout and a reusable params uniform buffer.
type pipeline struct {
	dev    *device
	label  string
	layout []gpu.AccessMode

	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
	params     hal.Buffer
}

func newPipeline(dev *device, desc *gpu.ComputePipelineDescriptor) (*pipeline, error) {
	if desc.WGSL == "" {
		return nil, fmt.Errorf("wgpuhal: pipeline %q has no WGSL source", desc.Label)
	}

	spirvBytes, err := naga.Compile(desc.WGSL)
	if err != nil {
		return nil, fmt.Errorf("wgpuhal: compile %q: %w", desc.Label, err)
	}
	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}

	p := &pipeline{dev: dev, label: desc.Label, layout: append([]gpu.AccessMode(nil), desc.Layout...)}

	p.module, err = dev.hal.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("wgpuhal: shader module %q: %w", desc.Label, err)
	}

	p.bindLayout, err = dev.hal.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label + "_bgl",
		Entries: bindingLayoutEntries(desc.Layout),
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("wgpuhal: bind group layout %q: %w", desc.Label, err)
	}

	p.pipeLayout, err = dev.hal.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label + "_pl",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("wgpuhal: pipeline layout %q: %w", desc.Label, err)
	}

	entry := desc.EntryPoint
	if entry == "" {
		entry = "main"
	}
	p.pipeline, err = dev.hal.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: p.pipeLayout,
		Compute: hal.ComputeState{
			Module:     p.module,
			EntryPoint: entry,
		},
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("wgpuhal: compute pipeline %q: %w", desc.Label, err)
	}

	p.params, err = dev.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label + "_params",
		Size:  paramsBufferSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("wgpuhal: params buffer %q: %w", desc.Label, err)
	}

	return p, nil
}

// packParams serializes dispatch constants: the uint params first,
// then the float params, matching the kernel's params struct layout.
func packParams(params []uint32, paramsF []float32) []byte {
	out := make([]byte, paramsBufferSize)
	off := 0
	for _, v := range params {
		binary.LittleEndian.PutUint32(out[off:], v)
		off += 4
	}
	for _, v := range paramsF {
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(v))
		off += 4
	}
	return out
}

// Destroy implements gpu.ComputePipeline.
func (p *pipeline) Destroy() {
	if p.params != nil {
		p.dev.hal.DestroyBuffer(p.params)
		p.params = nil
	}
	if p.pipeline != nil {
		p.dev.hal.DestroyComputePipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		p.dev.hal.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		p.dev.hal.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.module != nil {
		p.dev.hal.DestroyShaderModule(p.module)
		p.module = nil
	}
}
