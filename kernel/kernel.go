// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package kernel holds the particle data layout and the simulation
// kernel in its two renditions: WGSL for shader backends and a Go
// step for the virtual backend. The pipeline treats the kernel as an
// opaque unit of work; everything it needs to know is the block size
// and the binding layout.
package kernel

import (
	_ "embed"
	"unsafe"

	"github.com/chewxy/math32"

	"github.com/gogpu/particles/gpu"
)

//go:embed nbody.wgsl
var nbodyWGSL string

// BlockSize is the kernel thread-group width. Dispatches cover
// ceil(activeCount/BlockSize) groups.
const BlockSize = 64

// Simulation constants, shared by both kernel renditions.
const (
	// Timestep is the integration step per frame.
	Timestep = 0.1

	// Damping scales velocity each step.
	Damping = 1.0

	particleMass = 10000.0
	softeningSq  = 0.00125
)

// Particle is the render-visible per-particle state. Layout matches
// the WGSL Particle struct: 16 bytes, position then fade.
type Particle struct {
	X, Y, Z float32
	Fade    float32
}

// Velocity is the simulation-private per-particle state: 12 bytes,
// tightly packed.
type Velocity struct {
	X, Y, Z float32
}

// Sizes of the wire layouts.
const (
	ParticleSize = uint32(unsafe.Sizeof(Particle{}))
	VelocitySize = uint32(unsafe.Sizeof(Velocity{}))
)

// Layout declares the kernel's buffer bindings in dispatch order:
// positions in, velocities in, positions out, velocities out.
var Layout = []gpu.AccessMode{
	gpu.BindReadOnly,
	gpu.BindReadOnly,
	gpu.BindReadWrite,
	gpu.BindReadWrite,
}

// PipelineDescriptor returns the descriptor for the n-body pipeline,
// carrying both kernel renditions so any backend can compile it.
func PipelineDescriptor() *gpu.ComputePipelineDescriptor {
	return &gpu.ComputePipelineDescriptor{
		Label:      "nbody",
		WGSL:       nbodyWGSL,
		EntryPoint: "main",
		Native:     Step,
		Layout:     Layout,
		BlockSize:  BlockSize,
	}
}

// Particles reinterprets a byte buffer as particle state.
func Particles(data []byte) []Particle {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*Particle)(unsafe.Pointer(&data[0])), len(data)/int(ParticleSize))
}

// Velocities reinterprets a byte buffer as velocity state.
func Velocities(data []byte) []Velocity {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*Velocity)(unsafe.Pointer(&data[0])), len(data)/int(VelocitySize))
}

// ParticleBytes exposes particle state as its wire layout.
func ParticleBytes(p []Particle) []byte {
	if len(p) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&p[0])), len(p)*int(ParticleSize))
}

// VelocityBytes exposes velocity state as its wire layout.
func VelocityBytes(v []Velocity) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*int(VelocitySize))
}

// Step is the Go rendition of nbody.wgsl, executed by the virtual
// backend. Bindings follow Layout; params are
// [activeCount, groupCount] and [timestep, damping], mirroring the
// uniform block. Only the first activeCount elements are touched.
func Step(groups [3]uint32, params []uint32, paramsF []float32, bindings []gpu.NativeBinding) {
	if len(params) < 1 || len(paramsF) < 2 || len(bindings) < 4 {
		return
	}
	active := int(params[0])
	dt := paramsF[0]
	damping := paramsF[1]

	posIn := Particles(bindings[0].Data)
	velIn := Velocities(bindings[1].Data)
	posOut := Particles(bindings[2].Data)
	velOut := Velocities(bindings[3].Data)

	if active > len(posIn) {
		active = len(posIn)
	}

	for i := 0; i < active; i++ {
		px, py, pz := posIn[i].X, posIn[i].Y, posIn[i].Z
		var ax, ay, az float32

		for j := 0; j < active; j++ {
			rx := posIn[j].X - px
			ry := posIn[j].Y - py
			rz := posIn[j].Z - pz
			distSq := rx*rx + ry*ry + rz*rz + softeningSq
			invDist := 1 / math32.Sqrt(distSq)
			s := particleMass * invDist * invDist * invDist
			ax += rx * s
			ay += ry * s
			az += rz * s
		}

		vx := (velIn[i].X + ax*dt) * damping
		vy := (velIn[i].Y + ay*dt) * damping
		vz := (velIn[i].Z + az*dt) * damping

		speed := math32.Sqrt(vx*vx + vy*vy + vz*vz)
		fade := math32.Min(math32.Max(speed*0.01, 0.05), 1.0)

		posOut[i] = Particle{X: px + vx*dt, Y: py + vy*dt, Z: pz + vz*dt, Fade: fade}
		velOut[i] = Velocity{X: vx, Y: vy, Z: vz}
	}
}
