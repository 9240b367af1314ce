// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package kernel

import (
	"testing"

	"github.com/gogpu/particles/gpu"
)

func makeBindings(posIn []Particle, velIn []Velocity, posOut []Particle, velOut []Velocity) []gpu.NativeBinding {
	return []gpu.NativeBinding{
		{Data: ParticleBytes(posIn), Access: gpu.BindReadOnly},
		{Data: VelocityBytes(velIn), Access: gpu.BindReadOnly},
		{Data: ParticleBytes(posOut), Access: gpu.BindReadWrite},
		{Data: VelocityBytes(velOut), Access: gpu.BindReadWrite},
	}
}

func stepOnce(n, active uint32, posIn []Particle, velIn []Velocity) ([]Particle, []Velocity) {
	posOut := make([]Particle, n)
	velOut := make([]Velocity, n)
	groups := (active + BlockSize - 1) / BlockSize
	Step([3]uint32{groups, 1, 1},
		[]uint32{active, groups},
		[]float32{Timestep, Damping},
		makeBindings(posIn, velIn, posOut, velOut))
	return posOut, velOut
}

func TestStepDeterministic(t *testing.T) {
	const n = 128
	posIn := make([]Particle, n)
	velIn := make([]Velocity, n)
	for i := range posIn {
		f := float32(i)
		posIn[i] = Particle{X: f, Y: -f, Z: f * 0.5, Fade: 1}
		velIn[i] = Velocity{X: 0.1 * f, Y: 0, Z: -0.1 * f}
	}

	posA, velA := stepOnce(n, n, posIn, velIn)
	posB, velB := stepOnce(n, n, posIn, velIn)
	for i := range posA {
		if posA[i] != posB[i] || velA[i] != velB[i] {
			t.Fatalf("particle %d differs between identical runs", i)
		}
	}
}

func TestStepTouchesOnlyActive(t *testing.T) {
	const n = 64
	const active = 40
	posIn := make([]Particle, n)
	velIn := make([]Velocity, n)
	for i := range posIn {
		posIn[i] = Particle{X: float32(i), Fade: 1}
	}

	posOut, velOut := stepOnce(n, active, posIn, velIn)
	for i := active; i < n; i++ {
		if (posOut[i] != Particle{}) {
			t.Errorf("posOut[%d] = %+v, want zero (inactive)", i, posOut[i])
		}
		if (velOut[i] != Velocity{}) {
			t.Errorf("velOut[%d] = %+v, want zero (inactive)", i, velOut[i])
		}
	}
	for i := 0; i < active; i++ {
		if posOut[i] == (Particle{}) {
			t.Errorf("posOut[%d] untouched, want updated", i)
		}
	}
}

func TestStepClampsActiveToBuffer(t *testing.T) {
	const n = 16
	posIn := make([]Particle, n)
	velIn := make([]Velocity, n)
	for i := range posIn {
		posIn[i] = Particle{X: float32(i)}
	}
	// Request more work than the buffers hold; must not panic.
	stepOnce(n, n*4, posIn, velIn)
}

func TestStepFadeBounds(t *testing.T) {
	const n = 32
	posIn := make([]Particle, n)
	velIn := make([]Velocity, n)
	for i := range posIn {
		posIn[i] = Particle{X: float32(i) * 100}
		// One stationary particle, one extremely fast.
		if i == 1 {
			velIn[i] = Velocity{X: 1e6}
		}
	}

	posOut, _ := stepOnce(n, n, posIn, velIn)
	for i := 0; i < n; i++ {
		if posOut[i].Fade < 0.05 || posOut[i].Fade > 1.0 {
			t.Errorf("posOut[%d].Fade = %v, want within [0.05, 1]", i, posOut[i].Fade)
		}
	}
	if posOut[1].Fade != 1.0 {
		t.Errorf("fast particle fade = %v, want 1", posOut[1].Fade)
	}
}

func TestStepMutualAttraction(t *testing.T) {
	pos := []Particle{
		{X: -100},
		{X: 100},
	}
	vel := make([]Velocity, 2)

	_, velOut := stepOnce(2, 2, pos, vel)
	if velOut[0].X <= 0 {
		t.Errorf("left particle X velocity = %v, want > 0 (pulled right)", velOut[0].X)
	}
	if velOut[1].X >= 0 {
		t.Errorf("right particle X velocity = %v, want < 0 (pulled left)", velOut[1].X)
	}
	if velOut[0].X != -velOut[1].X {
		t.Errorf("attraction not symmetric: %v vs %v", velOut[0].X, velOut[1].X)
	}
}

func TestWireLayoutSizes(t *testing.T) {
	if ParticleSize != 16 {
		t.Errorf("ParticleSize = %d, want 16", ParticleSize)
	}
	if VelocitySize != 12 {
		t.Errorf("VelocitySize = %d, want 12", VelocitySize)
	}
}

func TestByteViewsShareMemory(t *testing.T) {
	p := make([]Particle, 4)
	b := ParticleBytes(p)
	if len(b) != 4*int(ParticleSize) {
		t.Fatalf("len(ParticleBytes) = %d, want %d", len(b), 4*ParticleSize)
	}
	Particles(b)[2].X = 42
	if p[2].X != 42 {
		t.Error("Particles(ParticleBytes(p)) does not alias p")
	}
}

func TestPipelineDescriptor(t *testing.T) {
	desc := PipelineDescriptor()
	if desc.Native == nil {
		t.Error("descriptor has no native kernel")
	}
	if desc.WGSL == "" {
		t.Error("descriptor has no WGSL source")
	}
	if desc.EntryPoint != "main" {
		t.Errorf("EntryPoint = %q, want %q", desc.EntryPoint, "main")
	}
	if desc.BlockSize != BlockSize {
		t.Errorf("BlockSize = %d, want %d", desc.BlockSize, BlockSize)
	}
	if len(desc.Layout) != 4 {
		t.Errorf("len(Layout) = %d, want 4", len(desc.Layout))
	}
}
