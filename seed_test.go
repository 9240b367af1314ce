package particles

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"

	"github.com/gogpu/particles/kernel"
)

func TestSeedDeterministic(t *testing.T) {
	p1, v1 := Seed(rand.New(rand.NewSource(7)), 512)
	p2, v2 := Seed(rand.New(rand.NewSource(7)), 512)

	for i := range p1 {
		if p1[i] != p2[i] || v1[i] != v2[i] {
			t.Fatalf("particle %d differs between equally seeded runs", i)
		}
	}

	p3, _ := Seed(rand.New(rand.NewSource(8)), 512)
	same := 0
	for i := range p1 {
		if p1[i] == p3[i] {
			same++
		}
	}
	if same == len(p1) {
		t.Error("different seeds produced identical particles")
	}
}

func TestSeedClusterGeometry(t *testing.T) {
	const n = 1024
	particles, _ := Seed(rand.New(rand.NewSource(1)), n)
	if len(particles) != n {
		t.Fatalf("len(particles) = %d, want %d", len(particles), n)
	}

	center := ParticleSpread * 0.75
	for i, p := range particles {
		cx := center
		if i >= n/2 {
			cx = -center
		}
		dx, dy, dz := p.X-cx, p.Y, p.Z
		r := math32.Sqrt(dx*dx + dy*dy + dz*dz)
		if math32.Abs(r-ParticleSpread) > 1e-2 {
			t.Fatalf("particle %d at radius %g from its cluster center, want %g", i, r, ParticleSpread)
		}
		if p.Fade != 1 {
			t.Fatalf("particle %d fade = %g, want 1", i, p.Fade)
		}
	}
}

func TestSeedVelocityTangential(t *testing.T) {
	particles, velocities := Seed(rand.New(rand.NewSource(1)), 256)

	zero := 0
	for i, v := range velocities {
		speed := math32.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
		if speed == 0 {
			zero++
			continue
		}
		// A cross product with the radial direction is orthogonal to it.
		p := particles[i]
		dot := (p.X*v.X + p.Y*v.Y + p.Z*v.Z) / (speed * ParticleSpread)
		if math32.Abs(dot) > 0.5 {
			t.Errorf("velocity %d mostly radial (cos = %g)", i, dot)
		}
	}
	if zero > len(velocities)/4 {
		t.Errorf("%d of %d particles seeded motionless", zero, len(velocities))
	}
}

func TestSeedBytesMatchWireLayout(t *testing.T) {
	particles, velocities := Seed(rand.New(rand.NewSource(1)), 16)
	if got, want := len(kernel.ParticleBytes(particles)), int(16*kernel.ParticleSize); got != want {
		t.Errorf("len(ParticleBytes) = %d, want %d", got, want)
	}
	if got, want := len(kernel.VelocityBytes(velocities)), int(16*kernel.VelocitySize); got != want {
		t.Errorf("len(VelocityBytes) = %d, want %d", got, want)
	}
}
