package particles

import (
	"math/rand"

	"github.com/chewxy/math32"

	"github.com/gogpu/particles/kernel"
)

// Seed generates the initial particle state: two clusters of n/2
// particles centered at ±0.75×spread on the X axis, each particle
// given a velocity roughly perpendicular to its direction from the
// origin so the clusters orbit rather than collapse.
//
// The caller owns the RNG; seeding it makes the whole simulation
// reproducible, which the test suite relies on.
func Seed(rng *rand.Rand, n uint32) ([]kernel.Particle, []kernel.Velocity) {
	particles := make([]kernel.Particle, n)
	velocities := make([]kernel.Velocity, n)

	half := n / 2
	centerSpread := ParticleSpread * 0.75
	loadParticles(rng, particles[:half], velocities[:half],
		[3]float32{centerSpread, 0, 0}, InitialParticleSpeed, ParticleSpread)
	loadParticles(rng, particles[half:], velocities[half:],
		[3]float32{-centerSpread, 0, 0}, InitialParticleSpeed, ParticleSpread)
	return particles, velocities
}

// loadParticles fills one cluster around center.
func loadParticles(rng *rand.Rand, particles []kernel.Particle, velocities []kernel.Velocity,
	center [3]float32, speed, spread float32) {
	for i := range particles {
		// Accumulate random offsets until the delta is comfortably
		// away from the cluster center, then push it onto the sphere
		// of radius spread.
		var dx, dy, dz float32
		for {
			dx += uniform(rng)
			dy += uniform(rng)
			dz += uniform(rng)
			if dx*dx+dy*dy+dz*dz >= 10 {
				break
			}
		}
		inv := spread / math32.Sqrt(dx*dx+dy*dy+dz*dz)
		px := center[0] + dx*inv
		py := center[1] + dy*inv
		pz := center[2] + dz*inv

		particles[i] = kernel.Particle{X: px, Y: py, Z: pz, Fade: 1}

		// Velocity perpendicular-ish to the direction to the center
		// of gravity.
		dir := norm3(px, py, pz)
		perp := norm3(1-dir[0], 1-dir[1], 1-dir[2])
		velocities[i] = kernel.Velocity{
			X: (dir[1]*perp[2] - dir[2]*perp[1]) * speed,
			Y: (dir[2]*perp[0] - dir[0]*perp[2]) * speed,
			Z: (dir[0]*perp[1] - dir[1]*perp[0]) * speed,
		}
	}
}

// uniform returns a sample from U(-1, 1).
func uniform(rng *rand.Rand) float32 {
	return rng.Float32()*2 - 1
}

func norm3(x, y, z float32) [3]float32 {
	n := math32.Sqrt(x*x + y*y + z*z)
	if n == 0 {
		return [3]float32{}
	}
	return [3]float32{x / n, y / n, z / n}
}
