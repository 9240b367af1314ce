package particles

import "github.com/gogpu/particles/kernel"

// Particle is one element of the rendered position stream: a position
// and a brightness fade written by the simulation each step.
type Particle = kernel.Particle

// Velocity is the per-particle velocity, device-local to the compute
// stage and never crossing the adapter boundary.
type Velocity = kernel.Velocity

// Simulation and presentation defaults.
const (
	// NumBuffers is the ping-pong depth of every buffered resource in
	// the pipeline.
	NumBuffers = 2

	// ParticleSpread is the radius of each seeded particle cluster.
	ParticleSpread float32 = 400.0

	// InitialParticleSpeed scales the tangential velocity particles
	// are seeded with.
	InitialParticleSpeed float32 = 15.0

	// InitialParticleSize is the default point size in pixels.
	InitialParticleSize float32 = 2.5

	// InitialParticleIntensity is the default additive brightness per
	// particle.
	InitialParticleIntensity float32 = 0.15
)
