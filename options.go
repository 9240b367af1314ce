package particles

import (
	"errors"

	"github.com/gogpu/particles/gpu"
)

// Option validation errors.
var (
	ErrNoParticles   = errors.New("particles: max particle count is zero")
	ErrNoSurface     = errors.New("particles: surface dimensions are zero")
	ErrBadAdapter    = errors.New("particles: adapter index out of range")
	ErrNotConfigured = errors.New("particles: system already destroyed")
)

// MinParticles is the default capacity of the particle system.
const MinParticles = 256 * 1024

// Options configures a System. The zero value is not usable; start
// from DefaultOptions.
type Options struct {
	// MaxParticles fixes the capacity of every buffer in the
	// pipeline for the lifetime of the System.
	MaxParticles uint32

	// Width and Height size the presentation surface.
	Width, Height uint32

	// BufferCount is the presenter back buffer count; zero selects
	// the backend default.
	BufferCount uint32

	// Vsync synchronizes presentation with the display.
	Vsync bool

	// Fullscreen requests an exclusive surface.
	Fullscreen bool

	// EnableExtensions negotiates the vendor command queue throttling
	// extension where the adapter offers it. Unsupported adapters
	// fall back silently.
	EnableExtensions bool

	// ParticleSize is the drawn point size in pixels.
	ParticleSize float32

	// ParticleIntensity is the additive brightness per particle.
	ParticleIntensity float32

	// NumSimulated, NumCopied and NumDrawn bound the particles each
	// stage touches per frame. While Linked is set all three follow
	// NumDrawn; unlinking them is an instrumentation feature for
	// stressing individual stages. Values are clamped to
	// MaxParticles.
	NumSimulated uint32
	NumCopied    uint32
	NumDrawn     uint32
	Linked       bool

	// Backend overrides backend selection. Nil picks the registry
	// default.
	Backend gpu.Backend

	// Seed initializes the particle RNG. Equal seeds produce
	// bit-identical simulations on the same backend.
	Seed int64
}

// DefaultOptions returns the options the demo binary runs with.
func DefaultOptions() Options {
	return Options{
		MaxParticles:      MinParticles,
		Width:             1280,
		Height:            720,
		BufferCount:       NumBuffers,
		Vsync:             true,
		EnableExtensions:  true,
		ParticleSize:      InitialParticleSize,
		ParticleIntensity: InitialParticleIntensity,
		NumSimulated:      MinParticles,
		NumCopied:         MinParticles,
		NumDrawn:          MinParticles,
		Linked:            true,
		Seed:              1,
	}
}

func (o *Options) validate() error {
	if o.MaxParticles == 0 {
		return ErrNoParticles
	}
	if o.Width == 0 || o.Height == 0 {
		return ErrNoSurface
	}
	return nil
}
