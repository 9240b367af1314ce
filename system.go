package particles

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/particles/compute"
	"github.com/gogpu/particles/extension"
	"github.com/gogpu/particles/gpu"
	"github.com/gogpu/particles/gpu/backend"
	"github.com/gogpu/particles/kernel"
	"github.com/gogpu/particles/render"
)

// ErrNoBackend is returned when no GPU backend is registered.
var ErrNoBackend = errors.New("particles: no gpu backend available")

// frameWaitTimeout bounds the single host-side wait a frame may
// perform. A frame blocked longer than this indicates a wedged queue.
const frameWaitTimeout = 5 * time.Second

// State is the orchestrator's lifecycle state.
type State uint8

const (
	// Steady runs one frame per Tick.
	Steady State = iota
	// Reconfiguring is entered while devices are drained and stages
	// rebuilt after an adapter, extension, or surface change.
	Reconfiguring
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Steady:
		return "steady"
	case Reconfiguring:
		return "reconfiguring"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// System owns the whole pipeline: one compute stage, one render
// stage, their devices, and the shared resources between them.
// Not safe for concurrent use.
type System struct {
	opts Options

	backend  gpu.Backend
	adapters []gpu.Adapter

	// devices caches one open device per adapter index so compute
	// and render resolve to the identical device when their indices
	// coincide.
	devices map[int]gpu.Device

	comp *compute.Stage
	rend *render.Stage

	computeIndex int
	renderIndex  int
	extensions   bool
	fullscreen   bool

	// prev* hold the configuration the running stages were built
	// with; Tick compares and reconfigures when they diverge.
	prevComputeIndex int
	prevRenderIndex  int
	prevExtensions   bool
	prevFullscreen   bool

	state     State
	frame     uint64
	rng       *rand.Rand
	destroyed bool
}

// New builds a System: selects a backend, assigns adapters, creates
// both stages, shares handles between them, and seeds the particles.
func New(opts Options) (*System, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	log := Logger()

	b := opts.Backend
	if b == nil {
		b = backend.Default()
	}
	if b == nil {
		return nil, ErrNoBackend
	}
	if err := b.Init(); err != nil {
		return nil, fmt.Errorf("particles: init backend %q: %w", b.Name(), err)
	}

	adapters, err := b.Adapters()
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("particles: enumerate adapters: %w", err)
	}

	s := &System{
		opts:       opts,
		backend:    b,
		adapters:   adapters,
		devices:    make(map[int]gpu.Device),
		extensions: opts.EnableExtensions,
		fullscreen: opts.Fullscreen,
		rng:        rand.New(rand.NewSource(opts.Seed)),
	}
	s.assignAdapters()
	s.prevComputeIndex = s.computeIndex
	s.prevRenderIndex = s.renderIndex
	s.prevExtensions = s.extensions
	s.prevFullscreen = s.fullscreen

	log.Info("adapters assigned",
		"backend", b.Name(),
		"compute", adapters[s.computeIndex].Info().Name,
		"render", adapters[s.renderIndex].Info().Name,
		"async", s.computeIndex == s.renderIndex)

	if err := s.buildRender(); err != nil {
		s.Destroy()
		return nil, err
	}
	if err := s.buildCompute(nil); err != nil {
		s.Destroy()
		return nil, err
	}
	if err := s.shareHandles(); err != nil {
		s.Destroy()
		return nil, err
	}

	particles, velocities := Seed(s.rng, opts.MaxParticles)
	if err := s.comp.Seed(particles, velocities); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

// assignAdapters prefers a UMA (integrated) adapter for compute and a
// discrete adapter for render, so simulation results already live in
// system memory when they cross the bus. Falls back to first/last
// when all adapters are alike; identical indices select async mode.
func (s *System) assignAdapters() {
	for i, a := range s.adapters {
		if a.Info().UMA {
			s.computeIndex = i
		} else {
			s.renderIndex = i
		}
	}
	if s.computeIndex == s.renderIndex {
		s.computeIndex = 0
		s.renderIndex = len(s.adapters) - 1
	}
	// Without cross-adapter sharing only the aliased single-device
	// configuration can run.
	if !s.backend.SharedHeaps() && s.computeIndex != s.renderIndex {
		Logger().Warn("backend lacks cross-adapter sharing, forcing single adapter",
			"backend", s.backend.Name())
		s.computeIndex = s.renderIndex
	}
}

// device returns the cached device for an adapter index, opening it
// on first use.
func (s *System) device(index int) (gpu.Device, error) {
	if d, ok := s.devices[index]; ok {
		return d, nil
	}
	d, err := s.backend.OpenDevice(s.adapters[index])
	if err != nil {
		return nil, fmt.Errorf("particles: open device %d: %w", index, err)
	}
	s.devices[index] = d
	return d, nil
}

// closeUnusedDevices drops cached devices no stage is built on.
func (s *System) closeUnusedDevices() {
	for i, d := range s.devices {
		if i != s.computeIndex && i != s.renderIndex {
			d.Destroy()
			delete(s.devices, i)
		}
	}
}

func (s *System) async() bool { return s.computeIndex == s.renderIndex }

func (s *System) buildRender() error {
	dev, err := s.device(s.renderIndex)
	if err != nil {
		return err
	}
	helper, err := extension.New(dev, Logger())
	if err != nil {
		return err
	}
	rend, err := render.New(render.Config{
		Device:            dev,
		Helper:            helper,
		PreferThrottle:    s.extensions,
		MaxParticles:      s.opts.MaxParticles,
		Width:             s.opts.Width,
		Height:            s.opts.Height,
		BufferCount:       s.opts.BufferCount,
		Shared:            !s.async(),
		Vsync:             s.opts.Vsync,
		Fullscreen:        s.fullscreen,
		ParticleSize:      s.opts.ParticleSize,
		ParticleIntensity: s.opts.ParticleIntensity,
		Logger:            Logger(),
	})
	if err != nil {
		return err
	}
	s.rend = rend
	return nil
}

// buildCompute creates the compute stage, migrating particle state
// from prev when possible. prev is destroyed by the caller.
func (s *System) buildCompute(prev *compute.Stage) error {
	dev, err := s.device(s.computeIndex)
	if err != nil {
		return err
	}
	helper, err := extension.New(dev, Logger())
	if err != nil {
		return err
	}
	comp, err := compute.New(compute.Config{
		Device:         dev,
		Helper:         helper,
		PreferThrottle: s.extensions,
		MaxParticles:   s.opts.MaxParticles,
		Shared:         !s.async(),
		Logger:         Logger(),
	})
	if err != nil {
		return err
	}

	if prev != nil {
		positions, velocities, index, snapErr := prev.Snapshot()
		if snapErr != nil {
			// Backends that cannot map device memory lose the run in
			// progress; restart it deterministically instead.
			Logger().Warn("state migration unavailable, reseeding", "err", snapErr)
			p, v := Seed(rand.New(rand.NewSource(s.opts.Seed)), s.opts.MaxParticles)
			if err := comp.Seed(p, v); err != nil {
				comp.Destroy()
				return err
			}
		} else if err := comp.ImportState(positions, velocities, index); err != nil {
			comp.Destroy()
			return err
		}
	}
	s.comp = comp
	return nil
}

// shareHandles wires the producer and consumer together, either
// through exported heap and fence handles (two adapters) or by direct
// aliasing (one adapter).
func (s *System) shareHandles() error {
	if err := s.comp.ResetFromAsync(); err != nil {
		return err
	}

	if s.async() {
		s.rend.SetAsyncMode(true)
		s.rend.SetComputeFence(s.comp.Fence())
		s.comp.SetAsync(s.rend.Fence(), s.rend.Buffers(), s.rend.BufferIndex())
		return nil
	}

	handles, err := s.comp.ShareHandles()
	if err != nil {
		return err
	}
	if err := s.rend.SetShared(handles); err != nil {
		return err
	}
	s.rend.SetAsyncMode(false)

	copyHandle, err := s.rend.CopyFenceHandle()
	if err != nil {
		return err
	}
	dev, err := s.device(s.computeIndex)
	if err != nil {
		return err
	}
	view, err := dev.OpenSharedFence(copyHandle)
	if err != nil {
		return fmt.Errorf("particles: open copy fence: %w", err)
	}
	s.comp.SetConsumerFence(view)
	return nil
}

// Tick runs one frame: draw and present the last copied results, kick
// the copy of the newest simulation results, advance the simulation,
// and perform at most one bounded host wait to cap latency. Any
// configuration change requested since the last Tick is applied at
// the end of the frame, while the pipeline is quiescent.
func (s *System) Tick() error {
	if s.destroyed {
		return ErrNotConfigured
	}

	drawn, copied, simulated := s.opts.NumDrawn, s.opts.NumCopied, s.opts.NumSimulated
	if s.opts.Linked {
		copied = drawn
		simulated = drawn
	}

	// Pass the value the simulation step below will signal, so the
	// trailing wait enqueued by the copy gates the next frame's copy
	// on this frame's dispatch.
	computeValue := s.comp.FenceValue() + 1
	copyValue, wait, err := s.rend.Draw(drawn, copied, computeValue)
	if err != nil {
		return err
	}
	if _, err := s.comp.Simulate(simulated, copyValue); err != nil {
		return err
	}

	// The queues wait on each other, so this single wait covers the
	// whole multi-adapter pipeline.
	if wait != nil {
		if err := wait.Wait(frameWaitTimeout); err != nil {
			return fmt.Errorf("particles: frame wait: %w", err)
		}
	}
	s.frame++

	// Sample timings only after the wait so the stamps being read have
	// retired on their queues.
	s.comp.SampleTimings()
	s.rend.SampleTimings()

	return s.reconfigure()
}

// reconfigure applies pending configuration changes. The render stage
// is rebuilt when its adapter, the surface, or its queue identity
// changes; the compute stage is rebuilt on adapter change and has its
// queue swapped in place on an extension toggle.
func (s *System) reconfigure() error {
	changeFullscreen := s.fullscreen != s.prevFullscreen
	changeExtensions := s.extensions != s.prevExtensions
	// Leaving the aliased configuration forces a compute rebuild: a
	// stage built for aliasing has no shared heap to export.
	wasAsync := s.prevComputeIndex == s.prevRenderIndex
	changeCompute := s.computeIndex != s.prevComputeIndex ||
		(wasAsync && !s.async())
	changeRender := s.renderIndex != s.prevRenderIndex ||
		changeFullscreen ||
		(changeExtensions && s.renderSupportsExtension())

	if !changeCompute && !changeRender && !changeExtensions {
		return nil
	}

	s.state = Reconfiguring
	defer func() { s.state = Steady }()
	Logger().Info("reconfiguring",
		"compute", changeCompute, "render", changeRender,
		"extensions", changeExtensions, "fullscreen", changeFullscreen)

	if changeCompute || changeRender {
		var g errgroup.Group
		g.Go(s.rend.Drain)
		g.Go(s.comp.Drain)
		if err := g.Wait(); err != nil {
			return fmt.Errorf("particles: drain: %w", err)
		}
		// The stage rebuilds below may destroy the buffers an
		// aliased compute stage writes; pull the state back first.
		if err := s.comp.ResetFromAsync(); err != nil {
			return err
		}
	}

	reshare := false
	if changeRender {
		s.rend.Destroy()
		s.rend = nil
		if err := s.buildRender(); err != nil {
			return err
		}
		reshare = true
	}
	if changeCompute {
		prev := s.comp
		if err := s.buildCompute(prev); err != nil {
			return err
		}
		prev.Destroy()
		reshare = true
	}
	if reshare {
		s.closeUnusedDevices()
		if err := s.shareHandles(); err != nil {
			return err
		}
	}

	if changeExtensions && !changeCompute {
		if err := s.comp.SetUseExtension(s.extensions); err != nil {
			return err
		}
	}
	// Report the effective state: unsupported adapters silently fall
	// back to the standard queue path.
	s.extensions = s.comp.UsingExtension() || s.rend.UsingExtension()

	s.prevComputeIndex = s.computeIndex
	s.prevRenderIndex = s.renderIndex
	s.prevExtensions = s.extensions
	s.prevFullscreen = s.fullscreen
	return nil
}

func (s *System) renderSupportsExtension() bool {
	return s.adapters[s.renderIndex].Info().Throttle
}

// SetComputeAdapter requests the compute stage move to another
// adapter; applied at the end of the next Tick.
func (s *System) SetComputeAdapter(index int) error {
	if index < 0 || index >= len(s.adapters) {
		return ErrBadAdapter
	}
	s.computeIndex = index
	return nil
}

// SetRenderAdapter requests the render stage move to another adapter;
// applied at the end of the next Tick.
func (s *System) SetRenderAdapter(index int) error {
	if index < 0 || index >= len(s.adapters) {
		return ErrBadAdapter
	}
	s.renderIndex = index
	return nil
}

// SetExtensionsEnabled requests the vendor queue extension be turned
// on or off; applied at the end of the next Tick.
func (s *System) SetExtensionsEnabled(enabled bool) { s.extensions = enabled }

// SetFullscreen requests a surface mode change; applied at the end of
// the next Tick.
func (s *System) SetFullscreen(fullscreen bool) { s.fullscreen = fullscreen }

// SetVsync toggles display synchronization, effective immediately.
func (s *System) SetVsync(vsync bool) {
	s.opts.Vsync = vsync
	s.rend.SetVsync(vsync)
}

// SetCounts updates the per-stage particle counts. Zero values leave
// the current setting. Unlinks the counts when they differ.
func (s *System) SetCounts(simulated, copied, drawn uint32) {
	if simulated != 0 {
		s.opts.NumSimulated = simulated
	}
	if copied != 0 {
		s.opts.NumCopied = copied
	}
	if drawn != 0 {
		s.opts.NumDrawn = drawn
	}
	s.opts.Linked = s.opts.NumSimulated == s.opts.NumDrawn &&
		s.opts.NumCopied == s.opts.NumDrawn
}

// Adapters describes the adapters the backend enumerated.
func (s *System) Adapters() []gpu.AdapterInfo {
	infos := make([]gpu.AdapterInfo, len(s.adapters))
	for i, a := range s.adapters {
		infos[i] = a.Info()
	}
	return infos
}

// ComputeAdapter returns the index of the adapter running the
// simulation.
func (s *System) ComputeAdapter() int { return s.prevComputeIndex }

// RenderAdapter returns the index of the adapter presenting frames.
func (s *System) RenderAdapter() int { return s.prevRenderIndex }

// Async reports whether the pipeline runs async-aliased on a single
// device.
func (s *System) Async() bool { return s.prevComputeIndex == s.prevRenderIndex }

// ExtensionsEnabled reports the effective vendor extension state.
func (s *System) ExtensionsEnabled() bool { return s.prevExtensions }

// State returns the orchestrator state.
func (s *System) State() State { return s.state }

// Frame returns the number of completed Ticks.
func (s *System) Frame() uint64 { return s.frame }

// Camera returns the render stage's camera.
func (s *System) Camera() *render.Camera { return s.rend.Camera() }

// Presenter exposes the presentation surface, for headless capture.
func (s *System) Presenter() gpu.Presenter { return s.rend.Presenter() }

// Compute returns the simulation stage.
func (s *System) Compute() *compute.Stage { return s.comp }

// Render returns the render stage.
func (s *System) Render() *render.Stage { return s.rend }

// ParticleStride is the byte stride of one particle in the position
// stream.
func (s *System) ParticleStride() uint32 { return uint32(kernel.ParticleSize) }

// Times merges the smoothed per-stage GPU timings, keyed by region
// name ("simulate", "copy", "draw"), in milliseconds.
func (s *System) Times() map[string]float64 {
	times := s.rend.Times()
	for name, ms := range s.comp.Times() {
		times[name] = ms
	}
	return times
}

// Drain blocks until both devices are idle.
func (s *System) Drain() error {
	var g errgroup.Group
	if s.rend != nil {
		g.Go(s.rend.Drain)
	}
	if s.comp != nil {
		g.Go(s.comp.Drain)
	}
	return g.Wait()
}

// Destroy drains the pipeline and releases every resource. The System
// is unusable afterwards.
func (s *System) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true

	if s.comp != nil || s.rend != nil {
		if err := s.Drain(); err != nil {
			Logger().Warn("drain during destroy", "err", err)
		}
	}
	if s.comp != nil {
		s.comp.Destroy()
		s.comp = nil
	}
	if s.rend != nil {
		s.rend.Destroy()
		s.rend = nil
	}
	for i, d := range s.devices {
		d.Destroy()
		delete(s.devices, i)
	}
	if s.backend != nil {
		s.backend.Close()
	}
}
