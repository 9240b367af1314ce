// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render is the consumer side of the pipeline. Each frame it
// pulls the newest simulation results across the adapter boundary on
// a copy queue, draws the previously copied slot on the direct queue,
// presents, and publishes render and copy fence values that gate the
// producer and the host.
package render

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/particles/extension"
	"github.com/gogpu/particles/gpu"
	"github.com/gogpu/particles/gputimer"
	"github.com/gogpu/particles/kernel"
)

// Stage errors.
var (
	// ErrNoShared is returned by Draw before shared resources have
	// been attached.
	ErrNoShared = errors.New("render: shared resources not attached")

	// ErrZeroParticles is returned when constructed with no capacity.
	ErrZeroParticles = errors.New("render: max particle count is zero")
)

// drainTimeout bounds the host waits in Drain.
const drainTimeout = 10 * time.Second

// Timer regions, one per queue.
const (
	timerDraw = 0
	timerCopy = 0
)

// Config describes a render stage.
type Config struct {
	// Device is the render adapter's device.
	Device gpu.Device

	// Helper creates the direct queue, negotiating the vendor
	// throttling extension when preferred.
	Helper *extension.Helper

	// PreferThrottle requests the extension queue path for the
	// direct queue.
	PreferThrottle bool

	// MaxParticles fixes local buffer capacity.
	MaxParticles uint32

	// Width and Height size the presentation surface.
	Width, Height uint32

	// BufferCount is the presenter's back buffer count. Zero selects
	// the backend default.
	BufferCount uint32

	// Shared exports the copy fence for a producer on another device.
	// When false the stage only supports async-aliased operation.
	Shared bool

	// Vsync synchronizes Present with the display.
	Vsync bool

	// Fullscreen marks the surface as exclusive; tearing is never
	// requested in fullscreen.
	Fullscreen bool

	// ParticleSize is the point size in pixels.
	ParticleSize float32

	// ParticleIntensity is the additive brightness per particle.
	ParticleIntensity float32

	// Logger receives stage events. Nil disables logging.
	Logger *slog.Logger
}

// Stage is the render stage: a direct queue that draws and presents
// and a copy queue that pulls simulation results into local memory.
// Not safe for concurrent use.
type Stage struct {
	device    gpu.Device
	direct    gpu.Queue
	copier    gpu.Queue
	timer     *gputimer.Timer
	copyTimer *gputimer.Timer
	log       *slog.Logger

	presenter gpu.Presenter
	camera    *Camera

	renderFence gpu.Fence
	// renderNext is the next value the direct queue signals. The last
	// signaled value is renderNext-1.
	renderNext  uint64
	frameValues []uint64

	copyFence gpu.Fence
	copyValue uint64

	heap         gpu.SharedHeap
	shared       [2]gpu.Buffer
	local        [2]gpu.Buffer
	computeFence gpu.Waitable

	// sharedIndex mirrors the producer's slot index: the slot the
	// producer most recently finished. currentIndex is the local slot
	// the next draw samples.
	sharedIndex  uint32
	currentIndex uint32

	async bool

	maxParticles uint32
	vsync        bool
	fullscreen   bool

	particleSize      float32
	particleIntensity float32
}

// New builds a render stage on the given device.
func New(cfg Config) (*Stage, error) {
	if cfg.MaxParticles == 0 {
		return nil, ErrZeroParticles
	}
	if cfg.Device == nil {
		return nil, extension.ErrNoDevice
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	direct, err := cfg.Helper.CreateQueue(gpu.QueueDirect, cfg.PreferThrottle)
	if err != nil {
		return nil, fmt.Errorf("render: create direct queue: %w", err)
	}
	copier, err := cfg.Device.CreateQueue(gpu.QueueCopy, false)
	if err != nil {
		direct.Destroy()
		return nil, fmt.Errorf("render: create copy queue: %w", err)
	}

	s := &Stage{
		device:       cfg.Device,
		direct:       direct,
		copier:       copier,
		timer:        gputimer.New(direct, 1),
		copyTimer:    gputimer.New(copier, 1),
		log:          log,
		camera:       NewCamera(cfg.Width, cfg.Height),
		renderNext:   1,
		maxParticles: cfg.MaxParticles,
		vsync:        cfg.Vsync,
		fullscreen:   cfg.Fullscreen,

		particleSize:      cfg.ParticleSize,
		particleIntensity: cfg.ParticleIntensity,
	}
	s.timer.SetName(timerDraw, "draw")
	s.copyTimer.SetName(timerCopy, "copy")

	s.renderFence, err = cfg.Device.CreateFence(0, 0)
	if err != nil {
		s.Destroy()
		return nil, fmt.Errorf("render: create render fence: %w", err)
	}

	var flags gpu.FenceFlags
	if cfg.Shared {
		flags = gpu.FenceShared
	}
	s.copyFence, err = cfg.Device.CreateFence(0, flags)
	if err != nil {
		s.Destroy()
		return nil, fmt.Errorf("render: create copy fence: %w", err)
	}

	for i := range s.local {
		s.local[i], err = cfg.Device.CreateBuffer(&gpu.BufferDescriptor{
			Label: fmt.Sprintf("local-position[%d]", i),
			Size:  uint64(cfg.MaxParticles) * uint64(kernel.ParticleSize),
		})
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("render: create local buffer: %w", err)
		}
	}

	s.presenter, err = cfg.Device.CreatePresenter(&gpu.PresenterDescriptor{
		Label:       "particles",
		Queue:       direct,
		BufferCount: cfg.BufferCount,
		Width:       cfg.Width,
		Height:      cfg.Height,
	})
	if err != nil {
		s.Destroy()
		return nil, fmt.Errorf("render: create presenter: %w", err)
	}
	s.frameValues = make([]uint64, s.presenter.BufferCount())

	log.Debug("render stage ready",
		"adapter", cfg.Device.Adapter().Info().Name,
		"max_particles", cfg.MaxParticles,
		"buffers", s.presenter.BufferCount(),
		"tearing", s.presenter.TearingSupported())
	return s, nil
}

// SetShared imports the producer's heap and fence and places wait-only
// views of its two position slots.
func (s *Stage) SetShared(h gpu.SharedHandles) error {
	heap, err := s.device.OpenSharedHeap(h.Heap)
	if err != nil {
		return fmt.Errorf("render: open shared heap: %w", err)
	}
	fence, err := s.device.OpenSharedFence(h.Fence)
	if err != nil {
		heap.Destroy()
		return fmt.Errorf("render: open compute fence: %w", err)
	}

	var shared [2]gpu.Buffer
	for i := range shared {
		shared[i], err = s.device.CreatePlacedBuffer(heap, uint64(i)*h.AlignedStride, &gpu.BufferDescriptor{
			Label: fmt.Sprintf("shared-position[%d]", i),
			Size:  uint64(s.maxParticles) * uint64(kernel.ParticleSize),
		})
		if err != nil {
			for _, b := range shared {
				if b != nil {
					b.Destroy()
				}
			}
			heap.Destroy()
			return fmt.Errorf("render: place shared buffer: %w", err)
		}
	}

	s.releaseShared()
	s.heap = heap
	s.shared = shared
	s.computeFence = fence
	// The producer's index names the slot holding its newest
	// completed data; the mirror starts on the other slot so the
	// first copy reads the newest one and then alternates in
	// lockstep with the producer's writes.
	s.sharedIndex = 1 - h.BufferIndex
	s.async = false
	return nil
}

// SetAsyncMode toggles async-aliased operation. While aliased the
// producer writes the local slots directly, so the copy step keeps
// its fence traffic for timeline symmetry but records no copy.
func (s *Stage) SetAsyncMode(async bool) {
	s.async = async
	if async {
		s.log.Info("render stage in async-compute mode")
	}
}

// SetComputeFence attaches the producer's fence directly, used in
// async-aliased mode where both stages share a device and no handle
// export is involved.
func (s *Stage) SetComputeFence(w gpu.Waitable) {
	s.releaseShared()
	s.computeFence = w
}

// Fence returns the render timeline fence the producer waits on while
// async-aliased.
func (s *Stage) Fence() gpu.Fence { return s.renderFence }

// CopyFenceValue returns the latest copy timeline value.
func (s *Stage) CopyFenceValue() uint64 { return s.copyValue }

// Buffers returns the local position slots for async aliasing.
func (s *Stage) Buffers() [2]gpu.Buffer { return s.local }

// BufferIndex returns the local slot the next draw samples.
func (s *Stage) BufferIndex() uint32 { return s.currentIndex }

// Camera returns the stage's camera for host-side control.
func (s *Stage) Camera() *Camera { return s.camera }

// SetVsync toggles display synchronization for subsequent presents.
func (s *Stage) SetVsync(vsync bool) { s.vsync = vsync }

// SetParticleSize updates the point size used by subsequent draws.
func (s *Stage) SetParticleSize(size float32) { s.particleSize = size }

// SetParticleIntensity updates the additive brightness used by
// subsequent draws.
func (s *Stage) SetParticleIntensity(intensity float32) { s.particleIntensity = intensity }

// UsingExtension reports whether the direct queue runs on the vendor
// throttling extension. Changing it requires rebuilding the stage:
// the presenter is bound to the queue's identity.
func (s *Stage) UsingExtension() bool { return s.direct.Throttled() }

// CopyFenceHandle exports the copy fence so the producer can gate its
// writes on the consumer's reads.
func (s *Stage) CopyFenceHandle() (gpu.FenceHandle, error) {
	return s.copyFence.Handle()
}

// Presenter returns the presentation surface.
func (s *Stage) Presenter() gpu.Presenter { return s.presenter }

// copyResults pulls the newest simulation results into the local slot
// the next frame will draw.
//
// The wait on the producer's fence is enqueued after the copy
// commands: it gates the next frame's copy, while this frame's copy
// was gated by the value passed last frame. The trailing wait also
// chains host synchronization: the host waits on render, render waits
// on copy, copy waits on compute.
func (s *Stage) copyResults(computeValue uint64, count uint32) error {
	if count > s.maxParticles {
		count = s.maxParticles
	}

	// Wait on the previous frame's draw, which sampled the slot this
	// copy overwrites. Waiting on the current frame's value here
	// would deadlock.
	if s.renderNext > 1 {
		if err := s.copier.Wait(s.renderFence, s.renderNext-1); err != nil {
			return fmt.Errorf("render: copy wait render: %w", err)
		}
	}

	srcShared := 1 - s.sharedIndex
	dstLocal := 1 - s.currentIndex
	s.sharedIndex = 1 - s.sharedIndex

	if !s.async {
		enc, err := s.device.CreateEncoder(gpu.QueueCopy)
		if err != nil {
			return fmt.Errorf("render: copy encoder: %w", err)
		}
		s.copyTimer.Begin(enc, timerCopy)
		enc.Barrier(s.shared[srcShared])
		enc.CopyBuffer(s.local[dstLocal], 0, s.shared[srcShared], 0, uint64(count)*uint64(kernel.ParticleSize))
		s.copyTimer.End(enc, timerCopy)
		cb, err := enc.Finish()
		if err != nil {
			return fmt.Errorf("render: copy finish: %w", err)
		}
		if err := s.copier.Submit(cb); err != nil {
			return fmt.Errorf("render: copy submit: %w", err)
		}
	}

	if s.computeFence != nil && computeValue > 0 {
		if err := s.copier.Wait(s.computeFence, computeValue); err != nil {
			return fmt.Errorf("render: copy wait compute: %w", err)
		}
	}

	s.copyValue++
	if err := s.copier.Signal(s.copyFence, s.copyValue); err != nil {
		return fmt.Errorf("render: copy signal: %w", err)
	}
	return nil
}

// Draw renders one frame.
//
// computeValue is the producer's latest fence value; it gates the copy
// kicked off for the next frame. activeCount bounds the particles
// drawn and copiedCount the particles copied; they normally match but
// may be varied independently for bus stress experiments.
//
// Returns the copy fence value the producer passes to its next step,
// and a host wait handle when presentation has run ahead of the
// pipeline depth, nil otherwise.
func (s *Stage) Draw(activeCount, copiedCount uint32, computeValue uint64) (uint64, *gpu.HostWait, error) {
	if s.computeFence == nil {
		return 0, nil, ErrNoShared
	}
	if activeCount > s.maxParticles {
		activeCount = s.maxParticles
	}

	if err := s.copyResults(computeValue, copiedCount); err != nil {
		return 0, nil, err
	}

	enc, err := s.device.CreateEncoder(gpu.QueueDirect)
	if err != nil {
		return 0, nil, fmt.Errorf("render: draw encoder: %w", err)
	}

	src := s.local[s.currentIndex]
	s.currentIndex = 1 - s.currentIndex

	s.timer.Begin(enc, timerDraw)
	enc.DrawPoints(&gpu.DrawDescriptor{
		Positions: src,
		Count:     activeCount,
		Stride:    uint32(kernel.ParticleSize),
		Target:    s.presenter,
		ViewProj:  s.camera.ViewProj(),
		Size:      s.particleSize,
		Intensity: s.particleIntensity,
	})
	s.timer.End(enc, timerDraw)

	cb, err := enc.Finish()
	if err != nil {
		return 0, nil, fmt.Errorf("render: draw finish: %w", err)
	}
	if err := s.direct.Submit(cb); err != nil {
		return 0, nil, fmt.Errorf("render: draw submit: %w", err)
	}

	allowTearing := !s.vsync && !s.fullscreen && s.presenter.TearingSupported()
	if err := s.presenter.Present(s.vsync, allowTearing); err != nil {
		return 0, nil, fmt.Errorf("render: present: %w", err)
	}

	// Gates the next overwrite of the local slot and, via the copy
	// queue's trailing compute wait, chains the host to the whole
	// pipeline.
	if err := s.direct.Wait(s.copyFence, s.copyValue); err != nil {
		return 0, nil, fmt.Errorf("render: draw wait copy: %w", err)
	}

	wait, err := s.moveToNextFrame()
	if err != nil {
		return 0, nil, err
	}
	return s.copyValue, wait, nil
}

// SampleTimings folds retired timestamp pairs into the stage's timing
// averages. Call it after the frame's host wait so the sampled stamps
// have actually been written.
func (s *Stage) SampleTimings() {
	s.timer.Update(timerDraw)
	s.copyTimer.Update(timerCopy)
}

// moveToNextFrame signals the render timeline for the frame just
// submitted and returns a host wait handle if the back buffer about
// to be reused is still in flight.
func (s *Stage) moveToNextFrame() (*gpu.HostWait, error) {
	frame := s.presenter.FrameIndex()
	// Present has already advanced FrameIndex; the slot just
	// submitted is the previous one.
	prev := (frame + s.presenter.BufferCount() - 1) % s.presenter.BufferCount()
	s.frameValues[prev] = s.renderNext

	if err := s.direct.Signal(s.renderFence, s.renderNext); err != nil {
		return nil, fmt.Errorf("render: signal render fence: %w", err)
	}
	s.renderNext++

	if s.renderFence.Completed() >= s.frameValues[frame] {
		return nil, nil
	}
	return gpu.NewHostWait(s.renderFence, s.renderFence.Wait, s.frameValues[frame]), nil
}

// Times returns the stage's smoothed GPU timings in milliseconds.
func (s *Stage) Times() map[string]float64 {
	times := s.timer.Times()
	for name, ms := range s.copyTimer.Times() {
		times[name] = ms
	}
	return times
}

// Drain blocks until all work on both queues has retired. The copy
// queue is flushed through the direct queue so one host wait covers
// both.
func (s *Stage) Drain() error {
	s.copyValue++
	if err := s.copier.Signal(s.copyFence, s.copyValue); err != nil {
		return fmt.Errorf("render: drain copy signal: %w", err)
	}
	if err := s.direct.Wait(s.copyFence, s.copyValue); err != nil {
		return fmt.Errorf("render: drain copy wait: %w", err)
	}
	if err := s.direct.Signal(s.renderFence, s.renderNext); err != nil {
		return fmt.Errorf("render: drain signal: %w", err)
	}
	value := s.renderNext
	s.renderNext++
	if err := s.renderFence.Wait(value, drainTimeout); err != nil {
		return fmt.Errorf("render: drain wait: %w", err)
	}
	return nil
}

func (s *Stage) releaseShared() {
	for i := range s.shared {
		if s.shared[i] != nil {
			s.shared[i].Destroy()
			s.shared[i] = nil
		}
	}
	if v, ok := s.computeFence.(gpu.FenceView); ok {
		v.Release()
	}
	s.computeFence = nil
	if s.heap != nil {
		s.heap.Destroy()
		s.heap = nil
	}
}

// Destroy releases the stage's resources. In-flight work on both
// queues is drained first so the workers never touch freed memory.
// Partially constructed stages skip the drain.
func (s *Stage) Destroy() {
	if s.direct != nil && s.copier != nil && s.copyFence != nil && s.renderFence != nil {
		if err := s.Drain(); err != nil {
			s.log.Warn("drain before destroy failed", "err", err)
		}
	}
	s.releaseShared()
	if s.presenter != nil {
		s.presenter.Destroy()
	}
	for i := range s.local {
		if s.local[i] != nil {
			s.local[i].Destroy()
		}
	}
	if s.copyFence != nil {
		s.copyFence.Destroy()
	}
	if s.renderFence != nil {
		s.renderFence.Destroy()
	}
	if s.copier != nil {
		s.copier.Destroy()
	}
	if s.direct != nil {
		s.direct.Destroy()
	}
}
