// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package compute is the producer side of the pipeline: it advances
// particle state with a compute dispatch each frame, double-buffering
// between two position slots placed in a cross-adapter heap, and
// publishes a monotonically increasing fence value when each step's
// data is complete.
package compute

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
	// ErrNotShared is returned when shared handles are requested from
	// a stage built without a cross-adapter heap.
	ErrNotShared = errors.New("compute: stage has no shared heap")

	// ErrZeroParticles is returned when constructed with no capacity.
	ErrZeroParticles = errors.New("compute: max particle count is zero")
)

// drainTimeout bounds the host wait in Drain.
const drainTimeout = 10 * time.Second

// Config describes a simulation stage.
type Config struct {
	// Device is the compute adapter's device.
	Device gpu.Device

	// Helper creates the compute queue, negotiating the vendor
	// throttling extension when preferred.
	Helper *extension.Helper

	// PreferThrottle requests the extension queue path.
	PreferThrottle bool

	// MaxParticles fixes buffer capacity for the stage's lifetime.
	MaxParticles uint32

	// Shared places the position slots in an exportable cross-adapter
	// heap. When false the slots are plain device buffers; the stage
	// can still run, but only aliased to a same-device consumer.
	Shared bool

	// Logger receives stage events. Nil disables logging.
	Logger *slog.Logger
}

// Stage is the simulation stage. Not safe for concurrent use; the
// orchestrator drives it from one goroutine.
type Stage struct {
	device gpu.Device
	queue  gpu.Queue
	helper *extension.Helper
	timer  *gputimer.Timer
	log    *slog.Logger

	pipeline gpu.ComputePipeline

	// timeline pairs the queue with the completion fence and tracks
	// the last value a signal was enqueued for.
	timeline *gpu.Timeline

	heap          gpu.SharedHeap
	alignedStride uint64

	// own holds the stage's position slots. positions points at own
	// except while aliased to the consumer's local buffers.
	own        [2]gpu.Buffer
	positions  [2]gpu.Buffer
	velocities [2]gpu.Buffer
	aliased    bool

	// consumer gates each dispatch: the previous frame's read of the
	// slot about to be overwritten must have retired.
	consumer gpu.Waitable

	// index is the slot holding the most recently completed data.
	// Each step reads index and writes 1-index.
	index uint32

	maxParticles uint32
}

// New builds a simulation stage on the given device.
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

	queue, err := cfg.Helper.CreateQueue(gpu.QueueCompute, cfg.PreferThrottle)
	if err != nil {
		return nil, fmt.Errorf("compute: create queue: %w", err)
	}

	var flags gpu.FenceFlags
	if cfg.Shared {
		flags = gpu.FenceShared
	}
	fence, err := cfg.Device.CreateFence(0, flags)
	if err != nil {
		queue.Destroy()
		return nil, fmt.Errorf("compute: create fence: %w", err)
	}

	pipeline, err := cfg.Device.CreateComputePipeline(kernel.PipelineDescriptor())
	if err != nil {
		fence.Destroy()
		queue.Destroy()
		return nil, fmt.Errorf("compute: create pipeline: %w", err)
	}

	s := &Stage{
		device:       cfg.Device,
		queue:        queue,
		helper:       cfg.Helper,
		timer:        gputimer.New(queue, 1),
		log:          log,
		pipeline:     pipeline,
		timeline:     gpu.NewTimeline(queue, fence, 0),
		maxParticles: cfg.MaxParticles,
	}
	s.timer.SetName(0, "simulate")

	for i := range s.velocities {
		s.velocities[i], err = cfg.Device.CreateBuffer(&gpu.BufferDescriptor{
			Label: fmt.Sprintf("velocity[%d]", i),
			Size:  uint64(cfg.MaxParticles) * uint64(kernel.VelocitySize),
		})
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("compute: create velocity buffer: %w", err)
		}
	}

	if err := s.createPositionBuffers(cfg.Shared); err != nil {
		s.Destroy()
		return nil, err
	}
	s.positions = s.own

	log.Debug("compute stage ready",
		"adapter", cfg.Device.Adapter().Info().Name,
		"max_particles", cfg.MaxParticles,
		"throttled", queue.Throttled(),
		"shared", cfg.Shared)
	return s, nil
}

// createPositionBuffers allocates the two position slots, placed in a
// cross-adapter heap at placement-aligned offsets when shared.
func (s *Stage) createPositionBuffers(shared bool) error {
	size := uint64(s.maxParticles) * uint64(kernel.ParticleSize)

	if !shared {
		for i := range s.own {
			buf, err := s.device.CreateBuffer(&gpu.BufferDescriptor{
				Label: fmt.Sprintf("position[%d]", i),
				Size:  size,
			})
			if err != nil {
				return fmt.Errorf("compute: create position buffer: %w", err)
			}
			s.own[i] = buf
		}
		return nil
	}

	s.alignedStride = alignUp(size, s.device.HeapAlignment())
	heap, err := s.device.CreateSharedHeap(&gpu.HeapDescriptor{
		Label: "particle-heap",
		Size:  2 * s.alignedStride,
	})
	if err != nil {
		return fmt.Errorf("compute: create shared heap: %w", err)
	}
	s.heap = heap

	for i := range s.own {
		s.own[i], err = s.device.CreatePlacedBuffer(heap, uint64(i)*s.alignedStride, &gpu.BufferDescriptor{
			Label: fmt.Sprintf("position[%d]", i),
			Size:  size,
		})
		if err != nil {
			return fmt.Errorf("compute: place position buffer: %w", err)
		}
	}
	return nil
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

// ShareHandles exports the heap and fence for the consuming device
// plus the layout the consumer needs to place matching buffers.
func (s *Stage) ShareHandles() (gpu.SharedHandles, error) {
	if s.heap == nil {
		return gpu.SharedHandles{}, ErrNotShared
	}
	heapHandle, err := s.heap.Handle()
	if err != nil {
		return gpu.SharedHandles{}, fmt.Errorf("compute: export heap: %w", err)
	}
	fenceHandle, err := s.timeline.Fence().Handle()
	if err != nil {
		return gpu.SharedHandles{}, fmt.Errorf("compute: export fence: %w", err)
	}
	return gpu.SharedHandles{
		Heap:          heapHandle,
		Fence:         fenceHandle,
		AlignedStride: s.alignedStride,
		BufferIndex:   s.index,
	}, nil
}

// SetConsumerFence attaches the consuming side's copy fence. Simulate
// waits on it before overwriting the slot the consumer last read.
func (s *Stage) SetConsumerFence(w gpu.Waitable) {
	s.consumer = w
}

// SetAsync switches the stage to async-aliased operation: both stages
// share one device, so the dispatch writes the consumer's local
// buffers directly and waits on its render fence instead of a copy
// fence. The stage's own slots are retained for ResetFromAsync.
func (s *Stage) SetAsync(w gpu.Waitable, buffers [2]gpu.Buffer, index uint32) {
	s.consumer = w
	s.positions = buffers
	s.index = index
	s.aliased = true
	s.log.Info("compute stage aliased to consumer buffers", "index", index)
}

// ResetFromAsync leaves async-aliased operation, migrating the latest
// particle state back into the stage's own slots with a host
// synchronous copy. No-op when not aliased.
func (s *Stage) ResetFromAsync() error {
	if !s.aliased {
		return nil
	}
	enc, err := s.device.CreateEncoder(gpu.QueueCompute)
	if err != nil {
		return fmt.Errorf("compute: reset encoder: %w", err)
	}
	size := uint64(s.maxParticles) * uint64(kernel.ParticleSize)
	src := s.positions[s.index]
	for i := range s.own {
		enc.CopyBuffer(s.own[i], 0, src, 0, size)
	}
	cb, err := enc.Finish()
	if err != nil {
		return fmt.Errorf("compute: reset finish: %w", err)
	}
	if err := s.queue.Submit(cb); err != nil {
		return fmt.Errorf("compute: reset submit: %w", err)
	}
	if err := s.Drain(); err != nil {
		return err
	}
	s.positions = s.own
	s.consumer = nil
	s.aliased = false
	s.log.Info("compute stage restored own buffers")
	return nil
}

// UsingExtension reports whether the compute queue currently runs on
// the vendor throttling extension.
func (s *Stage) UsingExtension() bool { return s.queue.Throttled() }

// SetUseExtension recreates the compute queue with or without the
// vendor extension. The queue can only be replaced while the device
// is idle, so the stage drains first. No-op when the setting already
// matches.
func (s *Stage) SetUseExtension(enabled bool) error {
	if enabled == s.queue.Throttled() {
		return nil
	}
	if err := s.Drain(); err != nil {
		return err
	}
	queue, err := s.helper.CreateQueue(gpu.QueueCompute, enabled)
	if err != nil {
		return fmt.Errorf("compute: recreate queue: %w", err)
	}
	s.queue.Destroy()
	s.queue = queue
	s.timeline = gpu.NewTimeline(queue, s.timeline.Fence(), s.timeline.Value())
	s.timer = gputimer.New(queue, 1)
	s.timer.SetName(0, "simulate")
	s.log.Info("compute queue recreated", "throttled", queue.Throttled())
	return nil
}

// Aliased reports whether the stage writes consumer-owned buffers.
func (s *Stage) Aliased() bool { return s.aliased }

// Aliases reports whether b is one of the stage's active position
// slots. Pointer identity, used to validate aliased-mode wiring.
func (s *Stage) Aliases(b gpu.Buffer) bool {
	return b == s.positions[0] || b == s.positions[1]
}

// Fence returns the stage's completion fence.
func (s *Stage) Fence() gpu.Fence { return s.timeline.Fence() }

// FenceValue returns the last published completion value.
func (s *Stage) FenceValue() uint64 { return s.timeline.Value() }

// BufferIndex returns the slot holding the most recent completed data.
func (s *Stage) BufferIndex() uint32 { return s.index }

// Positions returns the stage's active position slots.
func (s *Stage) Positions() [2]gpu.Buffer { return s.positions }

// Seed uploads initial particle state into both slots of both buffers
// so either ping-pong phase starts from the same data.
func (s *Stage) Seed(particles []kernel.Particle, velocities []kernel.Velocity) error {
	return s.ImportState(kernel.ParticleBytes(particles), kernel.VelocityBytes(velocities), 0)
}

// ImportState restores particle state captured from another stage
// instance, used when reconfiguration rebuilds the compute side
// without restarting the simulation. The uploads have retired by the
// time it returns, so a consumer may read the shared slots right away.
func (s *Stage) ImportState(positions, velocities []byte, index uint32) error {
	for i := 0; i < 2; i++ {
		if err := s.queue.WriteBuffer(s.positions[i], 0, positions); err != nil {
			return fmt.Errorf("compute: import positions[%d]: %w", i, err)
		}
		if err := s.queue.WriteBuffer(s.velocities[i], 0, velocities); err != nil {
			return fmt.Errorf("compute: import velocities[%d]: %w", i, err)
		}
	}
	// Flush through a throwaway fence rather than the timeline so the
	// published completion value stays untouched.
	flush, err := s.device.CreateFence(0, 0)
	if err != nil {
		return fmt.Errorf("compute: import flush fence: %w", err)
	}
	defer flush.Destroy()
	if err := s.queue.Signal(flush, 1); err != nil {
		return fmt.Errorf("compute: import flush signal: %w", err)
	}
	if err := flush.Wait(1, drainTimeout); err != nil {
		return fmt.Errorf("compute: import flush wait: %w", err)
	}
	s.index = index
	return nil
}

// Snapshot reads back the current particle state for migration into a
// replacement stage. Drains the queue first; fails on backends that
// cannot map device memory.
func (s *Stage) Snapshot() (positions, velocities []byte, index uint32, err error) {
	if err = s.Drain(); err != nil {
		return nil, nil, 0, err
	}
	positions = make([]byte, uint64(s.maxParticles)*uint64(kernel.ParticleSize))
	if err = s.queue.ReadBuffer(s.positions[s.index], 0, positions); err != nil {
		return nil, nil, 0, fmt.Errorf("compute: snapshot positions: %w", err)
	}
	velocities = make([]byte, uint64(s.maxParticles)*uint64(kernel.VelocitySize))
	if err = s.queue.ReadBuffer(s.velocities[s.index], 0, velocities); err != nil {
		return nil, nil, 0, fmt.Errorf("compute: snapshot velocities: %w", err)
	}
	return positions, velocities, s.index, nil
}

// Simulate advances the simulation one step.
//
// activeCount bounds the elements the kernel touches; it is clamped
// to the stage capacity. consumerValue is the consumer's latest copy
// fence value; the dispatch waits for consumerValue-1 so the previous
// frame's read of the slot being overwritten has retired.
//
// Returns the fence value published for this step.
func (s *Stage) Simulate(activeCount uint32, consumerValue uint64) (uint64, error) {
	if activeCount > s.maxParticles {
		activeCount = s.maxParticles
	}

	if s.consumer != nil && consumerValue > 1 {
		if err := s.queue.Wait(s.consumer, consumerValue-1); err != nil {
			return 0, fmt.Errorf("compute: wait consumer: %w", err)
		}
	}

	read := s.index
	write := 1 - s.index
	groups := (activeCount + kernel.BlockSize - 1) / kernel.BlockSize

	enc, err := s.device.CreateEncoder(gpu.QueueCompute)
	if err != nil {
		return 0, fmt.Errorf("compute: create encoder: %w", err)
	}

	s.timer.Begin(enc, 0)
	enc.Dispatch(&gpu.DispatchDescriptor{
		Pipeline: s.pipeline,
		Groups:   [3]uint32{groups, 1, 1},
		Bindings: []gpu.Binding{
			{Buffer: s.positions[read], Access: gpu.BindReadOnly},
			{Buffer: s.velocities[read], Access: gpu.BindReadOnly},
			{Buffer: s.positions[write], Access: gpu.BindReadWrite},
			{Buffer: s.velocities[write], Access: gpu.BindReadWrite},
		},
		Params:  []uint32{activeCount, groups},
		ParamsF: []float32{kernel.Timestep, kernel.Damping},
	})
	enc.Barrier(s.positions[write])
	s.timer.End(enc, 0)

	cb, err := enc.Finish()
	if err != nil {
		return 0, fmt.Errorf("compute: finish encoder: %w", err)
	}
	if err := s.queue.Submit(cb); err != nil {
		return 0, fmt.Errorf("compute: submit: %w", err)
	}

	value, err := s.timeline.Signal()
	if err != nil {
		return 0, fmt.Errorf("compute: signal: %w", err)
	}
	s.index = write
	return value, nil
}

// SampleTimings folds retired timestamp pairs into the stage's timing
// averages. Call it after the frame's host wait so the sampled stamps
// have actually been written.
func (s *Stage) SampleTimings() { s.timer.Update(0) }

// Times returns the stage's smoothed GPU timings in milliseconds.
func (s *Stage) Times() map[string]float64 { return s.timer.Times() }

// Drain blocks until all work enqueued on the stage's queue has
// retired.
func (s *Stage) Drain() error {
	if err := s.timeline.Drain(drainTimeout); err != nil {
		return fmt.Errorf("compute: drain: %w", err)
	}
	return nil
}

// Destroy releases the stage's resources. Aliased position buffers
// belong to the consumer and are left alone. In-flight work is
// drained first so the queue worker never touches freed memory.
func (s *Stage) Destroy() {
	if s.timeline != nil {
		if err := s.Drain(); err != nil {
			s.log.Warn("drain before destroy failed", "err", err)
		}
	}
	for i := range s.velocities {
		if s.velocities[i] != nil {
			s.velocities[i].Destroy()
		}
	}
	for i := range s.own {
		if s.own[i] != nil {
			s.own[i].Destroy()
		}
	}
	if s.heap != nil {
		s.heap.Destroy()
	}
	if s.pipeline != nil {
		s.pipeline.Destroy()
	}
	if s.timeline != nil {
		s.timeline.Destroy()
	}
}
