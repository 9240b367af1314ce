// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gputimer measures GPU stage durations from timestamp pairs
// recorded into command buffers, and smooths them with a trailing
// mean so displayed timings do not jitter frame to frame.
package gputimer

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/gogpu/particles/gpu"
)

// averageWindow is the number of samples in the trailing mean.
const averageWindow = 20

// Timer tracks a fixed set of named GPU timing regions. Each region
// owns a pair of timestamp slots; Begin and End record into them and
// Update resolves the pair into a duration sample.
//
// Timer methods are safe for concurrent use, though each region is
// normally driven by a single stage goroutine.
type Timer struct {
	mu      sync.Mutex
	queue   gpu.Queue
	names   []string
	samples [][]float64
	avgs    []float64
	// Host-side fallback start times for backends without GPU
	// timestamps.
	hostStart []time.Time
	hostTimes bool
}

// New creates a timer with capacity for count regions on the given
// queue.
func New(queue gpu.Queue, count uint32) *Timer {
	t := &Timer{
		queue:     queue,
		names:     make([]string, count),
		samples:   make([][]float64, count),
		avgs:      make([]float64, count),
		hostStart: make([]time.Time, count),
	}
	if _, ok := queue.TimestampNanos(0); !ok {
		t.hostTimes = true
	}
	return t
}

// SetName labels a timing region.
func (t *Timer) SetName(index uint32, name string) {
	t.mu.Lock()
	t.names[index] = name
	t.mu.Unlock()
}

// Name returns a region's label.
func (t *Timer) Name(index uint32) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.names[index]
}

// beginSlot and endSlot map a region index to its timestamp slots.
func beginSlot(index uint32) uint32 { return index * 2 }
func endSlot(index uint32) uint32   { return index*2 + 1 }

// Begin records the region start into the encoder.
func (t *Timer) Begin(enc gpu.CommandEncoder, index uint32) {
	if t.hostTimes {
		t.mu.Lock()
		t.hostStart[index] = time.Now()
		t.mu.Unlock()
		return
	}
	enc.WriteTimestamp(beginSlot(index))
}

// End records the region end into the encoder.
func (t *Timer) End(enc gpu.CommandEncoder, index uint32) {
	if t.hostTimes {
		return
	}
	enc.WriteTimestamp(endSlot(index))
}

// Update resolves the region's timestamp pair into a sample and
// refreshes its trailing average. Call once per frame after the
// region's work has retired.
func (t *Timer) Update(index uint32) {
	var ms float64
	if t.hostTimes {
		t.mu.Lock()
		start := t.hostStart[index]
		t.mu.Unlock()
		if start.IsZero() {
			return
		}
		ms = float64(time.Since(start)) / float64(time.Millisecond)
	} else {
		begin, _ := t.queue.TimestampNanos(beginSlot(index))
		end, _ := t.queue.TimestampNanos(endSlot(index))
		if end <= begin {
			return
		}
		ms = float64(end-begin) / float64(time.Millisecond)
	}

	t.mu.Lock()
	s := append(t.samples[index], ms)
	if len(s) > averageWindow {
		s = s[len(s)-averageWindow:]
	}
	t.samples[index] = s
	t.avgs[index] = stat.Mean(s, nil)
	t.mu.Unlock()
}

// Milliseconds returns the region's trailing-average duration.
func (t *Timer) Milliseconds(index uint32) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.avgs[index]
}

// Times returns all region averages paired with their names.
func (t *Timer) Times() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]float64, len(t.names))
	for i, name := range t.names {
		if name == "" {
			continue
		}
		out[name] = t.avgs[i]
	}
	return out
}
