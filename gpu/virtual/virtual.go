// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package virtual implements a gpu.Backend on the host CPU.
//
// The virtual backend emulates the full multi-adapter surface: it
// enumerates two adapters, allocates cross-adapter heaps as plain
// memory, exports heap and fence handles as tokens, and executes each
// queue on its own goroutine so GPU-side fence waits really gate
// submission order. Compute pipelines run their Native kernel.
//
// It exists so the whole pipeline, including the shared-heap handoff,
// runs and is testable on machines without two GPUs (or without any).
package virtual

import (
	"errors"
	"sync"

	"github.com/gogpu/particles/gpu"
	"github.com/gogpu/particles/gpu/backend"
)

func init() {
	backend.Register(backend.BackendVirtual, func() gpu.Backend { return New() })
}

// ErrForeignAdapter is returned when a device is opened on an adapter
// that did not come from this backend.
var ErrForeignAdapter = errors.New("virtual: adapter belongs to another backend")

type adapter struct {
	info gpu.AdapterInfo
}

func (a *adapter) Info() gpu.AdapterInfo { return a.info }

// Backend is the virtual GPU backend.
type Backend struct {
	mu       sync.Mutex
	adapters []*adapter
	devices  []*device
	inited   bool
}

// New returns a backend with the default two-adapter topology: a
// discrete adapter and a UMA adapter with the throttling extension.
func New() *Backend {
	return NewWithAdapters(
		gpu.AdapterInfo{Name: "Virtual Discrete GPU", Vendor: "gogpu", UMA: false, Throttle: false},
		gpu.AdapterInfo{Name: "Virtual UMA GPU", Vendor: "gogpu", UMA: true, Throttle: true},
	)
}

// NewWithAdapters returns a backend exposing exactly the given
// adapters. Tests use this to force single-adapter or no-adapter
// configurations.
func NewWithAdapters(infos ...gpu.AdapterInfo) *Backend {
	b := &Backend{}
	for _, info := range infos {
		b.adapters = append(b.adapters, &adapter{info: info})
	}
	return b
}

// Name implements gpu.Backend.
func (b *Backend) Name() string { return backend.BackendVirtual }

// Init implements gpu.Backend.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inited = true
	return nil
}

// Close implements gpu.Backend.
func (b *Backend) Close() {
	b.mu.Lock()
	devices := b.devices
	b.devices = nil
	b.inited = false
	b.mu.Unlock()

	for _, d := range devices {
		d.Destroy()
	}
}

// Adapters implements gpu.Backend.
func (b *Backend) Adapters() ([]gpu.Adapter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.adapters) == 0 {
		return nil, gpu.ErrNoAdapters
	}
	out := make([]gpu.Adapter, len(b.adapters))
	for i, a := range b.adapters {
		out[i] = a
	}
	return out, nil
}

// OpenDevice implements gpu.Backend.
func (b *Backend) OpenDevice(a gpu.Adapter) (gpu.Device, error) {
	va, ok := a.(*adapter)
	if !ok {
		return nil, ErrForeignAdapter
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	found := false
	for _, own := range b.adapters {
		if own == va {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrForeignAdapter
	}

	d := newDevice(va)
	b.devices = append(b.devices, d)
	return d, nil
}

// SharedHeaps implements gpu.Backend. The virtual backend always
// supports cross-adapter sharing.
func (b *Backend) SharedHeaps() bool { return true }
