// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend selects and constructs gpu.Backend implementations.
//
// A backend package announces itself through Register, usually in its
// init, so a blank import is enough to make one selectable:
//
//	import _ "github.com/gogpu/particles/gpu/wgpuhal"
//	import _ "github.com/gogpu/particles/gpu/virtual"
package backend

import (
	"sync"

	"github.com/gogpu/particles/gpu"
)

// Well-known backend names.
const (
	// BackendWGPU drives real hardware through wgpu.
	BackendWGPU = "wgpu"
	// BackendVirtual executes on the host CPU with full shared-heap
	// and multi-adapter emulation.
	BackendVirtual = "virtual"
)

// Factory creates a new backend instance.
type Factory func() gpu.Backend

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// preferred orders Default's search. Hardware wins when it is linked
// in; the virtual backend is the fallback.
var preferred = []string{BackendWGPU, BackendVirtual}

// Register makes a factory selectable under name, replacing any
// earlier registration for the same name.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// Unregister drops a registration. Tests use it to simulate builds
// without a given backend.
func Unregister(name string) {
	mu.Lock()
	defer mu.Unlock()
	delete(factories, name)
}

// Available lists the registered backend names in no particular order.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}

// IsRegistered reports whether name has a registered factory.
func IsRegistered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Get constructs the backend registered under name, or nil when none
// is registered.
func Get(name string) gpu.Backend {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil
	}
	return factory()
}

// Default constructs the most capable registered backend: the
// preferred names in order, then any other registration. Returns nil
// when nothing usable is registered.
func Default() gpu.Backend {
	mu.RLock()
	defer mu.RUnlock()

	tried := make(map[string]bool, len(preferred))
	for _, name := range preferred {
		tried[name] = true
		if factory, ok := factories[name]; ok {
			if b := factory(); b != nil {
				return b
			}
		}
	}
	for name, factory := range factories {
		if tried[name] {
			continue
		}
		if b := factory(); b != nil {
			return b
		}
	}
	return nil
}
