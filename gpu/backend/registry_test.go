// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"testing"

	"github.com/gogpu/particles/gpu"
)

// fakeBackend is a minimal gpu.Backend for registry tests.
type fakeBackend struct {
	name string
}

func (f *fakeBackend) Name() string                               { return f.name }
func (f *fakeBackend) Init() error                                { return nil }
func (f *fakeBackend) Close()                                     {}
func (f *fakeBackend) Adapters() ([]gpu.Adapter, error)           { return nil, gpu.ErrNoAdapters }
func (f *fakeBackend) OpenDevice(gpu.Adapter) (gpu.Device, error) { return nil, gpu.ErrNoAdapters }
func (f *fakeBackend) SharedHeaps() bool                          { return false }

func TestRegisterAndGet(t *testing.T) {
	Register("fake", func() gpu.Backend { return &fakeBackend{name: "fake"} })
	defer Unregister("fake")

	if !IsRegistered("fake") {
		t.Error("IsRegistered(fake) = false after Register")
	}
	b := Get("fake")
	if b == nil {
		t.Fatal("Get(fake) = nil")
	}
	if b.Name() != "fake" {
		t.Errorf("Name() = %q, want %q", b.Name(), "fake")
	}
}

func TestGetUnknown(t *testing.T) {
	if b := Get("no-such-backend"); b != nil {
		t.Errorf("Get(unknown) = %v, want nil", b)
	}
	if IsRegistered("no-such-backend") {
		t.Error("IsRegistered(unknown) = true")
	}
}

func TestUnregister(t *testing.T) {
	Register("fake", func() gpu.Backend { return &fakeBackend{name: "fake"} })
	Unregister("fake")
	if IsRegistered("fake") {
		t.Error("IsRegistered(fake) = true after Unregister")
	}
}

func TestAvailableListsRegistered(t *testing.T) {
	Register("fake-a", func() gpu.Backend { return &fakeBackend{name: "fake-a"} })
	Register("fake-b", func() gpu.Backend { return &fakeBackend{name: "fake-b"} })
	defer Unregister("fake-a")
	defer Unregister("fake-b")

	names := Available()
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["fake-a"] || !found["fake-b"] {
		t.Errorf("Available() = %v, want it to include fake-a and fake-b", names)
	}
}

func TestDefaultPrefersPriorityOrder(t *testing.T) {
	Register(BackendVirtual, func() gpu.Backend { return &fakeBackend{name: BackendVirtual} })
	Register(BackendWGPU, func() gpu.Backend { return &fakeBackend{name: BackendWGPU} })
	defer Unregister(BackendVirtual)
	defer Unregister(BackendWGPU)

	b := Default()
	if b == nil {
		t.Fatal("Default() = nil")
	}
	if b.Name() != BackendWGPU {
		t.Errorf("Default().Name() = %q, want %q (hardware first)", b.Name(), BackendWGPU)
	}

	Unregister(BackendWGPU)
	b = Default()
	if b == nil || b.Name() != BackendVirtual {
		t.Errorf("Default() after dropping wgpu = %v, want virtual fallback", b)
	}
}

func TestReplaceRegistration(t *testing.T) {
	Register("fake", func() gpu.Backend { return &fakeBackend{name: "first"} })
	Register("fake", func() gpu.Backend { return &fakeBackend{name: "second"} })
	defer Unregister("fake")

	if got := Get("fake").Name(); got != "second" {
		t.Errorf("Name() = %q, want %q (later registration wins)", got, "second")
	}
}
