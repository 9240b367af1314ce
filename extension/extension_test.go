// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package extension

import (
	"errors"
	"testing"

	"github.com/gogpu/particles/gpu"
	"github.com/gogpu/particles/gpu/virtual"
)

func openDevices(t *testing.T) (uma, discrete gpu.Device) {
	t.Helper()
	b := virtual.New()
	t.Cleanup(b.Close)
	adapters, err := b.Adapters()
	if err != nil {
		t.Fatalf("Adapters() error = %v", err)
	}
	for _, a := range adapters {
		d, err := b.OpenDevice(a)
		if err != nil {
			t.Fatalf("OpenDevice() error = %v", err)
		}
		if a.Info().Throttle {
			uma = d
		} else {
			discrete = d
		}
	}
	return uma, discrete
}

func TestNewRequiresDevice(t *testing.T) {
	if _, err := New(nil, nil); !errors.Is(err, ErrNoDevice) {
		t.Errorf("New(nil) error = %v, want ErrNoDevice", err)
	}
}

func TestNegotiationFollowsAdapter(t *testing.T) {
	uma, discrete := openDevices(t)

	h, err := New(uma, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !h.Enabled() {
		t.Error("Enabled() = false on extension-capable adapter")
	}

	h, err = New(discrete, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if h.Enabled() {
		t.Error("Enabled() = true on plain adapter")
	}
}

func TestCreateQueueThrottlesWhenPreferred(t *testing.T) {
	uma, _ := openDevices(t)
	h, err := New(uma, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	q, err := h.CreateQueue(gpu.QueueCompute, true)
	if err != nil {
		t.Fatalf("CreateQueue(prefer) error = %v", err)
	}
	if !q.Throttled() {
		t.Error("Throttled() = false, want extension path")
	}

	q, err = h.CreateQueue(gpu.QueueCompute, false)
	if err != nil {
		t.Fatalf("CreateQueue(standard) error = %v", err)
	}
	if q.Throttled() {
		t.Error("Throttled() = true without preference")
	}
}

func TestCreateQueueFallsBackSilently(t *testing.T) {
	_, discrete := openDevices(t)
	h, err := New(discrete, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Preference on an adapter without the extension must produce a
	// standard queue, not an error.
	q, err := h.CreateQueue(gpu.QueueDirect, true)
	if err != nil {
		t.Fatalf("CreateQueue(prefer, unsupported) error = %v", err)
	}
	if q.Throttled() {
		t.Error("Throttled() = true on plain adapter")
	}
}
