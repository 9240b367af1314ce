// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import "errors"

// Errors shared by all backends.
var (
	// ErrNoAdapters is returned when a backend enumerates zero usable adapters.
	ErrNoAdapters = errors.New("gpu: no adapters found")

	// ErrDeviceDestroyed is returned when operating on a destroyed device.
	ErrDeviceDestroyed = errors.New("gpu: device has been destroyed")

	// ErrQueueDestroyed is returned when submitting to a destroyed queue.
	ErrQueueDestroyed = errors.New("gpu: queue has been destroyed")

	// ErrBufferDestroyed is returned when operating on a destroyed buffer.
	ErrBufferDestroyed = errors.New("gpu: buffer has been destroyed")

	// ErrSharedUnsupported is returned by backends that cannot share
	// heaps or fences across adapters.
	ErrSharedUnsupported = errors.New("gpu: cross-adapter sharing not supported")

	// ErrThrottleUnsupported is returned when a throttled queue is
	// requested on an adapter without the command-queue extension.
	ErrThrottleUnsupported = errors.New("gpu: command queue throttling not supported")

	// ErrInvalidHandle is returned when importing a shared handle whose
	// exporter no longer exists. This is fatal: the channel must be
	// re-established from the exporting side, not retried.
	ErrInvalidHandle = errors.New("gpu: shared handle does not resolve")

	// ErrFenceNotShared is returned when exporting a fence that was not
	// created with FenceShared.
	ErrFenceNotShared = errors.New("gpu: fence is not shareable")

	// ErrOutOfRange is returned when a buffer access exceeds the
	// buffer's size.
	ErrOutOfRange = errors.New("gpu: access out of range")

	// ErrNilDescriptor is returned when a creation call receives a nil
	// descriptor.
	ErrNilDescriptor = errors.New("gpu: descriptor is nil")

	// ErrWaitTimeout is returned when a bounded host-side wait expires
	// before the fence reaches the requested value.
	ErrWaitTimeout = errors.New("gpu: wait timed out")
)
