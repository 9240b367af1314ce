// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpu defines the device, queue, and fence abstraction the
// particle pipeline is written against.
//
// The interfaces model the subset of modern explicit GPU APIs the
// pipeline needs: multiple adapters per backend, multiple hardware
// command queues per device (direct, compute, copy), monotonic fences
// for cross-queue and cross-device ordering, and heaps that can be
// shared between two devices through exported handles.
//
// Two backends implement this package:
//
//   - virtual: a software device whose queues execute asynchronously
//     on goroutines, honoring fence waits exactly as hardware queues
//     do. All ordering properties of the pipeline hold (and are
//     tested) on this backend.
//   - wgpuhal: real hardware through gogpu/wgpu. WebGPU cannot
//     express cross-adapter heaps, so this backend only serves the
//     single-adapter (async compute) configuration.
//
// Cross-queue ordering is expressed through [Timeline], a monotonic
// fence counter instantiated once per queue role, so the wait/signal
// protocol is written once rather than hand-rolled per stage.
package gpu
