// Package particles coordinates an N-body particle pipeline across
// two GPU adapters: a compute adapter that advances the simulation
// and a render adapter that draws and presents it.
//
// # Overview
//
// Simulation results stream from the compute adapter to the render
// adapter through a cross-adapter shared heap. Three hardware queues
// (direct, compute, copy) run concurrently, synchronized exclusively
// by monotonic fences; the host performs at most one bounded wait per
// frame, to cap presentation latency. Position buffers are
// double-buffered so each stage reads one slot while the other is
// written.
//
// # Quick Start
//
//	import "github.com/gogpu/particles"
//
//	sys, err := particles.New(particles.DefaultOptions())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sys.Destroy()
//
//	for i := 0; i < 600; i++ {
//		if err := sys.Tick(); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// # Architecture
//
// The module is organized into:
//   - Root: System orchestrator, options, seeding, data model
//   - gpu/: device abstraction, fences, timelines; gpu/backend
//     registry; gpu/virtual software backend; gpu/wgpuhal hardware
//     backend
//   - compute/, render/: the producer and consumer pipeline stages
//   - kernel/: the simulation kernel (WGSL source + CPU reference)
//   - gputimer/, extension/: telemetry and vendor queue negotiation
//
// When compute and render resolve to the same adapter the system
// switches to async-compute aliasing: both stages share one device
// and the cross-adapter copy short-circuits.
package particles
