package particles

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/particles/gpu"
	"github.com/gogpu/particles/gpu/virtual"
	"github.com/gogpu/particles/kernel"
)

const testParticles = 256

func testOptions(b gpu.Backend) Options {
	opts := DefaultOptions()
	opts.MaxParticles = testParticles
	opts.NumSimulated = testParticles
	opts.NumCopied = testParticles
	opts.NumDrawn = testParticles
	opts.Width = 64
	opts.Height = 64
	opts.Vsync = false
	opts.Backend = b
	return opts
}

func newTestSystem(t *testing.T, opts Options) *System {
	t.Helper()
	sys, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(sys.Destroy)
	return sys
}

func TestNewValidation(t *testing.T) {
	opts := testOptions(virtual.New())
	opts.MaxParticles = 0
	if _, err := New(opts); !errors.Is(err, ErrNoParticles) {
		t.Errorf("New(zero particles) error = %v, want ErrNoParticles", err)
	}

	opts = testOptions(virtual.New())
	opts.Width = 0
	if _, err := New(opts); !errors.Is(err, ErrNoSurface) {
		t.Errorf("New(zero surface) error = %v, want ErrNoSurface", err)
	}
}

func TestAdapterAssignment(t *testing.T) {
	sys := newTestSystem(t, testOptions(virtual.New()))

	infos := sys.Adapters()
	if len(infos) != 2 {
		t.Fatalf("len(Adapters()) = %d, want 2", len(infos))
	}
	if !infos[sys.ComputeAdapter()].UMA {
		t.Error("compute not assigned to the UMA adapter")
	}
	if infos[sys.RenderAdapter()].UMA {
		t.Error("render assigned to the UMA adapter")
	}
	if sys.Async() {
		t.Error("Async() = true with two adapters")
	}
}

func TestTickAdvancesPipeline(t *testing.T) {
	sys := newTestSystem(t, testOptions(virtual.New()))

	var lastCompute, lastCopy uint64
	for frame := uint64(1); frame <= 5; frame++ {
		if err := sys.Tick(); err != nil {
			t.Fatalf("Tick() frame %d error = %v", frame, err)
		}
		computeValue := sys.Compute().FenceValue()
		copyValue := sys.Render().CopyFenceValue()
		if computeValue <= lastCompute {
			t.Errorf("frame %d compute fence %d, want > %d", frame, computeValue, lastCompute)
		}
		if copyValue <= lastCopy {
			t.Errorf("frame %d copy fence %d, want > %d", frame, copyValue, lastCopy)
		}
		lastCompute, lastCopy = computeValue, copyValue
	}

	if got := sys.Frame(); got != 5 {
		t.Errorf("Frame() = %d, want 5", got)
	}
	if lastCompute != 5 || lastCopy != 5 {
		t.Errorf("fence values = (%d, %d) after 5 frames, want (5, 5)", lastCompute, lastCopy)
	}
	if sys.State() != Steady {
		t.Errorf("State() = %v, want Steady", sys.State())
	}
}

func TestSingleAdapterRunsAsync(t *testing.T) {
	backend := virtual.NewWithAdapters(
		gpu.AdapterInfo{Name: "Solo GPU", Vendor: "gogpu", UMA: false},
	)
	sys := newTestSystem(t, testOptions(backend))

	if !sys.Async() {
		t.Fatal("Async() = false with one adapter")
	}
	if !sys.Compute().Aliased() {
		t.Error("compute stage not aliased in async mode")
	}
	for _, buf := range sys.Render().Buffers() {
		if !sys.Compute().Aliases(buf) {
			t.Error("compute stage does not alias the render local slots")
		}
	}

	for frame := 1; frame <= 3; frame++ {
		if err := sys.Tick(); err != nil {
			t.Fatalf("Tick() frame %d error = %v", frame, err)
		}
	}
}

func TestAsyncMatchesTwoAdapters(t *testing.T) {
	run := func(b gpu.Backend) []byte {
		t.Helper()
		sys := newTestSystem(t, testOptions(b))
		for frame := 1; frame <= 3; frame++ {
			if err := sys.Tick(); err != nil {
				t.Fatalf("Tick() frame %d error = %v", frame, err)
			}
		}
		positions, _, _, err := sys.Compute().Snapshot()
		if err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
		return positions
	}

	twoAdapter := run(virtual.New())
	single := run(virtual.NewWithAdapters(
		gpu.AdapterInfo{Name: "Solo GPU", Vendor: "gogpu", UMA: true, Throttle: true},
	))

	if !bytes.Equal(twoAdapter, single) {
		t.Error("async-aliased run diverged from the two-adapter run")
	}
}

func TestUnlinkedCopyCount(t *testing.T) {
	const copied = testParticles / 4
	opts := testOptions(virtual.New())
	opts.NumCopied = copied
	opts.Linked = false
	sys := newTestSystem(t, opts)

	for frame := 1; frame <= 2; frame++ {
		if err := sys.Tick(); err != nil {
			t.Fatalf("Tick() frame %d error = %v", frame, err)
		}
	}
	if err := sys.Drain(); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	want := uint64(copied) * uint64(kernel.ParticleSize)
	for i, buf := range sys.Render().Buffers() {
		lo, hi, ok := virtual.TouchedRange(buf)
		if !ok {
			t.Fatalf("TouchedRange(local[%d]) not available", i)
		}
		if lo != 0 || hi != want {
			t.Errorf("local[%d] touched [%d, %d), want [0, %d): copy count leaked", i, lo, hi, want)
		}
	}
}

func TestComputeAdapterSwitch(t *testing.T) {
	sys := newTestSystem(t, testOptions(virtual.New()))
	originalCompute := sys.ComputeAdapter()

	if err := sys.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	// Move compute onto the render adapter: the pipeline must come
	// back async-aliased with the simulation state migrated.
	if err := sys.SetComputeAdapter(sys.RenderAdapter()); err != nil {
		t.Fatalf("SetComputeAdapter() error = %v", err)
	}
	if err := sys.Tick(); err != nil {
		t.Fatalf("Tick() during switch error = %v", err)
	}
	if !sys.Async() {
		t.Fatal("Async() = false after moving compute to the render adapter")
	}
	for frame := 1; frame <= 2; frame++ {
		if err := sys.Tick(); err != nil {
			t.Fatalf("Tick() async frame %d error = %v", frame, err)
		}
	}

	// And back again to the dedicated adapter.
	if err := sys.SetComputeAdapter(originalCompute); err != nil {
		t.Fatalf("SetComputeAdapter() error = %v", err)
	}
	if err := sys.Tick(); err != nil {
		t.Fatalf("Tick() during switch back error = %v", err)
	}
	if sys.Async() {
		t.Fatal("Async() = true after moving compute back")
	}
	for frame := 1; frame <= 2; frame++ {
		if err := sys.Tick(); err != nil {
			t.Fatalf("Tick() shared frame %d error = %v", frame, err)
		}
	}
	if sys.State() != Steady {
		t.Errorf("State() = %v, want Steady", sys.State())
	}
}

func TestBadAdapterIndex(t *testing.T) {
	sys := newTestSystem(t, testOptions(virtual.New()))
	if err := sys.SetComputeAdapter(99); !errors.Is(err, ErrBadAdapter) {
		t.Errorf("SetComputeAdapter(99) error = %v, want ErrBadAdapter", err)
	}
	if err := sys.SetRenderAdapter(-1); !errors.Is(err, ErrBadAdapter) {
		t.Errorf("SetRenderAdapter(-1) error = %v, want ErrBadAdapter", err)
	}
}

func TestExtensionToggle(t *testing.T) {
	sys := newTestSystem(t, testOptions(virtual.New()))

	if !sys.ExtensionsEnabled() {
		t.Fatal("ExtensionsEnabled() = false, want true on the UMA adapter")
	}
	if !sys.Compute().UsingExtension() {
		t.Fatal("compute queue not on the extension path")
	}
	presenter := sys.Presenter()

	sys.SetExtensionsEnabled(false)
	if err := sys.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if sys.ExtensionsEnabled() {
		t.Error("ExtensionsEnabled() = true after disabling")
	}
	if sys.Compute().UsingExtension() {
		t.Error("compute queue still throttled after disabling")
	}
	// The render adapter has no extension support, so its stage and
	// presenter must survive the toggle untouched.
	if sys.Presenter() != presenter {
		t.Error("presenter replaced by a compute-only extension toggle")
	}

	sys.SetExtensionsEnabled(true)
	if err := sys.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if !sys.ExtensionsEnabled() {
		t.Error("ExtensionsEnabled() = false after re-enabling")
	}
}

func TestExtensionToggleRebuildsThrottledRender(t *testing.T) {
	// When the render adapter supports the extension too, the direct
	// queue identity changes with the toggle, forcing a render rebuild.
	backend := virtual.NewWithAdapters(
		gpu.AdapterInfo{Name: "Integrated", Vendor: "gogpu", UMA: true, Throttle: true},
		gpu.AdapterInfo{Name: "Discrete", Vendor: "gogpu", UMA: false, Throttle: true},
	)
	sys := newTestSystem(t, testOptions(backend))
	if !sys.Render().UsingExtension() {
		t.Fatal("render queue not on the extension path")
	}
	presenter := sys.Presenter()

	sys.SetExtensionsEnabled(false)
	if err := sys.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if sys.Presenter() == presenter {
		t.Error("presenter survived a render queue identity change, want rebuild")
	}
	if sys.Render().UsingExtension() {
		t.Error("render queue still throttled after disabling")
	}
	for frame := 1; frame <= 2; frame++ {
		if err := sys.Tick(); err != nil {
			t.Fatalf("Tick() frame %d after toggle error = %v", frame, err)
		}
	}
}

func TestFullscreenRebuildsRender(t *testing.T) {
	sys := newTestSystem(t, testOptions(virtual.New()))
	if err := sys.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	presenter := sys.Presenter()
	sys.SetFullscreen(true)
	if err := sys.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if sys.Presenter() == presenter {
		t.Error("presenter survived a fullscreen change, want rebuild")
	}
	for frame := 1; frame <= 2; frame++ {
		if err := sys.Tick(); err != nil {
			t.Fatalf("Tick() frame %d after fullscreen error = %v", frame, err)
		}
	}
}

func TestFramePreviewHasContent(t *testing.T) {
	sys := newTestSystem(t, testOptions(virtual.New()))
	for frame := 1; frame <= 4; frame++ {
		if err := sys.Tick(); err != nil {
			t.Fatalf("Tick() frame %d error = %v", frame, err)
		}
	}
	if err := sys.Drain(); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}

	img, ok := virtual.FrontBuffer(sys.Presenter())
	if !ok {
		t.Fatal("FrontBuffer() not available")
	}
	lit := 0
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		for x := img.Rect.Min.X; x < img.Rect.Max.X; x++ {
			if img.RGBAAt(x, y).R > 4 {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Error("no lit pixels after 4 frames")
	}
}

func TestDestroy(t *testing.T) {
	sys := newTestSystem(t, testOptions(virtual.New()))
	if err := sys.Tick(); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	sys.Destroy()
	sys.Destroy() // idempotent

	if err := sys.Tick(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Tick() after Destroy error = %v, want ErrNotConfigured", err)
	}
}

func TestTimesCarryRegionNames(t *testing.T) {
	sys := newTestSystem(t, testOptions(virtual.New()))
	for frame := 1; frame <= 4; frame++ {
		if err := sys.Tick(); err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
	}
	times := sys.Times()
	for _, name := range []string{"simulate", "copy", "draw"} {
		if _, ok := times[name]; !ok {
			t.Errorf("Times() missing region %q: %v", name, times)
		}
	}
	// Samples are folded in after the frame wait, once the stamps have
	// retired; by the fourth frame the dispatch region must have a
	// nonzero average.
	if times["simulate"] <= 0 {
		t.Errorf("Times()[simulate] = %v, want > 0", times["simulate"])
	}
}
