package engine

import (
	"errors"
	"testing"

	"github.com/gogpu/compute"
)

// testShader is a placeholder WGSL source for noop-backend tests. The noop
// backend does not compile shaders, but the engine still requires a
// non-empty source.
const testShader = `
@compute @workgroup_size(16, 16, 1)
fn main() { }
`

func newTestEngine(t *testing.T, cfg *compute.Config) (*Engine, func()) {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	eng, err := New(device, queue, cfg, testShader, 64, 64)
	if err != nil {
		cleanup()
		t.Fatalf("New failed: %v", err)
	}
	return eng, func() {
		eng.Close()
		cleanup()
	}
}

func TestNewRejectsEmptySource(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	if _, err := New(device, queue, chainConfig(t), "", 64, 64); !errors.Is(err, ErrNoShaderSource) {
		t.Errorf("New with empty source = %v, want ErrNoShaderSource", err)
	}
}

func TestDispatchDeclarationOrder(t *testing.T) {
	// A has no dependencies; B and C both read A; D reads B and C. D must
	// observe B's and C's same-call outputs even though B and C do not
	// depend on each other: ordering is total over declaration order.
	cfg, err := compute.NewBuilder().
		Passes(
			compute.NewPass("a"),
			compute.NewPass("b", "a"),
			compute.NewPass("c", "a"),
			compute.NewPass("d", "b", "c"),
		).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	eng, cleanup := newTestEngine(t, cfg)
	defer cleanup()

	if err := eng.Dispatch(); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	trace := eng.LastDispatch()
	if len(trace) != 4 {
		t.Fatalf("got %d trace entries, want 4", len(trace))
	}

	// B and C read the side A committed in this call.
	if trace[1].ReadSides[0] != trace[0].WriteSide {
		t.Errorf("b read a side %d, a wrote side %d", trace[1].ReadSides[0], trace[0].WriteSide)
	}
	if trace[2].ReadSides[0] != trace[0].WriteSide {
		t.Errorf("c read a side %d, a wrote side %d", trace[2].ReadSides[0], trace[0].WriteSide)
	}

	// D reads B's and C's this-call outputs.
	if trace[3].ReadHandles[0] != cfg.Handle("b") || trace[3].ReadSides[0] != trace[1].WriteSide {
		t.Errorf("d slot 0 = handle %d side %d, want b's write side %d",
			trace[3].ReadHandles[0], trace[3].ReadSides[0], trace[1].WriteSide)
	}
	if trace[3].ReadHandles[1] != cfg.Handle("c") || trace[3].ReadSides[1] != trace[2].WriteSide {
		t.Errorf("d slot 1 = handle %d side %d, want c's write side %d",
			trace[3].ReadHandles[1], trace[3].ReadSides[1], trace[2].WriteSide)
	}

	// No pass observes a write from a pass declared later: A ran first and
	// read only committed (initial) sides.
	if trace[0].ReadSides[0] != 0 {
		t.Errorf("a read side %d on first call, want initial side 0", trace[0].ReadSides[0])
	}
}

func TestDispatchBufferChain(t *testing.T) {
	cfg := chainConfig(t)
	eng, cleanup := newTestEngine(t, cfg)
	defer cleanup()

	if err := eng.Dispatch(); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	trace := eng.LastDispatch()
	m := eng.Manager()

	// read("buffer_b") now returns exactly the side main_image bound.
	hb := cfg.Handle("buffer_b")
	if m.LastWritten(hb) != trace[2].ReadSides[0] {
		t.Errorf("read(buffer_b) side %d, main_image bound side %d",
			m.LastWritten(hb), trace[2].ReadSides[0])
	}

	// read("buffer_a") returns exactly the side buffer_b's pass consumed.
	ha := cfg.Handle("buffer_a")
	if m.LastWritten(ha) != trace[1].ReadSides[0] {
		t.Errorf("read(buffer_a) side %d, buffer_b consumed side %d",
			m.LastWritten(ha), trace[1].ReadSides[0])
	}
}

func TestSelfFeedbackAlternates(t *testing.T) {
	cfg, err := compute.NewBuilder().
		Passes(
			compute.NewPass("acc", "acc"),
			compute.NewPass("main_image", "acc"),
		).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	eng, cleanup := newTestEngine(t, cfg)
	defer cleanup()

	var readSides, writeSides []uint8
	for i := 0; i < 4; i++ {
		if err := eng.Dispatch(); err != nil {
			t.Fatalf("Dispatch %d failed: %v", i, err)
		}
		trace := eng.LastDispatch()
		readSides = append(readSides, trace[0].ReadSides[0])
		writeSides = append(writeSides, trace[0].WriteSide)
	}

	wantReads := []uint8{0, 1, 0, 1}
	wantWrites := []uint8{1, 0, 1, 0}
	for i := range wantReads {
		if readSides[i] != wantReads[i] {
			t.Errorf("call %d: read side %d, want %d", i, readSides[i], wantReads[i])
		}
		if writeSides[i] != wantWrites[i] {
			t.Errorf("call %d: write side %d, want %d", i, writeSides[i], wantWrites[i])
		}
	}
}

func TestClearAllThenDispatch(t *testing.T) {
	cfg := chainConfig(t)
	eng, cleanup := newTestEngine(t, cfg)
	defer cleanup()

	for i := 0; i < 3; i++ {
		if err := eng.Dispatch(); err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
	}
	if err := eng.ClearAll(); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}

	m := eng.Manager()
	for h := 0; h < cfg.BufferCount(); h++ {
		if got := m.LastWritten(compute.BufferHandle(h)); got != 0 {
			t.Errorf("buffer %d: side %d after ClearAll, want 0", h, got)
		}
	}

	// The first read after clear must not fail even though content is zeros.
	if err := eng.Dispatch(); err != nil {
		t.Fatalf("Dispatch after ClearAll failed: %v", err)
	}
	if trace := eng.LastDispatch(); trace[0].ReadSides[0] != 0 {
		t.Errorf("first read after ClearAll bound side %d, want 0", trace[0].ReadSides[0])
	}
}

func TestResizeInvalidatesResources(t *testing.T) {
	cfg := chainConfig(t)
	eng, cleanup := newTestEngine(t, cfg)
	defer cleanup()

	if err := eng.Dispatch(); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	m := eng.Manager()
	oldRead := m.Read(0)
	oldOutput := m.Output()

	if err := eng.Resize(200, 100); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if m.Read(0) == oldRead {
		t.Error("reads after Resize must use newly created resources")
	}
	if m.Output() == oldOutput {
		t.Error("Resize must recreate the output buffer")
	}
	if err := eng.Dispatch(); err != nil {
		t.Fatalf("Dispatch after Resize failed: %v", err)
	}
}

func TestFinalPassBindsOutput(t *testing.T) {
	cfg := chainConfig(t)
	eng, cleanup := newTestEngine(t, cfg)
	defer cleanup()

	if err := eng.Dispatch(); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	trace := eng.LastDispatch()
	for i, sb := range trace {
		wantOutput := i == len(trace)-1
		if sb.Output != wantOutput {
			t.Errorf("pass %q: Output = %v, want %v", sb.Pass, sb.Output, wantOutput)
		}
	}
}

func TestSlotFilling(t *testing.T) {
	cfg, err := compute.NewBuilder().
		Passes(
			compute.NewPass("gen"),
			compute.NewPass("use", "gen"),
			compute.NewPass("main_image", "use"),
		).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	eng, cleanup := newTestEngine(t, cfg)
	defer cleanup()

	if err := eng.Dispatch(); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	trace := eng.LastDispatch()

	// A pass with no inputs binds its own previous output in all slots.
	self := cfg.Handle("gen")
	for j := 0; j < 3; j++ {
		if trace[0].ReadHandles[j] != self {
			t.Errorf("gen slot %d = handle %d, want self %d", j, trace[0].ReadHandles[j], self)
		}
	}

	// Unfilled slots repeat the first input.
	gen := cfg.Handle("gen")
	for j := 0; j < 3; j++ {
		if trace[1].ReadHandles[j] != gen {
			t.Errorf("use slot %d = handle %d, want %d", j, trace[1].ReadHandles[j], gen)
		}
	}
}

func TestGridDerivation(t *testing.T) {
	cfg, err := compute.NewBuilder().
		Passes(
			compute.NewPass("sim").WithDispatchOverride(4, 2, 1),
			compute.NewPass("main_image", "sim"),
		).
		Workgroup(16, 16, 1).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	eng, err := New(device, queue, cfg, testShader, 100, 50)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer eng.Close()

	if err := eng.Dispatch(); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	trace := eng.LastDispatch()

	if trace[0].Grid != [3]uint32{4, 2, 1} {
		t.Errorf("override grid = %v, want [4 2 1]", trace[0].Grid)
	}
	// ceil(100/16)=7, ceil(50/16)=4.
	if trace[1].Grid != [3]uint32{7, 4, 1} {
		t.Errorf("derived grid = %v, want [7 4 1]", trace[1].Grid)
	}
}

func TestDispatchStage(t *testing.T) {
	cfg := chainConfig(t)
	eng, cleanup := newTestEngine(t, cfg)
	defer cleanup()

	m := eng.Manager()
	hb := cfg.Handle("buffer_b")

	// Driving one stage flips only that buffer.
	if err := eng.DispatchStage(1); err != nil {
		t.Fatalf("DispatchStage failed: %v", err)
	}
	if m.LastWritten(hb) != 1 {
		t.Errorf("buffer_b side = %d after one stage, want 1", m.LastWritten(hb))
	}
	if m.LastWritten(cfg.Handle("buffer_a")) != 0 {
		t.Error("untouched buffer flipped")
	}

	// Iterating the same stage keeps flipping it, like a relaxation solver.
	for i := 0; i < 3; i++ {
		if err := eng.DispatchStage(1); err != nil {
			t.Fatalf("DispatchStage iteration failed: %v", err)
		}
	}
	if m.LastWritten(hb) != 0 {
		t.Errorf("buffer_b side = %d after 4 stage calls, want 0", m.LastWritten(hb))
	}

	if err := eng.DispatchStage(7); !errors.Is(err, ErrBadStage) {
		t.Errorf("DispatchStage(7) = %v, want ErrBadStage", err)
	}
}

func TestDispatchStageDims(t *testing.T) {
	cfg, err := compute.NewBuilder().
		Passes(
			compute.NewPass("solve", "solve"),
			compute.NewPass("main_image", "solve"),
		).
		Workgroup(64, 1, 1).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	eng, cleanup := newTestEngine(t, cfg)
	defer cleanup()

	// 1000 elements over 64-wide workgroups: ceil = 16.
	if err := eng.DispatchStageDims(0, 1000, 1, 1); err != nil {
		t.Fatalf("DispatchStageDims failed: %v", err)
	}
	trace := eng.LastDispatch()
	if len(trace) != 1 || trace[0].Grid != [3]uint32{16, 1, 1} {
		t.Errorf("grid = %v, want [16 1 1]", trace[0].Grid)
	}
}

func TestDispatchStageDimsZero(t *testing.T) {
	cfg, err := compute.NewBuilder().
		Passes(
			compute.NewPass("solve", "solve"),
			compute.NewPass("main_image", "solve"),
		).
		Workgroup(64, 1, 1).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	eng, cleanup := newTestEngine(t, cfg)
	defer cleanup()

	// Zero element counts still record one workgroup per axis rather than a
	// degenerate zero-sized dispatch.
	if err := eng.DispatchStageDims(0, 0, 0, 0); err != nil {
		t.Fatalf("DispatchStageDims failed: %v", err)
	}
	trace := eng.LastDispatch()
	if len(trace) != 1 || trace[0].Grid != [3]uint32{1, 1, 1} {
		t.Errorf("grid = %v, want [1 1 1]", trace[0].Grid)
	}
}

func TestResizeRepeated(t *testing.T) {
	cfg, err := compute.NewBuilder().
		Passes(
			compute.NewPass("acc", "acc"),
			compute.NewPass("main_image", "acc"),
		).
		InputImage().
		AtomicBuffer().
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	eng, cleanup := newTestEngine(t, cfg)
	defer cleanup()

	// Back-to-back resizes recreate every pixel-sized aux buffer and the
	// static bind groups each time; dispatch must keep working throughout.
	for _, dims := range [][2]int{{128, 64}, {32, 32}, {200, 100}} {
		if err := eng.Resize(dims[0], dims[1]); err != nil {
			t.Fatalf("Resize(%v) failed: %v", dims, err)
		}
		if err := eng.Dispatch(); err != nil {
			t.Fatalf("Dispatch after Resize(%v) failed: %v", dims, err)
		}
	}
}

func TestDispatchOnce(t *testing.T) {
	cfg, err := compute.NewBuilder().
		Passes(
			compute.NewPass("gen", "gen"),
			compute.NewPass("main_image", "gen"),
		).
		DispatchOnce().
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	eng, cleanup := newTestEngine(t, cfg)
	defer cleanup()

	if err := eng.Dispatch(); err != nil {
		t.Fatalf("first Dispatch failed: %v", err)
	}
	m := eng.Manager()
	after := m.LastWritten(cfg.Handle("gen"))

	// Second call records nothing.
	if err := eng.Dispatch(); err != nil {
		t.Fatalf("second Dispatch failed: %v", err)
	}
	if m.LastWritten(cfg.Handle("gen")) != after {
		t.Error("DispatchOnce pipeline flipped state on second call")
	}

	// ClearAll re-arms it.
	if err := eng.ClearAll(); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	if err := eng.Dispatch(); err != nil {
		t.Fatalf("Dispatch after ClearAll failed: %v", err)
	}
	if m.LastWritten(cfg.Handle("gen")) != 1 {
		t.Error("re-armed dispatch did not run")
	}
}

func TestFlipAllCrossFrameHandoff(t *testing.T) {
	cfg := chainConfig(t)
	eng, cleanup := newTestEngine(t, cfg)
	defer cleanup()

	if err := eng.Dispatch(); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	m := eng.Manager()
	before := []uint8{m.LastWritten(0), m.LastWritten(1), m.LastWritten(2)}

	eng.FlipAll()
	for h, b := range before {
		if got := m.LastWritten(compute.BufferHandle(h)); got != 1-b {
			t.Errorf("buffer %d: side %d after FlipAll, want %d", h, got, 1-b)
		}
	}
}

func TestReadOutput(t *testing.T) {
	cfg := chainConfig(t)
	eng, cleanup := newTestEngine(t, cfg)
	defer cleanup()

	if err := eng.Dispatch(); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	data, err := eng.ReadOutput()
	if err != nil {
		t.Fatalf("ReadOutput failed: %v", err)
	}
	if uint64(len(data)) != eng.Manager().OutputBytes() {
		t.Errorf("ReadOutput returned %d bytes, want %d", len(data), eng.Manager().OutputBytes())
	}
}

func TestEngineCloseIdempotent(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	eng, err := New(device, queue, chainConfig(t), testShader, 32, 32)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	eng.Close()
	eng.Close()

	if err := eng.Dispatch(); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Dispatch after Close = %v, want ErrEngineClosed", err)
	}
	if _, err := eng.ReadOutput(); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("ReadOutput after Close = %v, want ErrEngineClosed", err)
	}
}
