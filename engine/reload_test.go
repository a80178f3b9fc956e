package engine

import (
	"errors"
	"testing"
)

const reloadShader = `
@compute @workgroup_size(1)
fn buffer_a() { }

@compute @workgroup_size(1)
fn buffer_b() { }

@compute @workgroup_size(1)
fn main_image() { }
`

func TestReloadValidSource(t *testing.T) {
	eng, cleanup := newTestEngine(t, chainConfig(t))
	defer cleanup()

	gen := eng.Generation()
	if err := eng.Reload(reloadShader); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if eng.Generation() != gen+1 {
		t.Errorf("Generation = %d after reload, want %d", eng.Generation(), gen+1)
	}
	if err := eng.Dispatch(); err != nil {
		t.Fatalf("Dispatch after reload failed: %v", err)
	}
}

func TestReloadInvalidSourceKeepsPipeline(t *testing.T) {
	eng, cleanup := newTestEngine(t, chainConfig(t))
	defer cleanup()

	gen := eng.Generation()
	if err := eng.Reload("fn broken( {"); err == nil {
		t.Fatal("Reload of invalid WGSL must fail")
	}
	if eng.Generation() != gen {
		t.Errorf("Generation changed to %d on failed reload, want %d", eng.Generation(), gen)
	}
	// The engine keeps serving frames with the prior pipelines.
	if err := eng.Dispatch(); err != nil {
		t.Fatalf("Dispatch after failed reload: %v", err)
	}
}

func TestReloadEmptySource(t *testing.T) {
	eng, cleanup := newTestEngine(t, chainConfig(t))
	defer cleanup()

	if err := eng.Reload(""); !errors.Is(err, ErrNoShaderSource) {
		t.Errorf("Reload(\"\") = %v, want ErrNoShaderSource", err)
	}
}

func TestStartWatcherNoPath(t *testing.T) {
	eng, cleanup := newTestEngine(t, chainConfig(t))
	defer cleanup()

	if err := eng.StartWatcher(); !errors.Is(err, ErrNoReloadPath) {
		t.Errorf("StartWatcher without path = %v, want ErrNoReloadPath", err)
	}
}
