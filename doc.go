// Package compute provides a declarative layer for building multi-pass GPU
// compute pipelines in the GoGPU ecosystem.
//
// # Overview
//
// An application describes a graph of compute passes — each pass one kernel
// invocation over a 2D grid or a custom element count — without hand-writing
// the bookkeeping needed to feed a pass's previous output back into itself,
// or to let one pass read another's current-frame result. Every named buffer
// is backed by exactly two physical GPU buffers (ping-pong), and the engine
// resolves, every frame, which side is readable and which is writable.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/compute"
//	    "github.com/gogpu/compute/engine"
//	)
//
//	cfg, err := compute.NewBuilder().
//	    Label("fluid").
//	    Passes(
//	        compute.NewPass("velocity", "velocity"),           // self-feedback
//	        compute.NewPass("pressure", "velocity", "pressure"),
//	        compute.NewPass("main_image", "velocity", "pressure"),
//	    ).
//	    UniformSize(64).
//	    Build()
//	if err != nil {
//	    // configuration mistake: too many inputs, unknown buffer name, ...
//	}
//
//	eng, err := engine.New(device, queue, cfg, wgslSource, 800, 600)
//	...
//	eng.SetTime(t, dt)
//	eng.Dispatch()        // records all passes in declaration order
//	pixels, _ := eng.ReadOutput()
//
// # Pass ordering and feedback
//
// Within one Dispatch, passes execute in declaration order: a pass observes
// exactly the same-frame writes of passes declared earlier than it, plus its
// own previous output when it lists itself as an input. Cross-frame feedback
// for display-only chains is handed off with FlipAll once per presented
// frame.
//
// The declaration layer in this package is device-free: configurations
// build and validate without a GPU context. The engine subpackage holds
// everything device-dependent.
package compute
