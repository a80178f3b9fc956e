// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"fmt"

	"github.com/gogpu/compute"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// StageBinding records how one pass resolved during a dispatch: which buffer
// and side each read slot bound, which side (or Output) it wrote, and the
// workgroup grid it dispatched. Exposed through LastDispatch for tests and
// diagnostics.
type StageBinding struct {
	// Pass is the pass name.
	Pass string

	// ReadHandles are the buffer handles bound at read slots 0..2, after
	// slot filling.
	ReadHandles [3]compute.BufferHandle

	// ReadSides are the physical sides bound at read slots 0..2.
	ReadSides [3]uint8

	// WriteSide is the physical side written, meaningless when Output is set.
	WriteSide uint8

	// Output is true when the pass wrote the distinguished Output buffer.
	Output bool

	// Grid is the dispatched workgroup count per axis.
	Grid [3]uint32
}

// dispatchResources tracks per-dispatch GPU resources for cleanup.
type dispatchResources struct {
	device     hal.Device
	bindGroups []hal.BindGroup
	cmdBuf     hal.CommandBuffer
	fence      hal.Fence
}

// cleanup destroys all tracked per-dispatch resources.
func (r *dispatchResources) cleanup() {
	if r.fence != nil {
		r.device.DestroyFence(r.fence)
	}
	if r.cmdBuf != nil {
		r.device.FreeCommandBuffer(r.cmdBuf)
	}
	for _, g := range r.bindGroups {
		r.device.DestroyBindGroup(g)
	}
}

// Dispatch records and submits every declared pass in declaration order.
//
// Per pass: (1) resolve each of its read slots against the manager, with
// unfilled slots repeating the first input (a pass with no inputs binds its
// own previous output in all slots); (2) resolve the write target — the side
// opposite the pass's last committed write, or Output for the final pass;
// (3) derive the grid as ceil(dimension/workgroup) per axis, or use the
// pass's explicit override; (4) record one dispatch; (5) commit the write.
//
// All passes are recorded into one command stream before submission; the
// device's own dependency tracking enforces execution-time ordering, so
// declaration order alone determines what each pass observes: exactly the
// same-frame writes of passes declared earlier than it, and no others.
//
// For a DispatchOnce pipeline, calls after the first record nothing until
// ClearAll re-arms it.
func (e *Engine) Dispatch() error {
	if e.closed {
		return ErrEngineClosed
	}
	if e.cfg.DispatchOnce() && e.dispatched {
		return nil
	}

	e.pollReload()
	e.uploadFrameState()

	res := &dispatchResources{device: e.device}
	defer res.cleanup()

	encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: e.cfg.Label(),
	})
	if err != nil {
		return fmt.Errorf("compute: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(e.cfg.Label()); err != nil {
		return fmt.Errorf("compute: begin encoding: %w", err)
	}

	e.trace = e.trace[:0]
	for i := 0; i < e.cfg.PassCount(); i++ {
		if err := e.encodePass(encoder, res, i, nil); err != nil {
			encoder.DiscardEncoding()
			return err
		}
		e.manager.Commit(e.cfg.PassHandle(i))
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("compute: end encoding: %w", err)
	}
	res.cmdBuf = cmdBuf

	if err := e.submitAndWait(res); err != nil {
		return err
	}

	e.dispatched = true
	e.frameIndex++
	return nil
}

// DispatchStage records, submits, and awaits a single pass by index, using
// the default frame-derived grid (or the pass's override). This is the
// escape hatch for algorithms that iterate one stage a variable number of
// times, or that must await GPU work between stages. The same
// read/write/commit protocol applies: each call flips the pass's buffer.
func (e *Engine) DispatchStage(i int) error {
	return e.dispatchStage(i, nil)
}

// DispatchStageDims is DispatchStage with explicit element dimensions; the
// grid is derived as ceil(dims/workgroup) per axis. A pass-level dispatch
// override still takes precedence.
func (e *Engine) DispatchStageDims(i int, x, y, z uint32) error {
	return e.dispatchStage(i, &[3]uint32{x, y, z})
}

func (e *Engine) dispatchStage(i int, dims *[3]uint32) error {
	if e.closed {
		return ErrEngineClosed
	}
	if i < 0 || i >= e.cfg.PassCount() {
		return fmt.Errorf("%w: %d (have %d passes)", ErrBadStage, i, e.cfg.PassCount())
	}

	e.uploadFrameState()

	res := &dispatchResources{device: e.device}
	defer res.cleanup()

	encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: fmt.Sprintf("%s_%s", e.cfg.Label(), e.cfg.PassName(i)),
	})
	if err != nil {
		return fmt.Errorf("compute: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(e.cfg.PassName(i)); err != nil {
		return fmt.Errorf("compute: begin encoding: %w", err)
	}

	e.trace = e.trace[:0]
	if err := e.encodePass(encoder, res, i, dims); err != nil {
		encoder.DiscardEncoding()
		return err
	}
	e.manager.Commit(e.cfg.PassHandle(i))

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("compute: end encoding: %w", err)
	}
	res.cmdBuf = cmdBuf
	return e.submitAndWait(res)
}

// encodePass resolves pass i against the manager and records its dispatch.
// The caller commits the pass's buffer after this returns.
func (e *Engine) encodePass(encoder hal.CommandEncoder, res *dispatchResources, i int, dims *[3]uint32) error {
	name := e.cfg.PassName(i)
	handle := e.cfg.PassHandle(i)
	inputs := e.cfg.PassInputs(i)

	var (
		reads   [3]gputypes.BufferBinding
		sb      StageBinding
		final   = i == e.cfg.PassCount()-1
		binding gputypes.BufferBinding
	)
	sb.Pass = name

	// Slot filling: position j binds input j; unfilled slots repeat the
	// first input, so kernels may always safely sample all three. A pass
	// with no inputs samples its own previous output.
	for j := 0; j < 3; j++ {
		src := handle
		switch {
		case j < len(inputs):
			src = inputs[j]
		case len(inputs) > 0:
			src = inputs[0]
		}
		reads[j] = e.manager.ReadBinding(src)
		sb.ReadHandles[j] = src
		sb.ReadSides[j] = e.manager.LastWritten(src)
	}

	if final {
		binding = e.manager.OutputBinding()
		sb.Output = true
	} else {
		binding = e.manager.WriteBinding(handle)
		sb.WriteSide = 1 - e.manager.LastWritten(handle)
	}

	sb.Grid = e.grid(i, dims)

	bg, err := e.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   fmt.Sprintf("%s_%s_io_bg", e.cfg.Label(), name),
		Layout:  e.bgLayouts[e.groups.IO],
		Entries: ioBindGroupEntries(reads, binding),
	})
	if err != nil {
		return fmt.Errorf("compute: create io bind group for %q: %w", name, err)
	}
	res.bindGroups = append(res.bindGroups, bg)

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{
		Label: fmt.Sprintf("%s_%s", e.cfg.Label(), name),
	})
	pass.SetPipeline(e.pipelines[i])
	pass.SetBindGroup(uint32(e.groups.Frame), e.bgFrame, nil)
	if e.groups.Aux >= 0 {
		pass.SetBindGroup(uint32(e.groups.Aux), e.bgAux, nil)
	}
	if e.groups.Storage >= 0 {
		pass.SetBindGroup(uint32(e.groups.Storage), e.bgStorage, nil)
	}
	pass.SetBindGroup(uint32(e.groups.IO), bg, nil)
	pass.Dispatch(sb.Grid[0], sb.Grid[1], sb.Grid[2])
	pass.End()

	e.trace = append(e.trace, sb)

	compute.Logger().Debug("compute: pass recorded",
		"pass", name,
		"reads", fmt.Sprintf("%v@%v", sb.ReadHandles, sb.ReadSides),
		"output", sb.Output,
		"grid", sb.Grid)
	return nil
}

// grid derives the workgroup count for pass i: the pass's explicit override
// verbatim if set, otherwise ceil(dims/workgroup) per axis over the given
// element dimensions (defaulting to the frame dimensions), never below one
// workgroup per axis.
func (e *Engine) grid(i int, dims *[3]uint32) [3]uint32 {
	if ov, ok := e.cfg.PassOverride(i); ok {
		return ov
	}

	w, h := e.manager.Size()
	elems := [3]uint32{w, h, 1}
	if dims != nil {
		elems = *dims
	}

	wg := e.cfg.Workgroup()
	var out [3]uint32
	for a := 0; a < 3; a++ {
		out[a] = (elems[a] + wg[a] - 1) / wg[a]
		// A zero element count still records one workgroup; kernels guard
		// their own bounds.
		if out[a] == 0 {
			out[a] = 1
		}
	}
	return out
}

// submitAndWait submits the recorded command buffer and blocks on a fence
// until the GPU completes it.
func (e *Engine) submitAndWait(res *dispatchResources) error {
	fence, err := e.device.CreateFence()
	if err != nil {
		return fmt.Errorf("compute: create fence: %w", err)
	}
	res.fence = fence

	if err := e.queue.Submit([]hal.CommandBuffer{res.cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("compute: submit: %w", err)
	}

	ok, err := e.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("compute: wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("compute: GPU timeout after %v", fenceTimeout)
	}
	return nil
}

// LastDispatch returns the stage resolution trace of the most recent
// Dispatch or DispatchStage call. The returned slice is a copy.
func (e *Engine) LastDispatch() []StageBinding {
	return append([]StageBinding(nil), e.trace...)
}
