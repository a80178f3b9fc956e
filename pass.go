// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

// MaxPassInputs is the maximum number of upstream buffers a single pass
// may declare as inputs. Kernels always see exactly this many input slots;
// unfilled slots are backed by the first input at dispatch time.
const MaxPassInputs = 3

// PassDescription declares one compute pass: the kernel entry point it runs,
// the named buffers it reads, and an optional explicit dispatch-grid override.
//
// The pass name doubles as the buffer name it writes and as the WGSL entry
// point, so a pass may list its own name among its inputs to read its previous
// output (temporal self-feedback), and any pass may list any other pass's name
// regardless of declaration order.
//
// PassDescription is pure data. Validation happens in [Builder.Build].
type PassDescription struct {
	name     string
	inputs   []string
	override *[3]uint32
}

// NewPass creates a pass description with the given entry-point name and
// ordered input buffer names. Input slots beyond len(inputs) repeat the
// first input when bound; a pass with no inputs binds its own previous
// output in all slots.
func NewPass(name string, inputs ...string) PassDescription {
	return PassDescription{
		name:   name,
		inputs: append([]string(nil), inputs...),
	}
}

// WithDispatchOverride returns a copy of the pass with an explicit workgroup
// count per axis, bypassing the default grid derived from the frame
// dimensions. Use this for passes whose element count is not screen-shaped:
// fixed particle counts, per-layer element counts, reduction trees.
func (p PassDescription) WithDispatchOverride(x, y, z uint32) PassDescription {
	p.override = &[3]uint32{x, y, z}
	return p
}

// Name returns the pass name (and kernel entry point).
func (p PassDescription) Name() string { return p.name }

// Inputs returns the declared input buffer names in order.
// The returned slice is a copy.
func (p PassDescription) Inputs() []string {
	return append([]string(nil), p.inputs...)
}

// DispatchOverride returns the explicit workgroup-count override and whether
// one was set.
func (p PassDescription) DispatchOverride() ([3]uint32, bool) {
	if p.override == nil {
		return [3]uint32{}, false
	}
	return *p.override, true
}

// StorageBufferSpec declares one named, flat, shared read/write buffer.
// Unlike ping-pong pass buffers, a storage buffer has no read/write sides:
// every pass sees the same physical memory, and ordering between sharers is
// the caller's responsibility. It lives for the pipeline's lifetime and is
// recreated only on clear or resize.
type StorageBufferSpec struct {
	// Name identifies the buffer in shader binding documentation and logs.
	Name string

	// SizeBytes is the buffer size. Must be positive.
	SizeBytes uint64
}
