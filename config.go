// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// BufferHandle is a dense integer identifier for a named ping-pong buffer.
// Handles are assigned once at Build time, in pass declaration order, so the
// per-frame dispatch path indexes a flat arena instead of hashing names.
type BufferHandle int

// InvalidHandle is returned by lookups for names no pass produces.
const InvalidHandle BufferHandle = -1

// AuxKind identifies one optional per-frame auxiliary resource.
type AuxKind int

// Auxiliary resource kinds, listed in their fixed binding order. When a
// configuration enables a subset, the enabled resources are concatenated in
// this order and bindings assigned sequentially from zero. Shader authors
// must rely on the relative order only; absolute binding numbers shift as
// features are toggled.
const (
	// AuxMouse is the pointer-state uniform (position, click, wheel, buttons).
	AuxMouse AuxKind = iota

	// AuxFonts is the font atlas coverage storage buffer.
	AuxFonts

	// AuxAudio is the audio sample scratch storage buffer.
	AuxAudio

	// AuxAudioSpectrum is the audio spectrum bin storage buffer.
	AuxAudioSpectrum

	// AuxAtomics is the per-pixel u32 atomic counter storage buffer.
	AuxAtomics

	// AuxInputImage is the external input image packed-pixel storage buffer.
	AuxInputImage

	// AuxChannel is one external channel packed-pixel storage buffer.
	// Channels occupy consecutive bindings after all other aux resources.
	AuxChannel
)

// String returns the aux resource name as used in labels and logs.
func (k AuxKind) String() string {
	switch k {
	case AuxMouse:
		return "mouse"
	case AuxFonts:
		return "fonts"
	case AuxAudio:
		return "audio"
	case AuxAudioSpectrum:
		return "audio_spectrum"
	case AuxAtomics:
		return "atomics"
	case AuxInputImage:
		return "input_image"
	case AuxChannel:
		return "channel"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// AuxBinding describes one enabled auxiliary resource and the binding index
// it was assigned within the aux bind group.
type AuxBinding struct {
	// Kind is the resource kind.
	Kind AuxKind

	// Channel is the channel index for Kind == AuxChannel, else 0.
	Channel int

	// Binding is the assigned binding index within the aux group.
	Binding uint32

	// Uniform is true for uniform-buffer bindings (mouse); all other aux
	// resources bind as storage buffers.
	Uniform bool
}

// Defaults applied by the builder.
const (
	// DefaultAudioSamples is the default audio scratch buffer length.
	DefaultAudioSamples = 1024

	// DefaultSpectrumBins is the default audio spectrum buffer length.
	DefaultSpectrumBins = 128

	// MaxChannels is the maximum number of external channels.
	MaxChannels = 4
)

// resolvedPass is a pass with its name references resolved to handles.
type resolvedPass struct {
	name     string
	handle   BufferHandle
	inputs   []BufferHandle
	override *[3]uint32
}

// Config is an immutable snapshot of a compute pipeline declaration,
// produced by [Builder.Build]. It is device-independent: building and
// inspecting a Config requires no GPU context. A Config is consumed by the
// engine to allocate buffers and build one pipeline per entry point, all
// sharing one resource layout.
type Config struct {
	label  string
	passes []resolvedPass
	names  []string // handle -> name
	byName map[string]BufferHandle

	uniformSize    uint64
	hasInputImage  bool
	hasMouse       bool
	hasFonts       bool
	hasAtomics     bool
	audioSamples   int // 0 = disabled
	spectrumBins   int // 0 = disabled
	channels       int
	storageBuffers []StorageBufferSpec

	workgroup    [3]uint32
	dispatchOnce bool
	format       gputypes.TextureFormat
	reloadPath   string

	aux []AuxBinding
}

// Label returns the debug label, or "compute" if none was set.
func (c *Config) Label() string {
	if c.label == "" {
		return "compute"
	}
	return c.label
}

// PassCount returns the number of declared passes.
func (c *Config) PassCount() int { return len(c.passes) }

// EntryPoints returns the ordered kernel entry-point list, one per pass.
func (c *Config) EntryPoints() []string {
	out := make([]string, len(c.passes))
	for i, p := range c.passes {
		out[i] = p.name
	}
	return out
}

// PassName returns the name of pass i.
func (c *Config) PassName(i int) string { return c.passes[i].name }

// PassHandle returns the write-buffer handle of pass i.
func (c *Config) PassHandle(i int) BufferHandle { return c.passes[i].handle }

// PassInputs returns the resolved input handles of pass i, in declared order.
// The returned slice is a copy.
func (c *Config) PassInputs(i int) []BufferHandle {
	return append([]BufferHandle(nil), c.passes[i].inputs...)
}

// PassOverride returns pass i's explicit dispatch override and whether one
// was set.
func (c *Config) PassOverride(i int) ([3]uint32, bool) {
	if c.passes[i].override == nil {
		return [3]uint32{}, false
	}
	return *c.passes[i].override, true
}

// BufferCount returns the number of distinct ping-pong buffers (one per pass).
func (c *Config) BufferCount() int { return len(c.names) }

// BufferName returns the name behind a handle.
func (c *Config) BufferName(h BufferHandle) string { return c.names[h] }

// Handle resolves a buffer name to its handle, or InvalidHandle if no pass
// produces that name. Intended for setup and diagnostics; the dispatch path
// works with handles only.
func (c *Config) Handle(name string) BufferHandle {
	h, ok := c.byName[name]
	if !ok {
		return InvalidHandle
	}
	return h
}

// UniformSize returns the custom uniform block size in bytes (0 = none).
func (c *Config) UniformSize() uint64 { return c.uniformSize }

// HasInputImage reports whether an external input image slot was declared.
func (c *Config) HasInputImage() bool { return c.hasInputImage }

// HasMouse reports whether the pointer-state uniform was declared.
func (c *Config) HasMouse() bool { return c.hasMouse }

// HasFonts reports whether the font atlas buffer was declared.
func (c *Config) HasFonts() bool { return c.hasFonts }

// HasAtomics reports whether the atomic counter buffer was declared.
func (c *Config) HasAtomics() bool { return c.hasAtomics }

// AudioSamples returns the audio buffer length in samples (0 = disabled).
func (c *Config) AudioSamples() int { return c.audioSamples }

// SpectrumBins returns the spectrum buffer length in bins (0 = disabled).
func (c *Config) SpectrumBins() int { return c.spectrumBins }

// Channels returns the number of external channel slots.
func (c *Config) Channels() int { return c.channels }

// StorageBuffers returns the declared shared storage buffers in order.
// The returned slice is a copy.
func (c *Config) StorageBuffers() []StorageBufferSpec {
	return append([]StorageBufferSpec(nil), c.storageBuffers...)
}

// Workgroup returns the per-kernel workgroup size.
func (c *Config) Workgroup() [3]uint32 { return c.workgroup }

// DispatchOnce reports whether the pipeline dispatches only once until
// cleared.
func (c *Config) DispatchOnce() bool { return c.dispatchOnce }

// Format returns the output pixel format.
func (c *Config) Format() gputypes.TextureFormat { return c.format }

// ReloadPath returns the hot-reload source path ("" = disabled).
func (c *Config) ReloadPath() string { return c.reloadPath }

// AuxBindings returns the ordered auxiliary-resource descriptor list: the
// enabled resources in their fixed relative order, with assigned binding
// indices. The returned slice is a copy.
func (c *Config) AuxBindings() []AuxBinding {
	return append([]AuxBinding(nil), c.aux...)
}

// Bind group indices are assigned compactly: group 0 always holds the frame
// uniforms (and the custom uniform block when declared); the aux group and
// the storage-buffer group are present only when non-empty; the per-pass IO
// group is always last. GroupIndices reports the resulting layout.
type GroupIndices struct {
	// Frame is the frame/custom uniform group. Always 0.
	Frame int

	// Aux is the auxiliary resource group, or -1 when no aux resource is
	// enabled.
	Aux int

	// Storage is the shared storage-buffer group, or -1 when none declared.
	Storage int

	// IO is the per-pass input/output group (read slots 0..2, write at 3).
	IO int
}

// Groups returns the bind group index assignment for this configuration.
func (c *Config) Groups() GroupIndices {
	g := GroupIndices{Frame: 0, Aux: -1, Storage: -1}
	next := 1
	if len(c.aux) > 0 {
		g.Aux = next
		next++
	}
	if len(c.storageBuffers) > 0 {
		g.Storage = next
		next++
	}
	g.IO = next
	return g
}

// buildAuxBindings assembles the ordered descriptor list from the enabled
// feature set. Called once by Build.
func (c *Config) buildAuxBindings() {
	var list []AuxBinding
	add := func(kind AuxKind, channel int, uniform bool) {
		list = append(list, AuxBinding{
			Kind:    kind,
			Channel: channel,
			Binding: uint32(len(list)),
			Uniform: uniform,
		})
	}

	if c.hasMouse {
		add(AuxMouse, 0, true)
	}
	if c.hasFonts {
		add(AuxFonts, 0, false)
	}
	if c.audioSamples > 0 {
		add(AuxAudio, 0, false)
	}
	if c.spectrumBins > 0 {
		add(AuxAudioSpectrum, 0, false)
	}
	if c.hasAtomics {
		add(AuxAtomics, 0, false)
	}
	if c.hasInputImage {
		add(AuxInputImage, 0, false)
	}
	for i := 0; i < c.channels; i++ {
		add(AuxChannel, i, false)
	}
	c.aux = list
}
