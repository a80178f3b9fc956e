// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Builder accumulates a compute pipeline declaration and freezes it into an
// immutable [Config]. Builder methods return the receiver for chaining and
// are not commutative: the last relevant call wins. In particular, Passes
// overrides any earlier EntryPoint and vice versa.
//
// Build never touches a GPU device; all device-dependent allocation happens
// in the engine, so configurations are constructible and testable without a
// GPU context.
type Builder struct {
	label        string
	entryPoint   string
	passes       []PassDescription
	uniformSize  uint64
	inputImage   bool
	mouse        bool
	fonts        bool
	atomics      bool
	audioSamples int
	spectrumBins int
	channels     int
	storage      []StorageBufferSpec
	workgroup    [3]uint32
	dispatchOnce bool
	format       gputypes.TextureFormat
	reloadPath   string
}

// NewBuilder creates a builder with the defaults: 16x16x1 workgroups,
// RGBA8 packed output, per-frame dispatch, no auxiliary resources.
func NewBuilder() *Builder {
	return &Builder{
		workgroup: [3]uint32{16, 16, 1},
		format:    gputypes.TextureFormatRGBA8Unorm,
	}
}

// Label sets a debug label used in GPU resource labels and log lines.
func (b *Builder) Label(label string) *Builder {
	b.label = label
	return b
}

// EntryPoint declares a single-kernel pipeline. It discards any pass list
// declared earlier; the resulting pipeline has exactly one pass with the
// given name and no inputs.
func (b *Builder) EntryPoint(name string) *Builder {
	b.entryPoint = name
	b.passes = nil
	return b
}

// Passes declares a multi-pass pipeline. The ordered entry-point list is
// derived from the pass names, overriding any single entry point declared
// earlier. Declaration order is the execution order within a dispatch.
func (b *Builder) Passes(passes ...PassDescription) *Builder {
	b.passes = append([]PassDescription(nil), passes...)
	b.entryPoint = ""
	return b
}

// UniformSize declares a custom uniform block of n bytes, bound at group 0
// binding 1. Zero disables the block.
func (b *Builder) UniformSize(n uint64) *Builder {
	b.uniformSize = n
	return b
}

// InputImage declares one external input image slot: a packed-pixel storage
// buffer the caller uploads into each frame.
func (b *Builder) InputImage() *Builder {
	b.inputImage = true
	return b
}

// Channels declares n external channel image slots.
func (b *Builder) Channels(n int) *Builder {
	b.channels = n
	return b
}

// Mouse declares the pointer-state uniform.
func (b *Builder) Mouse() *Builder {
	b.mouse = true
	return b
}

// Fonts declares the font atlas coverage storage buffer.
func (b *Builder) Fonts() *Builder {
	b.fonts = true
	return b
}

// Audio declares the audio sample scratch buffer with the given length.
// Pass 0 for the default of DefaultAudioSamples.
func (b *Builder) Audio(samples int) *Builder {
	if samples <= 0 {
		samples = DefaultAudioSamples
	}
	b.audioSamples = samples
	return b
}

// AudioSpectrum declares the audio spectrum buffer with the given bin count.
// Pass 0 for the default of DefaultSpectrumBins.
func (b *Builder) AudioSpectrum(bins int) *Builder {
	if bins <= 0 {
		bins = DefaultSpectrumBins
	}
	b.spectrumBins = bins
	return b
}

// AtomicBuffer declares the per-pixel u32 atomic counter buffer.
func (b *Builder) AtomicBuffer() *Builder {
	b.atomics = true
	return b
}

// StorageBuffer appends one shared read/write storage buffer. Declaration
// order determines binding order within the storage group.
func (b *Builder) StorageBuffer(spec StorageBufferSpec) *Builder {
	b.storage = append(b.storage, spec)
	return b
}

// Workgroup sets the per-kernel workgroup size used to derive dispatch
// grids. Defaults to 16x16x1.
func (b *Builder) Workgroup(x, y, z uint32) *Builder {
	b.workgroup = [3]uint32{x, y, z}
	return b
}

// DispatchOnce marks the pipeline one-shot: after the first Dispatch,
// subsequent calls record nothing until ClearAll re-arms it.
func (b *Builder) DispatchOnce() *Builder {
	b.dispatchOnce = true
	return b
}

// Format sets the output pixel format. The engine packs pixels into storage
// buffers sized by the format's byte width.
func (b *Builder) Format(f gputypes.TextureFormat) *Builder {
	b.format = f
	return b
}

// HotReload sets the WGSL source path watched for pipeline hot reload.
func (b *Builder) HotReload(path string) *Builder {
	b.reloadPath = path
	return b
}

// Build validates the accumulated declaration and freezes it into a Config.
//
// Build fails with an enumerated error for: no entry point or pass list,
// an empty or duplicate pass name, more than MaxPassInputs inputs on one
// pass, an input naming a buffer no pass produces, a zero-sized or
// duplicate storage buffer, a zero workgroup dimension, or more than
// MaxChannels channels. Validating here means runtime name resolution
// cannot fail: every input is resolved to a dense buffer handle now.
func (b *Builder) Build() (*Config, error) {
	passes := b.passes
	if len(passes) == 0 {
		if b.entryPoint == "" {
			return nil, ErrNoEntryPoint
		}
		passes = []PassDescription{NewPass(b.entryPoint)}
	}

	for _, wg := range b.workgroup {
		if wg == 0 {
			return nil, fmt.Errorf("%w: got %v", ErrBadWorkgroup, b.workgroup)
		}
	}
	if b.channels < 0 || b.channels > MaxChannels {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrTooManyChannels, b.channels, MaxChannels)
	}

	// First sweep: assign one handle per pass name, declaration order.
	byName := make(map[string]BufferHandle, len(passes))
	names := make([]string, 0, len(passes))
	for _, p := range passes {
		if p.name == "" {
			return nil, ErrEmptyPassName
		}
		if _, dup := byName[p.name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePass, p.name)
		}
		byName[p.name] = BufferHandle(len(names))
		names = append(names, p.name)
	}

	// Second sweep: resolve inputs against the complete name table, so a
	// pass may reference itself or any later-declared pass.
	resolved := make([]resolvedPass, len(passes))
	for i, p := range passes {
		if len(p.inputs) > MaxPassInputs {
			return nil, fmt.Errorf("%w: pass %q has %d", ErrTooManyInputs, p.name, len(p.inputs))
		}
		ins := make([]BufferHandle, len(p.inputs))
		for j, in := range p.inputs {
			h, ok := byName[in]
			if !ok {
				return nil, fmt.Errorf("%w: pass %q input %q", ErrUnknownBuffer, p.name, in)
			}
			ins[j] = h
		}
		resolved[i] = resolvedPass{
			name:     p.name,
			handle:   byName[p.name],
			inputs:   ins,
			override: p.override,
		}
	}

	seen := make(map[string]bool, len(b.storage))
	for _, s := range b.storage {
		if s.Name == "" || s.SizeBytes == 0 {
			return nil, fmt.Errorf("%w: %q size %d", ErrBadStorageBuffer, s.Name, s.SizeBytes)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrBadStorageBuffer, s.Name)
		}
		seen[s.Name] = true
	}

	cfg := &Config{
		label:          b.label,
		passes:         resolved,
		names:          names,
		byName:         byName,
		uniformSize:    b.uniformSize,
		hasInputImage:  b.inputImage,
		hasMouse:       b.mouse,
		hasFonts:       b.fonts,
		hasAtomics:     b.atomics,
		audioSamples:   b.audioSamples,
		spectrumBins:   b.spectrumBins,
		channels:       b.channels,
		storageBuffers: append([]StorageBufferSpec(nil), b.storage...),
		workgroup:      b.workgroup,
		dispatchOnce:   b.dispatchOnce,
		format:         b.format,
		reloadPath:     b.reloadPath,
	}
	cfg.buildAuxBindings()
	return cfg, nil
}
