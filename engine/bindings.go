// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Layout entry helpers, shared by every group.

func uniformEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
}

func storageROEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
	}
}

func storageRWEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
	}
}

// bufferEntry builds a whole-buffer bind group entry.
func bufferEntry(binding uint32, b gputypes.BufferBinding) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: b, // Size 0 = entire buffer
	}
}

// createBindGroupLayouts builds the dense group-layout list for this
// configuration, in the compact group order reported by Config.Groups:
//
//	frame group:   binding 0 = frame uniforms, binding 1 = custom uniforms
//	aux group:     the ordered aux descriptor list (present when non-empty)
//	storage group: shared storage buffers, declaration order
//	io group:      bindings 0..2 = read slots, binding 3 = write target
func (e *Engine) createBindGroupLayouts() ([]hal.BindGroupLayout, error) {
	label := e.cfg.Label()
	g := e.groups
	layouts := make([]hal.BindGroupLayout, g.IO+1)

	create := func(idx int, name string, entries []gputypes.BindGroupLayoutEntry) error {
		l, err := e.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s_%s_bgl", label, name),
			Entries: entries,
		})
		if err != nil {
			for _, prev := range layouts {
				if prev != nil {
					e.device.DestroyBindGroupLayout(prev)
				}
			}
			return fmt.Errorf("compute: create %s bind group layout: %w", name, err)
		}
		layouts[idx] = l
		return nil
	}

	frame := []gputypes.BindGroupLayoutEntry{uniformEntry(0)}
	if e.cfg.UniformSize() > 0 {
		frame = append(frame, uniformEntry(1))
	}
	if err := create(g.Frame, "frame", frame); err != nil {
		return nil, err
	}

	if g.Aux >= 0 {
		var entries []gputypes.BindGroupLayoutEntry
		for _, d := range e.cfg.AuxBindings() {
			if d.Uniform {
				entries = append(entries, uniformEntry(d.Binding))
			} else {
				entries = append(entries, storageRWEntry(d.Binding))
			}
		}
		if err := create(g.Aux, "aux", entries); err != nil {
			return nil, err
		}
	}

	if g.Storage >= 0 {
		var entries []gputypes.BindGroupLayoutEntry
		for i := range e.cfg.StorageBuffers() {
			entries = append(entries, storageRWEntry(uint32(i)))
		}
		if err := create(g.Storage, "storage", entries); err != nil {
			return nil, err
		}
	}

	io := []gputypes.BindGroupLayoutEntry{
		storageROEntry(0), storageROEntry(1), storageROEntry(2),
		storageRWEntry(3),
	}
	if err := create(g.IO, "io", io); err != nil {
		return nil, err
	}
	return layouts, nil
}

// buildStaticBindGroups creates the bind groups whose contents do not change
// between dispatches: frame uniforms, aux resources, and shared storage
// buffers. The per-pass IO group is built per dispatch instead.
func (e *Engine) buildStaticBindGroups() error {
	label := e.cfg.Label()
	g := e.groups

	frame := []gputypes.BindGroupEntry{
		bufferEntry(0, gputypes.BufferBinding{Buffer: e.frameUniform.NativeHandle()}),
	}
	if e.customUniform != nil {
		frame = append(frame,
			bufferEntry(1, gputypes.BufferBinding{Buffer: e.customUniform.NativeHandle()}))
	}
	bg, err := e.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label + "_frame_bg",
		Layout:  e.bgLayouts[g.Frame],
		Entries: frame,
	})
	if err != nil {
		return fmt.Errorf("compute: create frame bind group: %w", err)
	}
	e.bgFrame = bg

	if g.Aux >= 0 {
		var entries []gputypes.BindGroupEntry
		for _, a := range e.aux {
			entries = append(entries,
				bufferEntry(a.desc.Binding, gputypes.BufferBinding{Buffer: a.buf.NativeHandle()}))
		}
		bg, err := e.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   label + "_aux_bg",
			Layout:  e.bgLayouts[g.Aux],
			Entries: entries,
		})
		if err != nil {
			e.destroyStaticBindGroups()
			return fmt.Errorf("compute: create aux bind group: %w", err)
		}
		e.bgAux = bg
	}

	if g.Storage >= 0 {
		var entries []gputypes.BindGroupEntry
		for i, b := range e.storageBufs {
			entries = append(entries,
				bufferEntry(uint32(i), gputypes.BufferBinding{Buffer: b.NativeHandle()}))
		}
		bg, err := e.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   label + "_storage_bg",
			Layout:  e.bgLayouts[g.Storage],
			Entries: entries,
		})
		if err != nil {
			e.destroyStaticBindGroups()
			return fmt.Errorf("compute: create storage bind group: %w", err)
		}
		e.bgStorage = bg
	}
	return nil
}

// rebuildStaticBindGroups replaces the static bind groups after any of their
// backing buffers were recreated (clear, resize).
func (e *Engine) rebuildStaticBindGroups() error {
	e.destroyStaticBindGroups()
	return e.buildStaticBindGroups()
}

// destroyStaticBindGroups releases the static bind groups. Nil-safe.
func (e *Engine) destroyStaticBindGroups() {
	if e.bgFrame != nil {
		e.device.DestroyBindGroup(e.bgFrame)
		e.bgFrame = nil
	}
	if e.bgAux != nil {
		e.device.DestroyBindGroup(e.bgAux)
		e.bgAux = nil
	}
	if e.bgStorage != nil {
		e.device.DestroyBindGroup(e.bgStorage)
		e.bgStorage = nil
	}
}

// ioBindGroupEntries assembles the per-pass IO group for the given resolved
// read bindings and write binding: slots 0..2 are the pass's inputs with
// unfilled slots repeating slot 0, binding 3 is the write target.
func ioBindGroupEntries(reads [3]gputypes.BufferBinding, write gputypes.BufferBinding) []gputypes.BindGroupEntry {
	return []gputypes.BindGroupEntry{
		bufferEntry(0, reads[0]),
		bufferEntry(1, reads[1]),
		bufferEntry(2, reads[2]),
		bufferEntry(3, write),
	}
}
