// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package engine drives declarative compute pipelines on a wgpu HAL device.
//
// The engine consumes an immutable [compute.Config], allocates the ping-pong
// buffer arena and auxiliary resources it declares, builds one compute
// pipeline per entry point sharing a single resource layout, and walks the
// pass list every Dispatch in declaration order, resolving each pass's read
// and write sides against the [Manager].
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/compute"
	"github.com/gogpu/compute/fontatlas"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Engine errors.
var (
	// ErrEngineClosed is returned when operating on a closed engine.
	ErrEngineClosed = errors.New("compute: engine closed")

	// ErrBadStage is returned for an out-of-range stage index.
	ErrBadStage = errors.New("compute: stage index out of range")

	// ErrNoShaderSource is returned when the WGSL source is empty.
	ErrNoShaderSource = errors.New("compute: empty shader source")
)

// fenceTimeout is the maximum time to wait for submitted GPU work.
const fenceTimeout = 5 * time.Second

// Byte sizes of the built-in uniform blocks. Both are multiples of 16 to
// satisfy WGSL uniform alignment.
const (
	frameUniformBytes = 32
	mouseUniformBytes = 32
)

// auxResource pairs one enabled auxiliary descriptor with its live buffer.
type auxResource struct {
	desc compute.AuxBinding
	buf  hal.Buffer
	size uint64

	// pixelSized buffers scale with the frame dimensions and are recreated
	// on resize (atomics, input image, channels).
	pixelSized bool
}

// Engine owns everything device-dependent for one configured pipeline:
// shader module, bind group layouts, one pipeline per pass, the buffer
// manager, and the uniform/auxiliary buffers.
//
// Engine is single-threaded, frame-synchronous: all methods must be called
// from the one thread that records GPU work.
type Engine struct {
	device hal.Device
	queue  hal.Queue

	cfg    *compute.Config
	groups compute.GroupIndices

	manager *Manager

	shaderModule   hal.ShaderModule
	bgLayouts      []hal.BindGroupLayout // dense, indexed by group index
	pipelineLayout hal.PipelineLayout
	pipelines      []hal.ComputePipeline // one per pass

	frameUniform  hal.Buffer
	customUniform hal.Buffer
	aux           []auxResource
	storageBufs   []hal.Buffer

	// Static bind groups for the frame, aux, and storage groups. The
	// per-pass IO group is created per dispatch instead, because its
	// contents depend on each buffer's current side bit.
	bgFrame   hal.BindGroup
	bgAux     hal.BindGroup
	bgStorage hal.BindGroup

	atlas *fontatlas.Atlas

	timeSec    float32
	deltaSec   float32
	frameIndex uint32
	mouse      mouseState

	dispatched bool
	generation int
	trace      []StageBinding

	reloadCh chan string
	watcher  *Watcher

	// Owned device bring-up (standalone mode only).
	instance   hal.Instance
	ownsDevice bool

	closed bool
}

// New creates an engine on an externally owned device and queue. The WGSL
// source must define one compute entry point per declared pass. The engine
// does not destroy the device on Close.
func New(device hal.Device, queue hal.Queue, cfg *compute.Config, src string, width, height int) (*Engine, error) {
	if src == "" {
		return nil, ErrNoShaderSource
	}

	e := &Engine{
		device:   device,
		queue:    queue,
		cfg:      cfg,
		groups:   cfg.Groups(),
		reloadCh: make(chan string, 1),
	}

	mgr, err := NewManager(device, queue, cfg, width, height)
	if err != nil {
		return nil, err
	}
	e.manager = mgr

	if err := e.initPipelines(src); err != nil {
		e.manager.Destroy()
		return nil, err
	}
	if err := e.allocAux(); err != nil {
		e.destroyPipelines()
		e.manager.Destroy()
		return nil, err
	}
	if err := e.buildStaticBindGroups(); err != nil {
		e.releaseAux()
		e.destroyPipelines()
		e.manager.Destroy()
		return nil, err
	}

	compute.Logger().Info("compute: engine ready",
		"label", cfg.Label(),
		"passes", cfg.PassCount(),
		"aux", len(cfg.AuxBindings()),
		"storage_buffers", len(cfg.StorageBuffers()))
	return e, nil
}

// initPipelines compiles the shader module and builds the shared layouts and
// one compute pipeline per pass.
func (e *Engine) initPipelines(src string) error {
	label := e.cfg.Label()

	module, err := e.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{WGSL: src},
	})
	if err != nil {
		return fmt.Errorf("compute: create shader module: %w", err)
	}
	e.shaderModule = module

	layouts, err := e.createBindGroupLayouts()
	if err != nil {
		e.destroyPipelines()
		return err
	}
	e.bgLayouts = layouts

	pl, err := e.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pl",
		BindGroupLayouts: layouts,
	})
	if err != nil {
		e.destroyPipelines()
		return fmt.Errorf("compute: create pipeline layout: %w", err)
	}
	e.pipelineLayout = pl

	pipelines, err := e.createPipelines(module, pl)
	if err != nil {
		e.destroyPipelines()
		return err
	}
	e.pipelines = pipelines
	return nil
}

// createPipelines builds one compute pipeline per pass against the given
// module and layout. On error, pipelines created so far are destroyed.
func (e *Engine) createPipelines(module hal.ShaderModule, pl hal.PipelineLayout) ([]hal.ComputePipeline, error) {
	pipelines := make([]hal.ComputePipeline, e.cfg.PassCount())
	for i := 0; i < e.cfg.PassCount(); i++ {
		entry := e.cfg.PassName(i)
		p, err := e.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  fmt.Sprintf("%s_%s", e.cfg.Label(), entry),
			Layout: pl,
			Compute: hal.ComputeState{
				Module:     module,
				EntryPoint: entry,
			},
		})
		if err != nil {
			for _, prev := range pipelines[:i] {
				e.device.DestroyComputePipeline(prev)
			}
			return nil, fmt.Errorf("compute: create pipeline for %q: %w", entry, err)
		}
		pipelines[i] = p

		compute.Logger().Debug("compute: pipeline created",
			"entry", entry, "index", i)
	}
	return pipelines, nil
}

// destroyPipelines releases pipelines, layouts, and the shader module in
// reverse creation order. Nil-safe; used both by Close and by failed init.
func (e *Engine) destroyPipelines() {
	for _, p := range e.pipelines {
		if p != nil {
			e.device.DestroyComputePipeline(p)
		}
	}
	e.pipelines = nil

	if e.pipelineLayout != nil {
		e.device.DestroyPipelineLayout(e.pipelineLayout)
		e.pipelineLayout = nil
	}
	for _, l := range e.bgLayouts {
		if l != nil {
			e.device.DestroyBindGroupLayout(l)
		}
	}
	e.bgLayouts = nil

	if e.shaderModule != nil {
		e.device.DestroyShaderModule(e.shaderModule)
		e.shaderModule = nil
	}
}

// allocAux creates the frame uniform, optional custom uniform block, and
// every enabled auxiliary buffer. Buffers are zero-filled; the font atlas is
// baked and uploaded immediately.
func (e *Engine) allocAux() error {
	label := e.cfg.Label()
	uniformUsage := gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	storageUsage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst

	create := func(name string, size uint64, usage gputypes.BufferUsage, init []byte) (hal.Buffer, error) {
		const minBufSize = 4
		if size < minBufSize {
			size = minBufSize
		}
		buf, err := e.device.CreateBuffer(&hal.BufferDescriptor{
			Label: label + "_" + name,
			Size:  size,
			Usage: usage,
		})
		if err != nil {
			return nil, fmt.Errorf("compute: create %s buffer: %w", name, err)
		}
		if init == nil {
			init = make([]byte, size)
		}
		e.queue.WriteBuffer(buf, 0, init)
		return buf, nil
	}

	fu, err := create("frame_uniform", frameUniformBytes, uniformUsage, nil)
	if err != nil {
		return err
	}
	e.frameUniform = fu

	if n := e.cfg.UniformSize(); n > 0 {
		cu, err := create("custom_uniform", n, uniformUsage, nil)
		if err != nil {
			e.releaseAux()
			return err
		}
		e.customUniform = cu
	}

	w, h := e.manager.Size()
	pixels := uint64(w) * uint64(h)
	bpp := formatBytesPerPixel(e.cfg.Format())

	for _, desc := range e.cfg.AuxBindings() {
		var (
			size       uint64
			usage      = storageUsage
			init       []byte
			pixelSized bool
		)
		name := desc.Kind.String()

		switch desc.Kind {
		case compute.AuxMouse:
			size = mouseUniformBytes
			usage = uniformUsage
		case compute.AuxFonts:
			if e.atlas == nil {
				e.atlas = fontatlas.Bake()
			}
			init = e.atlas.Packed()
			size = uint64(len(init))
		case compute.AuxAudio:
			size = uint64(e.cfg.AudioSamples()) * 4
		case compute.AuxAudioSpectrum:
			size = uint64(e.cfg.SpectrumBins()) * 4
		case compute.AuxAtomics:
			size = pixels * 4
			pixelSized = true
		case compute.AuxInputImage:
			size = pixels * bpp
			pixelSized = true
		case compute.AuxChannel:
			size = pixels * bpp
			pixelSized = true
			name = fmt.Sprintf("channel%d", desc.Channel)
		}

		buf, err := create(name, size, usage, init)
		if err != nil {
			e.releaseAux()
			return err
		}
		e.aux = append(e.aux, auxResource{desc: desc, buf: buf, size: size, pixelSized: pixelSized})
	}

	for _, spec := range e.cfg.StorageBuffers() {
		buf, err := create("storage_"+spec.Name, spec.SizeBytes, storageUsage, nil)
		if err != nil {
			e.releaseAux()
			return err
		}
		e.storageBufs = append(e.storageBufs, buf)
	}
	return nil
}

// releaseAux destroys the uniform, auxiliary, and storage buffers. Nil-safe.
func (e *Engine) releaseAux() {
	if e.frameUniform != nil {
		e.device.DestroyBuffer(e.frameUniform)
		e.frameUniform = nil
	}
	if e.customUniform != nil {
		e.device.DestroyBuffer(e.customUniform)
		e.customUniform = nil
	}
	for _, a := range e.aux {
		if a.buf != nil {
			e.device.DestroyBuffer(a.buf)
		}
	}
	e.aux = nil
	for _, b := range e.storageBufs {
		if b != nil {
			e.device.DestroyBuffer(b)
		}
	}
	e.storageBufs = nil
}

// auxBuffer returns the live buffer for an enabled aux kind (first match),
// or nil when the kind was not declared.
func (e *Engine) auxBuffer(kind compute.AuxKind, channel int) hal.Buffer {
	for _, a := range e.aux {
		if a.desc.Kind == kind && a.desc.Channel == channel {
			return a.buf
		}
	}
	return nil
}

// Config returns the immutable configuration this engine was built from.
func (e *Engine) Config() *compute.Config { return e.cfg }

// Manager returns the buffer manager. Exposed for the manual dispatch
// protocol: callers iterating a single stage can inspect and flip side
// state directly.
func (e *Engine) Manager() *Manager { return e.manager }

// Generation returns the pipeline generation counter, incremented by every
// successful hot reload. Intended for tests and diagnostics.
func (e *Engine) Generation() int { return e.generation }

// OutputBuffer returns a read-only handle to the distinguished Output
// buffer for display and export collaborators.
func (e *Engine) OutputBuffer() hal.Buffer { return e.manager.Output() }

// FlipAll flips every ping-pong buffer in one call: the cross-frame
// temporal-feedback hand-off, run exactly once per presented frame.
func (e *Engine) FlipAll() {
	e.manager.FlipAll()
}

// ClearAll recreates every tracked resource zero-filled, resets every side
// bit, zeroes the atomic counter buffer, and re-arms a DispatchOnce
// pipeline. Previously resolved buffers become invalid.
func (e *Engine) ClearAll() error {
	if e.closed {
		return ErrEngineClosed
	}
	if err := e.manager.ClearAll(); err != nil {
		return err
	}
	if buf := e.auxBuffer(compute.AuxAtomics, 0); buf != nil {
		w, h := e.manager.Size()
		e.queue.WriteBuffer(buf, 0, make([]byte, uint64(w)*uint64(h)*4))
	}
	e.dispatched = false
	return e.rebuildStaticBindGroups()
}

// Resize updates the frame dimensions and recreates everything sized by
// pixel count: both sides of every buffer, Output, and the pixel-sized
// auxiliary buffers. All previously held binding sets are invalidated.
func (e *Engine) Resize(width, height int) error {
	if e.closed {
		return ErrEngineClosed
	}
	if err := e.manager.Resize(width, height); err != nil {
		return err
	}

	pixels := uint64(width) * uint64(height)
	bpp := formatBytesPerPixel(e.cfg.Format())
	storageUsage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst

	for i := range e.aux {
		a := &e.aux[i]
		if !a.pixelSized {
			continue
		}
		size := pixels * 4
		if a.desc.Kind != compute.AuxAtomics {
			size = pixels * bpp
		}
		if a.buf != nil {
			e.device.DestroyBuffer(a.buf)
			a.buf = nil
		}
		buf, err := e.device.CreateBuffer(&hal.BufferDescriptor{
			Label: fmt.Sprintf("%s_%s", e.cfg.Label(), a.desc.Kind),
			Size:  size,
			Usage: storageUsage,
		})
		if err != nil {
			// The aux bind group now references a destroyed buffer; drop the
			// static groups so a later rebuild starts clean.
			e.destroyStaticBindGroups()
			return fmt.Errorf("compute: resize %s buffer: %w", a.desc.Kind, err)
		}
		e.queue.WriteBuffer(buf, 0, make([]byte, size))
		a.buf = buf
		a.size = size
	}

	e.dispatched = false
	compute.Logger().Debug("compute: resized",
		"label", e.cfg.Label(), "size", fmt.Sprintf("%dx%d", width, height))
	return e.rebuildStaticBindGroups()
}

// Close releases all GPU resources. When the engine owns its device
// (standalone bring-up), the device and instance are destroyed last.
// Safe to call multiple times.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true

	if e.watcher != nil {
		e.watcher.Close()
		e.watcher = nil
	}

	e.destroyStaticBindGroups()
	e.releaseAux()
	e.destroyPipelines()
	if e.manager != nil {
		e.manager.Destroy()
	}

	if e.ownsDevice {
		if e.device != nil {
			e.device.Destroy()
		}
		if e.instance != nil {
			e.instance.Destroy()
		}
	}
	e.device = nil
	e.queue = nil
	e.instance = nil
}
