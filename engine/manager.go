// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"errors"
	"fmt"

	"github.com/gogpu/compute"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Manager errors.
var (
	// ErrBadDimensions is returned for a zero or negative resize target.
	ErrBadDimensions = errors.New("compute: dimensions must be positive")

	// ErrManagerClosed is returned when operating on a destroyed manager.
	ErrManagerClosed = errors.New("compute: buffer manager destroyed")
)

// pingPong is the per-name double-buffered state: two physical sides, their
// precomputed binding resources, and the bit identifying which side holds
// the most recently committed write. The opposite side is always safe to
// write next.
type pingPong struct {
	name        string
	sides       [2]hal.Buffer
	bindings    [2]gputypes.BufferBinding
	lastWritten uint8
}

// Manager owns every physical GPU resource behind the named ping-pong
// buffers plus the distinguished Output buffer. Passes and the dispatch
// driver only ever hold references resolved by handle at dispatch time.
//
// Manager is single-threaded by design: one logical thread records GPU
// commands per frame, and recording order alone determines correctness,
// so no state transition takes a lock.
type Manager struct {
	device hal.Device
	queue  hal.Queue

	label  string
	width  uint32
	height uint32
	bpp    uint64

	buffers []pingPong

	output        hal.Buffer
	outputBinding gputypes.BufferBinding

	closed bool
}

// NewManager allocates one double-buffered pair per buffer name in the
// configuration, plus the Output buffer. Every allocation is zero-filled,
// so the first read of a never-written buffer observes zeros rather than
// undefined content.
func NewManager(device hal.Device, queue hal.Queue, cfg *compute.Config, width, height int) (*Manager, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBadDimensions, width, height)
	}

	m := &Manager{
		device: device,
		queue:  queue,
		label:  cfg.Label(),
		width:  uint32(width),
		height: uint32(height),
		bpp:    formatBytesPerPixel(cfg.Format()),
	}

	m.buffers = make([]pingPong, cfg.BufferCount())
	for h := 0; h < cfg.BufferCount(); h++ {
		m.buffers[h].name = cfg.BufferName(compute.BufferHandle(h))
	}

	if err := m.allocate(); err != nil {
		m.Destroy()
		return nil, err
	}
	return m, nil
}

// formatBytesPerPixel returns the packed byte width of one pixel. Both
// supported output formats (RGBA8Unorm, BGRA8Unorm) pack to 4 bytes.
func formatBytesPerPixel(gputypes.TextureFormat) uint64 { return 4 }

// pixelBytes returns the byte size of one side at the current dimensions.
func (m *Manager) pixelBytes() uint64 {
	return uint64(m.width) * uint64(m.height) * m.bpp
}

// allocate creates both sides of every buffer and the Output buffer at the
// current dimensions, zero-fills them, and rebuilds the precomputed binding
// resources. Existing resources must already be released.
func (m *Manager) allocate() error {
	size := m.pixelBytes()
	zeros := make([]byte, size)

	storage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	storageOut := storage | gputypes.BufferUsageCopySrc

	for i := range m.buffers {
		pp := &m.buffers[i]
		for side := 0; side < 2; side++ {
			buf, err := m.device.CreateBuffer(&hal.BufferDescriptor{
				Label: fmt.Sprintf("%s_%s_%d", m.label, pp.name, side),
				Size:  size,
				Usage: storage,
			})
			if err != nil {
				return fmt.Errorf("compute: create buffer %s side %d: %w", pp.name, side, err)
			}
			m.queue.WriteBuffer(buf, 0, zeros)
			pp.sides[side] = buf
			pp.bindings[side] = gputypes.BufferBinding{Buffer: buf.NativeHandle()}
		}
		pp.lastWritten = 0
	}

	out, err := m.device.CreateBuffer(&hal.BufferDescriptor{
		Label: m.label + "_output",
		Size:  size,
		Usage: storageOut,
	})
	if err != nil {
		return fmt.Errorf("compute: create output buffer: %w", err)
	}
	m.queue.WriteBuffer(out, 0, zeros)
	m.output = out
	m.outputBinding = gputypes.BufferBinding{Buffer: out.NativeHandle()}

	compute.Logger().Debug("compute: buffers allocated",
		"label", m.label,
		"buffers", len(m.buffers),
		"size", fmt.Sprintf("%dx%d", m.width, m.height),
		"bytes_per_side", size)
	return nil
}

// release destroys every owned GPU buffer. Binding resources become stale
// and must not be used until allocate runs again.
func (m *Manager) release() {
	for i := range m.buffers {
		pp := &m.buffers[i]
		for side := 0; side < 2; side++ {
			if pp.sides[side] != nil {
				m.device.DestroyBuffer(pp.sides[side])
				pp.sides[side] = nil
			}
			pp.bindings[side] = gputypes.BufferBinding{}
		}
	}
	if m.output != nil {
		m.device.DestroyBuffer(m.output)
		m.output = nil
		m.outputBinding = gputypes.BufferBinding{}
	}
}

// check panics for an out-of-range handle. Passing a handle that no Config
// produced is a programming error, not a recoverable condition.
func (m *Manager) check(h compute.BufferHandle) {
	if h < 0 || int(h) >= len(m.buffers) {
		panic(fmt.Sprintf("compute: unknown buffer handle %d (have %d buffers)", h, len(m.buffers)))
	}
}

// Read returns the side holding the most recently committed write: the side
// a pass binding this buffer as an input must sample. Reading a buffer no
// pass has written yet returns its zero-filled initial allocation.
func (m *Manager) Read(h compute.BufferHandle) hal.Buffer {
	m.check(h)
	pp := &m.buffers[h]
	return pp.sides[pp.lastWritten]
}

// ReadBinding returns the precomputed binding resource for the readable side.
func (m *Manager) ReadBinding(h compute.BufferHandle) gputypes.BufferBinding {
	m.check(h)
	pp := &m.buffers[h]
	return pp.bindings[pp.lastWritten]
}

// Write returns the side opposite the last committed write: never the side
// currently exposed to readers, so a pass writing buffer X cannot race its
// own in-flight readers. The returned side becomes readable only after
// Commit flips the bit.
func (m *Manager) Write(h compute.BufferHandle) hal.Buffer {
	m.check(h)
	pp := &m.buffers[h]
	return pp.sides[1-pp.lastWritten]
}

// WriteBinding returns the precomputed binding resource for the writable side.
func (m *Manager) WriteBinding(h compute.BufferHandle) gputypes.BufferBinding {
	m.check(h)
	pp := &m.buffers[h]
	return pp.bindings[1-pp.lastWritten]
}

// Commit flips one buffer's bit, publishing the side returned by the last
// Write to subsequent readers. Call it immediately after the pass's GPU
// commands for this buffer are recorded — recording order, not execution
// order, is what this layer reasons about: all passes in one dispatch batch
// are recorded into a single command stream, and the device's own dependency
// tracking enforces execution-time ordering.
func (m *Manager) Commit(h compute.BufferHandle) {
	m.check(h)
	pp := &m.buffers[h]
	pp.lastWritten = 1 - pp.lastWritten
}

// LastWritten returns the buffer's current side bit. Intended for tests and
// diagnostics.
func (m *Manager) LastWritten(h compute.BufferHandle) uint8 {
	m.check(h)
	return m.buffers[h].lastWritten
}

// FlipAll flips every tracked buffer in one call. This is the cross-frame
// hand-off for pipelines whose whole chain is one continuous feedback loop
// read by display without being rewritten the same frame: run it exactly
// once per presented frame, after that frame's work is submitted. It is
// deliberately distinct from Commit, which serves intra-frame sequencing.
func (m *Manager) FlipAll() {
	for i := range m.buffers {
		m.buffers[i].lastWritten = 1 - m.buffers[i].lastWritten
	}
}

// ClearAll synchronously recreates every tracked resource — both sides of
// every buffer, plus Output — zero-fills them, and resets every bit to 0.
// All previously resolved buffers and binding resources become invalid.
func (m *Manager) ClearAll() error {
	if m.closed {
		return ErrManagerClosed
	}
	m.release()
	return m.allocate()
}

// Resize updates the stored dimensions and delegates to ClearAll. There is
// no resize-with-content-preservation path.
func (m *Manager) Resize(width, height int) error {
	if m.closed {
		return ErrManagerClosed
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrBadDimensions, width, height)
	}
	m.width = uint32(width)
	m.height = uint32(height)
	return m.ClearAll()
}

// Size returns the current pixel dimensions.
func (m *Manager) Size() (width, height uint32) {
	return m.width, m.height
}

// Output returns the distinguished output buffer the designated final pass
// writes and display/export collaborators read.
func (m *Manager) Output() hal.Buffer { return m.output }

// OutputBinding returns the binding resource for the output buffer.
func (m *Manager) OutputBinding() gputypes.BufferBinding { return m.outputBinding }

// OutputBytes returns the byte size of the output buffer.
func (m *Manager) OutputBytes() uint64 { return m.pixelBytes() }

// Destroy releases all GPU resources. Safe to call multiple times.
func (m *Manager) Destroy() {
	if m.closed {
		return
	}
	m.release()
	m.closed = true
}
