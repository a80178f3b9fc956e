// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/compute"
)

// Parameter upload errors.
var (
	// ErrAuxNotDeclared is returned when writing a resource the
	// configuration did not declare.
	ErrAuxNotDeclared = errors.New("compute: auxiliary resource not declared")

	// ErrUploadTooLarge is returned when upload data exceeds the target
	// buffer size.
	ErrUploadTooLarge = errors.New("compute: upload exceeds buffer size")
)

// mouseState mirrors the pointer uniform block: position, last click
// position, wheel deltas, and button bits. 32 bytes, std140-compatible.
type mouseState struct {
	pos     [2]float32
	click   [2]float32
	wheel   [2]float32
	buttons [2]uint32
}

func (s mouseState) toBytes() []byte {
	buf := make([]byte, mouseUniformBytes)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], math.Float32bits(s.pos[0]))
	le.PutUint32(buf[4:8], math.Float32bits(s.pos[1]))
	le.PutUint32(buf[8:12], math.Float32bits(s.click[0]))
	le.PutUint32(buf[12:16], math.Float32bits(s.click[1]))
	le.PutUint32(buf[16:20], math.Float32bits(s.wheel[0]))
	le.PutUint32(buf[20:24], math.Float32bits(s.wheel[1]))
	le.PutUint32(buf[24:28], s.buttons[0])
	le.PutUint32(buf[28:32], s.buttons[1])
	return buf
}

// frameUniformBytesFor packs the frame uniform block: elapsed time, frame
// delta, frame index, and the current pixel dimensions.
func (e *Engine) frameUniformBytesFor() []byte {
	w, h := e.manager.Size()
	buf := make([]byte, frameUniformBytes)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], math.Float32bits(e.timeSec))
	le.PutUint32(buf[4:8], math.Float32bits(e.deltaSec))
	le.PutUint32(buf[8:12], e.frameIndex)
	le.PutUint32(buf[12:16], w)
	le.PutUint32(buf[16:20], h)
	// Remaining words are padding.
	return buf
}

// uploadFrameState writes the frame and mouse uniforms ahead of recording.
func (e *Engine) uploadFrameState() {
	e.queue.WriteBuffer(e.frameUniform, 0, e.frameUniformBytesFor())
	if buf := e.auxBuffer(compute.AuxMouse, 0); buf != nil {
		e.queue.WriteBuffer(buf, 0, e.mouse.toBytes())
	}
}

// SetTime updates the elapsed time and frame delta uploaded with the next
// dispatch.
func (e *Engine) SetTime(elapsed, delta float32) {
	e.timeSec = elapsed
	e.deltaSec = delta
}

// SetMouse updates the pointer position and button bits.
func (e *Engine) SetMouse(x, y float32, buttons uint32) {
	e.mouse.pos = [2]float32{x, y}
	e.mouse.buttons[0] = buttons
}

// SetMouseClick records the position of the most recent click.
func (e *Engine) SetMouseClick(x, y float32) {
	e.mouse.click = [2]float32{x, y}
}

// SetMouseWheel updates the wheel deltas.
func (e *Engine) SetMouseWheel(dx, dy float32) {
	e.mouse.wheel = [2]float32{dx, dy}
}

// WriteUniform uploads the custom uniform block. The data must fit the
// declared UniformSize.
func (e *Engine) WriteUniform(data []byte) error {
	if e.customUniform == nil {
		return fmt.Errorf("%w: custom uniform", ErrAuxNotDeclared)
	}
	if uint64(len(data)) > e.cfg.UniformSize() {
		return fmt.Errorf("%w: %d > %d", ErrUploadTooLarge, len(data), e.cfg.UniformSize())
	}
	e.queue.WriteBuffer(e.customUniform, 0, data)
	return nil
}

// WriteAudio uploads audio samples into the audio scratch buffer.
func (e *Engine) WriteAudio(samples []float32) error {
	return e.writeFloats(compute.AuxAudio, e.cfg.AudioSamples(), samples)
}

// WriteSpectrum uploads spectrum bins into the audio spectrum buffer.
func (e *Engine) WriteSpectrum(bins []float32) error {
	return e.writeFloats(compute.AuxAudioSpectrum, e.cfg.SpectrumBins(), bins)
}

func (e *Engine) writeFloats(kind compute.AuxKind, capacity int, vals []float32) error {
	buf := e.auxBuffer(kind, 0)
	if buf == nil {
		return fmt.Errorf("%w: %s", ErrAuxNotDeclared, kind)
	}
	if len(vals) > capacity {
		return fmt.Errorf("%w: %d > %d samples", ErrUploadTooLarge, len(vals), capacity)
	}
	data := make([]byte, len(vals)*4)
	le := binary.LittleEndian
	for i, v := range vals {
		le.PutUint32(data[i*4:], math.Float32bits(v))
	}
	e.queue.WriteBuffer(buf, 0, data)
	return nil
}

// WriteInputImage uploads packed pixel data into the external input image
// slot. The data must fit the current frame dimensions.
func (e *Engine) WriteInputImage(data []byte) error {
	return e.writePixels(compute.AuxInputImage, 0, data)
}

// WriteChannel uploads packed pixel data into channel slot i.
func (e *Engine) WriteChannel(i int, data []byte) error {
	if i < 0 || i >= e.cfg.Channels() {
		return fmt.Errorf("%w: channel %d", ErrAuxNotDeclared, i)
	}
	return e.writePixels(compute.AuxChannel, i, data)
}

func (e *Engine) writePixels(kind compute.AuxKind, channel int, data []byte) error {
	var target *auxResource
	for i := range e.aux {
		if e.aux[i].desc.Kind == kind && e.aux[i].desc.Channel == channel {
			target = &e.aux[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("%w: %s", ErrAuxNotDeclared, kind)
	}
	if uint64(len(data)) > target.size {
		return fmt.Errorf("%w: %d > %d bytes", ErrUploadTooLarge, len(data), target.size)
	}
	e.queue.WriteBuffer(target.buf, 0, data)
	return nil
}
