// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ReadOutput copies the Output buffer through a staging buffer and returns
// its packed pixel contents. It submits its own command buffer and blocks
// until the GPU completes the copy, so it is suitable for export paths, not
// per-frame display.
func (e *Engine) ReadOutput() ([]byte, error) {
	if e.closed {
		return nil, ErrEngineClosed
	}

	size := e.manager.OutputBytes()

	stagingBuf, err := e.device.CreateBuffer(&hal.BufferDescriptor{
		Label: e.cfg.Label() + "_staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("compute: create staging buffer: %w", err)
	}
	defer e.device.DestroyBuffer(stagingBuf)

	encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: e.cfg.Label() + "_readback",
	})
	if err != nil {
		return nil, fmt.Errorf("compute: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("readback"); err != nil {
		return nil, fmt.Errorf("compute: begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(e.manager.Output(), stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: size},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("compute: end encoding: %w", err)
	}
	defer e.device.FreeCommandBuffer(cmdBuf)

	fence, err := e.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("compute: create fence: %w", err)
	}
	defer e.device.DestroyFence(fence)

	if err := e.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("compute: submit readback: %w", err)
	}
	ok, err := e.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !ok {
		return nil, fmt.Errorf("compute: wait for readback: ok=%v err=%w", ok, err)
	}

	data := make([]byte, size)
	if err := e.queue.ReadBuffer(stagingBuf, 0, data); err != nil {
		return nil, fmt.Errorf("compute: readback: %w", err)
	}
	return data, nil
}
