// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"fmt"

	"github.com/gogpu/compute"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// DeviceHandle is the shared-device integration point: the host application
// (e.g. a gogpu.App) implements it and passes it in, and the engine uses the
// host's GPU device instead of creating its own. The provider must also
// expose the underlying HAL handles via HalDevice/HalQueue.
type DeviceHandle = gpucontext.DeviceProvider

// halProvider is the extra capability a provider must implement for direct
// HAL access.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// NewFromProvider creates an engine on a shared GPU device from a host
// provider. The engine does not destroy the shared device on Close.
func NewFromProvider(provider DeviceHandle, cfg *compute.Config, src string, width, height int) (*Engine, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("compute: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("compute: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("compute: provider HalQueue is not hal.Queue")
	}

	eng, err := New(device, queue, cfg, src, width, height)
	if err != nil {
		return nil, err
	}
	compute.Logger().Debug("compute: using shared GPU device", "label", cfg.Label())
	return eng, nil
}
