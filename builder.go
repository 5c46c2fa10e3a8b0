package rend

import (
	"fmt"

	"github.com/gekko3d/rend/rt/core"
	"github.com/gekko3d/rend/rt/gpu"
)

type RendererBuilder struct {
	device      gpu.Device
	logger      Logger
	options     core.Options
	wgpuOptions gpu.WGPUOptions
}

func NewRendererBuilder() *RendererBuilder {
	return &RendererBuilder{
		logger:  NewNopLogger(),
		options: core.DefaultOptions(),
	}
}

// WithDevice renders on d. The caller keeps ownership and releases it after Close.
func (b *RendererBuilder) WithDevice(d gpu.Device) *RendererBuilder {
	b.device = d

	return b
}

// WithWGPUOptions configures the device Build creates when none was given.
func (b *RendererBuilder) WithWGPUOptions(opts gpu.WGPUOptions) *RendererBuilder {
	b.wgpuOptions = opts

	return b
}

func (b *RendererBuilder) WithLogger(l Logger) *RendererBuilder {
	if l != nil {
		b.logger = l
	}

	return b
}

func (b *RendererBuilder) WithOptions(o core.Options) *RendererBuilder {
	b.options = o

	return b
}

// Build creates the renderer. Without WithDevice it acquires a WebGPU device and returns
// an error wrapping ErrDeviceInitialization if none is available.
func (b *RendererBuilder) Build() (*Renderer, error) {
	device := b.device
	owns := false
	if device == nil {
		opts := b.wgpuOptions
		if opts.Label == "" {
			opts.Label = "rend device"
		}
		opts.Width, opts.Height, opts.VSync = b.options.Width, b.options.Height, b.options.VSync

		d, err := gpu.NewWGPUDevice(opts)
		if err != nil {
			return nil, fmt.Errorf("rend: %w", err)
		}
		device, owns = d, true
	}

	r, err := newRenderer(device, owns, b.logger, b.options)
	if err != nil {
		if owns {
			device.Release()
		}
		return nil, err
	}
	return r, nil
}
