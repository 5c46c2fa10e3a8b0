package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/rend/rt/core"
	"github.com/gekko3d/rend/rt/shaders"
)

type WGPUOptions struct {
	Label string
	// Surface is optional. Without one frames run compute work and skip the draw.
	Surface      *wgpu.SurfaceDescriptor
	Width        uint32
	Height       uint32
	VSync        bool
	SubgroupSize uint32
}

// WGPUDevice runs the renderer on a WebGPU adapter.
type WGPUDevice struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	limits Limits

	mu           sync.Mutex
	depthTexture *wgpu.Texture
	depthView    *wgpu.TextureView
	meshPipeline *wgpu.RenderPipeline
	sceneBuffer  *wgpu.Buffer
	released     bool
}

type wgpuBuffer struct {
	label  string
	size   uint64
	usage  BufferUsage
	buffer *wgpu.Buffer
}

func (b *wgpuBuffer) Label() string      { return b.label }
func (b *wgpuBuffer) Size() uint64       { return b.size }
func (b *wgpuBuffer) Usage() BufferUsage { return b.usage }

func (b *wgpuBuffer) Release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}
}

type wgpuTexture struct {
	label   string
	width   uint32
	height  uint32
	format  core.TextureFormat
	levels  uint32
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

func (t *wgpuTexture) Label() string     { return t.label }
func (t *wgpuTexture) MipLevels() uint32 { return t.levels }

func (t *wgpuTexture) Release() {
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.texture != nil {
		t.texture.Release()
		t.texture = nil
	}
}

type wgpuPipeline struct {
	label    string
	pipeline *wgpu.ComputePipeline
}

func (p *wgpuPipeline) Label() string { return p.label }

func (p *wgpuPipeline) Release() {
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
}

func NewWGPUDevice(opts WGPUOptions) (*WGPUDevice, error) {
	d := &WGPUDevice{}
	d.Instance = wgpu.CreateInstance(nil)

	adapterOpts := &wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	}
	if opts.Surface != nil {
		d.Surface = d.Instance.CreateSurface(opts.Surface)
		adapterOpts.CompatibleSurface = d.Surface
	}

	adapter, err := d.Instance.RequestAdapter(adapterOpts)
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("%w: request adapter: %v", ErrDeviceInitialization, err)
	}
	d.Adapter = adapter

	limits := wgpu.DefaultLimits()
	d.Device, err = adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:            opts.Label,
		RequiredFeatures: []wgpu.FeatureName{wgpu.FeatureNameIndirectFirstInstance},
		RequiredLimits:   &wgpu.RequiredLimits{Limits: limits},
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("%w: request device: %v", ErrDeviceInitialization, err)
	}
	d.Queue = d.Device.GetQueue()

	subgroup := opts.SubgroupSize
	if subgroup == 0 {
		subgroup = 64
	}
	subgroup = min(subgroup, limits.MaxComputeWorkgroupSizeX, limits.MaxComputeInvocationsPerWorkgroup)
	d.limits = Limits{
		MaxBufferSize:               limits.MaxBufferSize,
		MaxStorageBufferBindingSize: uint64(limits.MaxStorageBufferBindingSize),
		SubgroupSize:                subgroup,
	}

	if d.Surface != nil {
		caps := d.Surface.GetCapabilities(adapter)
		d.Config = &wgpu.SurfaceConfiguration{
			Usage:       wgpu.TextureUsageRenderAttachment,
			Format:      caps.Formats[0],
			Width:       opts.Width,
			Height:      opts.Height,
			PresentMode: presentMode(opts.VSync),
			AlphaMode:   caps.AlphaModes[0],
		}
		if err := d.Configure(opts.Width, opts.Height, opts.VSync); err != nil {
			d.Release()
			return nil, err
		}
		if err := d.createMeshPipeline(); err != nil {
			d.Release()
			return nil, err
		}
	}

	return d, nil
}

func presentMode(vsync bool) wgpu.PresentMode {
	if vsync {
		return wgpu.PresentModeFifo
	}
	return wgpu.PresentModeImmediate
}

func (d *WGPUDevice) Limits() Limits { return d.limits }

func (d *WGPUDevice) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	if desc.Size > d.limits.MaxBufferSize {
		return nil, fmt.Errorf("%w: %s needs %d bytes, max %d", ErrBufferSize, desc.Label, desc.Size, d.limits.MaxBufferSize)
	}
	buf, err := d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: wgpu.BufferUsage(desc.Usage),
	})
	if err != nil {
		return nil, err
	}
	return &wgpuBuffer{label: desc.Label, size: desc.Size, usage: desc.Usage, buffer: buf}, nil
}

func (d *WGPUDevice) raw(buf Buffer) (*wgpu.Buffer, error) {
	b, ok := buf.(*wgpuBuffer)
	if !ok {
		return nil, ErrForeignResource
	}
	if b.buffer == nil {
		return nil, fmt.Errorf("%w: %s", ErrReleased, b.label)
	}
	return b.buffer, nil
}

func (d *WGPUDevice) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	raw, err := d.raw(buf)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > buf.Size() {
		return fmt.Errorf("%w: write of %d bytes at %d into %s", ErrOutOfBounds, len(data), offset, buf.Label())
	}
	return d.Queue.WriteBuffer(raw, offset, data)
}

func textureFormat(f core.TextureFormat) wgpu.TextureFormat {
	switch f {
	case core.TextureFormatRGBA8UnormSrgb:
		return wgpu.TextureFormatRGBA8UnormSrgb
	case core.TextureFormatR8Unorm:
		return wgpu.TextureFormatR8Unorm
	default:
		return wgpu.TextureFormatRGBA8Unorm
	}
}

func (d *WGPUDevice) CreateTexture(desc TextureDescriptor) (Texture, error) {
	levels := max(desc.MipLevels, 1)
	tex, err := d.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          wgpu.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: levels,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        textureFormat(desc.Format),
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, err
	}
	return &wgpuTexture{
		label:   desc.Label,
		width:   desc.Width,
		height:  desc.Height,
		format:  desc.Format,
		levels:  levels,
		texture: tex,
		view:    view,
	}, nil
}

func (d *WGPUDevice) WriteTexture(tex Texture, mip uint32, width, height uint32, data []byte) error {
	t, ok := tex.(*wgpuTexture)
	if !ok {
		return ErrForeignResource
	}
	if t.texture == nil {
		return fmt.Errorf("%w: %s", ErrReleased, t.label)
	}
	if mip >= t.levels {
		return fmt.Errorf("%w: mip %d of %s (%d levels)", ErrOutOfBounds, mip, t.label, t.levels)
	}
	bpp := uint32(t.format.BytesPerPixel())
	return d.Queue.WriteTexture(&wgpu.ImageCopyTexture{
		Texture:  t.texture,
		MipLevel: mip,
		Aspect:   wgpu.TextureAspectAll,
	}, data, &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  width * bpp,
		RowsPerImage: height,
	}, &wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1})
}

func (d *WGPUDevice) CreateComputePipeline(desc ComputePipelineDescriptor) (ComputePipeline, error) {
	module, err := d.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.WGSL},
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", desc.Label, err)
	}
	defer module.Release()

	pipeline, err := d.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: desc.Label,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", desc.Label, err)
	}
	return &wgpuPipeline{label: desc.Label, pipeline: pipeline}, nil
}

func (d *WGPUDevice) createMeshPipeline() error {
	module, err := d.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "mesh shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.MeshWGSL},
	})
	if err != nil {
		return err
	}
	defer module.Release()

	d.meshPipeline, err = d.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "mesh pipeline",
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: core.SizeOfVertex,
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes: []wgpu.VertexAttribute{
					{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
					{Format: wgpu.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
					{Format: wgpu.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2},
				},
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    d.Config.Format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeBack,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth24Plus,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("create mesh pipeline: %w", err)
	}

	d.sceneBuffer, err = d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "scene uniform",
		Size:  16,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	return err
}

func (d *WGPUDevice) Configure(width, height uint32, vsync bool) error {
	if d.Surface == nil || width == 0 || height == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Config.Width = width
	d.Config.Height = height
	d.Config.PresentMode = presentMode(vsync)
	d.Surface.Configure(d.Adapter, d.Device, d.Config)

	if d.depthView != nil {
		d.depthView.Release()
		d.depthTexture.Release()
	}
	var err error
	d.depthTexture, err = d.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "depth texture",
		Size:          wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatDepth24Plus,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("create depth texture: %w", err)
	}
	d.depthView, err = d.depthTexture.CreateView(nil)
	return err
}

func (d *WGPUDevice) BeginFrame() (Frame, error) {
	encoder, err := d.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	return &wgpuFrame{device: d, encoder: encoder}, nil
}

func (d *WGPUDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return
	}
	d.released = true

	if d.sceneBuffer != nil {
		d.sceneBuffer.Release()
	}
	if d.meshPipeline != nil {
		d.meshPipeline.Release()
	}
	if d.depthView != nil {
		d.depthView.Release()
		d.depthTexture.Release()
	}
	if d.Device != nil {
		d.Device.Release()
	}
	if d.Adapter != nil {
		d.Adapter.Release()
	}
	if d.Surface != nil {
		d.Surface.Release()
	}
	if d.Instance != nil {
		d.Instance.Release()
	}
}

type wgpuFrame struct {
	device     *WGPUDevice
	encoder    *wgpu.CommandEncoder
	bindGroups []*wgpu.BindGroup
	surface    *wgpu.Texture
	view       *wgpu.TextureView
	released   bool
}

func (f *wgpuFrame) Dispatch(desc DispatchDescriptor) error {
	p, ok := desc.Pipeline.(*wgpuPipeline)
	if !ok {
		return ErrForeignResource
	}

	pass := f.encoder.BeginComputePass(nil)
	pass.SetPipeline(p.pipeline)
	for g, bindings := range desc.BindGroups {
		entries := make([]wgpu.BindGroupEntry, len(bindings))
		for b, buf := range bindings {
			raw, err := f.device.raw(buf)
			if err != nil {
				pass.End()
				return fmt.Errorf("binding %d/%d: %w", g, b, err)
			}
			entries[b] = wgpu.BindGroupEntry{Binding: uint32(b), Buffer: raw, Size: wgpu.WholeSize}
		}
		bg, err := f.device.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Layout:  p.pipeline.GetBindGroupLayout(uint32(g)),
			Entries: entries,
		})
		if err != nil {
			pass.End()
			return fmt.Errorf("bind group %d of %s: %w", g, p.label, err)
		}
		f.bindGroups = append(f.bindGroups, bg)
		pass.SetBindGroup(uint32(g), bg, nil)
	}
	pass.DispatchWorkgroups(desc.WorkgroupsX, 1, 1)
	return pass.End()
}

// DrawIndexedIndirectCount issues MaxCount indirect draws. Commands past the count are
// zeroed by the culling pass so they draw nothing.
func (f *wgpuFrame) DrawIndexedIndirectCount(desc IndirectDrawDescriptor) error {
	d := f.device
	if d.Surface == nil || d.meshPipeline == nil {
		return nil
	}

	var err error
	f.surface, err = d.Surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("get current texture: %w", err)
	}
	f.view, err = f.surface.CreateView(nil)
	if err != nil {
		return fmt.Errorf("create surface view: %w", err)
	}

	ambient := make([]byte, 16)
	for i, v := range desc.Ambient {
		binary.LittleEndian.PutUint32(ambient[i*4:], math.Float32bits(v))
	}
	if err := d.Queue.WriteBuffer(d.sceneBuffer, 0, ambient); err != nil {
		return err
	}

	pass := f.encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       f.view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0.05, G: 0.05, B: 0.08, A: 1},
		}},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            d.depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	})

	if desc.MaxCount > 0 {
		bufs := make([]*wgpu.Buffer, 0, 6)
		for _, b := range []Buffer{desc.Camera, desc.Objects, desc.Materials, desc.VertexBuffer, desc.IndexBuffer, desc.Indirect} {
			raw, err := d.raw(b)
			if err != nil {
				pass.End()
				return err
			}
			bufs = append(bufs, raw)
		}
		camera, objects, materials, vertices, indices, indirect := bufs[0], bufs[1], bufs[2], bufs[3], bufs[4], bufs[5]

		bg, err := d.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Layout: d.meshPipeline.GetBindGroupLayout(0),
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: camera, Size: wgpu.WholeSize},
				{Binding: 1, Buffer: objects, Size: wgpu.WholeSize},
				{Binding: 2, Buffer: materials, Size: wgpu.WholeSize},
				{Binding: 3, Buffer: d.sceneBuffer, Size: wgpu.WholeSize},
			},
		})
		if err != nil {
			pass.End()
			return fmt.Errorf("mesh bind group: %w", err)
		}
		f.bindGroups = append(f.bindGroups, bg)

		pass.SetPipeline(d.meshPipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.SetVertexBuffer(0, vertices, 0, wgpu.WholeSize)
		pass.SetIndexBuffer(indices, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		for i := uint32(0); i < desc.MaxCount; i++ {
			pass.DrawIndexedIndirect(indirect, uint64(i)*core.SizeOfIndirectDrawCommand)
		}
	}
	return pass.End()
}

func (f *wgpuFrame) Submit() error {
	if f.released {
		return fmt.Errorf("gpu: frame already submitted or released")
	}
	defer f.Release()

	cmd, err := f.encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish encoder: %w", err)
	}
	defer cmd.Release()
	f.device.Queue.Submit(cmd)
	if f.surface != nil {
		f.device.Surface.Present()
	}
	return nil
}

// Release drops the encoder, bind groups and any acquired surface texture without
// presenting it.
func (f *wgpuFrame) Release() {
	if f.released {
		return
	}
	f.released = true
	for _, bg := range f.bindGroups {
		bg.Release()
	}
	f.bindGroups = nil
	if f.view != nil {
		f.view.Release()
		f.view = nil
	}
	if f.surface != nil {
		f.surface.Release()
		f.surface = nil
	}
	f.encoder.Release()
}
