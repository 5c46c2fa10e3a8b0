package gpu

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"

	"github.com/gekko3d/rend/rt/core"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxBufferSize               = 256 << 20
	defaultMaxStorageBufferBindingSize = 128 << 20
	defaultSubgroupSize                = 32
)

// SoftwareDevice executes compute kernels on the CPU and records indirect draws instead of
// rasterizing them. It backs headless runs and tests.
type SoftwareDevice struct {
	limits Limits

	mu         sync.Mutex
	dispatches []DispatchRecord
	draws      []DrawRecord
	live       int
	openFrames int
	target     SurfaceConfig
}

// SurfaceConfig is the last size and present mode passed to Configure.
type SurfaceConfig struct {
	Width  uint32
	Height uint32
	VSync  bool
}

type SoftwareOptions struct {
	MaxBufferSize               uint64
	MaxStorageBufferBindingSize uint64
	SubgroupSize                uint32
}

// DispatchRecord describes one executed dispatch.
type DispatchRecord struct {
	Label       string
	Workgroups  uint32
	Invocations uint32
}

// DrawRecord holds the commands an indirect-count draw consumed, in buffer order.
type DrawRecord struct {
	Count    uint32
	MaxCount uint32
	Commands []core.IndirectDrawCommand
}

func NewSoftwareDevice(opts SoftwareOptions) *SoftwareDevice {
	if opts.MaxBufferSize == 0 {
		opts.MaxBufferSize = defaultMaxBufferSize
	}
	if opts.MaxStorageBufferBindingSize == 0 {
		opts.MaxStorageBufferBindingSize = defaultMaxStorageBufferBindingSize
	}
	if opts.SubgroupSize == 0 {
		opts.SubgroupSize = defaultSubgroupSize
	}
	return &SoftwareDevice{
		limits: Limits{
			MaxBufferSize:               opts.MaxBufferSize,
			MaxStorageBufferBindingSize: opts.MaxStorageBufferBindingSize,
			SubgroupSize:                opts.SubgroupSize,
		},
	}
}

func (d *SoftwareDevice) Limits() Limits { return d.limits }

type softBuffer struct {
	device *SoftwareDevice
	label  string
	usage  BufferUsage

	mu       sync.Mutex
	data     []byte
	released bool
}

func (b *softBuffer) Label() string      { return b.label }
func (b *softBuffer) Size() uint64       { return uint64(len(b.data)) }
func (b *softBuffer) Usage() BufferUsage { return b.usage }

func (b *softBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	b.device.mu.Lock()
	b.device.live--
	b.device.mu.Unlock()
}

func (d *SoftwareDevice) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	if desc.Size > d.limits.MaxBufferSize {
		return nil, fmt.Errorf("%w: %s needs %d bytes, max %d", ErrBufferSize, desc.Label, desc.Size, d.limits.MaxBufferSize)
	}
	d.mu.Lock()
	d.live++
	d.mu.Unlock()
	return &softBuffer{
		device: d,
		label:  desc.Label,
		usage:  desc.Usage,
		data:   make([]byte, desc.Size),
	}, nil
}

func (d *SoftwareDevice) buffer(buf Buffer) (*softBuffer, error) {
	b, ok := buf.(*softBuffer)
	if !ok || b.device != d {
		return nil, ErrForeignResource
	}
	if b.released {
		return nil, fmt.Errorf("%w: %s", ErrReleased, b.label)
	}
	return b, nil
}

func (d *SoftwareDevice) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	b, err := d.buffer(buf)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("%w: write of %d bytes at %d into %s (%d bytes)", ErrOutOfBounds, len(data), offset, b.label, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

// ReadBuffer returns a copy of the buffer contents.
func (d *SoftwareDevice) ReadBuffer(buf Buffer) ([]byte, error) {
	b, err := d.buffer(buf)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}

// LiveBuffers counts buffers created and not yet released.
func (d *SoftwareDevice) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

type softTexture struct {
	label    string
	width    uint32
	height   uint32
	format   core.TextureFormat
	mips     [][]byte
	released bool
}

func (t *softTexture) Label() string     { return t.label }
func (t *softTexture) MipLevels() uint32 { return uint32(len(t.mips)) }
func (t *softTexture) Release()          { t.released = true }

func (d *SoftwareDevice) CreateTexture(desc TextureDescriptor) (Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("gpu: texture %s has zero extent", desc.Label)
	}
	levels := desc.MipLevels
	if levels == 0 {
		levels = 1
	}
	return &softTexture{
		label:  desc.Label,
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		mips:   make([][]byte, levels),
	}, nil
}

func (d *SoftwareDevice) WriteTexture(tex Texture, mip uint32, width, height uint32, data []byte) error {
	t, ok := tex.(*softTexture)
	if !ok {
		return ErrForeignResource
	}
	if t.released {
		return fmt.Errorf("%w: %s", ErrReleased, t.label)
	}
	if mip >= uint32(len(t.mips)) {
		return fmt.Errorf("%w: mip %d of %s (%d levels)", ErrOutOfBounds, mip, t.label, len(t.mips))
	}
	if want := int(width) * int(height) * t.format.BytesPerPixel(); len(data) != want {
		return fmt.Errorf("%w: mip %d of %s expects %d bytes, got %d", ErrOutOfBounds, mip, t.label, want, len(data))
	}
	t.mips[mip] = append([]byte(nil), data...)
	return nil
}

// TextureReleased reports whether tex has been released.
func (d *SoftwareDevice) TextureReleased(tex Texture) bool {
	t, ok := tex.(*softTexture)
	return ok && t.released
}

type softPipeline struct {
	label         string
	workgroupSize uint32
	kernel        Kernel
}

func (p *softPipeline) Label() string { return p.label }
func (p *softPipeline) Release()      {}

func (d *SoftwareDevice) CreateComputePipeline(desc ComputePipelineDescriptor) (ComputePipeline, error) {
	if desc.Kernel == nil {
		return nil, fmt.Errorf("gpu: pipeline %s has no CPU kernel", desc.Label)
	}
	if desc.WorkgroupSize == 0 {
		return nil, fmt.Errorf("gpu: pipeline %s has zero workgroup size", desc.Label)
	}
	return &softPipeline{label: desc.Label, workgroupSize: desc.WorkgroupSize, kernel: desc.Kernel}, nil
}

func (d *SoftwareDevice) Configure(width, height uint32, vsync bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.target = SurfaceConfig{Width: width, Height: height, VSync: vsync}
	return nil
}

func (d *SoftwareDevice) Surface() SurfaceConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target
}

func (d *SoftwareDevice) BeginFrame() (Frame, error) {
	d.mu.Lock()
	d.openFrames++
	d.mu.Unlock()
	return &softFrame{device: d}, nil
}

// OpenFrames counts frames begun and neither submitted nor released.
func (d *SoftwareDevice) OpenFrames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openFrames
}

func (d *SoftwareDevice) Release() {}

// Dispatches returns every dispatch executed so far.
func (d *SoftwareDevice) Dispatches() []DispatchRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DispatchRecord(nil), d.dispatches...)
}

// Draws returns every indirect draw executed so far.
func (d *SoftwareDevice) Draws() []DrawRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DrawRecord(nil), d.draws...)
}

type softFrame struct {
	device   *SoftwareDevice
	commands []func() error
	done     bool
}

func (f *softFrame) Dispatch(desc DispatchDescriptor) error {
	p, ok := desc.Pipeline.(*softPipeline)
	if !ok {
		return ErrForeignResource
	}
	groups := make([][]*softBuffer, len(desc.BindGroups))
	for g, bindings := range desc.BindGroups {
		groups[g] = make([]*softBuffer, len(bindings))
		for b, buf := range bindings {
			sb, err := f.device.buffer(buf)
			if err != nil {
				return fmt.Errorf("binding %d/%d: %w", g, b, err)
			}
			groups[g][b] = sb
		}
	}

	f.commands = append(f.commands, func() error {
		return f.device.run(p, groups, desc.WorkgroupsX)
	})
	return nil
}

func (d *SoftwareDevice) run(p *softPipeline, groups [][]*softBuffer, workgroups uint32) error {
	mem := &softMemory{groups: groups}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for wg := uint32(0); wg < workgroups; wg++ {
		base := wg * p.workgroupSize
		g.Go(func() error {
			for local := uint32(0); local < p.workgroupSize; local++ {
				if err := p.kernel(base+local, mem); err != nil {
					return fmt.Errorf("%s invocation %d: %w", p.label, base+local, err)
				}
			}
			return nil
		})
	}
	err := g.Wait()

	d.mu.Lock()
	d.dispatches = append(d.dispatches, DispatchRecord{
		Label:       p.label,
		Workgroups:  workgroups,
		Invocations: workgroups * p.workgroupSize,
	})
	d.mu.Unlock()
	return err
}

type softMemory struct {
	groups [][]*softBuffer
}

func (m *softMemory) lookup(group, binding uint32) (*softBuffer, error) {
	if int(group) >= len(m.groups) || int(binding) >= len(m.groups[group]) {
		return nil, fmt.Errorf("%w: no buffer at group %d binding %d", ErrOutOfBounds, group, binding)
	}
	return m.groups[group][binding], nil
}

func (m *softMemory) Binding(group, binding uint32) ([]byte, error) {
	b, err := m.lookup(group, binding)
	if err != nil {
		return nil, err
	}
	return b.data, nil
}

func (m *softMemory) AtomicAddUint32(group, binding uint32, offset uint64, delta uint32) (uint32, error) {
	b, err := m.lookup(group, binding)
	if err != nil {
		return 0, err
	}
	if offset+4 > uint64(len(b.data)) {
		return 0, fmt.Errorf("%w: atomic at %d in %s", ErrOutOfBounds, offset, b.label)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	old := binary.LittleEndian.Uint32(b.data[offset:])
	binary.LittleEndian.PutUint32(b.data[offset:], old+delta)
	return old, nil
}

func (f *softFrame) DrawIndexedIndirectCount(desc IndirectDrawDescriptor) error {
	if desc.MaxCount == 0 {
		f.commands = append(f.commands, func() error {
			f.device.mu.Lock()
			f.device.draws = append(f.device.draws, DrawRecord{})
			f.device.mu.Unlock()
			return nil
		})
		return nil
	}
	indirect, err := f.device.buffer(desc.Indirect)
	if err != nil {
		return fmt.Errorf("indirect buffer: %w", err)
	}
	count, err := f.device.buffer(desc.Count)
	if err != nil {
		return fmt.Errorf("count buffer: %w", err)
	}
	index, err := f.device.buffer(desc.IndexBuffer)
	if err != nil {
		return fmt.Errorf("index buffer: %w", err)
	}
	var vertex *softBuffer
	if desc.VertexBuffer != nil {
		if vertex, err = f.device.buffer(desc.VertexBuffer); err != nil {
			return fmt.Errorf("vertex buffer: %w", err)
		}
	}

	f.commands = append(f.commands, func() error {
		n := binary.LittleEndian.Uint32(count.data)
		if n > desc.MaxCount {
			n = desc.MaxCount
		}
		cmds := core.DecodeIndirectDrawCommands(indirect.data, n)
		indexCount := uint32(len(index.data) / 4)
		for i, c := range cmds {
			if c.FirstIndex+c.IndexCount > indexCount {
				return fmt.Errorf("%w: draw %d reads indices %d..%d of %d", ErrOutOfBounds, i, c.FirstIndex, c.FirstIndex+c.IndexCount, indexCount)
			}
			if vertex != nil {
				if err := checkVertices(i, c, index.data, vertex.data); err != nil {
					return err
				}
			}
		}
		f.device.mu.Lock()
		f.device.draws = append(f.device.draws, DrawRecord{Count: n, MaxCount: desc.MaxCount, Commands: cmds})
		f.device.mu.Unlock()
		return nil
	})
	return nil
}

// checkVertices verifies every vertex c addresses, base vertex included, lies in vertices.
func checkVertices(draw int, c core.IndirectDrawCommand, indices, vertices []byte) error {
	vertexCount := int64(len(vertices) / core.SizeOfVertex)
	for i := c.FirstIndex; i < c.FirstIndex+c.IndexCount; i++ {
		v := int64(c.BaseVertex) + int64(binary.LittleEndian.Uint32(indices[i*4:]))
		if v < 0 || v >= vertexCount {
			return fmt.Errorf("%w: draw %d reads vertex %d of %d", ErrOutOfBounds, draw, v, vertexCount)
		}
	}
	return nil
}

func (f *softFrame) close() {
	f.done = true
	f.commands = nil
	f.device.mu.Lock()
	f.device.openFrames--
	f.device.mu.Unlock()
}

func (f *softFrame) Submit() error {
	if f.done {
		return fmt.Errorf("gpu: frame already submitted or released")
	}
	commands := f.commands
	f.close()
	for _, cmd := range commands {
		if err := cmd(); err != nil {
			return err
		}
	}
	return nil
}

func (f *softFrame) Release() {
	if !f.done {
		f.close()
	}
}
