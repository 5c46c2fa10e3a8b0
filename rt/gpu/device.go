package gpu

import (
	"errors"

	"github.com/gekko3d/rend/rt/core"
)

var (
	// ErrBufferSize is returned when a buffer exceeds the device's limits.
	ErrBufferSize = errors.New("gpu: buffer size exceeds device limit")
	// ErrReleased is returned when using a resource after Release.
	ErrReleased = errors.New("gpu: resource released")
	// ErrOutOfBounds is returned for writes or kernel accesses past the end of a buffer.
	ErrOutOfBounds = errors.New("gpu: access out of bounds")
	// ErrForeignResource is returned when a resource from another device is used.
	ErrForeignResource = errors.New("gpu: resource belongs to another device")
	// ErrDeviceInitialization is returned when no adapter or device can be acquired.
	ErrDeviceInitialization = errors.New("gpu: device initialization failed")
)

// BufferUsage values match the WebGPU usage bits.
type BufferUsage uint32

const (
	BufferUsageMapRead BufferUsage = 1 << iota
	BufferUsageMapWrite
	BufferUsageCopySrc
	BufferUsageCopyDst
	BufferUsageIndex
	BufferUsageVertex
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndirect
)

type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

type Buffer interface {
	Label() string
	Size() uint64
	Usage() BufferUsage
	Release()
}

type TextureDescriptor struct {
	Label     string
	Width     uint32
	Height    uint32
	MipLevels uint32
	Format    core.TextureFormat
}

type Texture interface {
	Label() string
	MipLevels() uint32
	Release()
}

// Kernel is the CPU rendition of a compute entry point. Devices without a GPU run it
// once per invocation; GPU devices ignore it.
type Kernel func(globalID uint32, mem KernelMemory) error

// KernelMemory exposes the buffers bound for a dispatch to a Kernel.
type KernelMemory interface {
	Binding(group, binding uint32) ([]byte, error)
	AtomicAddUint32(group, binding uint32, offset uint64, delta uint32) (uint32, error)
}

type ComputePipelineDescriptor struct {
	Label string
	// WGSL source and entry point, compiled by GPU devices.
	WGSL       string
	EntryPoint string
	// WorkgroupSize must match the @workgroup_size of the entry point.
	WorkgroupSize uint32
	Kernel        Kernel
}

type ComputePipeline interface {
	Label() string
	Release()
}

// DispatchDescriptor binds BindGroups[g][b] to @group(g) @binding(b) and runs
// WorkgroupsX workgroups.
type DispatchDescriptor struct {
	Pipeline    ComputePipeline
	BindGroups  [][]Buffer
	WorkgroupsX uint32
}

// IndirectDrawDescriptor issues up to MaxCount indexed draws whose arguments live in
// Indirect. Count holds the number of valid commands as a u32. Camera is the cull
// uniform of the frame, whose first 64 bytes are the view-projection matrix.
type IndirectDrawDescriptor struct {
	VertexBuffer Buffer
	IndexBuffer  Buffer
	Objects      Buffer
	Materials    Buffer
	Camera       Buffer
	Indirect     Buffer
	Count        Buffer
	MaxCount     uint32
	Ambient      [4]float32
}

// Frame records GPU work. Nothing executes before Submit; buffer writes made through the
// device before Submit are visible to the frame's commands.
type Frame interface {
	Dispatch(d DispatchDescriptor) error
	DrawIndexedIndirectCount(d IndirectDrawDescriptor) error
	Submit() error
	// Release discards a frame that was not submitted. It is a no-op after Submit and may be
	// called more than once.
	Release()
}

type Limits struct {
	MaxBufferSize               uint64
	MaxStorageBufferBindingSize uint64
	// SubgroupSize is the invocation count per workgroup compute shaders should use.
	SubgroupSize uint32
}

// Device is the command submission context the renderer core depends on.
type Device interface {
	Limits() Limits
	CreateBuffer(desc BufferDescriptor) (Buffer, error)
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
	CreateTexture(desc TextureDescriptor) (Texture, error)
	WriteTexture(tex Texture, mip uint32, width, height uint32, data []byte) error
	CreateComputePipeline(desc ComputePipelineDescriptor) (ComputePipeline, error)
	// Configure resizes the presentation target. Devices without one only record it.
	Configure(width, height uint32, vsync bool) error
	BeginFrame() (Frame, error)
	Release()
}
