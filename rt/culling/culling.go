package culling

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gekko3d/rend/rt/core"
	"github.com/gekko3d/rend/rt/gpu"
	"github.com/gekko3d/rend/rt/shaders"
)

const (
	SizeOfCulledObject  = core.SizeOfCulledObject
	SizeOfIndirectCall  = core.SizeOfIndirectDrawCommand
	SizeOfIndirectCount = 4
)

// Bindings of the cull shader, all in group 0.
const (
	BindingUniform = iota
	BindingInput
	BindingOutput
	BindingIndirect
	BindingCount
)

// ErrBufferTooLarge is returned when the culling buffers for a scene exceed device limits.
var ErrBufferTooLarge = errors.New("culling: buffer exceeds device limit")

// Logger is the subset of the renderer logger the culling pass writes to.
type Logger interface {
	Debugf(format string, args ...any)
}

// CullingPass owns the cull compute pipeline.
type CullingPass struct {
	device   gpu.Device
	pipeline gpu.ComputePipeline
	subgroup uint32
	logger   Logger
}

// CullingPassData holds the per-scene buffers the pass writes. Output and Indirect are nil
// when ObjectCount is zero; Count always exists so the draw can read it.
type CullingPassData struct {
	Name        string
	ObjectCount uint32
	Uniform     gpu.Buffer
	Output      gpu.Buffer
	Indirect    gpu.Buffer
	Count       gpu.Buffer
}

func (d *CullingPassData) Release() {
	if d == nil {
		return
	}
	for _, b := range []gpu.Buffer{d.Uniform, d.Output, d.Indirect, d.Count} {
		if b != nil {
			b.Release()
		}
	}
	*d = CullingPassData{Name: d.Name}
}

func NewCullingPass(device gpu.Device, logger Logger) (*CullingPass, error) {
	subgroup := device.Limits().SubgroupSize
	if subgroup == 0 {
		return nil, fmt.Errorf("culling: device reports zero subgroup size")
	}
	pipeline, err := device.CreateComputePipeline(gpu.ComputePipelineDescriptor{
		Label:         "culling pipeline",
		WGSL:          shaders.CullWGSL(subgroup),
		EntryPoint:    shaders.CullEntryPoint,
		WorkgroupSize: subgroup,
		Kernel:        Kernel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create culling pipeline: %w", err)
	}
	logger.Debugf("culling pass ready, workgroup size %d", subgroup)
	return &CullingPass{device: device, pipeline: pipeline, subgroup: subgroup, logger: logger}, nil
}

func (p *CullingPass) SubgroupSize() uint32 { return p.subgroup }

func (p *CullingPass) Release() {
	p.pipeline.Release()
}

// DispatchGroups is the number of workgroups covering n invocations.
func DispatchGroups(n, subgroup uint32) uint32 {
	return (n + subgroup - 1) / subgroup
}

func (p *CullingPass) checkSize(label string, size uint64) error {
	limits := p.device.Limits()
	if size > limits.MaxBufferSize || size > limits.MaxStorageBufferBindingSize {
		return fmt.Errorf("%w: %s needs %d bytes (max buffer %d, max binding %d)",
			ErrBufferTooLarge, label, size, limits.MaxBufferSize, limits.MaxStorageBufferBindingSize)
	}
	return nil
}

// Prepare returns buffers sized for objectCount objects. prev is returned unchanged when it
// already matches; otherwise it is released once the replacement exists. On error prev is
// left intact.
func (p *CullingPass) Prepare(prev *CullingPassData, objectCount uint32, name string) (*CullingPassData, error) {
	if prev != nil && prev.ObjectCount == objectCount && prev.Count != nil {
		return prev, nil
	}

	outputSize := uint64(objectCount) * SizeOfCulledObject
	indirectSize := uint64(objectCount) * SizeOfIndirectCall
	if err := p.checkSize("output buffer for "+name, outputSize); err != nil {
		return nil, err
	}
	if err := p.checkSize("indirect buffer for "+name, indirectSize); err != nil {
		return nil, err
	}

	data := &CullingPassData{Name: name, ObjectCount: objectCount}

	var err error
	if data.Uniform, err = p.device.CreateBuffer(gpu.BufferDescriptor{
		Label: "culling uniform for " + name,
		Size:  core.SizeOfCullUniform,
		Usage: gpu.BufferUsageUniform | gpu.BufferUsageCopyDst,
	}); err != nil {
		data.Release()
		return nil, fmt.Errorf("failed to create culling uniform: %w", err)
	}
	if data.Count, err = p.device.CreateBuffer(gpu.BufferDescriptor{
		Label: "indirect count buffer for " + name,
		Size:  SizeOfIndirectCount,
		Usage: gpu.BufferUsageStorage | gpu.BufferUsageIndirect | gpu.BufferUsageCopyDst,
	}); err != nil {
		data.Release()
		return nil, fmt.Errorf("failed to create count buffer: %w", err)
	}
	if err := gpu.ZeroBuffer(p.device, data.Count, SizeOfIndirectCount); err != nil {
		data.Release()
		return nil, err
	}

	if objectCount > 0 {
		if data.Output, err = p.device.CreateBuffer(gpu.BufferDescriptor{
			Label: "output buffer for " + name,
			Size:  outputSize,
			Usage: gpu.BufferUsageStorage | gpu.BufferUsageCopyDst,
		}); err != nil {
			data.Release()
			return nil, fmt.Errorf("failed to create output buffer: %w", err)
		}
		if data.Indirect, err = p.device.CreateBuffer(gpu.BufferDescriptor{
			Label: "indirect buffer for " + name,
			Size:  indirectSize,
			Usage: gpu.BufferUsageStorage | gpu.BufferUsageIndirect | gpu.BufferUsageCopyDst,
		}); err != nil {
			data.Release()
			return nil, fmt.Errorf("failed to create indirect buffer: %w", err)
		}
	}

	prev.Release()
	p.logger.Debugf("culling buffers for %s sized for %d objects", name, objectCount)
	return data, nil
}

// Run records the cull dispatch for data.ObjectCount objects read from input and returns
// the number of workgroups dispatched.
func (p *CullingPass) Run(frame gpu.Frame, input gpu.Buffer, uniform core.CullUniform, data *CullingPassData) (uint32, error) {
	if err := gpu.ZeroBuffer(p.device, data.Count, SizeOfIndirectCount); err != nil {
		return 0, fmt.Errorf("failed to reset count: %w", err)
	}
	uniform.ObjectCount = data.ObjectCount
	if err := p.device.WriteBuffer(data.Uniform, 0, uniform.Encode()); err != nil {
		return 0, fmt.Errorf("failed to write culling uniform: %w", err)
	}
	if data.ObjectCount == 0 {
		return 0, nil
	}
	if input == nil || input.Size() < uint64(data.ObjectCount)*core.SizeOfCullInput {
		return 0, fmt.Errorf("culling: input buffer too small for %d objects", data.ObjectCount)
	}
	if err := gpu.ZeroBuffer(p.device, data.Indirect, data.Indirect.Size()); err != nil {
		return 0, fmt.Errorf("failed to reset indirect buffer: %w", err)
	}

	groups := DispatchGroups(data.ObjectCount, p.subgroup)
	err := frame.Dispatch(gpu.DispatchDescriptor{
		Pipeline:    p.pipeline,
		BindGroups:  [][]gpu.Buffer{{data.Uniform, input, data.Output, data.Indirect, data.Count}},
		WorkgroupsX: groups,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to dispatch culling: %w", err)
	}
	return groups, nil
}

// Kernel is the CPU rendition of the cull shader.
func Kernel(id uint32, mem gpu.KernelMemory) error {
	uniformBytes, err := mem.Binding(0, BindingUniform)
	if err != nil {
		return err
	}
	uniform := core.DecodeCullUniform(uniformBytes)
	if id >= uniform.ObjectCount {
		return nil
	}

	inputs, err := mem.Binding(0, BindingInput)
	if err != nil {
		return err
	}
	offset := uint64(id) * core.SizeOfCullInput
	if offset+core.SizeOfCullInput > uint64(len(inputs)) {
		return fmt.Errorf("%w: input %d", gpu.ErrOutOfBounds, id)
	}
	in := core.DecodeCullInput(inputs[offset:])

	sphere := in.Sphere.Transform(in.Transform)
	if !uniform.Frustum.ContainsSphere(sphere) {
		return nil
	}

	slot, err := mem.AtomicAddUint32(0, BindingCount, 0, 1)
	if err != nil {
		return err
	}

	outputs, err := mem.Binding(0, BindingOutput)
	if err != nil {
		return err
	}
	calls, err := mem.Binding(0, BindingIndirect)
	if err != nil {
		return err
	}
	outOffset := uint64(slot) * SizeOfCulledObject
	callOffset := uint64(slot) * SizeOfIndirectCall
	if outOffset+SizeOfCulledObject > uint64(len(outputs)) || callOffset+SizeOfIndirectCall > uint64(len(calls)) {
		return fmt.Errorf("%w: output slot %d", gpu.ErrOutOfBounds, slot)
	}

	core.CulledObject{
		Model:         in.Transform,
		MaterialIndex: in.MaterialIndex,
		ObjectIndex:   id,
	}.Encode(outputs[outOffset:])
	core.IndirectDrawCommand{
		IndexCount:    in.Count,
		InstanceCount: 1,
		FirstIndex:    in.StartIdx,
		BaseVertex:    in.VertexOffset,
		FirstInstance: slot,
	}.Encode(calls[callOffset:])
	return nil
}

// VisibleCount decodes the count buffer contents.
func VisibleCount(count []byte) uint32 {
	if len(count) < SizeOfIndirectCount {
		return 0
	}
	return binary.LittleEndian.Uint32(count)
}
