package core

import (
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	SizeOfIndirectDrawCommand = 5 * 4
	SizeOfCullInput           = 6 * 16
	SizeOfCulledObject        = 5 * 16
	SizeOfVertex              = 8 * 4
)

// IndirectDrawCommand matches the WebGPU DrawIndexedIndirect argument layout.
// FirstInstance is the slot of the object's CulledObject record, so the vertex stage
// finds its transform and material through instance_index.
type IndirectDrawCommand struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

func (c IndirectDrawCommand) Encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:], c.IndexCount)
	binary.LittleEndian.PutUint32(dst[4:], c.InstanceCount)
	binary.LittleEndian.PutUint32(dst[8:], c.FirstIndex)
	binary.LittleEndian.PutUint32(dst[12:], uint32(c.BaseVertex))
	binary.LittleEndian.PutUint32(dst[16:], c.FirstInstance)
}

func DecodeIndirectDrawCommand(src []byte) IndirectDrawCommand {
	return IndirectDrawCommand{
		IndexCount:    binary.LittleEndian.Uint32(src[0:]),
		InstanceCount: binary.LittleEndian.Uint32(src[4:]),
		FirstIndex:    binary.LittleEndian.Uint32(src[8:]),
		BaseVertex:    int32(binary.LittleEndian.Uint32(src[12:])),
		FirstInstance: binary.LittleEndian.Uint32(src[16:]),
	}
}

// DecodeIndirectDrawCommands decodes the first count commands of an indirect buffer.
func DecodeIndirectDrawCommands(src []byte, count uint32) []IndirectDrawCommand {
	if limit := uint32(len(src) / SizeOfIndirectDrawCommand); count > limit {
		count = limit
	}
	out := make([]IndirectDrawCommand, count)
	for i := range out {
		out[i] = DecodeIndirectDrawCommand(src[i*SizeOfIndirectDrawCommand:])
	}
	return out
}

// CullInput is the per-object record read by the cull shader.
//
//	struct CullInput {
//	  transform: mat4x4<f32>, // 0
//	  sphere: vec4<f32>,      // 64, object space
//	  start_idx: u32,         // 80
//	  count: u32,             // 84
//	  vertex_offset: i32,     // 88
//	  material_index: u32,    // 92
//	} // 96 bytes
type CullInput struct {
	Transform     mgl32.Mat4
	Sphere        BoundingSphere
	StartIdx      uint32
	Count         uint32
	VertexOffset  int32
	MaterialIndex uint32
}

func (c CullInput) Encode(dst []byte) {
	putFloats(dst[0:], c.Transform[:])
	sphere := c.Sphere.Vec4()
	putFloats(dst[64:], sphere[:])
	binary.LittleEndian.PutUint32(dst[80:], c.StartIdx)
	binary.LittleEndian.PutUint32(dst[84:], c.Count)
	binary.LittleEndian.PutUint32(dst[88:], uint32(c.VertexOffset))
	binary.LittleEndian.PutUint32(dst[92:], c.MaterialIndex)
}

func DecodeCullInput(src []byte) CullInput {
	var c CullInput
	getFloats(src[0:], c.Transform[:])
	var sphere mgl32.Vec4
	getFloats(src[64:], sphere[:])
	c.Sphere = BoundingSphere{Center: sphere.Vec3(), Radius: sphere[3]}
	c.StartIdx = binary.LittleEndian.Uint32(src[80:])
	c.Count = binary.LittleEndian.Uint32(src[84:])
	c.VertexOffset = int32(binary.LittleEndian.Uint32(src[88:]))
	c.MaterialIndex = binary.LittleEndian.Uint32(src[92:])
	return c
}

// CulledObject is written by the cull shader for every visible object.
//
//	struct CulledObject {
//	  model: mat4x4<f32>,   // 0
//	  material_index: u32,  // 64
//	  object_index: u32,    // 68
//	  _pad: vec2<u32>,      // 72
//	} // 80 bytes
type CulledObject struct {
	Model         mgl32.Mat4
	MaterialIndex uint32
	ObjectIndex   uint32
}

func (c CulledObject) Encode(dst []byte) {
	putFloats(dst[0:], c.Model[:])
	binary.LittleEndian.PutUint32(dst[64:], c.MaterialIndex)
	binary.LittleEndian.PutUint32(dst[68:], c.ObjectIndex)
	binary.LittleEndian.PutUint32(dst[72:], 0)
	binary.LittleEndian.PutUint32(dst[76:], 0)
}

func DecodeCulledObject(src []byte) CulledObject {
	var c CulledObject
	getFloats(src[0:], c.Model[:])
	c.MaterialIndex = binary.LittleEndian.Uint32(src[64:])
	c.ObjectIndex = binary.LittleEndian.Uint32(src[68:])
	return c
}
