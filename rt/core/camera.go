package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// SizeOfCullUniform is the byte size of the cull shader's uniform block.
const SizeOfCullUniform = 176

type Camera struct {
	View       mgl32.Mat4
	Projection mgl32.Mat4
	Position   mgl32.Vec3
}

// NewCamera builds a perspective camera looking from eye to target with Y up.
func NewCamera(eye, target mgl32.Vec3, fovY, aspect, near, far float32) Camera {
	return Camera{
		View:       mgl32.LookAtV(eye, target, mgl32.Vec3{0, 1, 0}),
		Projection: mgl32.Perspective(fovY, aspect, near, far),
		Position:   eye,
	}
}

func (c Camera) ViewProjection() mgl32.Mat4 {
	return c.Projection.Mul4(c.View)
}

// CullUniform is the per-frame uniform consumed by the culling pass.
//
//	struct CullUniform {
//	  view_proj: mat4x4<f32>,     // 0
//	  planes: array<vec4<f32>, 6>, // 64
//	  object_count: u32,          // 160
//	  _pad: vec3<u32>,            // 164
//	} // 176 bytes
type CullUniform struct {
	ViewProjection mgl32.Mat4
	Frustum        Frustum
	ObjectCount    uint32
}

func NewCullUniform(camera Camera, objectCount uint32) CullUniform {
	vp := camera.ViewProjection()
	return CullUniform{
		ViewProjection: vp,
		Frustum:        ExtractFrustum(vp),
		ObjectCount:    objectCount,
	}
}

func (u CullUniform) Encode() []byte {
	buf := make([]byte, SizeOfCullUniform)
	putFloats(buf[0:], u.ViewProjection[:])
	for i, p := range u.Frustum.Planes {
		putFloats(buf[64+i*16:], p[:])
	}
	binary.LittleEndian.PutUint32(buf[160:], u.ObjectCount)
	return buf
}

func DecodeCullUniform(buf []byte) CullUniform {
	var u CullUniform
	getFloats(buf[0:], u.ViewProjection[:])
	for i := range u.Frustum.Planes {
		getFloats(buf[64+i*16:], u.Frustum.Planes[i][:])
	}
	u.ObjectCount = binary.LittleEndian.Uint32(buf[160:])
	return u
}

func putFloats(dst []byte, values []float32) {
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

func getFloats(src []byte, dst []float32) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}
