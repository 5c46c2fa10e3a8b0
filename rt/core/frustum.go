package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// Frustum holds 6 planes in Ax + By + Cz + D = 0 form with normals pointing inside.
// Order: Left, Right, Bottom, Top, Near, Far.
type Frustum struct {
	Planes [6]mgl32.Vec4
}

// ExtractFrustum extracts the frustum planes from a view-projection matrix.
// Expects OpenGL style clip depth (-1..1), which is what mgl32.Perspective produces.
func ExtractFrustum(vp mgl32.Mat4) Frustum {
	var f Frustum
	row := func(r int) mgl32.Vec4 {
		return mgl32.Vec4{vp.At(r, 0), vp.At(r, 1), vp.At(r, 2), vp.At(r, 3)}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	f.Planes[FrustumLeft] = r3.Add(r0)
	f.Planes[FrustumRight] = r3.Sub(r0)
	f.Planes[FrustumBottom] = r3.Add(r1)
	f.Planes[FrustumTop] = r3.Sub(r1)
	f.Planes[FrustumNear] = r3.Add(r2)
	f.Planes[FrustumFar] = r3.Sub(r2)

	for i := range f.Planes {
		p := f.Planes[i]
		length := float32(math.Sqrt(float64(p[0]*p[0] + p[1]*p[1] + p[2]*p[2])))
		if length > 0 {
			f.Planes[i] = p.Mul(1.0 / length)
		}
	}
	return f
}

// ContainsSphere reports whether any part of s lies inside the frustum.
func (f Frustum) ContainsSphere(s BoundingSphere) bool {
	c := s.Center.Vec4(1)
	for _, p := range f.Planes {
		if p.Dot(c) < -s.Radius {
			return false
		}
	}
	return true
}

// ContainsAABB reports whether any part of the box lies inside the frustum.
func (f Frustum) ContainsAABB(lo, hi mgl32.Vec3) bool {
	for _, plane := range f.Planes {
		// Most-inside corner; if it is behind the plane, so is the whole box.
		var p mgl32.Vec3
		for i := 0; i < 3; i++ {
			if plane[i] > 0 {
				p[i] = hi[i]
			} else {
				p[i] = lo[i]
			}
		}
		if plane.Dot(p.Vec4(1)) < 0 {
			return false
		}
	}
	return true
}
