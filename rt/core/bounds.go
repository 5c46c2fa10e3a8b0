package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// AffineTransform is an object-to-world matrix.
type AffineTransform = mgl32.Mat4

type BoundingSphere struct {
	Center mgl32.Vec3
	Radius float32
}

// BoundingSphereFromPositions centers the sphere on the AABB midpoint and grows it
// to the furthest position.
func BoundingSphereFromPositions(positions []mgl32.Vec3) BoundingSphere {
	if len(positions) == 0 {
		return BoundingSphere{}
	}

	lo, hi := positions[0], positions[0]
	for _, p := range positions[1:] {
		for i := 0; i < 3; i++ {
			lo[i] = min(lo[i], p[i])
			hi[i] = max(hi[i], p[i])
		}
	}
	center := lo.Add(hi).Mul(0.5)

	var radiusSq float32
	for _, p := range positions {
		d := p.Sub(center)
		radiusSq = max(radiusSq, d.Dot(d))
	}

	return BoundingSphere{
		Center: center,
		Radius: float32(math.Sqrt(float64(radiusSq))),
	}
}

// Transform returns the sphere in the space of m. The radius is scaled by the
// largest axis scale so the sphere stays conservative under non-uniform scale.
func (s BoundingSphere) Transform(m mgl32.Mat4) BoundingSphere {
	center := m.Mul4x1(s.Center.Vec4(1)).Vec3()
	scale := max(m.Col(0).Vec3().Len(), m.Col(1).Vec3().Len(), m.Col(2).Vec3().Len())
	return BoundingSphere{Center: center, Radius: s.Radius * scale}
}

// Vec4 packs center and radius the way the cull shader reads them.
func (s BoundingSphere) Vec4() mgl32.Vec4 {
	return s.Center.Vec4(s.Radius)
}
