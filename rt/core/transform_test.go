package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestTransformMatrix(t *testing.T) {
	tr := NewTransform(mgl32.Vec3{1, 2, 3})
	tr.Rotation = mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})
	tr.Scale = mgl32.Vec3{2, 2, 2}

	p := tr.Matrix().Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	assert.InDelta(t, 1, p.X(), 1e-5)
	assert.InDelta(t, 2, p.Y(), 1e-5)
	assert.InDelta(t, 1, p.Z(), 1e-5, "x rotated onto -z, scaled by 2")

	id := tr.Matrix().Mul4(tr.Inverse())
	withinAbs := func(a, b float32) bool { return mgl32.Abs(a-b) < 1e-5 }
	assert.True(t, id.ApproxFuncEqual(mgl32.Ident4(), withinAbs), "M * M^-1 = I, got %v", id)
}

func TestTransformSphereScale(t *testing.T) {
	tr := NewTransform(mgl32.Vec3{})
	tr.Scale = mgl32.Vec3{1, 3, 1}

	s := BoundingSphere{Radius: 1}.Transform(tr.Matrix())
	assert.InDelta(t, 3, s.Radius, 1e-5)
}
