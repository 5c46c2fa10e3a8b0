package main

import (
	"testing"

	"github.com/gekko3d/rend/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestFlyCamera_MovesForward(t *testing.T) {
	c := newFlyCamera(mgl32.Vec3{}, 0, 0)
	c.update(mgl32.Vec3{0, 0, 1}, mgl32.Vec2{}, 1)

	assert.InDelta(t, 0, c.Position.X(), 1e-4)
	assert.InDelta(t, -15, c.Position.Z(), 1e-4, "yaw 0 looks down -Z")
}

func TestFlyCamera_ClampsPitch(t *testing.T) {
	c := newFlyCamera(mgl32.Vec3{}, 0, 0)
	c.update(mgl32.Vec3{}, mgl32.Vec2{0, -10000}, 0.016)
	assert.Equal(t, float32(89), c.Pitch)
}

func TestFlyCamera_IgnoresZeroDt(t *testing.T) {
	c := newFlyCamera(mgl32.Vec3{1, 2, 3}, 10, 5)
	c.update(mgl32.Vec3{1, 1, 1}, mgl32.Vec2{5, 5}, 0)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, c.Position)
	assert.Equal(t, float32(10), c.Yaw)
}

func TestFlyCamera_CameraSeesTarget(t *testing.T) {
	c := newFlyCamera(mgl32.Vec3{0, 0, 10}, 0, 0)
	frustum := core.ExtractFrustum(c.camera(1).ViewProjection())
	assert.True(t, frustum.ContainsSphere(core.BoundingSphere{Radius: 1}))
	assert.False(t, frustum.ContainsSphere(core.BoundingSphere{Center: mgl32.Vec3{0, 0, 30}, Radius: 1}))
}
