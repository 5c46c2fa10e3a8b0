package main

import (
	"math"

	"github.com/gekko3d/rend/rt/core"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

// flyCamera is a Y-up free camera. Yaw and Pitch are in degrees.
type flyCamera struct {
	Position    mgl32.Vec3
	Yaw         float32
	Pitch       float32
	Speed       float32
	Sensitivity float32
}

func newFlyCamera(position mgl32.Vec3, yaw, pitch float32) *flyCamera {
	return &flyCamera{
		Position:    position,
		Yaw:         yaw,
		Pitch:       pitch,
		Speed:       15.0,
		Sensitivity: 0.1,
	}
}

func (c *flyCamera) forward() mgl32.Vec3 {
	yawRad := float64(mgl32.DegToRad(c.Yaw))
	pitchRad := float64(mgl32.DegToRad(c.Pitch))
	return mgl32.Vec3{
		float32(math.Sin(yawRad) * math.Cos(pitchRad)),
		float32(math.Sin(pitchRad)),
		float32(-math.Cos(yawRad) * math.Cos(pitchRad)),
	}.Normalize()
}

// update applies one frame of input. move is (right, up, forward) in [-1, 1], look is the
// mouse delta in pixels.
func (c *flyCamera) update(move mgl32.Vec3, look mgl32.Vec2, dt float32) {
	if dt <= 0 {
		return
	}

	c.Yaw += look[0] * c.Sensitivity
	c.Pitch -= look[1] * c.Sensitivity
	c.Pitch = mgl32.Clamp(c.Pitch, -89, 89)

	forward := c.forward()
	up := mgl32.Vec3{0, 1, 0}
	right := forward.Cross(up).Normalize()

	dir := right.Mul(move[0]).Add(up.Mul(move[1])).Add(forward.Mul(move[2]))
	if dir.Len() > 0 {
		c.Position = c.Position.Add(dir.Normalize().Mul(c.Speed * dt))
	}
}

func (c *flyCamera) camera(aspect float32) core.Camera {
	return core.NewCamera(c.Position, c.Position.Add(c.forward()), mgl32.DegToRad(60), aspect, 0.1, 500)
}

// pollMove reads WASD, space and control into a movement vector.
func pollMove(w *glfw.Window) mgl32.Vec3 {
	var move mgl32.Vec3
	pressed := func(k glfw.Key) bool { return w.GetKey(k) == glfw.Press }
	if pressed(glfw.KeyW) {
		move[2] += 1
	}
	if pressed(glfw.KeyS) {
		move[2] -= 1
	}
	if pressed(glfw.KeyA) {
		move[0] -= 1
	}
	if pressed(glfw.KeyD) {
		move[0] += 1
	}
	if pressed(glfw.KeySpace) {
		move[1] += 1
	}
	if pressed(glfw.KeyLeftControl) {
		move[1] -= 1
	}
	return move
}
