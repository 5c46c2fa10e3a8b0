package core

import "github.com/go-gl/mathgl/mgl32"

type Options struct {
	VSync        bool
	Width        uint32
	Height       uint32
	AmbientLight mgl32.Vec4
}

func DefaultOptions() Options {
	return Options{
		VSync:        true,
		Width:        1280,
		Height:       720,
		AmbientLight: mgl32.Vec4{0.1, 0.1, 0.1, 1},
	}
}
