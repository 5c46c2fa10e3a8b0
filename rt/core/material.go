package core

import "github.com/go-gl/mathgl/mgl32"

type Material struct {
	AlbedoColor   mgl32.Vec4
	AlbedoTexture *TextureHandle
	NormalTexture *TextureHandle
	Roughness     float32
	Metallic      float32
	Reflectance   float32
	Unlit         bool
}

func DefaultMaterial() Material {
	return Material{
		AlbedoColor: mgl32.Vec4{1, 1, 1, 1},
		Roughness:   1,
		Reflectance: 0.5,
	}
}
