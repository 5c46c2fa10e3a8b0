package core

// Object places a mesh with a material in the world.
type Object struct {
	Mesh      MeshHandle
	Material  MaterialHandle
	Transform AffineTransform
}
