package core

import "github.com/gekko3d/rend/rt/registry"

// MeshHandle references a mesh registered with the renderer.
type MeshHandle registry.Handle

func (h MeshHandle) Raw() registry.Handle { return registry.Handle(h) }
func (h MeshHandle) String() string      { return "Mesh" + registry.Handle(h).String() }

// TextureHandle references a texture registered with the renderer.
type TextureHandle registry.Handle

func (h TextureHandle) Raw() registry.Handle { return registry.Handle(h) }
func (h TextureHandle) String() string      { return "Texture" + registry.Handle(h).String() }

// MaterialHandle references a material registered with the renderer.
type MaterialHandle registry.Handle

func (h MaterialHandle) Raw() registry.Handle { return registry.Handle(h) }
func (h MaterialHandle) String() string      { return "Material" + registry.Handle(h).String() }

// ObjectHandle references a drawable object registered with the renderer.
type ObjectHandle registry.Handle

func (h ObjectHandle) Raw() registry.Handle { return registry.Handle(h) }
func (h ObjectHandle) String() string      { return "Object" + registry.Handle(h).String() }
