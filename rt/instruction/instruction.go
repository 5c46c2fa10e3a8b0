package instruction

import "github.com/gekko3d/rend/rt/core"

type Kind uint8

const (
	KindAddMesh Kind = iota
	KindRemoveMesh
	KindAddTexture
	KindRemoveTexture
	KindAddMaterial
	KindRemoveMaterial
	KindAddObject
	KindSetObjectTransform
	KindRemoveObject
	KindSetOptions
	KindUpdateMaterial
)

var kindNames = [...]string{
	KindAddMesh:            "AddMesh",
	KindRemoveMesh:         "RemoveMesh",
	KindAddTexture:         "AddTexture",
	KindRemoveTexture:      "RemoveTexture",
	KindAddMaterial:        "AddMaterial",
	KindRemoveMaterial:     "RemoveMaterial",
	KindAddObject:          "AddObject",
	KindSetObjectTransform: "SetObjectTransform",
	KindRemoveObject:       "RemoveObject",
	KindSetOptions:         "SetOptions",
	KindUpdateMaterial:     "UpdateMaterial",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Instruction is one queued scene mutation. The set of implementations is closed.
type Instruction interface {
	Kind() Kind
	isInstruction()
}

type AddMesh struct {
	Handle core.MeshHandle
	Mesh   core.Mesh
}

type RemoveMesh struct {
	Handle core.MeshHandle
}

type AddTexture struct {
	Handle  core.TextureHandle
	Texture core.Texture
}

type RemoveTexture struct {
	Handle core.TextureHandle
}

type AddMaterial struct {
	Handle   core.MaterialHandle
	Material core.Material
}

// UpdateMaterial overwrites a live material in place.
type UpdateMaterial struct {
	Handle   core.MaterialHandle
	Material core.Material
}

type RemoveMaterial struct {
	Handle core.MaterialHandle
}

type AddObject struct {
	Handle core.ObjectHandle
	Object core.Object
}

type SetObjectTransform struct {
	Handle    core.ObjectHandle
	Transform core.AffineTransform
}

type RemoveObject struct {
	Handle core.ObjectHandle
}

type SetOptions struct {
	Options core.Options
}

func (AddMesh) Kind() Kind            { return KindAddMesh }
func (RemoveMesh) Kind() Kind         { return KindRemoveMesh }
func (AddTexture) Kind() Kind         { return KindAddTexture }
func (RemoveTexture) Kind() Kind      { return KindRemoveTexture }
func (AddMaterial) Kind() Kind        { return KindAddMaterial }
func (RemoveMaterial) Kind() Kind     { return KindRemoveMaterial }
func (AddObject) Kind() Kind          { return KindAddObject }
func (SetObjectTransform) Kind() Kind { return KindSetObjectTransform }
func (RemoveObject) Kind() Kind       { return KindRemoveObject }
func (SetOptions) Kind() Kind         { return KindSetOptions }
func (UpdateMaterial) Kind() Kind     { return KindUpdateMaterial }

func (AddMesh) isInstruction()            {}
func (RemoveMesh) isInstruction()         {}
func (AddTexture) isInstruction()         {}
func (RemoveTexture) isInstruction()      {}
func (AddMaterial) isInstruction()        {}
func (RemoveMaterial) isInstruction()     {}
func (AddObject) isInstruction()          {}
func (SetObjectTransform) isInstruction() {}
func (RemoveObject) isInstruction()       {}
func (SetOptions) isInstruction()         {}
func (UpdateMaterial) isInstruction()     {}
