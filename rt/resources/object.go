package resources

import (
	"fmt"

	"github.com/gekko3d/rend/rt/core"
	"github.com/gekko3d/rend/rt/gpu"
	"github.com/gekko3d/rend/rt/registry"
)

// InternalObject caches everything the cull shader needs. Draw range and sphere are
// copied from the mesh at fill time and never re-derived.
type InternalObject struct {
	Handle        core.ObjectHandle
	Mesh          core.MeshHandle
	Transform     core.AffineTransform
	Sphere        core.BoundingSphere
	StartIdx      uint32
	Count         uint32
	VertexOffset  int32
	MaterialIndex uint32
}

func (o InternalObject) CullInput() core.CullInput {
	return core.CullInput{
		Transform:     o.Transform,
		Sphere:        o.Sphere,
		StartIdx:      o.StartIdx,
		Count:         o.Count,
		VertexOffset:  o.VertexOffset,
		MaterialIndex: o.MaterialIndex,
	}
}

type ObjectManager struct {
	device   gpu.Device
	registry *registry.Registry[InternalObject, core.Object]
	buffer   gpu.Buffer
}

func NewObjectManager(device gpu.Device) *ObjectManager {
	return &ObjectManager{
		device:   device,
		registry: registry.NewRegistry[InternalObject, core.Object](),
	}
}

func (m *ObjectManager) Allocate() core.ObjectHandle {
	return core.ObjectHandle(m.registry.Allocate())
}

// Fill resolves the object's mesh and material. Both must be live. The object holds a
// reference on its mesh's ranges until it is reclaimed.
func (m *ObjectManager) Fill(h core.ObjectHandle, obj core.Object, meshes *MeshManager, materials *MaterialManager) error {
	material, err := materials.Index(obj.Material)
	if err != nil {
		return fmt.Errorf("material of %s: %w", h, err)
	}
	mesh, err := meshes.Acquire(obj.Mesh)
	if err != nil {
		return fmt.Errorf("mesh of %s: %w", h, err)
	}
	previous, err := m.registry.Get(h.Raw())
	refill := err == nil

	err = m.registry.Insert(h.Raw(), InternalObject{
		Handle:        h,
		Mesh:          obj.Mesh,
		Transform:     obj.Transform,
		Sphere:        mesh.Sphere,
		StartIdx:      mesh.IndexRange.Start,
		Count:         mesh.IndexRange.Len(),
		VertexOffset:  int32(mesh.VertexRange.Start),
		MaterialIndex: material,
	}, obj)
	if err != nil {
		meshes.Unref(obj.Mesh)
		return err
	}
	if refill {
		meshes.Unref(previous.Mesh)
	}
	return nil
}

func (m *ObjectManager) SetObjectTransform(h core.ObjectHandle, transform core.AffineTransform) error {
	return m.registry.Update(h.Raw(), func(o *InternalObject) {
		o.Transform = transform
	})
}

func (m *ObjectManager) Get(h core.ObjectHandle) (InternalObject, error) {
	return m.registry.Get(h.Raw())
}

func (m *ObjectManager) Remove(h core.ObjectHandle) error {
	return m.registry.Remove(h.Raw())
}

// Ready reclaims removed objects, dropping their mesh references, and returns the live ones
// in slot order.
func (m *ObjectManager) Ready(meshes *MeshManager) []InternalObject {
	m.registry.RemoveAllDead(func(_ registry.Handle, internal InternalObject, _ core.Object) {
		meshes.Unref(internal.Mesh)
	})
	return m.registry.Values()
}

// Upload writes one CullInput per object into the object buffer. An empty list still
// leaves a minimal buffer bound.
func (m *ObjectManager) Upload(objects []InternalObject) (gpu.Buffer, error) {
	data := make([]byte, len(objects)*core.SizeOfCullInput)
	for i, o := range objects {
		o.CullInput().Encode(data[i*core.SizeOfCullInput:])
	}
	if _, err := gpu.EnsureBuffer(m.device, &m.buffer, "object buffer", data, gpu.BufferUsageStorage, 0); err != nil {
		return nil, err
	}
	return m.buffer, nil
}

func (m *ObjectManager) Len() int { return m.registry.Len() }

func (m *ObjectManager) Release() {
	if m.buffer != nil {
		m.buffer.Release()
		m.buffer = nil
	}
}
