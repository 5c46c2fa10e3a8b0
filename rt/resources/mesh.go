package resources

import (
	"fmt"

	"github.com/gekko3d/rend/rt/core"
	"github.com/gekko3d/rend/rt/gpu"
	"github.com/gekko3d/rend/rt/registry"
)

const (
	sizeOfIndex = 4

	// Initial arena sizes in elements.
	initialVertexCapacity = 1 << 12
	initialIndexCapacity  = 1 << 14
)

// Logger is the subset of the renderer logger the managers write to.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

// InternalMesh is where a mesh lives in the shared arenas. Index values are relative to
// VertexRange.Start.
type InternalMesh struct {
	VertexRange Range
	IndexRange  Range
	Sphere      core.BoundingSphere
}

// MeshManager packs every mesh into one vertex buffer and one index buffer.
type MeshManager struct {
	device   gpu.Device
	logger   Logger
	registry *registry.Registry[InternalMesh, core.Mesh]

	vertexAlloc *rangeAllocator
	indexAlloc  *rangeAllocator
	vertexData  []byte
	indexData   []byte

	vertexBuffer gpu.Buffer
	indexBuffer  gpu.Buffer

	// refs counts objects drawing from each mesh. Ranges of a removed or refilled mesh stay
	// in retired until its count drops to zero, so stale draws never read reused space.
	refs    map[registry.Handle]int
	retired map[registry.Handle][]InternalMesh
}

func NewMeshManager(device gpu.Device, logger Logger) (*MeshManager, error) {
	m := &MeshManager{
		device:      device,
		logger:      logger,
		registry:    registry.NewRegistry[InternalMesh, core.Mesh](),
		vertexAlloc: newRangeAllocator(initialVertexCapacity),
		indexAlloc:  newRangeAllocator(initialIndexCapacity),
		vertexData:  make([]byte, initialVertexCapacity*core.SizeOfVertex),
		indexData:   make([]byte, initialIndexCapacity*sizeOfIndex),
		refs:        make(map[registry.Handle]int),
		retired:     make(map[registry.Handle][]InternalMesh),
	}
	if err := m.upload(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MeshManager) Allocate() core.MeshHandle {
	return core.MeshHandle(m.registry.Allocate())
}

func (m *MeshManager) allocate(alloc *rangeAllocator, data *[]byte, stride int, n uint32) (Range, bool) {
	r, ok := alloc.allocate(n)
	if ok {
		return r, false
	}
	capacity := max(alloc.Capacity()*2, alloc.Capacity()+n)
	alloc.grow(capacity)
	grown := make([]byte, int(capacity)*stride)
	copy(grown, *data)
	*data = grown
	r, _ = alloc.allocate(n)
	return r, true
}

// Fill validates mesh, copies it into the arenas and uploads it.
func (m *MeshManager) Fill(h core.MeshHandle, mesh core.Mesh) error {
	if err := mesh.Validate(); err != nil {
		return fmt.Errorf("%s: %w", h, err)
	}
	previous, err := m.registry.Get(h.Raw())
	refill := err == nil

	vr, vGrown := m.allocate(m.vertexAlloc, &m.vertexData, core.SizeOfVertex, uint32(mesh.VertexCount()))
	ir, iGrown := m.allocate(m.indexAlloc, &m.indexData, sizeOfIndex, uint32(mesh.IndexCount()))
	if vGrown || iGrown {
		m.logger.Debugf("mesh arenas grown to %d vertices, %d indices", m.vertexAlloc.Capacity(), m.indexAlloc.Capacity())
	}

	vertices := mesh.EncodeVertices()
	indices := mesh.EncodeIndices()
	vOff := int(vr.Start) * core.SizeOfVertex
	iOff := int(ir.Start) * sizeOfIndex
	copy(m.vertexData[vOff:], vertices)
	copy(m.indexData[iOff:], indices)

	internal := InternalMesh{
		VertexRange: vr,
		IndexRange:  ir,
		Sphere:      core.BoundingSphereFromPositions(mesh.Positions),
	}
	if err := m.registry.Insert(h.Raw(), internal, mesh); err != nil {
		m.vertexAlloc.release(vr)
		m.indexAlloc.release(ir)
		return err
	}
	if refill {
		m.retire(h.Raw(), previous)
	}

	if vGrown || iGrown || m.vertexBuffer.Size() < uint64(len(m.vertexData)) || m.indexBuffer.Size() < uint64(len(m.indexData)) {
		return m.upload()
	}
	if len(vertices) > 0 {
		if err := m.device.WriteBuffer(m.vertexBuffer, uint64(vOff), vertices); err != nil {
			return fmt.Errorf("failed to write vertices of %s: %w", h, err)
		}
	}
	if len(indices) > 0 {
		if err := m.device.WriteBuffer(m.indexBuffer, uint64(iOff), indices); err != nil {
			return fmt.Errorf("failed to write indices of %s: %w", h, err)
		}
	}
	return nil
}

func (m *MeshManager) upload() error {
	if _, err := gpu.EnsureBuffer(m.device, &m.vertexBuffer, "mesh vertex buffer", m.vertexData, gpu.BufferUsageVertex|gpu.BufferUsageStorage, 0); err != nil {
		return err
	}
	if _, err := gpu.EnsureBuffer(m.device, &m.indexBuffer, "mesh index buffer", m.indexData, gpu.BufferUsageIndex|gpu.BufferUsageStorage, 0); err != nil {
		return err
	}
	return nil
}

func (m *MeshManager) Get(h core.MeshHandle) (InternalMesh, error) {
	return m.registry.Get(h.Raw())
}

// Public returns the mesh data h was filled with.
func (m *MeshManager) Public(h core.MeshHandle) (core.Mesh, error) {
	return m.registry.Public(h.Raw())
}

func (m *MeshManager) Remove(h core.MeshHandle) error {
	return m.registry.Remove(h.Raw())
}

// Ready reclaims removed meshes and their arena ranges.
func (m *MeshManager) Ready() error {
	m.registry.RemoveAllDead(func(h registry.Handle, internal InternalMesh, _ core.Mesh) {
		m.retire(h, internal)
	})
	return nil
}

// retire frees the ranges of internal now, or once the last object referencing h is gone.
func (m *MeshManager) retire(h registry.Handle, internal InternalMesh) {
	if m.refs[h] > 0 {
		m.retired[h] = append(m.retired[h], internal)
		return
	}
	m.free(internal)
}

func (m *MeshManager) free(internal InternalMesh) {
	m.vertexAlloc.release(internal.VertexRange)
	m.indexAlloc.release(internal.IndexRange)
}

// Acquire is Get plus a reference that keeps the returned ranges allocated until Unref.
func (m *MeshManager) Acquire(h core.MeshHandle) (InternalMesh, error) {
	internal, err := m.registry.Get(h.Raw())
	if err != nil {
		return InternalMesh{}, err
	}
	m.refs[h.Raw()]++
	return internal, nil
}

// Unref drops a reference taken by Acquire and frees retired ranges when it was the last.
func (m *MeshManager) Unref(h core.MeshHandle) {
	raw := h.Raw()
	if n := m.refs[raw] - 1; n > 0 {
		m.refs[raw] = n
		return
	}
	delete(m.refs, raw)
	for _, internal := range m.retired[raw] {
		m.free(internal)
	}
	delete(m.retired, raw)
}

func (m *MeshManager) Len() int { return m.registry.Len() }

func (m *MeshManager) VertexBuffer() gpu.Buffer { return m.vertexBuffer }
func (m *MeshManager) IndexBuffer() gpu.Buffer  { return m.indexBuffer }

// ArenaUsage reports allocated vertices and indices.
func (m *MeshManager) ArenaUsage() (vertices, indices uint32) {
	return m.vertexAlloc.used(), m.indexAlloc.used()
}

func (m *MeshManager) Release() {
	if m.vertexBuffer != nil {
		m.vertexBuffer.Release()
		m.vertexBuffer = nil
	}
	if m.indexBuffer != nil {
		m.indexBuffer.Release()
		m.indexBuffer = nil
	}
}
