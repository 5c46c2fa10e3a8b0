package resources

import (
	"encoding/binary"
	"image"
	"image/color"
	"testing"

	"github.com/gekko3d/rend/rt/core"
	"github.com/gekko3d/rend/rt/gpu"
	"github.com/gekko3d/rend/rt/registry"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}

type managers struct {
	device    *gpu.SoftwareDevice
	meshes    *MeshManager
	textures  *TextureManager
	materials *MaterialManager
	objects   *ObjectManager
}

func newManagers(t *testing.T) *managers {
	t.Helper()
	d := gpu.NewSoftwareDevice(gpu.SoftwareOptions{})
	meshes, err := NewMeshManager(d, nopLogger{})
	require.NoError(t, err)
	return &managers{
		device:    d,
		meshes:    meshes,
		textures:  NewTextureManager(d, nopLogger{}),
		materials: NewMaterialManager(d),
		objects:   NewObjectManager(d),
	}
}

func triangle() core.Mesh {
	mesh, _ := core.NewMeshBuilder([]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}).Build()
	return mesh
}

func TestMeshManagerFillCube(t *testing.T) {
	m := newManagers(t)
	h := m.meshes.Allocate()
	require.NoError(t, m.meshes.Fill(h, core.CubeMesh()))

	internal, err := m.meshes.Get(h)
	require.NoError(t, err)
	assert.Equal(t, uint32(24), internal.VertexRange.Len())
	assert.Equal(t, uint32(36), internal.IndexRange.Len())
	assert.InDelta(t, 1.732, internal.Sphere.Radius, 0.01)

	indices, err := m.device.ReadBuffer(m.meshes.IndexBuffer())
	require.NoError(t, err)
	cube := core.CubeMesh()
	for i, want := range cube.Indices {
		assert.Equal(t, want, binary.LittleEndian.Uint32(indices[(int(internal.IndexRange.Start)+i)*4:]))
	}
}

func TestMeshManagerRangesDisjoint(t *testing.T) {
	m := newManagers(t)
	a, b := m.meshes.Allocate(), m.meshes.Allocate()
	require.NoError(t, m.meshes.Fill(a, core.CubeMesh()))
	require.NoError(t, m.meshes.Fill(b, triangle()))

	ia, _ := m.meshes.Get(a)
	ib, _ := m.meshes.Get(b)
	assert.LessOrEqual(t, ia.IndexRange.End, ib.IndexRange.Start)
	assert.LessOrEqual(t, ia.VertexRange.End, ib.VertexRange.Start)
}

func TestMeshManagerRemoveReleasesRanges(t *testing.T) {
	m := newManagers(t)
	h := m.meshes.Allocate()
	require.NoError(t, m.meshes.Fill(h, core.CubeMesh()))
	verts, idx := m.meshes.ArenaUsage()
	assert.Equal(t, uint32(24), verts)
	assert.Equal(t, uint32(36), idx)

	require.NoError(t, m.meshes.Remove(h))
	require.NoError(t, m.meshes.Ready())
	verts, idx = m.meshes.ArenaUsage()
	assert.Zero(t, verts)
	assert.Zero(t, idx)

	_, err := m.meshes.Get(h)
	assert.ErrorIs(t, err, registry.ErrUnknownHandle)
}

func TestMeshManagerRefillReplacesRanges(t *testing.T) {
	m := newManagers(t)
	h := m.meshes.Allocate()
	require.NoError(t, m.meshes.Fill(h, core.CubeMesh()))
	require.NoError(t, m.meshes.Fill(h, triangle()))

	verts, idx := m.meshes.ArenaUsage()
	assert.Equal(t, uint32(3), verts)
	assert.Equal(t, uint32(3), idx)
	assert.Equal(t, 1, m.meshes.Len())
}

func TestMeshManagerGrowsArena(t *testing.T) {
	m := newManagers(t)
	positions := make([]mgl32.Vec3, initialVertexCapacity+2)
	for i := range positions {
		positions[i] = mgl32.Vec3{float32(i), 0, 0}
	}
	mesh, err := core.NewMeshBuilder(positions).Build()
	require.NoError(t, err)

	h := m.meshes.Allocate()
	require.NoError(t, m.meshes.Fill(h, mesh))
	assert.GreaterOrEqual(t, m.meshes.VertexBuffer().Size(), uint64(len(positions)*core.SizeOfVertex))
}

func TestMeshManagerRejectsInvalid(t *testing.T) {
	m := newManagers(t)
	h := m.meshes.Allocate()
	err := m.meshes.Fill(h, core.Mesh{Positions: []mgl32.Vec3{{0, 0, 0}}, Indices: []uint32{0, 1}})
	assert.ErrorIs(t, err, core.ErrInvalidMesh)
	assert.False(t, m.meshes.registry.Contains(h.Raw()))
}

func checkerTexture(w, h int) core.Texture {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return core.TextureFromImage("checker", img, core.MipsGenerate)
}

func TestMipLevelCount(t *testing.T) {
	assert.Equal(t, uint32(1), MipLevelCount(1, 1))
	assert.Equal(t, uint32(4), MipLevelCount(8, 8))
	assert.Equal(t, uint32(5), MipLevelCount(16, 3))
}

func TestTextureManagerGeneratesMips(t *testing.T) {
	m := newManagers(t)
	h := m.textures.Allocate()
	require.NoError(t, m.textures.Fill(h, checkerTexture(8, 4)))

	internal, err := m.textures.Get(h)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), internal.MipLevels)
	assert.Equal(t, uint32(4), internal.GPU.MipLevels())

	chain := MipChain(checkerTexture(8, 4))
	require.Len(t, chain, 4)
	assert.Len(t, chain[1], 4*2*4)
	assert.Len(t, chain[3], 4)

	idx, err := m.textures.Index(h)
	require.NoError(t, err)
	assert.Equal(t, h.Raw().Index(), idx)
}

func TestTextureManagerRemoveReleasesGPU(t *testing.T) {
	m := newManagers(t)
	h := m.textures.Allocate()
	require.NoError(t, m.textures.Fill(h, checkerTexture(2, 2)))
	internal, _ := m.textures.Get(h)

	require.NoError(t, m.textures.Remove(h))
	m.textures.Ready()
	assert.True(t, m.device.TextureReleased(internal.GPU))
	_, err := m.textures.Index(h)
	assert.ErrorIs(t, err, registry.ErrUnknownHandle)
}

func TestTextureManagerRejectsInvalid(t *testing.T) {
	m := newManagers(t)
	err := m.textures.Fill(m.textures.Allocate(), core.Texture{Width: 2, Height: 2, Data: []byte{1}})
	assert.ErrorIs(t, err, core.ErrInvalidTexture)
}

func TestMaterialManagerRecords(t *testing.T) {
	m := newManagers(t)
	tex := m.textures.Allocate()
	require.NoError(t, m.textures.Fill(tex, checkerTexture(2, 2)))

	plain := m.materials.Allocate()
	textured := m.materials.Allocate()
	require.NoError(t, m.materials.Fill(plain, core.DefaultMaterial(), m.textures))
	mat := core.DefaultMaterial()
	mat.AlbedoTexture = &tex
	mat.Unlit = true
	require.NoError(t, m.materials.Fill(textured, mat, m.textures))
	require.NoError(t, m.materials.Ready())

	data, err := m.device.ReadBuffer(m.materials.Buffer())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 2*SizeOfMaterialRecord)

	first := DecodeMaterialRecord(data[int(plain.Raw().Index())*SizeOfMaterialRecord:])
	assert.Equal(t, [4]float32{1, 1, 1, 1}, first.Albedo)
	assert.Equal(t, uint32(NoTexture), first.AlbedoTexture)
	assert.Equal(t, uint32(NoTexture), first.NormalTexture)

	second := DecodeMaterialRecord(data[int(textured.Raw().Index())*SizeOfMaterialRecord:])
	assert.Equal(t, tex.Raw().Index(), second.AlbedoTexture)
	assert.Equal(t, uint32(MaterialFlagUnlit), second.Flags)
}

func TestMaterialManagerUnknownTexture(t *testing.T) {
	m := newManagers(t)
	missing := m.textures.Allocate()
	mat := core.DefaultMaterial()
	mat.NormalTexture = &missing

	err := m.materials.Fill(m.materials.Allocate(), mat, m.textures)
	assert.ErrorIs(t, err, registry.ErrUnknownHandle)
}

func TestMaterialManagerEmptyBuffer(t *testing.T) {
	m := newManagers(t)
	require.NoError(t, m.materials.Ready())
	require.NotNil(t, m.materials.Buffer())
	assert.Equal(t, uint64(SizeOfMaterialRecord), m.materials.Buffer().Size())
}

func fillObject(t *testing.T, m *managers, transform mgl32.Mat4) (core.ObjectHandle, core.MeshHandle, core.MaterialHandle) {
	t.Helper()
	mesh := m.meshes.Allocate()
	require.NoError(t, m.meshes.Fill(mesh, core.CubeMesh()))
	mat := m.materials.Allocate()
	require.NoError(t, m.materials.Fill(mat, core.DefaultMaterial(), m.textures))

	obj := m.objects.Allocate()
	require.NoError(t, m.objects.Fill(obj, core.Object{Mesh: mesh, Material: mat, Transform: transform}, m.meshes, m.materials))
	return obj, mesh, mat
}

func TestObjectManagerFillCopiesMeshData(t *testing.T) {
	m := newManagers(t)
	obj, mesh, mat := fillObject(t, m, mgl32.Translate3D(1, 2, 3))

	internal, err := m.objects.Get(obj)
	require.NoError(t, err)
	meshData, _ := m.meshes.Get(mesh)
	assert.Equal(t, meshData.IndexRange.Start, internal.StartIdx)
	assert.Equal(t, uint32(36), internal.Count)
	assert.Equal(t, int32(meshData.VertexRange.Start), internal.VertexOffset)
	assert.Equal(t, mat.Raw().Index(), internal.MaterialIndex)
	assert.Equal(t, meshData.Sphere, internal.Sphere)

	// Removing the mesh does not touch objects already built from it.
	require.NoError(t, m.meshes.Remove(mesh))
	require.NoError(t, m.meshes.Ready())
	again, err := m.objects.Get(obj)
	require.NoError(t, err)
	assert.Equal(t, internal, again)
}

func TestObjectManagerUnknownMesh(t *testing.T) {
	m := newManagers(t)
	mat := m.materials.Allocate()
	require.NoError(t, m.materials.Fill(mat, core.DefaultMaterial(), m.textures))

	obj := m.objects.Allocate()
	err := m.objects.Fill(obj, core.Object{Mesh: m.meshes.Allocate(), Material: mat, Transform: mgl32.Ident4()}, m.meshes, m.materials)
	assert.ErrorIs(t, err, registry.ErrUnknownHandle)
}

func TestObjectManagerSetTransform(t *testing.T) {
	m := newManagers(t)
	obj, _, _ := fillObject(t, m, mgl32.Ident4())

	moved := mgl32.Translate3D(5, 0, 0)
	require.NoError(t, m.objects.SetObjectTransform(obj, moved))
	internal, _ := m.objects.Get(obj)
	assert.Equal(t, moved, internal.Transform)
	assert.Equal(t, uint32(36), internal.Count, "only the transform changes")

	err := m.objects.SetObjectTransform(m.objects.Allocate(), moved)
	assert.ErrorIs(t, err, registry.ErrUnknownHandle)
}

func TestObjectManagerReadyAndUpload(t *testing.T) {
	m := newManagers(t)
	a, _, _ := fillObject(t, m, mgl32.Ident4())
	b, _, _ := fillObject(t, m, mgl32.Translate3D(3, 0, 0))

	objects := m.objects.Ready(m.meshes)
	require.Len(t, objects, 2)
	assert.Equal(t, a, objects[0].Handle)
	assert.Equal(t, b, objects[1].Handle)

	buf, err := m.objects.Upload(objects)
	require.NoError(t, err)
	data, err := m.device.ReadBuffer(buf)
	require.NoError(t, err)
	second := core.DecodeCullInput(data[core.SizeOfCullInput:])
	assert.Equal(t, mgl32.Translate3D(3, 0, 0), second.Transform)
	assert.Equal(t, uint32(36), second.Count)

	require.NoError(t, m.objects.Remove(a))
	objects = m.objects.Ready(m.meshes)
	require.Len(t, objects, 1)
	assert.Equal(t, b, objects[0].Handle)
	_, err = m.objects.Get(a)
	assert.ErrorIs(t, err, registry.ErrUnknownHandle)
}

func TestObjectKeepsRemovedMeshRanges(t *testing.T) {
	m := newManagers(t)
	obj, mesh, _ := fillObject(t, m, mgl32.Ident4())
	internal, err := m.objects.Get(obj)
	require.NoError(t, err)

	require.NoError(t, m.meshes.Remove(mesh))
	require.NoError(t, m.meshes.Ready())
	verts, idx := m.meshes.ArenaUsage()
	assert.Equal(t, uint32(24), verts, "ranges stay reserved while an object draws them")
	assert.Equal(t, uint32(36), idx)

	next := m.meshes.Allocate()
	require.NoError(t, m.meshes.Fill(next, triangle()))
	fresh, err := m.meshes.Get(next)
	require.NoError(t, err)
	assert.False(t, fresh.IndexRange.Start < internal.StartIdx+internal.Count && internal.StartIdx < fresh.IndexRange.End)
	assert.False(t, fresh.VertexRange.Start < uint32(internal.VertexOffset)+24 && uint32(internal.VertexOffset) < fresh.VertexRange.End)

	require.NoError(t, m.objects.Remove(obj))
	m.objects.Ready(m.meshes)
	verts, idx = m.meshes.ArenaUsage()
	assert.Equal(t, uint32(3), verts)
	assert.Equal(t, uint32(3), idx)
}

func TestObjectRefillDropsOldMeshReference(t *testing.T) {
	m := newManagers(t)
	obj, cube, mat := fillObject(t, m, mgl32.Ident4())
	tri := m.meshes.Allocate()
	require.NoError(t, m.meshes.Fill(tri, triangle()))

	require.NoError(t, m.objects.Fill(obj, core.Object{Mesh: tri, Material: mat, Transform: mgl32.Ident4()}, m.meshes, m.materials))
	require.NoError(t, m.meshes.Remove(cube))
	require.NoError(t, m.meshes.Ready())
	verts, idx := m.meshes.ArenaUsage()
	assert.Equal(t, uint32(3), verts)
	assert.Equal(t, uint32(3), idx)
}

func TestMaterialManagerUpdate(t *testing.T) {
	m := newManagers(t)
	h := m.materials.Allocate()
	require.NoError(t, m.materials.Fill(h, core.DefaultMaterial(), m.textures))
	require.NoError(t, m.materials.Ready())

	red := core.DefaultMaterial()
	red.AlbedoColor = [4]float32{1, 0, 0, 1}
	require.NoError(t, m.materials.Update(h, red, m.textures))
	require.NoError(t, m.materials.Ready())

	data, err := m.device.ReadBuffer(m.materials.Buffer())
	require.NoError(t, err)
	record := DecodeMaterialRecord(data[int(h.Raw().Index())*SizeOfMaterialRecord:])
	assert.Equal(t, [4]float32{1, 0, 0, 1}, record.Albedo)

	err = m.materials.Update(m.materials.Allocate(), red, m.textures)
	assert.ErrorIs(t, err, registry.ErrUnknownHandle)
}
