package core

import (
	"image"
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCubeMesh(t *testing.T) {
	m := CubeMesh()
	assert.Equal(t, 24, m.VertexCount())
	assert.Equal(t, 36, m.IndexCount())
	require.NoError(t, m.Validate())

	// Far face normals point +Z.
	assert.True(t, m.Normals[0].ApproxEqual(mgl32.Vec3{0, 0, 1}), "got %v", m.Normals[0])
	assert.Len(t, m.EncodeVertices(), 24*SizeOfVertex)
	assert.Len(t, m.EncodeIndices(), 36*4)
}

func TestMeshBuilder_DefaultIndices(t *testing.T) {
	m, err := NewMeshBuilder([]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}).Build()
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 2}, m.Indices)
	assert.Len(t, m.UVs, 3)
}

func TestMeshBuilder_Invalid(t *testing.T) {
	tri := []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}

	tests := []struct {
		name    string
		builder *MeshBuilder
	}{
		{"empty", NewMeshBuilder(nil)},
		{"index out of range", NewMeshBuilder(tri).WithIndices([]uint32{0, 1, 3})},
		{"not triangles", NewMeshBuilder(tri).WithIndices([]uint32{0, 1})},
		{"normal mismatch", NewMeshBuilder(tri).WithNormals([]mgl32.Vec3{{0, 0, 1}})},
	}
	for _, tc := range tests {
		_, err := tc.builder.Build()
		assert.ErrorIs(t, err, ErrInvalidMesh, tc.name)
	}
}

func TestTextureFromImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(2, 2, 6, 5))
	img.Set(2, 2, color.NRGBA{R: 255, A: 255})

	tex := TextureFromImage("red", img, MipsGenerate)
	require.NoError(t, tex.Validate())
	assert.Equal(t, uint32(4), tex.Width)
	assert.Equal(t, uint32(3), tex.Height)
	assert.Equal(t, []byte{255, 0, 0, 255}, tex.Data[:4])

	bad := tex
	bad.Data = bad.Data[:4]
	assert.ErrorIs(t, bad.Validate(), ErrInvalidTexture)
}

func TestIndirectDrawCommandLayout(t *testing.T) {
	cmd := IndirectDrawCommand{IndexCount: 36, InstanceCount: 1, FirstIndex: 72, BaseVertex: -4, FirstInstance: 9}
	buf := make([]byte, SizeOfIndirectDrawCommand)
	cmd.Encode(buf)

	assert.Equal(t, []byte{36, 0, 0, 0}, buf[0:4])
	assert.Equal(t, []byte{0xfc, 0xff, 0xff, 0xff}, buf[12:16])
	assert.Equal(t, cmd, DecodeIndirectDrawCommand(buf))
	assert.Len(t, DecodeIndirectDrawCommands(buf, 5), 1, "count is clamped to the buffer")
}
