package core

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

var ErrInvalidMesh = errors.New("invalid mesh")

// Mesh is the public description of geometry. Indices address Positions.
type Mesh struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	UVs       []mgl32.Vec2
	Indices   []uint32
}

func (m Mesh) VertexCount() int { return len(m.Positions) }
func (m Mesh) IndexCount() int  { return len(m.Indices) }

func (m Mesh) Validate() error {
	if len(m.Positions) == 0 {
		return fmt.Errorf("%w: no vertices", ErrInvalidMesh)
	}
	if len(m.Normals) != len(m.Positions) {
		return fmt.Errorf("%w: %d normals for %d vertices", ErrInvalidMesh, len(m.Normals), len(m.Positions))
	}
	if len(m.UVs) != len(m.Positions) {
		return fmt.Errorf("%w: %d uvs for %d vertices", ErrInvalidMesh, len(m.UVs), len(m.Positions))
	}
	if len(m.Indices) == 0 || len(m.Indices)%3 != 0 {
		return fmt.Errorf("%w: index count %d is not a positive multiple of 3", ErrInvalidMesh, len(m.Indices))
	}
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Positions) {
			return fmt.Errorf("%w: index %d at %d out of range (%d vertices)", ErrInvalidMesh, idx, i, len(m.Positions))
		}
	}
	return nil
}

// EncodeVertices interleaves position, normal and uv into the 32 byte GPU vertex layout.
func (m Mesh) EncodeVertices() []byte {
	buf := make([]byte, len(m.Positions)*SizeOfVertex)
	for i := range m.Positions {
		off := i * SizeOfVertex
		putFloats(buf[off:], m.Positions[i][:])
		putFloats(buf[off+12:], m.Normals[i][:])
		putFloats(buf[off+24:], m.UVs[i][:])
	}
	return buf
}

func (m Mesh) EncodeIndices() []byte {
	buf := make([]byte, len(m.Indices)*4)
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(buf[i*4:], idx)
	}
	return buf
}

type MeshBuilder struct {
	positions []mgl32.Vec3
	normals   []mgl32.Vec3
	uvs       []mgl32.Vec2
	indices   []uint32
}

func NewMeshBuilder(positions []mgl32.Vec3) *MeshBuilder {
	return &MeshBuilder{positions: positions}
}

func (b *MeshBuilder) WithNormals(normals []mgl32.Vec3) *MeshBuilder {
	b.normals = normals
	return b
}

func (b *MeshBuilder) WithUVs(uvs []mgl32.Vec2) *MeshBuilder {
	b.uvs = uvs
	return b
}

func (b *MeshBuilder) WithIndices(indices []uint32) *MeshBuilder {
	b.indices = indices
	return b
}

// Build fills in missing attributes and validates the result.
// Missing indices become 0..n-1, missing normals are averaged face normals,
// missing uvs are zero.
func (b *MeshBuilder) Build() (Mesh, error) {
	m := Mesh{
		Positions: b.positions,
		Normals:   b.normals,
		UVs:       b.uvs,
		Indices:   b.indices,
	}

	if m.Indices == nil {
		m.Indices = make([]uint32, len(m.Positions))
		for i := range m.Indices {
			m.Indices[i] = uint32(i)
		}
	}
	if m.UVs == nil {
		m.UVs = make([]mgl32.Vec2, len(m.Positions))
	}
	if m.Normals == nil {
		// Validate first so face normals never index out of range.
		m.Normals = make([]mgl32.Vec3, len(m.Positions))
		if err := m.Validate(); err != nil {
			return Mesh{}, err
		}
		m.Normals = faceNormals(m.Positions, m.Indices)
	}

	if err := m.Validate(); err != nil {
		return Mesh{}, err
	}
	return m, nil
}

func faceNormals(positions []mgl32.Vec3, indices []uint32) []mgl32.Vec3 {
	normals := make([]mgl32.Vec3, len(positions))
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]
		n := positions[b].Sub(positions[a]).Cross(positions[c].Sub(positions[a]))
		normals[a] = normals[a].Add(n)
		normals[b] = normals[b].Add(n)
		normals[c] = normals[c].Add(n)
	}
	for i, n := range normals {
		if n.Len() > 0 {
			normals[i] = n.Normalize()
		}
	}
	return normals
}

// CubeMesh returns a 2x2x2 cube centered at the origin with 24 vertices and 36 indices.
func CubeMesh() Mesh {
	positions := []mgl32.Vec3{
		// far side (0, 0, 1)
		{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
		// near side (0, 0, -1)
		{-1, 1, -1}, {1, 1, -1}, {1, -1, -1}, {-1, -1, -1},
		// right side (1, 0, 0)
		{1, -1, -1}, {1, 1, -1}, {1, 1, 1}, {1, -1, 1},
		// left side (-1, 0, 0)
		{-1, -1, 1}, {-1, 1, 1}, {-1, 1, -1}, {-1, -1, -1},
		// top (0, 1, 0)
		{1, 1, -1}, {-1, 1, -1}, {-1, 1, 1}, {1, 1, 1},
		// bottom (0, -1, 0)
		{1, -1, 1}, {-1, -1, 1}, {-1, -1, -1}, {1, -1, -1},
	}
	indices := []uint32{
		0, 1, 2, 2, 3, 0, // far
		4, 5, 6, 6, 7, 4, // near
		8, 9, 10, 10, 11, 8, // right
		12, 13, 14, 14, 15, 12, // left
		16, 17, 18, 18, 19, 16, // top
		20, 21, 22, 22, 23, 20, // bottom
	}

	m, err := NewMeshBuilder(positions).WithIndices(indices).Build()
	if err != nil {
		panic(err)
	}
	return m
}
