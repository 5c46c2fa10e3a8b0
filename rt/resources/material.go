package resources

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gekko3d/rend/rt/core"
	"github.com/gekko3d/rend/rt/gpu"
	"github.com/gekko3d/rend/rt/registry"
)

const (
	SizeOfMaterialRecord = 3 * 16

	// NoTexture marks an absent texture slot in a MaterialRecord.
	NoTexture = 0xFFFFFFFF

	MaterialFlagUnlit = 1 << 0
)

// MaterialRecord is the GPU layout of a material.
//
//	struct Material {
//	  albedo: vec4<f32>,   // 0
//	  roughness: f32,      // 16
//	  metallic: f32,       // 20
//	  reflectance: f32,    // 24
//	  flags: u32,          // 28
//	  albedo_texture: u32, // 32
//	  normal_texture: u32, // 36
//	  _pad: vec2<u32>,     // 40
//	} // 48 bytes
type MaterialRecord struct {
	Albedo        [4]float32
	Roughness     float32
	Metallic      float32
	Reflectance   float32
	Flags         uint32
	AlbedoTexture uint32
	NormalTexture uint32
}

func (r MaterialRecord) Encode(dst []byte) {
	for i, v := range r.Albedo {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(dst[16:], math.Float32bits(r.Roughness))
	binary.LittleEndian.PutUint32(dst[20:], math.Float32bits(r.Metallic))
	binary.LittleEndian.PutUint32(dst[24:], math.Float32bits(r.Reflectance))
	binary.LittleEndian.PutUint32(dst[28:], r.Flags)
	binary.LittleEndian.PutUint32(dst[32:], r.AlbedoTexture)
	binary.LittleEndian.PutUint32(dst[36:], r.NormalTexture)
	binary.LittleEndian.PutUint32(dst[40:], 0)
	binary.LittleEndian.PutUint32(dst[44:], 0)
}

func DecodeMaterialRecord(src []byte) MaterialRecord {
	var r MaterialRecord
	for i := range r.Albedo {
		r.Albedo[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	r.Roughness = math.Float32frombits(binary.LittleEndian.Uint32(src[16:]))
	r.Metallic = math.Float32frombits(binary.LittleEndian.Uint32(src[20:]))
	r.Reflectance = math.Float32frombits(binary.LittleEndian.Uint32(src[24:]))
	r.Flags = binary.LittleEndian.Uint32(src[28:])
	r.AlbedoTexture = binary.LittleEndian.Uint32(src[32:])
	r.NormalTexture = binary.LittleEndian.Uint32(src[36:])
	return r
}

type InternalMaterial struct {
	core.Material
	Record MaterialRecord
}

type MaterialManager struct {
	device   gpu.Device
	registry *registry.Registry[InternalMaterial, core.Material]
	buffer   gpu.Buffer
	dirty    bool
}

func NewMaterialManager(device gpu.Device) *MaterialManager {
	return &MaterialManager{
		device:   device,
		registry: registry.NewRegistry[InternalMaterial, core.Material](),
		dirty:    true,
	}
}

func (m *MaterialManager) Allocate() core.MaterialHandle {
	return core.MaterialHandle(m.registry.Allocate())
}

func textureIndex(textures *TextureManager, h *core.TextureHandle) (uint32, error) {
	if h == nil {
		return NoTexture, nil
	}
	return textures.Index(*h)
}

// Fill resolves the material's textures to slot indices and stores it.
func (m *MaterialManager) Fill(h core.MaterialHandle, mat core.Material, textures *TextureManager) error {
	albedo, err := textureIndex(textures, mat.AlbedoTexture)
	if err != nil {
		return fmt.Errorf("albedo texture of %s: %w", h, err)
	}
	normal, err := textureIndex(textures, mat.NormalTexture)
	if err != nil {
		return fmt.Errorf("normal texture of %s: %w", h, err)
	}

	record := MaterialRecord{
		Albedo:        mat.AlbedoColor,
		Roughness:     mat.Roughness,
		Metallic:      mat.Metallic,
		Reflectance:   mat.Reflectance,
		AlbedoTexture: albedo,
		NormalTexture: normal,
	}
	if mat.Unlit {
		record.Flags |= MaterialFlagUnlit
	}

	if err := m.registry.Insert(h.Raw(), InternalMaterial{Material: mat, Record: record}, mat); err != nil {
		return err
	}
	m.dirty = true
	return nil
}

// Update refills a live material. Unlike Fill it rejects handles that were never filled.
func (m *MaterialManager) Update(h core.MaterialHandle, mat core.Material, textures *TextureManager) error {
	if !m.registry.Contains(h.Raw()) {
		return fmt.Errorf("%w: %s", registry.ErrUnknownHandle, h)
	}
	return m.Fill(h, mat, textures)
}

func (m *MaterialManager) Get(h core.MaterialHandle) (InternalMaterial, error) {
	return m.registry.Get(h.Raw())
}

// Index is the stable slot of a live material in the material buffer.
func (m *MaterialManager) Index(h core.MaterialHandle) (uint32, error) {
	if !m.registry.Contains(h.Raw()) {
		return 0, fmt.Errorf("%w: %s", registry.ErrUnknownHandle, h)
	}
	return h.Raw().Index(), nil
}

func (m *MaterialManager) Remove(h core.MaterialHandle) error {
	if err := m.registry.Remove(h.Raw()); err != nil {
		return err
	}
	m.dirty = true
	return nil
}

// Ready reclaims removed materials and uploads the material buffer when anything changed.
// Records sit at their slot index; empty slots hold zeroes.
func (m *MaterialManager) Ready() error {
	m.registry.RemoveAllDead(nil)
	if !m.dirty && m.buffer != nil {
		return nil
	}

	data := make([]byte, max(m.registry.Capacity(), 1)*SizeOfMaterialRecord)
	for _, e := range m.registry.Entries() {
		e.Value.Record.Encode(data[int(e.Handle.Index())*SizeOfMaterialRecord:])
	}
	if _, err := gpu.EnsureBuffer(m.device, &m.buffer, "material buffer", data, gpu.BufferUsageStorage, 0); err != nil {
		return err
	}
	m.dirty = false
	return nil
}

func (m *MaterialManager) Buffer() gpu.Buffer { return m.buffer }

func (m *MaterialManager) Len() int { return m.registry.Len() }

func (m *MaterialManager) Release() {
	if m.buffer != nil {
		m.buffer.Release()
		m.buffer = nil
	}
}
