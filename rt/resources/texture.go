package resources

import (
	"fmt"
	"image"
	"math/bits"

	"github.com/gekko3d/rend/rt/core"
	"github.com/gekko3d/rend/rt/gpu"
	"github.com/gekko3d/rend/rt/registry"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

type InternalTexture struct {
	Width     uint32
	Height    uint32
	MipLevels uint32
	Format    core.TextureFormat
	GPU       gpu.Texture
}

type TextureManager struct {
	device   gpu.Device
	logger   Logger
	registry *registry.Registry[InternalTexture, core.Texture]
}

func NewTextureManager(device gpu.Device, logger Logger) *TextureManager {
	return &TextureManager{
		device:   device,
		logger:   logger,
		registry: registry.NewRegistry[InternalTexture, core.Texture](),
	}
}

func (m *TextureManager) Allocate() core.TextureHandle {
	return core.TextureHandle(m.registry.Allocate())
}

// MipLevelCount is the length of a full mip chain down to 1x1.
func MipLevelCount(width, height uint32) uint32 {
	return uint32(bits.Len32(max(width, height)))
}

// MipChain returns texel data for every level, level 0 first. Levels past 0 are
// bilinear downsamples of the previous level.
func MipChain(tex core.Texture) [][]byte {
	levels := uint32(1)
	if tex.MipMode == core.MipsGenerate {
		levels = MipLevelCount(tex.Width, tex.Height)
	}

	chain := make([][]byte, 0, levels)
	chain = append(chain, tex.Data)
	src := wrapImage(tex.Format, tex.Data, tex.Width, tex.Height)
	w, h := tex.Width, tex.Height
	for level := uint32(1); level < levels; level++ {
		w, h = max(w/2, 1), max(h/2, 1)
		dst := newImage(tex.Format, w, h)
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		chain = append(chain, pixels(dst))
		src = dst
	}
	return chain
}

func wrapImage(format core.TextureFormat, data []byte, w, h uint32) draw.Image {
	rect := image.Rect(0, 0, int(w), int(h))
	if format == core.TextureFormatR8Unorm {
		return &image.Gray{Pix: data, Stride: int(w), Rect: rect}
	}
	return &image.RGBA{Pix: data, Stride: int(w) * 4, Rect: rect}
}

func newImage(format core.TextureFormat, w, h uint32) draw.Image {
	rect := image.Rect(0, 0, int(w), int(h))
	if format == core.TextureFormatR8Unorm {
		return image.NewGray(rect)
	}
	return image.NewRGBA(rect)
}

func pixels(img draw.Image) []byte {
	switch i := img.(type) {
	case *image.Gray:
		return i.Pix
	case *image.RGBA:
		return i.Pix
	}
	return nil
}

// Fill validates tex, generates its mips and uploads it to a new GPU texture.
func (m *TextureManager) Fill(h core.TextureHandle, tex core.Texture) error {
	if err := tex.Validate(); err != nil {
		return fmt.Errorf("%s: %w", h, err)
	}
	label := tex.Label
	if label == "" {
		label = "texture " + uuid.NewString()
	}

	chain := MipChain(tex)
	gpuTex, err := m.device.CreateTexture(gpu.TextureDescriptor{
		Label:     label,
		Width:     tex.Width,
		Height:    tex.Height,
		MipLevels: uint32(len(chain)),
		Format:    tex.Format,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", label, err)
	}

	w, hgt := tex.Width, tex.Height
	for level, data := range chain {
		if err := m.device.WriteTexture(gpuTex, uint32(level), w, hgt, data); err != nil {
			gpuTex.Release()
			return fmt.Errorf("failed to upload mip %d of %s: %w", level, label, err)
		}
		w, hgt = max(w/2, 1), max(hgt/2, 1)
	}

	previous, err := m.registry.Get(h.Raw())
	refill := err == nil

	internal := InternalTexture{
		Width:     tex.Width,
		Height:    tex.Height,
		MipLevels: uint32(len(chain)),
		Format:    tex.Format,
		GPU:       gpuTex,
	}
	public := tex
	public.Data = nil
	if err := m.registry.Insert(h.Raw(), internal, public); err != nil {
		gpuTex.Release()
		return err
	}
	if refill {
		previous.GPU.Release()
	}
	m.logger.Debugf("uploaded %s %dx%d with %d mips", label, tex.Width, tex.Height, len(chain))
	return nil
}

func (m *TextureManager) Get(h core.TextureHandle) (InternalTexture, error) {
	return m.registry.Get(h.Raw())
}

// Index is the stable slot of a live texture, as referenced by material records.
func (m *TextureManager) Index(h core.TextureHandle) (uint32, error) {
	if !m.registry.Contains(h.Raw()) {
		return 0, fmt.Errorf("%w: %s", registry.ErrUnknownHandle, h)
	}
	return h.Raw().Index(), nil
}

func (m *TextureManager) Remove(h core.TextureHandle) error {
	return m.registry.Remove(h.Raw())
}

// Ready releases the GPU textures of removed handles.
func (m *TextureManager) Ready() {
	m.registry.RemoveAllDead(func(_ registry.Handle, internal InternalTexture, _ core.Texture) {
		internal.GPU.Release()
	})
}

func (m *TextureManager) Len() int { return m.registry.Len() }

func (m *TextureManager) Release() {
	for _, t := range m.registry.Values() {
		t.GPU.Release()
	}
}
