package core

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

var ErrInvalidTexture = errors.New("invalid texture")

type TextureFormat uint32

const (
	TextureFormatRGBA8Unorm TextureFormat = iota
	TextureFormatRGBA8UnormSrgb
	TextureFormatR8Unorm
)

func (f TextureFormat) BytesPerPixel() int {
	switch f {
	case TextureFormatR8Unorm:
		return 1
	default:
		return 4
	}
}

type MipMode uint8

const (
	MipsNone MipMode = iota
	MipsGenerate
)

// Texture is tightly packed texel data for mip level 0.
type Texture struct {
	Label   string
	Width   uint32
	Height  uint32
	Format  TextureFormat
	Data    []byte
	MipMode MipMode
}

func (t Texture) Validate() error {
	if t.Width == 0 || t.Height == 0 {
		return fmt.Errorf("%w: %q has zero extent %dx%d", ErrInvalidTexture, t.Label, t.Width, t.Height)
	}
	want := int(t.Width) * int(t.Height) * t.Format.BytesPerPixel()
	if len(t.Data) != want {
		return fmt.Errorf("%w: %q has %d bytes, want %d", ErrInvalidTexture, t.Label, len(t.Data), want)
	}
	return nil
}

// TextureFromImage converts img to an sRGB RGBA8 texture.
func TextureFromImage(label string, img image.Image, mips MipMode) Texture {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*b.Dx() || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	return Texture{
		Label:   label,
		Width:   uint32(b.Dx()),
		Height:  uint32(b.Dy()),
		Format:  TextureFormatRGBA8UnormSrgb,
		Data:    rgba.Pix,
		MipMode: mips,
	}
}
