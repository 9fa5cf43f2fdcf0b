package scene

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	// Decoders for texture files.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/nfnt/resize"
)

// LoadTexture decodes an image file and appends it to the texture table.
// Loading the same path twice returns the cached index.
func (s *Scene) LoadTexture(path string) (uint8, error) {
	if idx, ok := s.loaded[path]; ok {
		return idx, nil
	}
	if s.finalized {
		return 0, ErrFinalized
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return 0, fmt.Errorf("scene: open texture: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("scene: decode texture %s: %w", path, err)
	}
	idx, err := s.AddTexture(img)
	if err != nil {
		return 0, err
	}
	s.loaded[path] = idx
	return idx, nil
}

// AddTexture appends an in-memory image to the texture table and returns its
// index. Images larger than the configured maximum are downscaled.
func (s *Scene) AddTexture(img image.Image) (uint8, error) {
	if s.finalized {
		return 0, ErrFinalized
	}
	if len(s.textures) >= NoTexture {
		return 0, ErrTooManyTextures
	}

	b := img.Bounds()
	if m := s.maxTextureSize; m > 0 && (b.Dx() > m || b.Dy() > m) {
		w, h := uint(m), uint(0)
		if b.Dy() > b.Dx() {
			w, h = 0, uint(m)
		}
		img = resize.Resize(w, h, img, resize.Bilinear)
		b = img.Bounds()
	}

	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	tex := Texture{
		Width:     uint32(b.Dx()),
		Height:    uint32(b.Dy()),
		DataStart: uint32(len(s.textureData)),
	}
	for i := 0; i < len(rgba.Pix); i += 4 {
		p := rgba.Pix[i : i+4 : i+4]
		s.textureData = append(s.textureData,
			uint32(p[0])|uint32(p[1])<<8|uint32(p[2])<<16|uint32(p[3])<<24)
	}
	s.textures = append(s.textures, tex)
	return uint8(len(s.textures) - 1), nil
}
