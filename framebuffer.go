package wavefront

import (
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/chewxy/math32"
	"github.com/mrjoshuak/go-openexr/exr"
)

// Framebuffer is a host copy of a resolved RGBA32F image.
type Framebuffer struct {
	width  int
	height int
	pix    []float32 // RGBA, 4 floats per pixel, top row first
}

// NewFramebuffer creates a black framebuffer with the given dimensions.
func NewFramebuffer(width, height int) *Framebuffer {
	return &Framebuffer{
		width:  width,
		height: height,
		pix:    make([]float32, width*height*4),
	}
}

// Width returns the width of the framebuffer.
func (f *Framebuffer) Width() int {
	return f.width
}

// Height returns the height of the framebuffer.
func (f *Framebuffer) Height() int {
	return f.height
}

// Pix returns the raw linear pixel data.
func (f *Framebuffer) Pix() []float32 {
	return f.pix
}

// RGBA returns the linear color of a pixel, or zero outside the bounds.
func (f *Framebuffer) RGBA(x, y int) [4]float32 {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return [4]float32{}
	}
	i := (y*f.width + x) * 4
	return [4]float32{f.pix[i], f.pix[i+1], f.pix[i+2], f.pix[i+3]}
}

// encodeSRGB maps a linear channel to an 8-bit display value.
func encodeSRGB(v float32) uint8 {
	v = math32.Max(0, math32.Min(1, v))
	return uint8(math32.Pow(v, 1/2.2)*255 + 0.5)
}

// ToImage converts the framebuffer to an 8-bit gamma-encoded image.
// Values outside [0,1] are clamped; tone map with the integrator options
// first to keep highlights.
func (f *Framebuffer) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	for i := 0; i < len(f.pix); i += 4 {
		img.Pix[i+0] = encodeSRGB(f.pix[i+0])
		img.Pix[i+1] = encodeSRGB(f.pix[i+1])
		img.Pix[i+2] = encodeSRGB(f.pix[i+2])
		img.Pix[i+3] = 255
	}
	return img
}

// SavePNG saves the framebuffer to a PNG file.
func (f *Framebuffer) SavePNG(path string) error {
	out, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	return png.Encode(out, f.ToImage())
}

// EXR returns the framebuffer as an OpenEXR RGBA image.
func (f *Framebuffer) EXR() *exr.RGBAImage {
	img := exr.NewRGBAImage(image.Rect(0, 0, f.width, f.height))
	for y := range f.height {
		for x := range f.width {
			c := f.RGBA(x, y)
			img.SetRGBA(x, y, c[0], c[1], c[2], c[3])
		}
	}
	return img
}

// SaveEXR saves the linear framebuffer to an OpenEXR file.
func (f *Framebuffer) SaveEXR(path string) error {
	return exr.EncodeFile(path, f.EXR())
}

// At implements the image.Image interface.
func (f *Framebuffer) At(x, y int) color.Color {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return color.RGBA{}
	}
	i := (y*f.width + x) * 4
	return color.RGBA{
		R: encodeSRGB(f.pix[i+0]),
		G: encodeSRGB(f.pix[i+1]),
		B: encodeSRGB(f.pix[i+2]),
		A: 255,
	}
}

// Bounds implements the image.Image interface.
func (f *Framebuffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.width, f.height)
}

// ColorModel implements the image.Image interface.
func (f *Framebuffer) ColorModel() color.Model {
	return color.RGBAModel
}
