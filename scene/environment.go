package scene

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/mrjoshuak/go-openexr/exr"
)

// Environment is a linear HDR latitude-longitude image.
type Environment struct {
	Width  int
	Height int

	// Pix holds RGBA float32 texels, row-major from the top row.
	Pix []float32
}

// NewEnvironment allocates a black environment image.
func NewEnvironment(width, height int) *Environment {
	return &Environment{Width: width, Height: height, Pix: make([]float32, width*height*4)}
}

// UniformEnvironment returns a 1x1 environment of constant radiance.
func UniformEnvironment(radiance mgl32.Vec3) *Environment {
	e := NewEnvironment(1, 1)
	copy(e.Pix, []float32{radiance[0], radiance[1], radiance[2], 1})
	return e
}

// Lookup returns the radiance arriving from direction dir.
func (e *Environment) Lookup(dir mgl32.Vec3) mgl32.Vec3 {
	x, y := EnvTexel(dir, e.Width, e.Height)
	i := (y*e.Width + x) * 4
	return mgl32.Vec3{e.Pix[i], e.Pix[i+1], e.Pix[i+2]}
}

// EnvTexel maps a unit direction to latitude-longitude texel coordinates
// with +Y up.
func EnvTexel(dir mgl32.Vec3, width, height int) (x, y int) {
	u := 0.5 + math32.Atan2(dir[2], dir[0])/(2*math32.Pi)
	v := math32.Acos(clamp(dir[1], -1, 1)) / math32.Pi
	x = min(int(u*float32(width)), width-1)
	y = min(int(v*float32(height)), height-1)
	return max(x, 0), max(y, 0)
}

// SetEnvImage installs an environment image. Pass nil to remove it.
func (s *Scene) SetEnvImage(env *Environment) error {
	if s.finalized {
		return ErrFinalized
	}
	if env != nil && len(env.Pix) != env.Width*env.Height*4 {
		return fmt.Errorf("scene: environment has %d floats, want %d", len(env.Pix), env.Width*env.Height*4)
	}
	s.env = env
	return nil
}

// LoadEnvironment reads an OpenEXR latitude-longitude image.
func (s *Scene) LoadEnvironment(path string) error {
	img, err := exr.DecodeFile(path)
	if err != nil {
		return fmt.Errorf("scene: load environment: %w", err)
	}
	return s.SetEnvImage(EnvironmentFromEXR(img))
}

// EnvironmentFromEXR copies a decoded EXR image.
func EnvironmentFromEXR(img *exr.RGBAImage) *Environment {
	b := img.Bounds()
	env := NewEnvironment(b.Dx(), b.Dy())
	for y := range env.Height {
		for x := range env.Width {
			r, g, bl, _ := img.RGBA(b.Min.X+x, b.Min.Y+y)
			i := (y*env.Width + x) * 4
			env.Pix[i], env.Pix[i+1], env.Pix[i+2], env.Pix[i+3] = r, g, bl, 1
		}
	}
	return env
}

// EXR converts the environment back to an OpenEXR image.
func (e *Environment) EXR() *exr.RGBAImage {
	img := exr.NewRGBAImage(image.Rect(0, 0, e.Width, e.Height))
	copy(img.Pix, e.Pix)
	return img
}
