package scene

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/mrjoshuak/go-openexr/exr"
)

func quad() [2]Triangle {
	v := func(x, y float32) Vertex {
		return Vertex{Position: mgl32.Vec3{x, y, 0}, Normal: mgl32.Vec3{0, 0, 1}}
	}
	return [2]Triangle{
		{V: [3]Vertex{v(0, 0), v(1, 0), v(1, 1)}},
		{V: [3]Vertex{v(0, 0), v(1, 1), v(0, 1)}},
	}
}

func TestScene_Finalize(t *testing.T) {
	s := New()
	diffuse, _ := s.AddMaterial(MaterialDesc{Albedo: mgl32.Vec3{0.5, 0.5, 0.5}})
	light, _ := s.AddMaterial(MaterialDesc{Emission: mgl32.Vec3{4, 4, 4}})

	q := quad()
	q[0].Material = diffuse
	q[1].Material = light
	for _, tri := range q {
		if err := s.AddTriangle(tri); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.AddPointLight(mgl32.Vec3{0, 2, 0}, mgl32.Vec3{1, 1, 1})
	_ = s.AddDirectionalLight(mgl32.Vec3{0, -3, 0}, mgl32.Vec3{1, 1, 1})
	s.Finalize()

	if got := s.EmissiveIndices(); len(got) != 1 || got[0] != 1 {
		t.Errorf("EmissiveIndices() = %v, want [1]", got)
	}
	info := s.Info()
	if info.EmissiveCount != 1 || info.LightCount != 2 {
		t.Errorf("Info() = %+v", info)
	}
	if d := s.Lights()[1].Vector; math32.Abs(d.Len()-1) > 1e-6 || d[1] >= 0 {
		t.Errorf("directional light direction = %v, want normalized -Y", d)
	}
	if !errors.Is(s.AddTriangle(q[0]), ErrFinalized) {
		t.Error("AddTriangle after Finalize should fail")
	}
	if _, err := s.AddMaterial(MaterialDesc{}); !errors.Is(err, ErrFinalized) {
		t.Error("AddMaterial after Finalize should fail")
	}
}

func TestScene_DefaultMaterial(t *testing.T) {
	s := New()
	q := quad()
	q[0].Material = 7
	_ = s.AddTriangle(q[0])
	s.Finalize()

	if len(s.Materials()) != 1 {
		t.Fatalf("len(Materials()) = %d, want 1", len(s.Materials()))
	}
	if s.Triangles()[0].Material != 0 {
		t.Errorf("unknown material should fall back to 0, got %d", s.Triangles()[0].Material)
	}
	if s.Info().EmissiveCount != 0 {
		t.Errorf("EmissiveCount = %d, want 0", s.Info().EmissiveCount)
	}
}

func TestScene_DirectionalLightZero(t *testing.T) {
	s := New()
	if err := s.AddDirectionalLight(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}); err == nil {
		t.Error("zero direction should be rejected")
	}
}

func TestMaterialDesc_TextureRefs(t *testing.T) {
	m := MaterialDesc{AlbedoMap: TextureIndex(0), RoughnessMap: TextureIndex(5)}.Pack()
	if _, _, _, idx := UnpackAlbedo(m.Albedo); idx != 0 {
		t.Errorf("albedo texture = %d, want 0", idx)
	}
	if _, _, _, idx := UnpackAlbedo(m.Specular); idx != NoTexture {
		t.Errorf("specular texture = %d, want NoTexture", idx)
	}
	if _, rt, _, mt := UnpackRoughnessMetalness(m.RoughnessMetalness); rt != 5 || mt != NoTexture {
		t.Errorf("roughness/metalness textures = %d, %d", rt, mt)
	}
}

func TestScene_Bounds(t *testing.T) {
	s := New()
	q := quad()
	_ = s.AddTriangle(q[0])
	_ = s.AddTriangle(q[1])
	lo, hi := s.Bounds()
	if lo != (mgl32.Vec3{0, 0, 0}) || hi != (mgl32.Vec3{1, 1, 0}) {
		t.Errorf("Bounds() = %v, %v", lo, hi)
	}
}

func TestScene_LoadTexture(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checker.png")

	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for y := range 4 {
		for x := range 8 {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 60), B: 7, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	s := New()
	idx, err := s.LoadTexture(path)
	if err != nil {
		t.Fatal(err)
	}
	again, err := s.LoadTexture(path)
	if err != nil || again != idx {
		t.Errorf("cached LoadTexture = %d, %v; want %d", again, err, idx)
	}
	if len(s.Textures()) != 1 {
		t.Fatalf("len(Textures()) = %d, want 1", len(s.Textures()))
	}
	tex := s.Textures()[0]
	if tex.Width != 8 || tex.Height != 4 || tex.DataStart != 0 {
		t.Errorf("texture = %+v", tex)
	}
	texel := s.TextureData()[1*8+3]
	if want := uint32(90) | uint32(60)<<8 | 7<<16 | 255<<24; texel != want {
		t.Errorf("texel(3,1) = %#08x, want %#08x", texel, want)
	}

	if _, err := s.LoadTexture(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("missing texture should fail")
	}
}

func TestScene_AddTextureDownscales(t *testing.T) {
	s := New(WithMaxTextureSize(16))
	idx, err := s.AddTexture(image.NewRGBA(image.Rect(0, 0, 64, 32)))
	if err != nil {
		t.Fatal(err)
	}
	tex := s.Textures()[idx]
	if tex.Width != 16 || tex.Height != 8 {
		t.Errorf("downscaled size = %dx%d, want 16x8", tex.Width, tex.Height)
	}
	if len(s.TextureData()) != 16*8 {
		t.Errorf("len(TextureData()) = %d, want %d", len(s.TextureData()), 16*8)
	}
}

func TestScene_TooManyTextures(t *testing.T) {
	s := New()
	small := image.NewRGBA(image.Rect(0, 0, 1, 1))
	for range NoTexture {
		if _, err := s.AddTexture(small); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.AddTexture(small); !errors.Is(err, ErrTooManyTextures) {
		t.Errorf("err = %v, want ErrTooManyTextures", err)
	}
}

func TestScene_LoadOBJ(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tri.obj")
	obj := "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"
	if err := os.WriteFile(path, []byte(obj), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New()
	n, err := s.LoadOBJ(path, OBJOptions{Scale: 2, FlipYZ: true})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(s.Triangles()) != 1 {
		t.Fatalf("imported %d triangles, scene has %d", n, len(s.Triangles()))
	}
	tri := s.Triangles()[0]
	if got := tri.V[1].Position; got != (mgl32.Vec3{2, 0, 0}) {
		t.Errorf("v1 = %v, want (2,0,0)", got)
	}
	if got := tri.V[2].Position; got != (mgl32.Vec3{0, 0, 2}) {
		t.Errorf("v2 = %v, want (0,0,2)", got)
	}
	if got := tri.V[0].Normal; !got.ApproxEqual(mgl32.Vec3{0, -1, 0}) {
		t.Errorf("normal = %v, want (0,-1,0)", got)
	}

	if _, err := s.LoadOBJ(filepath.Join(t.TempDir(), "absent.obj"), OBJOptions{}); err == nil {
		t.Error("missing OBJ should fail")
	}
}

func TestEnvironment_Lookup(t *testing.T) {
	env := NewEnvironment(4, 2)
	// Top row is the upper hemisphere.
	for x := range 4 {
		copy(env.Pix[x*4:], []float32{1, 2, 3, 1})
	}
	if got := env.Lookup(mgl32.Vec3{0, 1, 0}); got != (mgl32.Vec3{1, 2, 3}) {
		t.Errorf("Lookup(up) = %v", got)
	}
	if got := env.Lookup(mgl32.Vec3{0, -1, 0}); got != (mgl32.Vec3{}) {
		t.Errorf("Lookup(down) = %v", got)
	}
	if got := UniformEnvironment(mgl32.Vec3{1, 1, 1}).Lookup(mgl32.Vec3{1, 0, 0}); got != (mgl32.Vec3{1, 1, 1}) {
		t.Errorf("uniform Lookup = %v", got)
	}
}

func TestScene_LoadEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sky.exr")
	src := NewEnvironment(4, 2)
	for i := range src.Pix {
		src.Pix[i] = float32(i%4) * 0.5
	}
	if err := exr.EncodeFile(path, src.EXR()); err != nil {
		t.Fatal(err)
	}

	s := New()
	if err := s.LoadEnvironment(path); err != nil {
		t.Fatal(err)
	}
	s.Finalize()
	env := s.EnvImage()
	if env == nil || env.Width != 4 || env.Height != 2 {
		t.Fatalf("EnvImage() = %+v", env)
	}
	if info := s.Info(); info.EnvWidth != 4 || info.EnvHeight != 2 {
		t.Errorf("Info() env = %dx%d", info.EnvWidth, info.EnvHeight)
	}
	for i := 0; i < len(env.Pix); i += 4 {
		if math32.Abs(env.Pix[i+1]-0.5) > 1e-3 || math32.Abs(env.Pix[i+2]-1) > 1e-3 {
			t.Fatalf("texel %d = %v", i/4, env.Pix[i:i+4])
		}
	}
}

func TestSetEnvImage_Validates(t *testing.T) {
	s := New()
	if err := s.SetEnvImage(&Environment{Width: 2, Height: 2, Pix: make([]float32, 3)}); err == nil {
		t.Error("short pixel slice should be rejected")
	}
}
