// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package scene holds the renderable description of a scene: shading
// triangles, packed materials, analytic lights, textures and an optional
// environment image.
//
// A Scene is authored with the Add and Load methods, then frozen with
// Finalize. After Finalize the getters return immutable data that the
// integrator uploads to the compute device once.
//
//	s := scene.New()
//	m, _ := s.AddMaterial(scene.MaterialDesc{Albedo: mgl32.Vec3{0.8, 0.8, 0.8}})
//	s.AddTriangle(scene.Triangle{V: verts, Material: m})
//	s.AddDirectionalLight(mgl32.Vec3{0, -1, 0}, mgl32.Vec3{3, 3, 3})
//	s.Finalize()
package scene

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Errors returned by scene authoring.
var (
	// ErrFinalized is returned when a finalized scene is modified.
	ErrFinalized = errors.New("scene: scene is finalized")

	// ErrTooManyTextures is returned when a texture index would collide
	// with the NoTexture sentinel.
	ErrTooManyTextures = errors.New("scene: too many textures")
)

// DefaultMaxTextureSize is the largest texture edge kept after loading.
const DefaultMaxTextureSize = 2048

// Option configures a Scene.
type Option func(*Scene)

// WithMaxTextureSize downscales loaded textures whose larger edge exceeds n.
// Zero disables downscaling.
func WithMaxTextureSize(n int) Option {
	return func(s *Scene) { s.maxTextureSize = n }
}

// Scene is a triangle scene being authored or, after Finalize, ready for
// upload. A Scene is not safe for concurrent modification.
type Scene struct {
	triangles   []Triangle
	materials   []Material
	emissive    []uint32
	lights      []Light
	textures    []Texture
	textureData []uint32
	loaded      map[string]uint8
	env         *Environment

	info      Info
	finalized bool

	maxTextureSize int
}

// New creates an empty scene.
func New(opts ...Option) *Scene {
	s := &Scene{
		loaded:         make(map[string]uint8),
		maxTextureSize: DefaultMaxTextureSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TextureRef references a scene texture from a material. The zero value
// means no texture.
type TextureRef uint8

// TextureIndex returns a reference to texture i as returned by LoadTexture.
func TextureIndex(i uint8) TextureRef { return TextureRef(i + 1) }

func (r TextureRef) index() uint8 {
	if r == 0 {
		return NoTexture
	}
	return uint8(r - 1)
}

// MaterialDesc is an unpacked material. Colors are linear unless SRGB is
// set.
type MaterialDesc struct {
	Albedo       mgl32.Vec3
	Specular     mgl32.Vec3
	Emission     mgl32.Vec3
	Roughness    float32
	Metalness    float32
	IOR          float32
	Transparency float32

	AlbedoMap       TextureRef
	SpecularMap     TextureRef
	RoughnessMap    TextureRef
	MetalnessMap    TextureRef
	EmissionMap     TextureRef
	TransparencyMap TextureRef

	// SRGB marks Albedo and Specular as sRGB-authored, as in material
	// libraries and config files; Pack linearizes them with Gamma.
	SRGB bool
}

// Pack encodes d into device words.
func (d MaterialDesc) Pack() Material {
	pack := PackAlbedo
	if d.SRGB {
		pack = PackSRGBAlbedo
	}
	return Material{
		Albedo:                  pack(d.Albedo[0], d.Albedo[1], d.Albedo[2], d.AlbedoMap.index()),
		Specular:                pack(d.Specular[0], d.Specular[1], d.Specular[2], d.SpecularMap.index()),
		Emission:                PackRGBE(d.Emission[0], d.Emission[1], d.Emission[2]),
		RoughnessMetalness:      PackRoughnessMetalness(d.Roughness, d.RoughnessMap.index(), d.Metalness, d.MetalnessMap.index()),
		IorEmissionTransparency: PackIorEmissionTransparency(d.IOR, d.EmissionMap.index(), d.Transparency, d.TransparencyMap.index()),
	}
}

// EmissionColor returns the decoded emission of m.
func (m Material) EmissionColor() mgl32.Vec3 {
	r, g, b := UnpackRGBE(m.Emission)
	return mgl32.Vec3{r, g, b}
}

// AddMaterial appends a material and returns its index.
func (s *Scene) AddMaterial(d MaterialDesc) (uint32, error) {
	if s.finalized {
		return 0, ErrFinalized
	}
	s.materials = append(s.materials, d.Pack())
	return uint32(len(s.materials) - 1), nil
}

// AddTriangle appends a triangle. A material index that does not exist
// falls back to material 0.
func (s *Scene) AddTriangle(t Triangle) error {
	if s.finalized {
		return ErrFinalized
	}
	if int(t.Material) >= len(s.materials) {
		t.Material = 0
	}
	s.triangles = append(s.triangles, t)
	return nil
}

// AddPointLight adds an omnidirectional light at origin.
func (s *Scene) AddPointLight(origin, radiance mgl32.Vec3) error {
	if s.finalized {
		return ErrFinalized
	}
	s.lights = append(s.lights, Light{Vector: origin, Radiance: radiance, Type: LightPoint})
	return nil
}

// AddDirectionalLight adds a light travelling along direction, which is
// normalized.
func (s *Scene) AddDirectionalLight(direction, radiance mgl32.Vec3) error {
	if s.finalized {
		return ErrFinalized
	}
	if direction.Len() == 0 {
		return fmt.Errorf("scene: directional light with zero direction")
	}
	s.lights = append(s.lights, Light{Vector: direction.Normalize(), Radiance: radiance, Type: LightDirectional})
	return nil
}

// Finalize derives the emissive triangle list and the scene summary and
// freezes the scene. A scene without materials receives a default white
// diffuse material. Calling Finalize twice is a no-op.
func (s *Scene) Finalize() {
	if s.finalized {
		return
	}
	if len(s.materials) == 0 {
		s.materials = append(s.materials, MaterialDesc{Albedo: mgl32.Vec3{1, 1, 1}, IOR: 1}.Pack())
	}

	s.emissive = s.emissive[:0]
	for i := range s.triangles {
		e := s.materials[s.triangles[i].Material].EmissionColor()
		if e[0]+e[1]+e[2] > 0 {
			s.emissive = append(s.emissive, uint32(i))
		}
	}

	s.info = Info{
		EmissiveCount: uint32(len(s.emissive)),
		LightCount:    uint32(len(s.lights)),
	}
	if s.env != nil {
		s.info.EnvWidth = uint32(s.env.Width)
		s.info.EnvHeight = uint32(s.env.Height)
	}
	s.finalized = true
}

// Finalized reports whether Finalize has been called.
func (s *Scene) Finalized() bool { return s.finalized }

// Triangles returns the shading triangles.
func (s *Scene) Triangles() []Triangle { return s.triangles }

// Materials returns the packed materials.
func (s *Scene) Materials() []Material { return s.materials }

// EmissiveIndices returns the indices of triangles with emissive materials.
func (s *Scene) EmissiveIndices() []uint32 { return s.emissive }

// Lights returns the analytic lights.
func (s *Scene) Lights() []Light { return s.lights }

// Textures returns the texture table.
func (s *Scene) Textures() []Texture { return s.textures }

// TextureData returns all texels as packed RGBA8 words.
func (s *Scene) TextureData() []uint32 { return s.textureData }

// EnvImage returns the environment image, or nil.
func (s *Scene) EnvImage() *Environment { return s.env }

// Info returns the summary computed by Finalize.
func (s *Scene) Info() Info { return s.info }

// Bounds returns the axis-aligned bounds of all triangle vertices.
func (s *Scene) Bounds() (lo, hi mgl32.Vec3) {
	if len(s.triangles) == 0 {
		return lo, hi
	}
	lo = s.triangles[0].V[0].Position
	hi = lo
	for i := range s.triangles {
		for _, v := range s.triangles[i].V {
			for a := range 3 {
				lo[a] = min(lo[a], v.Position[a])
				hi[a] = max(hi[a], v.Position[a])
			}
		}
	}
	return lo, hi
}
