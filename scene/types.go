package scene

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Device record sizes in bytes.
const (
	TriangleSize = 112
	MaterialSize = 20
	LightSize    = 32
	TextureSize  = 16
	InfoSize     = 16
)

// Vertex is one triangle corner.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
}

// Triangle is a full shading triangle.
type Triangle struct {
	V        [3]Vertex
	Material uint32
}

// Material holds the five packed material words.
type Material struct {
	Albedo                  uint32
	Specular                uint32
	Emission                uint32
	RoughnessMetalness      uint32
	IorEmissionTransparency uint32
}

// LightType tags analytic lights.
type LightType uint32

const (
	LightPoint LightType = iota
	LightDirectional
)

// String returns the light type name.
func (t LightType) String() string {
	switch t {
	case LightPoint:
		return "point"
	case LightDirectional:
		return "directional"
	default:
		return "unknown"
	}
}

// Light is an analytic light. Vector is the origin of a point light or the
// normalized travel direction of a directional light.
type Light struct {
	Vector   mgl32.Vec3
	Radiance mgl32.Vec3
	Type     LightType
}

// Texture locates an RGBA8 texture inside the shared texel array.
type Texture struct {
	Width     uint32
	Height    uint32
	DataStart uint32
}

// Info summarizes a finalized scene.
type Info struct {
	EmissiveCount uint32
	LightCount    uint32
	EnvWidth      uint32
	EnvHeight     uint32
}

var le = binary.LittleEndian

func appendF32(b []byte, v ...float32) []byte {
	for _, f := range v {
		b = le.AppendUint32(b, math.Float32bits(f))
	}
	return b
}

// AppendBinary appends the 112-byte device layout of t.
func (t *Triangle) AppendBinary(b []byte) ([]byte, error) {
	for _, v := range t.V {
		b = appendF32(b, v.Position[0], v.Position[1], v.Position[2], v.TexCoord[0])
		b = appendF32(b, v.Normal[0], v.Normal[1], v.Normal[2], v.TexCoord[1])
	}
	b = le.AppendUint32(b, t.Material)
	return append(b, make([]byte, 12)...), nil
}

// AppendBinary appends the 20-byte device layout of m.
func (m *Material) AppendBinary(b []byte) ([]byte, error) {
	for _, w := range [...]uint32{m.Albedo, m.Specular, m.Emission, m.RoughnessMetalness, m.IorEmissionTransparency} {
		b = le.AppendUint32(b, w)
	}
	return b, nil
}

// AppendBinary appends the 32-byte device layout of l.
func (l *Light) AppendBinary(b []byte) ([]byte, error) {
	b = appendF32(b, l.Vector[0], l.Vector[1], l.Vector[2])
	b = le.AppendUint32(b, uint32(l.Type))
	b = appendF32(b, l.Radiance[0], l.Radiance[1], l.Radiance[2], 0)
	return b, nil
}

// AppendBinary appends the 16-byte device layout of t.
func (t *Texture) AppendBinary(b []byte) ([]byte, error) {
	b = le.AppendUint32(b, t.Width)
	b = le.AppendUint32(b, t.Height)
	b = le.AppendUint32(b, t.DataStart)
	return le.AppendUint32(b, 0), nil
}

// AppendBinary appends the 16-byte device layout of i.
func (i *Info) AppendBinary(b []byte) ([]byte, error) {
	for _, w := range [...]uint32{i.EmissiveCount, i.LightCount, i.EnvWidth, i.EnvHeight} {
		b = le.AppendUint32(b, w)
	}
	return b, nil
}
