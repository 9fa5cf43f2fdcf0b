package integrator

import (
	"encoding"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/wavefront/bvh"
	"github.com/gogpu/wavefront/compute"
	"github.com/gogpu/wavefront/scene"
)

// SceneData is the device-resident copy of a finalized scene and its
// acceleration structure. It is created once by UploadGPUData and is
// immutable afterwards.
type SceneData struct {
	Triangles   *compute.Buffer
	RTTriangles *compute.Buffer
	Nodes       *compute.Buffer
	Materials   *compute.Buffer
	Emissive    *compute.Buffer
	Lights      *compute.Buffer
	Textures    *compute.Buffer
	TextureData *compute.Buffer
	Environment *compute.Buffer

	Info          scene.Info
	NodeCount     int
	TriangleCount int
}

// encodeRecords concatenates the device layouts of items. An empty list
// encodes as one zeroed record so the buffer can still be bound.
func encodeRecords[T any, P interface {
	*T
	encoding.BinaryAppender
}](items []T, size int) ([]byte, error) {
	b := make([]byte, 0, max(len(items), 1)*size)
	for i := range items {
		var err error
		if b, err = P(&items[i]).AppendBinary(b); err != nil {
			return nil, err
		}
	}
	if len(b) == 0 {
		b = make([]byte, size)
	}
	return b, nil
}

// encodeWords encodes a slice of fixed-size values, padding an empty slice
// to minSize zero bytes.
func encodeWords[T uint32 | float32](v []T, minSize int) []byte {
	if len(v) == 0 {
		return make([]byte, minSize)
	}
	b := make([]byte, 0, 4*len(v))
	for _, w := range v {
		switch w := any(w).(type) {
		case uint32:
			b = binary.LittleEndian.AppendUint32(b, w)
		case float32:
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(w))
		}
	}
	return b
}

// UploadGPUData copies s and accel to the device of ctx. A nil accel is
// built from the scene's triangles.
func UploadGPUData(ctx *compute.Context, s *scene.Scene, accel *bvh.BVH) (*SceneData, error) {
	if !s.Finalized() {
		return nil, ErrSceneNotFinalized
	}
	if accel == nil {
		accel = bvh.Build(s.Triangles())
	}
	tris := s.Triangles()
	if len(accel.Order()) != len(tris) {
		return nil, fmt.Errorf("integrator: hierarchy covers %d triangles, scene has %d", len(accel.Order()), len(tris))
	}

	sd := &SceneData{
		Info:          s.Info(),
		NodeCount:     len(accel.Nodes()),
		TriangleCount: len(tris),
	}

	var env []float32
	if e := s.EnvImage(); e != nil {
		env = e.Pix
	}

	type upload struct {
		dst   **compute.Buffer
		label string
		data  func() ([]byte, error)
	}
	uploads := []upload{
		{&sd.Triangles, "triangles", func() ([]byte, error) { return encodeRecords(tris, scene.TriangleSize) }},
		{&sd.RTTriangles, "rtTriangles", func() ([]byte, error) { return encodeRecords(accel.Compress(tris), bvh.RTTriangleSize) }},
		{&sd.Nodes, "bvhNodes", func() ([]byte, error) { return encodeRecords(accel.Nodes(), bvh.NodeSize) }},
		{&sd.Materials, "materials", func() ([]byte, error) { return encodeRecords(s.Materials(), scene.MaterialSize) }},
		{&sd.Emissive, "emissiveIndices", func() ([]byte, error) { return encodeWords(s.EmissiveIndices(), 4), nil }},
		{&sd.Lights, "lights", func() ([]byte, error) { return encodeRecords(s.Lights(), scene.LightSize) }},
		{&sd.Textures, "textures", func() ([]byte, error) { return encodeRecords(s.Textures(), scene.TextureSize) }},
		{&sd.TextureData, "textureData", func() ([]byte, error) { return encodeWords(s.TextureData(), 4), nil }},
		{&sd.Environment, "environment", func() ([]byte, error) { return encodeWords(env, sizeofRGBA), nil }},
	}

	total := 0
	for _, u := range uploads {
		data, err := u.data()
		if err != nil {
			sd.Release()
			return nil, fmt.Errorf("integrator: encode %s: %w", u.label, err)
		}
		buf, err := ctx.CreateBuffer(u.label, len(data))
		if err != nil {
			sd.Release()
			return nil, err
		}
		*u.dst = buf
		if err := ctx.WriteBuffer(buf, data); err != nil {
			sd.Release()
			return nil, err
		}
		total += len(data)
	}

	slogger().Info("integrator: scene uploaded",
		"triangles", sd.TriangleCount,
		"nodes", sd.NodeCount,
		"materials", len(s.Materials()),
		"lights", sd.Info.LightCount,
		"emissive", sd.Info.EmissiveCount,
		"textures", len(s.Textures()),
		"env", fmt.Sprintf("%dx%d", sd.Info.EnvWidth, sd.Info.EnvHeight),
		"bytes", total)
	return sd, nil
}

// Release frees the device copies.
func (sd *SceneData) Release() {
	for _, b := range []*compute.Buffer{
		sd.Triangles, sd.RTTriangles, sd.Nodes, sd.Materials, sd.Emissive,
		sd.Lights, sd.Textures, sd.TextureData, sd.Environment,
	} {
		b.Release()
	}
}
