package scene

import (
	"bufio"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/fauxgl"
	"github.com/go-gl/mathgl/mgl32"
)

// OBJOptions controls mesh import.
type OBJOptions struct {
	// Scale multiplies every position. Zero means 1.
	Scale float32

	// FlipYZ converts Z-up meshes to Y-up: y and z are swapped and the new
	// y is negated, for positions and normals alike.
	FlipYZ bool

	// Material is assigned to triangles that have no usemtl material from
	// the file's material libraries.
	Material uint32
}

// LoadOBJ imports the triangles of a Wavefront OBJ file and returns how
// many were added. Missing vertex normals are replaced by the face normal.
// Material libraries named by mtllib are loaded with LoadMTL and faces take
// the material selected by the preceding usemtl.
func (s *Scene) LoadOBJ(path string, opts OBJOptions) (int, error) {
	if s.finalized {
		return 0, ErrFinalized
	}
	mesh, err := fauxgl.LoadOBJ(path)
	if err != nil {
		return 0, fmt.Errorf("scene: load %s: %w", path, err)
	}
	ids, err := s.faceMaterials(path, opts.Material)
	if err != nil {
		return 0, err
	}
	if len(ids) != len(mesh.Triangles) {
		// The face scan disagrees with the mesh loader; keep the geometry.
		ids = nil
	}
	return s.addMesh(mesh, opts, ids)
}

// faceMaterials returns the material of every triangle of the OBJ at path,
// in the fan order the mesh loader triangulates faces in.
func (s *Scene) faceMaterials(path string, fallback uint32) ([]uint32, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("scene: load %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var (
		ids     []uint32
		byName  = make(map[string]uint32)
		current = fallback
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "mtllib":
			for _, name := range fields[1:] {
				lib, err := s.LoadMTL(filepath.Join(filepath.Dir(path), filepath.FromSlash(name)))
				if err != nil {
					return nil, err
				}
				maps.Copy(byName, lib)
			}
		case "usemtl":
			current = fallback
			if len(fields) > 1 {
				if m, ok := byName[fields[1]]; ok {
					current = m
				}
			}
		case "f":
			for range len(fields) - 3 {
				ids = append(ids, current)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scene: load %s: %w", path, err)
	}
	return ids, nil
}

// AddMesh imports the triangles of a fauxgl mesh with opts.Material.
func (s *Scene) AddMesh(mesh *fauxgl.Mesh, opts OBJOptions) (int, error) {
	return s.addMesh(mesh, opts, nil)
}

// addMesh imports mesh; ids, when set, holds one material per triangle.
func (s *Scene) addMesh(mesh *fauxgl.Mesh, opts OBJOptions, ids []uint32) (int, error) {
	if s.finalized {
		return 0, ErrFinalized
	}
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}

	for n, ft := range mesh.Triangles {
		var t Triangle
		for i, fv := range [3]fauxgl.Vertex{ft.V1, ft.V2, ft.V3} {
			t.V[i] = Vertex{
				Position: toVec3(fv.Position).Mul(scale),
				Normal:   toVec3(fv.Normal),
				TexCoord: mgl32.Vec2{float32(fv.Texture.X), float32(fv.Texture.Y)},
			}
		}
		fixNormals(&t)
		if opts.FlipYZ {
			for i := range t.V {
				t.V[i].Position = flipYZ(t.V[i].Position)
				t.V[i].Normal = flipYZ(t.V[i].Normal)
			}
		}
		t.Material = opts.Material
		if ids != nil {
			t.Material = ids[n]
		}
		if err := s.AddTriangle(t); err != nil {
			return 0, err
		}
	}
	return len(mesh.Triangles), nil
}

func toVec3(v fauxgl.Vector) mgl32.Vec3 {
	return mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}

func flipYZ(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{v[0], -v[2], v[1]}
}

func fixNormals(t *Triangle) {
	face := t.V[1].Position.Sub(t.V[0].Position).Cross(t.V[2].Position.Sub(t.V[0].Position))
	if face.Len() > 0 {
		face = face.Normalize()
	}
	for i := range t.V {
		if t.V[i].Normal.Len() == 0 {
			t.V[i].Normal = face
		}
	}
}
