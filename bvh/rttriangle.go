package bvh

import (
	"encoding/binary"
	"math"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/wavefront/scene"
)

// RTTriangleSize is the device size of an RTTriangle in bytes.
const RTTriangleSize = 48

// RTTriangle is the position-only triangle used for intersection: one
// vertex, two edges and the index of the shading triangle.
type RTTriangle struct {
	V0   mgl32.Vec3
	E1   mgl32.Vec3
	E2   mgl32.Vec3
	Prim uint32
}

// AppendBinary appends the device layout of t.
func (t *RTTriangle) AppendBinary(b []byte) ([]byte, error) {
	le := binary.LittleEndian
	f := func(v mgl32.Vec3, w uint32) {
		for _, c := range v {
			b = le.AppendUint32(b, math.Float32bits(c))
		}
		b = le.AppendUint32(b, w)
	}
	f(t.V0, t.Prim)
	f(t.E1, 0)
	f(t.E2, 0)
	return b, nil
}

// Compress derives the intersection triangles of tris in the leaf order of b.
func (b *BVH) Compress(tris []scene.Triangle) []RTTriangle {
	out := make([]RTTriangle, len(b.order))
	for i, idx := range b.order {
		t := &tris[idx]
		v0 := t.V[0].Position
		out[i] = RTTriangle{
			V0:   v0,
			E1:   t.V[1].Position.Sub(v0),
			E2:   t.V[2].Position.Sub(v0),
			Prim: idx,
		}
	}
	return out
}

// Hit is the nearest intersection found by Intersect.
type Hit struct {
	Prim uint32
	T    float32
	U, V float32
}

// Intersect finds the nearest triangle hit by the ray origin + t*dir with t
// in (tmin, tmax). rts must come from Compress on the same hierarchy.
func (b *BVH) Intersect(rts []RTTriangle, origin, dir mgl32.Vec3, tmin, tmax float32) (Hit, bool) {
	if len(b.nodes) == 0 {
		return Hit{}, false
	}
	inv := mgl32.Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]}

	var best Hit
	found := false
	var stack [64]uint32
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		idx := stack[sp]
		n := &b.nodes[idx]
		if !slabs(n.Min, n.Max, origin, inv, tmin, tmax) {
			continue
		}
		if n.Leaf() {
			for i := n.Offset; i < n.Offset+uint32(n.Count); i++ {
				if t, u, v, ok := MollerTrumbore(&rts[i], origin, dir); ok && t > tmin && t < tmax {
					best, found, tmax = Hit{Prim: rts[i].Prim, T: t, U: u, V: v}, true, t
				}
			}
			continue
		}
		if sp+2 > len(stack) {
			continue
		}
		stack[sp] = n.Offset
		stack[sp+1] = idx + 1
		sp += 2
	}
	return best, found
}

// MollerTrumbore intersects a ray with one triangle and returns the hit
// distance and barycentrics.
func MollerTrumbore(t *RTTriangle, origin, dir mgl32.Vec3) (dist, u, v float32, ok bool) {
	p := dir.Cross(t.E2)
	det := t.E1.Dot(p)
	if math32.Abs(det) < 1e-12 {
		return 0, 0, 0, false
	}
	invDet := 1 / det
	s := origin.Sub(t.V0)
	u = s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	q := s.Cross(t.E1)
	v = dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	return t.E2.Dot(q) * invDet, u, v, true
}

func slabs(lo, hi, origin, inv mgl32.Vec3, tmin, tmax float32) bool {
	for a := range 3 {
		t0 := (lo[a] - origin[a]) * inv[a]
		t1 := (hi[a] - origin[a]) * inv[a]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tmin = math32.Max(tmin, t0)
		tmax = math32.Min(tmax, t1)
		if tmin > tmax {
			return false
		}
	}
	return true
}
