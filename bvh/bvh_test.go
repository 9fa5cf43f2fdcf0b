package bvh

import (
	"encoding/binary"
	"math/rand/v2"
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/wavefront/scene"
)

func randomTriangles(n int, rng *rand.Rand) []scene.Triangle {
	r := func() float32 { return rng.Float32()*20 - 10 }
	tris := make([]scene.Triangle, n)
	for i := range tris {
		c := mgl32.Vec3{r(), r(), r()}
		for j := range 3 {
			tris[i].V[j].Position = c.Add(mgl32.Vec3{rng.Float32(), rng.Float32(), rng.Float32()})
		}
	}
	return tris
}

func contains(outer, inner *Node) bool {
	for a := range 3 {
		if inner.Min[a] < outer.Min[a] || inner.Max[a] > outer.Max[a] {
			return false
		}
	}
	return true
}

func TestBuild_Empty(t *testing.T) {
	b := Build(nil)
	if len(b.Nodes()) != 0 || len(b.Order()) != 0 {
		t.Errorf("Build(nil) = %d nodes, %d order", len(b.Nodes()), len(b.Order()))
	}
	if _, ok := b.Intersect(nil, mgl32.Vec3{}, mgl32.Vec3{0, 0, 1}, 0, 1e30); ok {
		t.Error("empty hierarchy reported a hit")
	}
}

func TestBuild_Structure(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	tris := randomTriangles(500, rng)
	b := Build(tris)
	nodes := b.Nodes()

	seen := make([]bool, len(tris))
	for _, idx := range b.Order() {
		if seen[idx] {
			t.Fatalf("triangle %d appears twice in Order()", idx)
		}
		seen[idx] = true
	}
	for i, ok := range seen {
		if !ok {
			t.Fatalf("triangle %d missing from Order()", i)
		}
	}

	covered := 0
	for i := range nodes {
		n := &nodes[i]
		if n.Leaf() {
			if n.Count > MaxLeafSize {
				t.Errorf("leaf %d holds %d triangles", i, n.Count)
			}
			covered += int(n.Count)
			continue
		}
		if int(n.Offset) <= i+1 || int(n.Offset) >= len(nodes) {
			t.Fatalf("node %d second child %d out of order", i, n.Offset)
		}
		if !contains(n, &nodes[i+1]) || !contains(n, &nodes[n.Offset]) {
			t.Errorf("node %d does not contain its children", i)
		}
	}
	if covered != len(tris) {
		t.Errorf("leaves cover %d triangles, want %d", covered, len(tris))
	}
}

func TestBuild_CoincidentCentroids(t *testing.T) {
	tri := scene.Triangle{}
	tri.V[1].Position = mgl32.Vec3{1, 0, 0}
	tri.V[2].Position = mgl32.Vec3{0, 1, 0}
	tris := make([]scene.Triangle, 9)
	for i := range tris {
		tris[i] = tri
	}
	b := Build(tris)
	for i := range b.Nodes() {
		if n := b.Nodes()[i]; n.Leaf() && n.Count > MaxLeafSize {
			t.Errorf("leaf %d holds %d triangles", i, n.Count)
		}
	}
}

func TestIntersect_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	tris := randomTriangles(300, rng)
	b := Build(tris)
	rts := b.Compress(tris)

	all := make([]RTTriangle, len(tris))
	for i := range tris {
		v0 := tris[i].V[0].Position
		all[i] = RTTriangle{V0: v0, E1: tris[i].V[1].Position.Sub(v0), E2: tris[i].V[2].Position.Sub(v0), Prim: uint32(i)}
	}

	for range 500 {
		origin := mgl32.Vec3{rng.Float32()*30 - 15, rng.Float32()*30 - 15, -20}
		dir := mgl32.Vec3{rng.Float32() - 0.5, rng.Float32() - 0.5, 1}.Normalize()

		want, wantOK := Hit{}, false
		tmax := float32(1e30)
		for i := range all {
			if d, u, v, ok := MollerTrumbore(&all[i], origin, dir); ok && d > 0 && d < tmax {
				want, wantOK, tmax = Hit{Prim: uint32(i), T: d, U: u, V: v}, true, d
			}
		}

		got, ok := b.Intersect(rts, origin, dir, 0, 1e30)
		if ok != wantOK {
			t.Fatalf("Intersect hit = %v, brute force = %v", ok, wantOK)
		}
		if ok && (got.Prim != want.Prim || math32.Abs(got.T-want.T) > 1e-4) {
			t.Fatalf("Intersect = %+v, want %+v", got, want)
		}
	}
}

func TestNode_AppendBinary(t *testing.T) {
	n := Node{Min: mgl32.Vec3{1, 2, 3}, Max: mgl32.Vec3{4, 5, 6}, Offset: 7, Count: 3, Axis: 2}
	b, _ := n.AppendBinary(nil)
	if len(b) != NodeSize {
		t.Fatalf("len = %d, want %d", len(b), NodeSize)
	}
	if got := binary.LittleEndian.Uint32(b[12:]); got != 7 {
		t.Errorf("offset word = %d, want 7", got)
	}
	if got := binary.LittleEndian.Uint32(b[28:]); got != 3|2<<16 {
		t.Errorf("count/axis word = %#x, want %#x", got, 3|2<<16)
	}
}

func TestRTTriangle_AppendBinary(t *testing.T) {
	rt := RTTriangle{Prim: 42}
	b, _ := rt.AppendBinary(nil)
	if len(b) != RTTriangleSize {
		t.Fatalf("len = %d, want %d", len(b), RTTriangleSize)
	}
	if got := binary.LittleEndian.Uint32(b[12:]); got != 42 {
		t.Errorf("prim word = %d, want 42", got)
	}
}
