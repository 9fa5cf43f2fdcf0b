package scene

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

func TestWangHash(t *testing.T) {
	tests := []struct{ in, want uint32 }{
		{0, 3232319850},
		{1, 663891101},
		{12345, 232713235},
	}
	for _, tt := range tests {
		if got := WangHash(tt.in); got != tt.want {
			t.Errorf("WangHash(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLuma(t *testing.T) {
	if got := Luma(mgl32.Vec3{1, 1, 1}); math32.Abs(got-1) > 1e-6 {
		t.Errorf("Luma(white) = %v, want 1", got)
	}
}

func TestReflect(t *testing.T) {
	got := Reflect(mgl32.Vec3{1, 1, 0}.Normalize(), mgl32.Vec3{0, 1, 0})
	want := mgl32.Vec3{-1, 1, 0}.Normalize()
	if !got.ApproxEqual(want) {
		t.Errorf("Reflect = %v, want %v", got, want)
	}
}

func TestTangentToWorld(t *testing.T) {
	for _, n := range []mgl32.Vec3{{0, 0, 1}, {1, 0, 0}, mgl32.Vec3{1, 2, 3}.Normalize()} {
		if got := TangentToWorld(mgl32.Vec3{0, 0, 1}, n); !got.ApproxEqualThreshold(n, 1e-5) {
			t.Errorf("TangentToWorld(+Z, %v) = %v", n, got)
		}
		d := TangentToWorld(mgl32.Vec3{1, 0, 0}, n)
		if math32.Abs(d.Dot(n)) > 1e-5 {
			t.Errorf("tangent %v not perpendicular to %v", d, n)
		}
	}
}
