package scene

import (
	"testing"

	"github.com/chewxy/math32"
)

func TestPackAlbedo_RoundTrip(t *testing.T) {
	const step = 1.0 / 255
	for _, c := range [][3]float32{{0, 0, 0}, {1, 1, 1}, {0.5, 0.25, 0.75}, {0.123, 0.999, 0.001}} {
		for _, idx := range []uint8{0, 17, 254, NoTexture} {
			r, g, b, gotIdx := UnpackAlbedo(PackAlbedo(c[0], c[1], c[2], idx))
			if gotIdx != idx {
				t.Errorf("texture index = %d, want %d", gotIdx, idx)
			}
			for i, got := range [3]float32{r, g, b} {
				if math32.Abs(got-c[i]) > step {
					t.Errorf("PackAlbedo(%v) channel %d = %v, want within 1/255", c, i, got)
				}
			}
		}
	}
}

func TestPackAlbedo_Clamps(t *testing.T) {
	w := PackAlbedo(-1, 2, 0.5, 3)
	if w&0xFF != 0 || w>>8&0xFF != 255 {
		t.Errorf("PackAlbedo clamping = %#08x", w)
	}
	if w>>24 != 3 {
		t.Errorf("texture byte = %d, want 3", w>>24)
	}
}

func TestPackSRGBAlbedo(t *testing.T) {
	r, _, _, _ := UnpackAlbedo(PackSRGBAlbedo(0.5, 0, 0, NoTexture))
	want := math32.Pow(0.5, Gamma)
	if math32.Abs(r-want) > 1.0/255 {
		t.Errorf("linearized red = %v, want %v", r, want)
	}
}

func TestPackRGBE_RoundTrip(t *testing.T) {
	colors := [][3]float32{
		{1, 1, 1},
		{0.5, 0.25, 0.125},
		{10, 3, 0.5},
		{1000, 0, 7},
		{1e-20, 2e-20, 3e-20},
	}
	for _, c := range colors {
		r, g, b := UnpackRGBE(PackRGBE(c[0], c[1], c[2]))
		mx := max(c[0], c[1], c[2])
		for i, got := range [3]float32{r, g, b} {
			if d := math32.Abs(got - c[i]); d > mx/128 {
				t.Errorf("RGBE(%v) channel %d = %v, error %v exceeds %v", c, i, got, d, mx/128)
			}
		}
	}
}

func TestPackRGBE_Saturates(t *testing.T) {
	for _, v := range []float32{0x1p127, math32.MaxFloat32, math32.Inf(1)} {
		w := PackRGBE(v, 1, 0)
		if e := w >> 24; e != 255 {
			t.Errorf("PackRGBE(%v) exponent byte = %d, want 255", v, e)
		}
		if r, _, _ := UnpackRGBE(w); r != MaxRGBE {
			t.Errorf("UnpackRGBE(PackRGBE(%v)) red = %v, want %v", v, r, float32(MaxRGBE))
		}
	}
}

func TestPackRGBE_Zero(t *testing.T) {
	for _, c := range [][3]float32{{0, 0, 0}, {-1, -2, -3}, {1e-33, 0, 0}} {
		w := PackRGBE(c[0], c[1], c[2])
		if w != 0 {
			t.Errorf("PackRGBE(%v) = %#x, want 0", c, w)
		}
		r, g, b := UnpackRGBE(w)
		if r != 0 || g != 0 || b != 0 {
			t.Errorf("UnpackRGBE(0) = %v %v %v, want zeros", r, g, b)
		}
	}
}

func TestPackRoughnessMetalness(t *testing.T) {
	r, rt, m, mt := UnpackRoughnessMetalness(PackRoughnessMetalness(0.3, 4, 1, NoTexture))
	if math32.Abs(r-0.3) > 1.0/255 || math32.Abs(m-1) > 1.0/255 {
		t.Errorf("roughness, metalness = %v, %v", r, m)
	}
	if rt != 4 || mt != NoTexture {
		t.Errorf("indices = %d, %d", rt, mt)
	}
}

func TestPackIorEmissionTransparency(t *testing.T) {
	tests := []struct {
		ior, wantIOR float32
	}{
		{1.5, 1.5},
		{12, 10},
		{-1, 0},
	}
	for _, tt := range tests {
		ior, et, tr, tt2 := UnpackIorEmissionTransparency(PackIorEmissionTransparency(tt.ior, 9, 0.5, 200))
		if math32.Abs(ior-tt.wantIOR) > 1/25.5 {
			t.Errorf("ior(%v) = %v, want %v", tt.ior, ior, tt.wantIOR)
		}
		if et != 9 || tt2 != 200 {
			t.Errorf("indices = %d, %d", et, tt2)
		}
		if math32.Abs(tr-0.5) > 1.0/255 {
			t.Errorf("transparency = %v", tr)
		}
	}
}

func TestUnpackRGBA8(t *testing.T) {
	got := UnpackRGBA8(PackRGBA8(1, 0, 0.5, 1))
	if got[0] != 1 || got[1] != 0 || got[3] != 1 || math32.Abs(got[2]-0.5) > 1.0/255 {
		t.Errorf("UnpackRGBA8 = %v", got)
	}
}
