// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package scene

import "github.com/chewxy/math32"

// NoTexture is the texture index meaning "no texture bound".
const NoTexture = 0xFF

// Gamma converts sRGB-authored colors to linear before packing.
const Gamma = 2.2

func clamp(x, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(hi, x))
}

func unorm8(x float32) uint32 {
	return uint32(clamp(x, 0, 1) * 255)
}

// PackAlbedo packs a linear color and a texture index as R8 G8 B8 Tex8.
// Channels are clamped to [0,1] and truncated.
func PackAlbedo(r, g, b float32, texture uint8) uint32 {
	return unorm8(r) | unorm8(g)<<8 | unorm8(b)<<16 | uint32(texture)<<24
}

// UnpackAlbedo is the inverse of PackAlbedo.
func UnpackAlbedo(w uint32) (r, g, b float32, texture uint8) {
	r = float32(w&0xFF) / 255
	g = float32(w>>8&0xFF) / 255
	b = float32(w>>16&0xFF) / 255
	return r, g, b, uint8(w >> 24)
}

// PackSRGBAlbedo linearizes an sRGB color with Gamma and packs it.
func PackSRGBAlbedo(r, g, b float32, texture uint8) uint32 {
	return PackAlbedo(math32.Pow(r, Gamma), math32.Pow(g, Gamma), math32.Pow(b, Gamma), texture)
}

// UnpackRGBA8 decodes four 8-bit channels to [0,1].
func UnpackRGBA8(w uint32) [4]float32 {
	return [4]float32{
		float32(w&0xFF) / 255,
		float32(w>>8&0xFF) / 255,
		float32(w>>16&0xFF) / 255,
		float32(w>>24) / 255,
	}
}

// PackRGBA8 encodes four [0,1] channels, clamping and truncating.
func PackRGBA8(r, g, b, a float32) uint32 {
	return unorm8(r) | unorm8(g)<<8 | unorm8(b)<<16 | unorm8(a)<<24
}

// MaxRGBE is the largest channel value PackRGBE can represent.
const MaxRGBE = 255 * (1 << 119)

// PackRGBE encodes a non-negative HDR color with a shared exponent. Negative
// channels are treated as zero and channels above MaxRGBE saturate; colors
// whose largest channel is below 1e-32 encode to 0.
func PackRGBE(r, g, b float32) uint32 {
	r, g, b = rgbeChannel(r), rgbeChannel(g), rgbeChannel(b)
	v := math32.Max(r, math32.Max(g, b))
	if v < 1e-32 {
		return 0
	}
	frac, e := math32.Frexp(v)
	scale := frac * 256 / v
	return uint32(r*scale) | uint32(g*scale)<<8 | uint32(b*scale)<<16 | uint32(e+128)<<24
}

func rgbeChannel(x float32) float32 {
	return math32.Min(math32.Max(x, 0), MaxRGBE)
}

// UnpackRGBE is the inverse of PackRGBE.
func UnpackRGBE(w uint32) (r, g, b float32) {
	e := int(w >> 24)
	if e == 0 {
		return 0, 0, 0
	}
	f := math32.Ldexp(1, e-(128+8))
	return float32(w&0xFF) * f, float32(w>>8&0xFF) * f, float32(w>>16&0xFF) * f
}

// PackRoughnessMetalness packs R8 RTex8 M8 MTex8.
func PackRoughnessMetalness(roughness float32, roughnessTex uint8, metalness float32, metalnessTex uint8) uint32 {
	return unorm8(roughness) | uint32(roughnessTex)<<8 | unorm8(metalness)<<16 | uint32(metalnessTex)<<24
}

// UnpackRoughnessMetalness is the inverse of PackRoughnessMetalness.
func UnpackRoughnessMetalness(w uint32) (roughness float32, roughnessTex uint8, metalness float32, metalnessTex uint8) {
	return float32(w&0xFF) / 255, uint8(w >> 8), float32(w>>16&0xFF) / 255, uint8(w >> 24)
}

// PackIorEmissionTransparency packs IOR8 ETex8 T8 TTex8. The index of
// refraction is clamped to [0,10] and stored in steps of 1/25.5.
func PackIorEmissionTransparency(ior float32, emissionTex uint8, transparency float32, transparencyTex uint8) uint32 {
	return uint32(clamp(ior, 0, 10)*25.5) | uint32(emissionTex)<<8 | unorm8(transparency)<<16 | uint32(transparencyTex)<<24
}

// UnpackIorEmissionTransparency is the inverse of PackIorEmissionTransparency.
func UnpackIorEmissionTransparency(w uint32) (ior float32, emissionTex uint8, transparency float32, transparencyTex uint8) {
	return float32(w&0xFF) / 25.5, uint8(w >> 8), float32(w>>16&0xFF) / 255, uint8(w >> 24)
}
