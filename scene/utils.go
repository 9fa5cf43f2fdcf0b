package scene

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Luma returns the Rec. 601 luminance of an RGB color.
func Luma(rgb mgl32.Vec3) float32 {
	return rgb.Dot(mgl32.Vec3{0.299, 0.587, 0.114})
}

// WangHash mixes the bits of x.
func WangHash(x uint32) uint32 {
	x = (x ^ 61) ^ (x >> 16)
	x += x << 3
	x ^= x >> 4
	x *= 0x27d4eb2d
	x ^= x >> 15
	return x
}

// Reflect mirrors v, pointing away from the surface, about n.
func Reflect(v, n mgl32.Vec3) mgl32.Vec3 {
	return v.Mul(-1).Add(n.Mul(2 * v.Dot(n)))
}

// TangentToWorld rotates a direction given in the local frame whose +Z is n
// into world space.
func TangentToWorld(dir, n mgl32.Vec3) mgl32.Vec3 {
	axis := mgl32.Vec3{1, 0, 0}
	if math32.Abs(n[0]) > 0.001 {
		axis = mgl32.Vec3{0, 1, 0}
	}
	t := axis.Cross(n).Normalize()
	b := n.Cross(t)
	return b.Mul(dir[0]).Add(t.Mul(dir[1])).Add(n.Mul(dir[2])).Normalize()
}
