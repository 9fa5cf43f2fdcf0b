package integrator

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Camera clipping planes used by Projection.
const (
	CameraNear = 0.1
	CameraFar  = 100
)

// Camera is a pinhole camera. Values are used as given.
type Camera struct {
	Position mgl32.Vec3
	Front    mgl32.Vec3
	Up       mgl32.Vec3

	// FOV is the vertical field of view in radians.
	FOV float32

	// Aspect is width / height.
	Aspect float32
}

// NewCamera returns a camera at eye looking at target with +Y up.
func NewCamera(eye, target mgl32.Vec3, fov, aspect float32) Camera {
	return Camera{
		Position: eye,
		Front:    target.Sub(eye).Normalize(),
		Up:       mgl32.Vec3{0, 1, 0},
		FOV:      fov,
		Aspect:   aspect,
	}
}

// View returns the world-to-camera matrix.
func (c Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Position.Add(c.Front), c.Up)
}

// Projection returns the perspective projection matrix.
func (c Camera) Projection() mgl32.Mat4 {
	return mgl32.Perspective(c.FOV, c.Aspect, CameraNear, CameraFar)
}

// Ray returns the direction through normalized device coordinates ndc in
// [-1,1]^2, +Y up. It is the host form of the primary ray kernel.
func (c Camera) Ray(ndc mgl32.Vec2) mgl32.Vec3 {
	front := c.Front.Normalize()
	right := front.Cross(c.Up).Normalize()
	up := right.Cross(front)
	tanHalf := math32.Tan(c.FOV * 0.5)
	return front.
		Add(right.Mul(ndc[0] * tanHalf * c.Aspect)).
		Add(up.Mul(ndc[1] * tanHalf)).
		Normalize()
}

func vec4(v mgl32.Vec3, w float32) [4]float32 {
	return [4]float32{v[0], v[1], v[2], w}
}
