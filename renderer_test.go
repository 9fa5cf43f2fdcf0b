package wavefront

import (
	"context"
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/wavefront/compute"
	"github.com/gogpu/wavefront/integrator"
	"github.com/gogpu/wavefront/scene"
)

// skyRenderer renders an empty scene under a uniform environment of 2, so
// every raw pixel converges to exactly 2 on the first frame.
func skyRenderer(t *testing.T) *Renderer {
	t.Helper()
	s := scene.New()
	if err := s.SetEnvImage(scene.UniformEnvironment(mgl32.Vec3{2, 2, 2})); err != nil {
		t.Fatal(err)
	}
	r, err := NewRenderer(s, 8, 4,
		WithDevice(compute.DeviceSelector{Backend: compute.HostBackendName}),
		WithIntegratorOptions(integrator.Options{ToneMap: integrator.ToneMapRaw, Exposure: 1}))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestRenderer_Readback(t *testing.T) {
	r := skyRenderer(t)
	if err := r.Render(2); err != nil {
		t.Fatal(err)
	}
	fb, err := r.Readback()
	if err != nil {
		t.Fatal(err)
	}
	if fb.Width() != 8 || fb.Height() != 4 {
		t.Fatalf("framebuffer = %dx%d, want 8x4", fb.Width(), fb.Height())
	}
	for y := range 4 {
		for x := range 8 {
			if got := fb.RGBA(x, y); got != [4]float32{2, 2, 2, 1} {
				t.Fatalf("pixel (%d, %d) = %v, want (2, 2, 2, 1)", x, y, got)
			}
		}
	}
	if got, err := r.Integrator().SampleCount(); err != nil || got != 2 {
		t.Errorf("SampleCount() = %d, %v; want 2", got, err)
	}
}

func TestRenderer_RenderLoop(t *testing.T) {
	r := skyRenderer(t)
	var frames []int
	err := r.RenderLoop(context.Background(), 3, func(frame int, fb *Framebuffer) error {
		frames = append(frames, frame)
		if got := fb.RGBA(0, 0)[0]; got != 2 {
			t.Errorf("frame %d pixel = %v, want 2", frame, got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 3 || frames[2] != 3 {
		t.Errorf("frames = %v, want [1 2 3]", frames)
	}
}

func TestRenderer_RenderLoopStops(t *testing.T) {
	r := skyRenderer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.RenderLoop(ctx, 0, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("RenderLoop(cancelled) = %v, want context.Canceled", err)
	}

	stop := errors.New("stop")
	calls := 0
	err := r.RenderLoop(context.Background(), 0, func(int, *Framebuffer) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("RenderLoop = %v after %d calls, want stop after 1", err, calls)
	}
}

func TestDefaultCamera(t *testing.T) {
	s := scene.New()
	n := mgl32.Vec3{0, 0, 1}
	_ = s.AddTriangle(scene.Triangle{V: [3]scene.Vertex{
		{Position: mgl32.Vec3{-1, -1, 0}, Normal: n},
		{Position: mgl32.Vec3{1, -1, 0}, Normal: n},
		{Position: mgl32.Vec3{1, 1, 0}, Normal: n},
	}})
	c := defaultCamera(s, 200, 100)
	if c.Aspect != 2 {
		t.Errorf("Aspect = %v, want 2", c.Aspect)
	}
	if c.Position[2] <= 1 || !c.Front.ApproxEqual(mgl32.Vec3{0, 0, -1}) {
		t.Errorf("camera = %+v, want looking down -Z from +Z", c)
	}
}
