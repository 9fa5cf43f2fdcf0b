package wavefront

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/wavefront/compute"
	"github.com/gogpu/wavefront/integrator"
	"github.com/gogpu/wavefront/scene"
)

// Renderer ties a compute context, the uploaded scene and an integrator
// together for progressive rendering of one image.
type Renderer struct {
	ctx    *compute.Context
	data   *integrator.SceneData
	output *compute.Image
	it     *integrator.Integrator
	pix    []byte
}

// NewRenderer opens a compute device, uploads s and builds the integrator
// for a width x height image. s is finalized if it is not already.
func NewRenderer(s *scene.Scene, width, height int, opts ...RendererOption) (*Renderer, error) {
	o := defaultRendererOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if !s.Finalized() {
		s.Finalize()
	}

	ctx, err := compute.NewContext(o.device, o.interop, compute.WithSources(o.sources))
	if err != nil {
		return nil, err
	}
	r := &Renderer{ctx: ctx}
	if err := r.init(s, width, height, &o); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) init(s *scene.Scene, width, height int, o *rendererOptions) error {
	var err error
	if r.data, err = integrator.UploadGPUData(r.ctx, s, o.accel); err != nil {
		return err
	}
	if r.output, err = r.ctx.CreateImage("output", width, height); err != nil {
		return err
	}
	if r.it, err = integrator.New(r.ctx, r.data, r.output, o.opts); err != nil {
		return err
	}
	if o.camera != nil {
		r.it.SetCamera(*o.camera)
	} else {
		r.it.SetCamera(defaultCamera(s, width, height))
	}
	r.pix = make([]byte, width*height*compute.PixelSize)
	return nil
}

// defaultCamera frames the scene bounds from +Z.
func defaultCamera(s *scene.Scene, width, height int) integrator.Camera {
	lo, hi := s.Bounds()
	center := lo.Add(hi).Mul(0.5)
	radius := hi.Sub(lo).Len() * 0.5
	if radius == 0 {
		radius = 1
	}
	eye := center.Add(mgl32.Vec3{0, 0, radius * 2.5})
	return integrator.NewCamera(eye, center, mgl32.DegToRad(45), float32(width)/float32(height))
}

// Context returns the compute context.
func (r *Renderer) Context() *compute.Context { return r.ctx }

// Integrator returns the integrator, for stage-level control and Configure.
func (r *Renderer) Integrator() *integrator.Integrator { return r.it }

// Render adds samples frames to the accumulator.
func (r *Renderer) Render(samples int) error {
	for range samples {
		if err := r.it.RenderFrame(); err != nil {
			return err
		}
	}
	return nil
}

// FrameFunc is called by RenderLoop after each frame with the number of
// frames rendered so far. Returning an error stops the loop.
type FrameFunc func(frame int, fb *Framebuffer) error

// RenderLoop renders frames until ctx is cancelled, maxFrames frames have
// been rendered (zero means no limit) or onFrame fails. onFrame may be nil.
// Cancellation takes effect between frames.
func (r *Renderer) RenderLoop(ctx context.Context, maxFrames int, onFrame FrameFunc) error {
	start := time.Now()
	for frame := 1; maxFrames == 0 || frame <= maxFrames; frame++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.it.RenderFrame(); err != nil {
			return fmt.Errorf("wavefront: frame %d: %w", frame, err)
		}
		if onFrame == nil {
			continue
		}
		fb, err := r.Readback()
		if err != nil {
			return err
		}
		if err := onFrame(frame, fb); err != nil {
			return err
		}
		if frame%100 == 0 {
			slogger().Debug("wavefront: progress",
				"frames", frame,
				"fps", float64(frame)/time.Since(start).Seconds())
		}
	}
	slogger().Info("wavefront: render loop finished", "elapsed", time.Since(start))
	return nil
}

// Readback copies the resolved image to the host.
func (r *Renderer) Readback() (*Framebuffer, error) {
	if err := r.ctx.ReadBuffer(r.output.Buffer, r.pix); err != nil {
		return nil, err
	}
	if err := r.ctx.Finish(); err != nil {
		return nil, err
	}
	fb := NewFramebuffer(r.output.Width(), r.output.Height())
	for i := range fb.pix {
		fb.pix[i] = math.Float32frombits(binary.LittleEndian.Uint32(r.pix[i*4:]))
	}
	return fb, nil
}

// Close releases every device resource and the context.
func (r *Renderer) Close() {
	if r.it != nil {
		r.it.Release()
	}
	if r.data != nil {
		r.data.Release()
	}
	if r.output != nil {
		r.output.Release()
	}
	r.ctx.Close()
}
