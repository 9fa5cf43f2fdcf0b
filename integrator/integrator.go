// Package integrator implements a wavefront path tracer on a compute
// context.
//
// A frame runs as a sequence of small kernels instead of one megakernel:
// primary ray generation, then for each bounce BVH intersection, miss
// shading and surface shading, and finally resolution of the radiance
// accumulator into an output image. Ray state between bounces lives in
// double-buffered device arrays; bounce N reads the copy at parity N&1 and
// surface shading compacts continuation rays into the other copy.
//
// Typical use:
//
//	sd, err := integrator.UploadGPUData(ctx, s, nil)
//	...
//	it, err := integrator.New(ctx, sd, out, integrator.DefaultOptions())
//	...
//	it.SetCamera(integrator.NewCamera(eye, target, fov, aspect))
//	for range samples {
//	    if err := it.RenderFrame(); err != nil {
//	        return err
//	    }
//	}
package integrator

import (
	"encoding/binary"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/wavefront/compute"
)

// Workgroup geometry of the kernels.
const (
	tileSize       = 16
	raysPerGroup   = 256
	counterThreads = 1
)

// State is the position of an Integrator within a frame.
type State uint8

const (
	Idle State = iota
	RaysGenerated
	Intersected
	Shaded
	Resolved
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RaysGenerated:
		return "rays-generated"
	case Intersected:
		return "intersected"
	case Shaded:
		return "shaded"
	case Resolved:
		return "resolved"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Integrator drives the wavefront pipeline for one output image. It owns
// the per-frame working buffers and the radiance accumulator and references
// the scene data and the output image without owning them.
//
// An Integrator is not safe for concurrent use.
type Integrator struct {
	ctx    *compute.Context
	scene  *SceneData
	output *compute.Image
	width  int
	height int

	opts    Options
	camera  Camera
	kernels [numKernels]*compute.Kernel
	bufs    *bufferSet

	state  State
	bounce int
	missed bool
}

// New allocates working buffers for output's dimensions, builds the
// kernels and resets the accumulator. The camera defaults to the origin
// looking down -Z with a 45 degree field of view.
func New(ctx *compute.Context, sd *SceneData, output *compute.Image, opts Options) (*Integrator, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	w, h := output.Width(), output.Height()
	bufs, err := newBufferSet(ctx, w*h)
	if err != nil {
		return nil, err
	}
	kernels, err := createKernels(ctx, kernelDefinitions(opts))
	if err != nil {
		bufs.release()
		return nil, err
	}

	it := &Integrator{
		ctx:     ctx,
		scene:   sd,
		output:  output,
		width:   w,
		height:  h,
		opts:    opts,
		kernels: kernels,
		bufs:    bufs,
		camera: Camera{
			Front:  mgl32.Vec3{0, 0, -1},
			Up:     mgl32.Vec3{0, 1, 0},
			FOV:    mgl32.DegToRad(45),
			Aspect: float32(w) / float32(h),
		},
	}
	if err := it.bindStatic(); err != nil {
		bufs.release()
		return nil, err
	}
	if err := it.Reset(); err != nil {
		bufs.release()
		return nil, err
	}
	slogger().Info("integrator: created",
		"width", w, "height", h,
		"max_bounces", opts.MaxBounces,
		"white_furnace", opts.WhiteFurnace)
	return it, nil
}

// binder collects the first error of a sequence of argument bindings.
type binder struct {
	k   *compute.Kernel
	err error
}

func (b *binder) buffer(index uint32, buf *compute.Buffer) *binder {
	if b.err == nil {
		b.err = b.k.SetBuffer(index, buf)
	}
	return b
}

func (b *binder) vec2u(index uint32, x, y int) *binder {
	if b.err == nil {
		b.err = b.k.SetVec2u(index, uint32(x), uint32(y))
	}
	return b
}

func (b *binder) vec4u(index uint32, v [4]uint32) *binder {
	if b.err == nil {
		b.err = b.k.SetVec4u(index, v)
	}
	return b
}

func (b *binder) vec4(index uint32, v [4]float32) *binder {
	if b.err == nil {
		b.err = b.k.SetVec4(index, v)
	}
	return b
}

func (it *Integrator) bind(kt kernelType) *binder {
	return &binder{k: it.kernels[kt]}
}

func (it *Integrator) sceneInfo() [4]uint32 {
	i := it.scene.Info
	return [4]uint32{i.EmissiveCount, i.LightCount, i.EnvWidth, i.EnvHeight}
}

// bindStatic binds every argument that does not change between bounces.
// Arguments survive kernel rebuilds.
func (it *Integrator) bindStatic() error {
	sd, bs := it.scene, it.bufs
	steps := []*binder{
		it.bind(resetRadianceKernel).
			vec2u(argResetDims, it.width, it.height).
			buffer(argResetRadiance, bs.radiance),
		it.bind(incrementCounterKernel).
			buffer(argCounter, bs.sampleCounter),
		it.bind(generateRaysKernel).
			vec2u(argGenDims, it.width, it.height).
			buffer(argGenSampleCounter, bs.sampleCounter).
			buffer(argGenRays, bs.rays[0]).
			buffer(argGenRayCounter, bs.counters[0]).
			buffer(argGenPixelIndices, bs.pixelIndices[0]).
			buffer(argGenThroughputs, bs.throughputs).
			buffer(argGenRadiance, bs.radiance),
		it.bind(traceKernel).
			buffer(argTraceRTTriangles, sd.RTTriangles).
			buffer(argTraceNodes, sd.Nodes).
			buffer(argTraceHits, bs.hits).
			vec4u(argTraceParams, [4]uint32{uint32(sd.NodeCount)}),
		it.bind(shadeMissKernel).
			buffer(argMissHits, bs.hits).
			buffer(argMissThroughputs, bs.throughputs).
			buffer(argMissRadiance, bs.radiance).
			vec4u(argMissSceneInfo, it.sceneInfo()).
			buffer(argMissEnv, sd.Environment),
		it.bind(shadeHitsKernel).
			buffer(argHitRadiance, bs.radiance).
			buffer(argHitHits, bs.hits).
			buffer(argHitThroughputs, bs.throughputs).
			buffer(argHitTriangles, sd.Triangles).
			buffer(argHitMaterials, sd.Materials).
			buffer(argHitLights, sd.Lights).
			buffer(argHitRTTriangles, sd.RTTriangles).
			buffer(argHitNodes, sd.Nodes).
			buffer(argHitTextures, sd.Textures).
			buffer(argHitTextureData, sd.TextureData).
			buffer(argHitSampleCounter, bs.sampleCounter).
			buffer(argHitEmissive, sd.Emissive).
			vec4u(argHitSceneInfo, it.sceneInfo()),
		it.bind(resolveKernel).
			vec2u(argResolveDims, it.width, it.height).
			buffer(argResolveRadiance, bs.radiance).
			buffer(argResolveSampleCounter, bs.sampleCounter).
			buffer(argResolveOutput, it.output.Buffer),
	}
	for _, b := range steps {
		if b.err != nil {
			return b.err
		}
	}
	return nil
}

// Width returns the output width in pixels.
func (it *Integrator) Width() int { return it.width }

// Height returns the output height in pixels.
func (it *Integrator) Height() int { return it.height }

// Output returns the image ResolveRadiance writes to.
func (it *Integrator) Output() *compute.Image { return it.output }

// State returns the current pipeline state.
func (it *Integrator) State() State { return it.state }

// Options returns the active options.
func (it *Integrator) Options() Options { return it.opts }

// Camera returns the camera used by GenerateRays.
func (it *Integrator) Camera() Camera { return it.camera }

// SetCamera sets the camera used by the next GenerateRays.
func (it *Integrator) SetCamera(c Camera) { it.camera = c }

// Capabilities reports the optional features. None are available.
func (it *Integrator) Capabilities() Capabilities { return Capabilities{} }

// Denoise always fails with ErrUnsupported.
func (it *Integrator) Denoise() error {
	return fmt.Errorf("%w: denoiser", ErrUnsupported)
}

// Configure applies opts. Switching WhiteFurnace rebuilds every kernel and
// resets the accumulator; if a rebuild fails the previous options stay in
// effect.
func (it *Integrator) Configure(opts Options) error {
	opts, err := opts.normalize()
	if err != nil {
		return err
	}
	if opts.WhiteFurnace != it.opts.WhiteFurnace {
		defs := kernelDefinitions(opts)
		for kt, k := range it.kernels {
			if err := k.Redefine(defs...); err != nil {
				rollbackKernels(it.kernels[:kt], kernelDefinitions(it.opts))
				return fmt.Errorf("integrator: rebuild %s: %w", kernelType(kt), err)
			}
		}
		it.opts = opts
		slogger().Info("integrator: kernels rebuilt", "white_furnace", opts.WhiteFurnace)
		return it.Reset()
	}
	it.opts = opts
	return nil
}

// rollbackKernels restores kernels already switched by a failed Configure.
// A kernel that cannot be rebuilt keeps its new program.
func rollbackKernels(kernels []*compute.Kernel, defs []string) {
	for kt, k := range kernels {
		if err := k.Redefine(defs...); err != nil {
			slogger().Warn("integrator: kernel rollback failed", "kernel", kernelType(kt), "err", err)
		}
	}
}

func (it *Integrator) stageErr(stage string, bounce int, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Bounce: bounce, Err: err}
}

// Reset clears the radiance accumulator and, unless the denoiser option is
// set, the sample counter. It returns the integrator to Idle.
func (it *Integrator) Reset() error {
	if err := it.ctx.ExecuteKernel2D(it.kernels[resetRadianceKernel], it.width, it.height); err != nil {
		return it.stageErr("reset", -1, err)
	}
	if !it.opts.EnableDenoiser {
		if err := it.clearCounter(it.bufs.sampleCounter); err != nil {
			return it.stageErr("reset", -1, err)
		}
	}
	it.state, it.bounce, it.missed = Idle, 0, false
	return nil
}

func (it *Integrator) clearCounter(buf *compute.Buffer) error {
	k := it.kernels[clearCounterKernel]
	if err := k.SetBuffer(argCounter, buf); err != nil {
		return err
	}
	return it.ctx.ExecuteKernel(k, counterThreads)
}

// AdvanceSampleCount increments the sample counter on the device.
func (it *Integrator) AdvanceSampleCount() error {
	return it.stageErr("advance sample count", -1,
		it.ctx.ExecuteKernel(it.kernels[incrementCounterKernel], counterThreads))
}

// GenerateRays writes one primary ray per pixel into the bounce 0 buffers
// and sets the bounce 0 ray counter to width*height.
func (it *Integrator) GenerateRays() error {
	switch it.state {
	case Idle, Shaded, Resolved:
	default:
		return stateError("GenerateRays", it.state, it.bounce)
	}
	c := it.camera
	b := it.bind(generateRaysKernel).
		vec4(argGenCameraPosition, vec4(c.Position, 0)).
		vec4(argGenCameraFront, vec4(c.Front, 0)).
		vec4(argGenCameraUp, vec4(c.Up, 0)).
		vec4(argGenCameraParams, [4]float32{c.FOV, c.Aspect})
	if b.err != nil {
		return it.stageErr("generate rays", 0, b.err)
	}
	if err := it.ctx.ExecuteKernel(b.k, it.width*it.height); err != nil {
		return it.stageErr("generate rays", 0, err)
	}
	it.state, it.bounce, it.missed = RaysGenerated, 0, false
	return nil
}

// IntersectRays traces the rays of bounce against the scene BVH.
func (it *Integrator) IntersectRays(bounce int) error {
	ok := (it.state == RaysGenerated && bounce == 0) ||
		(it.state == Shaded && bounce == it.bounce+1)
	if !ok || bounce >= it.opts.MaxBounces {
		return stateError("IntersectRays", it.state, bounce)
	}
	bs := it.bufs
	b := it.bind(traceKernel).
		buffer(argTraceRays, bs.rays.In(bounce)).
		buffer(argTraceRayCounter, bs.counters.In(bounce))
	if b.err != nil {
		return it.stageErr("intersect", bounce, b.err)
	}
	if err := it.ctx.ExecuteKernel(b.k, it.width*it.height); err != nil {
		return it.stageErr("intersect", bounce, err)
	}
	it.state, it.bounce, it.missed = Intersected, bounce, false
	return nil
}

// ShadeMissedRays adds the environment contribution of the rays of bounce
// that hit nothing. It may be called once per bounce, before
// ShadeSurfaceHits.
func (it *Integrator) ShadeMissedRays(bounce int) error {
	if it.state != Intersected || bounce != it.bounce || it.missed {
		return stateError("ShadeMissedRays", it.state, bounce)
	}
	bs := it.bufs
	b := it.bind(shadeMissKernel).
		buffer(argMissRays, bs.rays.In(bounce)).
		buffer(argMissRayCounter, bs.counters.In(bounce)).
		buffer(argMissPixelIndices, bs.pixelIndices.In(bounce))
	if b.err != nil {
		return it.stageErr("shade misses", bounce, b.err)
	}
	if err := it.ctx.ExecuteKernel(b.k, it.width*it.height); err != nil {
		return it.stageErr("shade misses", bounce, err)
	}
	it.missed = true
	return nil
}

// ShadeSurfaceHits shades the hits of bounce and writes continuation rays
// into the buffers of bounce+1.
func (it *Integrator) ShadeSurfaceHits(bounce int) error {
	if it.state != Intersected || bounce != it.bounce {
		return stateError("ShadeSurfaceHits", it.state, bounce)
	}
	bs := it.bufs
	if err := it.clearCounter(bs.counters.Out(bounce)); err != nil {
		return it.stageErr("shade hits", bounce, err)
	}
	b := it.bind(shadeHitsKernel).
		buffer(argHitInRays, bs.rays.In(bounce)).
		buffer(argHitInCounter, bs.counters.In(bounce)).
		buffer(argHitInPixelIndices, bs.pixelIndices.In(bounce)).
		buffer(argHitOutRays, bs.rays.Out(bounce)).
		buffer(argHitOutCounter, bs.counters.Out(bounce)).
		buffer(argHitOutPixelIndices, bs.pixelIndices.Out(bounce)).
		vec4u(argHitParams, [4]uint32{uint32(bounce), uint32(it.opts.MaxBounces), uint32(it.scene.NodeCount)})
	if b.err != nil {
		return it.stageErr("shade hits", bounce, b.err)
	}
	if err := it.ctx.ExecuteKernel(b.k, it.width*it.height); err != nil {
		return it.stageErr("shade hits", bounce, err)
	}
	it.state = Shaded
	return nil
}

// ResolveRadiance writes the tone-mapped average of the accumulator into
// the output image. The accumulator is not modified.
func (it *Integrator) ResolveRadiance() error {
	switch it.state {
	case Idle, Shaded, Resolved:
	default:
		return stateError("ResolveRadiance", it.state, it.bounce)
	}
	b := it.bind(resolveKernel).
		vec4(argResolveParams, [4]float32{float32(it.opts.ToneMap), it.opts.Exposure})
	if b.err != nil {
		return it.stageErr("resolve", -1, b.err)
	}
	if err := it.ctx.ExecuteKernel2D(b.k, it.width, it.height); err != nil {
		return it.stageErr("resolve", -1, err)
	}
	it.state = Resolved
	return nil
}

// RenderFrame adds one sample per pixel and resolves the result. It waits
// for the device and returns the first error, including deferred device
// errors.
func (it *Integrator) RenderFrame() error {
	if err := it.GenerateRays(); err != nil {
		return err
	}
	for bounce := range it.opts.MaxBounces {
		if err := it.IntersectRays(bounce); err != nil {
			return err
		}
		if err := it.ShadeMissedRays(bounce); err != nil {
			return err
		}
		if err := it.ShadeSurfaceHits(bounce); err != nil {
			return err
		}
	}
	if err := it.AdvanceSampleCount(); err != nil {
		return err
	}
	if err := it.ResolveRadiance(); err != nil {
		return err
	}
	return it.ctx.Finish()
}

// SampleCount reads the sample counter back from the device.
func (it *Integrator) SampleCount() (uint32, error) {
	var b [sizeofCounter]byte
	if err := it.ctx.ReadBuffer(it.bufs.sampleCounter, b[:]); err != nil {
		return 0, err
	}
	if err := it.ctx.Finish(); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// Release frees the working buffers. The scene data and output image are
// left to their owners.
func (it *Integrator) Release() {
	it.bufs.release()
}
