package wavefront

import (
	"io/fs"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/wavefront/bvh"
	"github.com/gogpu/wavefront/compute"
	"github.com/gogpu/wavefront/integrator"
)

// RendererOption configures a Renderer during creation.
//
// Example:
//
//	// Host reference device with Reinhard tone mapping
//	r, err := wavefront.NewRenderer(s, 640, 480,
//	    wavefront.WithDevice(compute.DeviceSelector{Backend: compute.HostBackendName}),
//	    wavefront.WithIntegratorOptions(integrator.Options{ToneMap: integrator.ToneMapReinhard}))
type RendererOption func(*rendererOptions)

// rendererOptions holds optional configuration for Renderer creation.
type rendererOptions struct {
	device  compute.DeviceSelector
	interop gpucontext.DeviceProvider
	sources fs.FS
	opts    integrator.Options
	camera  *integrator.Camera
	accel   *bvh.BVH
}

// defaultRendererOptions returns the default renderer options.
func defaultRendererOptions() rendererOptions {
	return rendererOptions{
		sources: integrator.Sources(),
		opts:    integrator.DefaultOptions(),
	}
}

// WithDevice restricts device selection. The default picks the highest
// priority backend that exposes any device.
func WithDevice(sel compute.DeviceSelector) RendererOption {
	return func(o *rendererOptions) {
		o.device = sel
	}
}

// WithInterop shares the device of a display pipeline so the output image
// can be presented without a copy through host memory.
func WithInterop(p gpucontext.DeviceProvider) RendererOption {
	return func(o *rendererOptions) {
		o.interop = p
	}
}

// WithKernelSources reads kernel sources from fsys instead of the copy
// embedded in the integrator package. Use it with a directory on disk to
// edit kernels while the renderer runs.
func WithKernelSources(fsys fs.FS) RendererOption {
	return func(o *rendererOptions) {
		o.sources = fsys
	}
}

// WithIntegratorOptions sets the initial integrator options.
func WithIntegratorOptions(opts integrator.Options) RendererOption {
	return func(o *rendererOptions) {
		o.opts = opts
	}
}

// WithCamera sets the initial camera.
func WithCamera(c integrator.Camera) RendererOption {
	return func(o *rendererOptions) {
		o.camera = &c
	}
}

// WithBVH supplies a prebuilt hierarchy for the scene's triangles.
func WithBVH(b *bvh.BVH) RendererOption {
	return func(o *rendererOptions) {
		o.accel = b
	}
}
