// Package compute is the device abstraction the path tracer dispatches
// through.
//
// A [Context] owns one device and a single in-order queue. Kernels are
// compiled from WGSL sources read from an [io/fs.FS]; sources may use a small
// preprocessor (#include, #define, #ifdef/#ifndef/#else/#endif, #error) and
// caller definitions. Each [Kernel] holds an immutable [Program] that
// [Kernel.Reload] replaces atomically, so hot reload never disturbs work that
// is already queued.
//
// Backends register themselves with [RegisterBackend]. The host backend is
// always present and executes kernels through Go implementations registered
// with [RegisterHostKernel]; importing
//
//	_ "github.com/gogpu/wavefront/compute/gpu"
//
// adds the Vulkan backend built on gogpu/wgpu.
//
// Example:
//
//	ctx, err := compute.NewContext(compute.DeviceSelector{}, nil,
//	    compute.WithSources(os.DirFS("kernels")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	k, err := ctx.CreateKernel("scale.wgsl", "scale", "FACTOR=2.0")
//	...
//	_ = k.SetBuffer(0, buf)
//	_ = ctx.ExecuteKernel(k, n)
//	err = ctx.Finish()
package compute
