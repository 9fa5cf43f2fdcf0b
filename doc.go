// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wavefront renders triangle scenes with a wavefront path tracer on
// a compute device.
//
// # Overview
//
// A wavefront path tracer splits each bounce into separate kernels: ray
// generation, BVH traversal, miss shading and surface shading. Rays that
// survive a bounce are compacted into a second queue, so every dispatch works
// on a dense list of live rays. Radiance accumulates across frames until the
// accumulator is reset.
//
// The packages are layered:
//
//   - compute: device contexts, buffers, kernel compilation and dispatch
//   - scene: triangles, materials, lights, textures and environment maps
//   - bvh: the linear hierarchy traversed by the trace kernel
//   - integrator: the per-stage state machine driving the kernels
//
// Renderer wires them together for the common case.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/wavefront"
//	    _ "github.com/gogpu/wavefront/compute/gpu" // Vulkan backend
//	    "github.com/gogpu/wavefront/scene"
//	)
//
//	s := scene.New()
//	if _, err := s.LoadOBJ("bunny.obj", scene.OBJOptions{}); err != nil {
//	    log.Fatal(err)
//	}
//	_ = s.AddDirectionalLight(mgl32.Vec3{0, -1, -1}, mgl32.Vec3{3, 3, 3})
//
//	r, err := wavefront.NewRenderer(s, 640, 480)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	if err := r.Render(64); err != nil {
//	    log.Fatal(err)
//	}
//	fb, err := r.Readback()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fb.SavePNG("bunny.png")
//
// # Devices
//
// Without the compute/gpu import only the host backend is available. It runs
// the same stages on a worker pool and is used by the tests as a reference.
// WithDevice selects a backend explicitly and WithInterop shares the device of
// a gogpu window.
//
// # Logging
//
// wavefront is silent by default. SetLogger installs an slog.Logger for this
// package and its sub-packages.
package wavefront
