package integrator

import (
	"embed"
	"io/fs"
)

//go:embed shaders/*.wgsl
var shaderFiles embed.FS

// Sources returns the kernel sources of the integrator, rooted at their
// include directory. Pass it to compute.WithSources, or point the context
// at a copy on disk to edit kernels with hot reload.
func Sources() fs.FS {
	sub, err := fs.Sub(shaderFiles, "shaders")
	if err != nil {
		panic(err)
	}
	return sub
}
