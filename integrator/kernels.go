package integrator

import (
	"fmt"

	"github.com/gogpu/wavefront/compute"
)

// WhiteFurnaceDefine is the kernel definition set by Options.WhiteFurnace.
const WhiteFurnaceDefine = "WHITE_FURNACE"

type kernelType uint8

// The kernels that implement the integrator.
const (
	resetRadianceKernel kernelType = iota
	clearCounterKernel
	incrementCounterKernel
	generateRaysKernel
	traceKernel
	shadeMissKernel
	shadeHitsKernel
	resolveKernel
	numKernels
)

var kernelSources = [numKernels]struct{ file, entry string }{
	resetRadianceKernel:    {"reset_radiance.wgsl", "reset_radiance"},
	clearCounterKernel:     {"counters.wgsl", "clear_counter"},
	incrementCounterKernel: {"counters.wgsl", "increment_counter"},
	generateRaysKernel:     {"raygeneration.wgsl", "generate_rays"},
	traceKernel:            {"trace_bvh.wgsl", "trace_bvh"},
	shadeMissKernel:        {"miss.wgsl", "shade_miss"},
	shadeHitsKernel:        {"hit_surface.wgsl", "shade_hits"},
	resolveKernel:          {"resolve.wgsl", "resolve_radiance"},
}

// String returns the entry point name of kt.
func (kt kernelType) String() string {
	if kt >= numKernels {
		return fmt.Sprintf("kernelType(%d)", uint8(kt))
	}
	return kernelSources[kt].entry
}

// Argument slots, matching the @binding numbers of each kernel source.
const (
	argResetDims uint32 = iota
	argResetRadiance
)

const argCounter uint32 = 0

const (
	argGenDims uint32 = iota
	argGenCameraPosition
	argGenCameraFront
	argGenCameraUp
	argGenCameraParams
	argGenSampleCounter
	argGenRays
	argGenRayCounter
	argGenPixelIndices
	argGenThroughputs
	argGenRadiance
)

const (
	argTraceRays uint32 = iota
	argTraceRayCounter
	argTraceRTTriangles
	argTraceNodes
	argTraceHits
	argTraceParams
)

const (
	argMissRays uint32 = iota
	argMissRayCounter
	argMissHits
	argMissPixelIndices
	argMissThroughputs
	argMissRadiance
	argMissSceneInfo
	argMissEnv
)

const (
	argHitRadiance uint32 = iota
	argHitInRays
	argHitInCounter
	argHitInPixelIndices
	argHitOutRays
	argHitOutCounter
	argHitOutPixelIndices
	argHitHits
	argHitThroughputs
	argHitTriangles
	argHitMaterials
	argHitLights
	argHitRTTriangles
	argHitNodes
	argHitTextures
	argHitTextureData
	argHitSampleCounter
	argHitSceneInfo
	argHitParams
	argHitEmissive
)

const (
	argResolveDims uint32 = iota
	argResolveParams
	argResolveRadiance
	argResolveSampleCounter
	argResolveOutput
)

func kernelDefinitions(o Options) []string {
	if o.WhiteFurnace {
		return []string{WhiteFurnaceDefine}
	}
	return nil
}

// createKernels builds every integrator kernel. Sources are read from the
// context's source filesystem.
func createKernels(ctx *compute.Context, defs []string) ([numKernels]*compute.Kernel, error) {
	var ks [numKernels]*compute.Kernel
	for kt := range numKernels {
		src := kernelSources[kt]
		k, err := ctx.CreateKernel(src.file, src.entry, defs...)
		if err != nil {
			return ks, fmt.Errorf("integrator: kernel %s: %w", kt, err)
		}
		ks[kt] = k
	}
	return ks, nil
}
