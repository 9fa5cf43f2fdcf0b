package integrator

import (
	"fmt"

	"github.com/gogpu/wavefront/compute"
)

// Size of per-ray buffer elements in bytes.
const (
	sizeofRay        = 32
	sizeofHit        = 16
	sizeofPixelIndex = 4
	sizeofCounter    = 4
	sizeofRGBA       = 16
)

// missPrim marks a Hit that found no triangle.
const missPrim = 0xFFFFFFFF

// pingPong holds the two copies of a double-buffered resource. Bounce N
// reads In(N) and writes In(N+1), which is Out(N).
type pingPong[T any] [2]T

// In returns the copy read at bounce.
func (p *pingPong[T]) In(bounce int) T { return p[bounce&1] }

// Out returns the copy written at bounce.
func (p *pingPong[T]) Out(bounce int) T { return p[(bounce+1)&1] }

// bufferSet is the per-frame working memory of an Integrator.
type bufferSet struct {
	rays         pingPong[*compute.Buffer]
	counters     pingPong[*compute.Buffer]
	pixelIndices pingPong[*compute.Buffer]

	hits          *compute.Buffer
	throughputs   *compute.Buffer
	radiance      *compute.Buffer
	sampleCounter *compute.Buffer
}

func newBufferSet(ctx *compute.Context, pixels int) (*bufferSet, error) {
	bs := &bufferSet{}
	var err error
	alloc := func(dst **compute.Buffer, label string, size int) {
		if err != nil {
			return
		}
		*dst, err = ctx.CreateBuffer(label, size)
	}
	for i := range 2 {
		alloc(&bs.rays[i], fmt.Sprintf("rays%d", i), pixels*sizeofRay)
		alloc(&bs.counters[i], fmt.Sprintf("numRays%d", i), sizeofCounter)
		alloc(&bs.pixelIndices[i], fmt.Sprintf("pixelIndices%d", i), pixels*sizeofPixelIndex)
	}
	alloc(&bs.hits, "hits", pixels*sizeofHit)
	alloc(&bs.throughputs, "throughputs", pixels*sizeofRGBA)
	alloc(&bs.radiance, "radiance", pixels*sizeofRGBA)
	alloc(&bs.sampleCounter, "sampleCounter", sizeofCounter)
	if err != nil {
		bs.release()
		return nil, err
	}
	slogger().Debug("integrator: buffers allocated",
		"pixels", pixels,
		"bytes", pixels*(2*(sizeofRay+sizeofPixelIndex)+sizeofHit+2*sizeofRGBA))
	return bs, nil
}

func (bs *bufferSet) release() {
	for i := range 2 {
		bs.rays[i].Release()
		bs.counters[i].Release()
		bs.pixelIndices[i].Release()
	}
	bs.hits.Release()
	bs.throughputs.Release()
	bs.radiance.Release()
	bs.sampleCounter.Release()
}
