package compute

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Buffer is device memory owned by a Context.
type Buffer struct {
	ctx   *Context
	label string
	size  int
	dev   DeviceBuffer

	// shared is set when the buffer is registered as a graphics resource.
	shared   atomic.Pointer[GraphicsResource]
	released atomic.Bool
}

// Label returns the debug label the buffer was created with.
func (b *Buffer) Label() string { return b.label }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() int { return b.size }

// Device returns the backend buffer.
func (b *Buffer) Device() DeviceBuffer { return b.dev }

// Release frees the device memory once every command enqueued before the
// call has run. Release is safe to call multiple times.
func (b *Buffer) Release() {
	if b == nil || !b.released.CompareAndSwap(false, true) {
		return
	}
	dev := b.dev
	if err := b.ctx.queue.enqueue("release "+b.label, func() error {
		dev.Destroy()
		return nil
	}); err != nil {
		// Queue already drained by Close.
		dev.Destroy()
	}
}

func (b *Buffer) usable() error {
	if b == nil {
		return fmt.Errorf("nil buffer")
	}
	if b.released.Load() {
		return fmt.Errorf("%s: %w", b.label, ErrReleased)
	}
	return nil
}

// Image is a two-dimensional RGBA32F image stored in a linear buffer, row
// major, 16 bytes per pixel.
type Image struct {
	*Buffer
	width  int
	height int
}

// PixelSize is the byte size of one RGBA32F image pixel.
const PixelSize = 16

// Width returns the image width in pixels.
func (img *Image) Width() int { return img.width }

// Height returns the image height in pixels.
func (img *Image) Height() int { return img.height }

// GraphicsResource is a buffer shared with the display pipeline. Compute
// work may touch it only between AcquireGraphicsResource and
// ReleaseGraphicsResource; outside that bracket the graphics side owns it.
type GraphicsResource struct {
	buf *Buffer

	mu       sync.Mutex
	acquired bool
}

// Buffer returns the shared buffer.
func (r *GraphicsResource) Buffer() *Buffer { return r.buf }

// Acquired reports whether the compute queue currently owns the resource.
func (r *GraphicsResource) Acquired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acquired
}
