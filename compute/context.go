// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
)

// Option configures a Context during creation.
type Option func(*contextOptions)

type contextOptions struct {
	sources fs.FS
}

// WithSources sets the filesystem kernel sources and includes are read
// from. Its root is the include root. The default is the current directory.
func WithSources(fsys fs.FS) Option {
	return func(o *contextOptions) {
		o.sources = fsys
	}
}

// Context owns one compute device and its single in-order queue.
//
// All transfers and dispatches issued through a Context execute strictly in
// enqueue order. Only WriteBuffer blocks the caller; everything else is
// asynchronous and is awaited with Finish.
type Context struct {
	dev     Device
	info    DeviceInfo
	interop bool
	sources fs.FS
	queue   *queue

	mu      sync.Mutex
	kernels []*Kernel

	closed atomic.Bool
}

// NewContext opens the first device matching sel across all registered
// backends and creates its queue. A non-nil interop provider enables
// graphics interop so buffers can be shared with that display pipeline.
func NewContext(sel DeviceSelector, interop gpucontext.DeviceProvider, opts ...Option) (*Context, error) {
	o := contextOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sources == nil {
		o.sources = os.DirFS(".")
	}

	devices := EnumerateDevices(sel)
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w (selector %+v, backends %v)", ErrNoDevice, sel, Backends())
	}

	info := devices[0]
	b, ok := lookupBackend(info.Backend)
	if !ok {
		return nil, fmt.Errorf("%w: backend %q unregistered", ErrNoDevice, info.Backend)
	}
	dev, err := b.Open(info, interop)
	if err != nil {
		return nil, fmt.Errorf("compute: open %s device %q: %w", info.Backend, info.Name, err)
	}

	c := &Context{
		dev:     dev,
		info:    dev.Info(),
		interop: interop != nil,
		sources: o.sources,
		queue:   newQueue(),
	}
	c.logDevice()
	return c, nil
}

func (c *Context) logDevice() {
	slogger().Info("compute: device selected",
		"backend", c.info.Backend,
		"name", c.info.Name,
		"type", c.info.Type.String(),
		"interop", c.interop)
	slogger().Info("compute: device limits",
		"compute_units", c.info.ComputeUnits,
		"max_workgroup_size", c.info.MaxWorkgroupSize,
		"max_buffer_size", c.info.MaxBufferSize,
		"image_support", c.info.ImageSupport)
}

// Info returns the opened device's description.
func (c *Context) Info() DeviceInfo { return c.info }

// Interop reports whether the context shares resources with a display.
func (c *Context) Interop() bool { return c.interop }

// Sources returns the kernel source filesystem.
func (c *Context) Sources() fs.FS { return c.sources }

// CreateBuffer allocates size bytes of zeroed device memory.
func (c *Context) CreateBuffer(label string, size int) (*Buffer, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if size <= 0 {
		return nil, fmt.Errorf("compute: buffer %s: invalid size %d", label, size)
	}
	dev, err := c.dev.NewBuffer(label, size)
	if err != nil {
		return nil, fmt.Errorf("compute: create buffer %s (%d bytes): %w", label, size, err)
	}
	slogger().Debug("compute: buffer created", "label", label, "size", size)
	return &Buffer{ctx: c, label: label, size: size, dev: dev}, nil
}

// CreateImage allocates a width x height RGBA32F image.
func (c *Context) CreateImage(label string, width, height int) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("compute: image %s: invalid dimensions %dx%d", label, width, height)
	}
	buf, err := c.CreateBuffer(label, width*height*PixelSize)
	if err != nil {
		return nil, err
	}
	return &Image{Buffer: buf, width: width, height: height}, nil
}

// WriteBuffer copies data into buf at offset zero and blocks until the copy
// has completed on the device.
func (c *Context) WriteBuffer(buf *Buffer, data []byte) error {
	return c.WriteBufferAt(buf, 0, data)
}

// WriteBufferAt is WriteBuffer with a destination offset.
func (c *Context) WriteBufferAt(buf *Buffer, offset int, data []byte) error {
	if err := c.checkRange("write", buf, offset, len(data)); err != nil {
		return err
	}
	err := c.queue.enqueueWait("write "+buf.label, func() error {
		return c.dev.Write(buf.dev, offset, data)
	})
	if err != nil {
		return &TransferError{Op: "write", Buffer: buf.label, Err: err}
	}
	return nil
}

// ReadBuffer enqueues a copy of the first len(dst) bytes of buf into dst.
// dst must not be touched until Finish returns.
func (c *Context) ReadBuffer(buf *Buffer, dst []byte) error {
	if err := c.checkRange("read", buf, 0, len(dst)); err != nil {
		return err
	}
	return c.enqueue("read "+buf.label, func() error {
		if err := c.dev.Read(buf.dev, 0, dst); err != nil {
			return &TransferError{Op: "read", Buffer: buf.label, Err: err}
		}
		return nil
	})
}

// CopyBuffer enqueues a device-to-device copy of size bytes.
func (c *Context) CopyBuffer(src, dst *Buffer, srcOffset, dstOffset, size int) error {
	if err := c.checkRange("copy from", src, srcOffset, size); err != nil {
		return err
	}
	if err := c.checkRange("copy to", dst, dstOffset, size); err != nil {
		return err
	}
	return c.enqueue("copy "+src.label+" -> "+dst.label, func() error {
		if err := c.dev.Copy(src.dev, dst.dev, srcOffset, dstOffset, size); err != nil {
			return &TransferError{Op: "copy", Buffer: src.label + " -> " + dst.label, Err: err}
		}
		return nil
	})
}

func (c *Context) checkRange(op string, buf *Buffer, offset, size int) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := buf.usable(); err != nil {
		return &TransferError{Op: op, Err: err}
	}
	if offset < 0 || size < 0 || offset+size > buf.size {
		return &TransferError{Op: op, Buffer: buf.label, Err: fmt.Errorf("range [%d, %d) outside %d-byte buffer", offset, offset+size, buf.size)}
	}
	if r := buf.shared.Load(); r != nil && !r.Acquired() {
		return &TransferError{Op: op, Buffer: buf.label, Err: ErrNotAcquired}
	}
	return nil
}

func (c *Context) enqueue(label string, run func() error) error {
	if err := c.queue.enqueue(label, run); err != nil {
		return &TransferError{Op: label, Err: err}
	}
	return nil
}

// ExecuteKernel enqueues a one-dimensional dispatch covering workSize
// invocations, rounded up to whole workgroups.
func (c *Context) ExecuteKernel(k *Kernel, workSize int) error {
	return c.dispatch(k, workSize, 1)
}

// ExecuteKernel2D enqueues a two-dimensional dispatch covering width x
// height invocations, tiled in the entry point's workgroup size.
func (c *Context) ExecuteKernel2D(k *Kernel, width, height int) error {
	return c.dispatch(k, width, height)
}

func (c *Context) dispatch(k *Kernel, x, y int) error {
	if c.closed.Load() {
		return &DispatchError{Kernel: k.Name(), Err: ErrClosed}
	}
	if k.ctx != c {
		return &DispatchError{Kernel: k.Name(), Err: fmt.Errorf("kernel belongs to another context")}
	}
	if x <= 0 || y <= 0 {
		return &DispatchError{Kernel: k.Name(), Err: fmt.Errorf("empty dispatch %dx%d", x, y)}
	}

	p, bindings, bufs, err := k.snapshot()
	if err != nil {
		return &DispatchError{Kernel: k.Name(), Err: err}
	}
	for _, b := range bufs {
		if r := b.shared.Load(); r != nil && !r.Acquired() {
			return &DispatchError{Kernel: k.Name(), Err: fmt.Errorf("%s: %w", b.label, ErrNotAcquired)}
		}
	}

	wg := p.Entry.WorkgroupSize
	groups := [3]uint32{
		ceilDiv(uint32(x), wg[0]),
		ceilDiv(uint32(y), wg[1]),
		1,
	}

	name := k.Name()
	err = c.queue.enqueue("dispatch "+name, func() error {
		if err := c.dev.Dispatch(p.dev, bindings, groups); err != nil {
			return &DispatchError{Kernel: name, Err: err}
		}
		return nil
	})
	if err != nil {
		return &DispatchError{Kernel: name, Err: err}
	}
	return nil
}

// ceilDiv returns ceil(n / d).
func ceilDiv(n, d uint32) uint32 {
	return (n + d - 1) / d
}

// Finish blocks until every enqueued command has completed and returns the
// first asynchronous failure since the previous Finish.
func (c *Context) Finish() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.queue.finish()
}

// CreateKernel builds entry from file with the given preprocessor
// definitions (NAME or NAME=VALUE) and registers it for ReloadKernels.
func (c *Context) CreateKernel(file, entry string, defs ...string) (*Kernel, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	k := &Kernel{
		ctx:   c,
		file:  file,
		entry: entry,
		defs:  append([]string(nil), defs...),
		args:  make(map[uint32]argument),
	}
	p, err := k.build(k.defs)
	if err != nil {
		return nil, err
	}
	k.prog.Store(p)

	c.mu.Lock()
	c.kernels = append(c.kernels, k)
	c.mu.Unlock()
	return k, nil
}

// ReloadKernels rebuilds every kernel created by this context from source.
// Failures are logged and swallowed: a kernel that fails to build keeps its
// previous program. It returns the number of kernels rebuilt.
func (c *Context) ReloadKernels() int {
	c.mu.Lock()
	kernels := append([]*Kernel(nil), c.kernels...)
	c.mu.Unlock()

	reloaded := 0
	for _, k := range kernels {
		if err := k.Reload(); err != nil {
			slogger().Warn("compute: kernel reload failed, keeping previous program",
				"kernel", k.Name(), "err", err)
			continue
		}
		reloaded++
	}
	slogger().Info("compute: kernels reloaded", "reloaded", reloaded, "total", len(kernels))
	return reloaded
}

// retire destroys a replaced program after all work enqueued so far.
func (c *Context) retire(name string, dev DeviceProgram) {
	if err := c.queue.enqueue("retire "+name, func() error {
		dev.Destroy()
		return nil
	}); err != nil {
		dev.Destroy()
	}
}

// RegisterGraphicsResource marks buf as shared with the display pipeline.
// The graphics side owns it until AcquireGraphicsResource.
func (c *Context) RegisterGraphicsResource(buf *Buffer) (*GraphicsResource, error) {
	if !c.interop {
		return nil, ErrNoInterop
	}
	if err := buf.usable(); err != nil {
		return nil, err
	}
	r := &GraphicsResource{buf: buf}
	if !buf.shared.CompareAndSwap(nil, r) {
		return nil, fmt.Errorf("compute: %s is already a graphics resource", buf.label)
	}
	return r, nil
}

// AcquireGraphicsResource hands r to the compute queue. Work enqueued after
// the call may access it.
func (c *Context) AcquireGraphicsResource(r *GraphicsResource) error {
	if r == nil || r.buf.ctx != c {
		return fmt.Errorf("compute: graphics resource does not belong to this context")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.acquired {
		return fmt.Errorf("compute: %s: %w", r.buf.label, ErrAlreadyAcquired)
	}
	r.acquired = true
	return nil
}

// ReleaseGraphicsResource hands r back to the graphics side once all work
// enqueued before the call has completed. It blocks until then.
func (c *Context) ReleaseGraphicsResource(r *GraphicsResource) error {
	if r == nil || r.buf.ctx != c {
		return fmt.Errorf("compute: graphics resource does not belong to this context")
	}
	r.mu.Lock()
	if !r.acquired {
		r.mu.Unlock()
		return fmt.Errorf("compute: %s: %w", r.buf.label, ErrNotAcquired)
	}
	r.mu.Unlock()

	err := c.Finish()

	r.mu.Lock()
	r.acquired = false
	r.mu.Unlock()
	return err
}

// Close drains the queue and releases the device. Buffers and kernels of the
// context must not be used afterwards.
func (c *Context) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.queue.close()

	c.mu.Lock()
	for _, k := range c.kernels {
		if p := k.prog.Load(); p != nil && p.dev != nil {
			p.dev.Destroy()
		}
	}
	c.kernels = nil
	c.mu.Unlock()

	c.dev.Close()
}
