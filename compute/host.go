// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/wavefront/internal/parallel"
)

// HostBackendName is the name the host backend registers under.
const HostBackendName = "host"

// HostKernel is the host implementation of a compute entry point. It is
// called once per invocation with the global invocation id; invocations of
// one dispatch run concurrently.
type HostKernel func(a *Args, id [3]uint32)

var (
	hostKernelsMu sync.RWMutex
	hostKernels   = make(map[string]HostKernel)
)

// RegisterHostKernel installs the host implementation of the entry point
// called entry. The host device can only build kernels whose entry point
// has a registered implementation.
func RegisterHostKernel(entry string, fn HostKernel) {
	hostKernelsMu.Lock()
	defer hostKernelsMu.Unlock()
	hostKernels[entry] = fn
}

func lookupHostKernel(entry string) (HostKernel, bool) {
	hostKernelsMu.RLock()
	defer hostKernelsMu.RUnlock()
	fn, ok := hostKernels[entry]
	return fn, ok
}

// HostKernels returns the registered host entry point names, sorted.
func HostKernels() []string {
	hostKernelsMu.RLock()
	defer hostKernelsMu.RUnlock()
	names := make([]string, 0, len(hostKernels))
	for name := range hostKernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterBackend(hostBackend{}, 10)
}

// hostBackend exposes the reference device that executes kernels on the
// CPU. It is always available.
type hostBackend struct{}

func (hostBackend) Name() string { return HostBackendName }

func (hostBackend) Devices() []DeviceInfo {
	return []DeviceInfo{hostInfo()}
}

func hostInfo() DeviceInfo {
	n := runtime.GOMAXPROCS(0)
	return DeviceInfo{
		Backend:          HostBackendName,
		Name:             fmt.Sprintf("host reference device (%d workers)", n),
		Type:             DeviceTypeCPU,
		ComputeUnits:     n,
		MaxWorkgroupSize: 1024,
		MaxBufferSize:    math.MaxInt32,
		ImageSupport:     true,
	}
}

// Open returns a host device. Host memory is directly visible to any
// display that reads it back, so interop needs no extra setup.
func (hostBackend) Open(info DeviceInfo, _ gpucontext.DeviceProvider) (Device, error) {
	return &hostDevice{info: info, pool: parallel.NewWorkerPool(info.ComputeUnits)}, nil
}

type hostDevice struct {
	info DeviceInfo
	pool *parallel.WorkerPool
}

// hostBuffer keeps memory as 32-bit words so typed and atomic views are
// always aligned.
type hostBuffer struct {
	words []uint32
	size  int
}

func newHostBuffer(size int) *hostBuffer {
	return &hostBuffer{words: make([]uint32, (size+3)/4), size: size}
}

func (b *hostBuffer) Size() int { return b.size }
func (b *hostBuffer) Destroy()  { b.words = nil }

func (b *hostBuffer) bytes() []byte {
	if len(b.words) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&b.words[0])), len(b.words)*4)[:b.size]
}

func (b *hostBuffer) floats() []float32 {
	if len(b.words) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.words[0])), len(b.words))
}

func (d *hostDevice) Info() DeviceInfo { return d.info }

func (d *hostDevice) NewBuffer(_ string, size int) (DeviceBuffer, error) {
	return newHostBuffer(size), nil
}

func asHost(buf DeviceBuffer) (*hostBuffer, error) {
	hb, ok := buf.(*hostBuffer)
	if !ok {
		return nil, fmt.Errorf("host: foreign buffer %T", buf)
	}
	if hb.words == nil && hb.size > 0 {
		return nil, fmt.Errorf("host: buffer destroyed")
	}
	return hb, nil
}

func (d *hostDevice) Write(buf DeviceBuffer, offset int, data []byte) error {
	hb, err := asHost(buf)
	if err != nil {
		return err
	}
	copy(hb.bytes()[offset:], data)
	return nil
}

func (d *hostDevice) Read(buf DeviceBuffer, offset int, dst []byte) error {
	hb, err := asHost(buf)
	if err != nil {
		return err
	}
	copy(dst, hb.bytes()[offset:])
	return nil
}

func (d *hostDevice) Copy(src, dst DeviceBuffer, srcOffset, dstOffset, size int) error {
	s, err := asHost(src)
	if err != nil {
		return err
	}
	t, err := asHost(dst)
	if err != nil {
		return err
	}
	copy(t.bytes()[dstOffset:dstOffset+size], s.bytes()[srcOffset:srcOffset+size])
	return nil
}

type hostProgram struct {
	fn      HostKernel
	entry   EntryPoint
	defines map[string]string
}

func (*hostProgram) Destroy() {}

func (d *hostDevice) Compile(src *ProgramSource) (DeviceProgram, string, error) {
	label, entry := src.Label, src.Entry
	fn, ok := lookupHostKernel(entry.Name)
	if !ok {
		msg := fmt.Sprintf("%s: error: no host implementation registered for entry point %q", label, entry.Name)
		return nil, msg, fmt.Errorf("host: no implementation for %s", entry.Name)
	}
	if n := int(entry.GroupInvocations()); n > d.info.MaxWorkgroupSize {
		msg := fmt.Sprintf("%s: error: workgroup of %d invocations exceeds limit %d", label, n, d.info.MaxWorkgroupSize)
		return nil, msg, fmt.Errorf("host: workgroup too large")
	}
	return &hostProgram{fn: fn, entry: *entry, defines: src.Defines}, "", nil
}

func (d *hostDevice) Dispatch(prog DeviceProgram, bindings []Binding, groups [3]uint32) error {
	hp, ok := prog.(*hostProgram)
	if !ok {
		return fmt.Errorf("host: foreign program %T", prog)
	}

	args := &Args{defines: hp.defines}
	for _, b := range bindings {
		var hb *hostBuffer
		if b.Param.IsBuffer() {
			var err error
			if hb, err = asHost(b.Buffer); err != nil {
				return fmt.Errorf("binding %d (%s): %w", b.Param.Binding, b.Param.Name, err)
			}
		} else {
			hb = newHostBuffer(len(b.Data))
			copy(hb.bytes(), b.Data)
		}
		args.set(b.Param.Binding, hb)
	}

	wg := hp.entry.WorkgroupSize
	total := int(groups[0] * groups[1] * groups[2])
	return d.pool.ForEach(total, func(g int) {
		gx := uint32(g) % groups[0]
		gy := (uint32(g) / groups[0]) % groups[1]
		gz := uint32(g) / (groups[0] * groups[1])
		for lz := range wg[2] {
			for ly := range wg[1] {
				for lx := range wg[0] {
					hp.fn(args, [3]uint32{gx*wg[0] + lx, gy*wg[1] + ly, gz*wg[2] + lz})
				}
			}
		}
	})
}

func (d *hostDevice) Close() {
	d.pool.Close()
}

// Args gives host kernels typed access to the buffers and values bound to
// a dispatch, indexed by binding number.
type Args struct {
	slots   []*hostBuffer
	defines map[string]string
}

// Defined reports whether the program was built with name defined.
func (a *Args) Defined(name string) bool {
	_, ok := a.defines[name]
	return ok
}

// Define returns the value name was defined to, or "".
func (a *Args) Define(name string) string { return a.defines[name] }

func (a *Args) set(binding uint32, hb *hostBuffer) {
	for uint32(len(a.slots)) <= binding {
		a.slots = append(a.slots, nil)
	}
	a.slots[binding] = hb
}

func (a *Args) slot(binding uint32) *hostBuffer {
	if int(binding) >= len(a.slots) || a.slots[binding] == nil {
		panic(fmt.Sprintf("compute: binding %d not bound", binding))
	}
	return a.slots[binding]
}

// Uint32s returns the binding as 32-bit words.
func (a *Args) Uint32s(binding uint32) []uint32 { return a.slot(binding).words }

// Float32s returns the binding as 32-bit floats.
func (a *Args) Float32s(binding uint32) []float32 { return a.slot(binding).floats() }

// Uint32 returns the first word of a binding, typically a u32 uniform.
func (a *Args) Uint32(binding uint32) uint32 { return a.slot(binding).words[0] }

// Float32 returns the first float of a binding.
func (a *Args) Float32(binding uint32) float32 { return a.slot(binding).floats()[0] }

// Vec4 returns the first four floats of a binding.
func (a *Args) Vec4(binding uint32) [4]float32 {
	f := a.slot(binding).floats()
	return [4]float32{f[0], f[1], f[2], f[3]}
}

// AtomicAdd adds delta to word i of a binding and returns the old value.
func (a *Args) AtomicAdd(binding uint32, i int, delta uint32) uint32 {
	return atomic.AddUint32(&a.slot(binding).words[i], delta) - delta
}

// AtomicLoad reads word i of a binding atomically.
func (a *Args) AtomicLoad(binding uint32, i int) uint32 {
	return atomic.LoadUint32(&a.slot(binding).words[i])
}

// AtomicStore writes word i of a binding atomically.
func (a *Args) AtomicStore(binding uint32, i int, v uint32) {
	atomic.StoreUint32(&a.slot(binding).words[i], v)
}
