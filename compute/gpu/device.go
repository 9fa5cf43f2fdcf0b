//go:build !nogpu

package gpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/wavefront/compute"
)

// fenceTimeout bounds every wait for GPU completion.
const fenceTimeout = 5 * time.Second

const storageUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

type device struct {
	info   compute.DeviceInfo
	device hal.Device
	queue  hal.Queue
	owned  bool
}

func newDevice(info compute.DeviceInfo, d hal.Device, q hal.Queue, owned bool) *device {
	return &device{info: info, device: d, queue: q, owned: owned}
}

type buffer struct {
	buf  hal.Buffer
	size int
	dev  *device
}

func (b *buffer) Size() int { return b.size }

func (b *buffer) Destroy() {
	if b.buf != nil {
		b.dev.device.DestroyBuffer(b.buf)
		b.buf = nil
	}
}

func align4(n int) int { return (n + 3) &^ 3 }

func (d *device) Info() compute.DeviceInfo { return d.info }

func (d *device) NewBuffer(label string, size int) (compute.DeviceBuffer, error) {
	hb, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(align4(size)),
		Usage: storageUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("gpu: create buffer %s: %w", label, err)
	}
	return &buffer{buf: hb, size: size, dev: d}, nil
}

func (d *device) asBuffer(b compute.DeviceBuffer) (*buffer, error) {
	gb, ok := b.(*buffer)
	if !ok {
		return nil, fmt.Errorf("gpu: foreign buffer %T", b)
	}
	if gb.buf == nil {
		return nil, fmt.Errorf("gpu: buffer destroyed")
	}
	return gb, nil
}

// Write uploads data. Transfers must be 4-byte aligned, so an unaligned
// range is widened by reading back the surrounding words first.
func (d *device) Write(b compute.DeviceBuffer, offset int, data []byte) error {
	gb, err := d.asBuffer(b)
	if err != nil {
		return err
	}
	start := offset &^ 3
	end := align4(offset + len(data))
	if start == offset && end == offset+len(data) {
		d.queue.WriteBuffer(gb.buf, uint64(offset), data)
		return nil
	}
	window := make([]byte, end-start)
	if err := d.readAligned(gb, start, window); err != nil {
		return err
	}
	copy(window[offset-start:], data)
	d.queue.WriteBuffer(gb.buf, uint64(start), window)
	return nil
}

func (d *device) Read(b compute.DeviceBuffer, offset int, dst []byte) error {
	gb, err := d.asBuffer(b)
	if err != nil {
		return err
	}
	start := offset &^ 3
	end := align4(offset + len(dst))
	window := make([]byte, end-start)
	if err := d.readAligned(gb, start, window); err != nil {
		return err
	}
	copy(dst, window[offset-start:])
	return nil
}

// readAligned copies an aligned range into a staging buffer and maps it.
func (d *device) readAligned(gb *buffer, offset int, dst []byte) error {
	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "staging-readback",
		Size:  uint64(len(dst)),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create staging buffer: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	err = d.submit("readback", func(enc hal.CommandEncoder) {
		enc.CopyBufferToBuffer(gb.buf, staging, []hal.BufferCopy{
			{SrcOffset: uint64(offset), DstOffset: 0, Size: uint64(len(dst))},
		})
	})
	if err != nil {
		return err
	}
	if err := d.queue.ReadBuffer(staging, 0, dst); err != nil {
		return fmt.Errorf("gpu: readback: %w", err)
	}
	return nil
}

func (d *device) Copy(src, dst compute.DeviceBuffer, srcOffset, dstOffset, size int) error {
	s, err := d.asBuffer(src)
	if err != nil {
		return err
	}
	t, err := d.asBuffer(dst)
	if err != nil {
		return err
	}
	if srcOffset%4 != 0 || dstOffset%4 != 0 || size%4 != 0 {
		tmp := make([]byte, size)
		if err := d.Read(s, srcOffset, tmp); err != nil {
			return err
		}
		return d.Write(t, dstOffset, tmp)
	}
	return d.submit("copy", func(enc hal.CommandEncoder) {
		enc.CopyBufferToBuffer(s.buf, t.buf, []hal.BufferCopy{
			{SrcOffset: uint64(srcOffset), DstOffset: uint64(dstOffset), Size: uint64(size)},
		})
	})
}

// submit records one command buffer and waits for the GPU to finish it.
func (d *device) submit(label string, record func(enc hal.CommandEncoder)) error {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("gpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("gpu: begin encoding: %w", err)
	}
	record(encoder)
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("gpu: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("gpu: create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("gpu: submit %s: %w", label, err)
	}
	ok, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("gpu: wait for %s: %w", label, err)
	}
	if !ok {
		return fmt.Errorf("gpu: %s timed out after %v", label, fenceTimeout)
	}
	return nil
}

type program struct {
	dev      *device
	module   hal.ShaderModule
	bgLayout hal.BindGroupLayout
	layout   hal.PipelineLayout
	pipeline hal.ComputePipeline
	entry    compute.EntryPoint
}

func (p *program) Destroy() {
	d := p.dev.device
	if p.pipeline != nil {
		d.DestroyComputePipeline(p.pipeline)
	}
	if p.layout != nil {
		d.DestroyPipelineLayout(p.layout)
	}
	if p.bgLayout != nil {
		d.DestroyBindGroupLayout(p.bgLayout)
	}
	if p.module != nil {
		d.DestroyShaderModule(p.module)
	}
}

// CompileSPIRV translates WGSL to SPIR-V words.
func CompileSPIRV(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, err
	}
	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

func bindingType(k compute.ParamKind) gputypes.BufferBindingType {
	switch k {
	case compute.ParamUniform:
		return gputypes.BufferBindingTypeUniform
	case compute.ParamStorageRead:
		return gputypes.BufferBindingTypeReadOnlyStorage
	default:
		return gputypes.BufferBindingTypeStorage
	}
}

func layoutEntries(params []compute.Param) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, len(params))
	for i, p := range params {
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    p.Binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: bindingType(p.Kind)},
		}
	}
	return entries
}

func (d *device) Compile(src *compute.ProgramSource) (compute.DeviceProgram, string, error) {
	spirv, err := CompileSPIRV(src.Source)
	if err != nil {
		return nil, fmt.Sprintf("%s: error: %v", src.Label, err), fmt.Errorf("gpu: compile %s: %w", src.Label, err)
	}

	p := &program{dev: d, entry: *src.Entry}
	fail := func(what string, err error) (compute.DeviceProgram, string, error) {
		p.Destroy()
		msg := fmt.Sprintf("%s: error: %s: %v", src.Label, what, err)
		return nil, msg, fmt.Errorf("gpu: %s: %w", what, err)
	}

	if p.module, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  src.Label,
		Source: hal.ShaderSource{SPIRV: spirv},
	}); err != nil {
		return fail("create shader module", err)
	}
	if p.bgLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   src.Label + "_bgl",
		Entries: layoutEntries(src.Entry.Params),
	}); err != nil {
		return fail("create bind group layout", err)
	}
	if p.layout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            src.Label + "_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bgLayout},
	}); err != nil {
		return fail("create pipeline layout", err)
	}
	if p.pipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  src.Label,
		Layout: p.layout,
		Compute: hal.ComputeState{
			Module:     p.module,
			EntryPoint: src.Entry.Name,
		},
	}); err != nil {
		return fail("create compute pipeline", err)
	}

	compute.Logger().Debug("gpu: pipeline built", "kernel", src.Label, "bindings", len(src.Entry.Params))
	return p, "", nil
}

// bufferEntry binds the first size bytes of a buffer.
func bufferEntry(binding uint32, handle uintptr, size int) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding:  binding,
		Resource: gputypes.BufferBinding{Buffer: handle, Size: uint64(size)},
	}
}

// Dispatch runs one compute pass. Uniform arguments are uploaded into
// transient buffers that live until the pass completes.
func (d *device) Dispatch(prog compute.DeviceProgram, bindings []compute.Binding, groups [3]uint32) error {
	p, ok := prog.(*program)
	if !ok {
		return fmt.Errorf("gpu: foreign program %T", prog)
	}

	var transient []hal.Buffer
	defer func() {
		for _, b := range transient {
			d.device.DestroyBuffer(b)
		}
	}()

	entries := make([]gputypes.BindGroupEntry, len(bindings))
	for i, b := range bindings {
		var hb hal.Buffer
		var size int
		if b.Param.IsBuffer() {
			gb, err := d.asBuffer(b.Buffer)
			if err != nil {
				return fmt.Errorf("binding %d (%s): %w", b.Param.Binding, b.Param.Name, err)
			}
			hb, size = gb.buf, align4(gb.size)
		} else {
			size = max(align4(len(b.Data)), 16)
			ub, err := d.device.CreateBuffer(&hal.BufferDescriptor{
				Label: b.Param.Name,
				Size:  uint64(size),
				Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				return fmt.Errorf("gpu: create uniform %s: %w", b.Param.Name, err)
			}
			transient = append(transient, ub)
			data := make([]byte, size)
			copy(data, b.Data)
			d.queue.WriteBuffer(ub, 0, data)
			hb = ub
		}
		entries[i] = bufferEntry(b.Param.Binding, hb.NativeHandle(), size)
	}

	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.entry.Name + "_bg",
		Layout:  p.bgLayout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("gpu: create bind group: %w", err)
	}
	defer d.device.DestroyBindGroup(bg)

	return d.submit(p.entry.Name, func(enc hal.CommandEncoder) {
		pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: p.entry.Name})
		pass.SetPipeline(p.pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(groups[0], groups[1], groups[2])
		pass.End()
	})
}

// Close destroys the device unless it belongs to a display provider.
func (d *device) Close() {
	if d.owned && d.device != nil {
		d.device.Destroy()
	}
	d.device = nil
}
