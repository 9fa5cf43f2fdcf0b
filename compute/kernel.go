// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// Program is an immutable compiled kernel. A Kernel swaps whole programs;
// a Program never changes after it is built.
type Program struct {
	File       string
	Entry      EntryPoint
	Source     string
	Log        string
	Generation uint64

	dev DeviceProgram
}

// argument is one bound kernel argument.
type argument struct {
	buf  *Buffer
	data []byte
}

// Kernel is a named entry point compiled from a source file. Its program
// can be rebuilt at runtime with Reload while dispatches are in flight.
type Kernel struct {
	ctx   *Context
	file  string
	entry string
	defs  []string

	prog atomic.Pointer[Program]
	gen  atomic.Uint64

	mu   sync.Mutex
	args map[uint32]argument
}

// Name returns "file:entry".
func (k *Kernel) Name() string { return k.file + ":" + k.entry }

// Program returns the active program.
func (k *Kernel) Program() *Program { return k.prog.Load() }

// Definitions returns a copy of the kernel's preprocessor definitions.
func (k *Kernel) Definitions() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.defs...)
}

// build preprocesses, inspects and compiles the kernel source.
func (k *Kernel) build(defs []string) (*Program, error) {
	src, defines, ppLog, err := preprocess(k.ctx.sources, k.file, defs)
	if err != nil {
		var se *SourceError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &BuildError{File: k.file, Entry: k.entry, Log: ppLog, Err: err}
	}

	params, diags := parseBindings(src)
	if len(diags) > 0 {
		return nil, &BuildError{File: k.file, Entry: k.entry, Log: joinLog(ppLog, diags...), Err: errors.New("invalid bindings")}
	}

	ep, err := findEntryPoint(src, k.entry)
	if err != nil {
		return nil, &BuildError{File: k.file, Entry: k.entry, Log: joinLog(ppLog, err.Error()), Err: err}
	}
	if ep == nil {
		return nil, &EntryPointNotFoundError{File: k.file, Entry: k.entry}
	}
	ep.Params = params

	dev, devLog, err := k.ctx.dev.Compile(&ProgramSource{
		Label:   k.Name(),
		Source:  src,
		Entry:   ep,
		Defines: defines,
	})
	log := joinLog(ppLog, devLog)
	if err != nil {
		return nil, &BuildError{File: k.file, Entry: k.entry, Log: log, Err: err}
	}

	p := &Program{
		File:       k.file,
		Entry:      *ep,
		Source:     src,
		Log:        log,
		Generation: k.gen.Add(1),
		dev:        dev,
	}
	slogger().Debug("compute: kernel built",
		"kernel", k.Name(),
		"generation", p.Generation,
		"workgroup", ep.WorkgroupSize,
		"params", len(ep.Params))
	return p, nil
}

func joinLog(head string, lines ...string) string {
	out := head
	for _, l := range lines {
		if l == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += l
	}
	return out
}

// Reload rebuilds the kernel from source with its current definitions. On
// success the new program replaces the old one atomically; dispatches
// enqueued earlier keep the program they captured. On failure the previous
// program stays active and the error is returned.
func (k *Kernel) Reload() error {
	return k.Redefine(k.Definitions()...)
}

// Redefine rebuilds the kernel with a new set of preprocessor definitions.
// It has the failure semantics of Reload; the definitions are only kept when
// the build succeeds.
func (k *Kernel) Redefine(defs ...string) error {
	p, err := k.build(defs)
	if err != nil {
		return err
	}

	k.mu.Lock()
	k.defs = append([]string(nil), defs...)
	k.mu.Unlock()

	old := k.prog.Swap(p)
	if old != nil && old.dev != nil {
		k.ctx.retire(k.Name(), old.dev)
	}
	return nil
}

// SetArgument binds raw bytes to a uniform slot. The byte count must equal
// the declared size of the slot.
func (k *Kernel) SetArgument(index uint32, data []byte) error {
	p, err := k.param(index)
	if err != nil {
		return err
	}
	if p.IsBuffer() {
		return &ArgumentBindError{Kernel: k.Name(), Index: index, Reason: fmt.Sprintf("slot %s is a %s buffer, not a value", p.Name, p.Kind)}
	}
	if len(data) != p.Size {
		return &ArgumentBindError{Kernel: k.Name(), Index: index, Reason: fmt.Sprintf("size %d does not match %s (%s, %d bytes)", len(data), p.Name, p.Type, p.Size)}
	}

	k.mu.Lock()
	k.args[index] = argument{data: append([]byte(nil), data...)}
	k.mu.Unlock()
	return nil
}

// SetBuffer binds a buffer to a storage slot.
func (k *Kernel) SetBuffer(index uint32, buf *Buffer) error {
	p, err := k.param(index)
	if err != nil {
		return err
	}
	if !p.IsBuffer() {
		return &ArgumentBindError{Kernel: k.Name(), Index: index, Reason: fmt.Sprintf("slot %s takes a %d-byte value, not a buffer", p.Name, p.Size)}
	}
	if err := buf.usable(); err != nil {
		return &ArgumentBindError{Kernel: k.Name(), Index: index, Reason: err.Error()}
	}
	if buf.ctx != k.ctx {
		return &ArgumentBindError{Kernel: k.Name(), Index: index, Reason: "buffer belongs to another context"}
	}

	k.mu.Lock()
	k.args[index] = argument{buf: buf}
	k.mu.Unlock()
	return nil
}

// SetImage binds an image to a storage slot.
func (k *Kernel) SetImage(index uint32, img *Image) error {
	if img == nil {
		return &ArgumentBindError{Kernel: k.Name(), Index: index, Reason: "nil image"}
	}
	return k.SetBuffer(index, img.Buffer)
}

// SetUint32 binds a u32 uniform.
func (k *Kernel) SetUint32(index uint32, v uint32) error {
	return k.SetArgument(index, binary.LittleEndian.AppendUint32(nil, v))
}

// SetFloat32 binds an f32 uniform.
func (k *Kernel) SetFloat32(index uint32, v float32) error {
	return k.SetArgument(index, binary.LittleEndian.AppendUint32(nil, math.Float32bits(v)))
}

// SetVec2u binds a vec2<u32> uniform.
func (k *Kernel) SetVec2u(index uint32, x, y uint32) error {
	b := binary.LittleEndian.AppendUint32(nil, x)
	return k.SetArgument(index, binary.LittleEndian.AppendUint32(b, y))
}

// SetVec4u binds a vec4<u32> uniform.
func (k *Kernel) SetVec4u(index uint32, v [4]uint32) error {
	b := make([]byte, 0, 16)
	for _, c := range v {
		b = binary.LittleEndian.AppendUint32(b, c)
	}
	return k.SetArgument(index, b)
}

// SetVec4 binds a vec4<f32> uniform.
func (k *Kernel) SetVec4(index uint32, v [4]float32) error {
	b := make([]byte, 0, 16)
	for _, c := range v {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(c))
	}
	return k.SetArgument(index, b)
}

func (k *Kernel) param(index uint32) (Param, error) {
	p := k.prog.Load()
	param, ok := p.Entry.Param(index)
	if !ok {
		return Param{}, &ArgumentBindError{Kernel: k.Name(), Index: index, Reason: fmt.Sprintf("index out of range for %s", p.Entry.Name)}
	}
	return param, nil
}

// snapshot resolves the active program and the bound arguments into a
// dispatch-ready binding list. Every declared slot must be bound.
func (k *Kernel) snapshot() (*Program, []Binding, []*Buffer, error) {
	p := k.prog.Load()

	k.mu.Lock()
	defer k.mu.Unlock()

	bindings := make([]Binding, 0, len(p.Entry.Params))
	var bufs []*Buffer
	for _, param := range p.Entry.Params {
		arg, ok := k.args[param.Binding]
		switch {
		case !ok:
			return nil, nil, nil, fmt.Errorf("argument #%d (%s) not bound", param.Binding, param.Name)
		case param.IsBuffer() && arg.buf == nil:
			return nil, nil, nil, fmt.Errorf("argument #%d (%s) needs a buffer", param.Binding, param.Name)
		case !param.IsBuffer() && len(arg.data) != param.Size:
			return nil, nil, nil, fmt.Errorf("argument #%d (%s) needs %d bytes", param.Binding, param.Name, param.Size)
		}
		b := Binding{Param: param, Data: arg.data}
		if arg.buf != nil {
			if err := arg.buf.usable(); err != nil {
				return nil, nil, nil, err
			}
			b.Buffer = arg.buf.dev
			bufs = append(bufs, arg.buf)
		}
		bindings = append(bindings, b)
	}
	return p, bindings, bufs, nil
}
