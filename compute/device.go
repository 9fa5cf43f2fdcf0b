// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gogpu/gpucontext"
)

// DeviceType classifies a compute device.
type DeviceType int

const (
	// DeviceTypeAny matches every device in a DeviceSelector.
	DeviceTypeAny DeviceType = iota
	DeviceTypeDiscreteGPU
	DeviceTypeIntegratedGPU
	DeviceTypeCPU
	DeviceTypeOther
)

// String returns a human-readable device type.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeAny:
		return "Any"
	case DeviceTypeDiscreteGPU:
		return "DiscreteGPU"
	case DeviceTypeIntegratedGPU:
		return "IntegratedGPU"
	case DeviceTypeCPU:
		return "CPU"
	case DeviceTypeOther:
		return "Other"
	default:
		return fmt.Sprintf("DeviceType(%d)", int(t))
	}
}

// DeviceInfo describes an enumerated device and its capability limits.
type DeviceInfo struct {
	Backend string
	Name    string
	Type    DeviceType

	// Index identifies the device within its backend.
	Index int

	ComputeUnits     int
	MaxWorkgroupSize int
	MaxBufferSize    int64
	ImageSupport     bool
}

// DeviceSelector filters enumerated devices. Zero fields match anything.
type DeviceSelector struct {
	// Backend is the registered backend name, e.g. "vulkan" or "host".
	Backend string

	// Name matches a case-insensitive substring of the device name.
	Name string

	Type DeviceType
}

func (s DeviceSelector) matches(info DeviceInfo) bool {
	if s.Backend != "" && !strings.EqualFold(s.Backend, info.Backend) {
		return false
	}
	if s.Name != "" && !strings.Contains(strings.ToLower(info.Name), strings.ToLower(s.Name)) {
		return false
	}
	return s.Type == DeviceTypeAny || s.Type == info.Type
}

// DeviceBuffer is backend device memory.
type DeviceBuffer interface {
	Size() int
	Destroy()
}

// DeviceProgram is a backend compiled pipeline for one entry point.
type DeviceProgram interface {
	Destroy()
}

// ProgramSource is a preprocessed kernel ready for a backend compiler.
type ProgramSource struct {
	Label  string
	Source string
	Entry  *EntryPoint

	// Defines holds the preprocessor definitions in effect after the
	// source was expanded.
	Defines map[string]string
}

// Binding is one resolved kernel argument handed to a backend dispatch.
// Buffer is set for buffer slots, Data for uniform slots.
type Binding struct {
	Param  Param
	Buffer DeviceBuffer
	Data   []byte
}

// Device is an opened compute device. Methods are synchronous; the Context
// serializes every call that touches device memory on its queue goroutine,
// so implementations need not be safe for concurrent use except for
// NewBuffer and Compile.
type Device interface {
	Info() DeviceInfo

	NewBuffer(label string, size int) (DeviceBuffer, error)
	Write(buf DeviceBuffer, offset int, data []byte) error
	Read(buf DeviceBuffer, offset int, dst []byte) error
	Copy(src, dst DeviceBuffer, srcOffset, dstOffset, size int) error

	// Compile builds a program. The returned log is kept on failure and
	// success alike.
	Compile(src *ProgramSource) (DeviceProgram, string, error)
	Dispatch(prog DeviceProgram, bindings []Binding, groups [3]uint32) error

	Close()
}

// Backend enumerates and opens devices of one kind.
type Backend interface {
	Name() string
	Devices() []DeviceInfo

	// Open creates a device. A non-nil interop provider requests a device
	// able to share buffers with that provider's display pipeline.
	Open(info DeviceInfo, interop gpucontext.DeviceProvider) (Device, error)
}

type backendEntry struct {
	backend  Backend
	priority int
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]backendEntry)
)

// RegisterBackend makes a backend available to NewContext. Backends with a
// higher priority are enumerated first. Registering a name twice replaces
// the previous entry.
//
// Example registration:
//
//	func init() {
//	    compute.RegisterBackend(&vulkanBackend{}, 100)
//	}
func RegisterBackend(b Backend, priority int) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[b.Name()] = backendEntry{backend: b, priority: priority}
}

// Backends returns registered backend names, highest priority first.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	entries := make([]backendEntry, 0, len(backends))
	for _, e := range backends {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority > entries[j].priority
		}
		return entries[i].backend.Name() < entries[j].backend.Name()
	})

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.backend.Name()
	}
	return names
}

func lookupBackend(name string) (Backend, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	e, ok := backends[name]
	return e.backend, ok
}

// EnumerateDevices lists the devices of every registered backend that match
// sel, in backend priority order. Backends excluded by sel.Backend are not
// queried.
func EnumerateDevices(sel DeviceSelector) []DeviceInfo {
	var out []DeviceInfo
	for _, name := range Backends() {
		if sel.Backend != "" && !strings.EqualFold(sel.Backend, name) {
			continue
		}
		b, ok := lookupBackend(name)
		if !ok {
			continue
		}
		for _, info := range b.Devices() {
			if sel.matches(info) {
				out = append(out, info)
			}
		}
	}
	return out
}
