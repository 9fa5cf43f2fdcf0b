// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"errors"
	"fmt"
	"strings"
)

// Package errors.
var (
	// ErrNoDevice is returned by NewContext when no registered backend
	// exposes a device matching the selector.
	ErrNoDevice = errors.New("compute: no compute device found")

	// ErrClosed is returned when a Context is used after Close.
	ErrClosed = errors.New("compute: context closed")

	// ErrNoInterop is returned when a graphics resource is requested from a
	// context created without display interop handles.
	ErrNoInterop = errors.New("compute: context has no graphics interop")

	// ErrNotAcquired is reported when compute work touches a graphics
	// resource that the compute queue does not currently own.
	ErrNotAcquired = errors.New("compute: graphics resource not acquired")

	// ErrAlreadyAcquired is returned when a graphics resource is acquired twice.
	ErrAlreadyAcquired = errors.New("compute: graphics resource already acquired")

	// ErrReleased is returned when a released buffer is used.
	ErrReleased = errors.New("compute: buffer released")
)

// SourceError reports a kernel source file that could not be read.
type SourceError struct {
	File string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("compute: read kernel source %s: %v", e.File, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// BuildError reports a kernel program that failed to preprocess or compile.
// Log holds the complete build log, preprocessor diagnostics first and the
// device compiler output after them.
type BuildError struct {
	File  string
	Entry string
	Log   string
	Err   error
}

func (e *BuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "compute: error building %s", e.File)
	if e.Entry != "" {
		fmt.Fprintf(&b, " (%s)", e.Entry)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Log != "" {
		b.WriteString("\n")
		b.WriteString(e.Log)
	}
	return b.String()
}

func (e *BuildError) Unwrap() error { return e.Err }

// EntryPointNotFoundError reports a kernel whose source does not declare the
// requested compute entry point.
type EntryPointNotFoundError struct {
	File  string
	Entry string
}

func (e *EntryPointNotFoundError) Error() string {
	return fmt.Sprintf("compute: entry point %q not found in %s", e.Entry, e.File)
}

// ArgumentBindError reports an argument that does not match the entry
// point's declared signature.
type ArgumentBindError struct {
	Kernel string
	Index  uint32
	Reason string
}

func (e *ArgumentBindError) Error() string {
	return fmt.Sprintf("compute: failed to set kernel argument #%d of %s: %s", e.Index, e.Kernel, e.Reason)
}

// DispatchError reports a dispatch rejected by the context or the device.
type DispatchError struct {
	Kernel string
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("compute: dispatch %s: %v", e.Kernel, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// TransferError reports a failed host<->device or device<->device copy.
type TransferError struct {
	Op     string
	Buffer string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("compute: %s %s: %v", e.Op, e.Buffer, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
