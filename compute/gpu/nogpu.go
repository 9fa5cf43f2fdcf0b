//go:build nogpu

// Package gpu is empty when built with the nogpu tag; only the host backend
// is registered.
package gpu
