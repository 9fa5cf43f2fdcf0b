// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package bvh builds the linear bounding volume hierarchy the integrator
// traverses on the compute device.
//
// Nodes are stored depth first with the root at index 0. The first child of
// an interior node follows it directly; the second child is at Offset. A leaf
// references Count consecutive primitives of Order starting at Offset.
package bvh

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gogpu/wavefront/scene"
)

// MaxLeafSize is the largest number of triangles stored in one leaf.
const MaxLeafSize = 4

// NodeSize is the device size of a Node in bytes.
const NodeSize = 32

// Node is one linear BVH node.
type Node struct {
	Min    mgl32.Vec3
	Max    mgl32.Vec3
	Offset uint32

	// Count is zero for interior nodes.
	Count uint16

	// Axis is the split axis of an interior node.
	Axis uint8
}

// Leaf reports whether n references primitives.
func (n *Node) Leaf() bool { return n.Count > 0 }

// AppendBinary appends the device layout of n.
func (n *Node) AppendBinary(b []byte) ([]byte, error) {
	le := binary.LittleEndian
	for _, f := range [3]float32{n.Min[0], n.Min[1], n.Min[2]} {
		b = le.AppendUint32(b, math.Float32bits(f))
	}
	b = le.AppendUint32(b, n.Offset)
	for _, f := range [3]float32{n.Max[0], n.Max[1], n.Max[2]} {
		b = le.AppendUint32(b, math.Float32bits(f))
	}
	return le.AppendUint32(b, uint32(n.Count)|uint32(n.Axis)<<16), nil
}

// BVH is a built hierarchy over a triangle list.
type BVH struct {
	nodes []Node
	order []uint32
}

// Nodes returns the linear node array. It is empty for an empty input.
func (b *BVH) Nodes() []Node { return b.nodes }

// Order returns original triangle indices in leaf order.
func (b *BVH) Order() []uint32 { return b.order }

type primitive struct {
	lo, hi, centroid mgl32.Vec3
	index            uint32
}

// Build constructs a hierarchy by splitting at the midpoint of the longest
// centroid axis, falling back to a median split when the midpoint separates
// nothing.
func Build(tris []scene.Triangle) *BVH {
	prims := make([]primitive, len(tris))
	for i := range tris {
		p := &prims[i]
		p.lo, p.hi = tris[i].V[0].Position, tris[i].V[0].Position
		for _, v := range tris[i].V[1:] {
			p.lo, p.hi = minVec(p.lo, v.Position), maxVec(p.hi, v.Position)
		}
		p.centroid = p.lo.Add(p.hi).Mul(0.5)
		p.index = uint32(i)
	}

	b := &BVH{
		nodes: make([]Node, 0, 2*len(prims)/MaxLeafSize+1),
		order: make([]uint32, 0, len(prims)),
	}
	if len(prims) > 0 {
		b.build(prims)
	}
	return b
}

func (b *BVH) build(prims []primitive) {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{})

	lo, hi := prims[0].lo, prims[0].hi
	clo, chi := prims[0].centroid, prims[0].centroid
	for _, p := range prims[1:] {
		lo, hi = minVec(lo, p.lo), maxVec(hi, p.hi)
		clo, chi = minVec(clo, p.centroid), maxVec(chi, p.centroid)
	}

	makeLeaf := func() {
		b.nodes[idx] = Node{Min: lo, Max: hi, Offset: uint32(len(b.order)), Count: uint16(len(prims))}
		for _, p := range prims {
			b.order = append(b.order, p.index)
		}
	}

	if len(prims) <= MaxLeafSize {
		makeLeaf()
		return
	}

	extent := chi.Sub(clo)
	axis := 0
	if extent[1] > extent[axis] {
		axis = 1
	}
	if extent[2] > extent[axis] {
		axis = 2
	}
	if extent[axis] <= 0 {
		// Coincident centroids: split by count.
		axis = 0
	}

	mid := partition(prims, axis, (clo[axis]+chi[axis])*0.5)
	if mid == 0 || mid == len(prims) {
		sort.Slice(prims, func(i, j int) bool { return prims[i].centroid[axis] < prims[j].centroid[axis] })
		mid = len(prims) / 2
	}

	b.build(prims[:mid])
	second := uint32(len(b.nodes))
	b.build(prims[mid:])
	b.nodes[idx] = Node{Min: lo, Max: hi, Offset: second, Axis: uint8(axis)}
}

// partition moves primitives with centroid below split to the front and
// returns their count.
func partition(prims []primitive, axis int, split float32) int {
	i := 0
	for j := range prims {
		if prims[j].centroid[axis] < split {
			prims[i], prims[j] = prims[j], prims[i]
			i++
		}
	}
	return i
}

func minVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{math32.Min(a[0], b[0]), math32.Min(a[1], b[1]), math32.Min(a[2], b[2])}
}

func maxVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{math32.Max(a[0], b[0]), math32.Max(a[1], b[1]), math32.Max(a[2], b[2])}
}
