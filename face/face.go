// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package face defines the fixed-size geometry record produced by the voxel
// mesher and consumed by the GPU draw path, and the slab layout used to pack
// faces into bucket-sized ranges of a shared buffer.
//
// A Face is one axis-aligned quad, encoded as ten little-endian 32-bit words
// (40 bytes). The face shader reads the buffer as array<u32> and unpacks:
//
//	position  3 x f32  offset  0
//	size      2 x f32  offset 12
//	direction u32      offset 20
//	color     4 x f32  offset 24
package face

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// Size is the encoded byte size of one Face.
	Size = 40

	// VerticesPerFace is the number of vertices pulled per quad.
	VerticesPerFace = 4

	// IndicesPerFace is the number of indices per quad (two triangles).
	IndicesPerFace = 6
)

// Direction is the face group tag: which of the six axis-aligned directions
// a face points to. It is used for back-face culling of whole buckets.
type Direction uint32

// Face directions. The numbering matches the normal_dir field of the shader.
const (
	PosX Direction = iota
	NegX
	PosY
	NegY
	PosZ
	NegZ

	// DirectionCount is the number of face directions.
	DirectionCount = 6
)

var directionNames = [DirectionCount]string{"+X", "-X", "+Y", "-Y", "+Z", "-Z"}

var directionNormals = [DirectionCount][3]float32{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

// String returns the direction as a signed axis name, e.g. "+X".
func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Direction(%d)", uint32(d))
	}
	return directionNames[d]
}

// Valid reports whether d is one of the six face directions.
func (d Direction) Valid() bool {
	return d < DirectionCount
}

// Normal returns the unit normal of the direction.
func (d Direction) Normal() [3]float32 {
	if !d.Valid() {
		return [3]float32{}
	}
	return directionNormals[d]
}

// Axis returns 0, 1 or 2 for X, Y or Z.
func (d Direction) Axis() int {
	return int(d / 2)
}

// Tangents returns the two in-plane axes of the direction: the axes after
// Axis in cyclic order.
func (d Direction) Tangents() (u, v int) {
	a := d.Axis()
	return (a + 1) % 3, (a + 2) % 3
}

// Positive reports whether the direction points along the positive axis.
func (d Direction) Positive() bool {
	return d%2 == 0
}

// Opposite returns the direction pointing the other way along the same axis.
func (d Direction) Opposite() Direction {
	return d ^ 1
}

// Face is one renderable quad of a chunk surface mesh.
type Face struct {
	// Position is the minimum corner of the quad in world voxel units.
	// The coordinate on the face's own axis is the plane of the quad.
	Position [3]float32

	// Size is the extent of the quad along its two in-plane axes, in
	// Direction.Tangents order. A face produced without greedy merging has
	// Size {1, 1}.
	Size [2]float32

	// Direction is the face group tag.
	Direction Direction

	// Color is the RGBA material payload.
	Color [4]float32
}

// Encode writes the face into dst, which must be at least Size bytes.
func (f Face) Encode(dst []byte) {
	_ = dst[Size-1]
	le := binary.LittleEndian
	le.PutUint32(dst[0:4], math.Float32bits(f.Position[0]))
	le.PutUint32(dst[4:8], math.Float32bits(f.Position[1]))
	le.PutUint32(dst[8:12], math.Float32bits(f.Position[2]))
	le.PutUint32(dst[12:16], math.Float32bits(f.Size[0]))
	le.PutUint32(dst[16:20], math.Float32bits(f.Size[1]))
	le.PutUint32(dst[20:24], uint32(f.Direction))
	le.PutUint32(dst[24:28], math.Float32bits(f.Color[0]))
	le.PutUint32(dst[28:32], math.Float32bits(f.Color[1]))
	le.PutUint32(dst[32:36], math.Float32bits(f.Color[2]))
	le.PutUint32(dst[36:40], math.Float32bits(f.Color[3]))
}

// AppendTo appends the encoded face to dst and returns the extended slice.
func (f Face) AppendTo(dst []byte) []byte {
	n := len(dst)
	dst = append(dst, make([]byte, Size)...)
	f.Encode(dst[n:])
	return dst
}

// Decode reads a face from src, which must be at least Size bytes.
func Decode(src []byte) Face {
	_ = src[Size-1]
	le := binary.LittleEndian
	f32 := func(off int) float32 { return math.Float32frombits(le.Uint32(src[off : off+4])) }
	return Face{
		Position:  [3]float32{f32(0), f32(4), f32(8)},
		Size:      [2]float32{f32(12), f32(16)},
		Direction: Direction(le.Uint32(src[20:24])),
		Color:     [4]float32{f32(24), f32(28), f32(32), f32(36)},
	}
}
