// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package chunk

import "fmt"

// Coord is the integer grid coordinate of a chunk.
type Coord struct {
	X, Y, Z int32
}

// coordBias maps the signed 20-bit range [-2^19, 2^19) onto [0, 2^20).
const (
	coordBits = 20
	coordBias = 1 << (coordBits - 1)
	coordMask = 1<<coordBits - 1
)

// Key packs the coordinate into 60 bits, 20 bits per axis. Coordinates
// outside [-524288, 524287] alias.
func (c Coord) Key() uint64 {
	x := uint64(int64(c.X)+coordBias) & coordMask
	y := uint64(int64(c.Y)+coordBias) & coordMask
	z := uint64(int64(c.Z)+coordBias) & coordMask
	return x<<(2*coordBits) | y<<coordBits | z
}

// CoordFromKey unpacks a Key.
func CoordFromKey(k uint64) Coord {
	return Coord{
		X: int32(int64(k>>(2*coordBits)&coordMask) - coordBias),
		Y: int32(int64(k>>coordBits&coordMask) - coordBias),
		Z: int32(int64(k&coordMask) - coordBias),
	}
}

// Add returns c + o.
func (c Coord) Add(o Coord) Coord {
	return Coord{c.X + o.X, c.Y + o.Y, c.Z + o.Z}
}

// Origin returns the world-space minimum corner of the chunk.
func (c Coord) Origin(size int) [3]float32 {
	s := float32(size)
	return [3]float32{float32(c.X) * s, float32(c.Y) * s, float32(c.Z) * s}
}

// Center returns the world-space center of the chunk.
func (c Coord) Center(size int) [3]float32 {
	o := c.Origin(size)
	h := float32(size) / 2
	return [3]float32{o[0] + h, o[1] + h, o[2] + h}
}

// DistanceSq returns the squared grid distance between two chunks.
func (c Coord) DistanceSq(o Coord) int64 {
	dx := int64(c.X - o.X)
	dy := int64(c.Y - o.Y)
	dz := int64(c.Z - o.Z)
	return dx*dx + dy*dy + dz*dz
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}
