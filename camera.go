// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package voxel

import (
	"github.com/chewxy/math32"

	"github.com/gogpu/voxel/chunk"
	"github.com/gogpu/voxel/facepool"
	"github.com/gogpu/voxel/render"
)

// maxPitch keeps the view direction away from the up vector.
const maxPitch = 89 * math32.Pi / 180

// Camera is a perspective camera in world voxel units. Yaw zero looks down
// -Z; positive pitch looks up.
type Camera struct {
	Position [3]float32

	// Yaw and Pitch are in radians.
	Yaw, Pitch float32

	// FovY is the vertical field of view in radians.
	FovY float32

	// Aspect is width over height.
	Aspect float32

	Near, Far float32
}

// DefaultCamera returns a camera at pos with a 70 degree field of view.
func DefaultCamera(pos [3]float32) Camera {
	return Camera{
		Position: pos,
		FovY:     70 * math32.Pi / 180,
		Aspect:   16.0 / 9.0,
		Near:     0.1,
		Far:      1000,
	}
}

// Forward returns the unit view direction.
func (c Camera) Forward() [3]float32 {
	pitch := clamp(c.Pitch, -maxPitch, maxPitch)
	cp := math32.Cos(pitch)
	return [3]float32{
		math32.Sin(c.Yaw) * cp,
		math32.Sin(pitch),
		-math32.Cos(c.Yaw) * cp,
	}
}

// Chunk returns the coordinate of the chunk containing the camera.
func (c Camera) Chunk(size int) chunk.Coord {
	s := float32(size)
	return chunk.Coord{
		X: int32(math32.Floor(c.Position[0] / s)),
		Y: int32(math32.Floor(c.Position[1] / s)),
		Z: int32(math32.Floor(c.Position[2] / s)),
	}
}

// DistanceSq returns the squared distance from the camera to p.
func (c Camera) DistanceSq(p [3]float32) float32 {
	dx := p[0] - c.Position[0]
	dy := p[1] - c.Position[1]
	dz := p[2] - c.Position[2]
	return dx*dx + dy*dy + dz*dz
}

// Facing reports whether any face of a bucket can face the camera. The
// bucket's faces share one direction and lie within half of its anchor
// along that direction's axis, so they all face away once the camera is
// behind the farthest plane.
func (c Camera) Facing(meta facepool.BucketMeta, half float32) bool {
	n := meta.Group.Normal()
	d := (c.Position[0]-meta.Anchor[0])*n[0] +
		(c.Position[1]-meta.Anchor[1])*n[1] +
		(c.Position[2]-meta.Anchor[2])*n[2]
	return d > -half
}

// FrontToBack orders buckets by ascending anchor distance from the camera.
func (c Camera) FrontToBack(a, b facepool.BucketMeta) int {
	da, db := c.DistanceSq(a.Anchor), c.DistanceSq(b.Anchor)
	switch {
	case da < db:
		return -1
	case da > db:
		return 1
	}
	return 0
}

// ViewProj returns the column-major view-projection matrix with a [0, 1]
// depth range.
func (c Camera) ViewProj() [16]float32 {
	return mul(c.projection(), c.view())
}

// Uniforms returns the face shader uniforms for the camera.
func (c Camera) Uniforms(lightDir [3]float32) render.Uniforms {
	return render.Uniforms{
		ViewProj: c.ViewProj(),
		Eye:      c.Position,
		LightDir: normalize(lightDir),
	}
}

func (c Camera) view() [16]float32 {
	f := c.Forward()
	s := normalize(cross(f, [3]float32{0, 1, 0}))
	u := cross(s, f)
	e := c.Position
	return [16]float32{
		s[0], u[0], -f[0], 0,
		s[1], u[1], -f[1], 0,
		s[2], u[2], -f[2], 0,
		-dot(s, e), -dot(u, e), dot(f, e), 1,
	}
}

func (c Camera) projection() [16]float32 {
	f := 1 / math32.Tan(c.FovY/2)
	aspect := c.Aspect
	if aspect == 0 {
		aspect = 1
	}
	r := c.Far / (c.Near - c.Far)
	return [16]float32{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, r, -1,
		0, 0, c.Near * r, 0,
	}
}

// mul returns a*b for column-major matrices.
func mul(a, b [16]float32) [16]float32 {
	var m [16]float32
	for col := range 4 {
		for row := range 4 {
			var sum float32
			for k := range 4 {
				sum += a[k*4+row] * b[col*4+k]
			}
			m[col*4+row] = sum
		}
	}
	return m
}

func dot(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func cross(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func normalize(v [3]float32) [3]float32 {
	l := math32.Sqrt(dot(v, v))
	if l == 0 {
		return v
	}
	return [3]float32{v[0] / l, v[1] / l, v[2] / l}
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(hi, v))
}
