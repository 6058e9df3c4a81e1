// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package voxel

import (
	"testing"

	"github.com/chewxy/math32"

	"github.com/gogpu/voxel/chunk"
	"github.com/gogpu/voxel/face"
	"github.com/gogpu/voxel/facepool"
)

func near(a, b float32) bool {
	return math32.Abs(a-b) < 1e-4
}

func transform(m [16]float32, p [3]float32) [4]float32 {
	var out [4]float32
	for row := range 4 {
		out[row] = m[row]*p[0] + m[4+row]*p[1] + m[8+row]*p[2] + m[12+row]
	}
	return out
}

func TestCameraForward(t *testing.T) {
	tests := []struct {
		yaw, pitch float32
		want       [3]float32
	}{
		{0, 0, [3]float32{0, 0, -1}},
		{math32.Pi / 2, 0, [3]float32{1, 0, 0}},
		{math32.Pi, 0, [3]float32{0, 0, 1}},
	}
	for _, tt := range tests {
		got := Camera{Yaw: tt.yaw, Pitch: tt.pitch}.Forward()
		for i := range got {
			if !near(got[i], tt.want[i]) {
				t.Errorf("Forward(yaw=%v) = %v, want %v", tt.yaw, got, tt.want)
				break
			}
		}
	}

	// Pitch is clamped short of straight up.
	f := Camera{Pitch: math32.Pi}.Forward()
	if f[1] >= 1 || f[1] < 0.99 {
		t.Errorf("Forward(pitch=pi).y = %v, want just below 1", f[1])
	}
}

func TestCameraChunk(t *testing.T) {
	tests := []struct {
		pos  [3]float32
		want chunk.Coord
	}{
		{[3]float32{0, 0, 0}, chunk.Coord{}},
		{[3]float32{7.9, 8, 15}, chunk.Coord{X: 0, Y: 1, Z: 1}},
		{[3]float32{-0.1, -8, -8.5}, chunk.Coord{X: -1, Y: -1, Z: -2}},
	}
	for _, tt := range tests {
		c := Camera{Position: tt.pos}
		if got := c.Chunk(8); got != tt.want {
			t.Errorf("Chunk(%v) = %v, want %v", tt.pos, got, tt.want)
		}
	}
}

func TestCameraFacing(t *testing.T) {
	cam := Camera{Position: [3]float32{0, 20, 0}}
	anchor := [3]float32{0, 4, 0}
	tests := []struct {
		dir  face.Direction
		want bool
	}{
		{face.PosY, true},
		{face.NegY, false},
		{face.PosX, true}, // camera within the slab along X
		{face.NegX, true},
	}
	for _, tt := range tests {
		meta := facepool.BucketMeta{Anchor: anchor, Group: tt.dir}
		if got := cam.Facing(meta, 4); got != tt.want {
			t.Errorf("Facing(%v) = %v, want %v", tt.dir, got, tt.want)
		}
	}

	// Just inside the far plane the underside still counts.
	cam.Position[1] = 7.5
	if !cam.Facing(facepool.BucketMeta{Anchor: anchor, Group: face.NegY}, 4) {
		t.Error("Facing(-Y) from inside the chunk = false")
	}
}

func TestCameraFrontToBack(t *testing.T) {
	cam := Camera{}
	a := facepool.BucketMeta{Anchor: [3]float32{1, 0, 0}}
	b := facepool.BucketMeta{Anchor: [3]float32{0, 0, -5}}
	if cam.FrontToBack(a, b) >= 0 || cam.FrontToBack(b, a) <= 0 || cam.FrontToBack(a, a) != 0 {
		t.Error("FrontToBack does not order by distance")
	}
}

func TestCameraViewProj(t *testing.T) {
	cam := DefaultCamera([3]float32{0, 0, 0})
	m := cam.ViewProj()

	// A point straight ahead lands at the center of clip space with depth
	// inside [0, 1].
	p := transform(m, [3]float32{0, 0, -10})
	if p[3] <= 0 {
		t.Fatalf("w = %v, want positive", p[3])
	}
	x, y, z := p[0]/p[3], p[1]/p[3], p[2]/p[3]
	if !near(x, 0) || !near(y, 0) || z <= 0 || z >= 1 {
		t.Errorf("ndc = (%v, %v, %v)", x, y, z)
	}

	// Points on the near and far planes map to depth 0 and 1.
	if p := transform(m, [3]float32{0, 0, -cam.Near}); !near(p[2]/p[3], 0) {
		t.Errorf("near depth = %v, want 0", p[2]/p[3])
	}
	if p := transform(m, [3]float32{0, 0, -cam.Far}); !near(p[2]/p[3], 1) {
		t.Errorf("far depth = %v, want 1", p[2]/p[3])
	}

	// Behind the camera w is negative.
	if p := transform(m, [3]float32{0, 0, 10}); p[3] >= 0 {
		t.Errorf("w behind camera = %v, want negative", p[3])
	}
}

func TestCameraUniforms(t *testing.T) {
	cam := DefaultCamera([3]float32{1, 2, 3})
	u := cam.Uniforms([3]float32{0, -2, 0})
	if u.Eye != cam.Position {
		t.Errorf("Eye = %v", u.Eye)
	}
	if u.LightDir != [3]float32{0, -1, 0} {
		t.Errorf("LightDir = %v, want normalized", u.LightDir)
	}
	if u.ViewProj != cam.ViewProj() {
		t.Error("ViewProj mismatch")
	}
}
