// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package worldgen

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/gogpu/voxel/chunk"
)

// Shape selects the voxel fill function.
type Shape string

// Fill shapes.
const (
	// ShapeHeightfield is layered fractal value-noise terrain.
	ShapeHeightfield Shape = "heightfield"

	// ShapePlane fills every cell below BaseHeight.
	ShapePlane Shape = "plane"

	// ShapeSphere is a solid ball of radius Amplitude centered at the origin
	// at height BaseHeight.
	ShapeSphere Shape = "sphere"
)

// Terrain describes the generated world.
type Terrain struct {
	Shape      Shape   `yaml:"shape"`
	Seed       uint64  `yaml:"seed"`
	BaseHeight float32 `yaml:"base_height"`
	Amplitude  float32 `yaml:"amplitude"`
	Frequency  float32 `yaml:"frequency"`
	Octaves    int     `yaml:"octaves"`
	WaterLevel float32 `yaml:"water_level"`
	SnowLine   float32 `yaml:"snow_line"`
}

// DefaultTerrain returns rolling hills around y = 16.
func DefaultTerrain() Terrain {
	return Terrain{
		Shape:      ShapeHeightfield,
		Seed:       1,
		BaseHeight: 16,
		Amplitude:  12,
		Frequency:  1.0 / 48,
		Octaves:    4,
		WaterLevel: 10,
		SnowLine:   26,
	}
}

func (t Terrain) validate() error {
	switch t.Shape {
	case ShapeHeightfield, ShapePlane, ShapeSphere:
	default:
		return fmt.Errorf("%w: shape %q", ErrInvalidConfig, t.Shape)
	}
	if t.Octaves < 0 || t.Octaves > 16 {
		return fmt.Errorf("%w: octaves %d", ErrInvalidConfig, t.Octaves)
	}
	return nil
}

// Fill writes the voxels of chunk c into dst, which must hold size^3 bytes.
// Cells are ordered x fastest, then y, then z.
func (t Terrain) Fill(dst []byte, c chunk.Coord, size int) {
	origin := c.Origin(size)
	ox, oy, oz := int(origin[0]), int(origin[1]), int(origin[2])

	switch t.Shape {
	case ShapePlane:
		for z := range size {
			for y := range size {
				m := Air
				if float32(oy+y) < t.BaseHeight {
					m = Stone
				}
				row := (z*size + y) * size
				for x := range size {
					dst[row+x] = m
				}
			}
		}

	case ShapeSphere:
		r2 := t.Amplitude * t.Amplitude
		for z := range size {
			for y := range size {
				for x := range size {
					dx := float32(ox+x) + 0.5
					dy := float32(oy+y) + 0.5 - t.BaseHeight
					dz := float32(oz+z) + 0.5
					m := Air
					if dx*dx+dy*dy+dz*dz <= r2 {
						m = Stone
					}
					dst[(z*size+y)*size+x] = m
				}
			}
		}

	default:
		for z := range size {
			for x := range size {
				h := t.Height(float32(ox+x), float32(oz+z))
				for y := range size {
					dst[(z*size+y)*size+x] = t.column(float32(oy+y), h)
				}
			}
		}
	}
}

// Height returns the terrain surface height at world column (x, z).
func (t Terrain) Height(x, z float32) float32 {
	return t.BaseHeight + t.Amplitude*(2*fbm(x*t.Frequency, z*t.Frequency, t.Octaves, t.Seed)-1)
}

// column picks the material of a cell at height y under surface h.
func (t Terrain) column(y, h float32) Material {
	switch {
	case y >= h:
		if y < t.WaterLevel {
			return Water
		}
		return Air
	case y >= h-1:
		switch {
		case h >= t.SnowLine:
			return Snow
		case h <= t.WaterLevel+1:
			return Sand
		}
		return Grass
	case y >= h-4:
		return Dirt
	}
	return Stone
}

// fbm is fractal value noise in [0, 1).
func fbm(x, z float32, octaves int, seed uint64) float32 {
	if octaves <= 0 {
		octaves = 1
	}
	var sum, norm float32
	amp := float32(1)
	for o := range octaves {
		sum += amp * valueNoise(x, z, seed+uint64(o)*0x9E3779B97F4A7C15)
		norm += amp
		amp *= 0.5
		x *= 2
		z *= 2
	}
	return sum / norm
}

func valueNoise(x, z float32, seed uint64) float32 {
	x0, z0 := math32.Floor(x), math32.Floor(z)
	fx, fz := smooth(x-x0), smooth(z-z0)
	ix, iz := int64(x0), int64(z0)

	a := lattice(ix, iz, seed)
	b := lattice(ix+1, iz, seed)
	c := lattice(ix, iz+1, seed)
	d := lattice(ix+1, iz+1, seed)

	top := a + (b-a)*fx
	bottom := c + (d-c)*fx
	return top + (bottom-top)*fz
}

func smooth(t float32) float32 {
	return t * t * (3 - 2*t)
}

// lattice hashes an integer lattice point to [0, 1).
func lattice(x, z int64, seed uint64) float32 {
	h := uint64(x)*0x8CB92BA72F3D8DD7 ^ uint64(z)*0xD6E8FEB86659FD93 ^ seed
	h ^= h >> 32
	h *= 0xD6E8FEB86659FD93
	h ^= h >> 32
	return float32(h>>40) / (1 << 24)
}
