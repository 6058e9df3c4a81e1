// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package worldgen

import (
	"errors"

	"github.com/gogpu/voxel/chunk"
	"github.com/gogpu/voxel/face"
)

// ErrCapacityExceeded is returned when a mesh has more faces than the
// configured bound.
var ErrCapacityExceeded = errors.New("worldgen: mesh face capacity exceeded")

// Mesher turns chunk voxels into faces.
type Mesher struct {
	// Size is the chunk edge length.
	Size int

	// MaxFaces bounds the faces of one mesh. Zero means unbounded.
	MaxFaces int

	// Greedy merges coplanar same-material faces into rectangles.
	Greedy bool

	// Palette colors the faces.
	Palette *Palette
}

// Mesh returns the visible faces of voxels for chunk c, grouped by
// direction in face.Direction order. Faces on the chunk border are always
// emitted. mask is scratch space of Size^2 bytes and may be nil.
func (m *Mesher) Mesh(c chunk.Coord, voxels, mask []byte) ([]face.Face, error) {
	size := m.Size
	if len(mask) < size*size {
		mask = make([]byte, size*size)
	}
	mask = mask[:size*size]
	origin := c.Origin(size)
	stride := [3]int{1, size, size * size}

	var faces []face.Face
	for d := range face.Direction(face.DirectionCount) {
		a := d.Axis()
		u, v := d.Tangents()
		step := 1
		if !d.Positive() {
			step = -1
		}

		for s := range size {
			// visible cells of slice s
			for j := range size {
				for i := range size {
					var p [3]int
					p[a], p[u], p[v] = s, i, j
					idx := p[0]*stride[0] + p[1]*stride[1] + p[2]*stride[2]
					mat := voxels[idx]
					if mat != Air {
						n := s + step
						if n >= 0 && n < size && voxels[idx+step*stride[a]] != Air {
							mat = Air
						}
					}
					mask[j*size+i] = mat
				}
			}

			plane := float32(s)
			if d.Positive() {
				plane++
			}

			for j := range size {
				for i := 0; i < size; {
					mat := mask[j*size+i]
					if mat == Air {
						i++
						continue
					}
					w, h := 1, 1
					if m.Greedy {
						for i+w < size && mask[j*size+i+w] == mat {
							w++
						}
					grow:
						for j+h < size {
							for k := range w {
								if mask[(j+h)*size+i+k] != mat {
									break grow
								}
							}
							h++
						}
					}
					for jj := range h {
						for k := range w {
							mask[(j+jj)*size+i+k] = Air
						}
					}

					if m.MaxFaces > 0 && len(faces) == m.MaxFaces {
						return nil, ErrCapacityExceeded
					}
					var pos [3]float32
					pos[a] = origin[a] + plane
					pos[u] = origin[u] + float32(i)
					pos[v] = origin[v] + float32(j)
					faces = append(faces, face.Face{
						Position:  pos,
						Size:      [2]float32{float32(w), float32(h)},
						Direction: d,
						Color:     m.color(mat),
					})
					i += w
				}
			}
		}
	}
	return faces, nil
}

func (m *Mesher) color(mat Material) [4]float32 {
	if m.Palette == nil {
		return [4]float32{1, 1, 1, 1}
	}
	return m.Palette.Color(mat)
}
