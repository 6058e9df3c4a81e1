// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package face

// Layout describes the shared face buffer as BucketCount contiguous slabs of
// BucketCapacity faces each. A bucket index maps to its byte range by plain
// multiplication, which is why the capacity is uniform.
type Layout struct {
	BucketCount    int
	BucketCapacity int
}

// SlabBytes returns the byte size of one slab.
func (l Layout) SlabBytes() uint64 {
	return uint64(l.BucketCapacity) * Size
}

// BufferSize returns the total byte size of the face buffer.
func (l Layout) BufferSize() uint64 {
	return uint64(l.BucketCount) * l.SlabBytes()
}

// SlabOffset returns the byte offset of slab i.
func (l Layout) SlabOffset(i int) uint64 {
	return uint64(i) * l.SlabBytes()
}

// SlotOffset returns the byte offset of face slot within slab i.
func (l Layout) SlotOffset(i, slot int) uint64 {
	return uint64(l.FaceIndex(i, slot)) * Size
}

// FaceIndex returns the global face index of slot within slab i.
func (l Layout) FaceIndex(i, slot int) int {
	return i*l.BucketCapacity + slot
}

// BaseVertex returns the first vertex of slab i for vertex pulling, where
// each face contributes VerticesPerFace vertices.
func (l Layout) BaseVertex(i int) int32 {
	return int32(i * l.BucketCapacity * VerticesPerFace)
}

// IndexPattern returns the shared quad index list for one slab:
// 0,1,2, 0,2,3, 4,5,6, 4,6,7, ... for BucketCapacity quads.
func (l Layout) IndexPattern() []uint32 {
	indices := make([]uint32, l.BucketCapacity*IndicesPerFace)
	for q := range l.BucketCapacity {
		base := uint32(q * VerticesPerFace)
		i := q * IndicesPerFace
		indices[i+0] = base + 0
		indices[i+1] = base + 1
		indices[i+2] = base + 2
		indices[i+3] = base + 0
		indices[i+4] = base + 2
		indices[i+5] = base + 3
	}
	return indices
}
