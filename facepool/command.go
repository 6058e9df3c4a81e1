// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package facepool

import (
	"encoding/binary"

	"github.com/gogpu/voxel/face"
)

// CommandSize is the byte size of one DrawCommand in the indirect buffer.
const CommandSize = 20 // 5 * sizeof(uint32)

// DrawCommand is the indexed indirect draw record of one bucket. Its
// encoding matches DrawIndexedIndirectArgs, so the command table can be
// uploaded as is and consumed by DrawIndexedIndirect at offset b*CommandSize.
type DrawCommand struct {
	// IndexCount is occupancy * face.IndicesPerFace.
	IndexCount uint32

	// InstanceCount is 1 while the bucket is drawn and 0 while it is free
	// or masked out.
	InstanceCount uint32

	// FirstIndex is always 0: every bucket shares one index pattern.
	FirstIndex uint32

	// BaseVertex selects the bucket's slab, bucket * capacity * 4.
	BaseVertex int32

	// FirstInstance carries the bucket index to the shader.
	FirstInstance uint32
}

// Enabled reports whether the bucket is drawn this frame, that is, it is
// occupied and not masked out.
func (c DrawCommand) Enabled() bool {
	return c.InstanceCount != 0
}

// draws reports whether the command is enabled and has faces. Empty
// buckets are never submitted.
func (c DrawCommand) draws() bool {
	return c.InstanceCount != 0 && c.IndexCount != 0
}

// encode writes the command into dst in DrawIndexedIndirectArgs layout.
func (c DrawCommand) encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], c.IndexCount)
	binary.LittleEndian.PutUint32(dst[4:8], c.InstanceCount)
	binary.LittleEndian.PutUint32(dst[8:12], c.FirstIndex)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(c.BaseVertex))
	binary.LittleEndian.PutUint32(dst[16:20], c.FirstInstance)
}

// enabledCommand returns the drawn command for bucket b with n faces.
func enabledCommand(l face.Layout, b Bucket, n int) DrawCommand {
	return DrawCommand{
		IndexCount:    uint32(n * face.IndicesPerFace),
		InstanceCount: 1,
		BaseVertex:    l.BaseVertex(int(b)),
		FirstInstance: uint32(b),
	}
}

// disabledCommand returns the inert command for bucket b. The slab
// coordinates are kept so the table stays self-describing.
func disabledCommand(l face.Layout, b Bucket) DrawCommand {
	return DrawCommand{
		BaseVertex:    l.BaseVertex(int(b)),
		FirstInstance: uint32(b),
	}
}
