// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package chunk

import "github.com/gogpu/voxel/face"

// CallID identifies one in-flight pipeline request.
type CallID uint64

// VoxelResult is the outcome of a voxel generation request. Voxels holds one
// material byte per cell (size^3 bytes, x fastest, then y, then z), or nil
// with Err set when generation failed.
type VoxelResult struct {
	Voxels []byte
	Err    error
}

// MeshResult is the outcome of a mesh request. A nil Faces slice with a nil
// Err is a valid empty mesh.
type MeshResult struct {
	Faces []face.Face
	Err   error
}

// Pipeline generates voxels and meshes asynchronously. The done callbacks
// may run on any goroutine, exactly once per call, and must not block.
type Pipeline interface {
	// GenerateVoxels starts voxel generation for coord.
	GenerateVoxels(coord Coord, done func(VoxelResult)) CallID

	// GenerateMesh starts meshing of voxels for coord. voxels is only
	// read until done is called.
	GenerateMesh(coord Coord, voxels []byte, done func(MeshResult)) CallID

	// Cleanup releases transient resources of a completed call.
	Cleanup(id CallID)
}

// Kind tells which pipeline stage a Completion belongs to.
type Kind uint8

// Completion kinds.
const (
	KindVoxels Kind = iota
	KindMesh
)

func (k Kind) String() string {
	if k == KindMesh {
		return "mesh"
	}
	return "voxels"
}

// Completion is the message a pipeline callback posts to the manager. It is
// processed on the manager's goroutine during Tick.
type Completion struct {
	CallID CallID
	Coord  Coord
	Kind   Kind
	Voxels []byte
	Faces  []face.Face
	Err    error
}

// Codec compresses retained voxel payloads.
type Codec interface {
	Encode(dst, voxels []byte) ([]byte, error)
	Decode(dst, data []byte) ([]byte, error)
}
