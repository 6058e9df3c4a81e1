// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package chunk

// State is the lifecycle state of a chunk.
type State uint8

// Chunk lifecycle states.
const (
	// Unrequested chunks are unknown to the manager.
	Unrequested State = iota

	// VoxelPending chunks wait for, or are running, voxel generation.
	VoxelPending

	// VoxelReady chunks hold voxels and wait for a mesh slot.
	VoxelReady

	// MeshPending chunks are being meshed.
	MeshPending

	// MeshReady chunks have installed geometry, possibly none. A dirty
	// chunk keeps this state while it waits in the mesh queue.
	MeshReady

	// Evicted chunks had their geometry and voxels dropped while a
	// pipeline call was outstanding. The chunk is forgotten, and reads as
	// Unrequested, once that call completes.
	Evicted
)

func (s State) String() string {
	switch s {
	case Unrequested:
		return "Unrequested"
	case VoxelPending:
		return "VoxelPending"
	case VoxelReady:
		return "VoxelReady"
	case MeshPending:
		return "MeshPending"
	case MeshReady:
		return "MeshReady"
	case Evicted:
		return "Evicted"
	default:
		return "Unknown"
	}
}
