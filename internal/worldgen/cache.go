// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package worldgen

import (
	"slices"
	"sync"

	"github.com/gogpu/voxel/chunk"
)

// voxelCache keeps recently generated voxels so chunks evicted and
// requested again are not regenerated. It holds at most limit bytes; when
// full, the least recently used quarter is evicted.
//
// voxelCache is safe for concurrent use.
type voxelCache struct {
	mu      sync.Mutex
	entries map[chunk.Coord]*cacheEntry
	limit   int
	size    int
	tick    int64 // Monotonic access counter

	hits, misses uint64
}

type cacheEntry struct {
	voxels []byte
	atime  int64
}

func newVoxelCache(limit int) *voxelCache {
	return &voxelCache{entries: make(map[chunk.Coord]*cacheEntry), limit: limit}
}

// get returns a copy of the cached voxels of c.
func (vc *voxelCache) get(c chunk.Coord) ([]byte, bool) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	e, ok := vc.entries[c]
	if !ok {
		vc.misses++
		return nil, false
	}
	vc.hits++
	vc.tick++
	e.atime = vc.tick
	return slices.Clone(e.voxels), true
}

// put stores a copy of voxels for c.
func (vc *voxelCache) put(c chunk.Coord, voxels []byte) {
	if len(voxels) > vc.limit {
		return
	}
	vc.mu.Lock()
	defer vc.mu.Unlock()

	if old, ok := vc.entries[c]; ok {
		vc.size -= len(old.voxels)
	}
	vc.tick++
	vc.entries[c] = &cacheEntry{voxels: slices.Clone(voxels), atime: vc.tick}
	vc.size += len(voxels)
	if vc.size > vc.limit {
		vc.evictOldest()
	}
}

// evictOldest removes the least recently used entries until the cache is
// at three quarters of its limit. Caller must hold vc.mu.
func (vc *voxelCache) evictOldest() {
	target := vc.limit * 3 / 4

	type entry struct {
		key   chunk.Coord
		atime int64
	}
	entries := make([]entry, 0, len(vc.entries))
	for k, e := range vc.entries {
		entries = append(entries, entry{k, e.atime})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		switch {
		case a.atime < b.atime:
			return -1
		case a.atime > b.atime:
			return 1
		}
		return 0
	})
	for _, e := range entries {
		if vc.size <= target {
			return
		}
		vc.size -= len(vc.entries[e.key].voxels)
		delete(vc.entries, e.key)
	}
}

func (vc *voxelCache) stats() (entries, bytes int, hits, misses uint64) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return len(vc.entries), vc.size, vc.hits, vc.misses
}
