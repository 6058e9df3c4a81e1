// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package facepool

import (
	"math/bits"
	"sync/atomic"
)

// dirtySet tracks which bucket slabs changed since the last upload using an
// atomic bitmap, one bit per bucket packed into uint64 words.
//
// Faces are written outside the pool mutex, so marking must be lock-free.
type dirtySet struct {
	words []atomic.Uint64
	n     int
}

func newDirtySet(n int) *dirtySet {
	return &dirtySet{
		words: make([]atomic.Uint64, (n+63)/64),
		n:     n,
	}
}

// mark flags bucket b as dirty. Out-of-range indices are ignored.
func (d *dirtySet) mark(b int) {
	if b < 0 || b >= d.n {
		return
	}
	d.words[b/64].Or(1 << (b & 63))
}

// isDirty reports whether bucket b is flagged.
func (d *dirtySet) isDirty(b int) bool {
	if b < 0 || b >= d.n {
		return false
	}
	return d.words[b/64].Load()&(1<<(b&63)) != 0
}

// count returns the number of dirty buckets.
func (d *dirtySet) count() int {
	c := 0
	for i := range d.words {
		c += bits.OnesCount64(d.words[i].Load())
	}
	return c
}

// drainRuns clears all flags and calls fn once per run of consecutive dirty
// buckets [first, first+n), in ascending order.
func (d *dirtySet) drainRuns(fn func(first, n int)) {
	start, length := -1, 0
	for wi := range d.words {
		word := d.words[wi].Swap(0)
		for word != 0 {
			b := wi*64 + bits.TrailingZeros64(word)
			word &^= 1 << (b & 63)
			if b >= d.n {
				break
			}
			if start >= 0 && b == start+length {
				length++
				continue
			}
			if start >= 0 {
				fn(start, length)
			}
			start, length = b, 1
		}
	}
	if start >= 0 {
		fn(start, length)
	}
}
