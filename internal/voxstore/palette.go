// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package voxstore

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math/bits"
	"slices"
)

// paletteHeader is bits(1) + palette length(2) + cell count(4).
const paletteHeader = 7

// Palette is a palette plus bit-packing codec. Materials are ordered by
// descending frequency, so index 0 is the most common material. A payload of
// a single material encodes to the header and one palette byte.
//
// Layout (little-endian):
//
//	u8   bits per index (0..8)
//	u16  palette length (1..256)
//	u32  cell count
//	[]u8 palette
//	[]u8 indices, LSB-first, ceil(count*bits/8) bytes
type Palette struct{}

// Encode implements Codec.
func (Palette) Encode(dst, voxels []byte) ([]byte, error) {
	var hist [256]int
	for _, v := range voxels {
		hist[v]++
	}
	palette := make([]byte, 0, 16)
	for m, n := range hist {
		if n > 0 {
			palette = append(palette, byte(m))
		}
	}
	if len(palette) == 0 {
		palette = append(palette, 0)
	}
	slices.SortStableFunc(palette, func(a, b byte) int {
		return cmp.Compare(hist[b], hist[a])
	})

	var lookup [256]byte
	for i, m := range palette {
		lookup[m] = byte(i)
	}
	nbits := bits.Len(uint(len(palette) - 1))

	var hdr [paletteHeader]byte
	hdr[0] = byte(nbits)
	binary.LittleEndian.PutUint16(hdr[1:3], uint16(len(palette)))
	binary.LittleEndian.PutUint32(hdr[3:7], uint32(len(voxels)))
	dst = append(dst, hdr[:]...)
	dst = append(dst, palette...)
	if nbits == 0 {
		return dst, nil
	}

	start := len(dst)
	dst = append(dst, make([]byte, (len(voxels)*nbits+7)/8)...)
	packed := dst[start:]
	for i, v := range voxels {
		putBits(packed, i*nbits, nbits, lookup[v])
	}
	return dst, nil
}

// Decode implements Codec.
func (Palette) Decode(dst, data []byte) ([]byte, error) {
	if len(data) < paletteHeader {
		return nil, fmt.Errorf("%w: palette header truncated", ErrCorrupt)
	}
	nbits := int(data[0])
	plen := int(binary.LittleEndian.Uint16(data[1:3]))
	count := int(binary.LittleEndian.Uint32(data[3:7]))
	if nbits > 8 || plen == 0 || plen > 256 || (plen > 1<<nbits) {
		return nil, fmt.Errorf("%w: %d bits for %d materials", ErrCorrupt, nbits, plen)
	}
	body := data[paletteHeader:]
	if len(body) < plen {
		return nil, fmt.Errorf("%w: palette truncated", ErrCorrupt)
	}
	palette := body[:plen]
	packed := body[plen:]
	if len(packed) < (count*nbits+7)/8 {
		return nil, fmt.Errorf("%w: indices truncated", ErrCorrupt)
	}

	for i := range count {
		idx := 0
		if nbits > 0 {
			idx = int(getBits(packed, i*nbits, nbits))
		}
		if idx >= plen {
			return nil, fmt.Errorf("%w: index %d out of palette", ErrCorrupt, idx)
		}
		dst = append(dst, palette[idx])
	}
	return dst, nil
}

// putBits writes the low n bits of v at bit offset off. Target bits must be
// zero.
func putBits(buf []byte, off, n int, v byte) {
	w := uint16(v) << (off & 7)
	buf[off>>3] |= byte(w)
	if (off&7)+n > 8 {
		buf[off>>3+1] |= byte(w >> 8)
	}
}

// getBits reads n bits at bit offset off.
func getBits(buf []byte, off, n int) byte {
	w := uint16(buf[off>>3])
	if (off&7)+n > 8 {
		w |= uint16(buf[off>>3+1]) << 8
	}
	return byte(w>>(off&7)) & byte(1<<n-1)
}

// BitsPerIndex returns the index width Palette uses for n materials.
func BitsPerIndex(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}
