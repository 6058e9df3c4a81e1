// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package voxstore implements codecs for the voxel payloads retained by the
// chunk manager between generation and re-meshing.
//
// A payload is one material byte per cell. Palette packs cells into
// ceil(log2(n)) bit indices into the set of distinct materials; Zstd
// compresses bytes; Chain composes codecs.
package voxstore

import "errors"

// ErrCorrupt is returned when encoded data cannot be decoded.
var ErrCorrupt = errors.New("voxstore: corrupt data")

// Codec encodes and decodes voxel payloads. Encode and Decode append to dst
// and return the extended slice.
type Codec interface {
	Encode(dst, voxels []byte) ([]byte, error)
	Decode(dst, data []byte) ([]byte, error)
}

// Raw stores payloads unchanged.
type Raw struct{}

func (Raw) Encode(dst, voxels []byte) ([]byte, error) { return append(dst, voxels...), nil }
func (Raw) Decode(dst, data []byte) ([]byte, error)   { return append(dst, data...), nil }

// Chain applies codecs left to right on Encode and right to left on Decode.
type Chain []Codec

func (c Chain) Encode(dst, voxels []byte) ([]byte, error) {
	data := voxels
	for i, codec := range c {
		var err error
		if i == len(c)-1 {
			return codec.Encode(dst, data)
		}
		data, err = codec.Encode(nil, data)
		if err != nil {
			return nil, err
		}
	}
	return append(dst, data...), nil
}

func (c Chain) Decode(dst, data []byte) ([]byte, error) {
	for i := len(c) - 1; i >= 0; i-- {
		var err error
		if i == 0 {
			return c[i].Decode(dst, data)
		}
		data, err = c[i].Decode(nil, data)
		if err != nil {
			return nil, err
		}
	}
	return append(dst, data...), nil
}

// Names lists the codec names accepted by New.
func Names() []string {
	return []string{"raw", "palette", "zstd", "palette+zstd"}
}

// New returns the codec with the given name: "raw", "palette", "zstd" or
// "palette+zstd". The empty name selects "palette".
func New(name string) (Codec, error) {
	switch name {
	case "raw":
		return Raw{}, nil
	case "", "palette":
		return Palette{}, nil
	case "zstd":
		return NewZstd()
	case "palette+zstd":
		z, err := NewZstd()
		if err != nil {
			return nil, err
		}
		return Chain{Palette{}, z}, nil
	default:
		return nil, errors.New("voxstore: unknown codec " + name)
	}
}
