// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package voxstore

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Zstd compresses payloads with zstd. It is safe for concurrent use.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd creates a zstd codec tuned for many small payloads.
func NewZstd() (*Zstd, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("voxstore: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("voxstore: zstd decoder: %w", err)
	}
	return &Zstd{enc: enc, dec: dec}, nil
}

// Encode implements Codec.
func (z *Zstd) Encode(dst, voxels []byte) ([]byte, error) {
	return z.enc.EncodeAll(voxels, dst), nil
}

// Decode implements Codec.
func (z *Zstd) Decode(dst, data []byte) ([]byte, error) {
	out, err := z.dec.DecodeAll(data, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return out, nil
}

// Close releases encoder and decoder resources.
func (z *Zstd) Close() {
	z.enc.Close()
	z.dec.Close()
}
