// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package voxstore

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"
)

func payloads() map[string][]byte {
	rng := rand.New(rand.NewPCG(3, 4))

	air := make([]byte, 32*32*32)

	terrain := make([]byte, 32*32*32)
	for i := range terrain {
		if i/(32*32) < 12 {
			terrain[i] = 2
		}
		if i/(32*32) == 12 {
			terrain[i] = 3
		}
	}

	noisy := make([]byte, 4096)
	for i := range noisy {
		noisy[i] = byte(rng.IntN(256))
	}

	five := make([]byte, 1000)
	for i := range five {
		five[i] = byte(rng.IntN(5)) * 10
	}

	return map[string][]byte{
		"air":     air,
		"terrain": terrain,
		"noisy":   noisy,
		"five":    five,
	}
}

func TestCodecs(t *testing.T) {
	z, err := NewZstd()
	if err != nil {
		t.Fatalf("NewZstd failed: %v", err)
	}
	defer z.Close()

	codecs := map[string]Codec{
		"raw":          Raw{},
		"palette":      Palette{},
		"zstd":         z,
		"palette+zstd": Chain{Palette{}, z},
	}
	for cname, codec := range codecs {
		for pname, p := range payloads() {
			t.Run(cname+"/"+pname, func(t *testing.T) {
				enc, err := codec.Encode([]byte("prefix"), p)
				if err != nil {
					t.Fatalf("Encode failed: %v", err)
				}
				if !bytes.HasPrefix(enc, []byte("prefix")) {
					t.Fatal("Encode did not append to dst")
				}
				dec, err := codec.Decode(nil, enc[len("prefix"):])
				if err != nil {
					t.Fatalf("Decode failed: %v", err)
				}
				if !bytes.Equal(dec, p) {
					t.Errorf("round trip mismatch: got %d bytes, want %d", len(dec), len(p))
				}
			})
		}
	}
}

func TestPaletteSize(t *testing.T) {
	p := payloads()

	enc, _ := Palette{}.Encode(nil, p["air"])
	if len(enc) != paletteHeader+1 {
		t.Errorf("uniform payload encoded to %d bytes, want %d", len(enc), paletteHeader+1)
	}

	enc, _ = Palette{}.Encode(nil, p["five"])
	want := paletteHeader + 5 + (1000*3+7)/8
	if len(enc) != want {
		t.Errorf("five-material payload encoded to %d bytes, want %d", len(enc), want)
	}
	if enc[0] != 3 {
		t.Errorf("bits per index = %d, want 3", enc[0])
	}
}

func TestBitsPerIndex(t *testing.T) {
	tests := []struct{ n, want int }{{0, 0}, {1, 0}, {2, 1}, {3, 2}, {4, 2}, {5, 3}, {16, 4}, {17, 5}, {256, 8}}
	for _, tt := range tests {
		if got := BitsPerIndex(tt.n); got != tt.want {
			t.Errorf("BitsPerIndex(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestPaletteCorrupt(t *testing.T) {
	enc, _ := Palette{}.Encode(nil, payloads()["five"])
	tests := map[string][]byte{
		"short header": enc[:3],
		"truncated":    enc[:len(enc)-10],
		"bad bits":     append([]byte{9}, enc[1:]...),
	}
	for name, data := range tests {
		if _, err := (Palette{}).Decode(nil, data); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: Decode = %v, want ErrCorrupt", name, err)
		}
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"", "raw", "palette", "zstd", "palette+zstd"} {
		c, err := New(name)
		if err != nil || c == nil {
			t.Errorf("New(%q) = %v, %v", name, c, err)
		}
	}
	if _, err := New("lz4"); err == nil {
		t.Error("expected error for unknown codec")
	}
}
