// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package facepool

import (
	"cmp"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/voxel/face"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

func newHeadlessPool(t *testing.T, count, capacity int) *Pool {
	t.Helper()
	p, err := New(nil, nil, Config{BucketCount: count, BucketCapacity: capacity})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func quad(x float32, d face.Direction) face.Face {
	return face.Face{
		Position:  [3]float32{x, 0, 0},
		Size:      [2]float32{1, 1},
		Direction: d,
		Color:     [4]float32{1, 1, 1, 1},
	}
}

// recorder is a DrawEncoder that records every draw.
type recorder struct {
	draws []DrawCommand
}

func (r *recorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	r.draws = append(r.draws, DrawCommand{
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		BaseVertex:    baseVertex,
		FirstInstance: firstInstance,
	})
}

// indirectRecorder also supports indirect draws.
type indirectRecorder struct {
	recorder
	offsets []uint64
}

func (r *indirectRecorder) DrawIndexedIndirect(_ hal.Buffer, offset uint64) {
	r.offsets = append(r.offsets, offset)
}

func TestPoolExhaustion(t *testing.T) {
	p := newHeadlessPool(t, 4, 2)

	var got []Bucket
	for i := range 4 {
		b, ok := p.RequestBucket([3]float32{}, face.PosX)
		if !ok {
			t.Fatalf("request %d failed", i)
		}
		got = append(got, b)
	}

	b, ok := p.RequestBucket([3]float32{}, face.PosX)
	if ok || b != NoBucket {
		t.Fatalf("5th request = (%d, %v), want (NoBucket, false)", b, ok)
	}
	if s := p.Stats(); s.Exhausted != 1 {
		t.Errorf("Exhausted = %d, want 1", s.Exhausted)
	}

	p.ReleaseBucket(got[2])
	b, ok = p.RequestBucket([3]float32{}, face.PosX)
	if !ok {
		t.Fatal("request after release failed")
	}
	if b != got[2] {
		t.Errorf("request after release = %d, want %d", b, got[2])
	}
}

func TestPoolFirstBucketIsZero(t *testing.T) {
	p := newHeadlessPool(t, 8, 4)
	for want := range 3 {
		b, _ := p.RequestBucket([3]float32{}, face.PosY)
		if b != Bucket(want) {
			t.Errorf("request %d = %d, want %d", want, b, want)
		}
	}
}

func TestPoolFreeListProperties(t *testing.T) {
	const count = 16
	p := newHeadlessPool(t, count, 2)
	rng := rand.New(rand.NewPCG(1, 2))

	held := map[Bucket]bool{}
	for step := range 2000 {
		if rng.IntN(2) == 0 || len(held) == 0 {
			b, ok := p.RequestBucket([3]float32{}, face.Direction(rng.IntN(face.DirectionCount)))
			if len(held) == count {
				if ok {
					t.Fatalf("step %d: request succeeded with all buckets held", step)
				}
				continue
			}
			if !ok {
				t.Fatalf("step %d: request failed with %d held", step, len(held))
			}
			if held[b] {
				t.Fatalf("step %d: bucket %d allocated twice", step, b)
			}
			held[b] = true
		} else {
			for b := range held {
				p.ReleaseBucket(b)
				delete(held, b)
				break
			}
		}

		free := p.FreeList()
		if len(free) > count {
			t.Fatalf("step %d: free list has %d entries", step, len(free))
		}
		if len(free)+len(held) != count {
			t.Fatalf("step %d: free %d + held %d != %d", step, len(free), len(held), count)
		}
		seen := map[Bucket]bool{}
		for _, b := range free {
			if seen[b] {
				t.Fatalf("step %d: duplicate %d in free list", step, b)
			}
			if held[b] {
				t.Fatalf("step %d: held bucket %d in free list", step, b)
			}
			seen[b] = true
		}
	}
}

func TestPoolTotalDrawCount(t *testing.T) {
	p := newHeadlessPool(t, 8, 8)
	rng := rand.New(rand.NewPCG(7, 7))

	var buckets []Bucket
	want := 0
	for range 6 {
		b, ok := p.RequestBucket([3]float32{}, face.PosZ)
		if !ok {
			t.Fatal("request failed")
		}
		n := 1 + rng.IntN(8)
		faces := make([]face.Face, n)
		for i := range faces {
			faces[i] = quad(float32(i), face.PosZ)
		}
		p.Fill(b, faces)
		buckets = append(buckets, b)
		want += n
	}

	if got := p.TotalDrawCount(); got != want {
		t.Errorf("TotalDrawCount() = %d, want %d", got, want)
	}
	if got := p.EnabledBuckets(); got != 6 {
		t.Errorf("EnabledBuckets() = %d, want 6", got)
	}

	for _, b := range buckets {
		p.ReleaseBucket(b)
	}
	if got := p.TotalDrawCount(); got != 0 {
		t.Errorf("TotalDrawCount() after release = %d, want 0", got)
	}
	if got := p.EnabledBuckets(); got != 0 {
		t.Errorf("EnabledBuckets() after release = %d, want 0", got)
	}
}

func TestPoolCommands(t *testing.T) {
	p := newHeadlessPool(t, 4, 3)

	b0, _ := p.RequestBucket([3]float32{}, face.PosX)
	b1, _ := p.RequestBucket([3]float32{}, face.NegX)
	p.Fill(b0, []face.Face{quad(0, face.PosX), quad(1, face.PosX), quad(2, face.PosX)})
	p.Fill(b1, []face.Face{quad(0, face.NegX)})

	tests := []struct {
		b    Bucket
		want DrawCommand
	}{
		{b0, DrawCommand{IndexCount: 18, InstanceCount: 1, BaseVertex: 0, FirstInstance: 0}},
		{b1, DrawCommand{IndexCount: 6, InstanceCount: 1, BaseVertex: 12, FirstInstance: 1}},
		{2, DrawCommand{BaseVertex: 24, FirstInstance: 2}},
	}
	for _, tt := range tests {
		if got := p.Command(tt.b); got != tt.want {
			t.Errorf("Command(%d) = %+v, want %+v", tt.b, got, tt.want)
		}
	}

	if got := p.Face(b0, 2); got != quad(2, face.PosX) {
		t.Errorf("Face(b0, 2) = %+v", got)
	}
	if got := p.Meta(b1); got.Group != face.NegX || got.Occupancy != 1 {
		t.Errorf("Meta(b1) = %+v", got)
	}

	p.ReleaseBucket(b0)
	if got := p.Command(b0); got.Enabled() || got.IndexCount != 0 {
		t.Errorf("released command = %+v, want disabled", got)
	}
}

func TestPoolMaskRoundTrip(t *testing.T) {
	p := newHeadlessPool(t, 12, 4)
	for i := range 12 {
		b, _ := p.RequestBucket([3]float32{float32(i), 0, 0}, face.Direction(i%face.DirectionCount))
		p.Fill(b, []face.Face{quad(0, face.PosX), quad(1, face.PosX)})
	}
	// One free bucket must stay disabled through masking.
	p.ReleaseBucket(5)

	enabled := p.EnabledBuckets()
	draw := p.TotalDrawCount()

	p.Mask(func(_ Bucket, m BucketMeta) bool { return m.Group == face.PosY })
	if got := p.EnabledBuckets(); got != 2 {
		t.Errorf("EnabledBuckets() after mask = %d, want 2", got)
	}
	if p.Occupied(0) != true {
		t.Error("mask released bucket 0")
	}

	p.Mask(func(Bucket, BucketMeta) bool { return true })
	if got := p.EnabledBuckets(); got != enabled {
		t.Errorf("EnabledBuckets() after restore = %d, want %d", got, enabled)
	}
	if got := p.TotalDrawCount(); got != draw {
		t.Errorf("TotalDrawCount() after restore = %d, want %d", got, draw)
	}
	if p.Command(5).Enabled() {
		t.Error("free bucket enabled by mask")
	}
}

func TestPoolMaskedOccupancyUpdate(t *testing.T) {
	p := newHeadlessPool(t, 2, 4)
	b, _ := p.RequestBucket([3]float32{}, face.PosX)
	p.Mask(func(Bucket, BucketMeta) bool { return false })
	p.Fill(b, []face.Face{quad(0, face.PosX)})

	if p.Command(b).Enabled() {
		t.Fatal("masked bucket enabled by SetOccupancy")
	}
	p.Mask(func(Bucket, BucketMeta) bool { return true })
	if got := p.Command(b).IndexCount; got != 6 {
		t.Errorf("IndexCount = %d, want 6", got)
	}
}

func TestPoolEmptyBucketNotDrawn(t *testing.T) {
	p := newHeadlessPool(t, 4, 4)
	empty, _ := p.RequestBucket([3]float32{}, face.PosX)
	full, _ := p.RequestBucket([3]float32{}, face.PosX)
	p.Fill(full, []face.Face{quad(0, face.PosX)})

	if !p.Command(empty).Enabled() {
		t.Error("empty occupied bucket not enabled")
	}
	if got := p.EnabledBuckets(); got != 1 {
		t.Errorf("EnabledBuckets() = %d, want 1", got)
	}
	if got := p.Stats().Enabled; got != 1 {
		t.Errorf("Stats().Enabled = %d, want 1", got)
	}
	var r recorder
	if n := p.Draw(&r); n != 1 || len(r.draws) != 1 || r.draws[0].IndexCount != 6 {
		t.Errorf("Draw() = %d, draws = %+v, want one 6-index draw", n, r.draws)
	}
}

func TestPoolOrderAndDraw(t *testing.T) {
	p := newHeadlessPool(t, 4, 2)
	for _, x := range []float32{30, 10, 20} {
		b, _ := p.RequestBucket([3]float32{x, 0, 0}, face.PosX)
		p.Fill(b, []face.Face{quad(x, face.PosX)})
	}

	p.Order(func(a, b BucketMeta) int { return cmp.Compare(a.Anchor[0], b.Anchor[0]) })

	var r recorder
	if n := p.Draw(&r); n != 3 {
		t.Fatalf("Draw() = %d, want 3", n)
	}
	want := []uint32{1, 2, 0}
	for i, d := range r.draws {
		if d.FirstInstance != want[i] {
			t.Errorf("draw %d bucket = %d, want %d", i, d.FirstInstance, want[i])
		}
	}

	// idempotent without mutation
	var r2 recorder
	if n := p.Draw(&r2); n != 3 {
		t.Errorf("second Draw() = %d, want 3", n)
	}
	for i := range r.draws {
		if r.draws[i] != r2.draws[i] {
			t.Errorf("draw %d differs: %+v vs %+v", i, r.draws[i], r2.draws[i])
		}
	}

	// faces never move
	if got := p.Face(0, 0).Position[0]; got != 30 {
		t.Errorf("bucket 0 face x = %v, want 30", got)
	}
}

func TestPoolContractPanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func(p *Pool)
	}{
		{"add to free bucket", func(p *Pool) { p.AddFace(0, 0, face.Face{}) }},
		{"slot out of range", func(p *Pool) {
			b, _ := p.RequestBucket([3]float32{}, face.PosX)
			p.AddFace(b, 2, face.Face{})
		}},
		{"occupancy over capacity", func(p *Pool) {
			b, _ := p.RequestBucket([3]float32{}, face.PosX)
			p.SetOccupancy(b, 3)
		}},
		{"release out of range", func(p *Pool) { p.ReleaseBucket(9) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newHeadlessPool(t, 2, 2)
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tt.fn(p)
		})
	}
}

func TestPoolCheckReleases(t *testing.T) {
	p, err := New(nil, nil, Config{BucketCount: 2, BucketCapacity: 2, CheckReleases: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	b, _ := p.RequestBucket([3]float32{}, face.PosX)
	p.ReleaseBucket(b)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on double release")
		}
	}()
	p.ReleaseBucket(b)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"zero uses defaults", Config{}, false},
		{"negative count", Config{BucketCount: -1}, true},
		{"negative capacity", Config{BucketCapacity: -4}, true},
		{"vertex overflow", Config{BucketCount: 1 << 16, BucketCapacity: 1 << 14}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v is not ErrInvalidConfig", err)
			}
		})
	}
}

func TestPoolGPU(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	p, err := New(device, queue, Config{BucketCount: 8, BucketCapacity: 4, Indirect: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	bufs := p.Buffers()
	if bufs.Faces == nil || bufs.Indices == nil || bufs.Commands == nil {
		t.Fatal("expected non-nil GPU buffers")
	}
	if bufs.IndexFormat != gputypes.IndexFormatUint16 {
		t.Errorf("IndexFormat = %v, want Uint16", bufs.IndexFormat)
	}

	b0, _ := p.RequestBucket([3]float32{}, face.PosX)
	b1, _ := p.RequestBucket([3]float32{}, face.PosX)
	p.Fill(b0, []face.Face{quad(0, face.PosX)})
	p.Fill(b1, []face.Face{quad(1, face.PosX), quad(2, face.PosX)})
	if got := p.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}

	before := p.Stats().UploadedBytes
	if err := p.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if got := p.Pending(); got != 0 {
		t.Errorf("Pending() after Flush = %d, want 0", got)
	}
	// two adjacent slabs plus the command table
	want := before + 2*p.Layout().SlabBytes() + 8*CommandSize
	if got := p.Stats().UploadedBytes; got != want {
		t.Errorf("UploadedBytes = %d, want %d", got, want)
	}

	var r indirectRecorder
	if n := p.Draw(&r); n != 2 {
		t.Fatalf("Draw() = %d, want 2", n)
	}
	if len(r.draws) != 0 {
		t.Errorf("recorded %d direct draws in indirect mode", len(r.draws))
	}
	if len(r.offsets) != 2 || r.offsets[0] != 0 || r.offsets[1] != CommandSize {
		t.Errorf("indirect offsets = %v, want [0 %d]", r.offsets, CommandSize)
	}

	p.Destroy()
	if err := p.Flush(); !errors.Is(err, ErrPoolDestroyed) {
		t.Errorf("Flush after Destroy = %v, want ErrPoolDestroyed", err)
	}
	if n := p.Draw(&r); n != 0 {
		t.Errorf("Draw after Destroy = %d, want 0", n)
	}
}

func TestStatsString(t *testing.T) {
	p := newHeadlessPool(t, 4, 2)
	b, _ := p.RequestBucket([3]float32{}, face.PosX)
	p.Fill(b, []face.Face{quad(0, face.PosX)})

	s := p.Stats()
	if s.Occupied != 1 || s.Free != 3 || s.Faces != 1 || s.DrawFaces != 1 {
		t.Errorf("Stats() = %+v", s)
	}
	if got, want := s.String(), "FacePool[1/4 buckets, 1 enabled, 1 faces (12.5%), 0 exhausted]"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestCommandEncode(t *testing.T) {
	c := DrawCommand{IndexCount: 6, InstanceCount: 1, FirstIndex: 0, BaseVertex: 8, FirstInstance: 2}
	buf := make([]byte, CommandSize)
	c.encode(buf)
	want := []byte{6, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 8, 0, 0, 0, 2, 0, 0, 0}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("encode = %v, want %v", buf, want)
		}
	}
}
