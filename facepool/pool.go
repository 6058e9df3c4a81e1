// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package facepool implements a fixed-slab allocator for voxel faces backed
// by GPU buffers.
//
// The face buffer is divided into BucketCount slabs of BucketCapacity faces.
// Each slab (a bucket) has exactly one indexed draw command. A chunk mesh is
// stored as one or more buckets; freeing a chunk returns its buckets to a
// LIFO free list and disables their commands. Buckets never move, so
// visibility masking and draw ordering only touch the command table and the
// submission order.
//
// Pool metadata is guarded by a mutex and safe for concurrent use. Face
// writes into a bucket are only valid from the bucket's owner.
package facepool

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/voxel/face"
)

// Pool errors.
var (
	// ErrInvalidConfig is returned when a Config has out-of-range fields.
	ErrInvalidConfig = errors.New("facepool: invalid config")

	// ErrPoolDestroyed is returned when operating on a destroyed pool.
	ErrPoolDestroyed = errors.New("facepool: pool destroyed")
)

// Default pool dimensions.
const (
	// DefaultBucketCount is the default number of buckets.
	DefaultBucketCount = 1024

	// DefaultBucketCapacity is the default number of faces per bucket.
	DefaultBucketCapacity = 512
)

// Bucket is the index of one slab of the face buffer.
type Bucket int32

// NoBucket is returned by RequestBucket when the pool is exhausted.
const NoBucket Bucket = -1

// BucketMeta is the per-bucket render metadata used for masking and ordering.
type BucketMeta struct {
	// Anchor is the world-space reference point of the bucket's geometry,
	// typically the owning chunk's center.
	Anchor [3]float32

	// Group is the direction shared by all faces in the bucket.
	Group face.Direction

	// Occupancy is the number of committed faces.
	Occupancy int
}

// Config holds configuration for creating a Pool.
type Config struct {
	// BucketCount is the number of buckets.
	// Defaults to DefaultBucketCount if zero.
	BucketCount int `yaml:"bucket_count"`

	// BucketCapacity is the number of faces per bucket.
	// Defaults to DefaultBucketCapacity if zero.
	BucketCapacity int `yaml:"bucket_capacity"`

	// Indirect makes Draw issue DrawIndexedIndirect from the command buffer
	// when the encoder supports it.
	Indirect bool `yaml:"indirect"`

	// CheckReleases panics on release of a bucket that is not occupied.
	// Without it a double release corrupts the free list.
	CheckReleases bool `yaml:"check_releases"`

	// Label prefixes GPU buffer labels.
	Label string `yaml:"label"`
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		BucketCount:    DefaultBucketCount,
		BucketCapacity: DefaultBucketCapacity,
		Label:          "facepool",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BucketCount == 0 {
		c.BucketCount = d.BucketCount
	}
	if c.BucketCapacity == 0 {
		c.BucketCapacity = d.BucketCapacity
	}
	if c.Label == "" {
		c.Label = d.Label
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.BucketCount < 0 {
		return fmt.Errorf("%w: bucket count %d", ErrInvalidConfig, c.BucketCount)
	}
	if c.BucketCapacity < 0 {
		return fmt.Errorf("%w: bucket capacity %d", ErrInvalidConfig, c.BucketCapacity)
	}
	// BaseVertex is an int32.
	if uint64(c.BucketCount)*uint64(c.BucketCapacity)*face.VerticesPerFace > math.MaxInt32 {
		return fmt.Errorf("%w: %d x %d faces overflows the vertex range",
			ErrInvalidConfig, c.BucketCount, c.BucketCapacity)
	}
	return nil
}

// Buffers are the GPU buffers backing a pool.
type Buffers struct {
	// Faces is the storage buffer of encoded faces, one slab per bucket.
	Faces hal.Buffer

	// Indices is the shared quad index pattern for one slab.
	Indices hal.Buffer

	// Commands is the indirect buffer of DrawCommands, one per bucket.
	Commands hal.Buffer

	// IndexFormat is the element type of Indices.
	IndexFormat gputypes.IndexFormat
}

// Stats contains pool usage statistics.
type Stats struct {
	// BucketCount is the total number of buckets.
	BucketCount int

	// BucketCapacity is the number of faces per bucket.
	BucketCapacity int

	// Free is the length of the free list.
	Free int

	// Occupied is the number of buckets owned by a chunk.
	Occupied int

	// Enabled is the number of non-empty buckets drawn this frame.
	Enabled int

	// Faces is the number of committed faces in occupied buckets.
	Faces int

	// DrawFaces is the number of faces in enabled buckets.
	DrawFaces int

	// Exhausted counts failed RequestBucket calls.
	Exhausted uint64

	// UploadedBytes is the total number of bytes written to the GPU.
	UploadedBytes uint64
}

// Utilization returns the fraction of face slots in use (0.0 to 1.0).
func (s Stats) Utilization() float64 {
	total := s.BucketCount * s.BucketCapacity
	if total == 0 {
		return 0
	}
	return float64(s.Faces) / float64(total)
}

// String returns a human-readable string of pool stats.
func (s Stats) String() string {
	return fmt.Sprintf("FacePool[%d/%d buckets, %d enabled, %d faces (%.1f%%), %d exhausted]",
		s.Occupied, s.BucketCount, s.Enabled, s.Faces, s.Utilization()*100, s.Exhausted)
}

// Pool is the face bucket allocator.
type Pool struct {
	mu sync.RWMutex

	cfg    Config
	layout face.Layout

	// free is a LIFO stack of bucket indices.
	free []Bucket

	// occupied is the owner bit per bucket.
	occupied []bool

	meta     []BucketMeta
	commands []DrawCommand

	// order is the submission order of all buckets.
	order []Bucket

	// arena is the CPU shadow of the face buffer.
	arena []byte

	dirty         *dirtySet
	commandsDirty bool

	exhausted     uint64
	uploadedBytes uint64

	device  hal.Device
	queue   hal.Queue
	buffers Buffers

	destroyed bool
}

// New creates a pool. When device is nil the pool runs headless: all
// bookkeeping works and Flush only clears dirty state.
func New(device hal.Device, queue hal.Queue, cfg Config) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	layout := face.Layout{BucketCount: cfg.BucketCount, BucketCapacity: cfg.BucketCapacity}
	p := &Pool{
		cfg:      cfg,
		layout:   layout,
		free:     make([]Bucket, 0, cfg.BucketCount),
		occupied: make([]bool, cfg.BucketCount),
		meta:     make([]BucketMeta, cfg.BucketCount),
		commands: make([]DrawCommand, cfg.BucketCount),
		order:    make([]Bucket, cfg.BucketCount),
		arena:    make([]byte, layout.BufferSize()),
		dirty:    newDirtySet(cfg.BucketCount),
		device:   device,
		queue:    queue,
	}

	// Pushed in reverse so the first request pops bucket 0.
	for i := cfg.BucketCount - 1; i >= 0; i-- {
		p.free = append(p.free, Bucket(i))
	}
	for i := range cfg.BucketCount {
		b := Bucket(i)
		p.order[i] = b
		p.commands[i] = disabledCommand(layout, b)
	}
	p.commandsDirty = true

	if device != nil {
		if err := p.createBuffers(); err != nil {
			p.destroyBuffers()
			return nil, err
		}
	}

	slogger().Debug("facepool: created",
		"buckets", cfg.BucketCount,
		"capacity", cfg.BucketCapacity,
		"bytes", layout.BufferSize(),
		"gpu", device != nil)
	return p, nil
}

func (p *Pool) createBuffers() error {
	var err error

	faceSize := max(p.layout.BufferSize(), face.Size)
	p.buffers.Faces, err = p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: p.cfg.Label + "_faces",
		Size:  faceSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("facepool: create face buffer: %w", err)
	}

	p.buffers.Commands, err = p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: p.cfg.Label + "_commands",
		Size:  uint64(max(p.cfg.BucketCount, 1)) * CommandSize,
		Usage: gputypes.BufferUsageIndirect | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("facepool: create command buffer: %w", err)
	}

	indices := p.layout.IndexPattern()
	var data []byte
	if p.cfg.BucketCapacity*face.VerticesPerFace <= math.MaxUint16 {
		p.buffers.IndexFormat = gputypes.IndexFormatUint16
		data = make([]byte, max(len(indices)*2, 4))
		for i, v := range indices {
			data[i*2] = byte(v)
			data[i*2+1] = byte(v >> 8)
		}
	} else {
		p.buffers.IndexFormat = gputypes.IndexFormatUint32
		data = make([]byte, max(len(indices)*4, 4))
		for i, v := range indices {
			data[i*4] = byte(v)
			data[i*4+1] = byte(v >> 8)
			data[i*4+2] = byte(v >> 16)
			data[i*4+3] = byte(v >> 24)
		}
	}
	p.buffers.Indices, err = p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: p.cfg.Label + "_indices",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("facepool: create index buffer: %w", err)
	}
	p.queue.WriteBuffer(p.buffers.Indices, 0, data)
	p.uploadedBytes += uint64(len(data))
	return nil
}

func (p *Pool) destroyBuffers() {
	if p.device == nil {
		return
	}
	if p.buffers.Indices != nil {
		p.device.DestroyBuffer(p.buffers.Indices)
		p.buffers.Indices = nil
	}
	if p.buffers.Commands != nil {
		p.device.DestroyBuffer(p.buffers.Commands)
		p.buffers.Commands = nil
	}
	if p.buffers.Faces != nil {
		p.device.DestroyBuffer(p.buffers.Faces)
		p.buffers.Faces = nil
	}
}

// Layout returns the slab layout of the face buffer.
func (p *Pool) Layout() face.Layout {
	return p.layout
}

// Config returns the effective configuration.
func (p *Pool) Config() Config {
	return p.cfg
}

// Buffers returns the GPU buffers for binding. All buffers are nil for a
// headless pool.
func (p *Pool) Buffers() Buffers {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.buffers
}

// RequestBucket pops a free bucket and assigns it to a new owner with the
// given anchor and group. The bucket starts enabled with zero faces.
// Returns NoBucket and false when no bucket is free.
func (p *Pool) RequestBucket(anchor [3]float32, group face.Direction) (Bucket, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		p.exhausted++
		slogger().Debug("facepool: exhausted", "buckets", p.cfg.BucketCount)
		return NoBucket, false
	}
	b := p.free[n-1]
	p.free = p.free[:n-1]

	p.occupied[b] = true
	p.meta[b] = BucketMeta{Anchor: anchor, Group: group}
	p.commands[b] = enabledCommand(p.layout, b, 0)
	p.commandsDirty = true
	return b, true
}

// AddFace writes f into slot of bucket b. The face is not drawn until
// SetOccupancy commits a count covering the slot.
//
// AddFace panics if b is not occupied or slot is outside the bucket.
func (p *Pool) AddFace(b Bucket, slot int, f face.Face) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	p.checkOwned(b, "AddFace")
	if slot < 0 || slot >= p.cfg.BucketCapacity {
		panic(fmt.Sprintf("facepool: AddFace slot %d out of range [0, %d)", slot, p.cfg.BucketCapacity))
	}
	off := p.layout.SlotOffset(int(b), slot)
	f.Encode(p.arena[off : off+face.Size])
	p.dirty.mark(int(b))
}

// SetOccupancy commits n faces in bucket b. Slots [0, n) must have been
// written since the bucket was requested.
//
// SetOccupancy panics if b is not occupied or n exceeds the capacity.
func (p *Pool) SetOccupancy(b Bucket, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.checkOwned(b, "SetOccupancy")
	if n < 0 || n > p.cfg.BucketCapacity {
		panic(fmt.Sprintf("facepool: SetOccupancy %d out of range [0, %d]", n, p.cfg.BucketCapacity))
	}
	p.meta[b].Occupancy = n
	if p.commands[b].Enabled() {
		p.commands[b] = enabledCommand(p.layout, b, n)
	}
	p.commandsDirty = true
}

// Fill writes faces into bucket b starting at slot 0 and commits their
// count. It panics under the same conditions as AddFace and SetOccupancy.
func (p *Pool) Fill(b Bucket, faces []face.Face) {
	for i, f := range faces {
		p.AddFace(b, i, f)
	}
	p.SetOccupancy(b, len(faces))
}

// ReleaseBucket returns bucket b to the free list and disables its command.
// Releasing a bucket that is not occupied is a contract violation; it
// panics only when Config.CheckReleases is set.
func (p *Pool) ReleaseBucket(b Bucket) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if b < 0 || int(b) >= p.cfg.BucketCount {
		panic(fmt.Sprintf("facepool: ReleaseBucket %d out of range [0, %d)", b, p.cfg.BucketCount))
	}
	if p.cfg.CheckReleases && !p.occupied[b] {
		panic(fmt.Sprintf("facepool: ReleaseBucket %d is not occupied", b))
	}

	p.occupied[b] = false
	p.meta[b].Occupancy = 0
	p.commands[b] = disabledCommand(p.layout, b)
	p.commandsDirty = true
	p.free = append(p.free, b)
}

// Mask disables every occupied bucket for which keep returns false and
// re-enables every occupied bucket for which it returns true. Buckets are
// never released by masking.
func (p *Pool) Mask(keep func(Bucket, BucketMeta) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, occ := range p.occupied {
		if !occ {
			continue
		}
		b := Bucket(i)
		was := p.commands[i].Enabled()
		if keep(b, p.meta[i]) {
			if !was {
				p.commands[i] = enabledCommand(p.layout, b, p.meta[i].Occupancy)
				p.commandsDirty = true
			}
		} else if was {
			p.commands[i] = disabledCommand(p.layout, b)
			p.commandsDirty = true
		}
	}
}

// Order stable-sorts the submission order by cmp over bucket metadata.
// Faces never move.
func (p *Pool) Order(cmp func(a, b BucketMeta) int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slices.SortStableFunc(p.order, func(x, y Bucket) int {
		return cmp(p.meta[x], p.meta[y])
	})
}

// SubmissionOrder returns a copy of the current submission order.
func (p *Pool) SubmissionOrder() []Bucket {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.order)
}

// TotalDrawCount returns the number of faces that Draw will submit: the
// summed occupancy of all enabled buckets.
func (p *Pool) TotalDrawCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := 0
	for i, c := range p.commands {
		if c.Enabled() {
			total += p.meta[i].Occupancy
		}
	}
	return total
}

// EnabledBuckets returns the number of draw commands Draw will issue.
func (p *Pool) EnabledBuckets() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, c := range p.commands {
		if c.draws() {
			n++
		}
	}
	return n
}

// Meta returns the metadata of bucket b.
func (p *Pool) Meta(b Bucket) BucketMeta {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.meta[b]
}

// Command returns the draw command of bucket b.
func (p *Pool) Command(b Bucket) DrawCommand {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.commands[b]
}

// Occupied reports whether bucket b is owned.
func (p *Pool) Occupied(b Bucket) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return b >= 0 && int(b) < len(p.occupied) && p.occupied[b]
}

// Face reads back slot of bucket b from the CPU shadow.
func (p *Pool) Face(b Bucket, slot int) face.Face {
	off := p.layout.SlotOffset(int(b), slot)
	return face.Decode(p.arena[off : off+face.Size])
}

// FreeCount returns the length of the free list.
func (p *Pool) FreeCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.free)
}

// FreeList returns a copy of the free list, top of stack last.
func (p *Pool) FreeList() []Bucket {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.free)
}

// Stats returns a snapshot of pool usage.
func (p *Pool) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Stats{
		BucketCount:    p.cfg.BucketCount,
		BucketCapacity: p.cfg.BucketCapacity,
		Free:           len(p.free),
		Exhausted:      p.exhausted,
		UploadedBytes:  p.uploadedBytes,
	}
	for i, occ := range p.occupied {
		if !occ {
			continue
		}
		s.Occupied++
		s.Faces += p.meta[i].Occupancy
		if p.commands[i].draws() {
			s.Enabled++
			s.DrawFaces += p.meta[i].Occupancy
		}
	}
	return s
}

// Flush uploads dirty slabs and, if changed, the command table. Runs of
// adjacent dirty buckets are coalesced into one write.
func (p *Pool) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return ErrPoolDestroyed
	}

	gpu := p.device != nil
	slab := p.layout.SlabBytes()
	p.dirty.drainRuns(func(first, n int) {
		if !gpu {
			return
		}
		off := p.layout.SlabOffset(first)
		end := off + uint64(n)*slab
		p.queue.WriteBuffer(p.buffers.Faces, off, p.arena[off:end])
		p.uploadedBytes += end - off
	})

	if p.commandsDirty {
		p.commandsDirty = false
		if gpu && len(p.commands) > 0 {
			data := make([]byte, len(p.commands)*CommandSize)
			for i, c := range p.commands {
				c.encode(data[i*CommandSize:])
			}
			p.queue.WriteBuffer(p.buffers.Commands, 0, data)
			p.uploadedBytes += uint64(len(data))
		}
	}
	return nil
}

// Pending returns the number of dirty buckets awaiting upload.
func (p *Pool) Pending() int {
	return p.dirty.count()
}

// Destroy releases the GPU buffers. The pool must not be used afterwards.
func (p *Pool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return
	}
	p.destroyed = true
	p.destroyBuffers()
	slogger().Debug("facepool: destroyed", "exhausted", p.exhausted, "uploaded", p.uploadedBytes)
}

// checkOwned panics if b is not an occupied bucket. Must hold p.mu.
func (p *Pool) checkOwned(b Bucket, op string) {
	if b < 0 || int(b) >= p.cfg.BucketCount {
		panic(fmt.Sprintf("facepool: %s bucket %d out of range [0, %d)", op, b, p.cfg.BucketCount))
	}
	if !p.occupied[b] {
		panic(fmt.Sprintf("facepool: %s bucket %d is not occupied", op, b))
	}
}
