// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package worldgen is a CPU implementation of chunk.Pipeline: procedural
// voxel fill and greedy meshing on a work-stealing worker pool.
package worldgen

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/voxel/chunk"
	"github.com/gogpu/voxel/face"
)

// Pipeline errors.
var (
	// ErrInvalidConfig is returned when a Config has out-of-range fields.
	ErrInvalidConfig = errors.New("worldgen: invalid config")

	// ErrClosed is reported for requests submitted after Close.
	ErrClosed = errors.New("worldgen: pipeline closed")

	// ErrQueueFull is reported when every worker queue is full.
	ErrQueueFull = errors.New("worldgen: work queue full")
)

// Config holds configuration for creating a Pipeline.
type Config struct {
	// ChunkSize is the chunk edge length. Defaults to chunk.DefaultChunkSize.
	ChunkSize int `yaml:"chunk_size"`

	// Workers is the number of worker goroutines. Defaults to GOMAXPROCS.
	Workers int `yaml:"workers"`

	// QueueSize is the per-worker queue length. Defaults to 4x workers.
	QueueSize int `yaml:"queue_size"`

	// MaxFaces bounds the faces of one mesh. Zero means unbounded.
	MaxFaces int `yaml:"max_faces"`

	// Greedy enables greedy face merging.
	Greedy bool `yaml:"greedy"`

	// Terrain describes the generated world.
	Terrain Terrain `yaml:"terrain"`

	// Colors overrides material colors by SVG color name.
	Colors map[Material]string `yaml:"colors"`

	// CacheBytes bounds the cache of generated voxels. Zero disables it.
	CacheBytes int `yaml:"cache_bytes"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize: chunk.DefaultChunkSize,
		Greedy:    true,
		Terrain:   DefaultTerrain(),
	}
}

func (c Config) withDefaults() Config {
	if c.ChunkSize == 0 {
		c.ChunkSize = chunk.DefaultChunkSize
	}
	if c.Terrain.Shape == "" {
		c.Terrain.Shape = ShapeHeightfield
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.ChunkSize < 1 || c.ChunkSize > 256 {
		return fmt.Errorf("%w: chunk size %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.MaxFaces < 0 {
		return fmt.Errorf("%w: max faces %d", ErrInvalidConfig, c.MaxFaces)
	}
	if c.CacheBytes < 0 {
		return fmt.Errorf("%w: cache bytes %d", ErrInvalidConfig, c.CacheBytes)
	}
	return c.Terrain.validate()
}

// Stats contains pipeline statistics.
type Stats struct {
	// InFlight is the number of calls not yet cleaned up.
	InFlight int

	// TransientBytes is the memory held by completed calls awaiting Cleanup.
	TransientBytes int

	// Queued is the approximate number of queued jobs.
	Queued int

	Voxels   uint64
	Meshes   uint64
	Failures uint64

	// Cached and CachedBytes describe the voxel cache.
	Cached      int
	CachedBytes int
	CacheHits   uint64
	CacheMisses uint64
}

// Pipeline generates chunk voxels and meshes on worker goroutines.
type Pipeline struct {
	cfg     Config
	palette *Palette
	workers *workers
	cache   *voxelCache // nil when disabled

	nextID atomic.Uint64

	mu        sync.Mutex
	transient map[chunk.CallID]int

	voxels   atomic.Uint64
	meshes   atomic.Uint64
	failures atomic.Uint64

	// scratch holds per-job mask buffers.
	scratch sync.Pool
}

// New starts a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	palette := DefaultPalette()
	for m, name := range cfg.Colors {
		if err := palette.SetNamed(m, name); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	size := cfg.ChunkSize
	p := &Pipeline{
		cfg:       cfg,
		palette:   palette,
		workers:   newWorkers(cfg.Workers, cfg.QueueSize),
		transient: make(map[chunk.CallID]int),
	}
	if cfg.CacheBytes > 0 {
		p.cache = newVoxelCache(cfg.CacheBytes)
	}
	p.scratch.New = func() any {
		b := make([]byte, size*size)
		return &b
	}
	slogger().Info("worldgen: started",
		"workers", p.workers.n,
		"chunk", size,
		"shape", cfg.Terrain.Shape,
		"greedy", cfg.Greedy)
	return p, nil
}

// GenerateVoxels implements chunk.Pipeline.
func (p *Pipeline) GenerateVoxels(c chunk.Coord, done func(chunk.VoxelResult)) chunk.CallID {
	id := p.begin()
	job := func() {
		voxels := p.voxelsFor(c)
		p.hold(id, len(voxels))
		p.voxels.Add(1)
		done(chunk.VoxelResult{Voxels: voxels})
	}
	if err := p.submit(job); err != nil {
		p.failures.Add(1)
		slogger().Warn("worldgen: voxel request rejected", "coord", c, "err", err)
		done(chunk.VoxelResult{Err: err})
	}
	return id
}

// voxelsFor returns the voxels of c from the cache or the terrain.
func (p *Pipeline) voxelsFor(c chunk.Coord) []byte {
	if p.cache != nil {
		if v, ok := p.cache.get(c); ok {
			return v
		}
	}
	size := p.cfg.ChunkSize
	voxels := make([]byte, size*size*size)
	p.cfg.Terrain.Fill(voxels, c, size)
	if p.cache != nil {
		p.cache.put(c, voxels)
	}
	return voxels
}

// GenerateMesh implements chunk.Pipeline.
func (p *Pipeline) GenerateMesh(c chunk.Coord, voxels []byte, done func(chunk.MeshResult)) chunk.CallID {
	id := p.begin()
	job := func() {
		faces, err := p.mesh(c, voxels)
		if err != nil {
			p.failures.Add(1)
			slogger().Warn("worldgen: mesh failed", "coord", c, "err", err)
			done(chunk.MeshResult{Err: err})
			return
		}
		p.hold(id, len(faces)*face.Size)
		p.meshes.Add(1)
		done(chunk.MeshResult{Faces: faces})
	}
	if err := p.submit(job); err != nil {
		p.failures.Add(1)
		slogger().Warn("worldgen: mesh request rejected", "coord", c, "err", err)
		done(chunk.MeshResult{Err: err})
	}
	return id
}

// Mesh meshes voxels synchronously on the calling goroutine.
func (p *Pipeline) Mesh(c chunk.Coord, voxels []byte) ([]face.Face, error) {
	return p.mesh(c, voxels)
}

func (p *Pipeline) mesh(c chunk.Coord, voxels []byte) ([]face.Face, error) {
	size := p.cfg.ChunkSize
	if len(voxels) != size*size*size {
		return nil, fmt.Errorf("worldgen: mesh %v: got %d voxels, want %d", c, len(voxels), size*size*size)
	}
	buf := p.scratch.Get().(*[]byte)
	defer p.scratch.Put(buf)

	m := Mesher{
		Size:     size,
		MaxFaces: p.cfg.MaxFaces,
		Greedy:   p.cfg.Greedy,
		Palette:  p.palette,
	}
	faces, err := m.Mesh(c, voxels, *buf)
	if err != nil {
		return nil, fmt.Errorf("worldgen: mesh %v: %w", c, err)
	}
	return faces, nil
}

// Cleanup implements chunk.Pipeline. It releases the accounting of a
// completed call; unknown ids are ignored.
func (p *Pipeline) Cleanup(id chunk.CallID) {
	p.mu.Lock()
	delete(p.transient, id)
	p.mu.Unlock()
}

// Stats returns a snapshot of pipeline statistics.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	s := Stats{InFlight: len(p.transient)}
	for _, n := range p.transient {
		s.TransientBytes += n
	}
	p.mu.Unlock()

	s.Queued = p.workers.queued()
	s.Voxels = p.voxels.Load()
	s.Meshes = p.meshes.Load()
	s.Failures = p.failures.Load()
	if p.cache != nil {
		s.Cached, s.CachedBytes, s.CacheHits, s.CacheMisses = p.cache.stats()
	}
	return s
}

// Palette returns the material colors.
func (p *Pipeline) Palette() *Palette {
	return p.palette
}

// Close stops the workers after running queued jobs. Requests made after
// Close fail with ErrClosed. Close must not run concurrently with requests.
func (p *Pipeline) Close() {
	p.workers.close()
	slogger().Info("worldgen: stopped", "voxels", p.voxels.Load(), "meshes", p.meshes.Load())
}

func (p *Pipeline) begin() chunk.CallID {
	id := chunk.CallID(p.nextID.Add(1))
	p.mu.Lock()
	p.transient[id] = 0
	p.mu.Unlock()
	return id
}

func (p *Pipeline) hold(id chunk.CallID, n int) {
	p.mu.Lock()
	if _, ok := p.transient[id]; ok {
		p.transient[id] = n
	}
	p.mu.Unlock()
}

func (p *Pipeline) submit(job func()) error {
	if !p.workers.running.Load() {
		return ErrClosed
	}
	if !p.workers.submit(job) {
		if !p.workers.running.Load() {
			return ErrClosed
		}
		return ErrQueueFull
	}
	return nil
}
