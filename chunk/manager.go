// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package chunk drives the per-chunk lifecycle from voxel generation through
// meshing to installed geometry in a facepool.Pool.
//
// A Manager is owned by one goroutine, normally the frame loop. Pipeline
// callbacks never touch manager state: they post a Completion on a buffered
// channel which Tick drains once per frame.
package chunk

import (
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/semaphore"

	"github.com/gogpu/voxel/face"
	"github.com/gogpu/voxel/facepool"
)

// Manager errors.
var (
	// ErrInvalidConfig is returned when a Config has out-of-range fields.
	ErrInvalidConfig = errors.New("chunk: invalid config")

	// ErrPoolExhausted is reported when a mesh did not fit in the pool.
	ErrPoolExhausted = errors.New("chunk: face pool exhausted")

	// ErrNotResident is returned when a chunk holds no voxels.
	ErrNotResident = errors.New("chunk: voxels not resident")

	// ErrPayloadSize is returned when a voxel payload has the wrong length.
	ErrPayloadSize = errors.New("chunk: voxel payload size mismatch")
)

// Default throttle settings.
const (
	DefaultChunkSize          = 32
	DefaultMeshInterval       = 16
	DefaultGenerationInterval = 1
	DefaultMaxInFlight        = 1
)

// Config holds configuration for creating a Manager.
type Config struct {
	// ChunkSize is the edge length of a chunk in voxels.
	// Defaults to DefaultChunkSize if zero.
	ChunkSize int `yaml:"chunk_size"`

	// MeshInterval admits one mesh request every MeshInterval frames.
	// Defaults to DefaultMeshInterval if zero.
	MeshInterval uint64 `yaml:"mesh_interval"`

	// GenerationInterval admits one generation request every
	// GenerationInterval frames. Defaults to DefaultGenerationInterval if zero.
	GenerationInterval uint64 `yaml:"generation_interval"`

	// MaxInFlight bounds concurrent requests per stage.
	// Defaults to DefaultMaxInFlight if zero.
	MaxInFlight int `yaml:"max_in_flight"`

	// Policy selects the admission order of both pending queues.
	Policy Policy `yaml:"policy"`

	// Codec compresses retained voxels. Nil keeps them raw.
	Codec Codec `yaml:"-"`
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:          DefaultChunkSize,
		MeshInterval:       DefaultMeshInterval,
		GenerationInterval: DefaultGenerationInterval,
		MaxInFlight:        DefaultMaxInFlight,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ChunkSize == 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.MeshInterval == 0 {
		c.MeshInterval = d.MeshInterval
	}
	if c.GenerationInterval == 0 {
		c.GenerationInterval = d.GenerationInterval
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = d.MaxInFlight
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.ChunkSize < 0 {
		return fmt.Errorf("%w: chunk size %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.MaxInFlight < 0 {
		return fmt.Errorf("%w: max in flight %d", ErrInvalidConfig, c.MaxInFlight)
	}
	if c.Policy != FIFO && c.Policy != LIFO {
		return fmt.Errorf("%w: policy %d", ErrInvalidConfig, c.Policy)
	}
	return nil
}

// Stats contains manager statistics.
type Stats struct {
	// Chunks is the number of tracked chunks that are not evicted.
	Chunks int

	// States counts chunks per State.
	States [Evicted + 1]int

	// GenerationQueued and MeshQueued are the pending queue lengths.
	GenerationQueued int
	MeshQueued       int

	// InFlight is the number of outstanding pipeline calls.
	InFlight int

	// Partial is the number of chunks whose last mesh did not fit.
	Partial int

	// Buckets is the number of pool buckets owned by chunks.
	Buckets int

	// RetainedBytes is the size of all retained voxel payloads.
	RetainedBytes int

	Generated    uint64
	Meshed       uint64
	Failed       uint64
	Stale        uint64
	Exhausted    uint64
	DroppedFaces uint64
}

// String returns a human-readable string of manager stats.
func (s Stats) String() string {
	return fmt.Sprintf("Chunks[%d tracked, %d ready, %d queued, %d in flight, %d buckets, %d partial, %d failed]",
		s.Chunks, s.States[MeshReady], s.GenerationQueued+s.MeshQueued, s.InFlight,
		s.Buckets, s.Partial, s.Failed)
}

// record is the manager's per-chunk state.
type record struct {
	state   State
	epoch   uint64
	voxels  []byte
	buckets []facepool.Bucket

	// meshed is set once any mesh was installed.
	meshed bool

	// partial is set when the last mesh dropped faces.
	partial bool

	// busy is set while a pipeline call for the chunk is outstanding.
	busy bool

	// dirty asks for a re-mesh once the outstanding mesh completes.
	dirty bool

	// failed is set when the last call returned an error.
	failed bool
}

// call is an outstanding pipeline request.
type call struct {
	id    CallID
	coord Coord
	epoch uint64
	kind  Kind
}

// completion is the message posted by pipeline callbacks.
type completion struct {
	token  uint64
	voxels []byte
	faces  []face.Face
	err    error
}

// Manager owns the chunk map and drives generation and meshing.
type Manager struct {
	cfg      Config
	pool     *facepool.Pool
	pipeline Pipeline

	chunks    map[Coord]*record
	genQueue  *uniqueQueue
	meshQueue *uniqueQueue

	genSem  *semaphore.Weighted
	meshSem *semaphore.Weighted

	// completions is sized so that a callback never blocks: at most
	// MaxInFlight calls per stage are outstanding.
	completions chan completion
	calls       map[uint64]call
	nextToken   uint64
	epoch       uint64

	// handled receives processed completions when set, for observers.
	handled func(Completion)

	stats Stats
}

// NewManager creates a manager that installs meshes into pool.
func NewManager(pool *facepool.Pool, pipeline Pipeline, cfg Config) (*Manager, error) {
	if pool == nil || pipeline == nil {
		return nil, fmt.Errorf("%w: nil pool or pipeline", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	return &Manager{
		cfg:         cfg,
		pool:        pool,
		pipeline:    pipeline,
		chunks:      make(map[Coord]*record),
		genQueue:    newUniqueQueue(cfg.Policy),
		meshQueue:   newUniqueQueue(cfg.Policy),
		genSem:      semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		meshSem:     semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		completions: make(chan completion, 2*cfg.MaxInFlight),
		calls:       make(map[uint64]call),
	}, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// OnCompletion registers fn to observe every completion processed by Tick.
func (m *Manager) OnCompletion(fn func(Completion)) {
	m.handled = fn
}

// Request queues chunks for generation. Chunks already known to the manager
// are left alone, except evicted chunks and chunks whose last call failed,
// which are requested again.
func (m *Manager) Request(coords ...Coord) {
	for _, c := range coords {
		rec := m.chunks[c]
		switch {
		case rec == nil, rec.state == Evicted:
			rec = m.newRecord()
			m.chunks[c] = rec
		case rec.failed && !rec.busy && rec.state == VoxelPending:
			rec.failed = false
		default:
			continue
		}
		rec.state = VoxelPending
		m.genQueue.push(c)
		slogger().Debug("chunk: requested", "coord", c)
	}
}

// RequestRadius requests all chunks within radius of center, nearest first.
func (m *Manager) RequestRadius(center Coord, radius int) {
	if radius < 0 {
		return
	}
	r := int32(radius)
	rr := int64(radius) * int64(radius)
	var coords []Coord
	for z := -r; z <= r; z++ {
		for y := -r; y <= r; y++ {
			for x := -r; x <= r; x++ {
				c := center.Add(Coord{x, y, z})
				if c.DistanceSq(center) <= rr {
					coords = append(coords, c)
				}
			}
		}
	}
	slices.SortStableFunc(coords, func(a, b Coord) int {
		da, db := a.DistanceSq(center), b.DistanceSq(center)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	})
	if m.cfg.Policy == LIFO {
		slices.Reverse(coords)
	}
	m.Request(coords...)
}

// MarkDirty schedules a re-mesh of a meshed chunk from its retained voxels.
// Returns false if the chunk has no voxels.
func (m *Manager) MarkDirty(c Coord) bool {
	rec := m.chunks[c]
	if rec == nil || rec.voxels == nil {
		return false
	}
	switch rec.state {
	case MeshReady:
		// Stays MeshReady, drawing the old buckets, until admitted.
		rec.failed = false
		m.meshQueue.push(c)
	case MeshPending:
		rec.dirty = true
	case VoxelReady:
		// Queued for its first mesh unless that mesh failed.
		rec.failed = false
		m.meshQueue.push(c)
	default:
		return false
	}
	return true
}

// UpdateVoxels replaces the retained voxels of a chunk and schedules a
// re-mesh.
func (m *Manager) UpdateVoxels(c Coord, voxels []byte) error {
	rec := m.chunks[c]
	if rec == nil || rec.voxels == nil {
		return fmt.Errorf("%w: %v", ErrNotResident, c)
	}
	if err := m.checkPayload(voxels); err != nil {
		return err
	}
	if err := m.retain(rec, voxels); err != nil {
		return err
	}
	m.MarkDirty(c)
	return nil
}

// Evict releases the chunk's buckets and voxels and forgets the chunk.
// A chunk with a call still outstanding stays Evicted until that call
// completes as stale. Returns false if the chunk is not tracked.
func (m *Manager) Evict(c Coord) bool {
	rec := m.chunks[c]
	if rec == nil || rec.state == Evicted {
		return false
	}
	m.releaseBuckets(rec)
	m.stats.RetainedBytes -= len(rec.voxels)
	rec.voxels = nil
	rec.state = Evicted
	rec.partial = false
	rec.dirty = false
	rec.meshed = false
	m.epoch++
	rec.epoch = m.epoch
	m.genQueue.remove(c)
	m.meshQueue.remove(c)
	if !rec.busy {
		delete(m.chunks, c)
	}
	slogger().Debug("chunk: evicted", "coord", c)
	return true
}

// State returns the lifecycle state of a chunk.
func (m *Manager) State(c Coord) State {
	if rec := m.chunks[c]; rec != nil {
		return rec.state
	}
	return Unrequested
}

// Partial reports whether the chunk's installed mesh dropped faces.
func (m *Manager) Partial(c Coord) bool {
	rec := m.chunks[c]
	return rec != nil && rec.partial
}

// Buckets returns a copy of the chunk's bucket list.
func (m *Manager) Buckets(c Coord) []facepool.Bucket {
	if rec := m.chunks[c]; rec != nil {
		return slices.Clone(rec.buckets)
	}
	return nil
}

// Voxels returns the decoded retained voxels of a chunk.
func (m *Manager) Voxels(c Coord) ([]byte, error) {
	rec := m.chunks[c]
	if rec == nil || rec.voxels == nil {
		return nil, fmt.Errorf("%w: %v", ErrNotResident, c)
	}
	return m.decode(rec)
}

// Len returns the number of tracked chunks that are not evicted.
func (m *Manager) Len() int {
	n := 0
	for _, rec := range m.chunks {
		if rec.state != Evicted {
			n++
		}
	}
	return n
}

// Stats returns a snapshot of manager statistics.
func (m *Manager) Stats() Stats {
	s := m.stats
	s.States = [Evicted + 1]int{}
	s.Chunks, s.Partial, s.Buckets = 0, 0, 0
	for _, rec := range m.chunks {
		s.States[rec.state]++
		if rec.state != Evicted {
			s.Chunks++
		}
		if rec.partial {
			s.Partial++
		}
		s.Buckets += len(rec.buckets)
	}
	s.GenerationQueued = m.genQueue.len()
	s.MeshQueued = m.meshQueue.len()
	s.InFlight = len(m.calls)
	return s
}

// Tick processes completions posted since the last tick, then admits new
// work per the throttle intervals. It never blocks.
func (m *Manager) Tick(frame uint64) {
	m.drain()

	if frame%m.cfg.GenerationInterval == 0 {
		m.admitGeneration()
	}
	if frame%m.cfg.MeshInterval == 0 {
		m.admitMesh()
	}
}

// Drain processes pending completions without admitting work.
func (m *Manager) Drain() {
	m.drain()
}

func (m *Manager) drain() {
	for {
		select {
		case c := <-m.completions:
			m.handle(c)
		default:
			return
		}
	}
}

func (m *Manager) admitGeneration() {
	if m.genQueue.len() == 0 || !m.genSem.TryAcquire(1) {
		return
	}
	c, _ := m.genQueue.pop()
	rec := m.chunks[c]
	rec.busy = true

	token := m.token(c, rec, KindVoxels)
	id := m.pipeline.GenerateVoxels(c, func(r VoxelResult) {
		m.completions <- completion{token: token, voxels: r.Voxels, err: r.Err}
	})
	m.bind(token, id)
	slogger().Debug("chunk: generating", "coord", c, "call", id)
}

func (m *Manager) admitMesh() {
	if m.meshQueue.len() == 0 || !m.meshSem.TryAcquire(1) {
		return
	}
	c, _ := m.meshQueue.pop()
	rec := m.chunks[c]

	voxels, err := m.decode(rec)
	if err != nil {
		m.meshSem.Release(1)
		m.stats.Failed++
		rec.failed = true
		rec.state = m.restingState(rec)
		slogger().Warn("chunk: voxel decode failed", "coord", c, "err", err)
		return
	}

	rec.state = MeshPending
	rec.busy = true
	token := m.token(c, rec, KindMesh)
	id := m.pipeline.GenerateMesh(c, voxels, func(r MeshResult) {
		m.completions <- completion{token: token, faces: r.Faces, err: r.Err}
	})
	m.bind(token, id)
	slogger().Debug("chunk: meshing", "coord", c, "call", id)
}

// newRecord returns a record with a fresh epoch, so calls issued for an
// earlier record of the same coordinate stay stale.
func (m *Manager) newRecord() *record {
	m.epoch++
	return &record{epoch: m.epoch}
}

func (m *Manager) token(c Coord, rec *record, kind Kind) uint64 {
	m.nextToken++
	m.calls[m.nextToken] = call{coord: c, epoch: rec.epoch, kind: kind}
	return m.nextToken
}

// bind records the pipeline's id for a token. A synchronous pipeline has
// already posted its completion, which is still undrained.
func (m *Manager) bind(token uint64, id CallID) {
	cl := m.calls[token]
	cl.id = id
	m.calls[token] = cl
}

func (m *Manager) handle(msg completion) {
	cl, ok := m.calls[msg.token]
	if !ok {
		return
	}
	delete(m.calls, msg.token)

	if cl.kind == KindVoxels {
		m.genSem.Release(1)
	} else {
		m.meshSem.Release(1)
	}
	defer m.pipeline.Cleanup(cl.id)

	done := Completion{
		CallID: cl.id,
		Coord:  cl.coord,
		Kind:   cl.kind,
		Voxels: msg.voxels,
		Faces:  msg.faces,
		Err:    msg.err,
	}
	if m.handled != nil {
		defer m.handled(done)
	}

	rec := m.chunks[cl.coord]
	if rec == nil || rec.epoch != cl.epoch || rec.state == Evicted {
		if rec != nil && rec.state == Evicted {
			// A record has at most one outstanding call.
			delete(m.chunks, cl.coord)
		}
		m.stats.Stale++
		slogger().Debug("chunk: stale completion", "coord", cl.coord, "kind", cl.kind)
		return
	}
	rec.busy = false

	if cl.kind == KindVoxels {
		m.installVoxels(cl.coord, rec, done)
	} else {
		m.installMesh(cl.coord, rec, done)
	}
}

func (m *Manager) installVoxels(c Coord, rec *record, done Completion) {
	err := done.Err
	if err == nil {
		err = m.checkPayload(done.Voxels)
	}
	if err == nil {
		err = m.retain(rec, done.Voxels)
	}
	if err != nil {
		m.stats.Failed++
		rec.failed = true
		slogger().Warn("chunk: generation failed", "coord", c, "err", err)
		return
	}

	m.stats.Generated++
	rec.failed = false
	rec.state = VoxelReady
	m.meshQueue.push(c)
}

func (m *Manager) installMesh(c Coord, rec *record, done Completion) {
	if done.Err != nil {
		m.stats.Failed++
		rec.failed = true
		rec.dirty = false
		rec.state = m.restingState(rec)
		slogger().Warn("chunk: meshing failed", "coord", c, "err", done.Err)
		return
	}

	// Old buckets go first, so the chunk is not drawn until the new
	// buckets are filled.
	m.releaseBuckets(rec)

	dropped := m.fillBuckets(c, rec, done.Faces)
	rec.partial = dropped > 0
	if dropped > 0 {
		m.stats.Exhausted++
		m.stats.DroppedFaces += uint64(dropped)
		slogger().Warn("chunk: mesh truncated",
			"coord", c,
			"faces", len(done.Faces),
			"dropped", dropped,
			"err", ErrPoolExhausted)
	}

	m.stats.Meshed++
	rec.meshed = true
	rec.failed = false
	rec.state = MeshReady

	if rec.dirty {
		rec.dirty = false
		m.meshQueue.push(c)
	}
}

// fillBuckets writes faces into new buckets grouped by direction and
// returns the number of faces that did not fit.
func (m *Manager) fillBuckets(c Coord, rec *record, faces []face.Face) int {
	if len(faces) == 0 {
		return 0
	}

	var groups [face.DirectionCount][]face.Face
	invalid := 0
	for _, f := range faces {
		if !f.Direction.Valid() {
			invalid++
			continue
		}
		groups[f.Direction] = append(groups[f.Direction], f)
	}
	if invalid > 0 {
		slogger().Warn("chunk: faces with invalid direction", "coord", c, "count", invalid)
	}

	capacity := m.pool.Layout().BucketCapacity
	anchor := c.Center(m.cfg.ChunkSize)
	dropped := invalid
	for d := range groups {
		g := groups[d]
		for len(g) > 0 {
			if capacity == 0 {
				dropped += len(g)
				break
			}
			b, ok := m.pool.RequestBucket(anchor, face.Direction(d))
			if !ok {
				dropped += len(g)
				for _, rest := range groups[d+1:] {
					dropped += len(rest)
				}
				return dropped
			}
			n := min(len(g), capacity)
			m.pool.Fill(b, g[:n])
			rec.buckets = append(rec.buckets, b)
			g = g[n:]
		}
	}
	return dropped
}

func (m *Manager) releaseBuckets(rec *record) {
	for _, b := range rec.buckets {
		m.pool.ReleaseBucket(b)
	}
	rec.buckets = rec.buckets[:0]
}

// restingState is the state a chunk returns to after a failed or skipped
// mesh request.
func (m *Manager) restingState(rec *record) State {
	if rec.meshed {
		return MeshReady
	}
	return VoxelReady
}

func (m *Manager) checkPayload(voxels []byte) error {
	want := m.cfg.ChunkSize * m.cfg.ChunkSize * m.cfg.ChunkSize
	if voxels == nil {
		return fmt.Errorf("%w: no payload", ErrPayloadSize)
	}
	if len(voxels) != want {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrPayloadSize, len(voxels), want)
	}
	return nil
}

func (m *Manager) retain(rec *record, voxels []byte) error {
	data := slices.Clone(voxels)
	if m.cfg.Codec != nil {
		var err error
		data, err = m.cfg.Codec.Encode(nil, voxels)
		if err != nil {
			return fmt.Errorf("chunk: encode voxels: %w", err)
		}
	}
	m.stats.RetainedBytes += len(data) - len(rec.voxels)
	rec.voxels = data
	return nil
}

func (m *Manager) decode(rec *record) ([]byte, error) {
	if m.cfg.Codec == nil {
		return rec.voxels, nil
	}
	out, err := m.cfg.Codec.Decode(nil, rec.voxels)
	if err != nil {
		return nil, fmt.Errorf("chunk: decode voxels: %w", err)
	}
	return out, nil
}
