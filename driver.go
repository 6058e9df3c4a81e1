// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package voxel

import (
	"context"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/voxel/chunk"
	"github.com/gogpu/voxel/facepool"
	"github.com/gogpu/voxel/internal/voxstore"
	"github.com/gogpu/voxel/internal/worldgen"
	"github.com/gogpu/voxel/render"
)

// Input supplies one camera per frame.
type Input interface {
	// Poll returns the camera for the next frame. ok is false when the
	// loop should stop.
	Poll() (cam Camera, ok bool)
}

// PassProvider opens and closes the render pass of each frame.
type PassProvider interface {
	BeginPass() (render.PassEncoder, error)
	EndPass(render.PassEncoder) error
}

// FrameStats describes one rendered frame.
type FrameStats struct {
	Frame uint64

	// Draws is the number of bucket draws recorded.
	Draws int

	// Faces is the number of faces those draws cover.
	Faces int
}

// Driver runs the per-frame loop over a pool, a chunk manager and a
// generation pipeline.
type Driver struct {
	cfg      Config
	pool     *facepool.Pool
	manager  *chunk.Manager
	pipeline *worldgen.Pipeline
	renderer *render.Renderer
	codec    voxstore.Codec

	frame    uint64
	center   chunk.Coord
	centered bool
	resident map[chunk.Coord]struct{}
}

// NewDriver creates a driver on device and queue. A nil device creates a
// headless driver.
func NewDriver(device hal.Device, queue hal.Queue, cfg Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	d := &Driver{cfg: cfg, resident: make(map[chunk.Coord]struct{})}
	var err error
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	if d.codec, err = voxstore.New(cfg.Codec); err != nil {
		return nil, err
	}
	if d.pool, err = facepool.New(device, queue, cfg.Pool); err != nil {
		return nil, err
	}
	if d.pipeline, err = worldgen.New(cfg.World); err != nil {
		return nil, err
	}
	cfg.Chunks.Codec = d.codec
	if d.manager, err = chunk.NewManager(d.pool, d.pipeline, cfg.Chunks); err != nil {
		return nil, err
	}
	if device != nil {
		if d.renderer, err = render.New(device, queue, cfg.Render); err != nil {
			return nil, err
		}
	}

	Logger().Info("voxel: driver created",
		"gpu", device != nil,
		"chunk", cfg.Chunks.ChunkSize,
		"radius", cfg.ViewRadius,
		"codec", cfg.Codec,
		"pool", d.pool.Stats().String())
	return d, nil
}

// NewDriverFromProvider creates a driver on the HAL device exposed by a
// host application's device provider.
func NewDriverFromProvider(provider gpucontext.DeviceProvider, cfg Config) (*Driver, error) {
	device, queue, err := render.HALFromProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("voxel: %w", err)
	}
	return NewDriver(device, queue, cfg)
}

// Pool returns the face pool.
func (d *Driver) Pool() *facepool.Pool { return d.pool }

// Chunks returns the chunk manager.
func (d *Driver) Chunks() *chunk.Manager { return d.manager }

// Frame returns the number of frames rendered.
func (d *Driver) Frame() uint64 { return d.frame }

// RenderFrame advances one frame for cam and records its draws into pass.
// pass may be nil to update state without drawing. Without a GPU device,
// draws go straight to pass as a facepool.DrawEncoder.
func (d *Driver) RenderFrame(cam Camera, pass render.PassEncoder) (FrameStats, error) {
	size := d.cfg.Chunks.ChunkSize
	d.follow(cam.Chunk(size))
	d.manager.Tick(d.frame)

	half := float32(size) / 2
	d.pool.Mask(func(_ facepool.Bucket, meta facepool.BucketMeta) bool {
		return cam.Facing(meta, half)
	})
	d.pool.Order(cam.FrontToBack)

	stats := FrameStats{Frame: d.frame}
	d.frame++
	if err := d.pool.Flush(); err != nil {
		return stats, err
	}
	if pass == nil {
		return stats, nil
	}

	stats.Faces = d.pool.TotalDrawCount()
	if d.renderer == nil {
		stats.Draws = d.pool.Draw(pass)
		return stats, nil
	}
	d.renderer.SetCamera(cam.Uniforms(d.cfg.LightDir))
	n, err := d.renderer.RecordDraws(pass, d.pool)
	stats.Draws = n
	return stats, err
}

// Run renders frames until input stops, ctx is done or a frame fails.
// passes may be nil for a headless loop.
func (d *Driver) Run(ctx context.Context, input Input, passes PassProvider) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cam, ok := input.Poll()
		if !ok {
			return nil
		}
		if err := d.runFrame(cam, passes); err != nil {
			return err
		}
	}
}

func (d *Driver) runFrame(cam Camera, passes PassProvider) error {
	if passes == nil {
		_, err := d.RenderFrame(cam, nil)
		return err
	}
	pass, err := passes.BeginPass()
	if err != nil {
		return fmt.Errorf("voxel: begin pass: %w", err)
	}
	_, err = d.RenderFrame(cam, pass)
	if endErr := passes.EndPass(pass); err == nil && endErr != nil {
		err = fmt.Errorf("voxel: end pass: %w", endErr)
	}
	return err
}

// Close stops generation and releases GPU resources. In-flight results
// are discarded.
func (d *Driver) Close() {
	if d.pipeline != nil {
		d.pipeline.Close()
		d.pipeline = nil
	}
	if d.manager != nil {
		d.manager.Drain()
	}
	if d.renderer != nil {
		d.renderer.Destroy()
		d.renderer = nil
	}
	if d.pool != nil {
		d.pool.Destroy()
	}
	closeCodec(d.codec)
	d.codec = nil
}

func closeCodec(c voxstore.Codec) {
	switch c := c.(type) {
	case *voxstore.Zstd:
		c.Close()
	case voxstore.Chain:
		for _, codec := range c {
			closeCodec(codec)
		}
	}
}

// follow keeps the chunks within the view radius of center requested and
// evicts those beyond radius+1.
func (d *Driver) follow(center chunk.Coord) {
	if d.centered && center == d.center {
		return
	}
	d.center, d.centered = center, true

	r := int64(d.cfg.ViewRadius)
	keep := (r + 1) * (r + 1)
	for c := range d.resident {
		if c.DistanceSq(center) > keep {
			d.manager.Evict(c)
			delete(d.resident, c)
		}
	}

	rr := r * r
	for z := -r; z <= r; z++ {
		for y := -r; y <= r; y++ {
			for x := -r; x <= r; x++ {
				c := center.Add(chunk.Coord{X: int32(x), Y: int32(y), Z: int32(z)})
				if c.DistanceSq(center) <= rr {
					d.resident[c] = struct{}{}
				}
			}
		}
	}
	d.manager.RequestRadius(center, d.cfg.ViewRadius)
	Logger().Debug("voxel: view moved", "center", center, "resident", len(d.resident))
}
