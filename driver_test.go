// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package voxel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/voxel/chunk"
	"github.com/gogpu/voxel/facepool"
	"github.com/gogpu/voxel/internal/worldgen"
	"github.com/gogpu/voxel/render"
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

// testConfig is a small world: 8^3 chunks over a flat plane at y = 4.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Pool = facepool.Config{BucketCount: 64, BucketCapacity: 64}
	cfg.Chunks.ChunkSize = 8
	cfg.Chunks.MeshInterval = 1
	cfg.Chunks.MaxInFlight = 4
	cfg.World.Workers = 2
	cfg.World.Terrain = worldgen.Terrain{Shape: worldgen.ShapePlane, BaseHeight: 4}
	cfg.ViewRadius = 1
	return cfg
}

func newTestDriver(t *testing.T, cfg Config) *Driver {
	t.Helper()
	d, err := NewDriver(nil, nil, cfg)
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}
	return d
}

// radiusOne lists the chunks resident around the origin with ViewRadius 1.
var radiusOne = []chunk.Coord{
	{}, {X: 1}, {X: -1}, {Y: 1}, {Y: -1}, {Z: 1}, {Z: -1},
}

// settle renders frames until every chunk in coords is meshed.
func settle(t *testing.T, d *Driver, cam Camera, coords []chunk.Coord) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := d.RenderFrame(cam, nil); err != nil {
			t.Fatalf("RenderFrame failed: %v", err)
		}
		ready := 0
		for _, c := range coords {
			if d.Chunks().State(c) == chunk.MeshReady {
				ready++
			}
		}
		if ready == len(coords) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("chunks not ready: %s", d.Chunks().Stats())
		}
		time.Sleep(time.Millisecond)
	}
}

// encoder is a render.PassEncoder that records draws.
type encoder struct {
	pipelines int
	draws     []facepool.DrawCommand
}

func (e *encoder) SetPipeline(hal.RenderPipeline)                           { e.pipelines++ }
func (e *encoder) SetBindGroup(uint32, hal.BindGroup, []uint32)             {}
func (e *encoder) SetIndexBuffer(hal.Buffer, gputypes.IndexFormat, uint64) {}

func (e *encoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	e.draws = append(e.draws, facepool.DrawCommand{
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		BaseVertex:    baseVertex,
		FirstInstance: firstInstance,
	})
}

func TestDriverHeadless(t *testing.T) {
	d := newTestDriver(t, testConfig())
	defer d.Close()

	cam := DefaultCamera([3]float32{4, 6, 4})
	settle(t, d, cam, radiusOne)

	// Five ground and one solid chunk mesh to six merged faces each; the
	// chunk above the plane is empty.
	if got := len(d.Chunks().Buckets(chunk.Coord{Y: 1})); got != 0 {
		t.Errorf("empty chunk holds %d buckets", got)
	}
	if s := d.Pool().Stats(); s.Occupied != 36 || s.Faces != 36 {
		t.Fatalf("pool = %s, want 36 occupied buckets and faces", s)
	}

	var enc encoder
	stats, err := d.RenderFrame(cam, &enc)
	if err != nil {
		t.Fatalf("RenderFrame failed: %v", err)
	}
	// The outer side of each neighbor and the underside of the solid chunk
	// face away from the camera.
	if stats.Draws != 31 || stats.Faces != 31 || len(enc.draws) != 31 {
		t.Errorf("frame = %+v with %d draws, want 31 draws and faces", stats, len(enc.draws))
	}
	if d.Pool().EnabledBuckets() != 31 {
		t.Errorf("EnabledBuckets = %d, want 31", d.Pool().EnabledBuckets())
	}

	// Front to back: the first draw belongs to the camera's own chunk.
	first := d.Pool().SubmissionOrder()[0]
	if got := d.Pool().Meta(first).Anchor; got != [3]float32{4, 4, 4} {
		t.Errorf("first bucket anchor = %v, want the camera chunk center", got)
	}
}

func TestDriverDrawIdempotent(t *testing.T) {
	d := newTestDriver(t, testConfig())
	defer d.Close()

	cam := DefaultCamera([3]float32{4, 6, 4})
	settle(t, d, cam, radiusOne)

	var a, b encoder
	if _, err := d.RenderFrame(cam, &a); err != nil {
		t.Fatalf("RenderFrame failed: %v", err)
	}
	if _, err := d.RenderFrame(cam, &b); err != nil {
		t.Fatalf("RenderFrame failed: %v", err)
	}
	if len(a.draws) == 0 || len(a.draws) != len(b.draws) {
		t.Fatalf("draw counts %d and %d", len(a.draws), len(b.draws))
	}
	for i := range a.draws {
		if a.draws[i] != b.draws[i] {
			t.Errorf("draw %d differs: %+v vs %+v", i, a.draws[i], b.draws[i])
		}
	}
	if d.Frame() == 0 {
		t.Error("frame counter not advanced")
	}
}

func TestDriverEvictsBehindCamera(t *testing.T) {
	d := newTestDriver(t, testConfig())
	defer d.Close()

	cam := DefaultCamera([3]float32{4, 6, 4})
	settle(t, d, cam, radiusOne)

	// Moving ten chunks along +X leaves every resident chunk out of range.
	cam.Position[0] += 80
	if _, err := d.RenderFrame(cam, nil); err != nil {
		t.Fatalf("RenderFrame failed: %v", err)
	}
	for _, c := range radiusOne {
		if got := d.Chunks().State(c); got != chunk.Unrequested {
			t.Errorf("chunk %v state = %v, want Unrequested after eviction", c, got)
		}
	}
	if got := d.Pool().FreeCount(); got != 64 {
		t.Errorf("FreeCount = %d, want 64 after evicting everything", got)
	}

	moved := make([]chunk.Coord, len(radiusOne))
	for i, c := range radiusOne {
		moved[i] = c.Add(chunk.Coord{X: 10})
	}
	settle(t, d, cam, moved)
	if s := d.Pool().Stats(); s.Occupied != 36 {
		t.Errorf("pool after move = %s, want 36 occupied", s)
	}
}

// script is an Input that returns a fixed number of frames.
type script struct {
	cam    Camera
	frames int
}

func (s *script) Poll() (Camera, bool) {
	if s.frames == 0 {
		return Camera{}, false
	}
	s.frames--
	return s.cam, true
}

// passes counts begin and end calls.
type passes struct {
	enc        encoder
	begun, end int
}

func (p *passes) BeginPass() (render.PassEncoder, error) {
	p.begun++
	return &p.enc, nil
}

func (p *passes) EndPass(render.PassEncoder) error {
	p.end++
	return nil
}

func TestDriverRun(t *testing.T) {
	d := newTestDriver(t, testConfig())
	defer d.Close()

	in := &script{cam: DefaultCamera([3]float32{4, 6, 4}), frames: 5}
	var p passes
	if err := d.Run(context.Background(), in, &p); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if d.Frame() != 5 || p.begun != 5 || p.end != 5 {
		t.Errorf("frames=%d begun=%d ended=%d, want 5 each", d.Frame(), p.begun, p.end)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in.frames = 5
	if err := d.Run(ctx, in, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Run with canceled context = %v, want context.Canceled", err)
	}
	if in.frames != 5 {
		t.Error("Run polled input after cancellation")
	}
}

func TestDriverGPU(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	cfg := testConfig()
	d, err := NewDriverFromProvider(halProvider{render.NullDeviceHandle{}, device, queue}, cfg)
	if err != nil {
		t.Fatalf("NewDriverFromProvider failed: %v", err)
	}
	defer d.Close()

	cam := DefaultCamera([3]float32{4, 6, 4})
	settle(t, d, cam, radiusOne)

	var enc encoder
	stats, err := d.RenderFrame(cam, &enc)
	if err != nil {
		t.Fatalf("RenderFrame failed: %v", err)
	}
	if enc.pipelines != 1 || stats.Draws != 31 {
		t.Errorf("pipelines=%d draws=%d, want 1 and 31", enc.pipelines, stats.Draws)
	}
	if d.Pool().Buffers().Faces == nil {
		t.Error("GPU driver pool has no face buffer")
	}
}

func TestNewDriverFromProviderWithoutHAL(t *testing.T) {
	_, err := NewDriverFromProvider(render.NullDeviceHandle{}, testConfig())
	if !errors.Is(err, render.ErrNoHAL) {
		t.Errorf("NewDriverFromProvider = %v, want ErrNoHAL", err)
	}
}

// halProvider is a device provider that also exposes HAL objects.
type halProvider struct {
	render.NullDeviceHandle
	device hal.Device
	queue  hal.Queue
}

func (p halProvider) HalDevice() any { return p.device }
func (p halProvider) HalQueue() any  { return p.queue }
