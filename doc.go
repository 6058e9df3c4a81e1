// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package voxel renders chunked voxel worlds from a fixed pool of GPU face
// buckets.
//
// The module is split into layers:
//
//   - face: the 40-byte face record and the slab layout of the face buffer
//   - facepool: the bucket allocator, command table and draw submission
//   - chunk: the chunk lifecycle state machine and its pending queues
//   - render: the vertex-pulling face pipeline
//   - voxel (this package): the per-frame Driver, camera math and config
//
// # Frame loop
//
// A Driver owns one pool, one chunk manager and one generation pipeline.
// Each frame it requests chunks around the camera, ticks the manager,
// masks buckets whose face direction points away from the camera, orders
// the rest front to back, flushes the pool and records the draws:
//
//	d, err := voxel.NewDriver(device, queue, voxel.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer d.Close()
//
//	for {
//	    draws, err := d.RenderFrame(camera, pass)
//	    ...
//	}
//
// Without a device the Driver runs headless: all CPU state is maintained
// and draws are recorded into any facepool.DrawEncoder.
//
// The Driver is not safe for concurrent use. Generation runs on worker
// goroutines and reports back through the manager's completion channel.
package voxel
