// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render draws a facepool.Pool with a vertex-pulling render
// pipeline.
//
// The pipeline has no vertex buffers. The vertex shader reads encoded faces
// from the pool's storage buffer, so one indexed draw per bucket covers the
// bucket's whole slab. The renderer receives its device from the host
// application; it never creates one.
//
// # Usage
//
//	r, err := render.New(device, queue, render.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer r.Destroy()
//
//	r.SetCamera(uniforms)
//	if err := pool.Flush(); err != nil {
//	    return err
//	}
//	draws, err := r.RecordDraws(pass, pool)
package render
