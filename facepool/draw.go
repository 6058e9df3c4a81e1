// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package facepool

import "github.com/gogpu/wgpu/hal"

// DrawEncoder is the subset of hal.RenderPassEncoder used to submit bucket
// draws. The caller binds the pipeline, the face buffer and the shared index
// buffer before calling Draw.
type DrawEncoder interface {
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
}

// indirectEncoder is implemented by encoders that can read draw arguments
// from a GPU buffer.
type indirectEncoder interface {
	DrawIndexedIndirect(buffer hal.Buffer, offset uint64)
}

// Draw records one draw per enabled bucket in submission order and returns
// the number of draws recorded. Disabled and empty buckets are skipped. With
// Config.Indirect and an encoder that supports it, each draw reads its
// arguments from the command buffer at b*CommandSize; Flush must have run
// for the frame.
//
// Draw does not mutate pool state, so consecutive calls record the same
// draws.
func (p *Pool) Draw(enc DrawEncoder) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.destroyed {
		return 0
	}

	var ind indirectEncoder
	if p.cfg.Indirect && p.buffers.Commands != nil {
		ind, _ = enc.(indirectEncoder)
	}

	n := 0
	for _, b := range p.order {
		c := p.commands[b]
		if !c.draws() {
			continue
		}
		if ind != nil {
			ind.DrawIndexedIndirect(p.buffers.Commands, uint64(b)*CommandSize)
		} else {
			enc.DrawIndexed(c.IndexCount, c.InstanceCount, c.FirstIndex, c.BaseVertex, c.FirstInstance)
		}
		n++
	}
	return n
}
