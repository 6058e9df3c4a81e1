package main

import (
	"log"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/voxel"
	"github.com/gogpu/voxel/render"
)

// reporter is a render pass that counts draws and logs a summary every few
// frames. No GPU commands are issued.
type reporter struct {
	driver *voxel.Driver
	every  int

	draws   int
	indices uint64
}

func (r *reporter) BeginPass() (render.PassEncoder, error) {
	r.draws, r.indices = 0, 0
	return r, nil
}

func (r *reporter) EndPass(render.PassEncoder) error {
	frame := r.driver.Frame()
	if r.every > 0 && frame%uint64(r.every) == 0 {
		s := r.driver.Chunks().Stats()
		log.Printf("frame %d: %d draws, %d indices, %d chunks in flight, pool %.1f%% full",
			frame, r.draws, r.indices, s.InFlight, r.driver.Pool().Stats().Utilization()*100)
	}
	return nil
}

func (r *reporter) SetPipeline(hal.RenderPipeline)                           {}
func (r *reporter) SetBindGroup(uint32, hal.BindGroup, []uint32)             {}
func (r *reporter) SetIndexBuffer(hal.Buffer, gputypes.IndexFormat, uint64) {}

func (r *reporter) DrawIndexed(indexCount, _, _ uint32, _ int32, _ uint32) {
	r.draws++
	r.indices += uint64(indexCount)
}
