// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/voxel/facepool"
)

//go:embed shaders/face.wgsl
var faceShaderSource string

// UniformSize is the byte size of the camera uniform block:
//
//	view_proj (mat4x4<f32>) = 64 bytes
//	eye       (vec4<f32>)   = 16 bytes
//	light_dir (vec4<f32>)   = 16 bytes
const UniformSize = 96

// Renderer errors.
var (
	// ErrNoDevice is returned by New without a device.
	ErrNoDevice = errors.New("render: nil device")

	// ErrInvalidConfig is returned when a Config has out-of-range fields.
	ErrInvalidConfig = errors.New("render: invalid config")

	// ErrNoBuffers is returned by RecordDraws for a pool without GPU buffers.
	ErrNoBuffers = errors.New("render: pool has no GPU buffers")
)

// Uniforms is the per-frame camera state read by the face shader.
type Uniforms struct {
	// ViewProj is the column-major view-projection matrix.
	ViewProj [16]float32

	// Eye is the camera position in world space.
	Eye [3]float32

	// LightDir is the direction light travels in world space.
	LightDir [3]float32
}

func (u *Uniforms) encode(dst []byte) {
	for i, v := range u.ViewProj {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
	for i, v := range u.Eye {
		binary.LittleEndian.PutUint32(dst[64+i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(dst[76:], math.Float32bits(1))
	for i, v := range u.LightDir {
		binary.LittleEndian.PutUint32(dst[80+i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(dst[92:], 0)
}

// Config holds configuration for creating a Renderer.
type Config struct {
	// ColorFormat is the render target format.
	ColorFormat gputypes.TextureFormat `yaml:"-"`

	// DepthFormat is the depth attachment format. Undefined disables depth
	// testing.
	DepthFormat gputypes.TextureFormat `yaml:"-"`

	// SampleCount is the MSAA sample count, 1 or 4.
	SampleCount uint32 `yaml:"sample_count"`

	// CullBackFaces enables back-face culling.
	CullBackFaces bool `yaml:"cull_back_faces"`

	// SPIRV compiles the shader with naga and hands the device SPIR-V
	// instead of WGSL.
	SPIRV bool `yaml:"spirv"`
}

// DefaultConfig returns the default renderer configuration.
func DefaultConfig() Config {
	return Config{
		ColorFormat:   gputypes.TextureFormatBGRA8Unorm,
		DepthFormat:   gputypes.TextureFormatDepth24PlusStencil8,
		SampleCount:   1,
		CullBackFaces: true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SampleCount != 0 && c.SampleCount != 1 && c.SampleCount != 4 {
		return fmt.Errorf("%w: sample count %d", ErrInvalidConfig, c.SampleCount)
	}
	return nil
}

// PassEncoder is the subset of hal.RenderPassEncoder used by RecordDraws.
type PassEncoder interface {
	facepool.DrawEncoder
	SetPipeline(pipeline hal.RenderPipeline)
	SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32)
	SetIndexBuffer(buffer hal.Buffer, format gputypes.IndexFormat, offset uint64)
}

// Renderer records face pool draws into a render pass owned by the caller.
// The pipeline is created on first use. A Renderer is not safe for
// concurrent use.
type Renderer struct {
	device hal.Device
	queue  hal.Queue
	cfg    Config

	shader     hal.ShaderModule
	layout     hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline

	uniformBuf hal.Buffer
	uniforms   [UniformSize]byte

	// bindGroup binds uniformBuf and boundFaces. It is rebuilt when the
	// pool's face buffer changes.
	bindGroup  hal.BindGroup
	boundFaces hal.Buffer
}

// New creates a renderer. GPU objects are not created until the first
// RecordDraws.
func New(device hal.Device, queue hal.Queue, cfg Config) (*Renderer, error) {
	if device == nil || queue == nil {
		return nil, ErrNoDevice
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SampleCount == 0 {
		cfg.SampleCount = 1
	}
	if cfg.ColorFormat == gputypes.TextureFormatUndefined {
		cfg.ColorFormat = gputypes.TextureFormatBGRA8Unorm
	}
	r := &Renderer{device: device, queue: queue, cfg: cfg}
	u := Uniforms{ViewProj: identity}
	u.encode(r.uniforms[:])
	return r, nil
}

var identity = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// SetCamera updates the camera uniforms for subsequent draws.
func (r *Renderer) SetCamera(u Uniforms) {
	u.encode(r.uniforms[:])
	if r.uniformBuf != nil {
		r.queue.WriteBuffer(r.uniformBuf, 0, r.uniforms[:])
	}
}

// RecordDraws binds the face pipeline and the pool's buffers and records
// one draw per enabled bucket. It returns the number of draws recorded.
// The pool must have been flushed for the frame.
func (r *Renderer) RecordDraws(rp PassEncoder, pool *facepool.Pool) (int, error) {
	bufs := pool.Buffers()
	if bufs.Faces == nil || bufs.Indices == nil {
		return 0, ErrNoBuffers
	}
	if err := r.ensurePipeline(); err != nil {
		return 0, err
	}
	if err := r.ensureBindGroup(bufs.Faces, pool.Layout().BufferSize()); err != nil {
		return 0, err
	}

	rp.SetPipeline(r.pipeline)
	rp.SetBindGroup(0, r.bindGroup, nil)
	rp.SetIndexBuffer(bufs.Indices, bufs.IndexFormat, 0)
	n := pool.Draw(rp)
	slogger().Debug("render: recorded draws", "draws", n)
	return n, nil
}

// Destroy releases all GPU resources held by the renderer. Safe to call
// multiple times.
func (r *Renderer) Destroy() {
	r.destroyBindGroup()
	if r.uniformBuf != nil {
		r.device.DestroyBuffer(r.uniformBuf)
		r.uniformBuf = nil
	}
	r.destroyPipeline()
}

// ensurePipeline creates the shader, layouts, uniform buffer and render
// pipeline if they don't already exist.
func (r *Renderer) ensurePipeline() error {
	if r.pipeline != nil {
		return nil
	}
	if err := r.createPipeline(); err != nil {
		r.destroyPipeline()
		return err
	}
	return nil
}

func (r *Renderer) createPipeline() error {
	source := hal.ShaderSource{WGSL: faceShaderSource}
	if r.cfg.SPIRV {
		code, err := CompileShader()
		if err != nil {
			return err
		}
		source = hal.ShaderSource{SPIRV: code}
	}
	shader, err := r.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "face_shader",
		Source: source,
	})
	if err != nil {
		return fmt.Errorf("compile face shader: %w", err)
	}
	r.shader = shader

	layout, err := r.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "face_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageVertex,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create face bind layout: %w", err)
	}
	r.layout = layout

	pipeLayout, err := r.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "face_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{r.layout},
	})
	if err != nil {
		return fmt.Errorf("create face pipeline layout: %w", err)
	}
	r.pipeLayout = pipeLayout

	cull := gputypes.CullModeNone
	if r.cfg.CullBackFaces {
		cull = gputypes.CullModeBack
	}
	desc := &hal.RenderPipelineDescriptor{
		Label:  "face_pipeline",
		Layout: r.pipeLayout,
		Vertex: hal.VertexState{
			Module:     r.shader,
			EntryPoint: "vs_main",
		},
		Fragment: &hal.FragmentState{
			Module:     r.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    r.cfg.ColorFormat,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  gputypes.PrimitiveTopologyTriangleList,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  cull,
		},
		Multisample: gputypes.MultisampleState{
			Count: r.cfg.SampleCount,
			Mask:  0xFFFFFFFF,
		},
	}
	if r.cfg.DepthFormat != gputypes.TextureFormatUndefined {
		keep := hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		}
		desc.DepthStencil = &hal.DepthStencilState{
			Format:            r.cfg.DepthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront:      keep,
			StencilBack:       keep,
		}
	}
	pipeline, err := r.device.CreateRenderPipeline(desc)
	if err != nil {
		return fmt.Errorf("create face pipeline: %w", err)
	}
	r.pipeline = pipeline

	uniformBuf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "face_uniforms",
		Size:  UniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create face uniform buffer: %w", err)
	}
	r.uniformBuf = uniformBuf
	r.queue.WriteBuffer(r.uniformBuf, 0, r.uniforms[:])

	slogger().Debug("render: face pipeline created",
		"spirv", r.cfg.SPIRV,
		"samples", r.cfg.SampleCount,
		"depth", r.cfg.DepthFormat != gputypes.TextureFormatUndefined)
	return nil
}

func (r *Renderer) ensureBindGroup(faces hal.Buffer, size uint64) error {
	if r.bindGroup != nil && r.boundFaces == faces {
		return nil
	}
	r.destroyBindGroup()

	bindGroup, err := r.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "face_bind_group",
		Layout: r.layout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: r.uniformBuf.NativeHandle(), Offset: 0, Size: UniformSize,
			}},
			{Binding: 1, Resource: gputypes.BufferBinding{
				Buffer: faces.NativeHandle(), Offset: 0, Size: size,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("create face bind group: %w", err)
	}
	r.bindGroup = bindGroup
	r.boundFaces = faces
	return nil
}

func (r *Renderer) destroyBindGroup() {
	if r.bindGroup != nil {
		r.device.DestroyBindGroup(r.bindGroup)
		r.bindGroup = nil
	}
	r.boundFaces = nil
}

// destroyPipeline releases all pipeline resources in reverse creation order.
func (r *Renderer) destroyPipeline() {
	if r.pipeline != nil {
		r.device.DestroyRenderPipeline(r.pipeline)
		r.pipeline = nil
	}
	if r.pipeLayout != nil {
		r.device.DestroyPipelineLayout(r.pipeLayout)
		r.pipeLayout = nil
	}
	if r.layout != nil {
		r.device.DestroyBindGroupLayout(r.layout)
		r.layout = nil
	}
	if r.shader != nil {
		r.device.DestroyShaderModule(r.shader)
		r.shader = nil
	}
}

// ShaderSource returns the WGSL source of the face shader.
func ShaderSource() string {
	return faceShaderSource
}

// CompileShader compiles the face shader to SPIR-V words.
func CompileShader() ([]uint32, error) {
	spirvBytes, err := naga.Compile(faceShaderSource)
	if err != nil {
		return nil, fmt.Errorf("render: compile face shader: %w", err)
	}
	// SPIR-V is little-endian 32-bit words
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return code, nil
}
