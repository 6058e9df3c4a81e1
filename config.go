// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package voxel

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/voxel/chunk"
	"github.com/gogpu/voxel/facepool"
	"github.com/gogpu/voxel/internal/voxstore"
	"github.com/gogpu/voxel/internal/worldgen"
	"github.com/gogpu/voxel/render"
)

// ErrInvalidConfig is returned when a Config has out-of-range fields.
var ErrInvalidConfig = errors.New("voxel: invalid config")

// DefaultViewRadius is the default chunk view distance.
const DefaultViewRadius = 4

// Config holds configuration for creating a Driver.
type Config struct {
	// Pool sizes the face bucket pool.
	Pool facepool.Config `yaml:"pool"`

	// Chunks configures the chunk lifecycle manager.
	Chunks chunk.Config `yaml:"chunks"`

	// World configures voxel generation and meshing. Its chunk size follows
	// Chunks.ChunkSize when zero.
	World worldgen.Config `yaml:"world"`

	// Render configures the face pipeline. Ignored without a device.
	Render render.Config `yaml:"render"`

	// Codec names the retained voxel codec: raw, palette, zstd or
	// palette+zstd.
	Codec string `yaml:"codec"`

	// ViewRadius is the chunk distance kept resident around the camera.
	// Chunks beyond ViewRadius+1 are evicted.
	ViewRadius int `yaml:"view_radius"`

	// LightDir is the direction sunlight travels.
	LightDir [3]float32 `yaml:"light_dir"`
}

// DefaultConfig returns the default driver configuration.
func DefaultConfig() Config {
	world := worldgen.DefaultConfig()
	world.ChunkSize = 0
	world.CacheBytes = 8 << 20
	return Config{
		Pool:       facepool.DefaultConfig(),
		Chunks:     chunk.DefaultConfig(),
		World:      world,
		Render:     render.DefaultConfig(),
		Codec:      "palette",
		ViewRadius: DefaultViewRadius,
		LightDir:   [3]float32{-0.4, -1, -0.3},
	}
}

func (c Config) withDefaults() Config {
	if c.Chunks.ChunkSize == 0 {
		c.Chunks.ChunkSize = chunk.DefaultChunkSize
	}
	if c.World.ChunkSize == 0 {
		c.World.ChunkSize = c.Chunks.ChunkSize
	}
	if c.Codec == "" {
		c.Codec = "palette"
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	if err := c.Pool.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Chunks.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.World.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Render.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.World.ChunkSize != c.Chunks.ChunkSize {
		return fmt.Errorf("%w: world chunk size %d != chunk size %d",
			ErrInvalidConfig, c.World.ChunkSize, c.Chunks.ChunkSize)
	}
	if !slices.Contains(voxstore.Names(), c.Codec) {
		return fmt.Errorf("%w: codec %q", ErrInvalidConfig, c.Codec)
	}
	if c.ViewRadius < 0 {
		return fmt.Errorf("%w: view radius %d", ErrInvalidConfig, c.ViewRadius)
	}
	return nil
}

// LoadConfig reads a YAML config file. Fields absent from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
