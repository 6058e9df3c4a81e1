// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package worldgen

import (
	"fmt"
	"image/color"
	"strings"

	"golang.org/x/image/colornames"
)

// Material is the one-byte cell value. Zero is empty space.
type Material = byte

// Built-in materials.
const (
	Air Material = iota
	Stone
	Dirt
	Grass
	Sand
	Water
	Snow
)

// Palette maps materials to face colors.
type Palette [256][4]float32

// DefaultPalette returns the built-in material colors.
func DefaultPalette() *Palette {
	p := &Palette{}
	p.Set(Stone, colornames.Slategray)
	p.Set(Dirt, colornames.Saddlebrown)
	p.Set(Grass, colornames.Forestgreen)
	p.Set(Sand, colornames.Sandybrown)
	p.Set(Water, colornames.Steelblue)
	p.Set(Snow, colornames.Snow)
	return p
}

// Set assigns c to material m.
func (p *Palette) Set(m Material, c color.RGBA) {
	p[m] = [4]float32{
		float32(c.R) / 255,
		float32(c.G) / 255,
		float32(c.B) / 255,
		float32(c.A) / 255,
	}
}

// SetNamed assigns the SVG color called name to material m.
func (p *Palette) SetNamed(m Material, name string) error {
	c, ok := colornames.Map[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("worldgen: unknown color %q", name)
	}
	p.Set(m, c)
	return nil
}

// Color returns the color of material m.
func (p *Palette) Color(m Material) [4]float32 {
	return p[m]
}
