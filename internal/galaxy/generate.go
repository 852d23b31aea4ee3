// Package galaxy generates seeded particle clouds for three galaxy families.
// Each call owns one Mulberry32 stream derived from the descriptor seed, so a
// descriptor always yields a bit-identical buffer no matter where it runs.
package galaxy

import (
	"github.com/talgya/galaxymorph/internal/rng"
)

// DefaultParticleCount is the production particle count per galaxy.
const DefaultParticleCount = 50000

// GenConfig holds generation parameters.
type GenConfig struct {
	ParticleCount int // Particles per galaxy; values below 1 are treated as 1
}

// DefaultGenConfig returns the production configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{ParticleCount: DefaultParticleCount}
}

// SmallTestConfig returns a small cloud for property tests and quick iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{ParticleCount: 2000}
}

// Generate builds the particle buffer for d. It never fails: degenerate
// parameter draws are clamped, and unknown types fall back to Spiral.
func Generate(cfg GenConfig, d Descriptor) *Buffer {
	n := cfg.ParticleCount
	if n < 1 {
		n = 1
	}

	r := rng.New(d.Seed)
	buf := NewBuffer(n)

	switch d.Type {
	case Elliptical:
		generateElliptical(buf, r)
	case Irregular:
		generateIrregular(buf, r, d.Seed)
	default:
		generateSpiral(buf, r)
	}
	return buf
}

// Generator binds a GenConfig so callers can pass generation around as a value.
type Generator struct {
	cfg GenConfig
}

// NewGenerator creates a Generator for cfg.
func NewGenerator(cfg GenConfig) *Generator {
	if cfg.ParticleCount < 1 {
		cfg.ParticleCount = 1
	}
	return &Generator{cfg: cfg}
}

// Generate builds the buffer for d.
func (g *Generator) Generate(d Descriptor) *Buffer {
	return Generate(g.cfg, d)
}

// ParticleCount returns the configured particle count.
func (g *Generator) ParticleCount() int {
	return g.cfg.ParticleCount
}
