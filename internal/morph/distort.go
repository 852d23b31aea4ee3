package morph

import (
	"github.com/chewxy/math32"
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/galaxymorph/internal/mathx"
)

// DistortConfig controls the additive turbulence pass.
type DistortConfig struct {
	Amplitude float32 // Maximum per-axis displacement
	Frequency float32 // Spatial frequency of the noise field
	Swirl     float32 // Share of the displacement driven by sin/cos swirl instead of noise, in [0,1]
	Seed      int64   // Noise field seed
}

// DefaultDistortConfig returns a gentle distortion suitable for morphs.
func DefaultDistortConfig() DistortConfig {
	return DistortConfig{
		Amplitude: 0.6,
		Frequency: 0.12,
		Swirl:     0.35,
		Seed:      1,
	}
}

// Distorter displaces positions by a smooth, bounded, time-varying offset.
// It only ever writes into the slice it is given.
type Distorter struct {
	cfg   DistortConfig
	noise opensimplex.Noise
}

// NewDistorter creates a Distorter; negative amplitude or frequency are
// treated as zero and Swirl is clamped to [0, 1].
func NewDistorter(cfg DistortConfig) *Distorter {
	cfg.Amplitude = math32.Max(0, mathx.OrDefault(cfg.Amplitude, 0))
	cfg.Frequency = math32.Max(0, mathx.OrDefault(cfg.Frequency, 0))
	cfg.Swirl = mathx.Clamp01(mathx.OrDefault(cfg.Swirl, 0))
	return &Distorter{
		cfg:   cfg,
		noise: opensimplex.New(cfg.Seed),
	}
}

// Amplitude returns the configured bound on per-axis displacement.
func (d *Distorter) Amplitude() float32 {
	return d.cfg.Amplitude
}

// Apply offsets every position in place. strength is the external signal
// (clamped to [0, 1]); t is time in seconds. Every axis moves by at most
// Amplitude·strength.
func (d *Distorter) Apply(positions []float32, t float64, strength float32) {
	strength = mathx.Clamp01(mathx.OrDefault(strength, 0))
	amp := d.cfg.Amplitude * strength
	if amp == 0 || len(positions) < 3 {
		return
	}

	f := float64(d.cfg.Frequency)
	swirl := d.cfg.Swirl
	turb := 1 - swirl
	tf := float32(t)

	for i := 0; i+2 < len(positions); i += 3 {
		x, y, z := positions[i], positions[i+1], positions[i+2]
		fx, fy, fz := float64(x)*f, float64(y)*f, float64(z)*f

		nx := float32(d.noise.Eval4(fx, fy, fz, t))
		ny := float32(d.noise.Eval4(fy+31.4, fz, fx, t))
		nz := float32(d.noise.Eval4(fz, fx+17.2, fy, t))

		sx := math32.Sin(y*d.cfg.Frequency + tf)
		sy := math32.Cos(z*d.cfg.Frequency + tf)
		sz := math32.Sin(x*d.cfg.Frequency - tf)

		positions[i] = x + amp*mathx.Clamp(turb*nx+swirl*sx, -1, 1)
		positions[i+1] = y + amp*mathx.Clamp(turb*ny+swirl*sy, -1, 1)
		positions[i+2] = z + amp*mathx.Clamp(turb*nz+swirl*sz, -1, 1)
	}
}
