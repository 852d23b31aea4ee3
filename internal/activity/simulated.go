package activity

import (
	"math"

	"github.com/talgya/galaxymorph/internal/mathx"
	"github.com/talgya/galaxymorph/internal/rng"
)

// SimConfig shapes the synthetic activity produced by Simulated.
type SimConfig struct {
	Seed      int64
	MeanIdle  int     // Average frames between bursts
	MeanBurst int     // Average frames per burst
	Peak      float64 // Velocity at the top of a burst
}

// DefaultSimConfig produces roughly two-second bursts every five seconds at
// 60 frames per second.
func DefaultSimConfig() SimConfig {
	return SimConfig{Seed: 1, MeanIdle: 300, MeanBurst: 120, Peak: 1.5}
}

// Simulated is a deterministic burst generator for headless runs. Each burst
// ramps velocity up and back down along a half sine while the pointer drifts.
// Not safe for concurrent use.
type Simulated struct {
	cfg SimConfig
	r   *rng.Mulberry32

	idle     int
	burst    int
	burstLen int
	x, y     float64
	dx, dy   float64
}

// NewSimulated creates a generator. Non-positive durations fall back to the
// defaults.
func NewSimulated(cfg SimConfig) *Simulated {
	def := DefaultSimConfig()
	if cfg.MeanIdle <= 0 {
		cfg.MeanIdle = def.MeanIdle
	}
	if cfg.MeanBurst <= 0 {
		cfg.MeanBurst = def.MeanBurst
	}
	if cfg.Peak <= 0 {
		cfg.Peak = def.Peak
	}
	s := &Simulated{cfg: cfg, r: rng.New(cfg.Seed)}
	s.idle = s.jitter(cfg.MeanIdle)
	return s
}

// jitter returns a duration in [mean/2, 3·mean/2].
func (s *Simulated) jitter(mean int) int {
	return mean/2 + s.r.Intn(mean+1)
}

// Sample advances one frame.
func (s *Simulated) Sample() Signal {
	if s.idle > 0 {
		s.idle--
		if s.idle == 0 {
			s.burstLen = max(s.jitter(s.cfg.MeanBurst), 1)
			s.burst = s.burstLen
			s.dx = s.r.Range(-0.02, 0.02)
			s.dy = s.r.Range(-0.02, 0.02)
		}
		return Signal{X: s.x, Y: s.y}
	}

	phase := 1 - float64(s.burst)/float64(s.burstLen)
	v := s.cfg.Peak * math.Sin(math.Pi*phase)
	s.x = mathx.Clamp(s.x+s.dx, -1, 1)
	s.y = mathx.Clamp(s.y+s.dy, -1, 1)
	s.burst--
	if s.burst <= 0 {
		s.idle = max(s.jitter(s.cfg.MeanIdle), 1)
	}
	return Signal{Velocity: v, X: s.x, Y: s.y}.Sanitize()
}
