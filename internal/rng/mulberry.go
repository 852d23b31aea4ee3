// Package rng provides the deterministic number stream used by galaxy generation.
// Every generation run owns its own Mulberry32 value; there is no package state.
package rng

import "math"

const (
	increment = 0x6D2B79F5
	twoPow32  = 4294967296.0
)

// Mulberry32 is a 32-bit state generator. Not safe for concurrent use.
type Mulberry32 struct {
	state uint32
}

// New creates a stream seeded from a 64-bit seed. The high and low words are
// folded together so seeds that differ only above bit 31 still diverge.
func New(seed int64) *Mulberry32 {
	return &Mulberry32{state: FoldSeed(seed)}
}

// NewFromState creates a stream with an exact 32-bit starting state.
func NewFromState(state uint32) *Mulberry32 {
	return &Mulberry32{state: state}
}

// FoldSeed reduces a 64-bit seed to the 32-bit generator state.
func FoldSeed(seed int64) uint32 {
	u := uint64(seed)
	return uint32(u) ^ uint32(u>>32)
}

// State returns the current internal state.
func (r *Mulberry32) State() uint32 {
	return r.state
}

// Next advances the stream and returns a float64 in [0, 1).
func (r *Mulberry32) Next() float64 {
	r.state += increment
	t := r.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return float64(t^(t>>14)) / twoPow32
}

// Range returns a value in [lo, hi).
func (r *Mulberry32) Range(lo, hi float64) float64 {
	return lo + (hi-lo)*r.Next()
}

// Intn returns an int in [0, n). Returns 0 for n <= 0.
func (r *Mulberry32) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	i := int(r.Next() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

// Chance returns true with probability p.
func (r *Mulberry32) Chance(p float64) bool {
	return r.Next() < p
}

// Sign returns -1 or 1 with equal probability.
func (r *Mulberry32) Sign() float64 {
	if r.Next() < 0.5 {
		return -1
	}
	return 1
}

// Gaussian returns a standard normal sample (Box-Muller, one value per call).
func (r *Mulberry32) Gaussian() float64 {
	u1 := 1 - r.Next() // (0, 1], keeps log finite
	u2 := r.Next()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// Angle returns a uniform angle in [0, 2π).
func (r *Mulberry32) Angle() float64 {
	return r.Next() * 2 * math.Pi
}
