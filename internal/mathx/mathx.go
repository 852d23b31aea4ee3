// Package mathx holds small generic numeric helpers shared by the generator,
// the morph engine and the orchestrator.
package mathx

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 limits v to [0, 1].
func Clamp01[T constraints.Float](v T) T {
	return Clamp(v, 0, 1)
}

// Lerp returns a + (b-a)*t.
func Lerp[T constraints.Float](a, b, t T) T {
	return a + (b-a)*t
}

// Finite reports whether v is neither NaN nor ±Inf.
func Finite[T constraints.Float](v T) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// OrDefault returns v when it is finite, def otherwise.
func OrDefault[T constraints.Float](v, def T) T {
	if Finite(v) {
		return v
	}
	return def
}
