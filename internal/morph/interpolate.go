// Package morph blends particle buffers. Interpolation is the linear part of a
// morph; Distorter is an optional additive pass layered on top of it.
package morph

import (
	"errors"
	"fmt"

	"github.com/talgya/galaxymorph/internal/galaxy"
	"github.com/talgya/galaxymorph/internal/mathx"
)

// ErrLengthMismatch signals a caller bug: the two endpoints (or the
// destination) do not have the same length.
var ErrLengthMismatch = errors.New("morph: buffer length mismatch")

// Interpolate returns from + (to-from)·p in a new slice.
func Interpolate(from, to []float32, p float32) ([]float32, error) {
	dst := make([]float32, len(from))
	if err := InterpolateInto(dst, from, to, p); err != nil {
		return nil, err
	}
	return dst, nil
}

// InterpolateInto writes from + (to-from)·p into dst without allocating.
// p is clamped to [0, 1]. At p == 0 the result is exactly from, at p == 1
// exactly to, and in between every component stays inside its endpoint span.
func InterpolateInto(dst, from, to []float32, p float32) error {
	if len(from) != len(to) {
		return fmt.Errorf("%w: from=%d to=%d", ErrLengthMismatch, len(from), len(to))
	}
	if len(dst) != len(from) {
		return fmt.Errorf("%w: dst=%d src=%d", ErrLengthMismatch, len(dst), len(from))
	}

	p = mathx.Clamp01(mathx.OrDefault(p, 0))
	switch p {
	case 0:
		copy(dst, from)
		return nil
	case 1:
		copy(dst, to)
		return nil
	}

	for i, a := range from {
		b := to[i]
		v := a + (b-a)*p
		// Rounding can overshoot by an ulp; keep the result inside the span.
		if a <= b {
			v = mathx.Clamp(v, a, b)
		} else {
			v = mathx.Clamp(v, b, a)
		}
		dst[i] = v
	}
	return nil
}

// InterpolateBuffers blends positions and colors of two buffers into dst.
func InterpolateBuffers(dst, from, to *galaxy.Buffer, p float32) error {
	if err := InterpolateInto(dst.Positions, from.Positions, to.Positions, p); err != nil {
		return fmt.Errorf("positions: %w", err)
	}
	if err := InterpolateInto(dst.Colors, from.Colors, to.Colors, p); err != nil {
		return fmt.Errorf("colors: %w", err)
	}
	return nil
}
