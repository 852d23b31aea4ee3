package galaxy

import (
	"math"

	"github.com/talgya/galaxymorph/internal/mathx"
	"github.com/talgya/galaxymorph/internal/rng"
)

// Axis-balance constraints for elliptical galaxies.
const (
	MaxSemiAxis           = 20.0 // Absolute cap per semi-axis
	MaxAxisRatio          = 1.5  // Largest may be at most this multiple of the second largest
	MinAxisRatio          = 0.4  // Smallest must be at least this fraction of the largest
	CombinedAxisThreshold = 18.0 // All three axes (after asymmetry) above this triggers a rescale
	AsymmetryCeiling      = 1.1  // Largest per-axis asymmetry multiplier
	AxisBound             = 25.0 // No elliptical coordinate ever exceeds this magnitude

	minSemiAxis  = 2.0
	axisEpsilon  = 1e-9
	haloReach    = 1.12 // Halo radius as a multiple of the largest semi-axis
	ellipCoreR   = 0.2  // Normalized radius treated as core
	nucleusShare = 0.08
	haloShare    = 0.05
)

// Axes holds the three semi-axis lengths (x, y, z).
type Axes [3]float64

// axisOrder returns the indices of the largest, middle and smallest axis.
// Ties resolve toward the lower index so the result is deterministic.
func axisOrder(a Axes) (hi, mid, lo int) {
	idx := [3]int{0, 1, 2}
	for i := 1; i < 3; i++ {
		for j := i; j > 0 && a[idx[j]] > a[idx[j-1]]; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx[0], idx[1], idx[2]
}

// ConstrainAxes applies the axis-balance rules in their required order.
// Each step may undo an earlier one, so the order is part of the contract:
//
//  1. cap every axis at MaxSemiAxis
//  2. shrink the largest to at most MaxAxisRatio × the second largest
//  3. grow the smallest to at least MinAxisRatio × the largest
//  4. if every axis × AsymmetryCeiling exceeds CombinedAxisThreshold,
//     rescale uniformly so the smallest lands on the threshold
//
// The result is a fixed point: ConstrainAxes(ConstrainAxes(a)) == ConstrainAxes(a).
func ConstrainAxes(a Axes) Axes {
	for i := range a {
		if !mathx.Finite(a[i]) || a[i] < minSemiAxis {
			a[i] = minSemiAxis
		}
		if a[i] > MaxSemiAxis {
			a[i] = MaxSemiAxis
		}
	}

	hi, mid, _ := axisOrder(a)
	if a[hi] > MaxAxisRatio*a[mid]*(1+axisEpsilon) {
		a[hi] = MaxAxisRatio * a[mid]
	}

	hi, _, lo := axisOrder(a)
	if a[lo] < MinAxisRatio*a[hi]*(1-axisEpsilon) {
		a[lo] = MinAxisRatio * a[hi]
	}

	limit := CombinedAxisThreshold * (1 + axisEpsilon)
	if a[0]*AsymmetryCeiling > limit && a[1]*AsymmetryCeiling > limit && a[2]*AsymmetryCeiling > limit {
		_, _, lo = axisOrder(a)
		s := CombinedAxisThreshold / (a[lo] * AsymmetryCeiling)
		for i := range a {
			a[i] *= s
		}
	}
	return a
}

type nucleus struct {
	offset vec3
	radius float64
}

// ellipticalParams is everything drawn once per elliptical galaxy.
type ellipticalParams struct {
	axes          Axes
	concentration float64
	asym          [3]float64
	boxy          float64 // Peanut strength; 0 disables
	twist         float64 // Radians per unit normalized radius
	orient        orientation

	nuclei    []nucleus
	haloShare float64
}

func drawEllipticalParams(r *rng.Mulberry32) ellipticalParams {
	raw := Axes{r.Range(6, 24), r.Range(6, 24), r.Range(6, 24)}
	p := ellipticalParams{
		axes:          ConstrainAxes(raw),
		concentration: r.Range(1.5, 2.8),
		asym: [3]float64{
			r.Range(2-AsymmetryCeiling, AsymmetryCeiling),
			r.Range(2-AsymmetryCeiling, AsymmetryCeiling),
			r.Range(2-AsymmetryCeiling, AsymmetryCeiling),
		},
		twist: r.Range(-0.6, 0.6),
		orient: orientation{
			roll: r.Range(-0.5, 0.5),
			tilt: r.Range(-0.5, 0.5),
			yaw:  r.Angle(),
		},
	}

	if r.Chance(0.4) {
		p.boxy = r.Range(0.05, 0.25)
	}
	if r.Chance(0.3) {
		count := 2 + r.Intn(2)
		for i := 0; i < count; i++ {
			p.nuclei = append(p.nuclei, nucleus{
				offset: unitSphere(r).scale(r.Range(1.5, 4)),
				radius: r.Range(0.8, 2.0),
			})
		}
	}
	if r.Chance(0.6) {
		p.haloShare = haloShare
	}
	return p
}

// generateElliptical fills buf with a constrained ellipsoidal cloud.
//
// Magnitude budget: body particles sit inside the constrained ellipsoid
// (|v| <= MaxSemiAxis), asymmetry scales by at most AsymmetryCeiling, boxiness
// only shrinks, and twist/orientation are rotations. Halo particles skip
// asymmetry and reach haloReach × the largest axis. Everything stays below
// AxisBound without any clipping afterwards.
func generateElliptical(buf *Buffer, r *rng.Mulberry32) {
	p := drawEllipticalParams(r)
	colors := NewColorAssigner(r)

	nucleusCut := 0.0
	if len(p.nuclei) > 0 {
		nucleusCut = nucleusShare
	}
	haloCut := nucleusCut + p.haloShare

	hi, _, _ := axisOrder(p.axes)
	largest := p.axes[hi]

	n := buf.Len()
	for i := 0; i < n; i++ {
		var (
			pos        vec3
			d          float64
			brightness float64
		)

		u := r.Next()
		switch {
		case u < nucleusCut:
			nu := p.nuclei[r.Intn(len(p.nuclei))]
			local := math.Pow(r.Next(), 1.5)
			pos = nu.offset.add(unitSphere(r).scale(local * nu.radius))
			d = 0.1 * local
			brightness = 1.6 - 0.5*local
		case u < haloCut:
			pos = unitSphere(r).scale(largest * r.Range(0.75, haloReach))
			d = 0.9
			brightness = 0.18 + 0.12*r.Next()
		default:
			pos, d = ellipticalBodyParticle(r, p)
			if d < ellipCoreR {
				brightness = 1.5 - 2.5*d
			} else {
				brightness = 0.25 + 0.85*math.Exp(-3*d)
			}
		}

		// Radius-dependent twist about the minor axis, then global orientation.
		norm := mathx.Clamp01(pos.length() / largest)
		pos = pos.rotateY(p.twist * norm)
		pos = p.orient.apply(pos)

		putPosition(buf.Positions, i, pos)
		colors.Write(buf.Colors, i, r, mathx.Clamp01(d), brightness)
	}
}

// ellipticalBodyParticle samples the main ellipsoid and applies asymmetry and
// boxiness. Returns the position and normalized radius.
func ellipticalBodyParticle(r *rng.Mulberry32, p ellipticalParams) (vec3, float64) {
	dir := unitSphere(r)
	radius := math.Pow(r.Next(), p.concentration)

	pos := vec3{
		X: dir.X * radius * p.axes[0] * p.asym[0],
		Y: dir.Y * radius * p.axes[1] * p.asym[1],
		Z: dir.Z * radius * p.axes[2] * p.asym[2],
	}

	if p.boxy > 0 {
		// Peanut: pinch the horizontal extent near the midplane.
		ny := math.Abs(dir.Y)
		f := 1 - p.boxy*(1-ny)
		pos.X *= f
		pos.Z *= f
	}
	return pos, radius
}
