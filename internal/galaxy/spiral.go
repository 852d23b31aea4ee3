package galaxy

import (
	"math"

	"github.com/talgya/galaxymorph/internal/mathx"
	"github.com/talgya/galaxymorph/internal/rng"
)

const (
	spiralRadius     = 20.0 // Outer disk radius
	spiralCoreRadius = 0.15 // Normalized radius inside which particles form the bulge
	spiralBarShare   = 0.15 // Fraction of particles moved into the bar, when present
	spiralRingShare  = 0.06 // Fraction of particles per ring
	spiralMaxRings   = 3
)

type spiralRing struct {
	radius float64
	width  float64
}

// spiralParams is everything drawn once per spiral galaxy.
type spiralParams struct {
	arms          int
	tightness     float64 // Radians of twist per unit radius
	concentration float64 // Power-law exponent; higher packs more particles into the core
	spread        float64 // Angular scatter around an arm
	thickness     float64 // Disk half-thickness
	orient        orientation

	hasBar    bool
	barLength float64
	barWidth  float64
	barAngle  float64

	rings []spiralRing
}

func drawSpiralParams(r *rng.Mulberry32) spiralParams {
	p := spiralParams{
		arms:          2 + r.Intn(10),
		tightness:     r.Range(0.12, 0.42),
		concentration: r.Range(1.6, 3.2),
		spread:        r.Range(0.25, 0.6),
		thickness:     r.Range(0.4, 1.2),
		orient: orientation{
			roll: r.Range(-0.35, 0.35),
			tilt: r.Range(-0.6, 0.6),
			yaw:  r.Angle(),
		},
	}

	p.hasBar = r.Chance(0.4)
	if p.hasBar {
		p.barLength = r.Range(4, 8)
		p.barWidth = r.Range(0.6, 1.4)
		p.barAngle = r.Angle()
	}

	ringCount := r.Intn(spiralMaxRings + 1)
	for i := 0; i < ringCount; i++ {
		p.rings = append(p.rings, spiralRing{
			radius: r.Range(6, 18),
			width:  r.Range(0.3, 1.0),
		})
	}
	return p
}

// generateSpiral fills buf with a barred/ringed logarithmic spiral.
func generateSpiral(buf *Buffer, r *rng.Mulberry32) {
	p := drawSpiralParams(r)
	colors := NewColorAssigner(r)

	// Structural allocation: [0, barCut) bar, [barCut, ringCut) rings, rest disk.
	barCut := 0.0
	if p.hasBar {
		barCut = spiralBarShare
	}
	ringCut := barCut + spiralRingShare*float64(len(p.rings))

	n := buf.Len()
	for i := 0; i < n; i++ {
		var (
			pos        vec3
			d          float64
			brightness float64
		)

		u := r.Next()
		switch {
		case u < barCut:
			pos, d, brightness = spiralBarParticle(r, p)
		case u < ringCut:
			ring := p.rings[int((u-barCut)/spiralRingShare)%len(p.rings)]
			pos, d, brightness = spiralRingParticle(r, p, ring)
		default:
			pos, d, brightness = spiralDiskParticle(r, p)
		}

		putPosition(buf.Positions, i, p.orient.apply(pos))
		colors.Write(buf.Colors, i, r, mathx.Clamp01(d), brightness)
	}
}

// spiralDiskParticle places an arm or bulge particle. Returns the raw position,
// normalized distance and brightness.
func spiralDiskParticle(r *rng.Mulberry32, p spiralParams) (vec3, float64, float64) {
	arm := r.Intn(p.arms)
	radius := math.Pow(r.Next(), p.concentration) * spiralRadius
	d := radius / spiralRadius

	base := 2 * math.Pi * float64(arm) / float64(p.arms)
	offset := r.Gaussian() * p.spread * (1 - 0.5*d)
	angle := base + offset + radius*p.tightness

	pos := vec3{
		X: math.Cos(angle) * radius,
		Y: r.Gaussian() * p.thickness * (1 - 0.7*d),
		Z: math.Sin(angle) * radius,
	}

	if d < spiralCoreRadius {
		// Bulge: puff the core into a spheroid that flattens toward its rim.
		puff := 1 - d/spiralCoreRadius
		pos.Y += r.Gaussian() * p.thickness * 1.5 * puff
		return pos, d, spiralBrightness(roleCore, d)
	}
	return pos, d, spiralBrightness(roleArm, d)
}

func spiralBarParticle(r *rng.Mulberry32, p spiralParams) (vec3, float64, float64) {
	t := r.Range(-1, 1)
	along := t * p.barLength
	across := r.Gaussian() * p.barWidth * 0.5

	local := vec3{X: along, Y: r.Gaussian() * p.thickness * 0.5, Z: across}
	pos := local.rotateY(p.barAngle)
	d := math.Abs(along) / spiralRadius
	return pos, d, spiralBrightness(roleBar, math.Abs(t))
}

func spiralRingParticle(r *rng.Mulberry32, p spiralParams, ring spiralRing) (vec3, float64, float64) {
	angle := r.Angle()
	radius := ring.radius + r.Gaussian()*ring.width
	pos := vec3{
		X: math.Cos(angle) * radius,
		Y: r.Gaussian() * p.thickness * 0.3,
		Z: math.Sin(angle) * radius,
	}
	return pos, radius / spiralRadius, spiralBrightness(roleRing, radius/spiralRadius)
}

// spiralBrightness is the per-role falloff. x is normalized radius, except for
// the bar where it is the normalized position along the bar.
func spiralBrightness(ro role, x float64) float64 {
	switch ro {
	case roleCore:
		return 1.4 - 2*x
	case roleBar:
		return 1.15 - 0.3*x
	case roleRing:
		return 0.9
	default:
		return 1.0 - 0.5*mathx.Clamp01(x)
	}
}
