package galaxy

import (
	"github.com/talgya/galaxymorph/internal/mathx"
	"github.com/talgya/galaxymorph/internal/rng"
)

// RGB is a linear color with channels in [0, 1].
type RGB struct {
	R, G, B float64
}

// Named palette entries. Every scheme draws from these, and chaos galaxies
// pick from the full list per particle.
var (
	ColorWarmWhite  = RGB{1.00, 0.95, 0.85}
	ColorPaleYellow = RGB{1.00, 0.90, 0.60}
	ColorGold       = RGB{1.00, 0.78, 0.35}
	ColorOrange     = RGB{1.00, 0.55, 0.25}
	ColorCrimson    = RGB{0.85, 0.20, 0.25}
	ColorRose       = RGB{0.95, 0.50, 0.65}
	ColorMagenta    = RGB{0.80, 0.30, 0.85}
	ColorViolet     = RGB{0.55, 0.35, 0.95}
	ColorDeepBlue   = RGB{0.25, 0.35, 0.95}
	ColorSkyBlue    = RGB{0.45, 0.70, 1.00}
	ColorIce        = RGB{0.75, 0.90, 1.00}
	ColorTeal       = RGB{0.20, 0.80, 0.75}
	ColorMint       = RGB{0.55, 1.00, 0.70}
)

var palette = [...]RGB{
	ColorWarmWhite, ColorPaleYellow, ColorGold, ColorOrange, ColorCrimson,
	ColorRose, ColorMagenta, ColorViolet, ColorDeepBlue, ColorSkyBlue,
	ColorIce, ColorTeal, ColorMint,
}

// Scheme names one core/mid/edge color triple.
type Scheme uint8

const (
	SchemeClassic Scheme = iota
	SchemeEmber
	SchemeNebula
	SchemeAurora
	SchemeGold
	SchemeIce
	SchemeRose
	schemeCount
)

// SchemeColors is the record associated with a Scheme.
type SchemeColors struct {
	Core, Mid, Edge RGB
}

var schemes = [schemeCount]SchemeColors{
	SchemeClassic: {ColorPaleYellow, ColorWarmWhite, ColorSkyBlue},
	SchemeEmber:   {ColorGold, ColorOrange, ColorCrimson},
	SchemeNebula:  {ColorRose, ColorMagenta, ColorViolet},
	SchemeAurora:  {ColorMint, ColorTeal, ColorDeepBlue},
	SchemeGold:    {ColorWarmWhite, ColorGold, ColorOrange},
	SchemeIce:     {ColorWarmWhite, ColorIce, ColorDeepBlue},
	SchemeRose:    {ColorWarmWhite, ColorRose, ColorViolet},
}

var schemeNames = [schemeCount]string{
	"classic", "ember", "nebula", "aurora", "gold", "ice", "rose",
}

func (s Scheme) String() string {
	if s < schemeCount {
		return schemeNames[s]
	}
	return "unknown"
}

// Colors returns the record for s; unknown schemes fall back to Classic.
func (s Scheme) Colors() SchemeColors {
	if s < schemeCount {
		return schemes[s]
	}
	return schemes[SchemeClassic]
}

const (
	chaosChance    = 0.05
	colorJitter    = 0.05
	midKeepChance  = 0.7
	edgeKeepChance = 0.8
)

// ColorAssigner picks per-particle colors for one galaxy instance.
type ColorAssigner struct {
	Scheme Scheme
	Chaos  bool
}

// NewColorAssigner draws the scheme and chaos flag from the galaxy's stream.
func NewColorAssigner(r *rng.Mulberry32) ColorAssigner {
	return ColorAssigner{
		Scheme: Scheme(r.Intn(int(schemeCount))),
		Chaos:  r.Chance(chaosChance),
	}
}

// Pick returns the base color for a particle at normalized distance d.
//
//	d < 0.3        core
//	0.3 <= d < 0.7 mid (70%), otherwise core
//	d >= 0.7       edge (80%), otherwise mid
func (c ColorAssigner) Pick(r *rng.Mulberry32, d float64) RGB {
	if c.Chaos {
		return palette[r.Intn(len(palette))]
	}
	sc := c.Scheme.Colors()
	switch {
	case d < 0.3:
		return sc.Core
	case d < 0.7:
		if r.Next() < midKeepChance {
			return sc.Mid
		}
		return sc.Core
	default:
		if r.Next() < edgeKeepChance {
			return sc.Edge
		}
		return sc.Mid
	}
}

// Write picks, jitters and scales a color and stores it at particle index i.
func (c ColorAssigner) Write(dst []float32, i int, r *rng.Mulberry32, d, brightness float64) {
	base := c.Pick(r, d)
	red := mathx.Clamp01(base.R + (r.Next()*2-1)*colorJitter)
	green := mathx.Clamp01(base.G + (r.Next()*2-1)*colorJitter)
	blue := mathx.Clamp01(base.B + (r.Next()*2-1)*colorJitter)

	brightness = mathx.Clamp(brightness, 0, maxBrightness)
	dst[i*3] = float32(red * brightness)
	dst[i*3+1] = float32(green * brightness)
	dst[i*3+2] = float32(blue * brightness)
}

// maxBrightness keeps role multipliers from producing runaway HDR values.
const maxBrightness = 2.0
