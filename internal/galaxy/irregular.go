package galaxy

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/galaxymorph/internal/mathx"
	"github.com/talgya/galaxymorph/internal/rng"
)

const (
	irregularClusterShare = 0.70
	irregularBridgeShare  = 0.15 // Remainder after clusters and bridges is scatter
	irregularSpan         = 12.0 // Cluster centers fall within ±span horizontally
	scatterRadius         = 18.0
	knotFrequency         = 0.25 // Star-forming knot noise frequency
	knotStrength          = 0.25
)

type cluster struct {
	center      vec3
	radius      float64
	ellipticity float64 // Flattening of the vertical and depth extent
	weight      float64 // Relative share of cluster particles
	brightness  float64
	angle       float64
}

type irregularParams struct {
	clusters  []cluster
	cumWeight []float64

	bridgeThickness float64
	bridgeBulge     float64
	tilt, roll      float64
}

func drawIrregularParams(r *rng.Mulberry32) irregularParams {
	k := 3 + r.Intn(6)
	p := irregularParams{
		clusters:  make([]cluster, k),
		cumWeight: make([]float64, k),
	}

	total := 0.0
	for i := range p.clusters {
		c := cluster{
			center: vec3{
				X: r.Range(-irregularSpan, irregularSpan),
				Y: r.Range(-4, 4),
				Z: r.Range(-irregularSpan, irregularSpan),
			},
			radius:      r.Range(2, 6),
			ellipticity: r.Range(0.4, 1.0),
			weight:      r.Range(0.5, 1.5),
			brightness:  r.Range(0.7, 1.3),
			angle:       r.Angle(),
		}
		total += c.weight
		p.clusters[i] = c
		p.cumWeight[i] = total
	}
	for i := range p.cumWeight {
		p.cumWeight[i] /= total
	}

	p.bridgeThickness = r.Range(0.4, 0.9)
	p.bridgeBulge = r.Range(0.5, 1.5)
	p.tilt = r.Range(-0.8, 0.8)
	p.roll = r.Range(-0.5, 0.5)
	return p
}

// pickCluster chooses a cluster index weighted by density.
func (p irregularParams) pickCluster(r *rng.Mulberry32) int {
	u := r.Next()
	for i, w := range p.cumWeight {
		if u < w {
			return i
		}
	}
	return len(p.cumWeight) - 1
}

// generateIrregular fills buf with clumps, tidal bridges between them and a
// sparse scatter. The tilt is applied to every particle in a second pass.
func generateIrregular(buf *Buffer, r *rng.Mulberry32, seed int64) {
	p := drawIrregularParams(r)
	colors := NewColorAssigner(r)
	knots := opensimplex.New(seed)

	n := buf.Len()
	for i := 0; i < n; i++ {
		var (
			pos        vec3
			d          float64
			brightness float64
		)

		u := r.Next()
		switch {
		case u < irregularClusterShare:
			c := p.clusters[p.pickCluster(r)]
			pos, d = clusterParticle(r, c)
			knot := knots.Eval3(pos.X*knotFrequency, pos.Y*knotFrequency, pos.Z*knotFrequency)
			brightness = c.brightness * (1.1 - 0.6*d) * (1 + knotStrength*knot)
		case u < irregularClusterShare+irregularBridgeShare:
			pos, d, brightness = bridgeParticle(r, p)
		default:
			pos, d, brightness = scatterParticle(r)
		}

		putPosition(buf.Positions, i, pos)
		colors.Write(buf.Colors, i, r, mathx.Clamp01(d), brightness)
	}

	// Global tilt, applied uniformly after all particles are placed.
	tilt := orientation{roll: p.roll, tilt: p.tilt}
	for i := 0; i < n; i++ {
		putPosition(buf.Positions, i, tilt.apply(getPosition(buf.Positions, i)))
	}
}

// clusterParticle samples the elliptical local distribution of one cluster.
func clusterParticle(r *rng.Mulberry32, c cluster) (vec3, float64) {
	dir := unitSphere(r)
	local := math.Pow(r.Next(), 1.4)
	rr := c.radius * local

	off := vec3{
		X: dir.X * rr,
		Y: dir.Y * rr * c.ellipticity * 0.6,
		Z: dir.Z * rr * c.ellipticity,
	}
	return c.center.add(off.rotateY(c.angle)), local
}

// bridgeParticle places a particle along the line between two distinct
// clusters. Thickness swells toward the middle of the bridge so it never
// reads as a thin clipped line.
func bridgeParticle(r *rng.Mulberry32, p irregularParams) (vec3, float64, float64) {
	k := len(p.clusters)
	a := r.Intn(k)
	b := r.Intn(k - 1)
	if b >= a {
		b++
	}
	ca, cb := p.clusters[a].center, p.clusters[b].center

	t := r.Next()
	base := ca.add(cb.sub(ca).scale(t))

	up := vec3{Y: 1}
	perp := cross(cb.sub(ca), up).normalize()
	if perp.length() == 0 {
		perp = vec3{X: 1}
	}

	bulge := math.Sin(math.Pi * t)
	thickness := p.bridgeThickness * (1 + p.bridgeBulge*bulge)
	pos := base.
		add(perp.scale(r.Gaussian() * thickness)).
		add(up.scale(r.Gaussian() * thickness * 0.5))

	return pos, 0.55, 0.55 + 0.2*bulge
}

// scatterParticle places a sparse field star, dimmer with distance.
func scatterParticle(r *rng.Mulberry32) (vec3, float64, float64) {
	dir := unitSphere(r)
	dist := math.Cbrt(r.Next())
	pos := dir.scale(dist * scatterRadius)
	pos.Y *= 0.5
	return pos, 0.7 + 0.3*dist, 0.15 + 0.45*(1-dist)
}
