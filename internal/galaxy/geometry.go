package galaxy

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/talgya/galaxymorph/internal/rng"
)

// vec3 is the float64 working vector used during generation. Buffers only
// store float32, so every particle is converted once at the end.
type vec3 struct {
	X, Y, Z float64
}

func (v vec3) add(o vec3) vec3      { return vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v vec3) sub(o vec3) vec3      { return vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v vec3) scale(s float64) vec3 { return vec3{v.X * s, v.Y * s, v.Z * s} }
func (v vec3) length() float64      { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

func (v vec3) normalize() vec3 {
	l := v.length()
	if l == 0 {
		return vec3{}
	}
	return v.scale(1 / l)
}

func cross(a, b vec3) vec3 {
	return vec3{
		a.Y*b.Z - a.Z*b.Y,
		a.Z*b.X - a.X*b.Z,
		a.X*b.Y - a.Y*b.X,
	}
}

// Rotations are right-handed about the named axis. All preserve length.
func (v vec3) rotateX(a float64) vec3 {
	s, c := math.Sincos(a)
	return vec3{v.X, v.Y*c - v.Z*s, v.Y*s + v.Z*c}
}

func (v vec3) rotateY(a float64) vec3 {
	s, c := math.Sincos(a)
	return vec3{v.X*c + v.Z*s, v.Y, -v.X*s + v.Z*c}
}

func (v vec3) rotateZ(a float64) vec3 {
	s, c := math.Sincos(a)
	return vec3{v.X*c - v.Y*s, v.X*s + v.Y*c, v.Z}
}

// orientation is a composed roll (Z), tilt (X), yaw (Y) rotation.
type orientation struct {
	roll, tilt, yaw float64
}

func (o orientation) apply(v vec3) vec3 {
	return v.rotateZ(o.roll).rotateX(o.tilt).rotateY(o.yaw)
}

// unitSphere draws a uniformly distributed direction.
func unitSphere(r *rng.Mulberry32) vec3 {
	cosT := r.Range(-1, 1)
	sinT := math.Sqrt(1 - cosT*cosT)
	phi := r.Angle()
	return vec3{sinT * math.Cos(phi), cosT, sinT * math.Sin(phi)}
}

func putPosition(dst []float32, i int, v vec3) {
	dst[i*3] = float32(v.X)
	dst[i*3+1] = float32(v.Y)
	dst[i*3+2] = float32(v.Z)
}

func getPosition(src []float32, i int) vec3 {
	return vec3{float64(src[i*3]), float64(src[i*3+1]), float64(src[i*3+2])}
}

// AxisRange is the extent of a cloud along one axis.
type AxisRange struct {
	Min float32 `json:"min"`
	Max float32 `json:"max"`
}

// BoundingBox is the per-axis extent of a position array.
type BoundingBox struct {
	X AxisRange `json:"x"`
	Y AxisRange `json:"y"`
	Z AxisRange `json:"z"`
}

// MaxAbs returns the largest absolute coordinate in the box.
func (b BoundingBox) MaxAbs() float32 {
	m := float32(0)
	for _, v := range [...]float32{b.X.Min, b.X.Max, b.Y.Min, b.Y.Max, b.Z.Min, b.Z.Max} {
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}

// Bounds computes the bounding box of an N×3 position array.
// An empty array yields the zero box.
func Bounds(positions []float32) BoundingBox {
	if len(positions) < 3 {
		return BoundingBox{}
	}
	b := BoundingBox{
		X: AxisRange{positions[0], positions[0]},
		Y: AxisRange{positions[1], positions[1]},
		Z: AxisRange{positions[2], positions[2]},
	}
	for i := 3; i+2 < len(positions); i += 3 {
		b.X = widen(b.X, positions[i])
		b.Y = widen(b.Y, positions[i+1])
		b.Z = widen(b.Z, positions[i+2])
	}
	return b
}

func widen(r AxisRange, v float32) AxisRange {
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
	return r
}

// Checksum is an FNV-1a hash over the raw float bits of both arrays.
// Two buffers with equal checksums are, for practical purposes, identical.
func Checksum(b *Buffer) uint64 {
	h := fnv.New64a()
	if b == nil {
		return h.Sum64()
	}
	var word [4]byte
	for _, arr := range [][]float32{b.Positions, b.Colors} {
		for _, v := range arr {
			binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
			_, _ = h.Write(word[:]) // fnv.Write never returns an error
		}
	}
	return h.Sum64()
}

// Summary is a compact description of a buffer for logs and the HTTP API.
type Summary struct {
	Particles int         `json:"particles"`
	Bounds    BoundingBox `json:"bounds"`
	Checksum  uint64      `json:"checksum"`
}

// Summarize computes a Summary for b.
func Summarize(b *Buffer) Summary {
	if b == nil {
		return Summary{}
	}
	return Summary{
		Particles: b.Len(),
		Bounds:    Bounds(b.Positions),
		Checksum:  Checksum(b),
	}
}
