package galaxy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned by ParseType for unrecognised type names.
var ErrUnknownType = errors.New("unknown galaxy type")

// Type is the shape category of a galaxy.
type Type uint8

const (
	Spiral Type = iota
	Elliptical
	Irregular
)

// Types lists every shape category in a stable order.
var Types = [...]Type{Spiral, Elliptical, Irregular}

func (t Type) String() string {
	switch t {
	case Spiral:
		return "spiral"
	case Elliptical:
		return "elliptical"
	case Irregular:
		return "irregular"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the known categories.
func (t Type) Valid() bool {
	return t <= Irregular
}

// ParseType maps a name such as "spiral" to its Type. Case-insensitive.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spiral":
		return Spiral, nil
	case "elliptical":
		return Elliptical, nil
	case "irregular":
		return Irregular, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// MarshalText renders the type by name so descriptors read well in JSON.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Descriptor identifies one generation result. Comparable; used as a map key.
type Descriptor struct {
	Type Type  `json:"type" yaml:"type"`
	Seed int64 `json:"seed" yaml:"seed"`
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s:%d", d.Type, d.Seed)
}

// Buffer is a particle cloud: Positions and Colors are both N×3 floats.
// Buffers held by a cache are canonical and must not be modified; hand out Clone().
type Buffer struct {
	Positions []float32
	Colors    []float32
}

// NewBuffer allocates a zeroed buffer for n particles.
func NewBuffer(n int) *Buffer {
	return &Buffer{
		Positions: make([]float32, n*3),
		Colors:    make([]float32, n*3),
	}
}

// Len returns the particle count.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Positions) / 3
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	if b == nil {
		return nil
	}
	out := &Buffer{
		Positions: make([]float32, len(b.Positions)),
		Colors:    make([]float32, len(b.Colors)),
	}
	copy(out.Positions, b.Positions)
	copy(out.Colors, b.Colors)
	return out
}

// CopyFrom overwrites b with src. Both buffers must have the same length.
func (b *Buffer) CopyFrom(src *Buffer) {
	copy(b.Positions, src.Positions)
	copy(b.Colors, src.Colors)
}

// Equal reports whether both buffers hold bit-identical values.
func (b *Buffer) Equal(o *Buffer) bool {
	if b == nil || o == nil {
		return b == o
	}
	if len(b.Positions) != len(o.Positions) || len(b.Colors) != len(o.Colors) {
		return false
	}
	for i := range b.Positions {
		if b.Positions[i] != o.Positions[i] {
			return false
		}
	}
	for i := range b.Colors {
		if b.Colors[i] != o.Colors[i] {
			return false
		}
	}
	return true
}

// SizeBytes is the memory held by the two float arrays.
func (b *Buffer) SizeBytes() int {
	if b == nil {
		return 0
	}
	return (len(b.Positions) + len(b.Colors)) * 4
}

// role is the structural part of a galaxy a particle belongs to. It only
// drives brightness and never leaves the generator.
type role uint8

const (
	roleCore role = iota
	roleArm
	roleBar
	roleRing
	roleBody
	roleHalo
	roleNucleus
	roleCluster
	roleBridge
	roleScatter
)
