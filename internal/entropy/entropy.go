// Package entropy supplies the fresh randomness used to pick morph targets.
// Shape generation itself never reads from here; it is fully seeded.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"sync"

	"github.com/talgya/galaxymorph/internal/rng"
)

// Source yields uniform floats in [0, 1) and fresh generation seeds.
type Source interface {
	Float() float64
	Seed() int64
}

// Crypto draws from crypto/rand. The zero value is ready to use.
type Crypto struct{}

// Float returns a uniform float64 in [0, 1).
func (Crypto) Float() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		return 0.5
	}
	// 53 bits for a uniform float64.
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Seed returns a non-negative seed that fits in 53 bits, so it survives a
// round trip through JSON numbers.
func (Crypto) Seed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 1
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 11)
}

// Seeded is a reproducible Source backed by Mulberry32, for headless runs and
// tests. Safe for concurrent use.
type Seeded struct {
	mu sync.Mutex
	r  *rng.Mulberry32
}

// NewSeeded returns a Source whose sequence is fixed by seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{r: rng.New(seed)}
}

func (s *Seeded) Float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Next()
}

// Seed combines two draws so seeds cover more than 32 bits.
func (s *Seeded) Seed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	hi := uint64(s.r.Next() * (1 << 21))
	lo := uint64(s.r.Next() * math.MaxUint32)
	return int64(hi<<32 | lo)
}

// Pick returns a uniform index in [0, n). n ≤ 0 yields 0.
func Pick(src Source, n int) int {
	if n <= 0 {
		return 0
	}
	i := int(src.Float() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
