// Package activity models the external activity signal that drives morphing:
// a non-negative velocity plus a pointer position in [-1, 1]².
package activity

import (
	"math"
	"sync"
	"time"

	"github.com/talgya/galaxymorph/internal/mathx"
)

// Signal is one sample of user activity.
type Signal struct {
	Velocity float64 `json:"velocity"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// Sanitize replaces malformed values: non-finite or negative velocity becomes
// 0, non-finite coordinates become 0, and coordinates are clamped to [-1, 1].
func (s Signal) Sanitize() Signal {
	if !mathx.Finite(s.Velocity) || s.Velocity < 0 {
		s.Velocity = 0
	}
	s.X = sanitizeCoord(s.X)
	s.Y = sanitizeCoord(s.Y)
	return s
}

func sanitizeCoord(v float64) float64 {
	if !mathx.Finite(v) {
		return 0
	}
	return mathx.Clamp(v, -1, 1)
}

// EdgeDistance is how close the position is to the border of the unit
// square: 0 at the center, 1 on an edge.
func (s Signal) EdgeDistance() float64 {
	return math.Max(math.Abs(s.X), math.Abs(s.Y))
}

// Source is polled once per frame.
type Source interface {
	Sample() Signal
}

// DefaultStaleAfter is how long a Latch keeps reporting velocity after its
// last update.
const DefaultStaleAfter = 250 * time.Millisecond

// Latch holds the most recent pushed signal. Producers call Set (the API does,
// on POST /activity); the frame loop calls Sample. Velocity reads as zero once
// the signal is older than StaleAfter, so a client that stops posting lets the
// morph decay.
type Latch struct {
	staleAfter time.Duration
	now        func() time.Time

	mu      sync.Mutex
	sig     Signal
	updated time.Time
}

// NewLatch creates a latch. staleAfter ≤ 0 uses DefaultStaleAfter.
func NewLatch(staleAfter time.Duration) *Latch {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Latch{staleAfter: staleAfter, now: time.Now}
}

// Set stores a sanitized copy of sig.
func (l *Latch) Set(sig Signal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sig = sig.Sanitize()
	l.updated = l.now()
}

// Sample returns the latest signal, with velocity zeroed when stale.
func (l *Latch) Sample() Signal {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.sig
	if l.updated.IsZero() || l.now().Sub(l.updated) > l.staleAfter {
		s.Velocity = 0
	}
	return s
}
