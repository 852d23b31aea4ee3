package rng

import (
	"math"
	"testing"
)

func TestNextRange(t *testing.T) {
	r := New(42)
	for i := 0; i < 100000; i++ {
		v := r.Next()
		if v < 0 || v >= 1 {
			t.Fatalf("Next() = %v at step %d, want [0,1)", v, i)
		}
	}
}

func TestSameSeedSameStream(t *testing.T) {
	a := New(12345)
	b := New(12345)
	for i := 0; i < 1000; i++ {
		if x, y := a.Next(), b.Next(); x != y {
			t.Fatalf("step %d: %v != %v", i, x, y)
		}
	}
}

func TestDifferentSeedsDiverge(t *testing.T) {
	a := New(1)
	b := New(2)
	same := 0
	for i := 0; i < 100; i++ {
		if a.Next() == b.Next() {
			same++
		}
	}
	if same == 100 {
		t.Fatal("streams for seeds 1 and 2 are identical")
	}
}

func TestKnownSequence(t *testing.T) {
	// Reference values from the canonical 32-bit implementation.
	r := NewFromState(12345)
	want := []float64{0.9797282677609473, 0.3067522644996643, 0.484205421525985}
	for i, w := range want {
		if got := r.Next(); got != w {
			t.Fatalf("step %d: got %v, want %v", i, got, w)
		}
	}
	state := uint32(12345)
	for range want {
		state += increment
	}
	if r.State() != state {
		t.Errorf("state = %#x, want %#x", r.State(), state)
	}
}

func TestFoldSeed(t *testing.T) {
	if FoldSeed(7) != 7 {
		t.Errorf("FoldSeed(7) = %d", FoldSeed(7))
	}
	hi := int64(1) << 32
	if FoldSeed(hi) == FoldSeed(0) {
		t.Error("high word ignored by FoldSeed")
	}
}

func TestIntnBounds(t *testing.T) {
	r := New(9)
	seen := make(map[int]bool)
	for i := 0; i < 10000; i++ {
		v := r.Intn(10)
		if v < 0 || v >= 10 {
			t.Fatalf("Intn(10) = %d", v)
		}
		seen[v] = true
	}
	if len(seen) != 10 {
		t.Errorf("Intn(10) covered %d values, want 10", len(seen))
	}
	if r.Intn(0) != 0 || r.Intn(-3) != 0 {
		t.Error("Intn on non-positive n should return 0")
	}
}

func TestGaussianFinite(t *testing.T) {
	r := New(77)
	sum := 0.0
	const n = 50000
	for i := 0; i < n; i++ {
		g := r.Gaussian()
		if math.IsNaN(g) || math.IsInf(g, 0) {
			t.Fatalf("Gaussian produced %v", g)
		}
		sum += g
	}
	if mean := sum / n; math.Abs(mean) > 0.05 {
		t.Errorf("Gaussian mean = %.4f, want ~0", mean)
	}
}

func TestRangeAndChance(t *testing.T) {
	r := New(3)
	for i := 0; i < 1000; i++ {
		v := r.Range(-2, 5)
		if v < -2 || v >= 5 {
			t.Fatalf("Range(-2,5) = %v", v)
		}
	}
	if r.Chance(0) {
		t.Error("Chance(0) returned true")
	}
	if !r.Chance(1) {
		t.Error("Chance(1) returned false")
	}
}
