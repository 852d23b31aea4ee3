package orchestrator

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/talgya/galaxymorph/internal/activity"
	"github.com/talgya/galaxymorph/internal/cache"
	"github.com/talgya/galaxymorph/internal/entropy"
	"github.com/talgya/galaxymorph/internal/galaxy"
	"github.com/talgya/galaxymorph/internal/morph"
)

const testParticles = 200

var (
	testGen = galaxy.NewGenerator(galaxy.GenConfig{ParticleCount: testParticles})
	active  = activity.Signal{Velocity: 1}
	idle    = activity.Signal{}
)

func newTestOrchestrator(t *testing.T, distort *morph.Distorter) (*Orchestrator, *cache.Cache) {
	t.Helper()
	c := cache.New(cache.Config{MaxSize: 16}, testGen, nil)
	o := New(context.Background(), DefaultConfig(), c, entropy.NewSeeded(1), distort)
	return o, c
}

// awaitFetch blocks until an in-flight target fetch is collected.
func awaitFetch(o *Orchestrator) {
	if o.fetching {
		r := <-o.fetched
		o.fetching = false
		o.ready = &r
	}
}

// frame mirrors one engine frame: Tick, then the idle precompute drain.
// Background fetches are awaited so tests are deterministic.
func frame(o *Orchestrator, c *cache.Cache, sig activity.Signal, dt float64) {
	o.Tick(context.Background(), sig, dt)
	awaitFetch(o)
	c.DrainOne(context.Background())
}

func TestStartsStable(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	d := o.Diagnostics()
	if d.Type != "spiral" || d.Seed != 1 || d.IsTransforming || d.ParticleCount != testParticles {
		t.Errorf("initial diagnostics = %+v", d)
	}
	if !o.Output().Equal(testGen.Generate(DefaultConfig().Initial)) {
		t.Error("initial output is not the initial galaxy")
	}
}

func TestActivityStartsMorph(t *testing.T) {
	o, c := newTestOrchestrator(t, nil)
	_, events := o.Subscribe(8)

	// The first target is not cached: the first frame only fetches it.
	frame(o, c, active, 0.1)
	if phase, _, _, _ := o.State(); phase != Stable {
		t.Fatalf("phase = %s before the target buffer arrived", phase)
	}
	if len(events) != 0 {
		t.Fatal("event emitted before the morph started")
	}

	frame(o, c, active, 0.1)
	phase, cur, target, progress := o.State()
	if phase != Morphing || progress != 0 {
		t.Fatalf("phase=%s progress=%v, want morphing at 0", phase, progress)
	}
	if cur != DefaultConfig().Initial || !target.Type.Valid() {
		t.Errorf("cur=%s target=%s", cur, target)
	}
	ev := <-events
	if ev.Kind != MorphStarted || ev.From != cur || ev.To != target {
		t.Errorf("event = %+v", ev)
	}
	if d := o.Diagnostics(); !d.IsTransforming || d.TargetType != target.Type.String() || d.TargetSeed != target.Seed {
		t.Errorf("diagnostics = %+v", d)
	}
}

func TestIdleStaysStable(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	below := activity.Signal{Velocity: DefaultConfig().ActivityThreshold / 2}
	for i := 0; i < 50; i++ {
		o.Tick(context.Background(), below, 0.016)
	}
	if phase, _, _, _ := o.State(); phase != Stable {
		t.Errorf("phase = %s after sub-threshold input", phase)
	}
}

func TestMorphCompletesAndChains(t *testing.T) {
	o, c := newTestOrchestrator(t, nil)
	_, events := o.Subscribe(64)

	frame(o, c, active, 0.1)
	frame(o, c, active, 0.1)
	_, _, first, _ := o.State()

	last := 0.0
	completed := false
	for i := 0; i < 40 && !completed; i++ {
		frame(o, c, active, 0.1)
		_, cur, _, p := o.State()
		if cur == first {
			completed = true
			break
		}
		if p < last {
			t.Fatalf("progress went backwards under activity: %v -> %v", last, p)
		}
		last = p
	}
	if !completed {
		t.Fatal("morph never completed under sustained activity")
	}

	phase, cur, next, p := o.State()
	if cur != first {
		t.Errorf("current = %s, want %s", cur, first)
	}
	if phase != Morphing || p != 0 || next == first {
		t.Errorf("after completion: phase=%s target=%s progress=%v, want a fresh morph", phase, next, p)
	}

	kinds := drain(events)
	want := []TransitionKind{MorphStarted, MorphCompleted, MorphStarted}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
}

func TestDecayRevertsWithoutSnapping(t *testing.T) {
	o, c := newTestOrchestrator(t, nil)
	_, events := o.Subscribe(64)
	ctx := context.Background()
	initial := DefaultConfig().Initial

	for i := 0; i < 10; i++ {
		frame(o, c, active, 0.1)
	}
	_, _, target, p := o.State()
	if p <= 0.3 || p >= 1 {
		t.Fatalf("progress = %v, want a partial morph", p)
	}

	step := DefaultConfig().DecayRate * 0.1
	prev := p
	frames := 0
	for {
		o.Tick(ctx, idle, 0.1)
		frames++
		phase, cur, tgt, p := o.State()
		if phase == Stable {
			if prev > step+1e-9 {
				t.Fatalf("snapped to stable from progress %v", prev)
			}
			if cur != initial {
				t.Fatalf("settled on %s, want %s", cur, initial)
			}
			break
		}
		if tgt != target {
			t.Fatalf("target changed during decay: %s -> %s", target, tgt)
		}
		if p >= prev || prev-p > step+1e-9 {
			t.Fatalf("decay step %v -> %v, want a decrease of at most %v", prev, p, step)
		}
		prev = p
		if frames > 100 {
			t.Fatal("decay never finished")
		}
	}

	if !o.Output().Equal(testGen.Generate(initial)) {
		t.Error("output after revert is not the original galaxy")
	}
	if d := o.Diagnostics(); d.Type != "spiral" || d.IsTransforming || d.TransformProgress != 0 {
		t.Errorf("diagnostics after revert = %+v", d)
	}
	kinds := drain(events)
	if len(kinds) != 2 || kinds[0] != MorphStarted || kinds[1] != MorphReverted {
		t.Errorf("events = %v", kinds)
	}
}

func TestResumeKeepsTarget(t *testing.T) {
	o, c := newTestOrchestrator(t, nil)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		frame(o, c, active, 0.1)
	}
	_, _, target, p0 := o.State()
	o.Tick(ctx, idle, 0.1)
	o.Tick(ctx, idle, 0.1)
	_, _, _, p1 := o.State()
	o.Tick(ctx, active, 0.1)
	phase, _, resumed, p2 := o.State()
	if phase != Morphing || resumed != target {
		t.Errorf("resumed toward %s (%s), want %s", resumed, phase, target)
	}
	if !(p1 < p0 && p2 > p1) {
		t.Errorf("progress %v -> %v -> %v, want decay then advance", p0, p1, p2)
	}
}

func TestOutputInterpolates(t *testing.T) {
	o, c := newTestOrchestrator(t, nil)
	for i := 0; i < 5; i++ {
		frame(o, c, active, 0.1)
	}
	_, cur, target, p := o.State()
	want := galaxy.NewBuffer(testParticles)
	if err := morph.InterpolateBuffers(want, testGen.Generate(cur), testGen.Generate(target), float32(p)); err != nil {
		t.Fatal(err)
	}
	if !o.Output().Equal(want) {
		t.Error("output is not the interpolation of current and target")
	}
}

func TestMalformedSignals(t *testing.T) {
	o, c := newTestOrchestrator(t, nil)
	ctx := context.Background()

	bad := []activity.Signal{
		{Velocity: math.NaN()},
		{Velocity: math.Inf(1)},
		{Velocity: -5},
		{Velocity: 0, X: math.NaN(), Y: math.Inf(-1)},
	}
	for _, sig := range bad {
		o.Tick(ctx, sig, 0.1)
		if phase, _, _, _ := o.State(); phase != Stable {
			t.Fatalf("signal %+v started a morph", sig)
		}
	}

	for _, dt := range []float64{math.NaN(), -1, math.Inf(1)} {
		o.Tick(ctx, idle, dt)
	}

	frame(o, c, activity.Signal{Velocity: 1000}, 0.1) // fetch
	frame(o, c, activity.Signal{Velocity: 1000}, 0.1) // start
	o.Tick(ctx, activity.Signal{Velocity: 1000}, 60)  // stalled frame
	_, _, _, p := o.State()
	cfg := DefaultConfig()
	if limit := cfg.AdvanceRate * cfg.MaxVelocity * MaxFrameDelta; p > limit+1e-9 {
		t.Errorf("progress %v exceeds the clamped single-frame advance %v", p, limit)
	}
	if d := o.Diagnostics(); d.Velocity != 1000 {
		t.Errorf("diagnostics velocity = %v", d.Velocity)
	}
}

func TestPredictiveWarm(t *testing.T) {
	o, c := newTestOrchestrator(t, nil)
	ctx := context.Background()

	o.Tick(ctx, activity.Signal{X: 0.95}, 0.1)
	if phase, _, _, _ := o.State(); phase != Stable {
		t.Fatal("edge position alone should not start a morph")
	}
	if c.Pending() != 1 || o.next == nil {
		t.Fatalf("pending = %d, want the next target queued", c.Pending())
	}
	warmed := *o.next
	c.DrainOne(ctx)

	// A warmed target starts the morph on the same frame.
	o.Tick(ctx, activity.Signal{Velocity: 2}, 0.1)
	if phase, _, target, _ := o.State(); phase != Morphing || target != warmed {
		t.Errorf("phase=%s target=%s, want morphing toward pre-warmed %s", phase, target, warmed)
	}
	if o.fetching {
		t.Error("cached target was fetched in the background")
	}
	// Strong activity draws and queues the following target.
	if o.next == nil || c.Pending() != 1 {
		t.Errorf("pending = %d after strong activity", c.Pending())
	}
}

func TestDistortionOnlyWhileActive(t *testing.T) {
	o, _ := newTestOrchestrator(t, morph.NewDistorter(morph.DefaultDistortConfig()))
	ctx := context.Background()
	initial := testGen.Generate(DefaultConfig().Initial)

	o.Tick(ctx, idle, 0.1)
	if !o.Output().Equal(initial) {
		t.Error("idle output was distorted")
	}

	o.Tick(ctx, activity.Signal{Velocity: 3}, 0.1)
	if o.Output().Equal(initial) {
		t.Error("active output shows no distortion at progress 0")
	}
	amp := float64(morph.DefaultDistortConfig().Amplitude)
	for i, v := range o.Output().Positions {
		if d := math.Abs(float64(v - initial.Positions[i])); d > amp+1e-4 {
			t.Fatalf("offset %v at %d exceeds amplitude %v", d, i, amp)
		}
	}
}

// shortCache serves the wrong particle count for anything but the initial galaxy.
type shortCache struct{ initial galaxy.Descriptor }

func (s shortCache) GetGalaxy(_ context.Context, d galaxy.Descriptor) *galaxy.Buffer {
	if d == s.initial {
		return testGen.Generate(d)
	}
	return galaxy.NewBuffer(3)
}

func (shortCache) IsGalaxyCached(galaxy.Descriptor) bool { return false }

func (shortCache) PreComputeGalaxies(list ...galaxy.Descriptor) int { return len(list) }

func TestMismatchedTargetKeepsStable(t *testing.T) {
	cfg := DefaultConfig()
	o := New(context.Background(), cfg, shortCache{cfg.Initial}, entropy.NewSeeded(2), nil)
	before := o.Output().Clone()
	o.Tick(context.Background(), active, 0.1)
	awaitFetch(o)
	o.Tick(context.Background(), active, 0.1)
	if phase, _, _, _ := o.State(); phase != Stable {
		t.Error("morph started toward a mismatched buffer")
	}
	if !o.Output().Equal(before) {
		t.Error("output changed")
	}
}

// slowDispatcher simulates a worker round trip that outlasts many frames.
type slowDispatcher struct{ delay time.Duration }

func (slowDispatcher) Ready() bool { return true }

func (s slowDispatcher) Generate(ctx context.Context, d galaxy.Descriptor) (*galaxy.Buffer, error) {
	select {
	case <-time.After(s.delay):
		return testGen.Generate(d), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSlowFetchDoesNotBlockTick(t *testing.T) {
	const delay = 300 * time.Millisecond
	c := cache.New(cache.Config{MaxSize: 16}, testGen, slowDispatcher{delay: delay})
	initial := DefaultConfig().Initial
	if err := c.AddToCache(initial, testGen.Generate(initial)); err != nil {
		t.Fatal(err)
	}
	o := New(context.Background(), DefaultConfig(), c, entropy.NewSeeded(4), nil)
	ctx := context.Background()

	deadline := time.Now().Add(5 * time.Second)
	for i := 0; ; i++ {
		start := time.Now()
		o.Tick(ctx, active, 1.0/60)
		if took := time.Since(start); took > delay/3 {
			t.Fatalf("Tick %d took %v while the target was generating", i, took)
		}
		if phase, _, _, _ := o.State(); phase == Morphing {
			if i == 0 {
				t.Fatal("morph started before the target buffer existed")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("morph never started after the background fetch")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, _, target, _ := o.State(); !c.IsGalaxyCached(target) {
		t.Errorf("fetched target %s was not cached", target)
	}
}

func TestSubscribeLifecycle(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	id, ch := o.Subscribe(1)
	if o.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d", o.Subscribers())
	}
	o.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel open after Unsubscribe")
	}
	o.Unsubscribe(id) // unknown ids are ignored

	_, ch2 := o.Subscribe(1)
	o.Close()
	if _, ok := <-ch2; ok {
		t.Error("channel open after Close")
	}
	_, ch3 := o.Subscribe(1)
	if _, ok := <-ch3; ok {
		t.Error("Subscribe after Close returned an open channel")
	}
	o.Tick(context.Background(), active, 0.1) // broadcasting with no subscribers is fine
}

func TestFullSubscriberDoesNotBlock(t *testing.T) {
	o, c := newTestOrchestrator(t, nil)
	_, ch := o.Subscribe(1)
	for i := 0; i < 100; i++ {
		sig := active
		if i%7 == 0 {
			sig = idle
		}
		frame(o, c, sig, 0.2)
	}
	if len(ch) != 1 {
		t.Errorf("buffered events = %d, want 1", len(ch))
	}
}

func TestDiagnosticsConcurrentRead(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				if d := o.Diagnostics(); d.ParticleCount != testParticles {
					t.Errorf("ParticleCount = %d", d.ParticleCount)
					return
				}
			}
		}
	}()
	for i := 0; i < 200; i++ {
		o.Tick(ctx, activity.Signal{Velocity: float64(i % 3)}, 0.05)
	}
	close(stop)
	wg.Wait()
	if o.Diagnostics().Frame != 200 {
		t.Errorf("Frame = %d", o.Diagnostics().Frame)
	}
}

func TestPhaseString(t *testing.T) {
	if Stable.String() != "stable" || Morphing.String() != "morphing" {
		t.Error("phase names")
	}
}

func drain(ch <-chan Transition) []TransitionKind {
	var kinds []TransitionKind
	for {
		select {
		case ev := <-ch:
			kinds = append(kinds, ev.Kind)
		default:
			return kinds
		}
	}
}
