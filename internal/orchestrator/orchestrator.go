// Package orchestrator decides which galaxy is on screen. It runs a two-state
// machine (Stable, Morphing) driven by the activity signal, pulls buffers from
// the cache and renders the morph into a reused output buffer once per frame.
//
// An interrupted morph reverses: when activity stops, progress decays back to
// zero and the orchestrator settles on the galaxy it started from.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/talgya/galaxymorph/internal/activity"
	"github.com/talgya/galaxymorph/internal/entropy"
	"github.com/talgya/galaxymorph/internal/galaxy"
	"github.com/talgya/galaxymorph/internal/mathx"
	"github.com/talgya/galaxymorph/internal/morph"
)

// Phase is the orchestrator state.
type Phase uint8

const (
	Stable Phase = iota
	Morphing
)

func (p Phase) String() string {
	if p == Morphing {
		return "morphing"
	}
	return "stable"
}

// MaxFrameDelta caps dt so a stalled frame cannot jump a morph to completion.
const MaxFrameDelta = 0.25

// Config tunes progress rates and thresholds. Rates are per second.
type Config struct {
	Initial           galaxy.Descriptor // Galaxy shown at startup
	AdvanceRate       float64           // Progress/s per unit of velocity
	DecayRate         float64           // Progress/s lost while idle
	MaxVelocity       float64           // Velocity clamp
	ActivityThreshold float64           // Velocity that counts as activity
	WarmThreshold     float64           // Velocity that triggers precompute of the next target
	EdgeWarm          float64           // Pointer edge distance that triggers precompute
}

// DefaultConfig returns rates that complete a morph in about two seconds of
// steady scrolling and unwind it in about two and a half.
func DefaultConfig() Config {
	return Config{
		Initial:           galaxy.Descriptor{Type: galaxy.Spiral, Seed: 1},
		AdvanceRate:       0.5,
		DecayRate:         0.4,
		MaxVelocity:       3,
		ActivityThreshold: 0.05,
		WarmThreshold:     0.5,
		EdgeWarm:          0.85,
	}
}

// Cache is the subset of *cache.Cache the orchestrator needs. GetGalaxy is
// called from a background goroutine on a miss, so it must be safe for
// concurrent use.
type Cache interface {
	GetGalaxy(ctx context.Context, d galaxy.Descriptor) *galaxy.Buffer
	IsGalaxyCached(d galaxy.Descriptor) bool
	PreComputeGalaxies(list ...galaxy.Descriptor) int
}

// fetchResult carries a morph target generated off the frame goroutine.
type fetchResult struct {
	target galaxy.Descriptor
	buf    *galaxy.Buffer
}

// Orchestrator owns the morph state. Tick must be called from a single
// goroutine; Diagnostics and Subscribe are safe from any goroutine.
type Orchestrator struct {
	cfg     Config
	cache   Cache
	src     entropy.Source
	distort *morph.Distorter

	phase    Phase
	current  galaxy.Descriptor
	target   galaxy.Descriptor
	progress float64
	fromBuf  *galaxy.Buffer
	toBuf    *galaxy.Buffer
	out      *galaxy.Buffer
	next     *galaxy.Descriptor // Pre-drawn target, already queued for precompute
	frame    uint64
	clock    float64 // Seconds of frame time, drives distortion

	// At most one target fetch is in flight. Its result waits in ready until
	// activity starts the next morph.
	fetching bool
	fetched  chan fetchResult
	ready    *fetchResult

	diag atomic.Pointer[Diagnostics]
	subs subscribers
}

// New loads the initial galaxy and returns a Stable orchestrator. distort may
// be nil to disable the distortion pass.
func New(ctx context.Context, cfg Config, c Cache, src entropy.Source, distort *morph.Distorter) *Orchestrator {
	cfg = cfg.sanitized()
	if src == nil {
		src = entropy.Crypto{}
	}
	o := &Orchestrator{
		cfg:     cfg,
		cache:   c,
		src:     src,
		distort: distort,
		current: cfg.Initial,
		fetched: make(chan fetchResult, 1),
		subs:    subscribers{chans: make(map[string]chan Transition)},
	}
	o.fromBuf = c.GetGalaxy(ctx, cfg.Initial)
	o.out = o.fromBuf.Clone()
	o.publish(activity.Signal{})
	slog.Info("orchestrator ready", "galaxy", cfg.Initial.String(), "particles", o.out.Len())
	return o
}

func (c Config) sanitized() Config {
	def := DefaultConfig()
	if !c.Initial.Type.Valid() {
		c.Initial.Type = def.Initial.Type
	}
	c.AdvanceRate = positiveOr(c.AdvanceRate, def.AdvanceRate)
	c.DecayRate = positiveOr(c.DecayRate, def.DecayRate)
	c.MaxVelocity = positiveOr(c.MaxVelocity, def.MaxVelocity)
	if !mathx.Finite(c.ActivityThreshold) || c.ActivityThreshold < 0 {
		c.ActivityThreshold = def.ActivityThreshold
	}
	c.WarmThreshold = positiveOr(c.WarmThreshold, def.WarmThreshold)
	c.EdgeWarm = positiveOr(c.EdgeWarm, def.EdgeWarm)
	return c
}

func positiveOr(v, def float64) float64 {
	if !mathx.Finite(v) || v <= 0 {
		return def
	}
	return v
}

// Tick advances the state machine by dt seconds and renders the frame. The
// returned buffer is reused on the next call; copy it to keep it.
func (o *Orchestrator) Tick(ctx context.Context, sig activity.Signal, dt float64) (out *galaxy.Buffer) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("orchestrator tick panicked, keeping previous frame", "frame", o.frame, "panic", r)
			out = o.out
		}
	}()

	sig = sig.Sanitize()
	dt = sanitizeDelta(dt)
	o.frame++
	o.clock += dt
	o.collect()

	v := mathx.Clamp(sig.Velocity, 0, o.cfg.MaxVelocity)
	active := v > o.cfg.ActivityThreshold

	switch o.phase {
	case Stable:
		if active {
			o.beginMorph(ctx)
		}
	case Morphing:
		if active {
			o.progress = mathx.Clamp01(o.progress + o.cfg.AdvanceRate*v*dt)
			if o.progress >= 1 {
				o.completeMorph()
				o.beginMorph(ctx)
			}
		} else {
			o.progress = mathx.Clamp01(o.progress - o.cfg.DecayRate*dt)
			if o.progress <= 0 {
				o.revertMorph()
			}
		}
	}

	o.warm(sig, v, active)
	o.render(v)
	o.publish(sig)
	return o.out
}

func sanitizeDelta(dt float64) float64 {
	if !mathx.Finite(dt) || dt < 0 {
		return 0
	}
	return min(dt, MaxFrameDelta)
}

// drawTarget picks a uniformly random type with a fresh seed.
func (o *Orchestrator) drawTarget() galaxy.Descriptor {
	return galaxy.Descriptor{
		Type: galaxy.Types[entropy.Pick(o.src, len(galaxy.Types))],
		Seed: o.src.Seed(),
	}
}

// beginMorph starts a morph when the target buffer is at hand: fetched in
// the background earlier, or already cached. Otherwise it starts a background
// fetch and the orchestrator stays where it is until a later frame collects
// the result. Generation never runs on the frame goroutine.
func (o *Orchestrator) beginMorph(ctx context.Context) {
	if o.ready != nil {
		r := o.ready
		o.ready = nil
		o.startMorph(r.target, r.buf)
		return
	}
	if o.fetching {
		return
	}

	target := o.drawTarget()
	if o.next != nil {
		target = *o.next
		o.next = nil
	}
	if o.cache.IsGalaxyCached(target) {
		o.startMorph(target, o.cache.GetGalaxy(ctx, target))
		return
	}

	o.fetching = true
	slog.Debug("morph target not cached, fetching in background", "target", target.String())
	go func() {
		o.fetched <- fetchResult{target: target, buf: o.cache.GetGalaxy(ctx, target)}
	}()
}

// collect picks up a finished background fetch without blocking.
func (o *Orchestrator) collect() {
	if !o.fetching {
		return
	}
	select {
	case r := <-o.fetched:
		o.fetching = false
		o.ready = &r
	default:
	}
}

func (o *Orchestrator) startMorph(target galaxy.Descriptor, buf *galaxy.Buffer) {
	if buf.Len() != o.fromBuf.Len() {
		slog.Warn("morph target has a different particle count, staying put",
			"target", target.String(), "want", o.fromBuf.Len(), "got", buf.Len())
		return
	}

	o.phase = Morphing
	o.target = target
	o.toBuf = buf
	o.progress = 0
	o.emit(MorphStarted)
}

func (o *Orchestrator) completeMorph() {
	o.emit(MorphCompleted)
	o.current = o.target
	o.fromBuf = o.toBuf
	o.toBuf = nil
	o.target = galaxy.Descriptor{}
	o.progress = 0
	o.phase = Stable
}

func (o *Orchestrator) revertMorph() {
	o.emit(MorphReverted)
	o.toBuf = nil
	o.target = galaxy.Descriptor{}
	o.progress = 0
	o.phase = Stable
}

// warm draws the next target ahead of time and queues it for idle
// precompute when activity is strong or the pointer nears an edge.
func (o *Orchestrator) warm(sig activity.Signal, v float64, active bool) {
	if o.next != nil {
		return
	}
	if !(active && v >= o.cfg.WarmThreshold) && sig.EdgeDistance() < o.cfg.EdgeWarm {
		return
	}
	d := o.drawTarget()
	o.next = &d
	o.cache.PreComputeGalaxies(d)
	slog.Debug("warming next morph target", "target", d.String(), "velocity", v)
}

func (o *Orchestrator) render(v float64) {
	if o.phase == Morphing {
		if err := morph.InterpolateBuffers(o.out, o.fromBuf, o.toBuf, float32(o.progress)); err != nil {
			slog.Error("interpolation failed, keeping previous frame", "error", err)
			return
		}
	} else {
		o.out.CopyFrom(o.fromBuf)
	}
	if o.distort != nil && v > 0 {
		o.distort.Apply(o.out.Positions, o.clock, float32(v/o.cfg.MaxVelocity))
	}
}

// Output returns the most recently rendered buffer. Same aliasing rules as
// Tick.
func (o *Orchestrator) Output() *galaxy.Buffer {
	return o.out
}

// State returns the phase, the current and target descriptors, and progress.
// Only valid on the Tick goroutine; other goroutines use Diagnostics.
func (o *Orchestrator) State() (Phase, galaxy.Descriptor, galaxy.Descriptor, float64) {
	return o.phase, o.current, o.target, o.progress
}

func (o *Orchestrator) emit(kind TransitionKind) {
	t := Transition{
		Kind:     kind,
		From:     o.current,
		To:       o.target,
		Progress: o.progress,
		Frame:    o.frame,
		At:       time.Now(),
	}
	slog.Info("galaxy transition", "kind", kind, "from", t.From.String(), "to", t.To.String(), "frame", t.Frame)
	o.subs.broadcast(t)
}

// Diagnostics is the produced signal for overlays and the HTTP API.
type Diagnostics struct {
	Type              string             `json:"type"`
	Seed              int64              `json:"seed"`
	Bounds            galaxy.BoundingBox `json:"bounds"`
	ParticleCount     int                `json:"particle_count"`
	TransformProgress float64            `json:"transform_progress"`
	Velocity          float64            `json:"velocity"`
	IsTransforming    bool               `json:"is_transforming"`
	TargetType        string             `json:"target_type,omitempty"`
	TargetSeed        int64              `json:"target_seed,omitempty"`
	Frame             uint64             `json:"frame"`
}

func (o *Orchestrator) publish(sig activity.Signal) {
	d := &Diagnostics{
		Type:              o.current.Type.String(),
		Seed:              o.current.Seed,
		Bounds:            galaxy.Bounds(o.out.Positions),
		ParticleCount:     o.out.Len(),
		TransformProgress: o.progress,
		Velocity:          sig.Velocity,
		IsTransforming:    o.phase == Morphing,
		Frame:             o.frame,
	}
	if o.phase == Morphing {
		d.TargetType = o.target.Type.String()
		d.TargetSeed = o.target.Seed
	}
	o.diag.Store(d)
}

// Diagnostics returns the latest published snapshot.
func (o *Orchestrator) Diagnostics() Diagnostics {
	return *o.diag.Load()
}

func (d Diagnostics) String() string {
	if d.IsTransforming {
		return fmt.Sprintf("%s:%d -> %s:%d %.0f%%", d.Type, d.Seed, d.TargetType, d.TargetSeed, d.TransformProgress*100)
	}
	return fmt.Sprintf("%s:%d", d.Type, d.Seed)
}

// Close closes every subscriber channel.
func (o *Orchestrator) Close() {
	o.subs.closeAll()
}
