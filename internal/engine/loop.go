// Package engine provides the fixed-rate frame loop that drives the
// orchestrator, with an idle hook for background work that must never delay
// a frame.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultFPS is the target frame rate.
const DefaultFPS = 60

// Engine runs frames at a fixed rate.
type Engine struct {
	Frame       uint64  // Frames completed (monotonic)
	FPS         float64 // Target frame rate; ≤ 0 means DefaultFPS
	SampleEvery uint64  // Frames between OnSample calls; 0 disables

	// Callbacks, populated during setup.
	OnFrame  func(frame uint64, dt float64)             // Every frame; dt in seconds
	OnIdle   func(frame uint64, remaining time.Duration) // At most once per frame, only when budget remains
	OnSample func(frame uint64)                          // Every SampleEvery frames

	stopOnce sync.Once
	stop     chan struct{}
}

// NewEngine creates an engine at DefaultFPS.
func NewEngine() *Engine {
	return &Engine{
		FPS:  DefaultFPS,
		stop: make(chan struct{}),
	}
}

// Interval returns the frame budget.
func (e *Engine) Interval() time.Duration {
	fps := e.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	return time.Duration(float64(time.Second) / fps)
}

// Run starts the loop. Blocks until ctx is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) {
	if e.stop == nil {
		e.stop = make(chan struct{})
	}
	interval := e.Interval()
	slog.Info("frame engine started", "frame", e.Frame, "fps", e.FPS, "interval", interval)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	last := time.Now().Add(-interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("frame engine stopped", "frame", e.Frame, "reason", ctx.Err())
			return
		case <-e.stop:
			slog.Info("frame engine stopped", "frame", e.Frame)
			return
		default:
		}

		start := time.Now()
		e.step(start.Sub(last).Seconds())
		last = start

		remaining := interval - time.Since(start)
		if remaining <= 0 {
			continue
		}
		if e.OnIdle != nil {
			e.OnIdle(e.Frame, remaining)
		}
		wait := interval - time.Since(start)
		if wait <= 0 {
			continue
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
		case <-e.stop:
		case <-timer.C:
			continue
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
}

// Stop halts the loop. Safe to call more than once, and before Run.
func (e *Engine) Stop() {
	if e.stop == nil {
		e.stop = make(chan struct{})
	}
	e.stopOnce.Do(func() { close(e.stop) })
}

func (e *Engine) step(dt float64) {
	e.Frame++

	if e.OnFrame != nil {
		e.OnFrame(e.Frame, dt)
	}
	if e.SampleEvery > 0 && e.Frame%e.SampleEvery == 0 && e.OnSample != nil {
		e.OnSample(e.Frame)
	}
}

// FrameTime renders the wall time covered by frame frames at fps.
func FrameTime(frame uint64, fps float64) string {
	if fps <= 0 {
		fps = DefaultFPS
	}
	total := time.Duration(float64(frame) / fps * float64(time.Second))
	h := int(total / time.Hour)
	m := int(total/time.Minute) % 60
	s := int(total/time.Second) % 60
	ms := int(total/time.Millisecond) % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d (frame %d)", h, m, s, ms, frame)
}
