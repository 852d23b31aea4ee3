package probe

import "fmt"

// Health levels, worst first.
const (
	LevelStalled  = "STALLED"
	LevelDegraded = "DEGRADED"
	LevelWatch    = "WATCH"
	LevelHealthy  = "HEALTHY"
)

// Low hit rates are expected while the cache warms up.
const (
	minLookupsForHitRate = 20
	lowHitRate           = 0.25
)

// Health holds signals derived from two consecutive snapshots.
// Runs without side effects so it can be tested on canned data.
type Health struct {
	FramesPerSecond float64
	NewTimeouts     uint64
	NewFailures     uint64
	SyncFallback    bool
	LowHitRate      bool
	Level           string
	Notes           []string
}

// Triage compares cur against prev. prev may be nil on the first cycle, in
// which case rates are not computed.
func Triage(prev, cur *Snapshot) *Health {
	h := &Health{Level: LevelHealthy}

	if cur.Worker.Path == "sync" {
		h.SyncFallback = true
		h.note("worker pool not ready, generating synchronously")
	}
	lookups := cur.Cache.Hits + cur.Cache.Misses
	if lookups >= minLookupsForHitRate && cur.Cache.HitRate < lowHitRate {
		h.LowHitRate = true
		h.note(fmt.Sprintf("cache hit rate %.0f%% over %d lookups", cur.Cache.HitRate*100, lookups))
	}

	if prev != nil {
		if elapsed := cur.At.Sub(prev.At).Seconds(); elapsed > 0 && cur.Status.Frame >= prev.Status.Frame {
			h.FramesPerSecond = float64(cur.Status.Frame-prev.Status.Frame) / elapsed
		}
		// Counters reset when the engine restarts.
		if cur.Worker.TimedOut >= prev.Worker.TimedOut {
			h.NewTimeouts = cur.Worker.TimedOut - prev.Worker.TimedOut
		}
		if cur.Worker.Failed >= prev.Worker.Failed {
			h.NewFailures = cur.Worker.Failed - prev.Worker.Failed
		}
		if h.NewTimeouts > 0 || h.NewFailures > 0 {
			h.note(fmt.Sprintf("%d worker timeouts, %d failures since last probe", h.NewTimeouts, h.NewFailures))
		}
		if cur.Status.Frame == prev.Status.Frame && cur.At.After(prev.At) {
			h.Level = LevelStalled
			h.note(fmt.Sprintf("frame counter stuck at %d", cur.Status.Frame))
			return h
		}
	}

	switch {
	case h.NewTimeouts > 0 || h.NewFailures > 0:
		h.Level = LevelDegraded
	case h.SyncFallback || h.LowHitRate:
		h.Level = LevelWatch
	}
	return h
}

func (h *Health) note(s string) {
	h.Notes = append(h.Notes, s)
}
