// Command galaxyprobe polls a running galaxysim API and logs a health summary
// on every cycle.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/talgya/galaxymorph/internal/probe"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	apiURL := envOrDefault("GALAXY_API_URL", "http://localhost:8080")
	intervalSec := envIntOrDefault("GALAXY_PROBE_INTERVAL", 30)
	if intervalSec < 1 {
		intervalSec = 1
	}
	interval := time.Duration(intervalSec) * time.Second

	slog.Info("galaxy probe starting", "api_url", apiURL, "interval", interval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observer := probe.NewObserver(apiURL)

	slog.Info("waiting for galaxysim API...")
	if err := waitForAPI(ctx, observer, 5*time.Minute); err != nil {
		slog.Error("galaxysim API unavailable", "error", err)
		os.Exit(1)
	}

	var prev *probe.Snapshot
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		prev = runCycle(ctx, observer, prev)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			slog.Info("shutting down")
			fmt.Println("Probe stopped.")
			return
		}
	}
}

// runCycle observes once and logs the triage. It returns the snapshot to
// compare against next time, keeping prev when observation fails.
func runCycle(ctx context.Context, observer *probe.Observer, prev *probe.Snapshot) *probe.Snapshot {
	snap, err := observer.Observe(ctx)
	if err != nil {
		slog.Error("observation failed", "error", err)
		return prev
	}
	h := probe.Triage(prev, snap)

	slog.Info("probe",
		"level", h.Level,
		"galaxy", snap.Status.Summary,
		"frame", snap.Status.Frame,
		"fps", fmt.Sprintf("%.1f", h.FramesPerSecond),
		"velocity", fmt.Sprintf("%.2f", snap.Status.Velocity),
		"cache", fmt.Sprintf("%d/%d", snap.Cache.Size, snap.Cache.MaxSize),
		"hit_rate", fmt.Sprintf("%.2f", snap.Cache.HitRate),
		"cache_bytes", snap.Cache.BytesHuman,
		"worker_path", snap.Worker.Path,
	)
	for _, n := range h.Notes {
		slog.Warn("probe note", "level", h.Level, "note", n)
	}
	return snap
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds or the timeout passes.
func waitForAPI(ctx context.Context, observer *probe.Observer, timeout time.Duration) error {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(timeout)

	for {
		if observer.Ready(ctx) {
			slog.Info("galaxysim API is ready")
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("not ready within %s", timeout)
		}
		slog.Info("galaxysim not ready, retrying...", "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
