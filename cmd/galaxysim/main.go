// Command galaxysim runs the galaxy morph engine headless: it drives the
// orchestrator at a fixed frame rate, journals diagnostics and transitions,
// and serves them over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jinzhu/copier"
	"github.com/mattn/go-isatty"

	"github.com/talgya/galaxymorph/internal/activity"
	"github.com/talgya/galaxymorph/internal/api"
	"github.com/talgya/galaxymorph/internal/cache"
	"github.com/talgya/galaxymorph/internal/config"
	"github.com/talgya/galaxymorph/internal/engine"
	"github.com/talgya/galaxymorph/internal/entropy"
	"github.com/talgya/galaxymorph/internal/galaxy"
	"github.com/talgya/galaxymorph/internal/journal"
	"github.com/talgya/galaxymorph/internal/orchestrator"
	"github.com/talgya/galaxymorph/internal/worker"
)

func main() {
	configPath := flag.String("config", os.Getenv("GALAXY_CONFIG"), "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	envWarnings := cfg.ApplyEnv()
	warnings := append(envWarnings, cfg.Sanitize()...)

	slog.SetDefault(newLogger(cfg.Level(), cfg.Log.Format))
	for _, w := range warnings {
		slog.Warn("config adjusted", "detail", w)
	}

	slog.Info("galaxy morph engine starting",
		"particles", humanize.Comma(int64(cfg.Generation.Particles)),
		"initial", cfg.Morph.Initial,
		"fps", cfg.Engine.FPS,
		"config", *configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Journal ───────────────────────────────────────────────────────
	jr, err := journal.Open(cfg.Journal.DSN)
	if err != nil {
		slog.Error("failed to open journal", "error", err)
		os.Exit(1)
	}
	defer jr.Close()
	saveMeta(jr, cfg)

	// ── Generation ────────────────────────────────────────────────────
	gen := galaxy.NewGenerator(cfg.GenConfig())
	pool := worker.New(cfg.WorkerConfig(), gen.Generate)
	defer pool.Close()

	galaxies := cache.New(cfg.CacheConfig(), gen, pool)

	// ── Orchestrator ──────────────────────────────────────────────────
	src := entropy.Source(entropy.Crypto{})
	distortSeed := src.Seed()
	if cfg.Engine.Simulate {
		// Headless simulations replay exactly for a given seed.
		src = entropy.NewSeeded(cfg.Engine.SimSeed)
		distortSeed = cfg.Engine.SimSeed
	}
	orch := orchestrator.New(ctx, cfg.OrchestratorConfig(), galaxies, src, cfg.Distorter(distortSeed))
	defer orch.Close()

	latch := activity.NewLatch(cfg.Engine.StaleAfter)
	var input activity.Source = latch
	if cfg.Engine.Simulate {
		sc := activity.DefaultSimConfig()
		sc.Seed = cfg.Engine.SimSeed
		input = activity.NewSimulated(sc)
		slog.Info("simulated activity enabled", "seed", sc.Seed)
	}

	// ── Transition journal ────────────────────────────────────────────
	subID, transitions := orch.Subscribe(64)
	journalDone := make(chan struct{})
	go func() {
		defer close(journalDone)
		recordTransitions(jr, transitions)
	}()

	// ── Frame loop ────────────────────────────────────────────────────
	eng := engine.NewEngine()
	eng.FPS = cfg.Engine.FPS
	eng.SampleEvery = cfg.Engine.SampleEvery
	eng.OnFrame = func(frame uint64, dt float64) {
		orch.Tick(ctx, input.Sample(), dt)
	}
	eng.OnIdle = func(frame uint64, remaining time.Duration) {
		galaxies.DrainOne(ctx)
	}
	eng.OnSample = func(frame uint64) {
		recordFrame(jr, orch.Diagnostics(), galaxies.GetCacheStats())
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.API.AdminKey == "" {
		slog.Warn("GALAXY_ADMIN_KEY not set, admin POST endpoints disabled")
	}
	apiServer := &api.Server{
		Status:     orch,
		Cache:      galaxies,
		Worker:     pool,
		History:    jr,
		Feed:       orch,
		Activity:   latch,
		Addr:       cfg.API.Addr,
		AdminKey:   cfg.API.AdminKey,
		RelayKey:   cfg.API.RelayKey,
		RateLimit:  cfg.API.RateLimit,
		RatePeriod: cfg.API.RatePeriod,
		FPS:        cfg.Engine.FPS,
	}
	httpServer := apiServer.Start()
	defer apiServer.Close()

	go pruneLoop(ctx, jr, cfg.Journal.Keep, cfg.Journal.PruneEvery)

	fmt.Printf("\nGalaxy engine running: %s particles, starting from %s.\n",
		humanize.Comma(int64(gen.ParticleCount())), cfg.Morph.Initial)
	fmt.Printf("API: http://localhost%s/api/v1/status\n", cfg.API.Addr)
	fmt.Println("Starting frame loop... (Ctrl+C to stop)")

	eng.Run(ctx)

	// ── Shutdown ──────────────────────────────────────────────────────
	slog.Info("shutting down", "frame", eng.Frame, "elapsed", engine.FrameTime(eng.Frame, eng.FPS))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	orch.Unsubscribe(subID)
	<-journalDone
	if err := jr.SaveMeta("last_frame", strconv.FormatUint(eng.Frame, 10)); err != nil {
		slog.Error("save last frame failed", "error", err)
	}
	slog.Info("cache at shutdown", "stats", galaxies.GetCacheStats().String())
	fmt.Println("Engine stopped.")
}

// newLogger picks a text handler for terminals and JSON otherwise, unless the
// format is forced.
func newLogger(level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	text := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	switch format {
	case "text":
		text = true
	case "json":
		text = false
	}
	if text {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func saveMeta(jr *journal.Journal, cfg config.Config) {
	meta := map[string]string{
		"started_at": time.Now().UTC().Format(time.RFC3339),
		"initial":    cfg.Morph.Initial,
		"particles":  strconv.Itoa(cfg.Generation.Particles),
	}
	for k, v := range meta {
		if err := jr.SaveMeta(k, v); err != nil {
			slog.Warn("save meta failed", "key", k, "error", err)
		}
	}
}

func recordFrame(jr *journal.Journal, diag orchestrator.Diagnostics, stats cache.Stats) {
	var rec journal.FrameRecord
	if err := copier.Copy(&rec, &diag); err != nil {
		slog.Error("frame record mapping failed", "error", err)
		return
	}
	rec.AtMillis = time.Now().UnixMilli()
	rec.MaxAbs = float64(diag.Bounds.MaxAbs())
	rec.CacheSize = stats.Size
	rec.HitRate = stats.HitRate
	if err := jr.RecordFrame(rec); err != nil {
		slog.Error("record frame failed", "frame", diag.Frame, "error", err)
	}
}

// recordTransitions journals transitions until the channel closes.
func recordTransitions(jr *journal.Journal, ch <-chan orchestrator.Transition) {
	for t := range ch {
		rec := journal.TransitionRecord{
			Frame:    t.Frame,
			AtMillis: t.At.UnixMilli(),
			Kind:     string(t.Kind),
			FromType: t.From.Type.String(),
			FromSeed: t.From.Seed,
			ToType:   t.To.Type.String(),
			ToSeed:   t.To.Seed,
			Progress: t.Progress,
		}
		if err := jr.RecordTransition(rec); err != nil {
			slog.Error("record transition failed", "kind", rec.Kind, "error", err)
		}
	}
}

func pruneLoop(ctx context.Context, jr *journal.Journal, keep int, every time.Duration) {
	if keep <= 0 || every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := jr.Prune(keep); err != nil {
				slog.Error("journal prune failed", "error", err)
			}
		}
	}
}
