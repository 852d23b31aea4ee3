// Package config loads service settings from an optional YAML file, then
// GALAXY_* environment variables, and clamps anything unusable back to its
// default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/talgya/galaxymorph/internal/activity"
	"github.com/talgya/galaxymorph/internal/cache"
	"github.com/talgya/galaxymorph/internal/galaxy"
	"github.com/talgya/galaxymorph/internal/mathx"
	"github.com/talgya/galaxymorph/internal/morph"
	"github.com/talgya/galaxymorph/internal/orchestrator"
	"github.com/talgya/galaxymorph/internal/worker"
)

// Config is the full service configuration.
type Config struct {
	Generation GenerationConfig `yaml:"generation"`
	Cache      CacheConfig      `yaml:"cache"`
	Worker     WorkerConfig     `yaml:"worker"`
	Morph      MorphConfig      `yaml:"morph"`
	Engine     EngineConfig     `yaml:"engine"`
	API        APIConfig        `yaml:"api"`
	Journal    JournalConfig    `yaml:"journal"`
	Log        LogConfig        `yaml:"log"`
}

type GenerationConfig struct {
	Particles int `yaml:"particles"`
}

type CacheConfig struct {
	MaxSize  int    `yaml:"max_size"`
	MaxBytes string `yaml:"max_bytes"` // e.g. "256 MB"; empty means unlimited
}

type WorkerConfig struct {
	Workers     int           `yaml:"workers"`
	Timeout     time.Duration `yaml:"timeout"`
	BootTimeout time.Duration `yaml:"boot_timeout"`
	QueueSize   int           `yaml:"queue_size"`
}

type MorphConfig struct {
	Initial           string  `yaml:"initial"` // "type:seed"
	AdvanceRate       float64 `yaml:"advance_rate"`
	DecayRate         float64 `yaml:"decay_rate"`
	MaxVelocity       float64 `yaml:"max_velocity"`
	ActivityThreshold float64 `yaml:"activity_threshold"`
	WarmThreshold     float64 `yaml:"warm_threshold"`
	EdgeWarm          float64 `yaml:"edge_warm"`
	Distortion        bool    `yaml:"distortion"`
	Amplitude         float32 `yaml:"amplitude"`
	Frequency         float32 `yaml:"frequency"`
	Swirl             float32 `yaml:"swirl"`
}

type EngineConfig struct {
	FPS         float64       `yaml:"fps"`
	SampleEvery uint64        `yaml:"sample_every"` // Frames between journal samples
	Simulate    bool          `yaml:"simulate"`     // Drive morphs from a synthetic activity source
	SimSeed     int64         `yaml:"sim_seed"`
	StaleAfter  time.Duration `yaml:"stale_after"` // Activity latch staleness
}

type APIConfig struct {
	Addr       string        `yaml:"addr"`
	AdminKey   string        `yaml:"admin_key"`
	RelayKey   string        `yaml:"relay_key"`
	RateLimit  int           `yaml:"rate_limit"`  // Galaxy lookups per client per period
	RatePeriod time.Duration `yaml:"rate_period"`
}

type JournalConfig struct {
	DSN        string        `yaml:"dsn"`
	Keep       int           `yaml:"keep"`
	PruneEvery time.Duration `yaml:"prune_every"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // auto, text, json
}

// Default returns the production configuration.
func Default() Config {
	wk := worker.DefaultConfig()
	oc := orchestrator.DefaultConfig()
	dc := morph.DefaultDistortConfig()
	return Config{
		Generation: GenerationConfig{Particles: galaxy.DefaultParticleCount},
		Cache:      CacheConfig{MaxSize: cache.DefaultMaxSize},
		Worker: WorkerConfig{
			Workers:     wk.Workers,
			Timeout:     wk.Timeout,
			BootTimeout: wk.BootTimeout,
			QueueSize:   wk.QueueSize,
		},
		Morph: MorphConfig{
			Initial:           oc.Initial.String(),
			AdvanceRate:       oc.AdvanceRate,
			DecayRate:         oc.DecayRate,
			MaxVelocity:       oc.MaxVelocity,
			ActivityThreshold: oc.ActivityThreshold,
			WarmThreshold:     oc.WarmThreshold,
			EdgeWarm:          oc.EdgeWarm,
			Distortion:        true,
			Amplitude:         dc.Amplitude,
			Frequency:         dc.Frequency,
			Swirl:             dc.Swirl,
		},
		Engine: EngineConfig{
			FPS:         60,
			SampleEvery: 60,
			SimSeed:     1,
			StaleAfter:  activity.DefaultStaleAfter,
		},
		API: APIConfig{
			Addr:       ":8080",
			RateLimit:  30,
			RatePeriod: time.Minute,
		},
		Journal: JournalConfig{
			Keep:       5000,
			PruneEvery: time.Minute,
		},
		Log: LogConfig{Level: "info", Format: "auto"},
	}
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults; a malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("config file not found, using defaults", "path", path)
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(bytes.NewReader(data), &cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML into cfg, keeping fields the document does not set.
// Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Sanitize resets unusable values to their defaults and returns one warning
// per correction.
func (c *Config) Sanitize() []string {
	def := Default()
	var warnings []string
	warn := func(field string, got, used any) {
		warnings = append(warnings, fmt.Sprintf("%s: invalid value %v, using %v", field, got, used))
	}

	if c.Generation.Particles < 1 {
		warn("generation.particles", c.Generation.Particles, def.Generation.Particles)
		c.Generation.Particles = def.Generation.Particles
	}
	if c.Cache.MaxSize < 0 {
		warn("cache.max_size", c.Cache.MaxSize, 0)
		c.Cache.MaxSize = 0
	}
	if c.Cache.MaxBytes != "" {
		if _, err := humanize.ParseBytes(c.Cache.MaxBytes); err != nil {
			warn("cache.max_bytes", c.Cache.MaxBytes, "unlimited")
			c.Cache.MaxBytes = ""
		}
	}
	if c.Worker.Workers < 0 {
		warn("worker.workers", c.Worker.Workers, 0)
		c.Worker.Workers = 0
	}
	if c.Worker.Timeout <= 0 {
		warn("worker.timeout", c.Worker.Timeout, def.Worker.Timeout)
		c.Worker.Timeout = def.Worker.Timeout
	}
	if c.Worker.BootTimeout <= 0 {
		warn("worker.boot_timeout", c.Worker.BootTimeout, def.Worker.BootTimeout)
		c.Worker.BootTimeout = def.Worker.BootTimeout
	}
	if c.Worker.QueueSize < 0 {
		warn("worker.queue_size", c.Worker.QueueSize, def.Worker.QueueSize)
		c.Worker.QueueSize = def.Worker.QueueSize
	}
	if _, err := ParseDescriptor(c.Morph.Initial); err != nil {
		warn("morph.initial", c.Morph.Initial, def.Morph.Initial)
		c.Morph.Initial = def.Morph.Initial
	}
	positive := func(field string, v *float64, d float64) {
		if !mathx.Finite(*v) || *v <= 0 {
			warn(field, *v, d)
			*v = d
		}
	}
	positive("morph.advance_rate", &c.Morph.AdvanceRate, def.Morph.AdvanceRate)
	positive("morph.decay_rate", &c.Morph.DecayRate, def.Morph.DecayRate)
	positive("morph.max_velocity", &c.Morph.MaxVelocity, def.Morph.MaxVelocity)
	positive("morph.warm_threshold", &c.Morph.WarmThreshold, def.Morph.WarmThreshold)
	positive("morph.edge_warm", &c.Morph.EdgeWarm, def.Morph.EdgeWarm)
	positive("engine.fps", &c.Engine.FPS, def.Engine.FPS)
	if !mathx.Finite(c.Morph.ActivityThreshold) || c.Morph.ActivityThreshold < 0 {
		warn("morph.activity_threshold", c.Morph.ActivityThreshold, def.Morph.ActivityThreshold)
		c.Morph.ActivityThreshold = def.Morph.ActivityThreshold
	}
	if c.Engine.StaleAfter <= 0 {
		warn("engine.stale_after", c.Engine.StaleAfter, def.Engine.StaleAfter)
		c.Engine.StaleAfter = def.Engine.StaleAfter
	}
	if c.API.RateLimit <= 0 {
		warn("api.rate_limit", c.API.RateLimit, def.API.RateLimit)
		c.API.RateLimit = def.API.RateLimit
	}
	if c.API.RatePeriod <= 0 {
		warn("api.rate_period", c.API.RatePeriod, def.API.RatePeriod)
		c.API.RatePeriod = def.API.RatePeriod
	}
	if c.Journal.Keep <= 0 {
		warn("journal.keep", c.Journal.Keep, def.Journal.Keep)
		c.Journal.Keep = def.Journal.Keep
	}
	if c.Journal.PruneEvery <= 0 {
		warn("journal.prune_every", c.Journal.PruneEvery, def.Journal.PruneEvery)
		c.Journal.PruneEvery = def.Journal.PruneEvery
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		warn("log.level", c.Log.Level, def.Log.Level)
		c.Log.Level = def.Log.Level
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		warn("log.format", c.Log.Format, def.Log.Format)
		c.Log.Format = def.Log.Format
	}
	return warnings
}

// ParseDescriptor parses "type:seed", e.g. "elliptical:99999".
func ParseDescriptor(s string) (galaxy.Descriptor, error) {
	name, seed, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return galaxy.Descriptor{}, fmt.Errorf("descriptor %q: want type:seed", s)
	}
	t, err := galaxy.ParseType(name)
	if err != nil {
		return galaxy.Descriptor{}, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(seed), 10, 64)
	if err != nil {
		return galaxy.Descriptor{}, fmt.Errorf("descriptor %q: seed: %w", s, err)
	}
	return galaxy.Descriptor{Type: t, Seed: n}, nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(s))
	return l, err
}

// Level returns the configured log level, Info when unparseable.
func (c Config) Level() slog.Level {
	l, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// GenConfig converts the generation section.
func (c Config) GenConfig() galaxy.GenConfig {
	return galaxy.GenConfig{ParticleCount: c.Generation.Particles}
}

// CacheConfig converts the cache section. An unparseable byte budget is
// treated as unlimited.
func (c Config) CacheConfig() cache.Config {
	cc := cache.Config{MaxSize: c.Cache.MaxSize}
	if c.Cache.MaxBytes != "" {
		if n, err := humanize.ParseBytes(c.Cache.MaxBytes); err == nil {
			cc.MaxBytes = int64(n)
		}
	}
	return cc
}

// WorkerConfig converts the worker section.
func (c Config) WorkerConfig() worker.Config {
	return worker.Config{
		Workers:     c.Worker.Workers,
		Timeout:     c.Worker.Timeout,
		BootTimeout: c.Worker.BootTimeout,
		QueueSize:   c.Worker.QueueSize,
	}
}

// OrchestratorConfig converts the morph rates and thresholds.
func (c Config) OrchestratorConfig() orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	if d, err := ParseDescriptor(c.Morph.Initial); err == nil {
		oc.Initial = d
	}
	oc.AdvanceRate = c.Morph.AdvanceRate
	oc.DecayRate = c.Morph.DecayRate
	oc.MaxVelocity = c.Morph.MaxVelocity
	oc.ActivityThreshold = c.Morph.ActivityThreshold
	oc.WarmThreshold = c.Morph.WarmThreshold
	oc.EdgeWarm = c.Morph.EdgeWarm
	return oc
}

// Distorter builds the distortion pass, or nil when disabled.
func (c Config) Distorter(seed int64) *morph.Distorter {
	if !c.Morph.Distortion {
		return nil
	}
	return morph.NewDistorter(morph.DistortConfig{
		Amplitude: c.Morph.Amplitude,
		Frequency: c.Morph.Frequency,
		Swirl:     c.Morph.Swirl,
		Seed:      seed,
	})
}
