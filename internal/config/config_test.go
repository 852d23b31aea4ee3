package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/talgya/galaxymorph/internal/galaxy"
)

func TestDefaultIsClean(t *testing.T) {
	cfg := Default()
	if w := cfg.Sanitize(); len(w) != 0 {
		t.Errorf("Default() produced warnings: %v", w)
	}
	if cfg.Generation.Particles != galaxy.DefaultParticleCount || cfg.Cache.MaxSize != 50 {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Error("missing file did not yield defaults")
	}
	if cfg, err := Load(""); err != nil || cfg != Default() {
		t.Error("empty path did not yield defaults")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "galaxy.yaml")
	doc := `
generation:
  particles: 1000
cache:
  max_size: 8
  max_bytes: 64 MB
worker:
  timeout: 750ms
morph:
  initial: elliptical:99999
  distortion: false
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Generation.Particles != 1000 || cfg.Cache.MaxSize != 8 || cfg.Worker.Timeout != 750*time.Millisecond {
		t.Errorf("overlay not applied: %+v", cfg)
	}
	if cfg.Engine.FPS != Default().Engine.FPS {
		t.Error("unset field lost its default")
	}
	if got := cfg.CacheConfig().MaxBytes; got != 64_000_000 {
		t.Errorf("MaxBytes = %d", got)
	}
	if oc := cfg.OrchestratorConfig(); oc.Initial != (galaxy.Descriptor{Type: galaxy.Elliptical, Seed: 99999}) {
		t.Errorf("Initial = %s", oc.Initial)
	}
	if cfg.Distorter(1) != nil {
		t.Error("distortion disabled but Distorter returned non-nil")
	}
	if cfg.Level().String() != "DEBUG" {
		t.Errorf("Level = %s", cfg.Level())
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	tests := map[string]string{
		"syntax":      "generation: [",
		"unknown key": "generation:\n  particle_count: 5\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	cfg := Default()
	cfg.Generation.Particles = 0
	cfg.Cache.MaxSize = -3
	cfg.Cache.MaxBytes = "lots"
	cfg.Worker.Workers = -1
	cfg.Worker.Timeout = 0
	cfg.Morph.Initial = "lenticular:5"
	cfg.Morph.DecayRate = -1
	cfg.Engine.FPS = 0
	cfg.Log.Level = "chatty"
	cfg.Log.Format = "xml"

	warnings := cfg.Sanitize()
	if len(warnings) != 10 {
		t.Errorf("got %d warnings, want 10: %v", len(warnings), warnings)
	}
	def := Default()
	if cfg.Generation.Particles != def.Generation.Particles ||
		cfg.Cache.MaxSize != 0 ||
		cfg.Cache.MaxBytes != "" ||
		cfg.Worker.Workers != 0 ||
		cfg.Worker.Timeout != def.Worker.Timeout ||
		cfg.Morph.Initial != def.Morph.Initial ||
		cfg.Morph.DecayRate != def.Morph.DecayRate ||
		cfg.Engine.FPS != def.Engine.FPS ||
		cfg.Log.Level != "info" ||
		cfg.Log.Format != "auto" {
		t.Errorf("sanitized = %+v", cfg)
	}
	if again := cfg.Sanitize(); len(again) != 0 {
		t.Errorf("second Sanitize warned: %v", again)
	}
}

func TestSanitizeNonFinite(t *testing.T) {
	def := Default()
	cfg := Default()
	tests := []struct {
		name  string
		field *float64
		set   float64
		want  float64
	}{
		{"fps +Inf", &cfg.Engine.FPS, math.Inf(1), def.Engine.FPS},
		{"advance rate NaN", &cfg.Morph.AdvanceRate, math.NaN(), def.Morph.AdvanceRate},
		{"max velocity +Inf", &cfg.Morph.MaxVelocity, math.Inf(1), def.Morph.MaxVelocity},
		{"activity threshold +Inf", &cfg.Morph.ActivityThreshold, math.Inf(1), def.Morph.ActivityThreshold},
	}
	for _, tt := range tests {
		*tt.field = tt.set
	}
	if w := cfg.Sanitize(); len(w) != len(tests) {
		t.Errorf("got %d warnings, want %d: %v", len(w), len(tests), w)
	}
	for _, tt := range tests {
		if *tt.field != tt.want {
			t.Errorf("%s: sanitized to %v, want %v", tt.name, *tt.field, tt.want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GALAXY_PARTICLES":      "2500",
		"GALAXY_WORKERS":        "0",
		"GALAXY_WORKER_TIMEOUT": "2s",
		"GALAXY_INITIAL":        "irregular:7",
		"GALAXY_SIMULATE":       "true",
		"GALAXY_FPS":            "fast",
		"GALAXY_ADMIN_KEY":      "secret",
		"GALAXY_CACHE_SIZE":     "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	warnings := cfg.applyEnv(lookup)
	if len(warnings) != 1 || !strings.Contains(warnings[0], "GALAXY_FPS") {
		t.Errorf("warnings = %v", warnings)
	}
	if cfg.Generation.Particles != 2500 || cfg.Worker.Workers != 0 || cfg.Worker.Timeout != 2*time.Second {
		t.Errorf("numeric overrides = %+v", cfg)
	}
	if !cfg.Engine.Simulate || cfg.API.AdminKey != "secret" || cfg.Morph.Initial != "irregular:7" {
		t.Errorf("string overrides = %+v", cfg)
	}
	if cfg.Engine.FPS != Default().Engine.FPS || cfg.Cache.MaxSize != Default().Cache.MaxSize {
		t.Error("unparseable or empty values should leave the field alone")
	}
}

func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		in   string
		want galaxy.Descriptor
		ok   bool
	}{
		{"spiral:12345", galaxy.Descriptor{Type: galaxy.Spiral, Seed: 12345}, true},
		{" Elliptical : -4 ", galaxy.Descriptor{Type: galaxy.Elliptical, Seed: -4}, true},
		{"irregular", galaxy.Descriptor{}, false},
		{"spiral:12abc", galaxy.Descriptor{}, false},
		{"disk:1", galaxy.Descriptor{}, false},
	}
	for _, tt := range tests {
		got, err := ParseDescriptor(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseDescriptor(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestConverters(t *testing.T) {
	cfg := Default()
	if cfg.GenConfig().ParticleCount != cfg.Generation.Particles {
		t.Error("GenConfig")
	}
	wc := cfg.WorkerConfig()
	if wc.Workers != cfg.Worker.Workers || wc.Timeout != cfg.Worker.Timeout {
		t.Error("WorkerConfig")
	}
	if cfg.CacheConfig().MaxBytes != 0 {
		t.Error("empty max_bytes should be unlimited")
	}
	if d := cfg.Distorter(3); d == nil || d.Amplitude() != cfg.Morph.Amplitude {
		t.Error("Distorter")
	}
}
