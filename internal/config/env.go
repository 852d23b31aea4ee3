package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ApplyEnv overrides fields from GALAXY_* environment variables and returns
// a warning for every value it could not parse.
func (c *Config) ApplyEnv() []string {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) []string {
	e := envReader{lookup: lookup}

	e.intVar("GALAXY_PARTICLES", &c.Generation.Particles)
	e.intVar("GALAXY_CACHE_SIZE", &c.Cache.MaxSize)
	e.stringVar("GALAXY_CACHE_BYTES", &c.Cache.MaxBytes)
	e.intVar("GALAXY_WORKERS", &c.Worker.Workers)
	e.durationVar("GALAXY_WORKER_TIMEOUT", &c.Worker.Timeout)
	e.stringVar("GALAXY_INITIAL", &c.Morph.Initial)
	e.boolVar("GALAXY_DISTORTION", &c.Morph.Distortion)
	e.floatVar("GALAXY_FPS", &c.Engine.FPS)
	e.boolVar("GALAXY_SIMULATE", &c.Engine.Simulate)
	e.stringVar("GALAXY_API_ADDR", &c.API.Addr)
	e.stringVar("GALAXY_ADMIN_KEY", &c.API.AdminKey)
	e.stringVar("GALAXY_RELAY_KEY", &c.API.RelayKey)
	e.stringVar("GALAXY_JOURNAL_DSN", &c.Journal.DSN)
	e.stringVar("GALAXY_LOG_LEVEL", &c.Log.Level)
	e.stringVar("GALAXY_LOG_FORMAT", &c.Log.Format)

	return e.warnings
}

type envReader struct {
	lookup   func(string) (string, bool)
	warnings []string
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) fail(key, v string, err error) {
	e.warnings = append(e.warnings, fmt.Sprintf("%s=%q ignored: %v", key, v, err))
}

func (e *envReader) stringVar(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) intVar(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) floatVar(key string, dst *float64) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = f
}

func (e *envReader) boolVar(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = b
}

func (e *envReader) durationVar(key string, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}
