// Package probe watches a running galaxy engine through its HTTP API.
// It observes status, cache and worker endpoints and derives a coarse health
// verdict from consecutive snapshots.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Snapshot holds all data collected during one observation.
type Snapshot struct {
	Status Status      `json:"status"`
	Cache  CacheStats  `json:"cache"`
	Worker WorkerStats `json:"worker"`
	At     time.Time   `json:"at"`
}

// Status mirrors GET /api/v1/status.
type Status struct {
	Type              string  `json:"type"`
	Seed              int64   `json:"seed"`
	ParticleCount     int     `json:"particle_count"`
	TransformProgress float64 `json:"transform_progress"`
	Velocity          float64 `json:"velocity"`
	IsTransforming    bool    `json:"is_transforming"`
	TargetType        string  `json:"target_type"`
	TargetSeed        int64   `json:"target_seed"`
	Frame             uint64  `json:"frame"`
	FrameTime         string  `json:"frame_time"`
	Uptime            string  `json:"uptime"`
	Summary           string  `json:"summary"`
}

// CacheStats mirrors GET /api/v1/cache.
type CacheStats struct {
	Size       int     `json:"size"`
	MaxSize    int     `json:"max_size"`
	HitRate    float64 `json:"hit_rate"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	Evictions  uint64  `json:"evictions"`
	Queued     int     `json:"queued"`
	BytesHuman string  `json:"bytes_human"`
}

// WorkerStats mirrors GET /api/v1/worker.
type WorkerStats struct {
	Workers   int    `json:"workers"`
	Ready     bool   `json:"ready"`
	InFlight  int    `json:"in_flight"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	TimedOut  uint64 `json:"timed_out"`
	Path      string `json:"path"`
}

// Observer fetches engine state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Observe fetches the three endpoints and returns a Snapshot.
func (o *Observer) Observe(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{At: time.Now()}

	if err := o.fetchJSON(ctx, "/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/cache", &snap.Cache); err != nil {
		return nil, fmt.Errorf("fetch cache: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/worker", &snap.Worker); err != nil {
		return nil, fmt.Errorf("fetch worker: %w", err)
	}
	return snap, nil
}

// Ready reports whether the status endpoint answers 200.
func (o *Observer) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/v1/status", nil)
	if err != nil {
		return false
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
