// Package api serves engine diagnostics over HTTP.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jinzhu/copier"

	"github.com/talgya/galaxymorph/internal/activity"
	"github.com/talgya/galaxymorph/internal/cache"
	"github.com/talgya/galaxymorph/internal/engine"
	"github.com/talgya/galaxymorph/internal/galaxy"
	"github.com/talgya/galaxymorph/internal/journal"
	"github.com/talgya/galaxymorph/internal/orchestrator"
	"github.com/talgya/galaxymorph/internal/worker"
)

const (
	maxSSEConns        = 4
	maxPrecompute      = 100
	defaultHistory     = 50
	maxHistory         = 1000
	streamCatchUp      = 20
	maxActivityBytes   = 4 << 10
	maxPrecomputeBytes = 64 << 10
)

// StatusSource publishes orchestrator diagnostics.
type StatusSource interface {
	Diagnostics() orchestrator.Diagnostics
}

// GalaxyCache is the cache surface the API reads and warms.
type GalaxyCache interface {
	GetGalaxy(ctx context.Context, d galaxy.Descriptor) *galaxy.Buffer
	IsGalaxyCached(d galaxy.Descriptor) bool
	GetCacheStats() cache.Stats
	PreComputeGalaxies(list ...galaxy.Descriptor) int
}

// WorkerStats reports dispatcher counters.
type WorkerStats interface {
	Stats() worker.Stats
}

// History serves recorded frames and transitions.
type History interface {
	RecentFrames(limit int) ([]journal.FrameRecord, error)
	RecentTransitions(limit int) ([]journal.TransitionRecord, error)
}

// TransitionFeed fans out live transitions.
type TransitionFeed interface {
	Subscribe(buffer int) (string, <-chan orchestrator.Transition)
	Unsubscribe(id string)
}

// ActivitySink accepts pushed activity samples.
type ActivitySink interface {
	Set(sig activity.Signal)
}

// Server serves the engine state over HTTP. Nil collaborators make their
// endpoints answer 503.
type Server struct {
	Status   StatusSource
	Cache    GalaxyCache
	Worker   WorkerStats
	History  History
	Feed     TransitionFeed
	Activity ActivitySink

	Addr       string
	AdminKey   string // Bearer token for POST endpoints. Empty = POST disabled.
	RelayKey   string // Bearer token for SSE stream endpoint. Empty = streaming disabled.
	RateLimit  int    // Galaxy lookups per client per RatePeriod
	RatePeriod time.Duration
	Started    time.Time
	FPS        float64

	// Active SSE connection count (atomic).
	sseConns int32
	limiter  *RateLimiter
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.limiter == nil {
		rate, period := s.RateLimit, s.RatePeriod
		if rate <= 0 {
			rate = 30
		}
		if period <= 0 {
			period = time.Minute
		}
		s.limiter = NewRateLimiter(rate, period)
	}
	if s.Started.IsZero() {
		s.Started = time.Now()
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/cache", s.handleCache)
	mux.HandleFunc("/api/v1/worker", s.handleWorker)
	mux.HandleFunc("/api/v1/history", s.handleHistory)
	mux.HandleFunc("/api/v1/transitions", s.handleTransitions)
	mux.HandleFunc("/api/v1/galaxy", RateLimitMiddleware(s.limiter, s.handleGalaxy))

	// SSE streaming endpoint (GET, requires the relay bearer token).
	mux.HandleFunc("/api/v1/stream", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/activity", s.adminOnly(s.handleActivity))
	mux.HandleFunc("/api/v1/precompute", s.adminOnly(s.handlePrecompute))

	return corsMiddleware(mux)
}

// Start begins serving in a goroutine. Shut the returned server down to stop.
func (s *Server) Start() *http.Server {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// Close releases the rate limiter.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set GALAXY_CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("GALAXY_CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerMatches(r *http.Request, key string) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == key
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// Other methods are rejected.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no GALAXY_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !bearerMatches(r, s.AdminKey) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// StatusResponse is the /status payload.
type StatusResponse struct {
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
	FrameTime         string             `json:"frame_time,omitempty"`
	Uptime            string             `json:"uptime"`
	Summary           string             `json:"summary"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.Status == nil {
		http.Error(w, "orchestrator not available", http.StatusServiceUnavailable)
		return
	}
	diag := s.Status.Diagnostics()
	var resp StatusResponse
	if err := copier.Copy(&resp, &diag); err != nil {
		slog.Error("status mapping failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	resp.Uptime = time.Since(s.Started).Truncate(time.Second).String()
	resp.Summary = diag.String()
	if s.FPS > 0 {
		resp.FrameTime = engine.FrameTime(diag.Frame, s.FPS)
	}
	writeJSON(w, resp)
}

// CacheResponse is the /cache payload.
type CacheResponse struct {
	Size       int     `json:"size"`
	MaxSize    int     `json:"max_size"`
	HitRate    float64 `json:"hit_rate"`
	Hits       uint64  `json:"hits"`
	Misses     uint64  `json:"misses"`
	Evictions  uint64  `json:"evictions"`
	Queued     int     `json:"queued"`
	Bytes      int64   `json:"bytes"`
	BytesHuman string  `json:"bytes_human"`
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if s.Cache == nil {
		http.Error(w, "cache not available", http.StatusServiceUnavailable)
		return
	}
	stats := s.Cache.GetCacheStats()
	var resp CacheResponse
	if err := copier.Copy(&resp, &stats); err != nil {
		slog.Error("cache stats mapping failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	resp.BytesHuman = humanize.Bytes(uint64(max(stats.Bytes, 0)))
	writeJSON(w, resp)
}

// WorkerResponse is the /worker payload.
type WorkerResponse struct {
	Workers   int    `json:"workers"`
	Ready     bool   `json:"ready"`
	InFlight  int    `json:"in_flight"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	TimedOut  uint64 `json:"timed_out"`
	Orphaned  uint64 `json:"orphaned"`
	Path      string `json:"path"` // "worker" or "sync"
}

func (s *Server) handleWorker(w http.ResponseWriter, r *http.Request) {
	if s.Worker == nil {
		writeJSON(w, WorkerResponse{Path: "sync"})
		return
	}
	stats := s.Worker.Stats()
	var resp WorkerResponse
	if err := copier.Copy(&resp, &stats); err != nil {
		slog.Error("worker stats mapping failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	resp.Path = "sync"
	if stats.Ready {
		resp.Path = "worker"
	}
	writeJSON(w, resp)
}

func historyLimit(r *http.Request) int {
	limit := defaultHistory
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= maxHistory {
			limit = v
		}
	}
	return limit
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		http.Error(w, "journal not available", http.StatusServiceUnavailable)
		return
	}
	rows, err := s.History.RecentFrames(historyLimit(r))
	if err != nil {
		slog.Error("frame history query failed", "error", err)
		// Return empty array instead of an error, the table may be empty.
		rows = nil
	}
	if rows == nil {
		rows = []journal.FrameRecord{}
	}
	writeJSON(w, rows)
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		http.Error(w, "journal not available", http.StatusServiceUnavailable)
		return
	}
	rows, err := s.History.RecentTransitions(historyLimit(r))
	if err != nil {
		slog.Error("transition history query failed", "error", err)
		rows = nil
	}
	if rows == nil {
		rows = []journal.TransitionRecord{}
	}
	writeJSON(w, rows)
}

// GalaxyResponse is the /galaxy payload: a summary, never the raw buffer.
type GalaxyResponse struct {
	Type        string             `json:"type"`
	Seed        int64              `json:"seed"`
	Particles   int                `json:"particles"`
	Bounds      galaxy.BoundingBox `json:"bounds"`
	MaxAbs      float32            `json:"max_abs"`
	ChecksumHex string             `json:"checksum"`
	Size        string             `json:"size"`
	Cached      bool               `json:"cached"`
}

func (s *Server) handleGalaxy(w http.ResponseWriter, r *http.Request) {
	if s.Cache == nil {
		http.Error(w, "cache not available", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	t, err := galaxy.ParseType(q.Get("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	seed, err := strconv.ParseInt(q.Get("seed"), 10, 64)
	if err != nil {
		http.Error(w, "seed must be an integer", http.StatusBadRequest)
		return
	}
	d := galaxy.Descriptor{Type: t, Seed: seed}

	cached := s.Cache.IsGalaxyCached(d)
	buf := s.Cache.GetGalaxy(r.Context(), d)
	sum := galaxy.Summarize(buf)

	var resp GalaxyResponse
	if err := copier.Copy(&resp, &sum); err != nil {
		slog.Error("galaxy summary mapping failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	resp.Type = t.String()
	resp.Seed = seed
	resp.MaxAbs = sum.Bounds.MaxAbs()
	resp.ChecksumHex = fmt.Sprintf("%016x", sum.Checksum)
	resp.Size = humanize.Bytes(uint64(buf.SizeBytes()))
	resp.Cached = cached
	writeJSON(w, resp)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.Activity == nil {
		http.Error(w, "activity input not available", http.StatusServiceUnavailable)
		return
	}
	var sig activity.Signal
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActivityBytes)).Decode(&sig); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	sig = sig.Sanitize()
	s.Activity.Set(sig)
	writeJSON(w, map[string]any{"accepted": true, "signal": sig})
}

type precomputeRequest struct {
	Galaxies []galaxy.Descriptor `json:"galaxies"`
}

func (s *Server) handlePrecompute(w http.ResponseWriter, r *http.Request) {
	if s.Cache == nil {
		http.Error(w, "cache not available", http.StatusServiceUnavailable)
		return
	}
	var req precomputeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPrecomputeBytes)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Galaxies) == 0 || len(req.Galaxies) > maxPrecompute {
		http.Error(w, fmt.Sprintf("galaxies must list 1 to %d descriptors", maxPrecompute), http.StatusBadRequest)
		return
	}
	queued := s.Cache.PreComputeGalaxies(req.Galaxies...)
	slog.Info("precompute requested", "requested", len(req.Galaxies), "queued", queued)
	writeJSON(w, map[string]any{"requested": len(req.Galaxies), "queued": queued})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Relay key, not the admin key.
	if s.RelayKey == "" {
		http.Error(w, "streaming disabled (no relay key)", http.StatusForbidden)
		return
	}
	if !bearerMatches(r, s.RelayKey) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.Feed == nil {
		http.Error(w, "transition feed not available", http.StatusServiceUnavailable)
		return
	}

	// Connection limit.
	current := atomic.AddInt32(&s.sseConns, 1)
	if current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, ch := s.Feed.Subscribe(32)
	defer s.Feed.Unsubscribe(subID)

	// Catch-up from the journal, oldest first.
	if s.History != nil {
		if rows, err := s.History.RecentTransitions(streamCatchUp); err == nil {
			for i := len(rows) - 1; i >= 0; i-- {
				writeSSE(w, rows[i].Kind, rows[i])
			}
		}
	}
	flusher.Flush()

	slog.Info("SSE client connected", "sub_id", subID)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case t, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, string(t.Kind), t)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

// writeSSE writes a single event in SSE format.
func writeSSE(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
