// Package worker offloads galaxy generation to a pool of goroutines that talk
// to the caller only through request and response messages.
//
// Every failure here is recoverable: callers fall back to generating on their
// own goroutine, which yields the identical buffer.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/galaxymorph/internal/galaxy"
)

var (
	ErrNotReady    = errors.New("worker dispatcher not ready")
	ErrTimeout     = errors.New("worker request timed out")
	ErrTerminated  = errors.New("worker dispatcher terminated")
	ErrWorker      = errors.New("worker execution failed")
	ErrBootTimeout = errors.New("worker boot handshake timed out")
)

// Runner produces the buffer for a descriptor. It must be pure; the
// dispatcher calls it from several goroutines at once.
type Runner func(galaxy.Descriptor) *galaxy.Buffer

// Config controls the worker pool.
type Config struct {
	Workers     int           // Pool size; 0 disables the dispatcher
	Timeout     time.Duration // Per-request deadline
	BootTimeout time.Duration // How long New waits for every worker to report in
	QueueSize   int           // Buffered requests before Generate blocks

	// Init, if set, runs in each worker before it reports ready. An error
	// fails the boot handshake.
	Init func() error
}

// DefaultConfig returns a pool sized to the machine, capped at four workers.
func DefaultConfig() Config {
	return Config{
		Workers:     min(runtime.NumCPU(), 4),
		Timeout:     5 * time.Second,
		BootTimeout: 2 * time.Second,
		QueueSize:   64,
	}
}

type result struct {
	buf *galaxy.Buffer
	err error
}

// Dispatcher routes generate requests to worker goroutines and matches
// responses to callers by id.
type Dispatcher struct {
	cfg Config
	run Runner

	requests  chan Request
	responses chan Response
	boot      chan error
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	ready     atomic.Bool

	mu       sync.Mutex
	inflight map[string]chan result
	closed   bool

	completed atomic.Uint64
	failed    atomic.Uint64
	timedOut  atomic.Uint64
	orphaned  atomic.Uint64
}

// New starts the pool and waits for the boot handshake. A dispatcher that
// fails to boot is still returned; Ready reports false and Generate refuses
// work, so callers take the synchronous path.
func New(cfg Config, run Runner) *Dispatcher {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.BootTimeout <= 0 {
		cfg.BootTimeout = def.BootTimeout
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	d := &Dispatcher{
		cfg:       cfg,
		run:       run,
		requests:  make(chan Request, cfg.QueueSize),
		responses: make(chan Response, max(cfg.Workers, 1)),
		boot:      make(chan error, max(cfg.Workers, 1)),
		done:      make(chan struct{}),
		inflight:  make(map[string]chan result),
	}

	if cfg.Workers <= 0 || run == nil {
		slog.Warn("worker dispatcher disabled, generating synchronously", "workers", cfg.Workers)
		return d
	}

	d.wg.Add(cfg.Workers + 1)
	for i := 0; i < cfg.Workers; i++ {
		go d.work(i)
	}
	go d.route()

	if err := d.awaitBoot(); err != nil {
		slog.Warn("worker dispatcher failed to start, generating synchronously", "error", err)
		return d
	}
	d.ready.Store(true)
	slog.Info("worker dispatcher ready", "workers", cfg.Workers, "timeout", cfg.Timeout)
	return d
}

func (d *Dispatcher) awaitBoot() error {
	timer := time.NewTimer(d.cfg.BootTimeout)
	defer timer.Stop()
	for n := 0; n < d.cfg.Workers; n++ {
		select {
		case err := <-d.boot:
			if err != nil {
				return fmt.Errorf("worker init: %w", err)
			}
		case <-timer.C:
			return fmt.Errorf("%w: %d of %d workers after %s", ErrBootTimeout, n, d.cfg.Workers, d.cfg.BootTimeout)
		}
	}
	return nil
}

// Ready reports whether Generate will accept work.
func (d *Dispatcher) Ready() bool {
	return d.ready.Load()
}

// Generate sends d to a worker and waits for the result, the per-request
// timeout, ctx, or shutdown, whichever comes first.
func (d *Dispatcher) Generate(ctx context.Context, desc galaxy.Descriptor) (*galaxy.Buffer, error) {
	id := uuid.NewString()
	ch := make(chan result, 1)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrTerminated
	}
	if !d.ready.Load() {
		d.mu.Unlock()
		return nil, ErrNotReady
	}
	d.inflight[id] = ch
	d.mu.Unlock()

	timer := time.NewTimer(d.cfg.Timeout)
	defer timer.Stop()

	select {
	case d.requests <- newRequest(id, desc):
	case r := <-ch:
		return r.buf, r.err
	case <-timer.C:
		return nil, d.expire(id)
	case <-ctx.Done():
		d.forget(id)
		return nil, ctx.Err()
	}

	select {
	case r := <-ch:
		return r.buf, r.err
	case <-timer.C:
		return nil, d.expire(id)
	case <-ctx.Done():
		d.forget(id)
		return nil, ctx.Err()
	}
}

// expire drops a timed-out slot so a late response is discarded by id.
func (d *Dispatcher) expire(id string) error {
	d.forget(id)
	d.timedOut.Add(1)
	slog.Debug("worker request timed out", "id", id, "timeout", d.cfg.Timeout)
	return fmt.Errorf("%w after %s", ErrTimeout, d.cfg.Timeout)
}

func (d *Dispatcher) forget(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}

// InFlight returns the number of requests awaiting a response.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Close rejects every in-flight request with ErrTerminated and stops the
// pool. It blocks until workers finish their current job; workers still in
// Init are not waited for. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		pending := d.inflight
		d.inflight = make(map[string]chan result)
		d.mu.Unlock()

		d.ready.Store(false)
		close(d.done)
		for _, ch := range pending {
			ch <- result{err: ErrTerminated}
		}
		d.wg.Wait()
		slog.Info("worker dispatcher stopped", "rejected", len(pending))
	})
}

func (d *Dispatcher) work(n int) {
	defer d.wg.Done()

	if d.cfg.Init != nil {
		// Init takes no context, so a hung Init is abandoned on Close
		// instead of waited for.
		initErr := make(chan error, 1)
		go func() { initErr <- d.cfg.Init() }()
		select {
		case err := <-initErr:
			if err != nil {
				slog.Debug("worker init failed", "worker", n, "error", err)
				d.boot <- err
				return
			}
		case <-d.done:
			slog.Debug("worker closed during init", "worker", n)
			return
		}
	}
	d.boot <- nil

	for {
		select {
		case <-d.done:
			return
		case req := <-d.requests:
			resp := d.handle(req)
			select {
			case d.responses <- resp:
			case <-d.done:
				return
			}
		}
	}
}

// handle runs one request. A panicking runner becomes an error response.
func (d *Dispatcher) handle(req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = errorResponse(req, fmt.Errorf("panic: %v", r))
		}
	}()

	if req.Type != TypeGenerate {
		return errorResponse(req, fmt.Errorf("unknown request type %q", req.Type))
	}
	t, err := galaxy.ParseType(req.Data.GalaxyType)
	if err != nil {
		return errorResponse(req, err)
	}
	buf := d.run(galaxy.Descriptor{Type: t, Seed: req.Data.Seed})
	return Response{
		ID:   req.ID,
		Type: TypeGenerated,
		Data: ResponseData{
			GalaxyType: req.Data.GalaxyType,
			Seed:       req.Data.Seed,
			Positions:  buf.Positions,
			Colors:     buf.Colors,
		},
	}
}

// route matches responses to waiting callers. Unmatched ids belong to
// requests that already timed out and are dropped.
func (d *Dispatcher) route() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case resp := <-d.responses:
			d.resolve(resp)
		}
	}
}

func (d *Dispatcher) resolve(resp Response) {
	d.mu.Lock()
	ch, ok := d.inflight[resp.ID]
	if ok {
		delete(d.inflight, resp.ID)
	}
	d.mu.Unlock()

	if !ok {
		d.orphaned.Add(1)
		slog.Debug("worker response ignored, no matching request", "id", resp.ID, "type", resp.Type)
		return
	}

	buf, err := resp.buffer()
	if err != nil {
		d.failed.Add(1)
	} else {
		d.completed.Add(1)
	}
	ch <- result{buf: buf, err: err}
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Workers   int    `json:"workers"`
	Ready     bool   `json:"ready"`
	InFlight  int    `json:"in_flight"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	TimedOut  uint64 `json:"timed_out"`
	Orphaned  uint64 `json:"orphaned"`
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Workers:   d.cfg.Workers,
		Ready:     d.Ready(),
		InFlight:  d.InFlight(),
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
		TimedOut:  d.timedOut.Load(),
		Orphaned:  d.orphaned.Load(),
	}
}
