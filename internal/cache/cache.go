// Package cache keeps recently generated galaxies in a bounded LRU store and
// warms it with an idle-time precompute queue.
//
// Canonical buffers never leave the cache: every read hands out a copy, and
// every write stores one.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/galaxymorph/internal/galaxy"
)

// DefaultMaxSize is the default entry capacity.
const DefaultMaxSize = 50

var (
	// ErrCacheDisabled is returned by AddToCache when the capacity is zero.
	ErrCacheDisabled = errors.New("cache disabled")
	// ErrOverBudget is returned when a buffer alone exceeds the byte budget.
	ErrOverBudget = errors.New("buffer exceeds cache byte budget")
	// ErrInvalidBuffer is returned by AddToCache for a nil or malformed buffer,
	// or one whose particle count differs from the generator's.
	ErrInvalidBuffer = errors.New("invalid galaxy buffer")
)

// Dispatcher offloads generation to a background context. *worker.Dispatcher
// satisfies it.
type Dispatcher interface {
	Ready() bool
	Generate(ctx context.Context, d galaxy.Descriptor) (*galaxy.Buffer, error)
}

// Config holds cache limits.
type Config struct {
	MaxSize  int   // Maximum entries; 0 disables storing (always regenerate)
	MaxBytes int64 // Total byte budget for stored buffers; 0 means unlimited
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{MaxSize: DefaultMaxSize}
}

type entry struct {
	desc     galaxy.Descriptor
	buf      *galaxy.Buffer
	lastUsed uint64
}

// Cache is a bounded LRU of generated galaxies. Safe for concurrent use;
// generation runs outside the lock.
type Cache struct {
	gen        *galaxy.Generator
	dispatcher Dispatcher
	maxSize    int
	maxBytes   int64

	mu      sync.Mutex
	entries map[galaxy.Descriptor]*entry
	clock   uint64 // Logical time; strictly increasing so lastUsed never ties
	bytes   int64

	queue  []galaxy.Descriptor
	queued map[galaxy.Descriptor]bool

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache. dispatcher may be nil, in which case every miss is
// generated synchronously.
func New(cfg Config, gen *galaxy.Generator, dispatcher Dispatcher) *Cache {
	if cfg.MaxSize < 0 {
		cfg.MaxSize = 0
	}
	if cfg.MaxBytes < 0 {
		cfg.MaxBytes = 0
	}
	return &Cache{
		gen:        gen,
		dispatcher: dispatcher,
		maxSize:    cfg.MaxSize,
		maxBytes:   cfg.MaxBytes,
		entries:    make(map[galaxy.Descriptor]*entry),
		queued:     make(map[galaxy.Descriptor]bool),
	}
}

// GetGalaxy returns a copy of the buffer for d. A hit refreshes the entry's
// lastUsed; a miss generates (worker first, synchronous fallback), stores a
// copy and returns the fresh buffer. It never fails.
func (c *Cache) GetGalaxy(ctx context.Context, d galaxy.Descriptor) *galaxy.Buffer {
	c.mu.Lock()
	if e, ok := c.entries[d]; ok {
		c.touch(e)
		c.hits++
		out := e.buf.Clone()
		c.mu.Unlock()
		return out
	}
	c.misses++
	c.mu.Unlock()

	buf := c.produce(ctx, d)
	if err := c.AddToCache(d, buf); err != nil {
		slog.Debug("cache add failed, serving uncached", "descriptor", d.String(), "error", err)
	}
	return buf
}

// AddToCache stores a copy of buf under d, evicting least-recently-used
// entries first when at capacity or over the byte budget. Only buffers with
// the generator's particle count are accepted.
func (c *Cache) AddToCache(d galaxy.Descriptor, buf *galaxy.Buffer) error {
	if err := c.validate(buf); err != nil {
		return err
	}
	if c.maxSize == 0 {
		return ErrCacheDisabled
	}
	size := int64(buf.SizeBytes())
	if c.maxBytes > 0 && size > c.maxBytes {
		return fmt.Errorf("%w: %s > %s", ErrOverBudget,
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(c.maxBytes)))
	}
	stored := buf.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[d]; ok {
		c.bytes += size - int64(e.buf.SizeBytes())
		e.buf = stored
		c.touch(e)
		return nil
	}

	for len(c.entries) > 0 && (len(c.entries) >= c.maxSize || (c.maxBytes > 0 && c.bytes+size > c.maxBytes)) {
		c.evictOldest()
	}

	e := &entry{desc: d, buf: stored}
	c.touch(e)
	c.entries[d] = e
	c.bytes += size
	return nil
}

func (c *Cache) validate(buf *galaxy.Buffer) error {
	switch {
	case buf == nil:
		return fmt.Errorf("%w: nil", ErrInvalidBuffer)
	case len(buf.Positions) != len(buf.Colors) || len(buf.Positions)%3 != 0:
		return fmt.Errorf("%w: %d positions, %d colors", ErrInvalidBuffer, len(buf.Positions), len(buf.Colors))
	case buf.Len() != c.gen.ParticleCount():
		return fmt.Errorf("%w: %d particles, want %d", ErrInvalidBuffer, buf.Len(), c.gen.ParticleCount())
	}
	return nil
}

// IsGalaxyCached reports whether d is stored. It does not count as a use.
func (c *Cache) IsGalaxyCached(d galaxy.Descriptor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[d]
	return ok
}

// ClearCache drops every entry and any queued precompute work. Hit/miss
// counters are lifetime totals and survive a clear.
func (c *Cache) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[galaxy.Descriptor]*entry)
	c.bytes = 0
	c.queue = nil
	c.queued = make(map[galaxy.Descriptor]bool)
}

// touch must be called with mu held.
func (c *Cache) touch(e *entry) {
	c.clock++
	e.lastUsed = c.clock
}

// evictOldest removes the entry with the smallest lastUsed. Called with mu held.
func (c *Cache) evictOldest() {
	var oldest *entry
	for _, e := range c.entries {
		if oldest == nil || e.lastUsed < oldest.lastUsed {
			oldest = e
		}
	}
	if oldest == nil {
		return
	}
	delete(c.entries, oldest.desc)
	c.bytes -= int64(oldest.buf.SizeBytes())
	c.evictions++
	slog.Debug("cache evict", "descriptor", oldest.desc.String(), "last_used", oldest.lastUsed)
}

// produce generates d, preferring the dispatcher. Any worker failure falls
// back to synchronous generation, which yields the identical buffer.
func (c *Cache) produce(ctx context.Context, d galaxy.Descriptor) *galaxy.Buffer {
	if c.dispatcher != nil && c.dispatcher.Ready() {
		buf, err := c.dispatcher.Generate(ctx, d)
		if err == nil && buf.Len() == c.gen.ParticleCount() {
			return buf
		}
		if err == nil {
			err = fmt.Errorf("worker returned %d particles, want %d", buf.Len(), c.gen.ParticleCount())
		}
		slog.Debug("worker generation failed, generating synchronously", "descriptor", d.String(), "error", err)
	}
	return c.gen.Generate(d)
}
