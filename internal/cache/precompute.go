package cache

import (
	"context"
	"log/slog"

	"github.com/talgya/galaxymorph/internal/galaxy"
)

// PreComputeGalaxies queues descriptors for idle-time generation. Descriptors
// already queued are ignored. Returns how many were added.
func (c *Cache) PreComputeGalaxies(list ...galaxy.Descriptor) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	for _, d := range list {
		if c.queued[d] {
			continue
		}
		c.queued[d] = true
		c.queue = append(c.queue, d)
		added++
	}
	return added
}

// Pending returns the number of queued precompute items.
func (c *Cache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// DrainOne processes at most one queued descriptor and returns. It is meant
// to be called from an idle hook between frames. Returns false when the queue
// was empty.
func (c *Cache) DrainOne(ctx context.Context) bool {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return false
	}
	d := c.queue[0]
	c.queue[0] = galaxy.Descriptor{}
	c.queue = c.queue[1:]
	delete(c.queued, d)
	_, cached := c.entries[d]
	c.mu.Unlock()

	if cached {
		slog.Debug("precompute skip, already cached", "descriptor", d.String())
		return true
	}

	buf := c.produce(ctx, d)
	if err := c.AddToCache(d, buf); err != nil {
		slog.Debug("precompute add failed", "descriptor", d.String(), "error", err)
		return true
	}
	slog.Debug("precomputed galaxy", "descriptor", d.String())
	return true
}
