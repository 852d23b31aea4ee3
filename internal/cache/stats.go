package cache

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Stats is a point-in-time view of the cache.
type Stats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	HitRate   float64 `json:"hit_rate"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	Queued    int     `json:"queued"`
	Bytes     int64   `json:"bytes"`
}

// GetCacheStats returns current statistics.
func (c *Cache) GetCacheStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:      len(c.entries),
		MaxSize:   c.maxSize,
		HitRate:   rate,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Queued:    len(c.queue),
		Bytes:     c.bytes,
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("%d/%d entries, %s, hit rate %.1f%% (%s hits, %s misses), %d queued",
		s.Size, s.MaxSize, humanize.Bytes(uint64(s.Bytes)), s.HitRate*100,
		humanize.Comma(int64(s.Hits)), humanize.Comma(int64(s.Misses)), s.Queued)
}
