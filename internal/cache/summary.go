package cache

import (
	"context"
	"sync"
	"time"

	"emitrack/internal/core"

	"golang.org/x/sync/singleflight"
)

// SummaryCache holds one EMI summary per user. Concurrent misses for the same
// user share a single load.
type SummaryCache struct {
	lru   *LRUCache[core.EMISummary]
	group singleflight.Group

	mu  sync.Mutex
	gen map[string]uint64
}

func NewSummaryCache(maxUsers int, ttl time.Duration) *SummaryCache {
	return &SummaryCache{
		lru: NewLRUCache[core.EMISummary](maxUsers, ttl),
		gen: make(map[string]uint64),
	}
}

// Get returns the cached summary for userID or calls load to build it.
func (c *SummaryCache) Get(ctx context.Context, userID string, load func(ctx context.Context) (core.EMISummary, error)) (core.EMISummary, error) {
	if s, ok := c.lru.Get(userID); ok {
		return s, nil
	}

	v, err, _ := c.group.Do(userID, func() (interface{}, error) {
		before := c.generation(userID)
		s, err := load(ctx)
		if err != nil {
			return core.EMISummary{}, err
		}
		// an invalidation during the load means s may be stale
		if c.generation(userID) == before {
			c.lru.Set(userID, s)
		}
		return s, nil
	})
	if err != nil {
		return core.EMISummary{}, err
	}
	return v.(core.EMISummary), nil
}

// Invalidate drops the cached summary of userID.
func (c *SummaryCache) Invalidate(userID string) {
	c.mu.Lock()
	c.gen[userID]++
	c.mu.Unlock()
	c.lru.Delete(userID)
	c.group.Forget(userID)
}

func (c *SummaryCache) generation(userID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[userID]
}

func (c *SummaryCache) CleanExpired() int {
	return c.lru.CleanExpired()
}

func (c *SummaryCache) Size() int {
	return c.lru.Size()
}
