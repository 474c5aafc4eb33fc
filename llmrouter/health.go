package llmrouter

import (
	"context"
	"sync"
	"time"

	"github.com/agentmesh/coordinator/provider"
)

const (
	healthCacheTTL   = 5 * time.Minute
	rateLimitCooldown = 60 * time.Second
)

type healthEntry struct {
	healthy   bool
	checkedAt time.Time
	coolUntil time.Time // rate-limit cool-down; zero if none active
}

// healthCache is the router's single process-wide piece of mutable
// state, guarded by one RWMutex per the locking discipline.
type healthCache struct {
	mu      sync.RWMutex
	entries map[string]healthEntry
}

func newHealthCache() *healthCache {
	return &healthCache{entries: make(map[string]healthEntry)}
}

// isHealthy returns the cached health for name, probing adapter if the
// cache entry is missing or stale. A provider still cooling down from a
// rate limit is reported unhealthy without a probe.
func (c *healthCache) isHealthy(ctx context.Context, name string, adapter provider.Adapter) bool {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()

	if ok && now.Before(entry.coolUntil) {
		return false
	}
	if ok && now.Sub(entry.checkedAt) < healthCacheTTL {
		return entry.healthy
	}

	healthy := adapter.IsAvailable(ctx)
	c.mu.Lock()
	c.entries[name] = healthEntry{healthy: healthy, checkedAt: now}
	c.mu.Unlock()
	return healthy
}

// markRateLimited puts name into cool-down, overriding any cached health
// until the window passes.
func (c *healthCache) markRateLimited(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[name]
	e.coolUntil = time.Now().Add(rateLimitCooldown)
	e.healthy = false
	c.entries[name] = e
}

// invalidate forces the next isHealthy call to re-probe.
func (c *healthCache) invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}
