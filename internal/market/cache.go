package market

import (
	"strings"
	"sync"
)

// cycleCache holds fetched values for the duration of one orchestration
// cycle. Entries are append-only within a cycle (a key is written at most
// once), so every strategy observes the same snapshot regardless of
// evaluation order. StartNewCycle swaps the whole map; that is the only
// invalidation mechanism.
type cycleCache struct {
	mu      sync.RWMutex
	cycleID uint64
	entries map[string]any
}

func newCycleCache() *cycleCache {
	return &cycleCache{entries: make(map[string]any)}
}

func cacheKey(kind Kind, parts ...string) string {
	return string(kind) + "|" + strings.Join(parts, "|")
}

func (c *cycleCache) get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// set stores the first value fetched for a key; a concurrent duplicate
// fetch keeps the existing entry so readers never see a key change value
// within a cycle.
func (c *cycleCache) set(key string, v any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.entries[key]; ok {
		return prev
	}
	c.entries[key] = v
	return v
}

func (c *cycleCache) startNewCycle() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cycleID++
	c.entries = make(map[string]any)
	return c.cycleID
}

func (c *cycleCache) cycle() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cycleID
}
