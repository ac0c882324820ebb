package solver

import (
	"context"
	"fmt"
	"sync"

	"adhanbot/internal/prayer"
)

type cacheKey struct {
	position string
	date     prayer.Date
	method   prayer.Method
	madhab   prayer.Madhab
}

type cacheEntry struct {
	times prayer.RawTimes
	ok    bool
}

// Cached memoizes another solver. The engine re-solves the same handful of
// days every recompute; a negative result is cached too.
type Cached struct {
	next  prayer.Solver
	limit int

	mu    sync.Mutex
	items map[cacheKey]cacheEntry
	order []cacheKey
}

func NewCached(next prayer.Solver, limit int) *Cached {
	if limit <= 0 {
		limit = 64
	}
	return &Cached{next: next, limit: limit, items: map[cacheKey]cacheEntry{}}
}

func positionKey(p prayer.Position) string {
	return fmt.Sprintf("%.5f,%.5f,%s", p.Latitude, p.Longitude, p.Loc().String())
}

func (c *Cached) Solve(ctx context.Context, req prayer.Request) (prayer.RawTimes, bool) {
	key := cacheKey{position: positionKey(req.Position), date: req.Date, method: req.Method, madhab: req.Madhab}
	c.mu.Lock()
	if e, ok := c.items[key]; ok {
		c.mu.Unlock()
		return e.times, e.ok
	}
	c.mu.Unlock()

	times, ok := c.next.Solve(ctx, req)
	if ctx.Err() != nil {
		return times, ok
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = cacheEntry{times: times, ok: ok}
	for len(c.order) > c.limit {
		delete(c.items, c.order[0])
		c.order = c.order[1:]
	}
	return times, ok
}

// Purge drops every memoized day, e.g. after the backing data changed.
func (c *Cached) Purge() {
	c.mu.Lock()
	c.items = map[cacheKey]cacheEntry{}
	c.order = nil
	c.mu.Unlock()
}

func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
