package sheets

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"phoneshop/internal/logger"
)

const (
	DefaultCacheTTL    = 30 * time.Second
	DefaultMinInterval = time.Second
)

type cacheEntry struct {
	sheet     string
	table     *Table
	fetchedAt time.Time
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	StaleServes int64 `json:"stale_serves"`
	Entries     int   `json:"entries"`
}

// CachedGateway wraps a Gateway with a per-(sheet, range) read cache and a
// minimum interval between upstream requests. When upstream answers with
// ErrRateLimited, the last good copy of the range is served instead.
type CachedGateway struct {
	upstream Gateway
	ttl      time.Duration
	limiter  *rate.Limiter
	group    singleflight.Group
	logger   *logger.Logger
	now      func() time.Time

	mu          sync.RWMutex
	entries     map[string]cacheEntry
	generations map[string]uint64
	hits        int64
	misses      int64
	stale       int64
}

func NewCachedGateway(upstream Gateway, ttl, minInterval time.Duration, logger *logger.Logger) *CachedGateway {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}

	return &CachedGateway{
		upstream:    upstream,
		ttl:         ttl,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger,
		now:         time.Now,
		entries:     make(map[string]cacheEntry),
		generations: make(map[string]uint64),
	}
}

func cacheKey(sheet, rng string) string {
	return sheet + "!" + rng
}

type fetchResult struct {
	table *Table
}

func (c *CachedGateway) Read(ctx context.Context, sheet, rng string) (*Table, error) {
	key := cacheKey(sheet, rng)

	c.mu.RLock()
	entry, cached := c.entries[key]
	c.mu.RUnlock()

	if cached && c.now().Sub(entry.fetchedAt) < c.ttl {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return entry.table.Clone(), nil
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		gen := c.generation(sheet)
		table, err := c.upstream.Read(ctx, sheet, rng)
		if err != nil {
			return nil, err
		}
		c.store(key, sheet, table, gen)
		return fetchResult{table: table}, nil
	})
	if err != nil {
		if cached && errors.Is(err, ErrRateLimited) {
			c.mu.Lock()
			c.stale++
			c.mu.Unlock()
			c.logger.Warn("Serving stale %s fetched %s ago: %v", key, c.now().Sub(entry.fetchedAt).Round(time.Second), err)
			return entry.table.Clone(), nil
		}
		return nil, err
	}
	return v.(fetchResult).table.Clone(), nil
}

func (c *CachedGateway) generation(sheet string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[sheet]
}

// store keeps a fetched table unless the sheet was written to while the
// fetch was in flight.
func (c *CachedGateway) store(key, sheet string, table *Table, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[sheet] != gen {
		return
	}
	c.entries[key] = cacheEntry{sheet: sheet, table: table, fetchedAt: c.now()}
}

func (c *CachedGateway) AppendRows(ctx context.Context, sheet string, rows [][]string) error {
	return c.write(ctx, sheet, func() error {
		return c.upstream.AppendRows(ctx, sheet, rows)
	})
}

func (c *CachedGateway) UpdateRange(ctx context.Context, sheet, rng string, rows [][]string) error {
	return c.write(ctx, sheet, func() error {
		return c.upstream.UpdateRange(ctx, sheet, rng, rows)
	})
}

func (c *CachedGateway) OverwriteRange(ctx context.Context, sheet string, rows [][]string) error {
	return c.write(ctx, sheet, func() error {
		return c.upstream.OverwriteRange(ctx, sheet, rows)
	})
}

// write throttles the upstream call and drops the sheet's cached ranges
// whatever the outcome, since a failed write may still have landed.
func (c *CachedGateway) write(ctx context.Context, sheet string, fn func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	err := fn()
	c.Invalidate(sheet)
	return err
}

// Invalidate drops every cached range of sheet.
func (c *CachedGateway) Invalidate(sheet string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[sheet]++
	for key, entry := range c.entries {
		if entry.sheet == sheet {
			delete(c.entries, key)
		}
	}
}

func (c *CachedGateway) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sheet := range c.generations {
		c.generations[sheet]++
	}
	for _, entry := range c.entries {
		c.generations[entry.sheet]++
	}
	c.entries = make(map[string]cacheEntry)
}

func (c *CachedGateway) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Hits:        c.hits,
		Misses:      c.misses,
		StaleServes: c.stale,
		Entries:     len(c.entries),
	}
}
