package schema

import (
	"context"
	"sync"
	"time"

	"github.com/finbot/finbot/internal/notion"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL = time.Hour
	// DefaultFetchTimeout bounds one shared schema fetch.
	DefaultFetchTimeout = 25 * time.Second
)

type entry struct {
	schema    Schema
	fetchedAt time.Time
}

// Cache serves schemas from memory, refreshing entries older than the TTL.
// Concurrent misses for the same table share one fetch. Fetch failures fall
// back to the built-in snapshot and are not cached.
type Cache struct {
	fetcher  Fetcher
	fallback map[string]Schema
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	sf      singleflight.Group
}

type Option func(*Cache)

func WithTTL(d time.Duration) Option { return func(c *Cache) { c.ttl = d } }

// WithFetchTimeout bounds the shared fetch, which outlives any single caller.
func WithFetchTimeout(d time.Duration) Option { return func(c *Cache) { c.timeout = d } }

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// WithFallback replaces the built-in fallback snapshot.
func WithFallback(fb map[string]Schema) Option { return func(c *Cache) { c.fallback = fb } }

func NewCache(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:  fetcher,
		fallback: Fallback(),
		ttl:      DefaultTTL,
		timeout:  DefaultFetchTimeout,
		now:      time.Now,
		entries:  make(map[string]entry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the schema for table. It never fails: unknown tables with no
// fallback yield an empty schema. A caller whose ctx ends while waiting gets
// the fallback; the shared fetch keeps running for the other waiters.
func (c *Cache) Get(ctx context.Context, table string) Schema {
	if s, ok := c.fresh(table); ok {
		return s.Clone()
	}

	shared := context.WithoutCancel(ctx)
	ch := c.sf.DoChan(table, func() (interface{}, error) {
		if s, ok := c.fresh(table); ok {
			return s, nil
		}
		fctx, cancel := context.WithTimeout(shared, c.timeout)
		defer cancel()
		s, err := c.fetcher.Fetch(fctx, table)
		if err != nil {
			log.Warn().Err(err).Str("table", table).Msg("schema fetch failed, using fallback")
			return c.fallback[table], nil
		}
		c.mu.Lock()
		c.entries[table] = entry{schema: s, fetchedAt: c.now()}
		c.mu.Unlock()
		log.Debug().Str("table", table).Int("fields", len(s)).Msg("schema cached")
		return s, nil
	})

	select {
	case res := <-ch:
		s, _ := res.Val.(Schema)
		return s.Clone()
	case <-ctx.Done():
		log.Debug().Err(ctx.Err()).Str("table", table).Msg("schema wait abandoned, using fallback")
		return c.fallback[table].Clone()
	}
}

func (c *Cache) fresh(table string) (Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[table]
	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		return nil, false
	}
	return e.schema, true
}

// FieldExists reports whether field is declared on table.
func (c *Cache) FieldExists(ctx context.Context, table, field string) bool {
	return c.Get(ctx, table).Has(field)
}

// FieldKind returns the declared kind of field on table.
func (c *Cache) FieldKind(ctx context.Context, table, field string) (notion.Kind, bool) {
	k, ok := c.Get(ctx, table)[field]
	return k, ok
}

// Invalidate drops one table, or every table when none is given.
func (c *Cache) Invalidate(tables ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(tables) == 0 {
		c.entries = make(map[string]entry)
		return
	}
	for _, t := range tables {
		delete(c.entries, t)
	}
}

// Cached reports whether table has a live entry, for diagnostics.
func (c *Cache) Cached(table string) bool {
	_, ok := c.fresh(table)
	return ok
}
