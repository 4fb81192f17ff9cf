// SPDX-License-Identifier: MIT

// Package cache memoizes resolved media URLs in a bounded in-memory tier
// with an optional durable tier behind it.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	xglog "github.com/ManuGH/assplayer/internal/log"
	"github.com/ManuGH/assplayer/internal/metrics"
	"github.com/maypok86/otter"
	"github.com/rs/zerolog"
)

const (
	DefaultTTL        = 30 * time.Minute
	DefaultMaxEntries = 100

	tierMemory  = "memory"
	tierDurable = "durable"
)

// ErrEmptyKey is returned by Set for an empty key or URL.
var ErrEmptyKey = errors.New("cache: empty key or url")

// Entry is one memoized resolution.
type Entry struct {
	Key       string
	URL       string
	CreatedAt time.Time
}

// Expired reports whether the entry is no longer valid at now.
func (e Entry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) >= ttl
}

// Durable is a persistent tier shared across restarts. Load reports a miss
// with found=false and a nil error.
type Durable interface {
	Load(ctx context.Context, key string) (e Entry, found bool, err error)
	Store(ctx context.Context, e Entry) error
	Delete(ctx context.Context, key string) error
}

// Stats holds cache counters.
type Stats struct {
	Hits        int64 // memory hits
	DurableHits int64 // durable hits promoted into memory
	Misses      int64
	Sets        int64
	Expired     int64 // entries dropped on access
	CurrentSize int   // memory tier entries
}

// Options configures a ResolutionCache.
type Options struct {
	TTL        time.Duration
	MaxEntries int
	Durable    Durable
	Now        func() time.Time
}

// ResolutionCache is safe for concurrent use. Expiry is evaluated lazily on
// Get; there is no background sweep.
type ResolutionCache struct {
	mem     otter.Cache[string, Entry]
	durable Durable
	ttl     time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	stats struct {
		hits        atomic.Int64
		durableHits atomic.Int64
		misses      atomic.Int64
		sets        atomic.Int64
		expired     atomic.Int64
	}
}

// New builds a cache. Zero options fall back to the defaults.
func New(opts Options) (*ResolutionCache, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	mem, err := otter.MustBuilder[string, Entry](opts.MaxEntries).
		Cost(func(_ string, _ Entry) uint32 { return 1 }).
		Build()
	if err != nil {
		return nil, fmt.Errorf("cache: build memory tier: %w", err)
	}
	return &ResolutionCache{
		mem:     mem,
		durable: opts.Durable,
		ttl:     opts.TTL,
		now:     opts.Now,
		logger:  xglog.WithComponent("cache"),
	}, nil
}

// TTL returns the configured time to live.
func (c *ResolutionCache) TTL() time.Duration { return c.ttl }

// Get looks in memory, then in the durable tier. Durable hits are promoted
// into memory. Expired entries are deleted from every tier.
func (c *ResolutionCache) Get(ctx context.Context, key string) (Entry, bool) {
	if key == "" {
		return Entry{}, false
	}
	now := c.now()

	if e, ok := c.mem.Get(key); ok {
		if !e.Expired(now, c.ttl) {
			c.stats.hits.Add(1)
			metrics.RecordCacheLookup(tierMemory, "hit")
			return e, true
		}
		c.expire(ctx, key, tierMemory)
		return Entry{}, false
	}
	metrics.RecordCacheLookup(tierMemory, "miss")

	if c.durable == nil {
		c.stats.misses.Add(1)
		return Entry{}, false
	}
	e, found, err := c.durable.Load(ctx, key)
	if err != nil {
		c.stats.misses.Add(1)
		metrics.RecordCacheLookup(tierDurable, "error")
		logger := xglog.WithContext(ctx, c.logger)
		logger.Warn().Err(err).Str(xglog.FieldCacheKey, key).Msg("durable cache lookup failed")
		return Entry{}, false
	}
	if !found {
		c.stats.misses.Add(1)
		metrics.RecordCacheLookup(tierDurable, "miss")
		return Entry{}, false
	}
	if e.Expired(now, c.ttl) {
		c.expire(ctx, key, tierDurable)
		return Entry{}, false
	}

	c.mem.Set(key, e)
	c.stats.durableHits.Add(1)
	metrics.RecordCacheLookup(tierDurable, "hit")
	metrics.SetCacheEntries(c.mem.Size())
	return e, true
}

func (c *ResolutionCache) expire(ctx context.Context, key, tier string) {
	c.stats.expired.Add(1)
	c.stats.misses.Add(1)
	metrics.RecordCacheLookup(tier, "expired")
	c.mem.Delete(key)
	if c.durable != nil {
		if err := c.durable.Delete(ctx, key); err != nil {
			logger := xglog.WithContext(ctx, c.logger)
			logger.Warn().Err(err).Str(xglog.FieldCacheKey, key).Msg("durable cache delete failed")
		}
	}
}

// Set stores url under key in every tier. The memory tier is always
// updated; a durable failure is returned but does not undo it.
func (c *ResolutionCache) Set(ctx context.Context, key, url string) error {
	if key == "" || url == "" {
		return ErrEmptyKey
	}
	e := Entry{Key: key, URL: url, CreatedAt: c.now()}
	c.mem.Set(key, e)
	c.stats.sets.Add(1)
	metrics.RecordCacheWrite(tierMemory, nil)
	metrics.SetCacheEntries(c.mem.Size())

	if c.durable == nil {
		return nil
	}
	err := c.durable.Store(ctx, e)
	metrics.RecordCacheWrite(tierDurable, err)
	if err != nil {
		return fmt.Errorf("cache: durable store: %w", err)
	}
	return nil
}

// Delete removes key from every tier.
func (c *ResolutionCache) Delete(ctx context.Context, key string) error {
	c.mem.Delete(key)
	if c.durable == nil {
		return nil
	}
	return c.durable.Delete(ctx, key)
}

// Stats returns cache statistics.
func (c *ResolutionCache) Stats() Stats {
	return Stats{
		Hits:        c.stats.hits.Load(),
		DurableHits: c.stats.durableHits.Load(),
		Misses:      c.stats.misses.Load(),
		Sets:        c.stats.sets.Load(),
		Expired:     c.stats.expired.Load(),
		CurrentSize: c.mem.Size(),
	}
}

// Close releases the memory tier. The durable tier is owned by the caller.
func (c *ResolutionCache) Close() {
	c.mem.Close()
}
