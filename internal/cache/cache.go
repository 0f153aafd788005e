// Package cache provides the prompt response cache: a content-addressed
// store keyed by the SHA-256 of the trimmed prompt, with TTL expiry and a
// throttled sweep of expired rows.
//
// The cache is an optimisation only. Persistence errors are logged and
// reported to callers as a miss or a no-op, never as a failure.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aiia-labs/orchestrator/internal/logging"
	"github.com/aiia-labs/orchestrator/internal/metrics"
)

// Defaults.
const (
	DefaultTTL             = time.Hour
	DefaultCleanupInterval = 10 * time.Minute
)

// Row is one persisted cache entry.
type Row struct {
	Hash     string
	Response string
	StoredAt time.Time
}

// Store is the key-value persistence the cache needs.
type Store interface {
	Get(ctx context.Context, hash string) (Row, bool, error)
	Put(ctx context.Context, row Row) error
	Delete(ctx context.Context, hash string) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

// HashPrompt returns the hex SHA-256 digest of the trimmed prompt.
func HashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(prompt)))
	return hex.EncodeToString(sum[:])
}

// Options configures a Cache.
type Options struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	Now             func() time.Time
}

// Stats reports cache activity since construction.
type Stats struct {
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Expired     int64     `json:"expired"`
	Errors      int64     `json:"errors"`
	Sweeps      int64     `json:"sweeps"`
	LastSweepAt time.Time `json:"lastSweepAt,omitempty"`
	Entries     int       `json:"entries"`
}

// Cache applies TTL and sweep policy on top of a Store.
type Cache struct {
	store           Store
	ttl             time.Duration
	cleanupInterval time.Duration
	now             func() time.Time

	sweeping    atomic.Bool
	mu          sync.Mutex
	lastSweepAt time.Time

	hits, misses, expired, errors, sweeps atomic.Int64
}

// New wraps store. Non-positive durations fall back to the defaults.
func New(store Store, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		store:           store,
		ttl:             opts.TTL,
		cleanupInterval: opts.CleanupInterval,
		now:             opts.Now,
	}
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// CleanupInterval returns the minimum spacing between sweeps.
func (c *Cache) CleanupInterval() time.Duration { return c.cleanupInterval }

// Lookup returns the stored response for hash. Rows older than the TTL are
// deleted and reported as absent.
func (c *Cache) Lookup(ctx context.Context, hash string) (string, bool) {
	row, ok, err := c.store.Get(ctx, hash)
	if err != nil {
		c.errors.Add(1)
		metrics.CacheLookups.WithLabelValues("error").Inc()
		logging.FromContext(ctx).Debug("cache lookup failed", "error", err)
		return "", false
	}
	if !ok {
		c.misses.Add(1)
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return "", false
	}
	if c.now().Sub(row.StoredAt) > c.ttl {
		c.expired.Add(1)
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		if err := c.store.Delete(ctx, hash); err != nil {
			logging.FromContext(ctx).Debug("cache expiry delete failed", "error", err)
		}
		return "", false
	}
	c.hits.Add(1)
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return row.Response, true
}

// Peek returns a live row for hash without touching the counters or
// deleting expired rows.
func (c *Cache) Peek(ctx context.Context, hash string) (string, bool) {
	row, ok, err := c.store.Get(ctx, hash)
	if err != nil || !ok || c.now().Sub(row.StoredAt) > c.ttl {
		return "", false
	}
	return row.Response, true
}

// Store upserts response under hash, stamped with the current time. A sweep
// is attempted first when the cleanup interval has elapsed.
func (c *Cache) Store(ctx context.Context, hash, response string) {
	c.SweepExpired(ctx)
	err := c.store.Put(ctx, Row{Hash: hash, Response: response, StoredAt: c.now()})
	if err != nil {
		c.errors.Add(1)
		logging.FromContext(ctx).Error("cache save failed", "error", err)
	}
}

// SweepExpired deletes rows older than the TTL. It runs at most once per
// cleanup interval and returns false without waiting when a sweep is already
// in flight or the interval has not elapsed.
func (c *Cache) SweepExpired(ctx context.Context) bool {
	now := c.now()
	if !c.due(now) {
		metrics.CacheSweeps.WithLabelValues("throttled").Inc()
		return false
	}
	return c.trySweep(ctx, now)
}

func (c *Cache) due(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSweepAt.IsZero() || now.Sub(c.lastSweepAt) >= c.cleanupInterval
}

// trySweep claims the sweep slot and sweeps. The throttle is checked again
// once the slot is held, since a sweep that finished after the caller's
// first check has already covered this interval.
func (c *Cache) trySweep(ctx context.Context, now time.Time) bool {
	if !c.sweeping.CompareAndSwap(false, true) {
		metrics.CacheSweeps.WithLabelValues("busy").Inc()
		return false
	}
	defer c.sweeping.Store(false)
	if !c.due(now) {
		metrics.CacheSweeps.WithLabelValues("throttled").Inc()
		return false
	}
	return c.sweep(ctx, now)
}

// ForceSweep deletes expired rows regardless of the throttle. Concurrent
// sweeps are still skipped.
func (c *Cache) ForceSweep(ctx context.Context) (int64, bool) {
	if !c.sweeping.CompareAndSwap(false, true) {
		metrics.CacheSweeps.WithLabelValues("busy").Inc()
		return 0, false
	}
	defer c.sweeping.Store(false)
	now := c.now()
	n, err := c.store.DeleteBefore(ctx, now.Add(-c.ttl))
	if err != nil {
		metrics.CacheSweeps.WithLabelValues("error").Inc()
		logging.FromContext(ctx).Warn("cache cleanup skipped", "error", err)
		return 0, false
	}
	c.markSwept(now)
	return n, true
}

func (c *Cache) sweep(ctx context.Context, now time.Time) bool {
	n, err := c.store.DeleteBefore(ctx, now.Add(-c.ttl))
	if err != nil {
		metrics.CacheSweeps.WithLabelValues("error").Inc()
		logging.FromContext(ctx).Warn("cache cleanup skipped", "error", err)
		return false
	}
	c.markSwept(now)
	logging.FromContext(ctx).Debug("cache sweep complete", "deleted", n)
	return true
}

func (c *Cache) markSwept(now time.Time) {
	c.mu.Lock()
	c.lastSweepAt = now
	c.mu.Unlock()
	c.sweeps.Add(1)
	metrics.CacheSweeps.WithLabelValues("ran").Inc()
}

// Clear removes every row.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Stats returns counters and the current row count.
func (c *Cache) Stats(ctx context.Context) Stats {
	c.mu.Lock()
	last := c.lastSweepAt
	c.mu.Unlock()
	n, err := c.store.Len(ctx)
	if err != nil {
		n = -1
	}
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Expired:     c.expired.Load(),
		Errors:      c.errors.Load(),
		Sweeps:      c.sweeps.Load(),
		LastSweepAt: last,
		Entries:     n,
	}
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}
