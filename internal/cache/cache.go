package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// New creates a cache based on configuration.
// "memory" returns the in-process LRU alone; "redis" returns Redis alone;
// "tiered" returns Redis fronted by the in-process fallback.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	case "tiered":
		remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		return NewTiered(remote, NewLRUCache(cfg.LocalMaxSize)), nil

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// Tiered is the two-tier cache: Redis is the primary store, the in-process
// LRU the fallback. When the primary is unreachable the cache silently
// degrades to process-local semantics; callers never observe the failure as
// an error, it is logged as a warning only.
type Tiered struct {
	remote domain.Cache
	local  *LRUCache

	// degraded flips on the first primary failure so the outage is logged
	// once per transition, not per call.
	degraded atomic.Bool
}

// NewTiered creates a tiered cache over the given remote primary and local
// fallback.
func NewTiered(remote domain.Cache, local *LRUCache) *Tiered {
	return &Tiered{remote: remote, local: local}
}

// Get reads from the primary store; on a primary error it degrades to the
// in-process tier. A primary miss is a miss, not a fallback trigger: the
// local tier only answers when the primary is unreachable.
func (c *Tiered) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.remote.Get(ctx, tenantID, key)
	if err != nil {
		c.noteDegraded("get", err)
		return c.local.Get(ctx, tenantID, key)
	}
	c.noteRecovered()
	return val, nil
}

// Set writes to whichever tiers are reachable. The local tier is always
// written so a later primary outage still has data to fall back on.
func (c *Tiered) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, tenantID, key, value, ttl); err != nil {
		return err
	}
	if err := c.remote.Set(ctx, tenantID, key, value, ttl); err != nil {
		c.noteDegraded("set", err)
		return nil
	}
	c.noteRecovered()
	return nil
}

// Delete removes the exact key from both tiers.
func (c *Tiered) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.local.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	if err := c.remote.Delete(ctx, tenantID, key); err != nil {
		c.noteDegraded("delete", err)
	}
	return nil
}

// Invalidate removes every in-process entry whose key contains the fragment
// and best-effort deletes the exact key from the primary store. Fragment
// matching on the primary is intentionally not supported (no efficient
// prefix scan); pass exact keys when primary removal must be guaranteed.
func (c *Tiered) Invalidate(ctx context.Context, tenantID string, fragment string) error {
	if err := c.local.Invalidate(ctx, tenantID, fragment); err != nil {
		return err
	}
	if err := c.remote.Invalidate(ctx, tenantID, fragment); err != nil {
		c.noteDegraded("invalidate", err)
	}
	return nil
}

// Flush clears both tiers.
func (c *Tiered) Flush(ctx context.Context) error {
	if err := c.local.Flush(ctx); err != nil {
		return err
	}
	if err := c.remote.Flush(ctx); err != nil {
		c.noteDegraded("flush", err)
	}
	return nil
}

// Stats reports which tier is active and the in-process entry set.
func (c *Tiered) Stats(ctx context.Context) domain.CacheStats {
	stats := c.local.Stats(ctx)
	stats.Tier = "tiered"
	stats.PrimaryHealthy = c.remote.Ping(ctx) == nil
	return stats
}

// Ping reports overall health: healthy as long as either tier answers. The
// in-process tier always answers, so a primary outage never fails readiness.
func (c *Tiered) Ping(ctx context.Context) error {
	if err := c.remote.Ping(ctx); err != nil {
		c.noteDegraded("ping", err)
	}
	return c.local.Ping(ctx)
}

// Close closes both tiers.
func (c *Tiered) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

func (c *Tiered) noteDegraded(op string, err error) {
	if c.degraded.CompareAndSwap(false, true) {
		slog.Warn("primary cache store unreachable, degrading to in-process tier",
			"op", op,
			"error", err,
		)
	}
}

func (c *Tiered) noteRecovered() {
	if c.degraded.CompareAndSwap(true, false) {
		slog.Info("primary cache store recovered")
	}
}
