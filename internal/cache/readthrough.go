package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// Fetch is the get-or-compute contract fronting expensive upstream calls.
// On a present, non-expired entry the cached value is returned and compute
// never runs. On a miss (or a cache read error, which is treated as a miss)
// compute runs once and its result is stored with the TTL.
//
// A compute error propagates to the caller and writes nothing, so no partial
// or poisoned entries. Cache write failures are logged, never surfaced: the
// caller still gets the freshly computed value.
func Fetch[T any](ctx context.Context, c domain.Cache, tenantID, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	cached, err := c.Get(ctx, tenantID, key)
	if err != nil {
		slog.Warn("cache read failed, treating as miss", "key", key, "error", err)
	} else if cached != nil {
		var val T
		if err := json.Unmarshal(cached, &val); err == nil {
			return val, nil
		}
		// Undecodable entry: drop it and recompute.
		slog.Warn("cache entry undecodable, recomputing", "key", key)
		_ = c.Delete(ctx, tenantID, key)
	}

	val, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	encoded, err := json.Marshal(val)
	if err != nil {
		slog.Warn("cache value not serializable, skipping store", "key", key, "error", err)
		return val, nil
	}
	if err := c.Set(ctx, tenantID, key, encoded, ttl); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}

	return val, nil
}
