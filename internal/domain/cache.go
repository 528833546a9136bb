package domain

import (
	"context"
	"time"
)

// Cache defines the interface for a cache tier.
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found or expired.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes an exact key.
	Delete(ctx context.Context, tenantID string, key string) error

	// Invalidate removes entries matching a key fragment. The in-process
	// tier removes every key containing the fragment; the remote tier only
	// supports exact-key removal and treats the fragment as an exact key.
	// Pass an exact key when remote removal must be guaranteed.
	Invalidate(ctx context.Context, tenantID string, fragment string) error

	// Flush removes every entry in the tier.
	Flush(ctx context.Context) error

	// Stats returns diagnostics for this tier.
	Stats(ctx context.Context) CacheStats

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheStats is diagnostic information about a cache tier. Used for
// observability only, never for correctness decisions.
type CacheStats struct {
	// Tier is "memory", "redis", or "tiered".
	Tier string `json:"tier"`

	// PrimaryHealthy reports whether the remote tier answered its last
	// health probe. Always true for a pure in-process cache.
	PrimaryHealthy bool `json:"primaryHealthy"`

	// Entries and Keys describe the in-process tier only; remote keyspaces
	// are not enumerated.
	Entries int      `json:"entries"`
	Keys    []string `json:"keys,omitempty"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory", "redis", or "tiered"
	Type string

	// In-process tier settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (remote tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}
