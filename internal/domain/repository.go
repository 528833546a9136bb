// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// AnalysisRun is the audit record of one analytics run: which window was
// requested, how many upstream chunks were attempted and failed, and what the
// run produced. Diagnostics only; analytics output itself is never persisted.
type AnalysisRun struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Kind is "collect", "rfm", or "revenue".
	Kind string `json:"kind"`

	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`

	ChunksAttempted int `json:"chunksAttempted"`
	ChunksFailed    int `json:"chunksFailed"`
	OrderCount      int `json:"orderCount"`

	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Repository defines the interface for run-audit persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Run audit operations
	SaveRun(ctx context.Context, tenantID string, run *AnalysisRun) error
	GetRun(ctx context.Context, tenantID string, runID string) (*AnalysisRun, error)
	ListRuns(ctx context.Context, tenantID string, limit int) ([]*AnalysisRun, error)

	// Order archive: the last merged set per tenant, kept for inspection.
	// Not authoritative; upstream systems remain the source of truth.
	ArchiveOrders(ctx context.Context, tenantID string, runID string, orders []Order) error
	GetArchivedOrders(ctx context.Context, tenantID string, runID string) ([]Order, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
