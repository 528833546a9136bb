// Package repository provides run-audit persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun stores an analysis run audit record with tenant isolation.
func (r *SQLRepository) SaveRun(ctx context.Context, tenantID string, run *domain.AnalysisRun) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run with ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO analysis_runs (
			id, tenant_id, kind, window_start, window_end,
			chunks_attempted, chunks_failed, order_count,
			duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		run.ID, tenantID, run.Kind,
		run.WindowStart, run.WindowEnd,
		run.ChunksAttempted, run.ChunksFailed, run.OrderCount,
		run.DurationMs, run.CreatedAt,
	)
	return err
}

// GetRun retrieves an analysis run by ID with tenant isolation.
func (r *SQLRepository) GetRun(ctx context.Context, tenantID string, runID string) (*domain.AnalysisRun, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, kind, window_start, window_end,
			   chunks_attempted, chunks_failed, order_count,
			   duration_ms, created_at
		FROM analysis_runs
		WHERE tenant_id = ? AND id = ?
	`

	var run domain.AnalysisRun
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, runID).Scan(
		&run.ID, &run.TenantID, &run.Kind,
		&run.WindowStart, &run.WindowEnd,
		&run.ChunksAttempted, &run.ChunksFailed, &run.OrderCount,
		&run.DurationMs, &run.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &run, nil
}

// ListRuns returns the tenant's most recent runs, newest first.
func (r *SQLRepository) ListRuns(ctx context.Context, tenantID string, limit int) ([]*domain.AnalysisRun, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tenant_id, kind, window_start, window_end,
			   chunks_attempted, chunks_failed, order_count,
			   duration_ms, created_at
		FROM analysis_runs
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.AnalysisRun
	for rows.Next() {
		var run domain.AnalysisRun
		if err := rows.Scan(
			&run.ID, &run.TenantID, &run.Kind,
			&run.WindowStart, &run.WindowEnd,
			&run.ChunksAttempted, &run.ChunksFailed, &run.OrderCount,
			&run.DurationMs, &run.CreatedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// ArchiveOrders stores the merged order set produced by a run, for
// inspection. Totals are stored as their decimal string representation to
// avoid float drift.
func (r *SQLRepository) ArchiveOrders(ctx context.Context, tenantID string, runID string, orders []domain.Order) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if runID == "" {
		return fmt.Errorf("%w: runID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO order_archive (
			run_id, tenant_id, source, order_id, order_date,
			total, status, customer_name, email, document, raw
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	for _, o := range orders {
		_, err := tx.ExecContext(ctx, query,
			runID, tenantID, string(o.Source), o.ID, o.OrderDate,
			o.Total.String(), string(o.Status),
			o.CustomerName, o.Email, o.Document, []byte(o.Raw),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetArchivedOrders retrieves the archived merged set of a run.
func (r *SQLRepository) GetArchivedOrders(ctx context.Context, tenantID string, runID string) ([]domain.Order, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT source, order_id, order_date, total, status,
			   customer_name, email, document, raw
		FROM order_archive
		WHERE tenant_id = ? AND run_id = ?
		ORDER BY order_date
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var (
			o         domain.Order
			source    string
			status    string
			total     string
			orderDate time.Time
			name      sql.NullString
			email     sql.NullString
			document  sql.NullString
			raw       []byte
		)
		if err := rows.Scan(&source, &o.ID, &orderDate, &total, &status,
			&name, &email, &document, &raw); err != nil {
			return nil, err
		}

		o.Source = domain.OrderSource(source)
		o.Status = domain.OrderStatus(status)
		o.OrderDate = orderDate
		o.CustomerName = name.String
		o.Email = email.String
		o.Document = document.String
		o.Raw = raw

		d, err := decimal.NewFromString(total)
		if err != nil {
			d = decimal.Zero
		}
		o.Total = d

		orders = append(orders, o)
	}

	return orders, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $n for postgres.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
