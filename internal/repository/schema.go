package repository

// Schema definitions for the Kestrel run-audit database.
// Compatible with both SQLite and PostgreSQL.

const schemaAnalysisRuns = `
CREATE TABLE IF NOT EXISTS analysis_runs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    window_start TIMESTAMP NOT NULL,
    window_end TIMESTAMP NOT NULL,
    chunks_attempted INTEGER NOT NULL,
    chunks_failed INTEGER NOT NULL,
    order_count INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_tenant ON analysis_runs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_created ON analysis_runs(tenant_id, created_at);
`

const schemaOrderArchive = `
CREATE TABLE IF NOT EXISTS order_archive (
    run_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    source TEXT NOT NULL,
    order_id TEXT NOT NULL,
    order_date TIMESTAMP NOT NULL,
    total TEXT NOT NULL,
    status TEXT NOT NULL,
    customer_name TEXT,
    email TEXT,
    document TEXT,
    raw BLOB,
    PRIMARY KEY (run_id, source, order_id)
);

CREATE INDEX IF NOT EXISTS idx_order_archive_tenant ON order_archive(tenant_id, run_id);
`

// AllSchemas returns all schema definitions in creation order.
func AllSchemas() []string {
	return []string{
		schemaAnalysisRuns,
		schemaOrderArchive,
	}
}
