package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the tables on startup. Serialized with an advisory
// lock so concurrent api/worker boots do not race on DDL.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS certificates (
	id TEXT PRIMARY KEY,
	certificate_number TEXT NOT NULL DEFAULT '',
	company_name TEXT NOT NULL DEFAULT '',
	model_number TEXT NOT NULL DEFAULT '',
	exemption_start TEXT NOT NULL DEFAULT '',
	exemption_end TEXT NOT NULL DEFAULT '',
	filename TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	page_count INTEGER NOT NULL DEFAULT 0,
	warnings JSONB NOT NULL DEFAULT '[]'::jsonb,
	diagnostics JSONB NOT NULL DEFAULT '{}'::jsonb,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_certificates_status ON certificates(status);
CREATE INDEX IF NOT EXISTS idx_certificates_exemption_end ON certificates(exemption_end);

CREATE TABLE IF NOT EXISTS certificate_items (
	id TEXT PRIMARY KEY,
	certificate_id TEXT NOT NULL REFERENCES certificates(id) ON DELETE CASCADE,
	line_no INTEGER NOT NULL,
	hs_code TEXT NOT NULL,
	item_name TEXT NOT NULL,
	approved_quantity NUMERIC NOT NULL,
	uom TEXT NOT NULL DEFAULT '',
	station_split JSONB NOT NULL DEFAULT '{}'::jsonb,
	warning_threshold NUMERIC
);

CREATE INDEX IF NOT EXISTS idx_certificate_items_certificate ON certificate_items(certificate_id);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id TEXT PRIMARY KEY,
	seq BIGSERIAL,
	certificate_item_id TEXT NOT NULL REFERENCES certificate_items(id) ON DELETE CASCADE,
	port TEXT NOT NULL,
	invoice_number TEXT NOT NULL DEFAULT '',
	invoice_line INTEGER NOT NULL DEFAULT 0,
	quantity_imported NUMERIC NOT NULL,
	balance_before NUMERIC NOT NULL,
	balance_after NUMERIC NOT NULL,
	import_date TIMESTAMPTZ NOT NULL,
	remarks TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_item_port ON ledger_entries(certificate_item_id, port, seq);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
