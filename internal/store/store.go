package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cohortlab/cohortd/internal/cohort"
	"github.com/cohortlab/cohortd/internal/invoice"
	"github.com/cohortlab/cohortd/internal/log"
)

// ErrNoSnapshot is returned when no analysis has been persisted yet.
var ErrNoSnapshot = errors.New("store: no analysis snapshot")

const schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id           INTEGER PRIMARY KEY,
	invoice_no   TEXT NOT NULL,
	customer_id  TEXT NOT NULL,
	invoice_date TEXT NOT NULL,
	quantity     INTEGER NOT NULL DEFAULT 0,
	unit_price   REAL NOT NULL DEFAULT 0,
	total_price  REAL NOT NULL,
	country      TEXT NOT NULL DEFAULT '',
	UNIQUE (invoice_no, customer_id, invoice_date, total_price)
);
CREATE INDEX IF NOT EXISTS idx_invoices_customer ON invoices (customer_id);
CREATE INDEX IF NOT EXISTS idx_invoices_date ON invoices (invoice_date);

CREATE TABLE IF NOT EXISTS analyses (
	id          INTEGER PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	payload     TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses (created_at);
`

// Store wraps the SQLite database holding invoices and snapshots.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, cfg Config) (*Store, error) {
	db, err := openDB(path, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertInvoices stores a batch inside one transaction. Duplicate rows
// (same invoice number, customer, date, and total) are ignored, so
// re-ingesting a file is idempotent. Returns the number of new rows.
func (s *Store) InsertInvoices(ctx context.Context, invoices []invoice.Invoice) (int, error) {
	if len(invoices) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO invoices
			(invoice_no, customer_id, invoice_date, quantity, unit_price, total_price, country)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	inserted := 0
	for _, inv := range invoices {
		res, err := stmt.ExecContext(ctx,
			inv.InvoiceNo,
			inv.CustomerID,
			inv.InvoiceDate.UTC().Format(time.RFC3339),
			inv.Quantity,
			inv.UnitPrice,
			inv.TotalPrice,
			inv.Country,
		)
		if err != nil {
			return 0, fmt.Errorf("store: insert invoice %s: %w", inv.InvoiceNo, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}

	logger := log.WithComponentFromContext(ctx, "store")
	logger.Debug().
		Int("batch", len(invoices)).
		Int("inserted", inserted).
		Msg("invoice batch stored")

	return inserted, nil
}

// Invoices loads all stored invoices ordered by date.
func (s *Store) Invoices(ctx context.Context) ([]invoice.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_no, customer_id, invoice_date, quantity, unit_price, total_price, country
		FROM invoices
		ORDER BY invoice_date, invoice_no`)
	if err != nil {
		return nil, fmt.Errorf("store: query invoices: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []invoice.Invoice
	for rows.Next() {
		var inv invoice.Invoice
		var date string
		if err := rows.Scan(&inv.InvoiceNo, &inv.CustomerID, &date, &inv.Quantity, &inv.UnitPrice, &inv.TotalPrice, &inv.Country); err != nil {
			return nil, fmt.Errorf("store: scan invoice: %w", err)
		}
		inv.InvoiceDate, err = time.Parse(time.RFC3339, date)
		if err != nil {
			return nil, fmt.Errorf("store: parse stored date %q: %w", date, err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate invoices: %w", err)
	}
	return out, nil
}

// CountInvoices returns the number of stored invoice rows.
func (s *Store) CountInvoices(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count invoices: %w", err)
	}
	return n, nil
}

// SaveSnapshot persists an analysis keyed by its dataset fingerprint.
func (s *Store) SaveSnapshot(ctx context.Context, fingerprint string, a *cohort.Analysis) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (fingerprint, payload, created_at)
		VALUES (?, ?, ?)`,
		fingerprint, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent analysis and its fingerprint.
func (s *Store) LatestSnapshot(ctx context.Context) (string, *cohort.Analysis, error) {
	var fingerprint, payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, payload
		FROM analyses
		ORDER BY created_at DESC, id DESC
		LIMIT 1`).Scan(&fingerprint, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, ErrNoSnapshot
	}
	if err != nil {
		return "", nil, fmt.Errorf("store: load snapshot: %w", err)
	}

	var a cohort.Analysis
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return "", nil, fmt.Errorf("store: decode snapshot: %w", err)
	}
	return fingerprint, &a, nil
}

// PruneSnapshots keeps the newest keep snapshots and deletes the rest.
func (s *Store) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM analyses
		WHERE id NOT IN (
			SELECT id FROM analyses ORDER BY created_at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("store: prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
