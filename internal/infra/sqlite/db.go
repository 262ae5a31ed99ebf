// Package sqlite provides SQLite-based persistent storage for scrape.
// Uses WAL mode for concurrent reads and crash-safe writes. The DB is the
// single-node ledger runtime: it stores program accounts and the token
// ledger, and applies each operation as one SQL transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/scrape-network/scrape/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB

	mu  sync.RWMutex
	now func() time.Time
}

var _ domain.Ledger = (*DB)(nil)
var _ domain.ReceiptStore = (*DB)(nil)

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db, now: time.Now}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// SetClock replaces the ledger clock. Tests use it to control current_time.
func (d *DB) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

func (d *DB) clock() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.now()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Program accounts: discriminator-tagged records at derived addresses
		`CREATE TABLE IF NOT EXISTS accounts (
			address    TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			size       INTEGER NOT NULL,
			data       BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_kind ON accounts(kind)`,

		// Token ledger (double-entry bookkeeping: SUM(debits) == SUM(credits) per asset)
		`CREATE TABLE IF NOT EXISTS token_ledger (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			tx_id       TEXT NOT NULL,
			timestamp   INTEGER NOT NULL,
			asset       TEXT NOT NULL,
			entry_type  TEXT NOT NULL,
			account     TEXT NOT NULL,
			amount      INTEGER NOT NULL,
			memo        TEXT,
			balance     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON token_ledger(asset, account)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_tx ON token_ledger(tx_id)`,

		// Operation receipts, written for applied and rejected operations
		`CREATE TABLE IF NOT EXISTS receipts (
			id         TEXT PRIMARY KEY,
			op         TEXT NOT NULL,
			signer     TEXT NOT NULL,
			applied    BOOLEAN NOT NULL,
			error      TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_created ON receipts(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_signer ON receipts(signer)`,

		// Signed-request signatures accepted by the API, kept until they expire
		`CREATE TABLE IF NOT EXISTS used_signatures (
			signature  TEXT PRIMARY KEY,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_used_signatures_expiry ON used_signatures(expires_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Transactions ───────────────────────────────────────────────────────────

// Update runs fn in a write transaction. Any error from fn rolls back every
// change it made.
func (d *DB) Update(ctx context.Context, fn func(tx domain.Txn) error) error {
	return d.run(ctx, fn, true)
}

// View runs fn in a transaction that is always rolled back.
func (d *DB) View(ctx context.Context, fn func(tx domain.Txn) error) error {
	return d.run(ctx, fn, false)
}

func (d *DB) run(ctx context.Context, fn func(tx domain.Txn) error, commit bool) error {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	t := &txn{tx: sqlTx, id: uuid.NewString(), now: d.clock()}

	done := false
	defer func() {
		if !done {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(t); err != nil {
		return err
	}
	if !commit {
		return nil
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	done = true
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
