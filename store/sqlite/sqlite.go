/*
Package sqlite provides a SQLite-backed payments.Store.

PURPOSE:
  Keeps every wallet's scheduled payments, including their schedule
  bookkeeping, so reconciliation can catch up after a restart.

KEY TABLES:
  payments:  one row per payment, keyed by (wallet, id)
  overdue:   one row per unresolved occurrence, cascades with its payment

ENCODING:
  - Amounts are decimal strings (no float rounding).
  - Schedules use the rule text form ("WEEKDAY-1 TIME-09:00").
  - Instants are Unix nanoseconds; NULL means unset.
  - position keeps creation order within a wallet.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Each SavePayment rewrites the
  payment row and its overdue rows in one transaction.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/payments.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  registry := payments.NewRegistry(store, source, payments.Options{Location: source.Location()})

SEE ALSO:
  - payments/store.go: Store interface
  - payments/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/scheduled-payments/payments"
	"github.com/warp/scheduled-payments/schedule"
)

// Store implements payments.Store using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	loc *time.Location
}

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the location loaded instants are expressed in.
// Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, loc: time.Local}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS payments (
		wallet TEXT NOT NULL,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		address TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		when_text TEXT NOT NULL,
		flags INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER,
		last_paid_at INTEGER,
		last_reconciled_at INTEGER,
		next_due_at INTEGER,
		PRIMARY KEY (wallet, id)
	);

	CREATE INDEX IF NOT EXISTS idx_payments_wallet_position
		ON payments(wallet, position);

	-- Unresolved occurrences; the primary key keeps the set duplicate-free
	CREATE TABLE IF NOT EXISTS overdue (
		wallet TEXT NOT NULL,
		payment_id TEXT NOT NULL,
		at INTEGER NOT NULL,
		PRIMARY KEY (wallet, payment_id, at),
		FOREIGN KEY (wallet, payment_id) REFERENCES payments(wallet, id) ON DELETE CASCADE
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// payments.Store IMPLEMENTATION
// =============================================================================

// LoadPayments returns a wallet's payments in creation order.
func (s *Store) LoadPayments(ctx context.Context, wallet string) ([]payments.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, amount, description, when_text, flags,
		       created_at, last_paid_at, last_reconciled_at, next_due_at
		FROM payments
		WHERE wallet = ?
		ORDER BY position ASC
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var out []payments.Payment
	index := make(map[string]int)
	for rows.Next() {
		p, err := s.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	overdue, err := s.db.QueryContext(ctx,
		"SELECT payment_id, at FROM overdue WHERE wallet = ? ORDER BY at ASC", wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue: %w", err)
	}
	defer overdue.Close()

	for overdue.Next() {
		var id string
		var at int64
		if err := overdue.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("failed to scan overdue: %w", err)
		}
		if i, ok := index[id]; ok {
			out[i].Overdue = append(out[i].Overdue, time.Unix(0, at).In(s.loc))
		}
	}
	return out, overdue.Err()
}

// SavePayment inserts or replaces a payment and its overdue occurrences.
func (s *Store) SavePayment(ctx context.Context, wallet string, p payments.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (wallet, id, position, address, amount, description, when_text, flags,
		                      created_at, last_paid_at, last_reconciled_at, next_due_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM payments WHERE wallet = ?),
		        ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (wallet, id) DO UPDATE SET
			address = excluded.address,
			amount = excluded.amount,
			description = excluded.description,
			when_text = excluded.when_text,
			flags = excluded.flags,
			created_at = excluded.created_at,
			last_paid_at = excluded.last_paid_at,
			last_reconciled_at = excluded.last_reconciled_at,
			next_due_at = excluded.next_due_at
	`,
		wallet, p.ID, wallet,
		p.Address, p.Amount.String(), p.Description, p.When.ToText(), int64(p.Flags),
		nullTime(p.CreatedAt), nullTime(p.LastPaidAt), nullTime(p.LastReconciledAt), nullTime(p.NextDueAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM overdue WHERE wallet = ? AND payment_id = ?", wallet, p.ID); err != nil {
		return fmt.Errorf("failed to clear overdue: %w", err)
	}
	for _, at := range p.Overdue {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO overdue (wallet, payment_id, at) VALUES (?, ?, ?)",
			wallet, p.ID, at.UnixNano()); err != nil {
			return fmt.Errorf("failed to save overdue: %w", err)
		}
	}

	return tx.Commit()
}

// DeletePayments removes payments by ID; their overdue rows cascade.
func (s *Store) DeletePayments(ctx context.Context, wallet string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM payments WHERE wallet = ? AND id = ?", wallet, id); err != nil {
			return fmt.Errorf("failed to delete payment: %w", err)
		}
	}
	return tx.Commit()
}

// ListWallets returns every wallet with stored payments.
func (s *Store) ListWallets(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT wallet FROM payments ORDER BY wallet")
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) scanPayment(rows *sql.Rows) (payments.Payment, error) {
	var (
		p                                  payments.Payment
		amount, whenText                   string
		flags                              int64
		created, paid, reconciled, nextDue sql.NullInt64
	)
	if err := rows.Scan(&p.ID, &p.Address, &amount, &p.Description, &whenText, &flags,
		&created, &paid, &reconciled, &nextDue); err != nil {
		return p, fmt.Errorf("failed to scan payment: %w", err)
	}

	var err error
	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return p, fmt.Errorf("payment %s: bad amount %q: %w", p.ID, amount, err)
	}
	p.When = schedule.FromText(whenText)
	p.Flags = payments.Flags(flags)
	p.CreatedAt = s.loadTime(created)
	p.LastPaidAt = s.loadTime(paid)
	p.LastReconciledAt = s.loadTime(reconciled)
	p.NextDueAt = s.loadTime(nextDue)
	return p, nil
}

func (s *Store) loadTime(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(0, v.Int64).In(s.loc)
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

var _ payments.Store = (*Store)(nil)
