// Package store implements transactional persistence of positions, limits,
// alerts, actions, plans, orders, balance snapshots and fund jobs, plus two
// primitives: upsert(id, row) with conflict-merge, and txn(fn) with
// snapshot isolation.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite connection with a ledger-grade PRAGMA profile: WAL
// journaling, full synchronous commits, foreign keys on. The plans/orders/
// alerts table set needs exactly that kind of durable audit trail.
type Store struct {
	db *sql.DB
	tx *sql.Tx
}

// Open opens (creating if necessary) the SQLite database at path and applies
// migrations. path may be ":memory:" or a "file...?mode=memory&cache=shared"
// URI for tests.
func Open(path string) (*Store, error) {
	connStr := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
 connStr = path
	}
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
 return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: one writer; serialize through Go instead of the driver pool.

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
 return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
 return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// querier is satisfied by both *sql.DB and *sql.Tx, letting repository
// methods run either standalone or inside a Txn.
type querier interface {
	ExecContext(ctx context.Context, query string, args...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args...any) *sql.Row
}

// Txn runs fn inside a single SQLite transaction (snapshot isolation via
// SQLite's serializable default). Any error returned by fn rolls the
// transaction back; fn's queries must use the *Store it is handed, not the
// outer one, so they participate in the same transaction.
func (s *Store) Txn(ctx context.Context, fn func(ctx context.Context, txStore *Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
 return fmt.Errorf("store: begin txn: %w", err)
	}
	txStore := &Store{db: nil, tx: tx}
	if err := fn(ctx, txStore); err != nil {
 _ = tx.Rollback()
 return err
	}
	if err := tx.Commit(); err != nil {
 return fmt.Errorf("store: commit txn: %w", err)
	}
	return nil
}

// q returns the querier to use for this Store value: the transaction if one
// is active, otherwise the pooled *sql.DB.
func (s *Store) q() querier {
	if s.tx != nil {
 return s.tx
	}
	return s.db
}
