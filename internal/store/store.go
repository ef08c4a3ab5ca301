// Package store persists users, sessions, messages, mind maps, analyses and
// snapshots in SQLite. All turn writes go through WithinTx so a turn commits
// atomically or not at all.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/clearity-app/clearity/internal/apperrors"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx. Store methods run
// against whichever the store is bound to.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite-backed persistence layer.
type Store struct {
	db    DBTX
	sqlDB *sql.DB // nil when tx-bound
}

// Open opens (or creates) the database at path and applies migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.NewPersistenceError("open", err)
	}
	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent turns.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, sqlDB: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database. No-op on a tx-bound store.
func (s *Store) Close() error {
	if s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks database liveness for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if s.sqlDB == nil {
		return nil
	}
	if err := s.sqlDB.PingContext(ctx); err != nil {
		return apperrors.NewPersistenceError("ping", err)
	}
	return nil
}

// WithinTx runs fn against a tx-bound store and commits on success. Any
// error rolls the whole transaction back.
func (s *Store) WithinTx(ctx context.Context, fn func(*Store) error) error {
	if s.sqlDB == nil {
		// Already inside a transaction; nest flatly.
		return fn(s)
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewPersistenceError("begin tx", err)
	}
	if err := fn(&Store{db: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewPersistenceError("commit tx", err)
	}
	return nil
}
