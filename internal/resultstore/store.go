// Package resultstore persists square-root pairs in SQLite.
package resultstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lguimbarda/parflow/flow"
	flowsql "github.com/lguimbarda/parflow/flow/sql"
	"github.com/lguimbarda/parflow/internal/sqrt"
)

const schema = `CREATE TABLE IF NOT EXISTS square_roots (
	value INTEGER NOT NULL,
	root  REAL    NOT NULL
)`

// Store records DerivedPairs. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens the database at dsn and creates the table if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dsn, err)
	}
	// SQLite allows one writer, and each connection to an in-memory
	// database sees its own database.
	db.SetMaxOpenConns(1)

	if _, err := flow.Slice(ctx, flowsql.Exec(db, schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record inserts p.
func (s *Store) Record(ctx context.Context, p sqrt.DerivedPair) error {
	_, err := flow.Slice(ctx, flowsql.Exec(s.db,
		"INSERT INTO square_roots (value, root) VALUES (?, ?)", p.Value, p.Root))
	if err != nil {
		return fmt.Errorf("record %d: %w", p.Value, err)
	}
	return nil
}

// Observer returns a function that records pairs under ctx.
func (s *Store) Observer(ctx context.Context) func(sqrt.DerivedPair) error {
	return func(p sqrt.DerivedPair) error {
		return s.Record(ctx, p)
	}
}

// All returns every recorded pair ordered by value.
func (s *Store) All(ctx context.Context) ([]sqrt.DerivedPair, error) {
	pairs, err := flow.Slice(ctx, flowsql.Query(s.db,
		"SELECT value, root FROM square_roots ORDER BY value",
		func(rows *sql.Rows) (sqrt.DerivedPair, error) {
			var p sqrt.DerivedPair
			err := rows.Scan(&p.Value, &p.Root)
			return p, err
		}))
	if err != nil {
		return nil, fmt.Errorf("read pairs: %w", err)
	}
	return pairs, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
