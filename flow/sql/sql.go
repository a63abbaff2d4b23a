// Package sql provides stream adapters for database operations using database/sql.
// Statements only run when the returned stream is emitted.
package sql

import (
	"context"
	"database/sql"

	"github.com/lguimbarda/parflow/flow/core"
)

// DefaultBufferSize is re-exported from core for convenience.
const DefaultBufferSize = core.DefaultBufferSize

// Scanner is a function that scans a row into a value.
type Scanner[T any] func(*sql.Rows) (T, error)

// Query creates a Stream that executes a query and emits results.
// The scanner function is called for each row to convert it to the output type.
func Query[T any](db *sql.DB, query string, scanner Scanner[T], args ...any) core.Stream[T] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[T] {
		out := make(chan core.Result[T], DefaultBufferSize)
		go func() {
			defer close(out)
			rows, err := db.QueryContext(ctx, query, args...)
			if err != nil {
				select {
				case <-ctx.Done():
				case out <- core.Err[T](err):
				}
				return
			}
			defer rows.Close()
			for rows.Next() {
				value, err := scanner(rows)
				if err != nil {
					select {
					case <-ctx.Done():
						return
					case out <- core.Err[T](err):
					}
					continue
				}
				select {
				case <-ctx.Done():
					return
				case out <- core.Ok(value):
				}
			}
			if err := rows.Err(); err != nil {
				select {
				case <-ctx.Done():
				case out <- core.Err[T](err):
				}
			}
		}()
		return out
	})
}

// ExecResult contains the result of an exec operation.
type ExecResult struct {
	LastInsertId int64
	RowsAffected int64
}

// Exec creates a Stream that executes a statement and emits the result.
func Exec(db *sql.DB, query string, args ...any) core.Stream[ExecResult] {
	return core.Emit(func(ctx context.Context) <-chan core.Result[ExecResult] {
		out := make(chan core.Result[ExecResult], 1)
		go func() {
			defer close(out)
			result, err := db.ExecContext(ctx, query, args...)
			if err != nil {
				select {
				case <-ctx.Done():
				case out <- core.Err[ExecResult](err):
				}
				return
			}
			lastID, _ := result.LastInsertId()
			rowsAffected, _ := result.RowsAffected()
			execResult := ExecResult{
				LastInsertId: lastID,
				RowsAffected: rowsAffected,
			}
			select {
			case <-ctx.Done():
			case out <- core.Ok(execResult):
			}
		}()
		return out
	})
}
