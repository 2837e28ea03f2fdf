package store

import (
	"context"
	"database/sql"
)

// DBTX is the handle the scan task and invoice stores run their statements
// against. Both *sql.DB and *sql.Tx satisfy it, so a store can operate on
// the shared pool or be bound to a transaction through WithTx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
