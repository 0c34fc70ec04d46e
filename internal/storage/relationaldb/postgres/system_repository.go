package postgres

import (
	"context"
	"database/sql"

	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// SystemRepository covers cross-cutting database operations: liveness
// checks, size accounting and transaction handles.
type SystemRepository struct {
	db *sql.DB
}

func NewSystemRepository(db *sql.DB) *SystemRepository {
	return &SystemRepository{db: db}
}

// Ping verifies the pool still reaches the server.
func (r *SystemRepository) Ping(ctx context.Context) error {
	if r.db == nil {
		return relationaldb.ErrDatabaseClosed
	}
	if err := r.db.PingContext(ctx); err != nil {
		return relationaldb.NewConnectionError("ping", "database ping failed", err)
	}
	return nil
}

// Begin opens a transaction and wraps it so every repository is
// reachable on the same tx.
func (r *SystemRepository) Begin(ctx context.Context) (relationaldb.TransactionContext, error) {
	if r.db == nil {
		return nil, relationaldb.ErrDatabaseClosed
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, relationaldb.NewTransactionError("begin", "failed to begin transaction", err)
	}
	return NewTransactionContext(tx), nil
}

// DatabaseSizeKB reports the size of the current database in
// kilobytes, feeding the maintenance loop's disk gauge.
func (r *SystemRepository) DatabaseSizeKB(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, relationaldb.ErrDatabaseClosed
	}
	var size int64
	row := r.db.QueryRowContext(ctx, `SELECT pg_database_size(current_database())`)
	if err := row.Scan(&size); err != nil {
		return 0, relationaldb.NewQueryError("database_size", "failed to get database size", err)
	}
	return size / 1024, nil
}
