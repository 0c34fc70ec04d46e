package postgres

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/stustapay/stustapayd/internal/core/order"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// BonChannel is the notification channel receipt workers listen on. The
// payload is the order id in decimal.
const BonChannel = "bon"

// BonRepository implements the BonRepository interface for PostgreSQL
type BonRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewBonRepository creates a new PostgreSQL bon repository
func NewBonRepository(db *sql.DB) *BonRepository {
	return &BonRepository{db: db}
}

// NewBonRepositoryWithTx creates a new PostgreSQL bon repository within a transaction
func NewBonRepositoryWithTx(tx *sql.Tx) *BonRepository {
	return &BonRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *BonRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *BonRepository) CreateBon(ctx context.Context, orderID int64) error {
	_, err := r.getExecutor().ExecContext(ctx,
		`INSERT INTO bon (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, orderID)
	if err != nil {
		return classifyError("create_bon", "failed to create bon", err)
	}

	return nil
}

// NotifyBon wakes the receipt workers. When called inside a transaction
// the notification is delivered only on commit, which is exactly the
// ordering the workers rely on.
func (r *BonRepository) NotifyBon(ctx context.Context, orderID int64) error {
	_, err := r.getExecutor().ExecContext(ctx,
		`SELECT pg_notify($1, $2)`, BonChannel, strconv.FormatInt(orderID, 10))
	if err != nil {
		return relationaldb.NewQueryError("notify_bon", "failed to notify bon channel", err)
	}

	return nil
}

func (r *BonRepository) GetBon(ctx context.Context, orderID int64) (*order.Bon, error) {
	var bon order.Bon
	var generatedAt sql.NullTime
	var bonError sql.NullString

	err := r.getExecutor().QueryRowContext(ctx,
		`SELECT id, generated, generated_at, error FROM bon WHERE id = $1`, orderID).
		Scan(&bon.OrderID, &bon.Generated, &generatedAt, &bonError)
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_bon", relationaldb.ErrBonNotFound, "BON_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_bon", "failed to query bon", err)
	}

	bon.GeneratedAt = ptrTime(generatedAt)
	bon.Error = ptrString(bonError)

	return &bon, nil
}

// ListPendingBons returns order ids whose receipt still needs to be
// produced, oldest first. Failed bons are excluded until the error is
// cleared.
func (r *BonRepository) ListPendingBons(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.getExecutor().QueryContext(ctx,
		`SELECT id FROM bon WHERE NOT generated AND error IS NULL
		 ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_pending_bons", "failed to query pending bons", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, relationaldb.NewQueryError("list_pending_bons", "failed to scan bon id", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_pending_bons", "failed to iterate pending bons", err)
	}

	return ids, nil
}

func (r *BonRepository) MarkBonGenerated(ctx context.Context, orderID int64) error {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE bon SET generated = TRUE, generated_at = NOW(), error = NULL
		 WHERE id = $1`, orderID)
	if err != nil {
		return relationaldb.NewQueryError("mark_bon_generated", "failed to mark bon generated", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("mark_bon_generated", "failed to check update result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("mark_bon_generated", relationaldb.ErrBonNotFound, "BON_NOT_FOUND")
	}

	return nil
}

func (r *BonRepository) MarkBonError(ctx context.Context, orderID int64, message string) error {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE bon SET error = $2 WHERE id = $1`, orderID, message)
	if err != nil {
		return relationaldb.NewQueryError("mark_bon_error", "failed to mark bon error", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("mark_bon_error", "failed to check update result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("mark_bon_error", relationaldb.ErrBonNotFound, "BON_NOT_FOUND")
	}

	return nil
}
