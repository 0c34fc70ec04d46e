package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/account"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// LedgerRepository implements the LedgerRepository interface for PostgreSQL
type LedgerRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// NewLedgerRepositoryWithTx creates a new PostgreSQL ledger repository within a transaction
func NewLedgerRepositoryWithTx(tx *sql.Tx) *LedgerRepository {
	return &LedgerRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *LedgerRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *LedgerRepository) BookTransaction(ctx context.Context, txn relationaldb.NewTransaction) (int64, error) {
	var id int64
	err := r.getExecutor().QueryRowContext(ctx,
		`SELECT book_transaction(
			order_id => $1,
			description => $2,
			source_account_id => $3,
			target_account_id => $4,
			amount => $5,
			tax_name => $6)`,
		txn.OrderID, txn.Description, txn.SourceAccountID, txn.TargetAccountID,
		txn.Amount, txn.TaxRateName).Scan(&id)

	if err != nil {
		return 0, classifyBookingError(err)
	}

	return id, nil
}

// classifyBookingError maps exceptions raised by book_transaction onto
// the matching sentinels; the raised messages are the contract.
func classifyBookingError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		msg := pqErr.Message
		switch {
		case strings.Contains(msg, "insufficient funds"):
			return relationaldb.NewDataError("book_transaction", msg, err).
				WithCode("INSUFFICIENT_FUNDS")
		case strings.Contains(msg, "tax rate"):
			return relationaldb.NewDataError("book_transaction", msg, relationaldb.ErrTaxRateNotFound).
				WithCode("TAX_RATE_NOT_FOUND")
		case strings.Contains(msg, "account") && strings.Contains(msg, "does not exist"):
			return relationaldb.NewDataError("book_transaction", msg, relationaldb.ErrAccountNotFound).
				WithCode("ACCOUNT_NOT_FOUND")
		}
	}
	return classifyError("book_transaction", "failed to book transaction", err)
}

func (r *LedgerRepository) GetTransaction(ctx context.Context, id int64) (*account.Transaction, error) {
	query := `SELECT id, order_id, description, source_account, target_account,
			  booked_at, amount, tax_name, tax_rate
			  FROM transaction WHERE id = $1`

	txn, err := scanTransaction(r.getExecutor().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_transaction", relationaldb.ErrNotFound, "TRANSACTION_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_transaction", "failed to query transaction", err)
	}

	return txn, nil
}

func (r *LedgerRepository) ListOrderTransactions(ctx context.Context, orderID int64) ([]account.Transaction, error) {
	query := `SELECT id, order_id, description, source_account, target_account,
			  booked_at, amount, tax_name, tax_rate
			  FROM transaction WHERE order_id = $1 ORDER BY id`

	return r.listTransactions(ctx, "list_order_transactions", query, orderID)
}

func (r *LedgerRepository) ListAccountTransactions(ctx context.Context, accountID int64) ([]account.Transaction, error) {
	query := `SELECT id, order_id, description, source_account, target_account,
			  booked_at, amount, tax_name, tax_rate
			  FROM transaction WHERE source_account = $1 OR target_account = $1
			  ORDER BY booked_at DESC, id DESC`

	return r.listTransactions(ctx, "list_account_transactions", query, accountID)
}

func (r *LedgerRepository) listTransactions(ctx context.Context, operation, query string, arg interface{}) ([]account.Transaction, error) {
	rows, err := r.getExecutor().QueryContext(ctx, query, arg)
	if err != nil {
		return nil, relationaldb.NewQueryError(operation, "failed to query transactions", err)
	}
	defer rows.Close()

	var transactions []account.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError(operation, "failed to scan transaction", err)
		}
		transactions = append(transactions, *txn)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError(operation, "failed to iterate transactions", err)
	}

	return transactions, nil
}

func (r *LedgerRepository) SumBalances(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.getExecutor().QueryRowContext(ctx,
		"SELECT COALESCE(SUM(balance), 0) FROM account").Scan(&sum)

	if err != nil {
		return decimal.Zero, relationaldb.NewQueryError("sum_balances", "failed to sum account balances", err)
	}

	return sum, nil
}

// scanner covers both sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (*account.Transaction, error) {
	var txn account.Transaction
	var orderID sql.NullInt64

	err := row.Scan(&txn.ID, &orderID, &txn.Description, &txn.SourceAccountID,
		&txn.TargetAccountID, &txn.BookedAt, &txn.Amount, &txn.TaxRateName, &txn.TaxRate)
	if err != nil {
		return nil, err
	}

	txn.OrderID = ptrInt64(orderID)
	return &txn, nil
}
