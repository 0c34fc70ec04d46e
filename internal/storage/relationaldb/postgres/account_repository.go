package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/account"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// AccountRepository implements the AccountRepository interface for PostgreSQL
type AccountRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// NewAccountRepositoryWithTx creates a new PostgreSQL account repository within a transaction
func NewAccountRepositoryWithTx(tx *sql.Tx) *AccountRepository {
	return &AccountRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *AccountRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const accountColumns = `id, node_id, type, name, comment, balance, vouchers,
	user_tag_id, user_tag_uid, restriction`

func (r *AccountRepository) GetAccount(ctx context.Context, id int64) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM account_with_tag WHERE id = $1`

	acc, err := scanAccount(r.getExecutor().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_account", relationaldb.ErrAccountNotFound, "ACCOUNT_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_account", "failed to query account", err)
	}

	return acc, nil
}

func (r *AccountRepository) GetAccountByTagUID(ctx context.Context, tagUID uint64) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM account_with_tag WHERE user_tag_uid = $1`

	acc, err := scanAccount(r.getExecutor().QueryRowContext(ctx, query, tagUIDArg(tagUID)))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_account_by_tag_uid", relationaldb.ErrAccountNotFound, "ACCOUNT_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_account_by_tag_uid", "failed to query account", err)
	}

	return acc, nil
}

func (r *AccountRepository) ListAccounts(ctx context.Context, nodeID int64, kinds []account.Kind) ([]account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM account_with_tag WHERE node_id = $1`
	args := []interface{}{nodeID}

	if len(kinds) > 0 {
		kindNames := make([]string, len(kinds))
		for i, k := range kinds {
			kindNames[i] = string(k)
		}
		query += ` AND type = ANY($2)`
		args = append(args, pq.StringArray(kindNames))
	}
	query += ` ORDER BY id`

	rows, err := r.getExecutor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_accounts", "failed to query accounts", err)
	}
	defer rows.Close()

	var accounts []account.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError("list_accounts", "failed to scan account", err)
		}
		accounts = append(accounts, *acc)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_accounts", "failed to iterate accounts", err)
	}

	return accounts, nil
}

func (r *AccountRepository) CreateAccount(ctx context.Context, nodeID int64, kind account.Kind, name string) (int64, error) {
	var id int64
	err := r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO account (node_id, type, name) VALUES ($1, $2, $3) RETURNING id`,
		nodeID, string(kind), name).Scan(&id)
	if err != nil {
		return 0, classifyError("create_account", "failed to create account", err)
	}

	if _, err := r.GetAccount(ctx, id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *AccountRepository) CreateCustomerAccount(ctx context.Context, nodeID int64, userTagID int64) (int64, error) {
	var id int64
	err := r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO account (node_id, type, user_tag_id) VALUES ($1, 'private', $2) RETURNING id`,
		nodeID, userTagID).Scan(&id)
	if err != nil {
		return 0, classifyError("create_customer_account", "failed to create customer account", err)
	}

	if _, err := r.GetAccount(ctx, id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *AccountRepository) SetAccountBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE account SET balance = $1 WHERE id = $2`, balance, id)
	if err != nil {
		return relationaldb.NewQueryError("set_account_balance", "failed to update balance", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("set_account_balance", "failed to check update result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("set_account_balance", relationaldb.ErrAccountNotFound, "ACCOUNT_NOT_FOUND")
	}

	return nil
}

func (r *AccountRepository) AddAccountVouchers(ctx context.Context, id int64, delta int64) error {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE account SET vouchers = vouchers + $1 WHERE id = $2`, delta, id)
	if err != nil {
		return classifyError("add_account_vouchers", "failed to update vouchers", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("add_account_vouchers", "failed to check update result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("add_account_vouchers", relationaldb.ErrAccountNotFound, "ACCOUNT_NOT_FOUND")
	}

	return nil
}

func (r *AccountRepository) GetUserTag(ctx context.Context, tagUID uint64) (*account.UserTag, error) {
	query := `SELECT id, node_id, uid, pin, restriction FROM user_tag WHERE uid = $1`

	tag, err := scanUserTag(r.getExecutor().QueryRowContext(ctx, query, tagUIDArg(tagUID)))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_user_tag", relationaldb.ErrUserTagNotFound, "USER_TAG_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_user_tag", "failed to query user tag", err)
	}

	return tag, nil
}

// GetUserTagByPin matches the pin case-insensitively: tags are printed in
// uppercase but customers type whatever their keyboard gives them.
func (r *AccountRepository) GetUserTagByPin(ctx context.Context, pin string) (*account.UserTag, error) {
	query := `SELECT id, node_id, uid, pin, restriction FROM user_tag
			  WHERE pin = lower($1) OR pin = upper($1)`

	tag, err := scanUserTag(r.getExecutor().QueryRowContext(ctx, query, pin))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_user_tag_by_pin", relationaldb.ErrUserTagNotFound, "USER_TAG_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_user_tag_by_pin", "failed to query user tag", err)
	}

	return tag, nil
}

func scanAccount(row scanner) (*account.Account, error) {
	var acc account.Account
	var name, comment, uid, restriction sql.NullString
	var userTagID sql.NullInt64

	err := row.Scan(&acc.ID, &acc.NodeID, &acc.Kind, &name, &comment,
		&acc.Balance, &acc.Vouchers, &userTagID, &uid, &restriction)
	if err != nil {
		return nil, err
	}

	acc.Name = name.String
	acc.Comment = comment.String
	acc.UserTagID = ptrInt64(userTagID)
	acc.Restriction = ptrRestriction(restriction)

	acc.UserTagUID, err = ptrTagUID(uid)
	if err != nil {
		return nil, err
	}

	return &acc, nil
}

func scanUserTag(row scanner) (*account.UserTag, error) {
	var tag account.UserTag
	var uid string
	var pin, restriction sql.NullString

	err := row.Scan(&tag.ID, &tag.NodeID, &uid, &pin, &restriction)
	if err != nil {
		return nil, err
	}

	tag.UID, err = parseTagUID(uid)
	if err != nil {
		return nil, err
	}

	tag.Pin = pin.String
	tag.Restriction = ptrRestriction(restriction)

	return &tag, nil
}
