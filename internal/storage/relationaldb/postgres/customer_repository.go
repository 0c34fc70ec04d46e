package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/customer"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// CustomerRepository implements the CustomerRepository interface for PostgreSQL
type CustomerRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewCustomerRepository creates a new PostgreSQL customer repository
func NewCustomerRepository(db *sql.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// NewCustomerRepositoryWithTx creates a new PostgreSQL customer repository within a transaction
func NewCustomerRepositoryWithTx(tx *sql.Tx) *CustomerRepository {
	return &CustomerRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *CustomerRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// Only private accounts are customers; the info row appears once bank
// data or a donation choice has been submitted.
const customerQuery = `SELECT a.id, a.node_id, a.type, a.name, a.comment,
		a.balance, a.vouchers, a.user_tag_id, a.user_tag_uid, a.restriction,
		ci.customer_account_id, ci.iban, ci.account_name, ci.email,
		ci.donation, ci.donate_all, ci.has_entered_info, ci.payout_run_id,
		ci.payout_error, ci.payout_export
	FROM account_with_tag a
	LEFT JOIN customer_info ci ON a.id = ci.customer_account_id`

func (r *CustomerRepository) GetCustomer(ctx context.Context, accountID int64) (*customer.Customer, error) {
	query := customerQuery + ` WHERE a.id = $1 AND a.type = 'private'`

	c, err := scanCustomer(r.getExecutor().QueryRowContext(ctx, query, accountID))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_customer", relationaldb.ErrCustomerNotFound, "CUSTOMER_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_customer", "failed to query customer", err)
	}

	return c, nil
}

// GetCustomerByPin is the portal login lookup. The pin comparison is
// case-insensitive the same way tag pins are matched at tills.
func (r *CustomerRepository) GetCustomerByPin(ctx context.Context, pin string) (*customer.Customer, error) {
	query := customerQuery + `
		JOIN user_tag ut ON a.user_tag_id = ut.id
		WHERE (ut.pin = lower($1) OR ut.pin = upper($1)) AND a.type = 'private'`

	c, err := scanCustomer(r.getExecutor().QueryRowContext(ctx, query, pin))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_customer_by_pin", relationaldb.ErrCustomerNotFound, "CUSTOMER_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_customer_by_pin", "failed to query customer", err)
	}

	return c, nil
}

func (r *CustomerRepository) CreateCustomerSession(ctx context.Context, accountID int64) (uuid.UUID, error) {
	var session uuid.UUID
	err := r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO customer_session (customer) VALUES ($1) RETURNING uuid`,
		accountID).Scan(&session)
	if err != nil {
		return uuid.Nil, classifyError("create_customer_session", "failed to create session", err)
	}

	return session, nil
}

func (r *CustomerRepository) HasCustomerSession(ctx context.Context, accountID int64, session uuid.UUID) (bool, error) {
	var exists bool
	err := r.getExecutor().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT FROM customer_session WHERE customer = $1 AND uuid = $2)`,
		accountID, session).Scan(&exists)
	if err != nil {
		return false, relationaldb.NewQueryError("has_customer_session", "failed to query session", err)
	}

	return exists, nil
}

// DeleteCustomerSession is idempotent, like user session logout.
func (r *CustomerRepository) DeleteCustomerSession(ctx context.Context, accountID int64, session uuid.UUID) error {
	_, err := r.getExecutor().ExecContext(ctx,
		`DELETE FROM customer_session WHERE customer = $1 AND uuid = $2`,
		accountID, session)
	if err != nil {
		return relationaldb.NewQueryError("delete_customer_session", "failed to delete session", err)
	}

	return nil
}

// UpdateCustomerInfo stores submitted bank data. A resubmission clears a
// previous payout error and switches off donate-all, since the customer
// is now asking for a transfer.
func (r *CustomerRepository) UpdateCustomerInfo(ctx context.Context, accountID int64, bank customer.Bank) error {
	_, err := r.getExecutor().ExecContext(ctx,
		`INSERT INTO customer_info (customer_account_id, iban, account_name,
			email, donation, donate_all, has_entered_info, payout_export)
		 VALUES ($1, $2, $3, $4, $5, FALSE, TRUE, TRUE)
		 ON CONFLICT (customer_account_id) DO UPDATE SET
			iban = EXCLUDED.iban,
			account_name = EXCLUDED.account_name,
			email = EXCLUDED.email,
			donation = EXCLUDED.donation,
			donate_all = FALSE,
			has_entered_info = TRUE,
			payout_export = TRUE,
			payout_error = NULL`,
		accountID, bank.IBAN, bank.AccountName, bank.Email, bank.Donation)
	if err != nil {
		return classifyError("update_customer_info", "failed to update customer info", err)
	}

	return nil
}

// SetDonateAll records the choice to donate the full balance. Any bank
// data already entered stays in place in case the customer changes
// their mind.
func (r *CustomerRepository) SetDonateAll(ctx context.Context, accountID int64) error {
	_, err := r.getExecutor().ExecContext(ctx,
		`INSERT INTO customer_info (customer_account_id, donate_all, has_entered_info)
		 VALUES ($1, TRUE, TRUE)
		 ON CONFLICT (customer_account_id) DO UPDATE SET
			donate_all = TRUE,
			has_entered_info = TRUE`,
		accountID)
	if err != nil {
		return classifyError("set_donate_all", "failed to set donate all", err)
	}

	return nil
}

func scanCustomer(row scanner) (*customer.Customer, error) {
	var c customer.Customer
	var name, comment, uid, restriction sql.NullString
	var userTagID sql.NullInt64

	var infoID, payoutRunID sql.NullInt64
	var iban, accountName, email, payoutError sql.NullString
	var donation decimal.NullDecimal
	var donateAll, hasEnteredInfo, payoutExport sql.NullBool

	err := row.Scan(&c.ID, &c.NodeID, &c.Kind, &name, &comment,
		&c.Balance, &c.Vouchers, &userTagID, &uid, &restriction,
		&infoID, &iban, &accountName, &email, &donation,
		&donateAll, &hasEnteredInfo, &payoutRunID, &payoutError, &payoutExport)
	if err != nil {
		return nil, err
	}

	c.Name = name.String
	c.Comment = comment.String
	c.UserTagID = ptrInt64(userTagID)
	c.Restriction = ptrRestriction(restriction)

	c.UserTagUID, err = ptrTagUID(uid)
	if err != nil {
		return nil, err
	}

	if infoID.Valid {
		c.Info = &customer.Info{
			CustomerAccountID: infoID.Int64,
			IBAN:              ptrString(iban),
			AccountName:       ptrString(accountName),
			Email:             ptrString(email),
			Donation:          ptrDecimal(donation),
			DonateAll:         donateAll.Bool,
			HasEnteredInfo:    hasEnteredInfo.Bool,
			PayoutRunID:       ptrInt64(payoutRunID),
			PayoutError:       ptrString(payoutError),
			PayoutExport:      payoutExport.Bool,
		}
	}

	return &c, nil
}
