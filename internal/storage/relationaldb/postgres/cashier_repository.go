package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// CashierRepository implements the CashierRepository interface for PostgreSQL
type CashierRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewCashierRepository creates a new PostgreSQL cashier repository
func NewCashierRepository(db *sql.DB) *CashierRepository {
	return &CashierRepository{db: db}
}

// NewCashierRepositoryWithTx creates a new PostgreSQL cashier repository within a transaction
func NewCashierRepositoryWithTx(tx *sql.Tx) *CashierRepository {
	return &CashierRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *CashierRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// A cashier is any user with a cashier account; the drawer balance is
// that account's balance.
const cashierQuery = `SELECT ` + userColumns + `, a.balance
	FROM usr u
	LEFT JOIN user_tag ut ON u.user_tag_id = ut.id
	JOIN account a ON u.cashier_account_id = a.id`

func (r *CashierRepository) ListCashiers(ctx context.Context, nodeID int64) ([]user.Cashier, error) {
	query := cashierQuery + ` WHERE u.node_id = $1 ORDER BY u.login`

	rows, err := r.getExecutor().QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_cashiers", "failed to query cashiers", err)
	}
	defer rows.Close()

	var cashiers []user.Cashier
	for rows.Next() {
		c, err := scanCashier(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError("list_cashiers", "failed to scan cashier", err)
		}
		cashiers = append(cashiers, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_cashiers", "failed to iterate cashiers", err)
	}

	return cashiers, nil
}

func (r *CashierRepository) GetCashier(ctx context.Context, id int64) (*user.Cashier, error) {
	query := cashierQuery + ` WHERE u.id = $1`

	c, err := scanCashier(r.getExecutor().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_cashier", relationaldb.ErrUserNotFound, "CASHIER_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_cashier", "failed to query cashier", err)
	}

	return c, nil
}

// GetCashierShiftStart returns when the current shift began: the first
// booking after the previous shift ended. Nil means nothing has been
// booked yet, so there is nothing to close out.
func (r *CashierRepository) GetCashierShiftStart(ctx context.Context, cashierID int64) (*time.Time, error) {
	var start sql.NullTime
	err := r.getExecutor().QueryRowContext(ctx,
		`SELECT MIN(o.booked_at) FROM ordr o
		 WHERE o.cashier_id = $1 AND o.booked_at IS NOT NULL
		   AND o.booked_at > COALESCE(
			(SELECT MAX(ended_at) FROM cashier_shift WHERE cashier_id = $1),
			'-infinity')`, cashierID).Scan(&start)
	if err != nil {
		return nil, relationaldb.NewQueryError("get_cashier_shift_start", "failed to query shift start", err)
	}

	return ptrTime(start), nil
}

func (r *CashierRepository) IsCashierActiveOnTill(ctx context.Context, cashierID int64) (bool, error) {
	var active bool
	err := r.getExecutor().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT FROM till WHERE active_user_id = $1)`, cashierID).Scan(&active)
	if err != nil {
		return false, relationaldb.NewQueryError("is_cashier_active_on_till", "failed to query till binding", err)
	}

	return active, nil
}

const shiftColumns = `id, cashier_id, started_at, ended_at,
	actual_cash_drawer_balance, expected_cash_drawer_balance,
	cash_drawer_imbalance, comment, close_out_order_id, imbalance_order_id,
	closing_out_user_id`

func (r *CashierRepository) CreateCashierShift(ctx context.Context, shift user.NewCashierShift) (*user.CashierShift, error) {
	s, err := scanShift(r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO cashier_shift (cashier_id, started_at, ended_at,
			actual_cash_drawer_balance, expected_cash_drawer_balance, comment,
			close_out_order_id, imbalance_order_id, closing_out_user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+shiftColumns,
		shift.CashierID, shift.StartedAt, shift.EndedAt,
		shift.ActualCashDrawerBalance, shift.ExpectedCashDrawerBalance,
		shift.Comment, shift.CloseOutOrderID, shift.ImbalanceOrderID,
		shift.ClosingOutUserID))
	if err != nil {
		return nil, classifyError("create_cashier_shift", "failed to create cashier shift", err)
	}

	return s, nil
}

func (r *CashierRepository) ListCashierShifts(ctx context.Context, cashierID int64) ([]user.CashierShift, error) {
	query := `SELECT ` + shiftColumns + ` FROM cashier_shift
			  WHERE cashier_id = $1 ORDER BY ended_at DESC`

	rows, err := r.getExecutor().QueryContext(ctx, query, cashierID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_cashier_shifts", "failed to query cashier shifts", err)
	}
	defer rows.Close()

	var shifts []user.CashierShift
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError("list_cashier_shifts", "failed to scan cashier shift", err)
		}
		shifts = append(shifts, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_cashier_shifts", "failed to iterate cashier shifts", err)
	}

	return shifts, nil
}

// GetCashierShiftStats sums sold product quantities over a shift window:
// a stored shift's period when shiftID is given, otherwise the still
// open period after the last close-out.
func (r *CashierRepository) GetCashierShiftStats(ctx context.Context, cashierID int64, shiftID *int64) (*user.CashierShiftStats, error) {
	var query string
	var args []interface{}

	if shiftID != nil {
		query = `SELECT li.product_id, SUM(li.quantity)
				 FROM line_item li
				 JOIN ordr o ON li.order_id = o.id
				 JOIN cashier_shift s ON s.id = $2
				 WHERE o.cashier_id = $1 AND o.status = 'done'
				   AND o.booked_at >= s.started_at AND o.booked_at <= s.ended_at
				 GROUP BY li.product_id ORDER BY li.product_id`
		args = []interface{}{cashierID, *shiftID}
	} else {
		query = `SELECT li.product_id, SUM(li.quantity)
				 FROM line_item li
				 JOIN ordr o ON li.order_id = o.id
				 WHERE o.cashier_id = $1 AND o.status = 'done'
				   AND o.booked_at > COALESCE(
					(SELECT MAX(ended_at) FROM cashier_shift WHERE cashier_id = $1),
					'-infinity')
				 GROUP BY li.product_id ORDER BY li.product_id`
		args = []interface{}{cashierID}
	}

	rows, err := r.getExecutor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, relationaldb.NewQueryError("get_cashier_shift_stats", "failed to query shift stats", err)
	}
	defer rows.Close()

	stats := &user.CashierShiftStats{CashierID: cashierID, ShiftID: shiftID}
	for rows.Next() {
		var p user.ProductStats
		if err := rows.Scan(&p.ProductID, &p.Quantity); err != nil {
			return nil, relationaldb.NewQueryError("get_cashier_shift_stats", "failed to scan shift stats", err)
		}
		stats.Products = append(stats.Products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("get_cashier_shift_stats", "failed to iterate shift stats", err)
	}

	return stats, nil
}

func scanCashier(row scanner) (*user.Cashier, error) {
	var c user.Cashier
	var tagID, cashierAccID, transportAccID, registerID sql.NullInt64
	var uid sql.NullString

	err := row.Scan(&c.ID, &c.NodeID, &c.Login, &c.DisplayName, &c.Description,
		&tagID, &uid, &cashierAccID, &transportAccID, &registerID,
		&c.CashDrawerBalance)
	if err != nil {
		return nil, err
	}

	c.UserTagID = ptrInt64(tagID)
	c.CashierAccountID = ptrInt64(cashierAccID)
	c.TransportAccountID = ptrInt64(transportAccID)
	c.CashRegisterID = ptrInt64(registerID)

	c.UserTagUID, err = ptrTagUID(uid)
	if err != nil {
		return nil, err
	}

	return &c, nil
}

func scanShift(row scanner) (*user.CashierShift, error) {
	var s user.CashierShift
	err := row.Scan(&s.ID, &s.CashierID, &s.StartedAt, &s.EndedAt,
		&s.ActualCashDrawerBalance, &s.ExpectedCashDrawerBalance,
		&s.CashDrawerImbalance, &s.Comment, &s.CloseOutOrderID,
		&s.ImbalanceOrderID, &s.ClosingOutUserID)
	if err != nil {
		return nil, err
	}

	return &s, nil
}
