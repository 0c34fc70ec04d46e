package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/payout"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// PayoutRepository implements the PayoutRepository interface for PostgreSQL
type PayoutRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewPayoutRepository creates a new PostgreSQL payout repository
func NewPayoutRepository(db *sql.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// NewPayoutRepositoryWithTx creates a new PostgreSQL payout repository within a transaction
func NewPayoutRepositoryWithTx(tx *sql.Tx) *PayoutRepository {
	return &PayoutRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *PayoutRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const runColumns = `id, created_at, created_by, execution_date, set_done_at`

func (r *PayoutRepository) CreatePayoutRun(ctx context.Context, createdBy string, executionDate time.Time) (*payout.Run, error) {
	run, err := scanPayoutRun(r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO payout_run (created_by, execution_date)
		 VALUES ($1, $2) RETURNING `+runColumns,
		createdBy, executionDate))
	if err != nil {
		return nil, classifyError("create_payout_run", "failed to create payout run", err)
	}

	return run, nil
}

// AttachEligibleCustomers assigns unassigned eligible customers to the
// run, walking them in ascending account id and stopping before the
// running total would exceed maxPayoutSum. Returns how many customers
// were attached.
func (r *PayoutRepository) AttachEligibleCustomers(ctx context.Context, runID int64, maxPayoutSum decimal.Decimal) (int64, error) {
	result, err := r.getExecutor().ExecContext(ctx,
		`WITH selected AS (
			SELECT customer_account_id
			FROM (
				SELECT customer_account_id,
					SUM(amount) OVER (ORDER BY customer_account_id
						ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW) AS running_total
				FROM payout
				WHERE payout_run_id IS NULL
			) p
			WHERE p.running_total <= $2
		 )
		 UPDATE customer_info ci SET payout_run_id = $1
		 FROM selected s
		 WHERE ci.customer_account_id = s.customer_account_id`,
		runID, maxPayoutSum)
	if err != nil {
		return 0, classifyError("attach_eligible_customers", "failed to attach customers", err)
	}

	attached, err := result.RowsAffected()
	if err != nil {
		return 0, relationaldb.NewQueryError("attach_eligible_customers", "failed to check attach result", err)
	}

	return attached, nil
}

func (r *PayoutRepository) GetPayoutRun(ctx context.Context, id int64) (*payout.Run, error) {
	run, err := scanPayoutRun(r.getExecutor().QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM payout_run WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_payout_run", relationaldb.ErrPayoutRunNotFound, "PAYOUT_RUN_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_payout_run", "failed to query payout run", err)
	}

	return run, nil
}

func (r *PayoutRepository) ListPayoutRuns(ctx context.Context) ([]payout.Run, error) {
	rows, err := r.getExecutor().QueryContext(ctx,
		`SELECT `+runColumns+` FROM payout_run ORDER BY id DESC`)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_payout_runs", "failed to query payout runs", err)
	}
	defer rows.Close()

	var runs []payout.Run
	for rows.Next() {
		run, err := scanPayoutRun(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError("list_payout_runs", "failed to scan payout run", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_payout_runs", "failed to iterate payout runs", err)
	}

	return runs, nil
}

// ListRunPayouts pages through a run's payouts in ascending account id,
// the same order customers were attached in. A non-positive limit means
// no paging.
func (r *PayoutRepository) ListRunPayouts(ctx context.Context, runID int64, limit, offset int64) ([]payout.Payout, error) {
	query := `SELECT customer_account_id, iban, account_name, email,
			user_tag_uid, amount, payout_run_id
		FROM payout WHERE payout_run_id = $1
		ORDER BY customer_account_id`
	args := []interface{}{runID}

	if limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	rows, err := r.getExecutor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_run_payouts", "failed to query payouts", err)
	}
	defer rows.Close()

	var payouts []payout.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError("list_run_payouts", "failed to scan payout", err)
		}
		payouts = append(payouts, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_run_payouts", "failed to iterate payouts", err)
	}

	return payouts, nil
}

// PendingPayouts reports how many eligible customers are not yet in a
// run and what their payouts sum to.
func (r *PayoutRepository) PendingPayouts(ctx context.Context) (*relationaldb.PendingPayoutStats, error) {
	var stats relationaldb.PendingPayoutStats
	err := r.getExecutor().QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM payout
		 WHERE payout_run_id IS NULL`).Scan(&stats.Count, &stats.Total)
	if err != nil {
		return nil, relationaldb.NewQueryError("pending_payouts", "failed to query pending payouts", err)
	}

	return &stats, nil
}

func (r *PayoutRepository) MarkPayoutRunDone(ctx context.Context, runID int64) error {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE payout_run SET set_done_at = NOW()
		 WHERE id = $1 AND set_done_at IS NULL`, runID)
	if err != nil {
		return relationaldb.NewQueryError("mark_payout_run_done", "failed to mark run done", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("mark_payout_run_done", "failed to check update result", err)
	}
	if affected == 0 {
		var exists bool
		err := r.getExecutor().QueryRowContext(ctx,
			`SELECT EXISTS (SELECT FROM payout_run WHERE id = $1)`, runID).Scan(&exists)
		if err != nil {
			return relationaldb.NewQueryError("mark_payout_run_done", "failed to query payout run", err)
		}
		if !exists {
			return relationaldb.NewNotFoundError("mark_payout_run_done", relationaldb.ErrPayoutRunNotFound, "PAYOUT_RUN_NOT_FOUND")
		}
		return relationaldb.NewDataError("mark_payout_run_done",
			"payout run is already done", relationaldb.ErrPayoutRunNotFound).
			WithCode("PAYOUT_RUN_ALREADY_DONE")
	}

	return nil
}

// SetPayoutError excludes a customer from future runs until they fix
// their bank data; the message is shown in the portal.
func (r *PayoutRepository) SetPayoutError(ctx context.Context, customerAccountID int64, message string) error {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE customer_info SET payout_error = $2 WHERE customer_account_id = $1`,
		customerAccountID, message)
	if err != nil {
		return relationaldb.NewQueryError("set_payout_error", "failed to set payout error", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("set_payout_error", "failed to check update result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("set_payout_error", relationaldb.ErrCustomerNotFound, "CUSTOMER_NOT_FOUND")
	}

	return nil
}

func scanPayoutRun(row scanner) (*payout.Run, error) {
	var run payout.Run
	var setDoneAt sql.NullTime

	err := row.Scan(&run.ID, &run.CreatedAt, &run.CreatedBy,
		&run.ExecutionDate, &setDoneAt)
	if err != nil {
		return nil, err
	}

	run.SetDoneAt = ptrTime(setDoneAt)
	return &run, nil
}

func scanPayout(row scanner) (*payout.Payout, error) {
	var p payout.Payout
	var iban, accountName, email, uid sql.NullString
	var runID sql.NullInt64

	err := row.Scan(&p.CustomerAccountID, &iban, &accountName, &email,
		&uid, &p.Amount, &runID)
	if err != nil {
		return nil, err
	}

	p.IBAN = iban.String
	p.AccountName = accountName.String
	p.Email = email.String
	p.PayoutRunID = ptrInt64(runID)

	if uid.Valid {
		parsed, err := parseTagUID(uid.String)
		if err != nil {
			return nil, err
		}
		p.UserTagUID = parsed
	}

	return &p, nil
}
