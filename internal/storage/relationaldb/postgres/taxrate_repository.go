package postgres

import (
	"context"
	"database/sql"

	"github.com/stustapay/stustapayd/internal/core/tax"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// TaxRateRepository implements the TaxRateRepository interface for PostgreSQL
type TaxRateRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewTaxRateRepository creates a new PostgreSQL tax rate repository
func NewTaxRateRepository(db *sql.DB) *TaxRateRepository {
	return &TaxRateRepository{db: db}
}

// NewTaxRateRepositoryWithTx creates a new PostgreSQL tax rate repository within a transaction
func NewTaxRateRepositoryWithTx(tx *sql.Tx) *TaxRateRepository {
	return &TaxRateRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *TaxRateRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *TaxRateRepository) CreateTaxRate(ctx context.Context, nodeID int64, newRate tax.NewRate) (*tax.Rate, error) {
	_, err := r.getExecutor().ExecContext(ctx,
		`INSERT INTO tax (name, node_id, rate, description) VALUES ($1, $2, $3, $4)`,
		newRate.Name, nodeID, newRate.Rate, newRate.Description)
	if err != nil {
		return nil, classifyError("create_tax_rate", "failed to create tax rate", err)
	}

	return r.GetTaxRate(ctx, newRate.Name)
}

func (r *TaxRateRepository) GetTaxRate(ctx context.Context, name string) (*tax.Rate, error) {
	var rate tax.Rate
	err := r.getExecutor().QueryRowContext(ctx,
		`SELECT name, node_id, rate, description FROM tax WHERE name = $1`, name).
		Scan(&rate.Name, &rate.NodeID, &rate.Rate, &rate.Description)
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_tax_rate", relationaldb.ErrTaxRateNotFound, "TAX_RATE_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_tax_rate", "failed to query tax rate", err)
	}

	return &rate, nil
}

func (r *TaxRateRepository) ListTaxRates(ctx context.Context, nodeID int64) ([]tax.Rate, error) {
	rows, err := r.getExecutor().QueryContext(ctx,
		`SELECT name, node_id, rate, description FROM tax WHERE node_id = $1 ORDER BY name`, nodeID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_tax_rates", "failed to query tax rates", err)
	}
	defer rows.Close()

	var rates []tax.Rate
	for rows.Next() {
		var rate tax.Rate
		if err := rows.Scan(&rate.Name, &rate.NodeID, &rate.Rate, &rate.Description); err != nil {
			return nil, relationaldb.NewQueryError("list_tax_rates", "failed to scan tax rate", err)
		}
		rates = append(rates, rate)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_tax_rates", "failed to iterate tax rates", err)
	}

	return rates, nil
}

// UpdateTaxRate keeps the name fixed: bookings and products reference
// rates by name, so renaming would rewrite history. Only the numeric
// rate and description are mutable.
func (r *TaxRateRepository) UpdateTaxRate(ctx context.Context, name string, update tax.NewRate) (*tax.Rate, error) {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE tax SET rate = $1, description = $2 WHERE name = $3`,
		update.Rate, update.Description, name)
	if err != nil {
		return nil, classifyError("update_tax_rate", "failed to update tax rate", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, relationaldb.NewQueryError("update_tax_rate", "failed to check update result", err)
	}
	if affected == 0 {
		return nil, relationaldb.NewNotFoundError("update_tax_rate", relationaldb.ErrTaxRateNotFound, "TAX_RATE_NOT_FOUND")
	}

	return r.GetTaxRate(ctx, name)
}

func (r *TaxRateRepository) DeleteTaxRate(ctx context.Context, name string) error {
	result, err := r.getExecutor().ExecContext(ctx, `DELETE FROM tax WHERE name = $1`, name)
	if err != nil {
		return classifyError("delete_tax_rate", "failed to delete tax rate", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return relationaldb.NewQueryError("delete_tax_rate", "failed to check delete result", err)
	}
	if affected == 0 {
		return relationaldb.NewNotFoundError("delete_tax_rate", relationaldb.ErrTaxRateNotFound, "TAX_RATE_NOT_FOUND")
	}

	return nil
}
