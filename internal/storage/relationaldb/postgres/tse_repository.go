package postgres

import (
	"context"
	"database/sql"

	"github.com/stustapay/stustapayd/internal/core/tse"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// TSERepository implements the TSERepository interface for PostgreSQL
type TSERepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewTSERepository creates a new PostgreSQL TSE repository
func NewTSERepository(db *sql.DB) *TSERepository {
	return &TSERepository{db: db}
}

// NewTSERepositoryWithTx creates a new PostgreSQL TSE repository within a transaction
func NewTSERepositoryWithTx(tx *sql.Tx) *TSERepository {
	return &TSERepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *TSERepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

const tseColumns = `id, node_id, name, status, serial, ws_url, ws_timeout, password`

func (r *TSERepository) CreateTSE(ctx context.Context, nodeID int64, newTSE tse.NewTSE) (*tse.TSE, error) {
	t, err := scanTSE(r.getExecutor().QueryRowContext(ctx,
		`INSERT INTO tse (node_id, name, serial, ws_url, ws_timeout, password)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+tseColumns,
		nodeID, newTSE.Name, newTSE.Serial, newTSE.WsURL, newTSE.WsTimeout, newTSE.Password))
	if err != nil {
		return nil, classifyError("create_tse", "failed to create tse", err)
	}

	return t, nil
}

func (r *TSERepository) GetTSE(ctx context.Context, id int64) (*tse.TSE, error) {
	t, err := scanTSE(r.getExecutor().QueryRowContext(ctx,
		`SELECT `+tseColumns+` FROM tse WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_tse", relationaldb.ErrTSENotFound, "TSE_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_tse", "failed to query tse", err)
	}

	return t, nil
}

func (r *TSERepository) ListTSEs(ctx context.Context, nodeID int64) ([]tse.TSE, error) {
	rows, err := r.getExecutor().QueryContext(ctx,
		`SELECT `+tseColumns+` FROM tse WHERE node_id = $1 ORDER BY name`, nodeID)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_tses", "failed to query tses", err)
	}
	defer rows.Close()

	var tses []tse.TSE
	for rows.Next() {
		t, err := scanTSE(rows)
		if err != nil {
			return nil, relationaldb.NewQueryError("list_tses", "failed to scan tse", err)
		}
		tses = append(tses, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_tses", "failed to iterate tses", err)
	}

	return tses, nil
}

// UpdateTSE changes connection data only; the status is driven by the
// signer process reporting in, not by admin edits.
func (r *TSERepository) UpdateTSE(ctx context.Context, id int64, update tse.UpdateTSE) (*tse.TSE, error) {
	t, err := scanTSE(r.getExecutor().QueryRowContext(ctx,
		`UPDATE tse SET name = $1, ws_url = $2, ws_timeout = $3, password = $4
		 WHERE id = $5
		 RETURNING `+tseColumns,
		update.Name, update.WsURL, update.WsTimeout, update.Password, id))
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("update_tse", relationaldb.ErrTSENotFound, "TSE_NOT_FOUND")
	}
	if err != nil {
		return nil, classifyError("update_tse", "failed to update tse", err)
	}

	return t, nil
}

func scanTSE(row scanner) (*tse.TSE, error) {
	var t tse.TSE
	var serial sql.NullString

	err := row.Scan(&t.ID, &t.NodeID, &t.Name, &t.Status, &serial,
		&t.WsURL, &t.WsTimeout, &t.Password)
	if err != nil {
		return nil, err
	}

	t.Serial = ptrString(serial)
	return &t, nil
}
