package postgres

import (
	"context"
	"database/sql"

	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// ConfigRepository implements the ConfigRepository interface for PostgreSQL
type ConfigRepository struct {
	db *sql.DB
	tx *sql.Tx // Optional transaction context
}

// NewConfigRepository creates a new PostgreSQL config repository
func NewConfigRepository(db *sql.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// NewConfigRepositoryWithTx creates a new PostgreSQL config repository within a transaction
func NewConfigRepositoryWithTx(tx *sql.Tx) *ConfigRepository {
	return &ConfigRepository{tx: tx}
}

// getExecutor returns the appropriate executor (db or tx)
func (r *ConfigRepository) getExecutor() executor {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *ConfigRepository) GetConfigEntry(ctx context.Context, key string) (*relationaldb.ConfigEntry, error) {
	var entry relationaldb.ConfigEntry
	var value sql.NullString

	err := r.getExecutor().QueryRowContext(ctx,
		`SELECT key, value FROM config WHERE key = $1`, key).Scan(&entry.Key, &value)
	if err == sql.ErrNoRows {
		return nil, relationaldb.NewNotFoundError("get_config_entry", relationaldb.ErrConfigKeyNotFound, "CONFIG_KEY_NOT_FOUND")
	}
	if err != nil {
		return nil, relationaldb.NewQueryError("get_config_entry", "failed to query config entry", err)
	}

	entry.Value = value.String
	return &entry, nil
}

func (r *ConfigRepository) ListConfigEntries(ctx context.Context) ([]relationaldb.ConfigEntry, error) {
	rows, err := r.getExecutor().QueryContext(ctx,
		`SELECT key, value FROM config ORDER BY key`)
	if err != nil {
		return nil, relationaldb.NewQueryError("list_config_entries", "failed to query config entries", err)
	}
	defer rows.Close()

	var entries []relationaldb.ConfigEntry
	for rows.Next() {
		var entry relationaldb.ConfigEntry
		var value sql.NullString
		if err := rows.Scan(&entry.Key, &value); err != nil {
			return nil, relationaldb.NewQueryError("list_config_entries", "failed to scan config entry", err)
		}
		entry.Value = value.String
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, relationaldb.NewQueryError("list_config_entries", "failed to iterate config entries", err)
	}

	return entries, nil
}

// SetConfigEntry only updates known keys: the key set is fixed by the
// seed data, so a typo fails instead of inventing configuration.
func (r *ConfigRepository) SetConfigEntry(ctx context.Context, key, value string) (*relationaldb.ConfigEntry, error) {
	result, err := r.getExecutor().ExecContext(ctx,
		`UPDATE config SET value = $2 WHERE key = $1`, key, value)
	if err != nil {
		return nil, relationaldb.NewQueryError("set_config_entry", "failed to update config entry", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, relationaldb.NewQueryError("set_config_entry", "failed to check update result", err)
	}
	if affected == 0 {
		return nil, relationaldb.NewNotFoundError("set_config_entry", relationaldb.ErrConfigKeyNotFound, "CONFIG_KEY_NOT_FOUND")
	}

	return r.GetConfigEntry(ctx, key)
}
