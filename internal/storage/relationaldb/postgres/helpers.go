package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/account"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// executor abstracts over *sql.DB and *sql.Tx so every repository can
// run standalone or inside a transaction context.
type executor interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Tag uids are 8-byte chip ids stored as NUMERIC(20) since they may
// exceed the signed 64-bit range. They travel as decimal strings on the
// wire in both directions.

func tagUIDArg(uid uint64) string {
	return strconv.FormatUint(uid, 10)
}

func parseTagUID(s string) (uint64, error) {
	uid, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, relationaldb.NewDataError("parse_tag_uid", "malformed tag uid", relationaldb.ErrInvalidDataFormat)
	}
	return uid, nil
}

func tagUIDArgPtr(uid *uint64) *string {
	if uid == nil {
		return nil
	}
	s := tagUIDArg(*uid)
	return &s
}

func ptrInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func ptrString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func ptrTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}

func ptrTagUID(v sql.NullString) (*uint64, error) {
	if !v.Valid {
		return nil, nil
	}
	uid, err := parseTagUID(v.String)
	if err != nil {
		return nil, err
	}
	return &uid, nil
}

func ptrUUID(v uuid.NullUUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	return &v.UUID
}

func ptrDecimal(v decimal.NullDecimal) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	return &v.Decimal
}

func ptrRestriction(v sql.NullString) *account.Restriction {
	if !v.Valid {
		return nil
	}
	r := account.Restriction(v.String)
	return &r
}

// classifyError maps constraint violations reported by the driver onto
// the matching constraint error codes; everything else becomes a query
// error.
func classifyError(operation, message string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return relationaldb.NewConstraintError(operation, pqErr.Message, err).WithCode("UNIQUE_VIOLATION")
		case "23503":
			return relationaldb.NewConstraintError(operation, pqErr.Message, err).WithCode("FOREIGN_KEY_VIOLATION")
		case "23502":
			return relationaldb.NewConstraintError(operation, pqErr.Message, err).WithCode("NOT_NULL_VIOLATION")
		case "23514":
			return relationaldb.NewConstraintError(operation, pqErr.Message, err).WithCode("CHECK_VIOLATION")
		}
	}
	return relationaldb.NewQueryError(operation, message, err)
}
