// Package service implements the application operations on top of the
// repository layer: terminal order flows, till registration and login,
// cashier close-out, catalog and user management, the customer portal
// and payout runs. Each service holds its dependencies as struct
// fields; the acting principal (admin user, till, customer) is always
// an explicit parameter, never ambient state.
package service

import (
	"errors"
	"fmt"

	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// errRollback forces WithTransaction to roll back after a successful
// dry run; callers translate it back into success.
var errRollback = errors.New("dry run rollback")

// requirePrivileges rejects the call when the acting user is missing or
// holds none of the given privileges. With no privileges listed it only
// checks that someone is authenticated.
func requirePrivileges(current *user.CurrentUser, privileges ...user.Privilege) error {
	if current == nil {
		return errs.Unauthenticated()
	}
	if len(privileges) == 0 || current.HasAnyPrivilege(privileges...) {
		return nil
	}
	return errs.AccessDenied(fmt.Sprintf("user is missing the required privileges %v", privileges))
}

// wrapNotFound converts a missing-row failure from the storage layer
// into the client-facing not found error; everything else surfaces as
// an internal error.
func wrapNotFound(err error, entity string, id interface{}) error {
	if relationaldb.IsNotFound(err) {
		return errs.NotFound(entity, id)
	}
	return errs.Internal(fmt.Sprintf("loading %s", entity), err)
}

// asServiceError passes already-classified errors through unchanged and
// wraps anything else as internal.
func asServiceError(op string, err error) error {
	var se *errs.Error
	if errors.As(err, &se) {
		return err
	}
	return errs.Internal(op, err)
}

// bookingError maps failures of the ledger booking primitive. The funds
// guard inside book_transaction is the hard backstop behind the
// service-level balance checks; it must keep its error kind so clients
// can distinguish it from plain validation.
func bookingError(err error) error {
	switch {
	case errors.Is(err, relationaldb.ErrInsufficientFunds):
		return errs.New(errs.KindInsufficientFunds, "insufficient funds on source account")
	case relationaldb.IsNotFound(err):
		return errs.InvalidArgument("booking references an unknown account or tax rate")
	default:
		return errs.Internal("booking transaction", err)
	}
}
