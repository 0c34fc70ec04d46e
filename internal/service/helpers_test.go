package service

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/order"
	"github.com/stustapay/stustapayd/internal/core/user"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nopLogger() zerolog.Logger { return zerolog.Nop() }

// admin returns an acting user carrying every privilege, the way an
// administration API request materializes one.
func admin(u *user.User) *user.CurrentUser {
	return &user.CurrentUser{User: *u, Privileges: user.AllPrivileges()}
}

// cashierCurrent returns the acting user a terminal login under a
// cashier role produces.
func cashierCurrent(u *user.User, roleID int64) *user.CurrentUser {
	return &user.CurrentUser{
		User:           *u,
		ActiveRoleID:   &roleID,
		ActiveRoleName: "cashier",
		Privileges:     []user.Privilege{user.PrivilegeCashier, user.PrivilegeSupervisedTerminalLogin},
	}
}

// recordingPublisher captures booked-order events for assertions.
type recordingPublisher struct {
	booked []*order.Order
}

func (p *recordingPublisher) OrderBooked(o *order.Order) {
	p.booked = append(p.booked, o)
}
