// Package user defines users, roles and the privilege set.
package user

import (
	"time"

	"github.com/shopspring/decimal"
)

// Privilege is one entry of the closed privilege set roles are built from.
type Privilege string

const (
	PrivilegeCashier                 Privilege = "cashier"
	PrivilegeCashierManagement       Privilege = "cashier_management"
	PrivilegeTillManagement          Privilege = "till_management"
	PrivilegeUserManagement          Privilege = "user_management"
	PrivilegeProductManagement       Privilege = "product_management"
	PrivilegeTaxRateManagement       Privilege = "tax_rate_management"
	PrivilegeNodeAdministration      Privilege = "node_administration"
	PrivilegeTerminalLogin           Privilege = "terminal_login"
	PrivilegeSupervisedTerminalLogin Privilege = "supervised_terminal_login"
	PrivilegeConfigManagement        Privilege = "config_management"
)

// AllPrivileges lists every known privilege.
func AllPrivileges() []Privilege {
	return []Privilege{
		PrivilegeCashier,
		PrivilegeCashierManagement,
		PrivilegeTillManagement,
		PrivilegeUserManagement,
		PrivilegeProductManagement,
		PrivilegeTaxRateManagement,
		PrivilegeNodeAdministration,
		PrivilegeTerminalLogin,
		PrivilegeSupervisedTerminalLogin,
		PrivilegeConfigManagement,
	}
}

// Valid reports whether p is a known privilege.
func (p Privilege) Valid() bool {
	for _, known := range AllPrivileges() {
		if p == known {
			return true
		}
	}
	return false
}

// Role groups privileges under a name.
type Role struct {
	ID         int64       `json:"id"`
	NodeID     int64       `json:"node_id"`
	Name       string      `json:"name"`
	Privileges []Privilege `json:"privileges"`
}

// NewRole is the payload for creating or updating a role.
type NewRole struct {
	Name       string      `json:"name"`
	Privileges []Privilege `json:"privileges"`
}

// User is a staff member. Cashiers additionally carry a cashier account
// (their drawer balance), a transport account and possibly a bound
// physical cash register.
type User struct {
	ID                 int64   `json:"id"`
	NodeID             int64   `json:"node_id"`
	Login              string  `json:"login"`
	DisplayName        string  `json:"display_name"`
	Description        string  `json:"description"`
	UserTagID          *int64  `json:"user_tag_id"`
	UserTagUID         *uint64 `json:"user_tag_uid"`
	CashierAccountID   *int64  `json:"cashier_account_id"`
	TransportAccountID *int64  `json:"transport_account_id"`
	CashRegisterID     *int64  `json:"cash_register_id"`
}

// NewUser is the payload for creating or updating a user.
type NewUser struct {
	Login       string  `json:"login"`
	DisplayName string  `json:"display_name"`
	Description string  `json:"description"`
	UserTagUID  *uint64 `json:"user_tag_uid"`
	Password    *string `json:"password"`
	RoleNames   []string `json:"role_names"`
}

// CurrentUser is a user materialized together with the role they are
// acting under and that role's privileges.
type CurrentUser struct {
	User
	ActiveRoleID   *int64      `json:"active_role_id"`
	ActiveRoleName string      `json:"active_role_name"`
	Privileges     []Privilege `json:"privileges"`
}

// HasPrivilege reports whether the active role carries p.
func (u *CurrentUser) HasPrivilege(p Privilege) bool {
	for _, held := range u.Privileges {
		if held == p {
			return true
		}
	}
	return false
}

// HasAnyPrivilege reports whether the active role carries at least one
// of the given privileges.
func (u *CurrentUser) HasAnyPrivilege(ps ...Privilege) bool {
	for _, p := range ps {
		if u.HasPrivilege(p) {
			return true
		}
	}
	return false
}

// Cashier is the management view of a user acting as cashier: the drawer
// balance is the balance of the cashier account.
type Cashier struct {
	User
	CashDrawerBalance decimal.Decimal `json:"cash_drawer_balance"`
}

// UserInfo is the terminal view of a user: the base record plus the
// drawer and transport balances a supervisor needs at the till.
type UserInfo struct {
	User
	CashDrawerBalance       *decimal.Decimal `json:"cash_drawer_balance"`
	TransportAccountBalance *decimal.Decimal `json:"transport_account_balance"`
	CashRegisterName        *string          `json:"cash_register_name"`
}

// CashierShift is one closed drawer period of a cashier. The imbalance
// is actual minus expected, so a shortfall is negative.
type CashierShift struct {
	ID                        int64           `json:"id"`
	CashierID                 int64           `json:"cashier_id"`
	StartedAt                 time.Time       `json:"started_at"`
	EndedAt                   time.Time       `json:"ended_at"`
	ActualCashDrawerBalance   decimal.Decimal `json:"actual_cash_drawer_balance"`
	ExpectedCashDrawerBalance decimal.Decimal `json:"expected_cash_drawer_balance"`
	CashDrawerImbalance       decimal.Decimal `json:"cash_drawer_imbalance"`
	Comment                   string          `json:"comment"`
	CloseOutOrderID           int64           `json:"close_out_order_id"`
	ImbalanceOrderID          int64           `json:"imbalance_order_id"`
	ClosingOutUserID          int64           `json:"closing_out_user_id"`
}

// NewCashierShift is the payload for persisting a close-out.
type NewCashierShift struct {
	CashierID                 int64
	StartedAt                 time.Time
	EndedAt                   time.Time
	ActualCashDrawerBalance   decimal.Decimal
	ExpectedCashDrawerBalance decimal.Decimal
	Comment                   string
	CloseOutOrderID           int64
	ImbalanceOrderID          int64
	ClosingOutUserID          int64
}

// Imbalance returns actual minus expected for the payload.
func (s NewCashierShift) Imbalance() decimal.Decimal {
	return s.ActualCashDrawerBalance.Sub(s.ExpectedCashDrawerBalance)
}

// ProductStats is the sold quantity of one product within a shift.
type ProductStats struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// CashierShiftStats aggregates what a cashier sold during a shift.
type CashierShiftStats struct {
	CashierID int64          `json:"cashier_id"`
	ShiftID   *int64         `json:"shift_id"`
	Products  []ProductStats `json:"products"`
}
