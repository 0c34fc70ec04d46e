// Package till defines points of sale and their business configuration:
// profiles, layouts, buttons, cash registers and stocking templates.
package till

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/user"
)

// VirtualTillID is the reserved till acting as counter-party for
// reconciliation and inter-till transfer orders.
const VirtualTillID int64 = 1

// Till is one logical point of sale. A till is either offered for
// registration (registration uuid set) or bound to a terminal device
// (session uuid set), never both.
type Till struct {
	ID                   int64      `json:"id"`
	NodeID               int64      `json:"node_id"`
	Name                 string     `json:"name"`
	Description          string     `json:"description"`
	ActiveProfileID      int64      `json:"active_profile_id"`
	ActiveUserID         *int64     `json:"active_user_id"`
	ActiveUserRoleID     *int64     `json:"active_user_role_id"`
	ActiveCashRegisterID *int64     `json:"active_cash_register_id"`
	RegistrationUUID     *uuid.UUID `json:"registration_uuid"`
	SessionUUID          *uuid.UUID `json:"session_uuid"`
	ZNr                  int64      `json:"z_nr"`
}

// IsRegistered reports whether a terminal currently holds a session on
// this till.
func (t *Till) IsRegistered() bool {
	return t.SessionUUID != nil
}

// NewTill is the payload for creating or updating a till.
type NewTill struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	ActiveProfileID int64  `json:"active_profile_id"`
}

// Profile restricts what a till may do and who may log in on it.
type Profile struct {
	ID              int64   `json:"id"`
	NodeID          int64   `json:"node_id"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	LayoutID        int64   `json:"layout_id"`
	AllowTopUp      bool    `json:"allow_top_up"`
	AllowCashOut    bool    `json:"allow_cash_out"`
	AllowTicketSale bool    `json:"allow_ticket_sale"`
	AllowedRoleIDs  []int64 `json:"allowed_role_ids"`
}

// NewProfile is the payload for creating or updating a till profile.
type NewProfile struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	LayoutID        int64   `json:"layout_id"`
	AllowTopUp      bool    `json:"allow_top_up"`
	AllowCashOut    bool    `json:"allow_cash_out"`
	AllowTicketSale bool    `json:"allow_ticket_sale"`
	AllowedRoleIDs  []int64 `json:"allowed_role_ids"`
}

// Layout orders buttons on the terminal screen.
type Layout struct {
	ID          int64   `json:"id"`
	NodeID      int64   `json:"node_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ButtonIDs   []int64 `json:"button_ids"`
}

// NewLayout is the payload for creating or updating a till layout.
type NewLayout struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ButtonIDs   []int64 `json:"button_ids"`
}

// Button groups one or more products behind a single terminal key.
type Button struct {
	ID         int64   `json:"id"`
	NodeID     int64   `json:"node_id"`
	Name       string  `json:"name"`
	ProductIDs []int64 `json:"product_ids"`
}

// NewButton is the payload for creating or updating a till button.
type NewButton struct {
	Name       string  `json:"name"`
	ProductIDs []int64 `json:"product_ids"`
}

// CashRegister is a physical drawer. While bound to a cashier, its
// content must match the cashier account balance.
type CashRegister struct {
	ID     int64  `json:"id"`
	NodeID int64  `json:"node_id"`
	Name   string `json:"name"`
}

// CashRegisterStocking is a template describing the change money a
// register is stocked with at shift start. Bills are counted per note,
// coins per standard roll.
type CashRegisterStocking struct {
	ID             int64           `json:"id"`
	NodeID         int64           `json:"node_id"`
	Name           string          `json:"name"`
	Euro200        int64           `json:"euro200"`
	Euro100        int64           `json:"euro100"`
	Euro50         int64           `json:"euro50"`
	Euro20         int64           `json:"euro20"`
	Euro10         int64           `json:"euro10"`
	Euro5          int64           `json:"euro5"`
	Euro2          int64           `json:"euro2"`
	Euro1          int64           `json:"euro1"`
	Cent50         int64           `json:"cent50"`
	Cent20         int64           `json:"cent20"`
	Cent10         int64           `json:"cent10"`
	Cent5          int64           `json:"cent5"`
	Cent2          int64           `json:"cent2"`
	Cent1          int64           `json:"cent1"`
	VariableInEuro decimal.Decimal `json:"variable_in_euro"`
}

// Total returns the stocking value in euro. Bills count per note; coins
// count per standard roll (25 coins per 2/1 euro roll, 40 per 50/20/10
// cent roll, 50 per 5/2/1 cent roll).
func (s CashRegisterStocking) Total() decimal.Decimal {
	total := decimal.Zero
	add := func(count int64, value string) {
		total = total.Add(decimal.RequireFromString(value).Mul(decimal.NewFromInt(count)))
	}
	add(s.Euro200, "200")
	add(s.Euro100, "100")
	add(s.Euro50, "50")
	add(s.Euro20, "20")
	add(s.Euro10, "10")
	add(s.Euro5, "5")
	add(s.Euro2, "50")
	add(s.Euro1, "25")
	add(s.Cent50, "20")
	add(s.Cent20, "8")
	add(s.Cent10, "4")
	add(s.Cent5, "2.5")
	add(s.Cent2, "1")
	add(s.Cent1, "0.5")
	return total.Add(s.VariableInEuro)
}

// NewCashRegisterStocking is the payload for creating or updating a
// stocking template.
type NewCashRegisterStocking struct {
	Name           string          `json:"name"`
	Euro200        int64           `json:"euro200"`
	Euro100        int64           `json:"euro100"`
	Euro50         int64           `json:"euro50"`
	Euro20         int64           `json:"euro20"`
	Euro10         int64           `json:"euro10"`
	Euro5          int64           `json:"euro5"`
	Euro2          int64           `json:"euro2"`
	Euro1          int64           `json:"euro1"`
	Cent50         int64           `json:"cent50"`
	Cent20         int64           `json:"cent20"`
	Cent10         int64           `json:"cent10"`
	Cent5          int64           `json:"cent5"`
	Cent2          int64           `json:"cent2"`
	Cent1          int64           `json:"cent1"`
	VariableInEuro decimal.Decimal `json:"variable_in_euro"`
}

// TerminalButton is the button view sent to terminals: the price is the
// sum over the button's products.
type TerminalButton struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	Price           *decimal.Decimal `json:"price"`
	FixedPrice      bool             `json:"fixed_price"`
	PriceInVouchers *int64           `json:"price_in_vouchers"`
	IsReturnable    bool             `json:"is_returnable"`
	ProductIDs      []int64          `json:"product_ids"`
}

// TerminalConfig is everything a registered terminal needs to render
// its UI and authorize staff.
type TerminalConfig struct {
	ID                int64            `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	ProfileName       string           `json:"profile_name"`
	AllowTopUp        bool             `json:"allow_top_up"`
	AllowCashOut      bool             `json:"allow_cash_out"`
	AllowTicketSale   bool             `json:"allow_ticket_sale"`
	Buttons           []TerminalButton `json:"buttons"`
	AvailableRoles    []user.Role      `json:"available_roles"`
	SumUpAffiliateKey *string          `json:"sumup_affiliate_key"`
	TestMode          bool             `json:"test_mode"`
	TestModeMessage   string           `json:"test_mode_message"`
}

// RegistrationResult is returned by terminal registration.
type RegistrationResult struct {
	Till  Till   `json:"till"`
	Token string `json:"token"`
}

// CloseOut is the request to reconcile a cashier's shift.
type CloseOut struct {
	Comment                 string          `json:"comment"`
	ActualCashDrawerBalance decimal.Decimal `json:"actual_cash_drawer_balance"`
	ClosingOutUserID        int64           `json:"closing_out_user_id"`
}

// CloseOutResult reports the reconciliation outcome.
type CloseOutResult struct {
	CashierID int64           `json:"cashier_id"`
	Imbalance decimal.Decimal `json:"imbalance"`
}
