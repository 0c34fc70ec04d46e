// Package account defines the double-entry account model. Every cent in
// the system lives on exactly one account row; balances move only through
// the ledger primitive.
package account

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind discriminates what an account balance represents.
type Kind string

const (
	KindPrivate      Kind = "private"
	KindCashier      Kind = "cashier"
	KindCashRegister Kind = "cash_register"
	KindCashVault    Kind = "cash_vault"
	KindCashEntry    Kind = "cash_entry"
	KindSumUp        Kind = "sumup"
	KindImbalance    Kind = "imbalance"
	KindSepaExit     Kind = "sepa_exit"
	KindDonationExit Kind = "donation_exit"
	KindVirtualTill  Kind = "virtual_till"
	KindSaleExit     Kind = "sale_exit"
)

// Reserved account ids, seeded by schema initialization. Accessor
// functions below are the only place the rest of the code reads them.
const (
	CashVaultID    int64 = 1
	CashEntryID    int64 = 2
	SumUpID        int64 = 3
	ImbalanceID    int64 = 4
	SepaExitID     int64 = 5
	DonationExitID int64 = 6
	SaleExitID     int64 = 7
)

// Restriction limits which products a tag holder may buy.
type Restriction string

const (
	RestrictionUnder16 Restriction = "under_16"
	RestrictionUnder18 Restriction = "under_18"
)

// Restrictions lists all valid values, ordered from most to least strict.
func Restrictions() []Restriction {
	return []Restriction{RestrictionUnder16, RestrictionUnder18}
}

// Valid reports whether r is a known restriction value.
func (r Restriction) Valid() bool {
	return r == RestrictionUnder16 || r == RestrictionUnder18
}

// Blocks reports whether a tag restricted to r may not buy a product
// restricted to product. A tag restricted under_16 is blocked by both
// under_16 and under_18 products; a tag restricted under_18 only by
// under_18 products.
func (r Restriction) Blocks(product Restriction) bool {
	switch r {
	case RestrictionUnder16:
		return product == RestrictionUnder16 || product == RestrictionUnder18
	case RestrictionUnder18:
		return product == RestrictionUnder18
	default:
		return false
	}
}

// Account is one ledger account.
type Account struct {
	ID          int64           `json:"id"`
	NodeID      int64           `json:"node_id"`
	Kind        Kind            `json:"type"`
	Name        string          `json:"name"`
	Comment     string          `json:"comment"`
	Balance     decimal.Decimal `json:"balance"`
	Vouchers    int64           `json:"vouchers"`
	UserTagID   *int64          `json:"user_tag_id"`
	UserTagUID  *uint64         `json:"user_tag_uid"`
	Restriction *Restriction    `json:"restriction"`
}

// FormatTagUID renders a tag uid the way receipts, references and
// exports display it: zero-padded uppercase hex with a 0x prefix.
func FormatTagUID(uid uint64) string {
	return fmt.Sprintf("0x%08X", uid)
}

// UserTag is an NFC chip handed to a visitor or staff member.
type UserTag struct {
	ID          int64        `json:"id"`
	NodeID      int64        `json:"node_id"`
	UID         uint64       `json:"uid"`
	Pin         string       `json:"pin"`
	Restriction *Restriction `json:"restriction"`
}

// Transaction is one committed ledger row. Rows are written only by the
// book_transaction database function and are immutable. The tax rate is
// frozen at booking time so later catalog edits cannot rewrite history.
type Transaction struct {
	ID              int64           `json:"id"`
	OrderID         *int64          `json:"order_id"`
	SourceAccountID int64           `json:"source_account"`
	TargetAccountID int64           `json:"target_account"`
	Amount          decimal.Decimal `json:"amount"`
	TaxRateName     string          `json:"tax_name"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	BookedAt        time.Time       `json:"booked_at"`
	Description     string          `json:"description"`
}
