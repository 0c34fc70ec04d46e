// Package customer defines the customer portal model: the customer view
// of an account plus the bank data handed in for payouts.
package customer

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/account"
)

var emailPattern = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+$`)

// ValidEmail reports whether addr passes the portal's address check.
func ValidEmail(addr string) bool {
	return emailPattern.MatchString(addr)
}

// Customer is the portal view of a private account.
type Customer struct {
	account.Account
	Info *Info `json:"info"`
}

// Info holds the payout-relevant data a customer entered, keyed by the
// customer account.
type Info struct {
	CustomerAccountID int64            `json:"customer_account_id"`
	IBAN              *string          `json:"iban"`
	AccountName       *string          `json:"account_name"`
	Email             *string          `json:"email"`
	Donation          *decimal.Decimal `json:"donation"`
	DonateAll         bool             `json:"donate_all"`
	HasEnteredInfo    bool             `json:"has_entered_info"`
	PayoutRunID       *int64           `json:"payout_run_id"`
	PayoutError       *string          `json:"payout_error"`
	PayoutExport      bool             `json:"payout_export"`
}

// EffectiveDonation resolves the amount withheld from the payout: the
// whole balance when donating everything, otherwise the entered value.
func (i *Info) EffectiveDonation(balance decimal.Decimal) decimal.Decimal {
	if i == nil {
		return decimal.Zero
	}
	if i.DonateAll {
		return balance
	}
	if i.Donation != nil {
		return *i.Donation
	}
	return decimal.Zero
}

// Bank is the payload customers submit to receive their residual
// balance via SEPA.
type Bank struct {
	IBAN        string          `json:"iban"`
	AccountName string          `json:"account_name"`
	Email       string          `json:"email"`
	Donation    decimal.Decimal `json:"donation"`
}

// LoginResult carries the portal session token and the customer it
// belongs to.
type LoginResult struct {
	Customer Customer `json:"customer"`
	Token    string   `json:"token"`
}

// PayoutInfo tells a customer whether their balance is scheduled.
type PayoutInfo struct {
	InPayoutRun bool       `json:"in_payout_run"`
	PayoutDate  *time.Time `json:"payout_date"`
}
