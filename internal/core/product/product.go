// Package product defines the product registry model, including the
// reserved bookkeeping products and the locked-product update rule.
package product

import (
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/account"
)

// Reserved product ids, seeded by schema initialization. They implement
// bookkeeping orders (discounts, top-ups, transfers) and are locked.
const (
	DiscountID        int64 = 1
	TopUpID           int64 = 2
	PayOutID          int64 = 3
	MoneyTransferID   int64 = 4
	MoneyDifferenceID int64 = 5
)

// Product is one sellable or bookkeeping product.
type Product struct {
	ID              int64                 `json:"id"`
	NodeID          int64                 `json:"node_id"`
	Name            string                `json:"name"`
	Price           *decimal.Decimal      `json:"price"`
	FixedPrice      bool                  `json:"fixed_price"`
	PriceInVouchers *int64                `json:"price_in_vouchers"`
	TaxRateName     string                `json:"tax_name"`
	TaxRate         decimal.Decimal       `json:"tax_rate"`
	Restrictions    []account.Restriction `json:"restrictions"`
	IsLocked        bool                  `json:"is_locked"`
	IsReturnable    bool                  `json:"is_returnable"`
	TargetAccountID *int64                `json:"target_account_id"`
}

// NewProduct is the payload for creating or updating a product.
type NewProduct struct {
	Name            string                `json:"name"`
	Price           *decimal.Decimal      `json:"price"`
	FixedPrice      bool                  `json:"fixed_price"`
	PriceInVouchers *int64                `json:"price_in_vouchers"`
	TaxRateName     string                `json:"tax_name"`
	Restrictions    []account.Restriction `json:"restrictions"`
	IsLocked        bool                  `json:"is_locked"`
	IsReturnable    bool                  `json:"is_returnable"`
	TargetAccountID *int64                `json:"target_account_id"`
}

// Validate checks the structural price invariant: a fixed-price product
// carries a price, a free-price product must not.
func (p NewProduct) Validate() bool {
	if p.FixedPrice {
		return p.Price != nil
	}
	return p.Price == nil
}

// LockedAttributeChanged reports whether update touches an attribute a
// locked product forbids changing. Cosmetic attributes (the name) stay
// editable.
func LockedAttributeChanged(current Product, update NewProduct) bool {
	if !decimalPtrEqual(current.Price, update.Price) {
		return true
	}
	if current.FixedPrice != update.FixedPrice {
		return true
	}
	if !int64PtrEqual(current.PriceInVouchers, update.PriceInVouchers) {
		return true
	}
	if current.TaxRateName != update.TaxRateName {
		return true
	}
	if !restrictionsEqual(current.Restrictions, update.Restrictions) {
		return true
	}
	if current.IsLocked != update.IsLocked {
		return true
	}
	if current.IsReturnable != update.IsReturnable {
		return true
	}
	if !int64PtrEqual(current.TargetAccountID, update.TargetAccountID) {
		return true
	}
	return false
}

func decimalPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func restrictionsEqual(a, b []account.Restriction) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[account.Restriction]int, len(a))
	for _, r := range a {
		seen[r]++
	}
	for _, r := range b {
		seen[r]--
		if seen[r] < 0 {
			return false
		}
	}
	return true
}
