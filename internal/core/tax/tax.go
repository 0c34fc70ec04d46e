// Package tax holds the tax rate registry model. Prices are gross; the
// contained tax of a gross amount p at rate r is p - p/(1+r).
package tax

import "github.com/shopspring/decimal"

// Well-known rate names seeded by schema initialization.
const (
	NameNone = "none"
	NameUst  = "ust"
	NameEust = "eust"
)

// Rate is one named tax rate.
type Rate struct {
	Name        string          `json:"name"`
	NodeID      int64           `json:"node_id"`
	Rate        decimal.Decimal `json:"rate"`
	Description string          `json:"description"`
}

// NewRate is the payload for creating or updating a tax rate.
type NewRate struct {
	Name        string          `json:"name"`
	Rate        decimal.Decimal `json:"rate"`
	Description string          `json:"description"`
}

// TaxOf returns the tax contained in the gross amount at the given rate,
// unrounded. Callers round once when aggregating.
func TaxOf(gross, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return decimal.Zero
	}
	return gross.Sub(gross.Div(decimal.NewFromInt(1).Add(rate)))
}
