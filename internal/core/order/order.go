// Package order defines the order model and the per-type booking
// synthesis. Preparing an order is pure computation over resolved
// inputs; persisting and booking it is the order service's concern.
package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/tax"
)

// Type enumerates the order state machine variants.
type Type string

const (
	TypeSale                   Type = "sale"
	TypeTopUpCash              Type = "topup_cash"
	TypeTopUpSumUp             Type = "topup_sumup"
	TypePayOut                 Type = "pay_out"
	TypeMoneyTransfer          Type = "money_transfer"
	TypeMoneyTransferImbalance Type = "money_transfer_imbalance"
	TypeTicket                 Type = "ticket"
)

// IsTransfer reports whether orders of this type carry caller-supplied
// bookings instead of synthesised ones.
func (t Type) IsTransfer() bool {
	return t == TypeMoneyTransfer || t == TypeMoneyTransferImbalance
}

// ReceiptEligible reports whether a bon is generated for this type.
func (t Type) ReceiptEligible() bool {
	switch t {
	case TypeSale, TypeTopUpCash, TypeTopUpSumUp, TypePayOut, TypeTicket:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
)

// PaymentMethod records how an order was settled at the till.
type PaymentMethod string

const (
	PaymentMethodCash  PaymentMethod = "cash"
	PaymentMethodSumUp PaymentMethod = "sumup"
	PaymentMethodTag   PaymentMethod = "tag"
)

// LineItem is one position of an order. The price is the gross unit
// price; tax name and rate are frozen at order time.
type LineItem struct {
	OrderID     int64           `json:"order_id"`
	ItemID      int64           `json:"item_id"`
	ProductID   int64           `json:"product_id"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TaxRateName string          `json:"tax_name"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

// TotalPrice is quantity times gross unit price.
func (li LineItem) TotalPrice() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(li.Quantity))
}

// TotalTax is the tax contained in the total price.
func (li LineItem) TotalTax() decimal.Decimal {
	return tax.TaxOf(li.TotalPrice(), li.TaxRate)
}

// Order is one booked or pending order.
type Order struct {
	ID                int64           `json:"id"`
	UUID              uuid.UUID       `json:"uuid"`
	NodeID            int64           `json:"node_id"`
	Type              Type            `json:"order_type"`
	Status            Status          `json:"status"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	CashierID         int64           `json:"cashier_id"`
	TillID            int64           `json:"till_id"`
	CustomerAccountID *int64          `json:"customer_account_id"`
	CashRegisterID    *int64          `json:"cash_register_id"`
	ZNr               int64           `json:"z_nr"`
	BookedAt          *time.Time      `json:"booked_at"`
	ItemCount         int64           `json:"item_count"`
	ValueSum          decimal.Decimal `json:"value_sum"`
	ValueTax          decimal.Decimal `json:"value_tax"`
	ValueNoTax        decimal.Decimal `json:"value_notax"`
	LineItems         []LineItem      `json:"line_items"`
}

// Values computes the rounded order totals from line items: the gross
// sum, the contained tax and the net remainder. Rounding happens once
// per total, not per item.
func Values(items []LineItem) (sum, taxSum, noTax decimal.Decimal) {
	for _, li := range items {
		sum = sum.Add(li.TotalPrice())
		taxSum = taxSum.Add(li.TotalTax())
	}
	sum = sum.Round(2)
	taxSum = taxSum.Round(2)
	noTax = sum.Sub(taxSum)
	return sum, taxSum, noTax
}

// NewOrderPosition is one requested position of a terminal order.
type NewOrderPosition struct {
	ProductID int64            `json:"product_id"`
	Quantity  int64            `json:"quantity"`
	Price     *decimal.Decimal `json:"price"`
}

// NewOrder is the terminal request to open an order.
type NewOrder struct {
	UUID           uuid.UUID          `json:"uuid"`
	Type           Type               `json:"order_type"`
	PaymentMethod  PaymentMethod      `json:"payment_method"`
	CustomerTagUID uint64             `json:"customer_tag_uid"`
	Positions      []NewOrderPosition `json:"positions"`
	InitialTopUp   *decimal.Decimal   `json:"initial_top_up_amount"`
}

// CompletedOrder is the booking preview and confirm response: the order
// identity plus the balance transition of the customer account.
type CompletedOrder struct {
	ID           int64           `json:"id"`
	UUID         uuid.UUID       `json:"uuid"`
	OldBalance   decimal.Decimal `json:"old_balance"`
	NewBalance   decimal.Decimal `json:"new_balance"`
	OldVouchers  int64           `json:"old_voucher_balance"`
	NewVouchers  int64           `json:"new_voucher_balance"`
	UsedVouchers int64           `json:"used_vouchers"`
}

// Info identifies an order booked by an internal flow.
type Info struct {
	ID   int64     `json:"id"`
	UUID uuid.UUID `json:"uuid"`
}

// Bon tracks receipt generation for a done order.
type Bon struct {
	OrderID     int64      `json:"id"`
	Generated   bool       `json:"generated"`
	GeneratedAt *time.Time `json:"generated_at"`
	Error       *string    `json:"error"`
}

// OrderWithBon is the customer portal view of an order together with
// its receipt link, when one has been generated.
type OrderWithBon struct {
	Order
	BonGenerated bool    `json:"bon_generated"`
	BonURL       *string `json:"bon_url"`
}
