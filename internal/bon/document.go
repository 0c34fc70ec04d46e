// Package bon renders receipt documents for finished orders and keeps
// them generated in the background. Orders announce themselves through
// the postgres bon channel; the worker listens, renders the document
// into the docstore and marks the bookkeeping row.
package bon

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/order"
	"github.com/stustapay/stustapayd/internal/core/product"
)

// DisplayConfig carries the event-level header fields printed on every
// receipt, read from the runtime config table.
type DisplayConfig struct {
	Title              string `json:"title"`
	Issuer             string `json:"issuer"`
	Address            string `json:"address"`
	UstID              string `json:"ust_id"`
	Currency           string `json:"currency"`
	CurrencyIdentifier string `json:"currency_identifier"`
}

// Line is one printed receipt line.
type Line struct {
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	TaxName     string          `json:"tax_name"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

// TaxLine aggregates the order's totals for one tax rate.
type TaxLine struct {
	TaxName    string          `json:"tax_name"`
	TaxRate    decimal.Decimal `json:"tax_rate"`
	Total      decimal.Decimal `json:"total"`
	TotalTax   decimal.Decimal `json:"total_tax"`
	TotalNoTax decimal.Decimal `json:"total_no_tax"`
}

// Document is the rendered receipt stored in the docstore.
type Document struct {
	OrderID       int64               `json:"order_id"`
	OrderUUID     uuid.UUID           `json:"order_uuid"`
	OrderType     order.Type          `json:"order_type"`
	PaymentMethod order.PaymentMethod `json:"payment_method"`
	BookedAt      time.Time           `json:"booked_at"`
	ZNr           int64               `json:"z_nr"`

	TillName    string `json:"till_name"`
	CashierName string `json:"cashier_name"`

	Config DisplayConfig `json:"config"`

	Lines    []Line    `json:"lines"`
	TaxLines []TaxLine `json:"tax_lines"`

	TotalPrice decimal.Decimal `json:"total_price"`
	TotalTax   decimal.Decimal `json:"total_tax"`
	TotalNoTax decimal.Decimal `json:"total_no_tax"`
}

// DocumentKey returns the docstore key for an order's receipt.
func DocumentKey(orderID int64) string {
	return fmt.Sprintf("bon/%d", orderID)
}

// BuildDocument renders the receipt for a finished order. The products
// map must cover every product referenced by the order's line items;
// the order totals come from the frozen order row, not from
// re-aggregation.
func BuildDocument(o *order.Order, products map[int64]product.Product, tillName, cashierName string, cfg DisplayConfig) (*Document, error) {
	if o.Status != order.StatusDone {
		return nil, fmt.Errorf("order %d is %s, not done", o.ID, o.Status)
	}
	if o.BookedAt == nil {
		return nil, fmt.Errorf("order %d has no booking time", o.ID)
	}

	doc := &Document{
		OrderID:       o.ID,
		OrderUUID:     o.UUID,
		OrderType:     o.Type,
		PaymentMethod: o.PaymentMethod,
		BookedAt:      *o.BookedAt,
		ZNr:           o.ZNr,
		TillName:      tillName,
		CashierName:   cashierName,
		Config:        cfg,
		Lines:         make([]Line, 0, len(o.LineItems)),
		TotalPrice:    o.ValueSum,
		TotalTax:      o.ValueTax,
		TotalNoTax:    o.ValueNoTax,
	}

	byTax := make(map[string]*TaxLine)
	for _, li := range o.LineItems {
		p, ok := products[li.ProductID]
		if !ok {
			return nil, fmt.Errorf("order %d references unknown product %d", o.ID, li.ProductID)
		}

		doc.Lines = append(doc.Lines, Line{
			ProductName: p.Name,
			Quantity:    li.Quantity,
			Price:       li.Price,
			TotalPrice:  li.TotalPrice(),
			TaxName:     li.TaxRateName,
			TaxRate:     li.TaxRate,
		})

		tl, ok := byTax[li.TaxRateName]
		if !ok {
			tl = &TaxLine{TaxName: li.TaxRateName, TaxRate: li.TaxRate}
			byTax[li.TaxRateName] = tl
		}
		tl.Total = tl.Total.Add(li.TotalPrice())
		tl.TotalTax = tl.TotalTax.Add(li.TotalTax())
	}

	doc.TaxLines = make([]TaxLine, 0, len(byTax))
	for _, tl := range byTax {
		tl.Total = tl.Total.Round(2)
		tl.TotalTax = tl.TotalTax.Round(2)
		tl.TotalNoTax = tl.Total.Sub(tl.TotalTax)
		doc.TaxLines = append(doc.TaxLines, *tl)
	}
	sort.Slice(doc.TaxLines, func(i, j int) bool {
		return doc.TaxLines[i].TaxName < doc.TaxLines[j].TaxName
	})

	return doc, nil
}
