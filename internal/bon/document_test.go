package bon

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stustapay/stustapayd/internal/core/order"
	"github.com/stustapay/stustapayd/internal/core/product"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testProducts() map[int64]product.Product {
	beerPrice := dec("4.20")
	depositPrice := dec("2.00")
	return map[int64]product.Product{
		10: {ID: 10, Name: "Helles 0.5l", Price: &beerPrice, TaxRateName: "ust", TaxRate: dec("0.19")},
		11: {ID: 11, Name: "Pfand", Price: &depositPrice, TaxRateName: "none", TaxRate: decimal.Zero},
	}
}

func doneOrder() *order.Order {
	bookedAt := time.Date(2024, 6, 21, 18, 30, 0, 0, time.UTC)
	return &order.Order{
		ID:            42,
		UUID:          uuid.MustParse("8f14e45f-ceea-467f-a8da-9ae2f9b0a6b1"),
		Type:          order.TypeSale,
		Status:        order.StatusDone,
		PaymentMethod: order.PaymentMethodTag,
		CashierID:     3,
		TillID:        5,
		ZNr:           17,
		BookedAt:      &bookedAt,
		ItemCount:     2,
		ValueSum:      dec("10.40"),
		ValueTax:      dec("1.34"),
		ValueNoTax:    dec("9.06"),
		LineItems: []order.LineItem{
			{OrderID: 42, ItemID: 0, ProductID: 10, Quantity: 2, Price: dec("4.20"), TaxRateName: "ust", TaxRate: dec("0.19")},
			{OrderID: 42, ItemID: 1, ProductID: 11, Quantity: 1, Price: dec("2.00"), TaxRateName: "none", TaxRate: decimal.Zero},
		},
	}
}

func TestBuildDocument(t *testing.T) {
	cfg := DisplayConfig{
		Title:    "Fest 2024",
		Issuer:   "Festverein e.V.",
		Currency: "€",
	}

	doc, err := BuildDocument(doneOrder(), testProducts(), "Bierinsel 1", "Anna", cfg)
	require.NoError(t, err)

	assert.Equal(t, int64(42), doc.OrderID)
	assert.Equal(t, order.TypeSale, doc.OrderType)
	assert.Equal(t, order.PaymentMethodTag, doc.PaymentMethod)
	assert.Equal(t, int64(17), doc.ZNr)
	assert.Equal(t, "Bierinsel 1", doc.TillName)
	assert.Equal(t, "Anna", doc.CashierName)
	assert.Equal(t, cfg, doc.Config)

	require.Len(t, doc.Lines, 2)
	assert.Equal(t, "Helles 0.5l", doc.Lines[0].ProductName)
	assert.Equal(t, int64(2), doc.Lines[0].Quantity)
	assert.True(t, doc.Lines[0].TotalPrice.Equal(dec("8.40")))
	assert.Equal(t, "Pfand", doc.Lines[1].ProductName)

	// The frozen order totals flow through untouched.
	assert.True(t, doc.TotalPrice.Equal(dec("10.40")))
	assert.True(t, doc.TotalTax.Equal(dec("1.34")))
	assert.True(t, doc.TotalNoTax.Equal(dec("9.06")))
}

func TestBuildDocumentTaxAggregation(t *testing.T) {
	doc, err := BuildDocument(doneOrder(), testProducts(), "till", "cashier", DisplayConfig{})
	require.NoError(t, err)

	// Sorted by tax name: none before ust.
	require.Len(t, doc.TaxLines, 2)

	none := doc.TaxLines[0]
	assert.Equal(t, "none", none.TaxName)
	assert.True(t, none.Total.Equal(dec("2.00")))
	assert.True(t, none.TotalTax.IsZero())
	assert.True(t, none.TotalNoTax.Equal(dec("2.00")))

	ust := doc.TaxLines[1]
	assert.Equal(t, "ust", ust.TaxName)
	assert.True(t, ust.Total.Equal(dec("8.40")), "got %s", ust.Total)
	// 8.40 * 0.19/1.19 = 1.3412... rounds to 1.34
	assert.True(t, ust.TotalTax.Equal(dec("1.34")), "got %s", ust.TotalTax)
	assert.True(t, ust.TotalNoTax.Equal(dec("7.06")))
}

func TestBuildDocumentSameTaxCollapses(t *testing.T) {
	o := doneOrder()
	o.LineItems = []order.LineItem{
		{ProductID: 10, Quantity: 1, Price: dec("4.20"), TaxRateName: "ust", TaxRate: dec("0.19")},
		{ProductID: 10, Quantity: 3, Price: dec("4.20"), TaxRateName: "ust", TaxRate: dec("0.19")},
	}

	doc, err := BuildDocument(o, testProducts(), "till", "cashier", DisplayConfig{})
	require.NoError(t, err)

	require.Len(t, doc.TaxLines, 1)
	assert.True(t, doc.TaxLines[0].Total.Equal(dec("16.80")))
}

func TestBuildDocumentRejectsPending(t *testing.T) {
	o := doneOrder()
	o.Status = order.StatusPending

	_, err := BuildDocument(o, testProducts(), "till", "cashier", DisplayConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not done")
}

func TestBuildDocumentRejectsMissingBookedAt(t *testing.T) {
	o := doneOrder()
	o.BookedAt = nil

	_, err := BuildDocument(o, testProducts(), "till", "cashier", DisplayConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "booking time")
}

func TestBuildDocumentRejectsUnknownProduct(t *testing.T) {
	o := doneOrder()
	o.LineItems[0].ProductID = 999

	_, err := BuildDocument(o, testProducts(), "till", "cashier", DisplayConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown product")
}

func TestDocumentKey(t *testing.T) {
	assert.Equal(t, "bon/42", DocumentKey(42))
}
