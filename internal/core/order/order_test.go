package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLineItemTotals(t *testing.T) {
	li := LineItem{Quantity: 2, Price: dec("4.20"), TaxRateName: "ust", TaxRate: dec("0.19")}

	assert.True(t, li.TotalPrice().Equal(dec("8.40")), "got %s", li.TotalPrice())
	assert.True(t, li.TotalTax().Round(2).Equal(dec("1.34")), "got %s", li.TotalTax())
}

func TestValuesBeerAndDeposit(t *testing.T) {
	items := []LineItem{
		{ItemID: 0, Quantity: 2, Price: dec("4.20"), TaxRateName: "ust", TaxRate: dec("0.19")},
		{ItemID: 1, Quantity: 2, Price: dec("2.00"), TaxRateName: "none", TaxRate: decimal.Zero},
	}

	sum, taxSum, noTax := Values(items)

	assert.True(t, sum.Equal(dec("12.40")), "sum %s", sum)
	assert.True(t, taxSum.Equal(dec("1.34")), "tax %s", taxSum)
	assert.True(t, noTax.Equal(dec("11.06")), "notax %s", noTax)
}

func TestValuesRoundsOncePerTotal(t *testing.T) {
	// three items whose per-item tax would each round down
	items := []LineItem{
		{Quantity: 1, Price: dec("1.01"), TaxRateName: "ust", TaxRate: dec("0.19")},
		{Quantity: 1, Price: dec("1.01"), TaxRateName: "ust", TaxRate: dec("0.19")},
		{Quantity: 1, Price: dec("1.01"), TaxRateName: "ust", TaxRate: dec("0.19")},
	}

	sum, taxSum, noTax := Values(items)

	require.True(t, sum.Equal(dec("3.03")))
	assert.True(t, sum.Equal(taxSum.Add(noTax)))
	assert.True(t, taxSum.Equal(dec("0.48")), "tax %s", taxSum)
}

func TestOrderTypeClassification(t *testing.T) {
	assert.True(t, TypeMoneyTransfer.IsTransfer())
	assert.True(t, TypeMoneyTransferImbalance.IsTransfer())
	assert.False(t, TypeSale.IsTransfer())

	assert.True(t, TypeSale.ReceiptEligible())
	assert.True(t, TypeTicket.ReceiptEligible())
	assert.False(t, TypeMoneyTransfer.ReceiptEligible())
	assert.False(t, TypeMoneyTransferImbalance.ReceiptEligible())
}
