package order

import (
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/account"
	"github.com/stustapay/stustapayd/internal/core/product"
	"github.com/stustapay/stustapayd/internal/core/tax"
	"github.com/stustapay/stustapayd/internal/errs"
)

// BookingIdentifier keys one aggregated ledger movement of an order.
type BookingIdentifier struct {
	SourceAccountID int64
	TargetAccountID int64
	TaxRateName     string
}

// BookingMap aggregates amounts per (source, target, tax) key. The
// ledger primitive is invoked once per entry; negative amounts are
// flipped there so persisted rows stay positive.
type BookingMap map[BookingIdentifier]decimal.Decimal

// Add accumulates amount under the given key.
func (m BookingMap) Add(source, target int64, taxName string, amount decimal.Decimal) {
	key := BookingIdentifier{SourceAccountID: source, TargetAccountID: target, TaxRateName: taxName}
	m[key] = m[key].Add(amount)
}

// ResolvedItem is a requested position joined with its product and the
// effective unit price.
type ResolvedItem struct {
	Product  product.Product
	Quantity int64
	Price    decimal.Decimal
}

// ResolveItem applies the fixed/free price rule: fixed-price products
// take their registry price and the requested quantity; free-price
// products take the requested price with quantity one.
func ResolveItem(p product.Product, pos NewOrderPosition) (ResolvedItem, error) {
	if p.FixedPrice {
		if pos.Price != nil {
			return ResolvedItem{}, errs.InvalidArgumentf("price set for fixed-price product %d", p.ID)
		}
		if pos.Quantity <= 0 {
			return ResolvedItem{}, errs.InvalidArgumentf("quantity for product %d must be positive", p.ID)
		}
		return ResolvedItem{Product: p, Quantity: pos.Quantity, Price: *p.Price}, nil
	}
	if pos.Price == nil {
		return ResolvedItem{}, errs.InvalidArgumentf("price required for free-price product %d", p.ID)
	}
	return ResolvedItem{Product: p, Quantity: 1, Price: *pos.Price}, nil
}

// lineItemFor freezes an item into a line item. Returnable products
// book without tax regardless of their configured rate.
func lineItemFor(itemID int64, item ResolvedItem) LineItem {
	taxName, taxRate := item.Product.TaxRateName, item.Product.TaxRate
	if item.Product.IsReturnable {
		taxName, taxRate = tax.NameNone, decimal.Zero
	}
	return LineItem{
		ItemID:      itemID,
		ProductID:   item.Product.ID,
		Quantity:    item.Quantity,
		Price:       item.Price,
		TaxRateName: taxName,
		TaxRate:     taxRate,
	}
}

// Prepared is a fully synthesised order ready for persistence: line
// items, aggregated bookings and the resulting customer balance
// transition.
type Prepared struct {
	Type          Type
	PaymentMethod PaymentMethod
	LineItems     []LineItem
	Bookings      BookingMap
	OldBalance    decimal.Decimal
	NewBalance    decimal.Decimal
	OldVouchers   int64
	NewVouchers   int64
	UsedVouchers  int64
}

// Values returns the rounded totals over the prepared line items.
func (p *Prepared) Values() (sum, taxSum, noTax decimal.Decimal) {
	return Values(p.LineItems)
}

// SaleInput carries everything a sale synthesis needs, fully resolved.
type SaleInput struct {
	Customer        account.Account
	Items           []ResolvedItem
	DiscountProduct product.Product
	PricePerVoucher decimal.Decimal
	// DefaultTargetID receives revenue of products without an explicit
	// target account.
	DefaultTargetID int64
}

// PrepareSale synthesises a sale order: age restriction check, voucher
// discount, funds check and the per-tax booking aggregation.
func PrepareSale(in SaleInput) (*Prepared, error) {
	if len(in.Items) == 0 {
		return nil, errs.InvalidArgument("a sale requires at least one position")
	}

	var restricted []int64
	for _, item := range in.Items {
		if isReservedProduct(item.Product.ID) {
			return nil, errs.InvalidArgumentf("product %d cannot be sold directly", item.Product.ID)
		}
		if in.Customer.Restriction != nil && blockedByRestriction(item.Product, *in.Customer.Restriction) {
			restricted = append(restricted, item.Product.ID)
		}
	}
	if len(restricted) > 0 {
		return nil, errs.AgeRestriction(restricted)
	}

	items := make([]LineItem, 0, len(in.Items)+1)
	for i, item := range in.Items {
		items = append(items, lineItemFor(int64(i), item))
	}

	usedVouchers := usableVouchers(in.Customer.Vouchers, in.Items)
	if usedVouchers > 0 {
		discount := in.PricePerVoucher.Mul(decimal.NewFromInt(usedVouchers)).Neg()
		items = append(items, LineItem{
			ItemID:      int64(len(items)),
			ProductID:   in.DiscountProduct.ID,
			Quantity:    1,
			Price:       discount,
			TaxRateName: in.DiscountProduct.TaxRateName,
			TaxRate:     in.DiscountProduct.TaxRate,
		})
	}

	sum, _, _ := Values(items)
	if in.Customer.Balance.LessThan(sum) {
		return nil, errs.InsufficientFunds(sum, in.Customer.Balance)
	}

	bookings := make(BookingMap)
	for i, li := range items {
		target := in.DefaultTargetID
		p := in.DiscountProduct
		if i < len(in.Items) {
			p = in.Items[i].Product
		}
		if p.TargetAccountID != nil {
			target = *p.TargetAccountID
		}
		bookings.Add(in.Customer.ID, target, li.TaxRateName, li.TotalPrice())
	}

	return &Prepared{
		Type:          TypeSale,
		PaymentMethod: PaymentMethodTag,
		LineItems:     items,
		Bookings:      bookings,
		OldBalance:    in.Customer.Balance,
		NewBalance:    in.Customer.Balance.Sub(sum),
		OldVouchers:   in.Customer.Vouchers,
		NewVouchers:   in.Customer.Vouchers - usedVouchers,
		UsedVouchers:  usedVouchers,
	}, nil
}

// usableVouchers caps the customer's voucher balance by what the items
// can absorb.
func usableVouchers(held int64, items []ResolvedItem) int64 {
	var spendable int64
	for _, item := range items {
		if item.Product.PriceInVouchers != nil {
			spendable += item.Quantity * *item.Product.PriceInVouchers
		}
	}
	if held < spendable {
		return held
	}
	return spendable
}

func blockedByRestriction(p product.Product, r account.Restriction) bool {
	for _, pr := range p.Restrictions {
		if r.Blocks(pr) {
			return true
		}
	}
	return false
}

func isReservedProduct(id int64) bool {
	switch id {
	case product.DiscountID, product.TopUpID, product.PayOutID,
		product.MoneyTransferID, product.MoneyDifferenceID:
		return true
	}
	return false
}

// PrepareTopUpCash synthesises a cash top-up: the vault funds the
// customer and the taken-in cash raises the cashier's drawer.
func PrepareTopUpCash(customer account.Account, cashierAccountID int64, topUp product.Product, amount decimal.Decimal) (*Prepared, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errs.InvalidArgument("a top-up amount must be positive")
	}
	li := LineItem{
		ProductID:   topUp.ID,
		Quantity:    1,
		Price:       amount,
		TaxRateName: topUp.TaxRateName,
		TaxRate:     topUp.TaxRate,
	}
	bookings := make(BookingMap)
	bookings.Add(account.CashVaultID, customer.ID, li.TaxRateName, amount)
	bookings.Add(account.CashEntryID, cashierAccountID, tax.NameNone, amount)

	return &Prepared{
		Type:          TypeTopUpCash,
		PaymentMethod: PaymentMethodCash,
		LineItems:     []LineItem{li},
		Bookings:      bookings,
		OldBalance:    customer.Balance,
		NewBalance:    customer.Balance.Add(amount),
		OldVouchers:   customer.Vouchers,
		NewVouchers:   customer.Vouchers,
	}, nil
}

// PrepareTopUpSumUp synthesises a card top-up funded by the sumup
// clearing account.
func PrepareTopUpSumUp(customer account.Account, topUp product.Product, amount decimal.Decimal) (*Prepared, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errs.InvalidArgument("a top-up amount must be positive")
	}
	li := LineItem{
		ProductID:   topUp.ID,
		Quantity:    1,
		Price:       amount,
		TaxRateName: topUp.TaxRateName,
		TaxRate:     topUp.TaxRate,
	}
	bookings := make(BookingMap)
	bookings.Add(account.SumUpID, customer.ID, li.TaxRateName, amount)

	return &Prepared{
		Type:          TypeTopUpSumUp,
		PaymentMethod: PaymentMethodSumUp,
		LineItems:     []LineItem{li},
		Bookings:      bookings,
		OldBalance:    customer.Balance,
		NewBalance:    customer.Balance.Add(amount),
		OldVouchers:   customer.Vouchers,
		NewVouchers:   customer.Vouchers,
	}, nil
}

// PreparePayOut synthesises a cash-out, the mirror image of a cash
// top-up. The amount is the (non-positive) balance change of the
// customer.
func PreparePayOut(customer account.Account, cashierAccountID int64, payOut product.Product, amount decimal.Decimal) (*Prepared, error) {
	if amount.GreaterThan(decimal.Zero) {
		return nil, errs.InvalidArgument("a pay-out amount must not be positive")
	}
	paid := amount.Neg()
	if customer.Balance.LessThan(paid) {
		return nil, errs.InsufficientFunds(paid, customer.Balance)
	}
	li := LineItem{
		ProductID:   payOut.ID,
		Quantity:    1,
		Price:       amount,
		TaxRateName: payOut.TaxRateName,
		TaxRate:     payOut.TaxRate,
	}
	bookings := make(BookingMap)
	bookings.Add(customer.ID, account.CashVaultID, li.TaxRateName, paid)
	bookings.Add(cashierAccountID, account.CashEntryID, tax.NameNone, paid)

	return &Prepared{
		Type:          TypePayOut,
		PaymentMethod: PaymentMethodCash,
		LineItems:     []LineItem{li},
		Bookings:      bookings,
		OldBalance:    customer.Balance,
		NewBalance:    customer.Balance.Add(amount),
		OldVouchers:   customer.Vouchers,
		NewVouchers:   customer.Vouchers,
	}, nil
}

// TicketSaleInput carries a resolved entry ticket order: the tickets
// themselves plus an optional initial top-up, paid cash or by card.
type TicketSaleInput struct {
	Customer         account.Account
	CashierAccountID int64
	Tickets          []ResolvedItem
	InitialTopUp     decimal.Decimal
	PaymentMethod    PaymentMethod
	TopUpProduct     product.Product
	DefaultTargetID  int64
}

// PrepareTicketSale synthesises an entry ticket order: the paid total
// enters the customer account, the ticket price immediately leaves it
// towards the revenue accounts, so the initial top-up remains.
func PrepareTicketSale(in TicketSaleInput) (*Prepared, error) {
	if len(in.Tickets) == 0 {
		return nil, errs.InvalidArgument("a ticket sale requires at least one ticket")
	}
	if in.PaymentMethod != PaymentMethodCash && in.PaymentMethod != PaymentMethodSumUp {
		return nil, errs.InvalidArgument("tickets are paid cash or by card")
	}
	if in.InitialTopUp.IsNegative() {
		return nil, errs.InvalidArgument("the initial top-up amount cannot be negative")
	}

	items := make([]LineItem, 0, len(in.Tickets)+1)
	ticketSum := decimal.Zero
	for i, item := range in.Tickets {
		if isReservedProduct(item.Product.ID) {
			return nil, errs.InvalidArgumentf("product %d cannot be sold as ticket", item.Product.ID)
		}
		li := lineItemFor(int64(i), item)
		items = append(items, li)
		ticketSum = ticketSum.Add(li.TotalPrice())
	}
	if in.InitialTopUp.IsPositive() {
		items = append(items, LineItem{
			ItemID:      int64(len(items)),
			ProductID:   in.TopUpProduct.ID,
			Quantity:    1,
			Price:       in.InitialTopUp,
			TaxRateName: in.TopUpProduct.TaxRateName,
			TaxRate:     in.TopUpProduct.TaxRate,
		})
	}

	total := ticketSum.Add(in.InitialTopUp)
	bookings := make(BookingMap)
	switch in.PaymentMethod {
	case PaymentMethodCash:
		bookings.Add(account.CashVaultID, in.Customer.ID, tax.NameNone, total)
		bookings.Add(account.CashEntryID, in.CashierAccountID, tax.NameNone, total)
	case PaymentMethodSumUp:
		bookings.Add(account.SumUpID, in.Customer.ID, tax.NameNone, total)
	}
	for i, item := range in.Tickets {
		target := in.DefaultTargetID
		if item.Product.TargetAccountID != nil {
			target = *item.Product.TargetAccountID
		}
		bookings.Add(in.Customer.ID, target, items[i].TaxRateName, items[i].TotalPrice())
	}

	return &Prepared{
		Type:          TypeTicket,
		PaymentMethod: in.PaymentMethod,
		LineItems:     items,
		Bookings:      bookings,
		OldBalance:    in.Customer.Balance,
		NewBalance:    in.Customer.Balance.Add(in.InitialTopUp),
		OldVouchers:   in.Customer.Vouchers,
		NewVouchers:   in.Customer.Vouchers,
	}, nil
}

// PrepareMoneyTransfer wraps caller-supplied bookings into a transfer
// order with a single tracking line item.
func PrepareMoneyTransfer(transfer product.Product, amount decimal.Decimal, bookings BookingMap) *Prepared {
	if bookings == nil {
		bookings = make(BookingMap)
	}
	return &Prepared{
		Type:          TypeMoneyTransfer,
		PaymentMethod: PaymentMethodCash,
		LineItems: []LineItem{{
			ProductID:   transfer.ID,
			Quantity:    1,
			Price:       amount,
			TaxRateName: transfer.TaxRateName,
			TaxRate:     transfer.TaxRate,
		}},
		Bookings: bookings,
	}
}

// PrepareImbalance records a close-out cash difference against the
// imbalance account.
func PrepareImbalance(difference product.Product, cashierAccountID int64, imbalance decimal.Decimal) *Prepared {
	bookings := make(BookingMap)
	bookings.Add(cashierAccountID, account.ImbalanceID, difference.TaxRateName, imbalance.Neg())
	return &Prepared{
		Type:          TypeMoneyTransferImbalance,
		PaymentMethod: PaymentMethodCash,
		LineItems: []LineItem{{
			ProductID:   difference.ID,
			Quantity:    1,
			Price:       imbalance,
			TaxRateName: difference.TaxRateName,
			TaxRate:     difference.TaxRate,
		}},
		Bookings: bookings,
	}
}
