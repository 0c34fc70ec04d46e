package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stustapay/stustapayd/internal/core/account"
	"github.com/stustapay/stustapayd/internal/core/order"
	"github.com/stustapay/stustapayd/internal/core/product"
	"github.com/stustapay/stustapayd/internal/core/till"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// orderFixture wires an order service against the fake repositories
// with a fully permissive till profile and a cashier holding a
// register, the configuration every order type can run under.
type orderFixture struct {
	f       *fakeDB
	svc     *OrderService
	pub     *recordingPublisher
	till    *till.Till
	cashier *user.User
	current *user.CurrentUser
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	f := newFakeDB()
	prof := &till.Profile{
		ID: f.id(), NodeID: 1, Name: "full service", LayoutID: 1,
		AllowTopUp: true, AllowCashOut: true, AllowTicketSale: true,
	}
	f.profiles[prof.ID] = prof
	tl := f.addTill("Weißbierinsel", prof.ID)
	cashier := f.addCashier("finn", "0", true)
	role := f.addRole("cashier", user.PrivilegeCashier, user.PrivilegeSupervisedTerminalLogin)
	pub := &recordingPublisher{}
	return &orderFixture{
		f:       f,
		svc:     NewOrderService(f, nopLogger(), pub),
		pub:     pub,
		till:    tl,
		cashier: cashier,
		current: cashierCurrent(cashier, role.ID),
	}
}

// createAndBook runs the two-phase terminal flow in one go.
func (fx *orderFixture) createAndBook(t *testing.T, req order.NewOrder) *order.CompletedOrder {
	t.Helper()
	ctx := context.Background()
	pending, err := fx.svc.CreateOrder(ctx, fx.till, fx.current, req)
	require.NoError(t, err)
	completed, err := fx.svc.BookOrder(ctx, fx.till, fx.current, pending.ID)
	require.NoError(t, err)
	return completed
}

func (fx *orderFixture) balance(t *testing.T, accountID int64) decimal.Decimal {
	t.Helper()
	acc, ok := fx.f.accounts[accountID]
	require.True(t, ok, "account %d must exist", accountID)
	return acc.Balance
}

func (fx *orderFixture) ledgerSum(t *testing.T) decimal.Decimal {
	t.Helper()
	sum, err := fx.f.Ledger().SumBalances(context.Background())
	require.NoError(t, err)
	return sum
}

func topUpRequest(tagUID uint64, amount string) order.NewOrder {
	price := dec(amount)
	return order.NewOrder{
		UUID:           uuid.New(),
		Type:           order.TypeTopUpCash,
		PaymentMethod:  order.PaymentMethodCash,
		CustomerTagUID: tagUID,
		Positions: []order.NewOrderPosition{
			{ProductID: product.TopUpID, Quantity: 1, Price: &price},
		},
	}
}

func TestOrderTopUpThenSale(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	guest := fx.f.addCustomer(0x1337, "0")
	beer := fx.f.addProduct("Helles 0.5l", "4.20", "ust", nil)
	deposit := fx.f.addProduct("Pfand", "2.00", "none", nil)

	completed := fx.createAndBook(t, topUpRequest(0x1337, "20.00"))
	assert.True(t, completed.OldBalance.IsZero())
	assert.True(t, completed.NewBalance.Equal(dec("20.00")), "got %s", completed.NewBalance)
	assert.True(t, fx.balance(t, guest.ID).Equal(dec("20.00")))
	// the cash entered the drawer of the acting cashier
	assert.True(t, fx.balance(t, *fx.cashier.CashierAccountID).Equal(dec("20.00")))

	sale := order.NewOrder{
		UUID:           uuid.New(),
		Type:           order.TypeSale,
		PaymentMethod:  order.PaymentMethodTag,
		CustomerTagUID: 0x1337,
		Positions: []order.NewOrderPosition{
			{ProductID: beer.ID, Quantity: 2},
			{ProductID: deposit.ID, Quantity: 2},
		},
	}
	completed = fx.createAndBook(t, sale)
	assert.True(t, completed.OldBalance.Equal(dec("20.00")))
	assert.True(t, completed.NewBalance.Equal(dec("7.60")), "got %s", completed.NewBalance)
	assert.True(t, fx.balance(t, guest.ID).Equal(dec("7.60")))

	booked, err := fx.svc.GetTerminalOrder(ctx, fx.till, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDone, booked.Status)
	require.NotNil(t, booked.BookedAt)
	assert.Equal(t, int64(2), booked.ItemCount)
	assert.True(t, booked.ValueSum.Equal(dec("12.40")), "sum %s", booked.ValueSum)
	assert.True(t, booked.ValueTax.Equal(dec("1.34")), "tax %s", booked.ValueTax)
	assert.True(t, booked.ValueNoTax.Equal(dec("11.06")), "notax %s", booked.ValueNoTax)

	// every booking is a zero-sum transfer, so the ledger total stays flat
	assert.True(t, fx.ledgerSum(t).IsZero())

	// both order types are receipt eligible and were queued for the bon worker
	assert.Len(t, fx.f.bons, 2)
	assert.Len(t, fx.f.bonNotified, 2)
	assert.Len(t, fx.pub.booked, 2)
	assert.Equal(t, order.TypeSale, fx.pub.booked[1].Type)
}

func TestOrderSaleAgeRestriction(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	guest := fx.f.addCustomer(0xBEEF, "50.00")
	restriction := account.RestrictionUnder18
	guest.Restriction = &restriction
	schnaps := fx.f.addProduct("Obstler 2cl", "3.50", "ust", nil)
	schnaps.Restrictions = []account.Restriction{account.RestrictionUnder18}
	cola := fx.f.addProduct("Spezi", "3.00", "ust", nil)

	_, err := fx.svc.CreateOrder(ctx, fx.till, fx.current, order.NewOrder{
		UUID:           uuid.New(),
		Type:           order.TypeSale,
		PaymentMethod:  order.PaymentMethodTag,
		CustomerTagUID: 0xBEEF,
		Positions: []order.NewOrderPosition{
			{ProductID: cola.ID, Quantity: 1},
			{ProductID: schnaps.ID, Quantity: 1},
		},
	})
	require.Error(t, err)
	assert.True(t, errs.IsAgeRestriction(err))

	var svcErr *errs.Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, []int64{schnaps.ID}, svcErr.Details["product_ids"])

	// nothing was persisted or booked
	assert.Empty(t, fx.f.orders)
	assert.True(t, fx.balance(t, guest.ID).Equal(dec("50.00")))
}

func TestOrderSaleInsufficientFunds(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	fx.f.addCustomer(0xCAFE, "5.00")
	beer := fx.f.addProduct("Helles 0.5l", "6.00", "ust", nil)

	_, err := fx.svc.CreateOrder(ctx, fx.till, fx.current, order.NewOrder{
		UUID:           uuid.New(),
		Type:           order.TypeSale,
		PaymentMethod:  order.PaymentMethodTag,
		CustomerTagUID: 0xCAFE,
		Positions:      []order.NewOrderPosition{{ProductID: beer.ID, Quantity: 1}},
	})
	require.Error(t, err)
	assert.True(t, errs.IsInsufficientFunds(err))

	var svcErr *errs.Error
	require.True(t, errors.As(err, &svcErr))
	needed, ok := svcErr.Details["needed_fund"].(decimal.Decimal)
	require.True(t, ok)
	available, ok := svcErr.Details["available_fund"].(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, needed.Equal(dec("6.00")), "needed %s", needed)
	assert.True(t, available.Equal(dec("5.00")), "available %s", available)
}

func TestOrderCreateIdempotentAndBookOnce(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	fx.f.addCustomer(0x1111, "10.00")
	beer := fx.f.addProduct("Helles 0.5l", "4.20", "ust", nil)

	req := order.NewOrder{
		UUID:           uuid.New(),
		Type:           order.TypeSale,
		PaymentMethod:  order.PaymentMethodTag,
		CustomerTagUID: 0x1111,
		Positions:      []order.NewOrderPosition{{ProductID: beer.ID, Quantity: 1}},
	}

	first, err := fx.svc.CreateOrder(ctx, fx.till, fx.current, req)
	require.NoError(t, err)
	second, err := fx.svc.CreateOrder(ctx, fx.till, fx.current, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "a replayed uuid must not create a second order")
	assert.Len(t, fx.f.orders, 1)

	_, err = fx.svc.BookOrder(ctx, fx.till, fx.current, first.ID)
	require.NoError(t, err)

	_, err = fx.svc.BookOrder(ctx, fx.till, fx.current, first.ID)
	require.Error(t, err)
	assert.True(t, errs.IsAlreadyFinished(err))

	var svcErr *errs.Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, first.ID, svcErr.Details["order_id"])

	// the single booking went through exactly once
	assert.Len(t, fx.pub.booked, 1)
}

func TestOrderCancel(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	guest := fx.f.addCustomer(0x2222, "10.00")
	beer := fx.f.addProduct("Helles 0.5l", "4.20", "ust", nil)
	req := order.NewOrder{
		UUID:           uuid.New(),
		Type:           order.TypeSale,
		PaymentMethod:  order.PaymentMethodTag,
		CustomerTagUID: 0x2222,
		Positions:      []order.NewOrderPosition{{ProductID: beer.ID, Quantity: 1}},
	}
	pending, err := fx.svc.CreateOrder(ctx, fx.till, fx.current, req)
	require.NoError(t, err)

	require.NoError(t, fx.svc.CancelOrder(ctx, fx.till, fx.current, pending.ID))
	assert.True(t, fx.balance(t, guest.ID).Equal(dec("10.00")))

	stored := fx.f.orders[pending.ID]
	require.NotNil(t, stored)
	assert.Equal(t, order.StatusCancelled, stored.Status)

	// neither booking nor cancelling works on a cancelled order
	_, err = fx.svc.BookOrder(ctx, fx.till, fx.current, pending.ID)
	assert.True(t, errs.IsAlreadyFinished(err))
	err = fx.svc.CancelOrder(ctx, fx.till, fx.current, pending.ID)
	assert.True(t, errs.IsAlreadyFinished(err))
}

func TestOrderCheckPreviewPersistsNothing(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	guest := fx.f.addCustomer(0x3333, "15.00")
	beer := fx.f.addProduct("Helles 0.5l", "4.20", "ust", nil)

	preview, err := fx.svc.CheckOrder(ctx, fx.till, fx.current, order.NewOrder{
		UUID:           uuid.New(),
		Type:           order.TypeSale,
		PaymentMethod:  order.PaymentMethodTag,
		CustomerTagUID: 0x3333,
		Positions:      []order.NewOrderPosition{{ProductID: beer.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.True(t, preview.OldBalance.Equal(dec("15.00")))
	assert.True(t, preview.NewBalance.Equal(dec("6.60")), "got %s", preview.NewBalance)

	assert.Empty(t, fx.f.orders, "a preview must not create an order")
	assert.True(t, fx.balance(t, guest.ID).Equal(dec("15.00")))
	assert.Equal(t, 1, fx.f.rollbacks)
	assert.Equal(t, 0, fx.f.commits)
}

func TestOrderPayOut(t *testing.T) {
	t.Run("full balance by default", func(t *testing.T) {
		fx := newOrderFixture(t)
		guest := fx.f.addCustomer(0x4444, "20.00")
		// drawer holds enough cash to pay out from
		drawer := fx.f.accounts[*fx.cashier.CashierAccountID]
		drawer.Balance = dec("50.00")

		completed := fx.createAndBook(t, order.NewOrder{
			UUID:           uuid.New(),
			Type:           order.TypePayOut,
			PaymentMethod:  order.PaymentMethodCash,
			CustomerTagUID: 0x4444,
			Positions:      []order.NewOrderPosition{{ProductID: product.PayOutID, Quantity: 1}},
		})
		assert.True(t, completed.OldBalance.Equal(dec("20.00")))
		assert.True(t, completed.NewBalance.IsZero(), "got %s", completed.NewBalance)
		assert.True(t, fx.balance(t, guest.ID).IsZero())
		assert.True(t, fx.balance(t, drawer.ID).Equal(dec("30.00")), "drawer %s", drawer.Balance)
		assert.True(t, fx.ledgerSum(t).IsZero())
	})

	t.Run("explicit partial amount", func(t *testing.T) {
		fx := newOrderFixture(t)
		guest := fx.f.addCustomer(0x4445, "20.00")
		amount := dec("-5.00")

		completed := fx.createAndBook(t, order.NewOrder{
			UUID:           uuid.New(),
			Type:           order.TypePayOut,
			PaymentMethod:  order.PaymentMethodCash,
			CustomerTagUID: 0x4445,
			Positions: []order.NewOrderPosition{
				{ProductID: product.PayOutID, Quantity: 1, Price: &amount},
			},
		})
		assert.True(t, completed.NewBalance.Equal(dec("15.00")), "got %s", completed.NewBalance)
		assert.True(t, fx.balance(t, guest.ID).Equal(dec("15.00")))
	})

	t.Run("positive amount rejected", func(t *testing.T) {
		fx := newOrderFixture(t)
		fx.f.addCustomer(0x4446, "20.00")
		amount := dec("5.00")

		_, err := fx.svc.CreateOrder(context.Background(), fx.till, fx.current, order.NewOrder{
			UUID:           uuid.New(),
			Type:           order.TypePayOut,
			PaymentMethod:  order.PaymentMethodCash,
			CustomerTagUID: 0x4446,
			Positions: []order.NewOrderPosition{
				{ProductID: product.PayOutID, Quantity: 1, Price: &amount},
			},
		})
		assert.True(t, errs.IsInvalidArgument(err))
	})

	t.Run("more than the balance rejected", func(t *testing.T) {
		fx := newOrderFixture(t)
		fx.f.addCustomer(0x4447, "5.00")
		amount := dec("-10.00")

		_, err := fx.svc.CreateOrder(context.Background(), fx.till, fx.current, order.NewOrder{
			UUID:           uuid.New(),
			Type:           order.TypePayOut,
			PaymentMethod:  order.PaymentMethodCash,
			CustomerTagUID: 0x4447,
			Positions: []order.NewOrderPosition{
				{ProductID: product.PayOutID, Quantity: 1, Price: &amount},
			},
		})
		assert.True(t, errs.IsInsufficientFunds(err))
	})
}

func TestOrderTicketSale(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	// a fresh wristband: tag exists, account does not
	fx.f.addTag(0x5555, "")
	ticket := fx.f.addProduct("Eintritt", "12.00", "ust", nil)
	initialTopUp := dec("8.00")

	completed := fx.createAndBook(t, order.NewOrder{
		UUID:           uuid.New(),
		Type:           order.TypeTicket,
		PaymentMethod:  order.PaymentMethodCash,
		CustomerTagUID: 0x5555,
		Positions:      []order.NewOrderPosition{{ProductID: ticket.ID, Quantity: 1}},
		InitialTopUp:   &initialTopUp,
	})
	// the ticket price leaves again, the initial top up stays
	assert.True(t, completed.NewBalance.Equal(dec("8.00")), "got %s", completed.NewBalance)

	acc, err := fx.f.Account().GetAccountByTagUID(ctx, 0x5555)
	require.NoError(t, err, "the ticket sale must create the customer account")
	assert.True(t, acc.Balance.Equal(dec("8.00")))

	// the full 20.00 cash went into the drawer
	assert.True(t, fx.balance(t, *fx.cashier.CashierAccountID).Equal(dec("20.00")))
	assert.True(t, fx.ledgerSum(t).IsZero())

	booked, err := fx.svc.GetTerminalOrder(ctx, fx.till, completed.ID)
	require.NoError(t, err)
	require.Len(t, booked.LineItems, 2)
	assert.True(t, booked.ValueSum.Equal(dec("20.00")))

	assert.Len(t, fx.pub.booked, 1)
	assert.Contains(t, fx.f.bons, completed.ID)
}

func TestOrderSaleWithVouchers(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	guest := fx.f.addCustomer(0x6666, "10.00")
	guest.Vouchers = 3
	beer := fx.f.addProduct("Helles 0.5l", "4.20", "ust", nil)
	one := int64(1)
	beer.PriceInVouchers = &one

	completed := fx.createAndBook(t, order.NewOrder{
		UUID:           uuid.New(),
		Type:           order.TypeSale,
		PaymentMethod:  order.PaymentMethodTag,
		CustomerTagUID: 0x6666,
		Positions:      []order.NewOrderPosition{{ProductID: beer.ID, Quantity: 2}},
	})
	// two beers at one voucher each redeem two of the three vouchers,
	// discounting 2 * 2.50 off the 8.40 gross
	assert.Equal(t, int64(2), completed.UsedVouchers)
	assert.Equal(t, int64(3), completed.OldVouchers)
	assert.Equal(t, int64(1), completed.NewVouchers)
	assert.True(t, completed.NewBalance.Equal(dec("6.60")), "got %s", completed.NewBalance)

	assert.Equal(t, int64(1), guest.Vouchers)
	assert.True(t, fx.balance(t, guest.ID).Equal(dec("6.60")))

	booked, err := fx.svc.GetTerminalOrder(ctx, fx.till, completed.ID)
	require.NoError(t, err)
	require.Len(t, booked.LineItems, 2)
	assert.Equal(t, product.DiscountID, booked.LineItems[1].ProductID)
	assert.True(t, booked.LineItems[1].TotalPrice().Equal(dec("-5.00")))
}

func TestOrderGates(t *testing.T) {
	ctx := context.Background()

	t.Run("profile without top up", func(t *testing.T) {
		fx := newOrderFixture(t)
		fx.f.addCustomer(0x7777, "0")
		saleOnly := &till.Profile{ID: fx.f.id(), NodeID: 1, Name: "sale only", LayoutID: 1}
		fx.f.profiles[saleOnly.ID] = saleOnly
		restricted := fx.f.addTill("Bierstand", saleOnly.ID)

		_, err := fx.svc.CreateOrder(ctx, restricted, fx.current, topUpRequest(0x7777, "10.00"))
		require.Error(t, err)
		assert.True(t, errs.IsAccessDenied(err))
	})

	t.Run("cashier privilege required", func(t *testing.T) {
		fx := newOrderFixture(t)
		fx.f.addCustomer(0x7778, "0")
		bare := &user.CurrentUser{User: *fx.cashier}

		_, err := fx.svc.CreateOrder(ctx, fx.till, bare, topUpRequest(0x7778, "10.00"))
		assert.True(t, errs.IsAccessDenied(err))
	})

	t.Run("cash handling needs a register", func(t *testing.T) {
		fx := newOrderFixture(t)
		fx.f.addCustomer(0x7779, "0")
		noDrawer := fx.f.addCashier("lisa", "0", false)
		role := fx.f.addRole("cashier2", user.PrivilegeCashier)
		current := cashierCurrent(noDrawer, role.ID)

		_, err := fx.svc.CreateOrder(ctx, fx.till, current, topUpRequest(0x7779, "10.00"))
		require.Error(t, err)
		assert.True(t, errs.IsInvalidArgument(err))
	})

	t.Run("transfer types are internal", func(t *testing.T) {
		fx := newOrderFixture(t)
		_, err := fx.svc.CreateOrder(ctx, fx.till, fx.current, order.NewOrder{
			UUID: uuid.New(), Type: order.TypeMoneyTransfer,
		})
		assert.True(t, errs.IsInvalidArgument(err))
	})

	t.Run("uuid required", func(t *testing.T) {
		fx := newOrderFixture(t)
		_, err := fx.svc.CreateOrder(ctx, fx.till, fx.current, order.NewOrder{Type: order.TypeSale})
		assert.True(t, errs.IsInvalidArgument(err))
	})

	t.Run("unknown customer tag", func(t *testing.T) {
		fx := newOrderFixture(t)
		beer := fx.f.addProduct("Helles 0.5l", "4.20", "ust", nil)
		_, err := fx.svc.CreateOrder(ctx, fx.till, fx.current, order.NewOrder{
			UUID:           uuid.New(),
			Type:           order.TypeSale,
			PaymentMethod:  order.PaymentMethodTag,
			CustomerTagUID: 0xDEAD,
			Positions:      []order.NewOrderPosition{{ProductID: beer.ID, Quantity: 1}},
		})
		assert.True(t, errs.IsNotFound(err))
	})
}

func TestOrderTillScoping(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	fx.f.addCustomer(0x8888, "10.00")
	beer := fx.f.addProduct("Helles 0.5l", "4.20", "ust", nil)
	pending, err := fx.svc.CreateOrder(ctx, fx.till, fx.current, order.NewOrder{
		UUID:           uuid.New(),
		Type:           order.TypeSale,
		PaymentMethod:  order.PaymentMethodTag,
		CustomerTagUID: 0x8888,
		Positions:      []order.NewOrderPosition{{ProductID: beer.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	other := fx.f.addTill("Cocktailbar", fx.till.ActiveProfileID)
	_, err = fx.svc.BookOrder(ctx, other, fx.current, pending.ID)
	assert.True(t, errs.IsNotFound(err), "another till must not book the order")
	_, err = fx.svc.GetTerminalOrder(ctx, other, pending.ID)
	assert.True(t, errs.IsNotFound(err))

	// the owning till still can
	_, err = fx.svc.BookOrder(ctx, fx.till, fx.current, pending.ID)
	require.NoError(t, err)
}

func TestOrderListFilters(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	guest := fx.f.addCustomer(0x9999, "0")
	beer := fx.f.addProduct("Helles 0.5l", "4.20", "ust", nil)
	fx.createAndBook(t, topUpRequest(0x9999, "20.00"))
	fx.createAndBook(t, order.NewOrder{
		UUID:           uuid.New(),
		Type:           order.TypeSale,
		PaymentMethod:  order.PaymentMethodTag,
		CustomerTagUID: 0x9999,
		Positions:      []order.NewOrderPosition{{ProductID: beer.ID, Quantity: 1}},
	})

	adminUser := fx.f.addUser("admin", nil)
	current := admin(adminUser)

	all, err := fx.svc.ListOrders(ctx, current, relationaldb.OrderFilter{NodeID: 1})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	sales, err := fx.svc.ListOrders(ctx, current, relationaldb.OrderFilter{
		NodeID: 1, Types: []order.Type{order.TypeSale},
	})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, order.TypeSale, sales[0].Type)

	byCustomer, err := fx.svc.ListCustomerOrders(ctx, current, guest.ID)
	require.NoError(t, err)
	assert.Len(t, byCustomer, 2)

	transactions, err := fx.svc.ListOrderTransactions(ctx, current, sales[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, transactions)
}
