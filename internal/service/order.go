package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/account"
	"github.com/stustapay/stustapayd/internal/core/order"
	"github.com/stustapay/stustapayd/internal/core/product"
	"github.com/stustapay/stustapayd/internal/core/tax"
	"github.com/stustapay/stustapayd/internal/core/till"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/metrics"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// EventPublisher receives order lifecycle notifications for live
// subscribers. Implementations must not block the booking path.
type EventPublisher interface {
	OrderBooked(o *order.Order)
}

// NopPublisher drops all events.
type NopPublisher struct{}

func (NopPublisher) OrderBooked(*order.Order) {}

// OrderService drives the order state machine: validate and create a
// pending order at the till, confirm it into ledger bookings, or
// cancel it. Creation is idempotent on the client-generated uuid;
// confirmation locks the row so a replayed confirm fails cleanly.
type OrderService struct {
	db     relationaldb.RepositoryManager
	logger zerolog.Logger
	events EventPublisher
}

func NewOrderService(db relationaldb.RepositoryManager, logger zerolog.Logger, events EventPublisher) *OrderService {
	if events == nil {
		events = NopPublisher{}
	}
	return &OrderService{
		db:     db,
		logger: logger.With().Str("component", "order").Logger(),
		events: events,
	}
}

// CheckOrder runs the full validation and booking synthesis without
// persisting anything; terminals use it to show the balance preview
// before committing.
func (s *OrderService) CheckOrder(ctx context.Context, t *till.Till, current *user.CurrentUser, req order.NewOrder) (*order.CompletedOrder, error) {
	var preview *order.CompletedOrder
	err := s.db.WithTransaction(ctx, func(tx relationaldb.TransactionContext) error {
		prepared, _, _, err := s.prepare(ctx, tx, t, current, req)
		if err != nil {
			return err
		}
		preview = &order.CompletedOrder{
			UUID:         req.UUID,
			OldBalance:   prepared.OldBalance,
			NewBalance:   prepared.NewBalance,
			OldVouchers:  prepared.OldVouchers,
			NewVouchers:  prepared.NewVouchers,
			UsedVouchers: prepared.UsedVouchers,
		}
		// ticket checks may have created a customer account on the fly
		return errRollback
	})
	if err != nil && !errors.Is(err, errRollback) {
		return nil, err
	}
	return preview, nil
}

// CreateOrder validates the request and inserts the pending order with
// its frozen line items. A replay of the same uuid returns the already
// created order instead of inserting a second one.
func (s *OrderService) CreateOrder(ctx context.Context, t *till.Till, current *user.CurrentUser, req order.NewOrder) (*order.CompletedOrder, error) {
	if req.UUID == uuid.Nil {
		return nil, errs.InvalidArgument("an order requires a client generated uuid")
	}
	var result *order.CompletedOrder
	err := s.db.WithTransaction(ctx, func(tx relationaldb.TransactionContext) error {
		prepared, customerAcc, cashRegisterID, err := s.prepare(ctx, tx, t, current, req)
		if err != nil {
			return err
		}
		o, created, err := tx.Order().CreateOrder(ctx, relationaldb.NewOrderRow{
			UUID:              req.UUID,
			NodeID:            t.NodeID,
			Type:              prepared.Type,
			PaymentMethod:     prepared.PaymentMethod,
			CashierID:         current.ID,
			TillID:            t.ID,
			CustomerAccountID: &customerAcc.ID,
			CashRegisterID:    cashRegisterID,
			LineItems:         prepared.LineItems,
		})
		if err != nil {
			return errs.Internal("creating order", err)
		}
		if !created {
			s.logger.Info().Int64("order_id", o.ID).Str("uuid", req.UUID.String()).
				Msg("order creation replayed")
		}
		result = &order.CompletedOrder{
			ID:           o.ID,
			UUID:         o.UUID,
			OldBalance:   prepared.OldBalance,
			NewBalance:   prepared.NewBalance,
			OldVouchers:  prepared.OldVouchers,
			NewVouchers:  prepared.NewVouchers,
			UsedVouchers: prepared.UsedVouchers,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BookOrder confirms a pending order: the bookings are synthesised
// from the frozen line items, run through the ledger primitive,
// vouchers are redeemed and the order is stamped done under the till's
// current accounting period. Confirming twice fails with the already
// finished error instead of double booking.
func (s *OrderService) BookOrder(ctx context.Context, t *till.Till, current *user.CurrentUser, orderID int64) (*order.CompletedOrder, error) {
	startedAt := time.Now()
	var (
		completed *order.CompletedOrder
		booked    *order.Order
		bookings  int
	)
	err := s.db.WithTransaction(ctx, func(tx relationaldb.TransactionContext) error {
		if err := requirePrivileges(current, user.PrivilegeCashier); err != nil {
			return err
		}
		o, err := tx.Order().GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return wrapNotFound(err, "order", orderID)
		}
		// a till must not see, let alone confirm, another till's orders
		if o.TillID != t.ID {
			return errs.NotFound("order", orderID)
		}
		if o.Status != order.StatusPending {
			return errs.AlreadyFinished(o.ID)
		}
		completed, bookings, err = s.finishPending(ctx, tx, o)
		if err != nil {
			return err
		}
		booked = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.ObserveOrderBooked(string(booked.Type), bookings, startedAt)
	s.events.OrderBooked(booked)
	s.logger.Info().Int64("order_id", booked.ID).Str("order_type", string(booked.Type)).
		Int("transactions", bookings).Msg("order booked")
	return completed, nil
}

// CancelOrder discards a pending order without booking anything.
func (s *OrderService) CancelOrder(ctx context.Context, t *till.Till, current *user.CurrentUser, orderID int64) error {
	err := s.db.WithTransaction(ctx, func(tx relationaldb.TransactionContext) error {
		if err := requirePrivileges(current, user.PrivilegeCashier); err != nil {
			return err
		}
		o, err := tx.Order().GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return wrapNotFound(err, "order", orderID)
		}
		if o.TillID != t.ID {
			return errs.NotFound("order", orderID)
		}
		if o.Status != order.StatusPending {
			return errs.AlreadyFinished(o.ID)
		}
		return asServiceError("cancelling order", tx.Order().CancelOrder(ctx, o.ID))
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int64("order_id", orderID).Msg("order cancelled")
	return nil
}

// GetTerminalOrder returns one of the till's own orders.
func (s *OrderService) GetTerminalOrder(ctx context.Context, t *till.Till, orderID int64) (*order.Order, error) {
	o, err := s.db.Order().GetOrder(ctx, orderID)
	if err != nil {
		return nil, wrapNotFound(err, "order", orderID)
	}
	if o.TillID != t.ID {
		return nil, errs.NotFound("order", orderID)
	}
	return o, nil
}

func (s *OrderService) GetOrder(ctx context.Context, current *user.CurrentUser, id int64) (*order.Order, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	o, err := s.db.Order().GetOrder(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "order", id)
	}
	return o, nil
}

func (s *OrderService) ListOrders(ctx context.Context, current *user.CurrentUser, filter relationaldb.OrderFilter) ([]order.Order, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	orders, err := s.db.Order().ListOrders(ctx, filter)
	if err != nil {
		return nil, errs.Internal("listing orders", err)
	}
	return orders, nil
}

func (s *OrderService) ListCustomerOrders(ctx context.Context, current *user.CurrentUser, customerAccountID int64) ([]order.Order, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	orders, err := s.db.Order().ListCustomerOrders(ctx, customerAccountID)
	if err != nil {
		return nil, errs.Internal("listing customer orders", err)
	}
	return orders, nil
}

// ListOrderTransactions returns the ledger transactions an order
// produced, for the admin order detail view.
func (s *OrderService) ListOrderTransactions(ctx context.Context, current *user.CurrentUser, orderID int64) ([]account.Transaction, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	transactions, err := s.db.Ledger().ListOrderTransactions(ctx, orderID)
	if err != nil {
		return nil, errs.Internal("listing order transactions", err)
	}
	return transactions, nil
}

// prepare validates a terminal order request against the till profile,
// the acting cashier and the customer account, and synthesises the
// booking preview. For ticket sales a missing customer account is
// created from the tag on the spot.
func (s *OrderService) prepare(ctx context.Context, tx relationaldb.TransactionContext, t *till.Till, current *user.CurrentUser, req order.NewOrder) (*order.Prepared, *account.Account, *int64, error) {
	if req.Type.IsTransfer() {
		return nil, nil, nil, errs.InvalidArgument("transfer orders are booked internally")
	}
	if err := requirePrivileges(current, user.PrivilegeCashier); err != nil {
		return nil, nil, nil, err
	}
	profile, err := tx.Till().GetProfile(ctx, t.ActiveProfileID)
	if err != nil {
		return nil, nil, nil, wrapNotFound(err, "till profile", t.ActiveProfileID)
	}
	switch req.Type {
	case order.TypeSale:
	case order.TypeTopUpCash, order.TypeTopUpSumUp:
		if !profile.AllowTopUp {
			return nil, nil, nil, errs.AccessDenied("this till does not permit top ups")
		}
	case order.TypePayOut:
		if !profile.AllowCashOut {
			return nil, nil, nil, errs.AccessDenied("this till does not permit pay outs")
		}
	case order.TypeTicket:
		if !profile.AllowTicketSale {
			return nil, nil, nil, errs.AccessDenied("this till does not permit ticket sales")
		}
	default:
		return nil, nil, nil, errs.InvalidArgumentf("unknown order type %q", string(req.Type))
	}

	customerAcc, err := s.resolveCustomer(ctx, tx, t.NodeID, req)
	if err != nil {
		return nil, nil, nil, err
	}

	var cashRegisterID *int64
	if orderNeedsCashDrawer(req) {
		if current.CashierAccountID == nil {
			return nil, nil, nil, errs.InvalidArgument("user is not set up as a cashier")
		}
		if current.CashRegisterID == nil {
			return nil, nil, nil, errs.InvalidArgument("cashier does not have a cash register assigned")
		}
		cashRegisterID = current.CashRegisterID
	}

	var prepared *order.Prepared
	switch req.Type {
	case order.TypeSale:
		prepared, err = s.prepareSale(ctx, tx, *customerAcc, req)
	case order.TypeTopUpCash, order.TypeTopUpSumUp:
		prepared, err = s.prepareTopUp(ctx, tx, *customerAcc, current, req)
	case order.TypePayOut:
		prepared, err = s.preparePayOut(ctx, tx, *customerAcc, current, req)
	case order.TypeTicket:
		prepared, err = s.prepareTicketSale(ctx, tx, *customerAcc, current, req)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	return prepared, customerAcc, cashRegisterID, nil
}

// orderNeedsCashDrawer reports whether the request moves physical cash
// and therefore requires the cashier to hold a register.
func orderNeedsCashDrawer(req order.NewOrder) bool {
	switch req.Type {
	case order.TypeTopUpCash, order.TypePayOut:
		return true
	case order.TypeTicket:
		return req.PaymentMethod == order.PaymentMethodCash
	}
	return false
}

func (s *OrderService) resolveCustomer(ctx context.Context, tx relationaldb.TransactionContext, nodeID int64, req order.NewOrder) (*account.Account, error) {
	customerAcc, err := tx.Account().GetAccountByTagUID(ctx, req.CustomerTagUID)
	if err == nil {
		return customerAcc, nil
	}
	if !relationaldb.IsNotFound(err) {
		return nil, errs.Internal("loading customer account", err)
	}
	if req.Type != order.TypeTicket {
		return nil, errs.NotFound("customer", account.FormatTagUID(req.CustomerTagUID))
	}
	tag, err := tx.Account().GetUserTag(ctx, req.CustomerTagUID)
	if err != nil {
		if relationaldb.IsNotFound(err) {
			return nil, errs.NotFound("user tag", account.FormatTagUID(req.CustomerTagUID))
		}
		return nil, errs.Internal("loading user tag", err)
	}
	accountID, err := tx.Account().CreateCustomerAccount(ctx, nodeID, tag.ID)
	if err != nil {
		return nil, errs.Internal("creating customer account", err)
	}
	customerAcc, err = tx.Account().GetAccount(ctx, accountID)
	if err != nil {
		return nil, wrapNotFound(err, "account", accountID)
	}
	return customerAcc, nil
}

func (s *OrderService) prepareSale(ctx context.Context, tx relationaldb.TransactionContext, customerAcc account.Account, req order.NewOrder) (*order.Prepared, error) {
	items, err := s.resolvePositions(ctx, tx, req.Positions)
	if err != nil {
		return nil, err
	}
	discount, err := tx.Product().GetProduct(ctx, product.DiscountID)
	if err != nil {
		return nil, wrapNotFound(err, "product", product.DiscountID)
	}
	pricePerVoucher, err := configDecimal(ctx, tx.Config(), keyPricePerVoucher)
	if err != nil {
		return nil, err
	}
	saleExit, err := configInt64(ctx, tx.Config(), keySaleExitAccount)
	if err != nil {
		return nil, err
	}
	return order.PrepareSale(order.SaleInput{
		Customer:        customerAcc,
		Items:           items,
		DiscountProduct: *discount,
		PricePerVoucher: pricePerVoucher,
		DefaultTargetID: saleExit,
	})
}

func (s *OrderService) prepareTopUp(ctx context.Context, tx relationaldb.TransactionContext, customerAcc account.Account, current *user.CurrentUser, req order.NewOrder) (*order.Prepared, error) {
	item, err := s.resolveSinglePosition(ctx, tx, req, product.TopUpID)
	if err != nil {
		return nil, err
	}
	if req.Type == order.TypeTopUpCash {
		return order.PrepareTopUpCash(customerAcc, *current.CashierAccountID, item.Product, item.Price)
	}
	return order.PrepareTopUpSumUp(customerAcc, item.Product, item.Price)
}

func (s *OrderService) preparePayOut(ctx context.Context, tx relationaldb.TransactionContext, customerAcc account.Account, current *user.CurrentUser, req order.NewOrder) (*order.Prepared, error) {
	if len(req.Positions) != 1 || req.Positions[0].ProductID != product.PayOutID {
		return nil, errs.InvalidArgument("pay out orders carry exactly one position with the pay out product")
	}
	payOut, err := tx.Product().GetProduct(ctx, product.PayOutID)
	if err != nil {
		return nil, wrapNotFound(err, "product", product.PayOutID)
	}
	// without an explicit amount the whole balance is paid out
	amount := customerAcc.Balance.Neg()
	if req.Positions[0].Price != nil {
		amount = *req.Positions[0].Price
	}
	return order.PreparePayOut(customerAcc, *current.CashierAccountID, *payOut, amount)
}

func (s *OrderService) prepareTicketSale(ctx context.Context, tx relationaldb.TransactionContext, customerAcc account.Account, current *user.CurrentUser, req order.NewOrder) (*order.Prepared, error) {
	tickets, err := s.resolvePositions(ctx, tx, req.Positions)
	if err != nil {
		return nil, err
	}
	topUp, err := tx.Product().GetProduct(ctx, product.TopUpID)
	if err != nil {
		return nil, wrapNotFound(err, "product", product.TopUpID)
	}
	saleExit, err := configInt64(ctx, tx.Config(), keySaleExitAccount)
	if err != nil {
		return nil, err
	}
	initialTopUp := decimal.Zero
	if req.InitialTopUp != nil {
		initialTopUp = *req.InitialTopUp
	}
	var cashierAccountID int64
	if req.PaymentMethod == order.PaymentMethodCash {
		cashierAccountID = *current.CashierAccountID
	}
	return order.PrepareTicketSale(order.TicketSaleInput{
		Customer:         customerAcc,
		CashierAccountID: cashierAccountID,
		Tickets:          tickets,
		InitialTopUp:     initialTopUp,
		PaymentMethod:    req.PaymentMethod,
		TopUpProduct:     *topUp,
		DefaultTargetID:  saleExit,
	})
}

func (s *OrderService) resolvePositions(ctx context.Context, tx relationaldb.TransactionContext, positions []order.NewOrderPosition) ([]order.ResolvedItem, error) {
	if len(positions) == 0 {
		return nil, errs.InvalidArgument("an order requires at least one position")
	}
	items := make([]order.ResolvedItem, 0, len(positions))
	for _, pos := range positions {
		p, err := tx.Product().GetProduct(ctx, pos.ProductID)
		if err != nil {
			return nil, wrapNotFound(err, "product", pos.ProductID)
		}
		item, err := order.ResolveItem(*p, pos)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *OrderService) resolveSinglePosition(ctx context.Context, tx relationaldb.TransactionContext, req order.NewOrder, wantProductID int64) (order.ResolvedItem, error) {
	if len(req.Positions) != 1 {
		return order.ResolvedItem{}, errs.InvalidArgumentf("%s orders carry exactly one position", string(req.Type))
	}
	pos := req.Positions[0]
	if pos.ProductID != wantProductID {
		return order.ResolvedItem{}, errs.InvalidArgumentf("%s orders must use the reserved bookkeeping product", string(req.Type))
	}
	p, err := tx.Product().GetProduct(ctx, pos.ProductID)
	if err != nil {
		return order.ResolvedItem{}, wrapNotFound(err, "product", pos.ProductID)
	}
	return order.ResolveItem(*p, pos)
}

// finishPending books a pending order from its frozen line items and
// stamps it done. Used with the row lock held.
func (s *OrderService) finishPending(ctx context.Context, tx relationaldb.TransactionContext, o *order.Order) (*order.CompletedOrder, int, error) {
	if o.CustomerAccountID == nil {
		return nil, 0, errs.Internal("pending order has no customer account", nil)
	}
	before, err := tx.Account().GetAccount(ctx, *o.CustomerAccountID)
	if err != nil {
		return nil, 0, wrapNotFound(err, "account", *o.CustomerAccountID)
	}
	bookings, usedVouchers, err := s.deriveBookings(ctx, tx, o, *before)
	if err != nil {
		return nil, 0, err
	}
	count, err := bookOrderTransactions(ctx, tx, o.ID, string(o.Type), bookings)
	if err != nil {
		return nil, 0, err
	}
	if usedVouchers != 0 {
		if err := tx.Account().AddAccountVouchers(ctx, before.ID, -usedVouchers); err != nil {
			return nil, 0, errs.Internal("redeeming vouchers", err)
		}
	}
	tillRow, err := tx.Till().GetTill(ctx, o.TillID)
	if err != nil {
		return nil, 0, wrapNotFound(err, "till", o.TillID)
	}
	if _, err := tx.Order().FinishOrder(ctx, o.ID, tillRow.ZNr); err != nil {
		return nil, 0, errs.Internal("finishing order", err)
	}
	if o.Type.ReceiptEligible() {
		if err := tx.Bon().CreateBon(ctx, o.ID); err != nil {
			return nil, 0, errs.Internal("queueing bon", err)
		}
		if err := tx.Bon().NotifyBon(ctx, o.ID); err != nil {
			return nil, 0, errs.Internal("notifying bon generator", err)
		}
	}
	after, err := tx.Account().GetAccount(ctx, before.ID)
	if err != nil {
		return nil, 0, wrapNotFound(err, "account", before.ID)
	}
	return &order.CompletedOrder{
		ID:           o.ID,
		UUID:         o.UUID,
		OldBalance:   before.Balance,
		NewBalance:   after.Balance,
		OldVouchers:  before.Vouchers,
		NewVouchers:  after.Vouchers,
		UsedVouchers: usedVouchers,
	}, count, nil
}

// deriveBookings rebuilds the booking map of a pending order from its
// frozen line items, mirroring what the preparation computed when the
// order was created. Working off the frozen items instead of a cached
// preview keeps replays and crash recovery honest: whatever is in the
// row is what gets booked.
func (s *OrderService) deriveBookings(ctx context.Context, tx relationaldb.TransactionContext, o *order.Order, customerAcc account.Account) (order.BookingMap, int64, error) {
	bookings := make(order.BookingMap)
	switch o.Type {
	case order.TypeSale:
		saleExit, err := configInt64(ctx, tx.Config(), keySaleExitAccount)
		if err != nil {
			return nil, 0, err
		}
		pricePerVoucher, err := configDecimal(ctx, tx.Config(), keyPricePerVoucher)
		if err != nil {
			return nil, 0, err
		}
		var usedVouchers int64
		for _, li := range o.LineItems {
			target, err := s.productTarget(ctx, tx, li.ProductID, saleExit)
			if err != nil {
				return nil, 0, err
			}
			bookings.Add(customerAcc.ID, target, li.TaxRateName, li.TotalPrice())
			if li.ProductID == product.DiscountID && pricePerVoucher.IsPositive() {
				usedVouchers += li.TotalPrice().Neg().Div(pricePerVoucher).IntPart()
			}
		}
		return bookings, usedVouchers, nil

	case order.TypeTopUpCash:
		amount := orderAmount(o)
		taxName := orderTaxName(o)
		cashierAccountID, err := s.cashierAccountOf(ctx, tx, o.CashierID)
		if err != nil {
			return nil, 0, err
		}
		bookings.Add(account.CashVaultID, customerAcc.ID, taxName, amount)
		bookings.Add(account.CashEntryID, cashierAccountID, taxName, amount)
		return bookings, 0, nil

	case order.TypeTopUpSumUp:
		bookings.Add(account.SumUpID, customerAcc.ID, orderTaxName(o), orderAmount(o))
		return bookings, 0, nil

	case order.TypePayOut:
		paid := orderAmount(o).Neg()
		taxName := orderTaxName(o)
		cashierAccountID, err := s.cashierAccountOf(ctx, tx, o.CashierID)
		if err != nil {
			return nil, 0, err
		}
		bookings.Add(customerAcc.ID, account.CashVaultID, taxName, paid)
		bookings.Add(cashierAccountID, account.CashEntryID, taxName, paid)
		return bookings, 0, nil

	case order.TypeTicket:
		saleExit, err := configInt64(ctx, tx.Config(), keySaleExitAccount)
		if err != nil {
			return nil, 0, err
		}
		total := decimal.Zero
		for _, li := range o.LineItems {
			total = total.Add(li.TotalPrice())
			if li.ProductID == product.TopUpID {
				// the initial top up stays on the customer account
				continue
			}
			target, err := s.productTarget(ctx, tx, li.ProductID, saleExit)
			if err != nil {
				return nil, 0, err
			}
			bookings.Add(customerAcc.ID, target, li.TaxRateName, li.TotalPrice())
		}
		switch o.PaymentMethod {
		case order.PaymentMethodCash:
			cashierAccountID, err := s.cashierAccountOf(ctx, tx, o.CashierID)
			if err != nil {
				return nil, 0, err
			}
			bookings.Add(account.CashVaultID, customerAcc.ID, tax.NameNone, total)
			bookings.Add(account.CashEntryID, cashierAccountID, tax.NameNone, total)
		case order.PaymentMethodSumUp:
			bookings.Add(account.SumUpID, customerAcc.ID, tax.NameNone, total)
		}
		return bookings, 0, nil
	}
	return nil, 0, errs.InvalidArgumentf("orders of type %q are booked internally", string(o.Type))
}

func (s *OrderService) productTarget(ctx context.Context, tx relationaldb.TransactionContext, productID, fallback int64) (int64, error) {
	p, err := tx.Product().GetProduct(ctx, productID)
	if err != nil {
		return 0, wrapNotFound(err, "product", productID)
	}
	if p.TargetAccountID != nil {
		return *p.TargetAccountID, nil
	}
	return fallback, nil
}

func (s *OrderService) cashierAccountOf(ctx context.Context, tx relationaldb.TransactionContext, cashierID int64) (int64, error) {
	u, err := tx.User().GetUser(ctx, cashierID)
	if err != nil {
		return 0, wrapNotFound(err, "user", cashierID)
	}
	if u.CashierAccountID == nil {
		return 0, errs.Internal("order cashier has no cashier account", nil)
	}
	return *u.CashierAccountID, nil
}

// orderAmount is the signed amount of a single position bookkeeping
// order, frozen in its one line item.
func orderAmount(o *order.Order) decimal.Decimal {
	if len(o.LineItems) == 0 {
		return decimal.Zero
	}
	return o.LineItems[0].TotalPrice()
}

func orderTaxName(o *order.Order) string {
	if len(o.LineItems) == 0 {
		return tax.NameNone
	}
	return o.LineItems[0].TaxRateName
}

// bookOrderTransactions runs the ledger primitive once per aggregated
// booking, skipping zero amounts. Keys are sorted so equal inputs
// produce transactions in a stable order.
func bookOrderTransactions(ctx context.Context, tx relationaldb.TransactionContext, orderID int64, description string, bookings order.BookingMap) (int, error) {
	keys := make([]order.BookingIdentifier, 0, len(bookings))
	for k := range bookings {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.SourceAccountID != b.SourceAccountID {
			return a.SourceAccountID < b.SourceAccountID
		}
		if a.TargetAccountID != b.TargetAccountID {
			return a.TargetAccountID < b.TargetAccountID
		}
		return a.TaxRateName < b.TaxRateName
	})
	count := 0
	for _, k := range keys {
		amount := bookings[k]
		if amount.IsZero() {
			continue
		}
		_, err := tx.Ledger().BookTransaction(ctx, relationaldb.NewTransaction{
			OrderID:         &orderID,
			Description:     description,
			SourceAccountID: k.SourceAccountID,
			TargetAccountID: k.TargetAccountID,
			Amount:          amount,
			TaxRateName:     k.TaxRateName,
		})
		if err != nil {
			return count, bookingError(err)
		}
		count++
	}
	return count, nil
}

// bookTransferOrder books an internal transfer order in one step:
// create, book the supplied bookings and finish under the virtual
// till's current accounting period. Transfer orders never carry a
// customer account.
func bookTransferOrder(ctx context.Context, tx relationaldb.TransactionContext, nodeID, cashierID int64, registerID *int64, prepared *order.Prepared) (*order.Info, error) {
	o, _, err := tx.Order().CreateOrder(ctx, relationaldb.NewOrderRow{
		UUID:           uuid.New(),
		NodeID:         nodeID,
		Type:           prepared.Type,
		PaymentMethod:  prepared.PaymentMethod,
		CashierID:      cashierID,
		TillID:         till.VirtualTillID,
		CashRegisterID: registerID,
		LineItems:      prepared.LineItems,
	})
	if err != nil {
		return nil, errs.Internal("creating transfer order", err)
	}
	if _, err := bookOrderTransactions(ctx, tx, o.ID, string(prepared.Type), prepared.Bookings); err != nil {
		return nil, err
	}
	virtual, err := tx.Till().GetTill(ctx, till.VirtualTillID)
	if err != nil {
		return nil, wrapNotFound(err, "till", till.VirtualTillID)
	}
	if _, err := tx.Order().FinishOrder(ctx, o.ID, virtual.ZNr); err != nil {
		return nil, errs.Internal("finishing transfer order", err)
	}
	return &order.Info{ID: o.ID, UUID: o.UUID}, nil
}
