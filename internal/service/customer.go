package service

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stustapay/stustapayd/internal/bon"
	"github.com/stustapay/stustapayd/internal/config"
	"github.com/stustapay/stustapayd/internal/core/customer"
	"github.com/stustapay/stustapayd/internal/core/order"
	"github.com/stustapay/stustapayd/internal/core/sepa"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/storage/docstore"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// CustomerService backs the self-service portal: pin login, order
// history with receipts, and payout registration.
type CustomerService struct {
	db     relationaldb.RepositoryManager
	logger zerolog.Logger
	auth   *AuthService
	store  *docstore.Store
	portal config.CustomerPortalConfig
}

func NewCustomerService(db relationaldb.RepositoryManager, logger zerolog.Logger, auth *AuthService, store *docstore.Store, portal config.CustomerPortalConfig) *CustomerService {
	return &CustomerService{
		db:     db,
		logger: logger.With().Str("component", "customer").Logger(),
		auth:   auth,
		store:  store,
		portal: portal,
	}
}

// Login exchanges a wristband pin for a portal session token.
func (s *CustomerService) Login(ctx context.Context, pin string) (*customer.LoginResult, error) {
	c, err := s.db.Customer().GetCustomerByPin(ctx, strings.TrimSpace(pin))
	if err != nil {
		if relationaldb.IsNotFound(err) {
			return nil, errs.AccessDenied("invalid pin")
		}
		return nil, errs.Internal("loading customer", err)
	}
	session, err := s.db.Customer().CreateCustomerSession(ctx, c.ID)
	if err != nil {
		return nil, errs.Internal("creating customer session", err)
	}
	token, err := s.auth.CustomerToken(c.ID, session)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("customer_account_id", c.ID).Msg("customer logged in")
	return &customer.LoginResult{Customer: *c, Token: token}, nil
}

// GetCustomer re-reads the authenticated customer, balance included.
func (s *CustomerService) GetCustomer(ctx context.Context, c *customer.Customer) (*customer.Customer, error) {
	if c == nil {
		return nil, errs.Unauthenticated()
	}
	fresh, err := s.db.Customer().GetCustomer(ctx, c.ID)
	if err != nil {
		return nil, wrapNotFound(err, "customer", c.ID)
	}
	return fresh, nil
}

// GetCustomerByID is the administration view of a customer account.
func (s *CustomerService) GetCustomerByID(ctx context.Context, current *user.CurrentUser, accountID int64) (*customer.Customer, error) {
	if err := requirePrivileges(current, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	c, err := s.db.Customer().GetCustomer(ctx, accountID)
	if err != nil {
		return nil, wrapNotFound(err, "customer", accountID)
	}
	return c, nil
}

// ListOrders returns the customer's order history. Orders with a
// generated receipt get their download URL filled in.
func (s *CustomerService) ListOrders(ctx context.Context, c *customer.Customer) ([]order.OrderWithBon, error) {
	if c == nil {
		return nil, errs.Unauthenticated()
	}
	orders, err := s.db.Order().ListCustomerOrdersWithBon(ctx, c.ID)
	if err != nil {
		return nil, errs.Internal("listing customer orders", err)
	}
	for i := range orders {
		if orders[i].BonGenerated && s.portal.BaseBonURL != "" {
			url := strings.ReplaceAll(s.portal.BaseBonURL, "{order_id}", strconv.FormatInt(orders[i].ID, 10))
			orders[i].BonURL = &url
		}
	}
	return orders, nil
}

// GetBon loads the receipt document for one of the customer's own
// orders.
func (s *CustomerService) GetBon(ctx context.Context, c *customer.Customer, orderID int64) (*bon.Document, error) {
	if c == nil {
		return nil, errs.Unauthenticated()
	}
	o, err := s.db.Order().GetOrder(ctx, orderID)
	if err != nil {
		return nil, wrapNotFound(err, "order", orderID)
	}
	if o.CustomerAccountID == nil || *o.CustomerAccountID != c.ID {
		// foreign orders look like missing ones
		return nil, errs.NotFound("order", orderID)
	}
	b, err := s.db.Bon().GetBon(ctx, orderID)
	if err != nil {
		if errors.Is(err, relationaldb.ErrBonNotFound) {
			return nil, errs.NotFound("bon", orderID)
		}
		return nil, errs.Internal("loading bon", err)
	}
	if !b.Generated {
		return nil, errs.NotFound("bon", orderID)
	}
	var doc bon.Document
	if err := s.store.Get(ctx, bon.DocumentKey(orderID), &doc); err != nil {
		if errors.Is(err, docstore.ErrKeyNotFound) {
			return nil, errs.NotFound("bon", orderID)
		}
		return nil, errs.Internal("loading bon document", err)
	}
	return &doc, nil
}

// UpdateCustomerInfo registers bank data for the payout run. Once the
// customer is attached to a run the data is frozen.
func (s *CustomerService) UpdateCustomerInfo(ctx context.Context, c *customer.Customer, bank customer.Bank) error {
	if c == nil {
		return errs.Unauthenticated()
	}
	if !s.portal.SEPA.Enabled {
		return errs.InvalidArgument("payouts are currently disabled")
	}
	if c.Info != nil && c.Info.PayoutRunID != nil {
		return errs.InvalidArgument("the payout is already scheduled, bank data can no longer be changed")
	}
	iban, err := sepa.ParseIBAN(bank.IBAN)
	if err != nil {
		return errs.InvalidArgument("invalid iban")
	}
	if len(s.portal.AllowedCountryCodes) > 0 && !slices.Contains(s.portal.AllowedCountryCodes, iban.CountryCode()) {
		return errs.InvalidArgument("iban country is not supported")
	}
	if strings.TrimSpace(bank.AccountName) == "" {
		return errs.InvalidArgument("an account name is required")
	}
	if !customer.ValidEmail(bank.Email) {
		return errs.InvalidArgument("invalid email address")
	}
	if bank.Donation.IsNegative() {
		return errs.InvalidArgument("donation cannot be negative")
	}
	if bank.Donation.GreaterThan(c.Balance) {
		return errs.InvalidArgument("donation exceeds the account balance")
	}
	bank.IBAN = iban.Compact()
	if err := s.db.Customer().UpdateCustomerInfo(ctx, c.ID, bank); err != nil {
		return asServiceError("updating customer info", err)
	}
	s.logger.Info().Int64("customer_account_id", c.ID).Msg("customer registered for payout")
	return nil
}

// DonateAll marks the whole residual balance as donated; no bank data
// is needed for that.
func (s *CustomerService) DonateAll(ctx context.Context, c *customer.Customer) error {
	if c == nil {
		return errs.Unauthenticated()
	}
	if c.Info != nil && c.Info.PayoutRunID != nil {
		return errs.InvalidArgument("the payout is already scheduled, bank data can no longer be changed")
	}
	if err := s.db.Customer().SetDonateAll(ctx, c.ID); err != nil {
		return asServiceError("registering donation", err)
	}
	s.logger.Info().Int64("customer_account_id", c.ID).Msg("customer donates the full balance")
	return nil
}

// PayoutInfo tells the customer whether their balance is scheduled in
// a payout run and for when.
func (s *CustomerService) PayoutInfo(ctx context.Context, c *customer.Customer) (*customer.PayoutInfo, error) {
	if c == nil {
		return nil, errs.Unauthenticated()
	}
	if c.Info == nil || c.Info.PayoutRunID == nil {
		return &customer.PayoutInfo{InPayoutRun: false}, nil
	}
	run, err := s.db.Payout().GetPayoutRun(ctx, *c.Info.PayoutRunID)
	if err != nil {
		return nil, wrapNotFound(err, "payout run", *c.Info.PayoutRunID)
	}
	date := run.ExecutionDate
	return &customer.PayoutInfo{InPayoutRun: true, PayoutDate: &date}, nil
}
