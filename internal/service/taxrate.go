package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/stustapay/stustapayd/internal/core/tax"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// TaxRateService manages the named tax rates the ledger freezes into
// transactions and line items.
type TaxRateService struct {
	db     relationaldb.RepositoryManager
	logger zerolog.Logger
}

func NewTaxRateService(db relationaldb.RepositoryManager, logger zerolog.Logger) *TaxRateService {
	return &TaxRateService{
		db:     db,
		logger: logger.With().Str("component", "taxrate").Logger(),
	}
}

func (s *TaxRateService) GetTaxRate(ctx context.Context, current *user.CurrentUser, name string) (*tax.Rate, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	rate, err := s.db.TaxRate().GetTaxRate(ctx, name)
	if err != nil {
		return nil, wrapNotFound(err, "tax rate", name)
	}
	return rate, nil
}

func (s *TaxRateService) ListTaxRates(ctx context.Context, current *user.CurrentUser, nodeID int64) ([]tax.Rate, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	rates, err := s.db.TaxRate().ListTaxRates(ctx, nodeID)
	if err != nil {
		return nil, errs.Internal("listing tax rates", err)
	}
	return rates, nil
}

func (s *TaxRateService) CreateTaxRate(ctx context.Context, current *user.CurrentUser, nodeID int64, newRate tax.NewRate) (*tax.Rate, error) {
	if err := requirePrivileges(current, user.PrivilegeTaxRateManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	if newRate.Rate.IsNegative() {
		return nil, errs.InvalidArgument("tax rate cannot be negative")
	}
	rate, err := s.db.TaxRate().CreateTaxRate(ctx, nodeID, newRate)
	if err != nil {
		if relationaldb.IsUniqueViolation(err) {
			return nil, errs.Conflict("a tax rate with this name already exists")
		}
		return nil, errs.Internal("creating tax rate", err)
	}
	s.logger.Info().Str("name", rate.Name).Msg("tax rate created")
	return rate, nil
}

func (s *TaxRateService) UpdateTaxRate(ctx context.Context, current *user.CurrentUser, name string, update tax.NewRate) (*tax.Rate, error) {
	if err := requirePrivileges(current, user.PrivilegeTaxRateManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	if update.Rate.IsNegative() {
		return nil, errs.InvalidArgument("tax rate cannot be negative")
	}
	rate, err := s.db.TaxRate().UpdateTaxRate(ctx, name, update)
	if err != nil {
		return nil, wrapNotFound(err, "tax rate", name)
	}
	return rate, nil
}

// DeleteTaxRate removes a rate. The seeded rates are the booking
// vocabulary of the reserved products and cannot go away.
func (s *TaxRateService) DeleteTaxRate(ctx context.Context, current *user.CurrentUser, name string) error {
	if err := requirePrivileges(current, user.PrivilegeTaxRateManagement, user.PrivilegeNodeAdministration); err != nil {
		return err
	}
	switch name {
	case tax.NameNone, tax.NameUst, tax.NameEust:
		return errs.InvalidArgument("seeded tax rates cannot be deleted")
	}
	if err := s.db.TaxRate().DeleteTaxRate(ctx, name); err != nil {
		if relationaldb.IsConstraintError(err) {
			return errs.Conflict("tax rate is referenced by existing products or bookings")
		}
		return wrapNotFound(err, "tax rate", name)
	}
	return nil
}
