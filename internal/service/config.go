package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/config"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// Config entry keys seeded by schema initialization.
const (
	keyCurrencySymbol     = "currency.symbol"
	keyCurrencyIdentifier = "currency.identifier"
	keyContactEmail       = "customer_portal.contact_email"
	keySumUpTopUpEnabled  = "sumup_topup.enabled"
	keyPricePerVoucher    = "voucher.price_per_voucher"
	keySaleExitAccount    = "sale.exit_account_id"
)

// ConfigService exposes the database-backed config entries and the
// assembled public configuration of the customer portal.
type ConfigService struct {
	db     relationaldb.RepositoryManager
	logger zerolog.Logger
	core   config.CoreConfig
	portal config.CustomerPortalConfig
}

func NewConfigService(db relationaldb.RepositoryManager, logger zerolog.Logger, core config.CoreConfig, portal config.CustomerPortalConfig) *ConfigService {
	return &ConfigService{
		db:     db,
		logger: logger.With().Str("component", "config").Logger(),
		core:   core,
		portal: portal,
	}
}

// PublicConfig is the unauthenticated configuration the customer portal
// frontend bootstraps from.
type PublicConfig struct {
	TestMode            bool     `json:"test_mode"`
	TestModeMessage     string   `json:"test_mode_message"`
	CurrencySymbol      string   `json:"currency_symbol"`
	CurrencyIdentifier  string   `json:"currency_identifier"`
	ContactEmail        string   `json:"contact_email"`
	SumUpTopUpEnabled   bool     `json:"sumup_topup_enabled"`
	DataPrivacyURL      string   `json:"data_privacy_url"`
	AboutPageURL        string   `json:"about_page_url"`
	AllowedCountryCodes []string `json:"allowed_country_codes"`
}

func (s *ConfigService) GetPublicConfig(ctx context.Context) (*PublicConfig, error) {
	repo := s.db.Config()
	symbol, err := configValue(ctx, repo, keyCurrencySymbol)
	if err != nil {
		return nil, err
	}
	identifier, err := configValue(ctx, repo, keyCurrencyIdentifier)
	if err != nil {
		return nil, err
	}
	email, err := configValue(ctx, repo, keyContactEmail)
	if err != nil {
		return nil, err
	}
	sumUpEnabled, err := configBool(ctx, repo, keySumUpTopUpEnabled)
	if err != nil {
		return nil, err
	}
	return &PublicConfig{
		TestMode:            s.core.TestMode,
		TestModeMessage:     s.core.TestModeMessage,
		CurrencySymbol:      symbol,
		CurrencyIdentifier:  identifier,
		ContactEmail:        email,
		SumUpTopUpEnabled:   sumUpEnabled && s.core.SumUpAffiliateKey != "",
		DataPrivacyURL:      s.portal.DataPrivacyURL,
		AboutPageURL:        s.portal.AboutPageURL,
		AllowedCountryCodes: s.portal.AllowedCountryCodes,
	}, nil
}

func (s *ConfigService) ListEntries(ctx context.Context, current *user.CurrentUser) ([]relationaldb.ConfigEntry, error) {
	if err := requirePrivileges(current, user.PrivilegeConfigManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	entries, err := s.db.Config().ListConfigEntries(ctx)
	if err != nil {
		return nil, errs.Internal("listing config entries", err)
	}
	return entries, nil
}

// SetEntry updates one known config entry. New keys cannot be invented
// through the API; the seeded key set is the contract.
func (s *ConfigService) SetEntry(ctx context.Context, current *user.CurrentUser, key, value string) (*relationaldb.ConfigEntry, error) {
	if err := requirePrivileges(current, user.PrivilegeConfigManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	entry, err := s.db.Config().SetConfigEntry(ctx, key, value)
	if err != nil {
		return nil, wrapNotFound(err, "config entry", key)
	}
	s.logger.Info().Str("key", key).Msg("config entry updated")
	return entry, nil
}

// configValue reads one entry through the given repository, which may
// be transaction-scoped when a flow needs the value consistent with
// its own writes.
func configValue(ctx context.Context, repo relationaldb.ConfigRepository, key string) (string, error) {
	entry, err := repo.GetConfigEntry(ctx, key)
	if err != nil {
		return "", wrapNotFound(err, "config entry", key)
	}
	return entry.Value, nil
}

func configDecimal(ctx context.Context, repo relationaldb.ConfigRepository, key string) (decimal.Decimal, error) {
	raw, err := configValue(ctx, repo, key)
	if err != nil {
		return decimal.Zero, err
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errs.Internal(fmt.Sprintf("config entry %s is not a number", key), err)
	}
	return v, nil
}

func configInt64(ctx context.Context, repo relationaldb.ConfigRepository, key string) (int64, error) {
	raw, err := configValue(ctx, repo, key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errs.Internal(fmt.Sprintf("config entry %s is not an integer", key), err)
	}
	return v, nil
}

func configBool(ctx context.Context, repo relationaldb.ConfigRepository, key string) (bool, error) {
	raw, err := configValue(ctx, repo, key)
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errs.Internal(fmt.Sprintf("config entry %s is not a boolean", key), err)
	}
	return v, nil
}
