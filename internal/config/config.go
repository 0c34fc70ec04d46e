// Package config holds the static deployment configuration read from
// the YAML file passed on the command line. Event-scoped settings such
// as the currency live in the database config table instead and are read
// through the config service.
package config

import (
	"fmt"
	"time"
)

// Config is the complete stustapayd configuration.
type Config struct {
	Database       DatabaseConfig       `yaml:"database" mapstructure:"database"`
	TerminalAPI    HTTPServerConfig     `yaml:"terminal_api" mapstructure:"terminal_api"`
	AdminAPI       HTTPServerConfig     `yaml:"admin_api" mapstructure:"admin_api"`
	CustomerAPI    HTTPServerConfig     `yaml:"customer_api" mapstructure:"customer_api"`
	Core           CoreConfig           `yaml:"core" mapstructure:"core"`
	CustomerPortal CustomerPortalConfig `yaml:"customer_portal" mapstructure:"customer_portal"`
	Bon            BonConfig            `yaml:"bon" mapstructure:"bon"`

	// path the config was loaded from, for diagnostics
	configPath string `yaml:"-" mapstructure:"-"`
}

// DatabaseConfig is the postgres connection section.
type DatabaseConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	DBName   string `yaml:"dbname" mapstructure:"dbname"`
	SSLMode  string `yaml:"sslmode" mapstructure:"sslmode"`

	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	DefaultTimeout  time.Duration `yaml:"default_timeout" mapstructure:"default_timeout"`
}

// Validate checks the database section.
func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Port)
	}
	if c.DBName == "" {
		return fmt.Errorf("database dbname is required")
	}
	if c.User == "" {
		return fmt.Errorf("database user is required")
	}
	switch c.SSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("invalid database sslmode: %s", c.SSLMode)
	}
	if c.MaxIdleConns > c.MaxOpenConns && c.MaxOpenConns > 0 {
		return fmt.Errorf("max_idle_conns (%d) exceeds max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	if c.DefaultTimeout <= 0 {
		return fmt.Errorf("database default_timeout must be positive")
	}
	return nil
}

// HTTPServerConfig configures one of the three HTTP APIs.
type HTTPServerConfig struct {
	Host    string `yaml:"host" mapstructure:"host"`
	Port    int    `yaml:"port" mapstructure:"port"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// Addr returns the host:port listen address.
func (c *HTTPServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks one API section; name appears in error messages.
func (c *HTTPServerConfig) Validate(name string) error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid %s port: %d", name, c.Port)
	}
	return nil
}

// CoreConfig holds deployment-wide settings shared by all surfaces.
type CoreConfig struct {
	SecretKey         string        `yaml:"secret_key" mapstructure:"secret_key"`
	TestMode          bool          `yaml:"test_mode" mapstructure:"test_mode"`
	TestModeMessage   string        `yaml:"test_mode_message" mapstructure:"test_mode_message"`
	SumUpAffiliateKey string        `yaml:"sumup_affiliate_key" mapstructure:"sumup_affiliate_key"`
	RequestTimeout    time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

// Validate checks the core section.
func (c *CoreConfig) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("core secret_key is required")
	}
	if len(c.SecretKey) < 16 {
		return fmt.Errorf("core secret_key must be at least 16 characters")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("core request_timeout must be positive")
	}
	return nil
}

// SEPAConfig configures outgoing credit transfers of the payout
// pipeline.
type SEPAConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	SenderName  string `yaml:"sender_name" mapstructure:"sender_name"`
	SenderIBAN  string `yaml:"sender_iban" mapstructure:"sender_iban"`
	SenderBIC   string `yaml:"sender_bic" mapstructure:"sender_bic"`
	Description string `yaml:"description" mapstructure:"description"`
}

// CustomerPortalConfig configures the customer-facing web portal.
type CustomerPortalConfig struct {
	BaseBonURL          string     `yaml:"base_bon_url" mapstructure:"base_bon_url"`
	DataPrivacyURL      string     `yaml:"data_privacy_url" mapstructure:"data_privacy_url"`
	AboutPageURL        string     `yaml:"about_page_url" mapstructure:"about_page_url"`
	ContactEmail        string     `yaml:"contact_email" mapstructure:"contact_email"`
	AllowedCountryCodes []string   `yaml:"allowed_country_codes" mapstructure:"allowed_country_codes"`
	SEPA                SEPAConfig `yaml:"sepa" mapstructure:"sepa"`
}

// Validate checks the customer portal section.
func (c *CustomerPortalConfig) Validate() error {
	if c.SEPA.Enabled {
		if c.SEPA.SenderName == "" {
			return fmt.Errorf("customer_portal sepa sender_name is required")
		}
		if c.SEPA.SenderIBAN == "" {
			return fmt.Errorf("customer_portal sepa sender_iban is required")
		}
		if c.SEPA.Description == "" {
			return fmt.Errorf("customer_portal sepa description is required")
		}
	}
	return nil
}

// BonConfig configures the receipt document store.
type BonConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend"`
	Path        string `yaml:"path" mapstructure:"path"`
	Compression string `yaml:"compression" mapstructure:"compression"`
}

// Validate checks the bon section.
func (c *BonConfig) Validate() error {
	switch c.Backend {
	case "pebble", "leveldb", "bbolt":
	default:
		return fmt.Errorf("unsupported bon backend: %s (valid options: pebble, leveldb, bbolt)", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("bon path is required")
	}
	switch c.Compression {
	case "lz4", "none":
	default:
		return fmt.Errorf("unsupported bon compression: %s (valid options: lz4, none)", c.Compression)
	}
	return nil
}

// Validate checks the complete configuration.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config validation failed: %w", err)
	}
	if err := c.TerminalAPI.Validate("terminal_api"); err != nil {
		return err
	}
	if err := c.AdminAPI.Validate("admin_api"); err != nil {
		return err
	}
	if err := c.CustomerAPI.Validate("customer_api"); err != nil {
		return err
	}
	if err := c.Core.Validate(); err != nil {
		return fmt.Errorf("core config validation failed: %w", err)
	}
	if err := c.CustomerPortal.Validate(); err != nil {
		return fmt.Errorf("customer_portal config validation failed: %w", err)
	}
	if err := c.Bon.Validate(); err != nil {
		return fmt.Errorf("bon config validation failed: %w", err)
	}
	return nil
}

// GetConfigPath returns the path the configuration was loaded from.
func (c *Config) GetConfigPath() string {
	return c.configPath
}
