package relationaldb

import (
	"fmt"
	"net/url"
	"time"
)

// Config describes how the node reaches and drives its PostgreSQL
// cluster. Either give a full ConnectionString or fill the individual
// connection fields; a non-empty ConnectionString always wins.
type Config struct {
	ConnectionString string
	Host             string
	Port             int
	Database         string
	Username         string
	Password         string
	SSLMode          string

	// Pool sizing, handed straight to database/sql.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// DefaultTimeout bounds connection setup and schema migration.
	DefaultTimeout time.Duration

	// Retry policy used by Manager.ExecuteWithRetry.
	MaxRetries    int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// NewConfig returns a Config with defaults sized for a single event
// node: a small pool, prefer-mode TLS and a modest retry budget.
func NewConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "stustapay",
		Username:        "stustapay",
		SSLMode:         "prefer",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
		DefaultTimeout:  30 * time.Second,
		MaxRetries:      3,
		RetryDelay:      100 * time.Millisecond,
		RetryMaxDelay:   5 * time.Second,
	}
}

// WithHost sets the server host on a copy of the config.
func (c *Config) WithHost(host string) *Config {
	d := *c
	d.Host = host
	return &d
}

// WithPort sets the server port on a copy of the config.
func (c *Config) WithPort(port int) *Config {
	d := *c
	d.Port = port
	return &d
}

// WithCredentials sets the login role on a copy of the config.
func (c *Config) WithCredentials(username, password string) *Config {
	d := *c
	d.Username = username
	d.Password = password
	return &d
}

// WithDatabase sets the database name on a copy of the config.
func (c *Config) WithDatabase(database string) *Config {
	d := *c
	d.Database = database
	return &d
}

// WithPoolSettings sets the connection pool limits on a copy of the config.
func (c *Config) WithPoolSettings(maxOpen, maxIdle int, maxLifetime, maxIdleTime time.Duration) *Config {
	d := *c
	d.MaxOpenConns = maxOpen
	d.MaxIdleConns = maxIdle
	d.ConnMaxLifetime = maxLifetime
	d.ConnMaxIdleTime = maxIdleTime
	return &d
}

// WithTimeout sets the default operation timeout on a copy of the config.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	d := *c
	d.DefaultTimeout = timeout
	return &d
}

// Validate reports the first problem it finds. The individual
// connection fields are only checked when no explicit connection
// string is set.
func (c *Config) Validate() error {
	if c.ConnectionString == "" {
		switch {
		case c.Host == "":
			return ErrMissingHost
		case c.Port <= 0 || c.Port > 65535:
			return ErrInvalidPort
		case c.Database == "":
			return ErrMissingDatabase
		case c.Username == "":
			return ErrMissingUsername
		}
		if !validSSLModes[c.SSLMode] {
			return fmt.Errorf("invalid SSL mode: %s", c.SSLMode)
		}
	}

	if c.MaxOpenConns < 0 {
		return ErrInvalidMaxOpenConns
	}
	if c.MaxIdleConns < 0 {
		return ErrInvalidMaxIdleConns
	}
	if c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns {
		return ErrMaxIdleExceedsMaxOpen
	}
	if c.DefaultTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.ConnMaxLifetime < 0 {
		return ErrInvalidConnMaxLifetime
	}
	if c.ConnMaxIdleTime < 0 {
		return ErrInvalidConnMaxIdleTime
	}
	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if c.RetryDelay < 0 {
		return ErrInvalidRetryDelay
	}
	if c.RetryMaxDelay < c.RetryDelay {
		return ErrInvalidRetryMaxDelay
	}
	return nil
}

// BuildConnectionString renders the config as a postgres:// URL for
// lib/pq. An explicit ConnectionString is passed through untouched.
func (c *Config) BuildConnectionString() (string, error) {
	if c.ConnectionString != "" {
		return c.ConnectionString, nil
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   c.Host,
		Path:   "/" + c.Database,
	}
	if c.Port != 0 && c.Port != 5432 {
		u.Host = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}
	if c.Username != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.Username, c.Password)
		} else {
			u.User = url.User(c.Username)
		}
	}

	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	q.Set("connect_timeout", "30")
	q.Set("application_name", "stustapayd")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// String renders the config for logs with the password redacted.
func (c *Config) String() string {
	d := *c
	if d.Password != "" {
		d.Password = "redacted"
	}
	dsn, _ := d.BuildConnectionString()
	return fmt.Sprintf("Config{Host: %s, Port: %d, Database: %s, Connection: %s}",
		d.Host, d.Port, d.Database, dsn)
}
