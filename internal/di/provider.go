package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stustapay/stustapayd/internal/bon"
	"github.com/stustapay/stustapayd/internal/config"
	"github.com/stustapay/stustapayd/internal/metrics"
	"github.com/stustapay/stustapayd/internal/rpc"
	"github.com/stustapay/stustapayd/internal/rpc/admin"
	"github.com/stustapay/stustapayd/internal/rpc/customer"
	"github.com/stustapay/stustapayd/internal/rpc/terminal"
	"github.com/stustapay/stustapayd/internal/service"
	"github.com/stustapay/stustapayd/internal/storage/docstore"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb/postgres"
)

// Provider registers every builder the daemon knows about. Resolution
// is lazy: the payout subcommand never opens the docstore, the bon
// subcommand never builds the HTTP servers.
type Provider struct {
	container *Container
	config    *config.Config
	logger    zerolog.Logger
}

// NewProvider creates a provider for the given configuration.
func NewProvider(container *Container, cfg *config.Config, logger zerolog.Logger) *Provider {
	return &Provider{
		container: container,
		config:    cfg,
		logger:    logger,
	}
}

// RegisterAll registers all builders.
func (p *Provider) RegisterAll() error {
	p.container.Register(ServiceConfig, p.config)
	p.container.Register(ServiceLogger, p.logger)

	p.registerStorageBuilders()
	p.registerServiceBuilders()
	p.registerServerBuilders()

	return nil
}

// storageLogger adapts zerolog to the storage layer's logger
// interface.
type storageLogger struct {
	logger zerolog.Logger
}

func (l *storageLogger) Debug(msg string, fields ...interface{}) {
	l.logger.Debug().Msgf(msg, fields...)
}

func (l *storageLogger) Info(msg string, fields ...interface{}) {
	l.logger.Info().Msgf(msg, fields...)
}

func (l *storageLogger) Warn(msg string, fields ...interface{}) {
	l.logger.Warn().Msgf(msg, fields...)
}

func (l *storageLogger) Error(msg string, fields ...interface{}) {
	l.logger.Error().Msgf(msg, fields...)
}

func (p *Provider) registerStorageBuilders() {
	p.container.RegisterBuilder(ServiceStorageConfig, func(c *Container) (interface{}, error) {
		db := p.config.Database
		cfg := relationaldb.NewConfig().
			WithHost(db.Host).
			WithPort(db.Port).
			WithCredentials(db.User, db.Password).
			WithDatabase(db.DBName).
			WithPoolSettings(db.MaxOpenConns, db.MaxIdleConns, db.ConnMaxLifetime, db.ConnMaxIdleTime).
			WithTimeout(db.DefaultTimeout)
		if db.SSLMode != "" {
			cfg.SSLMode = db.SSLMode
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("database config: %w", err)
		}
		return cfg, nil
	})

	p.container.RegisterBuilder(ServiceRepositories, func(c *Container) (interface{}, error) {
		cfg := c.MustGet(ServiceStorageConfig).(*relationaldb.Config)
		return postgres.NewRepositoryManager(cfg)
	})

	p.container.RegisterBuilder(ServiceStorageManager, func(c *Container) (interface{}, error) {
		cfg := c.MustGet(ServiceStorageConfig).(*relationaldb.Config)
		repos, err := c.Get(ServiceRepositories)
		if err != nil {
			return nil, err
		}
		manager := relationaldb.NewManager(
			repos.(relationaldb.RepositoryManager),
			cfg,
			relationaldb.WithLogger(&storageLogger{logger: p.logger.With().Str("component", "storage").Logger()}),
			relationaldb.WithMetrics(metrics.NewDatabase()),
		)
		return manager, nil
	})

	p.container.RegisterBuilder(ServiceDocStore, func(c *Container) (interface{}, error) {
		return docstore.Open(docstore.Config{
			Backend:     p.config.Bon.Backend,
			Path:        p.config.Bon.Path,
			Compression: p.config.Bon.Compression,
		})
	})

	p.container.RegisterBuilder(ServiceTokens, func(c *Container) (interface{}, error) {
		return service.NewTokenManager(p.config.Core.SecretKey), nil
	})
}

func (p *Provider) registerServiceBuilders() {
	repos := func(c *Container) relationaldb.RepositoryManager {
		return c.MustGet(ServiceRepositories).(relationaldb.RepositoryManager)
	}

	p.container.RegisterBuilder(ServiceEventHub, func(c *Container) (interface{}, error) {
		return rpc.NewHub(p.logger), nil
	})

	p.container.RegisterBuilder(ServiceAuth, func(c *Container) (interface{}, error) {
		tokens := c.MustGet(ServiceTokens).(*service.TokenManager)
		return service.NewAuthService(repos(c), p.logger, tokens), nil
	})

	p.container.RegisterBuilder(ServiceUsers, func(c *Container) (interface{}, error) {
		return service.NewUserService(repos(c), p.logger), nil
	})

	p.container.RegisterBuilder(ServiceProducts, func(c *Container) (interface{}, error) {
		return service.NewProductService(repos(c), p.logger)
	})

	p.container.RegisterBuilder(ServiceTaxRates, func(c *Container) (interface{}, error) {
		return service.NewTaxRateService(repos(c), p.logger), nil
	})

	p.container.RegisterBuilder(ServiceTills, func(c *Container) (interface{}, error) {
		auth := c.MustGet(ServiceAuth).(*service.AuthService)
		return service.NewTillService(repos(c), p.logger, auth, p.config.Core), nil
	})

	p.container.RegisterBuilder(ServiceRegisters, func(c *Container) (interface{}, error) {
		return service.NewRegisterService(repos(c), p.logger), nil
	})

	p.container.RegisterBuilder(ServiceCashiers, func(c *Container) (interface{}, error) {
		return service.NewCashierService(repos(c), p.logger), nil
	})

	p.container.RegisterBuilder(ServiceCustomers, func(c *Container) (interface{}, error) {
		auth := c.MustGet(ServiceAuth).(*service.AuthService)
		store, err := c.Get(ServiceDocStore)
		if err != nil {
			return nil, err
		}
		return service.NewCustomerService(repos(c), p.logger, auth, store.(*docstore.Store), p.config.CustomerPortal), nil
	})

	p.container.RegisterBuilder(ServiceOrders, func(c *Container) (interface{}, error) {
		hub := c.MustGet(ServiceEventHub).(*rpc.Hub)
		return service.NewOrderService(repos(c), p.logger, hub), nil
	})

	p.container.RegisterBuilder(ServicePayouts, func(c *Container) (interface{}, error) {
		return service.NewPayoutService(repos(c), p.logger, p.config.CustomerPortal), nil
	})

	p.container.RegisterBuilder(ServiceRuntimeConfig, func(c *Container) (interface{}, error) {
		return service.NewConfigService(repos(c), p.logger, p.config.Core, p.config.CustomerPortal), nil
	})

	p.container.RegisterBuilder(ServiceTSEs, func(c *Container) (interface{}, error) {
		return service.NewTSEService(repos(c), p.logger), nil
	})

	p.container.RegisterBuilder(ServiceBonWorker, func(c *Container) (interface{}, error) {
		cfg := c.MustGet(ServiceStorageConfig).(*relationaldb.Config)
		dsn, err := cfg.BuildConnectionString()
		if err != nil {
			return nil, err
		}
		store, err := c.Get(ServiceDocStore)
		if err != nil {
			return nil, err
		}
		generator := bon.NewGenerator(repos(c), store.(*docstore.Store), p.logger)
		return bon.NewWorker(dsn, generator, p.logger)
	})
}

func (p *Provider) registerServerBuilders() {
	p.container.RegisterBuilder(ServiceAdminServer, func(c *Container) (interface{}, error) {
		api := admin.New(admin.Deps{
			Auth:      c.MustGet(ServiceAuth).(*service.AuthService),
			Users:     c.MustGet(ServiceUsers).(*service.UserService),
			Products:  c.MustGet(ServiceProducts).(*service.ProductService),
			TaxRates:  c.MustGet(ServiceTaxRates).(*service.TaxRateService),
			Tills:     c.MustGet(ServiceTills).(*service.TillService),
			Registers: c.MustGet(ServiceRegisters).(*service.RegisterService),
			Cashiers:  c.MustGet(ServiceCashiers).(*service.CashierService),
			Customers: c.MustGet(ServiceCustomers).(*service.CustomerService),
			Orders:    c.MustGet(ServiceOrders).(*service.OrderService),
			Payouts:   c.MustGet(ServicePayouts).(*service.PayoutService),
			Config:    c.MustGet(ServiceRuntimeConfig).(*service.ConfigService),
			TSEs:      c.MustGet(ServiceTSEs).(*service.TSEService),
			Hub:       c.MustGet(ServiceEventHub).(*rpc.Hub),
			Logger:    p.logger,
		})
		return rpc.NewServer("admin", p.config.AdminAPI, p.config.Core.RequestTimeout, api.Router(), p.logger), nil
	})

	p.container.RegisterBuilder(ServiceTerminalServer, func(c *Container) (interface{}, error) {
		api := terminal.New(
			c.MustGet(ServiceAuth).(*service.AuthService),
			c.MustGet(ServiceTills).(*service.TillService),
			c.MustGet(ServiceOrders).(*service.OrderService),
			p.logger,
		)
		return rpc.NewServer("terminal", p.config.TerminalAPI, p.config.Core.RequestTimeout, api.Router(), p.logger), nil
	})

	p.container.RegisterBuilder(ServiceCustomerServer, func(c *Container) (interface{}, error) {
		api := customer.New(
			c.MustGet(ServiceAuth).(*service.AuthService),
			c.MustGet(ServiceCustomers).(*service.CustomerService),
			c.MustGet(ServiceRuntimeConfig).(*service.ConfigService),
			p.logger,
		)
		return rpc.NewServer("customer", p.config.CustomerAPI, p.config.Core.RequestTimeout, api.Router(), p.logger), nil
	})
}
