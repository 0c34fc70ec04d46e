package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// RepositoryManager owns the PostgreSQL connection pool and hands out
// the per-entity repositories. Open must succeed before any accessor
// is used.
type RepositoryManager struct {
	db     *sql.DB
	config *relationaldb.Config

	ledgerRepo   *LedgerRepository
	accountRepo  *AccountRepository
	userRepo     *UserRepository
	productRepo  *ProductRepository
	taxRateRepo  *TaxRateRepository
	tillRepo     *TillRepository
	orderRepo    *OrderRepository
	bonRepo      *BonRepository
	cashierRepo  *CashierRepository
	customerRepo *CustomerRepository
	payoutRepo   *PayoutRepository
	configRepo   *ConfigRepository
	tseRepo      *TSERepository
	systemRepo   *SystemRepository
}

// NewRepositoryManager validates the config and returns an unopened
// manager.
func NewRepositoryManager(config *relationaldb.Config) (*RepositoryManager, error) {
	if err := config.Validate(); err != nil {
		return nil, relationaldb.NewConfigurationError("new_repository_manager", "invalid configuration", err)
	}
	return &RepositoryManager{config: config}, nil
}

// Open connects, pings within the configured timeout and applies the
// idempotent schema before constructing the repositories.
func (rm *RepositoryManager) Open(ctx context.Context) error {
	connStr, err := rm.config.BuildConnectionString()
	if err != nil {
		return relationaldb.NewConfigurationError("open", "failed to build connection string", err)
	}

	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return relationaldb.NewConnectionError("open", "failed to open database connection", err)
	}
	sqlDB.SetMaxOpenConns(rm.config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(rm.config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(rm.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(rm.config.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, rm.config.DefaultTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return relationaldb.NewConnectionError("open", "failed to ping database", err)
	}
	rm.db = sqlDB

	// schema, booking function, views and seed rows
	if err := rm.initSchema(ctx); err != nil {
		rm.db.Close()
		rm.db = nil
		return relationaldb.NewSchemaError("open", "failed to initialize schema", err)
	}

	rm.ledgerRepo = NewLedgerRepository(rm.db)
	rm.accountRepo = NewAccountRepository(rm.db)
	rm.userRepo = NewUserRepository(rm.db)
	rm.productRepo = NewProductRepository(rm.db)
	rm.taxRateRepo = NewTaxRateRepository(rm.db)
	rm.tillRepo = NewTillRepository(rm.db)
	rm.orderRepo = NewOrderRepository(rm.db)
	rm.bonRepo = NewBonRepository(rm.db)
	rm.cashierRepo = NewCashierRepository(rm.db)
	rm.customerRepo = NewCustomerRepository(rm.db)
	rm.payoutRepo = NewPayoutRepository(rm.db)
	rm.configRepo = NewConfigRepository(rm.db)
	rm.tseRepo = NewTSERepository(rm.db)
	rm.systemRepo = NewSystemRepository(rm.db)

	return nil
}

// Close shuts the pool down and drops every repository so a later
// accessor call fails loudly instead of using a dead connection.
func (rm *RepositoryManager) Close(ctx context.Context) error {
	if rm.db == nil {
		return nil
	}
	err := rm.db.Close()
	*rm = RepositoryManager{config: rm.config}
	if err != nil {
		return relationaldb.NewConnectionError("close", "failed to close database connection", err)
	}
	return nil
}

func (rm *RepositoryManager) Ledger() relationaldb.LedgerRepository {
	return rm.ledgerRepo
}

func (rm *RepositoryManager) Account() relationaldb.AccountRepository {
	return rm.accountRepo
}

func (rm *RepositoryManager) User() relationaldb.UserRepository {
	return rm.userRepo
}

func (rm *RepositoryManager) Product() relationaldb.ProductRepository {
	return rm.productRepo
}

func (rm *RepositoryManager) TaxRate() relationaldb.TaxRateRepository {
	return rm.taxRateRepo
}

func (rm *RepositoryManager) Till() relationaldb.TillRepository {
	return rm.tillRepo
}

func (rm *RepositoryManager) Order() relationaldb.OrderRepository {
	return rm.orderRepo
}

func (rm *RepositoryManager) Bon() relationaldb.BonRepository {
	return rm.bonRepo
}

func (rm *RepositoryManager) Cashier() relationaldb.CashierRepository {
	return rm.cashierRepo
}

func (rm *RepositoryManager) Customer() relationaldb.CustomerRepository {
	return rm.customerRepo
}

func (rm *RepositoryManager) Payout() relationaldb.PayoutRepository {
	return rm.payoutRepo
}

func (rm *RepositoryManager) Config() relationaldb.ConfigRepository {
	return rm.configRepo
}

func (rm *RepositoryManager) TSE() relationaldb.TSERepository {
	return rm.tseRepo
}

func (rm *RepositoryManager) System() relationaldb.SystemRepository {
	return rm.systemRepo
}

// WithTransaction runs fn inside a single database transaction. Any
// error or panic from fn rolls the transaction back; the fn error wins
// over a rollback failure.
func (rm *RepositoryManager) WithTransaction(ctx context.Context, fn func(relationaldb.TransactionContext) error) error {
	tx, err := rm.systemRepo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// initSchema runs the idempotent schema statements.
func (rm *RepositoryManager) initSchema(ctx context.Context) error {
	for _, query := range schemaStatements {
		if _, err := rm.db.ExecContext(ctx, query); err != nil {
			return relationaldb.NewSchemaError("init_schema", "failed to execute schema query", err)
		}
	}
	return nil
}
