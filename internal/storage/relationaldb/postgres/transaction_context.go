package postgres

import (
	"context"
	"database/sql"

	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// TransactionContext implements the TransactionContext interface for PostgreSQL
type TransactionContext struct {
	tx *sql.Tx

	// Repository instances for this transaction
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
}

// NewTransactionContext creates a new PostgreSQL transaction context
func NewTransactionContext(tx *sql.Tx) *TransactionContext {
	return &TransactionContext{
		tx:           tx,
		ledgerRepo:   NewLedgerRepositoryWithTx(tx),
		accountRepo:  NewAccountRepositoryWithTx(tx),
		userRepo:     NewUserRepositoryWithTx(tx),
		productRepo:  NewProductRepositoryWithTx(tx),
		taxRateRepo:  NewTaxRateRepositoryWithTx(tx),
		tillRepo:     NewTillRepositoryWithTx(tx),
		orderRepo:    NewOrderRepositoryWithTx(tx),
		bonRepo:      NewBonRepositoryWithTx(tx),
		cashierRepo:  NewCashierRepositoryWithTx(tx),
		customerRepo: NewCustomerRepositoryWithTx(tx),
		payoutRepo:   NewPayoutRepositoryWithTx(tx),
		configRepo:   NewConfigRepositoryWithTx(tx),
		tseRepo:      NewTSERepositoryWithTx(tx),
	}
}

func (tc *TransactionContext) Commit(ctx context.Context) error {
	if tc.tx == nil {
		return relationaldb.ErrTransactionClosed
	}

	err := tc.tx.Commit()
	tc.tx = nil

	if err != nil {
		return relationaldb.NewTransactionError("commit", "failed to commit transaction", err)
	}

	return nil
}

func (tc *TransactionContext) Rollback(ctx context.Context) error {
	if tc.tx == nil {
		return nil // Already rolled back or committed
	}

	err := tc.tx.Rollback()
	tc.tx = nil

	if err != nil {
		return relationaldb.NewTransactionError("rollback", "failed to rollback transaction", err)
	}

	return nil
}

func (tc *TransactionContext) Ledger() relationaldb.LedgerRepository {
	return tc.ledgerRepo
}

func (tc *TransactionContext) Account() relationaldb.AccountRepository {
	return tc.accountRepo
}

func (tc *TransactionContext) User() relationaldb.UserRepository {
	return tc.userRepo
}

func (tc *TransactionContext) Product() relationaldb.ProductRepository {
	return tc.productRepo
}

func (tc *TransactionContext) TaxRate() relationaldb.TaxRateRepository {
	return tc.taxRateRepo
}

func (tc *TransactionContext) Till() relationaldb.TillRepository {
	return tc.tillRepo
}

func (tc *TransactionContext) Order() relationaldb.OrderRepository {
	return tc.orderRepo
}

func (tc *TransactionContext) Bon() relationaldb.BonRepository {
	return tc.bonRepo
}

func (tc *TransactionContext) Cashier() relationaldb.CashierRepository {
	return tc.cashierRepo
}

func (tc *TransactionContext) Customer() relationaldb.CustomerRepository {
	return tc.customerRepo
}

func (tc *TransactionContext) Payout() relationaldb.PayoutRepository {
	return tc.payoutRepo
}

func (tc *TransactionContext) Config() relationaldb.ConfigRepository {
	return tc.configRepo
}

func (tc *TransactionContext) TSE() relationaldb.TSERepository {
	return tc.tseRepo
}
