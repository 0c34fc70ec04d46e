package relationaldb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stustapay/stustapayd/internal/core/account"
	"github.com/stustapay/stustapayd/internal/core/customer"
	"github.com/stustapay/stustapayd/internal/core/order"
	"github.com/stustapay/stustapayd/internal/core/payout"
	"github.com/stustapay/stustapayd/internal/core/product"
	"github.com/stustapay/stustapayd/internal/core/tax"
	"github.com/stustapay/stustapayd/internal/core/till"
	"github.com/stustapay/stustapayd/internal/core/tse"
	"github.com/stustapay/stustapayd/internal/core/user"
)

// NewTransaction is the request for one double-entry booking. The amount
// moves from the source account to the target account; the stored
// procedure derives the tax split from the named tax rate and keeps the
// persisted amount positive by flipping direction when needed.
type NewTransaction struct {
	OrderID         *int64          `json:"order_id"`
	Description     string          `json:"description"`
	SourceAccountID int64           `json:"source_account_id"`
	TargetAccountID int64           `json:"target_account_id"`
	Amount          decimal.Decimal `json:"amount"`
	TaxRateName     string          `json:"tax_rate_name"`
}

// NewOrderRow is the insert payload for a pending order and its frozen
// line items.
type NewOrderRow struct {
	UUID              uuid.UUID
	NodeID            int64
	Type              order.Type
	PaymentMethod     order.PaymentMethod
	CashierID         int64
	TillID            int64
	CustomerAccountID *int64
	CashRegisterID    *int64
	LineItems         []order.LineItem
}

// OrderFilter narrows order listings for the management API.
type OrderFilter struct {
	NodeID    int64
	TillID    *int64
	CashierID *int64
	Types     []order.Type
}

// ConfigEntry is one row of the runtime key/value configuration.
type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// PendingPayoutStats summarizes the customers not yet assigned to any
// payout run.
type PendingPayoutStats struct {
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// LedgerRepository handles the double-entry booking primitive and reads
// over the transaction log.
type LedgerRepository interface {
	BookTransaction(ctx context.Context, txn NewTransaction) (int64, error)
	GetTransaction(ctx context.Context, id int64) (*account.Transaction, error)
	ListOrderTransactions(ctx context.Context, orderID int64) ([]account.Transaction, error)
	ListAccountTransactions(ctx context.Context, accountID int64) ([]account.Transaction, error)
	SumBalances(ctx context.Context) (decimal.Decimal, error)
}

// AccountRepository handles accounts and the user tags bound to them.
type AccountRepository interface {
	GetAccount(ctx context.Context, id int64) (*account.Account, error)
	GetAccountByTagUID(ctx context.Context, tagUID uint64) (*account.Account, error)
	ListAccounts(ctx context.Context, nodeID int64, kinds []account.Kind) ([]account.Account, error)
	CreateAccount(ctx context.Context, nodeID int64, kind account.Kind, name string) (int64, error)
	CreateCustomerAccount(ctx context.Context, nodeID int64, userTagID int64) (int64, error)
	SetAccountBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	AddAccountVouchers(ctx context.Context, id int64, delta int64) error
	GetUserTag(ctx context.Context, uid uint64) (*account.UserTag, error)
	GetUserTagByPin(ctx context.Context, pin string) (*account.UserTag, error)
}

// UserRepository handles staff users, their roles and login sessions.
type UserRepository interface {
	CreateUser(ctx context.Context, nodeID int64, newUser user.NewUser, passwordHash *string) (*user.User, error)
	GetUser(ctx context.Context, id int64) (*user.User, error)
	GetUserByLogin(ctx context.Context, nodeID int64, login string) (*user.User, error)
	GetUserByTagUID(ctx context.Context, tagUID uint64) (*user.User, error)
	GetUserByCashRegister(ctx context.Context, registerID int64) (*user.User, error)
	GetUserInfo(ctx context.Context, tagUID uint64) (*user.UserInfo, error)
	ListUsers(ctx context.Context, nodeID int64) ([]user.User, error)
	UpdateUser(ctx context.Context, id int64, update user.NewUser, passwordHash *string) (*user.User, error)
	DeleteUser(ctx context.Context, id int64) error
	GetUserPasswordHash(ctx context.Context, nodeID int64, login string) (int64, string, error)
	SetUserAccounts(ctx context.Context, userID int64, cashierAccountID, transportAccountID *int64) error
	SetUserCashRegister(ctx context.Context, userID int64, registerID *int64) error

	CreateUserRole(ctx context.Context, nodeID int64, newRole user.NewRole) (*user.Role, error)
	GetUserRole(ctx context.Context, id int64) (*user.Role, error)
	GetUserRoleByName(ctx context.Context, nodeID int64, name string) (*user.Role, error)
	ListUserRoles(ctx context.Context, nodeID int64) ([]user.Role, error)
	UpdateUserRole(ctx context.Context, id int64, update user.NewRole) (*user.Role, error)
	DeleteUserRole(ctx context.Context, id int64) error
	SetUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
	GetUserRoles(ctx context.Context, userID int64) ([]user.Role, error)
	GetUserPrivileges(ctx context.Context, userID int64) ([]user.Privilege, error)
	ListTerminalLoginRoles(ctx context.Context, tagUID uint64, profileID int64) ([]user.Role, error)

	CreateUserSession(ctx context.Context, userID int64) (uuid.UUID, error)
	HasUserSession(ctx context.Context, userID int64, session uuid.UUID) (bool, error)
	DeleteUserSession(ctx context.Context, userID int64, session uuid.UUID) error
}

// ProductRepository handles the product catalog.
type ProductRepository interface {
	CreateProduct(ctx context.Context, nodeID int64, newProduct product.NewProduct) (*product.Product, error)
	GetProduct(ctx context.Context, id int64) (*product.Product, error)
	ListProducts(ctx context.Context, nodeID int64) ([]product.Product, error)
	UpdateProduct(ctx context.Context, id int64, update product.NewProduct) (*product.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
}

// TaxRateRepository handles the tax rate catalog. Rates are keyed by
// name, which is what bookings reference.
type TaxRateRepository interface {
	CreateTaxRate(ctx context.Context, nodeID int64, newRate tax.NewRate) (*tax.Rate, error)
	GetTaxRate(ctx context.Context, name string) (*tax.Rate, error)
	ListTaxRates(ctx context.Context, nodeID int64) ([]tax.Rate, error)
	UpdateTaxRate(ctx context.Context, name string, update tax.NewRate) (*tax.Rate, error)
	DeleteTaxRate(ctx context.Context, name string) error
}

// TillRepository handles tills, their profiles, layouts, buttons, cash
// registers and stockings, plus the terminal registration state machine.
type TillRepository interface {
	CreateTill(ctx context.Context, nodeID int64, newTill till.NewTill) (*till.Till, error)
	GetTill(ctx context.Context, id int64) (*till.Till, error)
	GetTillByRegistrationUUID(ctx context.Context, registration uuid.UUID) (*till.Till, error)
	GetTillBySession(ctx context.Context, tillID int64, session uuid.UUID) (*till.Till, error)
	ListTills(ctx context.Context, nodeID int64) ([]till.Till, error)
	ListActiveTerminals(ctx context.Context, nodeID int64) ([]till.Till, error)
	UpdateTill(ctx context.Context, id int64, update till.NewTill) (*till.Till, error)
	DeleteTill(ctx context.Context, id int64) error
	StartTillSession(ctx context.Context, tillID int64) (uuid.UUID, error)
	ResetTillRegistration(ctx context.Context, tillID int64) (uuid.UUID, error)
	SwitchTillSession(ctx context.Context, fromTillID, toTillID int64) error
	SetTillActiveUser(ctx context.Context, tillID int64, userID, roleID *int64) error
	BumpZNr(ctx context.Context, tillID int64) (int64, error)

	CreateProfile(ctx context.Context, nodeID int64, newProfile till.NewProfile) (*till.Profile, error)
	GetProfile(ctx context.Context, id int64) (*till.Profile, error)
	ListProfiles(ctx context.Context, nodeID int64) ([]till.Profile, error)
	UpdateProfile(ctx context.Context, id int64, update till.NewProfile) (*till.Profile, error)
	DeleteProfile(ctx context.Context, id int64) error

	CreateLayout(ctx context.Context, nodeID int64, newLayout till.NewLayout) (*till.Layout, error)
	GetLayout(ctx context.Context, id int64) (*till.Layout, error)
	ListLayouts(ctx context.Context, nodeID int64) ([]till.Layout, error)
	UpdateLayout(ctx context.Context, id int64, update till.NewLayout) (*till.Layout, error)
	DeleteLayout(ctx context.Context, id int64) error

	CreateButton(ctx context.Context, nodeID int64, newButton till.NewButton) (*till.Button, error)
	GetButton(ctx context.Context, id int64) (*till.Button, error)
	ListButtons(ctx context.Context, nodeID int64) ([]till.Button, error)
	UpdateButton(ctx context.Context, id int64, update till.NewButton) (*till.Button, error)
	DeleteButton(ctx context.Context, id int64) error
	ListTerminalButtons(ctx context.Context, layoutID int64) ([]till.TerminalButton, error)

	CreateCashRegister(ctx context.Context, nodeID int64, name string) (*till.CashRegister, error)
	GetCashRegister(ctx context.Context, id int64) (*till.CashRegister, error)
	ListCashRegisters(ctx context.Context, nodeID int64) ([]till.CashRegister, error)
	UpdateCashRegister(ctx context.Context, id int64, name string) (*till.CashRegister, error)
	DeleteCashRegister(ctx context.Context, id int64) error

	CreateStocking(ctx context.Context, nodeID int64, newStocking till.NewCashRegisterStocking) (*till.CashRegisterStocking, error)
	GetStocking(ctx context.Context, id int64) (*till.CashRegisterStocking, error)
	ListStockings(ctx context.Context, nodeID int64) ([]till.CashRegisterStocking, error)
	UpdateStocking(ctx context.Context, id int64, update till.NewCashRegisterStocking) (*till.CashRegisterStocking, error)
	DeleteStocking(ctx context.Context, id int64) error
}

// OrderRepository handles the order lifecycle rows. Creation inserts the
// pending row plus line items; finishing freezes the stored totals.
type OrderRepository interface {
	CreateOrder(ctx context.Context, row NewOrderRow) (*order.Order, bool, error)
	GetOrder(ctx context.Context, id int64) (*order.Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (*order.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]order.Order, error)
	ListCustomerOrders(ctx context.Context, customerAccountID int64) ([]order.Order, error)
	ListCustomerOrdersWithBon(ctx context.Context, customerAccountID int64) ([]order.OrderWithBon, error)
	FinishOrder(ctx context.Context, id int64, zNr int64) (time.Time, error)
	CancelOrder(ctx context.Context, id int64) error
}

// BonRepository handles receipt generation bookkeeping for finished
// orders.
type BonRepository interface {
	CreateBon(ctx context.Context, orderID int64) error
	NotifyBon(ctx context.Context, orderID int64) error
	GetBon(ctx context.Context, orderID int64) (*order.Bon, error)
	ListPendingBons(ctx context.Context, limit int) ([]int64, error)
	MarkBonGenerated(ctx context.Context, orderID int64) error
	MarkBonError(ctx context.Context, orderID int64, message string) error
}

// CashierRepository handles the cashier management views and shift
// bookkeeping.
type CashierRepository interface {
	ListCashiers(ctx context.Context, nodeID int64) ([]user.Cashier, error)
	GetCashier(ctx context.Context, id int64) (*user.Cashier, error)
	GetCashierShiftStart(ctx context.Context, cashierID int64) (*time.Time, error)
	IsCashierActiveOnTill(ctx context.Context, cashierID int64) (bool, error)
	CreateCashierShift(ctx context.Context, shift user.NewCashierShift) (*user.CashierShift, error)
	ListCashierShifts(ctx context.Context, cashierID int64) ([]user.CashierShift, error)
	GetCashierShiftStats(ctx context.Context, cashierID int64, shiftID *int64) (*user.CashierShiftStats, error)
}

// CustomerRepository handles portal customers, their sessions and bank
// data.
type CustomerRepository interface {
	GetCustomer(ctx context.Context, accountID int64) (*customer.Customer, error)
	GetCustomerByPin(ctx context.Context, pin string) (*customer.Customer, error)
	CreateCustomerSession(ctx context.Context, accountID int64) (uuid.UUID, error)
	HasCustomerSession(ctx context.Context, accountID int64, session uuid.UUID) (bool, error)
	DeleteCustomerSession(ctx context.Context, accountID int64, session uuid.UUID) error
	UpdateCustomerInfo(ctx context.Context, accountID int64, bank customer.Bank) error
	SetDonateAll(ctx context.Context, accountID int64) error
}

// PayoutRepository handles payout runs and the eligible-customer window.
type PayoutRepository interface {
	CreatePayoutRun(ctx context.Context, createdBy string, executionDate time.Time) (*payout.Run, error)
	AttachEligibleCustomers(ctx context.Context, runID int64, maxPayoutSum decimal.Decimal) (int64, error)
	GetPayoutRun(ctx context.Context, id int64) (*payout.Run, error)
	ListPayoutRuns(ctx context.Context) ([]payout.Run, error)
	ListRunPayouts(ctx context.Context, runID int64, limit, offset int64) ([]payout.Payout, error)
	PendingPayouts(ctx context.Context) (*PendingPayoutStats, error)
	MarkPayoutRunDone(ctx context.Context, runID int64) error
	SetPayoutError(ctx context.Context, customerAccountID int64, message string) error
}

// ConfigRepository handles the runtime key/value configuration.
type ConfigRepository interface {
	GetConfigEntry(ctx context.Context, key string) (*ConfigEntry, error)
	ListConfigEntries(ctx context.Context) ([]ConfigEntry, error)
	SetConfigEntry(ctx context.Context, key, value string) (*ConfigEntry, error)
}

// TSERepository handles technical security device registrations.
type TSERepository interface {
	CreateTSE(ctx context.Context, nodeID int64, newTSE tse.NewTSE) (*tse.TSE, error)
	GetTSE(ctx context.Context, id int64) (*tse.TSE, error)
	ListTSEs(ctx context.Context, nodeID int64) ([]tse.TSE, error)
	UpdateTSE(ctx context.Context, id int64, update tse.UpdateTSE) (*tse.TSE, error)
}

// SystemRepository handles system-level database operations
type SystemRepository interface {
	Ping(ctx context.Context) error
	DatabaseSizeKB(ctx context.Context) (int64, error)
	Begin(ctx context.Context) (TransactionContext, error)
}

// TransactionContext represents a database transaction context with repository access
type TransactionContext interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Repository access within transaction
	Ledger() LedgerRepository
	Account() AccountRepository
	User() UserRepository
	Product() ProductRepository
	TaxRate() TaxRateRepository
	Till() TillRepository
	Order() OrderRepository
	Bon() BonRepository
	Cashier() CashierRepository
	Customer() CustomerRepository
	Payout() PayoutRepository
	Config() ConfigRepository
	TSE() TSERepository
}

// RepositoryManager provides access to all repositories and transaction management
type RepositoryManager interface {
	// Repository access
	Ledger() LedgerRepository
	Account() AccountRepository
	User() UserRepository
	Product() ProductRepository
	TaxRate() TaxRateRepository
	Till() TillRepository
	Order() OrderRepository
	Bon() BonRepository
	Cashier() CashierRepository
	Customer() CustomerRepository
	Payout() PayoutRepository
	Config() ConfigRepository
	TSE() TSERepository
	System() SystemRepository

	// Connection management
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	// Transaction management
	WithTransaction(ctx context.Context, fn func(TransactionContext) error) error
}
