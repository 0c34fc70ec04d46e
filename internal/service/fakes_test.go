package service

import (
	"context"
	"sort"
	"strings"
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
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// fakeDB is an in-memory stand-in for the postgres repositories,
// implementing both RepositoryManager and TransactionContext. It
// mirrors the semantics the services depend on, book_transaction
// included, but not transactional isolation: a "transaction" operates
// on the shared state and a rollback only counts itself, so tests
// assert on the rollback counter rather than on reverted state.
type fakeDB struct {
	nextID int64

	accounts     map[int64]*account.Account
	userTags     map[uint64]*account.UserTag
	transactions []account.Transaction

	users        map[int64]*user.User
	hashes       map[int64]string
	roles        map[int64]*user.Role
	userRoleIDs  map[int64][]int64
	userSessions map[int64]map[uuid.UUID]bool

	products map[int64]*product.Product
	taxRates map[string]*tax.Rate

	tills           map[int64]*till.Till
	profiles        map[int64]*till.Profile
	layouts         map[int64]*till.Layout
	buttons         map[int64]*till.Button
	terminalButtons map[int64][]till.TerminalButton
	registers       map[int64]*till.CashRegister
	stockings       map[int64]*till.CashRegisterStocking

	orders map[int64]*order.Order
	bons   map[int64]*order.Bon
	// order ids whose bon was announced on the notification channel
	bonNotified []int64

	shifts []user.CashierShift

	customerInfos    map[int64]*customer.Info
	customerSessions map[int64]map[uuid.UUID]bool

	payoutRuns map[int64]*payout.Run

	configEntries map[string]string

	tses map[int64]*tse.TSE

	commits   int
	rollbacks int
}

// newFakeDB returns a fake seeded like a fresh schema: the three tax
// rates, the reserved system accounts and products, the virtual till
// and the default config entries.
func newFakeDB() *fakeDB {
	f := &fakeDB{
		nextID:           99,
		accounts:         make(map[int64]*account.Account),
		userTags:         make(map[uint64]*account.UserTag),
		users:            make(map[int64]*user.User),
		hashes:           make(map[int64]string),
		roles:            make(map[int64]*user.Role),
		userRoleIDs:      make(map[int64][]int64),
		userSessions:     make(map[int64]map[uuid.UUID]bool),
		products:         make(map[int64]*product.Product),
		taxRates:         make(map[string]*tax.Rate),
		tills:            make(map[int64]*till.Till),
		profiles:         make(map[int64]*till.Profile),
		layouts:          make(map[int64]*till.Layout),
		buttons:          make(map[int64]*till.Button),
		terminalButtons:  make(map[int64][]till.TerminalButton),
		registers:        make(map[int64]*till.CashRegister),
		stockings:        make(map[int64]*till.CashRegisterStocking),
		orders:           make(map[int64]*order.Order),
		bons:             make(map[int64]*order.Bon),
		customerInfos:    make(map[int64]*customer.Info),
		customerSessions: make(map[int64]map[uuid.UUID]bool),
		payoutRuns:       make(map[int64]*payout.Run),
		configEntries:    make(map[string]string),
		tses:             make(map[int64]*tse.TSE),
	}

	f.taxRates["none"] = &tax.Rate{Name: "none", NodeID: 1, Rate: decimal.Zero, Description: "no tax"}
	f.taxRates["ust"] = &tax.Rate{Name: "ust", NodeID: 1, Rate: decimal.RequireFromString("0.19"), Description: "normal sales tax"}
	f.taxRates["eust"] = &tax.Rate{Name: "eust", NodeID: 1, Rate: decimal.RequireFromString("0.07"), Description: "reduced sales tax"}

	seedAccounts := []struct {
		id   int64
		kind account.Kind
		name string
	}{
		{account.CashVaultID, account.KindCashVault, "Cash Vault"},
		{account.CashEntryID, account.KindCashEntry, "Cash Entry"},
		{account.SumUpID, account.KindSumUp, "SumUp"},
		{account.ImbalanceID, account.KindImbalance, "Imbalance"},
		{account.SepaExitID, account.KindSepaExit, "SEPA Exit"},
		{account.DonationExitID, account.KindDonationExit, "Donation Exit"},
		{account.SaleExitID, account.KindSaleExit, "Sale Exit"},
	}
	for _, a := range seedAccounts {
		f.accounts[a.id] = &account.Account{ID: a.id, NodeID: 1, Kind: a.kind, Name: a.name}
	}

	for id, name := range map[int64]string{
		product.DiscountID:        "Rabatt",
		product.TopUpID:           "Aufladen",
		product.PayOutID:          "Auszahlen",
		product.MoneyTransferID:   "Geldtransit",
		product.MoneyDifferenceID: "DifferenzSollIst",
	} {
		f.products[id] = &product.Product{
			ID: id, NodeID: 1, Name: name, TaxRateName: tax.NameNone,
			TaxRate: decimal.Zero, IsLocked: true,
		}
	}

	f.layouts[1] = &till.Layout{ID: 1, NodeID: 1, Name: "virtual"}
	f.profiles[1] = &till.Profile{ID: 1, NodeID: 1, Name: "virtual", LayoutID: 1}
	f.tills[till.VirtualTillID] = &till.Till{
		ID: till.VirtualTillID, NodeID: 1, Name: "Virtual Till",
		ActiveProfileID: 1, ZNr: 1,
	}

	f.configEntries["currency.symbol"] = "€"
	f.configEntries["currency.identifier"] = "EUR"
	f.configEntries["customer_portal.contact_email"] = ""
	f.configEntries["sumup_topup.enabled"] = "true"
	f.configEntries["voucher.price_per_voucher"] = "2.50"
	f.configEntries["sale.exit_account_id"] = "7"
	f.configEntries["bon.title"] = ""
	f.configEntries["bon.issuer"] = ""
	f.configEntries["bon.address"] = ""
	f.configEntries["bon.ust_id"] = ""

	return f
}

func (f *fakeDB) id() int64 {
	f.nextID++
	return f.nextID
}

func notFoundErr(sentinel error, code string) error {
	return relationaldb.NewNotFoundError("fake", sentinel, code)
}

// --- seeding helpers used by the tests ---

func (f *fakeDB) addTag(uid uint64, pin string) *account.UserTag {
	t := &account.UserTag{ID: f.id(), NodeID: 1, UID: uid, Pin: pin}
	f.userTags[uid] = t
	return t
}

func (f *fakeDB) addCustomer(uid uint64, balance string) *account.Account {
	t, ok := f.userTags[uid]
	if !ok {
		t = f.addTag(uid, "")
	}
	a := &account.Account{
		ID: f.id(), NodeID: 1, Kind: account.KindPrivate,
		Name: "customer", Balance: decimal.RequireFromString(balance),
		UserTagID: &t.ID, UserTagUID: &t.UID,
	}
	f.accounts[a.ID] = a
	return a
}

func (f *fakeDB) addRole(name string, privileges ...user.Privilege) *user.Role {
	r := &user.Role{ID: f.id(), NodeID: 1, Name: name, Privileges: privileges}
	f.roles[r.ID] = r
	return r
}

func (f *fakeDB) addUser(login string, tagUID *uint64, roles ...*user.Role) *user.User {
	u := &user.User{ID: f.id(), NodeID: 1, Login: login, DisplayName: login}
	if tagUID != nil {
		if t, ok := f.userTags[*tagUID]; ok {
			u.UserTagID = &t.ID
			u.UserTagUID = &t.UID
		}
	}
	f.users[u.ID] = u
	for _, r := range roles {
		f.userRoleIDs[u.ID] = append(f.userRoleIDs[u.ID], r.ID)
	}
	return u
}

// addCashier gives the user a cashier account and optionally a
// register, the way role assignment and stock-up would.
func (f *fakeDB) addCashier(login string, drawerBalance string, withRegister bool) *user.User {
	u := f.addUser(login, nil)
	acc := &account.Account{
		ID: f.id(), NodeID: 1, Kind: account.KindCashier,
		Name:    "cashier account for " + login,
		Balance: decimal.RequireFromString(drawerBalance),
	}
	f.accounts[acc.ID] = acc
	u.CashierAccountID = &acc.ID
	if withRegister {
		reg := &till.CashRegister{ID: f.id(), NodeID: 1, Name: "drawer of " + login}
		f.registers[reg.ID] = reg
		u.CashRegisterID = &reg.ID
	}
	return u
}

func (f *fakeDB) addTill(name string, profileID int64) *till.Till {
	t := &till.Till{ID: f.id(), NodeID: 1, Name: name, ActiveProfileID: profileID, ZNr: 1}
	f.tills[t.ID] = t
	return t
}

func (f *fakeDB) addProduct(name, price, taxName string, targetAccountID *int64) *product.Product {
	rate := f.taxRates[taxName]
	p := decimal.RequireFromString(price)
	prod := &product.Product{
		ID: f.id(), NodeID: 1, Name: name, Price: &p, FixedPrice: true,
		TaxRateName: taxName, TaxRate: rate.Rate, TargetAccountID: targetAccountID,
	}
	f.products[prod.ID] = prod
	return prod
}

// --- manager / transaction plumbing ---

func (f *fakeDB) Ledger() relationaldb.LedgerRepository { return (*fakeLedger)(f) }
func (f *fakeDB) Account() relationaldb.AccountRepository { return (*fakeAccounts)(f) }
func (f *fakeDB) User() relationaldb.UserRepository { return (*fakeUsers)(f) }
func (f *fakeDB) Product() relationaldb.ProductRepository { return (*fakeProducts)(f) }
func (f *fakeDB) TaxRate() relationaldb.TaxRateRepository { return (*fakeTaxRates)(f) }
func (f *fakeDB) Till() relationaldb.TillRepository { return (*fakeTills)(f) }
func (f *fakeDB) Order() relationaldb.OrderRepository { return (*fakeOrders)(f) }
func (f *fakeDB) Bon() relationaldb.BonRepository { return (*fakeBons)(f) }
func (f *fakeDB) Cashier() relationaldb.CashierRepository { return (*fakeCashiers)(f) }
func (f *fakeDB) Customer() relationaldb.CustomerRepository { return (*fakeCustomers)(f) }
func (f *fakeDB) Payout() relationaldb.PayoutRepository { return (*fakePayouts)(f) }
func (f *fakeDB) Config() relationaldb.ConfigRepository { return (*fakeConfig)(f) }
func (f *fakeDB) TSE() relationaldb.TSERepository { return (*fakeTSEs)(f) }
func (f *fakeDB) System() relationaldb.SystemRepository { return (*fakeSystem)(f) }

func (f *fakeDB) Open(ctx context.Context) error { return nil }
func (f *fakeDB) Close(ctx context.Context) error { return nil }

func (f *fakeDB) WithTransaction(ctx context.Context, fn func(relationaldb.TransactionContext) error) error {
	if err := fn(f); err != nil {
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

func (f *fakeDB) Commit(ctx context.Context) error { f.commits++; return nil }
func (f *fakeDB) Rollback(ctx context.Context) error { f.rollbacks++; return nil }

type fakeSystem fakeDB

func (f *fakeSystem) Ping(ctx context.Context) error { return nil }
func (f *fakeSystem) DatabaseSizeKB(ctx context.Context) (int64, error) { return 0, nil }
func (f *fakeSystem) Begin(ctx context.Context) (relationaldb.TransactionContext, error) {
	return (*fakeDB)(f), nil
}

// --- ledger ---

type fakeLedger fakeDB

// BookTransaction mirrors the stored procedure: direction flip for
// negative amounts, tax lookup by name, and the funds guard on private
// source accounts.
func (f *fakeLedger) BookTransaction(ctx context.Context, txn relationaldb.NewTransaction) (int64, error) {
	if txn.SourceAccountID == txn.TargetAccountID {
		return 0, relationaldb.NewDataError("book_transaction", "source and target account must differ", nil)
	}
	sourceID, targetID, amount := txn.SourceAccountID, txn.TargetAccountID, txn.Amount
	if amount.IsNegative() {
		sourceID, targetID = targetID, sourceID
		amount = amount.Neg()
	}
	rate, ok := f.taxRates[txn.TaxRateName]
	if !ok {
		return 0, relationaldb.NewDataError("book_transaction",
			"tax rate "+txn.TaxRateName+" does not exist", nil).WithCode("TAX_RATE_NOT_FOUND")
	}
	source, ok := f.accounts[sourceID]
	if !ok {
		return 0, relationaldb.NewDataError("book_transaction",
			"source account does not exist", nil).WithCode("ACCOUNT_NOT_FOUND")
	}
	target, ok := f.accounts[targetID]
	if !ok {
		return 0, relationaldb.NewDataError("book_transaction",
			"target account does not exist", nil).WithCode("ACCOUNT_NOT_FOUND")
	}
	if source.Kind == account.KindPrivate && source.Balance.LessThan(amount) {
		return 0, relationaldb.NewDataError("book_transaction",
			"insufficient funds on source account", nil).WithCode("INSUFFICIENT_FUNDS")
	}
	source.Balance = source.Balance.Sub(amount)
	target.Balance = target.Balance.Add(amount)

	db := (*fakeDB)(f)
	t := account.Transaction{
		ID:              db.id(),
		OrderID:         txn.OrderID,
		SourceAccountID: sourceID,
		TargetAccountID: targetID,
		Amount:          amount,
		TaxRateName:     txn.TaxRateName,
		TaxRate:         rate.Rate,
		BookedAt:        time.Now(),
		Description:     txn.Description,
	}
	f.transactions = append(f.transactions, t)
	return t.ID, nil
}

func (f *fakeLedger) GetTransaction(ctx context.Context, id int64) (*account.Transaction, error) {
	for i := range f.transactions {
		if f.transactions[i].ID == id {
			t := f.transactions[i]
			return &t, nil
		}
	}
	return nil, notFoundErr(relationaldb.ErrNotFound, "TRANSACTION_NOT_FOUND")
}

func (f *fakeLedger) ListOrderTransactions(ctx context.Context, orderID int64) ([]account.Transaction, error) {
	var out []account.Transaction
	for _, t := range f.transactions {
		if t.OrderID != nil && *t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeLedger) ListAccountTransactions(ctx context.Context, accountID int64) ([]account.Transaction, error) {
	var out []account.Transaction
	for _, t := range f.transactions {
		if t.SourceAccountID == accountID || t.TargetAccountID == accountID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeLedger) SumBalances(ctx context.Context) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, a := range f.accounts {
		sum = sum.Add(a.Balance)
	}
	return sum, nil
}

// --- accounts ---

type fakeAccounts fakeDB

func (f *fakeAccounts) GetAccount(ctx context.Context, id int64) (*account.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrAccountNotFound, "ACCOUNT_NOT_FOUND")
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) GetAccountByTagUID(ctx context.Context, tagUID uint64) (*account.Account, error) {
	for _, a := range f.accounts {
		if a.UserTagUID != nil && *a.UserTagUID == tagUID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, notFoundErr(relationaldb.ErrAccountNotFound, "ACCOUNT_NOT_FOUND")
}

func (f *fakeAccounts) ListAccounts(ctx context.Context, nodeID int64, kinds []account.Kind) ([]account.Account, error) {
	var out []account.Account
	for _, a := range f.accounts {
		if a.NodeID != nodeID {
			continue
		}
		if len(kinds) > 0 {
			match := false
			for _, k := range kinds {
				if a.Kind == k {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAccounts) CreateAccount(ctx context.Context, nodeID int64, kind account.Kind, name string) (int64, error) {
	a := &account.Account{ID: (*fakeDB)(f).id(), NodeID: nodeID, Kind: kind, Name: name}
	f.accounts[a.ID] = a
	return a.ID, nil
}

func (f *fakeAccounts) CreateCustomerAccount(ctx context.Context, nodeID int64, userTagID int64) (int64, error) {
	var tag *account.UserTag
	for _, t := range f.userTags {
		if t.ID == userTagID {
			tag = t
			break
		}
	}
	if tag == nil {
		return 0, notFoundErr(relationaldb.ErrUserTagNotFound, "USER_TAG_NOT_FOUND")
	}
	a := &account.Account{
		ID: (*fakeDB)(f).id(), NodeID: nodeID, Kind: account.KindPrivate,
		Name: "customer", UserTagID: &tag.ID, UserTagUID: &tag.UID,
		Restriction: tag.Restriction,
	}
	f.accounts[a.ID] = a
	return a.ID, nil
}

func (f *fakeAccounts) SetAccountBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	a, ok := f.accounts[id]
	if !ok {
		return notFoundErr(relationaldb.ErrAccountNotFound, "ACCOUNT_NOT_FOUND")
	}
	a.Balance = balance
	return nil
}

func (f *fakeAccounts) AddAccountVouchers(ctx context.Context, id int64, delta int64) error {
	a, ok := f.accounts[id]
	if !ok {
		return notFoundErr(relationaldb.ErrAccountNotFound, "ACCOUNT_NOT_FOUND")
	}
	a.Vouchers += delta
	return nil
}

func (f *fakeAccounts) GetUserTag(ctx context.Context, uid uint64) (*account.UserTag, error) {
	t, ok := f.userTags[uid]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrUserTagNotFound, "USER_TAG_NOT_FOUND")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeAccounts) GetUserTagByPin(ctx context.Context, pin string) (*account.UserTag, error) {
	for _, t := range f.userTags {
		if strings.EqualFold(t.Pin, pin) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, notFoundErr(relationaldb.ErrUserTagNotFound, "USER_TAG_NOT_FOUND")
}

// --- users ---

type fakeUsers fakeDB

func (f *fakeUsers) CreateUser(ctx context.Context, nodeID int64, newUser user.NewUser, passwordHash *string) (*user.User, error) {
	for _, u := range f.users {
		if u.NodeID == nodeID && u.Login == newUser.Login {
			return nil, relationaldb.NewConstraintError("create_user", "duplicate login", nil).
				WithCode("UNIQUE_VIOLATION")
		}
	}
	u := &user.User{
		ID: (*fakeDB)(f).id(), NodeID: nodeID, Login: newUser.Login,
		DisplayName: newUser.DisplayName, Description: newUser.Description,
	}
	if newUser.UserTagUID != nil {
		t, ok := f.userTags[*newUser.UserTagUID]
		if !ok {
			return nil, notFoundErr(relationaldb.ErrUserTagNotFound, "USER_TAG_NOT_FOUND")
		}
		u.UserTagID = &t.ID
		u.UserTagUID = &t.UID
	}
	f.users[u.ID] = u
	if passwordHash != nil {
		f.hashes[u.ID] = *passwordHash
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetUser(ctx context.Context, id int64) (*user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetUserByLogin(ctx context.Context, nodeID int64, login string) (*user.User, error) {
	for _, u := range f.users {
		if u.NodeID == nodeID && u.Login == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFoundErr(relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
}

func (f *fakeUsers) GetUserByTagUID(ctx context.Context, tagUID uint64) (*user.User, error) {
	for _, u := range f.users {
		if u.UserTagUID != nil && *u.UserTagUID == tagUID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFoundErr(relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
}

func (f *fakeUsers) GetUserByCashRegister(ctx context.Context, registerID int64) (*user.User, error) {
	for _, u := range f.users {
		if u.CashRegisterID != nil && *u.CashRegisterID == registerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, notFoundErr(relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
}

func (f *fakeUsers) GetUserInfo(ctx context.Context, tagUID uint64) (*user.UserInfo, error) {
	u, err := f.GetUserByTagUID(ctx, tagUID)
	if err != nil {
		return nil, err
	}
	info := &user.UserInfo{User: *u}
	if u.CashierAccountID != nil {
		if a, ok := f.accounts[*u.CashierAccountID]; ok {
			b := a.Balance
			info.CashDrawerBalance = &b
		}
	}
	if u.TransportAccountID != nil {
		if a, ok := f.accounts[*u.TransportAccountID]; ok {
			b := a.Balance
			info.TransportAccountBalance = &b
		}
	}
	if u.CashRegisterID != nil {
		if r, ok := f.registers[*u.CashRegisterID]; ok {
			name := r.Name
			info.CashRegisterName = &name
		}
	}
	return info, nil
}

func (f *fakeUsers) ListUsers(ctx context.Context, nodeID int64) ([]user.User, error) {
	var out []user.User
	for _, u := range f.users {
		if u.NodeID == nodeID {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUsers) UpdateUser(ctx context.Context, id int64, update user.NewUser, passwordHash *string) (*user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}
	u.Login = update.Login
	u.DisplayName = update.DisplayName
	u.Description = update.Description
	if update.UserTagUID != nil {
		t, ok := f.userTags[*update.UserTagUID]
		if !ok {
			return nil, notFoundErr(relationaldb.ErrUserTagNotFound, "USER_TAG_NOT_FOUND")
		}
		u.UserTagID = &t.ID
		u.UserTagUID = &t.UID
	}
	if passwordHash != nil {
		f.hashes[id] = *passwordHash
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) DeleteUser(ctx context.Context, id int64) error {
	if _, ok := f.users[id]; !ok {
		return notFoundErr(relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}
	for _, o := range f.orders {
		if o.CashierID == id {
			return relationaldb.NewConstraintError("delete_user", "user is referenced by orders", nil).
				WithCode("FOREIGN_KEY_VIOLATION")
		}
	}
	delete(f.users, id)
	delete(f.userRoleIDs, id)
	return nil
}

func (f *fakeUsers) GetUserPasswordHash(ctx context.Context, nodeID int64, login string) (int64, string, error) {
	for _, u := range f.users {
		if u.NodeID == nodeID && u.Login == login {
			hash, ok := f.hashes[u.ID]
			if !ok {
				return 0, "", notFoundErr(relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
			}
			return u.ID, hash, nil
		}
	}
	return 0, "", notFoundErr(relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
}

func (f *fakeUsers) SetUserAccounts(ctx context.Context, userID int64, cashierAccountID, transportAccountID *int64) error {
	u, ok := f.users[userID]
	if !ok {
		return notFoundErr(relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}
	u.CashierAccountID = cashierAccountID
	u.TransportAccountID = transportAccountID
	return nil
}

func (f *fakeUsers) SetUserCashRegister(ctx context.Context, userID int64, registerID *int64) error {
	u, ok := f.users[userID]
	if !ok {
		return notFoundErr(relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}
	u.CashRegisterID = registerID
	return nil
}

func (f *fakeUsers) CreateUserRole(ctx context.Context, nodeID int64, newRole user.NewRole) (*user.Role, error) {
	for _, r := range f.roles {
		if r.NodeID == nodeID && r.Name == newRole.Name {
			return nil, relationaldb.NewConstraintError("create_user_role", "duplicate role name", nil).
				WithCode("UNIQUE_VIOLATION")
		}
	}
	r := &user.Role{ID: (*fakeDB)(f).id(), NodeID: nodeID, Name: newRole.Name, Privileges: newRole.Privileges}
	f.roles[r.ID] = r
	cp := *r
	return &cp, nil
}

func (f *fakeUsers) GetUserRole(ctx context.Context, id int64) (*user.Role, error) {
	r, ok := f.roles[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrRoleNotFound, "ROLE_NOT_FOUND")
	}
	cp := *r
	return &cp, nil
}

func (f *fakeUsers) GetUserRoleByName(ctx context.Context, nodeID int64, name string) (*user.Role, error) {
	for _, r := range f.roles {
		if r.NodeID == nodeID && r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, notFoundErr(relationaldb.ErrRoleNotFound, "ROLE_NOT_FOUND")
}

func (f *fakeUsers) ListUserRoles(ctx context.Context, nodeID int64) ([]user.Role, error) {
	var out []user.Role
	for _, r := range f.roles {
		if r.NodeID == nodeID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUsers) UpdateUserRole(ctx context.Context, id int64, update user.NewRole) (*user.Role, error) {
	r, ok := f.roles[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrRoleNotFound, "ROLE_NOT_FOUND")
	}
	r.Name = update.Name
	r.Privileges = update.Privileges
	cp := *r
	return &cp, nil
}

func (f *fakeUsers) DeleteUserRole(ctx context.Context, id int64) error {
	if _, ok := f.roles[id]; !ok {
		return notFoundErr(relationaldb.ErrRoleNotFound, "ROLE_NOT_FOUND")
	}
	for _, roleIDs := range f.userRoleIDs {
		for _, roleID := range roleIDs {
			if roleID == id {
				return relationaldb.NewConstraintError("delete_user_role", "role is still assigned", nil).
					WithCode("FOREIGN_KEY_VIOLATION")
			}
		}
	}
	delete(f.roles, id)
	return nil
}

func (f *fakeUsers) SetUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	if _, ok := f.users[userID]; !ok {
		return notFoundErr(relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}
	f.userRoleIDs[userID] = append([]int64(nil), roleIDs...)
	return nil
}

func (f *fakeUsers) GetUserRoles(ctx context.Context, userID int64) ([]user.Role, error) {
	var out []user.Role
	for _, roleID := range f.userRoleIDs[userID] {
		if r, ok := f.roles[roleID]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeUsers) GetUserPrivileges(ctx context.Context, userID int64) ([]user.Privilege, error) {
	seen := make(map[user.Privilege]bool)
	var out []user.Privilege
	for _, roleID := range f.userRoleIDs[userID] {
		r, ok := f.roles[roleID]
		if !ok {
			continue
		}
		for _, p := range r.Privileges {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (f *fakeUsers) ListTerminalLoginRoles(ctx context.Context, tagUID uint64, profileID int64) ([]user.Role, error) {
	u, err := f.GetUserByTagUID(ctx, tagUID)
	if err != nil {
		return nil, err
	}
	profile, ok := f.profiles[profileID]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrProfileNotFound, "PROFILE_NOT_FOUND")
	}
	allowed := make(map[int64]bool, len(profile.AllowedRoleIDs))
	for _, id := range profile.AllowedRoleIDs {
		allowed[id] = true
	}
	var out []user.Role
	for _, roleID := range f.userRoleIDs[u.ID] {
		if r, ok := f.roles[roleID]; ok && allowed[roleID] {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeUsers) CreateUserSession(ctx context.Context, userID int64) (uuid.UUID, error) {
	session := uuid.New()
	if f.userSessions[userID] == nil {
		f.userSessions[userID] = make(map[uuid.UUID]bool)
	}
	f.userSessions[userID][session] = true
	return session, nil
}

func (f *fakeUsers) HasUserSession(ctx context.Context, userID int64, session uuid.UUID) (bool, error) {
	return f.userSessions[userID][session], nil
}

func (f *fakeUsers) DeleteUserSession(ctx context.Context, userID int64, session uuid.UUID) error {
	delete(f.userSessions[userID], session)
	return nil
}

// --- products ---

type fakeProducts fakeDB

func (f *fakeProducts) CreateProduct(ctx context.Context, nodeID int64, newProduct product.NewProduct) (*product.Product, error) {
	for _, p := range f.products {
		if p.NodeID == nodeID && p.Name == newProduct.Name {
			return nil, relationaldb.NewConstraintError("create_product", "duplicate product name", nil).
				WithCode("UNIQUE_VIOLATION")
		}
	}
	rate, ok := f.taxRates[newProduct.TaxRateName]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrTaxRateNotFound, "TAX_RATE_NOT_FOUND")
	}
	p := &product.Product{
		ID: (*fakeDB)(f).id(), NodeID: nodeID, Name: newProduct.Name,
		Price: newProduct.Price, FixedPrice: newProduct.FixedPrice,
		PriceInVouchers: newProduct.PriceInVouchers,
		TaxRateName:     newProduct.TaxRateName, TaxRate: rate.Rate,
		Restrictions: newProduct.Restrictions, IsLocked: newProduct.IsLocked,
		IsReturnable: newProduct.IsReturnable, TargetAccountID: newProduct.TargetAccountID,
	}
	f.products[p.ID] = p
	cp := *p
	return &cp, nil
}

func (f *fakeProducts) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrProductNotFound, "PRODUCT_NOT_FOUND")
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProducts) ListProducts(ctx context.Context, nodeID int64) ([]product.Product, error) {
	var out []product.Product
	for _, p := range f.products {
		if p.NodeID == nodeID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeProducts) UpdateProduct(ctx context.Context, id int64, update product.NewProduct) (*product.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrProductNotFound, "PRODUCT_NOT_FOUND")
	}
	rate, ok := f.taxRates[update.TaxRateName]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrTaxRateNotFound, "TAX_RATE_NOT_FOUND")
	}
	p.Name = update.Name
	p.Price = update.Price
	p.FixedPrice = update.FixedPrice
	p.PriceInVouchers = update.PriceInVouchers
	p.TaxRateName = update.TaxRateName
	p.TaxRate = rate.Rate
	p.Restrictions = update.Restrictions
	p.IsLocked = update.IsLocked
	p.IsReturnable = update.IsReturnable
	p.TargetAccountID = update.TargetAccountID
	cp := *p
	return &cp, nil
}

func (f *fakeProducts) DeleteProduct(ctx context.Context, id int64) error {
	if _, ok := f.products[id]; !ok {
		return notFoundErr(relationaldb.ErrProductNotFound, "PRODUCT_NOT_FOUND")
	}
	for _, o := range f.orders {
		for _, li := range o.LineItems {
			if li.ProductID == id {
				return relationaldb.NewConstraintError("delete_product", "product referenced by line items", nil).
					WithCode("FOREIGN_KEY_VIOLATION")
			}
		}
	}
	delete(f.products, id)
	return nil
}

// --- tax rates ---

type fakeTaxRates fakeDB

func (f *fakeTaxRates) CreateTaxRate(ctx context.Context, nodeID int64, newRate tax.NewRate) (*tax.Rate, error) {
	if _, ok := f.taxRates[newRate.Name]; ok {
		return nil, relationaldb.NewConstraintError("create_tax_rate", "duplicate tax rate", nil).
			WithCode("UNIQUE_VIOLATION")
	}
	r := &tax.Rate{Name: newRate.Name, NodeID: nodeID, Rate: newRate.Rate, Description: newRate.Description}
	f.taxRates[r.Name] = r
	cp := *r
	return &cp, nil
}

func (f *fakeTaxRates) GetTaxRate(ctx context.Context, name string) (*tax.Rate, error) {
	r, ok := f.taxRates[name]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrTaxRateNotFound, "TAX_RATE_NOT_FOUND")
	}
	cp := *r
	return &cp, nil
}

func (f *fakeTaxRates) ListTaxRates(ctx context.Context, nodeID int64) ([]tax.Rate, error) {
	var out []tax.Rate
	for _, r := range f.taxRates {
		if r.NodeID == nodeID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeTaxRates) UpdateTaxRate(ctx context.Context, name string, update tax.NewRate) (*tax.Rate, error) {
	r, ok := f.taxRates[name]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrTaxRateNotFound, "TAX_RATE_NOT_FOUND")
	}
	r.Rate = update.Rate
	r.Description = update.Description
	cp := *r
	return &cp, nil
}

func (f *fakeTaxRates) DeleteTaxRate(ctx context.Context, name string) error {
	if _, ok := f.taxRates[name]; !ok {
		return notFoundErr(relationaldb.ErrTaxRateNotFound, "TAX_RATE_NOT_FOUND")
	}
	for _, p := range f.products {
		if p.TaxRateName == name {
			return relationaldb.NewConstraintError("delete_tax_rate", "tax rate referenced by products", nil).
				WithCode("FOREIGN_KEY_VIOLATION")
		}
	}
	delete(f.taxRates, name)
	return nil
}

// --- tills ---

type fakeTills fakeDB

func (f *fakeTills) CreateTill(ctx context.Context, nodeID int64, newTill till.NewTill) (*till.Till, error) {
	for _, t := range f.tills {
		if t.NodeID == nodeID && t.Name == newTill.Name {
			return nil, relationaldb.NewConstraintError("create_till", "duplicate till name", nil).
				WithCode("UNIQUE_VIOLATION")
		}
	}
	registration := uuid.New()
	t := &till.Till{
		ID: (*fakeDB)(f).id(), NodeID: nodeID, Name: newTill.Name,
		Description: newTill.Description, ActiveProfileID: newTill.ActiveProfileID,
		RegistrationUUID: &registration, ZNr: 1,
	}
	f.tills[t.ID] = t
	cp := *t
	return &cp, nil
}

func (f *fakeTills) GetTill(ctx context.Context, id int64) (*till.Till, error) {
	t, ok := f.tills[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTills) GetTillByRegistrationUUID(ctx context.Context, registration uuid.UUID) (*till.Till, error) {
	for _, t := range f.tills {
		if t.RegistrationUUID != nil && *t.RegistrationUUID == registration {
			cp := *t
			return &cp, nil
		}
	}
	return nil, notFoundErr(relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
}

func (f *fakeTills) GetTillBySession(ctx context.Context, tillID int64, session uuid.UUID) (*till.Till, error) {
	t, ok := f.tills[tillID]
	if !ok || t.SessionUUID == nil || *t.SessionUUID != session {
		return nil, notFoundErr(relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTills) ListTills(ctx context.Context, nodeID int64) ([]till.Till, error) {
	var out []till.Till
	for _, t := range f.tills {
		if t.NodeID == nodeID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTills) ListActiveTerminals(ctx context.Context, nodeID int64) ([]till.Till, error) {
	var out []till.Till
	for _, t := range f.tills {
		if t.NodeID == nodeID && t.SessionUUID != nil {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTills) UpdateTill(ctx context.Context, id int64, update till.NewTill) (*till.Till, error) {
	t, ok := f.tills[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	t.Name = update.Name
	t.Description = update.Description
	t.ActiveProfileID = update.ActiveProfileID
	cp := *t
	return &cp, nil
}

func (f *fakeTills) DeleteTill(ctx context.Context, id int64) error {
	if _, ok := f.tills[id]; !ok {
		return notFoundErr(relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	for _, o := range f.orders {
		if o.TillID == id {
			return relationaldb.NewConstraintError("delete_till", "till referenced by orders", nil).
				WithCode("FOREIGN_KEY_VIOLATION")
		}
	}
	delete(f.tills, id)
	return nil
}

func (f *fakeTills) StartTillSession(ctx context.Context, tillID int64) (uuid.UUID, error) {
	t, ok := f.tills[tillID]
	if !ok {
		return uuid.Nil, notFoundErr(relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	if t.RegistrationUUID == nil {
		return uuid.Nil, relationaldb.NewDataError("start_till_session",
			"till is not open for registration", relationaldb.ErrTillNotFound).
			WithCode("REGISTRATION_NOT_OPEN")
	}
	session := uuid.New()
	t.RegistrationUUID = nil
	t.SessionUUID = &session
	return session, nil
}

func (f *fakeTills) ResetTillRegistration(ctx context.Context, tillID int64) (uuid.UUID, error) {
	t, ok := f.tills[tillID]
	if !ok {
		return uuid.Nil, notFoundErr(relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	registration := uuid.New()
	t.RegistrationUUID = &registration
	t.SessionUUID = nil
	t.ActiveUserID = nil
	t.ActiveUserRoleID = nil
	t.ActiveCashRegisterID = nil
	return registration, nil
}

func (f *fakeTills) SwitchTillSession(ctx context.Context, fromTillID, toTillID int64) error {
	from, ok := f.tills[fromTillID]
	if !ok {
		return notFoundErr(relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	if from.SessionUUID == nil {
		return relationaldb.NewDataError("switch_till_session",
			"source till has no active session", relationaldb.ErrTillNotFound).
			WithCode("SESSION_NOT_ACTIVE")
	}
	to, ok := f.tills[toTillID]
	if !ok {
		return notFoundErr(relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	if to.RegistrationUUID == nil {
		return relationaldb.NewDataError("switch_till_session",
			"target till is not open for registration", relationaldb.ErrTillNotFound).
			WithCode("REGISTRATION_NOT_OPEN")
	}
	to.SessionUUID = from.SessionUUID
	to.RegistrationUUID = nil
	registration := uuid.New()
	from.SessionUUID = nil
	from.RegistrationUUID = &registration
	from.ActiveUserID = nil
	from.ActiveUserRoleID = nil
	from.ActiveCashRegisterID = nil
	return nil
}

func (f *fakeTills) SetTillActiveUser(ctx context.Context, tillID int64, userID, roleID *int64) error {
	t, ok := f.tills[tillID]
	if !ok {
		return notFoundErr(relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	t.ActiveUserID = userID
	t.ActiveUserRoleID = roleID
	t.ActiveCashRegisterID = nil
	if userID != nil {
		if u, ok := f.users[*userID]; ok {
			t.ActiveCashRegisterID = u.CashRegisterID
		}
	}
	return nil
}

func (f *fakeTills) BumpZNr(ctx context.Context, tillID int64) (int64, error) {
	t, ok := f.tills[tillID]
	if !ok {
		return 0, notFoundErr(relationaldb.ErrTillNotFound, "TILL_NOT_FOUND")
	}
	t.ZNr++
	return t.ZNr, nil
}

func (f *fakeTills) CreateProfile(ctx context.Context, nodeID int64, newProfile till.NewProfile) (*till.Profile, error) {
	p := &till.Profile{
		ID: (*fakeDB)(f).id(), NodeID: nodeID, Name: newProfile.Name,
		Description: newProfile.Description, LayoutID: newProfile.LayoutID,
		AllowTopUp: newProfile.AllowTopUp, AllowCashOut: newProfile.AllowCashOut,
		AllowTicketSale: newProfile.AllowTicketSale, AllowedRoleIDs: newProfile.AllowedRoleIDs,
	}
	f.profiles[p.ID] = p
	cp := *p
	return &cp, nil
}

func (f *fakeTills) GetProfile(ctx context.Context, id int64) (*till.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrProfileNotFound, "PROFILE_NOT_FOUND")
	}
	cp := *p
	return &cp, nil
}

func (f *fakeTills) ListProfiles(ctx context.Context, nodeID int64) ([]till.Profile, error) {
	var out []till.Profile
	for _, p := range f.profiles {
		if p.NodeID == nodeID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTills) UpdateProfile(ctx context.Context, id int64, update till.NewProfile) (*till.Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrProfileNotFound, "PROFILE_NOT_FOUND")
	}
	p.Name = update.Name
	p.Description = update.Description
	p.LayoutID = update.LayoutID
	p.AllowTopUp = update.AllowTopUp
	p.AllowCashOut = update.AllowCashOut
	p.AllowTicketSale = update.AllowTicketSale
	p.AllowedRoleIDs = update.AllowedRoleIDs
	cp := *p
	return &cp, nil
}

func (f *fakeTills) DeleteProfile(ctx context.Context, id int64) error {
	if _, ok := f.profiles[id]; !ok {
		return notFoundErr(relationaldb.ErrProfileNotFound, "PROFILE_NOT_FOUND")
	}
	for _, t := range f.tills {
		if t.ActiveProfileID == id {
			return relationaldb.NewConstraintError("delete_profile", "profile in use", nil).
				WithCode("FOREIGN_KEY_VIOLATION")
		}
	}
	delete(f.profiles, id)
	return nil
}

func (f *fakeTills) CreateLayout(ctx context.Context, nodeID int64, newLayout till.NewLayout) (*till.Layout, error) {
	l := &till.Layout{
		ID: (*fakeDB)(f).id(), NodeID: nodeID, Name: newLayout.Name,
		Description: newLayout.Description, ButtonIDs: newLayout.ButtonIDs,
	}
	f.layouts[l.ID] = l
	cp := *l
	return &cp, nil
}

func (f *fakeTills) GetLayout(ctx context.Context, id int64) (*till.Layout, error) {
	l, ok := f.layouts[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrLayoutNotFound, "LAYOUT_NOT_FOUND")
	}
	cp := *l
	return &cp, nil
}

func (f *fakeTills) ListLayouts(ctx context.Context, nodeID int64) ([]till.Layout, error) {
	var out []till.Layout
	for _, l := range f.layouts {
		if l.NodeID == nodeID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTills) UpdateLayout(ctx context.Context, id int64, update till.NewLayout) (*till.Layout, error) {
	l, ok := f.layouts[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrLayoutNotFound, "LAYOUT_NOT_FOUND")
	}
	l.Name = update.Name
	l.Description = update.Description
	l.ButtonIDs = update.ButtonIDs
	cp := *l
	return &cp, nil
}

func (f *fakeTills) DeleteLayout(ctx context.Context, id int64) error {
	if _, ok := f.layouts[id]; !ok {
		return notFoundErr(relationaldb.ErrLayoutNotFound, "LAYOUT_NOT_FOUND")
	}
	for _, p := range f.profiles {
		if p.LayoutID == id {
			return relationaldb.NewConstraintError("delete_layout", "layout in use", nil).
				WithCode("FOREIGN_KEY_VIOLATION")
		}
	}
	delete(f.layouts, id)
	return nil
}

func (f *fakeTills) CreateButton(ctx context.Context, nodeID int64, newButton till.NewButton) (*till.Button, error) {
	b := &till.Button{ID: (*fakeDB)(f).id(), NodeID: nodeID, Name: newButton.Name, ProductIDs: newButton.ProductIDs}
	f.buttons[b.ID] = b
	cp := *b
	return &cp, nil
}

func (f *fakeTills) GetButton(ctx context.Context, id int64) (*till.Button, error) {
	b, ok := f.buttons[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrButtonNotFound, "BUTTON_NOT_FOUND")
	}
	cp := *b
	return &cp, nil
}

func (f *fakeTills) ListButtons(ctx context.Context, nodeID int64) ([]till.Button, error) {
	var out []till.Button
	for _, b := range f.buttons {
		if b.NodeID == nodeID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTills) UpdateButton(ctx context.Context, id int64, update till.NewButton) (*till.Button, error) {
	b, ok := f.buttons[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrButtonNotFound, "BUTTON_NOT_FOUND")
	}
	b.Name = update.Name
	b.ProductIDs = update.ProductIDs
	cp := *b
	return &cp, nil
}

func (f *fakeTills) DeleteButton(ctx context.Context, id int64) error {
	if _, ok := f.buttons[id]; !ok {
		return notFoundErr(relationaldb.ErrButtonNotFound, "BUTTON_NOT_FOUND")
	}
	delete(f.buttons, id)
	return nil
}

func (f *fakeTills) ListTerminalButtons(ctx context.Context, layoutID int64) ([]till.TerminalButton, error) {
	return f.terminalButtons[layoutID], nil
}

func (f *fakeTills) CreateCashRegister(ctx context.Context, nodeID int64, name string) (*till.CashRegister, error) {
	for _, r := range f.registers {
		if r.NodeID == nodeID && r.Name == name {
			return nil, relationaldb.NewConstraintError("create_cash_register", "duplicate register name", nil).
				WithCode("UNIQUE_VIOLATION")
		}
	}
	r := &till.CashRegister{ID: (*fakeDB)(f).id(), NodeID: nodeID, Name: name}
	f.registers[r.ID] = r
	cp := *r
	return &cp, nil
}

func (f *fakeTills) GetCashRegister(ctx context.Context, id int64) (*till.CashRegister, error) {
	r, ok := f.registers[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrRegisterNotFound, "REGISTER_NOT_FOUND")
	}
	cp := *r
	return &cp, nil
}

func (f *fakeTills) ListCashRegisters(ctx context.Context, nodeID int64) ([]till.CashRegister, error) {
	var out []till.CashRegister
	for _, r := range f.registers {
		if r.NodeID == nodeID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTills) UpdateCashRegister(ctx context.Context, id int64, name string) (*till.CashRegister, error) {
	r, ok := f.registers[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrRegisterNotFound, "REGISTER_NOT_FOUND")
	}
	r.Name = name
	cp := *r
	return &cp, nil
}

func (f *fakeTills) DeleteCashRegister(ctx context.Context, id int64) error {
	if _, ok := f.registers[id]; !ok {
		return notFoundErr(relationaldb.ErrRegisterNotFound, "REGISTER_NOT_FOUND")
	}
	for _, u := range f.users {
		if u.CashRegisterID != nil && *u.CashRegisterID == id {
			return relationaldb.NewConstraintError("delete_cash_register", "register assigned", nil).
				WithCode("FOREIGN_KEY_VIOLATION")
		}
	}
	delete(f.registers, id)
	return nil
}

func (f *fakeTills) CreateStocking(ctx context.Context, nodeID int64, newStocking till.NewCashRegisterStocking) (*till.CashRegisterStocking, error) {
	s := stockingFromNew((*fakeDB)(f).id(), nodeID, newStocking)
	f.stockings[s.ID] = s
	cp := *s
	return &cp, nil
}

func (f *fakeTills) GetStocking(ctx context.Context, id int64) (*till.CashRegisterStocking, error) {
	s, ok := f.stockings[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrStockingNotFound, "STOCKING_NOT_FOUND")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeTills) ListStockings(ctx context.Context, nodeID int64) ([]till.CashRegisterStocking, error) {
	var out []till.CashRegisterStocking
	for _, s := range f.stockings {
		if s.NodeID == nodeID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTills) UpdateStocking(ctx context.Context, id int64, update till.NewCashRegisterStocking) (*till.CashRegisterStocking, error) {
	if _, ok := f.stockings[id]; !ok {
		return nil, notFoundErr(relationaldb.ErrStockingNotFound, "STOCKING_NOT_FOUND")
	}
	s := stockingFromNew(id, f.stockings[id].NodeID, update)
	f.stockings[id] = s
	cp := *s
	return &cp, nil
}

func (f *fakeTills) DeleteStocking(ctx context.Context, id int64) error {
	if _, ok := f.stockings[id]; !ok {
		return notFoundErr(relationaldb.ErrStockingNotFound, "STOCKING_NOT_FOUND")
	}
	delete(f.stockings, id)
	return nil
}

func stockingFromNew(id, nodeID int64, n till.NewCashRegisterStocking) *till.CashRegisterStocking {
	return &till.CashRegisterStocking{
		ID: id, NodeID: nodeID, Name: n.Name,
		Euro200: n.Euro200, Euro100: n.Euro100, Euro50: n.Euro50,
		Euro20: n.Euro20, Euro10: n.Euro10, Euro5: n.Euro5,
		Euro2: n.Euro2, Euro1: n.Euro1,
		Cent50: n.Cent50, Cent20: n.Cent20, Cent10: n.Cent10,
		Cent5: n.Cent5, Cent2: n.Cent2, Cent1: n.Cent1,
		VariableInEuro: n.VariableInEuro,
	}
}

// --- orders ---

type fakeOrders fakeDB

func (f *fakeOrders) CreateOrder(ctx context.Context, row relationaldb.NewOrderRow) (*order.Order, bool, error) {
	for _, o := range f.orders {
		if o.UUID == row.UUID {
			cp := *o
			return &cp, false, nil
		}
	}
	o := &order.Order{
		ID: (*fakeDB)(f).id(), UUID: row.UUID, NodeID: row.NodeID,
		Type: row.Type, Status: order.StatusPending, PaymentMethod: row.PaymentMethod,
		CashierID: row.CashierID, TillID: row.TillID,
		CustomerAccountID: row.CustomerAccountID, CashRegisterID: row.CashRegisterID,
		ItemCount: int64(len(row.LineItems)),
	}
	o.LineItems = make([]order.LineItem, len(row.LineItems))
	copy(o.LineItems, row.LineItems)
	for i := range o.LineItems {
		o.LineItems[i].OrderID = o.ID
	}
	o.ValueSum, o.ValueTax, o.ValueNoTax = order.Values(o.LineItems)
	f.orders[o.ID] = o
	cp := *o
	return &cp, true, nil
}

func (f *fakeOrders) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrOrderNotFound, "ORDER_NOT_FOUND")
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) GetOrderForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	return f.GetOrder(ctx, id)
}

func (f *fakeOrders) ListOrders(ctx context.Context, filter relationaldb.OrderFilter) ([]order.Order, error) {
	var out []order.Order
	for _, o := range f.orders {
		if o.NodeID != filter.NodeID {
			continue
		}
		if filter.TillID != nil && o.TillID != *filter.TillID {
			continue
		}
		if filter.CashierID != nil && o.CashierID != *filter.CashierID {
			continue
		}
		if len(filter.Types) > 0 {
			match := false
			for _, t := range filter.Types {
				if o.Type == t {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeOrders) ListCustomerOrders(ctx context.Context, customerAccountID int64) ([]order.Order, error) {
	var out []order.Order
	for _, o := range f.orders {
		if o.CustomerAccountID != nil && *o.CustomerAccountID == customerAccountID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeOrders) ListCustomerOrdersWithBon(ctx context.Context, customerAccountID int64) ([]order.OrderWithBon, error) {
	orders, err := f.ListCustomerOrders(ctx, customerAccountID)
	if err != nil {
		return nil, err
	}
	out := make([]order.OrderWithBon, 0, len(orders))
	for _, o := range orders {
		owb := order.OrderWithBon{Order: o}
		if b, ok := f.bons[o.ID]; ok {
			owb.BonGenerated = b.Generated
		}
		out = append(out, owb)
	}
	return out, nil
}

func (f *fakeOrders) FinishOrder(ctx context.Context, id int64, zNr int64) (time.Time, error) {
	o, ok := f.orders[id]
	if !ok {
		return time.Time{}, notFoundErr(relationaldb.ErrOrderNotFound, "ORDER_NOT_FOUND")
	}
	bookedAt := time.Now()
	o.Status = order.StatusDone
	o.ZNr = zNr
	o.BookedAt = &bookedAt
	return bookedAt, nil
}

func (f *fakeOrders) CancelOrder(ctx context.Context, id int64) error {
	o, ok := f.orders[id]
	if !ok {
		return notFoundErr(relationaldb.ErrOrderNotFound, "ORDER_NOT_FOUND")
	}
	o.Status = order.StatusCancelled
	return nil
}

// --- bons ---

type fakeBons fakeDB

func (f *fakeBons) CreateBon(ctx context.Context, orderID int64) error {
	f.bons[orderID] = &order.Bon{OrderID: orderID}
	return nil
}

func (f *fakeBons) NotifyBon(ctx context.Context, orderID int64) error {
	f.bonNotified = append(f.bonNotified, orderID)
	return nil
}

func (f *fakeBons) GetBon(ctx context.Context, orderID int64) (*order.Bon, error) {
	b, ok := f.bons[orderID]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrBonNotFound, "BON_NOT_FOUND")
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBons) ListPendingBons(ctx context.Context, limit int) ([]int64, error) {
	var out []int64
	for id, b := range f.bons {
		if !b.Generated && b.Error == nil {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeBons) MarkBonGenerated(ctx context.Context, orderID int64) error {
	b, ok := f.bons[orderID]
	if !ok {
		return notFoundErr(relationaldb.ErrBonNotFound, "BON_NOT_FOUND")
	}
	now := time.Now()
	b.Generated = true
	b.GeneratedAt = &now
	return nil
}

func (f *fakeBons) MarkBonError(ctx context.Context, orderID int64, message string) error {
	b, ok := f.bons[orderID]
	if !ok {
		return notFoundErr(relationaldb.ErrBonNotFound, "BON_NOT_FOUND")
	}
	b.Error = &message
	return nil
}

// --- cashiers ---

type fakeCashiers fakeDB

func (f *fakeCashiers) cashierView(u *user.User) *user.Cashier {
	c := &user.Cashier{User: *u}
	if u.CashierAccountID != nil {
		if a, ok := f.accounts[*u.CashierAccountID]; ok {
			c.CashDrawerBalance = a.Balance
		}
	}
	return c
}

func (f *fakeCashiers) ListCashiers(ctx context.Context, nodeID int64) ([]user.Cashier, error) {
	var out []user.Cashier
	for _, u := range f.users {
		if u.NodeID == nodeID && u.CashierAccountID != nil {
			out = append(out, *f.cashierView(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeCashiers) GetCashier(ctx context.Context, id int64) (*user.Cashier, error) {
	u, ok := f.users[id]
	if !ok || u.CashierAccountID == nil {
		return nil, notFoundErr(relationaldb.ErrUserNotFound, "USER_NOT_FOUND")
	}
	return f.cashierView(u), nil
}

func (f *fakeCashiers) GetCashierShiftStart(ctx context.Context, cashierID int64) (*time.Time, error) {
	var lastEnd *time.Time
	for i := range f.shifts {
		if f.shifts[i].CashierID == cashierID {
			if lastEnd == nil || f.shifts[i].EndedAt.After(*lastEnd) {
				lastEnd = &f.shifts[i].EndedAt
			}
		}
	}
	var start *time.Time
	for _, o := range f.orders {
		if o.CashierID != cashierID || o.BookedAt == nil {
			continue
		}
		if lastEnd != nil && !o.BookedAt.After(*lastEnd) {
			continue
		}
		if start == nil || o.BookedAt.Before(*start) {
			start = o.BookedAt
		}
	}
	return start, nil
}

func (f *fakeCashiers) IsCashierActiveOnTill(ctx context.Context, cashierID int64) (bool, error) {
	for _, t := range f.tills {
		if t.ActiveUserID != nil && *t.ActiveUserID == cashierID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCashiers) CreateCashierShift(ctx context.Context, shift user.NewCashierShift) (*user.CashierShift, error) {
	s := user.CashierShift{
		ID:                        (*fakeDB)(f).id(),
		CashierID:                 shift.CashierID,
		StartedAt:                 shift.StartedAt,
		EndedAt:                   shift.EndedAt,
		ActualCashDrawerBalance:   shift.ActualCashDrawerBalance,
		ExpectedCashDrawerBalance: shift.ExpectedCashDrawerBalance,
		CashDrawerImbalance:       shift.Imbalance(),
		Comment:                   shift.Comment,
		CloseOutOrderID:           shift.CloseOutOrderID,
		ImbalanceOrderID:          shift.ImbalanceOrderID,
		ClosingOutUserID:          shift.ClosingOutUserID,
	}
	f.shifts = append(f.shifts, s)
	cp := s
	return &cp, nil
}

func (f *fakeCashiers) ListCashierShifts(ctx context.Context, cashierID int64) ([]user.CashierShift, error) {
	var out []user.CashierShift
	for _, s := range f.shifts {
		if s.CashierID == cashierID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeCashiers) GetCashierShiftStats(ctx context.Context, cashierID int64, shiftID *int64) (*user.CashierShiftStats, error) {
	stats := &user.CashierShiftStats{CashierID: cashierID, ShiftID: shiftID}
	quantities := make(map[int64]int64)
	for _, o := range f.orders {
		if o.CashierID != cashierID || o.Status != order.StatusDone {
			continue
		}
		for _, li := range o.LineItems {
			quantities[li.ProductID] += li.Quantity
		}
	}
	for productID, quantity := range quantities {
		stats.Products = append(stats.Products, user.ProductStats{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(stats.Products, func(i, j int) bool { return stats.Products[i].ProductID < stats.Products[j].ProductID })
	return stats, nil
}

// --- customers ---

type fakeCustomers fakeDB

func (f *fakeCustomers) customerView(a *account.Account) *customer.Customer {
	c := &customer.Customer{Account: *a}
	if info, ok := f.customerInfos[a.ID]; ok {
		cp := *info
		c.Info = &cp
	}
	return c
}

func (f *fakeCustomers) GetCustomer(ctx context.Context, accountID int64) (*customer.Customer, error) {
	a, ok := f.accounts[accountID]
	if !ok || a.Kind != account.KindPrivate {
		return nil, notFoundErr(relationaldb.ErrCustomerNotFound, "CUSTOMER_NOT_FOUND")
	}
	return f.customerView(a), nil
}

func (f *fakeCustomers) GetCustomerByPin(ctx context.Context, pin string) (*customer.Customer, error) {
	for _, t := range f.userTags {
		if t.Pin != "" && strings.EqualFold(t.Pin, pin) {
			for _, a := range f.accounts {
				if a.Kind == account.KindPrivate && a.UserTagID != nil && *a.UserTagID == t.ID {
					return f.customerView(a), nil
				}
			}
		}
	}
	return nil, notFoundErr(relationaldb.ErrCustomerNotFound, "CUSTOMER_NOT_FOUND")
}

func (f *fakeCustomers) CreateCustomerSession(ctx context.Context, accountID int64) (uuid.UUID, error) {
	session := uuid.New()
	if f.customerSessions[accountID] == nil {
		f.customerSessions[accountID] = make(map[uuid.UUID]bool)
	}
	f.customerSessions[accountID][session] = true
	return session, nil
}

func (f *fakeCustomers) HasCustomerSession(ctx context.Context, accountID int64, session uuid.UUID) (bool, error) {
	return f.customerSessions[accountID][session], nil
}

func (f *fakeCustomers) DeleteCustomerSession(ctx context.Context, accountID int64, session uuid.UUID) error {
	delete(f.customerSessions[accountID], session)
	return nil
}

func (f *fakeCustomers) UpdateCustomerInfo(ctx context.Context, accountID int64, bank customer.Bank) error {
	if _, ok := f.accounts[accountID]; !ok {
		return notFoundErr(relationaldb.ErrCustomerNotFound, "CUSTOMER_NOT_FOUND")
	}
	donation := bank.Donation
	f.customerInfos[accountID] = &customer.Info{
		CustomerAccountID: accountID,
		IBAN:              &bank.IBAN,
		AccountName:       &bank.AccountName,
		Email:             &bank.Email,
		Donation:          &donation,
		HasEnteredInfo:    true,
		PayoutExport:      true,
	}
	return nil
}

func (f *fakeCustomers) SetDonateAll(ctx context.Context, accountID int64) error {
	if _, ok := f.accounts[accountID]; !ok {
		return notFoundErr(relationaldb.ErrCustomerNotFound, "CUSTOMER_NOT_FOUND")
	}
	f.customerInfos[accountID] = &customer.Info{
		CustomerAccountID: accountID,
		DonateAll:         true,
		HasEnteredInfo:    true,
		PayoutExport:      true,
	}
	return nil
}

// --- payouts ---

type fakePayouts fakeDB

// payoutView mirrors the payout database view: private accounts with
// bank data, no recorded error, and a positive residual after the
// donation.
func (f *fakePayouts) payoutView() []payout.Payout {
	var out []payout.Payout
	for _, a := range f.accounts {
		if a.Kind != account.KindPrivate || a.UserTagUID == nil {
			continue
		}
		info, ok := f.customerInfos[a.ID]
		if !ok || info.IBAN == nil || !info.PayoutExport || info.PayoutError != nil {
			continue
		}
		amount := a.Balance.Sub(info.EffectiveDonation(a.Balance)).Round(2)
		if !amount.IsPositive() {
			continue
		}
		p := payout.Payout{
			CustomerAccountID: a.ID,
			IBAN:              *info.IBAN,
			UserTagUID:        *a.UserTagUID,
			Amount:            amount,
			PayoutRunID:       info.PayoutRunID,
		}
		if info.AccountName != nil {
			p.AccountName = *info.AccountName
		}
		if info.Email != nil {
			p.Email = *info.Email
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerAccountID < out[j].CustomerAccountID })
	return out
}

func (f *fakePayouts) CreatePayoutRun(ctx context.Context, createdBy string, executionDate time.Time) (*payout.Run, error) {
	run := &payout.Run{
		ID: (*fakeDB)(f).id(), CreatedAt: time.Now(),
		CreatedBy: createdBy, ExecutionDate: executionDate,
	}
	f.payoutRuns[run.ID] = run
	cp := *run
	return &cp, nil
}

func (f *fakePayouts) AttachEligibleCustomers(ctx context.Context, runID int64, maxPayoutSum decimal.Decimal) (int64, error) {
	var attached int64
	runningTotal := decimal.Zero
	for _, p := range f.payoutView() {
		if p.PayoutRunID != nil {
			continue
		}
		runningTotal = runningTotal.Add(p.Amount)
		if runningTotal.GreaterThan(maxPayoutSum) {
			break
		}
		f.customerInfos[p.CustomerAccountID].PayoutRunID = &runID
		attached++
	}
	return attached, nil
}

func (f *fakePayouts) GetPayoutRun(ctx context.Context, id int64) (*payout.Run, error) {
	run, ok := f.payoutRuns[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrPayoutRunNotFound, "PAYOUT_RUN_NOT_FOUND")
	}
	cp := *run
	return &cp, nil
}

func (f *fakePayouts) ListPayoutRuns(ctx context.Context) ([]payout.Run, error) {
	var out []payout.Run
	for _, run := range f.payoutRuns {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakePayouts) ListRunPayouts(ctx context.Context, runID int64, limit, offset int64) ([]payout.Payout, error) {
	var matching []payout.Payout
	for _, p := range f.payoutView() {
		if p.PayoutRunID != nil && *p.PayoutRunID == runID {
			matching = append(matching, p)
		}
	}
	if limit <= 0 {
		return matching, nil
	}
	if offset >= int64(len(matching)) {
		return nil, nil
	}
	end := offset + limit
	if end > int64(len(matching)) {
		end = int64(len(matching))
	}
	return matching[offset:end], nil
}

func (f *fakePayouts) PendingPayouts(ctx context.Context) (*relationaldb.PendingPayoutStats, error) {
	stats := &relationaldb.PendingPayoutStats{Total: decimal.Zero}
	for _, p := range f.payoutView() {
		if p.PayoutRunID == nil {
			stats.Count++
			stats.Total = stats.Total.Add(p.Amount)
		}
	}
	return stats, nil
}

func (f *fakePayouts) MarkPayoutRunDone(ctx context.Context, runID int64) error {
	run, ok := f.payoutRuns[runID]
	if !ok {
		return notFoundErr(relationaldb.ErrPayoutRunNotFound, "PAYOUT_RUN_NOT_FOUND")
	}
	now := time.Now()
	run.SetDoneAt = &now
	return nil
}

func (f *fakePayouts) SetPayoutError(ctx context.Context, customerAccountID int64, message string) error {
	info, ok := f.customerInfos[customerAccountID]
	if !ok {
		return notFoundErr(relationaldb.ErrCustomerNotFound, "CUSTOMER_NOT_FOUND")
	}
	info.PayoutError = &message
	return nil
}

// --- config ---

type fakeConfig fakeDB

func (f *fakeConfig) GetConfigEntry(ctx context.Context, key string) (*relationaldb.ConfigEntry, error) {
	value, ok := f.configEntries[key]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrConfigKeyNotFound, "CONFIG_KEY_NOT_FOUND")
	}
	return &relationaldb.ConfigEntry{Key: key, Value: value}, nil
}

func (f *fakeConfig) ListConfigEntries(ctx context.Context) ([]relationaldb.ConfigEntry, error) {
	out := make([]relationaldb.ConfigEntry, 0, len(f.configEntries))
	for key, value := range f.configEntries {
		out = append(out, relationaldb.ConfigEntry{Key: key, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeConfig) SetConfigEntry(ctx context.Context, key, value string) (*relationaldb.ConfigEntry, error) {
	if _, ok := f.configEntries[key]; !ok {
		return nil, notFoundErr(relationaldb.ErrConfigKeyNotFound, "CONFIG_KEY_NOT_FOUND")
	}
	f.configEntries[key] = value
	return &relationaldb.ConfigEntry{Key: key, Value: value}, nil
}

// --- tses ---

type fakeTSEs fakeDB

func (f *fakeTSEs) CreateTSE(ctx context.Context, nodeID int64, newTSE tse.NewTSE) (*tse.TSE, error) {
	t := &tse.TSE{
		ID: (*fakeDB)(f).id(), NodeID: nodeID, Name: newTSE.Name,
		Status: tse.StatusNew, Serial: newTSE.Serial, WsURL: newTSE.WsURL,
		WsTimeout: newTSE.WsTimeout, Password: newTSE.Password,
	}
	f.tses[t.ID] = t
	cp := *t
	return &cp, nil
}

func (f *fakeTSEs) GetTSE(ctx context.Context, id int64) (*tse.TSE, error) {
	t, ok := f.tses[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrTSENotFound, "TSE_NOT_FOUND")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTSEs) ListTSEs(ctx context.Context, nodeID int64) ([]tse.TSE, error) {
	var out []tse.TSE
	for _, t := range f.tses {
		if t.NodeID == nodeID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeTSEs) UpdateTSE(ctx context.Context, id int64, update tse.UpdateTSE) (*tse.TSE, error) {
	t, ok := f.tses[id]
	if !ok {
		return nil, notFoundErr(relationaldb.ErrTSENotFound, "TSE_NOT_FOUND")
	}
	t.Name = update.Name
	t.WsURL = update.WsURL
	t.WsTimeout = update.WsTimeout
	t.Password = update.Password
	cp := *t
	return &cp, nil
}
