// Integration tests against a real PostgreSQL instance. They skip
// unless STUSTAPAY_TEST_DB holds a connection string, e.g.
//
//	STUSTAPAY_TEST_DB=postgres://stustapay@localhost/stustapay_test?sslmode=disable
//
// Open applies the idempotent schema, and fixtures use random tag uids
// and logins, so the suite can run repeatedly against the same
// database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stustapay/stustapayd/internal/core/account"
	"github.com/stustapay/stustapayd/internal/core/order"
	"github.com/stustapay/stustapayd/internal/core/product"
	"github.com/stustapay/stustapayd/internal/core/tax"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openTestDB(t *testing.T) *RepositoryManager {
	t.Helper()

	dsn := os.Getenv("STUSTAPAY_TEST_DB")
	if dsn == "" {
		t.Skip("STUSTAPAY_TEST_DB not set")
	}

	cfg := relationaldb.NewConfig()
	cfg.ConnectionString = dsn

	rm, err := NewRepositoryManager(cfg)
	require.NoError(t, err)
	require.NoError(t, rm.Open(context.Background()))
	t.Cleanup(func() { _ = rm.Close(context.Background()) })

	return rm
}

// seedTag provisions a user tag the way the chip encoder would: a raw
// row insert, since tags never enter through the API.
func seedTag(t *testing.T, ctx context.Context, rm *RepositoryManager) *account.UserTag {
	t.Helper()

	uid := rand.Uint64()
	_, err := rm.db.ExecContext(ctx,
		`INSERT INTO user_tag (node_id, uid, pin) VALUES (1, $1, $2)`,
		tagUIDArg(uid), fmt.Sprintf("pin-%d", uid))
	require.NoError(t, err)

	tag, err := rm.Account().GetUserTag(ctx, uid)
	require.NoError(t, err)
	return tag
}

func seedCustomer(t *testing.T, ctx context.Context, rm *RepositoryManager) *account.Account {
	t.Helper()

	tag := seedTag(t, ctx, rm)
	accountID, err := rm.Account().CreateCustomerAccount(ctx, 1, tag.ID)
	require.NoError(t, err)
	acct, err := rm.Account().GetAccount(ctx, accountID)
	require.NoError(t, err)
	return acct
}

func seedCashier(t *testing.T, ctx context.Context, rm *RepositoryManager) *user.User {
	t.Helper()

	cashier, err := rm.User().CreateUser(ctx, 1, user.NewUser{
		Login:       fmt.Sprintf("cashier-%d", rand.Uint64()),
		DisplayName: "Test Cashier",
	}, nil)
	require.NoError(t, err)
	return cashier
}

func fund(t *testing.T, ctx context.Context, rm *RepositoryManager, accountID int64, amount string) {
	t.Helper()

	_, err := rm.Ledger().BookTransaction(ctx, relationaldb.NewTransaction{
		Description:     "test funding",
		SourceAccountID: account.CashEntryID,
		TargetAccountID: accountID,
		Amount:          dec(amount),
		TaxRateName:     tax.NameNone,
	})
	require.NoError(t, err)
}

func TestSeededFixtures(t *testing.T) {
	rm := openTestDB(t)
	ctx := context.Background()

	rate, err := rm.TaxRate().GetTaxRate(ctx, tax.NameUst)
	require.NoError(t, err)
	assert.True(t, rate.Rate.Equal(dec("0.19")))

	vault, err := rm.Account().GetAccount(ctx, account.CashVaultID)
	require.NoError(t, err)
	assert.Equal(t, account.KindCashVault, vault.Kind)

	saleExit, err := rm.Account().GetAccount(ctx, account.SaleExitID)
	require.NoError(t, err)
	assert.Equal(t, account.KindSaleExit, saleExit.Kind)

	virtual, err := rm.Till().GetTill(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Virtual Till", virtual.Name)

	topUp, err := rm.Product().GetProduct(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Aufladen", topUp.Name)
	assert.True(t, topUp.IsLocked)

	currency, err := rm.Config().GetConfigEntry(ctx, "currency.identifier")
	require.NoError(t, err)
	assert.Equal(t, "EUR", currency.Value)
}

func TestTagLookups(t *testing.T) {
	rm := openTestDB(t)
	ctx := context.Background()

	tag := seedTag(t, ctx, rm)
	acct, err := rm.Account().CreateCustomerAccount(ctx, 1, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, account.KindPrivate, acct.Kind)
	assert.True(t, acct.Balance.IsZero())

	byUID, err := rm.Account().GetAccountByTagUID(ctx, tag.UID)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, byUID.ID)
	require.NotNil(t, byUID.UserTagUID)
	assert.Equal(t, tag.UID, *byUID.UserTagUID)

	byPin, err := rm.Account().GetUserTagByPin(ctx, tag.Pin)
	require.NoError(t, err)
	assert.Equal(t, tag.ID, byPin.ID)

	// A tag backs at most one account.
	_, err = rm.Account().CreateCustomerAccount(ctx, 1, tag.ID)
	assert.ErrorIs(t, err, relationaldb.ErrUniqueViolation)
}

func TestBookTransactionMovesBalances(t *testing.T) {
	rm := openTestDB(t)
	ctx := context.Background()

	customer := seedCustomer(t, ctx, rm)
	sumBefore, err := rm.Ledger().SumBalances(ctx)
	require.NoError(t, err)

	txnID, err := rm.Ledger().BookTransaction(ctx, relationaldb.NewTransaction{
		Description:     "cash top up",
		SourceAccountID: account.CashEntryID,
		TargetAccountID: customer.ID,
		Amount:          dec("20"),
		TaxRateName:     tax.NameNone,
	})
	require.NoError(t, err)

	reloaded, err := rm.Account().GetAccount(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(dec("20")))

	txn, err := rm.Ledger().GetTransaction(ctx, txnID)
	require.NoError(t, err)
	assert.Equal(t, account.CashEntryID, txn.SourceAccountID)
	assert.Equal(t, customer.ID, txn.TargetAccountID)
	assert.True(t, txn.Amount.Equal(dec("20")))
	assert.Equal(t, tax.NameNone, txn.TaxRateName)

	// A negative amount books the opposite direction; the stored row
	// stays positive with the accounts swapped.
	flipID, err := rm.Ledger().BookTransaction(ctx, relationaldb.NewTransaction{
		Description:     "flipped booking",
		SourceAccountID: customer.ID,
		TargetAccountID: account.CashEntryID,
		Amount:          dec("-5"),
		TaxRateName:     tax.NameNone,
	})
	require.NoError(t, err)

	flipped, err := rm.Ledger().GetTransaction(ctx, flipID)
	require.NoError(t, err)
	assert.Equal(t, account.CashEntryID, flipped.SourceAccountID)
	assert.Equal(t, customer.ID, flipped.TargetAccountID)
	assert.True(t, flipped.Amount.Equal(dec("5")))

	reloaded, err = rm.Account().GetAccount(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(dec("25")))

	history, err := rm.Ledger().ListAccountTransactions(ctx, customer.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	sumAfter, err := rm.Ledger().SumBalances(ctx)
	require.NoError(t, err)
	assert.True(t, sumAfter.Equal(sumBefore), "bookings must not create or destroy money")
}

func TestBookTransactionRejections(t *testing.T) {
	rm := openTestDB(t)
	ctx := context.Background()

	customer := seedCustomer(t, ctx, rm)

	_, err := rm.Ledger().BookTransaction(ctx, relationaldb.NewTransaction{
		Description:     "overdraw",
		SourceAccountID: customer.ID,
		TargetAccountID: account.SaleExitID,
		Amount:          dec("10"),
		TaxRateName:     tax.NameNone,
	})
	assert.ErrorIs(t, err, relationaldb.ErrInsufficientFunds)

	_, err = rm.Ledger().BookTransaction(ctx, relationaldb.NewTransaction{
		Description:     "unknown tax",
		SourceAccountID: account.CashEntryID,
		TargetAccountID: customer.ID,
		Amount:          dec("1"),
		TaxRateName:     "glitter",
	})
	assert.ErrorIs(t, err, relationaldb.ErrTaxRateNotFound)

	_, err = rm.Ledger().BookTransaction(ctx, relationaldb.NewTransaction{
		Description:     "unknown target",
		SourceAccountID: account.CashEntryID,
		TargetAccountID: 424242424242,
		Amount:          dec("1"),
		TaxRateName:     tax.NameNone,
	})
	assert.ErrorIs(t, err, relationaldb.ErrAccountNotFound)

	_, err = rm.Ledger().BookTransaction(ctx, relationaldb.NewTransaction{
		Description:     "self transfer",
		SourceAccountID: customer.ID,
		TargetAccountID: customer.ID,
		Amount:          dec("1"),
		TaxRateName:     tax.NameNone,
	})
	require.Error(t, err)

	reloaded, err := rm.Account().GetAccount(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.IsZero(), "rejected bookings must not move balances")
}

func TestOrderLifecycle(t *testing.T) {
	rm := openTestDB(t)
	ctx := context.Background()

	cashier := seedCashier(t, ctx, rm)
	customer := seedCustomer(t, ctx, rm)

	row := relationaldb.NewOrderRow{
		UUID:              uuid.New(),
		NodeID:            1,
		Type:              order.TypeTopUpCash,
		PaymentMethod:     order.PaymentMethodCash,
		CashierID:         cashier.ID,
		TillID:            1,
		CustomerAccountID: &customer.ID,
		LineItems: []order.LineItem{{
			ItemID:      0,
			ProductID:   2,
			Quantity:    1,
			Price:       dec("20"),
			TaxRateName: tax.NameNone,
			TaxRate:     decimal.Zero,
		}},
	}

	created, isNew, err := rm.Order().CreateOrder(ctx, row)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, order.StatusPending, created.Status)
	require.Len(t, created.LineItems, 1)
	assert.Equal(t, int64(2), created.LineItems[0].ProductID)

	// Replaying the same uuid returns the stored order untouched.
	replayed, isNew, err := rm.Order().CreateOrder(ctx, row)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.ID, replayed.ID)

	bookedAt, err := rm.Order().FinishOrder(ctx, created.ID, 1)
	require.NoError(t, err)
	assert.False(t, bookedAt.IsZero())

	done, err := rm.Order().GetOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDone, done.Status)
	assert.Equal(t, int64(1), done.ItemCount)
	assert.True(t, done.ValueSum.Equal(dec("20")))
	require.NotNil(t, done.BookedAt)

	// The order already left pending, finishing again must fail.
	_, err = rm.Order().FinishOrder(ctx, created.ID, 1)
	require.Error(t, err)

	row.UUID = uuid.New()
	pending, isNew, err := rm.Order().CreateOrder(ctx, row)
	require.NoError(t, err)
	require.True(t, isNew)
	require.NoError(t, rm.Order().CancelOrder(ctx, pending.ID))

	cancelled, err := rm.Order().GetOrder(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
}

func TestConstraintClassification(t *testing.T) {
	rm := openTestDB(t)
	ctx := context.Background()

	// The seeded tax names are taken.
	_, err := rm.TaxRate().CreateTaxRate(ctx, 1, tax.NewRate{Name: tax.NameUst, Rate: dec("0.2")})
	assert.True(t, relationaldb.IsUniqueViolation(err))

	// Products must reference an existing tax rate.
	price := dec("3.50")
	_, err = rm.Product().CreateProduct(ctx, 1, product.NewProduct{
		Name:        fmt.Sprintf("Spezi %d", rand.Uint64()),
		Price:       &price,
		FixedPrice:  true,
		TaxRateName: "glitter",
	})
	assert.ErrorIs(t, err, relationaldb.ErrForeignKeyViolation)

	_, err = rm.Account().GetAccount(ctx, 424242424242)
	assert.True(t, relationaldb.IsNotFound(err))
	assert.ErrorIs(t, err, relationaldb.ErrAccountNotFound)

	_, err = rm.Order().GetOrder(ctx, 424242424242)
	assert.ErrorIs(t, err, relationaldb.ErrOrderNotFound)
}

func TestTransactionRollback(t *testing.T) {
	rm := openTestDB(t)
	ctx := context.Background()

	customer := seedCustomer(t, ctx, rm)
	fund(t, ctx, rm, customer.ID, "15")

	boom := errors.New("boom")
	err := rm.WithTransaction(ctx, func(tx relationaldb.TransactionContext) error {
		if _, err := tx.Ledger().BookTransaction(ctx, relationaldb.NewTransaction{
			Description:     "rolled back",
			SourceAccountID: customer.ID,
			TargetAccountID: account.SaleExitID,
			Amount:          dec("5"),
			TaxRateName:     tax.NameUst,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	reloaded, err := rm.Account().GetAccount(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(dec("15")), "rolled back bookings must not move balances")
}
