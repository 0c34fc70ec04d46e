package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stustapay/stustapayd/internal/config"
	"github.com/stustapay/stustapayd/internal/core/till"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
)

func newTillService(f *fakeDB, core config.CoreConfig) *TillService {
	auth := NewAuthService(f, nopLogger(), NewTokenManager("test-secret"))
	return NewTillService(f, nopLogger(), auth, core)
}

func TestTerminalRegistration(t *testing.T) {
	f := newFakeDB()
	svc := newTillService(f, config.CoreConfig{})
	auth := NewAuthService(f, nopLogger(), NewTokenManager("test-secret"))
	ctx := context.Background()

	adminUser := f.addUser("admin", nil)
	created, err := svc.CreateTill(ctx, admin(adminUser), 1, till.NewTill{
		Name: "Bierstand 3", ActiveProfileID: 1,
	})
	require.NoError(t, err)
	require.NotNil(t, created.RegistrationUUID)

	result, err := svc.RegisterTerminal(ctx, *created.RegistrationUUID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, result.Till.ID)
	assert.NotEmpty(t, result.Token)
	assert.Nil(t, result.Till.RegistrationUUID, "registration must be consumed")
	require.NotNil(t, result.Till.SessionUUID)

	t.Run("token authenticates the terminal", func(t *testing.T) {
		authed, err := auth.AuthenticateTerminal(ctx, result.Token)
		require.NoError(t, err)
		assert.Equal(t, created.ID, authed.ID)
	})

	t.Run("uuid is one shot", func(t *testing.T) {
		_, err := svc.RegisterTerminal(ctx, *created.RegistrationUUID)
		require.Error(t, err)
		assert.True(t, errs.IsAccessDenied(err))
	})

	t.Run("unknown uuid rejected", func(t *testing.T) {
		_, err := svc.RegisterTerminal(ctx, uuid.New())
		require.Error(t, err)
		assert.True(t, errs.IsAccessDenied(err))
	})

	t.Run("logout invalidates the session and reopens registration", func(t *testing.T) {
		require.NoError(t, svc.LogoutTerminal(ctx, &result.Till))

		_, err := auth.AuthenticateTerminal(ctx, result.Token)
		assert.True(t, errs.IsUnauthenticated(err))

		reopened := f.tills[created.ID]
		require.NotNil(t, reopened.RegistrationUUID)
		assert.Nil(t, reopened.SessionUUID)

		again, err := svc.RegisterTerminal(ctx, *reopened.RegistrationUUID)
		require.NoError(t, err)
		assert.NotEmpty(t, again.Token)
	})
}

// loginFixture builds a till whose profile allows a supervised cashier
// role and a self-sufficient supervisor role.
type loginFixture struct {
	f             *fakeDB
	svc           *TillService
	till          *till.Till
	cashierRole   *user.Role
	superRole     *user.Role
	cashierTag    uint64
	supervisorTag uint64
}

func newLoginFixture(t *testing.T) *loginFixture {
	t.Helper()
	f := newFakeDB()
	cashierRole := f.addRole("cashier", user.PrivilegeCashier, user.PrivilegeSupervisedTerminalLogin)
	superRole := f.addRole("finanzorga", user.PrivilegeCashier, user.PrivilegeTerminalLogin, user.PrivilegeCashierManagement)

	prof := &till.Profile{
		ID: f.id(), NodeID: 1, Name: "bar", LayoutID: 1,
		AllowedRoleIDs: []int64{cashierRole.ID, superRole.ID},
	}
	f.profiles[prof.ID] = prof
	tl := f.addTill("Cocktailbar", prof.ID)

	const cashierTag, supervisorTag = 0xA1, 0xB2
	f.addTag(cashierTag, "")
	f.addTag(supervisorTag, "")
	cashierUID, supervisorUID := uint64(cashierTag), uint64(supervisorTag)
	f.addUser("anna", &cashierUID, cashierRole)
	f.addUser("bernd", &supervisorUID, superRole, cashierRole)

	return &loginFixture{
		f: f, svc: newTillService(f, config.CoreConfig{}), till: tl,
		cashierRole: cashierRole, superRole: superRole,
		cashierTag: cashierTag, supervisorTag: supervisorTag,
	}
}

func (fx *loginFixture) reloadTill(t *testing.T) *till.Till {
	t.Helper()
	current, err := fx.f.Till().GetTill(context.Background(), fx.till.ID)
	require.NoError(t, err)
	return current
}

func TestTerminalUserLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("supervised role needs a supervisor present", func(t *testing.T) {
		fx := newLoginFixture(t)
		_, err := fx.svc.CheckUserLogin(ctx, fx.till, fx.cashierTag)
		require.Error(t, err)
		assert.True(t, errs.IsAccessDenied(err))
	})

	t.Run("supervisor unlocks the cashier login", func(t *testing.T) {
		fx := newLoginFixture(t)

		roles, err := fx.svc.CheckUserLogin(ctx, fx.till, fx.supervisorTag)
		require.NoError(t, err)
		assert.Len(t, roles, 2, "supervisor may choose either role")

		_, err = fx.svc.LoginUser(ctx, fx.till, fx.supervisorTag, fx.superRole.ID)
		require.NoError(t, err)

		// with the supervisor logged in the cashier tag passes the check
		active := fx.reloadTill(t)
		roles, err = fx.svc.CheckUserLogin(ctx, active, fx.cashierTag)
		require.NoError(t, err)
		require.Len(t, roles, 1)
		assert.Equal(t, fx.cashierRole.ID, roles[0].ID)

		current, err := fx.svc.LoginUser(ctx, active, fx.cashierTag, fx.cashierRole.ID)
		require.NoError(t, err)
		assert.Equal(t, "anna", current.Login)
		assert.Equal(t, "cashier", current.ActiveRoleName)
		assert.ElementsMatch(t, fx.cashierRole.Privileges, current.Privileges)

		active = fx.reloadTill(t)
		require.NotNil(t, active.ActiveUserID)
		assert.Equal(t, current.ID, *active.ActiveUserID)
	})

	t.Run("supervisor logged in as plain cashier does not count", func(t *testing.T) {
		fx := newLoginFixture(t)
		_, err := fx.svc.LoginUser(ctx, fx.till, fx.supervisorTag, fx.cashierRole.ID)
		require.NoError(t, err)

		active := fx.reloadTill(t)
		_, err = fx.svc.CheckUserLogin(ctx, active, fx.cashierTag)
		require.Error(t, err)
		assert.True(t, errs.IsAccessDenied(err))
	})

	t.Run("role outside the profile is rejected", func(t *testing.T) {
		fx := newLoginFixture(t)
		other := fx.f.addRole("orga", user.PrivilegeTerminalLogin)
		_, err := fx.svc.LoginUser(ctx, fx.till, fx.supervisorTag, other.ID)
		require.Error(t, err)
		assert.True(t, errs.IsAccessDenied(err))
	})

	t.Run("unknown tag", func(t *testing.T) {
		fx := newLoginFixture(t)
		_, err := fx.svc.CheckUserLogin(ctx, fx.till, 0xFFFF)
		assert.True(t, errs.IsNotFound(err))
	})

	t.Run("logout clears the active user", func(t *testing.T) {
		fx := newLoginFixture(t)
		_, err := fx.svc.LoginUser(ctx, fx.till, fx.supervisorTag, fx.superRole.ID)
		require.NoError(t, err)

		require.NoError(t, fx.svc.LogoutUser(ctx, fx.till))
		active := fx.reloadTill(t)
		assert.Nil(t, active.ActiveUserID)
		assert.Nil(t, active.ActiveUserRoleID)
	})

	t.Run("force logout needs till management", func(t *testing.T) {
		fx := newLoginFixture(t)
		_, err := fx.svc.LoginUser(ctx, fx.till, fx.supervisorTag, fx.superRole.ID)
		require.NoError(t, err)

		plain := fx.f.addUser("nobody", nil)
		err = fx.svc.ForceLogoutUser(ctx, &user.CurrentUser{User: *plain}, fx.till.ID)
		assert.True(t, errs.IsAccessDenied(err))

		adminUser := fx.f.addUser("admin", nil)
		require.NoError(t, fx.svc.ForceLogoutUser(ctx, admin(adminUser), fx.till.ID))
		assert.Nil(t, fx.reloadTill(t).ActiveUserID)
	})
}

func TestTerminalConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("profile flags and roles", func(t *testing.T) {
		f := newFakeDB()
		role := f.addRole("cashier", user.PrivilegeCashier)
		prof := &till.Profile{
			ID: f.id(), NodeID: 1, Name: "topup", LayoutID: 1,
			AllowTopUp: true, AllowedRoleIDs: []int64{role.ID},
		}
		f.profiles[prof.ID] = prof
		tl := f.addTill("Aufladung 1", prof.ID)

		svc := newTillService(f, config.CoreConfig{
			SumUpAffiliateKey: "sumup-key",
			TestMode:          true,
			TestModeMessage:   "not real money",
		})
		cfg, err := svc.GetTerminalConfig(ctx, tl)
		require.NoError(t, err)
		assert.Equal(t, tl.Name, cfg.Name)
		assert.Equal(t, "topup", cfg.ProfileName)
		assert.True(t, cfg.AllowTopUp)
		assert.False(t, cfg.AllowCashOut)
		require.Len(t, cfg.AvailableRoles, 1)
		assert.Equal(t, "cashier", cfg.AvailableRoles[0].Name)
		require.NotNil(t, cfg.SumUpAffiliateKey)
		assert.Equal(t, "sumup-key", *cfg.SumUpAffiliateKey)
		assert.True(t, cfg.TestMode)
		assert.Equal(t, "not real money", cfg.TestModeMessage)
	})

	t.Run("sumup key withheld from sale-only tills", func(t *testing.T) {
		f := newFakeDB()
		tl := f.addTill("Bierstand", 1)
		svc := newTillService(f, config.CoreConfig{SumUpAffiliateKey: "sumup-key"})

		cfg, err := svc.GetTerminalConfig(ctx, tl)
		require.NoError(t, err)
		assert.Nil(t, cfg.SumUpAffiliateKey)
	})
}

func TestTillAdministration(t *testing.T) {
	ctx := context.Background()

	t.Run("create requires management privilege", func(t *testing.T) {
		f := newFakeDB()
		svc := newTillService(f, config.CoreConfig{})
		plain := f.addUser("nobody", nil)
		_, err := svc.CreateTill(ctx, &user.CurrentUser{User: *plain}, 1, till.NewTill{Name: "X", ActiveProfileID: 1})
		assert.True(t, errs.IsAccessDenied(err))
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		f := newFakeDB()
		svc := newTillService(f, config.CoreConfig{})
		current := admin(f.addUser("admin", nil))
		_, err := svc.CreateTill(ctx, current, 1, till.NewTill{Name: "Bar", ActiveProfileID: 1})
		require.NoError(t, err)
		_, err = svc.CreateTill(ctx, current, 1, till.NewTill{Name: "Bar", ActiveProfileID: 1})
		require.Error(t, err)
		assert.True(t, errs.IsConflict(err))
	})

	t.Run("virtual till cannot be deleted", func(t *testing.T) {
		f := newFakeDB()
		svc := newTillService(f, config.CoreConfig{})
		current := admin(f.addUser("admin", nil))
		err := svc.DeleteTill(ctx, current, till.VirtualTillID)
		assert.True(t, errs.IsInvalidArgument(err))
	})

	t.Run("update and delete", func(t *testing.T) {
		f := newFakeDB()
		svc := newTillService(f, config.CoreConfig{})
		current := admin(f.addUser("admin", nil))
		created, err := svc.CreateTill(ctx, current, 1, till.NewTill{Name: "Bar", ActiveProfileID: 1})
		require.NoError(t, err)

		updated, err := svc.UpdateTill(ctx, current, created.ID, till.NewTill{Name: "Cocktailbar", ActiveProfileID: 1})
		require.NoError(t, err)
		assert.Equal(t, "Cocktailbar", updated.Name)

		require.NoError(t, svc.DeleteTill(ctx, current, created.ID))
		_, err = svc.GetTill(ctx, current, created.ID)
		assert.True(t, errs.IsNotFound(err))
	})

	t.Run("switch moves the terminal session", func(t *testing.T) {
		f := newFakeDB()
		svc := newTillService(f, config.CoreConfig{})
		current := admin(f.addUser("admin", nil))

		source, err := svc.CreateTill(ctx, current, 1, till.NewTill{Name: "Old", ActiveProfileID: 1})
		require.NoError(t, err)
		target, err := svc.CreateTill(ctx, current, 1, till.NewTill{Name: "New", ActiveProfileID: 1})
		require.NoError(t, err)

		registered, err := svc.RegisterTerminal(ctx, *source.RegistrationUUID)
		require.NoError(t, err)
		session := *registered.Till.SessionUUID

		require.NoError(t, svc.SwitchTill(ctx, current, source.ID, target.ID))

		movedTo := f.tills[target.ID]
		require.NotNil(t, movedTo.SessionUUID)
		assert.Equal(t, session, *movedTo.SessionUUID)
		assert.Nil(t, f.tills[source.ID].SessionUUID)
		assert.NotNil(t, f.tills[source.ID].RegistrationUUID, "source reopens for registration")

		// a till without a live session cannot be switched away from
		err = svc.SwitchTill(ctx, current, source.ID, target.ID)
		require.Error(t, err)
		assert.True(t, errs.IsConflict(err))
	})

	t.Run("active terminals listing", func(t *testing.T) {
		f := newFakeDB()
		svc := newTillService(f, config.CoreConfig{})
		current := admin(f.addUser("admin", nil))

		created, err := svc.CreateTill(ctx, current, 1, till.NewTill{Name: "Bar", ActiveProfileID: 1})
		require.NoError(t, err)
		_, err = svc.RegisterTerminal(ctx, *created.RegistrationUUID)
		require.NoError(t, err)

		active, err := svc.ListActiveTerminals(ctx, current, 1)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, created.ID, active[0].ID)
	})
}

func TestTerminalUserInfo(t *testing.T) {
	f := newFakeDB()
	svc := newTillService(f, config.CoreConfig{})
	ctx := context.Background()

	f.addTag(0xC3, "")
	cashier := f.addCashier("clara", "45.00", true)
	tagUID := uint64(0xC3)
	cashier.UserTagUID = &tagUID

	t.Run("self lookup allowed", func(t *testing.T) {
		self := &user.CurrentUser{User: *cashier, Privileges: []user.Privilege{user.PrivilegeCashier}}
		info, err := svc.GetUserInfo(ctx, self, 0xC3)
		require.NoError(t, err)
		require.NotNil(t, info.CashDrawerBalance)
		assert.True(t, info.CashDrawerBalance.Equal(dec("45.00")))
		require.NotNil(t, info.CashRegisterName)
	})

	t.Run("foreign lookup needs management", func(t *testing.T) {
		other := f.addUser("other", nil)
		_, err := svc.GetUserInfo(ctx, &user.CurrentUser{User: *other}, 0xC3)
		assert.True(t, errs.IsAccessDenied(err))

		manager := &user.CurrentUser{User: *other, Privileges: []user.Privilege{user.PrivilegeCashierManagement}}
		info, err := svc.GetUserInfo(ctx, manager, 0xC3)
		require.NoError(t, err)
		assert.Equal(t, "clara", info.Login)
	})
}
