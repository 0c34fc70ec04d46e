package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stustapay/stustapayd/internal/config"
	"github.com/stustapay/stustapayd/internal/core/account"
	"github.com/stustapay/stustapayd/internal/core/customer"
	"github.com/stustapay/stustapayd/internal/core/till"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// TillService owns the terminal runtime (registration, user login,
// terminal config, customer lookup) and the administration of tills,
// profiles, layouts and buttons.
type TillService struct {
	db     relationaldb.RepositoryManager
	logger zerolog.Logger
	auth   *AuthService
	core   config.CoreConfig
}

func NewTillService(db relationaldb.RepositoryManager, logger zerolog.Logger, auth *AuthService, core config.CoreConfig) *TillService {
	return &TillService{
		db:     db,
		logger: logger.With().Str("component", "till").Logger(),
		auth:   auth,
		core:   core,
	}
}

// RegisterTerminal consumes a one-shot registration uuid: the till gets
// a fresh session and the terminal a token bound to it. A second
// registration attempt with the same uuid is rejected because the till
// is no longer open for registration.
func (s *TillService) RegisterTerminal(ctx context.Context, registrationUUID uuid.UUID) (*till.RegistrationResult, error) {
	var result *till.RegistrationResult
	err := s.db.WithTransaction(ctx, func(tx relationaldb.TransactionContext) error {
		t, err := tx.Till().GetTillByRegistrationUUID(ctx, registrationUUID)
		if err != nil {
			if relationaldb.IsNotFound(err) {
				return errs.AccessDenied("invalid registration uuid")
			}
			return errs.Internal("loading till", err)
		}
		session, err := tx.Till().StartTillSession(ctx, t.ID)
		if err != nil {
			if relationaldb.IsNotFound(err) {
				return errs.AccessDenied("till is not open for registration")
			}
			return errs.Internal("starting till session", err)
		}
		token, err := s.auth.TerminalToken(t.ID, session)
		if err != nil {
			return err
		}
		registered, err := tx.Till().GetTill(ctx, t.ID)
		if err != nil {
			return wrapNotFound(err, "till", t.ID)
		}
		result = &till.RegistrationResult{Till: *registered, Token: token}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("till_id", result.Till.ID).Str("name", result.Till.Name).
		Msg("terminal registered")
	return result, nil
}

// LogoutTerminal invalidates the till's session and opens it for a new
// registration. Any logged-in user is logged out with it.
func (s *TillService) LogoutTerminal(ctx context.Context, t *till.Till) error {
	if _, err := s.db.Till().ResetTillRegistration(ctx, t.ID); err != nil {
		return wrapNotFound(err, "till", t.ID)
	}
	s.logger.Info().Int64("till_id", t.ID).Msg("terminal logged out")
	return nil
}

// CheckUserLogin returns the roles a scanned tag may log in with at
// this till: the user's roles, intersected with the profile's allowed
// roles, restricted to roles that permit terminal login at all. Users
// whose login must be supervised additionally need a supervisor
// already logged in at the till.
func (s *TillService) CheckUserLogin(ctx context.Context, t *till.Till, tagUID uint64) ([]user.Role, error) {
	if _, err := s.db.Account().GetUserTag(ctx, tagUID); err != nil {
		if relationaldb.IsNotFound(err) {
			return nil, errs.NotFound("user tag", account.FormatTagUID(tagUID))
		}
		return nil, errs.Internal("loading user tag", err)
	}
	candidate, err := s.db.User().GetUserByTagUID(ctx, tagUID)
	if err != nil {
		if relationaldb.IsNotFound(err) {
			return nil, errs.NotFound("user", account.FormatTagUID(tagUID))
		}
		return nil, errs.Internal("loading user", err)
	}
	roles, err := s.db.User().ListTerminalLoginRoles(ctx, tagUID, t.ActiveProfileID)
	if err != nil {
		return nil, errs.Internal("listing login roles", err)
	}
	selfSufficient, err := s.userHasPrivilege(ctx, candidate.ID, user.PrivilegeTerminalLogin)
	if err != nil {
		return nil, err
	}
	if !selfSufficient {
		supervised, err := s.supervisorPresent(ctx, t)
		if err != nil {
			return nil, err
		}
		if !supervised {
			return nil, errs.AccessDenied("supervisor required")
		}
	}
	return roles, nil
}

func (s *TillService) userHasPrivilege(ctx context.Context, userID int64, p user.Privilege) (bool, error) {
	privileges, err := s.db.User().GetUserPrivileges(ctx, userID)
	if err != nil {
		return false, errs.Internal("loading user privileges", err)
	}
	for _, held := range privileges {
		if held == p {
			return true, nil
		}
	}
	return false, nil
}

// supervisorPresent checks the role the current till user logged in
// with, not their overall privilege set: a supervisor who logged in as
// plain cashier does not count.
func (s *TillService) supervisorPresent(ctx context.Context, t *till.Till) (bool, error) {
	if t.ActiveUserRoleID == nil {
		return false, nil
	}
	role, err := s.db.User().GetUserRole(ctx, *t.ActiveUserRoleID)
	if err != nil {
		return false, wrapNotFound(err, "user role", *t.ActiveUserRoleID)
	}
	for _, p := range role.Privileges {
		if p == user.PrivilegeTerminalLogin {
			return true, nil
		}
	}
	return false, nil
}

// LoginUser logs a user in at the till under one of the roles
// CheckUserLogin offered, replacing whoever was logged in before.
func (s *TillService) LoginUser(ctx context.Context, t *till.Till, tagUID uint64, roleID int64) (*user.CurrentUser, error) {
	roles, err := s.CheckUserLogin(ctx, t, tagUID)
	if err != nil {
		return nil, err
	}
	var chosen *user.Role
	for i := range roles {
		if roles[i].ID == roleID {
			chosen = &roles[i]
			break
		}
	}
	if chosen == nil {
		return nil, errs.AccessDenied("the user cannot log in with the requested role at this till")
	}
	u, err := s.db.User().GetUserByTagUID(ctx, tagUID)
	if err != nil {
		return nil, wrapNotFound(err, "user", account.FormatTagUID(tagUID))
	}
	if err := s.db.Till().SetTillActiveUser(ctx, t.ID, &u.ID, &chosen.ID); err != nil {
		return nil, asServiceError("logging in user", err)
	}
	s.logger.Info().Int64("till_id", t.ID).Int64("user_id", u.ID).Str("role", chosen.Name).
		Msg("user logged in at till")
	return &user.CurrentUser{
		User:           *u,
		ActiveRoleID:   &chosen.ID,
		ActiveRoleName: chosen.Name,
		Privileges:     chosen.Privileges,
	}, nil
}

// LogoutUser clears the till's active user.
func (s *TillService) LogoutUser(ctx context.Context, t *till.Till) error {
	if err := s.db.Till().SetTillActiveUser(ctx, t.ID, nil, nil); err != nil {
		return wrapNotFound(err, "till", t.ID)
	}
	return nil
}

// ForceLogoutUser clears another till's active user from the admin
// side, for stuck terminals.
func (s *TillService) ForceLogoutUser(ctx context.Context, current *user.CurrentUser, tillID int64) error {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return err
	}
	if err := s.db.Till().SetTillActiveUser(ctx, tillID, nil, nil); err != nil {
		return wrapNotFound(err, "till", tillID)
	}
	s.logger.Info().Int64("till_id", tillID).Msg("till user force logged out")
	return nil
}

// GetUserInfo returns drawer and transport balances for a scanned tag.
// Users may always look at themselves; inspecting someone else needs a
// management privilege.
func (s *TillService) GetUserInfo(ctx context.Context, current *user.CurrentUser, tagUID uint64) (*user.UserInfo, error) {
	if current == nil {
		return nil, errs.Unauthenticated()
	}
	self := current.UserTagUID != nil && *current.UserTagUID == tagUID
	if !self {
		if err := requirePrivileges(current, user.PrivilegeCashierManagement, user.PrivilegeUserManagement, user.PrivilegeNodeAdministration); err != nil {
			return nil, err
		}
	}
	info, err := s.db.User().GetUserInfo(ctx, tagUID)
	if err != nil {
		return nil, wrapNotFound(err, "user", account.FormatTagUID(tagUID))
	}
	return info, nil
}

// GetTerminalConfig assembles what the terminal needs to render
// itself: profile flags, buttons, allowed roles and, when top ups or
// ticket sales are permitted, the SumUp key.
func (s *TillService) GetTerminalConfig(ctx context.Context, t *till.Till) (*till.TerminalConfig, error) {
	profile, err := s.db.Till().GetProfile(ctx, t.ActiveProfileID)
	if err != nil {
		return nil, wrapNotFound(err, "till profile", t.ActiveProfileID)
	}
	buttons, err := s.db.Till().ListTerminalButtons(ctx, profile.LayoutID)
	if err != nil {
		return nil, errs.Internal("listing terminal buttons", err)
	}
	roles := make([]user.Role, 0, len(profile.AllowedRoleIDs))
	for _, roleID := range profile.AllowedRoleIDs {
		role, err := s.db.User().GetUserRole(ctx, roleID)
		if err != nil {
			return nil, wrapNotFound(err, "user role", roleID)
		}
		roles = append(roles, *role)
	}
	cfg := &till.TerminalConfig{
		ID:              t.ID,
		Name:            t.Name,
		Description:     t.Description,
		ProfileName:     profile.Name,
		AllowTopUp:      profile.AllowTopUp,
		AllowCashOut:    profile.AllowCashOut,
		AllowTicketSale: profile.AllowTicketSale,
		Buttons:         buttons,
		AvailableRoles:  roles,
		TestMode:        s.core.TestMode,
		TestModeMessage: s.core.TestModeMessage,
	}
	if (profile.AllowTopUp || profile.AllowTicketSale) && s.core.SumUpAffiliateKey != "" {
		key := s.core.SumUpAffiliateKey
		cfg.SumUpAffiliateKey = &key
	}
	return cfg, nil
}

// GetCustomer is the terminal-side balance lookup for a scanned tag.
func (s *TillService) GetCustomer(ctx context.Context, current *user.CurrentUser, tagUID uint64) (*customer.Customer, error) {
	if current == nil {
		return nil, errs.Unauthenticated()
	}
	acc, err := s.db.Account().GetAccountByTagUID(ctx, tagUID)
	if err != nil {
		if relationaldb.IsNotFound(err) {
			return nil, errs.NotFound("customer", account.FormatTagUID(tagUID))
		}
		return nil, errs.Internal("loading customer account", err)
	}
	c, err := s.db.Customer().GetCustomer(ctx, acc.ID)
	if err != nil {
		return nil, wrapNotFound(err, "customer", acc.ID)
	}
	return c, nil
}

func (s *TillService) GetTill(ctx context.Context, current *user.CurrentUser, id int64) (*till.Till, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	t, err := s.db.Till().GetTill(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "till", id)
	}
	return t, nil
}

func (s *TillService) ListTills(ctx context.Context, current *user.CurrentUser, nodeID int64) ([]till.Till, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	tills, err := s.db.Till().ListTills(ctx, nodeID)
	if err != nil {
		return nil, errs.Internal("listing tills", err)
	}
	return tills, nil
}

// ListActiveTerminals returns the tills with a live terminal session.
func (s *TillService) ListActiveTerminals(ctx context.Context, current *user.CurrentUser, nodeID int64) ([]till.Till, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	terminals, err := s.db.Till().ListActiveTerminals(ctx, nodeID)
	if err != nil {
		return nil, errs.Internal("listing active terminals", err)
	}
	return terminals, nil
}

func (s *TillService) CreateTill(ctx context.Context, current *user.CurrentUser, nodeID int64, newTill till.NewTill) (*till.Till, error) {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	t, err := s.db.Till().CreateTill(ctx, nodeID, newTill)
	if err != nil {
		if relationaldb.IsUniqueViolation(err) {
			return nil, errs.Conflict("a till with this name already exists")
		}
		return nil, errs.Internal("creating till", err)
	}
	s.logger.Info().Int64("till_id", t.ID).Str("name", t.Name).Msg("till created")
	return t, nil
}

func (s *TillService) UpdateTill(ctx context.Context, current *user.CurrentUser, id int64, update till.NewTill) (*till.Till, error) {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	t, err := s.db.Till().UpdateTill(ctx, id, update)
	if err != nil {
		return nil, wrapNotFound(err, "till", id)
	}
	return t, nil
}

func (s *TillService) DeleteTill(ctx context.Context, current *user.CurrentUser, id int64) error {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return err
	}
	if id == till.VirtualTillID {
		return errs.InvalidArgument("the virtual till cannot be deleted")
	}
	if err := s.db.Till().DeleteTill(ctx, id); err != nil {
		if relationaldb.IsConstraintError(err) {
			return errs.Conflict("till is referenced by existing orders")
		}
		return wrapNotFound(err, "till", id)
	}
	return nil
}

// SwitchTill moves a live terminal session from one till to another
// till that is open for registration; the hardware keeps its token.
func (s *TillService) SwitchTill(ctx context.Context, current *user.CurrentUser, fromTillID, toTillID int64) error {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return err
	}
	err := s.db.WithTransaction(ctx, func(tx relationaldb.TransactionContext) error {
		return tx.Till().SwitchTillSession(ctx, fromTillID, toTillID)
	})
	if err != nil {
		var dbErr *relationaldb.DatabaseError
		if errors.As(err, &dbErr) && dbErr.Code == "SESSION_NOT_ACTIVE" {
			return errs.Conflict("source till has no active terminal session")
		}
		return wrapNotFound(err, "till", fromTillID)
	}
	s.logger.Info().Int64("from_till_id", fromTillID).Int64("to_till_id", toTillID).
		Msg("terminal session switched")
	return nil
}

func (s *TillService) GetProfile(ctx context.Context, current *user.CurrentUser, id int64) (*till.Profile, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	profile, err := s.db.Till().GetProfile(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "till profile", id)
	}
	return profile, nil
}

func (s *TillService) ListProfiles(ctx context.Context, current *user.CurrentUser, nodeID int64) ([]till.Profile, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	profiles, err := s.db.Till().ListProfiles(ctx, nodeID)
	if err != nil {
		return nil, errs.Internal("listing till profiles", err)
	}
	return profiles, nil
}

func (s *TillService) CreateProfile(ctx context.Context, current *user.CurrentUser, nodeID int64, newProfile till.NewProfile) (*till.Profile, error) {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	profile, err := s.db.Till().CreateProfile(ctx, nodeID, newProfile)
	if err != nil {
		if relationaldb.IsUniqueViolation(err) {
			return nil, errs.Conflict("a till profile with this name already exists")
		}
		return nil, errs.Internal("creating till profile", err)
	}
	return profile, nil
}

func (s *TillService) UpdateProfile(ctx context.Context, current *user.CurrentUser, id int64, update till.NewProfile) (*till.Profile, error) {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	profile, err := s.db.Till().UpdateProfile(ctx, id, update)
	if err != nil {
		return nil, wrapNotFound(err, "till profile", id)
	}
	return profile, nil
}

func (s *TillService) DeleteProfile(ctx context.Context, current *user.CurrentUser, id int64) error {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return err
	}
	if err := s.db.Till().DeleteProfile(ctx, id); err != nil {
		if relationaldb.IsConstraintError(err) {
			return errs.Conflict("till profile is still in use")
		}
		return wrapNotFound(err, "till profile", id)
	}
	return nil
}

func (s *TillService) GetLayout(ctx context.Context, current *user.CurrentUser, id int64) (*till.Layout, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	layout, err := s.db.Till().GetLayout(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "till layout", id)
	}
	return layout, nil
}

func (s *TillService) ListLayouts(ctx context.Context, current *user.CurrentUser, nodeID int64) ([]till.Layout, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	layouts, err := s.db.Till().ListLayouts(ctx, nodeID)
	if err != nil {
		return nil, errs.Internal("listing till layouts", err)
	}
	return layouts, nil
}

func (s *TillService) CreateLayout(ctx context.Context, current *user.CurrentUser, nodeID int64, newLayout till.NewLayout) (*till.Layout, error) {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	layout, err := s.db.Till().CreateLayout(ctx, nodeID, newLayout)
	if err != nil {
		if relationaldb.IsUniqueViolation(err) {
			return nil, errs.Conflict("a till layout with this name already exists")
		}
		return nil, errs.Internal("creating till layout", err)
	}
	return layout, nil
}

func (s *TillService) UpdateLayout(ctx context.Context, current *user.CurrentUser, id int64, update till.NewLayout) (*till.Layout, error) {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	layout, err := s.db.Till().UpdateLayout(ctx, id, update)
	if err != nil {
		return nil, wrapNotFound(err, "till layout", id)
	}
	return layout, nil
}

func (s *TillService) DeleteLayout(ctx context.Context, current *user.CurrentUser, id int64) error {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return err
	}
	if err := s.db.Till().DeleteLayout(ctx, id); err != nil {
		if relationaldb.IsConstraintError(err) {
			return errs.Conflict("till layout is still in use")
		}
		return wrapNotFound(err, "till layout", id)
	}
	return nil
}

func (s *TillService) GetButton(ctx context.Context, current *user.CurrentUser, id int64) (*till.Button, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	button, err := s.db.Till().GetButton(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "till button", id)
	}
	return button, nil
}

func (s *TillService) ListButtons(ctx context.Context, current *user.CurrentUser, nodeID int64) ([]till.Button, error) {
	if err := requirePrivileges(current); err != nil {
		return nil, err
	}
	buttons, err := s.db.Till().ListButtons(ctx, nodeID)
	if err != nil {
		return nil, errs.Internal("listing till buttons", err)
	}
	return buttons, nil
}

func (s *TillService) CreateButton(ctx context.Context, current *user.CurrentUser, nodeID int64, newButton till.NewButton) (*till.Button, error) {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	button, err := s.db.Till().CreateButton(ctx, nodeID, newButton)
	if err != nil {
		if relationaldb.IsUniqueViolation(err) {
			return nil, errs.Conflict("a till button with this name already exists")
		}
		return nil, errs.Internal("creating till button", err)
	}
	return button, nil
}

func (s *TillService) UpdateButton(ctx context.Context, current *user.CurrentUser, id int64, update till.NewButton) (*till.Button, error) {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	button, err := s.db.Till().UpdateButton(ctx, id, update)
	if err != nil {
		return nil, wrapNotFound(err, "till button", id)
	}
	return button, nil
}

func (s *TillService) DeleteButton(ctx context.Context, current *user.CurrentUser, id int64) error {
	if err := requirePrivileges(current, user.PrivilegeTillManagement, user.PrivilegeNodeAdministration); err != nil {
		return err
	}
	if err := s.db.Till().DeleteButton(ctx, id); err != nil {
		if relationaldb.IsConstraintError(err) {
			return errs.Conflict("till button is still in use")
		}
		return wrapNotFound(err, "till button", id)
	}
	return nil
}
