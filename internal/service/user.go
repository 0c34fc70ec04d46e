package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stustapay/stustapayd/internal/core/account"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// UserService manages users and roles. Granting a role that carries the
// cashier privilege provisions the user's cashier and transport
// accounts on the spot, so the money flows of the first shift have
// somewhere to book to.
type UserService struct {
	db     relationaldb.RepositoryManager
	logger zerolog.Logger
}

func NewUserService(db relationaldb.RepositoryManager, logger zerolog.Logger) *UserService {
	return &UserService{
		db:     db,
		logger: logger.With().Str("component", "user").Logger(),
	}
}

func hashPassword(password *string) (*string, error) {
	if password == nil {
		return nil, nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errs.Internal("hashing password", err)
	}
	h := string(hashed)
	return &h, nil
}

func (s *UserService) GetUser(ctx context.Context, current *user.CurrentUser, id int64) (*user.User, error) {
	if err := requirePrivileges(current, user.PrivilegeUserManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	u, err := s.db.User().GetUser(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "user", id)
	}
	return u, nil
}

func (s *UserService) ListUsers(ctx context.Context, current *user.CurrentUser, nodeID int64) ([]user.User, error) {
	if err := requirePrivileges(current, user.PrivilegeUserManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	users, err := s.db.User().ListUsers(ctx, nodeID)
	if err != nil {
		return nil, errs.Internal("listing users", err)
	}
	return users, nil
}

func (s *UserService) CreateUser(ctx context.Context, current *user.CurrentUser, nodeID int64, newUser user.NewUser) (*user.User, error) {
	if err := requirePrivileges(current, user.PrivilegeUserManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	hash, err := hashPassword(newUser.Password)
	if err != nil {
		return nil, err
	}
	var created *user.User
	err = s.db.WithTransaction(ctx, func(tx relationaldb.TransactionContext) error {
		u, err := tx.User().CreateUser(ctx, nodeID, newUser, hash)
		if err != nil {
			if relationaldb.IsUniqueViolation(err) {
				return errs.Conflict("a user with this login already exists")
			}
			return errs.Internal("creating user", err)
		}
		if err := s.assignRoles(ctx, tx, u, nodeID, newUser.RoleNames); err != nil {
			return err
		}
		created, err = tx.User().GetUser(ctx, u.ID)
		if err != nil {
			return errs.Internal("reloading user", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", created.ID).Str("login", created.Login).Msg("user created")
	return created, nil
}

func (s *UserService) UpdateUser(ctx context.Context, current *user.CurrentUser, id int64, update user.NewUser) (*user.User, error) {
	if err := requirePrivileges(current, user.PrivilegeUserManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	hash, err := hashPassword(update.Password)
	if err != nil {
		return nil, err
	}
	var updated *user.User
	err = s.db.WithTransaction(ctx, func(tx relationaldb.TransactionContext) error {
		u, err := tx.User().UpdateUser(ctx, id, update, hash)
		if err != nil {
			return wrapNotFound(err, "user", id)
		}
		if err := s.assignRoles(ctx, tx, u, u.NodeID, update.RoleNames); err != nil {
			return err
		}
		updated, err = tx.User().GetUser(ctx, id)
		if err != nil {
			return errs.Internal("reloading user", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// assignRoles replaces the user's role set and, when the set now
// carries the cashier privilege, provisions the cashier and transport
// accounts. Accounts are never torn down when the role is revoked;
// their balances are part of the books.
func (s *UserService) assignRoles(ctx context.Context, tx relationaldb.TransactionContext, u *user.User, nodeID int64, roleNames []string) error {
	roleIDs := make([]int64, 0, len(roleNames))
	needsCashierAccounts := false
	for _, name := range roleNames {
		role, err := tx.User().GetUserRoleByName(ctx, nodeID, name)
		if err != nil {
			return wrapNotFound(err, "user role", name)
		}
		roleIDs = append(roleIDs, role.ID)
		for _, p := range role.Privileges {
			if p == user.PrivilegeCashier {
				needsCashierAccounts = true
			}
		}
	}
	if err := tx.User().SetUserRoles(ctx, u.ID, roleIDs); err != nil {
		return errs.Internal("assigning user roles", err)
	}
	if needsCashierAccounts && u.CashierAccountID == nil {
		cashierAcc, err := tx.Account().CreateAccount(ctx, nodeID, account.KindCashier,
			fmt.Sprintf("cashier account for %s", u.Login))
		if err != nil {
			return errs.Internal("creating cashier account", err)
		}
		transportAcc, err := tx.Account().CreateAccount(ctx, nodeID, account.KindCashier,
			fmt.Sprintf("transport account for %s", u.Login))
		if err != nil {
			return errs.Internal("creating transport account", err)
		}
		if err := tx.User().SetUserAccounts(ctx, u.ID, &cashierAcc, &transportAcc); err != nil {
			return errs.Internal("linking cashier accounts", err)
		}
	}
	return nil
}

func (s *UserService) DeleteUser(ctx context.Context, current *user.CurrentUser, id int64) error {
	if err := requirePrivileges(current, user.PrivilegeUserManagement, user.PrivilegeNodeAdministration); err != nil {
		return err
	}
	if current.ID == id {
		return errs.InvalidArgument("users cannot delete themselves")
	}
	if err := s.db.User().DeleteUser(ctx, id); err != nil {
		if relationaldb.IsConstraintError(err) {
			return errs.Conflict("user is referenced by existing orders or shifts")
		}
		return wrapNotFound(err, "user", id)
	}
	return nil
}

func (s *UserService) GetUserRole(ctx context.Context, current *user.CurrentUser, id int64) (*user.Role, error) {
	if err := requirePrivileges(current, user.PrivilegeUserManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	role, err := s.db.User().GetUserRole(ctx, id)
	if err != nil {
		return nil, wrapNotFound(err, "user role", id)
	}
	return role, nil
}

func (s *UserService) ListUserRoles(ctx context.Context, current *user.CurrentUser, nodeID int64) ([]user.Role, error) {
	if err := requirePrivileges(current, user.PrivilegeUserManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	roles, err := s.db.User().ListUserRoles(ctx, nodeID)
	if err != nil {
		return nil, errs.Internal("listing user roles", err)
	}
	return roles, nil
}

func (s *UserService) CreateUserRole(ctx context.Context, current *user.CurrentUser, nodeID int64, newRole user.NewRole) (*user.Role, error) {
	if err := requirePrivileges(current, user.PrivilegeUserManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	if err := validatePrivileges(newRole.Privileges); err != nil {
		return nil, err
	}
	role, err := s.db.User().CreateUserRole(ctx, nodeID, newRole)
	if err != nil {
		if relationaldb.IsUniqueViolation(err) {
			return nil, errs.Conflict("a role with this name already exists")
		}
		return nil, errs.Internal("creating user role", err)
	}
	s.logger.Info().Str("name", role.Name).Msg("user role created")
	return role, nil
}

func (s *UserService) UpdateUserRole(ctx context.Context, current *user.CurrentUser, id int64, update user.NewRole) (*user.Role, error) {
	if err := requirePrivileges(current, user.PrivilegeUserManagement, user.PrivilegeNodeAdministration); err != nil {
		return nil, err
	}
	if err := validatePrivileges(update.Privileges); err != nil {
		return nil, err
	}
	role, err := s.db.User().UpdateUserRole(ctx, id, update)
	if err != nil {
		return nil, wrapNotFound(err, "user role", id)
	}
	return role, nil
}

func (s *UserService) DeleteUserRole(ctx context.Context, current *user.CurrentUser, id int64) error {
	if err := requirePrivileges(current, user.PrivilegeUserManagement, user.PrivilegeNodeAdministration); err != nil {
		return err
	}
	if err := s.db.User().DeleteUserRole(ctx, id); err != nil {
		if relationaldb.IsConstraintError(err) {
			return errs.Conflict("role is still assigned to users")
		}
		return wrapNotFound(err, "user role", id)
	}
	return nil
}

func validatePrivileges(privileges []user.Privilege) error {
	for _, p := range privileges {
		if !p.Valid() {
			return errs.InvalidArgumentf("unknown privilege %q", string(p))
		}
	}
	return nil
}
