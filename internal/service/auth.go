package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stustapay/stustapayd/internal/core/customer"
	"github.com/stustapay/stustapayd/internal/core/till"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

// AuthService owns credential checks, session lifecycles and token
// round trips for all three API surfaces. The Authenticate methods run
// once per request in the HTTP middleware; they materialize the acting
// principal fresh from the database so revoked sessions and changed
// role assignments take effect on the next request.
type AuthService struct {
	db     relationaldb.RepositoryManager
	logger zerolog.Logger
	tokens *TokenManager
}

func NewAuthService(db relationaldb.RepositoryManager, logger zerolog.Logger, tokens *TokenManager) *AuthService {
	return &AuthService{
		db:     db,
		logger: logger.With().Str("component", "auth").Logger(),
		tokens: tokens,
	}
}

// UserLoginResult carries the logged-in user and their fresh token.
type UserLoginResult struct {
	User  user.User `json:"user"`
	Token string    `json:"token"`
}

// LoginUser checks a password login against the stored bcrypt hash and
// opens a session. Unknown logins and wrong passwords are deliberately
// indistinguishable to the caller.
func (s *AuthService) LoginUser(ctx context.Context, nodeID int64, login, password string) (*UserLoginResult, error) {
	var result *UserLoginResult
	err := s.db.WithTransaction(ctx, func(tx relationaldb.TransactionContext) error {
		userID, hash, err := tx.User().GetUserPasswordHash(ctx, nodeID, login)
		if err != nil {
			if relationaldb.IsNotFound(err) {
				return errs.AccessDenied("invalid login or password")
			}
			return errs.Internal("loading password hash", err)
		}
		if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
			s.logger.Warn().Str("login", login).Msg("rejected password login")
			return errs.AccessDenied("invalid login or password")
		}
		u, err := tx.User().GetUser(ctx, userID)
		if err != nil {
			return wrapNotFound(err, "user", userID)
		}
		session, err := tx.User().CreateUserSession(ctx, userID)
		if err != nil {
			return errs.Internal("creating user session", err)
		}
		token, err := s.tokens.MintUserToken(userID, session)
		if err != nil {
			return err
		}
		result = &UserLoginResult{User: *u, Token: token}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", result.User.ID).Str("login", login).Msg("user logged in")
	return result, nil
}

// LogoutUser revokes the session the given token belongs to.
func (s *AuthService) LogoutUser(ctx context.Context, current *user.CurrentUser, token string) error {
	if current == nil {
		return errs.Unauthenticated()
	}
	userID, session, err := s.tokens.ParseUserToken(token)
	if err != nil {
		return err
	}
	if userID != current.ID {
		return errs.Unauthenticated()
	}
	if err := s.db.User().DeleteUserSession(ctx, current.ID, session); err != nil {
		return errs.Internal("deleting user session", err)
	}
	return nil
}

// AuthenticateUser resolves a bearer token of the administration API
// into the acting user. The privileges are the union over all assigned
// roles; no role is active outside a terminal login.
func (s *AuthService) AuthenticateUser(ctx context.Context, token string) (*user.CurrentUser, error) {
	userID, session, err := s.tokens.ParseUserToken(token)
	if err != nil {
		return nil, err
	}
	ok, err := s.db.User().HasUserSession(ctx, userID, session)
	if err != nil {
		return nil, errs.Internal("checking user session", err)
	}
	if !ok {
		return nil, errs.Unauthenticated()
	}
	u, err := s.db.User().GetUser(ctx, userID)
	if err != nil {
		if relationaldb.IsNotFound(err) {
			return nil, errs.Unauthenticated()
		}
		return nil, errs.Internal("loading user", err)
	}
	privileges, err := s.db.User().GetUserPrivileges(ctx, userID)
	if err != nil {
		return nil, errs.Internal("loading user privileges", err)
	}
	return &user.CurrentUser{User: *u, Privileges: privileges}, nil
}

// AuthenticateTerminal resolves a terminal bearer token into the till
// it was registered for. A till whose session was reset rejects all
// previously minted tokens.
func (s *AuthService) AuthenticateTerminal(ctx context.Context, token string) (*till.Till, error) {
	tillID, session, err := s.tokens.ParseTerminalToken(token)
	if err != nil {
		return nil, err
	}
	t, err := s.db.Till().GetTillBySession(ctx, tillID, session)
	if err != nil {
		if relationaldb.IsNotFound(err) {
			return nil, errs.Unauthenticated()
		}
		return nil, errs.Internal("loading till session", err)
	}
	return t, nil
}

// TerminalUser materializes the user currently logged in at the till,
// scoped to the role they logged in with. Returns nil without error
// when nobody is logged in; endpoints that need a user enforce that
// themselves.
func (s *AuthService) TerminalUser(ctx context.Context, t *till.Till) (*user.CurrentUser, error) {
	if t.ActiveUserID == nil {
		return nil, nil
	}
	u, err := s.db.User().GetUser(ctx, *t.ActiveUserID)
	if err != nil {
		return nil, wrapNotFound(err, "user", *t.ActiveUserID)
	}
	current := &user.CurrentUser{User: *u}
	if t.ActiveUserRoleID != nil {
		role, err := s.db.User().GetUserRole(ctx, *t.ActiveUserRoleID)
		if err != nil {
			return nil, wrapNotFound(err, "user role", *t.ActiveUserRoleID)
		}
		current.ActiveRoleID = &role.ID
		current.ActiveRoleName = role.Name
		current.Privileges = role.Privileges
	}
	return current, nil
}

// AuthenticateCustomer resolves a customer portal bearer token.
func (s *AuthService) AuthenticateCustomer(ctx context.Context, token string) (*customer.Customer, error) {
	customerID, session, err := s.tokens.ParseCustomerToken(token)
	if err != nil {
		return nil, err
	}
	ok, err := s.db.Customer().HasCustomerSession(ctx, customerID, session)
	if err != nil {
		return nil, errs.Internal("checking customer session", err)
	}
	if !ok {
		return nil, errs.Unauthenticated()
	}
	c, err := s.db.Customer().GetCustomer(ctx, customerID)
	if err != nil {
		if relationaldb.IsNotFound(err) {
			return nil, errs.Unauthenticated()
		}
		return nil, errs.Internal("loading customer", err)
	}
	return c, nil
}

// LogoutCustomer revokes the portal session the token belongs to.
func (s *AuthService) LogoutCustomer(ctx context.Context, c *customer.Customer, token string) error {
	if c == nil {
		return errs.Unauthenticated()
	}
	customerID, session, err := s.tokens.ParseCustomerToken(token)
	if err != nil {
		return err
	}
	if customerID != c.ID {
		return errs.Unauthenticated()
	}
	if err := s.db.Customer().DeleteCustomerSession(ctx, c.ID, session); err != nil {
		return errs.Internal("deleting customer session", err)
	}
	return nil
}

// TerminalToken mints the bearer token handed out on registration.
func (s *AuthService) TerminalToken(tillID int64, session uuid.UUID) (string, error) {
	return s.tokens.MintTerminalToken(tillID, session)
}

// CustomerToken mints the bearer token handed out on portal login.
func (s *AuthService) CustomerToken(customerID int64, session uuid.UUID) (string, error) {
	return s.tokens.MintCustomerToken(customerID, session)
}
