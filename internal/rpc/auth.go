package rpc

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stustapay/stustapayd/internal/core/customer"
	"github.com/stustapay/stustapayd/internal/core/till"
	"github.com/stustapay/stustapayd/internal/core/user"
	"github.com/stustapay/stustapayd/internal/errs"
	"github.com/stustapay/stustapayd/internal/service"
)

type contextKey int

const (
	userContextKey contextKey = iota
	tillContextKey
	customerContextKey
	tokenContextKey
)

// BearerToken extracts the bearer credential from the Authorization
// header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errs.Unauthenticated()
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errs.Unauthenticated()
	}
	return token, nil
}

// Authenticator turns bearer tokens into request principals. Each API
// family mounts the middleware for the principal it serves.
type Authenticator struct {
	auth   *service.AuthService
	logger zerolog.Logger
}

// NewAuthenticator builds the middleware set on top of the auth
// service.
func NewAuthenticator(auth *service.AuthService, logger zerolog.Logger) *Authenticator {
	return &Authenticator{auth: auth, logger: logger}
}

// RequireUser authenticates an administration request and places the
// resulting user in the request context.
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r)
		if err != nil {
			WriteError(w, a.logger, err)
			return
		}
		current, err := a.auth.AuthenticateUser(r.Context(), token)
		if err != nil {
			WriteError(w, a.logger, err)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, current)
		ctx = context.WithValue(ctx, tokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireTerminal authenticates a terminal request by its session
// token and places the till in the request context.
func (a *Authenticator) RequireTerminal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r)
		if err != nil {
			WriteError(w, a.logger, err)
			return
		}
		t, err := a.auth.AuthenticateTerminal(r.Context(), token)
		if err != nil {
			WriteError(w, a.logger, err)
			return
		}
		ctx := context.WithValue(r.Context(), tillContextKey, t)
		ctx = context.WithValue(ctx, tokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCustomer authenticates a portal request and places the
// customer in the request context.
func (a *Authenticator) RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r)
		if err != nil {
			WriteError(w, a.logger, err)
			return
		}
		c, err := a.auth.AuthenticateCustomer(r.Context(), token)
		if err != nil {
			WriteError(w, a.logger, err)
			return
		}
		ctx := context.WithValue(r.Context(), customerContextKey, c)
		ctx = context.WithValue(ctx, tokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFrom returns the authenticated admin user, or nil outside
// RequireUser.
func UserFrom(ctx context.Context) *user.CurrentUser {
	u, _ := ctx.Value(userContextKey).(*user.CurrentUser)
	return u
}

// TillFrom returns the authenticated till, or nil outside
// RequireTerminal.
func TillFrom(ctx context.Context) *till.Till {
	t, _ := ctx.Value(tillContextKey).(*till.Till)
	return t
}

// CustomerFrom returns the authenticated customer, or nil outside
// RequireCustomer.
func CustomerFrom(ctx context.Context) *customer.Customer {
	c, _ := ctx.Value(customerContextKey).(*customer.Customer)
	return c
}

// TokenFrom returns the raw bearer token of the request, needed by
// logout handlers to revoke the session it names.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}
