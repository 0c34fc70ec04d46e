package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/stustapay/stustapayd/internal/errs"
)

const tokenIssuer = "stustapayd"

// terminalClaims is the token payload handed to a terminal on
// registration. The session uuid ties the token to the till row, so
// wiping the session invalidates every outstanding token for that
// till without any token-side expiry.
type terminalClaims struct {
	TillID      int64  `json:"till_id"`
	SessionUUID string `json:"session_uuid"`
	jwt.RegisteredClaims
}

type userClaims struct {
	UserID      int64  `json:"user_id"`
	SessionUUID string `json:"session_uuid"`
	jwt.RegisteredClaims
}

type customerClaims struct {
	CustomerID  int64  `json:"customer_id"`
	SessionUUID string `json:"session_uuid"`
	jwt.RegisteredClaims
}

// TokenManager mints and verifies the bearer tokens of all three API
// surfaces. Tokens are HS256 over a shared secret and carry a session
// uuid; revocation happens through the session tables, not through
// token expiry.
type TokenManager struct {
	secret []byte
}

func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

func (m *TokenManager) sign(claims jwt.Claims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", errs.Internal("signing token", err)
	}
	return token, nil
}

func (m *TokenManager) parse(token string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil || !parsed.Valid {
		return errs.Unauthenticated()
	}
	return nil
}

func (m *TokenManager) registered() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:   tokenIssuer,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
}

func (m *TokenManager) MintTerminalToken(tillID int64, session uuid.UUID) (string, error) {
	return m.sign(terminalClaims{
		TillID:           tillID,
		SessionUUID:      session.String(),
		RegisteredClaims: m.registered(),
	})
}

func (m *TokenManager) ParseTerminalToken(token string) (int64, uuid.UUID, error) {
	var claims terminalClaims
	if err := m.parse(token, &claims); err != nil {
		return 0, uuid.Nil, err
	}
	session, err := uuid.Parse(claims.SessionUUID)
	if err != nil {
		return 0, uuid.Nil, errs.Unauthenticated()
	}
	return claims.TillID, session, nil
}

func (m *TokenManager) MintUserToken(userID int64, session uuid.UUID) (string, error) {
	return m.sign(userClaims{
		UserID:           userID,
		SessionUUID:      session.String(),
		RegisteredClaims: m.registered(),
	})
}

func (m *TokenManager) ParseUserToken(token string) (int64, uuid.UUID, error) {
	var claims userClaims
	if err := m.parse(token, &claims); err != nil {
		return 0, uuid.Nil, err
	}
	session, err := uuid.Parse(claims.SessionUUID)
	if err != nil {
		return 0, uuid.Nil, errs.Unauthenticated()
	}
	return claims.UserID, session, nil
}

func (m *TokenManager) MintCustomerToken(customerID int64, session uuid.UUID) (string, error) {
	return m.sign(customerClaims{
		CustomerID:       customerID,
		SessionUUID:      session.String(),
		RegisteredClaims: m.registered(),
	})
}

func (m *TokenManager) ParseCustomerToken(token string) (int64, uuid.UUID, error) {
	var claims customerClaims
	if err := m.parse(token, &claims); err != nil {
		return 0, uuid.Nil, err
	}
	session, err := uuid.Parse(claims.SessionUUID)
	if err != nil {
		return 0, uuid.Nil, errs.Unauthenticated()
	}
	return claims.CustomerID, session, nil
}
