package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess      = "access"
	TokenTypeRefresh     = "refresh"
	TokenTypeLoginTicket = "login_ticket"
)

type Claims struct {
	TokenType    string   `json:"token_type"`
	SessionID    string   `json:"sid,omitempty"`
	SelectedRole string   `json:"role,omitempty"`
	Roles        []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	issuer        string
	audience      string
	accessSecret  []byte
	refreshSecret []byte
	ticketSecret  []byte
	now           func() time.Time
}

func NewJWTManager(issuer, audience, accessSecret, refreshSecret, ticketSecret string) *JWTManager {
	return &JWTManager{
		issuer:        issuer,
		audience:      audience,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		ticketSecret:  []byte(ticketSecret),
		now:           time.Now,
	}
}

// WithClock replaces the time source used for issued-at and expiry claims.
func (m *JWTManager) WithClock(now func() time.Time) *JWTManager {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *JWTManager) SignAccessToken(principalID string, roles []string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		TokenType:        TokenTypeAccess,
		Roles:            roles,
		RegisteredClaims: m.registered(principalID, uuid.NewString(), now, ttl),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
}

func (m *JWTManager) SignRefreshToken(principalID, sessionID string, ttl time.Duration) (string, *Claims, error) {
	now := m.now()
	claims := &Claims{
		TokenType:        TokenTypeRefresh,
		SessionID:        sessionID,
		RegisteredClaims: m.registered(principalID, uuid.NewString(), now, ttl),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.refreshSecret)
	if err != nil {
		return "", nil, err
	}
	return raw, claims, nil
}

// SignLoginTicket mints a ticket bound to one QR session and one identity.
func (m *JWTManager) SignLoginTicket(principalID, sessionID, selectedRole string, roles []string, ttl time.Duration) (string, *Claims, error) {
	now := m.now()
	claims := &Claims{
		TokenType:        TokenTypeLoginTicket,
		SessionID:        sessionID,
		SelectedRole:     selectedRole,
		Roles:            roles,
		RegisteredClaims: m.registered(principalID, uuid.NewString(), now, ttl),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.ticketSecret)
	if err != nil {
		return "", nil, err
	}
	return raw, claims, nil
}

func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	return m.parse(raw, m.accessSecret, TokenTypeAccess)
}

func (m *JWTManager) ParseRefreshToken(raw string) (*Claims, error) {
	return m.parse(raw, m.refreshSecret, TokenTypeRefresh)
}

func (m *JWTManager) ParseLoginTicket(raw string) (*Claims, error) {
	claims, err := m.parse(raw, m.ticketSecret, TokenTypeLoginTicket)
	if err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, errors.New("login ticket missing session id")
	}
	return claims, nil
}

func (m *JWTManager) registered(subject, id string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   subject,
		Audience:  []string{m.audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        id,
	}
}

func (m *JWTManager) parse(raw string, secret []byte, tokenType string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing subject")
	}
	return claims, nil
}
