// Package auth issues and verifies the bearer tokens of the operator API.
package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/meschain/webhook-gateway/internal/infrastructure/config"
)

// Operator roles
const (
	// RoleViewer may read the event log and statistics.
	RoleViewer = "webhook:read"
	// RoleOperator may additionally requeue failed events.
	RoleOperator = "webhook:retry"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrMissingSecret    = errors.New("jwt secret is not configured")
	ErrMissingSubject   = errors.New("missing subject in claims")
)

// Claims are the claims of an operator token
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the token carries role. RoleOperator implies
// RoleViewer.
func (c *Claims) HasRole(role string) bool {
	if slices.Contains(c.Roles, role) {
		return true
	}
	return role == RoleViewer && slices.Contains(c.Roles, RoleOperator)
}

// TokenService signs and verifies HS256 operator tokens
type TokenService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// TokenOption configures a TokenService
type TokenOption func(*TokenService)

// WithTokenClock overrides the clock used for issuing and validation.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenService creates a token service from the auth configuration.
func NewTokenService(cfg config.AuthConfig, opts ...TokenOption) (*TokenService, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}
	s := &TokenService{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for subject valid for ttl.
func (s *TokenService) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrMissingSubject
	}
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Roles: slices.Clone(roles),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify parses tokenString and returns its claims. Only HS256 tokens from
// the configured issuer with a subject are accepted.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
