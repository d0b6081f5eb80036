package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWT errors.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidSecretLength = errors.New("JWT secret must be at least 32 characters")
)

// TokenService issues and validates the HS256 bearer tokens protecting the
// volume API.
type TokenService struct {
	secret   []byte
	issuer   string
	lifetime time.Duration
}

// Claims are the registered claims carried by an API token.
type Claims struct {
	jwt.RegisteredClaims
}

// NewTokenService creates the token service. The secret must be at least
// 32 bytes.
func NewTokenService(secret string, lifetime time.Duration) (*TokenService, error) {
	if len(secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if lifetime <= 0 {
		lifetime = 1 * time.Hour
	}
	return &TokenService{
		secret:   []byte(secret),
		issuer:   "dittoblock",
		lifetime: lifetime,
	}, nil
}

// Issue mints a token for the given subject.
func (s *TokenService) Issue(subject string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
