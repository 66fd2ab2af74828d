// Package identity verifies the bearer tokens presented by agents and managers.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "field-attendance"

var (
	// ErrInvalidToken is returned for malformed, expired, or mis-signed tokens.
	ErrInvalidToken = errors.New("identity: invalid token")
	// ErrMissingSecret is returned when a token manager is built without a key.
	ErrMissingSecret = errors.New("identity: signing secret is required")
)

// Claims carries the portal identity of the token holder.
type Claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Scope string `json:"scope,omitempty"`
}

// TokenManager signs and validates HS256 tokens with a shared secret.
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

// NewTokenManager constructs a manager. now may be nil.
func NewTokenManager(secret string, now func() time.Time) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	if now == nil {
		now = time.Now
	}
	return &TokenManager{secret: []byte(secret), now: now}, nil
}

// Issue signs a token for subject. It backs local tooling and tests; the
// portal's login flow issues production tokens.
func (m *TokenManager) Issue(subject, role, scope string, ttl time.Duration) (string, error) {
	now := m.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:  role,
		Scope: scope,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Validate parses tokenString and returns its claims.
func (m *TokenManager) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}
	return claims, nil
}

func (m *TokenManager) keyFunc(*jwt.Token) (any, error) {
	return m.secret, nil
}
