package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.March, 14, 7, 0, 0, 0, time.UTC)
	tm, err := NewTokenManager("s3cret", func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}

	token, err := tm.Issue("agent-7", "agent", "manager:m-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	claims, err := tm.Validate(token)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if claims.Subject != "agent-7" || claims.Role != "agent" || claims.Scope != "manager:m-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestTokenManager_Rejects(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.March, 14, 7, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tm, _ := NewTokenManager("s3cret", clock)
	other, _ := NewTokenManager("different", clock)

	expired, _ := tm.Issue("agent-7", "agent", "", -time.Minute)
	foreign, _ := other.Issue("agent-7", "agent", "", time.Hour)
	anonymous, _ := tm.Issue("", "agent", "", time.Hour)
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "agent-7", Issuer: issuer, ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"expired":      expired,
		"wrong secret": foreign,
		"no subject":   anonymous,
		"alg none":     unsigned,
		"garbage":      "not-a-token",
	}
	for name, token := range tests {
		token := token
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := tm.Validate(token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestNewTokenManager_RequiresSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenManager("  ", nil); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}
