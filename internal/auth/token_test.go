package auth

import (
	"errors"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestParseValidToken(t *testing.T) {
	parser := NewTokenParser("secret")
	raw := signToken(t, "secret", jwt.MapClaims{
		"sub":   "user_2abc",
		"email": "Al@Example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	identity, err := parser.Parse(raw)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if identity.AuthID != "user_2abc" {
		t.Fatalf("unexpected auth id: %s", identity.AuthID)
	}
	if identity.Email != "al@example.com" {
		t.Fatalf("expected lowercased email, got %s", identity.Email)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	parser := NewTokenParser("secret")
	raw := signToken(t, "other-secret", jwt.MapClaims{"sub": "user_2abc"})

	if _, err := parser.Parse(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	parser := NewTokenParser("secret")
	raw := signToken(t, "secret", jwt.MapClaims{
		"sub": "user_2abc",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := parser.Parse(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRequiresSubject(t *testing.T) {
	parser := NewTokenParser("secret")
	raw := signToken(t, "secret", jwt.MapClaims{"email": "al@example.com"})

	if _, err := parser.Parse(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	if _, err := parser.Parse(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}
