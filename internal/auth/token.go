package auth

import (
	"errors"
	"fmt"
	"strings"

	jwt "github.com/golang-jwt/jwt/v4"
)

var ErrInvalidToken = errors.New("invalid session token")

// Identity is the caller resolved from a session token issued by the
// identity provider.
type Identity struct {
	AuthID string
	Email  string
}

type TokenParser struct {
	secret []byte
}

func NewTokenParser(secret string) TokenParser {
	return TokenParser{secret: []byte(secret)}
}

// Parse validates an HS256 session JWT and extracts the subject (the
// external identity id) and email claim.
func (p TokenParser) Parse(rawToken string) (Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	subject, _ := claims["sub"].(string)
	if strings.TrimSpace(subject) == "" {
		return Identity{}, ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	return Identity{AuthID: subject, Email: strings.ToLower(strings.TrimSpace(email))}, nil
}
