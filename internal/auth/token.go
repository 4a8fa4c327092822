package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims is the claim set the web application puts into session
// tokens. The user id rides the custom "id" claim; older tokens carry it in
// the registered subject instead.
type sessionClaims struct {
	UserID string `json:"id,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// userID returns the id claim, falling back to the subject.
func (c *sessionClaims) userID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// TokenVerifier validates HMAC-signed session tokens.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for tokens signed with the given HMAC
// secret.
func NewTokenVerifier(secret string) (*TokenVerifier, error) {
	if secret == "" {
		return nil, errors.New("auth: empty jwt secret")
	}
	return &TokenVerifier{secret: []byte(secret)}, nil
}

// Verify parses and validates token and extracts the identity claims.
// Any parse or validation failure is reported as [ErrInvalidToken]; the
// underlying cause stays wrapped for logging.
func (v *TokenVerifier) Verify(token string) (Identity, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.userID() == "" {
		return Identity{}, fmt.Errorf("%w: missing user id claim", ErrInvalidToken)
	}

	return Identity{
		UserID: claims.userID(),
		Email:  claims.Email,
		Name:   claims.Name,
	}, nil
}
