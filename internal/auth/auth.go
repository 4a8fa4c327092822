// Package auth handles session authentication for the Nina server: JWT
// verification of client session tokens and an optional entitlement check
// against the account database.
package auth

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors returned by [Authorizer.Authorize]. Callers map these onto
// HTTP status codes.
var (
	// ErrNoToken means the client presented no session token.
	ErrNoToken = errors.New("auth: no token presented")

	// ErrInvalidToken means the token failed signature or claim validation.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrNotEntitled means the token is valid but the account has no access
	// to the assistant.
	ErrNotEntitled = errors.New("auth: account not entitled")
)

// Identity describes the authenticated user behind a session.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// EntitlementStore answers whether an account may open assistant sessions.
type EntitlementStore interface {
	HasAccess(ctx context.Context, userID string) (bool, error)
}

// Authorizer validates session tokens and, when an entitlement store is
// configured, checks account access. The zero value is unusable; use [New].
type Authorizer struct {
	verifier *TokenVerifier
	store    EntitlementStore
}

// New creates an Authorizer. store may be nil, in which case every
// authenticated user is admitted.
func New(verifier *TokenVerifier, store EntitlementStore) *Authorizer {
	return &Authorizer{verifier: verifier, store: store}
}

// Authorize validates token and returns the identity it carries. The
// entitlement check runs only for valid tokens.
func (a *Authorizer) Authorize(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoToken
	}

	id, err := a.verifier.Verify(token)
	if err != nil {
		return Identity{}, err
	}

	if a.store != nil {
		ok, err := a.store.HasAccess(ctx, id.UserID)
		if err != nil {
			return Identity{}, fmt.Errorf("auth: entitlement check for %q: %w", id.UserID, err)
		}
		if !ok {
			return Identity{}, ErrNotEntitled
		}
	}
	return id, nil
}
