// ABOUTME: Resolves a claimed staff identity into a verified representative
// ABOUTME: Shared by the websocket join handshake and the HTTP middleware

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/switchboard/internal/store"
)

// Identity errors
var (
	ErrUnknownUser       = errors.New("unknown user")
	ErrNotRepresentative = errors.New("user is not a representative")
	ErrTokenRequired     = errors.New("token required")
	ErrIdentityMismatch  = errors.New("token subject does not match user")
	ErrAuthNotConfigured = errors.New("authentication not configured")
)

// UserStore is the subset of store.Store needed to resolve identities.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// Resolver turns a (userID, token) claim into an AuthContext.
//
// With a verifier configured the token is mandatory and its subject is
// authoritative. Without one, the user ID is trusted as-is, which is only
// suitable for local development.
type Resolver struct {
	users    UserStore
	verifier TokenVerifier
}

// NewResolver creates a Resolver. verifier may be nil.
func NewResolver(users UserStore, verifier TokenVerifier) *Resolver {
	return &Resolver{users: users, verifier: verifier}
}

// RequiresToken reports whether claims must carry a signed token.
func (r *Resolver) RequiresToken() bool {
	return r.verifier != nil
}

// Resolve verifies the claim and returns the representative's AuthContext.
func (r *Resolver) Resolve(ctx context.Context, userID, token string) (*AuthContext, error) {
	if r.verifier != nil {
		if token == "" {
			return nil, ErrTokenRequired
		}
		sub, err := r.verifier.Verify(token)
		if err != nil {
			return nil, err
		}
		if userID != "" && userID != sub {
			return nil, ErrIdentityMismatch
		}
		userID = sub
	}
	if userID == "" {
		return nil, ErrUnknownUser
	}

	user, err := r.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	authCtx := &AuthContext{UserID: user.ID, Name: user.Name, Role: user.Role}
	if !authCtx.IsRepresentative() {
		return nil, ErrNotRepresentative
	}
	return authCtx, nil
}

// ResolveToken resolves a bearer token alone. It fails when no verifier is
// configured, since there is then nothing to check the token against.
func (r *Resolver) ResolveToken(ctx context.Context, token string) (*AuthContext, error) {
	if r.verifier == nil {
		return nil, ErrAuthNotConfigured
	}
	return r.Resolve(ctx, "", token)
}
