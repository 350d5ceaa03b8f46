// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating the verified staff user via context

package auth

import (
	"context"

	"github.com/2389/switchboard/internal/store"
)

// AuthContext holds the verified staff identity for a request.
type AuthContext struct {
	UserID string
	Name   string
	Role   store.Role
}

// IsRepresentative reports whether the user may act as a representative.
// Admins are representatives too.
func (a *AuthContext) IsRepresentative() bool {
	return a.Role == store.RoleRepresentative || a.Role == store.RoleAdmin
}

// IsAdmin returns true if the user has the admin role.
func (a *AuthContext) IsAdmin() bool {
	return a.Role == store.RoleAdmin
}

type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}
