// ABOUTME: Unit tests for authentication context functions
// ABOUTME: Tests role predicates and context propagation helpers

package auth

import (
	"context"
	"testing"

	"github.com/2389/switchboard/internal/store"
)

func TestAuthContext_Roles(t *testing.T) {
	tests := []struct {
		role      store.Role
		wantRep   bool
		wantAdmin bool
	}{
		{store.RoleRepresentative, true, false},
		{store.RoleAdmin, true, true},
		{store.Role("viewer"), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			a := &AuthContext{UserID: "u1", Role: tt.role}
			if got := a.IsRepresentative(); got != tt.wantRep {
				t.Errorf("IsRepresentative() = %v, want %v", got, tt.wantRep)
			}
			if got := a.IsAdmin(); got != tt.wantAdmin {
				t.Errorf("IsAdmin() = %v, want %v", got, tt.wantAdmin)
			}
		})
	}
}

func TestWithAuth_FromContext(t *testing.T) {
	a := &AuthContext{UserID: "rep-1", Name: "Rita", Role: store.RoleRepresentative}
	ctx := WithAuth(context.Background(), a)

	if got := FromContext(ctx); got != a {
		t.Errorf("FromContext() = %v, want %v", got, a)
	}
}

func TestFromContext_Missing(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %v, want nil", got)
	}
}
