// ABOUTME: Tests for identity resolution and HTTP authentication middleware
// ABOUTME: Covers token extraction, subject checks, role gating and anonymous passthrough

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/switchboard/internal/store"
)

func seededUsers(t *testing.T) *store.MockStore {
	t.Helper()
	s := store.NewMockStore()
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: "rep-1", Name: "Rita", Email: "rita@example.com", Role: store.RoleRepresentative}))
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: "admin-1", Name: "Ada", Email: "ada@example.com", Role: store.RoleAdmin}))
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: "viewer-1", Name: "Vic", Email: "vic@example.com", Role: store.Role("viewer")}))
	return s
}

func TestResolver_WithVerifier(t *testing.T) {
	verifier := newTestVerifier(t)
	resolver := NewResolver(seededUsers(t), verifier)
	ctx := context.Background()

	token, err := verifier.Generate("rep-1", time.Hour)
	require.NoError(t, err)

	got, err := resolver.Resolve(ctx, "rep-1", token)
	require.NoError(t, err)
	assert.Equal(t, "Rita", got.Name)

	// Subject is authoritative when no user ID is claimed
	got, err = resolver.Resolve(ctx, "", token)
	require.NoError(t, err)
	assert.Equal(t, "rep-1", got.UserID)

	_, err = resolver.Resolve(ctx, "rep-1", "")
	assert.ErrorIs(t, err, ErrTokenRequired)

	_, err = resolver.Resolve(ctx, "admin-1", token)
	assert.ErrorIs(t, err, ErrIdentityMismatch)

	viewerToken, _ := verifier.Generate("viewer-1", time.Hour)
	_, err = resolver.Resolve(ctx, "viewer-1", viewerToken)
	assert.ErrorIs(t, err, ErrNotRepresentative)

	ghostToken, _ := verifier.Generate("ghost", time.Hour)
	_, err = resolver.Resolve(ctx, "", ghostToken)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestResolver_WithoutVerifier(t *testing.T) {
	resolver := NewResolver(seededUsers(t), nil)
	ctx := context.Background()

	assert.False(t, resolver.RequiresToken())

	got, err := resolver.Resolve(ctx, "admin-1", "")
	require.NoError(t, err)
	assert.True(t, got.IsAdmin())

	_, err = resolver.Resolve(ctx, "nobody", "")
	assert.ErrorIs(t, err, ErrUnknownUser)

	_, err = resolver.ResolveToken(ctx, "anything")
	assert.ErrorIs(t, err, ErrAuthNotConfigured)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header    string
		wantToken string
		wantErr   bool
	}{
		{"Bearer abc", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer ", "", true},
	}

	for _, tt := range tests {
		token, errMsg := extractBearerToken(tt.header)
		assert.Equal(t, tt.wantToken, token, "header %q", tt.header)
		assert.Equal(t, tt.wantErr, errMsg != "", "header %q", tt.header)
	}
}

func TestHTTPAuthMiddleware(t *testing.T) {
	verifier := newTestVerifier(t)
	resolver := NewResolver(seededUsers(t), verifier)

	repToken, _ := verifier.Generate("rep-1", time.Hour)
	viewerToken, _ := verifier.Generate("viewer-1", time.Hour)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid representative", "Bearer " + repToken, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"not a representative", "Bearer " + viewerToken, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth *AuthContext
			handler := HTTPAuthMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/conversations/c1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, gotAuth)
				assert.Equal(t, "rep-1", gotAuth.UserID)
			}
		})
	}
}

func TestHTTPAuthMiddleware_NotConfigured(t *testing.T) {
	resolver := NewResolver(seededUsers(t), nil)
	handler := HTTPAuthMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOptionalAuthMiddleware(t *testing.T) {
	verifier := newTestVerifier(t)
	resolver := NewResolver(seededUsers(t), verifier)
	repToken, _ := verifier.Generate("rep-1", time.Hour)

	var gotAuth *AuthContext
	handler := OptionalAuthMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Nil(t, gotAuth)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Nil(t, gotAuth)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+repToken)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, gotAuth)
	assert.Equal(t, "rep-1", gotAuth.UserID)
}

type failingUsers struct{}

func (failingUsers) GetUser(ctx context.Context, id string) (*store.User, error) {
	return nil, errors.New("database is locked")
}

func TestResolver_StoreError(t *testing.T) {
	resolver := NewResolver(failingUsers{}, nil)
	_, err := resolver.Resolve(context.Background(), "rep-1", "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownUser)
}
