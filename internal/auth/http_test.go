// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers bearer extraction, token validation and the admin gate

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveWithAuth(t *testing.T, authHeader string) (*httptest.ResponseRecorder, *AuthContext) {
	t.Helper()
	verifier := newTestVerifier(t)

	var got *AuthContext
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/identities/u1/revoke", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(verifier, nil)(RequireAdminHTTP()(handler)).ServeHTTP(rec, req)
	return rec, got
}

func TestHTTPAuthMiddleware_ValidAdminToken(t *testing.T) {
	token, err := newTestVerifier(t).Generate("alice", RoleAdmin, time.Hour)
	require.NoError(t, err)

	rec, got := serveWithAuth(t, "Bearer "+token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Operator)
}

func TestHTTPAuthMiddleware_NonAdminForbidden(t *testing.T) {
	token, err := newTestVerifier(t).Generate("bob", "viewer", time.Hour)
	require.NoError(t, err)

	rec, got := serveWithAuth(t, "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, got)
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"missing header", "", "missing authorization header"},
		{"basic scheme", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"empty bearer", "Bearer ", "empty token"},
		{"bad token", "Bearer nope", "invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, got := serveWithAuth(t, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
			assert.Nil(t, got)
		})
	}
}

func TestRequireAdminHTTP_NoContext(t *testing.T) {
	handler := RequireAdminHTTP()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
