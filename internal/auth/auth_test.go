package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksaver/powermon/internal/config"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	hash, err := HashPassword("admin1234")
	require.NoError(t, err)
	return NewManager(config.AuthConfig{
		JWTSecret:    "test-secret",
		JWTExpireMin: 60,
		Users: []config.UserConfig{
			{ID: 1, Email: "admin@local", PasswordHash: hash, Role: "admin"},
		},
	})
}

func TestAuthenticate(t *testing.T) {
	m := testManager(t)

	user, err := m.Authenticate("admin@local", "admin1234")
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Role)

	_, err = m.Authenticate("admin@local", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = m.Authenticate("nobody@local", "admin1234")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenRoundTrip(t *testing.T) {
	m := testManager(t)

	token, err := m.GenerateToken(config.UserConfig{ID: 1, Email: "admin@local", Role: "admin"})
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin@local", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "1", claims.Subject)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	m := testManager(t)
	other := NewManager(config.AuthConfig{JWTSecret: "different", JWTExpireMin: 60})

	token, err := other.GenerateToken(config.UserConfig{ID: 1, Email: "admin@local"})
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	m := testManager(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, "admin@local", claims.Email)
		w.WriteHeader(http.StatusOK)
	})

	token, err := m.GenerateToken(config.UserConfig{ID: 1, Email: "admin@local", Role: "admin"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer garbage", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			m.Middleware(next).ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}
