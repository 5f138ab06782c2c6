package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, expires time.Time) string {
	t.Helper()
	claims := &Claims{
		Sub:   "operator",
		Email: "ops@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func protectedHandler(t *testing.T, hit *bool) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		claims := ClaimsFromContext(r.Context())
		if claims != nil {
			assert.Equal(t, "operator", claims.Sub)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	m := NewJWTMiddleware("")
	assert.False(t, m.Enabled())

	var hit bool
	handler := m.Authenticate(protectedHandler(t, &hit))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, hit)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidToken(t *testing.T) {
	m := NewJWTMiddleware("secret")

	var hit bool
	handler := m.Authenticate(protectedHandler(t, &hit))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", time.Now().Add(time.Hour)))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, hit)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingToken(t *testing.T) {
	m := NewJWTMiddleware("secret")

	var hit bool
	handler := m.Authenticate(protectedHandler(t, &hit))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, hit)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWrongSecretRejected(t *testing.T) {
	m := NewJWTMiddleware("secret")

	var hit bool
	handler := m.Authenticate(protectedHandler(t, &hit))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other", time.Now().Add(time.Hour)))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, hit)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredTokenRejected(t *testing.T) {
	m := NewJWTMiddleware("secret")

	var hit bool
	handler := m.Authenticate(protectedHandler(t, &hit))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", time.Now().Add(-time.Hour)))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, hit)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
