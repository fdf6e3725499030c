package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hashKey(t *testing.T, key string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuth_ValidKey(t *testing.T) {
	auth := NewAPIKeyAuth("X-API-Key", []string{hashKey(t, "secret-key")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/concepts", nil)
	req.Header.Set("X-API-Key", "secret-key")
	rec := httptest.NewRecorder()

	auth.Middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuth_InvalidKey(t *testing.T) {
	auth := NewAPIKeyAuth("X-API-Key", []string{hashKey(t, "secret-key")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/concepts", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	rec := httptest.NewRecorder()

	auth.Middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_api_key")
}

func TestAPIKeyAuth_MissingKey(t *testing.T) {
	auth := NewAPIKeyAuth("X-API-Key", []string{hashKey(t, "secret-key")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/concepts", nil)
	rec := httptest.NewRecorder()

	auth.Middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuth_BearerFallback(t *testing.T) {
	auth := NewAPIKeyAuth("X-API-Key", []string{hashKey(t, "secret-key")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/concepts", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec := httptest.NewRecorder()

	auth.Middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuth_DisabledWithoutKeys(t *testing.T) {
	auth := NewAPIKeyAuth("X-API-Key", nil)

	assert.False(t, auth.Enabled())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/concepts", nil)
	rec := httptest.NewRecorder()

	auth.Middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuth_MultipleKeys(t *testing.T) {
	auth := NewAPIKeyAuth("X-API-Key", []string{
		hashKey(t, "first"),
		hashKey(t, "second"),
	})

	assert.True(t, auth.IsValid("first"))
	assert.True(t, auth.IsValid("second"))
	assert.False(t, auth.IsValid("third"))
}

func TestRequestSizeLimit(t *testing.T) {
	limited := RequestSizeLimitMiddleware(16)(okHandler())

	small := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("tiny"))
	rec := httptest.NewRecorder()
	limited.ServeHTTP(rec, small)
	assert.Equal(t, http.StatusOK, rec.Code)

	big := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	rec = httptest.NewRecorder()
	limited.ServeHTTP(rec, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	SecurityHeadersMiddleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
