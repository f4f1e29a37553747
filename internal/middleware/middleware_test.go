package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adte.com/adte/creative-agent/internal/auth"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func signedToken(t *testing.T, secret string, creatives ...string) string {
	t.Helper()
	claims := &JWTClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "principal_test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	claims.Permissions.Creatives = creatives
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func protectedChain(store *auth.APIKeyStore, secret string) http.Handler {
	authMW := OptionalAuthMiddleware(UnifiedAuthMiddleware(secret, store, discard), []string{"/health", "/formats/"}, discard)
	return authMW(RequirePermissions("build_creative", discard)(http.HandlerFunc(okHandler)))
}

func TestAuthChain(t *testing.T) {
	store := auth.NewAPIKeyStore()
	store.AddKey("full", auth.FullAccess("p-full"))
	store.AddKey("ro", auth.ReadOnly("p-ro"))
	h := protectedChain(store, "jwt-secret")

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{name: "no credentials", want: http.StatusUnauthorized},
		{name: "unknown key", header: map[string]string{"X-API-Key": "nope"}, want: http.StatusUnauthorized},
		{name: "read only key", header: map[string]string{"X-API-Key": "ro"}, want: http.StatusForbidden},
		{name: "full key", header: map[string]string{"X-API-Key": "full"}, want: http.StatusOK},
		{name: "bearer with write", header: map[string]string{"Authorization": "Bearer " + signedToken(t, "jwt-secret", "read", "write")}, want: http.StatusOK},
		{name: "bearer read only", header: map[string]string{"Authorization": "Bearer " + signedToken(t, "jwt-secret", "read")}, want: http.StatusForbidden},
		{name: "bearer wrong secret", header: map[string]string{"Authorization": "Bearer " + signedToken(t, "other", "write")}, want: http.StatusUnauthorized},
		{name: "malformed header", header: map[string]string{"Authorization": "Token abc"}, want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/build_creative", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestBearerRejectedWithoutSecret(t *testing.T) {
	h := protectedChain(auth.NewAPIKeyStore(), "")
	req := httptest.NewRequest(http.MethodPost, "/build_creative", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "any-secret", "write"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPublicPathsSkipAuthFailures(t *testing.T) {
	store := auth.NewAPIKeyStore()
	authMW := OptionalAuthMiddleware(UnifiedAuthMiddleware("s", store, discard), []string{"/health", "/formats/"}, discard)
	h := authMW(http.HandlerFunc(okHandler))

	for _, path := range []string{"/health", "/formats/display_300x250_image"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-API-Key", "bogus")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	assert.False(t, IsPublicPath("/formats", []string{"/formats/"}))
	assert.False(t, IsPublicPath("/build_creative", []string{"/"}))
	assert.True(t, IsPublicPath("/", []string{"/"}))
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/formats", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.Equal(t, "nil map write", body["details"])
}

func TestRateLimitMiddleware(t *testing.T) {
	store := NewRateLimiterStore(1, 2, time.Minute)
	h := RateLimitMiddleware(store)(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/formats", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCORSPreflight(t *testing.T) {
	h := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/preview_creative", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/formats", RouteLabel("/formats/display_300x250_image"))
	assert.Equal(t, "/previews", RouteLabel("/previews/abc/desktop.html"))
	assert.Equal(t, "/", RouteLabel("/"))
	assert.Equal(t, "/health", RouteLabel("/health"))
}
