package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-core/config"
	"storefront-core/internal/domain"
	"storefront-core/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whoami(w http.ResponseWriter, r *http.Request) {
	user, _ := r.Context().Value(domain.UserContextKey).(*domain.User)
	if user == nil {
		w.Write([]byte("guest"))
		return
	}
	w.Write([]byte(user.ID + ":" + user.Role))
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	utils.SetSecret("test-secret")
	tok, err := utils.GenerateJWT(userID, userID+"@example.com", role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestAuthMiddleware(t *testing.T) {
	h := AuthMiddleware(http.HandlerFunc(whoami))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", bearer(t, "u1", "customer"))
	rec = serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1:customer", rec.Body.String())
}

func TestOptionalAuth_TreatsBadTokenAsGuest(t *testing.T) {
	h := OptionalAuth(http.HandlerFunc(whoami))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: "garbage"})
	assert.Equal(t, "guest", serve(h, req).Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: bearer(t, "u2", "customer")[len("Bearer "):]})
	assert.Equal(t, "u2:customer", serve(h, req).Body.String())
}

func TestAdminMiddleware(t *testing.T) {
	h := AuthMiddleware(AdminMiddleware(http.HandlerFunc(whoami)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", bearer(t, "u1", "customer"))
	assert.Equal(t, http.StatusForbidden, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", bearer(t, "a1", "admin"))
	assert.Equal(t, http.StatusOK, serve(h, req).Code)

	assert.Equal(t, http.StatusUnauthorized, serve(AdminMiddleware(http.HandlerFunc(whoami)), httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestCORS(t *testing.T) {
	h := NewCORSMiddleware(&config.Config{AllowedOrigin: "https://shop.example, https://admin.example"})(http.HandlerFunc(whoami))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/checkout", nil)
	req.Header.Set("Origin", "https://admin.example")
	rec := serve(h, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://admin.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
	assert.Empty(t, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = serve(h, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "guest", rec.Body.String())
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(context.Background(), 1, 2, time.Minute, time.Minute)
	defer rl.Shutdown()
	h := rl.Middleware()(http.HandlerFunc(whoami))

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		return serve(h, req).Code
	}

	assert.Equal(t, http.StatusOK, call("203.0.113.5"))
	assert.Equal(t, http.StatusOK, call("203.0.113.5"))
	assert.Equal(t, http.StatusTooManyRequests, call("203.0.113.5"))
	assert.Equal(t, http.StatusOK, call("198.51.100.7"), "limits are per client")
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5123"
	assert.Equal(t, "192.0.2.10", getClientIP(req))

	req.Header.Set("X-Real-IP", "192.0.2.11")
	assert.Equal(t, "192.0.2.11", getClientIP(req))

	req.Header.Set("X-Forwarded-For", " 192.0.2.12 , 10.0.0.1")
	assert.Equal(t, "192.0.2.12", getClientIP(req))
}

func TestRequestLogger_EchoesRequestID(t *testing.T) {
	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := serve(h, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "abc123", rec.Header().Get("X-Request-ID"))

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 8)
}
