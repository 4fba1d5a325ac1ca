package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func whoami(cfg AuthConfig, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{Auth(cfg)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, Caller(c))
	})
	r.GET("/whoami", handlers...)
	return r
}

func do(r http.Handler, req *http.Request) (*httptest.ResponseRecorder, domain.Caller) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var caller domain.Caller
	if w.Code == http.StatusOK {
		_ = json.Unmarshal(w.Body.Bytes(), &caller)
	}
	return w, caller
}

func TestAuth_Token(t *testing.T) {
	r := whoami(AuthConfig{JWTSecret: secret})

	token, err := SignToken(domain.Caller{UserID: "agent-7", Role: domain.RoleAgent}, secret, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w, caller := do(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.Caller{UserID: "agent-7", Role: domain.RoleAgent}, caller)

	// sockets pass the token in the query string
	w, caller = do(r, httptest.NewRequest(http.MethodGet, "/whoami?token="+token, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "agent-7", caller.UserID)
}

func TestAuth_RejectsBadTokens(t *testing.T) {
	r := whoami(AuthConfig{JWTSecret: secret})

	expired, err := SignToken(domain.Caller{UserID: "u1", Role: domain.RoleUser}, secret, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	require.NoError(t, err)
	forged, err := SignToken(domain.Caller{UserID: "u1", Role: domain.RoleAdmin}, "other-secret", jwt.RegisteredClaims{})
	require.NoError(t, err)
	badRole, err := SignToken(domain.Caller{UserID: "u1", Role: "root"}, secret, jwt.RegisteredClaims{})
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, TokenClaims{
		Role:             domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":  expired,
		"forged":   forged,
		"bad role": badRole,
		"alg none": none,
		"garbage":  "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w, _ := do(r, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	w, _ := do(r, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "anonymous requests are rejected")
}

func TestAuth_TrustedHeaders(t *testing.T) {
	req := func(id, role string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		r.Header.Set(HeaderUserID, id)
		if role != "" {
			r.Header.Set(HeaderUserRole, role)
		}
		return r
	}

	trusted := whoami(AuthConfig{TrustHeaders: true})
	w, caller := do(trusted, req("alice", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.Caller{UserID: "alice", Role: domain.RoleUser}, caller)

	w, caller = do(trusted, req("boss", "Admin"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.RoleAdmin, caller.Role)

	w, _ = do(trusted, req("alice", "superuser"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	untrusted := whoami(AuthConfig{})
	w, _ = do(untrusted, req("alice", "admin"))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "headers are ignored unless trusted")
}

func TestRequireRole(t *testing.T) {
	r := whoami(AuthConfig{TrustHeaders: true}, RequireRole(domain.RoleAgent, domain.RoleAdmin))

	for role, want := range map[string]int{
		domain.RoleUser:  http.StatusForbidden,
		domain.RoleAgent: http.StatusOK,
		domain.RoleAdmin: http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set(HeaderUserID, "someone")
		req.Header.Set(HeaderUserRole, role)
		w, _ := do(r, req)
		assert.Equal(t, want, w.Code, role)
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(3600, 2)
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("alice"))
	assert.True(t, limiter.Allow("alice"))
	assert.False(t, limiter.Allow("alice"), "burst exhausted")
	assert.True(t, limiter.Allow("bob"), "callers have separate buckets")

	now = now.Add(time.Second)
	assert.True(t, limiter.Allow("alice"), "one token per second refills")

	now = now.Add(2 * time.Hour)
	limiter.Allow("carol")
	limiter.mu.Lock()
	assert.Len(t, limiter.visitors, 1, "idle buckets are swept")
	limiter.mu.Unlock()
}

func TestRateLimiter_Middleware(t *testing.T) {
	limiter := NewRateLimiter(60, 1)
	r := whoami(AuthConfig{TrustHeaders: true}, limiter.Middleware())

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		r.Header.Set(HeaderUserID, "alice")
		return r
	}
	w, _ := do(r, req())
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(r, req())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://claims.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://claims.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://claims.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	allowed := OriginAllowed([]string{"https://claims.example.com"})
	assert.True(t, allowed(httptest.NewRequest(http.MethodGet, "/ws", nil)))
	assert.False(t, allowed(req))
}
