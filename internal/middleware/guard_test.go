package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/otpauth/internal/pkg/errcode"
	"github.com/xxxsen/otpauth/internal/pkg/jwt"
)

func guardedEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/api")
	policy := NewPolicy(AccessAuthenticated).
		Set("/api/public/*", AccessPublic).
		Set("/api/admin/*", AccessAdmin).
		Set("/api/admin/open", AccessPublic)
	api.Use(Session(SessionOptions{Secret: testSecret, TTL: time.Hour}), policy.Enforce())
	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	api.GET("/public/ping", ok)
	api.GET("/me", ok)
	api.GET("/admin/stats", ok)
	api.GET("/admin/open", ok)
	api.GET("/users/:id", Guarded(RequireOwnershipOrAdmin("id")), ok)
	api.GET("/root", Guarded(RequireSession, RequireSuperAdmin), ok)
	return r
}

func callAs(r *gin.Engine, path, role string) (int, string) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if role != "" {
		token, _, _ := jwt.GenerateToken(jwt.Subject{UserID: "u1", Role: role}, testSecret, time.Hour, time.Now())
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Body.String() == "ok" {
		return 0, ""
	}
	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		return -1, resp.Body.String()
	}
	code, _ := body["code"].(float64)
	msg, _ := body["msg"].(string)
	return int(code), msg
}

func TestPolicyClassify(t *testing.T) {
	p := NewPolicy(AccessAuthenticated).
		Set("/api/*", AccessPublic).
		Set("/api/admin/*", AccessAdmin).
		Set("/api/admin/open", AccessPublic)
	require.Equal(t, AccessPublic, p.Classify("/api/ping"))
	require.Equal(t, AccessAdmin, p.Classify("/api/admin/stats"))
	require.Equal(t, AccessPublic, p.Classify("/api/admin/open"))
	require.Equal(t, AccessAuthenticated, p.Classify("/other"))
}

func TestPolicyEnforce(t *testing.T) {
	r := guardedEngine()

	code, _ := callAs(r, "/api/public/ping", "")
	require.Equal(t, 0, code)

	code, _ = callAs(r, "/api/me", "")
	require.Equal(t, errcode.ErrUnauthorized, code)
	code, _ = callAs(r, "/api/me", "USER")
	require.Equal(t, 0, code)

	code, _ = callAs(r, "/api/admin/stats", "USER")
	require.Equal(t, errcode.ErrForbidden, code)
	code, _ = callAs(r, "/api/admin/stats", "ADMIN")
	require.Equal(t, 0, code)
	code, _ = callAs(r, "/api/admin/open", "")
	require.Equal(t, 0, code)
}

func TestGuardsRunInOrder(t *testing.T) {
	r := guardedEngine()

	code, _ := callAs(r, "/api/users/u1", "USER")
	require.Equal(t, 0, code)
	code, _ = callAs(r, "/api/users/u2", "USER")
	require.Equal(t, errcode.ErrForbidden, code)
	code, _ = callAs(r, "/api/users/u2", "ADMIN")
	require.Equal(t, 0, code)

	code, _ = callAs(r, "/api/root", "ADMIN")
	require.Equal(t, errcode.ErrForbidden, code)
	code, _ = callAs(r, "/api/root", "SUPER_ADMIN")
	require.Equal(t, 0, code)
}
