package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/otpauth/internal/pkg/jwt"
)

const (
	ContextUserIDKey  = "user_id"
	ContextClaimsKey  = "session_claims"
	SessionCookieName = "session_token"
)

type SessionOptions struct {
	Secret []byte
	TTL    time.Duration
	// Secure marks the cookie HTTPS-only.
	Secure bool
	Now    func() time.Time
}

// Session resolves the caller's token from the session cookie or a Bearer
// header. It never rejects a request; guards decide what a missing session
// means. Tokens past half their lifetime get a fresh cookie.
func Session(opts SessionOptions) gin.HandlerFunc {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		claims, ok := resolveClaims(c, opts.Secret)
		if !ok {
			c.Next()
			return
		}
		c.Set(ContextClaimsKey, claims)
		c.Set(ContextUserIDKey, claims.UserID())
		if jwt.NeedsRefresh(claims, now()) {
			fresh, _, err := jwt.GenerateToken(claims.ToSubject(), opts.Secret, opts.TTL, now())
			if err != nil {
				logutil.GetLogger(c.Request.Context()).Warn("refresh session failed",
					zap.String("user_id", claims.UserID()),
					zap.Error(err),
				)
			} else {
				SetSessionCookie(c, fresh, opts.TTL, opts.Secure)
			}
		}
		c.Next()
	}
}

// resolveClaims tries the cookie first, then the Bearer header, so a stale
// cookie does not shadow a valid header token.
func resolveClaims(c *gin.Context, secret []byte) (*jwt.Claims, bool) {
	for _, token := range sessionTokens(c) {
		claims, err := jwt.ParseToken(token, secret)
		if err == nil {
			return claims, true
		}
		logutil.GetLogger(c.Request.Context()).Debug("drop invalid session token", zap.Error(err))
	}
	return nil, false
}

func sessionTokens(c *gin.Context) []string {
	var tokens []string
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		tokens = append(tokens, cookie)
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		if token := strings.TrimSpace(parts[1]); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// ClaimsFrom returns the session resolved for this request, if any.
func ClaimsFrom(c *gin.Context) (*jwt.Claims, bool) {
	value, ok := c.Get(ContextClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*jwt.Claims)
	return claims, ok && claims != nil
}

func getUserID(c *gin.Context) string {
	value, _ := c.Get(ContextUserIDKey)
	userID, _ := value.(string)
	return userID
}

func SetSessionCookie(c *gin.Context, token string, ttl time.Duration, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, token, int(ttl/time.Second), "/", "", secure, true)
}

func ClearSessionCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", secure, true)
}
