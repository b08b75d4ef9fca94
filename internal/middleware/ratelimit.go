package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/otpauth/internal/pkg/errcode"
	"github.com/xxxsen/otpauth/internal/pkg/response"
)

const rateLimitKeys = 10000

type rateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	last   *expirable.LRU[string, time.Time]
	now    func() time.Time
}

// RateLimit lets one request per client and route through every window.
func RateLimit(window time.Duration) gin.HandlerFunc {
	return newRateLimiter(window, rateLimitKeys).handle
}

func newRateLimiter(window time.Duration, size int) *rateLimiter {
	ttl := window
	if ttl <= 0 {
		ttl = time.Second
	}
	return &rateLimiter{
		window: window,
		last:   expirable.NewLRU[string, time.Time](size, nil, ttl),
		now:    time.Now,
	}
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.window <= 0 {
		c.Next()
		return
	}
	ip := c.ClientIP()
	uid := getUserID(c)
	if uid == "" {
		uid = "0"
	}
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	key := strings.Join([]string{ip, uid, path}, "|")

	now := l.now()
	l.mu.Lock()
	last, exists := l.last.Get(key)
	if exists && now.Sub(last) < l.window {
		l.mu.Unlock()
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("ip", ip),
			zap.String("user_id", uid),
			zap.String("path", path),
		)
		response.Abort(c, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
		return
	}
	l.last.Add(key, now)
	l.mu.Unlock()
	c.Next()
}
