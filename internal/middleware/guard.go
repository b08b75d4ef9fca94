package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/otpauth/internal/model"
	"github.com/xxxsen/otpauth/internal/pkg/errcode"
	appErr "github.com/xxxsen/otpauth/internal/pkg/errors"
	"github.com/xxxsen/otpauth/internal/pkg/response"
)

var (
	errNoSession = appErr.Wrap(appErr.ErrUnauthorized, "authentication required")
	errNotAdmin  = appErr.Wrap(appErr.ErrForbidden, "admin access required")
	errNotSuper  = appErr.Wrap(appErr.ErrForbidden, "super admin access required")
	errNotOwner  = appErr.Wrap(appErr.ErrForbidden, "access denied")
)

// Guard inspects a request and returns a non-nil error to stop it.
type Guard func(c *gin.Context) error

func RequireSession(c *gin.Context) error {
	if _, ok := ClaimsFrom(c); !ok {
		return errNoSession
	}
	return nil
}

func RequireAdmin(c *gin.Context) error {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return errNoSession
	}
	if !model.IsAdminRole(claims.Role) {
		return errNotAdmin
	}
	return nil
}

func RequireSuperAdmin(c *gin.Context) error {
	claims, ok := ClaimsFrom(c)
	if !ok {
		return errNoSession
	}
	if claims.Role != model.RoleSuperAdmin {
		return errNotSuper
	}
	return nil
}

// RequireOwnershipOrAdmin admits admins and the user named by the route
// parameter param.
func RequireOwnershipOrAdmin(param string) Guard {
	return func(c *gin.Context) error {
		claims, ok := ClaimsFrom(c)
		if !ok {
			return errNoSession
		}
		if model.IsAdminRole(claims.Role) || c.Param(param) == claims.UserID() {
			return nil
		}
		return errNotOwner
	}
}

// Guarded runs guards in order and aborts on the first failure.
func Guarded(guards ...Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, guard := range guards {
			if err := guard(c); err != nil {
				abortGuard(c, err)
				return
			}
		}
		c.Next()
	}
}

func abortGuard(c *gin.Context, err error) {
	code := errcode.ErrUnauthorized
	if errors.Is(err, appErr.ErrForbidden) {
		code = errcode.ErrForbidden
	}
	response.Abort(c, code, appErr.Message(err, "unauthorized"))
}

type Access int

const (
	AccessPublic Access = iota
	AccessAuthenticated
	AccessAdmin
)

// Policy classifies route patterns. A pattern ending in "/*" covers every
// route below it; exact patterns win over prefixes and longer prefixes win
// over shorter ones. Unclassified routes get the fallback.
type Policy struct {
	exact    map[string]Access
	prefixes map[string]Access
	fallback Access
}

func NewPolicy(fallback Access) *Policy {
	return &Policy{
		exact:    make(map[string]Access),
		prefixes: make(map[string]Access),
		fallback: fallback,
	}
}

func (p *Policy) Set(pattern string, access Access) *Policy {
	if strings.HasSuffix(pattern, "/*") {
		p.prefixes[strings.TrimSuffix(pattern, "*")] = access
		return p
	}
	p.exact[pattern] = access
	return p
}

func (p *Policy) Classify(pattern string) Access {
	if access, ok := p.exact[pattern]; ok {
		return access
	}
	best, access := -1, p.fallback
	for prefix, a := range p.prefixes {
		if strings.HasPrefix(pattern, prefix) && len(prefix) > best {
			best, access = len(prefix), a
		}
	}
	return access
}

func (p *Policy) guards(access Access) []Guard {
	switch access {
	case AccessAuthenticated:
		return []Guard{RequireSession}
	case AccessAdmin:
		return []Guard{RequireSession, RequireAdmin}
	}
	return nil
}

// Enforce applies the guards implied by the matched route pattern. Requests
// that matched no route are left to the router's 404 handling.
func (p *Policy) Enforce() gin.HandlerFunc {
	return func(c *gin.Context) {
		pattern := c.FullPath()
		if pattern == "" {
			c.Next()
			return
		}
		for _, guard := range p.guards(p.Classify(pattern)) {
			if err := guard(c); err != nil {
				abortGuard(c, err)
				return
			}
		}
		c.Next()
	}
}
