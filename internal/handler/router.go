package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/otpauth/internal/middleware"
)

type RouterDeps struct {
	OTP        *OTPHandler
	User       *UserHandler
	Auth       *AuthHandler
	Properties *PropertiesHandler
	Session    middleware.SessionOptions
	RateLimit  time.Duration
}

// RegisterRoutes mounts the API on api. Every route declares its access
// level; the policy enforces it before the handler runs.
func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	policy := middleware.NewPolicy(middleware.AccessAuthenticated)
	api.Use(middleware.Session(deps.Session), policy.Enforce())

	base := api.BasePath()
	route := func(method, path string, access middleware.Access, handlers ...gin.HandlerFunc) {
		policy.Set(base+path, access)
		api.Handle(method, path, handlers...)
	}
	limit := middleware.RateLimit(deps.RateLimit)

	route(http.MethodGet, "/properties", middleware.AccessPublic, deps.Properties.Get)

	route(http.MethodPost, "/otp/send", middleware.AccessPublic, limit, deps.OTP.Send)
	route(http.MethodPost, "/otp/verify", middleware.AccessPublic, deps.OTP.Verify)
	route(http.MethodPost, "/otp/resend", middleware.AccessPublic, limit, deps.OTP.Resend)
	route(http.MethodPost, "/otp/cleanup-expired", middleware.AccessAdmin, deps.OTP.CleanupExpired)

	route(http.MethodPost, "/user/initiate-login", middleware.AccessPublic, limit, deps.User.InitiateLogin)
	route(http.MethodPost, "/user/verify-login-otp", middleware.AccessPublic, deps.User.VerifyLoginOTP)
	route(http.MethodPost, "/user/register", middleware.AccessPublic, deps.User.Register)
	route(http.MethodGet, "/user/is-registered", middleware.AccessPublic, deps.User.IsRegistered)
	route(http.MethodGet, "/user/me", middleware.AccessAuthenticated, deps.User.Me)
	route(http.MethodPut, "/user/profile", middleware.AccessAuthenticated, deps.User.UpdateProfile)
	route(http.MethodPut, "/user/password", middleware.AccessAuthenticated, deps.User.UpdatePassword)
	route(http.MethodPost, "/user/deactivate", middleware.AccessAuthenticated, deps.User.Deactivate)
	route(http.MethodGet, "/user/:id", middleware.AccessAuthenticated,
		middleware.Guarded(middleware.RequireOwnershipOrAdmin("id")), deps.User.Get)

	route(http.MethodPost, "/auth/signin/admin", middleware.AccessPublic, deps.Auth.AdminSignIn)
	route(http.MethodPost, "/auth/signin/user", middleware.AccessPublic, deps.Auth.UserSignIn)
	route(http.MethodPost, "/auth/signout", middleware.AccessPublic, deps.Auth.SignOut)
	route(http.MethodGet, "/auth/session", middleware.AccessAuthenticated, deps.Auth.Session)
}
