package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/otpauth/internal/middleware"
	"github.com/xxxsen/otpauth/internal/pkg/errcode"
	"github.com/xxxsen/otpauth/internal/pkg/response"
	"github.com/xxxsen/otpauth/internal/service"
)

type AuthHandler struct {
	signIn       *service.SignInService
	secureCookie bool
}

func NewAuthHandler(signIn *service.SignInService, secureCookie bool) *AuthHandler {
	return &AuthHandler{signIn: signIn, secureCookie: secureCookie}
}

type adminSignInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userSignInRequest struct {
	MobileNumber string `json:"mobileNumber" binding:"required"`
	OTP          string `json:"otp" binding:"required"`
}

// Malformed sign-in bodies are reported like any other bad credential.
func (h *AuthHandler) bindSignIn(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, errcode.ErrSignInFailed, service.SignInInvalidCredentials)
		return false
	}
	return true
}

func (h *AuthHandler) AdminSignIn(c *gin.Context) {
	var req adminSignInRequest
	if !h.bindSignIn(c, &req) {
		return
	}
	sess, err := h.signIn.AdminSignIn(c.Request.Context(), req.Email, req.Password)
	h.finish(c, sess, err)
}

func (h *AuthHandler) UserSignIn(c *gin.Context) {
	var req userSignInRequest
	if !h.bindSignIn(c, &req) {
		return
	}
	sess, err := h.signIn.UserSignIn(c.Request.Context(), req.MobileNumber, req.OTP)
	h.finish(c, sess, err)
}

func (h *AuthHandler) finish(c *gin.Context, sess *service.Session, err error) {
	if err != nil {
		handleError(c, err)
		return
	}
	middleware.SetSessionCookie(c, sess.Token, h.signIn.TTL(), h.secureCookie)
	response.Success(c, sess)
}

func (h *AuthHandler) SignOut(c *gin.Context) {
	middleware.ClearSessionCookie(c, h.secureCookie)
	response.Success(c, gin.H{"success": true})
}

func (h *AuthHandler) Session(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, errcode.ErrUnauthorized, "authentication required")
		return
	}
	var expiresAt int64
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Unix()
	}
	response.Success(c, gin.H{
		"user": gin.H{
			"id":           claims.UserID(),
			"name":         claims.Name,
			"email":        claims.Email,
			"role":         claims.Role,
			"mobileNumber": claims.MobileNumber,
		},
		"expiresAt": expiresAt,
	})
}
