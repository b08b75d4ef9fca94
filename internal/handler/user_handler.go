package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/otpauth/internal/middleware"
	"github.com/xxxsen/otpauth/internal/model"
	"github.com/xxxsen/otpauth/internal/pkg/errcode"
	"github.com/xxxsen/otpauth/internal/pkg/response"
	"github.com/xxxsen/otpauth/internal/pkg/validate"
	"github.com/xxxsen/otpauth/internal/service"
)

type UserHandler struct {
	users        *service.UserService
	secureCookie bool
}

func NewUserHandler(users *service.UserService, secureCookie bool) *UserHandler {
	return &UserHandler{users: users, secureCookie: secureCookie}
}

type mobileRequest struct {
	MobileNumber string `json:"mobileNumber" binding:"required,mobile"`
}

type verifyLoginRequest struct {
	MobileNumber string `json:"mobileNumber" binding:"required,mobile"`
	OTP          string `json:"otp" binding:"required,otp"`
}

type registerRequest struct {
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email" binding:"omitempty,email"`
	MobileNumber string `json:"mobileNumber" binding:"required,mobile"`
	Gender       string `json:"gender" binding:"required,gender"`
	Address      string `json:"address" binding:"required"`
}

type updateProfileRequest struct {
	Name    *string `json:"name" binding:"omitempty,min=1"`
	Email   *string `json:"email" binding:"omitempty,email"`
	Gender  *string `json:"gender" binding:"omitempty,gender"`
	Address *string `json:"address"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
}

func (h *UserHandler) InitiateLogin(c *gin.Context) {
	var req mobileRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.users.InitiateLogin(c.Request.Context(), req.MobileNumber)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"success": true, "otpId": res.OTPID, "user": res.User})
}

func (h *UserHandler) VerifyLoginOTP(c *gin.Context) {
	var req verifyLoginRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.VerifyLoginOTP(c.Request.Context(), req.MobileNumber, req.OTP)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"success": true, "user": user})
}

func (h *UserHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.CreateUser(c.Request.Context(), service.Registration{
		Name:         req.Name,
		Email:        req.Email,
		MobileNumber: req.MobileNumber,
		Gender:       req.Gender,
		Address:      req.Address,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, user)
}

func (h *UserHandler) IsRegistered(c *gin.Context) {
	mobile := c.Query("mobileNumber")
	if !validate.Mobile(mobile) {
		response.Error(c, errcode.ErrInvalid, "invalid mobile number")
		return
	}
	ok, err := h.users.IsUserRegistered(c.Request.Context(), mobile)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"isRegistered": ok})
}

func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.users.GetMe(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, user)
}

func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.GetMe(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, user)
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.UpdateProfile(c.Request.Context(), getUserID(c), model.ProfileUpdate{
		Name:    req.Name,
		Email:   req.Email,
		Gender:  req.Gender,
		Address: req.Address,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, user)
}

func (h *UserHandler) UpdatePassword(c *gin.Context) {
	var req updatePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.users.UpdatePassword(c.Request.Context(), getUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"success": true})
}

func (h *UserHandler) Deactivate(c *gin.Context) {
	if err := h.users.DeactivateUser(c.Request.Context(), getUserID(c)); err != nil {
		handleError(c, err)
		return
	}
	middleware.ClearSessionCookie(c, h.secureCookie)
	response.Success(c, gin.H{"success": true})
}
