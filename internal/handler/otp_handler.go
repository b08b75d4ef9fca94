package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/otpauth/internal/pkg/response"
	"github.com/xxxsen/otpauth/internal/service"
)

type OTPHandler struct {
	otp *service.OTPService
}

func NewOTPHandler(otp *service.OTPService) *OTPHandler {
	return &OTPHandler{otp: otp}
}

type otpTargetRequest struct {
	MobileNumber string `json:"mobileNumber" binding:"required,mobile"`
	Reason       string `json:"reason" binding:"required,otpreason"`
}

type verifyOTPRequest struct {
	OTPID string `json:"otpId" binding:"required"`
	OTP   string `json:"otp" binding:"required,otp"`
}

func (h *OTPHandler) Send(c *gin.Context) {
	var req otpTargetRequest
	if !bindJSON(c, &req) {
		return
	}
	id, err := h.otp.Send(c.Request.Context(), req.MobileNumber, req.Reason)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

func (h *OTPHandler) Resend(c *gin.Context) {
	var req otpTargetRequest
	if !bindJSON(c, &req) {
		return
	}
	id, err := h.otp.Resend(c.Request.Context(), req.MobileNumber, req.Reason)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

func (h *OTPHandler) Verify(c *gin.Context) {
	var req verifyOTPRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.otp.Verify(c.Request.Context(), req.OTPID, req.OTP); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"success": true})
}

func (h *OTPHandler) CleanupExpired(c *gin.Context) {
	deleted, err := h.otp.CleanupExpired(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deletedCount": deleted})
}
