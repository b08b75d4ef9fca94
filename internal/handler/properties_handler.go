package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/otpauth/internal/pkg/response"
	"github.com/xxxsen/otpauth/internal/service"
)

// PropertiesHandler exposes the OTP limits clients need to drive their UI.
type PropertiesHandler struct {
	props service.OTPProperties
}

func NewPropertiesHandler(props service.OTPProperties) *PropertiesHandler {
	return &PropertiesHandler{props: props}
}

func (h *PropertiesHandler) Get(c *gin.Context) {
	response.Success(c, gin.H{"properties": h.props})
}
