package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/otpauth/internal/middleware"
	"github.com/xxxsen/otpauth/internal/pkg/errcode"
	appErr "github.com/xxxsen/otpauth/internal/pkg/errors"
	"github.com/xxxsen/otpauth/internal/pkg/response"
	"github.com/xxxsen/otpauth/internal/pkg/validate"
	"github.com/xxxsen/otpauth/internal/service"
)

var (
	validatorsOnce sync.Once
	validatorsErr  error
)

// RegisterValidators installs the custom tags on gin's binding validator and
// reports field names by their json tag.
func RegisterValidators() error {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorsErr = errors.New("unexpected binding validator")
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		validatorsErr = validate.Register(v)
	})
	return validatorsErr
}

func getUserID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextUserIDKey)
	userID, _ := value.(string)
	return userID
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, errcode.ErrInvalid, describeBindError(err))
		return false
	}
	return true
}

func describeBindError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "mobile":
		return "invalid mobile number"
	case "otp":
		return "OTP must be 6 digits"
	case "email":
		return "invalid email"
	case "gender":
		return "gender must be one of MALE, FEMALE, OTHER"
	case "otpreason":
		return "reason must be one of LOGIN, REGISTRATION, PASSWORD_RESET"
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	fields := []zap.Field{
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	}
	logger := logutil.GetLogger(c.Request.Context())

	var signInErr *service.SignInError
	if errors.As(err, &signInErr) {
		logger.Info("sign in failed", fields...)
		response.Error(c, errcode.ErrSignInFailed, signInErr.Code)
		return
	}
	code, fallback := errcode.ErrInternal, "internal error"
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		code, fallback = errcode.ErrUnauthorized, "unauthorized"
	case errors.Is(err, appErr.ErrForbidden):
		code, fallback = errcode.ErrForbidden, "forbidden"
	case errors.Is(err, appErr.ErrNotFound):
		code, fallback = errcode.ErrNotFound, "not found"
	case errors.Is(err, appErr.ErrInvalid):
		code, fallback = errcode.ErrInvalid, "invalid request"
	case errors.Is(err, appErr.ErrConflict):
		code, fallback = errcode.ErrConflict, "conflict"
	case errors.Is(err, appErr.ErrTooMany):
		code, fallback = errcode.ErrTooMany, "too many requests"
	}
	if code == errcode.ErrInternal {
		logger.Error("request failed", fields...)
		response.Error(c, code, fallback)
		return
	}
	logger.Info("request rejected", fields...)
	response.Error(c, code, appErr.Message(err, fallback))
}
