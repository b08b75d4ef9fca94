package handler_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/otpauth/internal/model"
	"github.com/xxxsen/otpauth/internal/pkg/errcode"
)

func TestOTPHandlers(t *testing.T) {
	env := setupRouter(t, 0)

	_, resp := env.do(t, http.MethodPost, "/api/v1/otp/send", map[string]string{
		"mobileNumber": testMobile,
		"reason":       model.OTPReasonRegistration,
	}, "")
	require.Equal(t, float64(0), resp.Code)
	var sent struct {
		ID string `json:"id"`
	}
	decodeData(t, resp, &sent)
	require.NotEmpty(t, sent.ID)
	require.Equal(t, 1, env.sms.Count())

	_, resp = env.do(t, http.MethodPost, "/api/v1/otp/resend", map[string]string{
		"mobileNumber": testMobile,
		"reason":       model.OTPReasonRegistration,
	}, "")
	require.Equal(t, float64(0), resp.Code)
	require.Equal(t, 2, env.sms.Count())

	_, resp = env.do(t, http.MethodPost, "/api/v1/otp/verify", map[string]string{"otpId": sent.ID, "otp": "000000"}, "")
	require.Equal(t, float64(errcode.ErrUnauthorized), resp.Code)

	_, resp = env.do(t, http.MethodPost, "/api/v1/otp/verify", map[string]string{"otpId": sent.ID, "otp": devCode}, "")
	require.Equal(t, float64(0), resp.Code)
	var verified struct {
		Success bool `json:"success"`
	}
	decodeData(t, resp, &verified)
	require.True(t, verified.Success)

	_, resp = env.do(t, http.MethodPost, "/api/v1/otp/verify", map[string]string{"otpId": sent.ID, "otp": devCode}, "")
	require.Equal(t, float64(errcode.ErrInvalid), resp.Code)
	require.Equal(t, "OTP has already been used", resp.Msg)
}

func TestOTPHandlersValidateInput(t *testing.T) {
	env := setupRouter(t, 0)

	_, resp := env.do(t, http.MethodPost, "/api/v1/otp/send", map[string]string{
		"mobileNumber": "12345",
		"reason":       model.OTPReasonLogin,
	}, "")
	require.Equal(t, float64(errcode.ErrInvalid), resp.Code)
	require.Equal(t, "invalid mobile number", resp.Msg)

	_, resp = env.do(t, http.MethodPost, "/api/v1/otp/send", map[string]string{
		"mobileNumber": testMobile,
		"reason":       "SIGNUP",
	}, "")
	require.Equal(t, float64(errcode.ErrInvalid), resp.Code)

	_, resp = env.do(t, http.MethodPost, "/api/v1/otp/verify", map[string]string{"otpId": "x", "otp": "12"}, "")
	require.Equal(t, float64(errcode.ErrInvalid), resp.Code)
	require.Equal(t, "OTP must be 6 digits", resp.Msg)

	_, resp = env.do(t, http.MethodPost, "/api/v1/otp/resend", map[string]string{
		"mobileNumber": testMobile,
		"reason":       model.OTPReasonLogin,
	}, "")
	require.Equal(t, float64(errcode.ErrNotFound), resp.Code)
	require.Equal(t, 0, env.sms.Count())
}

func TestOTPVerifyExpiredCode(t *testing.T) {
	env := setupRouter(t, 0)
	env.otps.Put(&model.OneTimeCode{
		ID:           "old",
		MobileNumber: testMobile,
		Reason:       model.OTPReasonLogin,
		Code:         devCode,
		ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
	})

	_, resp := env.do(t, http.MethodPost, "/api/v1/otp/verify", map[string]string{"otpId": "old", "otp": devCode}, "")
	require.Equal(t, float64(errcode.ErrInvalid), resp.Code)
	require.Equal(t, "OTP has expired", resp.Msg)
}

func TestOTPSendIsRateLimited(t *testing.T) {
	env := setupRouter(t, time.Minute)
	body := map[string]string{"mobileNumber": testMobile, "reason": model.OTPReasonLogin}

	_, resp := env.do(t, http.MethodPost, "/api/v1/otp/send", body, "")
	require.Equal(t, float64(0), resp.Code)
	_, resp = env.do(t, http.MethodPost, "/api/v1/otp/send", body, "")
	require.Equal(t, float64(errcode.ErrTooMany), resp.Code)
	require.Equal(t, 1, env.sms.Count())
}

func TestOTPCleanupRequiresAdmin(t *testing.T) {
	env := setupRouter(t, 0)
	now := time.Now().Unix()
	env.otps.Put(&model.OneTimeCode{ID: "a", MobileNumber: testMobile, Reason: model.OTPReasonLogin, Code: devCode, ExpiresAt: now - 60})
	env.otps.Put(&model.OneTimeCode{ID: "b", MobileNumber: testMobile, Reason: model.OTPReasonRegistration, Code: devCode, ExpiresAt: now + 60})

	_, resp := env.do(t, http.MethodPost, "/api/v1/otp/cleanup-expired", nil, "")
	require.Equal(t, float64(errcode.ErrUnauthorized), resp.Code)

	user := &model.User{ID: "u1", MobileNumber: testMobile, Role: model.RoleUser, IsActive: true}
	_, resp = env.do(t, http.MethodPost, "/api/v1/otp/cleanup-expired", nil, tokenFor(t, user))
	require.Equal(t, float64(errcode.ErrForbidden), resp.Code)

	admin := &model.User{ID: "a1", Email: "admin@example.com", MobileNumber: "9000000000", Role: model.RoleAdmin, IsActive: true}
	_, resp = env.do(t, http.MethodPost, "/api/v1/otp/cleanup-expired", nil, tokenFor(t, admin))
	require.Equal(t, float64(0), resp.Code)
	var out struct {
		DeletedCount int64 `json:"deletedCount"`
	}
	decodeData(t, resp, &out)
	require.Equal(t, int64(1), out.DeletedCount)
	require.Equal(t, 1, env.otps.Len())
}
