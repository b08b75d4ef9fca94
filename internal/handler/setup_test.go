package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/otpauth/internal/handler"
	"github.com/xxxsen/otpauth/internal/middleware"
	"github.com/xxxsen/otpauth/internal/model"
	"github.com/xxxsen/otpauth/internal/pkg/jwt"
	"github.com/xxxsen/otpauth/internal/pkg/password"
	"github.com/xxxsen/otpauth/internal/service"
	"github.com/xxxsen/otpauth/internal/testutil"
)

const (
	testMobile = "9876543210"
	devCode    = "123456"
)

var (
	testSecret = []byte("test-secret")
	testHasher = password.NewHasher(password.Params{Memory: 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32})
)

type testEnv struct {
	router http.Handler
	users  *testutil.UserStore
	otps   *testutil.OTPStore
	sms    *testutil.SMSRecorder
}

type envelope struct {
	Code float64         `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T, rateLimit time.Duration) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, handler.RegisterValidators())

	env := &testEnv{
		users: testutil.NewUserStore(),
		otps:  testutil.NewOTPStore(),
		sms:   &testutil.SMSRecorder{},
	}
	otpService := service.NewOTPService(env.otps, env.sms, true)
	userService := service.NewUserService(env.users, otpService, testHasher, "")
	signInService := service.NewSignInService(env.users, otpService, testHasher, testSecret, time.Hour)

	deps := handler.RouterDeps{
		OTP:        handler.NewOTPHandler(otpService),
		User:       handler.NewUserHandler(userService, false),
		Auth:       handler.NewAuthHandler(signInService, false),
		Properties: handler.NewPropertiesHandler(otpService.Properties()),
		Session:    middleware.SessionOptions{Secret: testSecret, TTL: time.Hour},
		RateLimit:  rateLimit,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)
	env.router = engine
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	return resp, env
}

func decodeData(t *testing.T, env envelope, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func tokenFor(t *testing.T, user *model.User) string {
	t.Helper()
	token, _, err := jwt.GenerateToken(jwt.Subject{
		UserID:       user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Role:         user.Role,
		MobileNumber: user.MobileNumber,
	}, testSecret, time.Hour, time.Now())
	require.NoError(t, err)
	return token
}
