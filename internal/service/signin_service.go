package service

import (
	"context"
	"errors"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/otpauth/internal/model"
	appErr "github.com/xxxsen/otpauth/internal/pkg/errors"
	"github.com/xxxsen/otpauth/internal/pkg/jwt"
	"github.com/xxxsen/otpauth/internal/pkg/validate"
)

// Sign-in failure codes. They are the only detail a failed sign-in reveals.
const (
	SignInInvalidCredentials = "invalid_credentials"
	SignInAccountNotFound    = "account_not_found"
	SignInAccountInactive    = "account_inactive"
	SignInExpiredOTP         = "expired_otp"
)

type SignInError struct {
	Code string
}

func (e *SignInError) Error() string {
	return e.Code
}

func signInFailed(code string) error {
	return &SignInError{Code: code}
}

// Session is a freshly minted token plus the identity it was minted for.
type Session struct {
	Token     string           `json:"token"`
	ExpiresAt int64            `json:"expiresAt"`
	User      *model.BasicUser `json:"user"`
}

type SignInService struct {
	users  UserStore
	otp    *OTPService
	hasher PasswordHasher
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSignInService(users UserStore, otp *OTPService, hasher PasswordHasher, secret []byte, ttl time.Duration) *SignInService {
	return &SignInService{
		users:  users,
		otp:    otp,
		hasher: hasher,
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *SignInService) TTL() time.Duration {
	return s.ttl
}

// AdminSignIn authenticates an admin by email and password.
func (s *SignInService) AdminSignIn(ctx context.Context, email, plain string) (*Session, error) {
	email = validate.NormalizeEmail(email)
	if email == "" || plain == "" {
		return nil, signInFailed(SignInInvalidCredentials)
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, signInFailed(SignInAccountNotFound)
		}
		return nil, err
	}
	if !model.IsAdminRole(user.Role) {
		return nil, signInFailed(SignInInvalidCredentials)
	}
	if !user.IsActive {
		return nil, signInFailed(SignInAccountInactive)
	}
	if user.PasswordHash == "" || s.hasher.Compare(user.PasswordHash, plain) != nil {
		return nil, signInFailed(SignInInvalidCredentials)
	}
	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now.Unix()); err != nil {
		return nil, err
	}
	return s.mint(ctx, user, now)
}

// UserSignIn authenticates by mobile number and LOGIN code, creating the
// account on first sign-in.
func (s *SignInService) UserSignIn(ctx context.Context, mobile, code string) (*Session, error) {
	if !validate.Mobile(mobile) || !validate.OTP(code) {
		return nil, signInFailed(SignInInvalidCredentials)
	}
	if err := s.otp.VerifyActive(ctx, mobile, model.OTPReasonLogin, code); err != nil {
		switch {
		case errors.Is(err, ErrCodeExpired):
			return nil, signInFailed(SignInExpiredOTP)
		case errors.Is(err, ErrOTPNotFound), errors.Is(err, ErrCodeUsed), errors.Is(err, ErrInvalidCode):
			return nil, signInFailed(SignInInvalidCredentials)
		}
		return nil, err
	}
	now := s.now()
	user, err := findOrCreateUser(ctx, s.users, mobile, now.Unix())
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, signInFailed(SignInAccountInactive)
	}
	if err := s.users.MarkLogin(ctx, user.ID, now.Unix()); err != nil {
		return nil, err
	}
	user.IsVerifiedMobileNumber = true
	user.LastLoginAt = now.Unix()
	s.otp.ClearUsed(ctx, mobile, model.OTPReasonLogin)
	return s.mint(ctx, user, now)
}

func (s *SignInService) mint(ctx context.Context, user *model.User, now time.Time) (*Session, error) {
	token, expiresAt, err := jwt.GenerateToken(jwt.Subject{
		UserID:       user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Role:         user.Role,
		MobileNumber: user.MobileNumber,
	}, s.secret, s.ttl, now)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Debug("session minted",
		zap.String("user_id", user.ID),
		zap.String("role", user.Role),
	)
	return &Session{Token: token, ExpiresAt: expiresAt.Unix(), User: user.Basic()}, nil
}
