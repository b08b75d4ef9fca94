package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/otpauth/internal/model"
	appErr "github.com/xxxsen/otpauth/internal/pkg/errors"
	"github.com/xxxsen/otpauth/internal/pkg/validate"
)

const (
	otpTTL            = 5 * time.Minute
	maxResendAttempts = 5
	developmentOTP    = "123456"
)

var (
	ErrOTPNotFound    = appErr.Wrap(appErr.ErrNotFound, "OTP not found")
	ErrOTPNotSent     = appErr.Wrap(appErr.ErrNotFound, "OTP not sent yet, use send OTP first")
	ErrCodeExpired    = appErr.Wrap(appErr.ErrInvalid, "OTP has expired")
	ErrCodeUsed       = appErr.Wrap(appErr.ErrInvalid, "OTP has already been used")
	ErrInvalidCode    = appErr.Wrap(appErr.ErrUnauthorized, "invalid OTP")
	ErrResendExceeded = appErr.Wrap(appErr.ErrTooMany, "maximum resend attempts reached")
	errInvalidMobile  = appErr.Wrap(appErr.ErrInvalid, "invalid mobile number")
	errInvalidReason  = appErr.Wrap(appErr.ErrInvalid, "invalid OTP reason")
)

type OTPService struct {
	store    OTPStore
	sender   SMSSender
	fixed    bool
	now      func() time.Time
	generate func() (string, error)
}

// NewOTPService builds the OTP flows. With fixedCode set every issued code is
// the development code instead of a random one.
func NewOTPService(store OTPStore, sender SMSSender, fixedCode bool) *OTPService {
	return &OTPService{
		store:    store,
		sender:   sender,
		fixed:    fixedCode,
		now:      time.Now,
		generate: randomCode,
	}
}

// Send issues a fresh code for (mobile, reason), replacing any previous one,
// and returns its id.
func (s *OTPService) Send(ctx context.Context, mobile, reason string) (string, error) {
	if err := checkTarget(mobile, reason); err != nil {
		return "", err
	}
	code := developmentOTP
	if !s.fixed {
		var err error
		if code, err = s.generate(); err != nil {
			return "", err
		}
	}
	now := s.now().Unix()
	item := &model.OneTimeCode{
		ID:           newID(),
		MobileNumber: mobile,
		Reason:       reason,
		Code:         code,
		ExpiresAt:    now + int64(otpTTL/time.Second),
		Ctime:        now,
	}
	if err := s.store.Replace(ctx, item); err != nil {
		return "", err
	}
	if err := s.sender.Send(ctx, mobile, otpMessage(code)); err != nil {
		return "", fmt.Errorf("dispatch otp: %w", err)
	}
	return item.ID, nil
}

// Resend re-dispatches the stored code for (mobile, reason). An expired code
// is dropped and the caller has to Send again.
func (s *OTPService) Resend(ctx context.Context, mobile, reason string) (string, error) {
	if err := checkTarget(mobile, reason); err != nil {
		return "", err
	}
	item, err := s.store.GetByMobileReason(ctx, mobile, reason)
	if err != nil {
		if appErr.IsNotFound(err) {
			return "", ErrOTPNotSent
		}
		return "", err
	}
	if item.Used {
		return "", ErrCodeUsed
	}
	if item.Expired(s.now().Unix()) {
		if err := s.store.DeleteByID(ctx, item.ID); err != nil {
			return "", err
		}
		return "", ErrCodeExpired
	}
	if item.ResendAttempts >= maxResendAttempts {
		return "", ErrResendExceeded
	}
	ok, err := s.store.IncrementResend(ctx, item.ID, maxResendAttempts)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrResendExceeded
	}
	if err := s.sender.Send(ctx, mobile, otpMessage(item.Code)); err != nil {
		logutil.GetLogger(ctx).Warn("resend otp dispatch failed",
			zap.String("otp_id", item.ID),
			zap.Error(err),
		)
	}
	return item.ID, nil
}

// Verify checks code against the record otpID and consumes it.
func (s *OTPService) Verify(ctx context.Context, otpID, code string) error {
	item, err := s.store.GetByID(ctx, otpID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return ErrOTPNotFound
		}
		return err
	}
	return s.consume(ctx, item, code)
}

// VerifyActive is Verify keyed by (mobile, reason) instead of the record id.
func (s *OTPService) VerifyActive(ctx context.Context, mobile, reason, code string) error {
	item, err := s.store.GetByMobileReason(ctx, mobile, reason)
	if err != nil {
		if appErr.IsNotFound(err) {
			return ErrOTPNotFound
		}
		return err
	}
	return s.consume(ctx, item, code)
}

func (s *OTPService) consume(ctx context.Context, item *model.OneTimeCode, code string) error {
	now := s.now().Unix()
	if item.Used {
		return ErrCodeUsed
	}
	if item.Expired(now) {
		return ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(item.Code), []byte(code)) != 1 {
		return ErrInvalidCode
	}
	ok, err := s.store.Consume(ctx, item.ID, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCodeUsed
	}
	return nil
}

// OTPProperties describes the issuing rules to clients.
type OTPProperties struct {
	CodeLength        int  `json:"codeLength"`
	TTLSeconds        int  `json:"ttlSeconds"`
	MaxResendAttempts int  `json:"maxResendAttempts"`
	FixedCode         bool `json:"fixedCode"`
}

func (s *OTPService) Properties() OTPProperties {
	return OTPProperties{
		CodeLength:        len(developmentOTP),
		TTLSeconds:        int(otpTTL / time.Second),
		MaxResendAttempts: maxResendAttempts,
		FixedCode:         s.fixed,
	}
}

// ClearReason drops every code held for (mobile, reason).
func (s *OTPService) ClearReason(ctx context.Context, mobile, reason string) error {
	_, err := s.store.DeleteByMobileReason(ctx, mobile, reason)
	return err
}

// ClearUsed drops consumed codes for (mobile, reason). Failures are only logged.
func (s *OTPService) ClearUsed(ctx context.Context, mobile, reason string) {
	if _, err := s.store.DeleteUsed(ctx, mobile, reason); err != nil {
		logutil.GetLogger(ctx).Warn("delete used otp failed",
			zap.String("mobile", mobile),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}

func (s *OTPService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx, s.now().Unix())
}

func checkTarget(mobile, reason string) error {
	if !validate.Mobile(mobile) {
		return errInvalidMobile
	}
	if !model.IsValidOTPReason(reason) {
		return errInvalidReason
	}
	return nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", errors.Join(appErr.ErrInternal, err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func otpMessage(code string) string {
	return fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(otpTTL/time.Minute))
}
