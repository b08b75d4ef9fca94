package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/otpauth/internal/model"
	appErr "github.com/xxxsen/otpauth/internal/pkg/errors"
	"github.com/xxxsen/otpauth/internal/pkg/password"
	"github.com/xxxsen/otpauth/internal/pkg/validate"
)

var (
	ErrUserNotFound        = appErr.Wrap(appErr.ErrNotFound, "User not found")
	ErrUserInactive        = appErr.Wrap(appErr.ErrForbidden, "Account is deactivated")
	ErrMobileTaken         = appErr.Wrap(appErr.ErrConflict, "User with this mobile number already exists")
	ErrEmailTaken          = appErr.Wrap(appErr.ErrConflict, "User with this email already exists")
	ErrUserExists          = appErr.Wrap(appErr.ErrConflict, "User already exists")
	ErrEmailInUse          = appErr.Wrap(appErr.ErrConflict, "Email is already taken by another user")
	ErrNoPasswordSet       = appErr.Wrap(appErr.ErrInvalid, "User does not have a password set")
	ErrWrongPassword       = appErr.Wrap(appErr.ErrUnauthorized, "Current password is incorrect")
	errInvalidRegistration = appErr.Wrap(appErr.ErrInvalid, "invalid registration")
)

// Registration is the public sign-up form.
type Registration struct {
	Name         string `validate:"required"`
	Email        string `validate:"omitempty,email"`
	MobileNumber string `validate:"required,mobile"`
	Gender       string `validate:"required,gender"`
	Address      string `validate:"required"`
}

type LoginInitiation struct {
	OTPID string           `json:"otpId"`
	User  *model.LoginUser `json:"user"`
}

type UserService struct {
	users           UserStore
	otp             *OTPService
	hasher          PasswordHasher
	defaultPassword string
	now             func() time.Time
}

// NewUserService wires the user flows. A non-empty defaultPassword is hashed
// onto every registered account.
func NewUserService(users UserStore, otp *OTPService, hasher PasswordHasher, defaultPassword string) *UserService {
	if hasher == nil {
		hasher = password.NewHasher(password.DefaultParams)
	}
	return &UserService{
		users:           users,
		otp:             otp,
		hasher:          hasher,
		defaultPassword: defaultPassword,
		now:             time.Now,
	}
}

func (s *UserService) IsUserRegistered(ctx context.Context, mobile string) (bool, error) {
	if !validate.Mobile(mobile) {
		return false, errInvalidMobile
	}
	return s.users.ExistsByMobile(ctx, mobile)
}

func (s *UserService) CreateUser(ctx context.Context, input Registration) (*model.BasicUser, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Address = strings.TrimSpace(input.Address)
	input.Email = validate.NormalizeEmail(input.Email)
	if err := validate.Struct(input); err != nil {
		return nil, registrationError(err)
	}
	if err := s.checkTaken(ctx, input.MobileNumber, input.Email); err != nil {
		return nil, err
	}
	now := s.now().Unix()
	user := &model.User{
		ID:           newID(),
		Name:         input.Name,
		Email:        input.Email,
		MobileNumber: input.MobileNumber,
		Gender:       input.Gender,
		Address:      input.Address,
		Role:         model.RoleUser,
		IsActive:     true,
		Ctime:        now,
		Mtime:        now,
	}
	if input.Email != "" {
		user.EmailVerified = now
	}
	if s.defaultPassword != "" {
		hash, err := s.hasher.Hash(s.defaultPassword)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	if err := s.users.Create(ctx, user); err != nil {
		if !appErr.IsConflict(err) {
			return nil, err
		}
		// lost a race with a concurrent registration
		if err := s.checkTaken(ctx, input.MobileNumber, input.Email); err != nil {
			return nil, err
		}
		return nil, ErrUserExists
	}
	return user.Basic(), nil
}

func (s *UserService) checkTaken(ctx context.Context, mobile, email string) error {
	existing, err := s.users.FindByMobileOrEmail(ctx, mobile, email)
	if err != nil {
		return err
	}
	for _, u := range existing {
		if u.MobileNumber == mobile {
			return ErrMobileTaken
		}
	}
	for _, u := range existing {
		if email != "" && u.Email == email {
			return ErrEmailTaken
		}
	}
	return nil
}

// InitiateLogin starts an OTP login for mobile, creating a placeholder account
// on first contact.
func (s *UserService) InitiateLogin(ctx context.Context, mobile string) (*LoginInitiation, error) {
	if !validate.Mobile(mobile) {
		return nil, errInvalidMobile
	}
	user, err := s.findOrCreate(ctx, mobile)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	if err := s.otp.ClearReason(ctx, mobile, model.OTPReasonLogin); err != nil {
		return nil, err
	}
	otpID, err := s.otp.Send(ctx, mobile, model.OTPReasonLogin)
	if err != nil {
		return nil, err
	}
	return &LoginInitiation{OTPID: otpID, User: user.Login()}, nil
}

// VerifyLoginOTP consumes the LOGIN code for mobile and marks the number verified.
func (s *UserService) VerifyLoginOTP(ctx context.Context, mobile, code string) (*model.BasicUser, error) {
	if !validate.Mobile(mobile) {
		return nil, errInvalidMobile
	}
	user, err := s.users.GetByMobile(ctx, mobile)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserNotFound
	}
	if err := s.otp.VerifyActive(ctx, mobile, model.OTPReasonLogin, code); err != nil {
		return nil, err
	}
	if err := s.users.MarkLogin(ctx, user.ID, s.now().Unix()); err != nil {
		return nil, err
	}
	s.otp.ClearUsed(ctx, mobile, model.OTPReasonLogin)
	refreshed, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return refreshed.Basic(), nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.FullUser, error) {
	if _, err := s.getActiveUser(ctx, userID); err != nil {
		return nil, err
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, appErr.Wrap(appErr.ErrInvalid, "name cannot be empty")
		}
		update.Name = &name
	}
	if update.Gender != nil && !validate.Gender(*update.Gender) {
		return nil, appErr.Wrap(appErr.ErrInvalid, "invalid gender")
	}
	var emailVerified int64
	now := s.now().Unix()
	if update.Email != nil {
		email := validate.NormalizeEmail(*update.Email)
		if !validate.Email(email) {
			return nil, appErr.Wrap(appErr.ErrInvalid, "invalid email")
		}
		other, err := s.users.GetByEmail(ctx, email)
		switch {
		case err == nil && other.ID != userID:
			return nil, ErrEmailInUse
		case err != nil && !appErr.IsNotFound(err):
			return nil, err
		}
		update.Email = &email
		emailVerified = now
	}
	if err := s.users.UpdateProfile(ctx, userID, update, emailVerified, now); err != nil {
		if appErr.IsConflict(err) {
			return nil, ErrEmailInUse
		}
		return nil, err
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Full(), nil
}

func (s *UserService) UpdatePassword(ctx context.Context, userID, current, next string) error {
	if strings.TrimSpace(next) == "" {
		return appErr.Wrap(appErr.ErrInvalid, "new password is required")
	}
	user, err := s.getActiveUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHash == "" {
		return ErrNoPasswordSet
	}
	if err := s.hasher.Compare(user.PasswordHash, current); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			return ErrWrongPassword
		}
		return err
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash, s.now().Unix())
}

func (s *UserService) DeactivateUser(ctx context.Context, userID string) error {
	err := s.users.Deactivate(ctx, userID, s.now().Unix())
	if appErr.IsNotFound(err) {
		return ErrUserNotFound
	}
	return err
}

func (s *UserService) GetMe(ctx context.Context, userID string) (*model.FullUser, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Full(), nil
}

func (s *UserService) getUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// getActiveUser is getUser for write paths; a deactivated account keeps read
// access to itself but cannot change anything.
func (s *UserService) getActiveUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

// findOrCreate returns the account holding mobile, inserting a placeholder
// when there is none. A concurrent insert for the same number is resolved by
// re-reading the winner.
func (s *UserService) findOrCreate(ctx context.Context, mobile string) (*model.User, error) {
	return findOrCreateUser(ctx, s.users, mobile, s.now().Unix())
}

func findOrCreateUser(ctx context.Context, users UserStore, mobile string, now int64) (*model.User, error) {
	user, err := users.GetByMobile(ctx, mobile)
	if err == nil {
		return user, nil
	}
	if !appErr.IsNotFound(err) {
		return nil, err
	}
	user = &model.User{
		ID:           newID(),
		Name:         "User_" + mobile[len(mobile)-4:],
		MobileNumber: mobile,
		Role:         model.RoleUser,
		IsActive:     true,
		Ctime:        now,
		Mtime:        now,
	}
	if err := users.Create(ctx, user); err != nil {
		if !appErr.IsConflict(err) {
			return nil, err
		}
		logutil.GetLogger(ctx).Info("placeholder user raced, reloading", zap.String("mobile", mobile))
		return users.GetByMobile(ctx, mobile)
	}
	return user, nil
}

func registrationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errInvalidRegistration
	}
	field := verrs[0].Field()
	switch field {
	case "MobileNumber":
		return errInvalidMobile
	case "Email":
		return appErr.Wrap(appErr.ErrInvalid, "invalid email")
	case "Gender":
		return appErr.Wrap(appErr.ErrInvalid, "invalid gender")
	}
	return appErr.Wrap(appErr.ErrInvalid, strings.ToLower(field)+" is required")
}
