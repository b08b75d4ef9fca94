package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/otpauth/internal/model"
	appErr "github.com/xxxsen/otpauth/internal/pkg/errors"
	"github.com/xxxsen/otpauth/internal/pkg/password"
	"github.com/xxxsen/otpauth/internal/testutil"
)

var testHasher = password.NewHasher(password.Params{Memory: 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32})

type userFixture struct {
	*otpFixture
	users *testutil.UserStore
	svc   *UserService
}

func newUserFixture(t *testing.T, defaultPassword string) *userFixture {
	t.Helper()
	of := newOTPFixture(t, true)
	f := &userFixture{otpFixture: of, users: testutil.NewUserStore()}
	f.svc = NewUserService(f.users, of.svc, testHasher, defaultPassword)
	f.svc.now = func() time.Time { return of.clock }
	return f
}

func validRegistration() Registration {
	return Registration{
		Name:         "Asha",
		Email:        "Asha@Example.com",
		MobileNumber: testMobile,
		Gender:       model.GenderFemale,
		Address:      "12 Lake Road",
	}
}

func TestIsUserRegisteredFlipsAfterRegistration(t *testing.T) {
	f := newUserFixture(t, "")
	ctx := context.Background()

	ok, err := f.svc.IsUserRegistered(ctx, testMobile)
	require.NoError(t, err)
	require.False(t, ok)

	user, err := f.svc.CreateUser(ctx, validRegistration())
	require.NoError(t, err)
	require.Equal(t, "asha@example.com", user.Email)
	require.Equal(t, model.RoleUser, user.Role)
	require.False(t, user.IsVerifiedMobileNumber)

	ok, err = f.svc.IsUserRegistered(ctx, testMobile)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.IsUserRegistered(ctx, "123")
	require.True(t, errors.Is(err, appErr.ErrInvalid))
}

func TestCreateUserConflicts(t *testing.T) {
	f := newUserFixture(t, "")
	ctx := context.Background()

	_, err := f.svc.CreateUser(ctx, validRegistration())
	require.NoError(t, err)

	dupMobile := validRegistration()
	dupMobile.Email = "other@example.com"
	_, err = f.svc.CreateUser(ctx, dupMobile)
	require.ErrorIs(t, err, ErrMobileTaken)
	require.True(t, appErr.IsConflict(err))

	dupEmail := validRegistration()
	dupEmail.MobileNumber = "9123456789"
	dupEmail.Email = "ASHA@example.com "
	_, err = f.svc.CreateUser(ctx, dupEmail)
	require.ErrorIs(t, err, ErrEmailTaken)
}

// racingUserStore hides existing rows from the pre-insert lookup once, as if a
// concurrent registration committed between the check and the insert.
type racingUserStore struct {
	*testutil.UserStore
	raced bool
}

func (s *racingUserStore) FindByMobileOrEmail(ctx context.Context, mobile, email string) ([]*model.User, error) {
	if !s.raced {
		s.raced = true
		return nil, nil
	}
	return s.UserStore.FindByMobileOrEmail(ctx, mobile, email)
}

func TestCreateUserRaceReportsCollidingField(t *testing.T) {
	ctx := context.Background()
	cases := map[string]struct {
		existing *model.User
		want     error
	}{
		"email": {
			existing: &model.User{ID: "u0", MobileNumber: "9123456789", Email: "asha@example.com", Role: model.RoleUser, IsActive: true},
			want:     ErrEmailTaken,
		},
		"mobile": {
			existing: &model.User{ID: "u0", MobileNumber: testMobile, Role: model.RoleUser, IsActive: true},
			want:     ErrMobileTaken,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newUserFixture(t, "")
			f.users.Put(tc.existing)
			f.svc.users = &racingUserStore{UserStore: f.users}

			_, err := f.svc.CreateUser(ctx, validRegistration())
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateUserValidation(t *testing.T) {
	f := newUserFixture(t, "")
	cases := map[string]func(r *Registration){
		"missing name":   func(r *Registration) { r.Name = "  " },
		"bad mobile":     func(r *Registration) { r.MobileNumber = "1234567890" },
		"bad email":      func(r *Registration) { r.Email = "nope" },
		"bad gender":     func(r *Registration) { r.Gender = "UNKNOWN" },
		"missing addr":   func(r *Registration) { r.Address = "" },
		"missing gender": func(r *Registration) { r.Gender = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := validRegistration()
			mutate(&r)
			_, err := f.svc.CreateUser(context.Background(), r)
			require.True(t, errors.Is(err, appErr.ErrInvalid), err)
		})
	}
}

func TestCreateUserWithoutEmail(t *testing.T) {
	f := newUserFixture(t, "")
	r := validRegistration()
	r.Email = ""
	user, err := f.svc.CreateUser(context.Background(), r)
	require.NoError(t, err)

	stored, err := f.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.Zero(t, stored.EmailVerified)
	require.Empty(t, stored.PasswordHash)
}

func TestCreateUserAssignsDefaultPasswordWhenConfigured(t *testing.T) {
	f := newUserFixture(t, "Welcome@123")
	user, err := f.svc.CreateUser(context.Background(), validRegistration())
	require.NoError(t, err)

	stored, err := f.users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NoError(t, testHasher.Compare(stored.PasswordHash, "Welcome@123"))
	require.Equal(t, f.clock.Unix(), stored.EmailVerified)
	require.True(t, stored.IsActive)
}

func TestInitiateLoginCreatesPlaceholderAndVerifies(t *testing.T) {
	f := newUserFixture(t, "")
	ctx := context.Background()

	res, err := f.svc.InitiateLogin(ctx, testMobile)
	require.NoError(t, err)
	require.NotEmpty(t, res.OTPID)
	require.Equal(t, "User_3210", res.User.Name)
	require.False(t, res.User.IsVerifiedMobileNumber)

	user, err := f.svc.VerifyLoginOTP(ctx, testMobile, developmentOTP)
	require.NoError(t, err)
	require.True(t, user.IsVerifiedMobileNumber)
	require.Equal(t, res.User.ID, user.ID)
	require.Equal(t, 0, f.store.Len())

	stored, err := f.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, f.clock.Unix(), stored.LastLoginAt)

	// a second initiation reuses the account
	again, err := f.svc.InitiateLogin(ctx, testMobile)
	require.NoError(t, err)
	require.Equal(t, user.ID, again.User.ID)
	require.True(t, again.User.IsVerifiedMobileNumber)
}

func TestInitiateLoginRejectsInactiveAccount(t *testing.T) {
	f := newUserFixture(t, "")
	f.users.Put(&model.User{ID: "u1", MobileNumber: testMobile, Role: model.RoleUser, IsActive: false})

	_, err := f.svc.InitiateLogin(context.Background(), testMobile)
	require.ErrorIs(t, err, ErrUserInactive)
	require.True(t, errors.Is(err, appErr.ErrForbidden))
	require.Equal(t, 0, f.sms.Count())
}

func TestInitiateLoginClearsPreviousLoginCode(t *testing.T) {
	f := newUserFixture(t, "")
	ctx := context.Background()

	first, err := f.svc.InitiateLogin(ctx, testMobile)
	require.NoError(t, err)
	second, err := f.svc.InitiateLogin(ctx, testMobile)
	require.NoError(t, err)
	require.NotEqual(t, first.OTPID, second.OTPID)
	require.Equal(t, 1, f.store.Len())
}

func TestVerifyLoginOTPFailures(t *testing.T) {
	f := newUserFixture(t, "")
	ctx := context.Background()

	_, err := f.svc.VerifyLoginOTP(ctx, testMobile, developmentOTP)
	require.ErrorIs(t, err, ErrUserNotFound)

	f.users.Put(&model.User{ID: "u1", MobileNumber: testMobile, Role: model.RoleUser, IsActive: true})
	_, err = f.svc.VerifyLoginOTP(ctx, testMobile, developmentOTP)
	require.ErrorIs(t, err, ErrOTPNotFound)

	_, err = f.svc.InitiateLogin(ctx, testMobile)
	require.NoError(t, err)
	_, err = f.svc.VerifyLoginOTP(ctx, testMobile, "999999")
	require.ErrorIs(t, err, ErrInvalidCode)

	f.advance(otpTTL + time.Second)
	_, err = f.svc.VerifyLoginOTP(ctx, testMobile, developmentOTP)
	require.ErrorIs(t, err, ErrCodeExpired)

	stored, err := f.users.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.False(t, stored.IsVerifiedMobileNumber)
}

func TestUpdateProfile(t *testing.T) {
	f := newUserFixture(t, "")
	ctx := context.Background()
	f.users.Put(&model.User{ID: "u1", MobileNumber: testMobile, Name: "Old", Role: model.RoleUser, IsActive: true})
	f.users.Put(&model.User{ID: "u2", MobileNumber: "9123456789", Email: "taken@example.com", Role: model.RoleUser, IsActive: true})

	taken := "Taken@Example.com"
	_, err := f.svc.UpdateProfile(ctx, "u1", model.ProfileUpdate{Email: &taken})
	require.ErrorIs(t, err, ErrEmailInUse)

	name, email, gender := " New Name ", "new@example.com", model.GenderOther
	user, err := f.svc.UpdateProfile(ctx, "u1", model.ProfileUpdate{Name: &name, Email: &email, Gender: &gender})
	require.NoError(t, err)
	require.Equal(t, "New Name", user.Name)
	require.Equal(t, "new@example.com", user.Email)
	require.Equal(t, model.GenderOther, user.Gender)
	require.Equal(t, f.clock.Unix(), user.EmailVerified)

	// keeping the same email is not a conflict
	_, err = f.svc.UpdateProfile(ctx, "u1", model.ProfileUpdate{Email: &email})
	require.NoError(t, err)

	bad := "X"
	_, err = f.svc.UpdateProfile(ctx, "u1", model.ProfileUpdate{Gender: &bad})
	require.True(t, errors.Is(err, appErr.ErrInvalid))

	_, err = f.svc.UpdateProfile(ctx, "missing", model.ProfileUpdate{Name: &name})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdatePassword(t *testing.T) {
	f := newUserFixture(t, "")
	ctx := context.Background()
	f.users.Put(&model.User{ID: "nopass", MobileNumber: "9123456789", Role: model.RoleUser, IsActive: true})
	require.ErrorIs(t, f.svc.UpdatePassword(ctx, "nopass", "x", "y"), ErrNoPasswordSet)

	hash, err := testHasher.Hash("old-secret")
	require.NoError(t, err)
	f.users.Put(&model.User{ID: "u1", MobileNumber: testMobile, Role: model.RoleUser, IsActive: true, PasswordHash: hash})

	err = f.svc.UpdatePassword(ctx, "u1", "wrong", "new-secret")
	require.ErrorIs(t, err, ErrWrongPassword)
	require.True(t, errors.Is(err, appErr.ErrUnauthorized))
	stored, err := f.users.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, hash, stored.PasswordHash)

	require.NoError(t, f.svc.UpdatePassword(ctx, "u1", "old-secret", "new-secret"))
	stored, err = f.users.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, testHasher.Compare(stored.PasswordHash, "new-secret"))
	require.Error(t, testHasher.Compare(stored.PasswordHash, "old-secret"))
}

func TestDeactivatedUserCannotEdit(t *testing.T) {
	f := newUserFixture(t, "")
	ctx := context.Background()
	hash, err := testHasher.Hash("old-secret")
	require.NoError(t, err)
	f.users.Put(&model.User{ID: "u1", MobileNumber: testMobile, Name: "Asha", Role: model.RoleUser, IsActive: true, PasswordHash: hash})
	require.NoError(t, f.svc.DeactivateUser(ctx, "u1"))

	name := "Changed"
	_, err = f.svc.UpdateProfile(ctx, "u1", model.ProfileUpdate{Name: &name})
	require.ErrorIs(t, err, ErrUserInactive)
	require.ErrorIs(t, f.svc.UpdatePassword(ctx, "u1", "old-secret", "new-secret"), ErrUserInactive)

	stored, err := f.users.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Asha", stored.Name)
	require.Equal(t, hash, stored.PasswordHash)
}

func TestDeactivateAndGetMe(t *testing.T) {
	f := newUserFixture(t, "")
	ctx := context.Background()
	f.users.Put(&model.User{ID: "u1", MobileNumber: testMobile, Name: "Asha", Role: model.RoleUser, IsActive: true, Ctime: 1, Mtime: 1})

	me, err := f.svc.GetMe(ctx, "u1")
	require.NoError(t, err)
	require.True(t, me.IsActive)
	require.Equal(t, int64(1), me.CreatedAt)

	require.NoError(t, f.svc.DeactivateUser(ctx, "u1"))
	me, err = f.svc.GetMe(ctx, "u1")
	require.NoError(t, err)
	require.False(t, me.IsActive)

	_, err = f.svc.GetMe(ctx, "missing")
	require.ErrorIs(t, err, ErrUserNotFound)
	require.ErrorIs(t, f.svc.DeactivateUser(ctx, "missing"), ErrUserNotFound)
}
