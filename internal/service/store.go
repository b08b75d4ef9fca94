package service

import (
	"context"

	"github.com/xxxsen/otpauth/internal/model"
)

// UserStore is the persistence surface the user flows need. repo.UserRepo
// implements it against Postgres.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, userID string) (*model.User, error)
	GetByMobile(ctx context.Context, mobile string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ExistsByMobile(ctx context.Context, mobile string) (bool, error)
	FindByMobileOrEmail(ctx context.Context, mobile, email string) ([]*model.User, error)
	UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate, emailVerified, mtime int64) error
	UpdatePassword(ctx context.Context, userID, passwordHash string, mtime int64) error
	MarkLogin(ctx context.Context, userID string, now int64) error
	TouchLastLogin(ctx context.Context, userID string, now int64) error
	Deactivate(ctx context.Context, userID string, mtime int64) error
}

type OTPStore interface {
	Replace(ctx context.Context, code *model.OneTimeCode) error
	GetByID(ctx context.Context, id string) (*model.OneTimeCode, error)
	GetByMobileReason(ctx context.Context, mobile, reason string) (*model.OneTimeCode, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByMobileReason(ctx context.Context, mobile, reason string) (int64, error)
	DeleteUsed(ctx context.Context, mobile, reason string) (int64, error)
	DeleteExpired(ctx context.Context, now int64) (int64, error)
	IncrementResend(ctx context.Context, id string, max int) (bool, error)
	Consume(ctx context.Context, id string, now int64) (bool, error)
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(digest, plain string) error
}
