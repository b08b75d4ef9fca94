package testutil

import (
	"context"
	"sync"

	"github.com/xxxsen/otpauth/internal/model"
	appErr "github.com/xxxsen/otpauth/internal/pkg/errors"
)

// UserStore keeps users in memory with the same uniqueness rules as the
// users table.
type UserStore struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*model.User)}
}

// Put inserts or replaces a user without any checks.
func (s *UserStore) Put(user *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[user.ID] = &cp
}

func (s *UserStore) Create(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == user.ID || u.MobileNumber == user.MobileNumber {
			return appErr.ErrConflict
		}
		if user.Email != "" && u.Email == user.Email {
			return appErr.ErrConflict
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *UserStore) GetByID(_ context.Context, userID string) (*model.User, error) {
	return s.find(func(u *model.User) bool { return u.ID == userID })
}

func (s *UserStore) GetByMobile(_ context.Context, mobile string) (*model.User, error) {
	return s.find(func(u *model.User) bool { return u.MobileNumber == mobile })
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return s.find(func(u *model.User) bool { return email != "" && u.Email == email })
}

func (s *UserStore) ExistsByMobile(ctx context.Context, mobile string) (bool, error) {
	_, err := s.GetByMobile(ctx, mobile)
	if appErr.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *UserStore) FindByMobileOrEmail(_ context.Context, mobile, email string) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.User
	for _, u := range s.users {
		if u.MobileNumber == mobile || (email != "" && u.Email == email) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *UserStore) UpdateProfile(_ context.Context, userID string, update model.ProfileUpdate, emailVerified, mtime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return appErr.ErrNotFound
	}
	if update.Email != nil && *update.Email != "" {
		for _, other := range s.users {
			if other.ID != userID && other.Email == *update.Email {
				return appErr.ErrConflict
			}
		}
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Email != nil {
		u.Email = *update.Email
		u.EmailVerified = emailVerified
	}
	if update.Gender != nil {
		u.Gender = *update.Gender
	}
	if update.Address != nil {
		u.Address = *update.Address
	}
	u.Mtime = mtime
	return nil
}

func (s *UserStore) UpdatePassword(_ context.Context, userID, passwordHash string, mtime int64) error {
	return s.mutate(userID, func(u *model.User) {
		u.PasswordHash = passwordHash
		u.Mtime = mtime
	})
}

func (s *UserStore) MarkLogin(_ context.Context, userID string, now int64) error {
	return s.mutate(userID, func(u *model.User) {
		u.IsVerifiedMobileNumber = true
		u.LastLoginAt = now
		u.Mtime = now
	})
}

func (s *UserStore) TouchLastLogin(_ context.Context, userID string, now int64) error {
	return s.mutate(userID, func(u *model.User) {
		u.LastLoginAt = now
		u.Mtime = now
	})
}

func (s *UserStore) Deactivate(_ context.Context, userID string, mtime int64) error {
	return s.mutate(userID, func(u *model.User) {
		u.IsActive = false
		u.Mtime = mtime
	})
}

func (s *UserStore) mutate(userID string, fn func(u *model.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return appErr.ErrNotFound
	}
	fn(u)
	return nil
}

func (s *UserStore) find(match func(u *model.User) bool) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

// OTPStore keeps one code per (mobile, reason) slot in memory.
type OTPStore struct {
	mu    sync.Mutex
	codes map[string]*model.OneTimeCode
}

func NewOTPStore() *OTPStore {
	return &OTPStore{codes: make(map[string]*model.OneTimeCode)}
}

func slot(mobile, reason string) string {
	return mobile + "|" + reason
}

// Put stores code as-is, overwriting its slot.
func (s *OTPStore) Put(code *model.OneTimeCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *code
	s.codes[slot(code.MobileNumber, code.Reason)] = &cp
}

func (s *OTPStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

func (s *OTPStore) Replace(_ context.Context, code *model.OneTimeCode) error {
	cp := *code
	cp.Used = false
	cp.UsedAt = 0
	cp.ResendAttempts = 0
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[slot(code.MobileNumber, code.Reason)] = &cp
	return nil
}

func (s *OTPStore) GetByID(_ context.Context, id string) (*model.OneTimeCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (s *OTPStore) GetByMobileReason(_ context.Context, mobile, reason string) (*model.OneTimeCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[slot(mobile, reason)]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *OTPStore) DeleteByID(_ context.Context, id string) error {
	s.deleteWhere(func(c *model.OneTimeCode) bool { return c.ID == id })
	return nil
}

func (s *OTPStore) DeleteByMobileReason(_ context.Context, mobile, reason string) (int64, error) {
	return s.deleteWhere(func(c *model.OneTimeCode) bool {
		return c.MobileNumber == mobile && c.Reason == reason
	}), nil
}

func (s *OTPStore) DeleteUsed(_ context.Context, mobile, reason string) (int64, error) {
	return s.deleteWhere(func(c *model.OneTimeCode) bool {
		return c.MobileNumber == mobile && c.Reason == reason && c.Used
	}), nil
}

func (s *OTPStore) DeleteExpired(_ context.Context, now int64) (int64, error) {
	return s.deleteWhere(func(c *model.OneTimeCode) bool { return c.ExpiresAt < now }), nil
}

func (s *OTPStore) IncrementResend(_ context.Context, id string, max int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.ID == id && c.ResendAttempts < max {
			c.ResendAttempts++
			return true, nil
		}
	}
	return false, nil
}

func (s *OTPStore) Consume(_ context.Context, id string, now int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.ID == id && !c.Used && c.ExpiresAt > now {
			c.Used = true
			c.UsedAt = now
			return true, nil
		}
	}
	return false, nil
}

func (s *OTPStore) deleteWhere(match func(c *model.OneTimeCode) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, c := range s.codes {
		if match(c) {
			delete(s.codes, key)
			n++
		}
	}
	return n
}

// SMSRecorder captures outgoing messages.
type SMSRecorder struct {
	mu   sync.Mutex
	Sent []string
	Err  error
}

func (r *SMSRecorder) Send(_ context.Context, mobile, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Sent = append(r.Sent, mobile+": "+message)
	return nil
}

func (r *SMSRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Sent)
}
