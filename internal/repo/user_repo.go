package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/otpauth/internal/model"
	"github.com/xxxsen/otpauth/internal/pkg/dbutil"
	appErr "github.com/xxxsen/otpauth/internal/pkg/errors"
)

var userColumns = []string{
	"id", "name", "email", "mobile_number", "gender", "address", "role", "password_hash",
	"is_verified_mobile_number", "is_active", "email_verified", "last_login_at", "ctime", "mtime",
}

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	data := map[string]interface{}{
		"id":                        user.ID,
		"name":                      user.Name,
		"email":                     dbutil.NullString(user.Email),
		"mobile_number":             user.MobileNumber,
		"gender":                    user.Gender,
		"address":                   user.Address,
		"role":                      user.Role,
		"password_hash":             user.PasswordHash,
		"is_verified_mobile_number": user.IsVerifiedMobileNumber,
		"is_active":                 user.IsActive,
		"email_verified":            dbutil.NullInt64(user.EmailVerified),
		"last_login_at":             dbutil.NullInt64(user.LastLoginAt),
		"ctime":                     user.Ctime,
		"mtime":                     user.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("users", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, userID string) (*model.User, error) {
	return r.getOne(ctx, map[string]interface{}{"id": userID})
}

func (r *UserRepo) GetByMobile(ctx context.Context, mobile string) (*model.User, error) {
	return r.getOne(ctx, map[string]interface{}{"mobile_number": mobile})
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, map[string]interface{}{"email": email})
}

func (r *UserRepo) ExistsByMobile(ctx context.Context, mobile string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE mobile_number = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, mobile).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// FindByMobileOrEmail returns every user holding either identifier.
func (r *UserRepo) FindByMobileOrEmail(ctx context.Context, mobile, email string) ([]*model.User, error) {
	where := map[string]interface{}{
		"_or": []map[string]interface{}{{"mobile_number": mobile}},
	}
	if email != "" {
		where["_or"] = append(where["_or"].([]map[string]interface{}), map[string]interface{}{"email": email})
	}
	sqlStr, args, err := builder.BuildSelect("users", where, userColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepo) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate, emailVerified, mtime int64) error {
	data := map[string]interface{}{"mtime": mtime}
	if update.Name != nil {
		data["name"] = *update.Name
	}
	if update.Email != nil {
		data["email"] = dbutil.NullString(*update.Email)
		data["email_verified"] = dbutil.NullInt64(emailVerified)
	}
	if update.Gender != nil {
		data["gender"] = *update.Gender
	}
	if update.Address != nil {
		data["address"] = *update.Address
	}
	err := r.update(ctx, userID, data)
	if dbutil.IsConflict(err) {
		return appErr.ErrConflict
	}
	return err
}

func (r *UserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string, mtime int64) error {
	return r.update(ctx, userID, map[string]interface{}{
		"password_hash": passwordHash,
		"mtime":         mtime,
	})
}

// MarkLogin records a successful OTP login: the mobile number is now verified.
func (r *UserRepo) MarkLogin(ctx context.Context, userID string, now int64) error {
	return r.update(ctx, userID, map[string]interface{}{
		"is_verified_mobile_number": true,
		"last_login_at":             now,
		"mtime":                     now,
	})
}

func (r *UserRepo) TouchLastLogin(ctx context.Context, userID string, now int64) error {
	return r.update(ctx, userID, map[string]interface{}{
		"last_login_at": now,
		"mtime":         now,
	})
}

func (r *UserRepo) Deactivate(ctx context.Context, userID string, mtime int64) error {
	return r.update(ctx, userID, map[string]interface{}{
		"is_active": false,
		"mtime":     mtime,
	})
}

func (r *UserRepo) update(ctx context.Context, userID string, data map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate("users", map[string]interface{}{"id": userID}, data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.User, error) {
	where["_limit"] = []uint{0, 1}
	sqlStr, args, err := builder.BuildSelect("users", where, userColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, appErr.ErrNotFound
	}
	return scanUser(rows)
}

func scanUser(rows *sql.Rows) (*model.User, error) {
	var (
		user          model.User
		email         sql.NullString
		emailVerified sql.NullInt64
		lastLogin     sql.NullInt64
	)
	if err := rows.Scan(
		&user.ID, &user.Name, &email, &user.MobileNumber, &user.Gender, &user.Address, &user.Role,
		&user.PasswordHash, &user.IsVerifiedMobileNumber, &user.IsActive, &emailVerified, &lastLogin,
		&user.Ctime, &user.Mtime,
	); err != nil {
		return nil, err
	}
	user.Email = dbutil.StringValue(email)
	user.EmailVerified = dbutil.Int64Value(emailVerified)
	user.LastLoginAt = dbutil.Int64Value(lastLogin)
	return &user, nil
}
