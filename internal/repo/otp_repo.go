package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/otpauth/internal/model"
	"github.com/xxxsen/otpauth/internal/pkg/dbutil"
	appErr "github.com/xxxsen/otpauth/internal/pkg/errors"
)

var otpColumns = []string{"id", "mobile_number", "reason", "code", "expires_at", "used", "used_at", "resend_attempts", "ctime"}

type OTPRepo struct {
	db *sql.DB
}

func NewOTPRepo(db *sql.DB) *OTPRepo {
	return &OTPRepo{db: db}
}

// Replace stores code in the (mobile_number, reason) slot, overwriting whatever
// was there. The unique index makes concurrent issues collapse to one row.
func (r *OTPRepo) Replace(ctx context.Context, code *model.OneTimeCode) error {
	const query = `INSERT INTO otps (id, mobile_number, reason, code, expires_at, used, used_at, resend_attempts, ctime)
VALUES ($1, $2, $3, $4, $5, FALSE, NULL, 0, $6)
ON CONFLICT (mobile_number, reason) DO UPDATE SET
	id = EXCLUDED.id,
	code = EXCLUDED.code,
	expires_at = EXCLUDED.expires_at,
	used = FALSE,
	used_at = NULL,
	resend_attempts = 0,
	ctime = EXCLUDED.ctime`
	_, err := r.db.ExecContext(ctx, query, code.ID, code.MobileNumber, code.Reason, code.Code, code.ExpiresAt, code.Ctime)
	return err
}

func (r *OTPRepo) GetByID(ctx context.Context, id string) (*model.OneTimeCode, error) {
	return r.getOne(ctx, map[string]interface{}{"id": id})
}

func (r *OTPRepo) GetByMobileReason(ctx context.Context, mobile, reason string) (*model.OneTimeCode, error) {
	return r.getOne(ctx, map[string]interface{}{"mobile_number": mobile, "reason": reason})
}

func (r *OTPRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.delete(ctx, map[string]interface{}{"id": id})
	return err
}

func (r *OTPRepo) DeleteByMobileReason(ctx context.Context, mobile, reason string) (int64, error) {
	return r.delete(ctx, map[string]interface{}{"mobile_number": mobile, "reason": reason})
}

func (r *OTPRepo) DeleteUsed(ctx context.Context, mobile, reason string) (int64, error) {
	return r.delete(ctx, map[string]interface{}{"mobile_number": mobile, "reason": reason, "used": true})
}

func (r *OTPRepo) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	const query = `DELETE FROM otps WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// IncrementResend bumps the counter only while it is below max. It reports
// false when the cap was already reached.
func (r *OTPRepo) IncrementResend(ctx context.Context, id string, max int) (bool, error) {
	const query = `UPDATE otps SET resend_attempts = resend_attempts + 1 WHERE id = $1 AND resend_attempts < $2`
	res, err := r.db.ExecContext(ctx, query, id, max)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Consume marks the code used if it is still unused and unexpired at now. It
// reports false when another caller got there first or the code lapsed.
func (r *OTPRepo) Consume(ctx context.Context, id string, now int64) (bool, error) {
	const query = `UPDATE otps SET used = TRUE, used_at = $1 WHERE id = $2 AND used = FALSE AND expires_at > $1`
	res, err := r.db.ExecContext(ctx, query, now, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *OTPRepo) delete(ctx context.Context, where map[string]interface{}) (int64, error) {
	sqlStr, args, err := builder.BuildDelete("otps", where)
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *OTPRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.OneTimeCode, error) {
	sqlStr, args, err := builder.BuildSelect("otps", where, otpColumns)
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
	var (
		code   model.OneTimeCode
		usedAt sql.NullInt64
	)
	if err := rows.Scan(&code.ID, &code.MobileNumber, &code.Reason, &code.Code, &code.ExpiresAt,
		&code.Used, &usedAt, &code.ResendAttempts, &code.Ctime); err != nil {
		return nil, err
	}
	code.UsedAt = dbutil.Int64Value(usedAt)
	return &code, nil
}
