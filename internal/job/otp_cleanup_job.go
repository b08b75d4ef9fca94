package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type expiredOTPCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// OTPCleanupJob purges one-time codes whose validity window has closed.
type OTPCleanupJob struct {
	otp expiredOTPCleaner
}

func NewOTPCleanupJob(otp expiredOTPCleaner) *OTPCleanupJob {
	return &OTPCleanupJob{otp: otp}
}

func (j *OTPCleanupJob) Name() string {
	return "otp_cleanup"
}

func (j *OTPCleanupJob) Run(ctx context.Context) error {
	if j.otp == nil {
		return nil
	}
	deleted, err := j.otp.CleanupExpired(ctx)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("expired otps removed", zap.Int64("deleted", deleted))
	return nil
}
