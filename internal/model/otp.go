package model

const (
	OTPReasonLogin         = "LOGIN"
	OTPReasonRegistration  = "REGISTRATION"
	OTPReasonPasswordReset = "PASSWORD_RESET"
)

func IsValidOTPReason(reason string) bool {
	switch reason {
	case OTPReasonLogin, OTPReasonRegistration, OTPReasonPasswordReset:
		return true
	}
	return false
}

type OneTimeCode struct {
	ID             string `json:"id"`
	MobileNumber   string `json:"mobile_number"`
	Reason         string `json:"reason"`
	Code           string `json:"-"`
	ExpiresAt      int64  `json:"expires_at"`
	Used           bool   `json:"used"`
	UsedAt         int64  `json:"used_at"`
	ResendAttempts int    `json:"resend_attempts"`
	Ctime          int64  `json:"ctime"`
}

// Expired reports whether the code's validity window has closed at now (unix seconds).
func (c *OneTimeCode) Expired(now int64) bool {
	return c.ExpiresAt <= now
}

func (c *OneTimeCode) Active(now int64) bool {
	return !c.Used && !c.Expired(now)
}
