package validate

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/xxxsen/otpauth/internal/model"
)

var (
	mobileRegex = regexp.MustCompile(`^[6-9]\d{9}$`)
	otpRegex    = regexp.MustCompile(`^\d{6}$`)
)

var std = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := Register(v); err != nil {
		panic(err)
	}
	return v
}

// Register installs the custom tags on v. The API layer calls it on gin's
// binding engine so request structs and services share one rule set.
func Register(v *validator.Validate) error {
	rules := map[string]func(string) bool{
		"mobile":    Mobile,
		"otp":       OTP,
		"gender":    Gender,
		"otpreason": model.IsValidOTPReason,
	}
	for tag, fn := range rules {
		fn := fn
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return fn(fl.Field().String())
		}); err != nil {
			return err
		}
	}
	return nil
}

// Mobile accepts a 10-digit local-format number.
func Mobile(s string) bool {
	return mobileRegex.MatchString(s)
}

func OTP(s string) bool {
	return otpRegex.MatchString(s)
}

func Gender(s string) bool {
	switch s {
	case model.GenderMale, model.GenderFemale, model.GenderOther:
		return true
	}
	return false
}

func Email(s string) bool {
	return std.Var(s, "required,email") == nil
}

// Struct runs tag validation on a service-level input.
func Struct(s interface{}) error {
	return std.Struct(s)
}

// NormalizeEmail trims and case-folds an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
