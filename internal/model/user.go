package model

const (
	RoleUser       = "USER"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER_ADMIN"
)

const (
	GenderMale   = "MALE"
	GenderFemale = "FEMALE"
	GenderOther  = "OTHER"
)

type User struct {
	ID                     string
	Name                   string
	Email                  string
	MobileNumber           string
	Gender                 string
	Address                string
	Role                   string
	PasswordHash           string
	IsVerifiedMobileNumber bool
	IsActive               bool
	EmailVerified          int64
	LastLoginAt            int64
	Ctime                  int64
	Mtime                  int64
}

func IsAdminRole(role string) bool {
	return role == RoleAdmin || role == RoleSuperAdmin
}

func IsValidRole(role string) bool {
	return role == RoleUser || IsAdminRole(role)
}

// BasicUser is returned by registration and OTP verification.
type BasicUser struct {
	ID                     string `json:"id"`
	Name                   string `json:"name,omitempty"`
	Email                  string `json:"email,omitempty"`
	MobileNumber           string `json:"mobileNumber"`
	Role                   string `json:"role"`
	IsVerifiedMobileNumber bool   `json:"isVerifiedMobileNumber"`
}

// LoginUser is the slice of the user echoed back by initiate-login.
type LoginUser struct {
	ID                     string `json:"id"`
	Name                   string `json:"name,omitempty"`
	MobileNumber           string `json:"mobileNumber"`
	IsVerifiedMobileNumber bool   `json:"isVerifiedMobileNumber"`
}

type FullUser struct {
	ID                     string `json:"id"`
	Name                   string `json:"name,omitempty"`
	Email                  string `json:"email,omitempty"`
	MobileNumber           string `json:"mobileNumber"`
	Gender                 string `json:"gender,omitempty"`
	Address                string `json:"address,omitempty"`
	Role                   string `json:"role"`
	IsVerifiedMobileNumber bool   `json:"isVerifiedMobileNumber"`
	IsActive               bool   `json:"isActive"`
	EmailVerified          int64  `json:"emailVerified,omitempty"`
	LastLoginAt            int64  `json:"lastLoginAt,omitempty"`
	CreatedAt              int64  `json:"createdAt"`
	UpdatedAt              int64  `json:"updatedAt"`
}

func (u *User) Basic() *BasicUser {
	return &BasicUser{
		ID:                     u.ID,
		Name:                   u.Name,
		Email:                  u.Email,
		MobileNumber:           u.MobileNumber,
		Role:                   u.Role,
		IsVerifiedMobileNumber: u.IsVerifiedMobileNumber,
	}
}

func (u *User) Login() *LoginUser {
	return &LoginUser{
		ID:                     u.ID,
		Name:                   u.Name,
		MobileNumber:           u.MobileNumber,
		IsVerifiedMobileNumber: u.IsVerifiedMobileNumber,
	}
}

func (u *User) Full() *FullUser {
	return &FullUser{
		ID:                     u.ID,
		Name:                   u.Name,
		Email:                  u.Email,
		MobileNumber:           u.MobileNumber,
		Gender:                 u.Gender,
		Address:                u.Address,
		Role:                   u.Role,
		IsVerifiedMobileNumber: u.IsVerifiedMobileNumber,
		IsActive:               u.IsActive,
		EmailVerified:          u.EmailVerified,
		LastLoginAt:            u.LastLoginAt,
		CreatedAt:              u.Ctime,
		UpdatedAt:              u.Mtime,
	}
}

// ProfileUpdate carries optional profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name    *string
	Email   *string
	Gender  *string
	Address *string
}
