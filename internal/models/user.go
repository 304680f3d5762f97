package models

import (
	"time"
)

// User roles form a fixed small set; directory logins recompute the role on
// every successful authentication.
const (
	RoleAdmin      = "admin"
	RoleTechnician = "technician"
	RoleUser       = "user"
)

// User describes a local user record. Directory-provisioned users carry an
// empty Password and are matched first by username, then by email.
type User struct {
	BaseModel

	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `json:"-"`

	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	MiddleName string `json:"middle_name"`

	Role     string `gorm:"not null;default:user" json:"role"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"last_login_ip"`

	Sessions []Session `gorm:"foreignKey:UserID" json:"-"`
}

// DisplayName renders the decomposed name parts, falling back to the username.
func (u *User) DisplayName() string {
	switch {
	case u.LastName != "" && u.FirstName != "":
		return u.LastName + " " + u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Username
	}
}
