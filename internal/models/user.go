package models

import "time"

type UserRole string

const (
	UserRoleUser      UserRole = "user"
	UserRoleModerator UserRole = "moderator"
	UserRoleAdmin     UserRole = "admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case UserRoleUser, UserRoleModerator, UserRoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash *string
	CreatedAt    time.Time
	AvatarURL    *string
	Confirmed    bool
	Role         UserRole
}

// HasPassword reports whether the account can log in with a password. A nil
// hash means the password was reset and must be set again through the
// verification token flow.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// NewUser holds the fields of a registration. PasswordHash is already hashed.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	AvatarURL    *string
}
