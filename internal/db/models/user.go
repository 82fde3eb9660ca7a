// Package models - user.go defines the User account model and its status enum.
package models

import "encoding/json"

// UserStatus is the lifecycle state of an account.
type UserStatus int16

const (
	UserStatusActive   UserStatus = 0
	UserStatusDisabled UserStatus = 1
)

// User represents a registered account. Password holds the bcrypt hash only.
type User struct {
	ID        int64           `json:"id"`
	Email     string          `json:"email"`
	Password  string          `json:"-"`
	Profile   json.RawMessage `json:"profile,omitempty"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	Status    UserStatus      `json:"status"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

// IsActive reports whether the account may sign in.
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}
