// Package models - membership.go defines the user-to-organization membership
// relation and the joined views returned by list queries.
package models

import "encoding/json"

// MembershipStatus is the lifecycle state of a membership.
type MembershipStatus int16

const (
	MembershipPending MembershipStatus = 0
	MembershipActive  MembershipStatus = 1
	MembershipRemoved MembershipStatus = 2
)

// String returns the lower-case status name used in API responses.
func (s MembershipStatus) String() string {
	switch s {
	case MembershipPending:
		return "pending"
	case MembershipActive:
		return "active"
	case MembershipRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the known states.
func (s MembershipStatus) Valid() bool {
	return s >= MembershipPending && s <= MembershipRemoved
}

// Membership links a user to an organization with exactly one role.
type Membership struct {
	ID        int64            `json:"id"`
	OrgID     int64            `json:"org_id"`
	UserID    int64            `json:"user_id"`
	RoleID    int64            `json:"role_id"`
	Status    MembershipStatus `json:"status"`
	Settings  json.RawMessage  `json:"settings,omitempty"`
	CreatedAt int64            `json:"created_at"`
	UpdatedAt int64            `json:"updated_at"`
}

// MembershipDetail is a membership joined with the user's email, the
// organization name and the role name.
type MembershipDetail struct {
	Membership
	UserEmail string `json:"user_email"`
	OrgName   string `json:"org_name"`
	RoleName  string `json:"role_name"`
}
