// Package models - organization.go defines the Organization (tenant) model.
package models

import "encoding/json"

// Organization is a tenant. Personal marks the organization created for a
// user at signup.
type Organization struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Status    int16           `json:"status"`
	Personal  bool            `json:"personal"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	Details   string          `json:"details"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

// Role is a named label scoped to one organization.
type Role struct {
	ID          int64  `json:"id"`
	OrgID       int64  `json:"org_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"created_at"`
}

// Role names created and recognised by the service.
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
)

// IsAdministrativeRole reports whether holders of a role named name may
// manage memberships.
func IsAdministrativeRole(name string) bool {
	return name == RoleOwner || name == RoleAdmin
}

// IsAdministrative reports whether holders of the role may manage memberships.
func (r *Role) IsAdministrative() bool {
	return r != nil && IsAdministrativeRole(r.Name)
}
