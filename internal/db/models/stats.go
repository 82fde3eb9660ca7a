// Package models - stats.go defines the rows returned by the reporting queries.
package models

// RoleUserCount is the number of members holding a role name across the
// reported organizations.
type RoleUserCount struct {
	RoleName string `json:"role_name" db:"role_name"`
	Users    int64  `json:"users" db:"users"`
}

// OrgMemberCount is the number of members of one organization.
type OrgMemberCount struct {
	OrgID   int64  `json:"org_id" db:"org_id"`
	OrgName string `json:"org_name" db:"org_name"`
	Members int64  `json:"members" db:"members"`
}

// OrgRoleUserCount is the number of members per role within an organization.
type OrgRoleUserCount struct {
	OrgID    int64  `json:"org_id" db:"org_id"`
	OrgName  string `json:"org_name" db:"org_name"`
	RoleName string `json:"role_name" db:"role_name"`
	Users    int64  `json:"users" db:"users"`
}

// StatsFilter narrows reporting queries by membership creation time (epoch
// seconds, inclusive) and status. Zero values mean "no bound". A non-zero
// ViewerID limits the report to organizations where that user holds an
// active membership.
type StatsFilter struct {
	FromDate int64
	ToDate   int64
	Status   *MembershipStatus
	ViewerID int64
}
