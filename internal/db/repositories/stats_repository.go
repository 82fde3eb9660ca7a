// stats_repository.go implements StatsRepository, the read-only reporting
// queries over memberships.
package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/MURUGANQA/auth-service/internal/db/models"
)

// StatsRepository runs aggregate membership queries
type StatsRepository struct {
	db Handle
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db Handle) *StatsRepository {
	return &StatsRepository{db: db}
}

// RoleWiseUsers counts members per role name across the filtered organizations.
func (r *StatsRepository) RoleWiseUsers(ctx context.Context, f models.StatsFilter) ([]models.RoleUserCount, error) {
	where, args := membershipFilter(f)
	query := `
		SELECT r.name AS role_name, COUNT(DISTINCT m.user_id) AS users
		FROM memberships m
		JOIN roles r ON r.id = m.role_id
		` + where + `
		GROUP BY r.name
		ORDER BY r.name
	`
	out := make([]models.RoleUserCount, 0)
	if err := sqlx.SelectContext(ctx, r.db, &out, query, args...); err != nil {
		return nil, mapStoreError("query role-wise users", err)
	}
	return out, nil
}

// OrgWiseMembers counts members per organization.
func (r *StatsRepository) OrgWiseMembers(ctx context.Context, f models.StatsFilter) ([]models.OrgMemberCount, error) {
	where, args := membershipFilter(f)
	query := `
		SELECT o.id AS org_id, o.name AS org_name, COUNT(m.id) AS members
		FROM memberships m
		JOIN organizations o ON o.id = m.org_id
		` + where + `
		GROUP BY o.id, o.name
		ORDER BY o.id
	`
	out := make([]models.OrgMemberCount, 0)
	if err := sqlx.SelectContext(ctx, r.db, &out, query, args...); err != nil {
		return nil, mapStoreError("query org-wise members", err)
	}
	return out, nil
}

// OrgRoleWiseUsers counts members per (organization, role).
func (r *StatsRepository) OrgRoleWiseUsers(ctx context.Context, f models.StatsFilter) ([]models.OrgRoleUserCount, error) {
	where, args := membershipFilter(f)
	query := `
		SELECT o.id AS org_id, o.name AS org_name, r.name AS role_name, COUNT(m.user_id) AS users
		FROM memberships m
		JOIN organizations o ON o.id = m.org_id
		JOIN roles r ON r.id = m.role_id
		` + where + `
		GROUP BY o.id, o.name, r.name
		ORDER BY o.id, r.name
	`
	out := make([]models.OrgRoleUserCount, 0)
	if err := sqlx.SelectContext(ctx, r.db, &out, query, args...); err != nil {
		return nil, mapStoreError("query org-role-wise users", err)
	}
	return out, nil
}

// membershipFilter builds the WHERE clause for f. Removed memberships are
// excluded unless a status is requested explicitly.
func membershipFilter(f models.StatsFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != nil {
		add("m.status = $%d", *f.Status)
	} else {
		conds = append(conds, "m.status <> 2")
	}
	if f.FromDate > 0 {
		add("m.created_at >= $%d", f.FromDate)
	}
	if f.ToDate > 0 {
		add("m.created_at <= $%d", f.ToDate)
	}
	if f.ViewerID > 0 {
		add("m.org_id IN (SELECT v.org_id FROM memberships v WHERE v.user_id = $%d AND v.status = 1)", f.ViewerID)
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}
