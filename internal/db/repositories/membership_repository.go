// membership_repository.go implements MembershipRepository: the user/org/role
// relation. Removal is a status change; removed rows are kept for history and
// ignored by every "live" query.
package repositories

import (
	"context"

	"github.com/lib/pq"

	"github.com/MURUGANQA/auth-service/internal/db/models"
)

const membershipDetailSelect = `
	SELECT m.id, m.org_id, m.user_id, m.role_id, m.status, m.settings, m.created_at, m.updated_at,
	       u.email, o.name, r.name
	FROM memberships m
	JOIN users u ON u.id = m.user_id
	JOIN organizations o ON o.id = m.org_id
	JOIN roles r ON r.id = m.role_id
`

// MembershipRepository handles database operations for memberships
type MembershipRepository struct {
	db Handle
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db Handle) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Create inserts m. A second live membership for the same (org, user) pair
// yields a ConflictError; a role from another organization is rejected by the
// composite foreign key.
func (r *MembershipRepository) Create(ctx context.Context, m *models.Membership) error {
	now := nowUnix()
	query := `
		INSERT INTO memberships (org_id, user_id, role_id, status, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`
	err := r.db.QueryRowxContext(ctx, query,
		m.OrgID, m.UserID, m.RoleID, m.Status, jsonOrEmpty(m.Settings), now,
	).Scan(&m.ID)
	if err != nil {
		return mapStoreError("create membership", err)
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// GetLive returns the non-removed membership of userID in orgID joined with
// its role name, or nil, nil when there is none.
func (r *MembershipRepository) GetLive(ctx context.Context, orgID, userID int64) (*models.MembershipDetail, error) {
	query := membershipDetailSelect + ` WHERE m.org_id = $1 AND m.user_id = $2 AND m.status <> 2`

	rows, err := r.db.QueryxContext(ctx, query, orgID, userID)
	if err != nil {
		return nil, mapStoreError("get membership", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, mapStoreError("get membership", err)
		}
		return nil, nil
	}
	d, err := scanMembershipDetail(rows)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListByOrg returns the live memberships of orgID.
func (r *MembershipRepository) ListByOrg(ctx context.Context, orgID int64) ([]*models.MembershipDetail, error) {
	return r.list(ctx, membershipDetailSelect+` WHERE m.org_id = $1 AND m.status <> 2 ORDER BY m.id`, orgID)
}

// ListByRole returns the live memberships of orgID holding roleID.
func (r *MembershipRepository) ListByRole(ctx context.Context, orgID, roleID int64) ([]*models.MembershipDetail, error) {
	return r.list(ctx, membershipDetailSelect+` WHERE m.org_id = $1 AND m.role_id = $2 AND m.status <> 2 ORDER BY m.id`, orgID, roleID)
}

// ListByUser returns the live memberships of userID across organizations.
func (r *MembershipRepository) ListByUser(ctx context.Context, userID int64) ([]*models.MembershipDetail, error) {
	return r.list(ctx, membershipDetailSelect+` WHERE m.user_id = $1 AND m.status <> 2 ORDER BY m.org_id`, userID)
}

// UpdateRole points the live membership of userID in orgID at roleID. It
// reports whether a row was changed.
func (r *MembershipRepository) UpdateRole(ctx context.Context, orgID, userID, roleID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE memberships SET role_id = $3, updated_at = $4
		WHERE org_id = $1 AND user_id = $2 AND status <> 2
	`, orgID, userID, roleID, nowUnix())
	if err != nil {
		return false, mapStoreError("update membership role", err)
	}
	n, err := rowsAffected("update membership role", res)
	return n > 0, err
}

// SetStatus moves the live membership of userID in orgID from one of the
// from states to status. It reports whether a row was changed.
func (r *MembershipRepository) SetStatus(ctx context.Context, orgID, userID int64, status models.MembershipStatus, from ...models.MembershipStatus) (bool, error) {
	query := `
		UPDATE memberships SET status = $3, updated_at = $4
		WHERE org_id = $1 AND user_id = $2 AND status <> 2
	`
	args := []interface{}{orgID, userID, status, nowUnix()}
	if len(from) > 0 {
		query += ` AND status = ANY($5)`
		states := make([]int64, len(from))
		for i, s := range from {
			states[i] = int64(s)
		}
		args = append(args, pq.Array(states))
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, mapStoreError("update membership status", err)
	}
	n, err := rowsAffected("update membership status", res)
	return n > 0, err
}

// LockActiveWithRole locks the active memberships of orgID whose role is
// called roleName and returns how many there are. Run it inside a
// transaction; the locks are held until it ends.
func (r *MembershipRepository) LockActiveWithRole(ctx context.Context, orgID int64, roleName string) (int, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT m.id
		FROM memberships m
		JOIN roles r ON r.id = m.role_id
		WHERE m.org_id = $1 AND m.status = 1 AND r.name = $2
		FOR UPDATE OF m
	`, orgID, roleName)
	if err != nil {
		return 0, mapStoreError("lock memberships", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, mapStoreError("lock memberships", err)
	}
	return n, nil
}

func (r *MembershipRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.MembershipDetail, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, mapStoreError("list memberships", err)
	}
	defer rows.Close()

	out := make([]*models.MembershipDetail, 0)
	for rows.Next() {
		d, err := scanMembershipDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreError("list memberships", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMembershipDetail(row rowScanner) (*models.MembershipDetail, error) {
	d := &models.MembershipDetail{}
	var settings []byte
	err := row.Scan(
		&d.ID, &d.OrgID, &d.UserID, &d.RoleID, &d.Status, &settings, &d.CreatedAt, &d.UpdatedAt,
		&d.UserEmail, &d.OrgName, &d.RoleName,
	)
	if err != nil {
		return nil, mapStoreError("scan membership", err)
	}
	d.Settings = settings
	return d, nil
}
