// role_repository.go implements RoleRepository. Roles are scoped to one
// organization; the same name may exist in many organizations.
package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/MURUGANQA/auth-service/internal/db/models"
)

// RoleRepository handles database operations for organization roles
type RoleRepository struct {
	db Handle
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db Handle) *RoleRepository {
	return &RoleRepository{db: db}
}

// Create inserts role. A name already used in the same organization yields a
// ConflictError.
func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	now := nowUnix()
	query := `
		INSERT INTO roles (org_id, name, description, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := r.db.QueryRowxContext(ctx, query, role.OrgID, role.Name, role.Description, now).Scan(&role.ID); err != nil {
		return mapStoreError("create role", err)
	}
	role.CreatedAt = now
	return nil
}

// GetByID retrieves a role by ID regardless of organization. Returns nil, nil
// when absent.
func (r *RoleRepository) GetByID(ctx context.Context, id int64) (*models.Role, error) {
	return r.getOne(ctx, `SELECT id, org_id, name, description, created_at FROM roles WHERE id = $1`, id)
}

// GetByName retrieves the role called name within orgID.
func (r *RoleRepository) GetByName(ctx context.Context, orgID int64, name string) (*models.Role, error) {
	return r.getOne(ctx, `SELECT id, org_id, name, description, created_at FROM roles WHERE org_id = $1 AND name = $2`, orgID, name)
}

// ListByOrg returns the roles defined in orgID ordered by name.
func (r *RoleRepository) ListByOrg(ctx context.Context, orgID int64) ([]*models.Role, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT id, org_id, name, description, created_at FROM roles WHERE org_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, mapStoreError("list roles", err)
	}
	defer rows.Close()

	roles := make([]*models.Role, 0)
	for rows.Next() {
		role := &models.Role{}
		if err := rows.Scan(&role.ID, &role.OrgID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
			return nil, mapStoreError("scan role", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreError("list roles", err)
	}
	return roles, nil
}

func (r *RoleRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Role, error) {
	role := &models.Role{}
	err := r.db.QueryRowxContext(ctx, query, args...).Scan(&role.ID, &role.OrgID, &role.Name, &role.Description, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapStoreError("get role", err)
	}
	return role, nil
}
