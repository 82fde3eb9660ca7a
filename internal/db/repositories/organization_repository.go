// organization_repository.go implements OrganizationRepository, providing
// database queries for tenant creation and lookup.
package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/MURUGANQA/auth-service/internal/db/models"
)

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db Handle
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db Handle) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create inserts org and fills in its ID and timestamps.
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	now := nowUnix()
	query := `
		INSERT INTO organizations (name, status, personal, settings, details, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`

	err := r.db.QueryRowxContext(ctx, query,
		org.Name,
		org.Status,
		org.Personal,
		jsonOrEmpty(org.Settings),
		org.Details,
		now,
	).Scan(&org.ID)
	if err != nil {
		return mapStoreError("create organization", err)
	}

	org.CreatedAt = now
	org.UpdatedAt = now
	return nil
}

// GetByID retrieves an organization by ID. Returns nil, nil when absent.
func (r *OrganizationRepository) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	query := `
		SELECT id, name, status, personal, settings, details, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`

	org := &models.Organization{}
	var settings []byte
	err := r.db.QueryRowxContext(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.Status,
		&org.Personal,
		&settings,
		&org.Details,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapStoreError("get organization", err)
	}
	org.Settings = settings
	return org, nil
}
